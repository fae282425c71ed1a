package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"portal_automation/internal/autonomy/cron"
	"portal_automation/internal/portal"
)

var statusRuns int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show schedules, last runs and recent run records",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusRuns, "runs", 10, "number of recent run records to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	doc, err := a.store.Load(ctx)
	if err != nil {
		return err
	}
	var runs []cron.RunRecord
	if a.runs != nil && statusRuns > 0 {
		runs, err = a.runs(ctx, statusRuns)
		if err != nil {
			a.log.Warnw("run log unavailable", "error", err)
		}
	}
	renderStatus(cmd.OutOrStdout(), doc, runs, time.Now())
	return nil
}

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

func outcomeStyle(kind string) lipgloss.Style {
	switch kind {
	case portal.OutcomeSuccess, "skipped":
		return okStyle
	case portal.OutcomeRetryable:
		return warnStyle
	default:
		return errStyle
	}
}

func renderStatus(w io.Writer, doc *portal.Document, runs []cron.RunRecord, now time.Time) {
	for _, name := range []string{portal.JobNewsDigest, portal.JobBlogResearch, portal.JobOperationsWatch} {
		state := doc.AIAutomation.Job(name)
		sched := state.Schedule

		fmt.Fprintln(w, headingStyle.Render(name))
		line := func(label string, value string) {
			fmt.Fprintf(w, "  %s %s\n", labelStyle.Render(fmt.Sprintf("%-10s", label)), value)
		}
		if sched.IsEnabled() {
			line("schedule", cron.Describe(sched))
			if next, ok := cron.NextRun(sched, now); ok {
				line("next run", next.Format(time.RFC3339))
			} else {
				line("next run", "none within two weeks")
			}
			if cron.IsDue(sched, state.LastRun(), now) {
				line("due", warnStyle.Render("yes"))
			}
		} else {
			line("schedule", warnStyle.Render("disabled")+" ("+cron.Describe(sched)+")")
		}
		line("last run", valueOr(state.LastRunAt, "never"))
		if o := state.LastOutcome; o != nil {
			line("outcome", outcomeStyle(o.Kind).Render(o.Kind)+" at "+o.At)
		}
		if e := state.LastError; e != nil {
			line("error", errStyle.Render(e.Message))
		}
		fmt.Fprintln(w)
	}

	if len(runs) == 0 {
		return
	}
	fmt.Fprintln(w, headingStyle.Render("recent runs"))
	for _, r := range runs {
		status := r.Status
		if r.Outcome != "" && r.Outcome != r.Status {
			status += "/" + r.Outcome
		}
		msg := r.Message
		if r.Error != "" && !strings.Contains(msg, r.Error) {
			msg = r.Error
		}
		fmt.Fprintf(w, "  %s  %-16s %s  %s\n",
			labelStyle.Render(r.StartedAt.Local().Format("2006-01-02 15:04")),
			r.Job,
			outcomeStyle(r.Outcome).Render(status),
			msg,
		)
	}
}

func valueOr(s string, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
