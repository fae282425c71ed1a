package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"portal_automation/internal/autonomy/cronrunner"
)

var (
	runTasks []string
	runForce bool
	runAt    string
)

var runCmd = &cobra.Command{
	Use:   "run [task...]",
	Short: "Run the automation jobs that are due",
	Long: `Run evaluates every selected job's schedule and runs the ones that are due.

Tasks are news (news_digest), blog (blog_research), operations or ops
(operations_watch) and all. With no task every job is considered. --force runs
the selected jobs even when they are not due.

The exit status is 1 when any job failed or the state could not be saved.`,
	RunE: runAutomation,
}

func init() {
	runCmd.Flags().StringSliceVarP(&runTasks, "task", "t", nil, "jobs to run (comma separated)")
	runCmd.Flags().BoolVarP(&runForce, "force", "f", false, "run even when the schedule is not due")
	runCmd.Flags().StringVar(&runAt, "now", "", "evaluate schedules at this RFC3339 instant")
}

func runAutomation(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	now := time.Now()
	if strings.TrimSpace(runAt) != "" {
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(runAt))
		if err != nil {
			return errors.Wrap(err, "parse --now")
		}
		now = t
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	deps, err := a.deps()
	if err != nil {
		return err
	}

	targets := append(append([]string{}, runTasks...), args...)
	report, err := cronrunner.Invoke(ctx, deps, cronrunner.InvokeOptions{
		Now:     now,
		Targets: targets,
		Force:   runForce,
	})
	if err != nil && !errors.Is(err, cronrunner.ErrPersistence) {
		return err
	}
	printReport(cmd.OutOrStdout(), report)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Failed to persist portal state:", err)
	}
	if code := report.ExitCode(); code != 0 {
		return exitCodeError{code: code}
	}
	return nil
}

func printReport(w io.Writer, report cronrunner.Report) {
	for _, res := range report.Results {
		fmt.Fprintf(w, "%s: %s - %s\n", res.Job, strings.ToUpper(res.Status), res.Message)
	}
	switch {
	case report.Saved:
		fmt.Fprintln(w, "Portal state saved.")
	case !report.StateChanged():
		fmt.Fprintln(w, "No state changes detected.")
	}
}
