package cronrunner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"portal_automation/internal/autonomy/cron"
	"portal_automation/internal/autonomy/runlock"
	"portal_automation/internal/logging"
	"portal_automation/internal/portal"
)

// ErrPersistence marks a failed save of the state document after the jobs
// ran. Jobs that succeeded in memory are still reported.
var ErrPersistence = errors.New("persist portal state")

const (
	maxOutputPreview = 800
	heldLockMessage  = "Another automation run is in progress."
)

// RunRecorder keeps an audit trail of every job attempt.
type RunRecorder interface {
	Record(ctx context.Context, rec cron.RunRecord) error
}

// FileRunLog appends run records to a jsonl file.
type FileRunLog struct {
	Path string
}

func (l FileRunLog) Record(ctx context.Context, rec cron.RunRecord) error {
	return cron.AppendRunRecord(l.Path, rec)
}

// Notifier delivers an operator notification written in markdown.
type Notifier interface {
	Notify(ctx context.Context, subject string, markdownBody string) error
}

type Deps struct {
	Store     portal.Store
	Generator GeneratorFactory
	Tickets   portal.TicketSource
	Prompts   *PromptCatalog
	Locker    runlock.Locker
	Recorder  RunRecorder
	Notifier  Notifier
	Logger    *zap.SugaredLogger
}

type InvokeOptions struct {
	Now     time.Time
	Targets []string
	Force   bool
}

type Report struct {
	Results []Result
	// Saved is true when the document was written back.
	Saved   bool
	SaveErr error
	Locked  bool
}

func (r Report) StateChanged() bool {
	for _, res := range r.Results {
		if res.StateChanged {
			return true
		}
	}
	return false
}

func (r Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Status == StatusError {
			out = append(out, res)
		}
	}
	return out
}

// ExitCode is 0 when every job succeeded or was skipped and the state was
// persisted, 1 otherwise.
func (r Report) ExitCode() int {
	if r.SaveErr != nil || len(r.Failed()) > 0 {
		return 1
	}
	return 0
}

// Invoke is one scheduled trigger: load the document, take the run lock when
// configured, run the targets, save once if anything changed, then record
// and notify. The returned error covers load and lock failures and
// ErrPersistence; job failures are reported in the results only.
func Invoke(ctx context.Context, deps Deps, opts InvokeOptions) (Report, error) {
	if deps.Store == nil {
		return Report{}, errors.New("state store is nil")
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	targets := ParseTargets(opts.Targets...)

	if deps.Locker != nil {
		release, err := deps.Locker.TryAcquire(ctx)
		if errors.Is(err, runlock.ErrHeld) {
			log.Warnw("automation run skipped, lock held", "error", err)
			report := Report{Locked: true}
			for _, name := range targets {
				report.Results = append(report.Results, Result{Job: name, Status: StatusSkipped, Message: heldLockMessage})
			}
			return report, nil
		}
		if err != nil {
			return Report{}, errors.Wrap(err, "acquire run lock")
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Warnw("release run lock failed", "error", err)
			}
		}()
	}

	doc, err := deps.Store.Load(ctx)
	if err != nil {
		return Report{}, errors.Wrap(err, "load portal state")
	}
	tickets := deps.Tickets
	if tickets == nil {
		tickets = portal.DocumentTicketSource{Doc: doc}
	}
	orch, err := NewOrchestrator(doc, Options{
		Generator: deps.Generator,
		Tickets:   tickets,
		Prompts:   deps.Prompts,
		Logger:    log,
	})
	if err != nil {
		return Report{}, err
	}

	report := Report{Results: orch.Run(ctx, now, targets, opts.Force)}
	if report.StateChanged() {
		doc.UpdatedAt = now.UTC().Format(time.RFC3339)
		if err := deps.Store.Save(ctx, doc); err != nil {
			report.SaveErr = errors.Mark(errors.Wrap(err, "save portal state"), ErrPersistence)
			log.Errorw("portal state not saved", "error", err)
		} else {
			report.Saved = true
		}
	}

	recordRuns(ctx, deps.Recorder, report.Results, opts.Force, log)
	notifyFailures(ctx, deps.Notifier, report, log)
	return report, report.SaveErr
}

func recordRuns(ctx context.Context, recorder RunRecorder, results []Result, force bool, log *zap.SugaredLogger) {
	if recorder == nil {
		return
	}
	for _, res := range results {
		if res.Status == StatusSkipped {
			continue
		}
		rec := cron.RunRecord{
			Job:           res.Job,
			StartedAt:     res.StartedAt.UTC(),
			FinishedAt:    res.FinishedAt.UTC(),
			Status:        res.Status,
			Outcome:       res.Outcome,
			Forced:        force,
			Message:       res.Message,
			OutputPreview: logging.Preview(res.RawOutput, maxOutputPreview),
		}
		if res.Err != nil {
			rec.Error = res.Err.Error()
		}
		if err := recorder.Record(ctx, rec); err != nil {
			log.Warnw("run record not written", "job", res.Job, "error", err)
		}
	}
}

func notifyFailures(ctx context.Context, notifier Notifier, report Report, log *zap.SugaredLogger) {
	if notifier == nil {
		return
	}
	failed := report.Failed()
	if len(failed) == 0 && report.SaveErr == nil {
		return
	}
	subject, body := FailureSummary(report)
	if err := notifier.Notify(ctx, subject, body); err != nil {
		log.Warnw("failure notification not sent", "error", err)
	}
}

// FailureSummary renders the failed jobs of a report as a subject line and a
// markdown body.
func FailureSummary(report Report) (string, string) {
	failed := report.Failed()
	names := make([]string, 0, len(failed))
	for _, res := range failed {
		names = append(names, res.Job)
	}

	var b strings.Builder
	b.WriteString("## Automation failures\n\n")
	for _, res := range failed {
		fmt.Fprintf(&b, "- **%s** (%s): %s\n", res.Job, res.Outcome, res.Message)
		if preview := logging.Preview(res.RawOutput, 240); preview != "" {
			fmt.Fprintf(&b, "  - raw output: `%s`\n", strings.ReplaceAll(preview, "`", "'"))
		}
	}
	if report.SaveErr != nil {
		fmt.Fprintf(&b, "\nThe portal state could not be saved: %s\n", report.SaveErr.Error())
		names = append(names, "state save")
	}
	return "automation failed: " + strings.Join(names, ", "), b.String()
}
