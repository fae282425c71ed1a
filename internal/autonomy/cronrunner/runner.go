package cronrunner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"portal_automation/internal/autonomy/cron"
	"portal_automation/internal/llm"
	"portal_automation/internal/portal"
)

const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// History capacities per job.
const (
	newsHistoryLimit       = 10
	blogHistoryLimit       = 8
	operationsHistoryLimit = 6
)

// ErrInsufficientContent marks model output that parsed but does not carry
// the minimum a job needs to publish.
var ErrInsufficientContent = errors.New("insufficient content")

func insufficient(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrInsufficientContent)
}

// Result is the outcome of one job in one invocation.
type Result struct {
	Job          string `json:"automation"`
	Status       string `json:"status"`
	Message      string `json:"message"`
	Ran          bool   `json:"ran"`
	StateChanged bool   `json:"stateChanged"`
	Outcome      string `json:"outcome,omitempty"`
	Payload      any    `json:"payload,omitempty"`

	StartedAt  time.Time `json:"-"`
	FinishedAt time.Time `json:"-"`
	RawOutput  string    `json:"-"`
	Err        error     `json:"-"`
}

// GeneratorFactory builds the generation client for one invocation. It sees
// the document so persisted ai_settings can take part in resolution.
type GeneratorFactory func(ctx context.Context, doc *portal.Document) (llm.Generator, error)

type Options struct {
	Generator GeneratorFactory
	Tickets   portal.TicketSource
	Prompts   *PromptCatalog
	Logger    *zap.SugaredLogger
}

// Orchestrator runs the content jobs against one loaded state document. The
// document is mutated in place; persisting it is the caller's job.
type Orchestrator struct {
	doc     *portal.Document
	factory GeneratorFactory
	tickets portal.TicketSource
	prompts *PromptCatalog
	log     *zap.SugaredLogger

	gen    llm.Generator
	genErr error
	built  bool
	// label names the generation provider in activity and error text.
	label string
}

func NewOrchestrator(doc *portal.Document, opts Options) (*Orchestrator, error) {
	if doc == nil {
		return nil, errors.New("state document is nil")
	}
	if opts.Generator == nil {
		return nil, errors.New("generator factory is nil")
	}
	prompts := opts.Prompts
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	tickets := opts.Tickets
	if tickets == nil {
		tickets = portal.DocumentTicketSource{Doc: doc}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Orchestrator{
		doc:     doc,
		factory: opts.Generator,
		tickets: tickets,
		prompts: prompts,
		log:     log,
		label:   llm.ProviderGemini.Label(),
	}, nil
}

// job describes one content routine. produce generates, validates and stores
// the artifact; it must not touch the document when it returns an error.
type job struct {
	name        string
	skipMessage string
	produce     func(o *Orchestrator, ctx context.Context, gen llm.Generator, now time.Time) (jobOutput, error)
}

type jobOutput struct {
	message  string
	activity string
	payload  any
}

var jobs = []job{
	{name: portal.JobNewsDigest, skipMessage: "Daily news digest is already up to date for today.", produce: (*Orchestrator).produceNewsDigest},
	{name: portal.JobBlogResearch, skipMessage: "Scheduled blog post already generated for the current slot.", produce: (*Orchestrator).produceBlogPost},
	{name: portal.JobOperationsWatch, skipMessage: "Operations review already completed for today.", produce: (*Orchestrator).produceOperationsReport},
}

func lookupJob(name string) (job, bool) {
	for _, j := range jobs {
		if j.name == name {
			return j, true
		}
	}
	return job{}, false
}

// ParseTargets canonicalises target names. Empty input or "all" selects
// every job in fixed order; duplicates are dropped and unknown names are kept
// verbatim so Run can report them.
func ParseTargets(raw ...string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, item := range raw {
		for _, part := range strings.Split(item, ",") {
			name := strings.TrimSpace(part)
			if name == "" {
				continue
			}
			if strings.EqualFold(name, "all") {
				for _, j := range jobs {
					add(j.name)
				}
				continue
			}
			if canonical := llm.CanonicalTask(strings.ToLower(name)); canonical != "" {
				if _, ok := lookupJob(canonical); ok {
					add(canonical)
					continue
				}
			}
			add(name)
		}
	}
	if len(out) == 0 {
		for _, j := range jobs {
			add(j.name)
		}
	}
	return out
}

// Run executes targets sequentially at now. A job that is not due is skipped
// unless force is set. One job's failure never stops the others.
func (o *Orchestrator) Run(ctx context.Context, now time.Time, targets []string, force bool) []Result {
	if now.IsZero() {
		now = time.Now()
	}
	names := ParseTargets(targets...)
	results := make([]Result, 0, len(names))
	for _, name := range names {
		j, ok := lookupJob(name)
		if !ok {
			results = append(results, Result{
				Job:     name,
				Status:  StatusSkipped,
				Message: fmt.Sprintf("Unknown automation key %q.", name),
			})
			continue
		}
		res := o.runJob(ctx, j, now, force)
		o.log.Infow("automation job finished",
			"job", res.Job,
			"status", res.Status,
			"outcome", res.Outcome,
			"forced", force,
			"message", res.Message,
		)
		results = append(results, res)
	}
	return results
}

func (o *Orchestrator) runJob(ctx context.Context, j job, now time.Time, force bool) Result {
	state := o.doc.AIAutomation.Job(j.name)
	startedAt := time.Now()
	if !force && !cron.IsDue(state.Schedule, state.LastRun(), now) {
		return Result{Job: j.name, Status: StatusSkipped, Message: j.skipMessage, StartedAt: startedAt, FinishedAt: startedAt}
	}

	loc := state.Schedule.Location()
	stamp := now.In(loc).Format(time.RFC3339)
	slot := cron.SlotOn(state.Schedule, now).Format(time.RFC3339)

	out, err := o.produce(ctx, j, now)
	finishedAt := time.Now()
	if err != nil {
		kind := portal.OutcomeRetryable
		if !llm.IsRetryable(err) {
			kind = portal.OutcomeFatal
		}
		raw := llm.RawOutput(err)
		state.LastError = &portal.JobError{
			Message:    errorMessage(err),
			OccurredAt: stamp,
			RawOutput:  raw,
		}
		state.LastOutcome = &portal.RunOutcome{Kind: kind, Slot: slot, At: stamp}
		o.log.Warnw("automation job failed", "job", j.name, "outcome", kind, "error", err)
		return Result{
			Job:          j.name,
			Status:       StatusError,
			Message:      state.LastError.Message,
			StateChanged: true,
			Outcome:      kind,
			StartedAt:    startedAt,
			FinishedAt:   finishedAt,
			RawOutput:    raw,
			Err:          err,
		}
	}

	state.LastError = nil
	state.LastRunAt = stamp
	state.LastOutcome = &portal.RunOutcome{Kind: portal.OutcomeSuccess, Slot: slot, At: stamp}
	o.doc.RecordActivity(now.In(loc), out.activity, o.prompts.ActorFor(o.label))
	return Result{
		Job:          j.name,
		Status:       StatusSuccess,
		Message:      out.message,
		Ran:          true,
		StateChanged: true,
		Outcome:      portal.OutcomeSuccess,
		Payload:      out.payload,
		StartedAt:    startedAt,
		FinishedAt:   finishedAt,
	}
}

func (o *Orchestrator) produce(ctx context.Context, j job, now time.Time) (jobOutput, error) {
	gen, err := o.generator(ctx)
	if err != nil {
		return jobOutput{}, err
	}
	return j.produce(o, ctx, gen, now)
}

// generator builds the client on first use and reuses the result, error
// included, for the rest of the invocation.
func (o *Orchestrator) generator(ctx context.Context) (llm.Generator, error) {
	if !o.built {
		o.gen, o.genErr = o.factory(ctx, o.doc)
		if o.genErr == nil && o.gen == nil {
			o.genErr = errors.New("generator factory returned no client")
		}
		if named, ok := o.gen.(interface{ Provider() llm.Provider }); ok {
			o.label = named.Provider().Label()
		}
		o.built = true
	}
	return o.gen, o.genErr
}

// errorMessage is the operator-facing text stored in last_error: the first
// line of the error chain plus any hint attached to it.
func errorMessage(err error) string {
	msg := strings.TrimSpace(err.Error())
	if hints := errors.GetAllHints(err); len(hints) > 0 {
		msg += " (" + strings.Join(hints, "; ") + ")"
	}
	return msg
}
