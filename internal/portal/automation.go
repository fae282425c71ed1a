package portal

import (
	"encoding/json"
	"time"

	"portal_automation/internal/autonomy/cron"
)

const (
	JobNewsDigest      = "news_digest"
	JobBlogResearch    = "blog_research"
	JobOperationsWatch = "operations_watch"
)

// Outcome kinds recorded after every attempted run.
const (
	OutcomeSuccess   = "success"
	OutcomeRetryable = "retryable"
	OutcomeFatal     = "fatal"
)

// JobState is the bookkeeping shared by every automation job.
type JobState struct {
	Schedule    cron.ScheduleConfig `json:"schedule"`
	LastRunAt   string              `json:"last_run_at,omitempty"`
	LastError   *JobError           `json:"last_error,omitempty"`
	LastOutcome *RunOutcome         `json:"last_outcome,omitempty"`
}

type JobError struct {
	Message    string `json:"message"`
	OccurredAt string `json:"occurred_at"`
	RawOutput  string `json:"raw_output,omitempty"`
}

type RunOutcome struct {
	Kind string `json:"kind"`
	Slot string `json:"slot,omitempty"`
	At   string `json:"at"`
}

// LastRun parses last_run_at. A missing or unreadable value is the zero time.
func (s JobState) LastRun() time.Time {
	return cron.ParseTimestamp(s.LastRunAt, s.Schedule.Location())
}

type NewsJobState struct {
	JobState
	LastDigest *NewsDigest  `json:"last_digest,omitempty"`
	History    []NewsDigest `json:"history"`
}

type BlogJobState struct {
	JobState
	LastBlog *BlogSummary  `json:"last_blog,omitempty"`
	History  []BlogSummary `json:"history"`
}

type OperationsJobState struct {
	JobState
	LastReport *OperationsReport  `json:"last_report,omitempty"`
	History    []OperationsReport `json:"history"`
}

// AIAutomation is the ai_automation subtree of the state document.
type AIAutomation struct {
	NewsDigest      NewsJobState
	BlogResearch    BlogJobState
	OperationsWatch OperationsJobState

	rest map[string]json.RawMessage
}

// Job returns the shared state of a job type, or nil for unknown names.
func (a *AIAutomation) Job(name string) *JobState {
	switch name {
	case JobNewsDigest:
		return &a.NewsDigest.JobState
	case JobBlogResearch:
		return &a.BlogResearch.JobState
	case JobOperationsWatch:
		return &a.OperationsWatch.JobState
	default:
		return nil
	}
}

func (a *AIAutomation) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	*a = AIAutomation{rest: map[string]json.RawMessage{}}
	if err := json.Unmarshal(data, &raw); err != nil {
		// Older documents may hold [] here.
		return nil
	}
	for key, value := range raw {
		switch key {
		case JobNewsDigest:
			decodeJobState(value, &a.NewsDigest, &a.NewsDigest.JobState)
		case JobBlogResearch:
			decodeJobState(value, &a.BlogResearch, &a.BlogResearch.JobState)
		case JobOperationsWatch:
			decodeJobState(value, &a.OperationsWatch, &a.OperationsWatch.JobState)
		default:
			a.rest[key] = value
		}
	}
	return nil
}

func (a AIAutomation) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(a.rest)+3)
	for key, value := range a.rest {
		out[key] = value
	}
	out[JobNewsDigest] = a.NewsDigest
	out[JobBlogResearch] = a.BlogResearch
	out[JobOperationsWatch] = a.OperationsWatch
	return json.Marshal(out)
}

// decodeJobState decodes a job subtree. When the artifacts are unreadable the
// shared bookkeeping is still recovered field by field so the schedule and
// the last run's outcome survive.
func decodeJobState(data json.RawMessage, full any, shared *JobState) {
	if err := json.Unmarshal(data, full); err == nil {
		return
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return
	}
	var state JobState
	decodeField(fields, "schedule", &state.Schedule)
	decodeField(fields, "last_run_at", &state.LastRunAt)
	decodeField(fields, "last_error", &state.LastError)
	decodeField(fields, "last_outcome", &state.LastOutcome)
	*shared = state
}

func decodeField(fields map[string]json.RawMessage, key string, dst any) {
	if raw, ok := fields[key]; ok {
		_ = json.Unmarshal(raw, dst)
	}
}

type SourceHint struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

type NewsItem struct {
	Headline          string       `json:"headline"`
	Region            string       `json:"region"`
	Summary           string       `json:"summary"`
	RecommendedAction string       `json:"recommendedAction"`
	SourceHints       []SourceHint `json:"sourceHints"`
}

type NewsDigest struct {
	ID          string     `json:"id"`
	GeneratedAt string     `json:"generated_at"`
	Timezone    string     `json:"timezone"`
	Summary     string     `json:"summary"`
	Items       []NewsItem `json:"items"`
}

// BlogSummary is the compact record of a published post kept in history.
type BlogSummary struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Slug            string   `json:"slug"`
	Excerpt         string   `json:"excerpt"`
	Tags            []string `json:"tags"`
	HeroImage       string   `json:"hero_image"`
	ReadTimeMinutes int      `json:"read_time_minutes"`
	PublishedAt     string   `json:"published_at"`
}

type RiskFlag struct {
	Area    string `json:"area"`
	Detail  string `json:"detail"`
	Urgency string `json:"urgency"`
}

type Recommendation struct {
	Area             string   `json:"area"`
	Urgency          string   `json:"urgency"`
	SuggestedActions []string `json:"suggestedActions"`
}

type OperationsReport struct {
	ID              string           `json:"id"`
	GeneratedAt     string           `json:"generated_at"`
	Summary         string           `json:"summary"`
	RiskFlags       []RiskFlag       `json:"riskFlags"`
	Recommendations []Recommendation `json:"recommendations"`
}
