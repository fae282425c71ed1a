package cron

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultTimezone = "Asia/Kolkata"
	DefaultTime     = "06:00"
)

// ScheduleConfig is the per-job schedule as stored in the portal state
// document. Every field is optional; invalid values fall back to defaults when
// read through the accessor methods.
type ScheduleConfig struct {
	Timezone   string   `json:"timezone,omitempty"`
	Time       string   `json:"time,omitempty"` // HH:MM, 24h
	DaysOfWeek Weekdays `json:"daysOfWeek,omitempty"`
	Enabled    *bool    `json:"enabled,omitempty"`
}

// Weekdays holds ISO weekdays (1=Monday … 7=Sunday). It decodes from numbers
// or numeric strings, since older state documents store either.
type Weekdays []int

func (w *Weekdays) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		// A non-array value is treated as "no constraint".
		*w = nil
		return nil
	}
	out := make(Weekdays, 0, len(raw))
	for _, item := range raw {
		var n int
		if err := json.Unmarshal(item, &n); err == nil {
			out = append(out, n)
			continue
		}
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
				out = append(out, v)
			}
		}
	}
	*w = out
	return nil
}

// RunRecord is one line of the jsonl run log.
type RunRecord struct {
	Job           string    `json:"job"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Status        string    `json:"status"` // success|skipped|error
	Outcome       string    `json:"outcome,omitempty"`
	Forced        bool      `json:"forced,omitempty"`
	Message       string    `json:"message,omitempty"`
	Error         string    `json:"error,omitempty"`
	OutputPreview string    `json:"output_preview,omitempty"`
}
