package portal

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const MaxActivityEntries = 100

type ActivityEntry struct {
	Timestamp string `json:"timestamp"`
	Actor     string `json:"actor"`
	Message   string `json:"message"`
}

// RecordActivity appends an entry to the activity log, keeping the newest
// MaxActivityEntries.
func (d *Document) RecordActivity(now time.Time, message string, actor string) {
	message = strings.TrimSpace(message)
	if message == "" {
		return
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		actor = "System"
	}
	d.ActivityLog = append(d.ActivityLog, ActivityEntry{
		Timestamp: now.Format(time.RFC3339),
		Actor:     actor,
		Message:   message,
	})
	if n := len(d.ActivityLog); n > MaxActivityEntries {
		d.ActivityLog = append([]ActivityEntry(nil), d.ActivityLog[n-MaxActivityEntries:]...)
	}
}

// RecentActivity returns up to n entries, newest first.
func (d *Document) RecentActivity(n int) []ActivityEntry {
	out := make([]ActivityEntry, 0, n)
	for i := len(d.ActivityLog) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, d.ActivityLog[i])
	}
	return out
}

// GenerateID returns prefix followed by twelve random hex characters.
func GenerateID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + id[:12]
}
