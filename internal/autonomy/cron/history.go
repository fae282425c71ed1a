package cron

import "strings"

// PrependHistory puts entry at the front of history, drops older entries that
// share its id and truncates the result to limit entries (limit <= 0 keeps
// everything). The input slice is not modified.
func PrependHistory[T any](history []T, entry T, id func(T) string, limit int) []T {
	want := strings.TrimSpace(id(entry))
	out := make([]T, 0, len(history)+1)
	out = append(out, entry)
	for _, item := range history {
		if want != "" && strings.TrimSpace(id(item)) == want {
			continue
		}
		out = append(out, item)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
