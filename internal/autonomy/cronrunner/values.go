package cronrunner

import (
	"strconv"
	"strings"
)

// Model output is loosely typed; these readers coerce what they can and
// treat everything else as absent.

func asObject(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asObjects(v any) []map[string]any {
	items, _ := v.([]any)
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func text(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "1"
		}
		return ""
	default:
		return ""
	}
}

// textOr returns the trimmed value of key, or fallback when the key is
// missing or null. A present empty string stays empty.
func textOr(m map[string]any, key string, fallback string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return fallback
	}
	return text(v)
}

// texts returns the non-empty trimmed strings of a list value.
func texts(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := text(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
