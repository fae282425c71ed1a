package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	codeFenceRe     = regexp.MustCompile("(?i)```(?:json)?")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	singleQuotedRe  = regexp.MustCompile(`'([^'\\]*(?:\\.[^'\\]*)*)'`)
)

// ExtractJSONBlock isolates the most plausible JSON object in model text.
// Code fences are removed first. The longest balanced top-level {...} group
// wins; failing that, the span from the first '{' to the last '}'; failing
// that, the cleaned text itself.
func ExtractJSONBlock(text string) string {
	cleaned := stripCodeFences(text)
	if group := longestObjectGroup(cleaned); group != "" {
		return group
	}
	if span, ok := braceSpan(cleaned); ok {
		return span
	}
	return cleaned
}

// RepairJSON applies best-effort textual fixes to almost-JSON: fences and
// surrounding prose are dropped, trailing commas removed and single-quoted
// literals rewritten when the text has no double quotes at all.
func RepairJSON(text string) string {
	s := stripCodeFences(text)
	if span, ok := braceSpan(s); ok {
		s = span
	}
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	if !strings.Contains(s, `"`) && strings.Contains(s, "'") {
		s = singleQuotedRe.ReplaceAllStringFunc(s, func(m string) string {
			inner := m[1 : len(m)-1]
			inner = strings.ReplaceAll(inner, `\'`, `'`)
			inner = strings.ReplaceAll(inner, `"`, `\"`)
			return `"` + inner + `"`
		})
	}
	return strings.ToValidUTF8(s, "")
}

// ParseJSON returns the JSON object or array carried by text. Input that is
// already valid is decoded as-is; otherwise the extracted block and then the
// repaired text are tried. Scalars never count as a result.
func ParseJSON(text string) (any, error) {
	if v, ok := strictParse(text); ok {
		return v, nil
	}
	block := ExtractJSONBlock(text)
	if v, ok := strictParse(block); ok {
		return v, nil
	}
	if v, ok := strictParse(RepairJSON(block)); ok {
		return v, nil
	}
	if v, ok := strictParse(RepairJSON(text)); ok {
		return v, nil
	}
	return nil, &MalformedOutputError{Raw: text}
}

// ParseJSONObject is ParseJSON restricted to objects.
func ParseJSONObject(text string) (map[string]any, error) {
	v, err := ParseJSON(text)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, &MalformedOutputError{Raw: text}
	}
	return obj, nil
}

func strictParse(text string) (any, bool) {
	s := strings.TrimSpace(text)
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	switch v.(type) {
	case map[string]any, []any:
		return v, true
	default:
		return nil, false
	}
}

func stripCodeFences(text string) string {
	return strings.TrimSpace(codeFenceRe.ReplaceAllString(text, ""))
}

func braceSpan(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// longestObjectGroup scans for balanced top-level brace groups, ignoring
// braces inside double-quoted strings, and returns the longest one.
func longestObjectGroup(s string) string {
	var (
		best     string
		depth    int
		start    = -1
		inString bool
		escaped  bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				if group := s[start : i+1]; len(group) > len(best) {
					best = group
				}
				start = -1
			}
		}
	}
	return best
}
