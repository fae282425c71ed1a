package llm

import (
	"sort"
	"strings"
)

const (
	DefaultModel          = "gemini-2.5-flash"
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultAnthropicModel = "claude-sonnet-4-5"
	DefaultAPIVersion     = "v1beta"

	TaskNewsDigest      = "news_digest"
	TaskBlogResearch    = "blog_research"
	TaskOperationsWatch = "operations_watch"
)

var taskAliases = map[string]string{
	"news":             TaskNewsDigest,
	"news_digest":      TaskNewsDigest,
	"blog":             TaskBlogResearch,
	"blog_research":    TaskBlogResearch,
	"operations":       TaskOperationsWatch,
	"ops":              TaskOperationsWatch,
	"operations_watch": TaskOperationsWatch,
}

// CanonicalTask maps short task names ("news", "ops", …) to their job type.
// Unknown names are returned lowercased and trimmed.
func CanonicalTask(task string) string {
	key := strings.ToLower(strings.TrimSpace(task))
	if canonical, ok := taskAliases[key]; ok {
		return canonical
	}
	return key
}

// ModelResolution is the model and API version used for one task.
type ModelResolution struct {
	Model      string
	APIVersion string
}

// Settings is the merged view of every configuration layer.
type Settings struct {
	APIKey         string
	DefaultModel   string
	DefaultVersion string
	Models         map[string]string
	Versions       map[string]string
}

// MergeLayers folds layers in precedence order (highest first). Scalars take
// the first non-empty value; task tables take, per task, the first layer that
// names it. Built-in defaults fill whatever is still empty.
func MergeLayers(layers ...Layer) Settings {
	return mergeLayers(DefaultModel, layers)
}

func mergeLayers(defaultModel string, layers []Layer) Settings {
	var s Settings
	s.Models = map[string]string{}
	s.Versions = map[string]string{}
	for _, l := range layers {
		if s.APIKey == "" {
			s.APIKey = strings.TrimSpace(l.APIKey)
		}
		if s.DefaultModel == "" {
			s.DefaultModel = strings.TrimSpace(l.DefaultModel)
		}
		if s.DefaultVersion == "" {
			s.DefaultVersion = strings.TrimSpace(l.DefaultVersion)
		}
		mergeTaskTable(s.Models, l.Models)
		mergeTaskTable(s.Versions, l.Versions)
	}
	if s.DefaultModel == "" {
		s.DefaultModel = defaultModel
	}
	if s.DefaultVersion == "" {
		s.DefaultVersion = DefaultAPIVersion
	}
	return s
}

// mergeTaskTable adds the entries of one layer to dst. Tasks dst already
// names keep their value. Within src a canonical key ("news_digest") beats
// its aliases ("news"), and among aliases the alphabetically first wins.
func mergeTaskTable(dst map[string]string, src map[string]string) {
	keys := make([]string, 0, len(src))
	for task := range src {
		keys = append(keys, task)
	}
	sort.Slice(keys, func(i, j int) bool {
		ci := strings.ToLower(strings.TrimSpace(keys[i])) == CanonicalTask(keys[i])
		cj := strings.ToLower(strings.TrimSpace(keys[j])) == CanonicalTask(keys[j])
		if ci != cj {
			return ci
		}
		return keys[i] < keys[j]
	})

	for _, task := range keys {
		value := strings.TrimSpace(src[task])
		if value == "" {
			continue
		}
		key := CanonicalTask(task)
		if _, exists := dst[key]; exists {
			continue
		}
		dst[key] = value
	}
}

// Resolve picks the model and version for task: an entry for the task itself,
// then for its canonical job type, then the defaults.
func (s Settings) Resolve(task string) ModelResolution {
	res := ModelResolution{Model: s.DefaultModel, APIVersion: s.DefaultVersion}
	raw := strings.ToLower(strings.TrimSpace(task))
	if raw == "" {
		return res
	}
	canonical := CanonicalTask(raw)
	if m := lookupTask(s.Models, raw, canonical); m != "" {
		res.Model = m
	}
	if v := lookupTask(s.Versions, raw, canonical); v != "" {
		res.APIVersion = v
	}
	return res
}

func lookupTask(table map[string]string, raw string, canonical string) string {
	if v, ok := table[raw]; ok {
		return v
	}
	return table[canonical]
}
