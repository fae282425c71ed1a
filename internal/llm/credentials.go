package llm

import (
	"encoding/json"
	"os"
	"regexp"
	"strings"
	"unicode"

	"github.com/cockroachdb/errors"
)

// Layer is one source of generation settings. Empty fields defer to the next
// layer down. Models and Versions are keyed by task.
type Layer struct {
	APIKey         string
	DefaultModel   string
	DefaultVersion string
	Models         map[string]string
	Versions       map[string]string
}

func (l Layer) IsZero() bool {
	return l.APIKey == "" && l.DefaultModel == "" && l.DefaultVersion == "" && len(l.Models) == 0 && len(l.Versions) == 0
}

type credentialField int

const (
	fieldNone credentialField = iota
	fieldAPIKey
	fieldModel
	fieldVersion
	fieldTaskModel
	fieldTaskVersion
)

type credentialKey struct {
	field credentialField
	task  string
}

var credentialKeys = func() map[string]credentialKey {
	m := map[string]credentialKey{}
	add := func(field credentialField, task string, names ...string) {
		for _, n := range names {
			m[n] = credentialKey{field: field, task: task}
		}
	}
	add(fieldAPIKey, "", "api_key", "gemini_api_key", "key", "token")
	add(fieldModel, "", "model", "default_model", "gemini_model")
	add(fieldVersion, "", "api_version", "version", "default_version", "gemini_api_version")

	add(fieldTaskModel, TaskNewsDigest, "news_model", "model_news", "news", "news_digest_model")
	add(fieldTaskModel, TaskBlogResearch, "blog_model", "model_blog", "blog", "blog_research_model")
	add(fieldTaskModel, TaskOperationsWatch, "operations_model", "ops_model", "operations", "operations_watch_model", "ops_watch_model")

	add(fieldTaskVersion, TaskNewsDigest, "news_version", "version_news", "news_api_version")
	add(fieldTaskVersion, TaskBlogResearch, "blog_version", "version_blog", "blog_api_version")
	add(fieldTaskVersion, TaskOperationsWatch, "operations_version", "ops_version", "operations_api_version", "ops_api_version")
	return m
}()

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

// normalizeCredentialKey folds camelCase and punctuation into snake_case:
// "newsModel" and "news-model" both become "news_model".
func normalizeCredentialKey(raw string) string {
	var b strings.Builder
	runes := []rune(strings.TrimSpace(raw))
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return strings.Trim(nonAlnumRe.ReplaceAllString(b.String(), "_"), "_")
}

// ParseCredentials reads a credentials file body. Two formats are accepted: a
// JSON object, or KEY=VALUE lines where '#' starts a comment and a bare line
// is taken as the API key. Unknown keys are ignored.
func ParseCredentials(data []byte) Layer {
	var layer Layer
	text := strings.TrimSpace(strings.TrimPrefix(string(data), "\ufeff"))
	if text == "" {
		return layer
	}
	if strings.HasPrefix(text, "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(text), &obj); err == nil {
			applyCredentialObject(&layer, obj)
			return layer
		}
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			if layer.APIKey == "" {
				layer.APIKey = unquote(line)
			}
			continue
		}
		layer.set(normalizeCredentialKey(key), unquote(value))
	}
	return layer
}

// LoadCredentialsFile parses the file at path. A missing file is an empty
// layer, not an error.
func LoadCredentialsFile(path string) (Layer, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return Layer{}, nil
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Layer{}, nil
		}
		return Layer{}, errors.Wrapf(err, "read credentials file %s", p)
	}
	return ParseCredentials(data), nil
}

// EnvLayer reads the process environment through getenv.
func EnvLayer(getenv func(string) string) Layer {
	if getenv == nil {
		getenv = os.Getenv
	}
	var layer Layer
	for _, name := range []string{"GEMINI_API_KEY", "GOOGLE_GEMINI_API_KEY", "GOOGLE_AI_STUDIO_KEY"} {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			layer.APIKey = v
			break
		}
	}
	layer.DefaultModel = strings.TrimSpace(getenv("GEMINI_MODEL"))
	layer.DefaultVersion = strings.TrimSpace(getenv("GEMINI_API_VERSION"))
	return layer
}

func applyCredentialObject(layer *Layer, obj map[string]any) {
	for rawKey, rawValue := range obj {
		key := normalizeCredentialKey(rawKey)
		switch key {
		case "models", "model_map":
			for task, v := range stringMap(rawValue) {
				layer.setTask(fieldTaskModel, normalizeCredentialKey(task)+"_model", task, v)
			}
			continue
		case "versions", "version_map":
			for task, v := range stringMap(rawValue) {
				layer.setTask(fieldTaskVersion, normalizeCredentialKey(task)+"_version", task, v)
			}
			continue
		}
		if s, ok := rawValue.(string); ok {
			layer.set(key, s)
		}
	}
}

func (l *Layer) set(key string, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	ck, ok := credentialKeys[key]
	if !ok {
		return
	}
	switch ck.field {
	case fieldAPIKey:
		l.APIKey = value
	case fieldModel:
		l.DefaultModel = value
	case fieldVersion:
		l.DefaultVersion = value
	case fieldTaskModel:
		l.Models = putTask(l.Models, ck.task, value)
	case fieldTaskVersion:
		l.Versions = putTask(l.Versions, ck.task, value)
	}
}

// setTask stores a nested models/versions entry. Keys that match an alias go
// to the canonical task; anything else is kept under its own name.
func (l *Layer) setTask(field credentialField, aliasKey string, task string, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	name := CanonicalTask(task)
	if ck, ok := credentialKeys[aliasKey]; ok && ck.field == field {
		name = ck.task
	}
	if field == fieldTaskModel {
		l.Models = putTask(l.Models, name, value)
	} else {
		l.Versions = putTask(l.Versions, name, value)
	}
}

func putTask(m map[string]string, task string, value string) map[string]string {
	if m == nil {
		m = map[string]string{}
	}
	m[task] = value
	return m
}

func stringMap(v any) map[string]string {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(obj))
	for k, raw := range obj {
		if s, ok := raw.(string); ok && strings.TrimSpace(s) != "" {
			out[k] = strings.TrimSpace(s)
		}
	}
	return out
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		s = s[1 : len(s)-1]
	}
	return strings.TrimSpace(s)
}
