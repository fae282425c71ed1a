package portal

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

const (
	keyAIAutomation = "ai_automation"
	keyAISettings   = "ai_settings"
	keyBlogPosts    = "blog_posts"
	keyActivityLog  = "activity_log"
	keyUpdatedAt    = "updated_at"
)

// Document is the portal's flat state document. The automation engine owns a
// handful of top-level keys and reads a few more; every other key (users,
// tickets, leads, site content, …) is carried through load and save
// untouched.
type Document struct {
	AIAutomation AIAutomation
	BlogPosts    []json.RawMessage
	ActivityLog  []ActivityEntry
	UpdatedAt    string

	rest map[string]json.RawMessage
}

func NewDocument() *Document {
	return &Document{rest: map[string]json.RawMessage{}}
}

// ParseDocument decodes a state document. Owned keys holding values of the
// wrong shape are reset rather than failing the whole load.
func ParseDocument(data []byte) (*Document, error) {
	doc := NewDocument()
	if strings.TrimSpace(string(data)) == "" {
		return doc, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, errors.Wrap(err, "parse portal state")
	}
	return doc, nil
}

func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = Document{rest: map[string]json.RawMessage{}}
	for key, value := range raw {
		switch key {
		case keyAIAutomation:
			_ = json.Unmarshal(value, &d.AIAutomation)
		case keyBlogPosts:
			if err := json.Unmarshal(value, &d.BlogPosts); err != nil {
				d.BlogPosts = nil
			}
		case keyActivityLog:
			if err := json.Unmarshal(value, &d.ActivityLog); err != nil {
				d.ActivityLog = nil
			}
		case keyUpdatedAt:
			_ = json.Unmarshal(value, &d.UpdatedAt)
		default:
			d.rest[key] = value
		}
	}
	return nil
}

func (d Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.rest)+4)
	for key, value := range d.rest {
		out[key] = value
	}
	out[keyAIAutomation] = d.AIAutomation
	blog := d.BlogPosts
	if blog == nil {
		blog = []json.RawMessage{}
	}
	out[keyBlogPosts] = blog
	activity := d.ActivityLog
	if activity == nil {
		activity = []ActivityEntry{}
	}
	out[keyActivityLog] = activity
	if d.UpdatedAt != "" {
		out[keyUpdatedAt] = d.UpdatedAt
	}
	return json.Marshal(out)
}

// Raw returns the untouched JSON stored under a top-level key that the
// engine does not own.
func (d *Document) Raw(key string) (json.RawMessage, bool) {
	if d == nil || d.rest == nil {
		return nil, false
	}
	v, ok := d.rest[key]
	return v, ok
}

// Decode unmarshals a pass-through key into v. It reports false when the key
// is absent.
func (d *Document) Decode(key string, v any) (bool, error) {
	raw, ok := d.Raw(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, errors.Wrapf(err, "decode %s", key)
	}
	return true, nil
}

// Set replaces a pass-through key.
func (d *Document) Set(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	if d.rest == nil {
		d.rest = map[string]json.RawMessage{}
	}
	d.rest[key] = data
	return nil
}

// GeminiSettings is the operator-saved generation configuration under
// ai_settings.gemini.
type GeminiSettings struct {
	APIKey         string            `json:"api_key,omitempty"`
	DefaultModel   string            `json:"default_model,omitempty"`
	DefaultVersion string            `json:"default_version,omitempty"`
	Models         map[string]string `json:"models,omitempty"`
	Versions       map[string]string `json:"versions,omitempty"`
}

func (d *Document) GeminiSettings() GeminiSettings {
	var settings struct {
		Gemini map[string]any `json:"gemini"`
	}
	if ok, err := d.Decode(keyAISettings, &settings); !ok || err != nil {
		return GeminiSettings{}
	}
	g := settings.Gemini
	return GeminiSettings{
		APIKey:         asString(g["api_key"]),
		DefaultModel:   firstNonEmpty(asString(g["default_model"]), asString(g["model"])),
		DefaultVersion: firstNonEmpty(asString(g["default_version"]), asString(g["api_version"])),
		Models:         asStringMap(g["models"]),
		Versions:       asStringMap(g["versions"]),
	}
}

// asString mirrors how loosely typed state values are read: strings are
// trimmed, numbers and booleans are formatted, anything else is empty.
func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

func asStringMap(v any) map[string]string {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(obj))
	for k, raw := range obj {
		if s := asString(raw); s != "" {
			out[k] = s
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
