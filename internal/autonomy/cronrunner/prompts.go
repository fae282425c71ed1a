package cronrunner

import (
	_ "embed"
	"encoding/json"
	"os"
	"strings"
	"text/template"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"portal_automation/internal/llm"
	"portal_automation/internal/portal"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

type PromptConfig struct {
	Temperature     *float64 `yaml:"temperature"`
	MaxOutputTokens *int     `yaml:"max_output_tokens"`
}

func (c PromptConfig) generation() llm.GenerationConfig {
	return llm.GenerationConfig{Temperature: c.Temperature, MaxOutputTokens: c.MaxOutputTokens}
}

// JobPrompt holds the system instruction and the named guidance fields sent
// to the model for one job. Unused fields stay empty.
type JobPrompt struct {
	System      string       `yaml:"system"`
	Instruction string       `yaml:"instruction"`
	Focus       string       `yaml:"focus"`
	Output      string       `yaml:"output"`
	Audience    string       `yaml:"audience"`
	Tone        string       `yaml:"tone"`
	Structure   string       `yaml:"structure"`
	Required    string       `yaml:"required"`
	Config      PromptConfig `yaml:"config"`
}

type PromptCatalog struct {
	Organization string            `yaml:"organization"`
	Brand        string            `yaml:"brand"`
	FallbackSlug string            `yaml:"fallback_slug"`
	HeroImage    string            `yaml:"hero_image"`
	Actor        string            `yaml:"actor"`
	Author       portal.BlogAuthor `yaml:"author"`

	News       JobPrompt `yaml:"news_digest"`
	Blog       JobPrompt `yaml:"blog_research"`
	Operations JobPrompt `yaml:"operations_watch"`
}

// LoadPrompts returns the built-in catalogue, overlaid with the YAML file at
// overridePath when one is given. organization, when non-empty, replaces the
// catalogue's organization name before templates are rendered.
func LoadPrompts(overridePath string, organization string) (*PromptCatalog, error) {
	var cat PromptCatalog
	if err := yaml.Unmarshal(defaultPromptsYAML, &cat); err != nil {
		return nil, errors.Wrap(err, "parse built-in prompts")
	}
	if path := strings.TrimSpace(overridePath); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read prompts %s", path)
		}
		if err := yaml.Unmarshal(data, &cat); err != nil {
			return nil, errors.Wrapf(err, "parse prompts %s", path)
		}
	}
	if org := strings.TrimSpace(organization); org != "" {
		cat.Organization = org
	}
	if strings.TrimSpace(cat.Brand) == "" {
		cat.Brand = strings.Fields(cat.Organization + " portal")[0]
	}
	if err := cat.render(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// DefaultPrompts is LoadPrompts without overrides. The embedded catalogue is
// known-good, so failure here is a build defect.
func DefaultPrompts() *PromptCatalog {
	cat, err := LoadPrompts("", "")
	if err != nil {
		panic(err)
	}
	return cat
}

func (c *PromptCatalog) render() error {
	data := struct {
		Organization string
		Brand        string
	}{c.Organization, c.Brand}

	for _, p := range []*JobPrompt{&c.News, &c.Blog, &c.Operations} {
		for _, field := range []*string{&p.System, &p.Instruction, &p.Focus, &p.Output, &p.Audience, &p.Tone, &p.Structure, &p.Required} {
			text := strings.TrimSpace(*field)
			if !strings.Contains(text, "{{") {
				*field = text
				continue
			}
			tmpl, err := template.New("prompt").Option("missingkey=error").Parse(text)
			if err != nil {
				return errors.Wrapf(err, "parse prompt template %q", text)
			}
			var b strings.Builder
			if err := tmpl.Execute(&b, data); err != nil {
				return errors.Wrapf(err, "render prompt template %q", text)
			}
			*field = b.String()
		}
	}
	return nil
}

// ActorFor is the activity log actor for runs served by model.
func (c *PromptCatalog) ActorFor(model string) string {
	return renderModelText(c.Actor, model)
}

// AuthorFor is the byline of posts drafted by model.
func (c *PromptCatalog) AuthorFor(model string) portal.BlogAuthor {
	author := c.Author
	author.Name = renderModelText(author.Name, model)
	return author
}

// renderModelText fills {{.Model}} in text. Text that is not a valid
// template is returned trimmed.
func renderModelText(text string, model string) string {
	text = strings.TrimSpace(text)
	if !strings.Contains(text, "{{") {
		return text
	}
	tmpl, err := template.New("model").Parse(text)
	if err != nil {
		return text
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, struct{ Model string }{model}); err != nil {
		return text
	}
	return b.String()
}

// encodePrompt renders the user turn the way the model expects it: a pretty
// JSON object whose keys keep the declared order of v.
func encodePrompt(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return "", errors.Wrap(err, "encode prompt")
	}
	return string(data), nil
}
