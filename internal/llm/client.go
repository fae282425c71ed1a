package llm

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

const DefaultTimeout = 45 * time.Second

const (
	RoleUser  = "user"
	RoleModel = "model"
)

type Message struct {
	Role  string
	Parts []string
}

// GenerationConfig holds sampling parameters. Nil fields are unset so that a
// caller's config can be merged over the client defaults.
type GenerationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"topP,omitempty"`
	TopK             *int     `json:"topK,omitempty"`
	MaxOutputTokens  *int     `json:"maxOutputTokens,omitempty"`
	ResponseMIMEType string   `json:"responseMimeType,omitempty"`
}

func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature:      Float(0.45),
		TopP:             Float(0.8),
		TopK:             Int(32),
		MaxOutputTokens:  Int(1024),
		ResponseMIMEType: "application/json",
	}
}

// Merge returns c with every field set in over replacing its value.
func (c GenerationConfig) Merge(over GenerationConfig) GenerationConfig {
	out := c
	if over.Temperature != nil {
		out.Temperature = over.Temperature
	}
	if over.TopP != nil {
		out.TopP = over.TopP
	}
	if over.TopK != nil {
		out.TopK = over.TopK
	}
	if over.MaxOutputTokens != nil {
		out.MaxOutputTokens = over.MaxOutputTokens
	}
	if strings.TrimSpace(over.ResponseMIMEType) != "" {
		out.ResponseMIMEType = strings.TrimSpace(over.ResponseMIMEType)
	}
	return out
}

func Float(v float64) *float64 { return &v }

func Int(v int) *int { return &v }

type GenerationRequest struct {
	Messages          []Message
	SystemInstruction string
	Config            GenerationConfig
	TaskKey           string
}

// UserPrompt builds a single-turn request for task.
func UserPrompt(task string, prompt string, cfg GenerationConfig) GenerationRequest {
	return GenerationRequest{
		Messages: []Message{{Role: RoleUser, Parts: []string{prompt}}},
		Config:   cfg,
		TaskKey:  task,
	}
}

// Part is one piece of a candidate response: text, or an inline payload.
type Part struct {
	Text     string
	Data     []byte
	MIMEType string
}

// Backend performs exactly one generation call. Failures must surface as
// *APIError.
type Backend interface {
	Generate(ctx context.Context, res ModelResolution, req GenerationRequest) ([]Part, error)
}

// Generator is the orchestrator-facing view of Client.
type Generator interface {
	GenerateJSON(ctx context.Context, req GenerationRequest) (any, error)
}

type Client struct {
	backend  Backend
	provider Provider
	settings Settings
	defaults GenerationConfig
	timeout  time.Duration
}

// Options configures NewClient. Layers are consulted in the order Explicit,
// Persisted, credentials file, environment.
type Options struct {
	Provider        Provider
	Explicit        Layer
	Persisted       Layer
	CredentialsPath string
	Getenv          func(string) string

	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

func NewClient(opts Options) (*Client, error) {
	fileLayer, err := LoadCredentialsFile(opts.CredentialsPath)
	if err != nil {
		return nil, err
	}
	provider := opts.Provider
	if provider == "" {
		provider = ProviderGemini
	}
	settings := mergeLayers(DefaultModelFor(provider), []Layer{opts.Explicit, opts.Persisted, fileLayer, EnvLayer(opts.Getenv)})
	if settings.APIKey == "" {
		return nil, errors.WithHint(ErrConfigurationMissing,
			"set GEMINI_API_KEY, add api_key to the credentials file or save a key in ai_settings.gemini")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout + 5*time.Second}
	}

	var backend Backend
	switch provider {
	case ProviderGemini:
		backend = &GeminiBackend{APIKey: settings.APIKey, BaseURL: opts.BaseURL, HTTPClient: httpClient}
	case ProviderOpenAI:
		backend = &OpenAIBackend{APIKey: settings.APIKey, BaseURL: opts.BaseURL, HTTPClient: httpClient}
	case ProviderAnthropics:
		backend = &AnthropicBackend{APIKey: settings.APIKey, BaseURL: opts.BaseURL, HTTPClient: httpClient}
	default:
		return nil, errors.Newf("unsupported provider %q", provider)
	}
	return &Client{
		backend:  backend,
		provider: provider,
		settings: settings,
		defaults: DefaultGenerationConfig(),
		timeout:  timeout,
	}, nil
}

// NewClientWithBackend wires an arbitrary backend, e.g. a fake in tests.
func NewClientWithBackend(backend Backend, settings Settings) *Client {
	if settings.DefaultModel == "" {
		settings.DefaultModel = DefaultModel
	}
	if settings.DefaultVersion == "" {
		settings.DefaultVersion = DefaultAPIVersion
	}
	return &Client{
		backend:  backend,
		settings: settings,
		defaults: DefaultGenerationConfig(),
		timeout:  DefaultTimeout,
	}
}

func (c *Client) Provider() Provider { return c.provider }

func (c *Client) Settings() Settings { return c.settings }

// Resolve returns the model and API version used for task.
func (c *Client) Resolve(task string) ModelResolution {
	return c.settings.Resolve(task)
}

// GenerateJSON issues one call and returns the first candidate part that
// parses as JSON. There is no retry; callers decide from the error whether a
// later attempt is worthwhile.
func (c *Client) GenerateJSON(ctx context.Context, req GenerationRequest) (any, error) {
	if c == nil || c.backend == nil {
		return nil, errors.New("generation client is not configured")
	}
	req.Config = c.defaults.Merge(req.Config)
	res := c.Resolve(req.TaskKey)

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	parts, err := c.backend.Generate(callCtx, res, req)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, err
		}
		return nil, &APIError{Provider: string(c.provider), Message: err.Error()}
	}

	var seen []string
	for _, p := range parts {
		text := p.Text
		if strings.TrimSpace(text) == "" && len(p.Data) > 0 {
			text = string(p.Data)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		seen = append(seen, text)
		if v, err := ParseJSON(text); err == nil {
			return v, nil
		}
	}
	return nil, &NoParsableContentError{Raw: strings.Join(seen, "\n")}
}
