package llm

import (
	"context"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cockroachdb/errors"
)

const (
	defaultAnthropicBaseURL   = "https://api.anthropic.com"
	defaultAnthropicMaxTokens = 1024
)

// AnthropicBackend serves generation requests through the Messages API. JSON
// output is requested through the system prompt since the API has no response
// MIME type.
type AnthropicBackend struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

func resolvedAnthropicBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		base = defaultAnthropicBaseURL
	}
	base = strings.TrimRight(base, "/")
	base = strings.TrimSuffix(base, "/v1")
	base = strings.TrimRight(base, "/")
	return base + "/"
}

func (b *AnthropicBackend) Generate(ctx context.Context, res ModelResolution, req GenerationRequest) ([]Part, error) {
	if b == nil || strings.TrimSpace(b.APIKey) == "" {
		return nil, ErrConfigurationMissing
	}
	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(strings.TrimSpace(b.APIKey)),
		anthropicoption.WithBaseURL(resolvedAnthropicBaseURL(b.BaseURL)),
		anthropicoption.WithMaxRetries(0),
	}
	httpClient, sniffer := sniffingClient(ProviderAnthropics, b.HTTPClient)
	opts = append(opts, anthropicoption.WithHTTPClient(httpClient))
	client := anthropic.NewClient(opts...)

	maxTokens := defaultAnthropicMaxTokens
	if req.Config.MaxOutputTokens != nil && *req.Config.MaxOutputTokens > 0 {
		maxTokens = *req.Config.MaxOutputTokens
	}
	params := anthropic.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Model:     anthropic.Model(strings.TrimSpace(res.Model)),
		Messages:  toAnthropicMessages(req.Messages),
	}
	system := strings.TrimSpace(req.SystemInstruction)
	if strings.EqualFold(req.Config.ResponseMIMEType, "application/json") {
		system = strings.TrimSpace(system + "\n\nRespond with a single JSON object and nothing else.")
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if v := req.Config.Temperature; v != nil {
		params.Temperature = anthropic.Float(*v)
	}
	if v := req.Config.TopK; v != nil {
		params.TopK = anthropic.Int(int64(*v))
	}

	msg, err := client.Messages.New(ctx, params)
	if sniffer.found != nil {
		return nil, sniffer.found
	}
	if err != nil {
		out := &APIError{Provider: string(ProviderAnthropics), Message: err.Error()}
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			out.Code = apiErr.StatusCode
			if env := decodeErrorEnvelope(ProviderAnthropics, []byte(apiErr.RawJSON())); env != nil {
				out.Status, out.Message = env.Status, env.Message
			}
		}
		return nil, out
	}

	var parts []Part
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			parts = append(parts, Part{Text: variant.Text})
		default:
			// Ignore non-text block variants.
		}
	}
	return parts, nil
}

func toAnthropicMessages(msgs []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		text := strings.Join(m.Parts, "\n\n")
		if strings.TrimSpace(text) == "" {
			continue
		}
		if strings.EqualFold(m.Role, RoleModel) {
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(text)))
			continue
		}
		out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
	}
	return out
}
