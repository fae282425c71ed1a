package llm

import (
	"context"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"google.golang.org/genai"
)

// GeminiBackend calls generateContent through the Google Gen AI SDK.
type GeminiBackend struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

func (b *GeminiBackend) Generate(ctx context.Context, res ModelResolution, req GenerationRequest) ([]Part, error) {
	if b == nil || strings.TrimSpace(b.APIKey) == "" {
		return nil, ErrConfigurationMissing
	}
	model := strings.TrimSpace(res.Model)
	if model == "" {
		model = DefaultModel
	}
	httpClient, sniffer := sniffingClient(ProviderGemini, b.HTTPClient)
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     b.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    strings.TrimSpace(b.BaseURL),
			APIVersion: strings.TrimSpace(res.APIVersion),
		},
	})
	if err != nil {
		return nil, &APIError{Provider: string(ProviderGemini), Message: "create client: " + err.Error()}
	}

	resp, err := client.Models.GenerateContent(ctx, model, toGeminiContents(req.Messages), toGeminiConfig(req))
	if sniffer.found != nil {
		return nil, withModelHint(sniffer.found, model)
	}
	if err != nil {
		return nil, geminiError(err, model)
	}
	if resp == nil {
		return nil, nil
	}

	var parts []Part
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if p == nil || p.Thought {
				continue
			}
			if p.Text != "" {
				parts = append(parts, Part{Text: p.Text})
			}
			if p.InlineData != nil && len(p.InlineData.Data) > 0 {
				parts = append(parts, Part{Data: p.InlineData.Data, MIMEType: p.InlineData.MIMEType})
			}
		}
	}
	return parts, nil
}

func toGeminiContents(msgs []Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := genai.RoleUser
		if strings.EqualFold(strings.TrimSpace(m.Role), RoleModel) {
			role = genai.RoleModel
		}
		content := &genai.Content{Role: role}
		for _, text := range m.Parts {
			content.Parts = append(content.Parts, &genai.Part{Text: text})
		}
		if len(content.Parts) > 0 {
			out = append(out, content)
		}
	}
	return out
}

func toGeminiConfig(req GenerationRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: req.Config.ResponseMIMEType,
	}
	if v := req.Config.Temperature; v != nil {
		cfg.Temperature = genai.Ptr(float32(*v))
	}
	if v := req.Config.TopP; v != nil {
		cfg.TopP = genai.Ptr(float32(*v))
	}
	if v := req.Config.TopK; v != nil {
		cfg.TopK = genai.Ptr(float32(*v))
	}
	if v := req.Config.MaxOutputTokens; v != nil {
		cfg.MaxOutputTokens = int32(*v)
	}
	if system := strings.TrimSpace(req.SystemInstruction); system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return cfg
}

func geminiError(err error, model string) error {
	out := &APIError{Provider: string(ProviderGemini), Message: err.Error()}
	var valueErr genai.APIError
	var ptrErr *genai.APIError
	switch {
	case errors.As(err, &valueErr):
		out.Code, out.Status, out.Message = valueErr.Code, valueErr.Status, valueErr.Message
	case errors.As(err, &ptrErr) && ptrErr != nil:
		out.Code, out.Status, out.Message = ptrErr.Code, ptrErr.Status, ptrErr.Message
	}
	if strings.TrimSpace(out.Message) == "" {
		out.Message = err.Error()
	}
	return withModelHint(out, model)
}

func withModelHint(apiErr *APIError, model string) error {
	if apiErr.Code == http.StatusNotFound {
		return errors.WithHintf(apiErr, "model %q was not found; set GEMINI_MODEL or ai_settings.gemini.default_model to a model your key can access", model)
	}
	return apiErr
}
