package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultOpenAIBaseURL = "https://api.openai.com"

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string              `json:"model"`
	Messages       []chatMessage       `json:"messages"`
	MaxTokens      int                 `json:"max_tokens,omitempty"`
	Temperature    *float64            `json:"temperature,omitempty"`
	TopP           *float64            `json:"top_p,omitempty"`
	ResponseFormat *chatResponseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Index        int         `json:"index"`
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// OpenAIBackend talks to an OpenAI-compatible chat completions endpoint.
// The resolved API version is ignored; the model name is passed through.
type OpenAIBackend struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

func (b *OpenAIBackend) Generate(ctx context.Context, res ModelResolution, req GenerationRequest) ([]Part, error) {
	if b == nil || strings.TrimSpace(b.APIKey) == "" {
		return nil, ErrConfigurationMissing
	}
	body := chatRequest{
		Model:       strings.TrimSpace(res.Model),
		Temperature: req.Config.Temperature,
		TopP:        req.Config.TopP,
	}
	if req.Config.MaxOutputTokens != nil {
		body.MaxTokens = *req.Config.MaxOutputTokens
	}
	if strings.EqualFold(req.Config.ResponseMIMEType, "application/json") {
		body.ResponseFormat = &chatResponseFormat{Type: "json_object"}
	}
	if system := strings.TrimSpace(req.SystemInstruction); system != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: system})
	}
	for _, m := range req.Messages {
		role := "user"
		if strings.EqualFold(m.Role, RoleModel) {
			role = "assistant"
		}
		body.Messages = append(body.Messages, chatMessage{Role: role, Content: strings.Join(m.Parts, "\n\n")})
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	base := strings.TrimRight(strings.TrimSpace(b.BaseURL), "/")
	if base == "" {
		base = defaultOpenAIBaseURL
	}
	base = strings.TrimSuffix(base, "/v1")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v1/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+b.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpClient := b.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, &APIError{Provider: string(ProviderOpenAI), Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	envErr := decodeErrorEnvelope(ProviderOpenAI, raw)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		out := &APIError{Provider: string(ProviderOpenAI), Code: resp.StatusCode, Status: resp.Status, Message: strings.TrimSpace(string(raw))}
		if envErr != nil {
			out.Message = envErr.Message
		}
		return nil, out
	}
	if envErr != nil {
		return nil, envErr
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &APIError{Provider: string(ProviderOpenAI), Code: resp.StatusCode, Message: "decode response: " + err.Error()}
	}
	parts := make([]Part, 0, len(out.Choices))
	for _, choice := range out.Choices {
		parts = append(parts, Part{Text: choice.Message.Content})
	}
	return parts, nil
}
