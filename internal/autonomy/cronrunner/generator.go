package cronrunner

import (
	"context"
	"time"

	"portal_automation/internal/llm"
	"portal_automation/internal/portal"
)

// ClientSettings configures the production generator factory.
type ClientSettings struct {
	Provider        llm.Provider
	Explicit        llm.Layer
	CredentialsPath string
	BaseURL         string
	Timeout         time.Duration
	Getenv          func(string) string
}

// NewClientFactory returns a factory that resolves credentials from the
// explicit settings, the document's ai_settings.gemini, the credentials file
// and the environment, in that order.
func NewClientFactory(s ClientSettings) GeneratorFactory {
	return func(ctx context.Context, doc *portal.Document) (llm.Generator, error) {
		var persisted llm.Layer
		if doc != nil {
			persisted = PersistedLayer(doc.GeminiSettings())
		}
		client, err := llm.NewClient(llm.Options{
			Provider:        s.Provider,
			Explicit:        s.Explicit,
			Persisted:       persisted,
			CredentialsPath: s.CredentialsPath,
			Getenv:          s.Getenv,
			BaseURL:         s.BaseURL,
			Timeout:         s.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// PersistedLayer adapts the operator-saved settings to a resolution layer.
// Task keys may use aliases; resolution canonicalises them.
func PersistedLayer(g portal.GeminiSettings) llm.Layer {
	return llm.Layer{
		APIKey:         g.APIKey,
		DefaultModel:   g.DefaultModel,
		DefaultVersion: g.DefaultVersion,
		Models:         g.Models,
		Versions:       g.Versions,
	}
}
