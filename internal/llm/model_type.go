package llm

import (
	"fmt"
	"strings"
)

// Provider names the backend that serves generation requests.
type Provider string

const (
	ProviderGemini     Provider = "gemini"
	ProviderOpenAI     Provider = "openai"
	ProviderAnthropics Provider = "anthropics"
	providerAnthropic  Provider = "anthropic"
	providerGoogle     Provider = "google"
)

func ParseProvider(raw string) (Provider, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case "", string(ProviderGemini), string(providerGoogle):
		return ProviderGemini, nil
	case string(ProviderOpenAI):
		return ProviderOpenAI, nil
	case string(ProviderAnthropics), string(providerAnthropic):
		return ProviderAnthropics, nil
	default:
		return "", fmt.Errorf("unsupported llm.provider %q (supported: %q, %q, %q)", raw, ProviderGemini, ProviderOpenAI, ProviderAnthropics)
	}
}

// Label is the name used for the provider in operator-facing text.
func (p Provider) Label() string {
	switch p {
	case ProviderOpenAI:
		return "OpenAI"
	case ProviderAnthropics:
		return "Claude"
	default:
		return "Gemini"
	}
}

// DefaultModelFor is the model used when no configuration layer names one.
func DefaultModelFor(p Provider) string {
	switch p {
	case ProviderOpenAI:
		return DefaultOpenAIModel
	case ProviderAnthropics:
		return DefaultAnthropicModel
	default:
		return DefaultModel
	}
}
