package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	// ErrConfigurationMissing means no API credential could be resolved from
	// any configuration layer.
	ErrConfigurationMissing = errors.New("generation api credentials are not configured")

	// ErrNoParsableContent matches responses where no part carried JSON.
	ErrNoParsableContent = errors.New("no parsable JSON content in generation response")
)

// APIError is a failed call to the generation API: an error envelope, a
// non-2xx status or a transport failure (Code 0).
type APIError struct {
	Provider string
	Code     int
	Status   string
	Message  string
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	provider := e.Provider
	if provider == "" {
		provider = "generation"
	}
	if e.Code == 0 {
		return fmt.Sprintf("%s api request failed: %s", provider, e.Message)
	}
	return fmt.Sprintf("%s api error %d: %s", provider, e.Code, e.Message)
}

// MalformedOutputError carries model text that could not be coerced into
// JSON. Raw is kept verbatim for diagnostics.
type MalformedOutputError struct {
	Raw string
}

func (e *MalformedOutputError) Error() string {
	return "model output is not valid JSON"
}

// NoParsableContentError wraps ErrNoParsableContent with whatever text the
// response did carry.
type NoParsableContentError struct {
	Raw string
}

func (e *NoParsableContentError) Error() string { return ErrNoParsableContent.Error() }

func (e *NoParsableContentError) Is(target error) bool { return target == ErrNoParsableContent }

// RawOutput returns the model text attached to err, if any.
func RawOutput(err error) string {
	var malformed *MalformedOutputError
	if errors.As(err, &malformed) {
		return malformed.Raw
	}
	var empty *NoParsableContentError
	if errors.As(err, &empty) {
		return empty.Raw
	}
	return ""
}

var (
	contextWindowTooSmallRe = regexp.MustCompile(`(?i)context window.*(too small|minimum is)`)
	contextOverflowHintRe   = regexp.MustCompile(`(?i)context.*overflow|context window.*(too (?:large|long)|exceed|over|limit|max(?:imum)?|requested|sent|tokens)|prompt.*(too (?:large|long)|exceed|over|limit|max(?:imum)?)|(?:request|input).*(?:context|window|length|token).*(too (?:large|long)|exceed|over|limit|max(?:imum)?)`)
	rateLimitHintRe         = regexp.MustCompile(`(?i)rate limit|too many requests|requests per (?:minute|hour|day)|quota|throttl|resource.?exhausted|429\b|tpm\b|tpd\b`)
)

// IsRetryable reports whether a later invocation could plausibly succeed
// with the same configuration. Missing credentials, rejected requests and
// oversized prompts are not retryable; throttling, server faults, transport
// failures and bad model output are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConfigurationMissing) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if IsLikelyRateLimitText(apiErr.Message) {
			return true
		}
		if IsLikelyContextOverflowText(apiErr.Message) {
			return false
		}
		switch {
		case apiErr.Code == 0:
			return true
		case apiErr.Code == 408 || apiErr.Code == 429:
			return true
		case apiErr.Code >= 500:
			return true
		case apiErr.Code >= 400:
			return false
		}
	}
	return true
}

func IsLikelyRateLimitText(errorMessage string) bool {
	return rateLimitHintRe.MatchString(strings.TrimSpace(errorMessage))
}

func IsLikelyContextOverflowText(errorMessage string) bool {
	text := strings.TrimSpace(errorMessage)
	if text == "" {
		return false
	}
	if contextWindowTooSmallRe.MatchString(text) {
		return false
	}
	// Rate limit errors can match broad overflow heuristics (e.g. "request reached ... limit").
	if rateLimitHintRe.MatchString(text) {
		return false
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "context length exceeded") ||
		strings.Contains(lower, "maximum context length") ||
		strings.Contains(lower, "prompt is too long") ||
		strings.Contains(lower, "exceeds the maximum number of tokens") ||
		(strings.Contains(lower, "413") && strings.Contains(lower, "too large")) {
		return true
	}
	return contextOverflowHintRe.MatchString(text)
}
