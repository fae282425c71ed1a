package llm

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestIsLikelyContextOverflowText(t *testing.T) {
	overflow := []string{
		"The input token count (1048600) exceeds the maximum number of tokens allowed (1048576).",
		"prompt is too long: 210000 tokens > 200000 maximum",
		"413 Request Entity Too Large",
	}
	for _, msg := range overflow {
		assert.True(t, IsLikelyContextOverflowText(msg), msg)
	}

	other := []string{
		"",
		"   ",
		"context window too small; minimum is 1024 tokens",
		"Resource has been exhausted (e.g. check quota).",
		"invalid JSON payload received",
	}
	for _, msg := range other {
		assert.False(t, IsLikelyContextOverflowText(msg), msg)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "config_missing", err: errors.WithHint(ErrConfigurationMissing, "set a key"), want: false},
		{name: "bad_request", err: &APIError{Code: 400, Message: "invalid argument"}, want: false},
		{name: "unauthorized", err: &APIError{Code: 401, Message: "API key not valid"}, want: false},
		{name: "model_not_found", err: errors.WithHint(&APIError{Code: 404, Message: "models/x is not found"}, "set GEMINI_MODEL"), want: false},
		{name: "quota_403", err: &APIError{Code: 403, Message: "Quota exceeded for quota metric"}, want: true},
		{name: "rate_limited", err: &APIError{Code: 429, Message: "Resource has been exhausted"}, want: true},
		{name: "server_error", err: &APIError{Code: 503, Message: "The model is overloaded"}, want: true},
		{name: "transport", err: &APIError{Message: "dial tcp: connection refused"}, want: true},
		{name: "prompt_too_long", err: &APIError{Code: 400, Message: "prompt is too long"}, want: false},
		{name: "timeout", err: errors.Wrap(context.DeadlineExceeded, "generate"), want: true},
		{name: "malformed", err: &MalformedOutputError{Raw: "nope"}, want: true},
		{name: "no_content", err: &NoParsableContentError{}, want: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRetryable(tc.err))
		})
	}
}

func TestNoParsableContentMatchesSentinel(t *testing.T) {
	err := errors.Wrap(&NoParsableContentError{Raw: "hello"}, "news digest")
	assert.True(t, errors.Is(err, ErrNoParsableContent))
	assert.Equal(t, "hello", RawOutput(err))
}
