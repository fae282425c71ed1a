package gateway

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderAlertHTML(t *testing.T) {
	page, err := renderAlertHTML("Subject", "# Hello\n\n- a\n- b\n\n`code`", time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Contains(t, page, "<!doctype html>")
	assert.Contains(t, page, "<h1")
	assert.Contains(t, page, "Hello")
	assert.Contains(t, page, "<ul>")
	assert.Contains(t, page, "<li>")
	assert.Contains(t, page, "<code>code</code>")
	assert.Contains(t, page, "Sent 2024-05-06T00:00:00Z")
}

func TestRenderAlertHTMLEmptyBody(t *testing.T) {
	page, err := renderAlertHTML("Subject", "  ", time.Now())
	require.NoError(t, err)
	assert.Contains(t, page, "(no details)")
}

func TestPreviewLine(t *testing.T) {
	assert.Equal(t, "a b", previewLine(" a\r\n b "))
	got := previewLine(strings.Repeat("é", 200))
	assert.True(t, strings.HasSuffix(got, "…"))
	assert.Equal(t, 161, len([]rune(got)))
}

func TestComposeAlternativeEmail(t *testing.T) {
	msg, err := composeAlternativeEmail("bot@example.com", []string{"ops@example.com", "lead@example.com"},
		"[Automation] failed", "plain body", "<p>html body</p>", time.Now())
	require.NoError(t, err)
	text := string(msg)
	assert.Contains(t, text, "multipart/alternative")
	assert.Contains(t, text, "text/plain")
	assert.Contains(t, text, "plain body")
	assert.Contains(t, text, "text/html")
	assert.Contains(t, text, "<p>html body</p>")
	assert.Contains(t, text, "ops@example.com")
	assert.Contains(t, text, "lead@example.com")
	assert.Contains(t, text, "Message-Id:")
}

func TestEmailNotifierUsesConfiguredRecipients(t *testing.T) {
	n, err := NewEmailNotifier(EmailConfig{
		SMTPServer: "smtp.example.com",
		From:       "bot@example.com",
		To:         "Ops@Example.com; <lead@example.com>, ops@example.com",
	})
	require.NoError(t, err)

	var gotTo []string
	var gotMsg string
	n.send = func(ctx context.Context, cfg EmailConfig, from string, to []string, msg []byte) error {
		assert.Equal(t, 587, cfg.SMTPPort)
		assert.Equal(t, "bot@example.com", from)
		gotTo = to
		gotMsg = string(msg)
		return nil
	}
	require.NoError(t, n.Notify(context.Background(), "news_digest failed", "**rate limited**"))
	assert.Equal(t, []string{"ops@example.com", "lead@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "[Automation] news_digest failed")
	assert.Contains(t, gotMsg, "<strong>rate limited</strong>")
}

func TestEmailConfigValidate(t *testing.T) {
	_, err := NewEmailNotifier(EmailConfig{SMTPServer: "smtp.example.com", From: "bot@example.com"})
	assert.Error(t, err)

	cfg := EmailConfig{SMTPServer: "smtp.example.com", From: "bot@example.com", To: "a@example.com", UseSSL: true}.WithDefaults()
	assert.Equal(t, 465, cfg.SMTPPort)
	assert.True(t, cfg.Enabled())
	assert.False(t, EmailConfig{}.Enabled())
}
