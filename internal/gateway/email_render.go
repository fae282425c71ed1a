package gateway

import (
	"bytes"
	"html/template"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"

	"portal_automation/internal/appinfo"
)

// previewRunes bounds the hidden inbox preview line.
const previewRunes = 160

var alertPage = template.Must(template.New("alert").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Subject}}</title>
</head>
<body style="margin:0;background:#f7f7f5;font-family:Helvetica,Arial,sans-serif;color:#22272e;">
<div style="display:none;max-height:0;overflow:hidden;">{{.Preview}}</div>
<div style="max-width:680px;margin:0 auto;padding:20px 14px;">
<div style="background:#fff;border:1px solid #e1e4e8;border-top:4px solid #c2410c;">
<p style="margin:0;padding:12px 22px;font-size:12px;letter-spacing:.04em;color:#6a737d;">{{.Sender}}</p>
<div style="padding:4px 22px 22px;font-size:15px;line-height:1.5;">
<h2 style="margin:8px 0 16px;">{{.Subject}}</h2>
{{.Content}}
</div>
<p style="margin:0;padding:10px 22px;border-top:1px solid #e1e4e8;font-size:11px;color:#959da5;">Sent {{.SentAt}}</p>
</div>
</div>
</body>
</html>
`))

type alertView struct {
	Sender  string
	Subject string
	Preview string
	Content template.HTML
	SentAt  string
}

var (
	// markdownMu serialises Convert calls on the shared renderer.
	markdownMu sync.Mutex
	markdown   = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Linkify),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
	)
)

func markdownToHTML(src string) template.HTML {
	var buf bytes.Buffer
	markdownMu.Lock()
	err := markdown.Convert([]byte(src), &buf)
	markdownMu.Unlock()
	if err != nil {
		return template.HTML("<pre>" + template.HTMLEscapeString(src) + "</pre>")
	}
	return template.HTML(buf.String())
}

// renderAlertHTML lays a markdown notification out as a standalone html page.
func renderAlertHTML(subject string, markdownBody string, sentAt time.Time) (string, error) {
	src := strings.TrimSpace(markdownBody)
	if src == "" {
		src = "(no details)"
	}
	view := alertView{
		Sender:  appinfo.Display(),
		Subject: strings.TrimSpace(subject),
		Preview: previewLine(src),
		Content: markdownToHTML(src),
		SentAt:  sentAt.UTC().Format(time.RFC3339),
	}
	var out bytes.Buffer
	if err := alertPage.Execute(&out, view); err != nil {
		return "", err
	}
	return out.String(), nil
}

// previewLine flattens s to one line of at most previewRunes runes.
func previewLine(s string) string {
	flat := strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(flat) <= previewRunes {
		return flat
	}
	runes := []rune(flat)
	return strings.TrimSpace(string(runes[:previewRunes])) + "…"
}
