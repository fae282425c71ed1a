package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/emersion/go-message/mail"
)

type sendFunc func(ctx context.Context, cfg EmailConfig, from string, to []string, msg []byte) error

// EmailNotifier mails operator notifications rendered from markdown as a
// text/plain + text/html alternative message.
type EmailNotifier struct {
	cfg  EmailConfig
	send sendFunc
	now  func() time.Time
}

func NewEmailNotifier(cfg EmailConfig) (*EmailNotifier, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &EmailNotifier{cfg: cfg, send: smtpSend, now: time.Now}, nil
}

func (n *EmailNotifier) Notify(ctx context.Context, subject string, markdownBody string) error {
	if n == nil {
		return errors.New("email notifier is nil")
	}
	full := strings.TrimSpace(strings.TrimSpace(n.cfg.SubjectPrefix) + " " + strings.TrimSpace(subject))
	now := n.now()
	htmlBody, err := renderAlertHTML(subject, markdownBody, now)
	if err != nil {
		return errors.Wrap(err, "render email")
	}
	to := n.cfg.Recipients()
	msg, err := composeAlternativeEmail(n.cfg.From, to, full, markdownBody, htmlBody, now)
	if err != nil {
		return err
	}
	return n.send(ctx, n.cfg, strings.TrimSpace(n.cfg.From), to, msg)
}

func composeAlternativeEmail(from string, to []string, subject string, plain string, htmlBody string, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetSubject(subject)
	h.SetAddressList("From", []*mail.Address{{Address: strings.TrimSpace(from)}})
	rcpts := make([]*mail.Address, 0, len(to))
	for _, addr := range to {
		rcpts = append(rcpts, &mail.Address{Address: addr})
	}
	h.SetAddressList("To", rcpts)
	if err := h.GenerateMessageID(); err != nil {
		return nil, errors.Wrap(err, "generate message id")
	}

	if strings.TrimSpace(plain) == "" {
		plain = "(empty)"
	}
	var buf bytes.Buffer
	w, err := mail.CreateInlineWriter(&buf, h)
	if err != nil {
		return nil, errors.Wrap(err, "create message")
	}
	parts := []struct {
		contentType string
		body        string
	}{
		{"text/plain", strings.ReplaceAll(plain, "\r\n", "\n")},
		{"text/html", htmlBody},
	}
	for _, p := range parts {
		var ph mail.InlineHeader
		ph.SetContentType(p.contentType, map[string]string{"charset": "utf-8"})
		ph.Set("Content-Transfer-Encoding", "quoted-printable")
		pw, err := w.CreatePart(ph)
		if err != nil {
			return nil, errors.Wrapf(err, "create %s part", p.contentType)
		}
		if _, err := io.WriteString(pw, p.body); err != nil {
			return nil, err
		}
		if err := pw.Close(); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func smtpSend(ctx context.Context, cfg EmailConfig, from string, to []string, msg []byte) error {
	server := strings.TrimSpace(cfg.SMTPServer)
	addr := fmt.Sprintf("%s:%d", server, cfg.SMTPPort)
	dialer := &net.Dialer{Timeout: 15 * time.Second}

	var conn net.Conn
	var err error
	if cfg.UseSSL {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: server})
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return errors.Wrap(err, "smtp dial failed")
	}
	defer conn.Close()

	c, err := smtp.NewClient(conn, server)
	if err != nil {
		return errors.Wrap(err, "smtp client failed")
	}
	defer func() { _ = c.Quit() }()

	if !cfg.UseSSL {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: server}); err != nil {
				return errors.Wrap(err, "smtp starttls failed")
			}
		}
	}
	if pw := strings.TrimSpace(cfg.Password); pw != "" {
		if err := c.Auth(smtp.PlainAuth("", from, pw, server)); err != nil {
			return errors.Wrap(err, "smtp auth failed")
		}
	}
	if err := c.Mail(from); err != nil {
		return errors.Wrap(err, "smtp MAIL FROM failed")
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return errors.Wrapf(err, "smtp RCPT TO %s failed", rcpt)
		}
	}
	w, err := c.Data()
	if err != nil {
		return errors.Wrap(err, "smtp DATA failed")
	}
	if _, err := w.Write(msg); err != nil {
		return errors.Wrap(err, "smtp write failed")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "smtp close failed")
	}
	return nil
}
