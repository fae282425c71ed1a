package gateway

import (
	"strings"
	"unicode"

	"github.com/cockroachdb/errors"
)

// EmailConfig is the SMTP account used for operator notifications.
type EmailConfig struct {
	SMTPServer    string `mapstructure:"smtp_server" json:"smtp_server"`
	SMTPPort      int    `mapstructure:"smtp_port" json:"smtp_port"`
	UseSSL        bool   `mapstructure:"use_ssl" json:"use_ssl"`
	From          string `mapstructure:"from" json:"from"`
	Password      string `mapstructure:"password" json:"password"`
	To            string `mapstructure:"to" json:"to"`
	SubjectPrefix string `mapstructure:"subject_prefix" json:"subject_prefix"`
}

// Enabled reports whether enough is configured to attempt delivery.
func (c EmailConfig) Enabled() bool {
	return strings.TrimSpace(c.SMTPServer) != "" && strings.TrimSpace(c.From) != "" && len(c.Recipients()) > 0
}

func (c EmailConfig) WithDefaults() EmailConfig {
	out := c
	if out.SMTPPort <= 0 {
		if out.UseSSL {
			out.SMTPPort = 465
		} else {
			out.SMTPPort = 587
		}
	}
	if strings.TrimSpace(out.SubjectPrefix) == "" {
		out.SubjectPrefix = "[Automation]"
	}
	return out
}

func (c EmailConfig) Recipients() []string {
	return parseEmailList(c.To)
}

func (c EmailConfig) Validate() error {
	if strings.TrimSpace(c.SMTPServer) == "" {
		return errors.New("notify.email.smtp_server is required")
	}
	if c.SMTPPort <= 0 {
		return errors.New("notify.email.smtp_port is required")
	}
	if strings.TrimSpace(c.From) == "" {
		return errors.New("notify.email.from is required")
	}
	if len(c.Recipients()) == 0 {
		return errors.New("notify.email.to must list at least one address")
	}
	return nil
}

func isRecipientSeparator(r rune) bool {
	return r == ',' || r == ';' || unicode.IsSpace(r)
}

// parseEmailList splits a recipient list on commas, semicolons and
// whitespace. Addresses are lowercased, angle brackets are dropped and
// duplicates keep their first position.
func parseEmailList(raw string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, field := range strings.FieldsFunc(raw, isRecipientSeparator) {
		addr := strings.ToLower(strings.Trim(field, "<>"))
		if addr == "" {
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out
}
