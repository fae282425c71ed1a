package logging

import (
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

type Options struct {
	// JSON selects the structured encoder; otherwise a console encoder is
	// used, coloured when Output is a terminal.
	JSON   bool
	Level  string
	Output io.Writer
}

// New builds a sugared logger. Command output goes to stdout, so logs default
// to stderr.
func New(opts Options) (*zap.SugaredLogger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	var encoder zapcore.Encoder
	if opts.JSON {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(cfg)
	} else {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
		cfg.EncodeCaller = nil
		cfg.CallerKey = ""
		if TermColorEnabled(out) {
			cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		} else {
			cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		}
		encoder = zapcore.NewConsoleEncoder(cfg)
	}
	core := zapcore.NewCore(encoder, zapcore.AddSync(out), level)
	return zap.New(core).Sugar(), nil
}

func ParseLevel(raw string) (zapcore.Level, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(text))); err != nil {
		return zapcore.InfoLevel, errors.Wrapf(err, "invalid log level %q", raw)
	}
	return level, nil
}

func TermColorEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	termEnv := strings.TrimSpace(os.Getenv("TERM"))
	if termEnv == "" || termEnv == "dumb" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

const truncatedSuffix = " ... (truncated)"

// Preview flattens raw onto one line and truncates it to at most max bytes
// without splitting a UTF-8 sequence.
func Preview(raw string, max int) string {
	if max <= 0 {
		return ""
	}
	text := strings.Join(strings.Fields(raw), " ")
	if len(text) <= max {
		return text
	}
	if max <= len(truncatedSuffix) {
		return text[:runeBoundary(text, max)]
	}
	return text[:runeBoundary(text, max-len(truncatedSuffix))] + truncatedSuffix
}

// runeBoundary steps back from n to the start of the rune containing it.
func runeBoundary(s string, n int) int {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}
