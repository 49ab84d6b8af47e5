package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	charmLog "github.com/charmbracelet/log"

	"idobridge/pkg/config"
)

const (
	envFormat    = "IDOBRIDGE_LOG_FORMAT"
	envLevel     = "IDOBRIDGE_LOG_LEVEL"
	envAddSource = "IDOBRIDGE_LOG_ADD_SOURCE"

	redacted = "[redacted]"
)

// secretKeys are attribute keys whose values never reach the log output.
var secretKeys = map[string]struct{}{
	"api_token":     {},
	"access_token":  {},
	"authorization": {},
	"token":         {},
}

// New builds the process logger writing to stderr.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	return newWithWriter(cfg, os.Stderr)
}

// newWithWriter renders with charmbracelet/log: colored text for terminals,
// one JSON object per line otherwise. IDOBRIDGE_LOG_* variables win over cfg.
func newWithWriter(cfg config.LoggingConfig, writer io.Writer) (*slog.Logger, error) {
	formatter, err := parseFormat(envOr(envFormat, cfg.Format))
	if err != nil {
		return nil, err
	}

	level, err := parseLevel(envOr(envLevel, cfg.Level))
	if err != nil {
		return nil, err
	}

	addSource := cfg.AddSource
	if value := strings.TrimSpace(os.Getenv(envAddSource)); value != "" {
		addSource = parseBool(value)
	}

	opts := charmLog.Options{
		Level:           level,
		ReportTimestamp: true,
		ReportCaller:    addSource,
		Formatter:       formatter,
	}
	if formatter == charmLog.JSONFormatter {
		opts.TimeFormat = time.RFC3339Nano
	}

	return slog.New(redactHandler{next: charmLog.NewWithOptions(writer, opts)}), nil
}

func envOr(key string, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseFormat(input string) (charmLog.Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "", "text":
		return charmLog.TextFormatter, nil
	case "json":
		return charmLog.JSONFormatter, nil
	default:
		return 0, fmt.Errorf("unsupported log format %q", input)
	}
}

func parseLevel(input string) (charmLog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "debug":
		return charmLog.DebugLevel, nil
	case "", "info":
		return charmLog.InfoLevel, nil
	case "warn", "warning":
		return charmLog.WarnLevel, nil
	case "error":
		return charmLog.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("unsupported log level %q", input)
	}
}

func parseBool(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// redactHandler masks secret attributes before they reach the wrapped handler.
type redactHandler struct {
	next slog.Handler
}

func (h redactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h redactHandler) Handle(ctx context.Context, record slog.Record) error {
	clean := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	record.Attrs(func(attr slog.Attr) bool {
		clean.AddAttrs(redactAttr(attr))
		return true
	})
	return h.next.Handle(ctx, clean)
}

func (h redactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		clean = append(clean, redactAttr(attr))
	}
	return redactHandler{next: h.next.WithAttrs(clean)}
}

func (h redactHandler) WithGroup(name string) slog.Handler {
	return redactHandler{next: h.next.WithGroup(name)}
}

func redactAttr(attr slog.Attr) slog.Attr {
	if _, ok := secretKeys[strings.ToLower(attr.Key)]; ok {
		return slog.String(attr.Key, redacted)
	}

	if attr.Value.Kind() == slog.KindGroup {
		group := attr.Value.Group()
		clean := make([]any, 0, len(group))
		for _, item := range group {
			clean = append(clean, redactAttr(item))
		}
		return slog.Group(attr.Key, clean...)
	}

	return attr
}
