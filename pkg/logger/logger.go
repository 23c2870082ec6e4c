// Package logger builds the process slog logger and small helpers shared by
// every component.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	charmLog "github.com/charmbracelet/log"

	"vfrelay/pkg/config"
)

const (
	FormatText = "text"
	FormatJSON = "json"

	envFormat    = "RELAY_LOG_FORMAT"
	envLevel     = "RELAY_LOG_LEVEL"
	envAddSource = "RELAY_LOG_ADD_SOURCE"

	// PreviewLimit bounds message text copied into log lines.
	PreviewLimit = 240
)

// New builds the process logger writing to stderr. RELAY_LOG_* variables
// override the configured format, level and source reporting.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	return newWithWriter(cfg, os.Stderr)
}

// Component returns log scoped to one component, falling back to the default logger.
func Component(log *slog.Logger, name string) *slog.Logger {
	if log == nil {
		log = slog.Default()
	}
	return log.With(KeyComponent, name)
}

// Preview returns a bounded log-safe preview of message text.
func Preview(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= PreviewLimit {
		return trimmed
	}

	return trimmed[:PreviewLimit] + "..."
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type options struct {
	format    string
	level     slog.Level
	addSource bool
}

func newWithWriter(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	opts, err := resolveOptions(cfg)
	if err != nil {
		return nil, err
	}

	if opts.format == FormatJSON {
		return slog.New(newEntryHandler(w, opts.level, opts.addSource)), nil
	}

	return slog.New(charmLog.NewWithOptions(w, charmLog.Options{
		Level:           charmLog.Level(opts.level),
		ReportTimestamp: true,
		ReportCaller:    opts.addSource,
		Formatter:       charmLog.TextFormatter,
	})), nil
}

func resolveOptions(cfg config.LoggingConfig) (options, error) {
	format := envOr(envFormat, cfg.Format)
	switch strings.ToLower(format) {
	case "", FormatText:
		format = FormatText
	case FormatJSON:
		format = FormatJSON
	default:
		return options{}, fmt.Errorf("unsupported log format %q", format)
	}

	level, err := parseLevel(envOr(envLevel, cfg.Level))
	if err != nil {
		return options{}, err
	}

	addSource := cfg.AddSource
	if raw := strings.TrimSpace(os.Getenv(envAddSource)); raw != "" {
		addSource, _ = strconv.ParseBool(raw)
	}

	return options{format: format, level: level, addSource: addSource}, nil
}

// parseLevel accepts slog level names plus "warning"; empty means info.
func parseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	switch text := strings.TrimSpace(raw); strings.ToLower(text) {
	case "":
		return slog.LevelInfo, nil
	case "warning":
		return slog.LevelWarn, nil
	default:
		if err := level.UnmarshalText([]byte(text)); err != nil {
			return 0, fmt.Errorf("unsupported log level %q", text)
		}
	}
	return level, nil
}

func envOr(key string, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return strings.TrimSpace(fallback)
}
