package log

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	charmlog "github.com/charmbracelet/log"
)

// Format selects the log output encoding.
type Format string

const (
	// FormatText is slog's logfmt-style text output.
	FormatText Format = "text"
	// FormatJSON is one JSON object per line.
	FormatJSON Format = "json"
	// FormatPretty is colored, human-oriented output for terminals.
	FormatPretty Format = "pretty"
)

// ParseFormat converts a flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatJSON, FormatPretty:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown log format %q (want text, json or pretty)", s)
	}
}

// New returns a sanitizing logger writing to w in the given format.
// verbose enables debug output; otherwise only warnings and errors are logged.
func New(w io.Writer, format Format, verbose bool) *slog.Logger {
	switch format {
	case FormatJSON:
		return NewSecureJSONLogger(w, verbose)
	case FormatPretty:
		return NewSecurePrettyLogger(w, verbose)
	default:
		return NewSecureLogger(w, verbose)
	}
}

func level(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelWarn
}

// NewSecureLogger returns a text logger with sanitization.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level(verbose)})
	return slog.New(NewSecureHandler(h))
}

// NewSecureJSONLogger returns a JSON logger with sanitization.
func NewSecureJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level(verbose)})
	return slog.New(NewSecureHandler(h))
}

// NewSecurePrettyLogger returns a charmbracelet/log backed logger with sanitization.
func NewSecurePrettyLogger(w io.Writer, verbose bool) *slog.Logger {
	lvl := charmlog.WarnLevel
	if verbose {
		lvl = charmlog.DebugLevel
	}
	h := charmlog.NewWithOptions(w, charmlog.Options{
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Prefix:          "linkprobe",
	})
	return slog.New(NewSecureHandler(h))
}
