// Package log builds the process-wide slog handler from CLI settings.
package log

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	charmlog "github.com/charmbracelet/log"
)

const (
	JSONFormat   = "json"
	TextFormat   = "text"
	LogfmtFormat = "logfmt"
)

var (
	ErrUnknownLevel  = errors.New("unknown log level")
	ErrUnknownFormat = errors.New("unknown log format")
)

// GetLevel parses a level name.
func GetLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "error":
		return slog.LevelError, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
}

// CreateHandlerWithStrings returns a handler writing to w. "text" and
// "logfmt" render through charmbracelet/log, "json" through slog.
func CreateHandlerWithStrings(w io.Writer, logLevel, logFormat string) (slog.Handler, error) {
	level, err := GetLevel(logLevel)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(logFormat) {
	case JSONFormat:
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}), nil
	case TextFormat, "":
		return newCharmHandler(w, level, charmlog.TextFormatter), nil
	case LogfmtFormat:
		return newCharmHandler(w, level, charmlog.LogfmtFormatter), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, logFormat)
	}
}

func newCharmHandler(w io.Writer, level slog.Level, formatter charmlog.Formatter) *charmlog.Logger {
	return charmlog.NewWithOptions(w, charmlog.Options{
		Level:           charmlog.Level(level),
		Formatter:       formatter,
		ReportTimestamp: true,
	})
}
