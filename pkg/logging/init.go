package logging

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
)

const (
	JSON = "json"
	Text = "text"
	Tint = "tint"
)

// Types lists the accepted logging types.
var Types = []string{JSON, Text, Tint}

// ParseLevel parses a level name such as "info" or "debug-2".
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return level, fmt.Errorf("could not parse log level: %v", err)
	}
	return level, nil
}

// NewHandler builds the handler for loggingType writing to w.
func NewHandler(w io.Writer, loggingType string, level slog.Level) (slog.Handler, error) {
	opts := slog.HandlerOptions{
		AddSource: level < slog.LevelInfo,
		Level:     level,
	}

	switch loggingType {
	case JSON:
		return slog.NewJSONHandler(w, &opts), nil
	case Text:
		return slog.NewTextHandler(w, &opts), nil
	case Tint:
		return tint.NewHandler(w, &tint.Options{
			AddSource:  opts.AddSource,
			Level:      opts.Level,
			TimeFormat: time.TimeOnly,
		}), nil
	default:
		return nil, fmt.Errorf("unknown logging type: %s", loggingType)
	}
}

// Initialize installs a logger writing to w as the slog default and returns it.
func Initialize(w io.Writer, loggingType string, logLevelName string) (*slog.Logger, error) {
	logLevel, err := ParseLevel(logLevelName)
	if err != nil {
		return nil, err
	}

	handler, err := NewHandler(w, loggingType, logLevel)
	if err != nil {
		return nil, err
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	logger.Debug("logging initialized", "logLevel", logLevel, "type", loggingType)
	return logger, nil
}
