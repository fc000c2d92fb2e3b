// Package logging builds the process logger from configuration: JSON to a
// rotating file when a log file is configured, otherwise an in-memory ring.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/joeycumines/nativebridge/internal/config"
)

// Setup is a configured logger and the resources behind it.
type Setup struct {
	Logger *slog.Logger
	Level  slog.Level
	// Ring is set when no log file is configured.
	Ring *RingHandler
	file io.WriteCloser
}

// Close releases the log file, if any.
func (s *Setup) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

// ParseLevel accepts debug, info, warn and error.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", s)
	}
}

// New resolves the log level and destination. Non-empty flag values take
// precedence over r.
func New(r config.Resolver, flagFile, flagLevel string) (*Setup, error) {
	levelStr := flagLevel
	if levelStr == "" {
		levelStr = r.String(config.KeyLogLevel)
	}
	level, err := ParseLevel(levelStr)
	if err != nil {
		return nil, err
	}
	s := &Setup{Level: level}

	path := flagFile
	if path == "" {
		path = r.String(config.KeyLogFile)
	}
	opts := &slog.HandlerOptions{Level: level}
	if path == "" {
		s.Ring = NewRingHandler(r.Int(config.KeyLogBufferSize), level)
		s.Logger = slog.New(s.Ring)
		return s, nil
	}

	w, err := NewRotatingFileWriter(path, r.Int(config.KeyLogMaxSizeMB), r.Int(config.KeyLogMaxFiles))
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	s.file = w
	s.Logger = slog.New(slog.NewJSONHandler(w, opts))
	return s, nil
}
