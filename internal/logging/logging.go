// Package logging builds the slog loggers used by the daemon and CLI.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Options selects level, format and destination of a logger
type Options struct {
	Level     string // debug, info, warn, error
	Format    string // text or json
	FilePath  string // empty logs to Output only
	Output    io.Writer
	Component string
}

// ParseLevel maps a level name to a slog level, defaulting to info
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger is a slog.Logger that owns its log file, if any
type Logger struct {
	*slog.Logger
	file *os.File
}

// New creates a logger. When FilePath is set, records go to the file and
// to Output (stderr when nil).
func New(opts Options) (*Logger, error) {
	w := opts.Output
	if w == nil {
		w = os.Stderr
	}

	l := &Logger{}
	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0755); err != nil {
			return nil, errors.Wrap(err, "failed to create log directory")
		}
		f, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open log file")
		}
		l.file = f
		w = io.MultiWriter(w, f)
	}

	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	var handler slog.Handler
	if opts.Format == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	if opts.Component != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("component", opts.Component)})
	}

	l.Logger = slog.New(handler)
	return l, nil
}

// Discard returns a logger that drops every record
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
