// Package logging configures the process-wide slog logger from the LK_LOG_* environment.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/natefinch/lumberjack"
)

// Options selects the handler. Empty fields fall back to the environment.
type Options struct {
	Format string // json (default) or console
	Level  string // debug, info, warn, error
	File   string // rotate into this file instead of stdout
}

// FromEnv reads LK_LOG_FORMAT, LK_LOG_LEVEL and LK_LOG_FILE.
func FromEnv() Options {
	return Options{
		Format: os.Getenv("LK_LOG_FORMAT"),
		Level:  os.Getenv("LK_LOG_LEVEL"),
		File:   os.Getenv("LK_LOG_FILE"),
	}
}

// ParseLevel maps a level name to a slog level; unknown names are info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// New builds a logger writing to w, or to a rotating file when opts.File is set.
func New(opts Options, w io.Writer) *slog.Logger {
	if opts.File != "" {
		w = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}
	}

	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	var handler slog.Handler
	if opts.Format == "console" {
		handler = slog.NewTextHandler(w, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(w, handlerOpts)
	}
	return slog.New(handler)
}

// Setup builds the logger from the environment and installs it as the default.
func Setup() *slog.Logger {
	logger := New(FromEnv(), os.Stdout)
	slog.SetDefault(logger)
	return logger
}
