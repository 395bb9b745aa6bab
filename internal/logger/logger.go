// Package logger builds the slog.Logger a Coordinator uses to record its
// claim/reclaim/timeout/complete decisions.
package logger

import (
	"io"
	"log/slog"
	"os"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// Config describes where and how decision log lines are written. A zero
// Config logs plain (uncolored) text to stderr at Info level.
type Config struct {
	Dir        string // base directory; file is Dir/decisions.log
	Path       string // explicit path overrides Dir
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	Level      string // debug|info|warn|error, default info
	Color      bool   // colorize console output (ignored once a file target is set)
}

func (c Config) level() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// New builds a decision-trail logger and the io.Closer that must be closed
// on shutdown to flush and release the underlying writer, if any.
func New(cfg Config) (*slog.Logger, io.Closer, error) {
	path := cfg.Path
	if path == "" && cfg.Dir != "" {
		path = cfg.Dir + "/decisions.log"
	}

	opts := &slog.HandlerOptions{Level: cfg.level()}

	if path == "" {
		w := os.Stderr
		var h slog.Handler
		if cfg.Color {
			h = NewColorTextHandler(w, opts)
		} else {
			h = slog.NewTextHandler(w, opts)
		}
		return slog.New(h), nopCloser{}, nil
	}

	w := &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(cfg.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(cfg.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(cfg.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   cfg.Compress,
	}
	return slog.New(slog.NewJSONHandler(w, opts)), w, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
