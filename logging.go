package main

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// newLogger writes text records to path. The terminal belongs to the TUI, so
// without a path everything is discarded.
func newLogger(path string, level slog.Level) (*slog.Logger, io.Closer, error) {
	if path == "" {
		return slog.New(slog.DiscardHandler), io.NopCloser(nil), nil
	}

	expanded, err := expandPath(path)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.OpenFile(expanded, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}

	return slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level})), f, nil
}

// timed runs fn and logs how long it took at debug level.
func timed(logger *slog.Logger, name string, fn func() error) error {
	start := time.Now()
	err := fn()

	attrs := []any{"op", name, "elapsed", time.Since(start)}
	if err != nil {
		attrs = append(attrs, "err", err)
	}
	logger.Debug("timed", attrs...)

	return err
}
