// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package logger wraps log/slog with the handler setup and helpers
// geoclued uses throughout: a text handler writing to a configurable
// writer and an Err helper that renders an error as a slog attribute.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Logger embeds *slog.Logger so callers use it exactly like a stdlib logger.
type Logger struct {
	*slog.Logger
}

// New creates a Logger at the given level, writing to stderr.
func New(level slog.Level) *Logger {
	return NewLogger(level, os.Stderr)
}

// NewLogger creates a Logger at the given level, writing to out.
func NewLogger(level slog.Level, out io.Writer) *Logger {
	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	return &Logger{slog.New(handler)}
}

// Err renders err as a slog attribute named "error".
func Err(err error) slog.Attr {
	return slog.Any("error", err)
}
