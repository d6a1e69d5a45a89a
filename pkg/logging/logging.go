// Package logging wires up the structured logger used across the CLI
// and library warning paths: a slog.Logger over either a plain text
// handler (for a terminal) or JSON (for log aggregation), optionally
// backed by a rotating file sink.
package logging

import (
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger builds a slog.Logger writing to w at the given level. When
// json is true it uses slog.JSONHandler (for piping into a log
// collector); otherwise slog.TextHandler, which is friendlier on a
// terminal.
func Logger(w io.Writer, json bool, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// RotatingFileWriter returns an io.Writer that rotates path once it
// exceeds maxSizeMB, keeping maxBackups old copies compressed, so a log
// file shared by many runs (cmd/dcmutil's --log-file) stays bounded on
// disk.
func RotatingFileWriter(path string, maxSizeMB, maxBackups int) io.Writer {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	}
}
