// Package logger sets up structured logging for the bot and keeps recent log
// lines in memory so they can be inspected over HTTP.
package logger

import (
	"io"
	"log/slog"
)

// Logger is a [slog.Logger] with an adjustable level.
type Logger struct {
	*slog.Logger
	Level *slog.LevelVar
}

// New returns a Logger that writes text records to all of ws. The level
// starts at [slog.LevelInfo].
func New(ws ...io.Writer) *Logger {
	level := new(slog.LevelVar)
	h := slog.NewTextHandler(io.MultiWriter(ws...), &slog.HandlerOptions{Level: level})
	return &Logger{
		Logger: slog.New(h),
		Level:  level,
	}
}
