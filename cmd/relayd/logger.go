package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/goliatone/go-webhook-relay/core"
)

// consoleLogger writes glog-style leveled logs as JSON lines.
type consoleLogger struct {
	logger *slog.Logger
	ctx    context.Context
}

func newConsoleLogger(w io.Writer, level string) *consoleLogger {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return &consoleLogger{logger: slog.New(handler), ctx: context.Background()}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace", "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *consoleLogger) Trace(msg string, args ...any) {
	l.logger.Log(l.ctx, slog.LevelDebug-4, msg, args...)
}

func (l *consoleLogger) Debug(msg string, args ...any) {
	l.logger.DebugContext(l.ctx, msg, args...)
}

func (l *consoleLogger) Info(msg string, args ...any) {
	l.logger.InfoContext(l.ctx, msg, args...)
}

func (l *consoleLogger) Warn(msg string, args ...any) {
	l.logger.WarnContext(l.ctx, msg, args...)
}

func (l *consoleLogger) Error(msg string, args ...any) {
	l.logger.ErrorContext(l.ctx, msg, args...)
}

func (l *consoleLogger) Fatal(msg string, args ...any) {
	l.logger.ErrorContext(l.ctx, msg, args...)
	os.Exit(1)
}

func (l *consoleLogger) WithContext(ctx context.Context) core.Logger {
	if ctx == nil {
		return l
	}
	return &consoleLogger{logger: l.logger, ctx: ctx}
}

var _ core.Logger = (*consoleLogger)(nil)
