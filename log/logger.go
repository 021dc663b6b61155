// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelCrit  = slog.Level(12)
)

// Logger is the structured logging surface used across the module.
type Logger interface {
	With(ctx ...any) Logger

	Trace(msg string, ctx ...any)
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Warn(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	Crit(msg string, ctx ...any)
}

// logger carries only its context pairs; the handler is resolved from the
// root at log time, so loggers derived during package init still pick up the
// handler installed later by SetDefault.
type logger struct {
	ctx []any
}

func (l *logger) With(ctx ...any) Logger {
	merged := make([]any, 0, len(l.ctx)+len(ctx))
	merged = append(merged, l.ctx...)
	merged = append(merged, ctx...)
	return &logger{ctx: merged}
}

func (l *logger) write(level slog.Level, msg string, ctx ...any) {
	kv := make([]any, 0, len(l.ctx)+len(ctx))
	kv = append(kv, l.ctx...)
	kv = append(kv, ctx...)
	root.Load().Log(context.Background(), level, msg, kv...)
}

func (l *logger) Trace(msg string, ctx ...any) { l.write(LevelTrace, msg, ctx...) }
func (l *logger) Debug(msg string, ctx ...any) { l.write(LevelDebug, msg, ctx...) }
func (l *logger) Info(msg string, ctx ...any)  { l.write(LevelInfo, msg, ctx...) }
func (l *logger) Warn(msg string, ctx ...any)  { l.write(LevelWarn, msg, ctx...) }
func (l *logger) Error(msg string, ctx ...any) { l.write(LevelError, msg, ctx...) }

// Crit logs a critical message and exits.
func (l *logger) Crit(msg string, ctx ...any) {
	l.write(LevelCrit, msg, ctx...)
	os.Exit(1)
}

var root atomic.Pointer[slog.Logger]

func init() {
	root.Store(slog.New(DiscardHandler()))
}

// SetDefault sets the default global handler. Loggers derived before the call
// emit through the new handler from then on.
func SetDefault(handler slog.Handler) {
	root.Store(slog.New(handler))
}

// Root returns the root logger.
func Root() Logger {
	return &logger{}
}

// WithContext returns a logger carrying the given context pair, typically
// ("pkg", name).
func WithContext(ctx ...any) Logger {
	return &logger{ctx: ctx}
}

// NewTextHandler returns a human readable handler writing to wr at the given
// minimum level.
func NewTextHandler(wr io.Writer, level slog.Leveler) slog.Handler {
	return slog.NewTextHandler(wr, &slog.HandlerOptions{Level: level, ReplaceAttr: replaceLevelNames})
}

// NewJSONHandler returns a JSON handler writing to wr at the given minimum level.
func NewJSONHandler(wr io.Writer, level slog.Leveler) slog.Handler {
	return slog.NewJSONHandler(wr, &slog.HandlerOptions{Level: level, ReplaceAttr: replaceLevelNames})
}

func replaceLevelNames(_ []string, attr slog.Attr) slog.Attr {
	if attr.Key == slog.LevelKey {
		if level, ok := attr.Value.Any().(slog.Level); ok {
			switch level {
			case LevelTrace:
				attr.Value = slog.StringValue("TRACE")
			case LevelCrit:
				attr.Value = slog.StringValue("CRIT")
			}
		}
	}
	return attr
}

type discardHandler struct{}

// DiscardHandler returns a no-op handler.
func DiscardHandler() slog.Handler {
	return &discardHandler{}
}

func (h *discardHandler) Handle(_ context.Context, _ slog.Record) error { return nil }
func (h *discardHandler) Enabled(_ context.Context, _ slog.Level) bool  { return false }
func (h *discardHandler) WithGroup(_ string) slog.Handler               { return h }
func (h *discardHandler) WithAttrs(_ []slog.Attr) slog.Handler          { return h }
