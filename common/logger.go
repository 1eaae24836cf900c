package common

import (
	"context"
	"log/slog"
	"sync/atomic"
)

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.Default())
}

// SetLogger replaces the logger used by every engine package.
// Passing nil silences all engine logging.
//
// Parameters:
//   - l: the logger to use, or nil to discard output
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the current engine logger.
//
// Returns:
//   - *slog.Logger: the active logger
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// ComponentLogger returns the engine logger tagged with a component attribute.
//
// Parameters:
//   - component: the component name, e.g. "compositor"
//
// Returns:
//   - *slog.Logger: the tagged logger
func ComponentLogger(component string) *slog.Logger {
	return Logger().With("component", component)
}
