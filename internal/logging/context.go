// Package logging carries translation correlation attributes (flow ID,
// script name, pipeline phase) through contexts and into slog records.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

type ctxKey int

const (
	flowIDKey ctxKey = iota
	scriptKey
	phaseKey
)

// Phases of a translation run.
const (
	PhaseAnalyze  = "analyze"
	PhaseAssemble = "assemble"
	PhaseOptimize = "optimize"
	PhaseValidate = "validate"
	PhasePersist  = "persist"
)

// correlation lists the context keys in the order they appear on records.
var correlation = []struct {
	key  ctxKey
	attr string
}{
	{flowIDKey, "flow_id"},
	{scriptKey, "script"},
	{phaseKey, "phase"},
}

// WithFlowID returns a context with the flow ID set.
func WithFlowID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, flowIDKey, id)
}

// WithScript returns a context with the script name set.
func WithScript(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, scriptKey, name)
}

// WithPhase returns a context with the pipeline phase set.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, phaseKey, phase)
}

// FlowID extracts the flow ID from the context, or "" if absent.
func FlowID(ctx context.Context) string { return value(ctx, flowIDKey) }

// Script extracts the script name from the context, or "" if absent.
func Script(ctx context.Context) string { return value(ctx, scriptKey) }

// Phase extracts the pipeline phase from the context, or "" if absent.
func Phase(ctx context.Context) string { return value(ctx, phaseKey) }

func value(ctx context.Context, key ctxKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

func attrs(ctx context.Context) []slog.Attr {
	var out []slog.Attr
	for _, c := range correlation {
		if v := value(ctx, c.key); v != "" {
			out = append(out, slog.String(c.attr, v))
		}
	}
	return out
}

// LogWith returns a logger enriched with the correlation attributes of
// ctx. Only non-empty values are added.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	for _, a := range attrs(ctx) {
		logger = logger.With(a)
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler and injects the correlation
// attributes of the record's context.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(attrs(ctx)...)
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(as []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(as)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}

// New builds a correlation-aware logger. format is "json" or "text";
// level is one of debug, info, warn, error (default info).
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var inner slog.Handler
	if strings.EqualFold(format, "json") {
		inner = slog.NewJSONHandler(w, opts)
	} else {
		inner = slog.NewTextHandler(w, opts)
	}
	return slog.New(NewCorrelationHandler(inner))
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
