package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/trace"

	"github.com/zhuguadundan/videowhisper/internal/safety"
)

// InitLogger creates the single structured JSON logger every component
// shares. logPath is the configured destination ("logs/app.log" in
// production); an empty path logs to stderr only, which is convenient in
// development and in tests. Every record passes through redactHandler
// first, so raw secrets never reach the sink.
func InitLogger(logPath string) (*slog.Logger, error) {
	var sink io.Writer = os.Stderr
	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", logPath, err)
		}
		sink = f
	}

	jsonHandler := slog.NewJSONHandler(sink, &slog.HandlerOptions{Level: slog.LevelInfo})
	handler := &traceHandler{inner: &redactHandler{inner: jsonHandler}}
	return slog.New(handler), nil
}

// redactHandler passes every attribute through safety.Redact before handing
// the record to the next handler in the chain, so a config value logged by
// mistake never leaks an api_key/token/cookie/secret in cleartext.
type redactHandler struct {
	inner slog.Handler
}

func (h *redactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *redactHandler) Handle(ctx context.Context, r slog.Record) error {
	redacted := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		redacted.AddAttrs(redactAttr(a))
		return true
	})
	return h.inner.Handle(ctx, redacted)
}

func redactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindAny {
		return slog.Any(a.Key, safety.Redact(a.Value.Any()))
	}
	if safety.IsSecretKey(a.Key) {
		return slog.String(a.Key, "***")
	}
	return a
}

func (h *redactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &redactHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *redactHandler) WithGroup(name string) slog.Handler {
	return &redactHandler{inner: h.inner.WithGroup(name)}
}

// traceHandler wraps a slog.Handler to inject trace_id and span_id from the
// active OpenTelemetry span, so every log line can be correlated with a
// pipeline-stage trace.
type traceHandler struct {
	inner slog.Handler
}

func (h *traceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	sc := trace.SpanContextFromContext(ctx)
	if sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.inner.Handle(ctx, r)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{inner: h.inner.WithGroup(name)}
}
