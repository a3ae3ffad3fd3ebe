package security

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
)

// contentKeys carry conversation content. Their values are replaced by a
// length marker so turns, queries and summaries never reach the logs.
var contentKeys = map[string]bool{
	"content":       true,
	"prior_summary": true,
	"query":         true,
	"summary":       true,
	"text":          true,
}

// RedactingHandler masks secrets and conversation content before records
// reach the wrapped handler:
//
//   - attributes with secret-looking keys (api_key, dsn, bearer_token) are
//     replaced with RedactPlaceholder;
//   - attributes in contentKeys are replaced with their length;
//   - every other string, including the message and resolved errors, goes
//     through the Redactor.
type RedactingHandler struct {
	inner    slog.Handler
	redactor *Redactor
}

var _ slog.Handler = (*RedactingHandler)(nil)

// NewRedactingHandler wraps inner.
func NewRedactingHandler(inner slog.Handler, redactor *Redactor) *RedactingHandler {
	return &RedactingHandler{inner: inner, redactor: redactor}
}

// Enabled implements slog.Handler.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *RedactingHandler) Handle(ctx context.Context, record slog.Record) error {
	out := slog.NewRecord(record.Time, record.Level, h.redactor.Redact(record.Message), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redactAttr(a))
		return true
	})
	return h.inner.Handle(ctx, out)
}

// WithAttrs implements slog.Handler. Attributes are masked once here and
// then owned by the inner handler.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = h.redactAttr(a)
	}
	return &RedactingHandler{inner: h.inner.WithAttrs(masked), redactor: h.redactor}
}

// WithGroup implements slog.Handler.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{inner: h.inner.WithGroup(name), redactor: h.redactor}
}

func (h *RedactingHandler) redactAttr(a slog.Attr) slog.Attr {
	// Resolve LogValuers so what is masked is what would be printed.
	a.Value = a.Value.Resolve()
	kind := a.Value.Kind()
	key := strings.ToLower(a.Key)

	switch {
	case kind == slog.KindGroup:
		attrs := a.Value.Group()
		masked := make([]slog.Attr, len(attrs))
		for i, ga := range attrs {
			masked[i] = h.redactAttr(ga)
		}
		a.Value = slog.GroupValue(masked...)
	case contentKeys[key] && kind == slog.KindString:
		a.Value = slog.StringValue("[" + strconv.Itoa(len(a.Value.String())) + " chars]")
	case isSecretKey(key) || key == "authorization":
		a.Value = slog.StringValue(RedactPlaceholder)
	case kind == slog.KindString:
		a.Value = slog.StringValue(h.redactor.Redact(a.Value.String()))
	case kind == slog.KindAny:
		// Errors from drivers and SDKs can embed DSNs or keys.
		s := a.Value.String()
		if masked := h.redactor.Redact(s); masked != s {
			a.Value = slog.StringValue(masked)
		}
	}
	return a
}
