package security

import (
	"context"
	"log/slog"
)

// RedactingHandler is a slog.Handler that scrubs credentials before a
// record reaches the wrapped handler. Attributes whose key names a
// credential (token, authorization, api_key...) are masked outright;
// every other string value goes through the Redactor, so a Notion token
// pasted into an error message is still caught.
type RedactingHandler struct {
	next     slog.Handler
	redactor *Redactor
}

var _ slog.Handler = (*RedactingHandler)(nil)

// NewRedactingHandler wraps next.
func NewRedactingHandler(next slog.Handler, redactor *Redactor) *RedactingHandler {
	return &RedactingHandler{next: next, redactor: redactor}
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, record slog.Record) error {
	out := slog.NewRecord(record.Time, record.Level, h.redactor.Redact(record.Message), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.scrub(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	scrubbed := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		scrubbed[i] = h.scrub(a)
	}
	return &RedactingHandler{next: h.next.WithAttrs(scrubbed), redactor: h.redactor}
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{next: h.next.WithGroup(name), redactor: h.redactor}
}

// scrub resolves a (LogValuer, error, Stringer) and masks or redacts its
// value. Groups are walked recursively.
func (h *RedactingHandler) scrub(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	switch a.Value.Kind() {
	case slog.KindGroup:
		members := a.Value.Group()
		scrubbed := make([]slog.Attr, len(members))
		for i, m := range members {
			scrubbed[i] = h.scrub(m)
		}
		a.Value = slog.GroupValue(scrubbed...)
		return a
	case slog.KindString, slog.KindAny:
		s := a.Value.String()
		if s != "" && IsSecretKey(a.Key) {
			a.Value = slog.StringValue(RedactPlaceholder)
			return a
		}
		if redacted := h.redactor.Redact(s); redacted != s {
			a.Value = slog.StringValue(redacted)
		}
	}
	return a
}
