package notify

import (
	"bytes"
	"context"
	"log/slog"
)

// AttrNotify marks a record for mailing regardless of its level.
const AttrNotify = "notify"

// Handler forwards WARN and above, plus any record carrying notify=true, to a Mailer.
type Handler struct {
	mailer *Mailer
	ops    []func(slog.Handler) slog.Handler
	marked bool
}

// NewHandler returns a handler posting to mailer. A nil mailer discards everything.
func NewHandler(mailer *Mailer) *Handler {
	return &Handler{mailer: mailer}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return h.mailer != nil && level >= slog.LevelInfo
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if h.mailer == nil {
		return nil
	}
	if r.Level < slog.LevelWarn && !h.marked && !isMarked(r) {
		return nil
	}

	var buf bytes.Buffer
	var text slog.Handler = slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == AttrNotify {
				return slog.Attr{}
			}
			return a
		},
	})
	for _, op := range h.ops {
		text = op(text)
	}
	if err := text.Handle(ctx, r); err != nil {
		return err
	}

	h.mailer.Post(Message{Time: r.Time, Level: r.Level, Body: buf.String()})
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := h.clone()
	for _, a := range attrs {
		if marks(a) {
			nh.marked = true
		}
	}
	nh.ops = append(nh.ops, func(t slog.Handler) slog.Handler { return t.WithAttrs(attrs) })
	return nh
}

func (h *Handler) WithGroup(name string) slog.Handler {
	nh := h.clone()
	nh.ops = append(nh.ops, func(t slog.Handler) slog.Handler { return t.WithGroup(name) })
	return nh
}

func (h *Handler) clone() *Handler {
	ops := make([]func(slog.Handler) slog.Handler, len(h.ops), len(h.ops)+1)
	copy(ops, h.ops)
	return &Handler{mailer: h.mailer, ops: ops, marked: h.marked}
}

func isMarked(r slog.Record) bool {
	found := false
	r.Attrs(func(a slog.Attr) bool {
		if marks(a) {
			found = true
			return false
		}
		return true
	})
	return found
}

func marks(a slog.Attr) bool {
	if a.Key != AttrNotify {
		return false
	}
	v := a.Value.Resolve()
	return v.Kind() == slog.KindBool && v.Bool()
}
