package log

import (
	"context"
	"log/slog"

	"rollcall/internal/events"
)

// HubHandler republishes log records to the events hub so the panel can show
// the run log alongside scheduler and submission events.
type HubHandler struct {
	hub   *events.Hub
	level slog.Level
	attrs []slog.Attr
}

// NewHubHandler creates a handler that forwards records at or above level.
func NewHubHandler(hub *events.Hub, level slog.Level) *HubHandler {
	return &HubHandler{hub: hub, level: level}
}

func (h *HubHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *HubHandler) Handle(_ context.Context, r slog.Record) error {
	data := map[string]any{
		"level":   r.Level.String(),
		"message": r.Message,
	}
	for _, a := range h.attrs {
		data[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})
	h.hub.Publish(events.TypeLog, data)
	return nil
}

func (h *HubHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &HubHandler{hub: h.hub, level: h.level, attrs: merged}
}

func (h *HubHandler) WithGroup(string) slog.Handler {
	// Groups are flattened; the panel only renders level + message + flat attrs.
	return h
}

// Tee returns a logger that writes to both the current handler and the hub.
func Tee(base *slog.Logger, hub *events.Hub, level slog.Level) *slog.Logger {
	return slog.New(fanoutHandler{base.Handler(), NewHubHandler(hub, level)})
}

type fanoutHandler []slog.Handler

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
