package logging

import (
	"context"
	"log/slog"
)

// StateFunc reports the controller's current motion and thrower state names.
type StateFunc func() (motion, thrower string)

// StateHandler stamps every record with the state names returned by its
// StateFunc at the moment the record is handled. Empty names are left out.
type StateHandler struct {
	inner  slog.Handler
	states StateFunc
}

// NewStateHandler wraps inner. A nil states func makes it a pass-through.
func NewStateHandler(inner slog.Handler, states StateFunc) *StateHandler {
	return &StateHandler{inner: inner, states: states}
}

func (h *StateHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *StateHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.states != nil {
		motion, thrower := h.states()
		if motion != "" {
			r.AddAttrs(slog.String("motion", motion))
		}
		if thrower != "" {
			r.AddAttrs(slog.String("thrower", thrower))
		}
	}
	return h.inner.Handle(ctx, r)
}

func (h *StateHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &StateHandler{inner: h.inner.WithAttrs(attrs), states: h.states}
}

func (h *StateHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &StateHandler{inner: h.inner.WithGroup(name), states: h.states}
}
