package logging

import (
	"context"
	"errors"
	"log/slog"
)

// Sink is one destination of a Fanout with its own minimum level.
type Sink struct {
	Handler slog.Handler
	Level   slog.Leveler
}

func (s Sink) enabled(ctx context.Context, level slog.Level) bool {
	if s.Level != nil && level < s.Level.Level() {
		return false
	}
	return s.Handler.Enabled(ctx, level)
}

// Fanout delivers each record to every sink whose level admits it. A failing
// sink does not stop the others; their errors are joined.
type Fanout struct {
	sinks []Sink
}

// NewFanout drops sinks without a handler.
func NewFanout(sinks ...Sink) *Fanout {
	f := &Fanout{sinks: make([]Sink, 0, len(sinks))}
	for _, s := range sinks {
		if s.Handler != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

func (f *Fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, s := range f.sinks {
		if s.enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *Fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, s := range f.sinks {
		if !s.enabled(ctx, r.Level) {
			continue
		}
		if err := s.Handler.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f *Fanout) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f *Fanout) derive(fn func(slog.Handler) slog.Handler) *Fanout {
	out := &Fanout{sinks: make([]Sink, len(f.sinks))}
	for i, s := range f.sinks {
		out.sinks[i] = Sink{Handler: fn(s.Handler), Level: s.Level}
	}
	return out
}
