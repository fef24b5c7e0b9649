// Package sampler provides fixed-window reducers used to smooth per-frame
// perception and sensor values.
package sampler

import "cmp"

// Reducer folds the current window (oldest first) into a single value.
type Reducer[T any] func(values []T) T

// Sampler is a fixed-capacity circular buffer with a pluggable reducer.
// It is not safe for concurrent use; the controller owns every sampler.
type Sampler[T any] struct {
	buf    []T
	next   int
	count  int
	reduce Reducer[T]
}

// New creates a sampler holding at most size values.
func New[T any](size int, reduce Reducer[T]) *Sampler[T] {
	if size < 1 {
		size = 1
	}
	return &Sampler[T]{
		buf:    make([]T, size),
		reduce: reduce,
	}
}

// NewMax creates a sampler reducing to the window maximum.
func NewMax[T cmp.Ordered](size int) *Sampler[T] {
	return New(size, func(values []T) T {
		m := values[0]
		for _, v := range values[1:] {
			if v > m {
				m = v
			}
		}
		return m
	})
}

// NewMin creates a sampler reducing to the window minimum.
func NewMin[T cmp.Ordered](size int) *Sampler[T] {
	return New(size, func(values []T) T {
		m := values[0]
		for _, v := range values[1:] {
			if v < m {
				m = v
			}
		}
		return m
	})
}

// NewAverage creates a sampler reducing to the arithmetic mean of the window.
func NewAverage(size int) *Sampler[float64] {
	return New(size, func(values []float64) float64 {
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values))
	})
}

// Add pushes a value, evicting the oldest one when the window is full.
func (s *Sampler[T]) Add(v T) {
	s.buf[s.next] = v
	s.next = (s.next + 1) % len(s.buf)
	if s.count < len(s.buf) {
		s.count++
	}
}

// Values returns the window contents, oldest first.
func (s *Sampler[T]) Values() []T {
	out := make([]T, 0, s.count)
	start := (s.next - s.count + len(s.buf)) % len(s.buf)
	for i := 0; i < s.count; i++ {
		out = append(out, s.buf[(start+i)%len(s.buf)])
	}
	return out
}

// Value returns the reduced window. An empty sampler yields the zero value.
func (s *Sampler[T]) Value() T {
	if s.count == 0 {
		var zero T
		return zero
	}
	return s.reduce(s.Values())
}

// Len returns the number of values currently held.
func (s *Sampler[T]) Len() int {
	return s.count
}

// Cap returns the window size.
func (s *Sampler[T]) Cap() int {
	return len(s.buf)
}

// Full reports whether the window holds Cap values.
func (s *Sampler[T]) Full() bool {
	return s.count == len(s.buf)
}

// Reset empties the window.
func (s *Sampler[T]) Reset() {
	s.next = 0
	s.count = 0
}
