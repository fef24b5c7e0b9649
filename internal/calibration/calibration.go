// Package calibration maps lidar distance to throw technique, thrower speed and
// aim offset.
package calibration

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ballbot/robot-ai/internal/config"
)

// ErrNoSamples is returned when a technique has no calibration points.
var ErrNoSamples = errors.New("no calibration samples")

// Client is the lookup used by the thrower.
type Client interface {
	GetThrowerTechnique(distance float64) string
	GetThrowerSpeed(technique string, distance float64) (float64, error)
	GetCenterOffset(technique string, distance, angle float64) (float64, error)
}

// Sample is one calibration point.
type Sample struct {
	Technique string
	Distance  float64
	Speed     float64
	Offset    float64
}

// Table interpolates linearly between samples of the same technique, clamping
// at both ends.
type Table struct {
	techniques      []config.TechniqueRange
	offsetPerRadian float64
	samples         map[string][]Sample
}

// NewTable builds a table seeded from configuration.
func NewTable(cfg config.CalibrationConfig) *Table {
	t := &Table{
		techniques:      slices.Clone(cfg.Techniques),
		offsetPerRadian: cfg.OffsetPerRadian,
		samples:         make(map[string][]Sample),
	}
	for _, p := range cfg.Points {
		t.AddSample(Sample{Technique: p.Technique, Distance: p.Distance, Speed: p.Speed, Offset: p.Offset})
	}
	return t
}

// AddSample inserts a point. A point at an existing distance replaces it.
func (t *Table) AddSample(s Sample) {
	list := t.samples[s.Technique]
	i, found := slices.BinarySearchFunc(list, s.Distance, func(e Sample, d float64) int {
		switch {
		case e.Distance < d:
			return -1
		case e.Distance > d:
			return 1
		}
		return 0
	})
	if found {
		list[i] = s
	} else {
		list = slices.Insert(list, i, s)
	}
	t.samples[s.Technique] = list
}

// Load adds every sample, typically the training history from storage.
func (t *Table) Load(samples []Sample) {
	for _, s := range samples {
		t.AddSample(s)
	}
}

// Len returns the number of points held for a technique.
func (t *Table) Len(technique string) int {
	return len(t.samples[technique])
}

// GetThrowerTechnique returns the technique whose range contains distance,
// or the nearest range when none does.
func (t *Table) GetThrowerTechnique(distance float64) string {
	if len(t.techniques) == 0 {
		return ""
	}
	best, bestGap := t.techniques[0].Name, -1.0
	for _, r := range t.techniques {
		if distance >= r.MinDistance && distance < r.MaxDistance {
			return r.Name
		}
		gap := r.MinDistance - distance
		if distance >= r.MaxDistance {
			gap = distance - r.MaxDistance
		}
		if bestGap < 0 || gap < bestGap {
			best, bestGap = r.Name, gap
		}
	}
	return best
}

// GetThrowerSpeed interpolates the thrower speed for distance.
func (t *Table) GetThrowerSpeed(technique string, distance float64) (float64, error) {
	return t.interpolate(technique, distance, func(s Sample) float64 { return s.Speed })
}

// GetCenterOffset interpolates the pixel aim offset and adds the angle term.
func (t *Table) GetCenterOffset(technique string, distance, angle float64) (float64, error) {
	offset, err := t.interpolate(technique, distance, func(s Sample) float64 { return s.Offset })
	if err != nil {
		return 0, err
	}
	return offset + angle*t.offsetPerRadian, nil
}

func (t *Table) interpolate(technique string, distance float64, value func(Sample) float64) (float64, error) {
	list := t.samples[technique]
	if len(list) == 0 {
		return 0, fmt.Errorf("technique %q: %w", technique, ErrNoSamples)
	}
	if distance <= list[0].Distance {
		return value(list[0]), nil
	}
	last := list[len(list)-1]
	if distance >= last.Distance {
		return value(last), nil
	}
	for i := 1; i < len(list); i++ {
		hi := list[i]
		if distance > hi.Distance {
			continue
		}
		lo := list[i-1]
		ratio := (distance - lo.Distance) / (hi.Distance - lo.Distance)
		return value(lo) + ratio*(value(hi)-value(lo)), nil
	}
	return value(last), nil
}
