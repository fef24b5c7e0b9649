// Package perception fuses per-frame ball and basket detections into a
// persistent, hysteretic view of the field.
package perception

import (
	"cmp"
	"math"
	"slices"

	"github.com/ballbot/robot-ai/internal/config"
	"github.com/ballbot/robot-ai/internal/model"
	"github.com/ballbot/robot-ai/internal/sampler"
)

// Context is what fusion needs to know about the rest of the controller.
type Context struct {
	Motion       model.MotionState
	Thrower      model.ThrowerState
	BasketColour model.BasketColour
	// Thresholds are read and adapted in place.
	Thresholds *model.Thresholds
}

// State is the fused perception state. It survives across frames.
type State struct {
	ClosestBall              *model.BallObservation
	LastClosestBall          *model.BallObservation
	PotentialNextClosestBall *model.BallObservation
	Basket                   *model.BasketObservation
	OtherBasket              *model.BasketObservation

	// BasketDirection is +1 when the basket is believed to be left of the
	// frame centre (rotate positive), -1 when right.
	BasketDirection            int
	LastVisibleBasketDirection int

	FilteredBorderY     float64
	FilteredReach       float64
	FilteredBasketWidth float64
	StraightAhead       model.StraightAhead

	MissCount int
}

// Fusion owns the perception state and its filters.
type Fusion struct {
	State

	frame config.FrameTuning
	tune  config.PerceptionTuning

	borderY     *sampler.Sampler[float64]
	reach       *sampler.Sampler[float64]
	basketWidth *sampler.Sampler[float64]
}

// New creates a fusion with both basket directions initialised to +1.
func New(t config.Tuning) *Fusion {
	return &Fusion{
		State: State{
			BasketDirection:            1,
			LastVisibleBasketDirection: 1,
		},
		frame:       t.Frame,
		tune:        t.Perception,
		borderY:     sampler.NewMax[float64](t.Perception.BorderWindow),
		reach:       sampler.NewMax[float64](t.Perception.ReachWindow),
		basketWidth: sampler.NewAverage(t.Perception.BasketWidthWindow),
	}
}

// DefaultThresholds returns the non-adapted filter thresholds.
func (f *Fusion) DefaultThresholds() model.Thresholds {
	return model.Thresholds{
		BallTopArc:        f.tune.BallTopArcThreshold,
		BasketBottom:      f.tune.BasketBottomThreshold,
		OtherBasketBottom: f.tune.OtherBasketBottomThreshold,
	}
}

// Update fuses one vision frame.
func (f *Fusion) Update(frame model.VisionFrame, ctx Context) {
	f.borderY.Add(frame.Metrics.BorderY)
	f.reach.Add(frame.Metrics.StraightAhead.Reach)
	f.FilteredBorderY = f.borderY.Value()
	f.FilteredReach = f.reach.Value()
	f.StraightAhead = frame.Metrics.StraightAhead

	f.selectBaskets(frame.Baskets, ctx)
	f.selectBalls(frame.Balls, ctx)
	f.updateBasketDirection()
}

func isApproach(s model.MotionState) bool {
	switch s {
	case model.MotionFindBasket, model.MotionDriveWithBall, model.MotionDriveToBall, model.MotionDriveGrabBall:
		return true
	}
	return false
}

func (f *Fusion) selectBaskets(baskets []model.BasketObservation, ctx Context) {
	th := ctx.Thresholds

	goodMatching, goodOther := false, false
	for _, b := range baskets {
		if b.Color == ctx.BasketColour {
			goodMatching = goodMatching || b.BottomMetric >= f.tune.BasketBottomThreshold
		} else {
			goodOther = goodOther || b.BottomMetric >= f.tune.OtherBasketBottomThreshold
		}
	}

	switch {
	case !isApproach(ctx.Motion):
		th.BasketBottom = f.tune.BasketBottomThreshold
	case ctx.Motion == model.MotionDriveToBall && !goodMatching:
		th.BasketBottom = f.tune.BasketBottomThreshold
	case goodMatching:
		th.BasketBottom = 0
	}
	if goodOther {
		th.BasketBottom = f.tune.BasketBottomThreshold
		th.OtherBasketBottom = f.tune.OtherBasketBottomThreshold
	}

	var basket, other *model.BasketObservation
	for i := range baskets {
		b := baskets[i]
		if b.Color == ctx.BasketColour {
			if b.BottomMetric >= th.BasketBottom && (basket == nil || b.Size > basket.Size) {
				basket = &b
			}
		} else if b.BottomMetric >= th.OtherBasketBottom && (other == nil || b.Size > other.Size) {
			other = &b
		}
	}
	f.Basket = basket
	f.OtherBasket = other

	if basket != nil {
		f.basketWidth.Add(basket.W)
		f.FilteredBasketWidth = f.basketWidth.Value()
	} else {
		f.basketWidth.Reset()
		f.FilteredBasketWidth = 0
	}
}

func (f *Fusion) selectBalls(balls []model.BallObservation, ctx Context) {
	centerX := f.frame.CenterX()

	kept := make([]model.BallObservation, 0, len(balls))
	for _, b := range balls {
		if b.TopMetric() < ctx.Thresholds.BallTopArc {
			continue
		}
		if b.CY > f.frame.EdgeY && math.Abs(b.CX-centerX) < f.frame.EdgeCenterTolerance {
			continue
		}
		kept = append(kept, b)
	}
	slices.SortStableFunc(kept, func(a, b model.BallObservation) int {
		return cmp.Compare(b.Size, a.Size)
	})

	f.ClosestBall = nil
	if len(kept) > 0 {
		closest := kept[0]
		f.ClosestBall = &closest
	}
	if len(kept) > 1 && f.qualifiesAsCandidate(kept[1], ctx) {
		next := kept[1]
		f.PotentialNextClosestBall = &next
	}

	if f.ClosestBall != nil {
		last := *f.ClosestBall
		f.LastClosestBall = &last
		f.MissCount = 0
		return
	}
	f.MissCount++
	if f.MissCount >= f.tune.BallMissLimit {
		f.LastClosestBall = nil
	}
}

func (f *Fusion) qualifiesAsCandidate(b model.BallObservation, ctx Context) bool {
	if b.CombinedMetric() <= f.tune.CandidateMinMetric {
		return false
	}
	if ctx.Motion != model.MotionDriveToBall && ctx.Motion != model.MotionFindBasket {
		return false
	}
	if ctx.Thrower != model.ThrowerIdle || b.Size <= f.tune.CandidateMinSize {
		return false
	}
	return f.PotentialNextClosestBall == nil || b.Size > f.PotentialNextClosestBall.Size
}

func (f *Fusion) updateBasketDirection() {
	centerX := f.frame.CenterX()
	if f.Basket != nil {
		dir := sign(centerX - f.Basket.CX)
		f.BasketDirection = dir
		f.LastVisibleBasketDirection = dir
		return
	}
	if f.OtherBasket != nil {
		// The other hoop is on the opposite side of the field.
		otherDir := sign(centerX - f.OtherBasket.CX)
		if otherDir == f.LastVisibleBasketDirection {
			f.BasketDirection = -otherDir
		}
	}
}

// ResetAfterThrow restores the default thresholds and forgets the last ball.
func (f *Fusion) ResetAfterThrow(th *model.Thresholds) {
	*th = f.DefaultThresholds()
	f.LastClosestBall = nil
}

// ClearCandidate drops the alternate-ball candidate.
func (f *Fusion) ClearCandidate() {
	f.PotentialNextClosestBall = nil
}

// EdgeTooClose reports whether the field border fills the bottom of the frame.
func (f *Fusion) EdgeTooClose() bool {
	return f.FilteredBorderY > f.tune.EdgeBorderY
}

// Snapshot returns a copy suitable for telemetry.
func (f *Fusion) Snapshot() model.PerceptionSnapshot {
	return model.PerceptionSnapshot{
		ClosestBall:                cloneBall(f.ClosestBall),
		LastClosestBall:            cloneBall(f.LastClosestBall),
		PotentialNextClosestBall:   cloneBall(f.PotentialNextClosestBall),
		Basket:                     cloneBasket(f.Basket),
		OtherBasket:                cloneBasket(f.OtherBasket),
		BasketDirection:            f.BasketDirection,
		LastVisibleBasketDirection: f.LastVisibleBasketDirection,
		FilteredBorderY:            f.FilteredBorderY,
		FilteredReach:              f.FilteredReach,
		FilteredBasketWidth:        f.FilteredBasketWidth,
		BallMissCount:              f.MissCount,
	}
}

func cloneBall(b *model.BallObservation) *model.BallObservation {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}

func cloneBasket(b *model.BasketObservation) *model.BasketObservation {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}

func sign(v float64) int {
	if v < 0 {
		return -1
	}
	return 1
}
