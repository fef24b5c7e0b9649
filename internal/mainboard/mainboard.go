// Package mainboard fuses raw mainboard feedback frames into sensor state with
// edge-triggered events.
package mainboard

import (
	"github.com/ballbot/robot-ai/internal/model"
	"github.com/ballbot/robot-ai/internal/sampler"
)

// State is the fused mainboard state.
type State struct {
	Speeds         [5]float64
	Balls          [2]bool
	PrevBalls      [2]bool
	IsSpeedChanged bool
	Time           float64

	RefereeCommand     string
	PrevRefereeCommand string
	Button             model.Button
	PrevButton         model.Button

	LidarDistance         float64
	FilteredLidarDistance float64

	// BallThrown is raised when sensor 2 loses the ball and stays set until a
	// handler consumes it or any state transition discards it.
	BallThrown bool
}

// Changes reports the events raised by one feedback frame.
type Changes struct {
	RefereeChanged bool
	ButtonChanged  bool
	BallThrown     bool
}

// Fusion owns the mainboard state and the lidar filter.
type Fusion struct {
	State
	lidar *sampler.Sampler[float64]
}

// New creates a fusion averaging lidar readings over lidarWindow frames.
func New(lidarWindow int) *Fusion {
	return &Fusion{
		State: State{
			Button:     model.ButtonNone,
			PrevButton: model.ButtonNone,
		},
		lidar: sampler.NewAverage(lidarWindow),
	}
}

// Ingest applies one feedback frame.
func (f *Fusion) Ingest(fb model.Feedback) Changes {
	f.PrevBalls = f.Balls
	f.PrevRefereeCommand = f.RefereeCommand
	f.PrevButton = f.Button

	f.Speeds = fb.Speeds
	f.Balls = fb.Balls
	f.IsSpeedChanged = fb.IsSpeedChanged
	f.Time = fb.Time
	f.RefereeCommand = fb.RefereeCommand
	f.Button = fb.Button
	if f.Button == "" {
		f.Button = model.ButtonNone
	}

	f.LidarDistance = fb.Distance
	f.lidar.Add(fb.Distance)
	f.FilteredLidarDistance = f.lidar.Value()

	var ch Changes
	ch.RefereeChanged = f.RefereeCommand != f.PrevRefereeCommand
	ch.ButtonChanged = f.Button != f.PrevButton
	if !f.BallThrown && f.PrevBalls[1] && !f.Balls[1] {
		f.BallThrown = true
		ch.BallThrown = true
	}
	return ch
}

// GrabEdge reports a ball arriving at either sensor on this frame. Sensor 1
// counts too: a ball pulled in onto sensor 1 alone must still complete a grab.
func (f *Fusion) GrabEdge() bool {
	return (!f.PrevBalls[0] && f.Balls[0]) || (!f.PrevBalls[1] && f.Balls[1])
}

// EjectEdge reports the ball leaving sensor 1 on this frame.
func (f *Fusion) EjectEdge() bool {
	return f.PrevBalls[0] && !f.Balls[0]
}

// HasBall reports whether either sensor currently sees a ball.
func (f *Fusion) HasBall() bool {
	return f.Balls[0] || f.Balls[1]
}

// ConsumeBallThrown clears the ballThrown flag and reports whether it was set.
func (f *Fusion) ConsumeBallThrown() bool {
	v := f.BallThrown
	f.BallThrown = false
	return v
}

// Snapshot returns the telemetry view.
func (f *Fusion) Snapshot() model.MainboardSnapshot {
	return model.MainboardSnapshot{
		Speeds:                f.Speeds,
		Balls:                 f.Balls,
		RefereeCommand:        f.RefereeCommand,
		Button:                f.Button,
		LidarDistance:         f.LidarDistance,
		FilteredLidarDistance: f.FilteredLidarDistance,
	}
}
