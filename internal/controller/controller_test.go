package controller

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/ballbot/robot-ai/internal/calibration"
	"github.com/ballbot/robot-ai/internal/config"
	"github.com/ballbot/robot-ai/internal/kinematics"
	"github.com/ballbot/robot-ai/internal/model"
	"github.com/ballbot/robot-ai/pkg/messages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// recordingPublisher implements Publisher for testing
type recordingPublisher struct {
	mu       sync.Mutex
	commands []messages.MainboardCommand
	states   []model.Snapshot
	err      error
}

func (p *recordingPublisher) Publish(topic string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	switch v := payload.(type) {
	case messages.MainboardCommand:
		p.commands = append(p.commands, v)
	case model.Snapshot:
		p.states = append(p.states, v)
	}
	return nil
}

func (p *recordingPublisher) lastCommand(t *testing.T) messages.MainboardCommand {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.commands)
	return p.commands[len(p.commands)-1]
}

// memRecorder implements Recorder for testing
type memRecorder struct {
	ticks   int
	throws  []model.ThrowRecord
	samples []model.TrainingSample
}

func (r *memRecorder) RecordTick(model.Snapshot) { r.ticks++ }
func (r *memRecorder) RecordThrow(rec model.ThrowRecord) { r.throws = append(r.throws, rec) }
func (r *memRecorder) RecordTrainingSample(s model.TrainingSample) { r.samples = append(r.samples, s) }

type fixture struct {
	c      *Controller
	tuning config.Tuning
	clock  *fakeClock
	pub    *recordingPublisher
	rec    *memRecorder
	calib  *calibration.Table
	fb     messages.MainboardFeedback
}

func newFixture(t *testing.T, opts ...func(*Dependencies)) *fixture {
	t.Helper()
	f := &fixture{
		tuning: config.DefaultTuning(),
		clock:  &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		pub:    &recordingPublisher{},
		rec:    &memRecorder{},
		calib:  calibration.NewTable(config.DefaultCalibration()),
	}
	deps := Dependencies{
		Tuning: f.tuning,
		Robot: config.RobotConfig{
			FieldID:      "A",
			RobotID:      "B",
			BasketColour: "magenta",
		},
		Kinematics: kinematics.NewOmni(config.KinematicsConfig{
			WheelAngles:         []float64{45, 135, 225, 315},
			WheelCenterDistance: 0.12,
			GearRatio:           100,
		}),
		Calibration: f.calib,
		Publisher:   f.pub,
		Recorder:    f.rec,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:         f.clock.Now,
		SessionID:   "session-1",
	}
	for _, opt := range opts {
		opt(&deps)
	}
	f.tuning = deps.Tuning

	c, err := New(deps)
	require.NoError(t, err)
	f.c = c
	return f
}

func (f *fixture) tick(t *testing.T) {
	t.Helper()
	require.NoError(t, f.c.HandleFeedback(f.fb))
}

func (f *fixture) advance(t *testing.T, d time.Duration) {
	t.Helper()
	f.clock.Advance(d)
	f.tick(t)
}

func (f *fixture) setMotion(t *testing.T, s model.MotionState) {
	t.Helper()
	require.NoError(t, f.c.HandleCommand(command(messages.CommandSetMotionState, s.String())))
}

func (f *fixture) setThrower(t *testing.T, s model.ThrowerState) {
	t.Helper()
	require.NoError(t, f.c.HandleCommand(command(messages.CommandSetThrowerState, s.String())))
}

func command(name string, state any) messages.AiCommand {
	raw, _ := json.Marshal(state)
	return messages.AiCommand{Command: name, State: raw}
}

func configuration(key string, value any) messages.AiConfiguration {
	raw, _ := json.Marshal(value)
	return messages.AiConfiguration{Key: key, Value: raw}
}

func visionBall(cx, cy float64) messages.VisionBall {
	return messages.VisionBall{
		CX:            cx,
		CY:            cy,
		W:             40,
		H:             40,
		Metrics:       [2]float64{0.8, 0.8},
		StraightAhead: messages.StraightAhead{Driveability: 1},
	}
}

func visionBasket(cx float64, colour string, metric float64) messages.VisionBasket {
	return messages.VisionBasket{CX: cx, CY: 300, W: 80, H: 160, Color: colour, Metrics: [2]float64{metric, metric}}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Dependencies{})
	assert.Error(t, err)
}

func TestNew_StartsIdle(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, model.MotionIdle, f.c.Motion())
	assert.Equal(t, model.ThrowerIdle, f.c.Thrower())
	ai := f.c.AiState()
	assert.Equal(t, model.BasketMagenta, ai.BasketColour)
	assert.Equal(t, f.tuning.Perception.BallTopArcThreshold, ai.Thresholds.BallTopArc)

	snap := f.c.Snapshot()
	assert.Equal(t, "IDLE", snap.MotionState)
	assert.Equal(t, "session-1", snap.SessionID)
}

func TestFindBall_VisibleBallStartsApproach(t *testing.T) {
	f := newFixture(t)
	f.setMotion(t, model.MotionFindBall)

	f.c.HandleVision(messages.Vision{Balls: []messages.VisionBall{visionBall(640, 800)}})
	f.tick(t)
	assert.Equal(t, model.MotionDriveToBall, f.c.Motion())

	f.tick(t)

	d := f.c.AiState().Drive
	assert.InDelta(t, 0, d.Rotation, 1e-9)
	assert.InDelta(t, 0, d.Side, 1e-9)
	assert.Greater(t, d.Forward, 0.0)
	assert.LessOrEqual(t, d.Forward, f.tuning.DriveToBall.MinForward+1e-9)
}

func TestGrabEdge_HoldsBallAndDrivesWithIt(t *testing.T) {
	f := newFixture(t)
	f.setMotion(t, model.MotionDriveGrabBall)
	f.tick(t)
	require.Equal(t, model.ThrowerGrabBall, f.c.Thrower())
	assert.Equal(t, f.tuning.Thrower.GrabSpeed, f.c.AiState().Speeds[4])

	f.fb.Ball1 = true
	f.tick(t)

	assert.Equal(t, model.ThrowerHoldBall, f.c.Thrower())
	assert.Equal(t, model.MotionDriveWithBall, f.c.Motion())

	f.tick(t)
	assert.Zero(t, f.c.AiState().Speeds[4])
}

func TestThrow_CompletesAfterPostThrowTicks(t *testing.T) {
	f := newFixture(t)
	f.fb.Distance = 2000
	f.setMotion(t, model.MotionFindBasket)
	f.setThrower(t, model.ThrowerThrowBall)
	f.tick(t)

	ai := f.c.AiState()
	assert.Equal(t, "straight", ai.LastThrow.Technique)
	assert.InDelta(t, 900+800.0/1800*450, ai.LastThrow.Speed, 1e-6)
	assert.InDelta(t, ai.LastThrow.Speed, ai.Speeds[4], 1e-9)
	require.Len(t, f.rec.throws, 1)
	assert.Equal(t, "session-1", f.rec.throws[0].SessionID)
	assert.NotEmpty(t, f.rec.throws[0].Snapshot)

	f.fb.Ball2 = true
	f.tick(t)
	f.fb.Ball2 = false
	f.tick(t)
	require.Equal(t, model.ThrowerThrowBall, f.c.Thrower())

	ticks := 0
	for f.c.Thrower() == model.ThrowerThrowBall && ticks < 50 {
		f.tick(t)
		ticks++
	}

	assert.Equal(t, f.tuning.Thrower.PostThrowTicks, ticks)
	assert.Equal(t, model.ThrowerIdle, f.c.Thrower())
	assert.Equal(t, model.MotionFindBall, f.c.Motion())
	assert.Nil(t, f.c.Perception().LastClosestBall)
}

func TestThrow_FallsBackToFirstAllowedTechnique(t *testing.T) {
	f := newFixture(t, func(d *Dependencies) {
		d.Robot.AllowedTechniques = []string{"bounce"}
	})
	f.fb.Distance = 2000
	f.setMotion(t, model.MotionFindBasket)
	f.setThrower(t, model.ThrowerThrowBall)
	f.tick(t)

	ai := f.c.AiState()
	assert.Equal(t, "bounce", ai.LastThrow.Technique)
	assert.InDelta(t, 760, ai.LastThrow.Speed, 1e-9)
}

func TestThrow_WatchdogAbandonsThrow(t *testing.T) {
	f := newFixture(t)
	f.fb.Distance = 2000
	f.setMotion(t, model.MotionFindBasket)
	f.setThrower(t, model.ThrowerThrowBall)
	f.tick(t)

	f.advance(t, f.tuning.Thrower.ThrowTimeout)

	assert.Equal(t, model.ThrowerIdle, f.c.Thrower())
	assert.Equal(t, model.MotionFindBall, f.c.Motion())
}

func TestThrow_ReadyOnlyAfterStableSpeedSamples(t *testing.T) {
	f := newFixture(t)
	f.fb.Distance = 2000
	f.setMotion(t, model.MotionFindBasket)
	f.setThrower(t, model.ThrowerThrowBall)
	f.tick(t)
	speed := f.c.AiState().LastThrow.Speed
	assert.Zero(t, f.c.AiState().Drive.Forward)

	f.fb.Speed5 = speed
	for i := 0; i < f.tuning.Thrower.StableSamples; i++ {
		f.tick(t)
	}
	require.True(t, f.c.throw.ready)

	f.tick(t)
	assert.Equal(t, f.tuning.FindBasket.ThrowForward, f.c.AiState().Drive.Forward)
}

func TestBasketThresholds_FollowVisibleBaskets(t *testing.T) {
	f := newFixture(t)
	f.setMotion(t, model.MotionFindBasket)
	f.tick(t)

	f.c.HandleVision(messages.Vision{Baskets: []messages.VisionBasket{visionBasket(640, "magenta", 0.8)}})
	assert.Zero(t, f.c.AiState().Thresholds.BasketBottom)
	require.NotNil(t, f.c.Perception().Basket)

	f.c.HandleVision(messages.Vision{Baskets: []messages.VisionBasket{
		visionBasket(640, "magenta", 0.8),
		visionBasket(200, "blue", 0.7),
	}})
	th := f.c.AiState().Thresholds
	assert.Equal(t, f.tuning.Perception.BasketBottomThreshold, th.BasketBottom)
	assert.Equal(t, f.tuning.Perception.OtherBasketBottomThreshold, th.OtherBasketBottom)
}

func TestDriveToBall_SpeedsStayWithinRampedLimits(t *testing.T) {
	f := newFixture(t)
	f.setMotion(t, model.MotionDriveToBall)
	f.c.HandleVision(messages.Vision{Balls: []messages.VisionBall{visionBall(100, 200)}})

	dt := f.tuning.DriveToBall
	for i := 0; i < 40; i++ {
		f.advance(t, 50*time.Millisecond)
		require.Equal(t, model.MotionDriveToBall, f.c.Motion())

		d := f.c.AiState().Drive
		assert.LessOrEqual(t, math.Abs(d.Forward), f.c.drive.maxForward+1e-9)
		assert.LessOrEqual(t, math.Abs(d.Rotation), f.c.drive.maxRotation+1e-9)
		assert.LessOrEqual(t, f.c.drive.maxForward, dt.MaxForward)
		assert.LessOrEqual(t, f.c.drive.maxRotation, dt.MaxRotation)
		if i == 0 {
			assert.InDelta(t, dt.MinForward, f.c.drive.maxForward, 1e-9)
		}
	}
	assert.Equal(t, dt.MaxForward, f.c.drive.maxForward)
	assert.Greater(t, f.c.AiState().Drive.Rotation, 0.0, "ball on the left turns left")
}

func TestDriveToBall_WatchdogReturnsToFindBall(t *testing.T) {
	f := newFixture(t)
	f.setMotion(t, model.MotionDriveToBall)
	f.c.HandleVision(messages.Vision{Balls: []messages.VisionBall{visionBall(100, 200)}})
	f.tick(t)
	f.c.HandleVision(messages.Vision{})
	require.NotNil(t, f.c.Perception().LastClosestBall)

	f.advance(t, f.tuning.DriveToBall.Timeout)

	assert.Equal(t, model.MotionFindBall, f.c.Motion())
}

func TestDriveToBall_CenteredBallHeadsForBasketOrObstacle(t *testing.T) {
	tests := []struct {
		name  string
		ahead messages.StraightAhead
		want  model.MotionState
	}{
		{"clear", messages.StraightAhead{Driveability: 1}, model.MotionFindBasket},
		{"blocked", messages.StraightAhead{Driveability: 0.2}, model.MotionMoveBallAwayFromObstacle},
		{"side obstacle", messages.StraightAhead{Driveability: 1, LeftSideMetric: 0.6}, model.MotionMoveBallAwayFromObstacle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.setMotion(t, model.MotionDriveToBall)
			b := visionBall(f.tuning.Frame.CenterX(), f.tuning.DriveToBall.TargetY)
			b.StraightAhead = tt.ahead
			f.c.HandleVision(messages.Vision{Balls: []messages.VisionBall{b}})

			f.tick(t)

			assert.Equal(t, tt.want, f.c.Motion())
		})
	}
}

func TestDriveToBall_GrabsWhenBasketBehindBall(t *testing.T) {
	f := newFixture(t)
	f.setMotion(t, model.MotionDriveToBall)
	cx := f.tuning.Frame.CenterX()
	f.c.HandleVision(messages.Vision{
		Balls:   []messages.VisionBall{visionBall(cx, f.tuning.DriveToBall.TargetY)},
		Baskets: []messages.VisionBasket{visionBasket(cx+20, "magenta", 0.8)},
	})

	f.tick(t)

	assert.Equal(t, model.MotionDriveGrabBall, f.c.Motion())
	assert.Equal(t, model.ThrowerGrabBall, f.c.Thrower())
}

func TestGrabTimeout_NudgesThenSearches(t *testing.T) {
	f := newFixture(t)
	f.setMotion(t, model.MotionDriveGrabBall)
	f.tick(t)

	f.advance(t, f.tuning.GrabBall.Timeout)
	assert.Equal(t, model.MotionNudgeBall, f.c.Motion())
	assert.Equal(t, model.ThrowerIdle, f.c.Thrower())
	assert.InDelta(t, f.tuning.Nudge.Rotation, math.Abs(f.c.AiState().Drive.Rotation), 1e-9)

	f.advance(t, f.tuning.Nudge.Duration)
	assert.Equal(t, model.MotionFindBall, f.c.Motion())
}

func TestGrabTimeout_BallAlreadyOnSensorDrivesWithIt(t *testing.T) {
	f := newFixture(t)
	f.fb.Ball1 = true
	f.tick(t)

	f.setMotion(t, model.MotionDriveGrabBall)
	f.tick(t)
	require.Equal(t, model.ThrowerGrabBall, f.c.Thrower())
	require.False(t, f.c.mainboard.GrabEdge())

	f.advance(t, f.tuning.GrabBall.Timeout)

	assert.Equal(t, model.MotionDriveWithBall, f.c.Motion())
	assert.Equal(t, model.ThrowerHoldBall, f.c.Thrower())

	f.advance(t, f.tuning.GrabBall.Timeout)
	assert.Equal(t, model.MotionDriveWithBall, f.c.Motion())
}

func TestFindBasket_Decisions(t *testing.T) {
	cx := config.DefaultTuning().Frame.CenterX()
	tests := []struct {
		name        string
		distance    float64
		reach       float64
		basketX     float64
		wantMotion  model.MotionState
		wantThrower model.ThrowerState
	}{
		{"commits throw in range", 2000, 0, cx, model.MotionFindBasket, model.ThrowerThrowBall},
		{"re-approaches when too close", 500, 0, cx, model.MotionDriveGrabBall, model.ThrowerGrabBall},
		{"holds beyond max throw distance", 5500, 0, cx, model.MotionFindBasket, model.ThrowerIdle},
		{"holds while basket off centre", 2000, 0, cx + 100, model.MotionFindBasket, model.ThrowerIdle},
		{"nudges when reach exceeds limit", 2000, 450, cx, model.MotionNudgeBall, model.ThrowerIdle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.fb.Distance = tt.distance
			f.c.HandleVision(messages.Vision{
				Balls:   []messages.VisionBall{visionBall(cx, 850)},
				Baskets: []messages.VisionBasket{visionBasket(tt.basketX, "magenta", 0.8)},
				Metrics: messages.VisionMetrics{StraightAhead: messages.StraightAhead{Driveability: 1, Reach: tt.reach}},
			})
			f.setMotion(t, model.MotionFindBasket)

			f.tick(t)

			assert.Equal(t, tt.wantMotion, f.c.Motion())
			assert.Equal(t, tt.wantThrower, f.c.Thrower())
			if tt.wantThrower == model.ThrowerThrowBall {
				assert.Len(t, f.rec.throws, 1)
			} else {
				assert.Empty(t, f.rec.throws)
			}
		})
	}
}

func TestFindBasket_TimeoutSplitsOnDistance(t *testing.T) {
	tests := []struct {
		name        string
		distance    float64
		wantMotion  model.MotionState
		wantThrower model.ThrowerState
	}{
		{"far discards ball", 3500, model.MotionGetRidOfBall, model.ThrowerThrowBallAway},
		{"near retries grab", 1000, model.MotionDriveGrabBall, model.ThrowerGrabBall},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.fb.Distance = tt.distance
			f.c.HandleVision(messages.Vision{Balls: []messages.VisionBall{visionBall(f.tuning.Frame.CenterX(), 500)}})
			f.setMotion(t, model.MotionFindBasket)
			f.tick(t)
			require.Equal(t, model.MotionFindBasket, f.c.Motion())

			f.advance(t, f.tuning.FindBasket.Timeout)

			assert.Equal(t, tt.wantMotion, f.c.Motion())
			assert.Equal(t, tt.wantThrower, f.c.Thrower())
		})
	}
}

func TestGetRidOfBall_LostBallReturnsToFindBall(t *testing.T) {
	f := newFixture(t)
	f.c.HandleVision(messages.Vision{Balls: []messages.VisionBall{visionBall(f.tuning.Frame.CenterX(), 500)}})
	f.setMotion(t, model.MotionGetRidOfBall)
	f.tick(t)
	require.Equal(t, model.ThrowerThrowBallAway, f.c.Thrower())

	for i := 0; i < f.tuning.Perception.BallMissLimit-1; i++ {
		f.c.HandleVision(messages.Vision{})
	}
	f.tick(t)
	require.Equal(t, model.MotionGetRidOfBall, f.c.Motion(), "still driving at the last seen ball")

	f.c.HandleVision(messages.Vision{})
	f.tick(t)

	assert.Equal(t, model.MotionFindBall, f.c.Motion())
	assert.Equal(t, model.ThrowerIdle, f.c.Thrower())
}

func TestThrowBallAway_CompletesOnBallThrown(t *testing.T) {
	tests := []struct {
		name       string
		vision     messages.Vision
		motion     model.MotionState
		wantMotion model.MotionState
	}{
		{
			name:       "discarding a ball",
			vision:     messages.Vision{Balls: []messages.VisionBall{visionBall(640, 500)}},
			motion:     model.MotionGetRidOfBall,
			wantMotion: model.MotionGetRidOfBall,
		},
		{
			name:       "edge too close without basket",
			vision:     messages.Vision{Metrics: messages.VisionMetrics{BorderY: 1000}},
			motion:     model.MotionDriveWithBall,
			wantMotion: model.MotionNudgeBall,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.fb.Ball2 = true
			f.c.HandleVision(tt.vision)
			f.setMotion(t, tt.motion)

			f.tick(t)
			require.Equal(t, tt.wantMotion, f.c.Motion())
			require.Equal(t, model.ThrowerThrowBallAway, f.c.Thrower())
			assert.Equal(t, f.tuning.Thrower.DiscardSpeed, f.c.AiState().Speeds[4])

			f.tick(t)
			require.Equal(t, model.ThrowerThrowBallAway, f.c.Thrower(), "waits for the ball to leave")

			f.fb.Ball2 = false
			f.tick(t)

			assert.Equal(t, model.ThrowerIdle, f.c.Thrower())
			assert.Equal(t, model.MotionFindBall, f.c.Motion())
			assert.False(t, f.c.Mainboard().BallThrown)
		})
	}
}

func TestDriveWithBall_EjectsWhenCloseToBasket(t *testing.T) {
	f := newFixture(t)
	f.setMotion(t, model.MotionDriveWithBall)
	f.fb.Distance = 150
	f.fb.Ball1 = true
	f.c.HandleVision(messages.Vision{Baskets: []messages.VisionBasket{visionBasket(f.tuning.Frame.CenterX(), "magenta", 0.8)}})

	f.tick(t)
	require.Equal(t, model.ThrowerEjectBall, f.c.Thrower())
	assert.Equal(t, f.tuning.Thrower.EjectStartSpeed, f.c.AiState().Speeds[4])

	f.advance(t, time.Second)
	want := math.Max(f.tuning.Thrower.EjectStartSpeed-f.tuning.Thrower.EjectRamp, f.tuning.Thrower.EjectMinSpeed)
	assert.InDelta(t, want, f.c.AiState().Speeds[4], 1e-9)

	f.fb.Ball1 = false
	f.tick(t)
	assert.Equal(t, model.ThrowerIdle, f.c.Thrower())
	assert.Equal(t, model.MotionFindBall, f.c.Motion())
}

func TestDriveWithBall_SearchesAfterBasketLost(t *testing.T) {
	f := newFixture(t)
	f.setMotion(t, model.MotionDriveWithBall)
	f.tick(t)
	assert.Zero(t, f.c.AiState().Drive.Rotation)

	f.advance(t, f.tuning.WithBall.BasketLostTimeout)

	assert.True(t, f.c.withBall.searching)
	assert.Equal(t, f.tuning.WithBall.SearchRotation, f.c.AiState().Drive.Rotation)
}

func TestCheckBalls_GivesUpAfterIterations(t *testing.T) {
	f := newFixture(t)
	cand := model.NewBallObservation(200, 600, 40, 40, [2]float64{0.9, 0.9}, model.StraightAhead{})
	f.c.perception.PotentialNextClosestBall = &cand
	f.setMotion(t, model.MotionCheckBalls)
	f.tick(t)
	assert.Greater(t, f.c.AiState().Drive.Rotation, 0.0)

	for i := 0; i < 10 && f.c.Motion() == model.MotionCheckBalls; i++ {
		f.advance(t, f.tuning.CheckBalls.Duration)
	}

	assert.Equal(t, model.MotionFindBall, f.c.Motion())
	assert.Equal(t, f.tuning.CheckBalls.Iterations, f.c.checkBalls.iteration)
	assert.Nil(t, f.c.Perception().PotentialNextClosestBall)
}

func TestCheckBalls_StopsWhenFacingABall(t *testing.T) {
	f := newFixture(t)
	cand := model.NewBallObservation(200, 600, 40, 40, [2]float64{0.9, 0.9}, model.StraightAhead{})
	f.c.perception.PotentialNextClosestBall = &cand
	f.setMotion(t, model.MotionCheckBalls)
	f.tick(t)

	f.c.HandleVision(messages.Vision{Balls: []messages.VisionBall{visionBall(f.tuning.Frame.CenterX(), 600)}})
	f.advance(t, f.tuning.CheckBalls.Duration)

	assert.Equal(t, 1, f.c.checkBalls.iteration)
	assert.Nil(t, f.c.Perception().PotentialNextClosestBall)
	assert.NotEqual(t, model.MotionCheckBalls, f.c.Motion())
}

func TestFindBall_ScanDecaysThreshold(t *testing.T) {
	f := newFixture(t)
	f.setMotion(t, model.MotionFindBall)
	f.tick(t)
	first := f.tuning.FindBall.Scan[0]
	assert.Equal(t, first.Rotation, f.c.AiState().Drive.Rotation)

	f.advance(t, first.Duration)

	assert.Zero(t, f.c.AiState().Drive.Rotation)
	assert.Equal(t, f.tuning.Perception.BallTopArcThreshold/2, f.c.AiState().Thresholds.BallTopArc)
}

func TestFindBall_FallsBackToLandmarkDrive(t *testing.T) {
	f := newFixture(t, func(d *Dependencies) {
		d.Tuning.FindBall.Scan = []config.ScanStep{{Rotation: 1, Duration: 10 * time.Millisecond}}
		d.Tuning.FindBall.ScanPause = 10 * time.Millisecond
		d.Tuning.FindBall.LoopLimit = 2
	})
	f.setMotion(t, model.MotionFindBall)
	f.tick(t)

	for i := 0; i < 20; i++ {
		f.advance(t, 10*time.Millisecond)
	}

	assert.True(t, f.c.scan.landmark)
	assert.Equal(t, f.tuning.FindBall.LandmarkRotation, f.c.AiState().Drive.Rotation)
}

func TestFindBall_EdgeTooCloseNudges(t *testing.T) {
	f := newFixture(t)
	f.setMotion(t, model.MotionFindBall)
	f.c.HandleVision(messages.Vision{Metrics: messages.VisionMetrics{BorderY: 1000}})

	f.tick(t)

	assert.Equal(t, model.MotionNudgeBall, f.c.Motion())
}

func TestSetState_SameStateRestartsEntry(t *testing.T) {
	f := newFixture(t)
	f.setMotion(t, model.MotionFindBall)
	f.tick(t)
	f.advance(t, f.tuning.FindBall.Scan[0].Duration)
	require.Zero(t, f.c.AiState().Drive.Rotation)

	f.setMotion(t, model.MotionFindBall)
	f.tick(t)

	assert.Equal(t, f.tuning.FindBall.Scan[0].Rotation, f.c.AiState().Drive.Rotation)
	assert.Equal(t, 1, f.c.timers.count(motionMachine))
}

func TestTransition_DiscardsPendingBallThrown(t *testing.T) {
	f := newFixture(t)
	f.c.mainboard.BallThrown = true

	f.setMotion(t, model.MotionFindBall)

	assert.False(t, f.c.Mainboard().BallThrown)
}

func TestTransition_CancelsOutgoingTimers(t *testing.T) {
	f := newFixture(t)
	f.setMotion(t, model.MotionNudgeBall)
	f.tick(t)

	f.setMotion(t, model.MotionIdle)
	f.advance(t, time.Minute)

	assert.Equal(t, model.MotionIdle, f.c.Motion())
}

func TestMoveBallAway_ExitReturnsThrowerToIdle(t *testing.T) {
	f := newFixture(t)
	f.setMotion(t, model.MotionMoveBallAwayFromObstacle)

	f.tick(t)

	assert.Equal(t, model.MotionFindBall, f.c.Motion())
	assert.Equal(t, model.ThrowerIdle, f.c.Thrower())
}

func TestMoveBallAway_RampsRotation(t *testing.T) {
	f := newFixture(t)
	b := visionBall(640, 800)
	b.StraightAhead = messages.StraightAhead{Driveability: 0.3, RightSideMetric: 0.5}
	f.c.HandleVision(messages.Vision{Balls: []messages.VisionBall{b}})
	f.setMotion(t, model.MotionMoveBallAwayFromObstacle)
	f.tick(t)
	require.Equal(t, model.ThrowerPushBall, f.c.Thrower())
	assert.Zero(t, f.c.AiState().Drive.Rotation)

	f.advance(t, f.tuning.MoveAway.RampWindow/2)
	assert.InDelta(t, f.tuning.MoveAway.MaxRotation/2, f.c.AiState().Drive.Rotation, 1e-9)

	f.advance(t, f.tuning.MoveAway.RampWindow)
	assert.InDelta(t, f.tuning.MoveAway.MaxRotation, f.c.AiState().Drive.Rotation, 1e-9)
}

func TestManualOverride_SuppressesMainboardCommand(t *testing.T) {
	f := newFixture(t)
	f.setMotion(t, model.MotionFindBall)
	require.NoError(t, f.c.HandleCommand(command(messages.CommandSetManualControl, true)))

	f.tick(t)

	assert.Empty(t, f.pub.commands)
	assert.Len(t, f.pub.states, 1)
	assert.Equal(t, model.MotionIdle, f.c.Motion())
	assert.True(t, f.c.Snapshot().IsManualOverride)
}

func TestMainboardCommand_CarriesWheelSpeedsAndLED(t *testing.T) {
	f := newFixture(t)
	f.setMotion(t, model.MotionFindBall)

	f.tick(t)

	cmd := f.pub.lastCommand(t)
	ai := f.c.AiState()
	for i := 0; i < 5; i++ {
		assert.Equal(t, int(math.Round(ai.Speeds[i])), cmd.Speeds[i])
	}
	assert.NotZero(t, cmd.Speeds[0])
	assert.Equal(t, "A", cmd.FieldID)
	assert.Equal(t, "B", cmd.RobotID)
	assert.Equal(t, string(model.LEDMagenta), cmd.Led)
	assert.Equal(t, 1, f.rec.ticks)
}

func TestPublishFailure_KeepsAckPending(t *testing.T) {
	f := newFixture(t, func(d *Dependencies) { d.Robot.IsCompetition = true })
	f.pub.err = errors.New("network down")
	f.fb.RefereeCommand = model.RefereePrepare

	f.tick(t)
	assert.True(t, f.c.AiState().ShouldSendAck)

	f.pub.err = nil
	f.tick(t)
	assert.True(t, f.pub.lastCommand(t).ShouldSendAck)
	assert.False(t, f.c.AiState().ShouldSendAck)
}

func TestReferee_IgnoredOutsideCompetition(t *testing.T) {
	f := newFixture(t)
	f.fb.RefereeCommand = model.RefereeStart

	f.tick(t)

	assert.Equal(t, model.MotionIdle, f.c.Motion())
}

func TestReferee_StartAndStopInCompetition(t *testing.T) {
	f := newFixture(t, func(d *Dependencies) { d.Robot.IsCompetition = true })

	f.fb.RefereeCommand = model.RefereeStart
	f.tick(t)
	assert.Equal(t, model.MotionFindBall, f.c.Motion())

	f.fb.RefereeCommand = model.RefereeStop
	f.tick(t)
	assert.Equal(t, model.MotionIdle, f.c.Motion())
	assert.Equal(t, model.ThrowerIdle, f.c.Thrower())
}

func TestButton_LongPressTogglesBasketColour(t *testing.T) {
	f := newFixture(t)
	f.fb.Button = string(model.ButtonPressedLong)

	f.tick(t)

	assert.Equal(t, model.BasketBlue, f.c.AiState().BasketColour)
	assert.Equal(t, string(model.LEDBlue), f.pub.lastCommand(t).Led)
}

func TestButton_PressIgnoredWhileRunningInCompetition(t *testing.T) {
	f := newFixture(t, func(d *Dependencies) { d.Robot.IsCompetition = true })
	f.fb.Button = string(model.ButtonPressed)
	f.tick(t)
	require.Equal(t, model.MotionFindBall, f.c.Motion())

	f.fb.Button = string(model.ButtonNone)
	f.tick(t)
	f.fb.Button = string(model.ButtonPressedLong)
	f.tick(t)

	assert.Equal(t, model.BasketMagenta, f.c.AiState().BasketColour)
}

func TestHandleCommand_RejectsUnknownState(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.c.HandleCommand(command(messages.CommandSetMotionState, "DANCE")), ErrUnknownState)
	assert.Error(t, f.c.HandleCommand(command(messages.CommandSetManualControl, "yes")))
	assert.ErrorIs(t, f.c.HandleCommand(command("reboot", true)), ErrUnknownCommand)
}

func TestHandleConfiguration(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.c.HandleConfiguration(messages.AiConfiguration{Key: messages.KeyBasketColour, Toggle: true}))
	assert.Equal(t, model.BasketBlue, f.c.AiState().BasketColour)

	require.NoError(t, f.c.HandleConfiguration(configuration(messages.KeyBasketColour, "magenta")))
	assert.Equal(t, model.BasketMagenta, f.c.AiState().BasketColour)

	require.NoError(t, f.c.HandleConfiguration(messages.AiConfiguration{Key: messages.KeyIsCompetition, Toggle: true}))
	assert.True(t, f.c.AiState().IsCompetition)

	require.NoError(t, f.c.HandleConfiguration(configuration(messages.KeyFieldID, "C")))
	assert.Equal(t, "C", f.c.AiState().FieldID)

	require.NoError(t, f.c.HandleConfiguration(configuration(messages.KeyAllowedTechniques, []string{"straight"})))
	assert.Equal(t, []string{"straight"}, f.c.AiState().AllowedTechniques)

	assert.ErrorIs(t, f.c.HandleConfiguration(messages.AiConfiguration{Key: messages.KeyRobotID, Toggle: true}), ErrNotToggleable)
	assert.ErrorIs(t, f.c.HandleConfiguration(configuration("volume", 11)), ErrUnknownKey)
	assert.Error(t, f.c.HandleConfiguration(configuration(messages.KeyIsCompetition, "maybe")))
}

func TestHandleTraining(t *testing.T) {
	f := newFixture(t)
	before := f.calib.Len("lob")

	require.NoError(t, f.c.HandleTraining(messages.Training{
		Event:         messages.EventTrainingData,
		Data:          &messages.TrainingData{Technique: "lob", Distance: 900, Speed: 640, CenterOffset: 3},
		IsPredictable: true,
	}))
	assert.Equal(t, before+1, f.calib.Len("lob"))
	speed, err := f.calib.GetThrowerSpeed("lob", 900)
	require.NoError(t, err)
	assert.Equal(t, 640.0, speed)
	require.Len(t, f.rec.samples, 1)
	assert.True(t, f.rec.samples[0].IsPredictable)

	require.NoError(t, f.c.HandleTraining(messages.Training{Event: messages.EventChangeTechnique, Techniques: []string{"lob"}}))
	assert.Equal(t, []string{"lob"}, f.c.AiState().AllowedTechniques)
}

func TestClose_CancelsTimersAndRejectsFeedback(t *testing.T) {
	f := newFixture(t)
	f.setMotion(t, model.MotionFindBall)
	f.tick(t)
	require.NotZero(t, f.c.timers.count(motionMachine))

	f.c.Close()

	assert.Zero(t, f.c.timers.count(motionMachine))
	assert.ErrorIs(t, f.c.HandleFeedback(f.fb), ErrClosed)
}

func TestRun_ProcessesSubmittedWork(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.c.Run(ctx) }()

	ran := make(chan model.MotionState, 1)
	require.NoError(t, f.c.Submit(func() {
		_ = f.c.HandleCommand(command(messages.CommandSetMotionState, "FIND_BALL"))
		_ = f.c.HandleFeedback(messages.MainboardFeedback{})
		ran <- f.c.Motion()
	}))

	select {
	case got := <-ran:
		assert.Equal(t, model.MotionFindBall, got)
	case <-time.After(time.Second):
		t.Fatal("submitted work did not run")
	}
	assert.Equal(t, "FIND_BALL", f.c.Snapshot().MotionState)
	motion, thrower := f.c.States()
	assert.Equal(t, "FIND_BALL", motion)
	assert.Equal(t, "IDLE", thrower)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestSubmit_FullInbox(t *testing.T) {
	f := newFixture(t, func(d *Dependencies) { d.InboxSize = 1 })

	require.NoError(t, f.c.Submit(func() {}))
	assert.ErrorIs(t, f.c.Submit(func() {}), ErrInboxFull)
}
