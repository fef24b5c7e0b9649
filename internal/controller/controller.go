// Package controller is the decision core: it owns the fused perception and
// mainboard state, runs the motion and thrower state machines once per
// mainboard feedback frame and publishes the resulting mainboard command.
//
// All state is owned by a single goroutine. Inbound messages are turned into
// closures and submitted to its inbox; the Handle* methods run the same logic
// synchronously and are meant for callers already on that goroutine, such as
// tests.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ballbot/robot-ai/internal/calibration"
	"github.com/ballbot/robot-ai/internal/config"
	"github.com/ballbot/robot-ai/internal/kinematics"
	"github.com/ballbot/robot-ai/internal/mainboard"
	"github.com/ballbot/robot-ai/internal/model"
	"github.com/ballbot/robot-ai/internal/perception"
	"github.com/ballbot/robot-ai/internal/sampler"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrInboxFull = errors.New("controller inbox full")
	ErrClosed    = errors.New("controller closed")
)

const defaultInboxSize = 256

// Publisher sends an outbound message on a topic.
type Publisher interface {
	Publish(topic string, payload any) error
}

// Recorder receives telemetry produced by the controller. Implementations must
// not block.
type Recorder interface {
	RecordTick(snap model.Snapshot)
	RecordThrow(rec model.ThrowRecord)
	RecordTrainingSample(sample model.TrainingSample)
}

// Calibrator is the calibration lookup plus online training.
type Calibrator interface {
	calibration.Client
	AddSample(s calibration.Sample)
}

// Dependencies holds everything the controller needs.
type Dependencies struct {
	Tuning      config.Tuning
	Robot       config.RobotConfig
	Kinematics  kinematics.Calculator
	Calibration Calibrator
	Publisher   Publisher
	Recorder    Recorder
	Logger      *slog.Logger
	// Now defaults to time.Now.
	Now       func() time.Time
	SessionID string
	InboxSize int
}

// Controller is the AI actor.
type Controller struct {
	tuning    config.Tuning
	kin       kinematics.Calculator
	calib     Calibrator
	pub       Publisher
	rec       Recorder
	log       *slog.Logger
	now       func() time.Time
	sessionID string

	perception *perception.Fusion
	mainboard  *mainboard.Fusion
	ai         model.AiState

	motion, prevMotion   model.MotionState
	motionReenter        bool
	thrower, prevThrower model.ThrowerState
	throwerReenter       bool
	timers               timerSet
	tickCount            uint64
	lastTick             time.Time
	closed               bool

	scan       scanState
	drive      driveState
	withBall   withBallState
	findBasket findBasketState
	nudge      nudgeState
	moveAway   moveAwayState
	checkBalls checkBallsState
	throw      throwState
	eject      ejectState

	inbox    chan func()
	snapshot atomic.Pointer[model.Snapshot]

	ticks        metric.Int64Counter
	tickDuration metric.Float64Histogram
	transitions  metric.Int64Counter
}

// New builds a controller in IDLE/IDLE with default thresholds.
func New(deps Dependencies) (*Controller, error) {
	if deps.Kinematics == nil {
		return nil, fmt.Errorf("kinematics calculator is required")
	}
	if deps.Calibration == nil {
		return nil, fmt.Errorf("calibration is required")
	}
	if deps.Publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.InboxSize <= 0 {
		deps.InboxSize = defaultInboxSize
	}

	c := &Controller{
		tuning:     deps.Tuning,
		kin:        deps.Kinematics,
		calib:      deps.Calibration,
		pub:        deps.Publisher,
		rec:        deps.Recorder,
		log:        deps.Logger,
		now:        deps.Now,
		sessionID:  deps.SessionID,
		perception: perception.New(deps.Tuning),
		mainboard:  mainboard.New(deps.Tuning.Perception.LidarWindow),
		inbox:      make(chan func(), deps.InboxSize),
	}
	c.ai = model.AiState{
		FieldID:           deps.Robot.FieldID,
		RobotID:           deps.Robot.RobotID,
		IsCompetition:     deps.Robot.IsCompetition,
		BasketColour:      model.ParseBasketColour(deps.Robot.BasketColour),
		AllowedTechniques: append([]string(nil), deps.Robot.AllowedTechniques...),
		Thresholds:        c.perception.DefaultThresholds(),
	}
	c.findBasket.ballY = sampler.NewMin[float64](deps.Tuning.FindBasket.BallWindow)

	if err := c.initMetrics(); err != nil {
		return nil, err
	}

	snap := c.buildSnapshot(c.now())
	c.snapshot.Store(&snap)
	return c, nil
}

// Run processes submitted work until ctx is cancelled, then closes the
// controller.
func (c *Controller) Run(ctx context.Context) error {
	c.log.Info("Controller started", "motion", c.motion.String(), "thrower", c.thrower.String())
	for {
		select {
		case <-ctx.Done():
			c.drain()
			c.Close()
			return nil
		case fn := <-c.inbox:
			fn()
		}
	}
}

func (c *Controller) drain() {
	for {
		select {
		case fn := <-c.inbox:
			fn()
		default:
			return
		}
	}
}

// Submit queues fn to run on the controller goroutine. It never blocks.
func (c *Controller) Submit(fn func()) error {
	select {
	case c.inbox <- fn:
		return nil
	default:
		return ErrInboxFull
	}
}

// Close cancels every pending timer. Later feedback frames are ignored.
func (c *Controller) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.timers.cancelAll()
	c.log.Info("Controller closed", "ticks", c.tickCount)
}

// Snapshot returns the telemetry view published on the last tick. It is safe to
// call from any goroutine.
func (c *Controller) Snapshot() model.Snapshot {
	return *c.snapshot.Load()
}

// States returns the current state names for log enrichment. It is safe to
// call from any goroutine.
func (c *Controller) States() (motion, thrower string) {
	snap := c.snapshot.Load()
	return snap.MotionState, snap.ThrowerState
}

// Motion returns the active motion state. Controller goroutine only.
func (c *Controller) Motion() model.MotionState { return c.motion }

// Thrower returns the active thrower state. Controller goroutine only.
func (c *Controller) Thrower() model.ThrowerState { return c.thrower }

// AiState returns a copy of the output and configuration state. Controller
// goroutine only.
func (c *Controller) AiState() model.AiState {
	ai := c.ai
	ai.AllowedTechniques = append([]string(nil), c.ai.AllowedTechniques...)
	return ai
}

// Perception exposes the fused perception state. Controller goroutine only.
func (c *Controller) Perception() *perception.State { return &c.perception.State }

// Mainboard exposes the fused mainboard state. Controller goroutine only.
func (c *Controller) Mainboard() *mainboard.State { return &c.mainboard.State }

func (c *Controller) buildSnapshot(now time.Time) model.Snapshot {
	return model.Snapshot{
		Time:              now,
		SessionID:         c.sessionID,
		Tick:              c.tickCount,
		MotionState:       c.motion.String(),
		ThrowerState:      c.thrower.String(),
		Speeds:            c.ai.Speeds,
		Drive:             c.ai.Drive,
		FieldID:           c.ai.FieldID,
		RobotID:           c.ai.RobotID,
		BasketColour:      c.ai.BasketColour,
		IsCompetition:     c.ai.IsCompetition,
		IsManualOverride:  c.ai.IsManualOverride,
		AllowedTechniques: append([]string(nil), c.ai.AllowedTechniques...),
		Thresholds:        c.ai.Thresholds,
		LastThrow:         c.ai.LastThrow,
		Perception:        c.perception.Snapshot(),
		Mainboard:         c.mainboard.Snapshot(),
	}
}

func (c *Controller) after(owner machine, d time.Duration, fn func()) uint64 {
	return c.timers.after(owner, c.now().Add(d), fn)
}
