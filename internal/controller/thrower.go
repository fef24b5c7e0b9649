package controller

import (
	"encoding/json"
	"math"
	"slices"
	"time"

	"github.com/ballbot/robot-ai/internal/model"
)

type throwState struct {
	speed       float64
	stable      int
	ready       bool
	thrownTicks int
}

type ejectState struct {
	startedAt time.Time
}

// techniqueFor asks calibration for a technique and falls back to the first
// allowed one when the suggestion is not allowed.
func (c *Controller) techniqueFor(distance float64) string {
	tech := c.calib.GetThrowerTechnique(distance)
	allowed := c.ai.AllowedTechniques
	if len(allowed) == 0 || slices.Contains(allowed, tech) {
		return tech
	}
	c.log.Debug("Technique not allowed, falling back", "suggested", tech, "fallback", allowed[0])
	return allowed[0]
}

// THROW_BALL

func (c *Controller) enterThrowBall() {
	dist := c.mainboard.FilteredLidarDistance
	tech := c.techniqueFor(dist)

	speed, err := c.calib.GetThrowerSpeed(tech, dist)
	if err != nil {
		c.log.Error("No thrower speed for throw, aborting", "technique", tech, "distance", dist, "error", err)
		c.setThrower(model.ThrowerIdle)
		c.setMotion(model.MotionFindBall)
		return
	}

	var angle float64
	if basket := c.perception.Basket; basket != nil {
		angle = (basket.CX - c.tuning.Frame.CenterX()) * c.tuning.Thrower.RadiansPerPixel
	}
	offset, err := c.calib.GetCenterOffset(tech, dist, angle)
	if err != nil {
		c.log.Warn("No center offset for throw", "technique", tech, "error", err)
		offset = 0
	}

	c.ai.LastThrow = model.ThrowTelemetry{
		Technique:    tech,
		Speed:        speed,
		Distance:     dist,
		Angle:        angle,
		CenterOffset: offset,
	}
	c.throw = throwState{speed: speed, thrownTicks: -1}
	c.log.Info("Throw committed", "technique", tech, "speed", speed, "distance", dist, "offset", offset)
	c.recordThrow()

	c.after(throwerMachine, c.tuning.Thrower.ThrowTimeout, func() {
		c.log.Info("Throw timed out")
		c.setThrower(model.ThrowerIdle)
		c.setMotion(model.MotionFindBall)
	})
}

func (c *Controller) recordThrow() {
	if c.rec == nil {
		return
	}
	snap, err := json.Marshal(c.buildSnapshot(c.now()))
	if err != nil {
		c.log.Warn("Failed to encode throw snapshot", "error", err)
	}
	c.rec.RecordThrow(model.ThrowRecord{
		SessionID:    c.sessionID,
		Time:         c.now(),
		Technique:    c.ai.LastThrow.Technique,
		Speed:        c.ai.LastThrow.Speed,
		Distance:     c.ai.LastThrow.Distance,
		Angle:        c.ai.LastThrow.Angle,
		CenterOffset: c.ai.LastThrow.CenterOffset,
		BasketColour: string(c.ai.BasketColour),
		Snapshot:     snap,
	})
}

func (c *Controller) runThrowBall() {
	t := c.tuning.Thrower
	c.ai.Speeds[4] = c.throw.speed

	if math.Abs(c.mainboard.Speeds[4]-c.throw.speed) < t.SpeedTolerance {
		c.throw.stable++
	} else {
		c.throw.stable = 0
	}
	c.throw.ready = c.throw.stable >= t.StableSamples

	if c.throw.thrownTicks < 0 && c.mainboard.ConsumeBallThrown() {
		c.log.Debug("Ball left the thrower")
		c.throw.thrownTicks = 0
	}
	if c.throw.thrownTicks < 0 {
		return
	}
	c.throw.thrownTicks++
	if c.throw.thrownTicks > t.PostThrowTicks {
		c.setThrower(model.ThrowerIdle)
		c.setMotion(model.MotionFindBall)
	}
}

// GRAB_BALL

func (c *Controller) runGrabBall() {
	c.ai.Speeds[4] = c.tuning.Thrower.GrabSpeed
	if c.mainboard.GrabEdge() {
		c.setThrower(model.ThrowerHoldBall)
		c.setMotion(model.MotionDriveWithBall)
	}
}

// EJECT_BALL

func (c *Controller) enterEjectBall() {
	c.eject = ejectState{startedAt: c.now()}
}

func (c *Controller) runEjectBall() {
	t := c.tuning.Thrower
	elapsed := c.now().Sub(c.eject.startedAt).Seconds()
	c.ai.Speeds[4] = math.Max(t.EjectStartSpeed-t.EjectRamp*elapsed, t.EjectMinSpeed)
	if c.mainboard.EjectEdge() {
		c.setThrower(model.ThrowerIdle)
		c.setMotion(model.MotionFindBall)
	}
}

// THROW_BALL_AWAY

func (c *Controller) runThrowBallAway() {
	c.ai.Speeds[4] = c.tuning.Thrower.DiscardSpeed
	if c.mainboard.ConsumeBallThrown() {
		c.setThrower(model.ThrowerIdle)
		c.setMotion(model.MotionFindBall)
	}
}
