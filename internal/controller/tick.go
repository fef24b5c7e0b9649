package controller

import (
	"context"
	"time"

	"github.com/ballbot/robot-ai/internal/model"
)

// setMotion moves the motion machine to next. A pending ballThrown is
// discarded, the outgoing state's reset hook runs, and the entry hook of next
// runs at the start of the following tick. Setting the current state again
// restarts it.
func (c *Controller) setMotion(next model.MotionState) {
	c.discardBallThrown(motionMachine, next.String())
	c.resetMotion(c.motion)
	if next == c.motion {
		c.motionReenter = true
	}
	c.log.Debug("Motion transition", "from", c.motion.String(), "to", next.String())
	c.motion = next
	c.countTransition(motionMachine, next.String())
}

// setThrower is setMotion for the thrower machine.
func (c *Controller) setThrower(next model.ThrowerState) {
	c.discardBallThrown(throwerMachine, next.String())
	c.resetThrower(c.thrower)
	if next == c.thrower {
		c.throwerReenter = true
	}
	c.log.Debug("Thrower transition", "from", c.thrower.String(), "to", next.String())
	c.thrower = next
	c.countTransition(throwerMachine, next.String())
}

func (c *Controller) discardBallThrown(owner machine, to string) {
	if c.mainboard.BallThrown {
		c.log.Debug("Discarding pending ballThrown on transition", "machine", owner.String(), "to", to)
		c.mainboard.BallThrown = false
	}
}

// tick runs one decision step: due timers, both machines, then the command.
func (c *Controller) tick() {
	start := c.now()
	c.tickCount++
	c.lastTick = start

	c.timers.runDue(start)
	c.ai.Drive = model.Drive{}
	c.stepMotion()
	c.stepThrower()
	c.emit(start)

	c.ticks.Add(context.Background(), 1)
	c.tickDuration.Record(context.Background(), time.Since(start).Seconds())
}

func (c *Controller) stepMotion() {
	if c.motion != c.prevMotion || c.motionReenter {
		c.prevMotion = c.motion
		c.motionReenter = false
		entering := c.motion
		c.enterMotion(entering)
		if c.motion != entering || c.motionReenter {
			return
		}
	}
	c.runMotion(c.motion)
}

func (c *Controller) stepThrower() {
	if c.thrower != c.prevThrower || c.throwerReenter {
		c.prevThrower = c.thrower
		c.throwerReenter = false
		entering := c.thrower
		c.enterThrower(entering)
		if c.thrower != entering || c.throwerReenter {
			c.ai.Speeds[4] = 0
			return
		}
	}
	c.runThrower(c.thrower)
}

func (c *Controller) enterMotion(s model.MotionState) {
	switch s {
	case model.MotionIdle:
		c.enterIdle()
	case model.MotionFindBall:
		c.enterFindBall()
	case model.MotionDriveToBall:
		c.enterDriveToBall()
	case model.MotionDriveGrabBall:
		c.enterDriveGrabBall()
	case model.MotionDriveWithBall:
		c.enterDriveWithBall()
	case model.MotionFindBasket:
		c.enterFindBasket()
	case model.MotionGetRidOfBall:
		c.enterGetRidOfBall()
	case model.MotionNudgeBall:
		c.enterNudgeBall()
	case model.MotionMoveBallAwayFromObstacle:
		c.enterMoveBallAway()
	case model.MotionCheckBalls:
		c.enterCheckBalls()
	}
}

func (c *Controller) runMotion(s model.MotionState) {
	switch s {
	case model.MotionIdle:
		c.runIdle()
	case model.MotionFindBall:
		c.runFindBall()
	case model.MotionDriveToBall:
		c.runDriveToBall()
	case model.MotionDriveGrabBall:
		c.runDriveGrabBall()
	case model.MotionDriveWithBall:
		c.runDriveWithBall()
	case model.MotionFindBasket:
		c.runFindBasket()
	case model.MotionGetRidOfBall:
		c.runGetRidOfBall()
	case model.MotionNudgeBall:
		c.runNudgeBall()
	case model.MotionMoveBallAwayFromObstacle:
		c.runMoveBallAway()
	case model.MotionCheckBalls:
		c.runCheckBalls()
	}
}

// resetMotion is the exit hook of s. Every state drops its own timers.
func (c *Controller) resetMotion(s model.MotionState) {
	c.timers.cancelOwner(motionMachine)
	switch s {
	case model.MotionDriveWithBall:
		c.withBall = withBallState{}
	case model.MotionFindBasket:
		if c.thrower == model.ThrowerPushBall {
			c.setThrower(model.ThrowerIdle)
		}
		c.findBasket.ballY.Reset()
	case model.MotionGetRidOfBall:
		if c.thrower == model.ThrowerThrowBallAway {
			c.setThrower(model.ThrowerIdle)
		}
	case model.MotionMoveBallAwayFromObstacle:
		if c.thrower == model.ThrowerPushBall {
			c.setThrower(model.ThrowerIdle)
		}
	case model.MotionCheckBalls:
		c.perception.ClearCandidate()
	}
}

func (c *Controller) enterThrower(s model.ThrowerState) {
	switch s {
	case model.ThrowerThrowBall:
		c.enterThrowBall()
	case model.ThrowerEjectBall:
		c.enterEjectBall()
	}
}

func (c *Controller) runThrower(s model.ThrowerState) {
	switch s {
	case model.ThrowerIdle, model.ThrowerHoldBall:
		c.ai.Speeds[4] = 0
	case model.ThrowerThrowBall:
		c.runThrowBall()
	case model.ThrowerGrabBall:
		c.runGrabBall()
	case model.ThrowerEjectBall:
		c.runEjectBall()
	case model.ThrowerThrowBallAway:
		c.runThrowBallAway()
	case model.ThrowerPushBall:
		c.ai.Speeds[4] = c.tuning.Thrower.PushSpeed
	}
}

func (c *Controller) resetThrower(s model.ThrowerState) {
	c.timers.cancelOwner(throwerMachine)
	switch s {
	case model.ThrowerThrowBall:
		c.throw = throwState{}
	case model.ThrowerEjectBall:
		c.eject = ejectState{}
	}
}
