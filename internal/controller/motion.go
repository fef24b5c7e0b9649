package controller

import (
	"math"
	"time"

	"github.com/ballbot/robot-ai/internal/model"
	"github.com/ballbot/robot-ai/internal/sampler"
)

type scanState struct {
	dir      float64
	step     int
	loop     int
	rotation float64
	landmark bool
}

type driveState struct {
	startedAt   time.Time
	stall       float64
	lastY       float64
	maxForward  float64
	maxRotation float64
}

type withBallState struct {
	straight  bool
	searching bool
	lostTimer uint64
}

type findBasketState struct {
	ballY   *sampler.Sampler[float64]
	pushing bool
}

type nudgeState struct {
	dir float64
}

type moveAwayState struct {
	startedAt time.Time
	dir       float64
}

type checkBallsState struct {
	iteration int
	dir       float64
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func clampAbs(v, limit float64) float64 {
	return clamp(v, -limit, limit)
}

// awayFrom is the rotation sign that turns away from the more obstructed side.
func awayFrom(ahead model.StraightAhead) float64 {
	if ahead.SideMetric() > 0 {
		return 1
	}
	return -1
}

// towards is the rotation sign that turns towards image column x.
func (c *Controller) towards(x float64) float64 {
	if x > c.tuning.Frame.CenterX() {
		return -1
	}
	return 1
}

// IDLE

func (c *Controller) enterIdle() {
	c.ai.Thresholds = c.perception.DefaultThresholds()
	if c.thrower != model.ThrowerIdle {
		c.setThrower(model.ThrowerIdle)
	}
}

func (c *Controller) runIdle() {}

// FIND_BALL

func (c *Controller) enterFindBall() {
	c.scan = scanState{dir: 1}
	if last := c.perception.LastClosestBall; last != nil {
		c.scan.dir = c.towards(last.CX)
	}
	c.scanStep(0)
}

func (c *Controller) scanStep(i int) {
	t := c.tuning.FindBall
	if len(t.Scan) == 0 {
		c.scan.landmark = true
		return
	}
	step := t.Scan[i]
	c.scan.step = i
	c.scan.rotation = step.Rotation * c.scan.dir
	c.after(motionMachine, step.Duration, func() {
		c.scan.rotation = 0
		c.decayBallThreshold()
		pause := t.ScanPause * time.Duration(c.scan.loop+1)
		c.after(motionMachine, pause, func() {
			next := i + 1
			if next >= len(t.Scan) {
				next = 0
				c.scan.loop++
			}
			if c.scan.loop >= t.LoopLimit {
				c.log.Debug("Ball scan exhausted, driving to landmark", "loops", c.scan.loop)
				c.scan.landmark = true
				return
			}
			c.scanStep(next)
		})
	})
}

// decayBallThreshold halves the top-arc filter, dropping to zero below the floor.
func (c *Controller) decayBallThreshold() {
	th := c.ai.Thresholds.BallTopArc / 2
	if th < c.tuning.FindBall.ThresholdFloor {
		th = 0
	}
	c.ai.Thresholds.BallTopArc = th
}

func (c *Controller) runFindBall() {
	if c.perception.EdgeTooClose() {
		c.setMotion(model.MotionNudgeBall)
		return
	}
	if c.perception.PotentialNextClosestBall != nil {
		c.setMotion(model.MotionCheckBalls)
		return
	}
	if c.perception.ClosestBall != nil {
		c.setMotion(model.MotionDriveToBall)
		return
	}
	if c.scan.landmark {
		c.driveToLandmark()
		return
	}
	c.ai.Drive.Rotation = c.scan.rotation
}

func (c *Controller) driveToLandmark() {
	t := c.tuning.FindBall
	ahead := c.perception.StraightAhead

	landmark := c.perception.Basket
	if landmark == nil {
		landmark = c.perception.OtherBasket
	}
	if landmark == nil || ahead.Driveability < t.LandmarkMinDriveability || c.perception.FilteredReach < t.LandmarkMinReach {
		c.ai.Drive.Rotation = t.LandmarkRotation * float64(c.perception.BasketDirection)
		return
	}
	c.ai.Drive.Forward = t.LandmarkForward * ahead.Driveability
	c.ai.Drive.Rotation = clampAbs((c.tuning.Frame.CenterX()-landmark.CX)*t.LandmarkRotationGain, t.LandmarkRotation)
}

// DRIVE_TO_BALL

func (c *Controller) enterDriveToBall() {
	c.drive = driveState{startedAt: c.now(), stall: 1, lastY: -1}
	c.after(motionMachine, c.tuning.DriveToBall.Timeout, func() {
		c.log.Info("Drive to ball timed out")
		c.setMotion(model.MotionFindBall)
	})
}

func (c *Controller) runDriveToBall() {
	t := c.tuning.DriveToBall
	ball := c.perception.ClosestBall
	visible := ball != nil
	if !visible {
		ball = c.perception.LastClosestBall
	}
	if ball == nil {
		c.setMotion(model.MotionFindBall)
		return
	}

	elapsed := c.now().Sub(c.drive.startedAt).Seconds()
	c.drive.maxForward = math.Min(t.MinForward+t.ForwardRamp*elapsed, t.MaxForward)
	c.drive.maxRotation = math.Min(t.MinRotation+t.RotationRamp*elapsed, t.MaxRotation)

	if ball.CY > t.StallY && c.drive.lastY >= 0 && math.Abs(ball.CY-c.drive.lastY) < t.StallEpsilon {
		c.drive.stall = math.Min(c.drive.stall+t.StallGrowth, t.StallMaxMultiplier)
	} else if ball.CY <= t.StallY {
		c.drive.stall = 1
	}
	c.drive.lastY = ball.CY

	errX := ball.CX - c.tuning.Frame.CenterX()
	errY := t.TargetY - ball.CY
	ahead := ball.StraightAhead

	c.ai.Drive.Forward = clampAbs(errY*t.ForwardGain*c.drive.stall, c.drive.maxForward)
	c.ai.Drive.Rotation = clampAbs(-errX*t.RotationGain, c.drive.maxRotation)
	c.ai.Drive.Side = clampAbs(errX*t.SideGain-ahead.SideMetric()*t.AvoidanceGain, t.MaxSide)

	if !visible {
		return
	}

	basket := c.perception.Basket
	nearBasket := basket != nil && math.Abs(basket.CX-ball.CX) < t.BasketProximity
	grabReady := math.Abs(errX) < t.GrabToleranceX && math.Abs(errY) < t.GrabToleranceY
	centered := math.Abs(errX) < t.CenterToleranceX && math.Abs(errY) < t.CenterToleranceY

	switch {
	case grabReady && nearBasket:
		c.setThrower(model.ThrowerGrabBall)
		c.setMotion(model.MotionDriveGrabBall)
	case centered && !nearBasket:
		blocked := ahead.Driveability < t.ObstacleDriveability ||
			math.Max(ahead.LeftSideMetric, ahead.RightSideMetric) > t.ObstacleSideMetric
		if blocked {
			c.setMotion(model.MotionMoveBallAwayFromObstacle)
		} else {
			c.setMotion(model.MotionFindBasket)
		}
	}
}

// DRIVE_GRAB_BALL

func (c *Controller) enterDriveGrabBall() {
	if c.thrower != model.ThrowerGrabBall {
		c.setThrower(model.ThrowerGrabBall)
	}
	c.after(motionMachine, c.tuning.GrabBall.Timeout, func() {
		// A ball already resting on a sensor never produces a grab edge.
		if c.mainboard.HasBall() {
			c.log.Info("Grab timed out holding a ball")
			c.setThrower(model.ThrowerHoldBall)
			c.setMotion(model.MotionDriveWithBall)
			return
		}
		c.log.Info("Grab timed out without a ball")
		c.setThrower(model.ThrowerIdle)
		c.setMotion(model.MotionNudgeBall)
	})
}

func (c *Controller) runDriveGrabBall() {
	t := c.tuning.GrabBall
	centerX := c.tuning.Frame.CenterX()

	c.ai.Drive.Forward = t.CreepSpeed
	if basket := c.perception.Basket; basket != nil {
		c.ai.Drive.Rotation = clampAbs((centerX-basket.CX)*t.RotationGain, t.MaxRotation)
	}
	if ball := c.perception.ClosestBall; ball != nil && !c.mainboard.HasBall() {
		c.ai.Drive.Side = clampAbs((ball.CX-centerX)*t.SideGain, t.MaxSide)
	}
}

// DRIVE_WITH_BALL

func (c *Controller) enterDriveWithBall() {
	c.withBall = withBallState{}
}

func (c *Controller) runDriveWithBall() {
	t := c.tuning.WithBall
	basket := c.perception.Basket
	dist := c.mainboard.FilteredLidarDistance

	if basket == nil {
		c.withBall.straight = false
		if c.perception.EdgeTooClose() {
			c.setThrower(model.ThrowerThrowBallAway)
			c.setMotion(model.MotionNudgeBall)
			return
		}
		if !c.withBall.searching && c.withBall.lostTimer == 0 {
			c.withBall.lostTimer = c.after(motionMachine, t.BasketLostTimeout, func() {
				c.withBall.lostTimer = 0
				c.withBall.searching = true
			})
		}
		if c.withBall.searching {
			c.ai.Drive.Rotation = t.SearchRotation * float64(c.perception.BasketDirection)
			c.ai.Drive.Side = clampAbs(-c.perception.StraightAhead.SideMetric()*t.AvoidanceGain, t.MaxSide)
		}
		return
	}

	if c.withBall.lostTimer != 0 {
		c.timers.cancel(c.withBall.lostTimer)
		c.withBall.lostTimer = 0
	}
	c.withBall.searching = false

	errX := basket.CX - c.tuning.Frame.CenterX()
	eject := false
	if !c.withBall.straight {
		c.ai.Drive.Rotation = clampAbs(-errX*t.RotationGain, t.MaxRotation)
		c.ai.Drive.Forward = clampAbs((dist-t.TargetDistance)*t.DistanceGain, t.MaxForward)
		if math.Abs(errX) < t.AlignTolerance {
			c.withBall.straight = true
		}
		eject = dist > 0 && dist < t.CloseDistance
	} else {
		c.ai.Drive.Forward = t.StraightSpeed
		c.ai.Drive.Rotation = clampAbs(-errX*t.StraightRotationGain, t.MaxRotation)
		eject = dist > 0 && ((dist < t.EjectDistance && basket.SideBalance() < t.SideBalanceTolerance) || dist < t.CloseDistance)
	}
	if eject && c.thrower != model.ThrowerEjectBall {
		c.setThrower(model.ThrowerEjectBall)
	}
}

// FIND_BASKET

func (c *Controller) enterFindBasket() {
	c.findBasket.ballY.Reset()
	c.findBasket.pushing = false
	c.after(motionMachine, c.tuning.FindBasket.Timeout, c.findBasketTimedOut)
}

func (c *Controller) findBasketTimedOut() {
	if c.thrower == model.ThrowerThrowBall {
		return
	}
	if c.mainboard.FilteredLidarDistance > c.tuning.FindBasket.FarDistance {
		c.log.Info("Basket not found, discarding ball", "distance", c.mainboard.FilteredLidarDistance)
		c.setMotion(model.MotionGetRidOfBall)
		return
	}
	c.log.Info("Basket not found, retrying grab")
	c.setThrower(model.ThrowerGrabBall)
	c.setMotion(model.MotionDriveGrabBall)
}

func (c *Controller) runFindBasket() {
	t := c.tuning.FindBasket
	centerX := c.tuning.Frame.CenterX()
	basket := c.perception.Basket
	ball := c.perception.ClosestBall
	dist := c.mainboard.FilteredLidarDistance

	if c.thrower == model.ThrowerThrowBall {
		target := centerX + c.ai.LastThrow.CenterOffset
		if basket != nil {
			c.ai.Drive.Rotation = clampAbs((target-basket.CX)*t.RotationGain, t.MaxRotation)
		}
		if c.throw.ready {
			c.ai.Drive.Forward = t.ThrowForward
		}
		return
	}

	if c.perception.FilteredReach > t.MaxReach {
		c.setMotion(model.MotionNudgeBall)
		return
	}

	if c.mainboard.Balls[0] && c.thrower == model.ThrowerIdle && !c.findBasket.pushing {
		c.findBasket.pushing = true
		c.setThrower(model.ThrowerPushBall)
		c.after(motionMachine, t.PushDuration, func() {
			c.findBasket.pushing = false
			if c.thrower == model.ThrowerPushBall {
				c.setThrower(model.ThrowerIdle)
			}
		})
	}

	if ball != nil {
		c.findBasket.ballY.Add(ball.CY)
	}
	ballY := c.findBasket.ballY.Value()
	if ball != nil && !c.mainboard.HasBall() {
		c.ai.Drive.Side = clampAbs((ball.CX-centerX)*t.BallSideGain, t.MaxSide)
		c.ai.Drive.Forward = clampAbs((t.BallTargetY-ballY)*t.BallForwardGain, t.MaxForward)
	}
	if basket != nil {
		c.ai.Drive.Rotation = clampAbs((centerX-basket.CX)*t.RotationGain, t.MaxRotation)
	} else {
		c.ai.Drive.Rotation = t.SearchRotation * float64(c.perception.BasketDirection)
	}

	ballClose := ball != nil && ballY >= t.BallCloseY
	basketCentered := basket != nil && math.Abs(basket.CX-centerX) < t.CenteredTolerance
	if !ballClose || !basketCentered || dist <= 0 {
		return
	}
	switch {
	case dist < t.ReapproachDistance:
		c.setThrower(model.ThrowerGrabBall)
		c.setMotion(model.MotionDriveGrabBall)
	case dist >= t.MinThrowDistance && dist <= t.MaxThrowDistance && c.thrower == model.ThrowerIdle:
		c.setThrower(model.ThrowerThrowBall)
	}
}

// GET_RID_OF_BALL

func (c *Controller) enterGetRidOfBall() {
	c.setThrower(model.ThrowerThrowBallAway)
}

func (c *Controller) runGetRidOfBall() {
	t := c.tuning.RidOfBall
	target := c.perception.ClosestBall
	if target == nil {
		target = c.perception.LastClosestBall
	}
	if target == nil {
		c.setMotion(model.MotionFindBall)
		return
	}
	c.ai.Drive.Forward = clampAbs((c.tuning.DriveToBall.TargetY-target.CY)*t.ForwardGain, t.MaxForward)
	c.ai.Drive.Rotation = clampAbs((c.tuning.Frame.CenterX()-target.CX)*t.RotationGain, t.MaxRotation)
}

// NUDGE_BALL

func (c *Controller) enterNudgeBall() {
	c.nudge.dir = awayFrom(c.perception.StraightAhead)
	c.after(motionMachine, c.tuning.Nudge.Duration, func() {
		c.setMotion(model.MotionFindBall)
	})
}

func (c *Controller) runNudgeBall() {
	c.ai.Drive.Rotation = c.tuning.Nudge.Rotation * c.nudge.dir
}

// MOVE_BALL_AWAY_FROM_OBSTACLE

func (c *Controller) enterMoveBallAway() {
	c.moveAway = moveAwayState{startedAt: c.now(), dir: awayFrom(c.perception.StraightAhead)}
	if ball := c.perception.ClosestBall; ball != nil {
		c.moveAway.dir = awayFrom(ball.StraightAhead)
	}
	c.setThrower(model.ThrowerPushBall)
	c.after(motionMachine, c.tuning.MoveAway.Timeout, func() {
		c.log.Info("Moving ball away from obstacle timed out")
		c.setMotion(model.MotionFindBall)
	})
}

func (c *Controller) runMoveBallAway() {
	t := c.tuning.MoveAway
	ball := c.perception.ClosestBall
	if ball == nil {
		c.setMotion(model.MotionFindBall)
		return
	}
	ahead := ball.StraightAhead
	if ahead.Driveability >= t.ClearDriveability && math.Max(ahead.LeftSideMetric, ahead.RightSideMetric) <= t.ClearSideMetric {
		c.setMotion(model.MotionFindBall)
		return
	}

	ramp := 1.0
	if t.RampWindow > 0 {
		ramp = math.Min(c.now().Sub(c.moveAway.startedAt).Seconds()/t.RampWindow.Seconds(), 1)
	}
	errX := ball.CX - c.tuning.Frame.CenterX()
	c.ai.Drive.Rotation = ramp * t.MaxRotation * c.moveAway.dir
	c.ai.Drive.Side = clampAbs(errX*t.SideGain-ahead.SideMetric()*t.AvoidanceGain, t.MaxSide)
	c.ai.Drive.Forward = clampAbs((c.tuning.DriveToBall.TargetY-ball.CY)*t.ForwardGain, t.MaxForward)
}

// CHECK_BALLS

func (c *Controller) enterCheckBalls() {
	c.checkBalls = checkBallsState{dir: 1}
	if cand := c.perception.PotentialNextClosestBall; cand != nil {
		c.checkBalls.dir = c.towards(cand.CX)
	}
	c.checkIteration()
}

func (c *Controller) checkIteration() {
	c.checkBalls.iteration++
	c.after(motionMachine, c.tuning.CheckBalls.Duration, func() {
		ball := c.perception.ClosestBall
		facing := ball != nil && math.Abs(ball.CX-c.tuning.Frame.CenterX()) < c.tuning.DriveToBall.CenterToleranceX
		if facing || c.checkBalls.iteration >= c.tuning.CheckBalls.Iterations {
			c.setMotion(model.MotionFindBall)
			return
		}
		c.checkIteration()
	})
}

func (c *Controller) runCheckBalls() {
	if c.perception.PotentialNextClosestBall == nil {
		c.setMotion(model.MotionFindBall)
		return
	}
	c.ai.Drive.Rotation = c.tuning.CheckBalls.Rotation * c.checkBalls.dir
}
