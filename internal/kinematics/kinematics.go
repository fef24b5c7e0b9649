// Package kinematics converts robot-frame velocities into wheel speeds for a
// holonomic base.
package kinematics

import (
	"math"

	"github.com/ballbot/robot-ai/internal/config"
)

// Calculator turns (side, forward, angular) velocity into four wheel speeds.
type Calculator interface {
	CalculateSpeedsFromXY(side, forward, angular float64, asMotorUnits bool) [4]float64
}

// Omni is a four-wheel omni base.
type Omni struct {
	wheelAngles [4]float64 // radians
	centerDist  float64
	gearRatio   float64
}

// NewOmni builds an Omni from the configured layout. Angles are in degrees,
// measured from the robot's forward axis.
func NewOmni(cfg config.KinematicsConfig) *Omni {
	o := &Omni{
		centerDist: cfg.WheelCenterDistance,
		gearRatio:  cfg.GearRatio,
	}
	for i := 0; i < 4 && i < len(cfg.WheelAngles); i++ {
		o.wheelAngles[i] = cfg.WheelAngles[i] * math.Pi / 180
	}
	return o
}

// CalculateSpeedsFromXY computes each wheel as
// speed·cos(direction − wheelAngle) + centerDist·angular.
func (o *Omni) CalculateSpeedsFromXY(side, forward, angular float64, asMotorUnits bool) [4]float64 {
	speed := math.Hypot(side, forward)
	// direction is measured from forward, positive towards the robot's left.
	direction := math.Atan2(-side, forward)

	var out [4]float64
	for i, angle := range o.wheelAngles {
		v := speed*math.Cos(direction-angle) + o.centerDist*angular
		if asMotorUnits {
			v *= o.gearRatio
		}
		out[i] = v
	}
	return out
}
