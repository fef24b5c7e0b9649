package model

import (
	"fmt"
	"strings"
)

// MotionState is the active locomotion behaviour.
type MotionState int

const (
	MotionIdle MotionState = iota
	MotionFindBall
	MotionDriveToBall
	MotionDriveGrabBall
	MotionDriveWithBall
	MotionFindBasket
	MotionGetRidOfBall
	MotionNudgeBall
	MotionMoveBallAwayFromObstacle
	MotionCheckBalls
)

var motionNames = [...]string{
	MotionIdle:                     "IDLE",
	MotionFindBall:                 "FIND_BALL",
	MotionDriveToBall:              "DRIVE_TO_BALL",
	MotionDriveGrabBall:            "DRIVE_GRAB_BALL",
	MotionDriveWithBall:            "DRIVE_WITH_BALL",
	MotionFindBasket:               "FIND_BASKET",
	MotionGetRidOfBall:             "GET_RID_OF_BALL",
	MotionNudgeBall:                "NUDGE_BALL",
	MotionMoveBallAwayFromObstacle: "MOVE_BALL_AWAY_FROM_OBSTACLE",
	MotionCheckBalls:               "CHECK_BALLS",
}

// MotionStates lists every motion state in declaration order.
func MotionStates() []MotionState {
	out := make([]MotionState, len(motionNames))
	for i := range motionNames {
		out[i] = MotionState(i)
	}
	return out
}

func (s MotionState) String() string {
	if s < 0 || int(s) >= len(motionNames) {
		return fmt.Sprintf("MotionState(%d)", int(s))
	}
	return motionNames[s]
}

// ParseMotionState accepts the upper-case state names, case-insensitively.
func ParseMotionState(v string) (MotionState, error) {
	v = strings.ToUpper(strings.TrimSpace(v))
	for i, name := range motionNames {
		if name == v {
			return MotionState(i), nil
		}
	}
	return MotionIdle, fmt.Errorf("unknown motion state %q", v)
}

// ThrowerState is the active ball-handling behaviour.
type ThrowerState int

const (
	ThrowerIdle ThrowerState = iota
	ThrowerThrowBall
	ThrowerGrabBall
	ThrowerHoldBall
	ThrowerEjectBall
	ThrowerThrowBallAway
	ThrowerPushBall
)

var throwerNames = [...]string{
	ThrowerIdle:          "IDLE",
	ThrowerThrowBall:     "THROW_BALL",
	ThrowerGrabBall:      "GRAB_BALL",
	ThrowerHoldBall:      "HOLD_BALL",
	ThrowerEjectBall:     "EJECT_BALL",
	ThrowerThrowBallAway: "THROW_BALL_AWAY",
	ThrowerPushBall:      "PUSH_BALL",
}

// ThrowerStates lists every thrower state in declaration order.
func ThrowerStates() []ThrowerState {
	out := make([]ThrowerState, len(throwerNames))
	for i := range throwerNames {
		out[i] = ThrowerState(i)
	}
	return out
}

func (s ThrowerState) String() string {
	if s < 0 || int(s) >= len(throwerNames) {
		return fmt.Sprintf("ThrowerState(%d)", int(s))
	}
	return throwerNames[s]
}

// ParseThrowerState accepts the upper-case state names, case-insensitively.
func ParseThrowerState(v string) (ThrowerState, error) {
	v = strings.ToUpper(strings.TrimSpace(v))
	for i, name := range throwerNames {
		if name == v {
			return ThrowerState(i), nil
		}
	}
	return ThrowerIdle, fmt.Errorf("unknown thrower state %q", v)
}

// Button is the mainboard start button reading.
type Button string

const (
	ButtonNone        Button = "NONE"
	ButtonPressed     Button = "PRESSED"
	ButtonPressedLong Button = "PRESSED_LONG"
)

// Referee command codes.
const (
	RefereePrepare = "P"
	RefereeStart   = "S"
	RefereeStop    = "T"
)

// BasketColour is the colour of the basket this robot scores into.
type BasketColour string

const (
	BasketMagenta BasketColour = "magenta"
	BasketBlue    BasketColour = "blue"
	BasketUnknown BasketColour = "unknown"
)

// ParseBasketColour maps anything unrecognised to BasketUnknown.
func ParseBasketColour(v string) BasketColour {
	switch BasketColour(strings.ToLower(strings.TrimSpace(v))) {
	case BasketMagenta:
		return BasketMagenta
	case BasketBlue:
		return BasketBlue
	default:
		return BasketUnknown
	}
}

// Toggled swaps magenta and blue. Unknown becomes magenta.
func (c BasketColour) Toggled() BasketColour {
	if c == BasketMagenta {
		return BasketBlue
	}
	return BasketMagenta
}

// LED is the mainboard indicator naming the target basket.
type LED string

const (
	LEDMagenta LED = "MAGENTA_BASKET"
	LEDBlue    LED = "BLUE_BASKET"
	LEDUnknown LED = "UNKNOWN_BASKET"
)

// LED returns the indicator for this basket colour.
func (c BasketColour) LED() LED {
	switch c {
	case BasketMagenta:
		return LEDMagenta
	case BasketBlue:
		return LEDBlue
	default:
		return LEDUnknown
	}
}
