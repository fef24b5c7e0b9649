package config

import "time"

// Tuning collects every empirical controller constant. Speeds are in m/s
// (side, forward), rad/s (rotation) or thrower motor units; positions are
// image pixels; distances are lidar millimetres.
type Tuning struct {
	Frame       FrameTuning      `json:"frame" mapstructure:"frame"`
	Perception  PerceptionTuning `json:"perception" mapstructure:"perception"`
	FindBall    FindBallTuning   `json:"findBall" mapstructure:"findBall"`
	DriveToBall DriveTuning      `json:"driveToBall" mapstructure:"driveToBall"`
	GrabBall    GrabTuning       `json:"grabBall" mapstructure:"grabBall"`
	WithBall    WithBallTuning   `json:"withBall" mapstructure:"withBall"`
	FindBasket  FindBasketTuning `json:"findBasket" mapstructure:"findBasket"`
	RidOfBall   RidOfBallTuning  `json:"ridOfBall" mapstructure:"ridOfBall"`
	Nudge       NudgeTuning      `json:"nudge" mapstructure:"nudge"`
	MoveAway    MoveAwayTuning   `json:"moveAway" mapstructure:"moveAway"`
	CheckBalls  CheckBallsTuning `json:"checkBalls" mapstructure:"checkBalls"`
	Thrower     ThrowerTuning    `json:"thrower" mapstructure:"thrower"`
}

// FrameTuning describes the camera frame.
type FrameTuning struct {
	Width  float64 `json:"width" mapstructure:"width"`
	Height float64 `json:"height" mapstructure:"height"`
	// Balls below EdgeY and within EdgeCenterTolerance of the centre are the
	// robot's own hardware seen by the camera.
	EdgeY               float64 `json:"edgeY" mapstructure:"edgeY"`
	EdgeCenterTolerance float64 `json:"edgeCenterTolerance" mapstructure:"edgeCenterTolerance"`
}

// CenterX returns the horizontal frame centre.
func (f FrameTuning) CenterX() float64 {
	return f.Width / 2
}

type PerceptionTuning struct {
	BallTopArcThreshold        float64 `json:"ballTopArcThreshold" mapstructure:"ballTopArcThreshold"`
	BasketBottomThreshold      float64 `json:"basketBottomThreshold" mapstructure:"basketBottomThreshold"`
	OtherBasketBottomThreshold float64 `json:"otherBasketBottomThreshold" mapstructure:"otherBasketBottomThreshold"`
	CandidateMinMetric         float64 `json:"candidateMinMetric" mapstructure:"candidateMinMetric"`
	CandidateMinSize           float64 `json:"candidateMinSize" mapstructure:"candidateMinSize"`
	BallMissLimit              int     `json:"ballMissLimit" mapstructure:"ballMissLimit"`
	BorderWindow               int     `json:"borderWindow" mapstructure:"borderWindow"`
	ReachWindow                int     `json:"reachWindow" mapstructure:"reachWindow"`
	BasketWidthWindow          int     `json:"basketWidthWindow" mapstructure:"basketWidthWindow"`
	LidarWindow                int     `json:"lidarWindow" mapstructure:"lidarWindow"`
	// EdgeBorderY is the filtered border line below which the field edge is too close.
	EdgeBorderY float64 `json:"edgeBorderY" mapstructure:"edgeBorderY"`
}

// ScanStep is one timed rotation burst of the ball search pattern.
type ScanStep struct {
	Rotation float64       `json:"rotation" mapstructure:"rotation"`
	Duration time.Duration `json:"duration" mapstructure:"duration"`
}

type FindBallTuning struct {
	Scan      []ScanStep    `json:"scan" mapstructure:"scan"`
	ScanPause time.Duration `json:"scanPause" mapstructure:"scanPause"`
	LoopLimit int           `json:"loopLimit" mapstructure:"loopLimit"`
	// ThresholdFloor is where the halved top-arc threshold snaps to zero.
	ThresholdFloor float64 `json:"thresholdFloor" mapstructure:"thresholdFloor"`

	LandmarkForward         float64 `json:"landmarkForward" mapstructure:"landmarkForward"`
	LandmarkRotation        float64 `json:"landmarkRotation" mapstructure:"landmarkRotation"`
	LandmarkRotationGain    float64 `json:"landmarkRotationGain" mapstructure:"landmarkRotationGain"`
	LandmarkMinDriveability float64 `json:"landmarkMinDriveability" mapstructure:"landmarkMinDriveability"`
	LandmarkMinReach        float64 `json:"landmarkMinReach" mapstructure:"landmarkMinReach"`
}

type DriveTuning struct {
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
	TargetY float64       `json:"targetY" mapstructure:"targetY"`

	MinForward   float64 `json:"minForward" mapstructure:"minForward"`
	MaxForward   float64 `json:"maxForward" mapstructure:"maxForward"`
	ForwardRamp  float64 `json:"forwardRamp" mapstructure:"forwardRamp"`
	MinRotation  float64 `json:"minRotation" mapstructure:"minRotation"`
	MaxRotation  float64 `json:"maxRotation" mapstructure:"maxRotation"`
	RotationRamp float64 `json:"rotationRamp" mapstructure:"rotationRamp"`
	MaxSide      float64 `json:"maxSide" mapstructure:"maxSide"`

	ForwardGain   float64 `json:"forwardGain" mapstructure:"forwardGain"`
	SideGain      float64 `json:"sideGain" mapstructure:"sideGain"`
	RotationGain  float64 `json:"rotationGain" mapstructure:"rotationGain"`
	AvoidanceGain float64 `json:"avoidanceGain" mapstructure:"avoidanceGain"`

	// Anti-stall: while the ball sits below StallY and its y moves less than
	// StallEpsilon per tick, the forward multiplier grows by StallGrowth.
	StallY             float64 `json:"stallY" mapstructure:"stallY"`
	StallEpsilon       float64 `json:"stallEpsilon" mapstructure:"stallEpsilon"`
	StallGrowth        float64 `json:"stallGrowth" mapstructure:"stallGrowth"`
	StallMaxMultiplier float64 `json:"stallMaxMultiplier" mapstructure:"stallMaxMultiplier"`

	CenterToleranceX float64 `json:"centerToleranceX" mapstructure:"centerToleranceX"`
	CenterToleranceY float64 `json:"centerToleranceY" mapstructure:"centerToleranceY"`
	GrabToleranceX   float64 `json:"grabToleranceX" mapstructure:"grabToleranceX"`
	GrabToleranceY   float64 `json:"grabToleranceY" mapstructure:"grabToleranceY"`
	// BasketProximity is the horizontal pixel distance between ball and basket
	// under which the ball can be grabbed without repositioning.
	BasketProximity float64 `json:"basketProximity" mapstructure:"basketProximity"`

	ObstacleDriveability float64 `json:"obstacleDriveability" mapstructure:"obstacleDriveability"`
	ObstacleSideMetric   float64 `json:"obstacleSideMetric" mapstructure:"obstacleSideMetric"`
}

type GrabTuning struct {
	Timeout      time.Duration `json:"timeout" mapstructure:"timeout"`
	CreepSpeed   float64       `json:"creepSpeed" mapstructure:"creepSpeed"`
	RotationGain float64       `json:"rotationGain" mapstructure:"rotationGain"`
	MaxRotation  float64       `json:"maxRotation" mapstructure:"maxRotation"`
	SideGain     float64       `json:"sideGain" mapstructure:"sideGain"`
	MaxSide      float64       `json:"maxSide" mapstructure:"maxSide"`
}

type WithBallTuning struct {
	BasketLostTimeout time.Duration `json:"basketLostTimeout" mapstructure:"basketLostTimeout"`
	SearchRotation    float64       `json:"searchRotation" mapstructure:"searchRotation"`
	AvoidanceGain     float64       `json:"avoidanceGain" mapstructure:"avoidanceGain"`
	MaxSide           float64       `json:"maxSide" mapstructure:"maxSide"`

	RotationGain   float64 `json:"rotationGain" mapstructure:"rotationGain"`
	MaxRotation    float64 `json:"maxRotation" mapstructure:"maxRotation"`
	AlignTolerance float64 `json:"alignTolerance" mapstructure:"alignTolerance"`
	DistanceGain   float64 `json:"distanceGain" mapstructure:"distanceGain"`
	TargetDistance float64 `json:"targetDistance" mapstructure:"targetDistance"`
	MaxForward     float64 `json:"maxForward" mapstructure:"maxForward"`

	StraightSpeed        float64 `json:"straightSpeed" mapstructure:"straightSpeed"`
	StraightRotationGain float64 `json:"straightRotationGain" mapstructure:"straightRotationGain"`
	EjectDistance        float64 `json:"ejectDistance" mapstructure:"ejectDistance"`
	SideBalanceTolerance float64 `json:"sideBalanceTolerance" mapstructure:"sideBalanceTolerance"`
	CloseDistance        float64 `json:"closeDistance" mapstructure:"closeDistance"`
}

type FindBasketTuning struct {
	Timeout        time.Duration `json:"timeout" mapstructure:"timeout"`
	SearchRotation float64       `json:"searchRotation" mapstructure:"searchRotation"`
	RotationGain   float64       `json:"rotationGain" mapstructure:"rotationGain"`
	MaxRotation    float64       `json:"maxRotation" mapstructure:"maxRotation"`

	BallWindow      int     `json:"ballWindow" mapstructure:"ballWindow"`
	BallTargetY     float64 `json:"ballTargetY" mapstructure:"ballTargetY"`
	BallCloseY      float64 `json:"ballCloseY" mapstructure:"ballCloseY"`
	BallSideGain    float64 `json:"ballSideGain" mapstructure:"ballSideGain"`
	BallForwardGain float64 `json:"ballForwardGain" mapstructure:"ballForwardGain"`
	MaxSide         float64 `json:"maxSide" mapstructure:"maxSide"`
	MaxForward      float64 `json:"maxForward" mapstructure:"maxForward"`

	CenteredTolerance float64 `json:"centeredTolerance" mapstructure:"centeredTolerance"`
	MaxReach          float64 `json:"maxReach" mapstructure:"maxReach"`
	// FarDistance: timing out with the basket further than this gets rid of the ball.
	FarDistance      float64 `json:"farDistance" mapstructure:"farDistance"`
	MinThrowDistance float64 `json:"minThrowDistance" mapstructure:"minThrowDistance"`
	MaxThrowDistance float64 `json:"maxThrowDistance" mapstructure:"maxThrowDistance"`
	// ReapproachDistance: closer than this the ball is grabbed and carried instead of thrown.
	ReapproachDistance float64 `json:"reapproachDistance" mapstructure:"reapproachDistance"`
	// ThrowForward is the creep speed feeding the ball once the thrower is stable.
	ThrowForward float64 `json:"throwForward" mapstructure:"throwForward"`

	PushDuration time.Duration `json:"pushDuration" mapstructure:"pushDuration"`
}

type RidOfBallTuning struct {
	ForwardGain  float64 `json:"forwardGain" mapstructure:"forwardGain"`
	RotationGain float64 `json:"rotationGain" mapstructure:"rotationGain"`
	MaxForward   float64 `json:"maxForward" mapstructure:"maxForward"`
	MaxRotation  float64 `json:"maxRotation" mapstructure:"maxRotation"`
}

type NudgeTuning struct {
	Duration time.Duration `json:"duration" mapstructure:"duration"`
	Rotation float64       `json:"rotation" mapstructure:"rotation"`
}

type MoveAwayTuning struct {
	Timeout           time.Duration `json:"timeout" mapstructure:"timeout"`
	RampWindow        time.Duration `json:"rampWindow" mapstructure:"rampWindow"`
	MaxRotation       float64       `json:"maxRotation" mapstructure:"maxRotation"`
	MaxForward        float64       `json:"maxForward" mapstructure:"maxForward"`
	MaxSide           float64       `json:"maxSide" mapstructure:"maxSide"`
	ForwardGain       float64       `json:"forwardGain" mapstructure:"forwardGain"`
	SideGain          float64       `json:"sideGain" mapstructure:"sideGain"`
	AvoidanceGain     float64       `json:"avoidanceGain" mapstructure:"avoidanceGain"`
	ClearDriveability float64       `json:"clearDriveability" mapstructure:"clearDriveability"`
	ClearSideMetric   float64       `json:"clearSideMetric" mapstructure:"clearSideMetric"`
}

type CheckBallsTuning struct {
	Iterations int           `json:"iterations" mapstructure:"iterations"`
	Duration   time.Duration `json:"duration" mapstructure:"duration"`
	Rotation   float64       `json:"rotation" mapstructure:"rotation"`
}

type ThrowerTuning struct {
	ThrowTimeout   time.Duration `json:"throwTimeout" mapstructure:"throwTimeout"`
	StableSamples  int           `json:"stableSamples" mapstructure:"stableSamples"`
	SpeedTolerance float64       `json:"speedTolerance" mapstructure:"speedTolerance"`
	PostThrowTicks int           `json:"postThrowTicks" mapstructure:"postThrowTicks"`
	// RadiansPerPixel converts horizontal basket offset into an aim angle.
	RadiansPerPixel float64 `json:"radiansPerPixel" mapstructure:"radiansPerPixel"`

	GrabSpeed       float64 `json:"grabSpeed" mapstructure:"grabSpeed"`
	EjectStartSpeed float64 `json:"ejectStartSpeed" mapstructure:"ejectStartSpeed"`
	EjectRamp       float64 `json:"ejectRamp" mapstructure:"ejectRamp"`
	EjectMinSpeed   float64 `json:"ejectMinSpeed" mapstructure:"ejectMinSpeed"`
	DiscardSpeed    float64 `json:"discardSpeed" mapstructure:"discardSpeed"`
	PushSpeed       float64 `json:"pushSpeed" mapstructure:"pushSpeed"`
}

// DefaultTuning returns the competition-tested constants.
func DefaultTuning() Tuning {
	return Tuning{
		Frame: FrameTuning{
			Width:               1280,
			Height:              1024,
			EdgeY:               950,
			EdgeCenterTolerance: 100,
		},
		Perception: PerceptionTuning{
			BallTopArcThreshold:        0.5,
			BasketBottomThreshold:      0.5,
			OtherBasketBottomThreshold: 0.5,
			CandidateMinMetric:         1.5,
			CandidateMinSize:           40,
			BallMissLimit:              10,
			BorderWindow:               3,
			ReachWindow:                3,
			BasketWidthWindow:          10,
			LidarWindow:                5,
			EdgeBorderY:                900,
		},
		FindBall: FindBallTuning{
			Scan: []ScanStep{
				{Rotation: 4.0, Duration: 250 * time.Millisecond},
				{Rotation: 3.0, Duration: 250 * time.Millisecond},
				{Rotation: 2.0, Duration: 300 * time.Millisecond},
				{Rotation: 1.2, Duration: 300 * time.Millisecond},
			},
			ScanPause:               150 * time.Millisecond,
			LoopLimit:               3,
			ThresholdFloor:          0.02,
			LandmarkForward:         0.8,
			LandmarkRotation:        1.5,
			LandmarkRotationGain:    0.004,
			LandmarkMinDriveability: 0.4,
			LandmarkMinReach:        250,
		},
		DriveToBall: DriveTuning{
			Timeout:            5 * time.Second,
			TargetY:            900,
			MinForward:         0.4,
			MaxForward:         1.8,
			ForwardRamp:        1.5,
			MinRotation:        1.5,
			MaxRotation:        5.0,
			RotationRamp:       4.0,
			MaxSide:            0.8,
			ForwardGain:        0.004,
			SideGain:           0.002,
			RotationGain:       0.008,
			AvoidanceGain:      0.6,
			StallY:             750,
			StallEpsilon:       2,
			StallGrowth:        0.05,
			StallMaxMultiplier: 2.5,
			CenterToleranceX:   35,
			CenterToleranceY:   50,
			GrabToleranceX:     15,
			GrabToleranceY:     30,
			BasketProximity:    120,

			ObstacleDriveability: 0.5,
			ObstacleSideMetric:   0.35,
		},
		GrabBall: GrabTuning{
			Timeout:      3 * time.Second,
			CreepSpeed:   0.3,
			RotationGain: 0.004,
			MaxRotation:  1.5,
			SideGain:     0.002,
			MaxSide:      0.4,
		},
		WithBall: WithBallTuning{
			BasketLostTimeout:    800 * time.Millisecond,
			SearchRotation:       2.5,
			AvoidanceGain:        0.5,
			MaxSide:              0.5,
			RotationGain:         0.006,
			MaxRotation:          3.0,
			AlignTolerance:       25,
			DistanceGain:         0.002,
			TargetDistance:       350,
			MaxForward:           1.2,
			StraightSpeed:        0.4,
			StraightRotationGain: 0.002,
			EjectDistance:        300,
			SideBalanceTolerance: 0.2,
			CloseDistance:        180,
		},
		FindBasket: FindBasketTuning{
			Timeout:            5 * time.Second,
			SearchRotation:     2.5,
			RotationGain:       0.007,
			MaxRotation:        3.0,
			BallWindow:         10,
			BallTargetY:        880,
			BallCloseY:         820,
			BallSideGain:       0.003,
			BallForwardGain:    0.003,
			MaxSide:            0.6,
			MaxForward:         0.4,
			CenteredTolerance:  40,
			MaxReach:           400,
			FarDistance:        3000,
			MinThrowDistance:   400,
			MaxThrowDistance:   5000,
			ReapproachDistance: 600,
			ThrowForward:       0.25,
			PushDuration:       300 * time.Millisecond,
		},
		RidOfBall: RidOfBallTuning{
			ForwardGain:  0.004,
			RotationGain: 0.006,
			MaxForward:   1.0,
			MaxRotation:  3.0,
		},
		Nudge: NudgeTuning{
			Duration: 500 * time.Millisecond,
			Rotation: 3.0,
		},
		MoveAway: MoveAwayTuning{
			Timeout:           5 * time.Second,
			RampWindow:        time.Second,
			MaxRotation:       2.5,
			MaxForward:        0.5,
			MaxSide:           0.6,
			ForwardGain:       0.003,
			SideGain:          0.002,
			AvoidanceGain:     0.6,
			ClearDriveability: 0.8,
			ClearSideMetric:   0.1,
		},
		CheckBalls: CheckBallsTuning{
			Iterations: 3,
			Duration:   300 * time.Millisecond,
			Rotation:   2.0,
		},
		Thrower: ThrowerTuning{
			ThrowTimeout:    3 * time.Second,
			StableSamples:   3,
			SpeedTolerance:  40,
			PostThrowTicks:  10,
			RadiansPerPixel: 0.0012,
			GrabSpeed:       300,
			EjectStartSpeed: -150,
			EjectRamp:       400,
			EjectMinSpeed:   -1200,
			DiscardSpeed:    2200,
			PushSpeed:       -200,
		},
	}
}
