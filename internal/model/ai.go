package model

import "time"

// Drive is the desired robot-frame velocity produced by a motion handler.
type Drive struct {
	Side     float64 `json:"side"`
	Forward  float64 `json:"forward"`
	Rotation float64 `json:"rotation"`
}

// Thresholds are the adaptive perception filters.
type Thresholds struct {
	BallTopArc        float64 `json:"ballTopArcFilterThreshold"`
	BasketBottom      float64 `json:"basketBottomFilterThreshold"`
	OtherBasketBottom float64 `json:"otherBasketBottomFilterThreshold"`
}

// ThrowTelemetry is the last committed throw, kept for calibration feedback.
type ThrowTelemetry struct {
	Technique    string  `json:"technique"`
	Speed        float64 `json:"speed"`
	Distance     float64 `json:"distance"`
	Angle        float64 `json:"angle"`
	CenterOffset float64 `json:"centerOffset"`
}

// AiState is the controller's output and configuration state.
type AiState struct {
	Speeds            [5]float64
	Drive             Drive
	FieldID           string
	RobotID           string
	IsManualOverride  bool
	IsCompetition     bool
	BasketColour      BasketColour
	AllowedTechniques []string
	Thresholds        Thresholds
	LastThrow         ThrowTelemetry
	ShouldSendAck     bool
}

// PerceptionSnapshot is the telemetry view of the fused perception state.
type PerceptionSnapshot struct {
	ClosestBall                *BallObservation   `json:"closestBall"`
	LastClosestBall            *BallObservation   `json:"lastClosestBall"`
	PotentialNextClosestBall   *BallObservation   `json:"potentialNextClosestBall"`
	Basket                     *BasketObservation `json:"basket"`
	OtherBasket                *BasketObservation `json:"otherBasket"`
	BasketDirection            int                `json:"basketDirection"`
	LastVisibleBasketDirection int                `json:"lastVisibleBasketDirection"`
	FilteredBorderY            float64            `json:"filteredBorderY"`
	FilteredReach              float64            `json:"filteredReach"`
	FilteredBasketWidth        float64            `json:"filteredBasketWidth"`
	BallMissCount              int                `json:"ballMissCount"`
}

// MainboardSnapshot is the telemetry view of the fused mainboard state.
type MainboardSnapshot struct {
	Speeds                [5]float64 `json:"speeds"`
	Balls                 [2]bool    `json:"balls"`
	RefereeCommand        string     `json:"refereeCommand"`
	Button                Button     `json:"button"`
	LidarDistance         float64    `json:"lidarDistance"`
	FilteredLidarDistance float64    `json:"filteredLidarDistance"`
}

// Snapshot is the ai_state telemetry published once per tick.
type Snapshot struct {
	Time              time.Time          `json:"time"`
	SessionID         string             `json:"sessionId"`
	Tick              uint64             `json:"tick"`
	MotionState       string             `json:"motionState"`
	ThrowerState      string             `json:"throwerState"`
	Speeds            [5]float64         `json:"speeds"`
	Drive             Drive              `json:"drive"`
	FieldID           string             `json:"fieldID"`
	RobotID           string             `json:"robotID"`
	BasketColour      BasketColour       `json:"basketColour"`
	IsCompetition     bool               `json:"isCompetition"`
	IsManualOverride  bool               `json:"isManualOverride"`
	AllowedTechniques []string           `json:"allowedTechniques"`
	Thresholds        Thresholds         `json:"thresholds"`
	LastThrow         ThrowTelemetry     `json:"lastThrow"`
	Perception        PerceptionSnapshot `json:"perception"`
	Mainboard         MainboardSnapshot  `json:"mainboard"`
}
