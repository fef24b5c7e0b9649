// Package model defines the observation, state and telemetry types shared by
// the perception, mainboard and controller packages.
package model

// StraightAhead summarises how clear the path in front of the robot is.
type StraightAhead struct {
	Driveability    float64 `json:"driveability"`
	Reach           float64 `json:"reach"`
	LeftSideMetric  float64 `json:"leftSideMetric"`
	RightSideMetric float64 `json:"rightSideMetric"`
}

// SideMetric is positive when the right side is more obstructed.
func (s StraightAhead) SideMetric() float64 {
	return s.RightSideMetric - s.LeftSideMetric
}

// BallObservation is one detected ball in a vision frame.
type BallObservation struct {
	CX   float64 `json:"cx"`
	CY   float64 `json:"cy"`
	W    float64 `json:"w"`
	H    float64 `json:"h"`
	Size float64 `json:"size"`
	// Metrics holds the arc confidences: [bottomSurround, topSurround].
	Metrics       [2]float64    `json:"metrics"`
	StraightAhead StraightAhead `json:"straightAhead"`
}

// NewBallObservation fills in the derived size.
func NewBallObservation(cx, cy, w, h float64, metrics [2]float64, ahead StraightAhead) BallObservation {
	return BallObservation{CX: cx, CY: cy, W: w, H: h, Size: w * h, Metrics: metrics, StraightAhead: ahead}
}

func (b BallObservation) BottomMetric() float64 { return b.Metrics[0] }
func (b BallObservation) TopMetric() float64    { return b.Metrics[1] }

// CombinedMetric is bottom plus top arc confidence.
func (b BallObservation) CombinedMetric() float64 {
	return b.Metrics[0] + b.Metrics[1]
}

// BasketObservation is one detected basket in a vision frame.
type BasketObservation struct {
	CX           float64      `json:"cx"`
	CY           float64      `json:"cy"`
	W            float64      `json:"w"`
	H            float64      `json:"h"`
	Color        BasketColour `json:"color"`
	Size         float64      `json:"size"`
	Y2           float64      `json:"y2"`
	BottomMetric float64      `json:"bottomMetric"`
	Metrics      [2]float64   `json:"metrics"`
}

// NewBasketObservation fills in size, y2 and bottomMetric.
func NewBasketObservation(cx, cy, w, h float64, color BasketColour, metrics [2]float64) BasketObservation {
	return BasketObservation{
		CX:           cx,
		CY:           cy,
		W:            w,
		H:            h,
		Color:        color,
		Size:         w * h,
		Y2:           cy + h/2,
		BottomMetric: max(metrics[0], metrics[1]),
		Metrics:      metrics,
	}
}

// SideBalance is how unevenly the basket's two arc metrics are seen; zero
// means the robot faces the basket squarely.
func (b BasketObservation) SideBalance() float64 {
	d := b.Metrics[0] - b.Metrics[1]
	if d < 0 {
		return -d
	}
	return d
}

// FrameMetrics are the whole-frame descriptors of a vision message.
type FrameMetrics struct {
	BorderY       float64       `json:"borderY"`
	StraightAhead StraightAhead `json:"straightAhead"`
}

// VisionFrame is one pre-detected camera frame.
type VisionFrame struct {
	Balls   []BallObservation
	Baskets []BasketObservation
	Metrics FrameMetrics
}

// Feedback is one mainboard feedback frame.
type Feedback struct {
	Speeds         [5]float64
	Balls          [2]bool
	Distance       float64
	IsSpeedChanged bool
	RefereeCommand string
	Button         Button
	Time           float64
}
