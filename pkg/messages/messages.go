package messages

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Topic constants for the robot's pub/sub protocol.
const (
	TopicVision            = "vision"
	TopicMainboardFeedback = "mainboard_feedback"
	TopicAiCommand         = "ai_command"
	TopicAiConfiguration   = "ai_configuration"
	TopicTraining          = "training"

	TopicMainboardCommand = "mainboard_command"
	TopicAiState          = "ai_state"
	TopicAiEvent          = "ai_event"
)

// Record types streamed to the collector.
const (
	TypeThrowRecord    = "throw_record"
	TypeTrainingSample = "training_sample"
	TypeSession        = "session"
)

// InboundTopics are the topics the AI subscribes to.
var InboundTopics = []string{
	TopicVision,
	TopicMainboardFeedback,
	TopicAiCommand,
	TopicAiConfiguration,
	TopicTraining,
}

var (
	ErrUnknownTopic = errors.New("unknown topic")
	ErrInvalid      = errors.New("invalid payload")
)

var validate = validator.New()

// Envelope wraps every datagram and collector message.
type Envelope struct {
	Topic   string          `json:"topic" validate:"required"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the collector's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StraightAhead is the clearance descriptor attached to frames and balls.
type StraightAhead struct {
	Driveability    float64 `json:"driveability" validate:"gte=0,lte=1"`
	Reach           float64 `json:"reach"`
	LeftSideMetric  float64 `json:"leftSideMetric"`
	RightSideMetric float64 `json:"rightSideMetric"`
}

// VisionBall is one detected ball. Size is recomputed from w and h.
type VisionBall struct {
	CX            float64       `json:"cx"`
	CY            float64       `json:"cy"`
	W             float64       `json:"w" validate:"gte=0"`
	H             float64       `json:"h" validate:"gte=0"`
	Size          float64       `json:"size,omitempty"`
	Metrics       [2]float64    `json:"metrics"`
	StraightAhead StraightAhead `json:"straightAhead"`
}

// VisionBasket is one detected basket.
type VisionBasket struct {
	CX      float64    `json:"cx"`
	CY      float64    `json:"cy"`
	W       float64    `json:"w" validate:"gte=0"`
	H       float64    `json:"h" validate:"gte=0"`
	Color   string     `json:"color"`
	Size    float64    `json:"size,omitempty"`
	Metrics [2]float64 `json:"metrics"`
}

type VisionMetrics struct {
	BorderY       float64       `json:"borderY"`
	StraightAhead StraightAhead `json:"straightAhead"`
}

// Vision is the payload of the vision topic.
type Vision struct {
	Balls   []VisionBall   `json:"balls" validate:"dive"`
	Baskets []VisionBasket `json:"baskets" validate:"dive"`
	Metrics VisionMetrics  `json:"metrics"`
}

// MainboardFeedback is the payload of the mainboard_feedback topic.
type MainboardFeedback struct {
	Speed1         float64 `json:"speed1"`
	Speed2         float64 `json:"speed2"`
	Speed3         float64 `json:"speed3"`
	Speed4         float64 `json:"speed4"`
	Speed5         float64 `json:"speed5"`
	Ball1          bool    `json:"ball1"`
	Ball2          bool    `json:"ball2"`
	Distance       float64 `json:"distance" validate:"gte=0"`
	IsSpeedChanged bool    `json:"isSpeedChanged"`
	RefereeCommand string  `json:"refereeCommand" validate:"max=1"`
	Button         string  `json:"button" validate:"omitempty,oneof=NONE PRESSED PRESSED_LONG"`
	Time           float64 `json:"time"`
}

// Commands accepted on the ai_command topic.
const (
	CommandSetManualControl = "set_manual_control"
	CommandSetMotionState   = "set_motion_state"
	CommandSetThrowerState  = "set_thrower_state"
)

// AiCommand is the payload of the ai_command topic. State is a bool for
// set_manual_control and a state name otherwise.
type AiCommand struct {
	Command string          `json:"command" validate:"required,oneof=set_manual_control set_motion_state set_thrower_state"`
	State   json.RawMessage `json:"state" validate:"required"`
}

// Configuration keys accepted on the ai_configuration topic.
const (
	KeyBasketColour      = "basketColour"
	KeyIsCompetition     = "isCompetition"
	KeyFieldID           = "fieldID"
	KeyRobotID           = "robotID"
	KeyAllowedTechniques = "allowedTechniques"
	KeyIsManualOverride  = "isManualOverride"
)

// AiConfiguration is the payload of the ai_configuration topic: either a
// value to set or toggle:true.
type AiConfiguration struct {
	Key    string          `json:"key" validate:"required,oneof=basketColour isCompetition fieldID robotID allowedTechniques isManualOverride"`
	Value  json.RawMessage `json:"value,omitempty" validate:"required_without=Toggle"`
	Toggle bool            `json:"toggle,omitempty"`
}

// Training events.
const (
	EventTrainingData    = "training_data"
	EventChangeTechnique = "change_technique"
)

// TrainingData is one labelled throw.
type TrainingData struct {
	Technique    string  `json:"technique" validate:"required"`
	Distance     float64 `json:"distance" validate:"gte=0"`
	Speed        float64 `json:"speed"`
	CenterOffset float64 `json:"centerOffset"`
	Angle        float64 `json:"angle"`
}

// Training is the payload of the training topic.
type Training struct {
	Event         string        `json:"event" validate:"required,oneof=training_data change_technique"`
	Data          *TrainingData `json:"data,omitempty" validate:"required_if=Event training_data"`
	IsPredictable bool          `json:"isPredictable"`
	Techniques    []string      `json:"techniques,omitempty" validate:"required_if=Event change_technique,dive,required"`
}

// MainboardCommand is the payload of the mainboard_command topic.
type MainboardCommand struct {
	Speeds        [5]int `json:"speeds"`
	FieldID       string `json:"fieldID"`
	RobotID       string `json:"robotID"`
	ShouldSendAck bool   `json:"shouldSendAck"`
	Led           string `json:"led"`
}

// Lifecycle events published on ai_event.
const (
	EventAiStarted = "ai_started"
	EventAiClosed  = "ai_closed"
)

// AiEvent is the payload of the ai_event topic.
type AiEvent struct {
	Event     string `json:"event"`
	SessionID string `json:"sessionId,omitempty"`
	Time      int64  `json:"time"`
}

// IsInbound reports whether topic is one the AI consumes.
func IsInbound(topic string) bool {
	for _, t := range InboundTopics {
		if t == topic {
			return true
		}
	}
	return false
}

// ParseEnvelope decodes a datagram and checks its topic is known.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if env.Topic == "" {
		return env, fmt.Errorf("%w: missing topic", ErrInvalid)
	}
	switch env.Topic {
	case TopicVision, TopicMainboardFeedback, TopicAiCommand, TopicAiConfiguration, TopicTraining,
		TopicMainboardCommand, TopicAiState, TopicAiEvent:
		return env, nil
	}
	return env, fmt.Errorf("%w: %s", ErrUnknownTopic, env.Topic)
}

// Encode wraps v in an envelope for topic.
func Encode(topic string, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	return json.Marshal(Envelope{Topic: topic, Payload: payload})
}

// Decode strictly parses payload into T, rejecting unknown fields, and runs
// the struct's validation tags.
func Decode[T any](payload []byte) (T, error) {
	var v T
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := validate.Struct(v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return v, nil
}
