package controller

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ballbot/robot-ai/internal/calibration"
	"github.com/ballbot/robot-ai/internal/model"
	"github.com/ballbot/robot-ai/internal/perception"
	"github.com/ballbot/robot-ai/pkg/messages"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUnknownState   = errors.New("unknown state")
	ErrUnknownKey     = errors.New("unknown configuration key")
	ErrNotToggleable  = errors.New("configuration key cannot be toggled")
)

// HandleVision fuses one vision frame. It never ticks.
func (c *Controller) HandleVision(v messages.Vision) {
	c.perception.Update(VisionFrame(v), perception.Context{
		Motion:       c.motion,
		Thrower:      c.thrower,
		BasketColour: c.ai.BasketColour,
		Thresholds:   &c.ai.Thresholds,
	})
}

// HandleFeedback fuses one mainboard frame, applies referee and button edges
// and runs one tick.
func (c *Controller) HandleFeedback(fb messages.MainboardFeedback) error {
	if c.closed {
		return ErrClosed
	}
	changes := c.mainboard.Ingest(Feedback(fb))
	if changes.BallThrown {
		c.log.Debug("Ball thrown")
		c.perception.ResetAfterThrow(&c.ai.Thresholds)
	}
	if changes.RefereeChanged {
		c.handleReferee(c.mainboard.RefereeCommand)
	}
	if changes.ButtonChanged {
		c.handleButton(c.mainboard.Button)
	}
	c.tick()
	return nil
}

func (c *Controller) handleReferee(cmd string) {
	if !c.ai.IsCompetition {
		return
	}
	c.log.Info("Referee command", "command", cmd)
	switch cmd {
	case model.RefereePrepare:
		c.ai.ShouldSendAck = true
	case model.RefereeStart:
		c.start()
	case model.RefereeStop:
		c.stop()
	}
}

func (c *Controller) handleButton(b model.Button) {
	if c.motion != model.MotionIdle && c.ai.IsCompetition {
		return
	}
	switch b {
	case model.ButtonPressed:
		c.log.Info("Start button pressed")
		c.start()
	case model.ButtonPressedLong:
		c.ai.BasketColour = c.ai.BasketColour.Toggled()
		c.log.Info("Basket colour toggled", "colour", string(c.ai.BasketColour))
	}
}

func (c *Controller) start() {
	c.setThrower(model.ThrowerIdle)
	c.setMotion(model.MotionFindBall)
}

func (c *Controller) stop() {
	c.setThrower(model.ThrowerIdle)
	c.setMotion(model.MotionIdle)
}

// HandleCommand applies an ai_command.
func (c *Controller) HandleCommand(cmd messages.AiCommand) error {
	switch cmd.Command {
	case messages.CommandSetManualControl:
		var on bool
		if err := json.Unmarshal(cmd.State, &on); err != nil {
			return fmt.Errorf("%s: %w", cmd.Command, err)
		}
		c.setManualOverride(on)
	case messages.CommandSetMotionState:
		name, err := stateName(cmd.State)
		if err != nil {
			return fmt.Errorf("%s: %w", cmd.Command, err)
		}
		s, err := model.ParseMotionState(name)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnknownState, err)
		}
		c.setMotion(s)
	case messages.CommandSetThrowerState:
		name, err := stateName(cmd.State)
		if err != nil {
			return fmt.Errorf("%s: %w", cmd.Command, err)
		}
		s, err := model.ParseThrowerState(name)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnknownState, err)
		}
		c.setThrower(s)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Command)
	}
	return nil
}

func stateName(raw json.RawMessage) (string, error) {
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return "", err
	}
	return name, nil
}

func (c *Controller) setManualOverride(on bool) {
	c.ai.IsManualOverride = on
	c.log.Info("Manual override", "enabled", on)
	if on {
		c.stop()
	}
}

// HandleConfiguration applies an ai_configuration message.
func (c *Controller) HandleConfiguration(msg messages.AiConfiguration) error {
	switch msg.Key {
	case messages.KeyBasketColour:
		if msg.Toggle {
			c.ai.BasketColour = c.ai.BasketColour.Toggled()
			break
		}
		var v string
		if err := json.Unmarshal(msg.Value, &v); err != nil {
			return fmt.Errorf("%s: %w", msg.Key, err)
		}
		c.ai.BasketColour = model.ParseBasketColour(v)
	case messages.KeyIsCompetition:
		v, err := boolValue(msg, c.ai.IsCompetition)
		if err != nil {
			return err
		}
		c.ai.IsCompetition = v
	case messages.KeyIsManualOverride:
		v, err := boolValue(msg, c.ai.IsManualOverride)
		if err != nil {
			return err
		}
		c.setManualOverride(v)
	case messages.KeyFieldID, messages.KeyRobotID:
		if msg.Toggle {
			return fmt.Errorf("%w: %s", ErrNotToggleable, msg.Key)
		}
		var v string
		if err := json.Unmarshal(msg.Value, &v); err != nil {
			return fmt.Errorf("%s: %w", msg.Key, err)
		}
		if msg.Key == messages.KeyFieldID {
			c.ai.FieldID = v
		} else {
			c.ai.RobotID = v
		}
	case messages.KeyAllowedTechniques:
		if msg.Toggle {
			return fmt.Errorf("%w: %s", ErrNotToggleable, msg.Key)
		}
		var v []string
		if err := json.Unmarshal(msg.Value, &v); err != nil {
			return fmt.Errorf("%s: %w", msg.Key, err)
		}
		c.ai.AllowedTechniques = v
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKey, msg.Key)
	}
	c.log.Info("Configuration changed", "key", msg.Key, "toggle", msg.Toggle)
	return nil
}

func boolValue(msg messages.AiConfiguration, current bool) (bool, error) {
	if msg.Toggle {
		return !current, nil
	}
	var v bool
	if err := json.Unmarshal(msg.Value, &v); err != nil {
		return false, fmt.Errorf("%s: %w", msg.Key, err)
	}
	return v, nil
}

// HandleTraining feeds labelled throws into calibration and updates the
// allowed techniques.
func (c *Controller) HandleTraining(msg messages.Training) error {
	switch msg.Event {
	case messages.EventTrainingData:
		if msg.Data == nil {
			return fmt.Errorf("%s: missing data", msg.Event)
		}
		d := *msg.Data
		c.calib.AddSample(calibration.Sample{
			Technique: d.Technique,
			Distance:  d.Distance,
			Speed:     d.Speed,
			Offset:    d.CenterOffset,
		})
		if c.rec != nil {
			c.rec.RecordTrainingSample(model.TrainingSample{
				SessionID:     c.sessionID,
				Technique:     d.Technique,
				Distance:      d.Distance,
				Speed:         d.Speed,
				CenterOffset:  d.CenterOffset,
				Angle:         d.Angle,
				IsPredictable: msg.IsPredictable,
			})
		}
		c.log.Debug("Training sample added", "technique", d.Technique, "distance", d.Distance)
	case messages.EventChangeTechnique:
		c.ai.AllowedTechniques = append([]string(nil), msg.Techniques...)
		c.log.Info("Allowed techniques changed", "techniques", msg.Techniques)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, msg.Event)
	}
	return nil
}

// VisionFrame converts a vision payload, recomputing derived sizes.
func VisionFrame(v messages.Vision) model.VisionFrame {
	frame := model.VisionFrame{
		Balls:   make([]model.BallObservation, 0, len(v.Balls)),
		Baskets: make([]model.BasketObservation, 0, len(v.Baskets)),
		Metrics: model.FrameMetrics{
			BorderY:       v.Metrics.BorderY,
			StraightAhead: straightAhead(v.Metrics.StraightAhead),
		},
	}
	for _, b := range v.Balls {
		frame.Balls = append(frame.Balls, model.NewBallObservation(b.CX, b.CY, b.W, b.H, b.Metrics, straightAhead(b.StraightAhead)))
	}
	for _, b := range v.Baskets {
		frame.Baskets = append(frame.Baskets, model.NewBasketObservation(b.CX, b.CY, b.W, b.H, model.ParseBasketColour(b.Color), b.Metrics))
	}
	return frame
}

func straightAhead(s messages.StraightAhead) model.StraightAhead {
	return model.StraightAhead{
		Driveability:    s.Driveability,
		Reach:           s.Reach,
		LeftSideMetric:  s.LeftSideMetric,
		RightSideMetric: s.RightSideMetric,
	}
}

// Feedback converts a mainboard feedback payload.
func Feedback(fb messages.MainboardFeedback) model.Feedback {
	button := model.Button(fb.Button)
	if button == "" {
		button = model.ButtonNone
	}
	return model.Feedback{
		Speeds:         [5]float64{fb.Speed1, fb.Speed2, fb.Speed3, fb.Speed4, fb.Speed5},
		Balls:          [2]bool{fb.Ball1, fb.Ball2},
		Distance:       fb.Distance,
		IsSpeedChanged: fb.IsSpeedChanged,
		RefereeCommand: fb.RefereeCommand,
		Button:         button,
		Time:           fb.Time,
	}
}
