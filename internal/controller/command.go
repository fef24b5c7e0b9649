package controller

import (
	"math"
	"time"

	"github.com/ballbot/robot-ai/pkg/messages"
)

// emit converts the tick's drive request into wheel speeds, publishes the
// mainboard command unless a human has control, and publishes ai_state.
func (c *Controller) emit(now time.Time) {
	d := c.ai.Drive
	wheels := c.kin.CalculateSpeedsFromXY(d.Side, d.Forward, d.Rotation, true)
	copy(c.ai.Speeds[:4], wheels[:])

	if !c.ai.IsManualOverride {
		cmd := messages.MainboardCommand{
			FieldID:       c.ai.FieldID,
			RobotID:       c.ai.RobotID,
			ShouldSendAck: c.ai.ShouldSendAck,
			Led:           string(c.ai.BasketColour.LED()),
		}
		for i, v := range c.ai.Speeds {
			cmd.Speeds[i] = int(math.Round(v))
		}
		if err := c.pub.Publish(messages.TopicMainboardCommand, cmd); err != nil {
			c.log.Warn("Failed to publish mainboard command", "error", err)
		} else {
			c.ai.ShouldSendAck = false
		}
	}

	snap := c.buildSnapshot(now)
	c.snapshot.Store(&snap)
	if err := c.pub.Publish(messages.TopicAiState, snap); err != nil {
		c.log.Debug("Failed to publish ai_state", "error", err)
	}
	if c.rec != nil {
		c.rec.RecordTick(snap)
	}
}
