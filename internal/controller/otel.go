package controller

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/ballbot/robot-ai/internal/controller"

func (c *Controller) initMetrics() error {
	m := otel.Meter(instrumentationName)

	var err error
	c.ticks, err = m.Int64Counter(
		"controller.ticks",
		metric.WithDescription("Decision ticks executed"),
	)
	if err != nil {
		return fmt.Errorf("creating ticks counter: %w", err)
	}

	c.tickDuration, err = m.Float64Histogram(
		"controller.tick.duration",
		metric.WithDescription("Time spent in one decision tick"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("creating tick duration histogram: %w", err)
	}

	c.transitions, err = m.Int64Counter(
		"controller.transitions",
		metric.WithDescription("State machine transitions"),
	)
	if err != nil {
		return fmt.Errorf("creating transitions counter: %w", err)
	}
	return nil
}

func (c *Controller) countTransition(owner machine, to string) {
	c.transitions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("machine", owner.String()),
		attribute.String("to", to),
	))
}
