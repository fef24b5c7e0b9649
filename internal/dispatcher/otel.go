package dispatcher

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/ballbot/robot-ai/internal/dispatcher"

type instruments struct {
	processedCount metric.Int64Counter
	droppedCount   metric.Int64Counter
}

// newInstruments registers the dispatcher metrics. depths is polled for the
// queue size gauge on every collection.
func newInstruments(depths func(observe func(topic string, depth int))) (*instruments, error) {
	m := otel.Meter(instrumentationName)

	gauge, err := m.Int64ObservableGauge("dispatcher.queue.size",
		metric.WithDescription("Events waiting in a buffered topic's queue"))
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}
	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		depths(func(topic string, depth int) {
			o.ObserveInt64(gauge, int64(depth), metric.WithAttributes(attribute.String("topic", topic)))
		})
		return nil
	}, gauge)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	inst := &instruments{}
	if inst.processedCount, err = m.Int64Counter("dispatcher.events.processed",
		metric.WithDescription("Buffered events handled")); err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}
	if inst.droppedCount, err = m.Int64Counter("dispatcher.events.dropped",
		metric.WithDescription("Events dropped because the queue was full")); err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}
	return inst, nil
}

func (i *instruments) processed(topic attribute.KeyValue) {
	i.processedCount.Add(context.Background(), 1, metric.WithAttributes(topic))
}

func (i *instruments) dropped(topic attribute.KeyValue) {
	i.droppedCount.Add(context.Background(), 1, metric.WithAttributes(topic))
}
