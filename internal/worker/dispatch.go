package worker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ballbot/robot-ai/internal/dispatcher"
	"github.com/ballbot/robot-ai/internal/model"
	"github.com/ballbot/robot-ai/pkg/messages"
)

// Internal topics for asynchronous storage writes.
const (
	TopicStoreThrow          = "store_throw"
	TopicStoreTrainingSample = "store_training_sample"
)

// RegisterHandlers registers the inbound topic handlers and the storage
// writers with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher, ctrl Controller) {
	m.dispatcher = d
	m.ctrl = ctrl

	// Perception and feedback - high rate, not logged
	d.Register(messages.TopicVision, m.handleVision)
	d.Register(messages.TopicMainboardFeedback, m.handleFeedback)

	// Operator input
	d.Register(messages.TopicAiCommand, m.handleCommand, dispatcher.Logged())
	d.Register(messages.TopicAiConfiguration, m.handleConfiguration, dispatcher.Logged())
	d.Register(messages.TopicTraining, m.handleTraining, dispatcher.Logged())

	// Storage writes - buffered so the controller never waits on the backend
	d.Register(TopicStoreThrow, m.storeHandler(TopicStoreThrow), dispatcher.Buffered(256), dispatcher.Logged())
	d.Register(TopicStoreTrainingSample, m.storeHandler(TopicStoreTrainingSample), dispatcher.Buffered(1024), dispatcher.Logged())
}

// decode parses an inbound payload, counting rejects.
func decode[T any](m *Manager, e dispatcher.Event) (T, error) {
	v, err := messages.Decode[T](e.Payload)
	if err != nil {
		m.rejected.Add(1)
		m.log.Warn("Rejected message", "topic", e.Topic, "error", err)
		return v, fmt.Errorf("%s: %w", e.Topic, err)
	}
	m.accepted.Add(1)
	return v, nil
}

// submit runs fn on the controller goroutine. Errors returned by fn are
// logged there.
func (m *Manager) submit(topic string, fn func() error) (any, error) {
	err := m.ctrl.Submit(func() {
		if err := fn(); err != nil {
			m.log.Warn("Message not applied", "topic", topic, "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", topic, err)
	}
	return "submitted", nil
}

func (m *Manager) handleVision(e dispatcher.Event) (any, error) {
	v, err := decode[messages.Vision](m, e)
	if err != nil {
		return nil, err
	}
	return m.submit(e.Topic, func() error {
		m.ctrl.HandleVision(v)
		return nil
	})
}

func (m *Manager) handleFeedback(e dispatcher.Event) (any, error) {
	fb, err := decode[messages.MainboardFeedback](m, e)
	if err != nil {
		return nil, err
	}
	return m.submit(e.Topic, func() error { return m.ctrl.HandleFeedback(fb) })
}

func (m *Manager) handleCommand(e dispatcher.Event) (any, error) {
	cmd, err := decode[messages.AiCommand](m, e)
	if err != nil {
		return nil, err
	}
	return m.submit(e.Topic, func() error { return m.ctrl.HandleCommand(cmd) })
}

func (m *Manager) handleConfiguration(e dispatcher.Event) (any, error) {
	msg, err := decode[messages.AiConfiguration](m, e)
	if err != nil {
		return nil, err
	}
	return m.submit(e.Topic, func() error { return m.ctrl.HandleConfiguration(msg) })
}

func (m *Manager) handleTraining(e dispatcher.Event) (any, error) {
	msg, err := decode[messages.Training](m, e)
	if err != nil {
		return nil, err
	}
	return m.submit(e.Topic, func() error { return m.ctrl.HandleTraining(msg) })
}

// storeHandler writes one encoded record to the storage backend.
func (m *Manager) storeHandler(topic string) dispatcher.HandlerFunc {
	return func(e dispatcher.Event) (any, error) {
		if m.deps.Backend == nil {
			return nil, nil
		}
		start := time.Now()
		defer func() { m.lastStore.Store(time.Since(start).Milliseconds()) }()

		switch topic {
		case TopicStoreThrow:
			var r model.ThrowRecord
			if err := json.Unmarshal(e.Payload, &r); err != nil {
				return nil, fmt.Errorf("failed to decode throw record: %w", err)
			}
			if err := m.deps.Backend.RecordThrow(&r); err != nil {
				m.storeErrors.Add(1)
				return nil, fmt.Errorf("failed to store throw: %w", err)
			}
			m.throwsStored.Add(1)
		case TopicStoreTrainingSample:
			var s model.TrainingSample
			if err := json.Unmarshal(e.Payload, &s); err != nil {
				return nil, fmt.Errorf("failed to decode training sample: %w", err)
			}
			if err := m.deps.Backend.RecordTrainingSample(&s); err != nil {
				m.storeErrors.Add(1)
				return nil, fmt.Errorf("failed to store training sample: %w", err)
			}
			m.samplesStored.Add(1)
		default:
			return nil, fmt.Errorf("no store for topic: %s", topic)
		}
		return nil, nil
	}
}
