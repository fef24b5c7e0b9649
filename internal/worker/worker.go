// Package worker connects the dispatcher to the controller actor and to the
// storage and telemetry sinks.
package worker

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ballbot/robot-ai/internal/dispatcher"
	"github.com/ballbot/robot-ai/internal/model"
	"github.com/ballbot/robot-ai/internal/storage"
	"github.com/ballbot/robot-ai/pkg/messages"
)

// Controller is the decision core as seen by the inbound handlers. Submit
// runs fn on the controller's goroutine; the Handle methods are only called
// from inside submitted closures.
type Controller interface {
	Submit(fn func()) error
	HandleVision(v messages.Vision)
	HandleFeedback(fb messages.MainboardFeedback) error
	HandleCommand(cmd messages.AiCommand) error
	HandleConfiguration(msg messages.AiConfiguration) error
	HandleTraining(msg messages.Training) error
}

// Telemetry receives ticks and throws for time-series storage.
type Telemetry interface {
	RecordTick(s model.Snapshot)
	RecordThrow(r model.ThrowRecord)
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Backend   storage.Backend
	Telemetry Telemetry
	Logger    *slog.Logger
}

// Stats are running counters for the status file.
type Stats struct {
	Accepted       uint64 `json:"accepted"`
	Rejected       uint64 `json:"rejected"`
	ThrowsStored   uint64 `json:"throwsStored"`
	SamplesStored  uint64 `json:"samplesStored"`
	StoreErrors    uint64 `json:"storeErrors"`
	LastStoreMilli int64  `json:"lastStoreMs"`
}

// Manager routes events and implements the controller's recorder.
type Manager struct {
	deps       Dependencies
	log        *slog.Logger
	dispatcher *dispatcher.Dispatcher
	ctrl       Controller

	accepted      atomic.Uint64
	rejected      atomic.Uint64
	throwsStored  atomic.Uint64
	samplesStored atomic.Uint64
	storeErrors   atomic.Uint64
	lastStore     atomic.Int64
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		deps: deps,
		log:  logger.With("component", "worker"),
	}
}

// Stats returns a copy of the counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Accepted:       m.accepted.Load(),
		Rejected:       m.rejected.Load(),
		ThrowsStored:   m.throwsStored.Load(),
		SamplesStored:  m.samplesStored.Load(),
		StoreErrors:    m.storeErrors.Load(),
		LastStoreMilli: m.lastStore.Load(),
	}
}

// RecordTick forwards a snapshot to telemetry.
func (m *Manager) RecordTick(s model.Snapshot) {
	if m.deps.Telemetry != nil {
		m.deps.Telemetry.RecordTick(s)
	}
}

// RecordThrow forwards a throw to telemetry and queues it for storage.
func (m *Manager) RecordThrow(r model.ThrowRecord) {
	if m.deps.Telemetry != nil {
		m.deps.Telemetry.RecordThrow(r)
	}
	m.store(TopicStoreThrow, r)
}

// RecordTrainingSample queues a sample for storage.
func (m *Manager) RecordTrainingSample(s model.TrainingSample) {
	m.store(TopicStoreTrainingSample, s)
}

// store hands a record to the buffered storage handler without blocking the
// caller. Without a dispatcher the record is written directly.
func (m *Manager) store(topic string, record any) {
	payload, err := json.Marshal(record)
	if err != nil {
		m.log.Error("Failed to encode record", "topic", topic, "error", err)
		return
	}
	e := dispatcher.Event{Topic: topic, Payload: payload, Timestamp: time.Now()}
	if m.dispatcher == nil {
		if _, err := m.storeHandler(topic)(e); err != nil {
			m.log.Warn("Record not stored", "topic", topic, "error", err)
		}
		return
	}
	if _, err := m.dispatcher.Dispatch(e); err != nil {
		m.storeErrors.Add(1)
		m.log.Warn("Record not queued", "topic", topic, "error", err)
	}
}
