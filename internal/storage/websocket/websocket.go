// Package websocket streams throw and training records to a remote collector.
// The collector is write-only from the robot's point of view.
package websocket

import (
	"log/slog"

	"github.com/ballbot/robot-ai/internal/model"
	"github.com/ballbot/robot-ai/pkg/messages"
)

// Collector message topics.
const (
	TypeStartSession   = "start_session"
	TypeEndSession     = "end_session"
	TypeThrow          = "throw"
	TypeTrainingSample = "training_sample"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend streams records over WebSocket. It implements storage.Backend.
type Backend struct {
	conn *connection
	cfg  Config
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn: newConnection(logger.With("component", "collector")),
		cfg:  cfg,
	}
}

// Init connects to the collector.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the collector.
func (b *Backend) Close() error {
	return b.conn.close()
}

func (b *Backend) sendEnvelope(topic string, payload any) error {
	data, err := messages.Encode(topic, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// StartSession announces the session and waits for the collector's ack. The
// announcement is replayed after every reconnect.
func (b *Backend) StartSession(s *model.Session) error {
	data, err := messages.Encode(TypeStartSession, s)
	if err != nil {
		return err
	}
	b.conn.setHello(data)
	return b.conn.sendAndWait(data, TypeStartSession, ackTimeout)
}

// EndSession closes the session on the collector and waits for its ack.
func (b *Backend) EndSession(s *model.Session) error {
	data, err := messages.Encode(TypeEndSession, s)
	if err != nil {
		return err
	}
	err = b.conn.sendAndWait(data, TypeEndSession, ackTimeout)
	b.conn.setHello(nil)
	return err
}

func (b *Backend) RecordThrow(r *model.ThrowRecord) error {
	return b.sendEnvelope(TypeThrow, r)
}

func (b *Backend) RecordTrainingSample(s *model.TrainingSample) error {
	return b.sendEnvelope(TypeTrainingSample, s)
}

// TrainingSamples always returns nil; the collector is write-only.
func (b *Backend) TrainingSamples() ([]model.TrainingSample, error) {
	return nil, nil
}
