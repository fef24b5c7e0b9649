// Package memory keeps throw and training records in memory and exports them
// as JSON when the backend closes.
package memory

import (
	"sync"
	"time"

	"github.com/ballbot/robot-ai/internal/config"
	"github.com/ballbot/robot-ai/internal/model"
)

// Backend stores session data in memory and exports to JSON
type Backend struct {
	cfg     config.MemoryConfig
	session *model.Session

	throws  []model.ThrowRecord
	samples []model.TrainingSample

	idCounter      uint
	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{cfg: cfg}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close exports whatever was recorded since the last export.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil && len(b.throws) == 0 && len(b.samples) == 0 {
		return nil
	}
	return b.exportJSON(time.Now())
}

// StartSession begins recording a new session, discarding earlier records.
func (b *Backend) StartSession(s *model.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.session = s
	b.throws = nil
	b.samples = nil
	b.idCounter = 0
	return nil
}

// EndSession stamps the session and exports it.
func (b *Backend) EndSession(s *model.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.session = s
	if err := b.exportJSON(time.Now()); err != nil {
		return err
	}
	b.session = nil
	b.throws = nil
	b.samples = nil
	return nil
}

// RecordThrow stores a throw and assigns its ID.
func (b *Backend) RecordThrow(r *model.ThrowRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.idCounter++
	r.ID = b.idCounter
	b.throws = append(b.throws, *r)
	return nil
}

// RecordTrainingSample stores a sample and assigns its ID.
func (b *Backend) RecordTrainingSample(s *model.TrainingSample) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.idCounter++
	s.ID = b.idCounter
	b.samples = append(b.samples, *s)
	return nil
}

// TrainingSamples returns a copy of the samples recorded this session.
func (b *Backend) TrainingSamples() ([]model.TrainingSample, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]model.TrainingSample, len(b.samples))
	copy(out, b.samples)
	return out, nil
}

// Throws returns a copy of the throws recorded this session.
func (b *Backend) Throws() []model.ThrowRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]model.ThrowRecord, len(b.throws))
	copy(out, b.throws)
	return out
}

// ExportedFilePath returns the path of the last export, or "" if none.
func (b *Backend) ExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
