// Package gormstore implements the storage.Backend interface on GORM, backed by
// Postgres or SQLite. Records are queued and written in batches by a
// background writer goroutine.
package gormstore

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ballbot/robot-ai/internal/database"
	"github.com/ballbot/robot-ai/internal/model"
	"github.com/ballbot/robot-ai/internal/queue"

	"gorm.io/gorm"
)

const (
	flushInterval = time.Second
	queueLimit    = 10_000
)

// Opener returns a ready database connection.
type Opener func() (*gorm.DB, error)

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	open Opener
	db   *gorm.DB
	log  *slog.Logger

	throws  *queue.Queue[model.ThrowRecord]
	samples *queue.Queue[model.TrainingSample]
	flushMu sync.Mutex

	stopChan  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a new GORM storage backend. The connection is opened by Init.
func New(open Opener, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		open:    open,
		log:     logger.With("component", "gormstore"),
		throws:  queue.New[model.ThrowRecord](queueLimit),
		samples: queue.New[model.TrainingSample](queueLimit),
	}
}

// Init opens the connection, runs schema migration and starts the writer.
func (b *Backend) Init() error {
	db, err := b.open()
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return err
	}
	b.db = db
	b.log.Info("Database ready", "dialect", db.Name())

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writeLoop()
	return nil
}

// Close stops the writer, flushes pending records and closes the connection.
func (b *Backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		if b.stopChan == nil {
			return
		}
		close(b.stopChan)
		<-b.done

		err = errors.Join(b.Flush(), database.Close(b.db))
	})
	return err
}

// StartSession inserts the session row.
func (b *Backend) StartSession(s *model.Session) error {
	if b.db == nil {
		return nil
	}
	if err := b.db.Create(s).Error; err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// EndSession flushes pending records and saves the closed session.
func (b *Backend) EndSession(s *model.Session) error {
	if b.db == nil {
		return nil
	}
	err := b.Flush()
	if saveErr := b.db.Save(s).Error; saveErr != nil {
		err = errors.Join(err, fmt.Errorf("failed to save session: %w", saveErr))
	}
	return err
}

// RecordThrow queues a throw for the writer.
func (b *Backend) RecordThrow(r *model.ThrowRecord) error {
	if n := b.throws.Push(*r); n > 0 {
		b.log.Warn("Throw queue full, dropped oldest", "dropped", n)
	}
	return nil
}

// RecordTrainingSample queues a sample for the writer.
func (b *Backend) RecordTrainingSample(s *model.TrainingSample) error {
	if n := b.samples.Push(*s); n > 0 {
		b.log.Warn("Training sample queue full, dropped oldest", "dropped", n)
	}
	return nil
}

// TrainingSamples flushes pending samples and returns every stored one.
func (b *Backend) TrainingSamples() ([]model.TrainingSample, error) {
	if b.db == nil {
		return nil, nil
	}
	if err := b.Flush(); err != nil {
		b.log.Warn("Flush before reading training samples failed", "error", err)
	}
	var samples []model.TrainingSample
	if err := b.db.Order("id").Find(&samples).Error; err != nil {
		return nil, fmt.Errorf("failed to read training samples: %w", err)
	}
	return samples, nil
}

// Flush writes every queued record. Records whose write fails go back to the
// front of their queue.
func (b *Backend) Flush() error {
	if b.db == nil {
		return nil
	}
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	var errs []error
	if throws := b.throws.Drain(); len(throws) > 0 {
		if err := b.db.Create(&throws).Error; err != nil {
			b.throws.Requeue(throws)
			errs = append(errs, fmt.Errorf("writing %d throws: %w", len(throws), err))
		}
	}
	if samples := b.samples.Drain(); len(samples) > 0 {
		if err := b.db.Create(&samples).Error; err != nil {
			b.samples.Requeue(samples)
			errs = append(errs, fmt.Errorf("writing %d training samples: %w", len(samples), err))
		}
	}
	return errors.Join(errs...)
}

// writeLoop periodically drains the queues into the DB.
func (b *Backend) writeLoop() {
	defer close(b.done)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.Flush(); err != nil {
				b.log.Error("Error writing to database", "error", err)
			}
		}
	}
}
