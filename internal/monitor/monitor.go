// Package monitor rewrites a JSON status file once per interval so the robot's
// state can be inspected without a network client.
package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ballbot/robot-ai/internal/model"
	"github.com/ballbot/robot-ai/internal/worker"
)

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Snapshot   func() model.Snapshot
	Stats      func() worker.Stats
	Logger     *slog.Logger
	StatusFile string
	Interval   time.Duration
	StartedAt  time.Time
}

// Status is the document written to the status file.
type Status struct {
	UpdatedAt time.Time      `json:"updatedAt"`
	StartedAt time.Time      `json:"startedAt"`
	Uptime    string         `json:"uptime"`
	Worker    worker.Stats   `json:"worker"`
	AI        model.Snapshot `json:"ai"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.StartedAt.IsZero() {
		deps.StartedAt = time.Now()
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus assembles the current status document.
func (s *Service) GetStatus(now time.Time) Status {
	st := Status{
		UpdatedAt: now,
		StartedAt: s.deps.StartedAt,
		Uptime:    now.Sub(s.deps.StartedAt).Truncate(time.Second).String(),
	}
	if s.deps.Snapshot != nil {
		st.AI = s.deps.Snapshot()
	}
	if s.deps.Stats != nil {
		st.Worker = s.deps.Stats()
	}
	return st
}

// WriteStatus writes the status document, replacing the file atomically.
func (s *Service) WriteStatus(now time.Time) error {
	data, err := json.MarshalIndent(s.GetStatus(now), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}

	dir := filepath.Dir(s.deps.StatusFile)
	tmp, err := os.CreateTemp(dir, ".status-*.json")
	if err != nil {
		return fmt.Errorf("creating status file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing status file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing status file: %w", err)
	}
	return os.Rename(tmp.Name(), s.deps.StatusFile)
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if s.deps.StatusFile == "" {
		s.mu.Unlock()
		return fmt.Errorf("status file path not set")
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.Logger
		logger.Debug("Starting status monitor", "file", s.deps.StatusFile, "interval", s.deps.Interval)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				if err := s.WriteStatus(now); err != nil {
					logger.Error("Error writing status file", "error", err)
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
