package storage

import "github.com/ballbot/robot-ai/internal/model"

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(s *model.Session) error
	EndSession(s *model.Session) error

	// Recording
	RecordThrow(r *model.ThrowRecord) error
	RecordTrainingSample(s *model.TrainingSample) error

	// TrainingSamples returns every stored sample, oldest first. Write-only
	// backends return nil.
	TrainingSamples() ([]model.TrainingSample, error)
}

// Exportable is an optional interface for backends that write an export file
// on Close.
type Exportable interface {
	ExportedFilePath() string
}
