package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ballbot/robot-ai/internal/model"
)

// Export is the root JSON structure
type Export struct {
	Session         *model.Session         `json:"session,omitempty"`
	ExportedAt      time.Time              `json:"exportedAt"`
	Throws          []model.ThrowRecord    `json:"throws"`
	TrainingSamples []model.TrainingSample `json:"trainingSamples"`
}

// exportJSON writes the session data to a (optionally gzipped) JSON file.
// Callers hold b.mu.
func (b *Backend) exportJSON(now time.Time) error {
	export := b.buildExport(now)

	name := "ballbot_" + now.Format("20060102_150405")
	if b.session != nil && b.session.ID != "" {
		name = fmt.Sprintf("ballbot_%s_%s", b.session.StartedAt.Format("20060102_150405"), b.session.ID)
	}

	var filename string
	if b.cfg.CompressOutput {
		filename = name + ".json.gz"
	} else {
		filename = name + ".json"
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if b.cfg.CompressOutput {
		if err := writeGzipJSON(outputPath, export); err != nil {
			return err
		}
	} else {
		if err := writeJSON(outputPath, export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport(now time.Time) Export {
	export := Export{
		Session:         b.session,
		ExportedAt:      now,
		Throws:          make([]model.ThrowRecord, len(b.throws)),
		TrainingSamples: make([]model.TrainingSample, len(b.samples)),
	}
	copy(export.Throws, b.throws)
	copy(export.TrainingSamples, b.samples)
	return export
}

func writeJSON(path string, data Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func writeGzipJSON(path string, data Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	if err := json.NewEncoder(gw).Encode(data); err != nil {
		_ = gw.Close()
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return nil
}
