package main

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ballbot/robot-ai/internal/config"
	"github.com/ballbot/robot-ai/internal/database"
	"github.com/ballbot/robot-ai/internal/model"
	"github.com/ballbot/robot-ai/internal/storage"

	"gorm.io/gorm"
)

// openDatabase connects to the database selected by storage.type.
func openDatabase() (*gorm.DB, error) {
	cfg := config.GetStorageConfig()
	switch cfg.Type {
	case "postgres":
		return database.OpenPostgres(config.GetDatabaseConfig())
	case "sqlite":
		if cfg.SQLite.Path == "" {
			return nil, fmt.Errorf("storage.sqlite.path is empty, nothing to set up")
		}
		return database.OpenSQLite(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("storage type %q has no database", cfg.Type)
	}
}

func setupDB() error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrating tables: %w", err)
	}
	Logger.Info("DB setup complete", "type", config.GetStorageConfig().Type)
	return nil
}

type samplesExport struct {
	ExportedAt time.Time              `json:"exportedAt"`
	Samples    []model.TrainingSample `json:"samples"`
}

// exportSamples writes every stored training sample to out as gzipped JSON.
func exportSamples(out string) error {
	if out == "" {
		out = fmt.Sprintf("training_samples_%s.json.gz", time.Now().Format("20060102_150405"))
	}

	backend, err := storage.NewBackend(config.GetStorageConfig(), config.GetDatabaseConfig(), Logger)
	if err != nil {
		return err
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer backend.Close()

	samples, err := backend.TrainingSamples()
	if err != nil {
		return fmt.Errorf("reading training samples: %w", err)
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	enc := json.NewEncoder(gz)
	enc.SetIndent("", "  ")
	if err := enc.Encode(samplesExport{ExportedAt: time.Now(), Samples: samples}); err != nil {
		return fmt.Errorf("encoding samples: %w", err)
	}
	if err := gz.Close(); err != nil {
		return err
	}
	Logger.Info("Training samples exported", "file", out, "count", len(samples))
	return nil
}
