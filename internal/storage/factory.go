package storage

import (
	"fmt"
	"log/slog"

	"github.com/ballbot/robot-ai/internal/config"
	"github.com/ballbot/robot-ai/internal/database"
	"github.com/ballbot/robot-ai/internal/storage/gormstore"
	"github.com/ballbot/robot-ai/internal/storage/memory"
	"github.com/ballbot/robot-ai/internal/storage/websocket"
	"gorm.io/gorm"
)

// NewBackend creates a storage backend based on configuration
func NewBackend(cfg config.StorageConfig, dbCfg config.DatabaseConfig, logger *slog.Logger) (Backend, error) {
	switch cfg.Type {
	case "postgres":
		return gormstore.New(func() (*gorm.DB, error) { return database.OpenPostgres(dbCfg) }, logger), nil
	case "sqlite":
		return gormstore.New(func() (*gorm.DB, error) { return database.OpenSQLite(cfg.SQLite.Path) }, logger), nil
	case "memory":
		return memory.New(cfg.Memory), nil
	case "websocket":
		return websocket.New(websocket.Config{
			URL:    cfg.Websocket.URL,
			Secret: cfg.Websocket.Secret,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
