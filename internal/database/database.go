// Package database opens the gorm connections used by the persistent storage
// backend and migrates the schema.
package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ballbot/robot-ai/internal/config"
	"github.com/ballbot/robot-ai/internal/model"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const pingTimeout = 5 * time.Second

func gormConfig(prepare bool) *gorm.Config {
	return &gorm.Config{
		PrepareStmt:            prepare,
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	}
}

// postgresDSN renders cfg as a libpq keyword/value string. Values are quoted
// so passwords may contain spaces or quotes.
func postgresDSN(cfg config.DatabaseConfig) string {
	quote := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	parts := []string{
		"host=" + cfg.Host,
		"port=" + cfg.Port,
		"user='" + quote.Replace(cfg.Username) + "'",
		"password='" + quote.Replace(cfg.Password) + "'",
		"dbname='" + quote.Replace(cfg.Database) + "'",
		"sslmode=disable",
	}
	return strings.Join(parts, " ")
}

// OpenPostgres connects to the Postgres database described by cfg and checks
// that it answers.
func OpenPostgres(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dialector := postgres.New(postgres.Config{DSN: postgresDSN(cfg), PreferSimpleProtocol: true})
	db, err := gorm.Open(dialector, gormConfig(false))
	if err != nil {
		return nil, fmt.Errorf("opening postgres %s:%s: %w", cfg.Host, cfg.Port, err)
	}
	if err := limit(db, 4, true); err != nil {
		return nil, err
	}
	return db, nil
}

// sqliteDSN returns path, or a uniquely named shared-cache memory database
// when path is empty.
func sqliteDSN(path string) string {
	if path != "" {
		return path
	}
	return "file:" + uuid.NewString() + "?mode=memory&cache=shared"
}

// OpenSQLite opens a SQLite database file. An empty path opens a private
// in-memory database that lives until the connection is closed.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(sqliteDSN(path)), gormConfig(true))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	journal := "WAL"
	if path == "" {
		journal = "MEMORY"
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = " + journal,
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	} {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	// One connection keeps a memory database alive and serialises writers.
	if err := limit(db, 1, false); err != nil {
		return nil, err
	}
	return db, nil
}

func limit(db *gorm.DB, maxOpen int, ping bool) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	if !ping {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("failed to validate connection: %w", err)
	}
	return nil
}

// Close closes the pool behind db.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate creates or updates every table in model.DatabaseModels.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
