package database

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/stickynotes/internal/notes"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and upgrades the schema to SchemaVersion.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: database path is required", notes.ErrStoreUnavailable)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", notes.ErrStoreUnavailable, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", notes.ErrStoreUnavailable, err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := upgradeSchema(db, SchemaVersion, logger); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: %w", notes.ErrStoreUnavailable, err)
	}

	if logger != nil {
		logger.Info("database initialized",
			zap.String("path", path),
			zap.Int("schema_version", SchemaVersion))
	}

	return db, nil
}

// Close releases the connection pool behind db.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
