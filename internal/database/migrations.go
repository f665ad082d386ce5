package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SchemaVersion is the schema version this build expects.
const SchemaVersion = 2

// ErrSchemaTooNew indicates the stored schema was written by a newer build.
var ErrSchemaTooNew = errors.New("database: stored schema version is newer than requested")

type schemaVersionRecord struct {
	Version         int   `gorm:"column:version;primaryKey;autoIncrement:false"`
	AppliedAtMillis int64 `gorm:"column:applied_at_ms;not null"`
}

func (schemaVersionRecord) TableName() string {
	return "schema_versions"
}

type migrationDefinition struct {
	version int
	name    string
	apply   func(*gorm.DB) error
}

var migrations = []migrationDefinition{
	{version: 1, name: "create_notes", apply: createNotesCollection},
	{version: 2, name: "add_note_styles_and_local_storage", apply: addNoteStylesAndLocalStorage},
}

func upgradeSchema(db *gorm.DB, targetVersion int, logger *zap.Logger) error {
	if err := db.AutoMigrate(&schemaVersionRecord{}); err != nil {
		return err
	}

	current, err := storedSchemaVersion(db)
	if err != nil {
		return err
	}
	if current > targetVersion {
		return fmt.Errorf("%w: stored %d, requested %d", ErrSchemaTooNew, current, targetVersion)
	}

	for _, migration := range migrations {
		if migration.version <= current || migration.version > targetVersion {
			continue
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			return tx.Create(&schemaVersionRecord{
				Version:         migration.version,
				AppliedAtMillis: time.Now().UTC().UnixMilli(),
			}).Error
		})
		if err != nil {
			return fmt.Errorf("schema migration %d (%s): %w", migration.version, migration.name, err)
		}
		if logger != nil {
			logger.Info("database migration applied",
				zap.Int("version", migration.version),
				zap.String("migration", migration.name))
		}
	}
	return nil
}

func storedSchemaVersion(db *gorm.DB) (int, error) {
	var version sql.NullInt64
	if err := db.Model(&schemaVersionRecord{}).Select("MAX(version)").Row().Scan(&version); err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}

func createNotesCollection(db *gorm.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS notes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			content TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notes_created_at ON notes (created_at)`,
	}
	return execAll(db, statements)
}

func addNoteStylesAndLocalStorage(db *gorm.DB) error {
	statements := []string{
		`ALTER TABLE notes ADD COLUMN color TEXT NOT NULL DEFAULT '#fff9c4'`,
		`ALTER TABLE notes ADD COLUMN font_size INTEGER NOT NULL DEFAULT 16`,
		`ALTER TABLE notes ADD COLUMN theme TEXT NOT NULL DEFAULT 'default'`,
		`CREATE TABLE IF NOT EXISTS local_storage (
			storage_key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}
	return execAll(db, statements)
}

func execAll(db *gorm.DB, statements []string) error {
	for _, statement := range statements {
		if err := db.Exec(statement).Error; err != nil {
			return err
		}
	}
	return nil
}
