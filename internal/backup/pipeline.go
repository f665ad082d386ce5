// Package backup moves the notes collection between the database, the snapshot
// key-value area, and downloadable files.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/MarcoPoloResearchLab/stickynotes/internal/notes"
	"github.com/MarcoPoloResearchLab/stickynotes/internal/storage"
	"go.uber.org/zap"
)

const (
	// DefaultStorageKey names the key the snapshot is written under.
	DefaultStorageKey = "notes_backup"

	exportContentType = "application/json"
	exportIndent      = "  "

	opPipelineNew = "backup.pipeline.new"
	opBackup      = "backup.snapshot"
	opRestore     = "backup.restore"
	opExport      = "backup.export"
	opImport      = "backup.import"
	opHasBackup   = "backup.has_backup"
	opInfo        = "backup.info"

	reasonMissingNotes   = "missing_notes"
	reasonMissingStorage = "missing_storage"
	reasonMarshalFailed  = "marshal_failed"
	reasonReadFailed     = "read_failed"
	reasonWriteFailed    = "write_failed"
	reasonNotFound       = "not_found"
	reasonCorrupt        = "corrupt"
	reasonNotArray       = "not_array"
	reasonInvalidElement = "invalid_element"
)

var noOpLogger = zap.NewNop()

// NotesRepository is the slice of the note store the pipeline depends on.
type NotesRepository interface {
	List(ctx context.Context) ([]notes.Note, error)
	ReplaceAll(ctx context.Context, records []notes.NoteRecord, options notes.BulkOptions) (int, error)
}

// PipelineConfig describes the dependencies of the backup pipeline.
type PipelineConfig struct {
	Notes      NotesRepository
	Storage    storage.KeyValueStore
	StorageKey string
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Pipeline snapshots, restores, exports and imports the notes collection.
type Pipeline struct {
	notes      NotesRepository
	storage    storage.KeyValueStore
	storageKey string
	clock      func() time.Time
	logger     *zap.Logger
}

// Artifact is a downloadable export payload.
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
}

// NewPipeline validates the configuration and constructs a Pipeline.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Notes == nil {
		return nil, newServiceError(opPipelineNew, reasonMissingNotes, nil, errors.New("notes repository is required"))
	}
	if cfg.Storage == nil {
		return nil, newServiceError(opPipelineNew, reasonMissingStorage, nil, errors.New("key-value storage is required"))
	}

	storageKey := cfg.StorageKey
	if storageKey == "" {
		storageKey = DefaultStorageKey
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Pipeline{
		notes:      cfg.Notes,
		storage:    cfg.Storage,
		storageKey: storageKey,
		clock:      clock,
		logger:     logger,
	}, nil
}

// StorageKey reports the key snapshots are written under.
func (p *Pipeline) StorageKey() string {
	return p.storageKey
}

// Backup writes a snapshot of the current collection, overwriting any previous one.
func (p *Pipeline) Backup(ctx context.Context) (Snapshot, error) {
	current, err := p.notes.List(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	snapshot := Snapshot{
		Version:   FormatVersion,
		Timestamp: p.nowMillis(),
		Notes:     current,
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		p.logError(opBackup, reasonMarshalFailed, err)
		return Snapshot{}, newServiceError(opBackup, reasonMarshalFailed, ErrSerializationFailed, err)
	}

	if err := p.storage.SetItem(ctx, p.storageKey, string(payload)); err != nil {
		p.logError(opBackup, reasonWriteFailed, err)
		return Snapshot{}, newServiceError(opBackup, reasonWriteFailed, ErrStorageFailed, err)
	}

	p.logger.Info("notes backup written",
		zap.String("storage_key", p.storageKey),
		zap.Int("note_count", len(current)),
		zap.Int64("timestamp", snapshot.Timestamp))
	return snapshot, nil
}

// Restore replaces the collection with the stored snapshot and returns the restored count.
// Timestamps are kept exactly; identifiers are reassigned.
func (p *Pipeline) Restore(ctx context.Context) (int, error) {
	payload, err := p.readSnapshot(ctx, opRestore)
	if err != nil {
		return 0, err
	}

	_, elements, err := decodeEnvelope(payload)
	if err != nil {
		p.logError(opRestore, reasonCorrupt, err)
		return 0, newServiceError(opRestore, reasonCorrupt, ErrCorruptBackup, err)
	}
	records, err := decodeRecords(elements)
	if err != nil {
		p.logError(opRestore, reasonCorrupt, err)
		return 0, newServiceError(opRestore, reasonCorrupt, ErrCorruptBackup, err)
	}

	restored, err := p.notes.ReplaceAll(ctx, records, notes.BulkOptions{PreserveTimestamps: true})
	if err != nil {
		return 0, err
	}
	p.logger.Info("notes restored from backup", zap.Int("note_count", restored))
	return restored, nil
}

// Export renders the collection as an indented JSON array. Stored state is not changed.
func (p *Pipeline) Export(ctx context.Context) (Artifact, error) {
	current, err := p.notes.List(ctx)
	if err != nil {
		return Artifact{}, err
	}

	data, err := json.MarshalIndent(current, "", exportIndent)
	if err != nil {
		p.logError(opExport, reasonMarshalFailed, err)
		return Artifact{}, newServiceError(opExport, reasonMarshalFailed, ErrSerializationFailed, err)
	}

	return Artifact{
		Filename:    fmt.Sprintf("notes-backup-%d.json", p.nowMillis()),
		ContentType: exportContentType,
		Data:        data,
	}, nil
}

// Import replaces the collection with the notes in content and returns the imported count.
func (p *Pipeline) Import(ctx context.Context, content []byte) (int, error) {
	elements, err := decodeArray(content)
	if err != nil {
		return 0, newServiceError(opImport, reasonNotArray, ErrInvalidFormat, err)
	}
	records, err := decodeRecords(elements)
	if err != nil {
		return 0, newServiceError(opImport, reasonInvalidElement, ErrInvalidFormat, err)
	}

	imported, err := p.notes.ReplaceAll(ctx, records, notes.BulkOptions{})
	if err != nil {
		return 0, err
	}
	p.logger.Info("notes imported", zap.Int("note_count", imported))
	return imported, nil
}

// ImportFrom reads the whole of reader and imports it.
func (p *Pipeline) ImportFrom(ctx context.Context, reader io.Reader) (int, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		p.logError(opImport, reasonReadFailed, err)
		return 0, newServiceError(opImport, reasonReadFailed, ErrInvalidFormat, err)
	}
	return p.Import(ctx, content)
}

// HasBackup reports whether a snapshot is stored.
func (p *Pipeline) HasBackup(ctx context.Context) (bool, error) {
	_, found, err := p.storage.GetItem(ctx, p.storageKey)
	if err != nil {
		p.logError(opHasBackup, reasonReadFailed, err)
		return false, newServiceError(opHasBackup, reasonReadFailed, ErrStorageFailed, err)
	}
	return found, nil
}

// Info reports the version, timestamp and note count of the stored snapshot.
func (p *Pipeline) Info(ctx context.Context) (Info, error) {
	payload, err := p.readSnapshot(ctx, opInfo)
	if err != nil {
		return Info{}, err
	}

	envelope, elements, err := decodeEnvelope(payload)
	if err != nil {
		return Info{}, newServiceError(opInfo, reasonCorrupt, ErrCorruptBackup, err)
	}
	return Info{
		Version:   envelope.Version,
		Timestamp: envelope.Timestamp,
		NoteCount: len(elements),
	}, nil
}

func (p *Pipeline) readSnapshot(ctx context.Context, operation string) (string, error) {
	payload, found, err := p.storage.GetItem(ctx, p.storageKey)
	if err != nil {
		p.logError(operation, reasonReadFailed, err)
		return "", newServiceError(operation, reasonReadFailed, ErrStorageFailed, err)
	}
	if !found {
		return "", newServiceError(operation, reasonNotFound, ErrNoBackupFound, nil)
	}
	return payload, nil
}

func (p *Pipeline) nowMillis() int64 {
	return p.clock().UnixMilli()
}

func (p *Pipeline) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	p.logger.Error("backup pipeline error", attrs...)
}
