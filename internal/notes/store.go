package notes

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

const (
	opStoreNew   = "notes.store.new"
	opList       = "notes.list"
	opGet        = "notes.get"
	opCreate     = "notes.create"
	opUpdate     = "notes.update"
	opDelete     = "notes.delete"
	opClear      = "notes.clear"
	opBulkInsert = "notes.bulk_insert"
	opReplaceAll = "notes.replace_all"

	fieldNoteID  = "note_id"
	fieldCount   = "count"
	queryNoteID  = "id = ?"
	orderCreated = "created_at ASC, id ASC"

	reasonMissingDatabase = "missing_database"
	reasonQueryFailed     = "query_failed"
	reasonNotFound        = "not_found"
	reasonInsertFailed    = "insert_failed"
	reasonSaveFailed      = "save_failed"
	reasonDeleteFailed    = "delete_failed"
	reasonClearFailed     = "clear_failed"
	reasonTransaction     = "transaction_failed"

	bulkInsertBatchSize = 200
)

// StoreConfig describes the dependencies of the note store.
type StoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Store mediates all persistence of the notes collection.
type Store struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewStore wires a Store around an opened database handle.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opStoreNew, reasonMissingDatabase, ErrStoreUnavailable, errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Store{
		db:     cfg.Database,
		clock:  clock,
		logger: logger,
	}, nil
}

// List returns every note ordered ascending by creation time.
func (s *Store) List(ctx context.Context) ([]Note, error) {
	if err := s.requireDatabase(opList); err != nil {
		return nil, err
	}

	var notes []Note
	if err := s.db.WithContext(ctx).Order(orderCreated).Find(&notes).Error; err != nil {
		s.logError(opList, reasonQueryFailed, err)
		return nil, newServiceError(opList, reasonQueryFailed, ErrStoreUnavailable, err)
	}
	if notes == nil {
		notes = []Note{}
	}
	return notes, nil
}

// Get returns the note stored under id.
func (s *Store) Get(ctx context.Context, id int64) (Note, error) {
	if err := s.requireDatabase(opGet); err != nil {
		return Note{}, err
	}

	var note Note
	err := s.db.WithContext(ctx).Where(queryNoteID, id).Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Note{}, newServiceError(opGet, reasonNotFound, ErrNotFound, nil)
	}
	if err != nil {
		s.logError(opGet, reasonQueryFailed, err, zap.Int64(fieldNoteID, id))
		return Note{}, newServiceError(opGet, reasonQueryFailed, ErrStoreUnavailable, err)
	}
	return note, nil
}

// Create inserts a note, filling style defaults for any field not supplied.
func (s *Store) Create(ctx context.Context, fields NoteFields) (Note, error) {
	if err := s.requireDatabase(opCreate); err != nil {
		return Note{}, err
	}

	note := newNote(fields, s.nowMillis())
	if err := s.db.WithContext(ctx).Create(&note).Error; err != nil {
		s.logError(opCreate, reasonInsertFailed, err)
		return Note{}, newServiceError(opCreate, reasonInsertFailed, ErrWriteFailed, err)
	}
	return note, nil
}

// Update shallow-merges fields onto the stored note and refreshes its update time.
// The creation time is never altered.
func (s *Store) Update(ctx context.Context, id int64, fields NoteFields) (Note, error) {
	if err := s.requireDatabase(opUpdate); err != nil {
		return Note{}, err
	}

	var updated Note
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Note
		err := tx.Where(queryNoteID, id).Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opUpdate, reasonNotFound, ErrNotFound, nil)
		}
		if err != nil {
			s.logError(opUpdate, reasonQueryFailed, err, zap.Int64(fieldNoteID, id))
			return newServiceError(opUpdate, reasonQueryFailed, ErrStoreUnavailable, err)
		}

		fields.applyTo(&existing)
		existing.UpdatedAtMillis = max(s.nowMillis(), existing.CreatedAtMillis)

		if err := tx.Save(&existing).Error; err != nil {
			s.logError(opUpdate, reasonSaveFailed, err, zap.Int64(fieldNoteID, id))
			return newServiceError(opUpdate, reasonSaveFailed, ErrWriteFailed, err)
		}
		updated = existing
		return nil
	})
	if txErr != nil {
		return Note{}, s.transactionError(opUpdate, txErr)
	}
	return updated, nil
}

// Delete removes the note stored under id. Deleting an absent id succeeds.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	if err := s.requireDatabase(opDelete); err != nil {
		return false, err
	}

	if err := s.db.WithContext(ctx).Where(queryNoteID, id).Delete(&Note{}).Error; err != nil {
		s.logError(opDelete, reasonDeleteFailed, err, zap.Int64(fieldNoteID, id))
		return false, newServiceError(opDelete, reasonDeleteFailed, ErrWriteFailed, err)
	}
	return true, nil
}

// Clear removes every note. Identifiers are not reused afterwards.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.requireDatabase(opClear); err != nil {
		return err
	}
	return s.clear(s.db.WithContext(ctx), opClear)
}

// BulkInsert adds records as new notes in one transaction and returns how many were stored.
// Supplied creation times are kept; update times are refreshed.
func (s *Store) BulkInsert(ctx context.Context, records []NoteRecord) (int, error) {
	if err := s.requireDatabase(opBulkInsert); err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	inserted := 0
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		count, err := s.insertRecords(tx, opBulkInsert, records, BulkOptions{})
		inserted = count
		return err
	})
	if txErr != nil {
		return 0, s.transactionError(opBulkInsert, txErr)
	}
	return inserted, nil
}

// ReplaceAll clears the collection and bulk inserts records as one failure-atomic unit.
func (s *Store) ReplaceAll(ctx context.Context, records []NoteRecord, options BulkOptions) (int, error) {
	if err := s.requireDatabase(opReplaceAll); err != nil {
		return 0, err
	}

	inserted := 0
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.clear(tx, opReplaceAll); err != nil {
			return err
		}
		count, err := s.insertRecords(tx, opReplaceAll, records, options)
		inserted = count
		return err
	})
	if txErr != nil {
		return 0, s.transactionError(opReplaceAll, txErr)
	}

	s.loggerOrDefault().Info("notes collection replaced",
		zap.Int(fieldCount, inserted),
		zap.Bool("preserve_timestamps", options.PreserveTimestamps))
	return inserted, nil
}

func (s *Store) clear(db *gorm.DB, operation string) error {
	err := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Note{}).Error
	if err != nil {
		s.logError(operation, reasonClearFailed, err)
		return newServiceError(operation, reasonClearFailed, ErrWriteFailed, err)
	}
	return nil
}

func (s *Store) insertRecords(tx *gorm.DB, operation string, records []NoteRecord, options BulkOptions) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	nowMillis := s.nowMillis()
	batch := make([]Note, 0, len(records))
	for _, record := range records {
		batch = append(batch, noteFromRecord(record, nowMillis, options))
	}

	if err := tx.CreateInBatches(&batch, bulkInsertBatchSize).Error; err != nil {
		s.logError(operation, reasonInsertFailed, err, zap.Int(fieldCount, len(batch)))
		return 0, newServiceError(operation, reasonInsertFailed, ErrWriteFailed, err)
	}
	return len(batch), nil
}

func (s *Store) transactionError(operation string, err error) error {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return err
	}
	s.logError(operation, reasonTransaction, err)
	return newServiceError(operation, reasonTransaction, ErrWriteFailed, err)
}

func (s *Store) requireDatabase(operation string) error {
	if s == nil || s.db == nil {
		s.logError(operation, reasonMissingDatabase, errMissingDatabase)
		return newServiceError(operation, reasonMissingDatabase, ErrStoreUnavailable, errMissingDatabase)
	}
	return nil
}

func (s *Store) nowMillis() int64 {
	return s.clock().UnixMilli()
}

func (s *Store) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("notes store error", attrs...)
}
