package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type storageItem struct {
	Key             string `gorm:"column:storage_key;primaryKey"`
	Value           string `gorm:"column:value;type:text;not null"`
	UpdatedAtMillis int64  `gorm:"column:updated_at;not null"`
}

func (storageItem) TableName() string {
	return "local_storage"
}

// SQLiteStore keeps items in the local_storage table next to the notes collection.
type SQLiteStore struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewSQLiteStore wraps an opened database whose schema already carries local_storage.
func NewSQLiteStore(db *gorm.DB, logger *zap.Logger) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: database handle is required", ErrUnavailable)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteStore{db: db, clock: time.Now, logger: logger}, nil
}

func (s *SQLiteStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	var item storageItem
	err := s.db.WithContext(ctx).Where("storage_key = ?", key).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		s.logger.Error("storage read failed", zap.String("key", key), zap.Error(err))
		return "", false, fmt.Errorf("%w: get %s: %w", ErrUnavailable, key, err)
	}
	return item.Value, true, nil
}

func (s *SQLiteStore) SetItem(ctx context.Context, key, value string) error {
	item := storageItem{Key: key, Value: value, UpdatedAtMillis: s.clock().UnixMilli()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "storage_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&item).Error
	if err != nil {
		s.logger.Error("storage write failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("%w: set %s: %w", ErrUnavailable, key, err)
	}
	return nil
}

func (s *SQLiteStore) RemoveItem(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("storage_key = ?", key).Delete(&storageItem{}).Error; err != nil {
		s.logger.Error("storage delete failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("%w: remove %s: %w", ErrUnavailable, key, err)
	}
	return nil
}
