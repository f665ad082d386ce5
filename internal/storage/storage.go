// Package storage provides the string key-value area that holds backup snapshots.
package storage

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the underlying key-value area cannot be reached.
var ErrUnavailable = errors.New("storage: unavailable")

// KeyValueStore persists string values under string keys.
// GetItem reports found=false with a nil error when the key is absent.
type KeyValueStore interface {
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}
