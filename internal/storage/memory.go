package storage

import (
	"context"

	"github.com/patrickmn/go-cache"
)

// MemoryStore is a process-local KeyValueStore. Items never expire.
type MemoryStore struct {
	cache *cache.Cache
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cache: cache.New(cache.NoExpiration, 0)}
}

func (m *MemoryStore) GetItem(_ context.Context, key string) (string, bool, error) {
	if x, found := m.cache.Get(key); found {
		return x.(string), true, nil
	}
	return "", false, nil
}

func (m *MemoryStore) SetItem(_ context.Context, key, value string) error {
	m.cache.Set(key, value, cache.NoExpiration)
	return nil
}

func (m *MemoryStore) RemoveItem(_ context.Context, key string) error {
	m.cache.Delete(key)
	return nil
}
