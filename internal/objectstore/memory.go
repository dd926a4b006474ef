package objectstore

import (
	"context"
	"sort"
	"strings"

	"github.com/patrickmn/go-cache"
)

// MemoryBackend keeps objects in process memory. Used for development and tests.
type MemoryBackend struct {
	name  string
	cache *cache.Cache
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend(name string) *MemoryBackend {
	if name == "" {
		name = "memory"
	}
	return &MemoryBackend{
		name:  name,
		cache: cache.New(cache.NoExpiration, 0),
	}
}

// Name returns the backend name
func (m *MemoryBackend) Name() string {
	return m.name
}

// Get returns a copy of the stored object
func (m *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	value, found := m.cache.Get(key)
	if !found {
		return nil, notFound(key)
	}
	body := value.([]byte)
	return append([]byte(nil), body...), nil
}

// Put overwrites the object
func (m *MemoryBackend) Put(ctx context.Context, key string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.cache.Set(key, append([]byte(nil), body...), cache.NoExpiration)
	return nil
}

// Delete removes the object
func (m *MemoryBackend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, found := m.cache.Get(key); !found {
		return notFound(key)
	}
	m.cache.Delete(key)
	return nil
}

// List returns the keys under prefix in lexical order
func (m *MemoryBackend) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	keys := make([]string, 0)
	for key := range m.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
