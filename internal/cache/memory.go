package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryProvider is an in-process Provider with per-key expiry. It backs
// single-instance deployments and tests.
type MemoryProvider struct {
	mu   sync.Mutex
	data map[string]memoryItem
	now  func() time.Time
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryProvider creates an empty in-memory cache.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{data: make(map[string]memoryItem), now: time.Now}
}

func (m *MemoryProvider) lookup(key string) (memoryItem, bool) {
	it, ok := m.data[key]
	if !ok {
		return memoryItem{}, false
	}
	if !it.expiresAt.IsZero() && !m.now().Before(it.expiresAt) {
		delete(m.data, key)
		return memoryItem{}, false
	}
	return it, true
}

func (m *MemoryProvider) store(key string, value []byte, ttl time.Duration) {
	var expires time.Time
	if ttl > 0 {
		expires = m.now().Add(ttl)
	}
	m.data[key] = memoryItem{value: append([]byte(nil), value...), expiresAt: expires}
}

// Get returns a copy of the cached value or ErrCacheMiss.
func (m *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.lookup(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), it.value...), nil
}

// Set stores a copy of value; ttl <= 0 never expires.
func (m *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(key, value, ttl)
	return nil
}

// SetNX stores value only when key is absent or expired.
func (m *MemoryProvider) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lookup(key); ok {
		return false, nil
	}
	m.store(key, value, ttl)
	return true, nil
}

// Del removes a key.
func (m *MemoryProvider) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Close drops every entry.
func (m *MemoryProvider) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]memoryItem)
	return nil
}
