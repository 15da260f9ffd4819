package storage

import (
	"sync"
	"time"
)

// Entry 是缓存中的一条记录: 值与过期时间。
type Entry struct {
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry is stale at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Backend 接口定义了缓存条目持久化的行为。
// 实现必须能被多个 goroutine 并发调用; 同一个 key 的并发写入以最后一次为准。
type Backend interface {
	Load(key string) (Entry, bool, error)
	Store(key string, entry Entry) error
	Delete(key string) error
	Keys() ([]string, error)
}

// MemoryBackend keeps entries in a map guarded by an RWMutex.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]Entry)}
}

func (m *MemoryBackend) Load(key string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	return e, ok, nil
}

func (m *MemoryBackend) Store(key string, entry Entry) error {
	value := make([]byte, len(entry.Value))
	copy(value, entry.Value)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = Entry{Value: value, ExpiresAt: entry.ExpiresAt}
	return nil
}

func (m *MemoryBackend) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MemoryBackend) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	return keys, nil
}
