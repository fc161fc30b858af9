package cache

import (
	"context"
	"sync"
	"time"

	"github.com/fileforge/fileforge/internal/clockx"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// Memory is a process-local Cache. TTL decisions use the injected clock so
// expiry behavior is deterministic under test.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	clock   clockx.Clock
}

// NewMemory constructs an empty in-memory cache.
func NewMemory(clock clockx.Clock) *Memory {
	return &Memory{entries: make(map[string]memoryEntry), clock: clock}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || !m.clock.Now().Before(e.expiresAt) {
		return "", ErrCacheMiss
	}
	return e.value, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	m.entries[key] = memoryEntry{value: value, expiresAt: m.clock.Now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}
