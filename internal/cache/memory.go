package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process [Store] backed by a mutex-guarded map. Expired
// entries are dropped lazily on read. Suitable for tests and single-node
// deployments where Redis is not configured.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	leases  map[string]time.Time
	now     func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
	hasExpiry bool
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		leases:  make(map[string]time.Time),
		now:     time.Now,
	}
}

// Get retrieves a value, dropping it when expired.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if entry.hasExpiry && m.now().After(entry.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, true, nil
}

// Put stores a value. A non-positive TTL stores without expiry.
func (m *Memory) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)

	entry := memoryEntry{value: stored}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
		entry.hasExpiry = true
	}
	m.entries[key] = entry
	return nil
}

// Invalidate removes a key. Removing an absent key is not an error.
func (m *Memory) Invalidate(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// AcquireLease takes an exclusive lease unless an unexpired one exists.
func (m *Memory) AcquireLease(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if expiresAt, held := m.leases[key]; held && m.now().Before(expiresAt) {
		return false, nil
	}
	m.leases[key] = m.now().Add(ttl)
	return true, nil
}

// ReleaseLease drops a lease.
func (m *Memory) ReleaseLease(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.leases, key)
	return nil
}

// Close clears the store. Safe to call multiple times.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]memoryEntry)
	m.leases = make(map[string]time.Time)
	return nil
}
