// Package kv defines the key-value blob store the durable queue persists to.
package kv

import "sync"

// Keys used by snapfood.
const (
	KeyPendingScans = "snapfood_pending_scans"
	KeyOfflineMode  = "snapfood_offline_mode"
)

// Store is a key-value blob store. Save must be atomic per key: after it
// returns nil, a later Load (even after a crash) sees the new bytes.
type Store interface {
	// Load returns the bytes under key; ok is false when the key is absent.
	Load(key string) (data []byte, ok bool, err error)
	Save(key string, data []byte) error
}

// Memory is an in-process Store. Safe for concurrent use.
type Memory struct {
	mu   sync.Mutex
	data map[string][]byte

	// FailSaves makes every Save return this error (for failure injection).
	FailSaves error
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Load implements Store.
func (m *Memory) Load(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

// Save implements Store.
func (m *Memory) Save(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSaves != nil {
		return m.FailSaves
	}
	m.data[key] = append([]byte(nil), data...)
	return nil
}

// SetFailSaves toggles failure injection.
func (m *Memory) SetFailSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailSaves = err
}
