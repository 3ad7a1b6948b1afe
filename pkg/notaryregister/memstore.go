package notaryregister

import (
	"context"
	"sync"
)

type mapKey struct {
	owner   string
	subject string
}

// MemStore is an in-memory Store, used by tests.
type MemStore struct {
	mu      sync.Mutex
	records map[mapKey]Record
}

// NewMemStore builds an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[mapKey]Record)}
}

// Get implements Store.
func (m *MemStore) Get(_ context.Context, key Key) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[mapKey{key.OwnerHex(), key.SubjectID.Hex()}]
	if !ok {
		return Record{}, ErrNotFound
	}
	return r, nil
}

// Set implements Store. The in-memory map write is synchronous and visible
// to any subsequent Get before Set returns, satisfying the "durable before
// release" requirement trivially for the single-process test double.
func (m *MemStore) Set(_ context.Context, key Key, record Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[mapKey{key.OwnerHex(), key.SubjectID.Hex()}] = record
	return nil
}
