package receipt

import (
	"context"
	"sync"

	"xdao.co/memoproof/digest"
)

// MemoryStore keeps receipts in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	receipts map[digest.Digest]Receipt
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{receipts: map[digest.Digest]Receipt{}}
}

func (m *MemoryStore) Put(_ context.Context, r Receipt) error {
	if err := r.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.receipts[r.Digest]
	if !ok {
		m.receipts[r.Digest] = r
		return nil
	}
	merged, changed, err := Merge(existing, r)
	if err != nil {
		return err
	}
	if changed {
		m.receipts[r.Digest] = merged
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, d digest.Digest) (Receipt, error) {
	if !d.Valid() {
		return Receipt{}, ErrInvalidDigest
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.receipts[d]
	if !ok {
		return Receipt{}, ErrNotFound
	}
	return r, nil
}

func (m *MemoryStore) Has(_ context.Context, d digest.Digest) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.receipts[d]
	return ok
}
