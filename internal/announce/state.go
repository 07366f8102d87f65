package announce

import (
	"context"
	"sync"

	"fleet-signage/internal/fleet"
)

// StateStore keeps the last emitted announcement per bus. Implementations
// hold at most one entry per bus id.
type StateStore interface {
	Get(ctx context.Context, busID string) (fleet.AnnouncementState, bool, error)
	Put(ctx context.Context, busID string, st fleet.AnnouncementState) error
}

// MemoryStore is a StateStore for single-instance deployments.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]fleet.AnnouncementState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]fleet.AnnouncementState)}
}

func (m *MemoryStore) Get(_ context.Context, busID string) (fleet.AnnouncementState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.items[busID]
	return st, ok, nil
}

func (m *MemoryStore) Put(_ context.Context, busID string, st fleet.AnnouncementState) error {
	m.mu.Lock()
	m.items[busID] = st
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
