package confirm

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps pending actions in process
type MemoryStore struct {
	mu      sync.Mutex
	actions map[string]Action
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{actions: make(map[string]Action), now: time.Now}
}

// Put implements Store; expired entries are swept on write
func (m *MemoryStore) Put(_ context.Context, a Action, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for token, existing := range m.actions {
		if !now.Before(existing.ExpiresAt) {
			delete(m.actions, token)
		}
	}
	a.ExpiresAt = now.Add(ttl).UTC()
	m.actions[a.Token] = a
	return nil
}

func (m *MemoryStore) live(token string) (Action, bool) {
	a, ok := m.actions[token]
	if !ok {
		return Action{}, false
	}
	if !m.now().Before(a.ExpiresAt) {
		delete(m.actions, token)
		return Action{}, false
	}
	return a, true
}

// Get implements Store
func (m *MemoryStore) Get(_ context.Context, token string) (Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.live(token)
	if !ok {
		return Action{}, ErrNotFound
	}
	return a, nil
}

// Take implements Store
func (m *MemoryStore) Take(_ context.Context, token string) (Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.live(token)
	if !ok {
		return Action{}, ErrNotFound
	}
	delete(m.actions, token)
	return a, nil
}
