package state

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	gen     *Generation
	expires time.Time
}

// MemoryStore keeps state in process memory. Entries expire ttl after their
// last save; expired entries are invisible and removed by Sweep.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
	ttl   time.Duration
	now   func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &MemoryStore{
		items: make(map[string]memoryItem),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, conversationID string) (*Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	if !m.now().Before(item.expires) {
		delete(m.items, conversationID)
		return nil, ErrNotFound
	}
	return item.gen.Clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, g *Generation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[g.ConversationID] = memoryItem{gen: g.Clone(), expires: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, conversationID)
	return nil
}

// Sweep drops entries expired at now and returns how many were removed.
func (m *MemoryStore) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, item := range m.items {
		if !now.Before(item.expires) {
			delete(m.items, id)
			removed++
		}
	}
	return removed
}

func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
