package store

import (
	"context"
	"slices"
	"sync"
)

// MemStore is an in-memory Store.
//
// Designed for tests and small corpora loaded at startup. All data is lost
// when the process exits. Safe for concurrent use.
type MemStore struct {
	mu       sync.RWMutex
	passages []Passage
	nextID   int64
	closed   bool
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{nextID: 1}
}

// AddPassages implements Writer.
func (m *MemStore) AddPassages(_ context.Context, passages []Passage) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}

	sources := distinctSources(passages)
	m.passages = slices.DeleteFunc(m.passages, func(p Passage) bool {
		return slices.Contains(sources, p.Source)
	})

	for _, p := range passages {
		p.ID = m.nextID
		p.Score = 0
		m.nextID++
		m.passages = append(m.passages, p)
	}
	return len(passages), nil
}

// Search implements Retriever.
func (m *MemStore) Search(_ context.Context, query string, k int) ([]Passage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	terms := Terms(query)
	if len(terms) == 0 {
		return []Passage{}, nil
	}
	return rank(m.passages, terms, k), nil
}

// Count implements Store.
func (m *MemStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrClosed
	}
	return len(m.passages), nil
}

// Close implements Store. Further calls return ErrClosed.
func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.passages = nil
	return nil
}
