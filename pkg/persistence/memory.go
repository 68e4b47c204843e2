package persistence

import (
	"context"
	"sync"

	"github.com/Etesie/fauna-typed/pkg/models"
)

// Memory keeps values in process. Stored slices are deep copies, so later
// changes by the caller do not leak in.
type Memory struct {
	mu     sync.RWMutex
	values map[string][]models.Document
	writes map[string]int
}

func NewMemory() *Memory {
	return &Memory{values: map[string][]models.Document{}, writes: map[string]int{}}
}

func (m *Memory) Set(_ context.Context, key string, docs []models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = cloneAll(docs)
	m.writes[key]++
	return nil
}

func (m *Memory) Get(_ context.Context, key string) ([]models.Document, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return cloneAll(docs), true, nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	m.writes[key]++
	return nil
}

// Writes returns how many times key was written or removed.
func (m *Memory) Writes(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes[key]
}

func cloneAll(docs []models.Document) []models.Document {
	out := make([]models.Document, len(docs))
	for i, d := range docs {
		out[i] = d.Clone()
	}
	return out
}

// Nop stores nothing. It stands in where no durable storage is available.
type Nop struct{}

func (Nop) Set(context.Context, string, []models.Document) error { return nil }

func (Nop) Get(context.Context, string) ([]models.Document, bool, error) { return nil, false, nil }

func (Nop) Remove(context.Context, string) error { return nil }
