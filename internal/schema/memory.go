package schema

import (
	"context"
	"sort"
	"sync"

	"github.com/roach88/elementstore/internal/ir"
)

// MemorySource keeps definitions in memory. Used by tests and by the CLI
// when no backend-persisted schema is wanted.
type MemorySource struct {
	mu    sync.RWMutex
	types map[string]*ir.ElementType
}

// NewMemorySource creates an empty MemorySource.
func NewMemorySource() *MemorySource {
	return &MemorySource{types: make(map[string]*ir.ElementType)}
}

func (m *MemorySource) LoadType(_ context.Context, name string) (*ir.ElementType, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.types[name]
	if !ok {
		return nil, false, nil
	}
	return t.Clone(), true, nil
}

func (m *MemorySource) SaveType(_ context.Context, t *ir.ElementType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.types[t.Name] = t.Clone()
	return nil
}

func (m *MemorySource) TypeNames(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.types))
	for name := range m.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
