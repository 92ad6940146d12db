package store

import (
	"context"
	"slices"
	"sync"

	"github.com/jmylchreest/swatchwise/pkg/protocol"
)

// Memory keeps records in a map. It is safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	records map[protocol.TabID]Record
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[protocol.TabID]Record)}
}

// Load returns the record of tab.
func (m *Memory) Load(ctx context.Context, tab protocol.TabID) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[tab]
	return r, ok, nil
}

// Save inserts or replaces rec.
func (m *Memory) Save(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.TabID] = rec
	return nil
}

// Delete removes the record of tab. Deleting a missing record is not an error.
func (m *Memory) Delete(ctx context.Context, tab protocol.TabID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, tab)
	return nil
}

// List returns all records ordered by tab.
func (m *Memory) List(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b Record) int { return int(a.TabID) - int(b.TabID) })
	return out, nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
