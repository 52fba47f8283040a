package snapshot

import (
	"context"
	"sync"

	"github.com/DaveXRouz/Bental-sub004/internal/model"
)

// Store persists and restores the full ticker table.
type Store interface {
	// Load returns the last persisted table, empty when none exists.
	Load(ctx context.Context) ([]model.TickerRecord, error)

	// Save replaces the persisted table with the given records.
	Save(ctx context.Context, records []model.TickerRecord) error
}

// Memory is an in-process Store used when no snapshot database is
// configured, and by tests.
type Memory struct {
	mu      sync.Mutex
	records []model.TickerRecord
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Load(ctx context.Context) ([]model.TickerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.TickerRecord, len(m.records))
	copy(out, m.records)
	return out, nil
}

func (m *Memory) Save(ctx context.Context, records []model.TickerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = make([]model.TickerRecord, len(records))
	copy(m.records, records)
	return nil
}
