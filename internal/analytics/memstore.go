package analytics

import (
	"context"
	"sync"
)

// MemStore is an in-process Store for tests.
type MemStore struct {
	mu      sync.Mutex
	events  []UsageEvent
	deleted map[string]bool
}

func NewMemStore() *MemStore {
	return &MemStore{deleted: map[string]bool{}}
}

var _ Store = (*MemStore)(nil)

func (m *MemStore) RecordUsageEvent(ctx context.Context, e UsageEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *MemStore) DeleteDatasetRows(ctx context.Context, datasetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted[datasetID] = true
	kept := m.events[:0]
	for _, e := range m.events {
		if e.DatasetID != datasetID {
			kept = append(kept, e)
		}
	}
	m.events = kept
	return nil
}

func (m *MemStore) Close() error { return nil }

// Events returns every recorded event, for test assertions.
func (m *MemStore) Events() []UsageEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]UsageEvent(nil), m.events...)
}

// WasDeleted reports whether DeleteDatasetRows was called for datasetID.
func (m *MemStore) WasDeleted(datasetID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleted[datasetID]
}
