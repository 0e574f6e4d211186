package blobstore

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/devflowinc/trieve-sub001/internal/errs"
)

// MemStore is an in-process Store for the importer's tests, mirroring
// metadatastore.MemStore/vectorstore.MemStore's role as shared test
// infrastructure rather than a production adapter.
type MemStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{objects: map[string][]byte{}}
}

// Put seeds an object as if it had already finished uploading.
func (m *MemStore) Put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
}

func (m *MemStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *MemStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	data, ok := m.objects[key]
	m.mu.Unlock()
	if !ok {
		return nil, errs.NotFound(errs.CodeNotFound, "object not found", nil)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

var _ Store = (*MemStore)(nil)
