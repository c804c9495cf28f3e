package assetstore

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps assets in process memory. It backs tests and the explicit
// mock mode; nothing it stores survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]storedObject
	uploads int

	// Error injection, keyed by asset kind ("image", "video").
	UploadErrors map[string]error
	PingError    error
}

type storedObject struct {
	contentType string
	data        []byte
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects:      make(map[string]storedObject),
		UploadErrors: make(map[string]error),
	}
}

// Upload stores a copy of the asset.
func (m *MemoryStore) Upload(ctx context.Context, u Upload) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, &UploadError{Kind: u.Kind, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads++
	if err := m.UploadErrors[string(u.Kind)]; err != nil {
		return Object{}, &UploadError{Kind: u.Kind, Err: err}
	}

	key := ObjectKey(u)
	m.objects[key] = storedObject{
		contentType: u.ContentType,
		data:        append([]byte(nil), u.Data...),
	}
	return Object{URL: "memory://" + key, AssetID: key}, nil
}

// Delete removes an asset.
func (m *MemoryStore) Delete(_ context.Context, assetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[assetID]; !ok {
		return fmt.Errorf("asset %s not found", assetID)
	}
	delete(m.objects, assetID)
	return nil
}

// Ping always succeeds unless PingError is set.
func (m *MemoryStore) Ping(context.Context) error {
	return m.PingError
}

// Get returns a stored asset's bytes.
func (m *MemoryStore) Get(assetID string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[assetID]
	return o.data, ok
}

// Len returns the number of stored assets.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// Uploads returns the number of upload attempts, including failed ones.
func (m *MemoryStore) Uploads() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.uploads
}
