package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"dms-go/internal/dms"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStore is an in-memory implementation of dms.BlobStore, useful for
// tests and the memory configuration. It is safe for concurrent use.
type MemoryStore struct {
	name          string
	publicBaseURL string
	objects       map[string]memoryObject
	mu            sync.RWMutex
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore(name, publicBaseURL string) *MemoryStore {
	return &MemoryStore{
		name:          name,
		publicBaseURL: publicBaseURL,
		objects:       make(map[string]memoryObject),
	}
}

// Put stores content under key, replacing anything already there.
func (m *MemoryStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{data: data, contentType: contentType}
	return nil
}

// Get writes the content stored under key to w.
func (m *MemoryStore) Get(ctx context.Context, key string, w io.Writer) error {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrBlobNotFound, key)
	}

	if _, err := io.Copy(w, bytes.NewReader(obj.data)); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	return nil
}

// Delete removes key. Missing keys are ignored.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// PublicURL returns publicBaseURL/key, or a memory:// URL when no base is configured.
func (m *MemoryStore) PublicURL(key string) string {
	if m.publicBaseURL != "" {
		return joinURL(m.publicBaseURL, key)
	}
	return joinURL("memory://"+m.name, key)
}

// Keys returns every stored key in sorted order.
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ContentType returns the content type recorded for key.
func (m *MemoryStore) ContentType(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	return obj.contentType, ok
}

// Compile-time check that MemoryStore implements dms.BlobStore
var _ dms.BlobStore = (*MemoryStore)(nil)
