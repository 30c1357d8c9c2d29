package testutil

import (
	"context"
	"fmt"
	"io"
	"sync"

	"dms-go/internal/blob"
	"dms-go/internal/dms"
)

// FaultyBlobStore is a memory blob store that fails chosen operations.
// Failures are keyed by storage key; FailAllPuts fails every write.
type FaultyBlobStore struct {
	*blob.MemoryStore

	mu          sync.Mutex
	failPut     map[string]bool
	failGet     map[string]bool
	failDelete  map[string]bool
	failAllPuts bool
	deleted     []string
}

var _ dms.BlobStore = (*FaultyBlobStore)(nil)

// NewFaultyBlobStore creates a FaultyBlobStore that fails nothing until told to.
func NewFaultyBlobStore() *FaultyBlobStore {
	return &FaultyBlobStore{
		MemoryStore: blob.NewMemoryStore("test", "https://blobs.test"),
		failPut:     make(map[string]bool),
		failGet:     make(map[string]bool),
		failDelete:  make(map[string]bool),
	}
}

// FailPut makes Put fail for key.
func (f *FaultyBlobStore) FailPut(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPut[key] = true
}

// FailAllPuts makes every Put fail.
func (f *FaultyBlobStore) FailAllPuts() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAllPuts = true
}

// FailGet makes Get fail for key.
func (f *FaultyBlobStore) FailGet(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failGet[key] = true
}

// FailDelete makes Delete fail for key.
func (f *FaultyBlobStore) FailDelete(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failDelete[key] = true
}

// Heal clears every injected failure.
func (f *FaultyBlobStore) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPut = make(map[string]bool)
	f.failGet = make(map[string]bool)
	f.failDelete = make(map[string]bool)
	f.failAllPuts = false
}

// Deleted returns the keys successfully deleted, in call order.
func (f *FaultyBlobStore) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

// Has reports whether content is stored under key.
func (f *FaultyBlobStore) Has(key string) bool {
	_, ok := f.ContentType(key)
	return ok
}

func (f *FaultyBlobStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	f.mu.Lock()
	fail := f.failAllPuts || f.failPut[key]
	f.mu.Unlock()
	if fail {
		return fmt.Errorf("injected put failure for %s", key)
	}
	return f.MemoryStore.Put(ctx, key, r, size, contentType)
}

func (f *FaultyBlobStore) Get(ctx context.Context, key string, w io.Writer) error {
	f.mu.Lock()
	fail := f.failGet[key]
	f.mu.Unlock()
	if fail {
		return fmt.Errorf("injected get failure for %s", key)
	}
	return f.MemoryStore.Get(ctx, key, w)
}

func (f *FaultyBlobStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	fail := f.failDelete[key]
	f.mu.Unlock()
	if fail {
		return fmt.Errorf("injected delete failure for %s", key)
	}
	if err := f.MemoryStore.Delete(ctx, key); err != nil {
		return err
	}
	f.mu.Lock()
	f.deleted = append(f.deleted, key)
	f.mu.Unlock()
	return nil
}
