package spool

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

// NewMemorySpooler creates a spooler that buffers uploads in memory.
// maxSize is the largest upload accepted, in bytes.
func NewMemorySpooler(maxSize int64) *Spooler {
	return &Spooler{store: memoryStore{}, maxSize: maxSize}
}

type memoryStore struct{}

func (memoryStore) Create() (spoolFile, error) {
	return &memoryFile{}, nil
}

type memoryFile struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	sealed  bool
	removed bool
}

func (f *memoryFile) Write(p []byte) (int, error) {
	return f.buf.Write(p)
}

func (f *memoryFile) Seal() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sealed = true
	return nil
}

func (f *memoryFile) Open() (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removed {
		return nil, fmt.Errorf("spooled content already released")
	}
	if !f.sealed {
		return nil, fmt.Errorf("spooled content not sealed")
	}
	return io.NopCloser(bytes.NewReader(f.buf.Bytes())), nil
}

func (f *memoryFile) Remove() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = true
	f.buf = bytes.Buffer{}
	return nil
}
