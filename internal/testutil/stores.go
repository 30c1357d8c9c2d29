package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dms-go/internal/dms"
)

// FailingNodeStore wraps a NodeStore and fails chosen writes while armed.
type FailingNodeStore struct {
	dms.NodeStore

	mu            sync.Mutex
	failContent   bool
	failMetadata  bool
	failInsert    bool
	contentWrites int
}

var _ dms.NodeStore = (*FailingNodeStore)(nil)

// NewFailingNodeStore wraps inner.
func NewFailingNodeStore(inner dms.NodeStore) *FailingNodeStore {
	return &FailingNodeStore{NodeStore: inner}
}

// FailContentUpdates makes UpdateNodeContent fail until reset with false.
func (s *FailingNodeStore) FailContentUpdates(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failContent = fail
}

// FailMetadataUpdates makes UpdateNodeMetadata fail until reset with false.
func (s *FailingNodeStore) FailMetadataUpdates(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failMetadata = fail
}

// FailInserts makes InsertNode fail until reset with false.
func (s *FailingNodeStore) FailInserts(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failInsert = fail
}

// ContentWrites returns the number of successful UpdateNodeContent calls.
func (s *FailingNodeStore) ContentWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contentWrites
}

func (s *FailingNodeStore) InsertNode(ctx context.Context, node *dms.Node) error {
	s.mu.Lock()
	fail := s.failInsert
	s.mu.Unlock()
	if fail {
		return fmt.Errorf("injected insert failure for %s", node.Name)
	}
	return s.NodeStore.InsertNode(ctx, node)
}

func (s *FailingNodeStore) UpdateNodeContent(ctx context.Context, id string, storageKey string, size int64, md dms.Metadata, at time.Time) (bool, error) {
	s.mu.Lock()
	fail := s.failContent
	s.mu.Unlock()
	if fail {
		return false, fmt.Errorf("injected content update failure for %s", id)
	}
	ok, err := s.NodeStore.UpdateNodeContent(ctx, id, storageKey, size, md, at)
	if err == nil && ok {
		s.mu.Lock()
		s.contentWrites++
		s.mu.Unlock()
	}
	return ok, err
}

func (s *FailingNodeStore) UpdateNodeMetadata(ctx context.Context, id string, md dms.Metadata, at time.Time) (bool, error) {
	s.mu.Lock()
	fail := s.failMetadata
	s.mu.Unlock()
	if fail {
		return false, fmt.Errorf("injected metadata update failure for %s", id)
	}
	return s.NodeStore.UpdateNodeMetadata(ctx, id, md, at)
}
