package testutil

import (
	"context"
	"sync"

	"dms-go/internal/dms"
)

// StubAnalyzer is a programmable dms.Analyzer.
type StubAnalyzer struct {
	mu         sync.Mutex
	analysis   *dms.Analysis
	processErr error
	hits       []dms.SearchHit
	searchErr  error
	processed  []string
	queries    []dms.SearchQuery
}

var _ dms.Analyzer = (*StubAnalyzer)(nil)

// NewStubAnalyzer returns an analyzer that produces a, and an empty search result.
func NewStubAnalyzer(a *dms.Analysis) *StubAnalyzer {
	return &StubAnalyzer{analysis: a}
}

// FailProcess makes Process return err (nil to succeed again).
func (s *StubAnalyzer) FailProcess(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processErr = err
}

// SetHits sets the result of the next searches.
func (s *StubAnalyzer) SetHits(hits ...dms.SearchHit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits = hits
}

// Queries returns the search queries received.
func (s *StubAnalyzer) Queries() []dms.SearchQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]dms.SearchQuery(nil), s.queries...)
}

func (s *StubAnalyzer) Process(ctx context.Context, fileID string) (*dms.Analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed = append(s.processed, fileID)
	if s.processErr != nil {
		return nil, s.processErr
	}
	a := *s.analysis
	return &a, nil
}

func (s *StubAnalyzer) Search(ctx context.Context, q dms.SearchQuery) ([]dms.SearchHit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return append([]dms.SearchHit(nil), s.hits...), nil
}
