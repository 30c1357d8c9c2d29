package dms

import (
	"context"
	"time"
)

// Analyzer is the external content-analysis service. The core does not
// implement any text processing itself.
type Analyzer interface {
	// Process asks the service to analyse a stored document.
	Process(ctx context.Context, fileID string) (*Analysis, error)

	// Search returns documents semantically similar to the query text.
	Search(ctx context.Context, q SearchQuery) ([]SearchHit, error)
}

// Analysis is the annotation produced for one document.
type Analysis struct {
	Summary     string              `json:"summary,omitempty"`
	Entities    map[string][]string `json:"entities,omitempty"`
	Topics      map[string]float64  `json:"topics,omitempty"`
	Sentiment   string              `json:"sentiment,omitempty"`
	ProcessedAt time.Time           `json:"processed_at"`
}

// SearchQuery parameterises a similarity search.
type SearchQuery struct {
	Text      string
	Threshold float64
	Limit     int
}

// SearchHit is one matching document id with its similarity score.
type SearchHit struct {
	FileID     string
	Similarity float64
}

// SearchResult is a search hit the current actor may view.
type SearchResult struct {
	*Node
	Similarity float64
}

// toMetadata converts an analysis into a JSON-compatible metadata value.
func (a *Analysis) toMetadata() map[string]any {
	out := map[string]any{
		"processed_at": a.ProcessedAt.UTC().Format(time.RFC3339),
	}
	if a.Summary != "" {
		out["summary"] = a.Summary
	}
	if a.Sentiment != "" {
		out["sentiment"] = a.Sentiment
	}
	if len(a.Entities) > 0 {
		entities := make(map[string]any, len(a.Entities))
		for kind, names := range a.Entities {
			list := make([]any, len(names))
			for i, n := range names {
				list[i] = n
			}
			entities[kind] = list
		}
		out["entities"] = entities
	}
	if len(a.Topics) > 0 {
		topics := make(map[string]any, len(a.Topics))
		for topic, score := range a.Topics {
			topics[topic] = score
		}
		out["topics"] = topics
	}
	return out
}
