// Package analysis is the HTTP client for the external document analysis
// service. Requests are retried with exponential backoff on transport
// errors, 429 and 5xx responses.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"dms-go/internal/config"
	"dms-go/internal/dms"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxElapsed = 2 * time.Minute
	// maxErrorBody bounds how much of an error response is kept for the message.
	maxErrorBody = 1024
)

// StatusError is a non-2xx response from the analysis service.
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("analysis service %s returned %d: %s", e.Path, e.StatusCode, e.Body)
}

// Client implements dms.Analyzer over HTTP.
type Client struct {
	baseURL         string
	http            *http.Client
	maxElapsed      time.Duration
	initialInterval time.Duration
	clock           dms.Clock
	logger          dms.Logger
}

var _ dms.Analyzer = (*Client)(nil)

// NewClient creates a client for the service at cfg.BaseURL.
func NewClient(cfg config.AnalysisConfig, clock dms.Clock, logger dms.Logger) *Client {
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxElapsed := cfg.MaxElapsed.Duration
	if maxElapsed <= 0 {
		maxElapsed = defaultMaxElapsed
	}
	return &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		http:            &http.Client{Timeout: timeout},
		maxElapsed:      maxElapsed,
		initialInterval: backoff.DefaultInitialInterval,
		clock:           clock,
		logger:          logger,
	}
}

// NewAnalyzerFromConfig returns a Client, or nil when no base URL is configured.
func NewAnalyzerFromConfig(cfg config.AnalysisConfig, clock dms.Clock, logger dms.Logger) dms.Analyzer {
	if cfg.BaseURL == "" {
		return nil
	}
	return NewClient(cfg, clock, logger)
}

type processRequest struct {
	FileID string `json:"file_id"`
}

type processResponse struct {
	Success   bool                `json:"success"`
	FileID    string              `json:"file_id"`
	Summary   string              `json:"summary"`
	Entities  map[string][]string `json:"entities"`
	Topics    map[string]float64  `json:"topics"`
	Sentiment *struct {
		Overall string `json:"overall"`
	} `json:"sentiment"`
	Error string `json:"error"`
}

// Process asks the service to analyse fileID.
func (c *Client) Process(ctx context.Context, fileID string) (*dms.Analysis, error) {
	var resp processResponse
	if err := c.post(ctx, "/process", processRequest{FileID: fileID}, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("analysis of %s failed: %s", fileID, resp.Error)
	}

	a := &dms.Analysis{
		Summary:     resp.Summary,
		Entities:    nonEmptyEntities(resp.Entities),
		Topics:      resp.Topics,
		ProcessedAt: c.clock.Now(),
	}
	if resp.Sentiment != nil {
		a.Sentiment = resp.Sentiment.Overall
	}
	return a, nil
}

type searchRequest struct {
	QueryText      string  `json:"query_text"`
	MatchThreshold float64 `json:"match_threshold"`
	MatchCount     int     `json:"match_count"`
}

type searchResponse struct {
	Success bool `json:"success"`
	Results []struct {
		ID         string  `json:"id"`
		Similarity float64 `json:"similarity"`
	} `json:"results"`
	Error string `json:"error"`
}

// Search returns the ids of documents similar to the query, best match first.
func (c *Client) Search(ctx context.Context, q dms.SearchQuery) ([]dms.SearchHit, error) {
	var resp searchResponse
	req := searchRequest{QueryText: q.Text, MatchThreshold: q.Threshold, MatchCount: q.Limit}
	if err := c.post(ctx, "/search", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("search failed: %s", resp.Error)
	}

	hits := make([]dms.SearchHit, 0, len(resp.Results))
	for _, r := range resp.Results {
		hits = append(hits, dms.SearchHit{FileID: r.ID, Similarity: r.Similarity})
	}
	return hits, nil
}

// post sends body as JSON to path and decodes the response into out,
// retrying transient failures until maxElapsed.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", path, err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	b.MaxElapsedTime = c.maxElapsed

	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("building %s request: %w", path, err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("calling analysis service %s: %w", path, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			statusErr := &StatusError{Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("decoding %s response: %w", path, err))
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("analysis request failed, retrying", "path", path, "error", err, "retry_in", wait)
	}

	return backoff.RetryNotify(attempt, backoff.WithContext(b, ctx), notify)
}

func nonEmptyEntities(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for kind, names := range in {
		if len(names) > 0 {
			out[kind] = names
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
