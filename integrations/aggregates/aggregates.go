// Package aggregates fetches engine-computed counters from the owning
// collaborator services so conditions can see more than the fact payload
// carries (completed-quiz counts, streak lengths).
package aggregates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"rewardcore/core"
)

// DefaultTimeout bounds a single aggregate lookup.
const DefaultTimeout = 3 * time.Second

// Endpoint maps a fact kind onto the collaborator URL that can report the
// user's aggregates for it. The user id is appended as a query parameter.
type Endpoint struct {
	Kind core.FactKind `json:"kind"`
	URL  string        `json:"url"`
}

// HTTPSource implements engine.AggregateSource over collaborator HTTP
// endpoints. Kinds without an endpoint produce no aggregates.
type HTTPSource struct {
	endpoints map[core.FactKind]string
	client    *http.Client
}

// Option configures an HTTPSource.
type Option func(*HTTPSource)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *HTTPSource) {
		if c != nil {
			s.client = c
		}
	}
}

// NewHTTPSource builds a source over the endpoint table.
func NewHTTPSource(endpoints []Endpoint, opts ...Option) *HTTPSource {
	s := &HTTPSource{
		endpoints: make(map[core.FactKind]string, len(endpoints)),
		client:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, e := range endpoints {
		s.endpoints[e.Kind] = strings.TrimRight(e.URL, "/")
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Aggregates queries the endpoint registered for the fact's kind and returns
// the JSON object it responds with. No endpoint means no aggregates, not an
// error; a failing endpoint is an error the engine degrades around.
func (s *HTTPSource) Aggregates(ctx context.Context, ev core.FactEvent) (map[string]any, error) {
	base, ok := s.endpoints[ev.Kind]
	if !ok {
		return nil, nil
	}

	url := fmt.Sprintf("%s?user_id=%d", base, ev.ActorID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build aggregate request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("aggregate lookup for %s: %w", ev.Kind, core.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("aggregate lookup for %s returned %d: %w", ev.Kind, resp.StatusCode, core.ErrUnavailable)
	}

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode aggregates for %s: %w", ev.Kind, err)
	}
	return out, nil
}
