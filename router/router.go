// Package router implements the request-routing gateway: a reverse proxy
// that maps /{service}/{path...} onto per-service upstream base URLs using
// a configured route table.
package router

import (
	"fmt"
	"sort"
	"strings"

	"rewardcore/core"
)

// Entry maps one public service segment onto an upstream.
// Mount is the path prefix on the upstream the service is served under;
// the remainder of the request path is appended to it verbatim.
type Entry struct {
	// Service is the first path segment clients use (e.g. "quizzes").
	Service string `json:"service"`
	// BaseURL is the upstream origin (e.g. "http://education-service:8000").
	BaseURL string `json:"base_url"`
	// Mount is the upstream prefix (e.g. "/api/v1/quizzes").
	Mount string `json:"mount"`
}

// Table resolves service segments to routing entries.
type Table struct {
	entries map[string]Entry
}

// NewTable builds a Table. Entries must have distinct, non-empty service
// segments, a base URL, and a mount starting with "/".
func NewTable(entries []Entry) (*Table, error) {
	t := &Table{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if e.Service == "" {
			return nil, fmt.Errorf("route entry missing service: %w", core.ErrInvalidInput)
		}
		if e.BaseURL == "" {
			return nil, fmt.Errorf("route %q missing base_url: %w", e.Service, core.ErrInvalidInput)
		}
		if !strings.HasPrefix(e.Mount, "/") {
			return nil, fmt.Errorf("route %q mount must start with /: %w", e.Service, core.ErrInvalidInput)
		}
		if _, dup := t.entries[e.Service]; dup {
			return nil, fmt.Errorf("duplicate route %q: %w", e.Service, core.ErrInvalidInput)
		}
		e.BaseURL = strings.TrimRight(e.BaseURL, "/")
		e.Mount = strings.TrimRight(e.Mount, "/")
		t.entries[e.Service] = e
	}
	return t, nil
}

// Lookup returns the entry for a service segment.
func (t *Table) Lookup(service string) (Entry, bool) {
	e, ok := t.entries[service]
	return e, ok
}

// Services returns the public service segments in sorted order.
func (t *Table) Services() []string {
	out := make([]string, 0, len(t.entries))
	for s := range t.entries {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Upstreams holds the base URLs of the backing services used by the
// default route table.
type Upstreams struct {
	Auth      string `json:"auth" env:"AUTH_SERVICE_URL"`
	User      string `json:"user" env:"USER_SERVICE_URL"`
	Game      string `json:"game" env:"GAME_SERVICE_URL"`
	Progress  string `json:"progress" env:"PROGRESS_SERVICE_URL"`
	Education string `json:"education" env:"EDUCATION_SERVICE_URL"`
	Admin     string `json:"admin" env:"ADMIN_SERVICE_URL"`
	Analytics string `json:"analytics" env:"ANALYTICS_SERVICE_URL"`
}

// DefaultUpstreams returns the docker-compose service addresses.
func DefaultUpstreams() Upstreams {
	return Upstreams{
		Auth:      "http://auth-service:8000",
		User:      "http://user-service:8000",
		Game:      "http://game-service:8000",
		Progress:  "http://progress-service:8000",
		Education: "http://education-service:8000",
		Admin:     "http://admin-service:8000",
		Analytics: "http://analytics-service:8000",
	}
}

// DefaultTable builds the standard route table. Collection services mount
// under their own segment; admin and analytics expose whole sub-APIs, so
// their mounts cover the full upstream prefix.
func DefaultTable(up Upstreams) *Table {
	mk := func(service, base string) Entry {
		return Entry{Service: service, BaseURL: base, Mount: "/api/v1/" + service}
	}
	entries := []Entry{
		mk("auth", up.Auth),
		mk("users", up.User),
		mk("budget", up.Game),
		mk("savings", up.Game),
		mk("categories", up.Game),
		mk("transactions", up.Progress),
		mk("quests", up.Progress),
		mk("quizzes", up.Education),
		mk("badges", up.Education),
		mk("guided", up.Education),
		mk("achievements", up.Education),
		mk("daily-challenges", up.Education),
		{Service: "admin", BaseURL: up.Admin, Mount: "/api/v1/admin"},
		{Service: "analytics", BaseURL: up.Analytics, Mount: "/api/v1/analytics"},
	}
	t, err := NewTable(entries)
	if err != nil {
		// static table; a failure here is a programming error
		panic(err)
	}
	return t
}
