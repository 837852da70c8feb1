// Package auth verifies bearer tokens against the identity service.
// Token issuance stays with the identity service; this package only asks
// it who a token belongs to.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"rewardcore/core"
)

// DefaultTimeout bounds a single verification call.
const DefaultTimeout = 5 * time.Second

// Verifier resolves a bearer token to the user it belongs to.
type Verifier interface {
	Verify(ctx context.Context, token string) (core.UserID, error)
}

// HTTPVerifier asks the identity service's /api/v1/users/me endpoint.
type HTTPVerifier struct {
	baseURL string
	client  *http.Client
}

// Option configures an HTTPVerifier.
type Option func(*HTTPVerifier)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(v *HTTPVerifier) { v.client = c }
}

// NewHTTPVerifier builds a verifier against the identity service base URL.
func NewHTTPVerifier(baseURL string, opts ...Option) *HTTPVerifier {
	v := &HTTPVerifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify returns the token owner's user ID. A rejected token maps to
// ErrUnauthorized; an unreachable identity service maps to ErrUnavailable.
func (v *HTTPVerifier) Verify(ctx context.Context, token string) (core.UserID, error) {
	if strings.TrimSpace(token) == "" {
		return 0, fmt.Errorf("empty token: %w", core.ErrUnauthorized)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/api/v1/users/me", nil)
	if err != nil {
		return 0, fmt.Errorf("build identity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("identity service: %w", core.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("identity service rejected token: %w", core.ErrUnauthorized)
	}

	var me struct {
		ID core.UserID `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		return 0, fmt.Errorf("decode identity response: %w", core.ErrUnavailable)
	}
	if me.ID <= 0 {
		return 0, fmt.Errorf("identity response missing user id: %w", core.ErrUnauthorized)
	}
	return me.ID, nil
}

// Static is a fixed token table, used in tests and local development.
type Static map[string]core.UserID

// Verify looks the token up in the table.
func (s Static) Verify(_ context.Context, token string) (core.UserID, error) {
	user, ok := s[token]
	if !ok {
		return 0, fmt.Errorf("unknown token: %w", core.ErrUnauthorized)
	}
	return user, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
