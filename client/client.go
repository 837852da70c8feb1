// Package client is the producer-side SDK for the reward core API. Services
// that emit facts or read progress use it instead of hand-rolling HTTP calls;
// it also carries the synchronous fallback for producers that cannot reach
// the event bus.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"rewardcore/core"
	"rewardcore/engine"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the reward core HTTP + WebSocket API.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
}

// New constructs a client targeting the given baseURL (e.g., http://localhost:8080/api).
func New(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAuthToken adds an Authorization: Bearer token header to all requests (HTTP + WS).
func WithAuthToken(token string) Option {
	return func(c *Client) {
		if strings.TrimSpace(token) != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithAPIKey adds an X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-API-Key", key)
		}
	}
}

// WithHeader sets an arbitrary header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

// AddXP credits experience to a user and returns the updated progress.
func (c *Client) AddXP(ctx context.Context, user core.UserID, xp int64) (core.Progress, error) {
	var prog core.Progress
	err := c.postJSON(ctx, fmt.Sprintf("%s/users/%d/xp", c.baseURL, user),
		map[string]int64{"xp": xp}, &prog)
	return prog, err
}

// AdjustBalance applies a signed delta to the user's balance and returns
// the new value.
func (c *Client) AdjustBalance(ctx context.Context, user core.UserID, amount int64) (int64, error) {
	var body struct {
		Balance int64 `json:"balance"`
	}
	err := c.postJSON(ctx, fmt.Sprintf("%s/users/%d/balance", c.baseURL, user),
		map[string]int64{"amount": amount}, &body)
	return body.Balance, err
}

// Progress fetches the user's progress snapshot.
func (c *Client) Progress(ctx context.Context, user core.UserID) (core.Progress, error) {
	var prog core.Progress
	err := c.getJSON(ctx, fmt.Sprintf("%s/users/%d/progress", c.baseURL, user), &prog)
	return prog, err
}

// Grants lists the user's unlock history.
func (c *Client) Grants(ctx context.Context, user core.UserID) ([]core.Grant, error) {
	var grants []core.Grant
	err := c.getJSON(ctx, fmt.Sprintf("%s/users/%d/grants", c.baseURL, user), &grants)
	return grants, err
}

// EmitFact delivers a fact synchronously, bypassing the bus. The response
// lists whatever the fact unlocked.
func (c *Client) EmitFact(ctx context.Context, ev core.FactEvent) ([]engine.GrantResult, error) {
	if ev.Kind == "" || ev.ActorID <= 0 {
		return nil, fmt.Errorf("fact needs a kind and a positive actor: %w", core.ErrInvalidInput)
	}
	var body struct {
		Granted []engine.GrantResult `json:"granted"`
	}
	err := c.postJSON(ctx, c.baseURL+"/events", ev, &body)
	return body.Granted, err
}

// Health probes /healthz and returns status + ledger check.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var hs HealthStatus
	err := c.getJSON(ctx, c.baseURL+"/healthz", &hs)
	return hs, err
}

// SubscribeNotifications connects to the WebSocket stream and emits
// core.Notification values. The returned channel closes when ctx is done
// or the connection drops.
func (c *Client) SubscribeNotifications(ctx context.Context) (<-chan core.Notification, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, c.headers)
	if err != nil {
		return nil, err
	}

	out := make(chan core.Notification, 32)
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			select {
			case <-ctx.Done():
				return
			default:
				var n core.Notification
				if err := conn.ReadJSON(&n); err != nil {
					return
				}
				select {
				case out <- n:
				default:
					// drop if consumer is slow
				}
			}
		}
	}()
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	c.applyHeaders(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, target)
}

func (c *Client) postJSON(ctx context.Context, rawURL string, payload, target any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.applyHeaders(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, target)
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		// leave as-is for custom schemes
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
