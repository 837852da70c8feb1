// Package webhook forwards reward notifications to external HTTP endpoints.
// Badge and achievement unlocks are owned by collaborating services; this is
// how they hear about them.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"rewardcore/core"
	"rewardcore/engine"
)

// Sink posts reward notifications to configured HTTP endpoints.
// Delivery is synchronous; register it on an async dispatcher if the
// endpoints are slow.
type Sink struct {
	client    *http.Client
	endpoints []string
	log       *slog.Logger
}

// Option configures a Sink.
type Option func(*Sink)

// WithClient overrides the HTTP client (defaults to 2s timeout).
func WithClient(c *http.Client) Option {
	return func(s *Sink) {
		if c != nil {
			s.client = c
		}
	}
}

// WithLogger sets the sink logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Sink) {
		if log != nil {
			s.log = log
		}
	}
}

// New creates a webhook sink.
func New(endpoints []string, opts ...Option) *Sink {
	s := &Sink{
		client: &http.Client{Timeout: 2 * time.Second},
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.endpoints = append([]string{}, endpoints...)
	return s
}

// Notify posts the notification JSON to all endpoints. Failures are logged
// and skipped; one dead endpoint does not block the others.
func (s *Sink) Notify(ctx context.Context, n core.Notification) {
	if len(s.endpoints) == 0 {
		return
	}
	body, err := json.Marshal(n)
	if err != nil {
		return
	}
	for _, ep := range s.endpoints {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep, bytes.NewReader(body))
		if err != nil {
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.client.Do(req)
		if err != nil {
			s.log.Warn("webhook delivery failed", "endpoint", ep, "type", n.Type, "err", err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= http.StatusBadRequest {
			s.log.Warn("webhook rejected", "endpoint", ep, "type", n.Type, "status", resp.StatusCode)
		}
	}
}

// Types lists the notification types worth forwarding to collaborators.
var Types = []core.NotificationType{
	core.NoteRewardGranted,
	core.NoteBadgeUnlocked,
	core.NoteAchievementUnlocked,
	core.NoteLevelUp,
}

// Announcer is the subscription surface the sink attaches to; both the
// dispatcher and the reward service satisfy it.
type Announcer interface {
	Subscribe(typ core.NotificationType, handler func(context.Context, core.Notification)) func()
}

var _ Announcer = (*engine.Dispatcher)(nil)

// Attach subscribes the sink for every forwarded type and returns a
// function that detaches it again.
func Attach(a Announcer, s *Sink) func() {
	cancels := make([]func(), 0, len(Types))
	for _, typ := range Types {
		cancels = append(cancels, a.Subscribe(typ, s.Notify))
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}
