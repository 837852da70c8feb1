package httpapi

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	wsadapter "rewardcore/adapters/websocket"
	"rewardcore/auth"
	"rewardcore/catalog"
	"rewardcore/core"
	"rewardcore/engine"
	"rewardcore/leaderboard"
	"rewardcore/realtime"
)

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// APIKeys, if non-empty, enables static API key auth via Authorization: Bearer or X-API-Key.
	APIKeys []string
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
	// Board, if set, exposes the XP leaderboard at {prefix}/leaderboard.
	Board leaderboard.Board
	// Verifier, if set, requires a bearer token verified against the
	// identity service on every route except healthz.
	Verifier auth.Verifier
}

// NewMux builds an http.Handler exposing the reward core REST API and
// WebSocket stream.
// Routes:
//   - POST {prefix}/users/{id}/xp        {"xp": 50}
//   - POST {prefix}/users/{id}/balance   {"amount": -20}
//   - GET  {prefix}/users/{id}/progress
//   - GET  {prefix}/users/{id}/level
//   - GET  {prefix}/users/{id}/grants
//   - GET  {prefix}/rewards
//   - GET  {prefix}/rewards/daily-challenge
//   - GET  {prefix}/leaderboard          when a board is configured
//   - POST {prefix}/events               synchronous fact intake
//   - GET  {prefix}/healthz
//   - WS   {prefix}/ws
func NewMux(svc *engine.RewardService, cat *catalog.Catalog, hub *realtime.Hub, opts Options) http.Handler {
	mux := http.NewServeMux()

	// health
	mux.HandleFunc(withPrefix(opts.PathPrefix, "/healthz"), func(w http.ResponseWriter, r *http.Request) {
		healthCheck(w, r, svc)
	})

	// WebSocket notifications
	if hub != nil {
		mux.Handle(withPrefix(opts.PathPrefix, "/ws"), wsadapter.Handler(hub))
	}

	// Reward catalog
	mux.HandleFunc(withPrefix(opts.PathPrefix, "/rewards"), func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
			return
		}
		writeJSON(w, encodeDefinitions(cat.All()))
	})
	mux.HandleFunc(withPrefix(opts.PathPrefix, "/rewards/daily-challenge"), func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
			return
		}
		writeJSON(w, encodeDefinition(catalog.TodayChallenge(time.Now())))
	})

	// XP leaderboard
	if opts.Board != nil {
		mux.HandleFunc(withPrefix(opts.PathPrefix, "/leaderboard"), func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
				return
			}
			limit := 10
			if raw := r.URL.Query().Get("limit"); raw != "" {
				n, err := strconv.Atoi(raw)
				if err != nil || n <= 0 || n > 100 {
					writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be 1-100", nil)
					return
				}
				limit = n
			}
			entries := opts.Board.TopN(limit)
			if entries == nil {
				entries = []leaderboard.Entry{}
			}
			writeJSON(w, map[string]any{"entries": entries})
		})
	}

	// Synchronous fact intake, the fallback path when producers cannot
	// reach the bus. Same grant semantics as the listener loop.
	mux.HandleFunc(withPrefix(opts.PathPrefix, "/events"), func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
			return
		}
		var ev core.FactEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_event", "body must be a fact event", nil)
			return
		}
		if ev.Kind == "" || ev.ActorID <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_event", "fact needs a type and a positive user_id", nil)
			return
		}
		if ev.EmittedAt.IsZero() {
			ev.EmittedAt = time.Now().UTC()
		}
		granted := svc.HandleFact(r.Context(), ev)
		if granted == nil {
			granted = []engine.GrantResult{}
		}
		writeJSON(w, map[string]any{"granted": granted})
	})

	// Users API
	mux.HandleFunc(withPrefix(opts.PathPrefix, "/users/"), func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
			return
		}
		path := strings.TrimPrefix(r.URL.Path, opts.PathPrefix)
		parts := split(path, '/')
		if len(parts) < 3 {
			writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
			return
		}
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_user", "user id must be a positive integer", nil)
			return
		}
		user := core.UserID(id)

		switch {
		case r.Method == http.MethodPost && parts[2] == "xp":
			var body struct {
				XP int64 `json:"xp"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_body", "body must be {\"xp\": n}", nil)
				return
			}
			prog, err := svc.AddXP(r.Context(), user, body.XP)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, prog)
		case r.Method == http.MethodPost && parts[2] == "balance":
			var body struct {
				Amount int64 `json:"amount"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_body", "body must be {\"amount\": n}", nil)
				return
			}
			balance, err := svc.AdjustBalance(r.Context(), user, body.Amount)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, map[string]any{"balance": balance})
		case r.Method == http.MethodGet && parts[2] == "progress":
			prog, err := svc.Progress(r.Context(), user)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, prog)
		case r.Method == http.MethodGet && parts[2] == "level":
			prog, err := svc.Progress(r.Context(), user)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			info := core.LevelOf(prog.XP)
			writeJSON(w, map[string]any{
				"level":            info.Level,
				"xp":               prog.XP,
				"xp_to_next_level": info.XPToNext,
			})
		case r.Method == http.MethodGet && parts[2] == "grants":
			grants, err := svc.Grants(r.Context(), user)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			if grants == nil {
				grants = []core.Grant{}
			}
			writeJSON(w, grants)
		default:
			writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
		}
	})

	var handler http.Handler = mux
	if opts.AllowCORSOrigin != "" {
		handler = withCORS(handler, opts.AllowCORSOrigin)
	}
	if len(opts.APIKeys) > 0 {
		handler = withAPIKeyAuth(handler, opts.APIKeys)
	}
	if opts.Verifier != nil {
		handler = withTokenAuth(handler, opts.Verifier, opts.PathPrefix)
	}
	if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
		handler = withRateLimit(handler, opts.RateLimitRPM, opts.RateLimitBurst)
	}
	return handler
}

// Helpers

// definitionDoc is the wire shape for a catalog definition; the condition
// goes out through the declarative codec.
type definitionDoc struct {
	ID        core.RewardID   `json:"id"`
	Name      string          `json:"name"`
	Kinds     []core.FactKind `json:"kinds"`
	Condition json.RawMessage `json:"condition"`
	Reward    catalog.Reward  `json:"reward"`
}

func encodeDefinition(d catalog.Definition) definitionDoc {
	cond, _ := core.EncodeCondition(d.Condition)
	return definitionDoc{ID: d.ID, Name: d.Name, Kinds: d.Kinds, Condition: cond, Reward: d.Reward}
}

func encodeDefinitions(defs []catalog.Definition) []definitionDoc {
	out := make([]definitionDoc, 0, len(defs))
	for _, d := range defs {
		out = append(out, encodeDefinition(d))
	}
	return out
}

// healthCheck verifies the ledger answers before reporting healthy.
func healthCheck(w http.ResponseWriter, r *http.Request, svc *engine.RewardService) {
	// A reserved probe user; reading it never affects real data.
	_, err := svc.Progress(r.Context(), core.UserID(1))

	status := map[string]any{
		"status": "healthy",
		"checks": map[string]any{
			"ledger": "ok",
		},
	}

	if err != nil && !errors.Is(err, core.ErrNotFound) {
		w.WriteHeader(http.StatusServiceUnavailable)
		status["status"] = "unhealthy"
		status["checks"].(map[string]any)["ledger"] = "failed"
	} else {
		w.WriteHeader(http.StatusOK)
	}

	writeJSON(w, status)
}

func withPrefix(prefix, path string) string {
	if prefix == "" || prefix == "/" {
		return path
	}
	if prefix[len(prefix)-1] == '/' {
		return prefix[:len(prefix)-1] + path
	}
	return prefix + path
}

func split(p string, sep rune) []string {
	var parts []string
	cur := make([]rune, 0, len(p))
	// trim leading '/'
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	for _, r := range p {
		if r == sep {
			if len(cur) > 0 {
				parts = append(parts, string(cur))
				cur = cur[:0]
			}
			continue
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		parts = append(parts, string(cur))
	}
	return parts
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{Code: code, Message: msg, Details: details})
}

// writeServiceError maps the shared failure taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	status := core.HTTPStatus(err)
	code := "internal"
	msg := "internal error"
	switch status {
	case http.StatusBadRequest:
		code, msg = "invalid_input", err.Error()
	case http.StatusUnauthorized:
		code, msg = "unauthorized", err.Error()
	case http.StatusNotFound:
		code, msg = "not_found", err.Error()
	case http.StatusConflict:
		code, msg = "conflict", err.Error()
	case http.StatusServiceUnavailable:
		code, msg = "unavailable", err.Error()
	}
	writeError(w, status, code, msg, nil)
}

// withCORS wraps a handler with a minimal CORS policy.
func withCORS(next http.Handler, origin string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withAPIKeyAuth enforces a shared API key list.
func withAPIKeyAuth(next http.Handler, apiKeys []string) http.Handler {
	allowed := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		k = strings.TrimSpace(k)
		if k != "" {
			allowed[k] = struct{}{}
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := extractAPIKey(r)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing API key", nil)
			return
		}
		if _, ok := allowed[key]; !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid API key", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withTokenAuth requires a bearer token the identity service accepts.
// healthz stays open so probes work without credentials.
func withTokenAuth(next http.Handler, verifier auth.Verifier, prefix string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == withPrefix(prefix, "/healthz") {
			next.ServeHTTP(w, r)
			return
		}
		if _, err := verifier.Verify(r.Context(), auth.BearerToken(r)); err != nil {
			writeServiceError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit applies a simple token-bucket limiter per client key.
func withRateLimit(next http.Handler, rpm int, burst int) http.Handler {
	limiter := newRateLimiter(rpm, burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !limiter.allow(key) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return ""
}

// clientKey uses API key if present, otherwise remote IP.
func clientKey(r *http.Request) string {
	if key := extractAPIKey(r); key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type rateLimiter struct {
	rpm   float64
	burst float64
	mu    sync.Mutex
	b     map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newRateLimiter(rpm, burst int) *rateLimiter {
	return &rateLimiter{
		rpm:   float64(rpm),
		burst: float64(burst),
		b:     make(map[string]*bucket),
	}
}

func (l *rateLimiter) allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.b[key]
	if !ok {
		l.b[key] = &bucket{tokens: l.burst - 1, last: now}
		return true
	}

	elapsed := now.Sub(b.last).Minutes()
	b.tokens += elapsed * l.rpm
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	if b.tokens < 1 {
		b.last = now
		return false
	}
	b.tokens--
	b.last = now
	return true
}
