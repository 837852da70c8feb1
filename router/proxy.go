package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultUpstreamTimeout bounds a single proxied request.
const DefaultUpstreamTimeout = 30 * time.Second

// Proxy forwards /{service}/{path...} requests to the upstream resolved
// from the route table. Upstream responses pass through unchanged; only
// transport-level failures produce gateway errors.
type Proxy struct {
	table   *Table
	client  *http.Client
	timeout time.Duration
	log     *slog.Logger
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithHTTPClient overrides the transport used for upstream requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Proxy) { p.client = c }
}

// WithUpstreamTimeout sets the per-request deadline.
func WithUpstreamTimeout(d time.Duration) Option {
	return func(p *Proxy) { p.timeout = d }
}

// WithLogger sets the proxy logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Proxy) { p.log = log }
}

// NewProxy builds a Proxy over the route table.
func NewProxy(table *Table, opts ...Option) *Proxy {
	if table == nil {
		panic("router: nil table")
	}
	p := &Proxy{
		table:   table,
		client:  &http.Client{CheckRedirect: noRedirect},
		timeout: DefaultUpstreamTimeout,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func noRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

var proxyMethods = map[string]struct{}{
	http.MethodGet:    {},
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodDelete: {},
	http.MethodPatch:  {},
}

// ServeHTTP expects r.URL.Path to be the service-relative path, i.e. the
// public prefix must already be stripped (see NewMux).
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if _, ok := proxyMethods[r.Method]; !ok {
		writeDetail(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	service, rest := splitService(r.URL.Path)
	if service == "" {
		writeDetail(w, http.StatusNotFound, "Service '' not found")
		return
	}
	entry, ok := p.table.Lookup(service)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Service '"+service+"' not found")
		return
	}

	target := entry.BaseURL + entry.Mount
	if rest != "" {
		target += "/" + rest
	}
	if q := r.URL.RawQuery; q != "" {
		target += "?" + q
	}

	ctx, cancel := context.WithTimeout(r.Context(), p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, r.Method, target, r.Body)
	if err != nil {
		writeDetail(w, http.StatusBadGateway, "Invalid upstream request")
		return
	}
	copyProxyHeaders(req.Header, r.Header)

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded) {
			p.log.Warn("upstream timeout", "service", service, "url", target)
			writeDetail(w, http.StatusGatewayTimeout, "Service request timeout")
			return
		}
		p.log.Warn("upstream unreachable", "service", service, "url", target, "err", err)
		writeDetail(w, http.StatusServiceUnavailable, "Service unavailable: "+service)
		return
	}
	defer resp.Body.Close()

	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// splitService splits "quizzes/5/submit" into ("quizzes", "5/submit").
func splitService(path string) (service, rest string) {
	path = strings.TrimLeft(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i], strings.Trim(path[i+1:], "/")
	}
	return path, ""
}

// copyProxyHeaders copies request headers except hop-specific ones that
// the upstream request must set itself.
func copyProxyHeaders(dst, src http.Header) {
	for k, vv := range src {
		switch http.CanonicalHeaderKey(k) {
		case "Host", "Content-Length":
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// writeDetail emits the gateway's own error shape. Upstream errors never
// come through here; their bodies pass through untouched.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
