package router

import (
	"encoding/json"
	"net/http"
	"strings"
)

// MuxOptions configures the public gateway surface.
type MuxOptions struct {
	// PathPrefix is the public API prefix the proxy is mounted under.
	// Defaults to "/api/v1".
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin.
	AllowCORSOrigin string
	// ServiceName is reported by the index and health endpoints.
	ServiceName string
	// Version is reported by the index endpoint.
	Version string
}

// NewMux builds the gateway handler.
// Routes:
//   - {any} {prefix}/{service}/{path...}  proxied to the mapped upstream
//   - GET /health
//   - GET /                               index of mounted services
func NewMux(p *Proxy, opts MuxOptions) http.Handler {
	if opts.PathPrefix == "" {
		opts.PathPrefix = "/api/v1"
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "rewardcore-gateway"
	}
	prefix := strings.TrimRight(opts.PathPrefix, "/")

	mux := http.NewServeMux()

	mux.Handle(prefix+"/", http.StripPrefix(prefix, p))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeIndexJSON(w, http.StatusOK, map[string]any{
			"status":  "healthy",
			"service": opts.ServiceName,
		})
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			writeDetail(w, http.StatusNotFound, "Not found")
			return
		}
		endpoints := make(map[string]string)
		for _, s := range p.table.Services() {
			endpoints[s] = prefix + "/" + s
		}
		writeIndexJSON(w, http.StatusOK, map[string]any{
			"service":   opts.ServiceName,
			"version":   opts.Version,
			"endpoints": endpoints,
		})
	})

	var handler http.Handler = mux
	if opts.AllowCORSOrigin != "" {
		handler = withCORS(handler, opts.AllowCORSOrigin)
	}
	return handler
}

func writeIndexJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// withCORS wraps a handler with a minimal CORS policy.
func withCORS(next http.Handler, origin string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,PATCH,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
