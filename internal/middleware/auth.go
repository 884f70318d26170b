package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/storesense/storesense/internal/auth"
	"github.com/storesense/storesense/internal/metrics"
)

// APIKey gates requests behind a shared X-API-Key header. An empty key
// disables the gate entirely. onFailure, when non-nil, is invoked for every
// rejected request with a short reason; the server feeds it into the audit
// trail.
func APIKey(key string, onFailure func(r *http.Request, reason string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authExempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			presented := r.Header.Get("X-API-Key")
			if presented == "" {
				metrics.AuthFailuresTotal.Inc()
				if onFailure != nil {
					onFailure(r, "missing api key")
				}
				w.Header().Set("WWW-Authenticate", "ApiKey")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprint(w, `{"detail":"API key required. Provide X-API-Key header."}`)
				return
			}

			if !auth.VerifyAPIKey(key, presented) {
				metrics.AuthFailuresTotal.Inc()
				if onFailure != nil {
					onFailure(r, "invalid api key")
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprint(w, `{"detail":"Invalid API key"}`)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// authExempt lists the routes that must work without an API key: probes, the
// login flow (which bootstraps a session) and the WebSocket upgrade (browser
// clients cannot set custom headers on the handshake).
func authExempt(path string) bool {
	if path == "/health" || path == "/ready" || path == "/metrics" || path == "/ws" {
		return true
	}
	return strings.HasPrefix(path, "/auth/")
}

// ExtractBearer returns the token from an "Authorization: Bearer ..." header,
// or "" when absent or malformed.
func ExtractBearer(r *http.Request) string {
	s := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(s) > len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return strings.TrimSpace(s[len(prefix):])
	}
	return ""
}
