package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/storesense/storesense/internal/metrics"
)

const (
	cleanupInterval = time.Minute
	visitorTTL      = 3 * time.Minute
)

// visitor tracks the token bucket for a single client IP.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a per-client-IP token bucket to mutating requests.
type RateLimiter struct {
	perMinute int
	burst     int

	mu       sync.Mutex
	visitors map[string]*visitor

	done      chan struct{}
	closeOnce sync.Once
}

// NewRateLimiter creates a limiter allowing perMinute requests per client IP
// with the given burst and starts the idle-visitor cleanup goroutine.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	l := &RateLimiter{
		perMinute: perMinute,
		burst:     burst,
		visitors:  make(map[string]*visitor),
		done:      make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// Middleware rejects over-limit requests with 429. Health and metrics probes
// are never limited; reads other than the IoT log routes pass through.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.limited(r) {
			next.ServeHTTP(w, r)
			return
		}

		if !l.limiterFor(clientIP(r)).Allow() {
			metrics.RateLimitedTotal.Inc()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprintf(w, `{"detail":"Rate limit exceeded: %d per 1 minute"}`, l.perMinute)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Close stops the cleanup goroutine.
func (l *RateLimiter) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}

// limited reports whether the request is subject to rate limiting: every
// POST plus the IoT routes, except the health and metrics probes.
func (l *RateLimiter) limited(r *http.Request) bool {
	path := r.URL.Path
	if path == "/health" || path == "/metrics" {
		return false
	}
	return r.Method == http.MethodPost || strings.HasPrefix(path, "/iot/")
}

func (l *RateLimiter) limiterFor(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(float64(l.perMinute)/60.0), l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

func (l *RateLimiter) cleanup() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

// sweep drops visitors idle long enough for their bucket to refill fully.
func (l *RateLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for ip, v := range l.visitors {
		if time.Since(v.lastSeen) > visitorTTL {
			delete(l.visitors, ip)
		}
	}
}
