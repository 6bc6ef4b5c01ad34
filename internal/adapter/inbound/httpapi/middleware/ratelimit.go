package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter manages per-IP token buckets with automatic eviction of stale entries.
type rateLimiter struct {
	mu                sync.Mutex
	visitors          map[string]*visitor
	requestsPerMinute int
	maxVisitors       int
	trustProxy        bool
}

func newRateLimiter(requestsPerMinute int, trustProxy bool) *rateLimiter {
	return &rateLimiter{
		visitors:          make(map[string]*visitor),
		requestsPerMinute: requestsPerMinute,
		maxVisitors:       10000,
		trustProxy:        trustProxy,
	}
}

// evictionLoop periodically removes stale buckets until stop is closed.
func (rl *rateLimiter) evictionLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			rl.evictStale(10 * time.Minute)
		}
	}
}

// evictStale removes buckets not accessed within maxAge.
func (rl *rateLimiter) evictStale(maxAge time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for ip, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, ip)
		}
	}
}

func (rl *rateLimiter) limiterFor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[ip]
	if !ok {
		// At capacity, reject new IPs to prevent memory exhaustion.
		if len(rl.visitors) >= rl.maxVisitors {
			return nil
		}
		perSecond := rate.Limit(float64(rl.requestsPerMinute) / 60)
		v = &visitor{limiter: rate.NewLimiter(perSecond, rl.requestsPerMinute)}
		rl.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

// NewRateLimiter returns a middleware that limits requests per minute per remote IP.
// Stale per-IP state is evicted until stop is closed.
func NewRateLimiter(requestsPerMinute int, stop <-chan struct{}) func(http.Handler) http.Handler {
	rl := newRateLimiter(requestsPerMinute, false)
	go rl.evictionLoop(stop)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter := rl.limiterFor(remoteIP(r, rl.trustProxy))
			if limiter == nil || !limiter.Allow() {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// remoteIP extracts the client IP from the request.
// Only trusts X-Forwarded-For when trustProxy is true (i.e., behind a known reverse proxy).
func remoteIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			// Take the first (client) IP in the list.
			if idx := strings.IndexByte(xff, ','); idx != -1 {
				return strings.TrimSpace(xff[:idx])
			}
			return strings.TrimSpace(xff)
		}
	}
	// Strip port from RemoteAddr.
	addr := r.RemoteAddr
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i]
		}
	}
	return addr
}
