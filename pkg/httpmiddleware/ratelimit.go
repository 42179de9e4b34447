package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/jx"
)

// RateLimitConfig configures the per-client sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests allowed per Window.
	Max int
	// Window is the sliding window duration.
	Window time.Duration
	// KeyFunc derives the limiter key from a request. Defaults to the
	// client IP (X-Forwarded-For aware).
	KeyFunc func(*http.Request) string
}

// counter holds request counts for a key across the current window and the
// one before it. The previous window is weighted by its remaining overlap
// with the sliding window, which smooths the burst at window boundaries that
// a plain fixed-window counter allows.
type counter struct {
	windowStart time.Time
	current     int
	previous    int
}

type limiter struct {
	max    int
	window time.Duration
	keyFor func(*http.Request) string

	mu       sync.Mutex
	counters map[string]*counter
}

func newLimiter(cfg RateLimitConfig) *limiter {
	keyFor := cfg.KeyFunc
	if keyFor == nil {
		keyFor = clientIP
	}
	return &limiter{
		max:      cfg.Max,
		window:   cfg.Window,
		keyFor:   keyFor,
		counters: make(map[string]*counter),
	}
}

// take records one request for key and reports whether it is within the
// limit, along with the remaining budget and window reset time.
func (l *limiter) take(key string, now time.Time) (remaining int, resetAt time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, found := l.counters[key]
	if !found {
		c = &counter{windowStart: now}
		l.counters[key] = c
	}

	switch elapsed := now.Sub(c.windowStart); {
	case elapsed >= 2*l.window:
		c.windowStart, c.current, c.previous = now, 0, 0
	case elapsed >= l.window:
		c.windowStart = c.windowStart.Add(l.window)
		c.previous, c.current = c.current, 0
	}

	weight := 1 - now.Sub(c.windowStart).Seconds()/l.window.Seconds()
	if weight < 0 {
		weight = 0
	}
	used := float64(c.previous)*weight + float64(c.current)
	resetAt = c.windowStart.Add(l.window)

	if used >= float64(l.max) {
		return 0, resetAt, false
	}
	c.current++

	remaining = int(float64(l.max) - used - 1)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, resetAt, true
}

// evictStale drops counters untouched for two full windows.
func (l *limiter) evictStale(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, c := range l.counters {
		if now.Sub(c.windowStart) >= 2*l.window {
			delete(l.counters, key)
		}
	}
}

// RateLimit enforces a sliding window limit per client key. Rejected requests
// get 429 with a JSON body; every response carries X-RateLimit-* headers.
// Stale counters are never evicted; prefer RateLimitWithCleanup for servers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newLimiter(cfg).middleware()
}

// RateLimitWithCleanup is RateLimit plus a background goroutine that evicts
// idle client counters until ctx is cancelled.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go func() {
		ticker := time.NewTicker(2 * l.window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.evictStale(now)
			}
		}
	}()
	return l.middleware()
}

func (l *limiter) middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, resetAt, ok := l.take(l.keyFor(r), time.Now())

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.max))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			retryAfter := math.Ceil(math.Max(time.Until(resetAt).Seconds(), 0))
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter)))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)

			e := &jx.Encoder{}
			e.Obj(func(e *jx.Encoder) {
				e.Field("code", func(e *jx.Encoder) { e.Int(http.StatusTooManyRequests) })
				e.Field("message", func(e *jx.Encoder) { e.Str("rate limit exceeded") })
			})
			_, _ = w.Write(e.Bytes())
		})
	}
}

// clientIP resolves the caller address, preferring proxy-set headers.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
