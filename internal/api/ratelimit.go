package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiterConfig holds rate limiter configuration.
type RateLimiterConfig struct {
	RequestsPerMinute int
	BurstSize         int
}

// tokenBucket implements a token bucket rate limiter.
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func newTokenBucket(capacity, refillRate float64) *tokenBucket {
	return &tokenBucket{
		tokens:     capacity,
		capacity:   capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// refill must be called with mu held.
func (tb *tokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.tokens = min(tb.capacity, tb.tokens+elapsed*tb.refillRate)
	tb.lastRefill = now
}

// take consumes a token if one is available. It also reports the tokens left
// and when the bucket will be full again.
func (tb *tokenBucket) take() (ok bool, remaining int, full time.Time) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	tb.refill(now)
	if tb.tokens >= 1 {
		tb.tokens--
		ok = true
	}
	full = now
	if tb.refillRate > 0 && tb.tokens < tb.capacity {
		secs := (tb.capacity - tb.tokens) / tb.refillRate
		full = now.Add(time.Duration(secs * float64(time.Second)))
	}
	return ok, int(tb.tokens), full
}

func (tb *tokenBucket) allow() bool {
	ok, _, _ := tb.take()
	return ok
}

func (tb *tokenBucket) idleSince() time.Time {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.lastRefill
}

// RateLimiter manages per-client rate limiting. Idle buckets are swept while
// handling requests, so no background goroutine is needed.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*tokenBucket
	config    RateLimiterConfig
	idleTTL   time.Duration
	lastSweep time.Time
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	return &RateLimiter{
		buckets:   make(map[string]*tokenBucket),
		config:    config,
		idleTTL:   5 * time.Minute,
		lastSweep: time.Now(),
	}
}

func (rl *RateLimiter) bucket(ip string) *tokenBucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now := time.Now(); now.Sub(rl.lastSweep) > time.Minute {
		for key, b := range rl.buckets {
			if now.Sub(b.idleSince()) > rl.idleTTL {
				delete(rl.buckets, key)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[ip]
	if !ok {
		b = newTokenBucket(float64(rl.config.BurstSize), float64(rl.config.RequestsPerMinute)/60)
		rl.buckets[ip] = b
	}
	return b
}

// Allow reports whether a request from ip may proceed.
func (rl *RateLimiter) Allow(ip string) bool {
	return rl.bucket(ip).allow()
}

// Middleware rejects requests over the limit with 429 and sets the
// X-RateLimit-* headers.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, remaining, full := rl.bucket(clientIP(r)).take()

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.config.RequestsPerMinute))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(full.Unix(), 10))

		if !ok {
			retryAfter := int(time.Until(full).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			respondError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED",
				"Rate limit exceeded. Try again in "+strconv.Itoa(retryAfter)+" seconds.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP takes the leftmost valid X-Forwarded-For address, then
// X-Real-IP, then the connection address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(ip) != nil {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if net.ParseIP(ip) != nil {
		return ip
	}
	return "unknown"
}
