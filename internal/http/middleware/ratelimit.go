// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements an in-memory token-bucket rate limiter with
// per-identity buckets and opportunistic cleanup of idle buckets. It is
// process-local: a horizontally scaled deployment would need a distributed
// limiter instead.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyFunc selects the identity used to key a rate-limit bucket.
type keyFunc func(*gin.Context) string

// KeyByOwnerOrIP prefers the owner identity from the X-Owner-ID header and
// falls back to the client IP. Keys are prefixed so owner and IP namespaces
// cannot collide.
func KeyByOwnerOrIP() keyFunc {
	return func(c *gin.Context) string {
		if id := c.GetHeader("X-Owner-ID"); id != "" {
			return "owner:" + id
		}
		return "ip:" + c.ClientIP()
	}
}

// bucket holds one limiter and the last time it was used, for eviction.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter implements per-key token-bucket rate limiting. Buckets are
// created on demand; idle buckets are evicted during lookups to bound
// memory. Safe for concurrent use.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn keyFunc

	mu      sync.Mutex
	buckets map[string]*bucket
	ttl     time.Duration
	lookups uint64
}

// NewRateLimiter constructs a RateLimiter with the given tokens-per-second
// and burst size. rps <= 0 disables limiting entirely.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		keyFn:   keyFn,
		buckets: make(map[string]*bucket),
		ttl:     10 * time.Minute,
	}
}

// Handler returns the Gin middleware enforcing the limit. Rejected requests
// get 429 with the standard error envelope shape.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.rps <= 0 {
			c.Next()
			return
		}
		if !rl.allow(rl.keyFn(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"request_id": c.GetString(requestIDKey),
				"code":       "too_many_requests",
				"message":    "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = time.Now()

	// Amortized eviction: sweep every 256 lookups.
	rl.lookups++
	if rl.lookups%256 == 0 {
		cutoff := time.Now().Add(-rl.ttl)
		for k, v := range rl.buckets {
			if v.lastSeen.Before(cutoff) {
				delete(rl.buckets, k)
			}
		}
	}

	return b.limiter.Allow()
}
