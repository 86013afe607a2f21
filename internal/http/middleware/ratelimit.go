// Package middleware contains the Gin middleware of the query API.
//
// This file implements a process-local token-bucket rate limiter with one
// bucket per client key, built on golang.org/x/time/rate. Idle buckets are
// evicted opportunistically to bound memory. Selected paths (health checks,
// metrics scrapes) can be exempted.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc maps a request to the identity of its rate-limit bucket.
type KeyFunc func(*gin.Context) string

// KeyByIP keys buckets by client IP.
func KeyByIP() KeyFunc {
	return func(c *gin.Context) string { return "ip:" + c.ClientIP() }
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-key token-bucket limiter. It is safe for concurrent
// use.
type RateLimiter struct {
	rps    rate.Limit
	burst  int
	keyFn  KeyFunc
	exempt map[string]struct{}

	mu       sync.Mutex
	visitors map[string]*visitor
	ttl      time.Duration
	lookups  uint64
	gcEvery  uint64
}

// NewRateLimiter returns a limiter allowing rps requests per second with the
// given burst per key. A burst <= 0 is coerced to 1. Requests whose path is
// listed in exempt bypass the limiter.
func NewRateLimiter(rps float64, burst int, keyFn KeyFunc, exempt ...string) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if keyFn == nil {
		keyFn = KeyByIP()
	}
	rl := &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		exempt:   make(map[string]struct{}, len(exempt)),
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
		gcEvery:  4096,
	}
	for _, p := range exempt {
		rl.exempt[p] = struct{}{}
	}
	return rl
}

// limiterFor returns the bucket of key, creating it when absent. Every
// gcEvery lookups, buckets idle for at least ttl are dropped first.
func (rl *RateLimiter) limiterFor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= rl.gcEvery {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.lookups = 0
	}

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

// Handler returns the Gin middleware. Rejected requests receive 429 with the
// error envelope and a Retry-After header in whole seconds.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := rl.exempt[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		now := time.Now()
		lim := rl.limiterFor(rl.keyFn(c), now)
		if lim.AllowN(now, 1) {
			c.Next()
			return
		}

		c.Header("Retry-After", strconv.Itoa(retryAfter(lim, now)))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": RequestIDFrom(c),
			"code":       "too_many_requests",
			"message":    "rate limit exceeded",
		})
	}
}

// retryAfter estimates how many seconds until lim grants a token, at least 1.
func retryAfter(lim *rate.Limiter, now time.Time) int {
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return 1
	}
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return max(1, int(math.Ceil(delay.Seconds())))
}
