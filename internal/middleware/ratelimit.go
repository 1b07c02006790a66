package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter caps requests per client IP per minute. It is a coarse
// brute-force dampener layered above the per-account lockout; a single
// shared limiter instance serves the whole router.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	windows map[string]*window
}

type window struct {
	start time.Time
	count int
}

// NewRateLimiter creates a limiter allowing rpm requests per minute per
// client. A non-positive rpm disables limiting.
func NewRateLimiter(rpm int) *RateLimiter {
	return &RateLimiter{limit: rpm, windows: make(map[string]*window)}
}

// Handler returns the gin middleware.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.limit <= 0 {
			c.Next()
			return
		}
		if !rl.allow(c.ClientIP(), time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited", "error_description": "Too many requests."})
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) allow(key string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[key]
	if !ok || now.Sub(w.start) >= time.Minute {
		rl.windows[key] = &window{start: now, count: 1}
		rl.prune(now)
		return true
	}
	if w.count >= rl.limit {
		return false
	}
	w.count++
	return true
}

// prune drops stale windows so the map does not grow with one entry per
// client forever. Called under the lock.
func (rl *RateLimiter) prune(now time.Time) {
	if len(rl.windows) < 10000 {
		return
	}
	for key, w := range rl.windows {
		if now.Sub(w.start) >= time.Minute {
			delete(rl.windows, key)
		}
	}
}
