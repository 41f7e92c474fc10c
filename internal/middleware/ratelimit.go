package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	appErrors "github.com/attendify/attendify-api/pkg/errors"
	"github.com/attendify/attendify-api/pkg/response"
)

// RateLimiter is an in-memory per-client token bucket. Scan endpoints see
// bursts when a whole class marks attendance at once, so the bucket allows a
// burst above the sustained per-minute rate.
type RateLimiter struct {
	burst     int
	perMinute int

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// sweepInterval bounds how often the bucket map is scanned for stale entries.
const sweepInterval = time.Minute

type bucket struct {
	tokens int
	last   time.Time
}

// NewRateLimiter creates a limiter allowing perMinute requests sustained and
// burst requests at once per client key.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if burst <= 0 {
		burst = perMinute
	}
	return &RateLimiter{
		burst:     burst,
		perMinute: perMinute,
		buckets:   make(map[string]*bucket),
	}
}

// Middleware enforces the limit per client IP.
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if key == "" {
			key = "unknown"
		}
		if !l.allow(key, time.Now()) {
			response.Error(c, appErrors.New("RATE_LIMITED", http.StatusTooManyRequests, "too many requests"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func (l *RateLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= sweepInterval {
		l.sweep(now)
		l.lastSweep = now
	}

	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{tokens: l.burst - 1, last: now}
		return true
	}

	refill := int(now.Sub(b.last).Minutes() * float64(l.perMinute))
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.burst {
			b.tokens = l.burst
		}
		b.last = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// sweep drops buckets idle long enough to have fully refilled. A dropped
// client starts over with a full burst, which is what the refill math would
// have given it anyway.
func (l *RateLimiter) sweep(now time.Time) {
	for key, b := range l.buckets {
		refill := int(now.Sub(b.last).Minutes() * float64(l.perMinute))
		if refill >= l.burst {
			delete(l.buckets, key)
		}
	}
}
