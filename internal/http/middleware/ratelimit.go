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

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(*gin.Context) string

// KeyByUserOrIP charges authenticated callers per user and everyone else
// per client IP.
func KeyByUserOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if uid := UserID(c); uid != "" {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a keyed token-bucket limiter. Idle buckets are swept
// every sweepEvery lookups once they have been unused for ttl.
type RateLimiter struct {
	limit rate.Limit
	burst int
	keyFn KeyFunc

	mu         sync.Mutex
	buckets    map[string]*bucket
	ttl        time.Duration
	sweepEvery uint64
	lookups    uint64
	now        func() time.Time
}

// NewRateLimiter returns a limiter refilling rps tokens per second up to
// burst. A non-positive burst is raised to 1; a zero rps only ever admits
// the initial burst.
func NewRateLimiter(rps float64, burst int, keyFn KeyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if keyFn == nil {
		keyFn = KeyByUserOrIP()
	}
	return &RateLimiter{
		limit:      rate.Limit(rps),
		burst:      burst,
		keyFn:      keyFn,
		buckets:    make(map[string]*bucket),
		ttl:        10 * time.Minute,
		sweepEvery: 5000,
		now:        time.Now,
	}
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= rl.sweepEvery {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.ttl {
				delete(rl.buckets, k)
			}
		}
		rl.lookups = 0
	}

	if b, ok := rl.buckets[key]; ok {
		b.lastSeen = now
		return b.limiter
	}
	lim := rate.NewLimiter(rl.limit, rl.burst)
	rl.buckets[key] = &bucket{limiter: lim, lastSeen: now}
	return lim
}

// retryAfter is the whole number of seconds until one token is available,
// at least 1.
func (rl *RateLimiter) retryAfter() string {
	if rl.limit <= 0 || math.IsInf(float64(rl.limit), 1) {
		return "1"
	}
	secs := int(math.Ceil(1 / float64(rl.limit)))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// Handler admits requests with an available token and answers 429 with
// Retry-After otherwise. Idempotent replays bypass the limiter.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if bypass, _ := c.Get(ctxKeyRateBypass); bypass == true {
			c.Next()
			return
		}
		if rl.limiterFor(rl.keyFn(c)).Allow() {
			c.Next()
			return
		}
		c.Header("Retry-After", rl.retryAfter())
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": GetRequestID(c),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
