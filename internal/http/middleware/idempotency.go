package middleware

import (
	"context"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client-generated id of a send. On the
// REST send route it doubles as the message's clientMessageId.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotencyReplayed is set on responses that return a previously
// persisted result instead of creating a new one.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyRateBypass = "rate.bypass" // replays are not rate limited
)

var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// IdempotencyOptions bounds accepted keys. Zero values pick MaxLen 128 and
// an unreserved-URL-characters pattern.
type IdempotencyOptions struct {
	MaxLen  int
	Pattern *regexp.Regexp
}

// IdempotencyLookup reports whether userID already has a stored result for
// key. Lookup errors are treated as "not found".
type IdempotencyLookup func(ctx context.Context, userID, key string) (bool, error)

// IdempotencyValidator rejects malformed Idempotency-Key headers with 400 and
// stashes well-formed keys for handlers. When lookup finds an earlier result
// for a POST the request skips the rate limiter. Requests without the header
// pass through untouched.
//
// Mount after Authenticate so the caller id is known, and only on the route
// whose results lookup inspects.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 128
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": GetRequestID(c),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup != nil && c.Request.Method == http.MethodPost {
			if uid := UserID(c); uid != "" {
				if found, err := lookup(c.Request.Context(), uid, key); err == nil && found {
					c.Set(ctxKeyRateBypass, true)
				}
			}
		}
		c.Next()
	}
}

// GetIdempotencyKey returns the validated key, if any.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, _ := c.Get(ctxKeyIdemKey)
	s := asString(v)
	return s, s != ""
}
