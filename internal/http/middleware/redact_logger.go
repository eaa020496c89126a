package middleware

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures what RedactingLogger scrubs beyond its defaults.
//
// MaskHeaders and MaskQueryParams name extra headers and query parameters
// whose values are replaced with "[REDACTED]". Header matching is
// case-insensitive. Authorization, Cookie, Set-Cookie and the websocket
// handshake key are always masked, as are the token and access_token query
// parameters that carry handshake credentials.
type RedactOptions struct {
	MaskHeaders     []string
	MaskQueryParams []string
}

var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Digits only, so UUID hex segments cannot match.
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
	// jwtRE catches bearer tokens pasted into odd places.
	jwtRE = regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]*`)
)

// redact scrubs tokens, ids, emails and phone numbers from s. UUIDs go
// before phones because the phone pattern would eat their digit groups.
func redact(s string) string {
	if s == "" {
		return s
	}
	s = jwtRE.ReplaceAllString(s, "[REDACTED:token]")
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// RedactingLogger emits one structured access log per request with request
// metadata scrubbed, and attaches a request-scoped logger (request_id) for
// handlers to enrich. Bodies are never logged. Level is info, warn for 4xx
// and error for 5xx or when handlers recorded gin errors.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := map[string]struct{}{
		"authorization":     {},
		"cookie":            {},
		"set-cookie":        {},
		"sec-websocket-key": {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			maskHeaders[h] = struct{}{}
		}
	}
	maskParams := map[string]struct{}{
		"token":        {},
		"access_token": {},
	}
	for _, p := range opts.MaskQueryParams {
		if p = strings.TrimSpace(p); p != "" {
			maskParams[p] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		safeQuery := redact(maskQuery(c.Request.URL.RawQuery, maskParams))

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = redact(strings.Join(vv, ", "))
		}

		reqID := c.Writer.Header().Get(requestIDHeader)
		if reqID == "" {
			reqID = c.GetHeader(requestIDHeader)
		}
		scoped := log.With().Str("request_id", reqID).Logger()
		c.Set(loggerKey, &scoped)

		c.Next()

		status := c.Writer.Status()
		ev := scoped.Info()
		switch {
		case status >= 500 || len(c.Errors) > 0:
			ev = scoped.Error()
		case status >= 400:
			ev = scoped.Warn()
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}

		ev.
			Str("user_id", asString(mustGet(c, "userID"))).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", safeQuery).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}

// maskQuery replaces the values of sensitive parameters. The query is
// returned untouched when it does not parse.
func maskQuery(raw string, params map[string]struct{}) string {
	if raw == "" {
		return raw
	}
	q, err := url.ParseQuery(raw)
	if err != nil {
		return raw
	}
	changed := false
	for k := range q {
		if _, ok := params[k]; ok {
			q[k] = []string{"[REDACTED]"}
			changed = true
		}
	}
	if !changed {
		return raw
	}
	return q.Encode()
}

func mustGet(c *gin.Context, key string) any {
	v, _ := c.Get(key)
	return v
}
