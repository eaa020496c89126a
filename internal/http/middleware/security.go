package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityOptions toggles the optional response headers.
type SecurityOptions struct {
	EnableHSTS   bool          // only when traffic is HTTPS end-to-end
	HSTSMaxAge   time.Duration // defaults to 180 days
	NoStore      bool          // Cache-Control: no-store for private data
	EnablePolicy bool          // Permissions-Policy and cross-domain policy
	// ExposeHeaders are appended to Access-Control-Expose-Headers, after
	// X-Request-ID.
	ExposeHeaders []string
}

// SecurityHeaders sets a conservative header posture on every response.
// HSTS is only sent on HTTPS requests (directly or via X-Forwarded-Proto).
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := int(opt.HSTSMaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = int((180 * 24 * time.Hour).Seconds())
	}
	hsts := "max-age=" + strconv.Itoa(maxAge) + "; includeSubDomains"
	expose := append([]string{requestIDHeader}, opt.ExposeHeaders...)

	return func(c *gin.Context) {
		h := c.Writer.Header()

		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}
		if opt.NoStore {
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		appendExpose(h, expose)

		c.Next()
	}
}

// appendExpose merges names into Access-Control-Expose-Headers without
// duplicating entries already present.
func appendExpose(h http.Header, names []string) {
	const hdr = "Access-Control-Expose-Headers"
	cur := h.Get(hdr)
	have := map[string]bool{}
	for _, p := range strings.Split(cur, ",") {
		if p = strings.TrimSpace(p); p != "" {
			have[strings.ToLower(p)] = true
		}
	}
	for _, n := range names {
		if have[strings.ToLower(n)] {
			continue
		}
		if cur == "" {
			cur = n
		} else {
			cur += ", " + n
		}
		have[strings.ToLower(n)] = true
	}
	if cur != "" {
		h.Set(hdr, cur)
	}
}

func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
