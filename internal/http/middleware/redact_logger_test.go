package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func withCapturedLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

func TestRedactingLogger_InfoAndRedactions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	buf := withCapturedLogger(t)

	r.Use(func(c *gin.Context) {
		c.Header("X-Request-ID", "rid-resp")
		c.Next()
	})
	r.Use(RedactingLogger(RedactOptions{MaskHeaders: []string{"X-Api-Key"}}))
	r.GET("/groups/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	q := "email=a.b+tag@example.com&phone=+1-555-123-4567&id=123e4567-e89b-12d3-a456-426614174000"
	req := httptest.NewRequest(http.MethodGet, "/groups/123?"+q, nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("Cookie", "sid=topsecret")
	req.Header.Set("X-Api-Key", "shhh")
	req.Header.Set("X-Custom", "email a@b.com id=123e4567-e89b-12d3-a456-426614174000 phone 555-123-4567")
	req.Header.Set("X-Request-ID", "rid-req")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	logs := buf.String()
	for _, want := range []string{
		`"level":"info"`,
		`"path":"/groups/:id"`,
		`"request_id":"rid-resp"`,
		`[REDACTED:email]`,
		`[REDACTED:phone]`,
		`[REDACTED:id]`,
		`"Authorization":"[REDACTED]"`,
		`"Cookie":"[REDACTED]"`,
		`"X-Api-Key":"[REDACTED]"`,
		`"X-Custom":"email [REDACTED:email] id=[REDACTED:id] phone [REDACTED:phone]"`,
	} {
		if !strings.Contains(logs, want) {
			t.Fatalf("log missing %s: %s", want, logs)
		}
	}
	for _, leak := range []string{"secret", "topsecret", "shhh", "example.com"} {
		if strings.Contains(logs, leak) {
			t.Fatalf("log leaked %q: %s", leak, logs)
		}
	}
}

func TestRedactingLogger_MasksHandshakeToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	buf := withCapturedLogger(t)

	r.Use(RedactingLogger(RedactOptions{MaskQueryParams: []string{"sig"}}))
	r.GET("/ws", func(c *gin.Context) { c.Status(http.StatusUnauthorized) })

	req := httptest.NewRequest(http.MethodGet, "/ws?token=abc.def.ghi&sig=xyz&v=1", nil)
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	r.ServeHTTP(httptest.NewRecorder(), req)

	logs := buf.String()
	for _, leak := range []string{"abc.def.ghi", "xyz", "dGhlIHNhbXBsZSBub25jZQ"} {
		if strings.Contains(logs, leak) {
			t.Fatalf("log leaked %q: %s", leak, logs)
		}
	}
	if !strings.Contains(logs, "REDACTED") || !strings.Contains(logs, "v=1") {
		t.Fatalf("expected masked query keeping other params: %s", logs)
	}
}

func TestRedact_JWTInHeader(t *testing.T) {
	in := "forwarded eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ1MSJ9.sig-part"
	if got := redact(in); got != "forwarded [REDACTED:token]" {
		t.Fatalf("redact = %q", got)
	}
}

func TestMaskQuery_Unparseable(t *testing.T) {
	raw := "token=%zz"
	if got := maskQuery(raw, map[string]struct{}{"token": {}}); got != raw {
		t.Fatalf("unparseable query should pass through, got %q", got)
	}
	if got := maskQuery("a=1", map[string]struct{}{"token": {}}); got != "a=1" {
		t.Fatalf("untouched query rewritten: %q", got)
	}
}

func TestRedactingLogger_WarnAndErrorLevels_RequestIDFallback(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	buf := withCapturedLogger(t)

	r.Use(RedactingLogger(RedactOptions{}))
	r.GET("/warn", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/error", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	reqWarn := httptest.NewRequest(http.MethodGet, "/warn", nil)
	reqWarn.Header.Set("X-Request-ID", "rid-warn")
	r.ServeHTTP(httptest.NewRecorder(), reqWarn)

	reqErr := httptest.NewRequest(http.MethodGet, "/error", nil)
	reqErr.Header.Set("X-Request-ID", "rid-err")
	r.ServeHTTP(httptest.NewRecorder(), reqErr)

	logs := buf.String()
	if !strings.Contains(logs, `"level":"warn"`) || !strings.Contains(logs, `"request_id":"rid-warn"`) {
		t.Fatalf("warn log not found or missing request_id fallback: %s", logs)
	}
	if !strings.Contains(logs, `"level":"error"`) || !strings.Contains(logs, `"request_id":"rid-err"`) {
		t.Fatalf("error log not found or missing request_id fallback: %s", logs)
	}
}

func TestRedactingLogger_UserIDAndScopedLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	buf := withCapturedLogger(t)

	r.Use(RequestID(), RedactingLogger(RedactOptions{}))
	r.GET("/me", func(c *gin.Context) {
		c.Set("userID", "u-42")
		LoggerFrom(c).Info().Msg("inside handler")
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-Request-ID", "rid-scoped")
	r.ServeHTTP(httptest.NewRecorder(), req)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("want 2 log lines, got %d: %s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], `"request_id":"rid-scoped"`) || !strings.Contains(lines[0], "inside handler") {
		t.Fatalf("handler log not request-scoped: %s", lines[0])
	}
	if !strings.Contains(lines[1], `"user_id":"u-42"`) {
		t.Fatalf("access log missing user_id: %s", lines[1])
	}
}
