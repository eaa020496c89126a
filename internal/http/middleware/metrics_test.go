package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RouteLabelsAndInflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.GET("/groups/:id", func(c *gin.Context) { c.String(http.StatusOK, "hello") })
	r.GET("/empty", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	baseRoute := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/groups/:id", "200"))
	baseMiss := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedRoute, "404"))

	for _, p := range []string{"/groups/a", "/groups/b", "/nope/1", "/nope/2", "/empty"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/groups/:id", "200")); got != baseRoute+2 {
		t.Fatalf("route counter = %v; want %v", got, baseRoute+2)
	}
	// Unknown paths collapse into one series.
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedRoute, "404")); got != baseMiss+2 {
		t.Fatalf("unmatched counter = %v; want %v", got, baseMiss+2)
	}
	if inFlight := testutil.ToFloat64(httpInflight); inFlight != 0 {
		t.Fatalf("httpInflight = %v; want 0", inFlight)
	}
}

func TestMetrics_UpgradeRequestsSkipLatency(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.GET("/ws-metrics-check", func(c *gin.Context) { c.Status(http.StatusUnauthorized) })

	series := testutil.CollectAndCount(httpLat)
	req := httptest.NewRequest(http.MethodGet, "/ws-metrics-check", nil)
	req.Header.Set("Upgrade", "websocket")
	r.ServeHTTP(httptest.NewRecorder(), req)

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/ws-metrics-check", "401")); got != 1 {
		t.Fatalf("request counter = %v; want 1", got)
	}
	if got := testutil.CollectAndCount(httpLat); got != series {
		t.Fatalf("latency series = %d; want %d (upgrade must not observe)", got, series)
	}
}
