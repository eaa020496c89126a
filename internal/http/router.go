// Package httpapi wires the HTTP transport (Gin) to the messaging services,
// middleware, the websocket endpoint, and route handlers. It centralizes
// cross-cutting concerns such as tracing, correlation IDs, logging/redaction,
// panic recovery, metrics, CORS, security headers, bearer authentication,
// idempotency, and rate limiting.
//
// Layout:
//   - /health, /metrics, /swagger/*any   operational endpoints
//   - /ws                                realtime transport (authenticates itself)
//   - {APIBasePath}/...                  REST surface behind bearer auth
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/vroymv/AfroLingo-sub000/internal/auth"
	"github.com/vroymv/AfroLingo-sub000/internal/config"
	"github.com/vroymv/AfroLingo-sub000/internal/http/docs"
	"github.com/vroymv/AfroLingo-sub000/internal/http/handlers"
	"github.com/vroymv/AfroLingo-sub000/internal/http/middleware"
	"github.com/vroymv/AfroLingo-sub000/internal/realtime"
	"github.com/vroymv/AfroLingo-sub000/internal/repo"
)

// Deps are the collaborators the router mounts. The services are shared with
// the websocket server so both entry points run the same message pipeline.
type Deps struct {
	DB            *gorm.DB
	Verifier      auth.Verifier
	Groups        handlers.GroupService
	Messages      handlers.MessageService
	Notifications handlers.NotificationService
	Realtime      *realtime.Server // nil leaves /ws unmounted
}

var corsAllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey}

var corsExposeHeaders = []string{"X-Request-ID", "Content-Length", "ETag", middleware.HeaderIdempotencyReplayed}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with token/PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS and Security headers
//
// The API group then adds gzip, bearer authentication, the idempotency
// validator (after auth, so replays are looked up per user) and the rate
// limiter (which honors the replay bypass).
func RegisterRoutes(r *gin.Engine, cfg config.Config, d Deps) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) CORS posture and security headers
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:    cfg.Security.EnableHSTS,
		HSTSMaxAge:    cfg.Security.HSTSMaxAge,
		NoStore:       false,
		EnablePolicy:  true,
		ExposeHeaders: []string{"ETag", middleware.HeaderIdempotencyReplayed},
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Realtime transport
	if d.Realtime != nil {
		r.GET("/ws", d.Realtime.Handler())
	}

	// API docs
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(d.Groups, d.Messages, d.Notifications)
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(
		gzip.Gzip(gzip.DefaultCompression),
		middleware.Authenticate(d.Verifier),
	)

	// Replays of a stored send skip the limiter, so the lookup sits on the
	// send route only.
	api.POST("/groups/:id/messages",
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, messageLookup(d.DB)),
		rl.Handler(),
		h.PostMessage,
	)

	limited := api.Group("", rl.Handler())
	{
		// Groups
		limited.GET("/groups", h.ListGroups)
		limited.POST("/groups", h.CreateGroup)
		limited.POST("/groups/:id/join", h.JoinGroup)
		limited.POST("/groups/:id/leave", h.LeaveGroup)

		// Messages
		limited.GET("/groups/:id/messages", h.ListMessages)

		// Notifications
		limited.GET("/notifications", h.ListNotifications)
		limited.POST("/notifications/:id/read", h.MarkNotificationRead)
	}
}

// messageLookup reports whether the caller already sent a message under the
// given client message id. A nil db disables replay detection.
func messageLookup(db *gorm.DB) middleware.IdempotencyLookup {
	if db == nil {
		return nil
	}
	return func(ctx context.Context, userID, key string) (bool, error) {
		_, err := repo.GetMessageBySenderClientID(ctx, db, userID, key)
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	}
}

// corsMiddleware allows every origin when none is configured, otherwise only
// the allowlist. Credentials are never allowed: the API authenticates with
// bearer tokens, not cookies.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     corsAllowHeaders,
		ExposeHeaders:    corsExposeHeaders,
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if len(origins) == 0 {
		base.AllowAllOrigins = true
		// Force ACAO: * even for requests without an Origin header.
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	base.AllowOrigins = origins
	return []gin.HandlerFunc{cors.New(base)}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
