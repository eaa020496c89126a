// Command realtime runs the group messaging core: the websocket endpoint, the
// REST surface, presence tracking and the cross-process broadcast fabric.
//
// Configuration comes from the environment (see internal/config); a .env file
// in the working directory is loaded first when present.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/vroymv/AfroLingo-sub000/internal/auth"
	"github.com/vroymv/AfroLingo-sub000/internal/config"
	"github.com/vroymv/AfroLingo-sub000/internal/fabric"
	httpapi "github.com/vroymv/AfroLingo-sub000/internal/http"
	"github.com/vroymv/AfroLingo-sub000/internal/observability"
	"github.com/vroymv/AfroLingo-sub000/internal/presence"
	"github.com/vroymv/AfroLingo-sub000/internal/realtime"
	"github.com/vroymv/AfroLingo-sub000/internal/repo"
	"github.com/vroymv/AfroLingo-sub000/internal/services"
	"github.com/vroymv/AfroLingo-sub000/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("read .env")
	}
	cfg := config.MustLoad()

	nodeID := sysutil.FirstNonEmpty(cfg.NodeID, os.Getenv("HOSTNAME"), uuid.NewString())
	sysutil.SetupLogging(os.Stdout, cfg.LogLevel, cfg.LogPretty, nodeID)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version, nodeID)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup")
	}

	db, err := repo.Open(cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	verifier, err := auth.New(ctx, cfg.Auth)
	if err != nil {
		log.Fatal().Err(err).Str("mode", cfg.Auth.Mode).Msg("auth setup")
	}

	// Redis backs both presence and the broadcast backbone. Without it the
	// process runs single-node: local delivery and nobody counted online.
	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("parse REDIS_URL")
		}
		rdb = redis.NewClient(opt)
	}

	fabOpts := fabric.Options{Channel: cfg.Redis.FabricChannel, NodeID: nodeID}
	if rdb != nil {
		fabOpts.Redis = rdb
	}
	fab := fabric.New(fabOpts)
	fab.Start(ctx)
	emitter := realtime.NewEmitter(fab)

	groups := services.NewGroupService(db)
	sessions := &realtime.SessionManager{
		Verifier:        verifier,
		Memberships:     groups,
		Fabric:          fab,
		Emitter:         emitter,
		ProtocolVersion: cfg.ProtocolVersion,
	}
	var notifs *services.NotificationService
	if rdb != nil {
		tracker := presence.NewTracker(rdb, cfg.Redis.PresenceTTL, cfg.Redis.KeyPrefix)
		sessions.Presence = tracker
		log.Info().Dur("ttl", tracker.TTL()).Str("prefix", cfg.Redis.KeyPrefix).Msg("presence enabled")
		notifs = services.NewNotificationService(db, tracker, emitter)
	} else {
		notifs = services.NewNotificationService(db, nil, emitter)
	}
	msgs := services.NewMessageService(db, emitter, notifs)

	rt := realtime.NewServer(cfg.WS, sessions, msgs, emitter, cfg.CORS.AllowedOrigins)

	r := gin.New()
	httpapi.RegisterRoutes(r, cfg, httpapi.Deps{
		DB:            db,
		Verifier:      verifier,
		Groups:        groups,
		Messages:      msgs,
		Notifications: notifs,
		Realtime:      rt,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", version).
			Bool("distributed", fab.Distributed()).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Stop accepting requests, then close live sockets so their sessions
	// mark the users offline before the backbone goes away.
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := rt.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("websocket shutdown")
	}
	if err := fab.Close(); err != nil {
		log.Error().Err(err).Msg("fabric close")
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("redis close")
		}
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if err := shutdownOTel(sctx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	log.Info().Msg("stopped")
}
