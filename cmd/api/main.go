// Package main is the entry point for the runbox API server. It accepts job
// submissions, manages interactive sessions, and hosts the LSP gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"runbox/internal/auth"
	"runbox/internal/config"
	"runbox/internal/controller"
	"runbox/internal/controller/handlers"
	"runbox/internal/controller/middleware"
	"runbox/internal/gateway"
	"runbox/internal/logger"
	"runbox/internal/observability"
	"runbox/internal/queue"
	"runbox/internal/sandbox"
	"runbox/internal/session"
	"runbox/internal/store/postgres"

	"github.com/redis/go-redis/v9"
)

func main() {
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	flag.Parse()

	log := logger.New("api")

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	store, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if *migrateFlag {
		log.Info("running database migrations")
		if err := postgres.Migrate(store.DB()); err != nil {
			log.Error("migration failed", "error", err)
			os.Exit(1)
		}
		log.Info("migrations completed")
	}

	shutdownTracer, err := observability.InitTracer(ctx, "runbox-api", cfg.OTELEndpoint)
	if err != nil {
		log.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Error("failed to shutdown metrics", "error", err)
		}
	}()
	metrics, err := observability.NewMetrics()
	if err != nil {
		log.Error("failed to create metrics", "error", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	tokens := auth.NewTokenManager(cfg.JWTSecret)
	sessions := session.NewStore(rdb, cfg.SessionTTL, cfg.SessionFilesRoot)

	launcher, err := sandbox.NewLangServerLauncher(cfg.LSPImage)
	if err != nil {
		log.Error("failed to create language server launcher", "error", err)
		os.Exit(1)
	}
	attacher, err := gateway.NewDockerAttacher()
	if err != nil {
		log.Error("failed to create container attacher", "error", err)
		os.Exit(1)
	}

	gw := gateway.New(sessions, attacher, tokens, gateway.Config{
		OutboundBuffer: cfg.GatewayOutboundBuffer,
	}, logger.New("gateway"), metrics)

	h := handlers.New(store, queue.NewRedisQueue(rdb), sessions, launcher, handlers.Config{
		ArtifactRoot:     cfg.ArtifactRoot,
		SessionFilesRoot: cfg.SessionFilesRoot,
		UploadMaxBytes:   cfg.UploadMaxBytes,
	}, log, metrics)

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := controller.New(addr, controller.Options{
		Handlers:  h,
		Gateway:   gw,
		Metrics:   metricsHandler,
		Auth:      middleware.Auth(tokens),
		RateLimit: middleware.RateLimit(10, 20),
	})

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("api server starting", "addr", addr)
	if err := srv.Run(runCtx); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
	log.Info("server exited properly")
}
