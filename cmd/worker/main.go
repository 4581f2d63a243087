// Package main is the entry point for the runbox worker. It consumes the
// execution queue and runs submitted artifacts in sandboxed containers.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"runbox/internal/config"
	"runbox/internal/logger"
	"runbox/internal/observability"
	"runbox/internal/queue"
	"runbox/internal/sandbox"
	"runbox/internal/store/postgres"
	"runbox/internal/worker"

	"github.com/redis/go-redis/v9"
)

func main() {
	log := logger.New("worker")

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	shutdownTracer, err := observability.InitTracer(ctx, "runbox-worker", cfg.OTELEndpoint)
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

	store, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	// The artifact path is appended to this invocation inside the container.
	command := []string{"dart", "run"}

	var runner sandbox.Runner
	switch cfg.Runtime {
	case "kubernetes":
		k8sRunner, err := sandbox.NewKubernetesRunner(sandbox.KubernetesConfig{
			Namespace: cfg.KubernetesNamespace,
			Image:     cfg.ExecImage,
			Command:   command,
		})
		if err != nil {
			log.Error("failed to create kubernetes runner", "error", err)
			os.Exit(1)
		}
		runner = k8sRunner
		log.Info("using kubernetes runner", "namespace", cfg.KubernetesNamespace)
	default:
		dockerRunner, err := sandbox.NewDockerRunner(cfg.ExecImage, command)
		if err != nil {
			log.Error("failed to create docker runner", "error", err)
			os.Exit(1)
		}
		runner = dockerRunner
		log.Info("using docker runner", "image", cfg.ExecImage)
	}

	pipeline := worker.New(store, queue.NewRedisQueue(rdb), runner, worker.Config{
		Concurrency: cfg.WorkerConcurrency,
		ExecTimeout: cfg.ExecTimeout,
	}, log, metrics)

	// Dedicated metrics listener; the worker has no other HTTP surface.
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		log.Info("worker metrics listening", "addr", ":6162")
		if err := http.ListenAndServe(":6162", mux); err != nil {
			log.Error("metrics server error", "error", err)
		}
	}()

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := pipeline.Run(runCtx); err != nil && err != context.Canceled {
		log.Error("pipeline stopped", "error", err)
		os.Exit(1)
	}
	log.Info("worker exited properly")
}
