// Package config handles environment variable loading for ports, database strings, etc.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the application.
type Config struct {
	// Database connection string
	DatabaseURL string

	// Redis connection (queue + session store)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// HTTP server port for the API
	HTTPPort int

	// Secret used to verify bearer tokens
	JWTSecret string

	// Directory where submitted artifacts live (shared with the worker)
	ArtifactRoot string

	// Host directory holding per-session workspaces
	SessionFilesRoot string

	// Container image used to run submitted artifacts
	ExecImage string

	// Container image hosting the language server
	LSPImage string

	// Number of concurrent queue consumers in the worker
	WorkerConcurrency int

	// Hard limit for a single sandboxed run
	ExecTimeout time.Duration

	// Session record time-to-live in the external store
	SessionTTL time.Duration

	// Buffered messages per connection in the container-to-client direction
	GatewayOutboundBuffer int

	// Maximum upload size for session files
	UploadMaxBytes int64

	// Runtime backend for the worker: "docker" or "kubernetes"
	Runtime string

	// Kubernetes runtime settings (only used when Runtime is "kubernetes")
	KubernetesNamespace string

	// OTLP collector endpoint for traces
	OTELEndpoint string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg := &Config{
		DatabaseURL:         dbURL,
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		ArtifactRoot:        getEnv("ARTIFACT_ROOT", "/code-files"),
		SessionFilesRoot:    getEnv("SESSION_FILES_ROOT", "/lsp-files"),
		ExecImage:           getEnv("EXEC_IMAGE", "dart:stable"),
		LSPImage:            getEnv("LSP_IMAGE", "runbox/dart-lsp:latest"),
		Runtime:             getEnv("RUNTIME", "docker"),
		KubernetesNamespace: getEnv("KUBERNETES_NAMESPACE", "runbox"),
		OTELEndpoint:        getEnv("OTEL_ENDPOINT", "localhost:4317"),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	var err error
	if cfg.HTTPPort, err = getInt("PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.WorkerConcurrency, err = getInt("WORKER_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.GatewayOutboundBuffer, err = getInt("GATEWAY_OUTBOUND_BUFFER", 64); err != nil {
		return nil, err
	}
	if cfg.ExecTimeout, err = getDuration("EXEC_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", 60*time.Second); err != nil {
		return nil, err
	}

	maxBytes, err := getInt("UPLOAD_MAX_BYTES", 1<<20)
	if err != nil {
		return nil, err
	}
	cfg.UploadMaxBytes = int64(maxBytes)

	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("invalid PORT: %d", cfg.HTTPPort)
	}
	if cfg.WorkerConcurrency <= 0 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
