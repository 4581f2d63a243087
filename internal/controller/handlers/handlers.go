// Package handlers contains HTTP handlers for the API server.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"runbox/internal/observability"
	"runbox/internal/queue"
	"runbox/internal/session"
	"runbox/internal/store"
	"runbox/pkg/api"
)

// StoreFactory combines the persistence interfaces the handlers need.
type StoreFactory interface {
	BeginTx(ctx context.Context) (store.Tx, error)
	Ping(ctx context.Context) error
	store.JobStore
}

// SessionStore is the session persistence surface used by the handlers.
type SessionStore interface {
	Create(ctx context.Context, ownerID string) (*session.Session, error)
	Get(ctx context.Context, sessionID string) (*session.Session, error)
	Renew(ctx context.Context, sessionID, ownerID string) error
	BindContainer(ctx context.Context, sessionID, containerID string) error
	RecordUpload(ctx context.Context, sessionID, ownerID, fileName string) error
}

// ContainerLauncher starts a session's language-server container.
type ContainerLauncher interface {
	Start(ctx context.Context, sessionID, hostDir, workspaceRoot string) (string, error)
}

// Config holds handler tunables.
type Config struct {
	// ArtifactRoot is the directory submitted artifact paths resolve under.
	ArtifactRoot string
	// SessionFilesRoot is the host directory session uploads are written to.
	SessionFilesRoot string
	// UploadMaxBytes caps a single uploaded file.
	UploadMaxBytes int64
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	store    StoreFactory
	queue    queue.Publisher
	sessions SessionStore
	launcher ContainerLauncher
	config   Config
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New creates a Handlers instance. launcher and metrics may be nil.
func New(s StoreFactory, q queue.Publisher, sessions SessionStore, launcher ContainerLauncher, config Config, logger *slog.Logger, metrics *observability.Metrics) *Handlers {
	return &Handlers{
		store:    s,
		queue:    q,
		sessions: sessions,
		launcher: launcher,
		config:   config,
		logger:   logger,
		metrics:  metrics,
	}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}
