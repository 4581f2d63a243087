// Package controller contains the HTTP API server.
package controller

import (
	"context"
	"net/http"
	"time"

	"runbox/internal/controller/handlers"
)

// Options wires the server's routes together.
type Options struct {
	Handlers *handlers.Handlers
	// Gateway serves the LSP WebSocket endpoint; it authenticates on its own
	// because the token may arrive as a query parameter.
	Gateway http.Handler
	// Metrics serves the Prometheus scrape endpoint; nil disables it.
	Metrics http.Handler
	// Auth protects the REST routes.
	Auth func(http.Handler) http.Handler
	// RateLimit applies per-caller throttling; nil disables it.
	RateLimit func(http.Handler) http.Handler
}

// Server is the HTTP server for the API.
type Server struct {
	httpServer *http.Server
}

// New creates an API server listening on addr.
func New(addr string, opts Options) *Server {
	h := opts.Handlers

	protect := func(hf http.HandlerFunc) http.Handler {
		var handler http.Handler = hf
		if opts.RateLimit != nil {
			handler = opts.RateLimit(handler)
		}
		return opts.Auth(handler)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Health)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	mux.Handle("POST /v1/executions", protect(h.SubmitExecution))
	mux.Handle("GET /v1/executions", protect(h.ListExecutions))
	mux.Handle("GET /v1/executions/{id}", protect(h.GetExecution))

	mux.Handle("POST /v1/sessions", protect(h.CreateSession))
	mux.Handle("POST /v1/sessions/{id}/renew", protect(h.RenewSession))
	mux.Handle("POST /v1/sessions/{id}/files", protect(h.UploadFile))
	mux.Handle("POST /v1/sessions/{id}/container", protect(h.BindContainer))

	if opts.Gateway != nil {
		mux.Handle("GET /v1/lsp", opts.Gateway)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
