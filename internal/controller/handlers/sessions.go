package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"runbox/internal/controller/middleware"
	"runbox/internal/session"
	"runbox/pkg/api"
)

// CreateSession handles POST /v1/sessions.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	requester, ok := middleware.RequesterFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sess, err := h.sessions.Create(ctx, requester.UserID)
	if err != nil {
		h.logger.Error("failed to create session", "error", err)
		h.httpError(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	if h.metrics != nil {
		h.metrics.SessionsCreated.Add(ctx, 1)
	}
	h.logger.Info("session created", "session_id", sess.ID, "owner_id", requester.UserID)
	h.respondJson(w, http.StatusCreated, api.CreateSessionResponse{SessionID: sess.ID})
}

// RenewSession handles POST /v1/sessions/{id}/renew.
// Resets the session's TTL to the full window. A session belonging to
// someone else gets the same answer as a missing one.
func (h *Handlers) RenewSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	requester, ok := middleware.RequesterFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	err := h.sessions.Renew(ctx, r.PathValue("id"), requester.UserID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrForbidden) {
			h.httpError(w, "Session not found", http.StatusNotFound)
			return
		}
		h.httpError(w, "Failed to renew session", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UploadFile handles POST /v1/sessions/{id}/files.
// Accepts a single multipart "file" part. Only .dart sources within the size
// cap are accepted. The first upload lazily starts the session's
// language-server container.
func (h *Handlers) UploadFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	requester, ok := middleware.RequesterFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	sessionID := r.PathValue("id")

	sess, err := h.sessions.Get(ctx, sessionID)
	if err != nil || sess.OwnerID != requester.UserID {
		h.httpError(w, "Session not found", http.StatusNotFound)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.config.UploadMaxBytes+4096)
	file, header, err := r.FormFile("file")
	if err != nil {
		h.httpError(w, "Missing file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	fileName := filepath.Base(header.Filename)
	if !strings.HasSuffix(fileName, ".dart") || fileName == ".dart" {
		h.httpError(w, "Only .dart files are accepted", http.StatusBadRequest)
		return
	}
	if header.Size > h.config.UploadMaxBytes {
		h.httpError(w, "File too large", http.StatusRequestEntityTooLarge)
		return
	}

	hostDir := filepath.Join(h.config.SessionFilesRoot, sessionID)
	if err := os.MkdirAll(hostDir, 0o755); err != nil {
		h.httpError(w, "Failed to store file", http.StatusInternalServerError)
		return
	}
	dst, err := os.Create(filepath.Join(hostDir, fileName))
	if err != nil {
		h.httpError(w, "Failed to store file", http.StatusInternalServerError)
		return
	}
	defer dst.Close()
	if _, err := io.Copy(dst, io.LimitReader(file, h.config.UploadMaxBytes)); err != nil {
		h.httpError(w, "Failed to store file", http.StatusInternalServerError)
		return
	}

	if err := h.sessions.RecordUpload(ctx, sessionID, requester.UserID, fileName); err != nil {
		h.httpError(w, "Failed to record upload", http.StatusInternalServerError)
		return
	}

	containerID := sess.ContainerID
	if containerID == "" && h.launcher != nil {
		containerID, err = h.launcher.Start(ctx, sessionID, hostDir, sess.WorkspaceRoot)
		if err != nil {
			h.logger.Error("failed to start language server", "session_id", sessionID, "error", err)
			h.httpError(w, "Failed to start language server", http.StatusInternalServerError)
			return
		}
		if err := h.sessions.BindContainer(ctx, sessionID, containerID); err != nil {
			h.logger.Error("failed to bind container", "session_id", sessionID, "error", err)
			h.httpError(w, "Failed to bind container", http.StatusInternalServerError)
			return
		}
		h.logger.Info("language server started", "session_id", sessionID, "container_id", containerID)
	}

	h.respondJson(w, http.StatusCreated, api.UploadFileResponse{
		FileName:    fileName,
		ContainerID: containerID,
	})
}

// BindContainer handles POST /v1/sessions/{id}/container.
// Attaches an externally started container to the session.
func (h *Handlers) BindContainer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	requester, ok := middleware.RequesterFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	sessionID := r.PathValue("id")

	var req api.BindContainerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ContainerID == "" {
		h.httpError(w, "Invalid body", http.StatusBadRequest)
		return
	}

	sess, err := h.sessions.Get(ctx, sessionID)
	if err != nil || sess.OwnerID != requester.UserID {
		h.httpError(w, "Session not found", http.StatusNotFound)
		return
	}

	if err := h.sessions.BindContainer(ctx, sessionID, req.ContainerID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			h.httpError(w, "Session not found", http.StatusNotFound)
			return
		}
		h.httpError(w, "Failed to bind container", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
