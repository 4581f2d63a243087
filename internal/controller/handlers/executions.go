package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"runbox/internal/controller/middleware"
	"runbox/internal/queue"
	"runbox/internal/store"
	"runbox/pkg/api"

	"github.com/oklog/ulid/v2"
)

// SubmitExecution handles POST /v1/executions.
// The job row and its initial QUEUED status commit atomically; the queue
// message is published only after the commit, so a consumer can never see a
// job without history.
func (h *Handlers) SubmitExecution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	requester, ok := middleware.RequesterFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req api.SubmitExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid body", http.StatusBadRequest)
		return
	}
	if req.ArtifactPath == "" || !filepath.IsLocal(req.ArtifactPath) {
		h.httpError(w, "Invalid artifact path", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	job := &store.Job{
		ID:           ulid.Make().String(),
		OwnerID:      requester.UserID,
		ArtifactPath: filepath.Join(h.config.ArtifactRoot, req.ArtifactPath),
		CreatedAt:    now,
	}

	tx, err := h.store.BeginTx(ctx)
	if err != nil {
		h.httpError(w, "Failed to create job", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	if err := h.store.CreateJob(ctx, tx, job); err != nil {
		h.httpError(w, "Failed to create job", http.StatusInternalServerError)
		return
	}
	if err := h.store.AppendStatus(ctx, tx, &store.StatusLog{
		ID:        ulid.Make().String(),
		JobID:     job.ID,
		Status:    store.StatusQueued,
		CreatedAt: now,
	}); err != nil {
		h.httpError(w, "Failed to create job", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(); err != nil {
		h.httpError(w, "Failed to create job", http.StatusInternalServerError)
		return
	}

	if err := h.queue.Publish(ctx, queue.Message{JobID: job.ID}); err != nil {
		// The job row is committed and stays QUEUED; it can be re-enqueued.
		h.logger.Error("failed to enqueue job", "job_id", job.ID, "error", err)
		h.httpError(w, "Failed to enqueue job", http.StatusInternalServerError)
		return
	}

	h.logger.Info("job submitted", "job_id", job.ID, "owner_id", requester.UserID)
	h.respondJson(w, http.StatusCreated, api.SubmitExecutionResponse{
		JobID:     job.ID,
		Status:    string(store.StatusQueued),
		CreatedAt: job.CreatedAt,
	})
}

// ListExecutions handles GET /v1/executions.
// Returns the caller's jobs with full status histories, newest first.
func (h *Handlers) ListExecutions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	requester, ok := middleware.RequesterFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	jobs, err := h.store.ListJobsByOwner(ctx, requester.UserID)
	if err != nil {
		h.httpError(w, "Failed to list jobs", http.StatusInternalServerError)
		return
	}

	resp := api.ListExecutionsResponse{Executions: make([]api.ExecutionResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Executions = append(resp.Executions, toExecutionResponse(j))
	}
	h.respondJson(w, http.StatusOK, resp)
}

// GetExecution handles GET /v1/executions/{id}.
// A job belonging to someone else is indistinguishable from a missing one.
func (h *Handlers) GetExecution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	requester, ok := middleware.RequesterFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	jobID := r.PathValue("id")
	job, err := h.store.GetJobByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			h.httpError(w, "Execution not found", http.StatusNotFound)
			return
		}
		h.httpError(w, "Failed to load job", http.StatusInternalServerError)
		return
	}
	if job.OwnerID != requester.UserID {
		h.httpError(w, "Execution not found", http.StatusNotFound)
		return
	}

	statuses, err := h.store.ListStatuses(ctx, jobID)
	if err != nil {
		h.httpError(w, "Failed to load job", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, toExecutionResponse(store.JobWithStatuses{Job: *job, Statuses: statuses}))
}

func toExecutionResponse(j store.JobWithStatuses) api.ExecutionResponse {
	resp := api.ExecutionResponse{
		JobID:        j.Job.ID,
		ArtifactPath: j.Job.ArtifactPath,
		CreatedAt:    j.Job.CreatedAt,
		Statuses:     make([]api.StatusEntry, 0, len(j.Statuses)),
	}
	for _, s := range j.Statuses {
		resp.Statuses = append(resp.Statuses, api.StatusEntry{
			Status:    string(s.Status),
			CreatedAt: s.CreatedAt,
		})
	}
	return resp
}
