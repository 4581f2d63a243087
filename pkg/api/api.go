// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and the API server.
package api

import "time"

// SubmitExecutionRequest is the request body for submitting a new execution job.
type SubmitExecutionRequest struct {
	// ArtifactPath is relative to the server's artifact root.
	ArtifactPath string `json:"artifact_path"`
}

// SubmitExecutionResponse is the response body after submitting a job.
type SubmitExecutionResponse struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// StatusEntry is one row of a job's append-only status log.
type StatusEntry struct {
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// ExecutionResponse represents an execution job with its full status history.
type ExecutionResponse struct {
	JobID        string        `json:"job_id"`
	ArtifactPath string        `json:"artifact_path"`
	CreatedAt    time.Time     `json:"created_at"`
	Statuses     []StatusEntry `json:"statuses"`
}

// ListExecutionsResponse is the response body for listing a caller's jobs.
type ListExecutionsResponse struct {
	Executions []ExecutionResponse `json:"executions"`
}

// CreateSessionResponse is the response body after creating an LSP session.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

// UploadFileResponse is the response body after uploading a file to a session.
type UploadFileResponse struct {
	FileName string `json:"file_name"`
	// ContainerID is set once a language-server container is bound to the session.
	ContainerID string `json:"container_id,omitempty"`
}

// BindContainerRequest is the request body for binding a container to a session.
type BindContainerRequest struct {
	ContainerID string `json:"container_id"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Gateway event types exchanged over the LSP WebSocket.
// Client to server: attach, forward. Server to client: attached, message, error, detached.
const (
	EventAttach   = "attach"
	EventForward  = "forward"
	EventAttached = "attached"
	EventMessage  = "message"
	EventError    = "error"
	EventDetached = "detached"
)

// GatewayInbound is a client-to-server WebSocket event.
type GatewayInbound struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message,omitempty"`
}

// GatewayOutbound is a server-to-client WebSocket event.
type GatewayOutbound struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Payload   string `json:"payload,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Code      int    `json:"code,omitempty"`
}
