// Package store contains the database layer for runbox.
package store

import "time"

// Job represents a single submitted execution request.
// It is created once at submission and immutable thereafter.
type Job struct {
	ID           string
	OwnerID      string
	ArtifactPath string
	CreatedAt    time.Time
}

// StatusLog is one row of a job's append-only status history.
// Rows are never updated or deleted except by cascading with the job.
type StatusLog struct {
	ID        string
	JobID     string
	Status    JobStatus
	CreatedAt time.Time
}

// JobWithStatuses bundles a job with its full status history,
// ordered by creation time ascending.
type JobWithStatuses struct {
	Job      Job
	Statuses []StatusLog
}

// JobStatus represents the state of an execution job.
type JobStatus string

const (
	StatusQueued              JobStatus = "QUEUED"
	StatusReady               JobStatus = "READY"
	StatusRunning             JobStatus = "RUNNING"
	StatusFinishedWithSuccess JobStatus = "FINISHED_WITH_SUCCESS"
	StatusFailed              JobStatus = "FAILED"
)

// Terminal reports whether a job in this status will never transition again.
func (s JobStatus) Terminal() bool {
	return s == StatusFinishedWithSuccess || s == StatusFailed
}
