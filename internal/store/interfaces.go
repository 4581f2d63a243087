package store

import (
	"context"
	"database/sql"
	"errors"
)

// ErrJobNotFound is returned when a job ID does not exist.
var ErrJobNotFound = errors.New("job not found")

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx.
// This allows us to pass either a connection pool or an active transaction to the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Tx interface {
	DBTransaction
	Commit() error
	Rollback() error
}

// JobStore handles the persistence of execution jobs and their status logs.
type JobStore interface {
	// CreateJob inserts a new job row. The initial QUEUED status must be
	// written in the same transaction.
	CreateJob(ctx context.Context, tx DBTransaction, job *Job) error

	// GetJobByID returns a job by its ID, or ErrJobNotFound.
	GetJobByID(ctx context.Context, id string) (*Job, error)

	// ListJobsByOwner returns an owner's jobs with their status histories,
	// most recently created first.
	ListJobsByOwner(ctx context.Context, ownerID string) ([]JobWithStatuses, error)

	// AppendStatus appends one status row. It never mutates prior rows.
	AppendStatus(ctx context.Context, tx DBTransaction, entry *StatusLog) error

	// LatestStatus returns the most recent status row for a job, ties broken
	// by insertion order. Returns ErrJobNotFound if the job has no rows.
	LatestStatus(ctx context.Context, jobID string) (*StatusLog, error)

	// ListStatuses returns a job's status rows ordered by creation time ascending.
	ListStatuses(ctx context.Context, jobID string) ([]StatusLog, error)
}
