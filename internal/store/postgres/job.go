package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"runbox/internal/store"
)

// CreateJob inserts a new job row. Callers must write the initial QUEUED
// status in the same transaction so a job never exists without history.
func (s *Store) CreateJob(ctx context.Context, tx store.DBTransaction, job *store.Job) error {
	query := `
		INSERT INTO execution_jobs (id, owner_id, artifact_path, created_at)
		VALUES ($1, $2, $3, $4)
	`

	executor := s.getExecutor(tx)
	_, err := executor.ExecContext(ctx, query,
		job.ID,
		job.OwnerID,
		job.ArtifactPath,
		job.CreatedAt,
	)
	return err
}

// GetJobByID returns a job by its ID.
func (s *Store) GetJobByID(ctx context.Context, id string) (*store.Job, error) {
	query := "SELECT id, owner_id, artifact_path, created_at FROM execution_jobs WHERE id = $1"

	var job store.Job
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&job.ID, &job.OwnerID, &job.ArtifactPath, &job.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		return nil, err
	}

	return &job, nil
}

// ListJobsByOwner returns an owner's jobs with their status histories.
// Jobs are ordered newest first; each history is ordered oldest first.
func (s *Store) ListJobsByOwner(ctx context.Context, ownerID string) ([]store.JobWithStatuses, error) {
	query := `
		SELECT j.id, j.owner_id, j.artifact_path, j.created_at,
		       l.id, l.status, l.created_at
		FROM execution_jobs j
		JOIN execution_job_statuses l ON l.job_id = j.id
		WHERE j.owner_id = $1
		ORDER BY j.created_at DESC, l.created_at ASC, l.id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list jobs query failed: %w", err)
	}
	defer rows.Close()

	var result []store.JobWithStatuses
	index := make(map[string]int)

	for rows.Next() {
		var job store.Job
		var entry store.StatusLog
		if err := rows.Scan(
			&job.ID, &job.OwnerID, &job.ArtifactPath, &job.CreatedAt,
			&entry.ID, &entry.Status, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("list jobs scan failed: %w", err)
		}
		entry.JobID = job.ID

		i, ok := index[job.ID]
		if !ok {
			i = len(result)
			index[job.ID] = i
			result = append(result, store.JobWithStatuses{Job: job})
		}
		result[i].Statuses = append(result[i].Statuses, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
