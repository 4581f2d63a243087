package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"runbox/internal/store"
)

// AppendStatus inserts one status row. The log is append-only: no update
// path exists in this package.
func (s *Store) AppendStatus(ctx context.Context, tx store.DBTransaction, entry *store.StatusLog) error {
	query := `
		INSERT INTO execution_job_statuses (id, job_id, status, created_at)
		VALUES ($1, $2, $3, $4)
	`

	executor := s.getExecutor(tx)
	_, err := executor.ExecContext(ctx, query,
		entry.ID,
		entry.JobID,
		entry.Status,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append status %s for job %s: %w", entry.Status, entry.JobID, err)
	}
	return nil
}

// LatestStatus returns the job's current status: the row with the latest
// created_at, ties broken by insertion order (ULIDs sort by creation).
func (s *Store) LatestStatus(ctx context.Context, jobID string) (*store.StatusLog, error) {
	query := `
		SELECT id, job_id, status, created_at
		FROM execution_job_statuses
		WHERE job_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	var entry store.StatusLog
	err := s.db.QueryRowContext(ctx, query, jobID).Scan(
		&entry.ID, &entry.JobID, &entry.Status, &entry.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		return nil, err
	}

	return &entry, nil
}

// ListStatuses returns a job's status rows ordered by creation time ascending.
func (s *Store) ListStatuses(ctx context.Context, jobID string) ([]store.StatusLog, error) {
	query := `
		SELECT id, job_id, status, created_at
		FROM execution_job_statuses
		WHERE job_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []store.StatusLog
	for rows.Next() {
		var entry store.StatusLog
		if err := rows.Scan(&entry.ID, &entry.JobID, &entry.Status, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
