package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a job does not exist.
var ErrNotFound = errors.New("job not found")

// jobColumns is the ordered column list for SELECT queries.
const jobColumns = `id, type, payload, status, attempts, max_attempts, priority,
	last_error, created_at, updated_at, claimed_at`

// Store is the SQLite-backed job queue.
type Store struct {
	db *sql.DB
}

// NewStore creates a job store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Enqueue stores a new pending job. The payload is JSON-marshalled.
func (s *Store) Enqueue(ctx context.Context, jobType Type, payload any, priority, maxAttempts int) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshalling job payload: %w", err)
	}

	now := time.Now().UTC()
	job := &Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		Payload:     string(data),
		Status:      StatusPending,
		MaxAttempts: maxAttempts,
		Priority:    priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.ID, string(job.Type), job.Payload, string(job.Status),
		job.Attempts, job.MaxAttempts, job.Priority, job.LastError,
		job.CreatedAt.Format(time.RFC3339), job.UpdatedAt.Format(time.RFC3339), "",
	)
	if err != nil {
		return nil, fmt.Errorf("inserting job: %w", err)
	}
	return job, nil
}

// Dequeue atomically claims the next pending job, highest priority first,
// oldest first within a priority. The claim is a conditional UPDATE guarded
// on status, so two concurrent callers can never claim the same job.
// Returns (nil, nil) when the queue is empty.
func (s *Store) Dequeue(ctx context.Context) (*Job, error) {
	for {
		var id string
		err := s.db.QueryRowContext(ctx, `
			SELECT id FROM jobs WHERE status = ?
			ORDER BY priority DESC, created_at ASC
			LIMIT 1
		`, string(StatusPending)).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("selecting pending job: %w", err)
		}

		now := time.Now().UTC().Format(time.RFC3339)
		result, err := s.db.ExecContext(ctx, `
			UPDATE jobs
			SET status = ?, attempts = attempts + 1, claimed_at = ?, updated_at = ?
			WHERE id = ? AND status = ?
		`, string(StatusRunning), now, now, id, string(StatusPending))
		if err != nil {
			return nil, fmt.Errorf("claiming job: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			// Lost the race for this job; pick the next candidate.
			continue
		}
		return s.GetByID(ctx, id)
	}
}

// MarkCompleted transitions a job to completed.
func (s *Store) MarkCompleted(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, StatusCompleted, "")
}

// MarkRetry moves a failed-but-retryable job back to pending, recording
// the error that caused the retry.
func (s *Store) MarkRetry(ctx context.Context, id, reason string) error {
	return s.setStatus(ctx, id, StatusPending, reason)
}

// MarkFailed transitions a job to its terminal failed state with the
// recorded reason.
func (s *Store) MarkFailed(ctx context.Context, id, reason string) error {
	return s.setStatus(ctx, id, StatusFailed, reason)
}

func (s *Store) setStatus(ctx context.Context, id string, status Status, lastError string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, last_error = ?, updated_at = ? WHERE id = ?
	`, string(status), lastError, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating job status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// GetByID retrieves one job.
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting job: %w", err)
	}
	return job, nil
}

// Pending lists pending jobs in claim order.
func (s *Store) Pending(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE status = ?
		ORDER BY priority DESC, created_at ASC
		LIMIT ?
	`, string(StatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("listing pending jobs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning job row: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// Statistics reports queue occupancy by status.
func (s *Store) Statistics(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("counting jobs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var stats Stats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, fmt.Errorf("scanning job count: %w", err)
		}
		switch Status(status) {
		case StatusPending:
			stats.Pending = count
		case StatusRunning:
			stats.Running = count
		case StatusCompleted:
			stats.Completed = count
		case StatusFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}

func scanJob(row interface{ Scan(...any) error }) (*Job, error) {
	var job Job
	var jobType, status string
	var createdAt, updatedAt, claimedAt string

	err := row.Scan(
		&job.ID, &jobType, &job.Payload, &status,
		&job.Attempts, &job.MaxAttempts, &job.Priority,
		&job.LastError, &createdAt, &updatedAt, &claimedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Type = Type(jobType)
	job.Status = Status(status)
	job.CreatedAt = parseTime(createdAt)
	job.UpdatedAt = parseTime(updatedAt)
	job.ClaimedAt = parseTime(claimedAt)
	return &job, nil
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}
