package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// DBQueue implements Queue interface using PostgreSQL
type DBQueue struct {
	db  *sql.DB
	now func() time.Time
}

// NewDBQueue creates a new database-backed queue.
// The background_jobs table is created by the migrations.
func NewDBQueue(db *sql.DB) (*DBQueue, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBQueue{db: db, now: time.Now}, nil
}

// Enqueue adds a new job to the queue
func (q *DBQueue) Enqueue(ctx context.Context, jobType string, payload map[string]interface{}) error {
	return q.EnqueueWithDelay(ctx, jobType, payload, 0)
}

// EnqueueWithDelay adds a job to be processed after a delay
func (q *DBQueue) EnqueueWithDelay(ctx context.Context, jobType string, payload map[string]interface{}, delay time.Duration) error {
	if jobType == "" {
		return fmt.Errorf("%w: job type is required", ErrInvalidPayload)
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}

	query := `
		INSERT INTO background_jobs (job_type, payload, next_run_at)
		VALUES ($1, $2, $3)
	`

	_, err = q.db.ExecContext(ctx, query, jobType, payloadJSON, q.now().Add(delay))
	if err != nil {
		// Check if error is due to database unavailability
		if isDatabaseUnavailable(err) {
			return fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
		}
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	return nil
}

// Dequeue retrieves the next due job of one of jobTypes
func (q *DBQueue) Dequeue(ctx context.Context, jobTypes ...string) (*Job, error) {
	// Use SELECT FOR UPDATE SKIP LOCKED for concurrent workers.
	// An empty type list matches every job type.
	query := `
		UPDATE background_jobs
		SET status = 'processing', attempts = attempts + 1
		WHERE id = (
			SELECT id FROM background_jobs
			WHERE status = 'pending' AND next_run_at <= NOW()
			  AND (cardinality($1::text[]) = 0 OR job_type = ANY($1::text[]))
			ORDER BY next_run_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, job_type, payload, created_at, next_run_at, attempts
	`

	var job Job
	var payloadJSON []byte

	types := jobTypes
	if types == nil {
		types = []string{}
	}

	err := q.db.QueryRowContext(ctx, query, pq.Array(types)).Scan(
		&job.ID,
		&job.Type,
		&payloadJSON,
		&job.CreatedAt,
		&job.NextRunAt,
		&job.Attempts,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // No jobs available
	}

	if err != nil {
		if isDatabaseUnavailable(err) {
			return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
		}
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}

	if err := json.Unmarshal(payloadJSON, &job.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job payload: %w", err)
	}

	return &job, nil
}

// Complete marks a job as successfully completed
func (q *DBQueue) Complete(ctx context.Context, jobID int64) error {
	query := `
		UPDATE background_jobs
		SET status = 'completed', completed_at = NOW()
		WHERE id = $1
	`
	return q.updateJob(ctx, "complete", query, jobID)
}

// Retry reschedules a job for retry with a delay
func (q *DBQueue) Retry(ctx context.Context, jobID int64, delay time.Duration) error {
	query := `
		UPDATE background_jobs
		SET status = 'pending', next_run_at = $2
		WHERE id = $1
	`
	return q.updateJob(ctx, "retry", query, jobID, q.now().Add(delay))
}

// Fail marks a job as permanently failed
func (q *DBQueue) Fail(ctx context.Context, jobID int64, errorMsg string) error {
	query := `
		UPDATE background_jobs
		SET status = 'failed', error_message = $2, failed_at = NOW()
		WHERE id = $1
	`
	return q.updateJob(ctx, "fail", query, jobID, errorMsg)
}

func (q *DBQueue) updateJob(ctx context.Context, op, query string, jobID int64, args ...interface{}) error {
	result, err := q.db.ExecContext(ctx, query, append([]interface{}{jobID}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to %s job: %w", op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("%w: job %d", ErrJobNotFound, jobID)
	}

	return nil
}

// HealthCheck verifies the queue is operational
func (q *DBQueue) HealthCheck(ctx context.Context) error {
	var result int
	if err := q.db.QueryRowContext(ctx, `SELECT 1`).Scan(&result); err != nil {
		return fmt.Errorf("queue health check failed: %w", err)
	}
	return nil
}

// Close closes the queue connection
func (q *DBQueue) Close() error {
	// DBQueue doesn't own the database connection, so nothing to close
	return nil
}

// isDatabaseUnavailable checks if an error indicates database unavailability
func isDatabaseUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return true
	}
	errStr := err.Error()
	for _, marker := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"timeout",
		"too many connections",
	} {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}
