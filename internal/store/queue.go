package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fieldline/stocktrail/internal/queue"
)

// maxErrorLen bounds last_error so a pathological failure message
// cannot bloat the jobs table.
const maxErrorLen = 500

// Enqueue creates a pending job and returns it. Job IDs are UUIDv7:
// time-sortable, which keeps claim order stable for jobs created in the
// same nanosecond.
func (s *Store) Enqueue(ctx context.Context, kind, payload string) (queue.Job, error) {
	job := queue.Job{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Kind:      kind,
		Payload:   payload,
		Status:    queue.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if job.Payload == "" {
		job.Payload = "{}"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (job_id, kind, payload, status, attempts, last_error, created_at)
		VALUES (?, ?, ?, ?, 0, '', ?)
	`, job.ID, job.Kind, job.Payload, string(job.Status), job.CreatedAt.UnixNano())
	if err != nil {
		return queue.Job{}, fmt.Errorf("enqueue: %w", err)
	}
	return job, nil
}

// ClaimNext atomically claims the oldest pending job: it is moved to
// processing with attempts incremented and returned. Returns (nil, nil)
// when no pending job exists.
//
// Safe under arbitrary concurrent callers: the claim is a single
// conditional UPDATE guarded by status = 'pending', so no two callers
// can win the same job. A caller that loses the race simply selects the
// next candidate; the loop terminates once the pending set is empty.
func (s *Store) ClaimNext(ctx context.Context) (*queue.Job, error) {
	for {
		var id string
		err := s.db.QueryRowContext(ctx, `
			SELECT job_id FROM jobs
			WHERE status = 'pending'
			ORDER BY created_at ASC, job_id ASC
			LIMIT 1
		`).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("claim next: select candidate: %w", err)
		}

		res, err := s.db.ExecContext(ctx, `
			UPDATE jobs
			SET status = 'processing', attempts = attempts + 1
			WHERE job_id = ? AND status = 'pending'
		`, id)
		if err != nil {
			return nil, fmt.Errorf("claim next: claim: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claim next: rows affected: %w", err)
		}
		if n == 0 {
			// Lost the race to another worker; try the next candidate.
			continue
		}

		job, err := s.GetJob(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("claim next: %w", err)
		}
		return job, nil
	}
}

// Complete transitions a job from processing to completed. Returns
// InvalidStateError if the job is not currently processing - this
// guards against double completion and against completing a job another
// run has already terminated.
func (s *Store) Complete(ctx context.Context, jobID string) error {
	return s.finish(ctx, jobID, queue.StatusCompleted, "")
}

// Fail transitions a job from processing to failed, recording the
// reason (truncated) in last_error. Same state guard as Complete.
func (s *Store) Fail(ctx context.Context, jobID, reason string) error {
	if len(reason) > maxErrorLen {
		reason = reason[:maxErrorLen]
	}
	return s.finish(ctx, jobID, queue.StatusFailed, reason)
}

// finish performs the processing → terminal transition shared by
// Complete and Fail.
func (s *Store) finish(ctx context.Context, jobID string, to queue.Status, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = ?, last_error = ?, processed_at = ?
		WHERE job_id = ? AND status = 'processing'
	`, string(to), reason, time.Now().UTC().UnixNano(), jobID)
	if err != nil {
		return fmt.Errorf("finish job %s: %w", jobID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish job %s: rows affected: %w", jobID, err)
	}
	if n == 1 {
		return nil
	}

	// Nothing changed: either the job is absent or in the wrong state.
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	return &queue.InvalidStateError{JobID: jobID, Got: job.Status, Want: queue.StatusProcessing}
}

// Requeue moves a failed job back to pending - the one backward
// transition the state machine allows, invoked by explicit operator or
// retry policy. Any other current status yields InvalidTransitionError.
func (s *Store) Requeue(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'pending', processed_at = NULL
		WHERE job_id = ? AND status = 'failed'
	`, jobID)
	if err != nil {
		return fmt.Errorf("requeue job %s: %w", jobID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("requeue job %s: rows affected: %w", jobID, err)
	}
	if n == 1 {
		return nil
	}

	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	return &queue.InvalidTransitionError{JobID: jobID, From: job.Status, To: queue.StatusPending}
}

// GetJob retrieves a single job by ID. Returns ErrNotFound if absent.
func (s *Store) GetJob(ctx context.Context, jobID string) (*queue.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT job_id, kind, payload, status, attempts, last_error, created_at, processed_at
		FROM jobs
		WHERE job_id = ?
	`, jobID)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", jobID, err)
	}
	return &job, nil
}

// ListJobs returns jobs filtered by status, oldest first. An empty
// status lists everything.
func (s *Store) ListJobs(ctx context.Context, status queue.Status) ([]queue.Job, error) {
	q := `
		SELECT job_id, kind, payload, status, attempts, last_error, created_at, processed_at
		FROM jobs`
	args := []any{}
	if status != "" {
		q += ` WHERE status = ?`
		args = append(args, string(status))
	}
	q += ` ORDER BY created_at ASC, job_id ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []queue.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: iterate: %w", err)
	}
	return jobs, nil
}

// scanJob reads one job row.
func scanJob(sc scanner) (queue.Job, error) {
	var job queue.Job
	var status string
	var createdNanos int64
	var processedNanos sql.NullInt64
	err := sc.Scan(
		&job.ID, &job.Kind, &job.Payload, &status,
		&job.Attempts, &job.LastError, &createdNanos, &processedNanos,
	)
	if err != nil {
		return queue.Job{}, err
	}
	job.Status = queue.Status(status)
	job.CreatedAt = time.Unix(0, createdNanos).UTC()
	if processedNanos.Valid {
		t := time.Unix(0, processedNanos.Int64).UTC()
		job.ProcessedAt = &t
	}
	return job, nil
}
