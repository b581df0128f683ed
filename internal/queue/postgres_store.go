package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresSchema creates the queue table for PostgreSQL and CockroachDB.
const PostgresSchema = `CREATE TABLE IF NOT EXISTS queue_jobs (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	workspace_id TEXT NOT NULL DEFAULT '',
	payload JSONB,
	attempts INT NOT NULL DEFAULT 0,
	max_attempts INT NOT NULL DEFAULT 3,
	status TEXT NOT NULL,
	available_at TIMESTAMPTZ NOT NULL,
	locked_by TEXT,
	last_error TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	finished_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_queue_jobs_due ON queue_jobs (status, available_at);`

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// PostgresStore implements Store on PostgreSQL via lib/pq.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStoreFromDSN opens a PostgreSQL job store.
func NewPostgresStoreFromDSN(dsn string, config *SQLConfig) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := configurePool(db, config); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStore wraps an existing database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the queue table if needed.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("migrate queue_jobs: %w", err)
	}
	return nil
}

// Close releases database resources.
func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Enqueue inserts a job.
func (s *PostgresStore) Enqueue(ctx context.Context, job *Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO queue_jobs (id, type, workspace_id, payload, attempts, max_attempts, status,
			available_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		job.ID,
		job.Type,
		job.WorkspaceID,
		payloadValue(job.Payload),
		job.Attempts,
		job.MaxAttempts,
		string(job.Status),
		job.AvailableAt,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
			return ErrDuplicateJob
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Claim uses FOR UPDATE SKIP LOCKED so concurrent workers never claim the
// same job.
func (s *PostgresStore) Claim(ctx context.Context, workerID string, now time.Time, limit int) ([]*Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		UPDATE queue_jobs AS j SET
			status = $1,
			attempts = j.attempts + 1,
			locked_by = $2,
			started_at = $3,
			updated_at = $3
		FROM (
			SELECT id FROM queue_jobs
			WHERE status IN ($4, $5) AND available_at <= $3
			ORDER BY available_at ASC, created_at ASC
			LIMIT $6
			FOR UPDATE SKIP LOCKED
		) AS due
		WHERE j.id = due.id
		RETURNING `+qualifiedColumns("j"),
		string(StatusRunning),
		workerID,
		now,
		string(StatusQueued),
		string(StatusRetry),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}
	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}
	return jobs, nil
}

// Complete marks a running job completed.
func (s *PostgresStore) Complete(ctx context.Context, id, workerID string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_jobs SET status = $1, locked_by = NULL, last_error = NULL,
			finished_at = $2, updated_at = $2
		WHERE id = $3 AND status = $4 AND locked_by = $5
	`, string(StatusCompleted), now, id, string(StatusRunning), workerID)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return expectOwnedRow(res, "complete job")
}

// Fail records a failed attempt.
func (s *PostgresStore) Fail(ctx context.Context, id, workerID string, now time.Time, lastError string, retryAt *time.Time) error {
	var (
		res sql.Result
		err error
	)
	if retryAt != nil {
		res, err = s.db.ExecContext(ctx, `
			UPDATE queue_jobs SET status = $1, locked_by = NULL, last_error = $2,
				available_at = $3, updated_at = $4
			WHERE id = $5 AND status = $6 AND locked_by = $7
		`, string(StatusRetry), lastError, *retryAt, now, id, string(StatusRunning), workerID)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE queue_jobs SET status = $1, locked_by = NULL, last_error = $2,
				finished_at = $3, updated_at = $3
			WHERE id = $4 AND status = $5 AND locked_by = $6
		`, string(StatusFailed), lastError, now, id, string(StatusRunning), workerID)
	}
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return expectOwnedRow(res, "fail job")
}

// Get returns a job by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM queue_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Heartbeat renews the leases held by workerID.
func (s *PostgresStore) Heartbeat(ctx context.Context, workerID string, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_jobs SET updated_at = $1 WHERE status = $2 AND locked_by = $3
	`, now, string(StatusRunning), workerID)
	if err != nil {
		return 0, fmt.Errorf("heartbeat: %w", err)
	}
	return rowsAffected(res, "heartbeat")
}

// RequeueExpired returns running jobs whose lease lapsed before staleBefore
// to the queue.
func (s *PostgresStore) RequeueExpired(ctx context.Context, now, staleBefore time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_jobs SET status = $1, locked_by = NULL, available_at = $2, updated_at = $2
		WHERE status = $3 AND updated_at < $4
	`, string(StatusQueued), now, string(StatusRunning), staleBefore)
	if err != nil {
		return 0, fmt.Errorf("requeue expired jobs: %w", err)
	}
	return rowsAffected(res, "requeue expired jobs")
}

// Counts returns the number of jobs per status.
func (s *PostgresStore) Counts(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM queue_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	return scanCounts(rows)
}

// Prune deletes terminal jobs last updated before the cutoff.
func (s *PostgresStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM queue_jobs WHERE status IN ($1, $2) AND updated_at < $3
	`, string(StatusCompleted), string(StatusFailed), before)
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return res.RowsAffected()
}
