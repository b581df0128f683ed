package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteSchema creates the queue table for SQLite. Timestamps are stored
// as unix milliseconds so comparisons and ordering are numeric.
const SQLiteSchema = `CREATE TABLE IF NOT EXISTS queue_jobs (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	workspace_id TEXT NOT NULL DEFAULT '',
	payload BLOB,
	attempts INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL DEFAULT 3,
	status TEXT NOT NULL,
	available_at INTEGER NOT NULL,
	locked_by TEXT,
	last_error TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	started_at INTEGER,
	finished_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_queue_jobs_due ON queue_jobs (status, available_at);`

// SQLiteStore implements Store on an embedded SQLite database for
// single-node deployments. Claim is a single UPDATE ... RETURNING.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) a SQLite job store at path.
// Use ":memory:" for a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("path is required")
	}
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:" shared.
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the queue table if needed.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, SQLiteSchema); err != nil {
		return fmt.Errorf("migrate queue_jobs: %w", err)
	}
	return nil
}

// Close releases database resources.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func scanSQLiteJob(s scanner) (*Job, error) {
	var (
		job         Job
		payload     []byte
		status      string
		lockedBy    sql.NullString
		lastError   sql.NullString
		availableAt int64
		createdAt   int64
		updated     int64
		startedAt   sql.NullInt64
		finishedAt  sql.NullInt64
	)
	if err := s.Scan(
		&job.ID,
		&job.Type,
		&job.WorkspaceID,
		&payload,
		&job.Attempts,
		&job.MaxAttempts,
		&status,
		&availableAt,
		&lockedBy,
		&lastError,
		&createdAt,
		&updated,
		&startedAt,
		&finishedAt,
	); err != nil {
		return nil, err
	}
	job.Status = Status(status)
	if len(payload) > 0 {
		job.Payload = payload
	}
	job.LockedBy = lockedBy.String
	job.LastError = lastError.String
	job.AvailableAt = fromMillis(availableAt)
	job.CreatedAt = fromMillis(createdAt)
	job.UpdatedAt = fromMillis(updated)
	if startedAt.Valid {
		t := fromMillis(startedAt.Int64)
		job.StartedAt = &t
	}
	if finishedAt.Valid {
		t := fromMillis(finishedAt.Int64)
		job.FinishedAt = &t
	}
	return &job, nil
}

// Enqueue inserts a job.
func (s *SQLiteStore) Enqueue(ctx context.Context, job *Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO queue_jobs (id, type, workspace_id, payload, attempts, max_attempts, status,
			available_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.ID,
		job.Type,
		job.WorkspaceID,
		payloadValue(job.Payload),
		job.Attempts,
		job.MaxAttempts,
		string(job.Status),
		millis(job.AvailableAt),
		millis(job.CreatedAt),
		millis(job.UpdatedAt),
	)
	if err != nil {
		if isSQLiteDuplicate(err) {
			return ErrDuplicateJob
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func isSQLiteDuplicate(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(sqliteErr.Error(), "UNIQUE")
	}
	return false
}

// Claim marks due jobs running in one UPDATE ... RETURNING statement.
func (s *SQLiteStore) Claim(ctx context.Context, workerID string, now time.Time, limit int) ([]*Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	ts := millis(now)
	rows, err := s.db.QueryContext(ctx, `
		UPDATE queue_jobs SET
			status = ?,
			attempts = attempts + 1,
			locked_by = ?,
			started_at = ?,
			updated_at = ?
		WHERE id IN (
			SELECT id FROM queue_jobs
			WHERE status IN (?, ?) AND available_at <= ?
			ORDER BY available_at ASC, created_at ASC
			LIMIT ?
		)
		RETURNING `+jobColumns,
		string(StatusRunning), workerID, ts, ts,
		string(StatusQueued), string(StatusRetry), ts, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}
	// RETURNING order is unspecified.
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].AvailableAt.Equal(jobs[j].AvailableAt) {
			return jobs[i].AvailableAt.Before(jobs[j].AvailableAt)
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// Complete marks a running job completed.
func (s *SQLiteStore) Complete(ctx context.Context, id, workerID string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_jobs SET status = ?, locked_by = NULL, last_error = NULL,
			finished_at = ?, updated_at = ?
		WHERE id = ? AND status = ? AND locked_by = ?
	`, string(StatusCompleted), millis(now), millis(now), id, string(StatusRunning), workerID)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return expectOwnedRow(res, "complete job")
}

// Fail records a failed attempt.
func (s *SQLiteStore) Fail(ctx context.Context, id, workerID string, now time.Time, lastError string, retryAt *time.Time) error {
	var (
		res sql.Result
		err error
	)
	if retryAt != nil {
		res, err = s.db.ExecContext(ctx, `
			UPDATE queue_jobs SET status = ?, locked_by = NULL, last_error = ?,
				available_at = ?, updated_at = ?
			WHERE id = ? AND status = ? AND locked_by = ?
		`, string(StatusRetry), lastError, millis(*retryAt), millis(now), id, string(StatusRunning), workerID)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE queue_jobs SET status = ?, locked_by = NULL, last_error = ?,
				finished_at = ?, updated_at = ?
			WHERE id = ? AND status = ? AND locked_by = ?
		`, string(StatusFailed), lastError, nullMillis(&now), millis(now), id, string(StatusRunning), workerID)
	}
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return expectOwnedRow(res, "fail job")
}

// Get returns a job by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM queue_jobs WHERE id = ?`, id)
	job, err := scanSQLiteJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Heartbeat renews the leases held by workerID.
func (s *SQLiteStore) Heartbeat(ctx context.Context, workerID string, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_jobs SET updated_at = ? WHERE status = ? AND locked_by = ?
	`, millis(now), string(StatusRunning), workerID)
	if err != nil {
		return 0, fmt.Errorf("heartbeat: %w", err)
	}
	return rowsAffected(res, "heartbeat")
}

// RequeueExpired returns running jobs whose lease lapsed before staleBefore
// to the queue.
func (s *SQLiteStore) RequeueExpired(ctx context.Context, now, staleBefore time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_jobs SET status = ?, locked_by = NULL, available_at = ?, updated_at = ?
		WHERE status = ? AND updated_at < ?
	`, string(StatusQueued), millis(now), millis(now), string(StatusRunning), millis(staleBefore))
	if err != nil {
		return 0, fmt.Errorf("requeue expired jobs: %w", err)
	}
	return rowsAffected(res, "requeue expired jobs")
}

// Counts returns the number of jobs per status.
func (s *SQLiteStore) Counts(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM queue_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	return scanCounts(rows)
}

// Prune deletes terminal jobs last updated before the cutoff.
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM queue_jobs WHERE status IN (?, ?) AND updated_at < ?
	`, string(StatusCompleted), string(StatusFailed), millis(before))
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return res.RowsAffected()
}
