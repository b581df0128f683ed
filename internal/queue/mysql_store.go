package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// MySQLSchema creates the queue table for MySQL 8.
const MySQLSchema = `CREATE TABLE IF NOT EXISTS queue_jobs (
	id VARCHAR(64) PRIMARY KEY,
	type VARCHAR(128) NOT NULL,
	workspace_id VARCHAR(64) NOT NULL DEFAULT '',
	payload JSON NULL,
	attempts INT NOT NULL DEFAULT 0,
	max_attempts INT NOT NULL DEFAULT 3,
	status VARCHAR(16) NOT NULL,
	available_at DATETIME(6) NOT NULL,
	locked_by VARCHAR(128) NULL,
	last_error TEXT NULL,
	created_at DATETIME(6) NOT NULL,
	updated_at DATETIME(6) NOT NULL,
	started_at DATETIME(6) NULL,
	finished_at DATETIME(6) NULL,
	INDEX idx_queue_jobs_due (status, available_at)
)`

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// MySQLStore implements Store on MySQL 8 via go-sql-driver/mysql.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStoreFromDSN opens a MySQL job store. parseTime is forced on so
// DATETIME columns scan into time.Time.
func NewMySQLStoreFromDSN(dsn string, config *SQLConfig) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.ParseTime = true
	if cfg.Loc == nil {
		cfg.Loc = time.UTC
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db := sql.OpenDB(connector)
	if err := configurePool(db, config); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &MySQLStore{db: db}, nil
}

// NewMySQLStore wraps an existing database handle.
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

// Migrate creates the queue table if needed.
func (s *MySQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, MySQLSchema); err != nil {
		return fmt.Errorf("migrate queue_jobs: %w", err)
	}
	return nil
}

// Close releases database resources.
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Enqueue inserts a job.
func (s *MySQLStore) Enqueue(ctx context.Context, job *Job) error {
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
		job.AvailableAt,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return ErrDuplicateJob
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Claim locks due rows with SELECT ... FOR UPDATE SKIP LOCKED, marks them
// running and reads them back in one transaction.
func (s *MySQLStore) Claim(ctx context.Context, workerID string, now time.Time, limit int) ([]*Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM queue_jobs
		WHERE status IN (?, ?) AND available_at <= ?
		ORDER BY available_at ASC, created_at ASC
		LIMIT ?
		FOR UPDATE SKIP LOCKED
	`, string(StatusQueued), string(StatusRetry), now, limit)
	if err != nil {
		return nil, fmt.Errorf("select due jobs: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan job id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select due jobs: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, 0, len(ids)+4)
	args = append(args, string(StatusRunning), workerID, now, now)
	for _, id := range ids {
		args = append(args, id)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE queue_jobs SET status = ?, attempts = attempts + 1, locked_by = ?,
			started_at = ?, updated_at = ?
		WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return nil, fmt.Errorf("mark jobs running: %w", err)
	}

	idArgs := args[4:]
	claimed, err := tx.QueryContext(ctx, `SELECT `+jobColumns+` FROM queue_jobs
		WHERE id IN (`+placeholders+`) ORDER BY available_at ASC, created_at ASC`, idArgs...)
	if err != nil {
		return nil, fmt.Errorf("read claimed jobs: %w", err)
	}
	jobs, err := scanJobs(claimed)
	if err != nil {
		return nil, fmt.Errorf("read claimed jobs: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return jobs, nil
}

// Complete marks a running job completed.
func (s *MySQLStore) Complete(ctx context.Context, id, workerID string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_jobs SET status = ?, locked_by = NULL, last_error = NULL,
			finished_at = ?, updated_at = ?
		WHERE id = ? AND status = ? AND locked_by = ?
	`, string(StatusCompleted), now, now, id, string(StatusRunning), workerID)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return expectOwnedRow(res, "complete job")
}

// Fail records a failed attempt.
func (s *MySQLStore) Fail(ctx context.Context, id, workerID string, now time.Time, lastError string, retryAt *time.Time) error {
	var (
		res sql.Result
		err error
	)
	if retryAt != nil {
		res, err = s.db.ExecContext(ctx, `
			UPDATE queue_jobs SET status = ?, locked_by = NULL, last_error = ?,
				available_at = ?, updated_at = ?
			WHERE id = ? AND status = ? AND locked_by = ?
		`, string(StatusRetry), lastError, *retryAt, now, id, string(StatusRunning), workerID)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE queue_jobs SET status = ?, locked_by = NULL, last_error = ?,
				finished_at = ?, updated_at = ?
			WHERE id = ? AND status = ? AND locked_by = ?
		`, string(StatusFailed), lastError, now, now, id, string(StatusRunning), workerID)
	}
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return expectOwnedRow(res, "fail job")
}

// Get returns a job by id.
func (s *MySQLStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM queue_jobs WHERE id = ?`, id)
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
func (s *MySQLStore) Heartbeat(ctx context.Context, workerID string, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_jobs SET updated_at = ? WHERE status = ? AND locked_by = ?
	`, now, string(StatusRunning), workerID)
	if err != nil {
		return 0, fmt.Errorf("heartbeat: %w", err)
	}
	return rowsAffected(res, "heartbeat")
}

// RequeueExpired returns running jobs whose lease lapsed before staleBefore
// to the queue.
func (s *MySQLStore) RequeueExpired(ctx context.Context, now, staleBefore time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_jobs SET status = ?, locked_by = NULL, available_at = ?, updated_at = ?
		WHERE status = ? AND updated_at < ?
	`, string(StatusQueued), now, now, string(StatusRunning), staleBefore)
	if err != nil {
		return 0, fmt.Errorf("requeue expired jobs: %w", err)
	}
	return rowsAffected(res, "requeue expired jobs")
}

// Counts returns the number of jobs per status.
func (s *MySQLStore) Counts(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM queue_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	return scanCounts(rows)
}

// Prune deletes terminal jobs last updated before the cutoff.
func (s *MySQLStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM queue_jobs WHERE status IN (?, ?) AND updated_at < ?
	`, string(StatusCompleted), string(StatusFailed), before)
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return res.RowsAffected()
}
