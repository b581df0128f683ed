package queue

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SQLConfig holds connection pool settings for the SQL stores.
type SQLConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultSQLConfig returns default pool settings.
func DefaultSQLConfig() *SQLConfig {
	return &SQLConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

func configurePool(db *sql.DB, config *SQLConfig) error {
	if config == nil {
		config = DefaultSQLConfig()
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	timeout := config.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// jobColumns is the column order read by scanJob.
const jobColumns = `id, type, workspace_id, payload, attempts, max_attempts, status,
	available_at, locked_by, last_error, created_at, updated_at, started_at, finished_at`

// qualifiedColumns prefixes jobColumns with a table alias.
func qualifiedColumns(alias string) string {
	parts := strings.Split(jobColumns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// scanner matches both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*Job, error) {
	var (
		job        Job
		payload    []byte
		status     string
		lockedBy   sql.NullString
		lastError  sql.NullString
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)
	if err := s.Scan(
		&job.ID,
		&job.Type,
		&job.WorkspaceID,
		&payload,
		&job.Attempts,
		&job.MaxAttempts,
		&status,
		&job.AvailableAt,
		&lockedBy,
		&lastError,
		&job.CreatedAt,
		&job.UpdatedAt,
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
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		job.FinishedAt = &t
	}
	return &job, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	defer rows.Close()
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func scanCounts(rows *sql.Rows) (map[Status]int, error) {
	defer rows.Close()
	counts := make(map[Status]int, len(Statuses))
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

// expectOwnedRow maps an update that matched no leased row to ErrLeaseLost.
func expectOwnedRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

func rowsAffected(res sql.Result, op string) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(n), nil
}

func payloadValue(p []byte) any {
	if len(p) == 0 {
		return nil
	}
	return []byte(p)
}
