package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/haasonsaas/agentcore/pkg/models"
)

// postgresSchema creates the automation tables. Statements run one at a time.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS automations (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL,
		created_by_user_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		prompt TEXT NOT NULL,
		scope_folder TEXT NOT NULL DEFAULT '',
		schedule_type TEXT NOT NULL,
		interval_minutes INTEGER NOT NULL DEFAULT 0,
		timezone TEXT NOT NULL DEFAULT 'UTC',
		next_run_at TIMESTAMPTZ,
		last_run_at TIMESTAMPTZ,
		status TEXT NOT NULL,
		max_actions_per_run INTEGER NOT NULL,
		max_consecutive_failures INTEGER NOT NULL,
		consecutive_failures INTEGER NOT NULL DEFAULT 0,
		dry_run BOOLEAN NOT NULL DEFAULT FALSE,
		has_spec BOOLEAN NOT NULL DEFAULT FALSE,
		spec JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_automations_due ON automations (status, schedule_type, next_run_at)`,
	`CREATE INDEX IF NOT EXISTS idx_automations_workspace ON automations (workspace_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS automation_runs (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		workspace_id TEXT NOT NULL,
		trigger TEXT NOT NULL,
		triggered_by_user_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		output JSONB NOT NULL,
		trace JSONB NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_automation_runs_task ON automation_runs (workspace_id, task_id, started_at DESC)`,
}

// PostgresSchema returns the automation DDL as one script.
func PostgresSchema() string {
	return strings.Join(postgresSchema, ";\n\n") + ";\n"
}

const pgUniqueViolation = "23505"

const taskColumns = `id, workspace_id, created_by_user_id, title, prompt, scope_folder,
	schedule_type, interval_minutes, timezone, next_run_at, last_run_at, status,
	max_actions_per_run, max_consecutive_failures, consecutive_failures, dry_run,
	has_spec, spec, created_at, updated_at`

const runColumns = `id, task_id, workspace_id, trigger, triggered_by_user_id, status,
	summary, error, output, trace, started_at, finished_at`

// PoolConfig holds pgxpool settings.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPoolConfig returns the pool settings used when none are given.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConns:        10,
		MinConns:        1,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// PostgresStore implements Store on PostgreSQL through pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects a pool to dsn and pings it.
func NewPostgresStore(ctx context.Context, dsn string, config PoolConfig) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	defaults := DefaultPoolConfig()
	if config.MaxConns <= 0 {
		config.MaxConns = defaults.MaxConns
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = defaults.ConnectTimeout
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = config.MaxConns
	if config.MinConns > 0 {
		poolCfg.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, config.ConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreFromPool wraps an existing pool.
func NewPostgresStoreFromPool(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the automation tables if needed.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate automations: %w", err)
		}
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *PostgresStore) CreateTask(ctx context.Context, task *models.Automation) error {
	spec, err := json.Marshal(task.Spec)
	if err != nil {
		return fmt.Errorf("marshal spec: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO automations (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`,
		task.ID,
		task.WorkspaceID,
		task.CreatedByUserID,
		task.Title,
		task.Prompt,
		task.ScopeFolder,
		string(task.ScheduleType),
		task.IntervalMinutes,
		task.Timezone,
		task.NextRunAt,
		task.LastRunAt,
		string(task.Status),
		task.MaxActionsPerRun,
		task.MaxConsecutiveFailures,
		task.ConsecutiveFailures,
		task.DryRun,
		task.HasSpec,
		spec,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrTaskExists
		}
		return fmt.Errorf("insert automation: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTask(ctx context.Context, workspaceID, id string) (*models.Automation, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM automations WHERE workspace_id = $1 AND id = $2`, workspaceID, id)
	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get automation: %w", err)
	}
	return task, nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, workspaceID string, status models.AutomationStatus) ([]*models.Automation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM automations
		WHERE workspace_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at ASC, id ASC
	`, workspaceID, string(status))
	if err != nil {
		return nil, fmt.Errorf("list automations: %w", err)
	}
	return collectTasks(rows)
}

func (s *PostgresStore) UpdateTask(ctx context.Context, task *models.Automation) error {
	spec, err := json.Marshal(task.Spec)
	if err != nil {
		return fmt.Errorf("marshal spec: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE automations SET
			title = $3, prompt = $4, scope_folder = $5, schedule_type = $6,
			interval_minutes = $7, timezone = $8, next_run_at = $9, last_run_at = $10,
			status = $11, max_actions_per_run = $12, max_consecutive_failures = $13,
			consecutive_failures = $14, dry_run = $15, has_spec = $16, spec = $17,
			updated_at = $18
		WHERE workspace_id = $1 AND id = $2
	`,
		task.WorkspaceID,
		task.ID,
		task.Title,
		task.Prompt,
		task.ScopeFolder,
		string(task.ScheduleType),
		task.IntervalMinutes,
		task.Timezone,
		task.NextRunAt,
		task.LastRunAt,
		string(task.Status),
		task.MaxActionsPerRun,
		task.MaxConsecutiveFailures,
		task.ConsecutiveFailures,
		task.DryRun,
		task.HasSpec,
		spec,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update automation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteTask(ctx context.Context, workspaceID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM automations WHERE workspace_id = $1 AND id = $2`, workspaceID, id)
	if err != nil {
		return fmt.Errorf("delete automation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// ClaimDue locks due rows with FOR UPDATE SKIP LOCKED and advances their
// next_run_at in the same statement.
func (s *PostgresStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.Automation, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		UPDATE automations SET
			next_run_at = $1 + make_interval(mins => interval_minutes),
			updated_at = $1
		WHERE id IN (
			SELECT id FROM automations
			WHERE status = $2 AND schedule_type = $3 AND next_run_at <= $1
			ORDER BY next_run_at ASC, id ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+taskColumns,
		now,
		string(models.AutomationActive),
		string(models.ScheduleInterval),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due automations: %w", err)
	}
	return collectTasks(rows)
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *models.AutomationRun) error {
	output, trace, err := marshalRunBody(run)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO automation_runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		run.ID,
		run.TaskID,
		run.WorkspaceID,
		string(run.Trigger),
		run.TriggeredByUserID,
		string(run.Status),
		run.Summary,
		run.Error,
		output,
		trace,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, run *models.AutomationRun) error {
	output, trace, err := marshalRunBody(run)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE automation_runs SET status = $1, summary = $2, error = $3, output = $4,
			trace = $5, finished_at = $6
		WHERE id = $7 AND status = $8
	`,
		string(run.Status),
		run.Summary,
		run.Error,
		output,
		trace,
		run.FinishedAt,
		run.ID,
		string(models.RunRunning),
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, workspaceID, id string) (*models.AutomationRun, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM automation_runs WHERE workspace_id = $1 AND id = $2`, workspaceID, id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, workspaceID, taskID string, limit int) ([]*models.AutomationRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+runColumns+` FROM automation_runs
		WHERE workspace_id = $1 AND task_id = $2
		ORDER BY started_at DESC, id DESC
		LIMIT $3
	`, workspaceID, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var runs []*models.AutomationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

func collectTasks(rows pgx.Rows) ([]*models.Automation, error) {
	defer rows.Close()
	var tasks []*models.Automation
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan automation: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

func scanTask(row pgx.Row) (*models.Automation, error) {
	var (
		task                 models.Automation
		scheduleType, status string
		spec                 []byte
	)
	if err := row.Scan(
		&task.ID,
		&task.WorkspaceID,
		&task.CreatedByUserID,
		&task.Title,
		&task.Prompt,
		&task.ScopeFolder,
		&scheduleType,
		&task.IntervalMinutes,
		&task.Timezone,
		&task.NextRunAt,
		&task.LastRunAt,
		&status,
		&task.MaxActionsPerRun,
		&task.MaxConsecutiveFailures,
		&task.ConsecutiveFailures,
		&task.DryRun,
		&task.HasSpec,
		&spec,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return nil, err
	}
	task.ScheduleType = models.ScheduleType(scheduleType)
	task.Status = models.AutomationStatus(status)
	if len(spec) > 0 {
		if err := json.Unmarshal(spec, &task.Spec); err != nil {
			return nil, fmt.Errorf("decode spec: %w", err)
		}
	}
	return &task, nil
}

func scanRun(row pgx.Row) (*models.AutomationRun, error) {
	var (
		run             models.AutomationRun
		trigger, status string
		output, trace   []byte
	)
	if err := row.Scan(
		&run.ID,
		&run.TaskID,
		&run.WorkspaceID,
		&trigger,
		&run.TriggeredByUserID,
		&status,
		&run.Summary,
		&run.Error,
		&output,
		&trace,
		&run.StartedAt,
		&run.FinishedAt,
	); err != nil {
		return nil, err
	}
	run.Trigger = models.RunTrigger(trigger)
	run.Status = models.RunStatus(status)
	if len(output) > 0 {
		if err := json.Unmarshal(output, &run.Output); err != nil {
			return nil, fmt.Errorf("decode output: %w", err)
		}
	}
	if len(trace) > 0 {
		if err := json.Unmarshal(trace, &run.Trace); err != nil {
			return nil, fmt.Errorf("decode trace: %w", err)
		}
	}
	return &run, nil
}

func marshalRunBody(run *models.AutomationRun) ([]byte, []byte, error) {
	output, err := json.Marshal(run.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal output: %w", err)
	}
	trace := run.Trace
	if trace == nil {
		trace = []models.ToolTrace{}
	}
	traceJSON, err := json.Marshal(trace)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal trace: %w", err)
	}
	return output, traceJSON, nil
}
