package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/agentcore/internal/queue"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// JobTypeRun is the queue job type of a scheduled automation run.
const JobTypeRun = "automation.run"

// Runner defaults.
const (
	DefaultSweepSchedule = "@every 30s"
	DefaultSweepBatch    = 50
)

// cronParser accepts 5-field, 6-field (with seconds) and descriptor schedules.
var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// RunPayload is the payload of a JobTypeRun job.
type RunPayload struct {
	TaskID      string `json:"task_id"`
	WorkspaceID string `json:"workspace_id"`
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// Schedule is the cron spec of the due-task sweep. Default: "@every 30s".
	Schedule string

	// BatchSize caps tasks claimed per sweep. Default: 50.
	BatchSize int

	// MaxAttempts is the queue attempt limit of each run job. Zero uses the
	// queue default.
	MaxAttempts int

	Logger *slog.Logger
	Now    func() time.Time
}

// Runner moves due automations onto the job queue and executes the
// resulting jobs through the runtime.
type Runner struct {
	runtime *Runtime
	queue   *queue.Queue
	config  RunnerConfig
	logger  *slog.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// NewRunner creates a runner and registers its job handler on q.
func NewRunner(runtime *Runtime, q *queue.Queue, config RunnerConfig) *Runner {
	if config.Schedule == "" {
		config.Schedule = DefaultSweepSchedule
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultSweepBatch
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		runtime: runtime,
		queue:   q,
		config:  config,
		logger:  logger.With("component", "automation-runner"),
	}
	q.Register(JobTypeRun, r.HandleJob)
	return r
}

// StartAutomationRunner starts the sweep schedule. It does not start the
// queue workers.
func (r *Runner) StartAutomationRunner(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(r.config.Schedule, func() {
		if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("automation sweep failed", "error", err)
		}
	}); err != nil {
		cancel()
		return fmt.Errorf("invalid sweep schedule %q: %w", r.config.Schedule, err)
	}
	c.Start()
	r.cron = c
	r.cancel = cancel
	r.logger.Info("automation runner started", "schedule", r.config.Schedule, "batch_size", r.config.BatchSize)
	return nil
}

// StopAutomationRunner stops the sweep schedule and waits for a running
// sweep to return or ctx to end.
func (r *Runner) StopAutomationRunner(ctx context.Context) error {
	r.mu.Lock()
	c, cancel := r.cron, r.cancel
	r.cron, r.cancel = nil, nil
	r.mu.Unlock()
	if c == nil {
		return nil
	}

	cancel()
	stopped := c.Stop()
	select {
	case <-stopped.Done():
		r.logger.Info("automation runner stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep claims due tasks and enqueues one run job per task. It returns the
// number of jobs enqueued.
func (r *Runner) Sweep(ctx context.Context) (int, error) {
	tasks, err := r.runtime.Store().ClaimDue(ctx, r.config.Now(), r.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim due automations: %w", err)
	}
	enqueued := 0
	for _, task := range tasks {
		_, err := r.queue.Enqueue(ctx, queue.EnqueueRequest{
			Type:        JobTypeRun,
			WorkspaceID: task.WorkspaceID,
			Payload:     RunPayload{TaskID: task.ID, WorkspaceID: task.WorkspaceID},
			MaxAttempts: r.config.MaxAttempts,
		})
		if err != nil {
			r.logger.Error("failed to enqueue automation run", "task_id", task.ID, "error", err)
			continue
		}
		enqueued++
	}
	if enqueued > 0 {
		r.logger.Debug("enqueued due automations", "count", enqueued)
	}
	return enqueued, nil
}

// HandleJob executes one scheduled run. A failed run is returned as an
// error so the queue retries it; failures that cannot succeed on retry are
// marked permanent.
func (r *Runner) HandleJob(ctx context.Context, job *queue.Job) error {
	var payload RunPayload
	if err := job.Decode(&payload); err != nil {
		return queue.Permanent(fmt.Errorf("decode run payload: %w", err))
	}
	result, err := r.runtime.RunTaskNow(ctx, RunRequest{
		TaskID:      payload.TaskID,
		WorkspaceID: payload.WorkspaceID,
		Trigger:     models.TriggerSchedule,
	})
	if errors.Is(err, ErrTaskNotFound) {
		return queue.Permanent(err)
	}
	if err != nil {
		return err
	}
	if result.Skipped || !result.Failed() {
		return nil
	}
	runErr := fmt.Errorf("run %s failed: %w", result.Run.ID, result.Err)
	if errors.Is(result.Err, ErrExternalSourceUnavailable) {
		return queue.Permanent(runErr)
	}
	return runErr
}
