package tasksetup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentcore/internal/automation"
	"github.com/haasonsaas/agentcore/internal/harness"
	"github.com/haasonsaas/agentcore/internal/toolargs"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// ToolsConfig configures the task lifecycle executors.
type ToolsConfig struct {
	Store  automation.Store
	Logger *slog.Logger
	Now    func() time.Time
}

// Tools executes the task lifecycle family against an automation store.
// Gating is the Session's job; executors assume the call was allowed.
type Tools struct {
	store  automation.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewTools creates the executors.
func NewTools(config ToolsConfig) *Tools {
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Tools{
		store:  config.Store,
		logger: config.Logger.With("component", "task-tools"),
		now:    config.Now,
	}
}

// Executors returns the executors keyed by tool name.
func (t *Tools) Executors() map[string]harness.Executor {
	return map[string]harness.Executor{
		toolargs.ToolProposeTask:  t.propose,
		toolargs.ToolCreateTask:   t.create,
		toolargs.ToolUpdateTask:   t.update,
		toolargs.ToolListTasks:    t.list,
		toolargs.ToolCompleteTask: t.complete,
		toolargs.ToolDeleteTask:   t.delete,
	}
}

// Register adds the executors to r.
func (t *Tools) Register(r *harness.Registry) error {
	return r.RegisterAll(t.Executors())
}

// ProposalResult is returned by propose_task. The client echoes Proposal and
// Signature back once the user accepts.
type ProposalResult struct {
	Proposal  models.TaskProposal `json:"proposal"`
	Signature string              `json:"signature"`
	Message   string              `json:"message"`
}

// TaskResult is returned by the single-task lifecycle tools.
type TaskResult struct {
	Task    *models.Automation `json:"task"`
	Message string             `json:"message"`
}

// TaskListResult is returned by list_tasks.
type TaskListResult struct {
	Tasks []*models.Automation `json:"tasks"`
	Count int                  `json:"count"`
}

// DeleteResult is returned by delete_task.
type DeleteResult struct {
	TaskID  string `json:"taskId"`
	Deleted bool   `json:"deleted"`
}

func (t *Tools) propose(_ context.Context, args toolargs.Args, _ harness.Actor) (any, error) {
	a, ok := args.(*toolargs.ProposeTaskArgs)
	if !ok {
		return nil, fmt.Errorf("unexpected arguments %T", args)
	}
	p := Normalize(a.Proposal())
	sig, err := Signature(p)
	if err != nil {
		return nil, fmt.Errorf("sign proposal: %w", err)
	}
	p.ProposalSignature = sig
	p.NextRunAt = automation.NextRunAt(&models.Automation{
		ScheduleType:    p.ScheduleType,
		IntervalMinutes: p.IntervalMinutes,
	}, t.now())
	return ProposalResult{
		Proposal:  p,
		Signature: sig,
		Message:   "Show this proposal to the user and wait for an explicit confirmation before calling create_task.",
	}, nil
}

func (t *Tools) create(ctx context.Context, args toolargs.Args, actor harness.Actor) (any, error) {
	a, ok := args.(*toolargs.CreateTaskArgs)
	if !ok {
		return nil, fmt.Errorf("unexpected arguments %T", args)
	}
	p := Normalize(a.Proposal())
	now := t.now().UTC()
	task := &models.Automation{
		ID:                     uuid.NewString(),
		WorkspaceID:            actor.WorkspaceID,
		CreatedByUserID:        actor.UserID,
		Title:                  p.Title,
		Prompt:                 p.Prompt,
		ScopeFolder:            p.ScopeFolder,
		ScheduleType:           p.ScheduleType,
		IntervalMinutes:        p.IntervalMinutes,
		Timezone:               p.Timezone,
		Status:                 models.AutomationActive,
		MaxActionsPerRun:       p.MaxActionsPerRun,
		MaxConsecutiveFailures: p.MaxConsecutiveFailures,
		DryRun:                 p.DryRun,
		HasSpec:                a.Spec != nil,
		Spec:                   *p.Spec,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	task.NextRunAt = automation.NextRunAt(task, now)
	if err := t.store.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("create automation: %w", err)
	}
	t.logger.Info("automation created",
		"task_id", task.ID,
		"workspace_id", task.WorkspaceID,
		"schedule_type", task.ScheduleType,
		"dry_run", task.DryRun,
	)
	return TaskResult{Task: task, Message: fmt.Sprintf("Created automation %q.", task.Title)}, nil
}

func (t *Tools) update(ctx context.Context, args toolargs.Args, actor harness.Actor) (any, error) {
	a, ok := args.(*toolargs.UpdateTaskArgs)
	if !ok {
		return nil, fmt.Errorf("unexpected arguments %T", args)
	}
	task, err := t.store.GetTask(ctx, actor.WorkspaceID, a.TaskID)
	if err != nil {
		return nil, err
	}
	now := t.now().UTC()
	if a.Title != nil {
		task.Title = *a.Title
	}
	if a.Prompt != nil {
		task.Prompt = *a.Prompt
	}
	if a.MaxActionsPerRun != nil {
		task.MaxActionsPerRun = *a.MaxActionsPerRun
	}
	if a.DryRun != nil {
		task.DryRun = *a.DryRun
	}
	reschedule := false
	if a.IntervalMinutes != nil {
		task.ScheduleType = models.ScheduleInterval
		task.IntervalMinutes = *a.IntervalMinutes
		reschedule = true
	}
	if a.Status != nil && *a.Status != task.Status {
		if task.Status == models.AutomationCompleted {
			return nil, fmt.Errorf("automation %s is completed and cannot be reopened", task.ID)
		}
		task.Status = *a.Status
		if task.Status == models.AutomationActive {
			task.ConsecutiveFailures = 0
			reschedule = true
		}
	}
	if reschedule && task.Status == models.AutomationActive {
		task.NextRunAt = automation.NextRunAt(task, now)
	}
	task.UpdatedAt = now
	if err := t.store.UpdateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("update automation: %w", err)
	}
	return TaskResult{Task: task, Message: fmt.Sprintf("Updated automation %q.", task.Title)}, nil
}

func (t *Tools) list(ctx context.Context, args toolargs.Args, actor harness.Actor) (any, error) {
	a, ok := args.(*toolargs.ListTasksArgs)
	if !ok {
		return nil, fmt.Errorf("unexpected arguments %T", args)
	}
	tasks, err := t.store.ListTasks(ctx, actor.WorkspaceID, a.Status)
	if err != nil {
		return nil, fmt.Errorf("list automations: %w", err)
	}
	if tasks == nil {
		tasks = []*models.Automation{}
	}
	return TaskListResult{Tasks: tasks, Count: len(tasks)}, nil
}

func (t *Tools) complete(ctx context.Context, args toolargs.Args, actor harness.Actor) (any, error) {
	a, ok := args.(*toolargs.CompleteTaskArgs)
	if !ok {
		return nil, fmt.Errorf("unexpected arguments %T", args)
	}
	task, err := t.store.GetTask(ctx, actor.WorkspaceID, a.TaskID)
	if err != nil {
		return nil, err
	}
	task.Status = models.AutomationCompleted
	task.NextRunAt = nil
	task.UpdatedAt = t.now().UTC()
	if err := t.store.UpdateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("complete automation: %w", err)
	}
	return TaskResult{Task: task, Message: fmt.Sprintf("Marked automation %q as completed.", task.Title)}, nil
}

func (t *Tools) delete(ctx context.Context, args toolargs.Args, actor harness.Actor) (any, error) {
	a, ok := args.(*toolargs.DeleteTaskArgs)
	if !ok {
		return nil, fmt.Errorf("unexpected arguments %T", args)
	}
	if err := t.store.DeleteTask(ctx, actor.WorkspaceID, a.TaskID); err != nil {
		return nil, err
	}
	t.logger.Info("automation deleted", "task_id", a.TaskID, "workspace_id", actor.WorkspaceID)
	return DeleteResult{TaskID: a.TaskID, Deleted: true}, nil
}
