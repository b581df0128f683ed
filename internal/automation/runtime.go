// Package automation runs stored workspace automations unattended: it
// schedules due tasks onto the job queue, executes each run under an
// action budget and records what the run did.
package automation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentcore/internal/agent"
	"github.com/haasonsaas/agentcore/internal/harness"
	"github.com/haasonsaas/agentcore/internal/observability"
	"github.com/haasonsaas/agentcore/internal/toolargs"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// DefaultRunInstructions is the system instruction of every automation run.
const DefaultRunInstructions = "You are running a saved workspace automation without a user present. " +
	"Follow the task instructions, use the available tools, and finish with a short summary of what you did. " +
	"Do not ask questions; make reasonable choices instead."

// SkipReasonNotActive is reported when a scheduled run finds its task paused or completed.
const SkipReasonNotActive = "task_not_active"

const maxSummaryLen = 280

// RuntimeConfig configures a Runtime.
type RuntimeConfig struct {
	Store        Store
	Orchestrator *agent.Orchestrator

	// Tools holds the workspace executors available to runs. Task
	// lifecycle tools and ask_question are never exposed to a run.
	Tools *harness.Registry

	Instructions string
	CacheSize    int

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
	Now     func() time.Time
}

// Runtime executes automation runs.
type Runtime struct {
	config RuntimeConfig
	logger *slog.Logger
}

// NewRuntime creates a runtime, applying defaults.
func NewRuntime(config RuntimeConfig) *Runtime {
	if config.Instructions == "" {
		config.Instructions = DefaultRunInstructions
	}
	if config.Tools == nil {
		config.Tools = harness.NewRegistry()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Runtime{
		config: config,
		logger: config.Logger.With("component", "automation-runtime"),
	}
}

// Store returns the automation store.
func (r *Runtime) Store() Store { return r.config.Store }

// RunRequest asks for one run of a task.
type RunRequest struct {
	TaskID            string
	WorkspaceID       string
	TriggeredByUserID string
	Trigger           models.RunTrigger
}

// RunResult is the outcome of RunTaskNow. Run is nil when the run was
// skipped; Err is the cause of a failed run.
type RunResult struct {
	Task    *models.Automation
	Run     *models.AutomationRun
	Skipped bool
	Reason  string
	Err     error
}

// Failed reports whether a run was recorded as failed.
func (r *RunResult) Failed() bool {
	return r != nil && r.Run != nil && r.Run.Status == models.RunFailed
}

// RunTaskNow executes task req.TaskID once and records the run.
//
// Scheduled runs of tasks that are not active are skipped without a run
// record. Otherwise exactly one run moves from running to succeeded or
// failed; its trace and partial output are persisted either way. Failures of
// the run itself, panics included, are reported in the result rather than as
// an error. The error return is reserved for lookup and persistence failures.
func (r *Runtime) RunTaskNow(ctx context.Context, req RunRequest) (*RunResult, error) {
	if req.Trigger == "" {
		req.Trigger = models.TriggerManual
	}
	task, err := r.config.Store.GetTask(ctx, req.WorkspaceID, req.TaskID)
	if err != nil {
		return nil, err
	}
	logger := r.logger.With("task_id", task.ID, "workspace_id", task.WorkspaceID, "trigger", req.Trigger)

	if req.Trigger == models.TriggerSchedule && task.Status != models.AutomationActive {
		logger.Info("skipping scheduled run", "status", task.Status)
		r.config.Metrics.RecordAutomationRun(string(req.Trigger), "skipped", 0)
		return &RunResult{Task: task, Skipped: true, Reason: SkipReasonNotActive}, nil
	}

	ctx, span := r.config.Tracer.TraceRun(ctx, task.ID, task.WorkspaceID, string(req.Trigger))
	defer span.End()

	run := &models.AutomationRun{
		ID:                uuid.NewString(),
		TaskID:            task.ID,
		WorkspaceID:       task.WorkspaceID,
		Trigger:           req.Trigger,
		TriggeredByUserID: req.TriggeredByUserID,
		Status:            models.RunRunning,
		Output:            emptyOutput(),
		Trace:             []models.ToolTrace{},
		StartedAt:         r.config.Now(),
	}
	if err := r.config.Store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	logger = logger.With("run_id", run.ID)
	logger.Info("automation run started")

	output, traces, runErr := r.execute(ctx, task, run, req)

	finished := r.config.Now()
	run.FinishedAt = &finished
	run.Output = output
	r.config.Tracer.SetAttributes(span,
		"automation.actions_used", output.ActionsUsed,
		"automation.mutations", output.MutationCount,
	)
	if traces != nil {
		run.Trace = traces
	}
	if runErr != nil {
		run.Status = models.RunFailed
		run.Error = runErr.Error()
		run.Summary = agent.UserFacingMessage(runErr)
		r.config.Tracer.RecordError(span, runErr)
		logger.Warn("automation run failed", "error", runErr, "kind", agent.Classify(runErr))
	} else {
		run.Status = models.RunSucceeded
		run.Summary = summarizeRun(output)
		logger.Info("automation run succeeded", "mutations", output.MutationCount)
	}

	// Persist even if the caller has gone away.
	persistCtx := context.WithoutCancel(ctx)
	if err := r.config.Store.FinishRun(persistCtx, run); err != nil {
		return &RunResult{Task: task, Run: run, Err: runErr}, fmt.Errorf("finish run: %w", err)
	}
	updated, err := r.recordOutcome(persistCtx, task, run)
	if err != nil {
		logger.Error("failed to update task after run", "error", err)
	} else {
		task = updated
	}
	r.config.Metrics.RecordAutomationRun(string(req.Trigger), string(run.Status), finished.Sub(run.StartedAt).Seconds())
	return &RunResult{Task: task, Run: run, Err: runErr}, nil
}

// execute runs the orchestrator for task. It returns whatever output and
// trace exist even when it fails.
func (r *Runtime) execute(ctx context.Context, task *models.Automation, run *models.AutomationRun, req RunRequest) (output models.RunOutput, traces []models.ToolTrace, err error) {
	output = emptyOutput()
	recorder := agent.NewRecordingSink()
	var h *harness.Harness

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("automation run panicked", "run_id", run.ID, "panic", rec)
			err = fmt.Errorf("%w: %v", ErrRunPanic, rec)
			output = Replay(recorder.Events())
			if h != nil {
				traces = h.Traces()
			}
		}
	}()

	if r.config.Orchestrator == nil {
		return output, nil, agent.ErrNoProvider
	}

	spec := NormalizeSpec(task)
	registry := r.config.Tools.Filter(func(name string) bool {
		return !toolargs.IsTaskLifecycle(name) && !toolargs.IsQuestion(name)
	})
	if spec.RequiresExternalSource() && !registry.Has(toolargs.ToolWebSearch) && !registry.Has(toolargs.ToolFetchFeed) {
		return output, nil, harness.NewPolicyError(toolargs.ToolWebSearch, ErrExternalSourceUnavailable)
	}
	if task.DryRun {
		registry = dryRunRegistry(registry)
	}

	tools, err := toolargs.Select(registry.Names())
	if err != nil {
		return output, nil, err
	}

	userID := req.TriggeredByUserID
	if userID == "" {
		userID = task.CreatedByUserID
	}
	h = harness.New(harness.Config{
		Actor: harness.Actor{
			WorkspaceID: task.WorkspaceID,
			UserID:      userID,
			RequestID:   run.ID,
		},
		Registry:  registry,
		CacheSize: r.config.CacheSize,
		Logger:    r.config.Logger,
		Metrics:   r.config.Metrics,
		Tracer:    r.config.Tracer,
		Now:       r.config.Now,
	})

	budget := NewActionBudget(task.MaxActionsPerRun)
	result, runErr := r.config.Orchestrator.Run(ctx, agent.Turn{
		RequestID:    run.ID,
		Instructions: r.config.Instructions,
		Input:        []agent.InputItem{agent.UserMessage(TaskMessage(task, spec))},
		Tools:        tools,
		Harness:      h,
		Gate:         budget,
		Sink:         recorder,
	})
	output = Replay(recorder.Events())
	output.ActionsUsed = budget.Used()
	output.ActionsRemaining = budget.Remaining()
	traces = h.Traces()
	if runErr != nil {
		return output, traces, runErr
	}
	if result.Terminal == agent.TerminalRoundLimit {
		return output, traces, ErrRoundLimit
	}
	return output, traces, nil
}

// recordOutcome updates the task's schedule and failure bookkeeping. The task
// is reloaded first so edits made during the run are kept.
func (r *Runtime) recordOutcome(ctx context.Context, task *models.Automation, run *models.AutomationRun) (*models.Automation, error) {
	current, err := r.config.Store.GetTask(ctx, task.WorkspaceID, task.ID)
	if err != nil {
		return nil, err
	}
	finished := *run.FinishedAt
	current.LastRunAt = &finished
	current.UpdatedAt = finished

	if run.Status == models.RunFailed {
		current.ConsecutiveFailures++
		if current.MaxConsecutiveFailures > 0 &&
			current.ConsecutiveFailures >= current.MaxConsecutiveFailures &&
			current.Status == models.AutomationActive {
			current.Status = models.AutomationPaused
			r.logger.Warn("pausing automation after repeated failures",
				"task_id", current.ID,
				"failures", current.ConsecutiveFailures,
			)
		}
	} else {
		current.ConsecutiveFailures = 0
	}

	if current.ScheduleType == models.ScheduleInterval && current.Status == models.AutomationActive {
		current.NextRunAt = NextRunAt(current, finished)
	}
	if err := r.config.Store.UpdateTask(ctx, current); err != nil {
		return nil, err
	}
	return current, nil
}

// TaskMessage renders the frozen user message of a run.
func TaskMessage(task *models.Automation, spec models.TaskSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Automation: %s\n\n", task.Title)
	b.WriteString("Instructions:\n")
	b.WriteString(strings.TrimSpace(task.Prompt))
	b.WriteString("\n\n")

	if task.ScopeFolder != "" {
		fmt.Fprintf(&b, "Only read notes in folder %q.\n", task.ScopeFolder)
	}
	fmt.Fprintf(&b, "Source: %s", spec.Source.Mode)
	if len(spec.Source.Queries) > 0 {
		fmt.Fprintf(&b, "; queries: %s", strings.Join(spec.Source.Queries, ", "))
	}
	if len(spec.Source.FeedURLs) > 0 {
		fmt.Fprintf(&b, "; feeds: %s", strings.Join(spec.Source.FeedURLs, ", "))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Output: %s titled %q\n", spec.Output.Mode, spec.Output.TitleTemplate)
	if spec.Dedupe.Strategy != models.DedupeNone {
		fmt.Fprintf(&b, "Skip items already written in the last %d days (match %s).\n",
			spec.Dedupe.WindowDays, strings.TrimPrefix(string(spec.Dedupe.Strategy), "by_"))
	}
	if spec.Destination.FolderID != "" {
		fmt.Fprintf(&b, "Write results to folder %s (%s).\n", spec.Destination.FolderID, spec.Destination.FolderName)
	} else {
		fmt.Fprintf(&b, "Write results to the folder named %q.\n", spec.Destination.FolderName)
	}
	fmt.Fprintf(&b, "You may make at most %d changes in this run.\n", task.MaxActionsPerRun)
	if task.DryRun {
		b.WriteString("This is a dry run: changes are simulated and not saved.\n")
	}
	return b.String()
}

func summarizeRun(output models.RunOutput) string {
	text := strings.TrimSpace(output.Text)
	if line, _, ok := strings.Cut(text, "\n"); ok {
		text = strings.TrimSpace(line)
	}
	if text == "" {
		return fmt.Sprintf("Completed with %d changes.", output.MutationCount)
	}
	if utf8.RuneCountInString(text) > maxSummaryLen {
		text = string([]rune(text)[:maxSummaryLen-3]) + "..."
	}
	return text
}

func emptyOutput() models.RunOutput {
	return models.RunOutput{
		Mutations:      []models.RunMutation{},
		WebSources:     []models.WebSource{},
		WebSearchCalls: []models.WebSearchCall{},
	}
}
