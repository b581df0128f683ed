package automation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haasonsaas/agentcore/internal/agent"
	"github.com/haasonsaas/agentcore/internal/queue"
	"github.com/haasonsaas/agentcore/pkg/models"
)

func newTestRunner(t *testing.T, f *runtimeFixture, config RunnerConfig) (*Runner, *queue.Queue) {
	t.Helper()
	q := queue.New(queue.NewMemoryStore(), queue.WithClock(func() time.Time { return testNow }))
	config.Now = func() time.Time { return testNow }
	return NewRunner(f.runtime, q, config), q
}

func TestRunnerSweepEnqueuesDueTasks(t *testing.T) {
	ctx := context.Background()
	provider := &scriptedProvider{rounds: [][]agent.ProviderEvent{answerRound("r1", "done")}}
	f := newRuntimeFixture(t, provider, nil)
	f.seed(t, nil)
	f.seed(t, func(a *models.Automation) {
		a.ID = "later"
		next := testNow.Add(time.Hour)
		a.NextRunAt = &next
	})
	f.seed(t, func(a *models.Automation) {
		a.ID = "paused"
		a.Status = models.AutomationPaused
	})
	f.seed(t, func(a *models.Automation) {
		a.ID = "manual"
		a.ScheduleType = models.ScheduleManual
		a.IntervalMinutes = 0
	})

	runner, q := newTestRunner(t, f, RunnerConfig{})
	n, err := runner.Sweep(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Sweep() = %d, %v, want 1", n, err)
	}

	// The claimed slot moved forward, so a second sweep finds nothing.
	if n, _ := runner.Sweep(ctx); n != 0 {
		t.Errorf("second Sweep() = %d, want 0", n)
	}

	processed, err := q.RunOnce(ctx)
	if err != nil || processed != 1 {
		t.Fatalf("RunOnce() = %d, %v", processed, err)
	}
	runs, _ := f.store.ListRuns(ctx, "ws-1", "task-1", 0)
	if len(runs) != 1 || runs[0].Trigger != models.TriggerSchedule || runs[0].Status != models.RunSucceeded {
		t.Fatalf("runs = %+v", runs)
	}
	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Counts[queue.StatusCompleted] != 1 {
		t.Errorf("stats = %+v", stats.Counts)
	}
}

func TestRunnerHandleJob(t *testing.T) {
	ctx := context.Background()

	t.Run("failed run is retried", func(t *testing.T) {
		f := newRuntimeFixture(t, &scriptedProvider{streamErr: errors.New("boom")}, nil)
		f.seed(t, nil)
		runner, _ := newTestRunner(t, f, RunnerConfig{})

		err := runner.HandleJob(ctx, jobFor(t, "task-1"))
		if err == nil || queue.IsPermanent(err) {
			t.Fatalf("error = %v, want retryable failure", err)
		}
	})

	t.Run("missing external source is permanent", func(t *testing.T) {
		f := newRuntimeFixture(t, &scriptedProvider{}, nil)
		f.seed(t, func(a *models.Automation) { a.Title = "Latest headlines" })
		runner, _ := newTestRunner(t, f, RunnerConfig{})

		err := runner.HandleJob(ctx, jobFor(t, "task-1"))
		if !queue.IsPermanent(err) || !errors.Is(err, ErrExternalSourceUnavailable) {
			t.Fatalf("error = %v, want permanent ErrExternalSourceUnavailable", err)
		}
	})

	t.Run("deleted task is permanent", func(t *testing.T) {
		f := newRuntimeFixture(t, &scriptedProvider{}, nil)
		runner, _ := newTestRunner(t, f, RunnerConfig{})

		err := runner.HandleJob(ctx, jobFor(t, "gone"))
		if !queue.IsPermanent(err) || !errors.Is(err, ErrTaskNotFound) {
			t.Fatalf("error = %v, want permanent ErrTaskNotFound", err)
		}
	})

	t.Run("skipped run succeeds", func(t *testing.T) {
		f := newRuntimeFixture(t, &scriptedProvider{}, nil)
		f.seed(t, func(a *models.Automation) { a.Status = models.AutomationCompleted })
		runner, _ := newTestRunner(t, f, RunnerConfig{})

		if err := runner.HandleJob(ctx, jobFor(t, "task-1")); err != nil {
			t.Fatalf("error = %v", err)
		}
	})

	t.Run("malformed payload is permanent", func(t *testing.T) {
		f := newRuntimeFixture(t, &scriptedProvider{}, nil)
		runner, _ := newTestRunner(t, f, RunnerConfig{})

		err := runner.HandleJob(ctx, &queue.Job{ID: "j", Type: JobTypeRun, Payload: []byte(`[1,2]`)})
		if !queue.IsPermanent(err) {
			t.Fatalf("error = %v, want permanent", err)
		}
	})
}

func TestRunnerStartStop(t *testing.T) {
	f := newRuntimeFixture(t, &scriptedProvider{}, nil)

	bad, _ := newTestRunner(t, f, RunnerConfig{Schedule: "not a schedule"})
	if err := bad.StartAutomationRunner(context.Background()); err == nil {
		t.Fatal("expected error for invalid schedule")
	}

	runner, _ := newTestRunner(t, f, RunnerConfig{Schedule: "@every 1h"})
	if err := runner.StartAutomationRunner(context.Background()); err != nil {
		t.Fatalf("Start error = %v", err)
	}
	if err := runner.StartAutomationRunner(context.Background()); err != nil {
		t.Fatalf("second Start error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := runner.StopAutomationRunner(ctx); err != nil {
		t.Fatalf("Stop error = %v", err)
	}
	if err := runner.StopAutomationRunner(ctx); err != nil {
		t.Fatalf("second Stop error = %v", err)
	}
}

func jobFor(t *testing.T, taskID string) *queue.Job {
	t.Helper()
	return &queue.Job{
		ID:       "job-" + taskID,
		Type:     JobTypeRun,
		Payload:  []byte(`{"task_id":"` + taskID + `","workspace_id":"ws-1"}`),
		Attempts: 1,
	}
}
