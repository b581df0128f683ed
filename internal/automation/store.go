package automation

import (
	"context"
	"time"

	"github.com/haasonsaas/agentcore/pkg/models"
)

// Store persists automations and their runs. Every lookup is scoped to a
// workspace; ClaimDue is the only cross-workspace operation.
type Store interface {
	CreateTask(ctx context.Context, task *models.Automation) error
	GetTask(ctx context.Context, workspaceID, id string) (*models.Automation, error)
	ListTasks(ctx context.Context, workspaceID string, status models.AutomationStatus) ([]*models.Automation, error)
	UpdateTask(ctx context.Context, task *models.Automation) error
	DeleteTask(ctx context.Context, workspaceID, id string) error

	// ClaimDue returns active interval tasks whose NextRunAt is at or before
	// now and atomically advances their NextRunAt by one interval, so
	// concurrent sweepers never claim the same slot.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.Automation, error)

	CreateRun(ctx context.Context, run *models.AutomationRun) error
	// FinishRun persists the terminal state of a run. Only running runs
	// can be finished.
	FinishRun(ctx context.Context, run *models.AutomationRun) error
	GetRun(ctx context.Context, workspaceID, id string) (*models.AutomationRun, error)
	// ListRuns returns runs of a task, newest first.
	ListRuns(ctx context.Context, workspaceID, taskID string, limit int) ([]*models.AutomationRun, error)

	Close() error
}

// statusMatches reports whether status passes a ListTasks filter. An empty
// filter matches every task.
func statusMatches(filter, status models.AutomationStatus) bool {
	return filter == "" || filter == status
}

func cloneTask(t *models.Automation) *models.Automation {
	if t == nil {
		return nil
	}
	clone := *t
	clone.Spec.Source.Queries = append([]string(nil), t.Spec.Source.Queries...)
	clone.Spec.Source.FeedURLs = append([]string(nil), t.Spec.Source.FeedURLs...)
	if t.NextRunAt != nil {
		v := *t.NextRunAt
		clone.NextRunAt = &v
	}
	if t.LastRunAt != nil {
		v := *t.LastRunAt
		clone.LastRunAt = &v
	}
	return &clone
}

func cloneRun(r *models.AutomationRun) *models.AutomationRun {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Output.Mutations = append([]models.RunMutation(nil), r.Output.Mutations...)
	clone.Output.WebSources = append([]models.WebSource(nil), r.Output.WebSources...)
	clone.Output.WebSearchCalls = append([]models.WebSearchCall(nil), r.Output.WebSearchCalls...)
	clone.Trace = append([]models.ToolTrace(nil), r.Trace...)
	if r.FinishedAt != nil {
		v := *r.FinishedAt
		clone.FinishedAt = &v
	}
	return &clone
}
