package automation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/haasonsaas/agentcore/pkg/models"
)

// MemoryStore is an in-memory Store for tests and single-process use.
type MemoryStore struct {
	mu    sync.Mutex
	tasks map[string]*models.Automation
	runs  map[string]*models.AutomationRun
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[string]*models.Automation),
		runs:  make(map[string]*models.AutomationRun),
	}
}

func (s *MemoryStore) CreateTask(_ context.Context, task *models.Automation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; ok {
		return ErrTaskExists
	}
	s.tasks[task.ID] = cloneTask(task)
	return nil
}

func (s *MemoryStore) GetTask(_ context.Context, workspaceID, id string) (*models.Automation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok || task.WorkspaceID != workspaceID {
		return nil, ErrTaskNotFound
	}
	return cloneTask(task), nil
}

func (s *MemoryStore) ListTasks(_ context.Context, workspaceID string, status models.AutomationStatus) ([]*models.Automation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Automation
	for _, task := range s.tasks {
		if task.WorkspaceID == workspaceID && statusMatches(status, task.Status) {
			out = append(out, cloneTask(task))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) UpdateTask(_ context.Context, task *models.Automation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.tasks[task.ID]
	if !ok || existing.WorkspaceID != task.WorkspaceID {
		return ErrTaskNotFound
	}
	s.tasks[task.ID] = cloneTask(task)
	return nil
}

func (s *MemoryStore) DeleteTask(_ context.Context, workspaceID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok || task.WorkspaceID != workspaceID {
		return ErrTaskNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *MemoryStore) ClaimDue(_ context.Context, now time.Time, limit int) ([]*models.Automation, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var candidates []*models.Automation
	for _, task := range s.tasks {
		if due(task, now) {
			candidates = append(candidates, task)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].NextRunAt.Equal(*candidates[j].NextRunAt) {
			return candidates[i].NextRunAt.Before(*candidates[j].NextRunAt)
		}
		return candidates[i].ID < candidates[j].ID
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]*models.Automation, 0, len(candidates))
	for _, task := range candidates {
		task.NextRunAt = NextRunAt(task, now)
		task.UpdatedAt = now
		out = append(out, cloneTask(task))
	}
	return out, nil
}

func (s *MemoryStore) CreateRun(_ context.Context, run *models.AutomationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *MemoryStore) FinishRun(_ context.Context, run *models.AutomationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.runs[run.ID]
	if !ok || existing.Status != models.RunRunning {
		return ErrRunNotFound
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, workspaceID, id string) (*models.AutomationRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok || run.WorkspaceID != workspaceID {
		return nil, ErrRunNotFound
	}
	return cloneRun(run), nil
}

func (s *MemoryStore) ListRuns(_ context.Context, workspaceID, taskID string, limit int) ([]*models.AutomationRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.AutomationRun
	for _, run := range s.runs {
		if run.WorkspaceID == workspaceID && run.TaskID == taskID {
			out = append(out, cloneRun(run))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
