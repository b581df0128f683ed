package automation

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/agentcore/pkg/models"
)

// NextRunAt returns when an interval task should run next after from, or
// nil for manual tasks.
func NextRunAt(task *models.Automation, from time.Time) *time.Time {
	if task == nil || task.ScheduleType != models.ScheduleInterval || task.IntervalMinutes <= 0 {
		return nil
	}
	next := cron.Every(time.Duration(task.IntervalMinutes) * time.Minute).Next(from)
	return &next
}

// due reports whether task is claimable at now.
func due(task *models.Automation, now time.Time) bool {
	return task.Status == models.AutomationActive &&
		task.ScheduleType == models.ScheduleInterval &&
		task.NextRunAt != nil &&
		!task.NextRunAt.After(now)
}
