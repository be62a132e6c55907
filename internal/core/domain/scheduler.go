package domain

import "time"

// Built-in scheduler tasks.
const (
	TaskIDProductAggregation = "product-aggregation"
	TaskIDBackupCleanup      = "backup-cleanup"
)

// MinTaskInterval is the shortest interval an enabled task may use.
// The scheduler checks for due tasks once a minute.
const MinTaskInterval = time.Minute

// TaskName returns the display name of a built-in task, or id itself.
func TaskName(id string) string {
	switch id {
	case TaskIDProductAggregation:
		return "Product Aggregation"
	case TaskIDBackupCleanup:
		return "Backup Cleanup"
	default:
		return id
	}
}

// ScheduledTask is the persisted state of a recurring task.
type ScheduledTask struct {
	ID       string
	Name     string
	Interval time.Duration
	Enabled  bool

	LastRun     time.Time
	LastSuccess time.Time

	// NextRun is zero for a task that has never run, which makes it due
	// immediately.
	NextRun time.Time

	// LastError is empty after a successful run.
	LastError string
}

// IsDue reports whether an enabled task should run at now.
func (t *ScheduledTask) IsDue(now time.Time) bool {
	if !t.Enabled {
		return false
	}
	return t.NextRun.IsZero() || !t.NextRun.After(now)
}

// Complete folds a finished run into the task and schedules the next one
// an interval after the run ended.
func (t *ScheduledTask) Complete(result *TaskResult) {
	t.LastRun = result.StartedAt
	t.NextRun = result.EndedAt.Add(t.Interval)
	if result.Success {
		t.LastError = ""
		t.LastSuccess = result.EndedAt
		return
	}
	t.LastError = result.Error
}

// TaskResult is one execution of a task.
type TaskResult struct {
	TaskID    string
	StartedAt time.Time
	EndedAt   time.Time
	Success   bool
	Error     string

	// ItemsProcessed counts products stored by an aggregation run or
	// backups removed by a cleanup run.
	ItemsProcessed int
}

// Duration returns how long the run took.
func (r *TaskResult) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// SchedulerConfig enables the scheduler and its tasks.
type SchedulerConfig struct {
	Enabled     bool
	TaskConfigs map[string]TaskConfig
}

// TaskConfig configures one task.
type TaskConfig struct {
	Enabled  bool
	Interval time.Duration
}

// GetTaskConfig returns the configuration for taskID, or a zero
// (disabled) TaskConfig.
func (c *SchedulerConfig) GetTaskConfig(taskID string) TaskConfig {
	if c.TaskConfigs == nil {
		return TaskConfig{}
	}
	return c.TaskConfigs[taskID]
}

// DefaultSchedulerConfig aggregates every two hours and expires backups
// once a day.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled: true,
		TaskConfigs: map[string]TaskConfig{
			TaskIDProductAggregation: {Enabled: true, Interval: 2 * time.Hour},
			TaskIDBackupCleanup:      {Enabled: true, Interval: 24 * time.Hour},
		},
	}
}
