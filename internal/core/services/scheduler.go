package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/ports/driven"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/ports/driving"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

const (
	// historyRetention is how many results are kept per task.
	historyRetention = 100

	checkInterval = time.Minute
)

var schedulerLog = logger.WithPrefix("scheduler")

// Scheduler manages background task execution.
// It is a pure core service with no external control API.
type Scheduler struct {
	config     domain.SchedulerConfig
	store      driven.SchedulerStore
	aggregator driving.Aggregator
	source     string

	backups   driven.BackupMaintainer
	retention time.Duration

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	inFlight map[string]bool
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler with configuration. Aggregation runs
// store their products under source.
func NewScheduler(
	config domain.SchedulerConfig,
	store driven.SchedulerStore,
	aggregator driving.Aggregator,
	source string,
) *Scheduler {
	return &Scheduler{
		config:     config,
		store:      store,
		aggregator: aggregator,
		source:     source,
		inFlight:   make(map[string]bool),
	}
}

// WithBackupCleanup enables the backup cleanup task, which removes
// backups older than retention.
func (s *Scheduler) WithBackupCleanup(m driven.BackupMaintainer, retention time.Duration) *Scheduler {
	s.backups = m
	s.retention = retention
	return s
}

// Start begins the scheduler loop. This method blocks until Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	if err := s.initialiseTasks(ctx); err != nil {
		schedulerLog.Error("failed to initialise tasks: %v", err)
	}

	return s.run(ctx)
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	// Wait for running tasks to complete
	s.wg.Wait()

	return nil
}

// RunNow executes a task synchronously, outside the schedule, and records
// its result.
func (s *Scheduler) RunNow(ctx context.Context, taskID string) (*domain.TaskResult, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if task == nil {
		task = &domain.ScheduledTask{
			ID:       taskID,
			Name:     domain.TaskName(taskID),
			Interval: s.config.GetTaskConfig(taskID).Interval,
			Enabled:  true,
		}
	}
	if !s.claim(taskID) {
		return nil, fmt.Errorf("%w: task %s is already running", domain.ErrInvalidInput, taskID)
	}
	defer s.release(taskID)

	result := s.execute(ctx, task)
	if !result.Success {
		return result, fmt.Errorf("task %s: %s", taskID, result.Error)
	}
	return result, nil
}

// History returns the most recent results of a task, newest first.
func (s *Scheduler) History(ctx context.Context, taskID string, limit int) ([]domain.TaskResult, error) {
	return s.store.GetTaskHistory(ctx, taskID, limit)
}

// initialiseTasks ensures all configured tasks exist in the store and
// removes stored tasks that are no longer enabled.
func (s *Scheduler) initialiseTasks(ctx context.Context) error {
	for _, id := range []string{domain.TaskIDProductAggregation, domain.TaskIDBackupCleanup} {
		taskCfg := s.config.GetTaskConfig(id)
		if !taskCfg.Enabled || (id == domain.TaskIDBackupCleanup && s.backups == nil) {
			if err := s.store.DeleteTask(ctx, id); err != nil {
				return err
			}
			continue
		}
		if err := s.ensureTask(ctx, id, taskCfg); err != nil {
			return err
		}
	}
	return nil
}

// ensureTask creates or updates a task in the store.
func (s *Scheduler) ensureTask(ctx context.Context, id string, cfg domain.TaskConfig) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}

	if task == nil {
		// First run happens immediately
		task = &domain.ScheduledTask{
			ID:       id,
			Name:     domain.TaskName(id),
			Interval: cfg.Interval,
			Enabled:  cfg.Enabled,
		}
	} else {
		if task.Interval != cfg.Interval {
			task.Interval = cfg.Interval
			task.NextRun = time.Now().Add(cfg.Interval)
		}
		task.Enabled = cfg.Enabled
	}

	return s.store.SaveTask(ctx, task)
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context) error {
	s.checkAndRunDueTasks(ctx)

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			s.checkAndRunDueTasks(ctx)
		}
	}
}

// checkAndRunDueTasks finds and executes tasks that are due.
func (s *Scheduler) checkAndRunDueTasks(ctx context.Context) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		schedulerLog.Error("failed to list tasks: %v", err)
		return
	}

	now := time.Now()
	for i := range tasks {
		if tasks[i].IsDue(now) {
			s.runTask(ctx, &tasks[i])
		}
	}
}

// runTask executes a single task in the background. A task still running
// from an earlier tick is skipped.
func (s *Scheduler) runTask(ctx context.Context, task *domain.ScheduledTask) {
	if !s.claim(task.ID) {
		schedulerLog.Debug("task %s still running, skipping", task.ID)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(task.ID)
		s.execute(ctx, task)
	}()
}

// execute runs the task body, then persists the task state and result.
func (s *Scheduler) execute(ctx context.Context, task *domain.ScheduledTask) *domain.TaskResult {
	result := &domain.TaskResult{
		TaskID:    task.ID,
		StartedAt: time.Now(),
	}

	var err error
	switch task.ID {
	case domain.TaskIDProductAggregation:
		result.ItemsProcessed, err = s.runAggregation(ctx)
	case domain.TaskIDBackupCleanup:
		result.ItemsProcessed, err = s.runBackupCleanup(ctx)
	default:
		err = fmt.Errorf("%w: unknown task %s", domain.ErrNotFound, task.ID)
		schedulerLog.Warn("unknown task ID: %s", task.ID)
	}

	result.EndedAt = time.Now()
	result.Success = err == nil
	if err != nil {
		result.Error = err.Error()
		schedulerLog.Warn("task %s failed: %v", task.ID, err)
	} else {
		schedulerLog.Info("task %s processed %d items in %s", task.ID, result.ItemsProcessed, result.Duration().Round(time.Millisecond))
	}
	task.Complete(result)

	if saveErr := s.store.SaveTask(ctx, task); saveErr != nil {
		schedulerLog.Error("failed to save task %s: %v", task.ID, saveErr)
	}
	if recordErr := s.store.RecordResult(ctx, result); recordErr != nil {
		schedulerLog.Error("failed to record result for %s: %v", task.ID, recordErr)
	}
	if pruneErr := s.store.PruneHistory(ctx, historyRetention); pruneErr != nil {
		schedulerLog.Error("failed to prune history: %v", pruneErr)
	}

	return result
}

// runAggregation collects and stores products. Items processed is the
// number of products stored.
func (s *Scheduler) runAggregation(ctx context.Context) (int, error) {
	if s.aggregator == nil {
		return 0, nil
	}
	report, err := s.aggregator.Run(ctx, s.source)
	if report == nil {
		return 0, err
	}
	return report.Storage.Successful, err
}

// runBackupCleanup removes expired backups.
func (s *Scheduler) runBackupCleanup(ctx context.Context) (int, error) {
	if s.backups == nil || s.retention <= 0 {
		return 0, nil
	}
	return s.backups.Cleanup(ctx, s.retention)
}

func (s *Scheduler) claim(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[taskID] {
		return false
	}
	s.inFlight[taskID] = true
	return true
}

func (s *Scheduler) release(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, taskID)
}
