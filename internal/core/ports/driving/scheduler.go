package driving

import (
	"context"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
)

// Scheduler runs product aggregation and backup cleanup on an interval.
type Scheduler interface {
	// Start begins running scheduled tasks.
	// Blocks until context is cancelled or an error occurs.
	Start(ctx context.Context) error

	// Stop gracefully stops all running tasks.
	Stop() error

	// RunNow executes a task immediately and records its result.
	RunNow(ctx context.Context, taskID string) (*domain.TaskResult, error)

	// History returns recent results of a task, newest first.
	History(ctx context.Context, taskID string, limit int) ([]domain.TaskResult, error)
}
