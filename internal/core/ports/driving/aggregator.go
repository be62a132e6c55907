package driving

import (
	"context"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
)

// Aggregator runs the collect, deduplicate and store pipeline.
type Aggregator interface {
	// Run collects from every connector and stores the survivors under source.
	Run(ctx context.Context, source string) (*domain.AggregationReport, error)
}
