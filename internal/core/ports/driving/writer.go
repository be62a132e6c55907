package driving

import (
	"context"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
)

// ProductWriter writes product records without losing provenance.
type ProductWriter interface {
	// StoreProduct upserts a single record. The record is updated in place
	// with its key, provenance counters and uploaded image URL.
	StoreProduct(ctx context.Context, record *domain.ProductRecord, source string) (domain.StoreOutcome, error)

	// StoreProductsBatch upserts records in order. Per-record failures are
	// reported in the result and never abort the batch.
	StoreProductsBatch(ctx context.Context, records []domain.ProductRecord, source string) domain.BatchResult

	// Statistics summarises up to limit stored records under prefix.
	Statistics(ctx context.Context, prefix string, limit int) (*domain.StoreStatistics, error)
}
