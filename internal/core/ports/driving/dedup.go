package driving

import "github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"

// Deduplicator collapses near-identical product listings.
type Deduplicator interface {
	// Deduplicate returns ungrouped records in input order followed by one
	// representative per duplicate group, plus statistics.
	Deduplicate(records []domain.ProductRecord) ([]domain.ProductRecord, domain.DedupStats)

	// FindPriceNeighbours reports similar pairs that share a price band.
	FindPriceNeighbours(records []domain.ProductRecord, tolerance float64) []domain.PriceNeighbour
}
