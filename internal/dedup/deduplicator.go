package dedup

import (
	"math"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/ports/driving"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/logger"
)

// Ensure Deduplicator implements the interface.
var _ driving.Deduplicator = (*Deduplicator)(nil)

// Deduplicator runs grouping and resolution over a batch.
type Deduplicator struct {
	grouper  *Grouper
	resolver *Resolver
}

// NewDeduplicator creates a deduplicator from its two stages.
func NewDeduplicator(grouper *Grouper, resolver *Resolver) *Deduplicator {
	return &Deduplicator{
		grouper:  grouper,
		resolver: resolver,
	}
}

// Deduplicate returns the ungrouped records in input order followed by
// one resolved representative per duplicate group in discovery order.
func (d *Deduplicator) Deduplicate(records []domain.ProductRecord) ([]domain.ProductRecord, domain.DedupStats) {
	logger.Info("Deduplicating %d products (threshold %.2f)", len(records), d.grouper.Threshold())

	grouped := d.grouper.Group(records)

	result := make([]domain.ProductRecord, 0, len(grouped.Ungrouped)+len(grouped.Groups))
	for _, idx := range grouped.Ungrouped {
		result = append(result, records[idx])
	}

	stats := domain.DedupStats{
		OriginalCount:       len(records),
		DuplicateGroupCount: len(grouped.Groups),
	}
	for i := range grouped.Groups {
		group := &grouped.Groups[i]
		result = append(result, d.resolver.Resolve(group.Members))
		stats.ProductsMerged++
		stats.ProductsRemoved += group.Size() - 1
	}

	stats.FinalCount = len(result)
	if stats.OriginalCount > 0 {
		stats.ReductionPercentage = float64(stats.OriginalCount-stats.FinalCount) / float64(stats.OriginalCount) * 100
	}

	logger.Info("Deduplication complete: %d -> %d products, %d groups, %.1f%% reduction",
		stats.OriginalCount, stats.FinalCount, stats.DuplicateGroupCount, stats.ReductionPercentage)

	return result, stats
}

// FindPriceNeighbours buckets records with a positive price into bands of
// relative width tolerance and reports every pair inside a band whose
// names are similar enough to be duplicates. Bands are visited in the
// order they are first seen.
func (d *Deduplicator) FindPriceNeighbours(records []domain.ProductRecord, tolerance float64) []domain.PriceNeighbour {
	var order []int64
	bands := make(map[int64][]int)

	for i := range records {
		if !records[i].HasPositivePrice() {
			continue
		}
		price := records[i].Price.InexactFloat64()
		band := int64(math.RoundToEven(price / (1 + tolerance)))
		if _, ok := bands[band]; !ok {
			order = append(order, band)
		}
		bands[band] = append(bands[band], i)
	}

	var neighbours []domain.PriceNeighbour
	for _, band := range order {
		members := bands[band]
		for a := 0; a < len(members); a++ {
			for b := a + 1; b < len(members); b++ {
				first, second := records[members[a]], records[members[b]]
				sim := Similarity(first.Name, second.Name)
				if sim >= d.grouper.Threshold() {
					neighbours = append(neighbours, domain.PriceNeighbour{
						First:      first,
						Second:     second,
						Similarity: sim,
					})
				}
			}
		}
	}
	return neighbours
}
