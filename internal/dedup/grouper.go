package dedup

import (
	"fmt"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/logger"
)

// GroupResult partitions a batch into duplicate groups and ungrouped records.
type GroupResult struct {
	// Groups holds clusters of two or more records, in discovery order.
	Groups []domain.DuplicateGroup

	// Ungrouped holds the input positions of records that joined no group,
	// in input order.
	Ungrouped []int
}

// Grouper clusters records whose names are similar.
type Grouper struct {
	threshold float64
}

// NewGrouper creates a grouper. The threshold must be in (0,1].
func NewGrouper(threshold float64) (*Grouper, error) {
	if threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: similarity threshold %v outside (0,1]", domain.ErrInvalidInput, threshold)
	}
	return &Grouper{threshold: threshold}, nil
}

// Threshold returns the configured similarity threshold.
func (g *Grouper) Threshold() float64 {
	return g.threshold
}

// Group runs a single greedy pass over records in input order.
// Each unassigned record seeds a candidate group and claims every later
// unassigned record whose similarity reaches the threshold. Claimed records
// are never compared again. Records with an empty name are never grouped.
func (g *Grouper) Group(records []domain.ProductRecord) GroupResult {
	var result GroupResult
	if len(records) == 0 {
		return result
	}

	keys := make([]string, len(records))
	for i := range records {
		keys[i] = Normalize(records[i].Name)
	}

	assigned := make([]bool, len(records))
	for i := range records {
		if assigned[i] {
			continue
		}
		assigned[i] = true

		members := []int{i}
		if records[i].Name != "" {
			for j := i + 1; j < len(records); j++ {
				if assigned[j] || records[j].Name == "" {
					continue
				}
				if ratio(keys[i], keys[j]) >= g.threshold {
					members = append(members, j)
					assigned[j] = true
				}
			}
		}

		if len(members) == 1 {
			result.Ungrouped = append(result.Ungrouped, i)
			continue
		}

		group := domain.DuplicateGroup{
			ID:      fmt.Sprintf("group_%d", len(result.Groups)+1),
			Indices: members,
			Members: make([]domain.ProductRecord, len(members)),
		}
		for k, idx := range members {
			group.Members[k] = records[idx]
		}
		result.Groups = append(result.Groups, group)
		logger.Debug("%s: %d similar products (%q)", group.ID, len(members), records[i].Name)
	}

	return result
}
