package dedup

import (
	"time"
	"unicode/utf8"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
)

const (
	richDescriptionLength = 50
	staleAfter            = 30 * 24 * time.Hour
)

// Resolver picks the representative of a duplicate group and folds the
// other members' sources, images and URLs into it.
type Resolver struct {
	sourceTrust map[string]float64
	now         func() time.Time
}

// NewResolver creates a resolver.
// A nil trust table uses domain.DefaultSourceTrust; a nil clock uses time.Now.
func NewResolver(sourceTrust map[string]float64, now func() time.Time) *Resolver {
	if sourceTrust == nil {
		sourceTrust = domain.DefaultSourceTrust()
	}
	if now == nil {
		now = time.Now
	}
	return &Resolver{sourceTrust: sourceTrust, now: now}
}

// Resolve returns the merged representative of group.
// A single-member group is returned unchanged. Otherwise the member with
// the highest quality score wins, the first one on ties.
func (r *Resolver) Resolve(group []domain.ProductRecord) domain.ProductRecord {
	switch len(group) {
	case 0:
		return domain.ProductRecord{}
	case 1:
		return group[0]
	}

	now := r.now()
	best, bestScore := 0, r.QualityScore(&group[0], now)
	for i := 1; i < len(group); i++ {
		if score := r.QualityScore(&group[i], now); score > bestScore {
			best, bestScore = i, score
		}
	}

	return merge(group, best, now)
}

// QualityScore rates how complete and trustworthy a record is.
func (r *Resolver) QualityScore(p *domain.ProductRecord, now time.Time) float64 {
	var score float64

	// Completeness
	if p.Name != "" {
		score += 1.0
	}
	if !p.Price.IsZero() {
		score += 1.0
	}
	if p.Category != "" {
		score += 1.0
	}
	if p.ImageURL != "" {
		score += 1.0
	}

	if utf8.RuneCountInString(p.Description) > richDescriptionLength {
		score += 0.5
	}

	switch {
	case p.TrendingScore > 8:
		score += 1.0
	case p.TrendingScore > 6:
		score += 0.5
	}

	if p.HasPositivePrice() {
		score += 0.5
	}

	score += r.sourceTrust[p.Source]

	if p.CreatedAt != nil && now.Sub(*p.CreatedAt) > staleAfter {
		score -= 0.2
	}

	return score
}

func merge(group []domain.ProductRecord, best int, now time.Time) domain.ProductRecord {
	merged := group[best].Clone()

	sources := make([]domain.AlternativeSource, 0, len(group)-1)
	var images, urls []string
	seenImages := make(map[string]struct{})
	seenURLs := make(map[string]struct{})

	for i := range group {
		if i == best {
			continue
		}
		other := &group[i]
		sources = append(sources, domain.AlternativeSource{
			Source:    other.Source,
			Store:     other.Store,
			Price:     other.Price,
			SourceURL: other.SourceURL,
		})
		if other.ImageURL != "" {
			if _, ok := seenImages[other.ImageURL]; !ok {
				seenImages[other.ImageURL] = struct{}{}
				images = append(images, other.ImageURL)
			}
		}
		if other.SourceURL != "" {
			if _, ok := seenURLs[other.SourceURL]; !ok {
				seenURLs[other.SourceURL] = struct{}{}
				urls = append(urls, other.SourceURL)
			}
		}
	}

	merged.AlternativeSources = sources
	merged.AlternativeImages = images
	merged.AlternativeURLs = urls
	merged.DuplicateCount = len(group)
	merged.MergeTimestamp = &now

	return merged
}
