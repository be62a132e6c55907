package services

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
)

// Trending score bounds.
const (
	MinTrendingScore = 0.0
	MaxTrendingScore = 10.0
)

var (
	cheapPrice     = decimal.NewFromInt(10)
	expensivePrice = decimal.NewFromInt(500)
	commonLow      = decimal.NewFromInt(50)
	commonHigh     = decimal.NewFromInt(200)
)

// Standardize validates a raw connector record and fills in derived fields.
// The input is not modified.
func Standardize(raw domain.ProductRecord, now time.Time) (domain.ProductRecord, error) {
	rec := raw.Clone()

	rec.Name = strings.TrimSpace(rec.Name)
	if rec.Name == "" {
		return domain.ProductRecord{}, fmt.Errorf("%w: product name is required", domain.ErrValidation)
	}
	if rec.Price.IsNegative() {
		return domain.ProductRecord{}, fmt.Errorf("%w: %q has negative price %s",
			domain.ErrValidation, rec.Name, rec.Price)
	}

	if rec.PromotionalPrice != nil && !rec.PromotionalPrice.LessThan(rec.Price) {
		rec.PromotionalPrice = nil
	}

	rec.Description = strings.TrimSpace(rec.Description)
	rec.ImageURL = strings.TrimSpace(rec.ImageURL)
	rec.SourceURL = strings.TrimSpace(rec.SourceURL)
	rec.Store = strings.TrimSpace(rec.Store)
	rec.Source = strings.TrimSpace(rec.Source)
	rec.Category = strings.TrimSpace(rec.Category)
	rec.CategorySearched = strings.TrimSpace(rec.CategorySearched)

	if rec.Category == "" {
		rec.Category = rec.CategorySearched
	}
	if rec.Category == "" {
		rec.Category = domain.DefaultCategory
	}

	if rec.TrendingScore == 0 {
		rec.TrendingScore = CalculateTrendingScore(&rec)
	}

	if rec.ScrapedAt == nil {
		t := now
		rec.ScrapedAt = &t
	}
	return rec, nil
}

// CalculateTrendingScore rates how promising a product looks on a 0-10
// scale from its rating, review count and price band.
func CalculateTrendingScore(rec *domain.ProductRecord) float64 {
	var score float64

	if rec.Rating != nil {
		score += *rec.Rating
	}
	if rec.ReviewCount != nil && *rec.ReviewCount > 0 {
		score += math.Min(5, math.Pow(float64(*rec.ReviewCount), 0.3)*0.5)
	}

	// A zero price is unknown, not cheap.
	if rec.Price.IsPositive() {
		switch {
		case rec.Price.LessThan(cheapPrice) || rec.Price.GreaterThan(expensivePrice):
			score--
		case rec.Price.GreaterThan(commonLow) && rec.Price.LessThan(commonHigh):
			score++
		}
	}

	return math.Max(MinTrendingScore, math.Min(MaxTrendingScore, score))
}
