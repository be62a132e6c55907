package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/ports/driven"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/ports/driving"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/logger"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/metrics"
)

// Ensure Aggregator implements the interface.
var _ driving.Aggregator = (*Aggregator)(nil)

// Aggregator collects products from every registered connector,
// deduplicates them and stores the survivors.
type Aggregator struct {
	dedup  driving.Deduplicator
	writer driving.ProductWriter
	now    func() time.Time

	mu         sync.Mutex
	connectors []driven.Connector

	// run serialises Run calls. The writer assumes a single producer.
	run sync.Mutex
}

// NewAggregator creates an aggregator. now may be nil.
func NewAggregator(
	dedup driving.Deduplicator,
	writer driving.ProductWriter,
	now func() time.Time,
	connectors ...driven.Connector,
) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{
		dedup:      dedup,
		writer:     writer,
		now:        now,
		connectors: connectors,
	}
}

// Register adds a connector to later runs.
func (a *Aggregator) Register(c driven.Connector) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connectors = append(a.connectors, c)
}

// Connectors returns the registered connectors.
func (a *Aggregator) Connectors() []driven.Connector {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]driven.Connector(nil), a.connectors...)
}

// Run executes one aggregation. A failing connector does not stop the
// others; its error is returned joined with any other connector errors
// once the survivors have been stored.
func (a *Aggregator) Run(ctx context.Context, source string) (*domain.AggregationReport, error) {
	a.run.Lock()
	defer a.run.Unlock()

	start := a.now()
	report := &domain.AggregationReport{
		RunID:            uuid.NewString(),
		Source:           source,
		StartedAt:        start,
		ProductsBySource: make(map[string]int),
	}

	logger.Section("Aggregation " + report.RunID)

	// 1. Collect
	var errs []error
	var standardized []domain.ProductRecord
	for _, c := range a.Connectors() {
		records, rejected, err := a.collect(ctx, c, start)
		report.Collected += len(records) + rejected
		report.Rejected += rejected
		standardized = append(standardized, records...)
		if err != nil {
			logger.Warn("Connector %s failed: %v", c.Name(), err)
			errs = append(errs, fmt.Errorf("connector %s: %w", c.Name(), err))
		}
	}
	if err := ctx.Err(); err != nil {
		if !errors.Is(errors.Join(errs...), err) {
			errs = append(errs, err)
		}
		return a.finish(report, start, errs)
	}

	// 2. Exact duplicates
	unique := RemoveExactDuplicates(standardized)
	report.ExactDuplicates = len(standardized) - len(unique)

	// 3. Near duplicates
	var deduped []domain.ProductRecord
	deduped, report.Dedup = a.dedup.Deduplicate(unique)
	metrics.RecordDuplicatesRemoved(report.ExactDuplicates + report.Dedup.ProductsRemoved)

	// 4. Rank
	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].TrendingScore > deduped[j].TrendingScore
	})
	summarise(report, deduped)

	// 5. Store
	if len(deduped) > 0 {
		report.Storage = a.writer.StoreProductsBatch(ctx, deduped, source)
		report.Errors = append(report.Errors, report.Storage.Errors...)
	} else {
		logger.Warn("No products collected for %s", source)
	}

	return a.finish(report, start, errs)
}

func (a *Aggregator) finish(report *domain.AggregationReport, start time.Time, errs []error) (*domain.AggregationReport, error) {
	report.DurationSeconds = a.now().Sub(start).Seconds()
	for _, err := range errs {
		report.Errors = append(report.Errors, err.Error())
	}

	logger.Info("Aggregation %s: %d collected, %d rejected, %d exact and %d near duplicates removed, %d stored",
		report.RunID, report.Collected, report.Rejected, report.ExactDuplicates,
		report.Dedup.ProductsRemoved, report.Storage.Successful)

	return report, errors.Join(errs...)
}

// collect drains one connector. Records failing validation are counted as
// rejected; any other error ends up in the returned error.
func (a *Aggregator) collect(
	ctx context.Context,
	c driven.Connector,
	now time.Time,
) ([]domain.ProductRecord, int, error) {
	recordsCh, errsCh := c.Fetch(ctx)

	var records []domain.ProductRecord
	var rejected int
	var errs []error

	for recordsCh != nil || errsCh != nil {
		select {
		case <-ctx.Done():
			return records, rejected, ctx.Err()

		case err, ok := <-errsCh:
			if !ok {
				errsCh = nil
				continue
			}
			if errors.Is(err, domain.ErrValidation) {
				rejected++
				logger.Debug("Rejected record from %s: %v", c.Name(), err)
				continue
			}
			errs = append(errs, err)

		case raw, ok := <-recordsCh:
			if !ok {
				recordsCh = nil
				continue
			}
			if raw.Source == "" {
				raw.Source = c.Name()
			}
			rec, err := Standardize(raw, now)
			if err != nil {
				rejected++
				logger.Debug("Rejected %q from %s: %v", raw.Name, c.Name(), err)
				continue
			}
			records = append(records, rec)
		}
	}

	logger.Info("Collected %d products from %s (%d rejected)", len(records), c.Name(), rejected)
	return records, rejected, errors.Join(errs...)
}

// RemoveExactDuplicates keeps one record per lower-cased name and source,
// preferring the higher trending score. Each key keeps the position of its
// first occurrence.
func RemoveExactDuplicates(records []domain.ProductRecord) []domain.ProductRecord {
	index := make(map[string]int, len(records))
	unique := make([]domain.ProductRecord, 0, len(records))

	for i := range records {
		key := strings.ToLower(records[i].Name) + "_" + strings.ToLower(records[i].Source)
		if pos, ok := index[key]; ok {
			if records[i].TrendingScore > unique[pos].TrendingScore {
				unique[pos] = records[i]
			}
			continue
		}
		index[key] = len(unique)
		unique = append(unique, records[i])
	}
	return unique
}

// summarise fills the per-source counts, the average trending score and the
// positive price range of the final products.
func summarise(report *domain.AggregationReport, records []domain.ProductRecord) {
	if len(records) == 0 {
		return
	}

	var trending float64
	var priced int
	for i := range records {
		report.ProductsBySource[records[i].Source]++
		trending += records[i].TrendingScore

		if !records[i].HasPositivePrice() {
			continue
		}
		price := records[i].Price.InexactFloat64()
		if priced == 0 || price < report.MinPrice {
			report.MinPrice = price
		}
		if price > report.MaxPrice {
			report.MaxPrice = price
		}
		priced++
	}
	report.AverageTrendingScore = math.Round(trending/float64(len(records))*100) / 100
}
