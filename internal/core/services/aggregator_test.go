package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/adapters/driven/storage/memory"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/dedup"
)

// stubConnector yields fixed records and errors.
type stubConnector struct {
	name    string
	records []domain.ProductRecord
	errs    []error
}

func (c *stubConnector) Name() string { return c.name }

func (c *stubConnector) Fetch(ctx context.Context) (<-chan domain.ProductRecord, <-chan error) {
	records := make(chan domain.ProductRecord)
	errs := make(chan error)
	go func() {
		defer close(records)
		defer close(errs)
		for _, err := range c.errs {
			select {
			case <-ctx.Done():
				return
			case errs <- err:
			}
		}
		for _, r := range c.records {
			select {
			case <-ctx.Done():
				return
			case records <- r:
			}
		}
	}()
	return records, errs
}

func (c *stubConnector) Close() error { return nil }

// passthroughDedup returns its input unchanged.
type passthroughDedup struct {
	calls int
}

func (d *passthroughDedup) Deduplicate(records []domain.ProductRecord) ([]domain.ProductRecord, domain.DedupStats) {
	d.calls++
	return records, domain.DedupStats{OriginalCount: len(records), FinalCount: len(records)}
}

func (d *passthroughDedup) FindPriceNeighbours([]domain.ProductRecord, float64) []domain.PriceNeighbour {
	return nil
}

func newTestAggregator(t *testing.T, d *passthroughDedup, connectors ...*stubConnector) (*Aggregator, *memory.ObjectStore) {
	t.Helper()
	store := memory.NewObjectStore(nil)
	clock := func() time.Time { return writerNow }
	writer := NewProductWriter(store, memory.NewBackupSink(), WriterConfig{Clock: clock})
	agg := NewAggregator(d, writer, clock)
	for _, c := range connectors {
		agg.Register(c)
	}
	return agg, store
}

func TestAggregator_Run(t *testing.T) {
	a := &stubConnector{name: "b2drop", records: []domain.ProductRecord{
		{Name: "Caneca", Price: decimal.NewFromInt(30), Rating: ptrFloat(2)},
		{Name: "Fone JBL", Price: decimal.NewFromInt(120), Rating: ptrFloat(4)},
		{Name: "  ", Price: decimal.NewFromInt(1)},
	}}
	b := &stubConnector{name: "google_trending", records: []domain.ProductRecord{
		{Name: "Mouse", Price: decimal.NewFromInt(-5)},
		{Name: "Teclado", Price: decimal.NewFromInt(600), Rating: ptrFloat(3)},
	}}
	d := &passthroughDedup{}
	agg, store := newTestAggregator(t, d, a, b)

	report, err := agg.Run(context.Background(), "google_trending")
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, "google_trending", report.Source)
	assert.Equal(t, 5, report.Collected)
	assert.Equal(t, 2, report.Rejected)
	assert.Zero(t, report.ExactDuplicates)
	assert.Equal(t, 1, d.calls)
	assert.Equal(t, map[string]int{"b2drop": 2, "google_trending": 1}, report.ProductsBySource)
	// Fone 5, Caneca 2, Teclado 2
	assert.InDelta(t, 3.0, report.AverageTrendingScore, 1e-9)
	assert.InDelta(t, 30.0, report.MinPrice, 1e-9)
	assert.InDelta(t, 600.0, report.MaxPrice, 1e-9)
	assert.Equal(t, 3, report.Storage.Successful)
	assert.Equal(t, 3, report.Storage.NewProducts)
	assert.Equal(t, 3, store.Len())
	assert.Empty(t, report.Errors)
}

func TestAggregator_RunSortsByTrendingScore(t *testing.T) {
	c := &stubConnector{name: "b2drop", records: []domain.ProductRecord{
		{Name: "low", TrendingScore: 1},
		{Name: "high", TrendingScore: 9},
		{Name: "mid", TrendingScore: 5},
	}}
	agg, store := newTestAggregator(t, &passthroughDedup{}, c)

	report, err := agg.Run(context.Background(), "b2drop")
	require.NoError(t, err)
	require.Equal(t, 3, report.Storage.Successful)

	keys, err := store.ListKeys(context.Background(), "b2drop_", 0)
	require.NoError(t, err)
	assert.Len(t, keys, 3)
	assert.InDelta(t, 5.0, report.AverageTrendingScore, 1e-9)
}

func TestAggregator_ConnectorErrorsAreJoined(t *testing.T) {
	boom := errors.New("quota exceeded")
	good := &stubConnector{name: "b2drop", records: []domain.ProductRecord{{Name: "Caneca"}}}
	bad := &stubConnector{
		name: "google_trending",
		errs: []error{
			boom,
			domain.ErrValidation,
		},
		records: []domain.ProductRecord{{Name: "Mouse"}},
	}
	agg, store := newTestAggregator(t, &passthroughDedup{}, good, bad)

	report, err := agg.Run(context.Background(), "b2drop")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "connector google_trending")

	assert.Equal(t, 1, report.Rejected)
	assert.Equal(t, 3, report.Collected)
	assert.Equal(t, 2, report.Storage.Successful)
	assert.Equal(t, 2, store.Len())
	require.Len(t, report.Errors, 1)
}

func TestAggregator_NothingCollected(t *testing.T) {
	agg, store := newTestAggregator(t, &passthroughDedup{}, &stubConnector{name: "b2drop"})

	report, err := agg.Run(context.Background(), "b2drop")
	require.NoError(t, err)
	assert.Zero(t, report.Collected)
	assert.Zero(t, report.Storage.Total)
	assert.Zero(t, store.Len())
}

func TestAggregator_Cancelled(t *testing.T) {
	c := &stubConnector{name: "b2drop", records: []domain.ProductRecord{{Name: "Caneca"}}}
	agg, store := newTestAggregator(t, &passthroughDedup{}, c)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := agg.Run(ctx, "b2drop")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, store.Len())
}

func TestAggregator_WithDeduplicator(t *testing.T) {
	grouper, err := dedup.NewGrouper(domain.DefaultSimilarityThreshold)
	require.NoError(t, err)
	clock := func() time.Time { return writerNow }
	deduper := dedup.NewDeduplicator(grouper, dedup.NewResolver(nil, clock))

	store := memory.NewObjectStore(nil)
	writer := NewProductWriter(store, nil, WriterConfig{Clock: clock})

	a := &stubConnector{name: "b2drop", records: []domain.ProductRecord{
		{Name: "Smartwatch Xiaomi Band 8", Price: decimal.NewFromInt(250)},
		{Name: "smartwatch xiaomi band 8", Price: decimal.NewFromInt(240), TrendingScore: 6},
	}}
	b := &stubConnector{name: "google_trending", records: []domain.ProductRecord{
		{Name: "Smartwatch Xiaomi Band 8", Price: decimal.NewFromInt(260), Store: "Loja B"},
	}}
	agg := NewAggregator(deduper, writer, clock, a, b)

	report, err := agg.Run(context.Background(), "google_trending")
	require.NoError(t, err)

	assert.Equal(t, 3, report.Collected)
	assert.Equal(t, 1, report.ExactDuplicates)
	assert.Equal(t, 2, report.Dedup.OriginalCount)
	assert.Equal(t, 1, report.Dedup.DuplicateGroupCount)
	assert.Equal(t, 1, report.Dedup.FinalCount)
	assert.Equal(t, 1, report.Storage.Successful)
	assert.Equal(t, 1, store.Len())
}

func TestRemoveExactDuplicates(t *testing.T) {
	records := []domain.ProductRecord{
		{Name: "Caneca", Source: "b2drop", TrendingScore: 2},
		{Name: "Mouse", Source: "b2drop", TrendingScore: 1},
		{Name: "CANECA", Source: "B2DROP", TrendingScore: 5, Store: "better"},
		{Name: "Caneca", Source: "google_trending", TrendingScore: 1},
		{Name: "caneca", Source: "b2drop", TrendingScore: 5, Store: "tie"},
	}

	unique := RemoveExactDuplicates(records)

	require.Len(t, unique, 3)
	assert.Equal(t, "better", unique[0].Store)
	assert.Equal(t, "Mouse", unique[1].Name)
	assert.Equal(t, "google_trending", unique[2].Source)
	assert.Empty(t, RemoveExactDuplicates(nil))
}
