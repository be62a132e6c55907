package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
)

var fixedNow = time.Date(2025, 6, 1, 12, 30, 45, 123_000_000, time.UTC)

func newTestSink(t *testing.T) *Sink {
	t.Helper()
	sink, err := NewSink(t.TempDir(), func() time.Time { return fixedNow })
	require.NoError(t, err)
	return sink
}

func sampleRecords() []domain.ProductRecord {
	return []domain.ProductRecord{
		{Name: "Fone JBL", Price: decimal.RequireFromString("199.90"), Category: "Electronics", Source: "b2drop"},
		{Name: "Caneca", Price: decimal.RequireFromString("29.90"), Category: "Home", Source: "b2drop"},
		{Name: "Mouse", Price: decimal.RequireFromString("90.20"), Category: "Electronics", Source: "google_trending"},
	}
}

func TestSink_Snapshot(t *testing.T) {
	sink := newTestSink(t)

	path, err := sink.Snapshot(context.Background(), sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(sink.Dir(), "daily", "products_backup_2025-06-01.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc SnapshotDocument
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, 3, doc.TotalProducts)
	assert.Len(t, doc.Products, 3)
	assert.Equal(t, map[string]int{"b2drop": 2, "google_trending": 1}, doc.Statistics.Sources)
	assert.Equal(t, 2, doc.Statistics.Categories["Electronics"])
	require.NotNil(t, doc.Statistics.PriceRange)
	assert.True(t, doc.Statistics.PriceRange.Min.Equal(decimal.RequireFromString("29.9")))
	assert.True(t, doc.Statistics.PriceRange.Max.Equal(decimal.RequireFromString("199.9")))
	assert.True(t, doc.Statistics.PriceRange.Avg.Equal(decimal.RequireFromString("106.67")))

	// A second snapshot on the same day replaces the first.
	again, err := sink.Snapshot(context.Background(), sampleRecords()[:1])
	require.NoError(t, err)
	assert.Equal(t, path, again)
	restored, err := sink.Restore(path)
	require.NoError(t, err)
	assert.Len(t, restored, 1)
}

func TestSink_Snapshot_Empty(t *testing.T) {
	sink := newTestSink(t)

	path, err := sink.Snapshot(context.Background(), nil)
	require.NoError(t, err)

	restored, err := sink.Restore(path)
	require.NoError(t, err)
	assert.Empty(t, restored)
}

func TestSink_Version(t *testing.T) {
	sink := newTestSink(t)
	created := fixedNow.Add(-time.Hour)
	old := &domain.ProductRecord{
		Name:        "Fone JBL",
		Price:       decimal.RequireFromString("199.90"),
		Description: "Bluetooth",
		Source:      "b2drop",
		CreatedAt:   &created,
		UpdateCount: 1,
	}
	updated := old.Clone()
	updated.Price = decimal.RequireFromString("179.90")
	updated.Description = ""
	updated.Store = "Loja A"
	updated.UpdateCount = 2

	path, err := sink.Version(context.Background(), "b2drop_abc/1", old, &updated)
	require.NoError(t, err)
	assert.Equal(t, "b2drop_abc_1_20250601_123045_123.json", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc VersionDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "b2drop_abc/1", doc.ProductID)
	assert.Equal(t, "20250601_123045_123", doc.Timestamp)

	byField := map[string]string{}
	for _, c := range doc.Changes {
		byField[c.Field] = c.ChangeType
	}
	assert.Equal(t, map[string]string{
		"preco":        ChangeUpdated,
		"descricao":    ChangeRemoved,
		"loja":         ChangeAdded,
		"update_count": ChangeUpdated,
	}, byField)

	_, err = sink.Version(context.Background(), "k", nil, &updated)
	assert.ErrorIs(t, err, domain.ErrBackup)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ChangeAdded, classify(nil, "x"))
	assert.Equal(t, ChangeRemoved, classify("x", nil))
	assert.Equal(t, ChangeTypeChanged, classify("1", 1.0))
	assert.Equal(t, ChangeUpdated, classify(1.0, 2.0))
}

func TestSink_Restore_Errors(t *testing.T) {
	sink := newTestSink(t)

	_, err := sink.Restore(filepath.Join(sink.Dir(), "missing.json"))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	bad := filepath.Join(sink.Dir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"timestamp":"x"}`), 0o600))
	_, err = sink.Restore(bad)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	garbage := filepath.Join(sink.Dir(), "garbage.json")
	require.NoError(t, os.WriteFile(garbage, []byte(`not json`), 0o600))
	_, err = sink.Restore(garbage)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSink_Cleanup(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()

	oldPath, err := sink.Snapshot(ctx, sampleRecords())
	require.NoError(t, err)
	rec := sampleRecords()[0]
	newPath, err := sink.Version(ctx, "k", &rec, &rec)
	require.NoError(t, err)

	stale := fixedNow.Add(-10 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(oldPath, stale, stale))
	require.NoError(t, os.Chtimes(newPath, fixedNow, fixedNow))

	removed, err := sink.Cleanup(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(oldPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(newPath)
	assert.NoError(t, err)
}

func TestSink_Inventory(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()
	_, err := sink.Snapshot(ctx, sampleRecords())
	require.NoError(t, err)
	rec := sampleRecords()[1]
	_, err = sink.Version(ctx, "k", &rec, &rec)
	require.NoError(t, err)

	info, err := sink.Inventory()
	require.NoError(t, err)
	assert.Equal(t, []string{"products_backup_2025-06-01.json"}, info.DailyBackups)
	assert.Equal(t, 1, info.VersionCount)
	assert.Positive(t, info.TotalSizeByte)
	assert.Equal(t, sink.Dir(), info.Dir)
}

func TestDetectChanges_Identical(t *testing.T) {
	rec := sampleRecords()[0]
	changes, err := DetectChanges(&rec, &rec)
	require.NoError(t, err)
	assert.Empty(t, changes)
}
