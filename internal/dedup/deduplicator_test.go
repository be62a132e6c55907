package dedup

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
)

func newTestDeduplicator(t *testing.T, threshold float64) *Deduplicator {
	t.Helper()
	g, err := NewGrouper(threshold)
	require.NoError(t, err)
	return NewDeduplicator(g, NewResolver(nil, fixedClock))
}

var phoneBatch = []string{
	"iPhone 16 128GB Preto",
	"iPhone 16 - 128GB - Preto",
	"Samsung Galaxy S24",
	"Galaxy S24 Samsung",
	"MacBook Pro M3",
}

func TestDeduplicator_Deduplicate_Empty(t *testing.T) {
	d := newTestDeduplicator(t, domain.DefaultSimilarityThreshold)

	result, stats := d.Deduplicate(nil)

	assert.Empty(t, result)
	assert.Equal(t, domain.DedupStats{}, stats)
	assert.Zero(t, stats.ReductionPercentage)
}

func TestDeduplicator_Deduplicate_PhoneBatch(t *testing.T) {
	// Reordered words only reach 20/36 on the alignment ratio, so the two
	// Galaxy listings merge below that threshold and stay apart above it.
	t.Run("threshold 0.8 merges the iPhone pair", func(t *testing.T) {
		d := newTestDeduplicator(t, 0.8)

		result, stats := d.Deduplicate(records(phoneBatch...))

		assert.Equal(t, 5, stats.OriginalCount)
		assert.Equal(t, 1, stats.DuplicateGroupCount)
		assert.Equal(t, 1, stats.ProductsRemoved)
		assert.Equal(t, 4, stats.FinalCount)
		require.Len(t, result, 4)
		assert.Equal(t, "Samsung Galaxy S24", result[0].Name)
		assert.Equal(t, "Galaxy S24 Samsung", result[1].Name)
		assert.Equal(t, "MacBook Pro M3", result[2].Name)
		assert.Equal(t, "iPhone 16 128GB Preto", result[3].Name)
		assert.Equal(t, 2, result[3].DuplicateCount)
	})

	t.Run("threshold 0.55 merges both pairs", func(t *testing.T) {
		d := newTestDeduplicator(t, 0.55)

		result, stats := d.Deduplicate(records(phoneBatch...))

		assert.Equal(t, 5, stats.OriginalCount)
		assert.Equal(t, 2, stats.DuplicateGroupCount)
		assert.Equal(t, 2, stats.ProductsRemoved)
		assert.Equal(t, 2, stats.ProductsMerged)
		assert.Equal(t, 3, stats.FinalCount)
		assert.InDelta(t, 40.0, stats.ReductionPercentage, 1e-9)
		require.Len(t, result, 3)
		assert.Equal(t, "MacBook Pro M3", result[0].Name)
		assert.Equal(t, "iPhone 16 128GB Preto", result[1].Name)
		assert.Equal(t, "Samsung Galaxy S24", result[2].Name)
	})
}

func TestDeduplicator_Deduplicate_Conservation(t *testing.T) {
	for _, th := range []float64{0.3, 0.5, 0.8, 0.85, 1} {
		d := newTestDeduplicator(t, th)
		input := records(append(append([]string{}, catalogue...), phoneBatch...)...)

		result, stats := d.Deduplicate(input)

		assert.Equal(t, stats.OriginalCount, stats.FinalCount+stats.ProductsRemoved, "threshold %v", th)
		assert.LessOrEqual(t, stats.FinalCount, stats.OriginalCount)
		assert.Len(t, result, stats.FinalCount)
		assert.Equal(t, stats.DuplicateGroupCount, stats.ProductsMerged)
	}
}

func TestDeduplicator_Deduplicate_UngroupedPreserved(t *testing.T) {
	d := newTestDeduplicator(t, domain.DefaultSimilarityThreshold)
	input := []domain.ProductRecord{
		{Name: "MacBook Pro M3", Price: decimal.NewFromInt(8000), Store: "Loja A", Source: "loja_a"},
	}

	result, _ := d.Deduplicate(input)

	require.Len(t, result, 1)
	assert.Equal(t, input[0], result[0])
}

func TestDeduplicator_FindPriceNeighbours(t *testing.T) {
	d := newTestDeduplicator(t, 0.8)
	input := []domain.ProductRecord{
		{Name: "iPhone 16 128GB Preto", Price: decimal.NewFromInt(4500)},
		{Name: "Mouse Gamer RGB", Price: decimal.NewFromInt(100)},
		{Name: "iPhone 16 - 128GB - Branco", Price: decimal.RequireFromString("4500.50")},
		{Name: "iPhone 16", Price: decimal.NewFromInt(9000)},
		{Name: "Mouse Gamer RGB", Price: decimal.Zero},
	}

	pairs := d.FindPriceNeighbours(input, 0.05)

	require.Len(t, pairs, 1)
	assert.Equal(t, "iPhone 16 128GB Preto", pairs[0].First.Name)
	assert.Equal(t, "iPhone 16 - 128GB - Branco", pairs[0].Second.Name)
	assert.InDelta(t, 1.0, pairs[0].Similarity, 1e-9)
}
