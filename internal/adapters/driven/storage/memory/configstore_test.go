package memory

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigStore_Set_Update(t *testing.T) {
	store := NewConfigStore()

	require.NoError(t, store.Set("storage.backend", "sqlite"))
	require.NoError(t, store.Set("storage.backend", "cloudflare"))

	val, ok := store.Get("storage.backend")
	assert.True(t, ok)
	assert.Equal(t, "cloudflare", val)
	assert.Equal(t, ":memory:", store.Path())
}

func TestConfigStore_Missing(t *testing.T) {
	store := NewConfigStore()

	_, ok := store.Get("missing")
	assert.False(t, ok)
	assert.Empty(t, store.GetString("missing"))
	assert.Zero(t, store.GetInt("missing"))
	assert.Zero(t, store.GetFloat("missing"))
	assert.False(t, store.GetBool("missing"))
	assert.Empty(t, store.Keys("missing"))
}

func TestConfigStore_TypedGetters(t *testing.T) {
	store := NewConfigStore()
	require.NoError(t, store.Set("dedup.threshold", 0.85))
	require.NoError(t, store.Set("backup.sample_size", 100))
	require.NoError(t, store.Set("cloudflare.burst", int64(7)))
	require.NoError(t, store.Set("storage.backend", "memory"))
	require.NoError(t, store.Set("protection.enabled", true))

	assert.InDelta(t, 0.85, store.GetFloat("dedup.threshold"), 1e-9)
	assert.Equal(t, 100, store.GetInt("backup.sample_size"))
	assert.Equal(t, 7, store.GetInt("cloudflare.burst"))
	assert.InDelta(t, 100.0, store.GetFloat("backup.sample_size"), 1e-9)
	assert.Equal(t, "memory", store.GetString("storage.backend"))
	assert.True(t, store.GetBool("protection.enabled"))

	// Mismatched types read as zero values.
	assert.Zero(t, store.GetInt("storage.backend"))
	assert.Zero(t, store.GetFloat("storage.backend"))
	assert.False(t, store.GetBool("storage.backend"))
	assert.Empty(t, store.GetString("dedup.threshold"))
}

func TestConfigStore_Keys(t *testing.T) {
	store := NewConfigStore()
	require.NoError(t, store.Set("dedup.source_trust.shopify", 0.1))
	require.NoError(t, store.Set("dedup.source_trust.b2drop", 0.2))
	require.NoError(t, store.Set("dedup.threshold", 0.9))

	assert.Equal(t,
		[]string{"dedup.source_trust.b2drop", "dedup.source_trust.shopify"},
		store.Keys("dedup.source_trust."))
	assert.Len(t, store.Keys(""), 3)
}

func TestConfigStore_Concurrency(t *testing.T) {
	store := NewConfigStore()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_ = store.Set("backup.sample_size", n)
		}(i)
		go func() {
			defer wg.Done()
			_ = store.Keys("backup.")
		}()
	}
	wg.Wait()

	_, ok := store.Get("backup.sample_size")
	assert.True(t, ok)
}
