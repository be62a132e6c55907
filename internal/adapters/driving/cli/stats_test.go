package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
)

func TestStatsCmd_Use(t *testing.T) {
	assert.Equal(t, "stats", statsCmd.Use)
}

func TestStatsCmd_AfterImport(t *testing.T) {
	setupServices(t)
	_, err := execute(t, "import", writeJSON(t, sampleProducts))
	require.NoError(t, err)

	out, err := execute(t, "stats", "--prefix", "b2drop_")

	require.NoError(t, err)
	assert.Contains(t, out, "Total: 2")
	assert.Contains(t, out, "Price range: 79.90 - 250.00")
	assert.Contains(t, out, "Categories")
	assert.Contains(t, out, "Home: 1")
	assert.Contains(t, out, "Other: 1")
}

func TestStatsCmd_JSON(t *testing.T) {
	setupServices(t)
	_, err := execute(t, "import", writeJSON(t, sampleProducts))
	require.NoError(t, err)

	out, err := execute(t, "stats", "--json", "--limit", "1")
	require.NoError(t, err)

	var stats domain.StoreStatistics
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 1, stats.Total)
}

func TestStatsCmd_Empty(t *testing.T) {
	setupServices(t)

	out, err := execute(t, "stats")

	require.NoError(t, err)
	assert.Contains(t, out, "Total: 0")
	assert.NotContains(t, out, "Categories")
}

func TestStatsCmd_NotConfigured(t *testing.T) {
	SetServices(Services{})

	_, err := execute(t, "stats")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "product store not configured")
}
