package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/adapters/driven/storage/memory"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
)

func noEnv(string) string { return "" }

func TestWire_StorageUnavailable(t *testing.T) {
	cfg := memory.NewConfigStore()
	require.NoError(t, cfg.Set("storage.backend", "cloudflare"))

	svc, closeStorage, err := wire(context.Background(), cfg, noEnv)
	require.NoError(t, err)
	defer closeStorage()

	assert.NotNil(t, svc.Settings)
	assert.NotNil(t, svc.OpenFile)
	require.NotNil(t, svc.NewDeduplicator)
	d, err := svc.NewDeduplicator(0.9)
	require.NoError(t, err)
	assert.NotNil(t, d)

	assert.Nil(t, svc.Writer)
	assert.Nil(t, svc.NewAggregator)
	assert.Nil(t, svc.NewScheduler)
	assert.Nil(t, svc.Backups)

	require.NoError(t, svc.Settings.Set("storage.backend", "memory"))
	assert.Equal(t, "memory", cfg.GetString("storage.backend"))
}

func TestWire_MemoryBackend(t *testing.T) {
	cfg := memory.NewConfigStore()
	require.NoError(t, cfg.Set("storage.backend", "memory"))
	require.NoError(t, cfg.Set("backup.dir", t.TempDir()))

	svc, closeStorage, err := wire(context.Background(), cfg, noEnv)
	require.NoError(t, err)
	defer closeStorage()

	assert.NotNil(t, svc.Settings)
	assert.NotNil(t, svc.Writer)
	assert.NotNil(t, svc.NewAggregator)
	assert.NotNil(t, svc.NewScheduler)
	assert.NotNil(t, svc.Backups)
}

func TestWire_InvalidSettings(t *testing.T) {
	cfg := memory.NewConfigStore()
	require.NoError(t, cfg.Set("storage.backend", "redis"))

	_, _, err := wire(context.Background(), cfg, noEnv)

	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}
