package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageBackend_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		backend  StorageBackend
		expected bool
	}{
		{"memory is valid", StorageMemory, true},
		{"sqlite is valid", StorageSQLite, true},
		{"postgres is valid", StoragePostgres, true},
		{"cloudflare is valid", StorageCloudflare, true},
		{"empty string is invalid", StorageBackend(""), false},
		{"unknown is invalid", StorageBackend("redis"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.backend.IsValid())
		})
	}
}

func TestStorageBackend_Description(t *testing.T) {
	assert.Equal(t, "Cloudflare KV + R2", StorageCloudflare.Description())
	assert.Equal(t, "SQLite (local file)", StorageSQLite.Description())
	assert.Equal(t, unknownDescription, StorageBackend("nope").Description())
	assert.Equal(t, "postgres", StoragePostgres.String())
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()

	assert.InDelta(t, 0.85, s.Dedup.Threshold, 1e-9)
	assert.InDelta(t, 0.05, s.Dedup.PriceTolerance, 1e-9)
	assert.InDelta(t, 0.3, s.Dedup.SourceTrust["google_trending"], 1e-9)
	assert.InDelta(t, 0.2, s.Dedup.SourceTrust["b2drop"], 1e-9)
	assert.Equal(t, StorageSQLite, s.Storage.Backend)
	assert.True(t, s.Protection.Enabled)
	assert.Equal(t, 100, s.Backup.SampleSize)
	assert.Equal(t, 7, s.Backup.RetentionDays)
	require.NoError(t, s.Validate())
}

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr error
	}{
		{"zero threshold", func(s *Settings) { s.Dedup.Threshold = 0 }, ErrInvalidInput},
		{"threshold above one", func(s *Settings) { s.Dedup.Threshold = 1.01 }, ErrInvalidInput},
		{"threshold of one", func(s *Settings) { s.Dedup.Threshold = 1 }, nil},
		{"negative tolerance", func(s *Settings) { s.Dedup.PriceTolerance = -0.1 }, ErrInvalidInput},
		{"unknown backend", func(s *Settings) { s.Storage.Backend = "redis" }, ErrUnsupportedType},
		{"postgres without dsn", func(s *Settings) { s.Storage.Backend = StoragePostgres }, ErrConfiguration},
		{"postgres with dsn", func(s *Settings) {
			s.Storage.Backend = StoragePostgres
			s.Storage.PostgresDSN = "postgres://localhost/products"
		}, nil},
		{"negative sample size", func(s *Settings) { s.Backup.SampleSize = -1 }, ErrInvalidInput},
		{"zero rate", func(s *Settings) { s.Cloudflare.RequestsPerSecond = 0 }, ErrInvalidInput},
		{"short interval", func(s *Settings) {
			s.Scheduler.TaskConfigs[TaskIDProductAggregation] = TaskConfig{Enabled: true, Interval: time.Second}
		}, ErrInvalidInput},
		{"short interval disabled", func(s *Settings) {
			s.Scheduler.TaskConfigs[TaskIDProductAggregation] = TaskConfig{Enabled: false, Interval: time.Second}
		}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
