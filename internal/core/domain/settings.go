package domain

import "fmt"

const unknownDescription = "Unknown"

// StorageBackend identifies the object store implementation.
type StorageBackend string

// Available storage backends.
const (
	// StorageMemory keeps everything in process. Useful for dry runs.
	StorageMemory StorageBackend = "memory"

	// StorageSQLite persists to a local SQLite database.
	StorageSQLite StorageBackend = "sqlite"

	// StoragePostgres persists to a shared PostgreSQL database.
	StoragePostgres StorageBackend = "postgres"

	// StorageCloudflare uses Cloudflare Workers KV and R2.
	StorageCloudflare StorageBackend = "cloudflare"
)

// IsValid returns true if the backend is recognised.
func (b StorageBackend) IsValid() bool {
	switch b {
	case StorageMemory, StorageSQLite, StoragePostgres, StorageCloudflare:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (b StorageBackend) String() string {
	return string(b)
}

// Description returns a human-readable description of the backend.
func (b StorageBackend) Description() string {
	switch b {
	case StorageMemory:
		return "In-memory (nothing persisted)"
	case StorageSQLite:
		return "SQLite (local file)"
	case StoragePostgres:
		return "PostgreSQL (shared database)"
	case StorageCloudflare:
		return "Cloudflare KV + R2"
	default:
		return unknownDescription
	}
}

// Settings holds the importer configuration.
type Settings struct {
	Dedup      DedupSettings
	Storage    StorageSettings
	Protection ProtectionSettings
	Backup     BackupSettings
	Scheduler  SchedulerConfig
	Cloudflare CloudflareSettings
}

// DedupSettings configures the duplicate detector.
type DedupSettings struct {
	// Threshold is the name similarity needed to group two records.
	// Valid range (0,1].
	Threshold float64

	// PriceTolerance is the relative band width used when looking for
	// duplicates by price.
	PriceTolerance float64

	// SourceTrust adds a quality bonus for records from trusted sources.
	SourceTrust map[string]float64
}

// StorageSettings selects and configures the object store.
type StorageSettings struct {
	Backend StorageBackend

	// DataDir is where the SQLite database lives. Empty means ~/.b2drop/data.
	DataDir string

	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string

	// UploadImages copies product images to blob storage on write.
	UploadImages bool
}

// ProtectionSettings controls the overwrite protections of the writer.
type ProtectionSettings struct {
	// Enabled turns on version backups on the update path.
	Enabled bool
}

// BackupSettings configures snapshots.
type BackupSettings struct {
	// Dir is the backup root. Empty means ~/.b2drop/backups.
	Dir string

	// SampleSize caps how many recently written records a snapshot holds.
	SampleSize int

	// RetentionDays is how long snapshots and versions are kept.
	RetentionDays int
}

// CloudflareSettings tunes the Cloudflare client.
// Credentials are read from the environment, never from the config file.
type CloudflareSettings struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultSourceTrust returns the built-in source bonuses.
func DefaultSourceTrust() map[string]float64 {
	return map[string]float64{
		"google_trending": 0.3,
		"b2drop":          0.2,
	}
}

// DefaultSettings returns sensible defaults.
func DefaultSettings() Settings {
	return Settings{
		Dedup: DedupSettings{
			Threshold:      DefaultSimilarityThreshold,
			PriceTolerance: 0.05,
			SourceTrust:    DefaultSourceTrust(),
		},
		Storage: StorageSettings{
			Backend:      StorageSQLite,
			UploadImages: true,
		},
		Protection: ProtectionSettings{
			Enabled: true,
		},
		Backup: BackupSettings{
			SampleSize:    100,
			RetentionDays: 7,
		},
		Scheduler: DefaultSchedulerConfig(),
		Cloudflare: CloudflareSettings{
			RequestsPerSecond: 4.0,
			Burst:             8,
		},
	}
}

// Validate checks the settings for out-of-range values.
func (s *Settings) Validate() error {
	if s.Dedup.Threshold <= 0 || s.Dedup.Threshold > 1 {
		return fmt.Errorf("%w: dedup threshold %v outside (0,1]", ErrInvalidInput, s.Dedup.Threshold)
	}
	if s.Dedup.PriceTolerance < 0 {
		return fmt.Errorf("%w: negative price tolerance", ErrInvalidInput)
	}
	if !s.Storage.Backend.IsValid() {
		return fmt.Errorf("%w: storage backend %q", ErrUnsupportedType, s.Storage.Backend)
	}
	if s.Storage.Backend == StoragePostgres && s.Storage.PostgresDSN == "" {
		return fmt.Errorf("%w: postgres backend requires storage.postgres_dsn", ErrConfiguration)
	}
	if s.Backup.SampleSize < 0 {
		return fmt.Errorf("%w: negative backup sample size", ErrInvalidInput)
	}
	if s.Cloudflare.RequestsPerSecond <= 0 || s.Cloudflare.Burst <= 0 {
		return fmt.Errorf("%w: cloudflare rate limit must be positive", ErrInvalidInput)
	}
	for id, task := range s.Scheduler.TaskConfigs {
		if task.Enabled && task.Interval < MinTaskInterval {
			return fmt.Errorf("%w: task %s interval below one minute", ErrInvalidInput, id)
		}
	}
	return nil
}
