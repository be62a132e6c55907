package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/ports/driven"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
const (
	KeyDedupThreshold      = "dedup.threshold"
	KeyDedupPriceTolerance = "dedup.price_tolerance"
	KeyDedupSourceTrust    = "dedup.source_trust"
	KeyStorageBackend      = "storage.backend"
	KeyStorageDataDir      = "storage.data_dir"
	KeyStoragePostgresDSN  = "storage.postgres_dsn"
	KeyStorageUploadImages = "storage.upload_images"
	KeyProtectionEnabled   = "protection.enabled"
	KeyBackupDir           = "backup.dir"
	KeyBackupSampleSize    = "backup.sample_size"
	KeyBackupRetentionDays = "backup.retention_days"
	KeySchedulerEnabled    = "scheduler.enabled"
	KeySchedulerInterval   = "scheduler.interval"
	KeyCloudflareRPS       = "cloudflare.requests_per_second"
	KeyCloudflareBurst     = "cloudflare.burst"
)

// taskKeys maps task IDs to their TOML section under [scheduler].
var taskKeys = map[string]string{
	domain.TaskIDProductAggregation: "product_aggregation",
	domain.TaskIDBackupCleanup:      "backup_cleanup",
}

// setting is a single key and the value persisted for it.
type setting struct {
	key   string
	value any
}

// SettingsService manages importer settings.
type SettingsService struct {
	configStore driven.ConfigStore
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{configStore: configStore}
}

// LoadSettings reads settings from store and validates them.
func LoadSettings(store driven.ConfigStore) (domain.Settings, error) {
	s, err := NewSettingsService(store).Get()
	if err != nil {
		return domain.Settings{}, err
	}
	return *s, nil
}

// Get retrieves the current settings. Keys that are absent keep their
// defaults.
func (s *SettingsService) Get() (*domain.Settings, error) {
	settings := domain.DefaultSettings()

	settings.Dedup.Threshold = s.getFloat(KeyDedupThreshold, settings.Dedup.Threshold)
	settings.Dedup.PriceTolerance = s.getFloat(KeyDedupPriceTolerance, settings.Dedup.PriceTolerance)
	trustPrefix := KeyDedupSourceTrust + "."
	for _, key := range s.configStore.Keys(trustPrefix) {
		source := strings.TrimPrefix(key, trustPrefix)
		settings.Dedup.SourceTrust[source] = s.getFloat(key, settings.Dedup.SourceTrust[source])
	}

	if backend := s.configStore.GetString(KeyStorageBackend); backend != "" {
		settings.Storage.Backend = domain.StorageBackend(strings.ToLower(backend))
	}
	settings.Storage.DataDir = s.getString(KeyStorageDataDir, settings.Storage.DataDir)
	settings.Storage.PostgresDSN = s.getString(KeyStoragePostgresDSN, settings.Storage.PostgresDSN)
	settings.Storage.UploadImages = s.getBool(KeyStorageUploadImages, settings.Storage.UploadImages)

	settings.Protection.Enabled = s.getBool(KeyProtectionEnabled, settings.Protection.Enabled)

	settings.Backup.Dir = s.getString(KeyBackupDir, settings.Backup.Dir)
	settings.Backup.SampleSize = s.getInt(KeyBackupSampleSize, settings.Backup.SampleSize)
	settings.Backup.RetentionDays = s.getInt(KeyBackupRetentionDays, settings.Backup.RetentionDays)

	settings.Cloudflare.RequestsPerSecond = s.getFloat(KeyCloudflareRPS, settings.Cloudflare.RequestsPerSecond)
	settings.Cloudflare.Burst = s.getInt(KeyCloudflareBurst, settings.Cloudflare.Burst)

	scheduler, err := s.GetSchedulerConfig()
	if err != nil {
		return nil, err
	}
	settings.Scheduler = scheduler

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", s.configStore.Path(), err)
	}
	return &settings, nil
}

// Save persists settings.
func (s *SettingsService) Save(settings *domain.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	values := []setting{
		{KeyDedupThreshold, settings.Dedup.Threshold},
		{KeyDedupPriceTolerance, settings.Dedup.PriceTolerance},
		{KeyStorageBackend, settings.Storage.Backend.String()},
		{KeyStorageDataDir, settings.Storage.DataDir},
		{KeyStoragePostgresDSN, settings.Storage.PostgresDSN},
		{KeyStorageUploadImages, settings.Storage.UploadImages},
		{KeyProtectionEnabled, settings.Protection.Enabled},
		{KeyBackupDir, settings.Backup.Dir},
		{KeyBackupSampleSize, settings.Backup.SampleSize},
		{KeyBackupRetentionDays, settings.Backup.RetentionDays},
		{KeySchedulerEnabled, settings.Scheduler.Enabled},
		{KeyCloudflareRPS, settings.Cloudflare.RequestsPerSecond},
		{KeyCloudflareBurst, settings.Cloudflare.Burst},
	}
	for source, bonus := range settings.Dedup.SourceTrust {
		values = append(values, setting{KeyDedupSourceTrust + "." + source, bonus})
	}
	for taskID, section := range taskKeys {
		cfg := settings.Scheduler.GetTaskConfig(taskID)
		prefix := "scheduler." + section + "."
		values = append(values,
			setting{prefix + "enabled", cfg.Enabled},
			setting{prefix + "interval", cfg.Interval.String()},
		)
	}

	for _, v := range values {
		if err := s.configStore.Set(v.key, v.value); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}
	return nil
}

// Set parses value according to the type of key and stores it. Values
// that would leave the settings invalid are rejected before anything is
// written.
func (s *SettingsService) Set(key, value string) error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	parsed, err := apply(settings, key, strings.TrimSpace(value))
	if err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	return s.configStore.Set(key, parsed)
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.Settings {
	return domain.DefaultSettings()
}

// GetSchedulerConfig returns the scheduler configuration.
// Returns default configuration if nothing is configured.
func (s *SettingsService) GetSchedulerConfig() (domain.SchedulerConfig, error) {
	config := domain.DefaultSchedulerConfig()
	config.Enabled = s.getBool(KeySchedulerEnabled, config.Enabled)

	// scheduler.interval is shorthand for the aggregation interval.
	if interval := s.configStore.GetString(KeySchedulerInterval); interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil {
			return config, fmt.Errorf("%w: %s: %w", domain.ErrConfiguration, KeySchedulerInterval, err)
		}
		task := config.TaskConfigs[domain.TaskIDProductAggregation]
		task.Interval = d
		config.TaskConfigs[domain.TaskIDProductAggregation] = task
	}

	for taskID, section := range taskKeys {
		prefix := "scheduler." + section + "."
		task := config.TaskConfigs[taskID]
		task.Enabled = s.getBool(prefix+"enabled", task.Enabled)

		if interval := s.configStore.GetString(prefix + "interval"); interval != "" {
			d, err := time.ParseDuration(interval)
			if err != nil {
				return config, fmt.Errorf("%w: %sinterval: %w", domain.ErrConfiguration, prefix, err)
			}
			task.Interval = d
		}
		config.TaskConfigs[taskID] = task
	}

	return config, nil
}

func (s *SettingsService) getString(key, defaultVal string) string {
	if val := s.configStore.GetString(key); val != "" {
		return val
	}
	return defaultVal
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	if _, exists := s.configStore.Get(key); exists {
		return s.configStore.GetInt(key)
	}
	return defaultVal
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if _, exists := s.configStore.Get(key); exists {
		return s.configStore.GetFloat(key)
	}
	return defaultVal
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); exists {
		return s.configStore.GetBool(key)
	}
	return defaultVal
}

// apply sets key on settings and returns the value to persist.
//
//nolint:gocyclo // One case per setting
func apply(settings *domain.Settings, key, value string) (any, error) {
	if source, ok := strings.CutPrefix(key, KeyDedupSourceTrust+"."); ok {
		f, err := parseFloat(key, value)
		if err == nil {
			settings.Dedup.SourceTrust[source] = f
		}
		return f, err
	}

	for taskID, section := range taskKeys {
		prefix := "scheduler." + section + "."
		task := settings.Scheduler.TaskConfigs[taskID]
		switch key {
		case prefix + "enabled":
			b, err := parseBool(key, value)
			task.Enabled = b
			settings.Scheduler.TaskConfigs[taskID] = task
			return b, err
		case prefix + "interval":
			d, err := parseDuration(key, value)
			task.Interval = d
			settings.Scheduler.TaskConfigs[taskID] = task
			return value, err
		}
	}

	var err error
	switch key {
	case KeyDedupThreshold:
		settings.Dedup.Threshold, err = parseFloat(key, value)
		return settings.Dedup.Threshold, err
	case KeyDedupPriceTolerance:
		settings.Dedup.PriceTolerance, err = parseFloat(key, value)
		return settings.Dedup.PriceTolerance, err
	case KeyStorageBackend:
		settings.Storage.Backend = domain.StorageBackend(strings.ToLower(value))
		return settings.Storage.Backend.String(), nil
	case KeyStorageDataDir:
		settings.Storage.DataDir = value
		return value, nil
	case KeyStoragePostgresDSN:
		settings.Storage.PostgresDSN = value
		return value, nil
	case KeyStorageUploadImages:
		settings.Storage.UploadImages, err = parseBool(key, value)
		return settings.Storage.UploadImages, err
	case KeyProtectionEnabled:
		settings.Protection.Enabled, err = parseBool(key, value)
		return settings.Protection.Enabled, err
	case KeyBackupDir:
		settings.Backup.Dir = value
		return value, nil
	case KeyBackupSampleSize:
		settings.Backup.SampleSize, err = parseInt(key, value)
		return settings.Backup.SampleSize, err
	case KeyBackupRetentionDays:
		settings.Backup.RetentionDays, err = parseInt(key, value)
		return settings.Backup.RetentionDays, err
	case KeySchedulerEnabled:
		settings.Scheduler.Enabled, err = parseBool(key, value)
		return settings.Scheduler.Enabled, err
	case KeySchedulerInterval:
		task := settings.Scheduler.TaskConfigs[domain.TaskIDProductAggregation]
		task.Interval, err = parseDuration(key, value)
		settings.Scheduler.TaskConfigs[domain.TaskIDProductAggregation] = task
		return value, err
	case KeyCloudflareRPS:
		settings.Cloudflare.RequestsPerSecond, err = parseFloat(key, value)
		return settings.Cloudflare.RequestsPerSecond, err
	case KeyCloudflareBurst:
		settings.Cloudflare.Burst, err = parseInt(key, value)
		return settings.Cloudflare.Burst, err
	default:
		return nil, fmt.Errorf("%w: unknown setting %s", domain.ErrInvalidInput, key)
	}
}

func parseFloat(key, value string) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s expects a number", domain.ErrInvalidInput, key)
	}
	return f, nil
}

func parseInt(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s expects an integer", domain.ErrInvalidInput, key)
	}
	return n, nil
}

func parseBool(key, value string) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%w: %s expects true or false", domain.ErrInvalidInput, key)
	}
	return b, nil
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s expects a duration such as 2h", domain.ErrInvalidInput, key)
	}
	return d, nil
}
