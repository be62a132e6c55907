package driving

import "github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"

// SettingsService manages importer settings.
type SettingsService interface {
	// Get returns the stored settings overlaid on the defaults.
	Get() (*domain.Settings, error)

	// Save persists every setting.
	Save(settings *domain.Settings) error

	// Set parses and stores a single setting. The result must validate.
	Set(key, value string) error

	// GetDefaults returns default settings.
	GetDefaults() domain.Settings
}
