package driven

// ConfigStore holds flat dot-keyed settings such as "dedup.threshold".
// Typed getters return the zero value for missing keys or values of
// another type.
type ConfigStore interface {
	Get(key string) (any, bool)
	GetString(key string) string
	GetInt(key string) int
	GetFloat(key string) float64
	GetBool(key string) bool

	// Keys returns the sorted keys that start with prefix.
	Keys(prefix string) []string

	// Set stores a value and persists it immediately.
	Set(key string, value any) error

	// Path locates the backing file for error messages.
	Path() string
}
