package cloudflare

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvAPIToken     = "CLOUDFLARE_API_TOKEN"
	EnvAccountID    = "CLOUDFLARE_ACCOUNT_ID"
	EnvNamespaceID  = "CLOUDFLARE_KV_NAMESPACE_ID"
	EnvBucketName   = "CLOUDFLARE_R2_BUCKET_NAME"
	EnvPublicDomain = "CLOUDFLARE_R2_PUBLIC_DOMAIN"
)

// DefaultBaseURL is the Cloudflare v4 API root.
const DefaultBaseURL = "https://api.cloudflare.com/client/v4"

// Config holds credentials and identifiers for the KV namespace and R2 bucket.
type Config struct {
	APIToken     string
	AccountID    string
	NamespaceID  string
	BucketName   string
	PublicDomain string

	// BaseURL overrides DefaultBaseURL. Used by tests.
	BaseURL string

	RequestsPerSecond float64
	Burst             int
}

// ConfigFromEnv reads the CLOUDFLARE_* variables.
// A nil getenv uses os.Getenv.
func ConfigFromEnv(getenv func(string) string) Config {
	if getenv == nil {
		getenv = os.Getenv
	}
	return Config{
		APIToken:     getenv(EnvAPIToken),
		AccountID:    getenv(EnvAccountID),
		NamespaceID:  getenv(EnvNamespaceID),
		BucketName:   getenv(EnvBucketName),
		PublicDomain: getenv(EnvPublicDomain),
	}
}

// Validate reports every missing field in one ErrConfiguration.
func (c Config) Validate() error {
	var missing []string
	for name, v := range map[string]string{
		EnvAPIToken:     c.APIToken,
		EnvAccountID:    c.AccountID,
		EnvNamespaceID:  c.NamespaceID,
		EnvBucketName:   c.BucketName,
		EnvPublicDomain: c.PublicDomain,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w: missing %s", domain.ErrConfiguration, strings.Join(missing, ", "))
}

func (c Config) accountURL() string {
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return strings.TrimRight(base, "/") + "/accounts/" + c.AccountID
}

// publicURL returns the URL an R2 object is served from.
func (c Config) publicURL(key string) string {
	domain := strings.TrimPrefix(strings.TrimPrefix(c.PublicDomain, "https://"), "http://")
	return "https://" + strings.TrimRight(domain, "/") + "/" + key
}
