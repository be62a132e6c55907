package driven

import (
	"context"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
)

// Connector produces raw product records from a single source.
// Each connector (JSON export, storefront API, scraper) implements this
// interface. Records are validated at this boundary: a connector never
// yields a record with an empty name.
type Connector interface {
	// Name identifies the source, e.g. "b2drop" or "google_trending".
	Name() string

	// Fetch streams records from the source.
	// Both channels are closed when the fetch ends. Errors sent on the
	// error channel are per-record unless the record channel closes.
	Fetch(ctx context.Context) (<-chan domain.ProductRecord, <-chan error)

	// Close releases resources.
	Close() error
}
