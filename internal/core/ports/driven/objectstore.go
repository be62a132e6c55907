package driven

import (
	"context"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
)

// ObjectStore is the key-value store that product records are written to,
// plus the blob store their images are copied into.
// Implementations wrap transport failures in domain.ErrTransientStore.
type ObjectStore interface {
	// Get retrieves the record stored under key.
	// Returns domain.ErrNotFound if the key does not exist.
	Get(ctx context.Context, key string) (*domain.ProductRecord, error)

	// Put writes record under key, replacing any existing value.
	Put(ctx context.Context, key string, record *domain.ProductRecord) error

	// ListKeys returns up to limit keys starting with prefix.
	// An empty prefix lists every key.
	ListKeys(ctx context.Context, prefix string, limit int) ([]domain.KeyInfo, error)

	// DeleteKeys removes the given keys and returns how many were deleted.
	// Missing keys are not an error.
	DeleteKeys(ctx context.Context, keys []string) (int, error)

	// UploadBlob fetches the bytes at sourceURL, stores them and returns a
	// URL for the stored copy. nameHint seeds the blob key.
	// Failures wrap domain.ErrImageUpload.
	UploadBlob(ctx context.Context, sourceURL, nameHint string) (string, error)
}
