package driven

import (
	"context"
	"time"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
)

// BackupSink persists point-in-time copies of product records.
// Callers treat every error as non-fatal.
type BackupSink interface {
	// Snapshot persists records and returns a locator for the copy.
	Snapshot(ctx context.Context, records []domain.ProductRecord) (string, error)

	// Version records the transition of key from old to updated before the
	// updated record overwrites it. Returns a locator for the version.
	Version(ctx context.Context, key string, old, updated *domain.ProductRecord) (string, error)
}

// BackupMaintainer is implemented by sinks that can expire old copies.
type BackupMaintainer interface {
	// Cleanup removes snapshots and versions older than maxAge and returns
	// how many were removed.
	Cleanup(ctx context.Context, maxAge time.Duration) (int, error)
}

// BackupArchive is a sink whose copies can be listed and read back.
type BackupArchive interface {
	BackupMaintainer

	// Restore reads the records of the snapshot at locator.
	Restore(locator string) ([]domain.ProductRecord, error)

	// Inventory describes the snapshots and versions currently kept.
	Inventory() (domain.BackupInventory, error)
}
