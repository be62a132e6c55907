package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/ports/driven"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/ports/driving"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/logger"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/metrics"
)

// Ensure ProductWriter implements the interface.
var _ driving.ProductWriter = (*ProductWriter)(nil)

// DefaultSnapshotSampleSize caps how many stored records a post-batch
// snapshot reads back.
const DefaultSnapshotSampleSize = 100

// WriterConfig configures a ProductWriter.
type WriterConfig struct {
	// Protection writes a version backup before overwriting an entry.
	Protection bool

	// UploadImages copies ImageURL to blob storage when ImageR2URL is unset.
	UploadImages bool

	// SampleSize caps the post-batch snapshot. Zero uses the default.
	SampleSize int

	// Clock is used for timestamps and key salts. Nil uses time.Now.
	Clock func() time.Time
}

// ProductWriter upserts products into an object store while keeping their
// provenance: the creation time of an entry survives every later write and
// its update count grows by one per write.
//
// Writes are check-then-act with no conditional put, so a single writer
// process is assumed.
type ProductWriter struct {
	store  driven.ObjectStore
	backup driven.BackupSink
	ids    *IDGenerator
	cfg    WriterConfig
	now    func() time.Time
}

// NewProductWriter creates a writer. backup may be nil, which disables
// version backups and post-batch snapshots.
func NewProductWriter(store driven.ObjectStore, backup driven.BackupSink, cfg WriterConfig) *ProductWriter {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = DefaultSnapshotSampleSize
	}
	return &ProductWriter{
		store:  store,
		backup: backup,
		ids:    NewIDGenerator(cfg.Clock),
		cfg:    cfg,
		now:    cfg.Clock,
	}
}

// StoreProduct upserts a single record and updates it in place with its
// key, provenance counters and uploaded image URL.
func (w *ProductWriter) StoreProduct(
	ctx context.Context,
	record *domain.ProductRecord,
	source string,
) (domain.StoreOutcome, error) {
	// 1. Validate
	if strings.TrimSpace(record.Name) == "" {
		return domain.OutcomeCreated, fmt.Errorf("%w: product name is required", domain.ErrValidation)
	}

	// 2. Derive key
	key := w.ids.Generate(record.Name, source, domain.IdentityContextOf(record))

	// 3. Check for an existing entry
	existing, err := w.store.Get(ctx, key)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.OutcomeCreated, fmt.Errorf("get %s: %w", key, transient(err))
	}
	if errors.Is(err, domain.ErrNotFound) {
		existing = nil
	}

	// 4. Merge provenance
	now := w.now()
	outcome := domain.OutcomeCreated
	if existing != nil {
		outcome = domain.OutcomeUpdated
		record.CreatedAt = existing.CreatedAt
		if record.CreatedAt == nil {
			record.CreatedAt = &now
		}
		record.UpdateCount = existing.UpdateCount + 1
		logger.Debug("Existing product found: %s (update %d)", key, record.UpdateCount)
	} else {
		record.CreatedAt = &now
		record.UpdateCount = 1
	}

	// 5. Upload image
	if w.cfg.UploadImages && record.ImageR2URL == "" && record.ImageURL != "" {
		url, err := w.store.UploadBlob(ctx, record.ImageURL, record.Name)
		metrics.RecordImageUpload(err == nil && url != "")
		if err != nil {
			logger.Warn("Image upload failed for %s: %v", key, err)
		} else {
			record.ImageR2URL = url
		}
	}

	// 6. Stamp
	record.ProductID = key
	record.LastUpdated = &now
	record.Source = source

	// 7. Protect the previous value
	if existing != nil && w.cfg.Protection && w.backup != nil {
		_, err := w.backup.Version(ctx, key, existing, record)
		metrics.RecordBackup("version", err == nil)
		if err != nil {
			logger.Warn("Version backup failed for %s: %v", key, err)
		}
	}

	// 8. Write
	if err := w.store.Put(ctx, key, record); err != nil {
		return outcome, fmt.Errorf("put %s: %w", key, transient(err))
	}
	return outcome, nil
}

// StoreProductsBatch upserts records in input order. Records are updated in
// place. A cancelled context stops the batch before the next record and the
// remaining records count as failed.
func (w *ProductWriter) StoreProductsBatch(
	ctx context.Context,
	records []domain.ProductRecord,
	source string,
) domain.BatchResult {
	start := time.Now()
	result := domain.BatchResult{
		Total:  len(records),
		Errors: []string{},
	}

	logger.Info("Storing %d products for source %s", len(records), source)

	written := make([]string, 0, len(records))
	for i := range records {
		if err := ctx.Err(); err != nil {
			remaining := len(records) - i
			result.Failed += remaining
			result.Errors = append(result.Errors,
				fmt.Sprintf("batch stopped with %d records left: %v", remaining, err))
			break
		}

		record := &records[i]
		hadImage := record.ImageR2URL != ""

		outcome, err := w.StoreProduct(ctx, record, source)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("record %d (%q): %v", i, record.Name, err))
			metrics.RecordStore(source, "failed")
			logger.Debug("Failed to store record %d: %v", i, err)
			continue
		}

		result.Successful++
		written = append(written, record.ProductID)
		if outcome == domain.OutcomeUpdated {
			result.UpdatedProducts++
		} else {
			result.NewProducts++
		}
		if !hadImage && record.ImageR2URL != "" {
			result.ImagesUploaded++
		}
		metrics.RecordStore(source, outcome.String())
	}

	if result.Successful > 0 && w.backup != nil {
		locator, err := w.snapshot(ctx, source, written)
		metrics.RecordBackup("snapshot", err == nil)
		if err != nil {
			logger.Warn("Backup after batch failed: %v", err)
		} else {
			result.BackupLocator = locator
		}
	}

	elapsed := time.Since(start)
	result.DurationSeconds = elapsed.Seconds()
	metrics.RecordBatch(source, elapsed)

	logger.Info("Batch complete: %d stored (%d new, %d updated), %d failed",
		result.Successful, result.NewProducts, result.UpdatedProducts, result.Failed)

	return result
}

// snapshot backs up the entries this batch wrote, latest first, capped at
// the sample size. A short sample is topped up with other entries stored
// under source.
func (w *ProductWriter) snapshot(ctx context.Context, source string, written []string) (string, error) {
	limit := w.cfg.SampleSize
	seen := make(map[string]bool, len(written))
	keys := make([]string, 0, min(limit, len(written)))
	for i := len(written) - 1; i >= 0 && len(keys) < limit; i-- {
		if !seen[written[i]] {
			seen[written[i]] = true
			keys = append(keys, written[i])
		}
	}

	if len(keys) < limit {
		listed, err := w.store.ListKeys(ctx, source+"_", limit+len(keys))
		if err != nil {
			return "", fmt.Errorf("%w: list keys: %w", domain.ErrBackup, err)
		}
		for _, k := range listed {
			if !seen[k.Name] && ownedBy(k.Name, source) {
				seen[k.Name] = true
				keys = append(keys, k.Name)
			}
		}
	}

	records, err := w.readKeys(ctx, keys, limit)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrBackup, err)
	}
	if len(records) == 0 {
		return "", fmt.Errorf("%w: no stored products under %s", domain.ErrBackup, source)
	}

	locator, err := w.backup.Snapshot(ctx, records)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrBackup, err)
	}
	return locator, nil
}

// ownedBy reports whether key was generated for source. Keys are
// {source}_{digest}_{salt}, so "b2drop_legacy_..." is not a b2drop key.
func ownedBy(key, source string) bool {
	rest, ok := strings.CutPrefix(key, source+"_")
	return ok && strings.Count(rest, "_") == 1
}

// Statistics summarises up to limit stored products under prefix.
// Prices that are not positive are left out of the price figures.
func (w *ProductWriter) Statistics(ctx context.Context, prefix string, limit int) (*domain.StoreStatistics, error) {
	records, err := w.readSample(ctx, prefix, limit)
	if err != nil {
		return nil, err
	}

	stats := &domain.StoreStatistics{
		Total:      len(records),
		Categories: make(map[string]int),
	}

	var sum float64
	var priced int
	for i := range records {
		category := records[i].Category
		if category == "" {
			category = domain.DefaultCategory
		}
		stats.Categories[category]++

		if !records[i].HasPositivePrice() {
			continue
		}
		price := records[i].Price.InexactFloat64()
		if priced == 0 || price < stats.MinPrice {
			stats.MinPrice = price
		}
		if price > stats.MaxPrice {
			stats.MaxPrice = price
		}
		sum += price
		priced++
	}
	if priced > 0 {
		stats.AveragePrice = sum / float64(priced)
	}
	return stats, nil
}

// readSample lists keys under prefix and reads back the product entries.
// Entries that vanish or carry no name are skipped.
func (w *ProductWriter) readSample(ctx context.Context, prefix string, limit int) ([]domain.ProductRecord, error) {
	listed, err := w.store.ListKeys(ctx, prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	keys := make([]string, 0, len(listed))
	for _, k := range listed {
		keys = append(keys, k.Name)
	}
	return w.readKeys(ctx, keys, limit)
}

// readKeys loads up to limit records in the order given. Keys that vanished or
// hold no product are skipped.
func (w *ProductWriter) readKeys(ctx context.Context, keys []string, limit int) ([]domain.ProductRecord, error) {
	records := make([]domain.ProductRecord, 0, len(keys))
	for _, k := range keys {
		if len(records) >= limit {
			break
		}
		rec, err := w.store.Get(ctx, k)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", k, err)
		}
		if rec.Name == "" {
			continue
		}
		records = append(records, *rec)
	}
	return records, nil
}

// transient marks a store error as transient unless it already is.
func transient(err error) error {
	if errors.Is(err, domain.ErrTransientStore) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrTransientStore, err)
}
