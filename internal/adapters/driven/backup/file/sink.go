// Package file keeps product backups as JSON documents on the local disk.
//
// Layout under the backup directory:
//
//	daily/products_backup_YYYY-MM-DD.json     one snapshot per day, last write wins
//	versions/{key}_{YYYYMMDD_HHMMSS_mmm}.json  one document per overwritten record
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/ports/driven"
)

const (
	dailyDir    = "daily"
	versionsDir = "versions"
)

// Change classifications.
const (
	ChangeAdded       = "added"
	ChangeRemoved     = "removed"
	ChangeTypeChanged = "type_changed"
	ChangeUpdated     = "updated"
)

var unsafeKey = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

// Sink implements driven.BackupSink and driven.BackupArchive.
type Sink struct {
	dir string
	now func() time.Time
}

var (
	_ driven.BackupSink       = (*Sink)(nil)
	_ driven.BackupArchive    = (*Sink)(nil)
)

// NewSink creates the directory layout under dir.
// A nil now uses time.Now.
func NewSink(dir string, now func() time.Time) (*Sink, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, ".b2drop", "backups")
	}
	for _, sub := range []string{dailyDir, versionsDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("%w: creating %s: %w", domain.ErrBackup, sub, err)
		}
	}
	if now == nil {
		now = time.Now
	}
	return &Sink{dir: dir, now: now}, nil
}

// Dir returns the backup root.
func (s *Sink) Dir() string {
	return s.dir
}

// PriceRange summarises prices in a snapshot.
type PriceRange struct {
	Min decimal.Decimal `json:"min"`
	Max decimal.Decimal `json:"max"`
	Avg decimal.Decimal `json:"avg"`
}

// SnapshotStats is the statistics block of a snapshot document.
type SnapshotStats struct {
	Total      int            `json:"total"`
	Sources    map[string]int `json:"sources,omitempty"`
	Categories map[string]int `json:"categories,omitempty"`
	PriceRange *PriceRange    `json:"price_range,omitempty"`
}

// SnapshotDocument is the JSON written by Snapshot.
type SnapshotDocument struct {
	ID            string                 `json:"id"`
	Timestamp     time.Time              `json:"timestamp"`
	TotalProducts int                    `json:"total_products"`
	Products      []domain.ProductRecord `json:"products"`
	Statistics    SnapshotStats          `json:"statistics"`
}

// Change is one differing field between two versions of a record.
type Change struct {
	Field      string `json:"field"`
	OldValue   any    `json:"old_value"`
	NewValue   any    `json:"new_value"`
	ChangeType string `json:"change_type"`
}

// VersionDocument is the JSON written by Version.
type VersionDocument struct {
	ProductID  string               `json:"product_id"`
	Timestamp  string               `json:"timestamp"`
	OldVersion domain.ProductRecord `json:"old_version"`
	NewVersion domain.ProductRecord `json:"new_version"`
	Changes    []Change             `json:"changes"`
}

// Snapshot writes today's snapshot, replacing an earlier one from the same day.
func (s *Sink) Snapshot(ctx context.Context, records []domain.ProductRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	now := s.now()
	doc := SnapshotDocument{
		ID:            uuid.NewString(),
		Timestamp:     now,
		TotalProducts: len(records),
		Products:      records,
		Statistics:    Stats(records),
	}
	if doc.Products == nil {
		doc.Products = []domain.ProductRecord{}
	}

	path := filepath.Join(s.dir, dailyDir, "products_backup_"+now.Format("2006-01-02")+".json")
	if err := writeJSON(path, doc); err != nil {
		return "", err
	}
	return path, nil
}

// Version writes the old and updated record with a field-level diff.
func (s *Sink) Version(ctx context.Context, key string, old, updated *domain.ProductRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if old == nil || updated == nil {
		return "", fmt.Errorf("%w: version of %s needs both records", domain.ErrBackup, key)
	}

	changes, err := DetectChanges(old, updated)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrBackup, err)
	}

	stamp := versionStamp(s.now())
	doc := VersionDocument{
		ProductID:  key,
		Timestamp:  stamp,
		OldVersion: *old,
		NewVersion: *updated,
		Changes:    changes,
	}
	path := filepath.Join(s.dir, versionsDir, unsafeKey.ReplaceAllString(key, "_")+"_"+stamp+".json")
	if err := writeJSON(path, doc); err != nil {
		return "", err
	}
	return path, nil
}

// versionStamp formats t as YYYYMMDD_HHMMSS_mmm.
func versionStamp(t time.Time) string {
	return fmt.Sprintf("%s_%03d", t.Format("20060102_150405"), t.Nanosecond()/int(time.Millisecond))
}

// Restore reads the products of a snapshot document.
func (s *Sink) Restore(path string) ([]domain.ProductRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrBackup, err)
	}

	var doc struct {
		Products *[]domain.ProductRecord `json:"products"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %w", domain.ErrInvalidInput, path, err)
	}
	if doc.Products == nil {
		return nil, fmt.Errorf("%w: %s has no products", domain.ErrInvalidInput, path)
	}
	return *doc.Products, nil
}

// Cleanup removes snapshots and versions last modified before now-maxAge.
func (s *Sink) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.now().Add(-maxAge)
	removed := 0
	var errs []error
	for _, sub := range []string{dailyDir, versionsDir} {
		entries, err := os.ReadDir(filepath.Join(s.dir, sub))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return removed, err
			}
			info, err := e.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
			if err := os.RemoveAll(filepath.Join(s.dir, sub, e.Name())); err != nil {
				errs = append(errs, err)
				continue
			}
			removed++
		}
	}
	if len(errs) > 0 {
		return removed, fmt.Errorf("%w: %w", domain.ErrBackup, errors.Join(errs...))
	}
	return removed, nil
}

// Inventory lists daily snapshots (newest first) and counts versions.
func (s *Sink) Inventory() (domain.BackupInventory, error) {
	info := domain.BackupInventory{Dir: s.dir}
	for _, sub := range []string{dailyDir, versionsDir} {
		entries, err := os.ReadDir(filepath.Join(s.dir, sub))
		if err != nil {
			return info, fmt.Errorf("%w: %w", domain.ErrBackup, err)
		}
		for _, e := range entries {
			if fi, err := e.Info(); err == nil {
				info.TotalSizeByte += fi.Size()
			}
			if sub == versionsDir {
				info.VersionCount++
			} else if strings.HasSuffix(e.Name(), ".json") {
				info.DailyBackups = append(info.DailyBackups, e.Name())
			}
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(info.DailyBackups)))
	return info, nil
}

// Stats computes the statistics block for records.
func Stats(records []domain.ProductRecord) SnapshotStats {
	stats := SnapshotStats{Total: len(records)}
	if len(records) == 0 {
		return stats
	}
	stats.Sources = make(map[string]int)
	stats.Categories = make(map[string]int)

	var sum decimal.Decimal
	pr := PriceRange{Min: records[0].Price, Max: records[0].Price}
	for _, r := range records {
		if r.Source != "" {
			stats.Sources[r.Source]++
		}
		if r.Category != "" {
			stats.Categories[r.Category]++
		}
		pr.Min = decimal.Min(pr.Min, r.Price)
		pr.Max = decimal.Max(pr.Max, r.Price)
		sum = sum.Add(r.Price)
	}
	pr.Avg = sum.Div(decimal.NewFromInt(int64(len(records)))).Round(2)
	stats.PriceRange = &pr
	return stats
}

// DetectChanges compares the JSON forms of two records field by field.
// Changes are ordered by field name.
func DetectChanges(old, updated *domain.ProductRecord) ([]Change, error) {
	before, err := asMap(old)
	if err != nil {
		return nil, err
	}
	after, err := asMap(updated)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]struct{}, len(before)+len(after))
	for k := range before {
		fields[k] = struct{}{}
	}
	for k := range after {
		fields[k] = struct{}{}
	}
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)

	changes := []Change{}
	for _, f := range names {
		o, n := before[f], after[f]
		if reflect.DeepEqual(o, n) {
			continue
		}
		changes = append(changes, Change{Field: f, OldValue: o, NewValue: n, ChangeType: classify(o, n)})
	}
	return changes, nil
}

func classify(old, updated any) string {
	switch {
	case old == nil:
		return ChangeAdded
	case updated == nil:
		return ChangeRemoved
	case reflect.TypeOf(old) != reflect.TypeOf(updated):
		return ChangeTypeChanged
	default:
		return ChangeUpdated
	}
}

func asMap(r *domain.ProductRecord) (map[string]any, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// writeJSON writes v to a temporary file and renames it into place.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %w", domain.ErrBackup, filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrBackup, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %w", domain.ErrBackup, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %w", domain.ErrBackup, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %w", domain.ErrBackup, err)
	}
	return nil
}
