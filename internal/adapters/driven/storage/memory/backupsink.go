package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/ports/driven"
)

// Ensure BackupSink implements the interface.
var _ driven.BackupSink = (*BackupSink)(nil)

// VersionEntry is one recorded version backup.
type VersionEntry struct {
	Key     string
	Old     domain.ProductRecord
	Updated domain.ProductRecord
}

// BackupSink is an in-memory implementation of driven.BackupSink.
type BackupSink struct {
	mu        sync.Mutex
	snapshots [][]domain.ProductRecord
	versions  []VersionEntry
	err       error
}

// NewBackupSink creates a new in-memory backup sink.
func NewBackupSink() *BackupSink {
	return &BackupSink{}
}

// FailWith makes every later call return err. Nil restores normal operation.
func (s *BackupSink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Snapshot keeps a copy of records.
func (s *BackupSink) Snapshot(_ context.Context, records []domain.ProductRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	copied := make([]domain.ProductRecord, len(records))
	for i := range records {
		copied[i] = records[i].Clone()
	}
	s.snapshots = append(s.snapshots, copied)
	return fmt.Sprintf("memory://snapshots/%d", len(s.snapshots)), nil
}

// Version keeps a copy of the transition.
func (s *BackupSink) Version(_ context.Context, key string, old, updated *domain.ProductRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.versions = append(s.versions, VersionEntry{Key: key, Old: old.Clone(), Updated: updated.Clone()})
	return fmt.Sprintf("memory://versions/%s/%d", key, len(s.versions)), nil
}

// Snapshots returns the recorded snapshots.
func (s *BackupSink) Snapshots() [][]domain.ProductRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]domain.ProductRecord(nil), s.snapshots...)
}

// Versions returns the recorded versions.
func (s *BackupSink) Versions() []VersionEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]VersionEntry(nil), s.versions...)
}
