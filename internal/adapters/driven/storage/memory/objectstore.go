package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/adapters/driven/storage/blob"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/ports/driven"
)

// Ensure ObjectStore implements the interface.
var _ driven.ObjectStore = (*ObjectStore)(nil)

// Failures injects errors into an ObjectStore. Nil fields never fail.
type Failures struct {
	Get    error
	List   error
	Upload error

	// Put is consulted before every write.
	Put func(key string, record *domain.ProductRecord) error
}

// ObjectStore is an in-memory implementation of driven.ObjectStore.
// Values are kept as JSON so reads never alias earlier writes.
type ObjectStore struct {
	mu       sync.RWMutex
	values   map[string][]byte
	blobs    map[string]*blob.Blob
	fetcher  *blob.Fetcher
	failures Failures
	puts     int
}

// NewObjectStore creates a new in-memory object store.
// A nil fetcher uses blob.NewFetcher(nil).
func NewObjectStore(fetcher *blob.Fetcher) *ObjectStore {
	if fetcher == nil {
		fetcher = blob.NewFetcher(nil)
	}
	return &ObjectStore{
		values:  make(map[string][]byte),
		blobs:   make(map[string]*blob.Blob),
		fetcher: fetcher,
	}
}

// InjectFailures replaces the configured failures.
func (s *ObjectStore) InjectFailures(f Failures) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = f
}

// Get retrieves the record stored under key.
func (s *ObjectStore) Get(_ context.Context, key string) (*domain.ProductRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failures.Get != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTransientStore, s.failures.Get)
	}
	data, ok := s.values[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	var record domain.ProductRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	return &record, nil
}

// Put writes record under key.
func (s *ObjectStore) Put(_ context.Context, key string, record *domain.ProductRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures.Put != nil {
		if err := s.failures.Put(key, record); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrTransientStore, err)
		}
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	s.values[key] = data
	s.puts++
	return nil
}

// ListKeys returns up to limit keys with prefix, in key order.
func (s *ObjectStore) ListKeys(_ context.Context, prefix string, limit int) ([]domain.KeyInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failures.List != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTransientStore, s.failures.List)
	}

	names := make([]string, 0, len(s.values))
	for k := range s.values {
		if strings.HasPrefix(k, prefix) {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}

	keys := make([]domain.KeyInfo, len(names))
	for i, n := range names {
		keys[i] = domain.KeyInfo{Name: n}
	}
	return keys, nil
}

// DeleteKeys removes keys and returns how many existed.
func (s *ObjectStore) DeleteKeys(_ context.Context, keys []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for _, k := range keys {
		if _, ok := s.values[k]; ok {
			delete(s.values, k)
			deleted++
		}
	}
	return deleted, nil
}

// UploadBlob fetches sourceURL and keeps the bytes under images/{name}.{ext}.
func (s *ObjectStore) UploadBlob(ctx context.Context, sourceURL, nameHint string) (string, error) {
	s.mu.RLock()
	injected := s.failures.Upload
	s.mu.RUnlock()
	if injected != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrImageUpload, injected)
	}

	b, err := s.fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		return "", err
	}

	key := blob.ObjectKey(nameHint, b.ContentType)
	s.mu.Lock()
	s.blobs[key] = b
	s.mu.Unlock()
	return blob.Locator(key), nil
}

// Blob returns a stored blob by key. Useful for testing.
func (s *ObjectStore) Blob(key string) (*blob.Blob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[key]
	return b, ok
}

// Len returns the number of stored values.
func (s *ObjectStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Puts returns the number of successful writes.
func (s *ObjectStore) Puts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts
}
