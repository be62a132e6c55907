package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/adapters/driven/storage/blob"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/ports/driven"
)

// objectStore implements driven.ObjectStore.
type objectStore struct {
	store *Store
}

var _ driven.ObjectStore = (*objectStore)(nil)

// Get retrieves the record stored under key.
func (s *objectStore) Get(ctx context.Context, key string) (*domain.ProductRecord, error) {
	var data string
	err := s.store.db.QueryRowContext(ctx, "SELECT data FROM products WHERE key = ?", key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, transient("reading product", err)
	}

	var record domain.ProductRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("decoding product %s: %w", key, err)
	}
	return &record, nil
}

// Put writes record under key, replacing any existing row.
func (s *objectStore) Put(ctx context.Context, key string, record *domain.ProductRecord) error {
	if record == nil {
		return domain.ErrInvalidInput
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding product %s: %w", key, err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO products (key, source, name, data, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			source = excluded.source,
			name = excluded.name,
			data = excluded.data,
			updated_at = excluded.updated_at
	`, key, record.Source, record.Name, string(data), time.Now().UTC().Format(time.RFC3339Nano))
	return transient("saving product", err)
}

// ListKeys returns up to limit keys starting with prefix, in key order.
// A non-positive limit lists every match.
func (s *objectStore) ListKeys(ctx context.Context, prefix string, limit int) ([]domain.KeyInfo, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT key, source, updated_at FROM products
		WHERE substr(key, 1, length(?)) = ?
		ORDER BY key
		LIMIT ?
	`, prefix, prefix, limit)
	if err != nil {
		return nil, transient("listing products", err)
	}
	defer rows.Close()

	var keys []domain.KeyInfo
	for rows.Next() {
		var name, source, updated string
		if err := rows.Scan(&name, &source, &updated); err != nil {
			return nil, fmt.Errorf("scanning product key: %w", err)
		}
		keys = append(keys, domain.KeyInfo{
			Name:     name,
			Metadata: map[string]any{"source": source, "updated_at": updated},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, transient("iterating products", err)
	}
	return keys, nil
}

// DeleteKeys removes keys inside one transaction.
func (s *objectStore) DeleteKeys(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, transient("beginning delete", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, "DELETE FROM products WHERE key = ?")
	if err != nil {
		return 0, transient("preparing delete", err)
	}
	defer stmt.Close()

	deleted := 0
	for _, k := range keys {
		res, err := stmt.ExecContext(ctx, k)
		if err != nil {
			return 0, transient("deleting product", err)
		}
		n, _ := res.RowsAffected()
		deleted += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, transient("committing delete", err)
	}
	return deleted, nil
}

// UploadBlob downloads the image and keeps it in the blobs table.
func (s *objectStore) UploadBlob(ctx context.Context, sourceURL, nameHint string) (string, error) {
	b, err := s.store.fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		return "", err
	}

	key := blob.ObjectKey(nameHint, b.ContentType)
	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO blobs (key, source_url, content_type, data, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			source_url = excluded.source_url,
			content_type = excluded.content_type,
			data = excluded.data
	`, key, sourceURL, b.ContentType, b.Data, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("%w: storing %s: %w", domain.ErrImageUpload, key, err)
	}
	return blob.Locator(key), nil
}

// ReadBlob returns a stored image by its locator or key.
func (s *Store) ReadBlob(ctx context.Context, locator string) (*blob.Blob, error) {
	key := strings.TrimPrefix(locator, "blob://")
	var b blob.Blob
	err := s.db.QueryRowContext(ctx, "SELECT data, content_type FROM blobs WHERE key = ?", key).
		Scan(&b.Data, &b.ContentType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, transient("reading blob", err)
	}
	return &b, nil
}
