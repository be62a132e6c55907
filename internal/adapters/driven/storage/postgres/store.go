// Package postgres provides a PostgreSQL ObjectStore for deployments that
// share one product catalogue between several importer hosts.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/adapters/driven/storage/blob"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/ports/driven"
)

const schema = `
CREATE TABLE IF NOT EXISTS importer_products (
	key         TEXT PRIMARY KEY,
	source      TEXT NOT NULL DEFAULT '',
	name        TEXT NOT NULL DEFAULT '',
	images      TEXT[] NOT NULL DEFAULT '{}',
	data        JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS importer_products_source_idx ON importer_products (source);
CREATE TABLE IF NOT EXISTS importer_blobs (
	key          TEXT PRIMARY KEY,
	source_url   TEXT NOT NULL,
	content_type TEXT NOT NULL,
	data         BYTEA NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// Store implements driven.ObjectStore on PostgreSQL.
type Store struct {
	db      *sql.DB
	fetcher *blob.Fetcher
}

var _ driven.ObjectStore = (*Store)(nil)

// Open connects to dsn and creates the tables if needed.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres dsn is empty", domain.ErrConfiguration)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, transient("connecting", err)
	}
	s := New(db, nil)
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing connection. A nil fetcher uses blob.NewFetcher(nil).
func New(db *sql.DB, fetcher *blob.Fetcher) *Store {
	if fetcher == nil {
		fetcher = blob.NewFetcher(nil)
	}
	return &Store{db: db, fetcher: fetcher}
}

// EnsureSchema creates the product and blob tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get retrieves the record stored under key.
func (s *Store) Get(ctx context.Context, key string) (*domain.ProductRecord, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM importer_products WHERE key = $1`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, transient("get "+key, err)
	}
	var record domain.ProductRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	return &record, nil
}

// Put upserts record under key.
func (s *Store) Put(ctx context.Context, key string, record *domain.ProductRecord) error {
	if record == nil {
		return domain.ErrInvalidInput
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO importer_products (key, source, name, images, data, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (key) DO UPDATE SET
			source = EXCLUDED.source,
			name = EXCLUDED.name,
			images = EXCLUDED.images,
			data = EXCLUDED.data,
			updated_at = now()`,
		key, record.Source, record.Name, pq.Array(imagesOf(record)), data)
	return transient("put "+key, err)
}

// ListKeys returns up to limit keys with prefix in key order.
func (s *Store) ListKeys(ctx context.Context, prefix string, limit int) ([]domain.KeyInfo, error) {
	query := `SELECT key, source FROM importer_products WHERE key LIKE $1 ESCAPE '\' ORDER BY key`
	args := []any{LikePrefix(prefix)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, transient("list", err)
	}
	defer rows.Close()

	var keys []domain.KeyInfo
	for rows.Next() {
		var name, source string
		if err := rows.Scan(&name, &source); err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}
		keys = append(keys, domain.KeyInfo{Name: name, Metadata: map[string]any{"source": source}})
	}
	if err := rows.Err(); err != nil {
		return nil, transient("list", err)
	}
	return keys, nil
}

// DeleteKeys removes keys in a single statement.
func (s *Store) DeleteKeys(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM importer_products WHERE key = ANY($1)`, pq.Array(keys))
	if err != nil {
		return 0, transient("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, transient("delete", err)
	}
	return int(n), nil
}

// UploadBlob downloads the image into importer_blobs.
func (s *Store) UploadBlob(ctx context.Context, sourceURL, nameHint string) (string, error) {
	b, err := s.fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		return "", err
	}
	key := blob.ObjectKey(nameHint, b.ContentType)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO importer_blobs (key, source_url, content_type, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE SET
			source_url = EXCLUDED.source_url,
			content_type = EXCLUDED.content_type,
			data = EXCLUDED.data`,
		key, sourceURL, b.ContentType, b.Data)
	if err != nil {
		return "", fmt.Errorf("%w: storing %s: %w", domain.ErrImageUpload, key, err)
	}
	return blob.Locator(key), nil
}

// LikePrefix escapes LIKE wildcards in prefix and appends %.
func LikePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}

// imagesOf lists the primary and additional image URLs without blanks.
func imagesOf(record *domain.ProductRecord) []string {
	images := make([]string, 0, 1+len(record.AdditionalImages))
	if record.ImageURL != "" {
		images = append(images, record.ImageURL)
	}
	for _, img := range record.AdditionalImages {
		if img != "" {
			images = append(images, img)
		}
	}
	return images
}

// transient wraps connection-level failures in domain.ErrTransientStore.
// Constraint and syntax errors reported by the server are returned as is.
func transient(op string, err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && !retryableClass(pqErr.Code.Class()) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrTransientStore, err)
}

// retryableClass reports SQLSTATE classes worth retrying: connection
// exceptions, resource exhaustion, operator intervention and transaction
// rollbacks such as serialization failures.
func retryableClass(class pq.ErrorClass) bool {
	switch class {
	case "08", "53", "57", "40":
		return true
	}
	return false
}
