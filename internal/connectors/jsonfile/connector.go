// Package jsonfile reads product records from JSON exports on disk.
//
// Two layouts are accepted: a bare array of records, or an object with a
// "products" array such as a daily backup snapshot.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/ports/driven"
)

var _ driven.Connector = (*Connector)(nil)

// Connector yields the records of one JSON file.
type Connector struct {
	name string
	path string

	mu     sync.Mutex
	closed bool
}

// New creates a connector for path. Records without a source are
// attributed to name.
func New(name, path string) *Connector {
	return &Connector{name: name, path: path}
}

// Name returns the source name.
func (c *Connector) Name() string {
	return c.name
}

// Path returns the file being read.
func (c *Connector) Path() string {
	return c.path
}

// Fetch decodes the file and streams its valid records. A record that
// fails to decode or has no name is reported on the error channel and
// skipped. A file that cannot be read or parsed ends the fetch with a
// single error.
func (c *Connector) Fetch(ctx context.Context) (<-chan domain.ProductRecord, <-chan error) {
	records := make(chan domain.ProductRecord)
	errs := make(chan error, 1)

	go func() {
		defer close(records)
		defer close(errs)

		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			errs <- domain.ErrConnectorClosed
			return
		}

		raw, err := c.load()
		if err != nil {
			errs <- err
			return
		}

		for i, item := range raw {
			rec, err := c.decode(item)
			if err != nil {
				select {
				case <-ctx.Done():
					return
				case errs <- fmt.Errorf("%s record %d: %w", c.name, i, err):
				}
				continue
			}
			select {
			case <-ctx.Done():
				return
			case records <- rec:
			}
		}
	}()

	return records, errs
}

// Close stops later fetches.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *Connector) load() ([]json.RawMessage, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", c.path, err)
	}
	return Parse(data)
}

// Parse splits a JSON document into raw records.
func Parse(data []byte) ([]json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty document", domain.ErrInvalidInput)
	}

	var items []json.RawMessage
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
		}
	case '{':
		var doc struct {
			Products *[]json.RawMessage `json:"products"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
		}
		if doc.Products == nil {
			return nil, fmt.Errorf("%w: object has no products array", domain.ErrInvalidInput)
		}
		items = *doc.Products
	default:
		return nil, fmt.Errorf("%w: expected an array or an object", domain.ErrInvalidInput)
	}
	return items, nil
}

func (c *Connector) decode(item json.RawMessage) (domain.ProductRecord, error) {
	var rec domain.ProductRecord
	if err := json.Unmarshal(item, &rec); err != nil {
		return rec, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	rec.Name = strings.TrimSpace(rec.Name)
	if rec.Name == "" {
		return rec, fmt.Errorf("%w: empty product name", domain.ErrValidation)
	}
	if rec.Source == "" {
		rec.Source = c.name
	}
	return rec, nil
}
