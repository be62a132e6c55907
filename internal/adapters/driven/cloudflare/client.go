package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/adapters/driven/storage/blob"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/ports/driven"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/logger"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/metrics"
)

const (
	maxAttempts     = 3
	minPageSize     = 10
	maxPageSize     = 1000
	deleteBatchSize = 10000
	requestTimeout  = 30 * time.Second
)

var log = logger.WithPrefix("cloudflare")

// Client talks to Workers KV and R2. It implements driven.ObjectStore.
type Client struct {
	cfg        Config
	http       *http.Client
	limiter    *RateLimiter
	fetcher    *blob.Fetcher
	retryDelay time.Duration
}

var _ driven.ObjectStore = (*Client)(nil)

// NewClient validates cfg and builds a client.
// A nil httpClient uses one with a 30 second timeout.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	return &Client{
		cfg:        cfg,
		http:       httpClient,
		limiter:    NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst),
		fetcher:    blob.NewFetcher(httpClient),
		retryDelay: 500 * time.Millisecond,
	}, nil
}

// apiError is a non-2xx response.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("cloudflare: status %d: %s", e.Status, e.Body)
}

// envelope is the v4 response wrapper.
type envelope struct {
	Success    bool            `json:"success"`
	Errors     []apiMessage    `json:"errors"`
	Result     json.RawMessage `json:"result"`
	ResultInfo struct {
		Cursor string `json:"cursor"`
	} `json:"result_info"`
}

type apiMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *envelope) err() error {
	if e.Success {
		return nil
	}
	msgs := make([]string, len(e.Errors))
	for i, m := range e.Errors {
		msgs[i] = fmt.Sprintf("%d %s", m.Code, m.Message)
	}
	return fmt.Errorf("cloudflare: request unsuccessful: %s", strings.Join(msgs, "; "))
}

// request is one call to the API. Body is resent on every attempt.
type request struct {
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
}

// do sends req, retrying rate limited and 5xx responses.
// It returns the response body of the first 2xx answer.
func (c *Client) do(ctx context.Context, req request) ([]byte, error) {
	target := c.cfg.accountURL() + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, status, err := c.send(ctx, req, target)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("%w: %w", domain.ErrTransientStore, err)
		case status == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("%w: %w", domain.ErrTransientStore, domain.ErrRateLimited)
			continue
		case status >= 500:
			lastErr = fmt.Errorf("%w: %w", domain.ErrTransientStore, &apiError{Status: status, Body: truncate(body)})
		case status == http.StatusNotFound:
			return nil, domain.ErrNotFound
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return nil, fmt.Errorf("%w: %w", domain.ErrConfiguration, &apiError{Status: status, Body: truncate(body)})
		case status < 200 || status >= 300:
			return nil, &apiError{Status: status, Body: truncate(body)}
		default:
			return body, nil
		}

		if attempt < maxAttempts {
			log.Debug("%s %s attempt %d failed: %v", req.method, req.path, attempt, lastErr)
			if err := sleep(ctx, c.retryDelay*time.Duration(attempt)); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

func (c *Client) send(ctx context.Context, req request, target string) ([]byte, int, error) {
	var reader io.Reader = http.NoBody
	if req.body != nil {
		reader = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, reader)
	if err != nil {
		return nil, 0, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.RecordRequest(req.method, 0, time.Since(start))
		return nil, 0, err
	}
	defer resp.Body.Close()
	metrics.RecordRequest(req.method, resp.StatusCode, time.Since(start))

	if resp.StatusCode == http.StatusTooManyRequests {
		if d, ok := retryAfter(resp.Header.Get("Retry-After")); !ok || d > 0 {
			c.limiter.Backoff(d)
		}
		log.Warn("rate limited on %s %s", req.method, req.path)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(header string) (time.Duration, bool) {
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}

func (c *Client) kvPath(suffix string) string {
	return "/storage/kv/namespaces/" + url.PathEscape(c.cfg.NamespaceID) + suffix
}

// Get retrieves the record stored under key.
func (c *Client) Get(ctx context.Context, key string) (*domain.ProductRecord, error) {
	body, err := c.do(ctx, request{method: http.MethodGet, path: c.kvPath("/values/" + url.PathEscape(key))})
	if err != nil {
		return nil, err
	}
	var record domain.ProductRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	return &record, nil
}

// Put writes record under key.
func (c *Client) Put(ctx context.Context, key string, record *domain.ProductRecord) error {
	if record == nil {
		return domain.ErrInvalidInput
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	_, err = c.do(ctx, request{
		method:      http.MethodPut,
		path:        c.kvPath("/values/" + url.PathEscape(key)),
		body:        data,
		contentType: "application/json",
	})
	return err
}

type kvKey struct {
	Name       string         `json:"name"`
	Expiration int64          `json:"expiration,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ListKeys pages through the namespace until limit keys are collected or
// the cursor runs out. Each page asks for between 10 and 1000 keys.
// A non-positive limit lists everything.
func (c *Client) ListKeys(ctx context.Context, prefix string, limit int) ([]domain.KeyInfo, error) {
	var (
		keys   []domain.KeyInfo
		cursor string
	)
	for limit <= 0 || len(keys) < limit {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(pageSize(limit, len(keys))))
		if prefix != "" {
			query.Set("prefix", prefix)
		}
		if cursor != "" {
			query.Set("cursor", cursor)
		}

		body, err := c.do(ctx, request{method: http.MethodGet, path: c.kvPath("/keys"), query: query})
		if err != nil {
			return keys, err
		}
		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return keys, fmt.Errorf("decoding key page: %w", err)
		}
		if err := env.err(); err != nil {
			return keys, err
		}
		var page []kvKey
		if err := json.Unmarshal(env.Result, &page); err != nil {
			return keys, fmt.Errorf("decoding key page: %w", err)
		}

		for _, k := range page {
			info := domain.KeyInfo{Name: k.Name, Metadata: k.Metadata}
			if k.Expiration > 0 {
				exp := time.Unix(k.Expiration, 0).UTC()
				info.Expiration = &exp
			}
			keys = append(keys, info)
		}

		cursor = env.ResultInfo.Cursor
		if cursor == "" || len(page) == 0 {
			break
		}
	}
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

// pageSize clamps the remaining count into the range the API accepts.
func pageSize(limit, have int) int {
	if limit <= 0 {
		return maxPageSize
	}
	return min(max(limit-have, minPageSize), maxPageSize)
}

// DeleteKeys removes keys through the bulk endpoint, 10 000 at a time.
func (c *Client) DeleteKeys(ctx context.Context, keys []string) (int, error) {
	deleted := 0
	for start := 0; start < len(keys); start += deleteBatchSize {
		batch := keys[start:min(start+deleteBatchSize, len(keys))]
		data, err := json.Marshal(batch)
		if err != nil {
			return deleted, err
		}
		if _, err := c.do(ctx, request{
			method:      http.MethodDelete,
			path:        c.kvPath("/bulk"),
			body:        data,
			contentType: "application/json",
		}); err != nil {
			return deleted, fmt.Errorf("deleting keys %d-%d: %w", start, start+len(batch)-1, err)
		}
		deleted += len(batch)
	}
	return deleted, nil
}

// UploadBlob copies the image at sourceURL into the R2 bucket and returns
// its public URL.
func (c *Client) UploadBlob(ctx context.Context, sourceURL, nameHint string) (string, error) {
	b, err := c.fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		return "", err
	}
	key := blob.ObjectKey(nameHint, b.ContentType)
	_, err = c.do(ctx, request{
		method:      http.MethodPut,
		path:        "/r2/buckets/" + url.PathEscape(c.cfg.BucketName) + "/objects/" + key,
		body:        b.Data,
		contentType: b.ContentType,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrImageUpload, key, err)
	}
	return c.cfg.publicURL(key), nil
}

// EnsureBucket creates the R2 bucket when it does not exist yet.
// It reports whether the bucket was created.
func (c *Client) EnsureBucket(ctx context.Context) (bool, error) {
	body, err := c.do(ctx, request{method: http.MethodGet, path: "/r2/buckets"})
	if err != nil {
		return false, fmt.Errorf("listing buckets: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return false, fmt.Errorf("decoding buckets: %w", err)
	}
	if err := env.err(); err != nil {
		return false, err
	}
	var result struct {
		Buckets []struct {
			Name string `json:"name"`
		} `json:"buckets"`
	}
	if len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, &result); err != nil {
			return false, fmt.Errorf("decoding buckets: %w", err)
		}
	}
	for _, b := range result.Buckets {
		if b.Name == c.cfg.BucketName {
			return false, nil
		}
	}

	payload, _ := json.Marshal(map[string]string{"name": c.cfg.BucketName})
	if _, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/r2/buckets",
		body:        payload,
		contentType: "application/json",
	}); err != nil {
		return false, fmt.Errorf("creating bucket %s: %w", c.cfg.BucketName, err)
	}
	log.Info("created R2 bucket %s; enable public access to serve images", c.cfg.BucketName)
	return true, nil
}

// IsRateLimited reports whether err came from exhausted 429 retries.
func IsRateLimited(err error) bool {
	return errors.Is(err, domain.ErrRateLimited)
}
