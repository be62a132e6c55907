// Package blob fetches product images and derives the keys they are
// stored under. It is shared by every ObjectStore implementation.
package blob

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
)

const (
	// KeyPrefix is the folder all image blobs live under.
	KeyPrefix = "images/"

	defaultContentType = "image/jpeg"
	maxNameLength      = 100
	maxBlobSize        = 20 << 20
	fetchTimeout       = 15 * time.Second
)

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

// Blob is a fetched image.
type Blob struct {
	Data        []byte
	ContentType string
}

// Fetcher downloads images over HTTP.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a fetcher. A nil client uses one with a 15s timeout.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	return &Fetcher{client: client}
}

// Fetch downloads the image at url.
// All failures wrap domain.ErrImageUpload.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Blob, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: empty image url", domain.ErrImageUpload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrImageUpload, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %w", domain.ErrImageUpload, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: fetch %s: status %d", domain.ErrImageUpload, url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBlobSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", domain.ErrImageUpload, url, err)
	}
	if len(data) > maxBlobSize {
		return nil, fmt.Errorf("%w: %s larger than %d bytes", domain.ErrImageUpload, url, maxBlobSize)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}
	return &Blob{Data: data, ContentType: contentType}, nil
}

// SanitizeName replaces every character outside [a-zA-Z0-9-_.] with an
// underscore and truncates the result to 100 characters.
func SanitizeName(hint string) string {
	name := unsafeName.ReplaceAllString(hint, "_")
	if len(name) > maxNameLength {
		name = name[:maxNameLength]
	}
	return name
}

// Extension derives a file extension from a content type,
// e.g. "image/png; charset=binary" gives "png".
func Extension(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	if i := strings.LastIndex(mediaType, "/"); i >= 0 {
		mediaType = mediaType[i+1:]
	}
	if mediaType == "" {
		return "jpeg"
	}
	return mediaType
}

// ObjectKey returns the blob key for an image: images/{name}.{ext}.
func ObjectKey(nameHint, contentType string) string {
	return KeyPrefix + SanitizeName(nameHint) + "." + Extension(contentType)
}

// Locator returns the URL used for blobs kept in a local database.
func Locator(key string) string {
	return "blob://" + key
}
