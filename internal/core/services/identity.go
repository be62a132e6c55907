package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
)

const (
	digestHexLength = 16
	saltModulus     = 1_000_000
)

// IDGenerator derives storage keys for products.
//
// Keys have the form {source}_{digest}_{salt}. The digest covers the
// lower-cased name and, when given, the image URL, price and store. The
// salt is the wall clock in milliseconds modulo 1,000,000, so the same
// product only maps to the same key within one millisecond bucket.
type IDGenerator struct {
	now func() time.Time
}

// NewIDGenerator creates a generator. A nil clock uses time.Now.
func NewIDGenerator(now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{now: now}
}

// Generate returns the key for a product. It never fails; missing fields
// hash as empty strings.
func (g *IDGenerator) Generate(name, source string, identity *domain.IdentityContext) string {
	return fmt.Sprintf("%s_%s_%06d", source, Digest(name, identity), g.now().UnixMilli()%saltModulus)
}

// Digest returns the content part of a product key.
func Digest(name string, identity *domain.IdentityContext) string {
	input := strings.ToLower(strings.TrimSpace(name))
	if !identity.IsZero() {
		input = strings.Join([]string{
			input,
			identity.ImageURL,
			identity.Price.String(),
			identity.Store,
		}, "_")
	}
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])[:digestHexLength]
}
