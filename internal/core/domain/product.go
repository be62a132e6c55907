package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCategory is assigned to records that arrive without a category.
const DefaultCategory = "Other"

func init() {
	// Stored values keep numeric prices so existing readers of the KV
	// namespace keep working.
	decimal.MarshalJSONWithoutQuotes = true
}

// ProductRecord is the unit moving through the import pipeline.
// It is produced by a connector, enriched by standardisation, consumed by
// deduplication and finally written to the object store.
//
// JSON field names match the layout already present in the KV namespace.
type ProductRecord struct {
	// ProductID is the storage key. Filled in by the identity generator.
	ProductID string `json:"product_id,omitempty"`

	// OriginalProductID is the identifier assigned by the source API.
	OriginalProductID string `json:"original_product_id,omitempty"`

	// Name is the display name. Required.
	Name string `json:"produto"`

	// Description is the free-text description.
	Description string `json:"descricao,omitempty"`

	// Price is the current price. Absence is treated as zero.
	Price decimal.Decimal `json:"preco"`

	// PromotionalPrice is only meaningful when strictly below Price.
	PromotionalPrice *decimal.Decimal `json:"preco_promocional,omitempty"`

	// Category defaults to DefaultCategory.
	Category string `json:"categoria,omitempty"`

	// CategorySearched is the search category a connector used.
	CategorySearched string `json:"category_searched,omitempty"`

	// Availability and Stock are informational.
	Availability string `json:"disponibilidade,omitempty"`
	Stock        int    `json:"estoque,omitempty"`

	// Color and Size describe the variation.
	Color string `json:"cor,omitempty"`
	Size  string `json:"tamanho,omitempty"`

	// ImageURL is the original image location at the source.
	ImageURL string `json:"imagem_original,omitempty"`

	// AdditionalImages are further image locations, in source order.
	AdditionalImages []string `json:"imagens_adicionais,omitempty"`

	// ImageR2URL is the public URL of the uploaded copy of ImageURL.
	ImageR2URL string `json:"imagem_r2,omitempty"`

	// SourceURL is the product page at the source.
	SourceURL string `json:"url_produto,omitempty"`

	// Store is the shop name.
	Store string `json:"loja,omitempty"`

	// Source identifies the connector that produced the record.
	Source string `json:"source"`

	// Rating and ReviewCount come from the source when available.
	Rating      *float64 `json:"rating,omitempty"`
	ReviewCount *int     `json:"reviews,omitempty"`

	// TrendingScore is a 0-10 heuristic derived during standardisation.
	TrendingScore float64 `json:"trending_score"`

	// SearchQuery is the query a search connector used.
	SearchQuery string `json:"query_busca,omitempty"`

	// ScrapedAt is when the connector fetched the record.
	ScrapedAt *time.Time `json:"scraped_at,omitempty"`

	// CreatedAt, LastUpdated and UpdateCount are provenance counters owned
	// by the protected upsert writer. Connectors never set them.
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
	UpdateCount int        `json:"update_count,omitempty"`

	// Merge fields, set on the representative of a duplicate group.
	AlternativeSources []AlternativeSource `json:"alternative_sources,omitempty"`
	AlternativeImages  []string            `json:"alternative_images,omitempty"`
	AlternativeURLs    []string            `json:"alternative_urls,omitempty"`
	DuplicateCount     int                 `json:"duplicate_count,omitempty"`
	MergeTimestamp     *time.Time          `json:"merge_timestamp,omitempty"`
}

// AlternativeSource records where a subsumed duplicate was offered.
type AlternativeSource struct {
	Source    string          `json:"source"`
	Store     string          `json:"loja"`
	Price     decimal.Decimal `json:"preco"`
	SourceURL string          `json:"url_produto"`
}

// HasPositivePrice reports whether the record carries a price above zero.
func (p *ProductRecord) HasPositivePrice() bool {
	return p.Price.IsPositive()
}

// Clone returns a deep copy of the record.
func (p *ProductRecord) Clone() ProductRecord {
	c := *p
	if p.PromotionalPrice != nil {
		v := *p.PromotionalPrice
		c.PromotionalPrice = &v
	}
	if p.Rating != nil {
		v := *p.Rating
		c.Rating = &v
	}
	if p.ReviewCount != nil {
		v := *p.ReviewCount
		c.ReviewCount = &v
	}
	c.ScrapedAt = cloneTime(p.ScrapedAt)
	c.CreatedAt = cloneTime(p.CreatedAt)
	c.LastUpdated = cloneTime(p.LastUpdated)
	c.MergeTimestamp = cloneTime(p.MergeTimestamp)
	c.AdditionalImages = cloneStrings(p.AdditionalImages)
	c.AlternativeImages = cloneStrings(p.AlternativeImages)
	c.AlternativeURLs = cloneStrings(p.AlternativeURLs)
	if p.AlternativeSources != nil {
		c.AlternativeSources = make([]AlternativeSource, len(p.AlternativeSources))
		copy(c.AlternativeSources, p.AlternativeSources)
	}
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// IdentityContext carries the optional fields mixed into a product id.
type IdentityContext struct {
	ImageURL string
	Price    decimal.Decimal
	Store    string
}

// IsZero reports whether no identity field is set.
func (c *IdentityContext) IsZero() bool {
	return c == nil || (c.ImageURL == "" && c.Price.IsZero() && c.Store == "")
}

// IdentityContextOf extracts the identity fields of a record.
func IdentityContextOf(p *ProductRecord) *IdentityContext {
	return &IdentityContext{
		ImageURL: p.ImageURL,
		Price:    p.Price,
		Store:    p.Store,
	}
}

// KeyInfo describes a key returned by an object store listing.
type KeyInfo struct {
	// Name is the full key.
	Name string `json:"name"`

	// Expiration is set when the store expires the key.
	Expiration *time.Time `json:"expiration,omitempty"`

	// Metadata is store specific.
	Metadata map[string]any `json:"metadata,omitempty"`
}
