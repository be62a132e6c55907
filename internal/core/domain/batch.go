package domain

import "time"

// BatchResult is the outcome of storing a batch of records.
type BatchResult struct {
	Total           int      `json:"total"`
	Successful      int      `json:"successful"`
	Failed          int      `json:"failed"`
	NewProducts     int      `json:"new_products"`
	UpdatedProducts int      `json:"updated_products"`
	ImagesUploaded  int      `json:"images_uploaded"`
	Errors          []string `json:"errors"`
	DurationSeconds float64  `json:"duration_seconds"`

	// BackupLocator points at the snapshot taken after the batch, if any.
	BackupLocator string `json:"backup_locator,omitempty"`
}

// SuccessRate returns the share of successful writes as a percentage.
func (r *BatchResult) SuccessRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Successful) / float64(r.Total) * 100
}

// StoreOutcome classifies a single successful write.
type StoreOutcome int

const (
	// OutcomeCreated indicates no prior entry existed under the key.
	OutcomeCreated StoreOutcome = iota

	// OutcomeUpdated indicates a prior entry was found and merged.
	OutcomeUpdated
)

// String returns the outcome name.
func (o StoreOutcome) String() string {
	if o == OutcomeUpdated {
		return "updated"
	}
	return "created"
}

// StoreStatistics summarises a bounded listing of stored products.
type StoreStatistics struct {
	Total        int            `json:"total"`
	Categories   map[string]int `json:"categories"`
	AveragePrice float64        `json:"average_price"`
	MinPrice     float64        `json:"min_price"`
	MaxPrice     float64        `json:"max_price"`
}

// BackupInventory describes the backups currently kept by a sink.
type BackupInventory struct {
	Dir           string   `json:"backup_directory"`
	DailyBackups  []string `json:"daily_backups"`
	VersionCount  int      `json:"version_backups_count"`
	TotalSizeByte int64    `json:"total_size_bytes"`
}

// AggregationReport describes one collect-deduplicate-store run.
type AggregationReport struct {
	RunID                string         `json:"run_id"`
	Source               string         `json:"source"`
	StartedAt            time.Time      `json:"started_at"`
	Collected            int            `json:"collected"`
	Rejected             int            `json:"rejected"`
	ExactDuplicates      int            `json:"exact_duplicates"`
	Dedup                DedupStats     `json:"dedup"`
	Storage              BatchResult    `json:"storage"`
	ProductsBySource     map[string]int `json:"products_by_source"`
	AverageTrendingScore float64        `json:"average_trending_score"`
	MinPrice             float64        `json:"min_price"`
	MaxPrice             float64        `json:"max_price"`
	DurationSeconds      float64        `json:"duration_seconds"`
	Errors               []string       `json:"errors,omitempty"`
}
