package domain

// DefaultSimilarityThreshold is the name similarity at or above which two
// records are treated as duplicates.
const DefaultSimilarityThreshold = 0.85

// DuplicateGroup is a cluster of records judged to represent the same
// real-world listing. Members are in input order.
type DuplicateGroup struct {
	// ID is "group_N" in discovery order.
	ID string

	// Indices are the positions of the members in the input slice.
	Indices []int

	// Members are the grouped records.
	Members []ProductRecord
}

// Size returns the number of members.
func (g *DuplicateGroup) Size() int {
	return len(g.Members)
}

// DedupStats summarises one deduplication pass.
type DedupStats struct {
	OriginalCount       int     `json:"original_count"`
	DuplicateGroupCount int     `json:"duplicate_groups"`
	ProductsRemoved     int     `json:"products_removed"`
	ProductsMerged      int     `json:"products_merged"`
	FinalCount          int     `json:"final_count"`
	ReductionPercentage float64 `json:"reduction_percentage"`
}

// PriceNeighbour is a pair of records in the same price band whose names
// are similar enough to be duplicates.
type PriceNeighbour struct {
	First      ProductRecord
	Second     ProductRecord
	Similarity float64
}
