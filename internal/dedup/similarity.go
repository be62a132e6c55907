package dedup

import (
	"github.com/pmezard/go-difflib/difflib"
)

// Similarity returns the sequence-alignment ratio of the normalised names,
// in [0,1]. Names that normalise to nothing cannot be compared and score 0.
func Similarity(a, b string) float64 {
	return ratio(Normalize(a), Normalize(b))
}

// ratio computes 2M/T over the runes of two already normalised names, where
// M is the size of the matching blocks and T the combined length.
func ratio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	// Matching-block search breaks ties by position, so a fixed argument
	// order keeps the score symmetric.
	if a > b {
		a, b = b, a
	}
	m := difflib.NewMatcher(runeSeq(a), runeSeq(b))
	return m.Ratio()
}

func runeSeq(s string) []string {
	seq := make([]string, 0, len(s))
	for _, r := range s {
		seq = append(seq, string(r))
	}
	return seq
}
