// Package dedup detects and collapses near-identical product listings.
//
// Names are reduced to a comparison key by Normalize, compared with
// Similarity, clustered by a Grouper and collapsed by a Resolver into one
// representative per group. Deduplicator runs the whole pass over a batch.
//
// Clustering is single-pass and greedy: a record joins the group of the
// first earlier unassigned record it is similar enough to, not the group of
// its closest match.
package dedup
