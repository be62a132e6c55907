// Package file provides the TOML configuration store.
//
// The file lives at ~/.b2drop/config.toml by default. Tables are flattened
// into dot keys on load, so
//
//	[dedup]
//	threshold = 0.9
//
// is read back as "dedup.threshold".
package file
