// Package domain defines the core business entities for the importer.
//
// This package is part of the hexagonal architecture's innermost layer.
// It defines the fundamental types:
//
//   - ProductRecord: A product listing moving through the pipeline
//   - DuplicateGroup: Records judged to be the same listing
//   - BatchResult: The outcome of storing a batch
//   - Settings: Importer configuration
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. All other packages depend on
// domain, never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library, github.com/shopspring/decimal
//   - Cannot Import: Any internal/ package
package domain
