// Package sqlite provides a local SQLite implementation of the importer's
// driven ports.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that
// requires no CGO. A single database file backs:
//
//   - ObjectStore: product records plus uploaded image blobs
//   - SchedulerStore: scheduled task state and run history
//
// # Schema
//
// The schema is managed through versioned migrations embedded from the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql
// files and is recorded in schema_migrations once applied.
//
// # Data Location
//
// By default, the database is stored at ~/.b2drop/data/products.db
package sqlite
