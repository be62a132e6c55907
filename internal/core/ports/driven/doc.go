// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - ObjectStore: Product key-value storage and image blobs
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - BackupSink: Snapshots and version backups. Without it, writes are unprotected.
//   - BackupArchive: Listing, restoring and expiring backups for the CLI.
//   - Connector: Product sources for the aggregator. The dedup command needs none.
//   - SchedulerStore: Persistent task state. Without it, the scheduler is disabled.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or connector package
package driven
