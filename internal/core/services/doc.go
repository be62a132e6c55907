// Package services implements the driving ports on top of the driven ones.
//
//   - ProductWriter: protected upsert of product records with version
//     backups, image upload and post-batch snapshots
//   - Aggregator: collect, standardise, deduplicate and store in one run
//   - Scheduler: runs aggregation and backup cleanup on an interval
//   - SettingsService: typed settings over a flat ConfigStore
//
// Deduplication itself lives in internal/dedup and is injected as a
// driving.Deduplicator.
package services
