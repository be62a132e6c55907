// Package connectors holds the driven.Connector implementations that feed
// product records into the aggregator. Each connector knows how to read one
// kind of source (a JSON export, a backup snapshot) and validates records
// at that boundary.
package connectors
