// Package cli provides the command line interface for the importer.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/ports/driven"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/ports/driving"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "b2drop-importer",
	Short: "Deduplicate product listings and store them safely",
	Long: `b2drop-importer collects product listings from JSON exports,
collapses near-identical listings and upserts the survivors into the
configured object store without losing their creation time or update
history.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

// Services are the core services the commands drive.
type Services struct {
	// Settings reads and writes the importer configuration.
	Settings driving.SettingsService

	// Writer stores products and reports store statistics.
	Writer driving.ProductWriter

	// NewScheduler builds a scheduler whose aggregation task runs
	// aggregator and stores under source.
	NewScheduler func(aggregator driving.Aggregator, source string) driving.Scheduler

	// NewDeduplicator builds a deduplicator for a similarity threshold.
	NewDeduplicator func(threshold float64) (driving.Deduplicator, error)

	// NewAggregator builds an aggregator over the given connectors.
	NewAggregator func(connectors ...driven.Connector) driving.Aggregator

	// OpenFile returns a connector reading a JSON export. Records without
	// a source are attributed to source.
	OpenFile func(source, path string) driven.Connector

	// Backups lists, restores and expires backups. Optional.
	Backups driven.BackupArchive
}

// Service instances injected at startup.
var (
	settingsService driving.SettingsService
	productWriter   driving.ProductWriter
	newScheduler    func(aggregator driving.Aggregator, source string) driving.Scheduler
	newDeduplicator func(threshold float64) (driving.Deduplicator, error)
	newAggregator   func(connectors ...driven.Connector) driving.Aggregator
	openFile        func(source, path string) driven.Connector
	backupArchive   driven.BackupArchive
)

// SetServices injects the core services.
func SetServices(s Services) {
	settingsService = s.Settings
	productWriter = s.Writer
	newScheduler = s.NewScheduler
	newDeduplicator = s.NewDeduplicator
	newAggregator = s.NewAggregator
	openFile = s.OpenFile
	backupArchive = s.Backups
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print debug and progress output")
}

// commandContext returns the context the command was executed with.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func notConfigured(name string) error {
	return fmt.Errorf("%s not configured", name)
}
