package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/ports/driven"
)

var importCmd = &cobra.Command{
	Use:   "import <file.json>...",
	Short: "Import products from JSON exports",
	Long: `Collects products from one or more JSON exports, standardises them,
removes exact and near duplicates and upserts the survivors into the
configured object store under the given source.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImport,
}

var (
	importSource string
	importJSON   bool
)

func init() {
	importCmd.Flags().StringVarP(&importSource, "source", "s", "b2drop", "source name used in product keys")
	importCmd.Flags().BoolVar(&importJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	if newAggregator == nil || openFile == nil {
		return notConfigured("import service")
	}
	if importSource == "" {
		return fmt.Errorf("%w: --source must not be empty", domain.ErrInvalidInput)
	}

	connectors := make([]driven.Connector, 0, len(args))
	for _, path := range args {
		connectors = append(connectors, openFile(importSource, path))
	}
	defer func() {
		for _, c := range connectors {
			_ = c.Close()
		}
	}()

	report, err := newAggregator(connectors...).Run(commandContext(cmd), importSource)
	if report != nil {
		if importJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(report); encErr != nil {
				return encErr
			}
		} else {
			printAggregation(newPrinter(cmd.OutOrStdout()), report)
		}
	}
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	return nil
}

func printAggregation(p *printer, r *domain.AggregationReport) {
	p.title("Import " + r.RunID)
	p.field("Source", r.Source)
	p.field("Collected", r.Collected)
	p.field("Rejected", r.Rejected)
	p.field("Exact duplicates", r.ExactDuplicates)
	p.field("Near duplicates", r.Dedup.ProductsRemoved)
	p.field("Average trending", fmt.Sprintf("%.2f", r.AverageTrendingScore))
	if r.MaxPrice > 0 {
		p.field("Price range", fmt.Sprintf("%.2f - %.2f", r.MinPrice, r.MaxPrice))
	}
	p.field("Duration", fmt.Sprintf("%.2fs", r.DurationSeconds))
	p.blank()

	printBatch(p, &r.Storage)
}

func printBatch(p *printer, b *domain.BatchResult) {
	p.title("Storage")
	p.field("Stored", fmt.Sprintf("%d of %d (%.1f%%)", b.Successful, b.Total, b.SuccessRate()))
	p.field("New", b.NewProducts)
	p.field("Updated", b.UpdatedProducts)
	p.field("Images uploaded", b.ImagesUploaded)
	if b.BackupLocator != "" {
		p.field("Backup", b.BackupLocator)
	}

	switch {
	case b.Failed > 0:
		p.warn(fmt.Sprintf("%d products failed", b.Failed))
		for _, e := range b.Errors {
			p.fail("  " + e)
		}
	case b.Successful > 0:
		p.success("All products stored")
	}
}
