package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/ports/driven"
)

var dedupCmd = &cobra.Command{
	Use:   "dedup <file.json>",
	Short: "Find and merge duplicate products in a JSON export",
	Long: `Reads a JSON array of products (or a backup snapshot) and collapses
listings whose names are similar enough to be the same product. Nothing is
written to the object store.`,
	Args: cobra.ExactArgs(1),
	RunE: runDedup,
}

var (
	dedupThreshold  float64
	dedupJSON       bool
	dedupOutput     string
	dedupNeighbours float64
)

func init() {
	dedupCmd.Flags().Float64Var(&dedupThreshold, "threshold", domain.DefaultSimilarityThreshold, "name similarity needed to group two products (0,1]")
	dedupCmd.Flags().BoolVar(&dedupJSON, "json", false, "print statistics as JSON")
	dedupCmd.Flags().StringVarP(&dedupOutput, "output", "o", "", "write the deduplicated products to this file")
	dedupCmd.Flags().Float64Var(&dedupNeighbours, "neighbours", 0, "report similar products within this relative price band; defaults to dedup.price_tolerance, 0 disables")
	rootCmd.AddCommand(dedupCmd)
}

// dedupReport is the JSON form of a dedup run.
type dedupReport struct {
	File       string            `json:"file"`
	Threshold  float64           `json:"threshold"`
	Rejected   int               `json:"rejected"`
	Stats      domain.DedupStats `json:"stats"`
	Neighbours []neighbourPair   `json:"price_neighbours,omitempty"`
}

type neighbourPair struct {
	First      string  `json:"first"`
	Second     string  `json:"second"`
	Similarity float64 `json:"similarity"`
}

func runDedup(cmd *cobra.Command, args []string) error {
	if newDeduplicator == nil || openFile == nil {
		return notConfigured("dedup service")
	}
	ctx := commandContext(cmd)
	path := args[0]

	threshold, tolerance := dedupThreshold, dedupNeighbours
	if settingsService != nil {
		if settings, err := settingsService.Get(); err == nil {
			if !cmd.Flags().Changed("threshold") {
				threshold = settings.Dedup.Threshold
			}
			if !cmd.Flags().Changed("neighbours") {
				tolerance = settings.Dedup.PriceTolerance
			}
		}
	}

	deduper, err := newDeduplicator(threshold)
	if err != nil {
		return err
	}

	records, rejected, err := drain(ctx, openFile("file", path))
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	report := dedupReport{File: path, Threshold: threshold, Rejected: rejected}
	var deduped []domain.ProductRecord
	deduped, report.Stats = deduper.Deduplicate(records)

	if tolerance > 0 {
		for _, n := range deduper.FindPriceNeighbours(records, tolerance) {
			report.Neighbours = append(report.Neighbours, neighbourPair{
				First:      n.First.Name,
				Second:     n.Second.Name,
				Similarity: n.Similarity,
			})
		}
	}

	if dedupOutput != "" {
		data, err := json.MarshalIndent(deduped, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding products: %w", err)
		}
		if err := os.WriteFile(dedupOutput, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", dedupOutput, err)
		}
	}

	if dedupJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	p := newPrinter(cmd.OutOrStdout())
	p.title("Deduplication")
	p.field("File", path)
	p.field("Threshold", fmt.Sprintf("%.2f", threshold))
	p.field("Products read", report.Stats.OriginalCount)
	if rejected > 0 {
		p.field("Rejected", rejected)
	}
	p.field("Duplicate groups", report.Stats.DuplicateGroupCount)
	p.field("Products removed", report.Stats.ProductsRemoved)
	p.field("Final count", report.Stats.FinalCount)
	p.field("Reduction", fmt.Sprintf("%.1f%%", report.Stats.ReductionPercentage))
	if len(report.Neighbours) > 0 {
		p.blank()
		p.title("Similar products in the same price band")
		for _, n := range report.Neighbours {
			p.field(fmt.Sprintf("%.2f", n.Similarity), n.First+" / "+n.Second)
		}
	}
	if dedupOutput != "" {
		p.blank()
		p.success(fmt.Sprintf("Wrote %d products to %s", len(deduped), dedupOutput))
	}
	return nil
}

// drain reads every record from a connector. Records the connector rejects
// are counted; any other error is returned once the fetch ends.
func drain(ctx context.Context, c driven.Connector) ([]domain.ProductRecord, int, error) {
	defer c.Close()

	recordsCh, errsCh := c.Fetch(ctx)
	var records []domain.ProductRecord
	var rejected int
	var errs []error

	for recordsCh != nil || errsCh != nil {
		select {
		case <-ctx.Done():
			return nil, rejected, ctx.Err()
		case err, ok := <-errsCh:
			if !ok {
				errsCh = nil
				continue
			}
			if errors.Is(err, domain.ErrValidation) {
				rejected++
				continue
			}
			errs = append(errs, err)
		case rec, ok := <-recordsCh:
			if !ok {
				recordsCh = nil
				continue
			}
			records = append(records, rec)
		}
	}
	return records, rejected, errors.Join(errs...)
}
