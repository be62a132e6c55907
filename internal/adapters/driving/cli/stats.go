package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise stored products",
	Long:  `Reads a bounded listing of stored products and prints category counts and the price range.`,
	RunE:  runStats,
}

var (
	statsPrefix string
	statsLimit  int
	statsJSON   bool
)

func init() {
	statsCmd.Flags().StringVarP(&statsPrefix, "prefix", "p", "", "only count keys with this prefix, e.g. b2drop_")
	statsCmd.Flags().IntVarP(&statsLimit, "limit", "n", 1000, "maximum number of products to read")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print statistics as JSON")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	if productWriter == nil {
		return notConfigured("product store")
	}

	stats, err := productWriter.Statistics(commandContext(cmd), statsPrefix, statsLimit)
	if err != nil {
		return fmt.Errorf("failed to read statistics: %w", err)
	}

	if statsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	p := newPrinter(cmd.OutOrStdout())
	p.title("Stored products")
	p.field("Total", stats.Total)
	if stats.MaxPrice > 0 {
		p.field("Average price", fmt.Sprintf("%.2f", stats.AveragePrice))
		p.field("Price range", fmt.Sprintf("%.2f - %.2f", stats.MinPrice, stats.MaxPrice))
	}
	if len(stats.Categories) == 0 {
		return nil
	}

	categories := make([]string, 0, len(stats.Categories))
	for c := range stats.Categories {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool {
		a, b := categories[i], categories[j]
		if stats.Categories[a] != stats.Categories[b] {
			return stats.Categories[a] > stats.Categories[b]
		}
		return a < b
	})

	p.blank()
	p.title("Categories")
	for _, c := range categories {
		p.field(c, stats.Categories[c])
	}
	return nil
}
