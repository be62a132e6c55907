package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Inspect, restore and expire backups",
	Long: `Lists the daily snapshots and version backups written by the importer.

Use "backup restore" to upsert the products of a snapshot back into the
store and "backup cleanup" to remove copies past the retention period.`,
	RunE: runBackupList,
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <snapshot.json>",
	Short: "Upsert the products of a snapshot into the store",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupRestore,
}

var backupCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove backups older than the retention period",
	RunE:  runBackupCleanup,
}

var (
	backupJSON          bool
	backupRestoreSource string
	backupCleanupDays   int
)

func init() {
	backupCmd.Flags().BoolVar(&backupJSON, "json", false, "print the inventory as JSON")
	backupRestoreCmd.Flags().StringVarP(&backupRestoreSource, "source", "s", "backup", "source used for records that carry none")
	backupCleanupCmd.Flags().IntVar(&backupCleanupDays, "days", 0, "retention in days (default: backup.retention_days)")

	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupCleanupCmd)
	rootCmd.AddCommand(backupCmd)
}

func runBackupList(cmd *cobra.Command, _ []string) error {
	if backupArchive == nil {
		return notConfigured("backup store")
	}

	inv, err := backupArchive.Inventory()
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}

	if backupJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(inv)
	}

	p := newPrinter(cmd.OutOrStdout())
	p.title("Backups")
	p.field("Directory", inv.Dir)
	p.field("Daily snapshots", len(inv.DailyBackups))
	p.field("Versions", inv.VersionCount)
	p.field("Size", fmt.Sprintf("%.1f KiB", float64(inv.TotalSizeByte)/1024))
	if len(inv.DailyBackups) > 0 {
		p.blank()
		for _, name := range inv.DailyBackups {
			cmd.Println("  " + name)
		}
	}
	return nil
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	if backupArchive == nil || productWriter == nil {
		return notConfigured("backup store")
	}

	records, err := backupArchive.Restore(args[0])
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	if len(records) == 0 {
		cmd.Println("Snapshot holds no products.")
		return nil
	}

	// Records keep their own source so they land under their original prefix.
	bySource := make(map[string][]domain.ProductRecord)
	var order []string
	for _, r := range records {
		src := r.Source
		if src == "" {
			src = backupRestoreSource
		}
		if _, ok := bySource[src]; !ok {
			order = append(order, src)
		}
		bySource[src] = append(bySource[src], r)
	}

	p := newPrinter(cmd.OutOrStdout())
	var failed int
	for _, src := range order {
		result := productWriter.StoreProductsBatch(commandContext(cmd), bySource[src], src)
		failed += result.Failed
		p.title("Restore " + src)
		printBatch(p, &result)
		p.blank()
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d products were not restored", domain.ErrTransientStore, failed)
	}
	return nil
}

func runBackupCleanup(cmd *cobra.Command, _ []string) error {
	if backupArchive == nil {
		return notConfigured("backup store")
	}

	days := backupCleanupDays
	if days <= 0 {
		days = domain.DefaultSettings().Backup.RetentionDays
		if settingsService != nil {
			if settings, err := settingsService.Get(); err == nil {
				days = settings.Backup.RetentionDays
			}
		}
	}

	removed, err := backupArchive.Cleanup(commandContext(cmd), time.Duration(days)*24*time.Hour)
	if err != nil {
		return fmt.Errorf("cleanup removed %d backups before failing: %w", removed, err)
	}
	cmd.Printf("Removed %d backups older than %d days.\n", removed, days)
	return nil
}
