package cli

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage importer settings",
	Long: `View and configure deduplication, storage, backup and scheduler options.

Settings live in ~/.b2drop/config.toml. Cloudflare credentials are read from
the environment and never stored.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a single setting",
	Long: `Change a single setting, e.g.

  b2drop-importer settings set dedup.threshold 0.8
  b2drop-importer settings set storage.backend postgres
  b2drop-importer settings set scheduler.interval 90m`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

var settingsWizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Interactive setup wizard",
	Long:  `Run an interactive wizard to choose the storage backend and deduplication threshold.`,
	RunE:  runSettingsWizard,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsWizardCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return notConfigured("settings service")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	p := newPrinter(cmd.OutOrStdout())

	p.title("[Dedup]")
	p.field("Threshold", settings.Dedup.Threshold)
	p.field("Price tolerance", settings.Dedup.PriceTolerance)
	p.blank()

	p.title("[Storage]")
	p.field("Backend", settings.Storage.Backend.Description())
	if settings.Storage.DataDir != "" {
		p.field("Data dir", settings.Storage.DataDir)
	}
	if settings.Storage.Backend == domain.StoragePostgres {
		p.field("DSN", maskDSN(settings.Storage.PostgresDSN))
	}
	p.field("Upload images", yesNo(settings.Storage.UploadImages))
	p.blank()

	p.title("[Protection]")
	p.field("Version backups", yesNo(settings.Protection.Enabled))
	p.field("Snapshot sample", settings.Backup.SampleSize)
	p.field("Retention", fmt.Sprintf("%d days", settings.Backup.RetentionDays))
	p.blank()

	p.title("[Scheduler]")
	p.field("Enabled", yesNo(settings.Scheduler.Enabled))
	for _, id := range []string{domain.TaskIDProductAggregation, domain.TaskIDBackupCleanup} {
		task := settings.Scheduler.GetTaskConfig(id)
		state := "disabled"
		if task.Enabled {
			state = "every " + task.Interval.String()
		}
		p.field(id, state)
	}
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return notConfigured("settings service")
	}
	if err := settingsService.Set(args[0], args[1]); err != nil {
		return fmt.Errorf("failed to set %s: %w", args[0], err)
	}
	cmd.Printf("Set %s.\n", args[0])
	return nil
}

func runSettingsWizard(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return notConfigured("settings service")
	}
	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	reader := bufio.NewReader(cmd.InOrStdin())

	cmd.Println("Importer Settings Wizard")
	cmd.Println("========================")
	cmd.Println()

	// Step 1: Storage backend
	cmd.Println("Step 1: Select Storage Backend")
	cmd.Println("------------------------------")
	backends := []domain.StorageBackend{
		domain.StorageSQLite, domain.StoragePostgres, domain.StorageCloudflare, domain.StorageMemory,
	}
	current := 1
	for i, b := range backends {
		cmd.Printf("  %d. %s\n", i+1, b.Description())
		if b == settings.Storage.Backend {
			current = i + 1
		}
	}
	cmd.Printf("\nEnter choice [%d]: ", current)
	settings.Storage.Backend = backends[parseChoice(readLine(reader), len(backends), current)-1]
	cmd.Println()

	if settings.Storage.Backend == domain.StoragePostgres {
		cmd.Print("PostgreSQL DSN (input hidden): ")
		if dsn := readSecret(cmd.InOrStdin(), reader); dsn != "" {
			settings.Storage.PostgresDSN = dsn
		}
		cmd.Println()
	}
	if settings.Storage.Backend == domain.StorageCloudflare {
		cmd.Println("Cloudflare credentials are read from CLOUDFLARE_API_TOKEN, CLOUDFLARE_ACCOUNT_ID,")
		cmd.Println("CLOUDFLARE_KV_NAMESPACE_ID, CLOUDFLARE_R2_BUCKET_NAME and CLOUDFLARE_R2_PUBLIC_DOMAIN.")
		cmd.Println()
	}

	// Step 2: Threshold
	cmd.Println("Step 2: Similarity Threshold")
	cmd.Println("----------------------------")
	cmd.Printf("Names at or above this similarity are treated as the same product.\n")
	cmd.Printf("Enter threshold [%.2f]: ", settings.Dedup.Threshold)
	if input := readLine(reader); input != "" {
		v, err := strconv.ParseFloat(input, 64)
		if err != nil {
			return fmt.Errorf("%w: threshold %q", domain.ErrInvalidInput, input)
		}
		settings.Dedup.Threshold = v
	}
	cmd.Println()

	if err := settingsService.Save(settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	cmd.Println("Configuration Complete!")
	cmd.Printf("Storage: %s, threshold %.2f\n", settings.Storage.Backend.Description(), settings.Dedup.Threshold)
	return nil
}

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func parseChoice(input string, maxVal, defaultVal int) int {
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil || val < 1 || val > maxVal {
		return defaultVal
	}
	return val
}

// readSecret reads a line without echo when in is a terminal.
func readSecret(in io.Reader, fallback *bufio.Reader) string {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		if err == nil {
			return strings.TrimSpace(string(secret))
		}
	}
	return readLine(fallback)
}

// maskDSN hides the password of a connection string.
func maskDSN(dsn string) string {
	if dsn == "" {
		return "(not set)"
	}
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" {
		return u.Redacted()
	}
	fields := strings.Fields(dsn)
	for i, f := range fields {
		if strings.HasPrefix(f, "password=") {
			fields[i] = "password=xxxxx"
		}
	}
	return strings.Join(fields, " ")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
