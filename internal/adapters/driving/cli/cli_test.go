package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	backupfile "github.com/xerifegomes/b2drop-cloudflare-importer/internal/adapters/driven/backup/file"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/adapters/driven/storage/memory"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/connectors/jsonfile"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/ports/driven"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/ports/driving"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/services"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/dedup"
)

// testEnv holds the in-memory services behind the commands.
type testEnv struct {
	store    *memory.ObjectStore
	config   *memory.ConfigStore
	settings *services.SettingsService
	backups  *backupfile.Sink
}

func newDeduper(threshold float64) (driving.Deduplicator, error) {
	g, err := dedup.NewGrouper(threshold)
	if err != nil {
		return nil, err
	}
	return dedup.NewDeduplicator(g, dedup.NewResolver(nil, nil)), nil
}

// setupServices wires in-memory services and restores the previous ones
// when the test ends.
func setupServices(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:  memory.NewObjectStore(nil),
		config: memory.NewConfigStore(),
	}
	env.settings = services.NewSettingsService(env.config)
	sink, err := backupfile.NewSink(t.TempDir(), nil)
	require.NoError(t, err)
	env.backups = sink
	schedulerStore := memory.NewSchedulerStore()
	writer := services.NewProductWriter(env.store, sink, services.WriterConfig{Protection: true})

	SetServices(Services{
		Settings:        env.settings,
		Writer:          writer,
		NewDeduplicator: newDeduper,
		NewAggregator: func(connectors ...driven.Connector) driving.Aggregator {
			d, _ := newDeduper(domain.DefaultSimilarityThreshold)
			return services.NewAggregator(d, writer, nil, connectors...)
		},
		OpenFile: func(source, path string) driven.Connector {
			return jsonfile.New(source, path)
		},
		NewScheduler: func(aggregator driving.Aggregator, source string) driving.Scheduler {
			return services.NewScheduler(domain.DefaultSchedulerConfig(), schedulerStore, aggregator, source)
		},
		Backups: sink,
	})
	t.Cleanup(func() { SetServices(Services{}) })
	return env
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
	}()

	err := rootCmd.Execute()
	return buf.String(), err
}

// resetFlags restores every flag to its default so runs do not leak.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func writeJSON(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "products.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const sampleProducts = `[
	{"produto": "Smartwatch Xiaomi Band 8", "preco": 250, "loja": "Loja A"},
	{"produto": "Smartwatch Xiaomi Band 8", "preco": 250, "loja": "Loja B"},
	{"produto": "Caneca Térmica Inox", "preco": 79.9, "categoria": "Home"},
	{"produto": "", "preco": 10}
]`
