// Command b2drop-importer deduplicates product listings and upserts them
// into the configured object store.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	backupfile "github.com/xerifegomes/b2drop-cloudflare-importer/internal/adapters/driven/backup/file"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/adapters/driven/cloudflare"
	configfile "github.com/xerifegomes/b2drop-cloudflare-importer/internal/adapters/driven/config/file"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/adapters/driven/storage/memory"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/adapters/driven/storage/postgres"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/adapters/driven/storage/sqlite"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/adapters/driving/cli"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/connectors/jsonfile"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/ports/driven"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/ports/driving"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/services"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/dedup"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	configStore, err := configfile.NewConfigStore("")
	if err != nil {
		return fmt.Errorf("opening config: %w", err)
	}
	svc, closeStorage, err := wire(ctx, configStore, os.Getenv)
	if err != nil {
		return err
	}
	defer closeStorage()

	cli.SetServices(svc)
	return cli.Execute(ctx)
}

// wire builds the services for the configured backend. When the backend
// cannot be opened only the storage-free services are returned, so the
// settings and dedup commands stay usable and a bad backend choice can be
// corrected.
func wire(ctx context.Context, configStore driven.ConfigStore, getenv func(string) string) (cli.Services, func(), error) {
	settings, err := services.LoadSettings(configStore)
	if err != nil {
		return cli.Services{}, nil, err
	}

	svc := cli.Services{
		Settings: services.NewSettingsService(configStore),
		NewDeduplicator: func(threshold float64) (driving.Deduplicator, error) {
			return newDeduplicator(threshold, settings.Dedup.SourceTrust)
		},
		OpenFile: func(source, path string) driven.Connector {
			return jsonfile.New(source, path)
		},
	}

	store, err := openBackend(ctx, settings, getenv)
	if err != nil {
		logger.Warn("Storage unavailable (%s): %v", settings.Storage.Backend, err)
		return svc, func() {}, nil
	}

	sink, err := backupfile.NewSink(settings.Backup.Dir, nil)
	if err != nil {
		logger.Warn("Backups disabled: %v", err)
	}
	var backups driven.BackupSink
	if sink != nil {
		backups = sink
		svc.Backups = sink
	}

	writer := services.NewProductWriter(store.objects, backups, services.WriterConfig{
		Protection:   settings.Protection.Enabled,
		UploadImages: settings.Storage.UploadImages,
		SampleSize:   settings.Backup.SampleSize,
	})
	svc.Writer = writer

	deduplicator, err := newDeduplicator(settings.Dedup.Threshold, settings.Dedup.SourceTrust)
	if err != nil {
		store.Close()
		return cli.Services{}, nil, err
	}
	svc.NewAggregator = func(connectors ...driven.Connector) driving.Aggregator {
		return services.NewAggregator(deduplicator, writer, nil, connectors...)
	}
	svc.NewScheduler = func(aggregator driving.Aggregator, source string) driving.Scheduler {
		s := services.NewScheduler(settings.Scheduler, store.scheduler, aggregator, source)
		if sink != nil {
			s.WithBackupCleanup(sink, time.Duration(settings.Backup.RetentionDays)*24*time.Hour)
		}
		return s
	}

	return svc, store.Close, nil
}

func newDeduplicator(threshold float64, trust map[string]float64) (*dedup.Deduplicator, error) {
	g, err := dedup.NewGrouper(threshold)
	if err != nil {
		return nil, err
	}
	return dedup.NewDeduplicator(g, dedup.NewResolver(trust, nil)), nil
}

// backend is the object store selected by storage.backend together with
// the scheduler state store that accompanies it.
type backend struct {
	objects   driven.ObjectStore
	scheduler driven.SchedulerStore
	closer    io.Closer
}

func (b *backend) Close() {
	if b.closer == nil {
		return
	}
	if err := b.closer.Close(); err != nil {
		logger.Warn("Closing storage: %v", err)
	}
}

func openBackend(ctx context.Context, settings domain.Settings, getenv func(string) string) (*backend, error) {
	switch settings.Storage.Backend {
	case domain.StorageMemory:
		return &backend{
			objects:   memory.NewObjectStore(nil),
			scheduler: memory.NewSchedulerStore(),
		}, nil

	case domain.StorageSQLite:
		store, err := sqlite.NewStore(settings.Storage.DataDir)
		if err != nil {
			return nil, err
		}
		return &backend{objects: store.ObjectStore(), scheduler: store.SchedulerStore(), closer: store}, nil

	case domain.StoragePostgres:
		store, err := postgres.Open(ctx, settings.Storage.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return &backend{objects: store, scheduler: memory.NewSchedulerStore(), closer: store}, nil

	case domain.StorageCloudflare:
		cfg := cloudflare.ConfigFromEnv(getenv)
		cfg.RequestsPerSecond = settings.Cloudflare.RequestsPerSecond
		cfg.Burst = settings.Cloudflare.Burst
		client, err := cloudflare.NewClient(cfg, nil)
		if err != nil {
			return nil, err
		}
		if settings.Storage.UploadImages {
			created, err := client.EnsureBucket(ctx)
			if err != nil {
				logger.Warn("R2 bucket check failed: %v", err)
			} else if created {
				logger.Info("Created R2 bucket %s", cfg.BucketName)
			}
		}
		return &backend{objects: client, scheduler: memory.NewSchedulerStore()}, nil

	default:
		return nil, fmt.Errorf("%w: storage backend %q", domain.ErrUnsupportedType, settings.Storage.Backend)
	}
}
