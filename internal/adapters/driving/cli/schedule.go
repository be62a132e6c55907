package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/ports/driven"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/logger"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/metrics"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule <file.json>...",
	Short: "Run product aggregation on a schedule",
	Long: `Runs the product aggregation task over the given JSON exports at the
configured interval, plus the backup cleanup task, until interrupted.
With --once the aggregation runs a single time and the command exits.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSchedule,
}

var scheduleHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent scheduled runs",
	Args:  cobra.NoArgs,
	RunE:  runScheduleHistory,
}

var (
	scheduleHistoryLimit int
	scheduleSource       string
	scheduleOnce        bool
	scheduleMetricsAddr string
)

func init() {
	scheduleCmd.Flags().StringVarP(&scheduleSource, "source", "s", "google_trending", "source name used in product keys")
	scheduleCmd.Flags().BoolVar(&scheduleOnce, "once", false, "run the aggregation once and exit")
	scheduleCmd.Flags().StringVar(&scheduleMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	scheduleHistoryCmd.Flags().IntVarP(&scheduleHistoryLimit, "limit", "n", 10, "runs to show per task")
	scheduleCmd.AddCommand(scheduleHistoryCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	if newScheduler == nil || newAggregator == nil || openFile == nil {
		return notConfigured("scheduler")
	}
	ctx := commandContext(cmd)

	connectors := make([]driven.Connector, 0, len(args))
	for _, path := range args {
		connectors = append(connectors, openFile(scheduleSource, path))
	}
	s := newScheduler(newAggregator(connectors...), scheduleSource)

	if scheduleOnce {
		result, err := s.RunNow(ctx, domain.TaskIDProductAggregation)
		if result != nil {
			p := newPrinter(cmd.OutOrStdout())
			p.title("Product aggregation")
			p.field("Items stored", result.ItemsProcessed)
			p.field("Duration", result.Duration().Round(time.Millisecond))
		}
		return err
	}

	if scheduleMetricsAddr != "" {
		srv := &http.Server{
			Addr:              scheduleMetricsAddr,
			Handler:           metricsMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		cmd.Printf("Serving metrics on %s/metrics\n", scheduleMetricsAddr)
	}

	cmd.Println("Scheduler running. Press Ctrl+C to stop.")

	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx)
	}()

	select {
	case err := <-done:
		_ = s.Stop()
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("scheduler: %w", err)
		}
	case <-ctx.Done():
		if err := s.Stop(); err != nil {
			return fmt.Errorf("stopping scheduler: %w", err)
		}
		<-done
	}

	cmd.Println("Scheduler stopped.")
	return nil
}

func runScheduleHistory(cmd *cobra.Command, _ []string) error {
	if newScheduler == nil {
		return notConfigured("scheduler")
	}
	s := newScheduler(nil, scheduleSource)
	p := newPrinter(cmd.OutOrStdout())

	for i, id := range []string{domain.TaskIDProductAggregation, domain.TaskIDBackupCleanup} {
		history, err := s.History(commandContext(cmd), id, scheduleHistoryLimit)
		if err != nil {
			return fmt.Errorf("failed to read history of %s: %w", id, err)
		}
		if i > 0 {
			p.blank()
		}
		p.title(domain.TaskName(id))
		if len(history) == 0 {
			cmd.Println("  no runs recorded")
			continue
		}
		for _, r := range history {
			line := fmt.Sprintf("%s  %d items  %s", r.StartedAt.Format(time.DateTime), r.ItemsProcessed, r.Duration().Round(time.Millisecond))
			if r.Success {
				p.success("  " + line)
			} else {
				p.fail("  " + line + "  " + r.Error)
			}
		}
	}
	return nil
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
