package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/yairfalse/reaper/ledger"
	"github.com/yairfalse/reaper/providers/aws"
	"github.com/yairfalse/reaper/sweeper"
	"github.com/yairfalse/reaper/telemetry"
	"github.com/yairfalse/reaper/wal"
)

var (
	sweepDaemon   bool
	sweepInterval time.Duration
	sweepRegion   string
)

// sweepCmd represents the sweep command
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Terminate expired instances across the fleet",
	Long: `Scan every running instance and terminate the ones whose expiry has
passed, plus the ones that never declared one.

Instances with a valid future termination_date are left alone. A
missing or unreadable termination_date at sweep time is an anomaly:
the instance is terminated and flagged, because the watcher should
have settled the tag long ago.

One sweep per invocation by default; --daemon sweeps on an interval
and serves Prometheus metrics.`,
	Example: `  reaper sweep                            # One dry-run sweep
  LIVE_MODE=true reaper sweep             # One armed sweep
  reaper sweep --daemon --interval 15m    # Continuous sweeping
  reaper sweep --region eu-west-1         # Sweep a specific region`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	sweepCmd.Flags().BoolVarP(&sweepDaemon, "daemon", "d", false, "Sweep continuously instead of once")
	sweepCmd.Flags().DurationVarP(&sweepInterval, "interval", "i", 15*time.Minute, "Sweep interval in daemon mode")
	sweepCmd.Flags().StringVarP(&sweepRegion, "region", "r", "", "AWS region (overrides config)")
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	rt, err := setupRuntime(ctx, "reaper-sweep")
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	if sweepRegion != "" {
		rt.cfg.Region = sweepRegion
	}

	provider, err := aws.NewProvider(ctx, rt.cfg.Region)
	if err != nil {
		return fmt.Errorf("failed to create aws provider: %w", err)
	}

	audit, err := wal.Open(rt.cfg.WALDir)
	if err != nil {
		return fmt.Errorf("failed to open wal: %w", err)
	}
	defer func() { _ = audit.Close() }()

	book, err := ledger.Open(rt.cfg.LedgerPath)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer func() { _ = book.Close() }()

	s := sweeper.New(provider, rt.logger, audit, book, sweeper.Options{
		LiveMode: rt.cfg.LiveMode,
	})

	if !sweepDaemon {
		result, err := s.Sweep(ctx)
		if err != nil {
			return err
		}
		printSweepResult(result, rt.cfg.LiveMode)
		return nil
	}

	return runSweepDaemon(ctx, rt, s)
}

// runSweepDaemon composes the sweep loop, the metrics server, and
// signal handling into one actor group. The first actor to return
// tears down the rest.
func runSweepDaemon(ctx context.Context, rt *runtime, s *sweeper.Sweeper) error {
	var g run.Group

	g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	loopCtx, cancelLoop := context.WithCancel(ctx)
	g.Add(func() error {
		return sweepLoop(loopCtx, rt, s)
	}, func(error) {
		cancelLoop()
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(telemetry.PrometheusRegistry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              rt.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Add(func() error {
		rt.logger.WithContext(ctx).Info().Str("addr", rt.cfg.MetricsAddr).Msg("starting metrics server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	})

	rt.logger.WithContext(ctx).Info().
		Str("region", rt.cfg.Region).
		Dur("interval", sweepInterval).
		Bool("live_mode", rt.cfg.LiveMode).
		Msg("sweep daemon starting")

	err := g.Run()
	if _, ok := err.(run.SignalError); ok {
		rt.logger.WithContext(ctx).Info().Msg("shutting down")
		return nil
	}
	return err
}

// sweepLoop runs an immediate sweep, then one per tick. A failed sweep
// is logged and retried on the next tick.
func sweepLoop(ctx context.Context, rt *runtime, s *sweeper.Sweeper) error {
	sweepOnce(ctx, rt, s)

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sweepOnce(ctx, rt, s)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func sweepOnce(ctx context.Context, rt *runtime, s *sweeper.Sweeper) {
	if _, err := s.Sweep(ctx); err != nil {
		rt.logger.WithContext(ctx).Error().Err(err).Msg("sweep failed")
	}
}

func printSweepResult(result *sweeper.Result, live bool) {
	mode := "dry-run"
	if live {
		mode = "live"
	}
	fmt.Fprintf(os.Stdout, "Sweep complete (%s): scanned=%d terminated=%d anomalous=%d skipped=%d failed=%d in %s\n",
		mode, result.Scanned, len(result.Terminated), len(result.Anomalous),
		len(result.Skipped), len(result.Failed), result.Duration.Round(time.Millisecond))
}
