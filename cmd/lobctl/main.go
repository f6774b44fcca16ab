// Command lobctl is the entry point wiring the matching engine, the
// day-end pruner, the wire server, metrics, and the snapshot feed into
// one process. Subcommand dispatch follows the pack's cobra CLI shape
// (VictorVVedtion-perp-dex's x/orderbook/client/cli); the top-level
// SIGTERM/SIGINT shutdown trigger is kept verbatim from the teacher's
// cmd/main.go (signal.NotifyContext + defer stop()).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	tomb "gopkg.in/tomb.v2"

	"lobengine/internal/engine"
	"lobengine/internal/feed"
	"lobengine/internal/metrics"
	"lobengine/internal/pruner"
	"lobengine/internal/scenario"
	"lobengine/internal/server"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("lobctl failed")
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lobctl",
		Short: "Run and exercise the limit order book matching engine",
	}
	root.AddCommand(serveCmd(), scenarioCmd(), versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}

func scenarioCmd() *cobra.Command {
	var showTrades bool
	cmd := &cobra.Command{
		Use:   "scenario <file>",
		Short: "Run a scenario file against a fresh engine and print the terminal book shape",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			s, err := scenario.Parse(f)
			if err != nil {
				return err
			}

			e := engine.New()
			trades, assertErr := s.RunAndAssert(e)

			if showTrades {
				for _, tr := range trades {
					fmt.Println(tr.String())
				}
			}

			bids, asks := e.Snapshot()
			fmt.Printf("size=%d bids=%d asks=%d\n", e.Size(), len(bids), len(asks))
			return assertErr
		},
	}
	cmd.Flags().BoolVar(&showTrades, "trades", false, "print the emitted trade stream")
	return cmd
}

func serveCmd() *cobra.Command {
	var (
		addr         string
		metricsAddr  string
		feedAddr     string
		dayEndHour   int
		feedInterval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the matching engine as a long-lived service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), serveConfig{
				addr:         addr,
				metricsAddr:  metricsAddr,
				feedAddr:     feedAddr,
				dayEndHour:   dayEndHour,
				feedInterval: feedInterval,
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", envOr("LOBCTL_ADDR", "0.0.0.0:9001"), "wire protocol listen address")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", envOr("LOBCTL_METRICS_ADDR", "0.0.0.0:9090"), "prometheus /metrics listen address")
	cmd.Flags().StringVar(&feedAddr, "feed-addr", envOr("LOBCTL_FEED_ADDR", "0.0.0.0:9091"), "websocket snapshot feed listen address")
	cmd.Flags().IntVar(&dayEndHour, "day-end-hour", 16, "local hour of day the trading session ends")
	cmd.Flags().DurationVar(&feedInterval, "feed-interval", feed.DefaultInterval, "snapshot feed broadcast interval")
	return cmd
}

// envOr supports the plain flag-with-env-fallback configuration this
// CLI needs; pulling in viper for six scalar settings would be
// unjustified dependency weight (see DESIGN.md).
func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

type serveConfig struct {
	addr         string
	metricsAddr  string
	feedAddr     string
	dayEndHour   int
	feedInterval time.Duration
}

func runServe(ctx context.Context, cfg serveConfig) error {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	e := engine.New()
	reg := prometheus.NewRegistry()
	collector := metrics.New(reg)
	e.Attach(collector)

	wireServer := server.New(cfg.addr, e)
	snapshotFeed := feed.New(e, cfg.feedInterval)
	dayEndPruner := pruner.New(e, pruner.WithDayEnd(time.Duration(cfg.dayEndHour)*time.Hour))

	t, ctx := tomb.WithContext(ctx)
	g, gctx := errgroup.WithContext(ctx)

	t.Go(func() error { return wireServer.Run(t) })
	t.Go(func() error { return dayEndPruner.Run(t) })
	t.Go(func() error { return snapshotFeed.Run(t) })

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: cfg.metricsAddr, Handler: metricsMux}

	feedMux := http.NewServeMux()
	feedMux.HandleFunc("/snapshot", snapshotFeed.Handler)
	feedSrv := &http.Server{Addr: cfg.feedAddr, Handler: feedMux}

	g.Go(func() error {
		log.Info().Str("addr", cfg.metricsAddr).Msg("metrics server listening")
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", cfg.feedAddr).Msg("snapshot feed listening")
		if err := feedSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsSrv.Shutdown(shutdownCtx)
		feedSrv.Shutdown(shutdownCtx)
		return nil
	})

	refreshMetrics := func() {
		bids, asks := e.Snapshot()
		collector.Refresh(bids, asks)
	}
	g.Go(func() error {
		ticker := time.NewTicker(cfg.feedInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				refreshMetrics()
			}
		}
	})

	<-ctx.Done()
	t.Kill(nil)
	tombErr := t.Wait()
	groupErr := g.Wait()
	if tombErr != nil {
		return tombErr
	}
	return groupErr
}
