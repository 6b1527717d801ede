package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/deusflow/feedcurator/internal/app"
	"github.com/deusflow/feedcurator/internal/config"
	"github.com/deusflow/feedcurator/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "feedcurator",
		Short: "Polls feeds, picks relevant stories and posts summaries to Telegram",
		Long: `feedcurator polls RSS feeds every hour, asks a language model which entries
are new and on-topic, summarizes them and publishes the result to a Telegram channel.

Example usage:
  feedcurator run      # hourly loop (default)
  feedcurator once     # single cycle, for cron
  feedcurator prune    # drop history older than 7 days`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runForever,
	}
	root.AddCommand(
		&cobra.Command{Use: "run", Short: "Run cycles at the top of every hour", RunE: runForever},
		&cobra.Command{Use: "once", Short: "Run a single cycle and exit", RunE: runOnce},
		&cobra.Command{Use: "prune", Short: "Evict old history and exit", RunE: runPrune},
	)
	return root
}

func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.Init(cfg.LogLevel, cfg.Debug), nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func runForever(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	ctx, stop := signalContext(cmd)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.MonitoringEnabled {
		srv := startMonitoringServer(cfg.MonitoringPort, app.MonitoringHandler(a.Metrics(), a.Budget()), log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	log.Info("feedcurator started", "feeds", len(cfg.Feeds), "provider", cfg.LLMProvider, "store", cfg.DBDriver)
	return a.RunForever(ctx)
}

func runOnce(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	ctx, stop := signalContext(cmd)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.RunOnce(ctx)
	log.Info("single run finished", "published", report.Published(), "failed_feeds", report.FailedFeeds())
	return err
}

func runPrune(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if cfg == nil {
		return err
	}
	if err := cfg.ValidateStore(); err != nil {
		return err
	}
	log := logger.Init(cfg.LogLevel, cfg.Debug)

	ctx, stop := signalContext(cmd)
	defer stop()

	store, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := app.Prune(ctx, store, nil)
	if err != nil {
		return err
	}
	log.Info("history pruned", "removed", n)
	return nil
}

func startMonitoringServer(port string, handler http.Handler, log *slog.Logger) *http.Server {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("starting monitoring server", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("monitoring server error", "error", err)
		}
	}()
	return srv
}
