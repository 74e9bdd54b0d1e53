package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/karolberezicki/content-search-lucene/internal/config"
	"github.com/karolberezicki/content-search-lucene/internal/daemon"
	"github.com/karolberezicki/content-search-lucene/internal/logging"
	"github.com/karolberezicki/content-search-lucene/internal/preflight"
	"github.com/karolberezicki/content-search-lucene/internal/service"
)

func newServeCmd() *cobra.Command {
	var logFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the search daemon",
		Long: `Run the daemon in the foreground. It owns the data directory, serves
requests on the Unix socket, drains the queue every queue.flush_interval
and shortly after new requests arrive, and watches the inbox directory
when inbox.enabled is set. SIGINT or SIGTERM stops it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), logFile)
		},
	}

	cmd.Flags().StringVar(&logFile, "log-file", logging.DefaultLogPath(), "Log file; empty logs to stderr only")
	return cmd
}

func runServe(parent context.Context, logFile string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if !debugMode {
		logCfg := logging.DefaultConfig()
		logCfg.Level = cfg.Server.LogLevel
		logCfg.FilePath = logFile
		logger, cleanup, err := logging.Setup(logCfg)
		if err != nil {
			return fmt.Errorf("failed to setup logging: %w", err)
		}
		defer cleanup()
		slog.SetDefault(logger)
	}

	if err := runPreflight(cfg); err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := service.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			slog.Error("service_close_failed", slog.String("error", err.Error()))
		}
	}()

	d, err := daemon.New(daemon.ConfigFrom(cfg), svc)
	if err != nil {
		return err
	}
	return d.Run(ctx)
}

func runPreflight(cfg *config.Config) error {
	checker := preflight.New()
	for _, r := range checker.RunAll(cfg) {
		switch {
		case r.IsCritical():
			return fmt.Errorf("preflight check %s failed: %s", r.Name, r.Message)
		case r.Status != preflight.StatusPass:
			slog.Warn("preflight_warning",
				slog.String("check", r.Name),
				slog.String("message", r.Message))
		}
	}
	return nil
}
