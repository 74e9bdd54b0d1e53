// Package cmd provides the CLI commands for contentsearch.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/karolberezicki/content-search-lucene/internal/config"
	"github.com/karolberezicki/content-search-lucene/internal/daemon"
	"github.com/karolberezicki/content-search-lucene/internal/logging"
	"github.com/karolberezicki/content-search-lucene/internal/output"
	"github.com/karolberezicki/content-search-lucene/internal/profiling"
	"github.com/karolberezicki/content-search-lucene/pkg/version"
)

// Global flags.
var (
	debugMode      bool
	configDir      string
	jsonOutput     bool
	loggingCleanup func()

	profileOpts profiling.Options
	profiler    *profiling.Session
)

// NewRootCmd creates the root command for the contentsearch CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contentsearch",
		Short: "Full-text search over content items",
		Long: `contentsearch keeps one or more named full-text indexes of content
items. Hosts queue add, update and remove requests; a long-running daemon
applies them in order and answers structured search queries.

Start the daemon with 'contentsearch serve'. Every other command talks
to the running daemon over its Unix socket.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("contentsearch version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.contentsearch/logs/")
	cmd.PersistentFlags().StringVar(&configDir, "config-dir", ".", "Directory holding contentsearch.yaml")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")

	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := startLogging(cmd, args); err != nil {
			return err
		}
		return startProfiling()
	}
	cmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		err := stopProfiling()
		_ = stopLogging(cmd, args)
		return err
	}

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSubmitCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newIndexesCmd())
	cmd.AddCommand(newResetCmd())
	cmd.AddCommand(newQueueCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug_logging_enabled",
		slog.String("log_file", logging.DefaultLogPath()),
		slog.String("version", version.Version))
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

func startProfiling() error {
	if !profileOpts.Enabled() {
		return nil
	}
	s, err := profiling.Start(profileOpts)
	if err != nil {
		return err
	}
	profiler = s
	return nil
}

func stopProfiling() error {
	if profiler == nil {
		return nil
	}
	err := profiler.Stop()
	profiler = nil
	return err
}

// Execute runs the root command and prints a failure to stderr.
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		_ = stopProfiling()
		_ = stopLogging(root, nil)
		printError(root, err)
	}
	return err
}

func printError(cmd *cobra.Command, err error) {
	out := output.New(cmd.ErrOrStderr())
	out.Errorf("%v", err)
	if s := suggestion(err); s != "" {
		out.Status("", s)
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(configDir)
}

// newClient loads configuration and returns a daemon client.
func newClient() (*daemon.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return daemon.NewClient(daemon.ConfigFrom(cfg)), nil
}

// render prints v as JSON with --json, or calls text otherwise.
func render(cmd *cobra.Command, v any, text func(*output.Writer)) error {
	out := output.New(cmd.OutOrStdout())
	if jsonOutput {
		return out.JSON(v)
	}
	text(out)
	return nil
}
