package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/karolberezicki/content-search-lucene/configs"
	"github.com/karolberezicki/content-search-lucene/internal/config"
	"github.com/karolberezicki/content-search-lucene/internal/output"
)

func newInitCmd() *cobra.Command {
	var (
		force    bool
		resolved bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a contentsearch.yaml into the config directory",
		Long: `Write a commented contentsearch.yaml template into --config-dir.
With --resolved the file holds the effective configuration instead:
defaults, the user config and environment overrides, fully spelled out.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := filepath.Join(configDir, config.ProjectFileName)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.MkdirAll(configDir, 0o755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}

			if resolved {
				cfg, err := config.Load(configDir)
				if err != nil {
					return err
				}
				if err := cfg.WriteYAML(path); err != nil {
					return err
				}
			} else if err := os.WriteFile(path, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}

			output.New(cmd.OutOrStdout()).Successf("wrote %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.Flags().BoolVar(&resolved, "resolved", false, "Write the effective configuration instead of the template")
	return cmd
}
