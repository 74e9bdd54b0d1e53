package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/karolberezicki/content-search-lucene/internal/output"
	"github.com/karolberezicki/content-search-lucene/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the daemon can run here",
		Long: `Check the directories, socket path, free disk space and file
descriptor limit the daemon needs. Missing directories are created.
'serve' runs the same checks and refuses to start on a failure.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			checker := preflight.New(preflight.WithOutput(cmd.OutOrStdout()), preflight.WithVerbose(verbose))
			results := checker.RunAll(cfg)

			if jsonOutput {
				if err := output.New(cmd.OutOrStdout()).JSON(results); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}
			if checker.HasCriticalFailures(results) {
				return fmt.Errorf("system check failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details of passing checks")
	return cmd
}
