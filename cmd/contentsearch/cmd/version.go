package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/karolberezicki/content-search-lucene/internal/output"
	"github.com/karolberezicki/content-search-lucene/pkg/version"
)

func newVersionCmd() *cobra.Command {
	var shortOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if shortOutput {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Short())
				return err
			}
			return render(cmd, version.GetInfo(), func(*output.Writer) {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.String())
			})
		},
	}

	cmd.Flags().BoolVar(&shortOutput, "short", false, "Output only the version number")
	return cmd
}
