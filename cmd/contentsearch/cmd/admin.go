package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/karolberezicki/content-search-lucene/internal/output"
)

func newIndexesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "indexes",
		Short: "List the named indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			names, err := client.Indexes(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd, names, func(*output.Writer) {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), strings.Join(names, "\n"))
			})
		},
	}
}

func newResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset NAME",
		Short: "Delete every document of a named index",
		Long: `Delete every document and reference row of the named index. Queued
requests for the index are kept. Requires --yes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to reset %q without --yes", args[0])
			}
			client, err := newClient()
			if err != nil {
				return err
			}
			if err := client.Reset(cmd.Context(), args[0]); err != nil {
				return err
			}
			return render(cmd, map[string]string{"reset": args[0]}, func(out *output.Writer) {
				out.Successf("index %s reset", args[0])
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the reset")
	return cmd
}

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and drain the request queue",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show pending requests per index and the last drain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			st, err := client.QueueStatus(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd, st, func(out *output.Writer) { out.QueueStatus(st) })
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "process",
		Short: "Apply every queued request now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			rep, err := client.ProcessQueue(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd, rep, func(out *output.Writer) { out.Report(rep) })
		},
	})

	var yes bool
	truncate := &cobra.Command{
		Use:   "truncate",
		Short: "Discard every queued request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to truncate the queue without --yes")
			}
			client, err := newClient()
			if err != nil {
				return err
			}
			n, err := client.TruncateQueue(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd, map[string]int64{"discarded": n}, func(out *output.Writer) {
				out.Successf("discarded %d queued requests", n)
			})
		},
	}
	truncate.Flags().BoolVar(&yes, "yes", false, "Confirm the truncation")
	cmd.AddCommand(truncate)

	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, index and queue status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			st, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd, st, func(out *output.Writer) {
				out.ServiceStatus(st.Service, st.PID, st.Uptime)
			})
		},
	}
}

