package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/karolberezicki/content-search-lucene/internal/document"
	"github.com/karolberezicki/content-search-lucene/internal/inbox"
	"github.com/karolberezicki/content-search-lucene/internal/output"
)

func newSubmitCmd() *cobra.Command {
	var process bool

	cmd := &cobra.Command{
		Use:   "submit FILE...",
		Short: "Queue change requests from JSON files",
		Long: `Queue the change requests in each FILE. A file holds one request
object or an array of them, in the same form the inbox accepts.
Use - to read from standard input.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var reqs []document.ChangeRequest
			for _, name := range args {
				parsed, err := readRequests(cmd, name)
				if err != nil {
					return err
				}
				reqs = append(reqs, parsed...)
			}

			client, err := newClient()
			if err != nil {
				return err
			}
			n, err := client.Update(cmd.Context(), reqs...)
			if err != nil {
				return err
			}
			if !process {
				return render(cmd, map[string]int{"queued": n}, func(out *output.Writer) {
					out.Successf("queued %d requests", n)
				})
			}

			rep, err := client.ProcessQueue(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd, rep, func(out *output.Writer) {
				out.Successf("queued %d requests", n)
				out.Report(rep)
			})
		},
	}

	cmd.Flags().BoolVar(&process, "process", false, "Drain the queue after submitting")
	return cmd
}

func readRequests(cmd *cobra.Command, name string) ([]document.ChangeRequest, error) {
	var (
		data []byte
		err  error
	)
	if name == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	reqs, err := inbox.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return reqs, nil
}
