package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/karolberezicki/content-search-lucene/internal/output"
	"github.com/karolberezicki/content-search-lucene/internal/query"
	"github.com/karolberezicki/content-search-lucene/internal/search"
)

// searchFlags holds the search command flags.
type searchFlags struct {
	field      string
	escaped    bool
	fuzzy      float64
	slop       int
	categories []string
	vpath      string
	exprFile   string
	indexes    []string
	identity   []string
	page       int
	pageSize   int
}

func newSearchCmd() *cobra.Command {
	var f searchFlags

	cmd := &cobra.Command{
		Use:   "search [TEXT...]",
		Short: "Search the indexes",
		Long: `Search with query TEXT in the classic syntax: AND, OR, NOT, +term,
-term, "phrases", field:term, (groups), term^boost, wildcards and
[a TO b] ranges. --fuzzy and --slop turn TEXT into a fuzzy or proximity
query. --expr reads a complete expression in its JSON form instead.`,
		Example: `  contentsearch search 'title:report AND NOT draft'
  contentsearch search --field title --fuzzy 0.7 repotr
  contentsearch search --category news --identity alice 'quarterly'
  contentsearch search --expr query.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request(strings.Join(args, " "), cmd.InOrStdin())
			if err != nil {
				return err
			}
			client, err := newClient()
			if err != nil {
				return err
			}
			res, err := client.Search(cmd.Context(), req)
			if err != nil {
				return err
			}
			return render(cmd, res, func(out *output.Writer) { out.Results(res) })
		},
	}

	cmd.Flags().StringVar(&f.field, "field", "", "Field to search; default searches all text fields")
	cmd.Flags().BoolVar(&f.escaped, "escaped", false, "Treat TEXT as one literal term")
	cmd.Flags().Float64Var(&f.fuzzy, "fuzzy", 0, "Fuzzy match with this minimum similarity (0-1)")
	cmd.Flags().IntVar(&f.slop, "slop", 0, "Proximity match with this slop")
	cmd.Flags().StringSliceVar(&f.categories, "category", nil, "Require all of these categories")
	cmd.Flags().StringVar(&f.vpath, "vpath", "", "Restrict to the subtree under this /-separated virtual path")
	cmd.Flags().StringVar(&f.exprFile, "expr", "", "Read the expression as JSON from this file (- for stdin)")
	cmd.Flags().StringSliceVar(&f.indexes, "index", nil, "Named index to search; repeatable, default all")
	cmd.Flags().StringSliceVar(&f.identity, "identity", nil, "Principal the caller acts as; repeatable")
	cmd.Flags().IntVar(&f.page, "page", 1, "Page number, from 1")
	cmd.Flags().IntVar(&f.pageSize, "page-size", search.DefaultPageSize, "Results per page")

	return cmd
}

// request builds the search request from the flags and TEXT.
func (f searchFlags) request(text string, stdin io.Reader) (search.Request, error) {
	req := search.Request{
		Identity: f.identity,
		Indexes:  f.indexes,
		Page:     f.page,
		PageSize: f.pageSize,
	}

	if f.exprFile != "" {
		if text != "" {
			return req, fmt.Errorf("--expr cannot be combined with query text")
		}
		data, err := readExpr(f.exprFile, stdin)
		if err != nil {
			return req, err
		}
		if req.Expr, err = query.Unmarshal(data); err != nil {
			return req, err
		}
		return req, nil
	}

	var parts []query.Expr
	if strings.TrimSpace(text) != "" {
		switch {
		case f.fuzzy > 0:
			parts = append(parts, query.Fuzzy{Text: text, Field: f.field, Similarity: f.fuzzy})
		case f.slop > 0:
			parts = append(parts, query.Proximity{Text: text, Field: f.field, Slop: f.slop})
		default:
			parts = append(parts, query.Field{Text: text, Field: f.field, Escaped: f.escaped})
		}
	}
	if len(f.categories) > 0 {
		parts = append(parts, query.Category{Categories: f.categories, Op: query.OpAnd})
	}
	if f.vpath != "" {
		parts = append(parts, query.VirtualPath{Nodes: splitPath(f.vpath)})
	}

	switch len(parts) {
	case 0:
		return req, fmt.Errorf("nothing to search for: give query text or a filter flag")
	case 1:
		req.Expr = parts[0]
	default:
		req.Expr = query.Group{Op: query.OpAnd, Children: parts}
	}
	return req, nil
}

func readExpr(name string, stdin io.Reader) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if name == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return nil, fmt.Errorf("read expression: %w", err)
	}
	return data, nil
}

func splitPath(p string) []string {
	var nodes []string
	for _, n := range strings.Split(p, "/") {
		if n = strings.TrimSpace(n); n != "" {
			nodes = append(nodes, n)
		}
	}
	return nodes
}
