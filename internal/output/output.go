// Package output formats CLI results, with color when writing to a terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/karolberezicki/content-search-lucene/internal/indexing"
	"github.com/karolberezicki/content-search-lucene/internal/search"
	"github.com/karolberezicki/content-search-lucene/internal/service"
	"github.com/karolberezicki/content-search-lucene/internal/telemetry"
)

// Palette.
const (
	ColorAccent = "154"
	ColorGray   = "245"
	ColorRed    = "196"
	ColorYellow = "220"
)

type styles struct {
	header  lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	err     lipgloss.Style
	dim     lipgloss.Style
}

func colorStyles() styles {
	return styles{
		header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)),
		success: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent)),
		warning: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		err:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
	}
}

func plainStyles() styles {
	return styles{
		header:  lipgloss.NewStyle(),
		success: lipgloss.NewStyle(),
		warning: lipgloss.NewStyle(),
		err:     lipgloss.NewStyle(),
		dim:     lipgloss.NewStyle(),
	}
}

// Writer provides formatted output for CLI.
type Writer struct {
	out    io.Writer
	styles styles
}

// New creates a Writer. Color is used only for a terminal and only when
// NO_COLOR is unset.
func New(out io.Writer) *Writer {
	s := plainStyles()
	if IsTTY(out) && !DetectNoColor() {
		s = colorStyles()
	}
	return &Writer{out: out, styles: s}
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor checks if the NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// Status prints a message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Status(w.styles.success.Render("✓"), fmt.Sprintf(format, args...))
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Status(w.styles.warning.Render("!"), fmt.Sprintf(format, args...))
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Status(w.styles.err.Render("✗"), fmt.Sprintf(format, args...))
}

// JSON writes v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Results prints one block per hit.
func (w *Writer) Results(res search.Results) {
	from := (res.Page-1)*res.PageSize + 1
	if len(res.Items) == 0 {
		_, _ = fmt.Fprintf(w.out, "%s\n", w.styles.dim.Render(fmt.Sprintf("no results (%d total)", res.TotalHits)))
		return
	}
	to := from + len(res.Items) - 1
	_, _ = fmt.Fprintf(w.out, "%s\n\n",
		w.styles.header.Render(fmt.Sprintf("%d-%d of %d results", from, to, res.TotalHits)))

	for i, item := range res.Items {
		title := item.Title
		if title == "" {
			title = item.ID
		}
		_, _ = fmt.Fprintf(w.out, "%3d. %s %s\n", from+i,
			w.styles.header.Render(title),
			w.styles.dim.Render(fmt.Sprintf("[%s] %.3f", item.NamedIndex, item.Score)))
		_, _ = fmt.Fprintf(w.out, "     %s\n", w.styles.dim.Render("id: "+item.ID))
		if item.URI != "" {
			_, _ = fmt.Fprintf(w.out, "     %s\n", item.URI)
		}
		if text := oneLine(item.DisplayText, 160); text != "" {
			_, _ = fmt.Fprintf(w.out, "     %s\n", text)
		}
		_, _ = fmt.Fprintln(w.out)
	}
}

// Report prints the outcome of a drain.
func (w *Writer) Report(rep indexing.Report) {
	if rep.Processed+rep.Failed+rep.Deferred == 0 {
		w.Successf("queue was empty")
		return
	}
	w.Successf("processed %d requests in %s", rep.Processed, rep.Duration.Round(time.Millisecond))
	if rep.Failed > 0 || rep.Deferred > 0 {
		w.Warningf("%d failed, %d deferred until the next drain", rep.Failed, rep.Deferred)
	}
}

// QueueStatus prints pending work per index and the last drain.
func (w *Writer) QueueStatus(st service.QueueStatus) {
	_, _ = fmt.Fprintf(w.out, "%s\n", w.styles.header.Render(fmt.Sprintf("%d pending", st.Pending)))
	for _, is := range st.Indexes {
		line := fmt.Sprintf("  %-20s %6d pending", is.NamedIndex, is.Pending)
		if is.Failing > 0 {
			line += w.styles.warning.Render(fmt.Sprintf("  %d failing (max %d attempts)", is.Failing, is.MaxAttempts))
		}
		_, _ = fmt.Fprintln(w.out, line)
	}

	d := st.Drain
	if d.DrainID == "" {
		return
	}
	done := d.Processed + d.Failed
	_, _ = fmt.Fprintf(w.out, "\n%s %s\n", w.styles.dim.Render("drain "+d.DrainID), d.State)
	_, _ = fmt.Fprintf(w.out, "  [%s] %d/%d\n", renderProgressBar(done, d.EntriesTotal, 30), done, d.EntriesTotal)
	if d.LastError != "" {
		_, _ = fmt.Fprintf(w.out, "  %s\n", w.styles.err.Render("last error: "+d.LastError))
	}
}

// ServiceStatus prints a service snapshot.
func (w *Writer) ServiceStatus(st service.Status, pid int, uptime string) {
	_, _ = fmt.Fprintf(w.out, "%s\n", w.styles.header.Render("content search daemon"))
	_, _ = fmt.Fprintf(w.out, "  pid:      %d\n", pid)
	_, _ = fmt.Fprintf(w.out, "  uptime:   %s\n", uptime)
	dataDir := st.DataDir
	if dataDir == "" {
		dataDir = "(memory)"
	}
	_, _ = fmt.Fprintf(w.out, "  data dir: %s\n\n", dataDir)
	w.Indexes(st.Indexes)
	_, _ = fmt.Fprintln(w.out)
	w.QueueStatus(st.Queue)
	_, _ = fmt.Fprintln(w.out)
	w.SearchMetrics(st.Search)
}

// SearchMetrics prints the search counters, the latency histogram and the
// most searched terms.
func (w *Writer) SearchMetrics(m telemetry.Snapshot) {
	if m.Total == 0 {
		_, _ = fmt.Fprintln(w.out, "  no searches yet")
		return
	}
	_, _ = fmt.Fprintf(w.out, "  %d searches, %d failed, %.1f%% without results\n",
		m.Total, m.Failed, m.ZeroResultPercentage())
	for _, b := range telemetry.Buckets {
		n := m.Latency[b]
		_, _ = fmt.Fprintf(w.out, "  %-6s %s %d\n", b, renderProgressBar(int(n), int(m.Total), 20), n)
	}
	if len(m.TopTerms) > 0 {
		terms := make([]string, 0, len(m.TopTerms))
		for _, t := range m.TopTerms {
			terms = append(terms, fmt.Sprintf("%s(%d)", t.Term, t.Count))
		}
		_, _ = fmt.Fprintf(w.out, "  top terms: %s\n", strings.Join(terms, " "))
	}
	for _, q := range m.RecentMisses {
		_, _ = fmt.Fprintf(w.out, "  %s %s\n", w.styles.dim.Render("miss"), oneLine(q, 60))
	}
}

// Indexes prints one line per named index.
func (w *Writer) Indexes(indexes []service.IndexInfo) {
	for _, ix := range indexes {
		_, _ = fmt.Fprintf(w.out, "  %-20s %8d documents\n", ix.Name, ix.Documents)
	}
}

// renderProgressBar creates a text progress bar.
func renderProgressBar(current, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}

	filled := int(float64(current) / float64(total) * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
