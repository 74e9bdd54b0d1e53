package document

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/karolberezicki/content-search-lucene/internal/config"
	"github.com/karolberezicki/content-search-lucene/internal/vpath"
)

// Limits bound the size of an accepted request.
type Limits struct {
	MaxFieldLength int
	MaxListEntries int
	MaxIDLength    int
	DefaultIndex   string
}

// LimitsFromConfig reads the sanitize section of cfg.
func LimitsFromConfig(cfg *config.Config) Limits {
	return Limits{
		MaxFieldLength: cfg.Sanitize.MaxFieldLength,
		MaxListEntries: cfg.Sanitize.MaxListEntries,
		MaxIDLength:    cfg.Sanitize.MaxIDLength,
		DefaultIndex:   cfg.Indexes.Default,
	}
}

// DefaultLimits returns the limits of the default configuration.
func DefaultLimits() Limits {
	return LimitsFromConfig(config.NewConfig())
}

// Sanitize returns a cleaned copy of req and a note for every field it had to
// change. It never rejects: control characters are stripped, oversized text
// is truncated, blank list entries are dropped, the boost is clamped and an
// unknown action becomes an update. An empty ID in the result means the
// request carries nothing usable.
func Sanitize(req ChangeRequest, lim Limits) (ChangeRequest, []string) {
	s := sanitizer{lim: lim}
	out := req

	out.ID = s.token("id", req.ID, lim.MaxIDLength)
	out.Action = s.action(req.Action)
	out.NamedIndex = s.index(req.NamedIndex)

	out.Title = s.text("title", req.Title)
	out.DisplayText = s.text("displayText", req.DisplayText)
	out.Metadata = s.text("metadata", req.Metadata)
	out.Culture = s.token("culture", req.Culture, lim.MaxIDLength)
	out.ItemType = s.text("itemType", strings.TrimSpace(req.ItemType))
	out.URI = s.token("uri", req.URI, lim.MaxFieldLength)
	out.DataLocator = s.token("dataLocator", req.DataLocator, lim.MaxFieldLength)
	out.ReferenceID = s.token("referenceId", req.ReferenceID, lim.MaxIDLength)
	if out.ReferenceID != "" && out.ReferenceID == out.ID {
		s.note("referenceId points at the item itself, cleared")
		out.ReferenceID = ""
	}

	out.AccessControlList = s.list("accessControlList", req.AccessControlList)
	out.Categories = s.list("categories", req.Categories)
	out.Authors = s.list("authors", req.Authors)
	out.VirtualPathNodes = s.nodes(req.VirtualPathNodes)

	out.BoostFactor = s.boost(req.BoostFactor)
	out.ItemStatus = s.status(req.ItemStatus)

	if !req.Created.IsZero() {
		out.Created = req.Created.UTC()
	}
	if !req.Modified.IsZero() {
		out.Modified = req.Modified.UTC()
	}
	out.PublicationStart = utcOrNil(req.PublicationStart)
	out.PublicationEnd = utcOrNil(req.PublicationEnd)

	return out, s.notes
}

type sanitizer struct {
	lim   Limits
	notes []string
}

func (s *sanitizer) note(format string, args ...any) {
	s.notes = append(s.notes, fmt.Sprintf(format, args...))
}

func (s *sanitizer) text(field, v string) string {
	clean := stripControl(v)
	if clean != v {
		s.note("%s: control characters removed", field)
	}
	if max := s.lim.MaxFieldLength; max > 0 && utf8.RuneCountInString(clean) > max {
		s.note("%s: truncated to %d characters", field, max)
		clean = Truncate(clean, max)
	}
	return clean
}

func (s *sanitizer) token(field, v string, max int) string {
	clean := strings.TrimSpace(stripControl(v))
	if clean != strings.TrimSpace(v) {
		s.note("%s: control characters removed", field)
	}
	if max > 0 && utf8.RuneCountInString(clean) > max {
		s.note("%s: truncated to %d characters", field, max)
		clean = Truncate(clean, max)
	}
	return clean
}

func (s *sanitizer) list(field string, in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	dropped := 0
	for _, v := range in {
		v = s.token(field, v, s.lim.MaxIDLength)
		if v == "" {
			dropped++
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if dropped > 0 {
		s.note("%s: %d blank entries dropped", field, dropped)
	}
	if max := s.lim.MaxListEntries; max > 0 && len(out) > max {
		s.note("%s: capped at %d entries", field, max)
		out = out[:max]
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (s *sanitizer) nodes(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	cleaned := make([]string, 0, len(in))
	for _, n := range in {
		cleaned = append(cleaned, stripControl(n))
	}
	out := vpath.Normalize(cleaned)
	if len(out) != len(in) {
		s.note("virtualPathNodes: %d blank nodes dropped", len(in)-len(out))
	}
	if max := s.lim.MaxListEntries; max > 0 && len(out) > max {
		s.note("virtualPathNodes: capped at %d nodes", max)
		out = out[:max]
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (s *sanitizer) action(a Action) Action {
	switch norm := Action(strings.ToLower(strings.TrimSpace(string(a)))); norm {
	case ActionAdd, ActionUpdate, ActionRemove:
		return norm
	case "":
		s.note("action: missing, treated as update")
		return ActionUpdate
	default:
		s.note("action: unknown value %q, treated as update", string(a))
		return ActionUpdate
	}
}

func (s *sanitizer) index(name string) string {
	name = strings.TrimSpace(stripControl(name))
	if name == "" {
		return s.lim.DefaultIndex
	}
	if err := config.ValidateIndexName(name); err != nil {
		s.note("namedIndex: %v, using %q", err, s.lim.DefaultIndex)
		return s.lim.DefaultIndex
	}
	return name
}

func (s *sanitizer) boost(b float64) float64 {
	if b == 0 {
		return 1
	}
	if math.IsNaN(b) || math.IsInf(b, 0) || b < 0 {
		s.note("boostFactor: %v clamped to 1", b)
		return 1
	}
	return b
}

func (s *sanitizer) status(st Status) Status {
	if st&^statusMask != 0 {
		s.note("itemStatus: unknown bits %d dropped", st&^statusMask)
	}
	st &= statusMask
	if st == 0 {
		return StatusApproved
	}
	return st
}

// stripControl removes control characters other than tab, newline and
// carriage return, and replaces invalid UTF-8.
func stripControl(v string) string {
	if !utf8.ValidString(v) {
		v = strings.ToValidUTF8(v, "")
	}
	return strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, v)
}

// Truncate returns the first n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func utcOrNil(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
