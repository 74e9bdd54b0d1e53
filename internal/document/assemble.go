package document

import (
	"strconv"
	"strings"
	"time"

	"github.com/karolberezicki/content-search-lucene/internal/engine"
	"github.com/karolberezicki/content-search-lucene/internal/vpath"
)

// TimeLayout is the sortable UTC form dates are indexed and queried in.
const TimeLayout = "20060102150405"

// Stored bounds of an open publication window.
const (
	MinStamp = "00000000000000"
	MaxStamp = "99999999999999"
)

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Build maps a source to the engine record for its document.
// Display text is indexed in full together with any extracted text; the
// catch-all field also carries the merged reference text.
func Build(src Source) (engine.Record, error) {
	req := src.Request

	displayText := joinNonEmpty(" ", req.DisplayText, src.ExtractedText)

	all := []string{req.Title, displayText, req.Metadata}
	all = append(all, req.Authors...)
	for _, ref := range src.References {
		all = append(all, ref.Title, ref.DisplayText, ref.Metadata)
	}

	fields := map[string]interface{}{
		engine.FieldID:       req.ID,
		engine.FieldPubStart: MinStamp,
		engine.FieldPubEnd:   MaxStamp,
		engine.FieldStatus:   statusTerms(req.ItemStatus),
	}
	setText(fields, engine.FieldTitle, req.Title)
	setText(fields, engine.FieldDisplayText, displayText)
	setText(fields, engine.FieldMetadata, req.Metadata)
	setText(fields, engine.FieldAll, joinNonEmpty("\n", all...))
	setText(fields, engine.FieldItemType, req.ItemType)
	setText(fields, engine.FieldCulture, req.Culture)
	setList(fields, engine.FieldAuthor, req.Authors)
	setList(fields, engine.FieldACL, req.AccessControlList)
	setList(fields, engine.FieldCategory, req.Categories)

	if !req.Created.IsZero() {
		fields[engine.FieldCreated] = FormatTime(req.Created)
	}
	if !req.Modified.IsZero() {
		fields[engine.FieldModified] = FormatTime(req.Modified)
	}
	if req.PublicationStart != nil {
		fields[engine.FieldPubStart] = FormatTime(*req.PublicationStart)
	}
	if req.PublicationEnd != nil {
		fields[engine.FieldPubEnd] = FormatTime(*req.PublicationEnd)
	}
	if len(req.VirtualPathNodes) > 0 {
		fields[engine.FieldVPath] = vpath.Join(req.VirtualPathNodes)
		fields[engine.FieldVPathPrefix] = vpath.Prefixes(req.VirtualPathNodes)
	}

	data, err := EncodeSource(src)
	if err != nil {
		return engine.Record{}, err
	}
	return engine.Record{ID: req.ID, Fields: fields, Source: data}, nil
}

// StatusTerm is the indexed term of one status flag.
func StatusTerm(s Status) string {
	return strconv.Itoa(int(s))
}

func statusTerms(s Status) []string {
	bits := s.Bits()
	if len(bits) == 0 {
		bits = []Status{StatusApproved}
	}
	out := make([]string, 0, len(bits))
	for _, b := range bits {
		out = append(out, StatusTerm(b))
	}
	return out
}

func setText(fields map[string]interface{}, name, v string) {
	if v != "" {
		fields[name] = v
	}
}

func setList(fields map[string]interface{}, name string, v []string) {
	if len(v) > 0 {
		fields[name] = v
	}
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
