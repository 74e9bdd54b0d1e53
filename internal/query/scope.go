package query

import (
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/karolberezicki/content-search-lucene/internal/document"
	"github.com/karolberezicki/content-search-lucene/internal/engine"
)

// Scope restricts q to documents published at now and, when principals is
// non-empty, readable by one of them. The added clauses do not score.
func Scope(q query.Query, now time.Time, principals []string) query.Query {
	stamp := document.FormatTime(now)
	yes, no := true, false

	started := bleve.NewTermRangeInclusiveQuery(document.MinStamp, stamp, &yes, &yes)
	started.SetField(engine.FieldPubStart)
	started.SetBoost(0)

	notEnded := bleve.NewTermRangeInclusiveQuery(stamp, document.MaxStamp, &no, &yes)
	notEnded.SetField(engine.FieldPubEnd)
	notEnded.SetBoost(0)

	parts := []query.Query{q, started, notEnded}
	if acl := identityFilter(principals); acl != nil {
		parts = append(parts, acl)
	}
	return bleve.NewConjunctionQuery(parts...)
}

func identityFilter(principals []string) query.Query {
	var qs []query.Query
	for _, p := range principals {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		t := termQuery(engine.FieldACL, p)
		t.SetBoost(0)
		qs = append(qs, t)
	}
	if len(qs) == 0 {
		return nil
	}
	return anyOf(qs)
}
