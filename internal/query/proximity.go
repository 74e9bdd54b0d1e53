package query

import (
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/karolberezicki/content-search-lucene/internal/engine"
)

// maxProximityVariants caps the gap layouts one proximity query expands to.
const maxProximityVariants = 512

// proximity matches the terms of text in order, with the gaps between them
// summing to at most slop positions. Each gap layout is a multi-phrase with
// empty slots.
func proximity(field, text string, slop int) (query.Query, error) {
	if slop < 0 {
		return nil, fmt.Errorf("proximity slop must not be negative, got %d", slop)
	}

	terms := []string{text}
	if analyzed(field) {
		var err error
		if terms, err = engine.Analyze(field, text); err != nil {
			return nil, err
		}
	}
	switch {
	case len(terms) == 0:
		return bleve.NewMatchNoneQuery(), nil
	case len(terms) == 1:
		return termQuery(field, terms[0]), nil
	case slop == 0:
		return phrase(field, strings.Join(terms, " ")), nil
	}

	gaps := len(terms) - 1
	if n := layoutCount(gaps, slop, maxProximityVariants); n > maxProximityVariants {
		return nil, fmt.Errorf("proximity %q~%d expands to too many variants", text, slop)
	}

	var qs []query.Query
	walkLayouts(make([]int, gaps), 0, slop, func(layout []int) {
		slots := [][]string{{terms[0]}}
		for i, g := range layout {
			for j := 0; j < g; j++ {
				slots = append(slots, nil)
			}
			slots = append(slots, []string{terms[i+1]})
		}
		qs = append(qs, query.NewMultiPhraseQuery(slots, field))
	})
	return anyOf(qs), nil
}

// layoutCount is the number of ways to place at most slop empty positions
// into gaps slots, C(slop+gaps, gaps), stopping once it passes limit.
func layoutCount(gaps, slop, limit int) int {
	n := 1
	for i := 1; i <= gaps; i++ {
		n = n * (slop + i) / i
		if n > limit {
			return n
		}
	}
	return n
}

func walkLayouts(layout []int, pos, left int, emit func([]int)) {
	if pos == len(layout) {
		out := make([]int, len(layout))
		copy(out, layout)
		emit(out)
		return
	}
	for g := 0; g <= left; g++ {
		layout[pos] = g
		walkLayouts(layout, pos+1, left-g, emit)
	}
}
