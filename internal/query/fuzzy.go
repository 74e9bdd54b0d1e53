package query

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/karolberezicki/content-search-lucene/internal/engine"
)

// DefaultSimilarity is the fuzzy threshold used when none is given.
const DefaultSimilarity = 0.5

// Similarity is 1 - d/min(len(a), len(b)) where d is the edit distance in
// runes. Identical strings score 1; the value may go negative.
func (c *Compiler) Similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	shortest := la
	if lb < shortest {
		shortest = lb
	}
	if shortest == 0 {
		if la == lb {
			return 1
		}
		return 0
	}
	return 1 - float64(c.distance(a, b))/float64(shortest)
}

// distance is the Levenshtein distance of a and b counted in runes.
func (c *Compiler) distance(a, b string) int {
	return c.dmp.DiffLevenshtein(c.dmp.DiffMainRunes([]rune(a), []rune(b), false))
}

type candidate struct {
	term string
	sim  float64
}

// fuzzy expands text to the indexed terms of field that are more similar
// than minSim. Each kept term scores in proportion to its similarity.
func (c *Compiler) fuzzy(field, text string, minSim float64) (query.Query, error) {
	if minSim < 0 || minSim >= 1 {
		return nil, fmt.Errorf("fuzzy similarity must be in [0, 1), got %v", minSim)
	}
	if c.terms == nil {
		return nil, fmt.Errorf("fuzzy query on %q has no term source", field)
	}

	words := []string{text}
	if analyzed(field) {
		var err error
		if words, err = engine.Analyze(field, text); err != nil {
			return nil, err
		}
	}
	if len(words) == 0 {
		return bleve.NewMatchNoneQuery(), nil
	}

	dict, err := c.terms.Terms(field)
	if err != nil {
		return nil, err
	}

	qs := make([]query.Query, 0, len(words))
	for _, w := range words {
		qs = append(qs, c.expand(field, w, dict, minSim))
	}
	return anyOf(qs), nil
}

func (c *Compiler) expand(field, word string, dict []string, minSim float64) query.Query {
	wl := utf8.RuneCountInString(word)
	var found []candidate
	for _, term := range dict {
		tl := utf8.RuneCountInString(term)
		// The length difference bounds the edit distance from below.
		if shortest := min(wl, tl); shortest > 0 {
			diff := wl - tl
			if diff < 0 {
				diff = -diff
			}
			if 1-float64(diff)/float64(shortest) <= minSim {
				continue
			}
		}
		if sim := c.Similarity(word, term); sim > minSim {
			found = append(found, candidate{term: term, sim: sim})
		}
	}
	if len(found) == 0 {
		return bleve.NewMatchNoneQuery()
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].sim != found[j].sim {
			return found[i].sim > found[j].sim
		}
		return strings.Compare(found[i].term, found[j].term) < 0
	})
	if len(found) > c.maxExpansions {
		found = found[:c.maxExpansions]
	}

	qs := make([]query.Query, 0, len(found))
	for _, f := range found {
		q := termQuery(field, f.term)
		q.SetBoost(f.sim)
		qs = append(qs, q)
	}
	return anyOf(qs)
}
