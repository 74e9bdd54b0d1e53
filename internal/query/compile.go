package query

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/karolberezicki/content-search-lucene/internal/document"
	"github.com/karolberezicki/content-search-lucene/internal/engine"
	cserrors "github.com/karolberezicki/content-search-lucene/internal/errors"
	"github.com/karolberezicki/content-search-lucene/internal/vpath"
)

// rangeMax sorts after every indexed term and stands in for an open upper bound.
const rangeMax = "\xff"

// TermSource lists the indexed terms of a field. *engine.Index satisfies it.
type TermSource interface {
	Terms(field string) ([]string, error)
}

// Compiler turns expressions into bleve queries for one index. Fuzzy
// expansion reads that index's term dictionary.
type Compiler struct {
	terms         TermSource
	maxExpansions int
	dmp           *diffmatchpatch.DiffMatchPatch
}

// NewCompiler creates a compiler. terms may be nil when no fuzzy queries
// are compiled; maxExpansions caps the terms one fuzzy query expands to.
func NewCompiler(terms TermSource, maxExpansions int) *Compiler {
	if maxExpansions <= 0 {
		maxExpansions = 1024
	}
	return &Compiler{terms: terms, maxExpansions: maxExpansions, dmp: diffmatchpatch.New()}
}

// Compile translates e. Every failure is a query error carrying
// ERR_403_INVALID_QUERY or ERR_404_QUERY_EMPTY.
func (c *Compiler) Compile(e Expr) (query.Query, error) {
	q, err := c.compile(e)
	if err != nil {
		var se *cserrors.ServiceError
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, cserrors.QueryError(err.Error(), err)
	}
	return q, nil
}

func (c *Compiler) compile(e Expr) (query.Query, error) {
	switch v := e.(type) {
	case Field:
		return c.compileField(v)
	case Range:
		return c.compileRange(v)
	case Proximity:
		return c.compileProximity(v)
	case Fuzzy:
		return c.compileFuzzy(v)
	case TermBoost:
		return c.compileBoost(v)
	case Group:
		return c.compileGroup(v)
	case Category:
		return compileTokens(engine.FieldCategory, v.Categories, v.Op, OpOr)
	case ACL:
		return compileTokens(engine.FieldACL, v.Principals, v.Op, OpOr)
	case VirtualPath:
		return compileVirtualPath(v)
	case ItemStatus:
		return compileStatus(v)
	case nil:
		return nil, emptyQuery("no expression")
	default:
		return nil, fmt.Errorf("unsupported expression %T", e)
	}
}

func emptyQuery(msg string) error {
	return cserrors.New(cserrors.ErrCodeQueryEmpty, msg, nil)
}

// fieldsFor resolves a field name, "" meaning the default fields.
func fieldsFor(name string) ([]string, error) {
	if name == "" {
		return engine.DefaultFields, nil
	}
	if !engine.IsSearchableField(name) {
		return nil, fmt.Errorf("unknown field %q", name)
	}
	return []string{name}, nil
}

func (c *Compiler) compileField(v Field) (query.Query, error) {
	if strings.TrimSpace(v.Text) == "" {
		return nil, emptyQuery("field query has no text")
	}

	if v.Escaped {
		fields, err := fieldsFor(v.Field)
		if err != nil {
			return nil, err
		}
		return eachField(fields, func(f string) (query.Query, error) {
			return termOrPhrase(f, v.Text)
		})
	}

	root, err := parse(v.Text)
	if errors.Is(err, errEmptyQuery) {
		return nil, emptyQuery("field query has no terms")
	}
	if err != nil {
		return nil, err
	}
	return c.buildBranch(root, v.Field)
}

func (c *Compiler) buildBranch(b *branch, inherited string) (query.Query, error) {
	field := b.field
	if field == "" {
		field = inherited
	}

	var must, should, mustNot []query.Query
	for _, cl := range b.clauses {
		q, err := c.buildNode(cl.node, field)
		if err != nil {
			return nil, err
		}
		switch cl.occur {
		case occurMust:
			must = append(must, q)
		case occurMustNot:
			mustNot = append(mustNot, q)
		default:
			should = append(should, q)
		}
	}

	var out query.Query
	if len(must) == 0 && len(mustNot) == 0 && len(should) == 1 {
		out = should[0]
	} else {
		if len(must) == 0 && len(should) == 0 {
			must = append(must, bleve.NewMatchAllQuery())
		}
		bq := bleve.NewBooleanQuery()
		if len(must) > 0 {
			bq.AddMust(must...)
		}
		if len(should) > 0 {
			bq.AddShould(should...)
		}
		if len(mustNot) > 0 {
			bq.AddMustNot(mustNot...)
		}
		out = bq
	}

	if b.boost > 0 {
		boost(out, b.boost)
	}
	return out, nil
}

func (c *Compiler) buildNode(n node, field string) (query.Query, error) {
	switch v := n.(type) {
	case *branch:
		return c.buildBranch(v, field)
	case *leaf:
		if v.field != "" {
			field = v.field
		}
		fields, err := fieldsFor(field)
		if err != nil {
			return nil, err
		}
		q, err := eachField(fields, func(f string) (query.Query, error) {
			return c.buildLeaf(v, f)
		})
		if err != nil {
			return nil, err
		}
		if v.boost > 0 {
			boost(q, v.boost)
		}
		return q, nil
	default:
		return nil, fmt.Errorf("unexpected node %T", n)
	}
}

func (c *Compiler) buildLeaf(l *leaf, field string) (query.Query, error) {
	switch {
	case l.phrase && l.tilde:
		return proximity(field, l.text, int(l.tildeNum))
	case l.tilde:
		sim := DefaultSimilarity
		if l.tildeHasNum {
			sim = l.tildeNum
		}
		return c.fuzzy(field, l.text, sim)
	case l.phrase:
		return phrase(field, l.text), nil
	case l.wildcard:
		return wildcard(field, l.text), nil
	default:
		return termOrPhrase(field, l.text)
	}
}

func (c *Compiler) compileRange(v Range) (query.Query, error) {
	if v.Field == "" {
		return nil, fmt.Errorf("range query needs a field")
	}
	if !engine.IsSearchableField(v.Field) {
		return nil, fmt.Errorf("unknown field %q", v.Field)
	}
	if v.Start == "" && v.End == "" {
		return nil, emptyQuery("range query has no bounds")
	}

	start, end := v.Start, v.End
	if engine.IsTextField(v.Field) {
		start, end = strings.ToLower(start), strings.ToLower(end)
	}
	if end == "" {
		end = rangeMax
	}
	if start > end {
		return nil, fmt.Errorf("range start %q is after end %q", v.Start, v.End)
	}

	incl := v.Inclusive
	q := bleve.NewTermRangeInclusiveQuery(start, end, &incl, &incl)
	q.SetField(v.Field)
	return q, nil
}

func (c *Compiler) compileProximity(v Proximity) (query.Query, error) {
	if strings.TrimSpace(v.Text) == "" {
		return nil, emptyQuery("proximity query has no text")
	}
	fields, err := fieldsFor(v.Field)
	if err != nil {
		return nil, err
	}
	return eachField(fields, func(f string) (query.Query, error) {
		return proximity(f, v.Text, v.Slop)
	})
}

func (c *Compiler) compileFuzzy(v Fuzzy) (query.Query, error) {
	if strings.TrimSpace(v.Text) == "" {
		return nil, emptyQuery("fuzzy query has no text")
	}
	sim := v.Similarity
	if sim == 0 {
		sim = DefaultSimilarity
	}
	fields, err := fieldsFor(v.Field)
	if err != nil {
		return nil, err
	}
	return eachField(fields, func(f string) (query.Query, error) {
		return c.fuzzy(f, v.Text, sim)
	})
}

func (c *Compiler) compileBoost(v TermBoost) (query.Query, error) {
	if v.Boost <= 0 || math.IsNaN(v.Boost) || math.IsInf(v.Boost, 0) {
		return nil, fmt.Errorf("boost must be a positive number, got %v", v.Boost)
	}
	q, err := c.compile(v.Expr)
	if err != nil {
		return nil, err
	}
	boost(q, v.Boost)
	return q, nil
}

func (c *Compiler) compileGroup(v Group) (query.Query, error) {
	if len(v.Children) == 0 {
		return nil, emptyQuery("group has no children")
	}
	qs := make([]query.Query, 0, len(v.Children))
	for _, child := range v.Children {
		q, err := c.compile(child)
		if err != nil {
			return nil, err
		}
		qs = append(qs, q)
	}

	switch normalizeOp(v.Op, "") {
	case OpAnd:
		return allOf(qs), nil
	case OpOr:
		return anyOf(qs), nil
	default:
		return nil, fmt.Errorf("group operator must be AND or OR, got %q", v.Op)
	}
}

func compileTokens(field string, tokens []string, op, def Op) (query.Query, error) {
	var qs []query.Query
	for _, tok := range tokens {
		if tok = strings.TrimSpace(tok); tok != "" {
			qs = append(qs, termQuery(field, tok))
		}
	}
	if len(qs) == 0 {
		return nil, emptyQuery(field + " query has no tokens")
	}
	switch normalizeOp(op, def) {
	case OpAnd:
		return allOf(qs), nil
	case OpOr:
		return anyOf(qs), nil
	default:
		return nil, fmt.Errorf("%s operator must be AND or OR, got %q", field, op)
	}
}

func compileVirtualPath(v VirtualPath) (query.Query, error) {
	nodes := vpath.Normalize(v.Nodes)
	if len(nodes) == 0 {
		return nil, emptyQuery("virtual path query has no nodes")
	}
	if v.Exact {
		return termQuery(engine.FieldVPath, vpath.Join(nodes)), nil
	}
	return termQuery(engine.FieldVPathPrefix, vpath.Join(nodes)), nil
}

func compileStatus(v ItemStatus) (query.Query, error) {
	bits := v.Mask.Bits()
	if len(bits) == 0 {
		return bleve.NewMatchNoneQuery(), nil
	}
	qs := make([]query.Query, 0, len(bits))
	for _, b := range bits {
		qs = append(qs, termQuery(engine.FieldStatus, document.StatusTerm(b)))
	}
	return anyOf(qs), nil
}

func normalizeOp(op, def Op) Op {
	o := Op(strings.ToUpper(strings.TrimSpace(string(op))))
	if o == "" {
		return def
	}
	return o
}

func eachField(fields []string, fn func(field string) (query.Query, error)) (query.Query, error) {
	qs := make([]query.Query, 0, len(fields))
	for _, f := range fields {
		q, err := fn(f)
		if err != nil {
			return nil, err
		}
		qs = append(qs, q)
	}
	return anyOf(qs), nil
}

func anyOf(qs []query.Query) query.Query {
	switch len(qs) {
	case 0:
		return bleve.NewMatchNoneQuery()
	case 1:
		return qs[0]
	default:
		return bleve.NewDisjunctionQuery(qs...)
	}
}

func allOf(qs []query.Query) query.Query {
	if len(qs) == 1 {
		return qs[0]
	}
	return bleve.NewConjunctionQuery(qs...)
}

func termQuery(field, term string) *query.TermQuery {
	q := bleve.NewTermQuery(term)
	q.SetField(field)
	return q
}

// analyzed reports whether field goes through an analyzer that splits text.
func analyzed(field string) bool {
	return engine.IsTextField(field) || field == engine.FieldItemType
}

// termOrPhrase matches text as the field's analyzer sees it: one term, or a
// phrase when the analyzer splits it.
func termOrPhrase(field, text string) (query.Query, error) {
	if !analyzed(field) {
		return termQuery(field, text), nil
	}
	terms, err := engine.Analyze(field, text)
	if err != nil {
		return nil, err
	}
	switch len(terms) {
	case 0:
		return bleve.NewMatchNoneQuery(), nil
	case 1:
		return termQuery(field, terms[0]), nil
	default:
		return phrase(field, text), nil
	}
}

func phrase(field, text string) query.Query {
	if !analyzed(field) {
		return termQuery(field, text)
	}
	q := bleve.NewMatchPhraseQuery(text)
	q.SetField(field)
	return q
}

func wildcard(field, pattern string) query.Query {
	if engine.IsTextField(field) {
		pattern = strings.ToLower(pattern)
	}
	q := bleve.NewWildcardQuery(pattern)
	q.SetField(field)
	return q
}

// boost multiplies the score of every scoring leaf under q by b. Compound
// bleve queries ignore their own boost, so it is pushed down to the leaves.
func boost(q query.Query, b float64) {
	switch v := q.(type) {
	case *query.BooleanQuery:
		if v.Must != nil {
			boost(v.Must, b)
		}
		if v.Should != nil {
			boost(v.Should, b)
		}
	case *query.ConjunctionQuery:
		for _, c := range v.Conjuncts {
			boost(c, b)
		}
	case *query.DisjunctionQuery:
		for _, c := range v.Disjuncts {
			boost(c, b)
		}
	case query.BoostableQuery:
		v.SetBoost(v.Boost() * b)
	}
}
