// Package query defines the structured query expression and compiles it to
// bleve queries. The expression is a closed set of variants; Compile is the
// single switch over them.
package query

import "github.com/karolberezicki/content-search-lucene/internal/document"

// Op joins the parts of a group, category or ACL expression.
type Op string

const (
	OpAnd Op = "AND"
	OpOr  Op = "OR"
)

// Expr is a query expression. The set of implementations is closed.
type Expr interface {
	isExpr()
}

// Field matches classic query text against one field, or against the
// default fields when Field is empty. Escaped treats the whole text as one
// literal term.
type Field struct {
	Text    string
	Field   string
	Escaped bool
}

// Range matches terms of Field between Start and End. Either bound may be
// empty for an open range. Dates use the yyyyMMddHHmmss form.
type Range struct {
	Field     string
	Start     string
	End       string
	Inclusive bool
}

// Proximity matches the terms of Text in order with at most Slop positions
// between the first and the last.
type Proximity struct {
	Text  string
	Field string
	Slop  int
}

// Fuzzy matches index terms whose similarity to Text exceeds Similarity.
// Zero means DefaultSimilarity.
type Fuzzy struct {
	Text       string
	Field      string
	Similarity float64
}

// TermBoost multiplies the score of Expr by Boost.
type TermBoost struct {
	Expr  Expr
	Boost float64
}

// Group combines child expressions with AND or OR.
type Group struct {
	Op       Op
	Children []Expr
}

// Category matches exact, case-sensitive category tokens.
type Category struct {
	Categories []string
	Op         Op
}

// ACL matches access control principals. Op defaults to OR.
type ACL struct {
	Principals []string
	Op         Op
}

// VirtualPath matches the subtree under Nodes, or only the exact path when
// Exact is set.
type VirtualPath struct {
	Nodes []string
	Exact bool
}

// ItemStatus matches documents with any status bit of Mask set.
type ItemStatus struct {
	Mask document.Status
}

func (Field) isExpr()       {}
func (Range) isExpr()       {}
func (Proximity) isExpr()   {}
func (Fuzzy) isExpr()       {}
func (TermBoost) isExpr()   {}
func (Group) isExpr()       {}
func (Category) isExpr()    {}
func (ACL) isExpr()         {}
func (VirtualPath) isExpr() {}
func (ItemStatus) isExpr()  {}
