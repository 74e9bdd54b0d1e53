package query

import (
	"fmt"
)

type occur int

const (
	occurShould occur = iota
	occurMust
	occurMustNot
)

type node interface{}

// leaf is a single term or phrase.
type leaf struct {
	field       string
	text        string
	phrase      bool
	wildcard    bool
	tilde       bool
	tildeNum    float64
	tildeHasNum bool
	boost       float64
}

// branch is a parenthesized or top-level clause list.
type branch struct {
	field   string
	clauses []clause
	boost   float64
}

type clause struct {
	occur occur
	node  node
}

type parser struct {
	toks []token
	pos  int
}

// parse turns classic query text into a clause tree. The default operator is
// OR; AND marks both of its operands required.
func parse(text string) (*branch, error) {
	toks, err := lex(text)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	root, err := p.parseBranch(0)
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %s at %d", t.kind, t.pos)
	}
	if len(root.clauses) == 0 {
		return nil, errEmptyQuery
	}
	return root, nil
}

var errEmptyQuery = fmt.Errorf("query has no terms")

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

const maxDepth = 64

func (p *parser) parseBranch(depth int) (*branch, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("query nested deeper than %d groups", maxDepth)
	}
	b := &branch{}
	conj := tokEOF

	for {
		t := p.peek()
		if t.kind == tokEOF || t.kind == tokRParen {
			break
		}

		if t.kind == tokAnd || t.kind == tokOr {
			if len(b.clauses) == 0 || conj != tokEOF {
				return nil, fmt.Errorf("unexpected %s at %d", t.kind, t.pos)
			}
			conj = t.kind
			p.next()
			continue
		}

		mod := tokEOF
		if t.kind == tokPlus || t.kind == tokMinus || t.kind == tokNot {
			mod = t.kind
			p.next()
		}

		n, err := p.parseClause(depth)
		if err != nil {
			return nil, err
		}
		b.add(conj, mod, n)
		conj = tokEOF
	}

	if conj != tokEOF {
		return nil, fmt.Errorf("%s has no right operand", conj)
	}
	return b, nil
}

// add appends a clause the way the classic parser does: AND makes the
// previous optional clause required, and the modifier decides the new one.
func (b *branch) add(conj, mod tokenKind, n node) {
	if conj == tokAnd && len(b.clauses) > 0 {
		prev := &b.clauses[len(b.clauses)-1]
		if prev.occur == occurShould {
			prev.occur = occurMust
		}
	}

	o := occurShould
	switch {
	case mod == tokMinus || mod == tokNot:
		o = occurMustNot
	case mod == tokPlus || conj == tokAnd:
		o = occurMust
	}
	b.clauses = append(b.clauses, clause{occur: o, node: n})
}

func (p *parser) parseClause(depth int) (node, error) {
	t := p.next()
	field := ""
	if t.kind == tokField {
		field = t.text
		t = p.next()
	}

	var n node
	switch t.kind {
	case tokTerm:
		n = &leaf{field: field, text: t.text, wildcard: t.wildcard}
	case tokPhrase:
		n = &leaf{field: field, text: t.text, phrase: true}
	case tokLParen:
		sub, err := p.parseBranch(depth + 1)
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, fmt.Errorf("missing ) for ( at %d", t.pos)
		}
		if len(sub.clauses) == 0 {
			return nil, fmt.Errorf("empty group at %d", t.pos)
		}
		sub.field = field
		n = sub
	default:
		return nil, fmt.Errorf("unexpected %s at %d", t.kind, t.pos)
	}

	if p.peek().kind == tokTilde {
		tilde := p.next()
		l, ok := n.(*leaf)
		if !ok {
			return nil, fmt.Errorf("~ cannot follow a group at %d", tilde.pos)
		}
		l.tilde, l.tildeNum, l.tildeHasNum = true, tilde.num, tilde.hasNum
	}

	if p.peek().kind == tokCaret {
		caret := p.next()
		if !caret.hasNum || caret.num <= 0 {
			return nil, fmt.Errorf("^ needs a positive number at %d", caret.pos)
		}
		switch v := n.(type) {
		case *leaf:
			v.boost = caret.num
		case *branch:
			v.boost = caret.num
		}
	}

	return n, nil
}
