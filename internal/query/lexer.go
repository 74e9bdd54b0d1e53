package query

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/karolberezicki/content-search-lucene/internal/engine"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokTerm
	tokPhrase
	tokField
	tokAnd
	tokOr
	tokNot
	tokPlus
	tokMinus
	tokLParen
	tokRParen
	tokCaret
	tokTilde
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of query"
	case tokTerm:
		return "term"
	case tokPhrase:
		return "phrase"
	case tokField:
		return "field"
	case tokAnd:
		return "AND"
	case tokOr:
		return "OR"
	case tokNot:
		return "NOT"
	case tokPlus:
		return "+"
	case tokMinus:
		return "-"
	case tokLParen:
		return "("
	case tokRParen:
		return ")"
	case tokCaret:
		return "^"
	case tokTilde:
		return "~"
	default:
		return "?"
	}
}

type token struct {
	kind     tokenKind
	text     string
	wildcard bool
	num      float64
	hasNum   bool
	pos      int
}

// lex splits classic query text into tokens. Backslash escapes the next
// character; escaped characters never act as operators or wildcards.
func lex(input string) ([]token, error) {
	rs := []rune(input)
	var toks []token

	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			toks = append(toks, token{kind: tokLParen, pos: i})
			i++
		case r == ')':
			toks = append(toks, token{kind: tokRParen, pos: i})
			i++
		case r == '+':
			toks = append(toks, token{kind: tokPlus, pos: i})
			i++
		case r == '-':
			toks = append(toks, token{kind: tokMinus, pos: i})
			i++
		case r == '!':
			toks = append(toks, token{kind: tokNot, pos: i})
			i++
		case r == '&' && i+1 < len(rs) && rs[i+1] == '&':
			toks = append(toks, token{kind: tokAnd, pos: i})
			i += 2
		case r == '|' && i+1 < len(rs) && rs[i+1] == '|':
			toks = append(toks, token{kind: tokOr, pos: i})
			i += 2
		case r == '"':
			text, next, err := lexPhrase(rs, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokPhrase, text: text, pos: i})
			i = next
		case r == '^' || r == '~':
			kind := tokCaret
			if r == '~' {
				kind = tokTilde
			}
			start := i
			i++
			j := i
			for j < len(rs) && (unicode.IsDigit(rs[j]) || rs[j] == '.') {
				j++
			}
			tok := token{kind: kind, pos: start}
			if j > i {
				n, err := strconv.ParseFloat(string(rs[i:j]), 64)
				if err != nil {
					return nil, fmt.Errorf("invalid number after %c at %d", r, start)
				}
				tok.num, tok.hasNum = n, true
			}
			toks = append(toks, tok)
			i = j
		default:
			tok, next, err := lexTerm(rs, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			i = next
		}
	}

	return append(toks, token{kind: tokEOF, pos: len(rs)}), nil
}

func lexPhrase(rs []rune, start int) (string, int, error) {
	var b strings.Builder
	for i := start + 1; i < len(rs); i++ {
		switch rs[i] {
		case '\\':
			if i+1 >= len(rs) {
				return "", 0, fmt.Errorf("dangling escape at %d", i)
			}
			i++
			b.WriteRune(rs[i])
		case '"':
			return b.String(), i + 1, nil
		default:
			b.WriteRune(rs[i])
		}
	}
	return "", 0, fmt.Errorf("unterminated phrase starting at %d", start)
}

func isTermBreak(r rune) bool {
	return unicode.IsSpace(r) || strings.ContainsRune(`()"^~`, r)
}

func lexTerm(rs []rune, start int) (token, int, error) {
	var b strings.Builder
	tok := token{kind: tokTerm, pos: start}
	escaped := false

	i := start
	for ; i < len(rs) && !isTermBreak(rs[i]); i++ {
		r := rs[i]
		switch {
		case r == '\\':
			if i+1 >= len(rs) {
				return token{}, 0, fmt.Errorf("dangling escape at %d", i)
			}
			i++
			b.WriteRune(rs[i])
			escaped = true
		case r == ':' && b.Len() > 0 && !tok.wildcard && !escaped && engine.IsSearchableField(b.String()):
			return token{kind: tokField, text: b.String(), pos: start}, i + 1, nil
		case r == '*' || r == '?':
			tok.wildcard = true
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}

	tok.text = b.String()
	if !escaped {
		switch tok.text {
		case "AND":
			tok.kind = tokAnd
		case "OR":
			tok.kind = tokOr
		case "NOT":
			tok.kind = tokNot
		}
	}
	return tok, i, nil
}
