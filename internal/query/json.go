package query

import (
	"encoding/json"
	"fmt"

	"github.com/karolberezicki/content-search-lucene/internal/document"
	cserrors "github.com/karolberezicki/content-search-lucene/internal/errors"
)

// Wire type tags.
const (
	TypeField       = "field"
	TypeRange       = "range"
	TypeProximity   = "proximity"
	TypeFuzzy       = "fuzzy"
	TypeTermBoost   = "boost"
	TypeGroup       = "group"
	TypeCategory    = "category"
	TypeACL         = "acl"
	TypeVirtualPath = "vpath"
	TypeItemStatus  = "status"
)

// wireExpr is the tagged JSON form of every variant.
type wireExpr struct {
	Type       string            `json:"type"`
	Text       string            `json:"text,omitempty"`
	Field      string            `json:"field,omitempty"`
	Escaped    bool              `json:"escaped,omitempty"`
	Start      string            `json:"start,omitempty"`
	End        string            `json:"end,omitempty"`
	Inclusive  bool              `json:"inclusive,omitempty"`
	Slop       int               `json:"slop,omitempty"`
	Similarity float64           `json:"similarity,omitempty"`
	Boost      float64           `json:"boost,omitempty"`
	Expr       json.RawMessage   `json:"expr,omitempty"`
	Op         Op                `json:"op,omitempty"`
	Children   []json.RawMessage `json:"children,omitempty"`
	Categories []string          `json:"categories,omitempty"`
	Principals []string          `json:"principals,omitempty"`
	Nodes      []string          `json:"nodes,omitempty"`
	Exact      bool              `json:"exact,omitempty"`
	Mask       uint8             `json:"mask,omitempty"`
}

// Marshal encodes e in its tagged JSON form.
func Marshal(e Expr) ([]byte, error) {
	w, err := toWire(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func toWire(e Expr) (*wireExpr, error) {
	switch v := e.(type) {
	case Field:
		return &wireExpr{Type: TypeField, Text: v.Text, Field: v.Field, Escaped: v.Escaped}, nil
	case Range:
		return &wireExpr{Type: TypeRange, Field: v.Field, Start: v.Start, End: v.End, Inclusive: v.Inclusive}, nil
	case Proximity:
		return &wireExpr{Type: TypeProximity, Text: v.Text, Field: v.Field, Slop: v.Slop}, nil
	case Fuzzy:
		return &wireExpr{Type: TypeFuzzy, Text: v.Text, Field: v.Field, Similarity: v.Similarity}, nil
	case TermBoost:
		inner, err := Marshal(v.Expr)
		if err != nil {
			return nil, err
		}
		return &wireExpr{Type: TypeTermBoost, Boost: v.Boost, Expr: inner}, nil
	case Group:
		w := &wireExpr{Type: TypeGroup, Op: v.Op}
		for _, c := range v.Children {
			data, err := Marshal(c)
			if err != nil {
				return nil, err
			}
			w.Children = append(w.Children, data)
		}
		return w, nil
	case Category:
		return &wireExpr{Type: TypeCategory, Categories: v.Categories, Op: v.Op}, nil
	case ACL:
		return &wireExpr{Type: TypeACL, Principals: v.Principals, Op: v.Op}, nil
	case VirtualPath:
		return &wireExpr{Type: TypeVirtualPath, Nodes: v.Nodes, Exact: v.Exact}, nil
	case ItemStatus:
		return &wireExpr{Type: TypeItemStatus, Mask: uint8(v.Mask)}, nil
	default:
		return nil, cserrors.QueryError(fmt.Sprintf("unsupported expression %T", e), nil)
	}
}

// Unmarshal decodes the tagged JSON form.
func Unmarshal(data []byte) (Expr, error) {
	var w wireExpr
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, cserrors.QueryError("malformed query expression", err)
	}

	switch w.Type {
	case TypeField:
		return Field{Text: w.Text, Field: w.Field, Escaped: w.Escaped}, nil
	case TypeRange:
		return Range{Field: w.Field, Start: w.Start, End: w.End, Inclusive: w.Inclusive}, nil
	case TypeProximity:
		return Proximity{Text: w.Text, Field: w.Field, Slop: w.Slop}, nil
	case TypeFuzzy:
		return Fuzzy{Text: w.Text, Field: w.Field, Similarity: w.Similarity}, nil
	case TypeTermBoost:
		if len(w.Expr) == 0 {
			return nil, cserrors.QueryError("boost expression has no inner expression", nil)
		}
		inner, err := Unmarshal(w.Expr)
		if err != nil {
			return nil, err
		}
		return TermBoost{Expr: inner, Boost: w.Boost}, nil
	case TypeGroup:
		g := Group{Op: w.Op}
		for _, raw := range w.Children {
			c, err := Unmarshal(raw)
			if err != nil {
				return nil, err
			}
			g.Children = append(g.Children, c)
		}
		return g, nil
	case TypeCategory:
		return Category{Categories: w.Categories, Op: w.Op}, nil
	case TypeACL:
		return ACL{Principals: w.Principals, Op: w.Op}, nil
	case TypeVirtualPath:
		return VirtualPath{Nodes: w.Nodes, Exact: w.Exact}, nil
	case TypeItemStatus:
		return ItemStatus{Mask: document.Status(w.Mask)}, nil
	default:
		return nil, cserrors.QueryError(fmt.Sprintf("unknown expression type %q", w.Type), nil)
	}
}
