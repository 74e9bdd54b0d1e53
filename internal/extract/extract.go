// Package extract turns a content locator into plain text for indexing.
//
// Extractors may fail; Bounded is the boundary the indexer uses and turns
// every failure or timeout into empty text.
package extract

import (
	"context"
	"errors"
)

// ErrUnsupported is returned for locators or formats no extractor handles.
var ErrUnsupported = errors.New("unsupported locator")

// Extractor returns the plain text behind locator.
type Extractor interface {
	Extract(ctx context.Context, locator string) (string, error)
}

// Source returns extracted text or "" and never fails.
type Source interface {
	Text(ctx context.Context, locator string) string
}

// Nop is a Source that never extracts anything.
type Nop struct{}

// Text implements Source.
func (Nop) Text(context.Context, string) string { return "" }
