package engine

import (
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/whitespace"
	"github.com/blevesearch/bleve/v2/mapping"
)

const (
	// TextAnalyzerName lower-cases and splits on Unicode word boundaries.
	// No stemming, stop words or accent folding.
	TextAnalyzerName = "content_text"

	// ItemTypeAnalyzerName splits on whitespace only and preserves case.
	ItemTypeAnalyzerName = "content_itemtype"
)

// Indexed field names.
const (
	FieldID          = "id"
	FieldTitle       = "title"
	FieldDisplayText = "displaytext"
	FieldMetadata    = "metadata"
	FieldAll         = "all"
	FieldItemType    = "itemtype"
	FieldCulture     = "culture"
	FieldAuthor      = "author"
	FieldACL         = "acl"
	FieldCategory    = "category"
	FieldCreated     = "created"
	FieldModified    = "modified"
	FieldPubStart    = "pubstart"
	FieldPubEnd      = "pubend"
	FieldStatus      = "status"
	FieldVPath       = "vpath"
	FieldVPathPrefix = "vpath_prefix"

	// FieldSource holds the stored document source. It is not searchable.
	FieldSource = "source"
)

// TextFields are analyzed with TextAnalyzerName; queries against them are case-insensitive.
var TextFields = []string{FieldTitle, FieldDisplayText, FieldMetadata, FieldAll}

// DefaultFields are searched when a query names no field.
var DefaultFields = TextFields

var keywordFields = []string{
	FieldID, FieldCulture, FieldAuthor, FieldACL, FieldCategory,
	FieldCreated, FieldModified, FieldPubStart, FieldPubEnd,
	FieldStatus, FieldVPath, FieldVPathPrefix,
}

// IsTextField reports whether field is lower-cased at index time.
func IsTextField(field string) bool {
	for _, f := range TextFields {
		if f == field {
			return true
		}
	}
	return false
}

// IsSearchableField reports whether field is indexed.
func IsSearchableField(field string) bool {
	if IsTextField(field) || field == FieldItemType {
		return true
	}
	for _, f := range keywordFields {
		if f == field {
			return true
		}
	}
	return false
}

var (
	sharedMapping     *mapping.IndexMappingImpl
	sharedMappingErr  error
	sharedMappingOnce sync.Once
)

// Mapping returns the index mapping shared by every named index.
func Mapping() (*mapping.IndexMappingImpl, error) {
	sharedMappingOnce.Do(func() {
		sharedMapping, sharedMappingErr = createIndexMapping()
	})
	return sharedMapping, sharedMappingErr
}

// createIndexMapping builds the static document mapping. Dynamic mapping is off,
// so only the fields declared here are indexed.
func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()

	err := im.AddCustomAnalyzer(TextAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add text analyzer: %w", err)
	}

	err = im.AddCustomAnalyzer(ItemTypeAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": whitespace.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add item type analyzer: %w", err)
	}

	dm := bleve.NewDocumentMapping()
	dm.Dynamic = false

	for _, f := range TextFields {
		dm.AddFieldMappingsAt(f, fieldMapping(TextAnalyzerName, true))
	}
	dm.AddFieldMappingsAt(FieldItemType, fieldMapping(ItemTypeAnalyzerName, true))
	for _, f := range keywordFields {
		dm.AddFieldMappingsAt(f, fieldMapping(keyword.Name, false))
	}

	source := bleve.NewTextFieldMapping()
	source.Analyzer = keyword.Name
	source.Index = false
	source.Store = true
	source.IncludeInAll = false
	source.IncludeTermVectors = false
	source.DocValues = false
	dm.AddFieldMappingsAt(FieldSource, source)

	im.DefaultMapping = dm
	im.DefaultAnalyzer = TextAnalyzerName
	im.IndexDynamic = false
	im.StoreDynamic = false
	im.DocValuesDynamic = false

	return im, nil
}

func fieldMapping(analyzer string, termVectors bool) *mapping.FieldMapping {
	fm := bleve.NewTextFieldMapping()
	fm.Analyzer = analyzer
	fm.Store = false
	fm.IncludeInAll = false
	fm.IncludeTermVectors = termVectors
	fm.DocValues = false
	return fm
}

// Analyze runs field's analyzer over text and returns the terms in position order.
func Analyze(field, text string) ([]string, error) {
	im, err := Mapping()
	if err != nil {
		return nil, err
	}
	analyzer := im.AnalyzerNamed(im.AnalyzerNameForPath(field))
	if analyzer == nil {
		return nil, fmt.Errorf("no analyzer for field %q", field)
	}
	tokens := analyzer.Analyze([]byte(text))
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		terms = append(terms, string(tok.Term))
	}
	return terms, nil
}
