// Package engine is the thin adapter over bleve. It owns the field mapping
// shared by every named index, one writer and one reader path per index, and
// the registry that opens indexes by name.
//
// All mutations for an index go through Index.Write, which serializes writers
// and commits the staged documents as a single batch, so readers see either
// the whole change or none of it.
package engine
