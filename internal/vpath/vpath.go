// Package vpath encodes virtual paths: ordered ancestor node ids ending at
// an item's own id. A path is stored both as its exact joined form and as
// every node prefix, so a subtree query is one exact term lookup.
package vpath

import (
	"strings"
	"unicode"
)

// Separator joins nodes. It cannot occur in a node because control
// characters are stripped on intake.
const Separator = "\x1f"

// NormalizeNode removes all whitespace from a node id.
func NormalizeNode(node string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '\x1f' {
			return -1
		}
		return r
	}, node)
}

// Normalize normalizes each node and drops the ones left empty.
func Normalize(nodes []string) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if n = NormalizeNode(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// Join returns the exact path term for nodes, or "" for an empty path.
func Join(nodes []string) string {
	return strings.Join(nodes, Separator)
}

// Split is the inverse of Join.
func Split(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, Separator)
}

// Prefixes returns the path terms of every leading run of nodes, shortest first.
// A document is in the subtree of q when Join(q) is one of its prefixes.
func Prefixes(nodes []string) []string {
	out := make([]string, 0, len(nodes))
	for i := range nodes {
		out = append(out, Join(nodes[:i+1]))
	}
	return out
}

// HasPrefix reports whether prefix matches the leading nodes of nodes.
func HasPrefix(nodes, prefix []string) bool {
	if len(prefix) > len(nodes) {
		return false
	}
	for i, n := range prefix {
		if nodes[i] != n {
			return false
		}
	}
	return true
}

// Equal reports whether two paths have the same nodes.
func Equal(a, b []string) bool {
	return len(a) == len(b) && HasPrefix(a, b)
}

// Rebase replaces the leading oldPrefix of nodes with newPrefix.
// It returns false when nodes does not start with oldPrefix.
func Rebase(nodes, oldPrefix, newPrefix []string) ([]string, bool) {
	if len(oldPrefix) == 0 || !HasPrefix(nodes, oldPrefix) {
		return nil, false
	}
	out := make([]string, 0, len(newPrefix)+len(nodes)-len(oldPrefix))
	out = append(out, newPrefix...)
	out = append(out, nodes[len(oldPrefix):]...)
	return out, true
}
