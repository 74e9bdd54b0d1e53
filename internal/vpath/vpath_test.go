package vpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_StripsWhitespace(t *testing.T) {
	assert.Equal(t, []string{"Node1", "node1_1"}, Normalize([]string{"Node 1", " node 1_1\t", "  "}))
}

func TestJoinSplit(t *testing.T) {
	nodes := []string{"a", "b", "c"}
	assert.Equal(t, nodes, Split(Join(nodes)))
	assert.Nil(t, Split(""))
	assert.Equal(t, "", Join(nil))
}

func TestPrefixes(t *testing.T) {
	assert.Equal(t, []string{"a", Join([]string{"a", "b"}), Join([]string{"a", "b", "c"})},
		Prefixes([]string{"a", "b", "c"}))
	assert.Empty(t, Prefixes(nil))
}

func TestPrefixes_MiddleNodeIsNotAPrefix(t *testing.T) {
	// Given: a path Node1/node1_1/node1_2
	prefixes := Prefixes([]string{"Node1", "node1_1", "node1_2"})

	// Then: the middle node alone is not one of its prefixes
	assert.NotContains(t, prefixes, "node1_1")
	assert.Contains(t, prefixes, "Node1")
}

func TestRebase(t *testing.T) {
	// Given: a descendant of a/x
	got, ok := Rebase([]string{"a", "x", "y"}, []string{"a", "x"}, []string{"a", "b", "x"})

	// Then: it moves under a/b/x
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b", "x", "y"}, got)

	_, ok = Rebase([]string{"a", "z"}, []string{"a", "x"}, []string{"b"})
	assert.False(t, ok)
	_, ok = Rebase([]string{"a"}, nil, []string{"b"})
	assert.False(t, ok)
}

func TestHasPrefixAndEqual(t *testing.T) {
	assert.True(t, HasPrefix([]string{"a", "b"}, []string{"a"}))
	assert.False(t, HasPrefix([]string{"a"}, []string{"a", "b"}))
	assert.True(t, Equal([]string{"a", "b"}, []string{"a", "b"}))
	assert.False(t, Equal([]string{"a", "b"}, []string{"a"}))
}
