package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func occurs(b *branch) []occur {
	out := make([]occur, 0, len(b.clauses))
	for _, c := range b.clauses {
		out = append(out, c.occur)
	}
	return out
}

func TestParse_AndBindsBothOperands(t *testing.T) {
	// Given: a mix of AND and the default OR
	root, err := parse("a AND b OR c")

	// Then: a and b are required, c stays optional
	require.NoError(t, err)
	assert.Equal(t, []occur{occurMust, occurMust, occurShould}, occurs(root))
}

func TestParse_Modifiers(t *testing.T) {
	root, err := parse("+a -b NOT c !d e")
	require.NoError(t, err)
	assert.Equal(t, []occur{occurMust, occurMustNot, occurMustNot, occurMustNot, occurShould}, occurs(root))
}

func TestParse_SymbolicOperators(t *testing.T) {
	root, err := parse("a && b || c")
	require.NoError(t, err)
	assert.Equal(t, []occur{occurMust, occurMust, occurShould}, occurs(root))
}

func TestParse_FieldPrefixAndGroups(t *testing.T) {
	// Given: a field on a term and on a group
	root, err := parse(`title:hello metadata:(x "y z")^2`)
	require.NoError(t, err)
	require.Len(t, root.clauses, 2)

	// Then: the term carries its field
	l, ok := root.clauses[0].node.(*leaf)
	require.True(t, ok)
	assert.Equal(t, "title", l.field)
	assert.Equal(t, "hello", l.text)

	// And: the group carries its field and boost
	g, ok := root.clauses[1].node.(*branch)
	require.True(t, ok)
	assert.Equal(t, "metadata", g.field)
	assert.Equal(t, 2.0, g.boost)
	require.Len(t, g.clauses, 2)
	assert.True(t, g.clauses[1].node.(*leaf).phrase)
}

func TestParse_UnknownFieldKeepsColon(t *testing.T) {
	root, err := parse("U:myself")
	require.NoError(t, err)
	require.Len(t, root.clauses, 1)
	l := root.clauses[0].node.(*leaf)
	assert.Empty(t, l.field)
	assert.Equal(t, "U:myself", l.text)
}

func TestParse_TildeAndWildcard(t *testing.T) {
	root, err := parse(`svårt~0.7 "quick fox"~3 kat* AN\D`)
	require.NoError(t, err)
	require.Len(t, root.clauses, 4)

	fz := root.clauses[0].node.(*leaf)
	assert.True(t, fz.tilde)
	assert.True(t, fz.tildeHasNum)
	assert.InDelta(t, 0.7, fz.tildeNum, 1e-9)

	px := root.clauses[1].node.(*leaf)
	assert.True(t, px.phrase)
	assert.Equal(t, 3.0, px.tildeNum)

	assert.True(t, root.clauses[2].node.(*leaf).wildcard)

	// And: an escaped operator word is a plain term
	assert.Equal(t, "AND", root.clauses[3].node.(*leaf).text)
}

func TestParse_Errors(t *testing.T) {
	for _, text := range []string{
		"a AND",
		"AND a",
		"(a",
		"a)",
		"()",
		"a^0",
		"a^",
		"(a b)~2",
		`"open`,
		`a\`,
	} {
		_, err := parse(text)
		assert.Error(t, err, text)
	}
}

func TestParse_EmptyText(t *testing.T) {
	_, err := parse("   ")
	assert.ErrorIs(t, err, errEmptyQuery)
}
