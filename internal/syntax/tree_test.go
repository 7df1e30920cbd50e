package syntax

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerweaver/ledgerweaver/internal/engine/reference"
)

func convertSource(t *testing.T, src string) *Tree {
	t.Helper()
	native, err := reference.New().Parse(context.Background(), []byte(src), nil)
	require.NoError(t, err)
	defer native.Release()

	c := NewConverter(DefaultRegistry, native.Root(), len(src), nil, nil, nil)
	require.True(t, c.Step(0))
	return c.Tree()
}

func TestNodeAtSides(t *testing.T) {
	t.Parallel()

	tree := convertSource(t, "2024-01-01 open Assets:Cash")

	tests := []struct {
		pos, side int
		want      string
	}{
		{pos: 5, side: 0, want: "date"},
		{pos: 0, side: 0, want: "source_file"},
		{pos: 0, side: 1, want: "date"},
		{pos: 10, side: -1, want: "date"},
		{pos: 10, side: 0, want: "open"},
		{pos: 10, side: 1, want: "open"},
		{pos: 11, side: 1, want: "keyword"},
		{pos: 27, side: -1, want: "account"},
		{pos: 27, side: 1, want: "source_file"},
	}
	for _, tc := range tests {
		n := tree.NodeAt(tc.pos, tc.side)
		require.Equal(t, tc.want, n.Type().Name, "pos=%d side=%d", tc.pos, tc.side)
	}
}

func TestSyntaxNodeNavigation(t *testing.T) {
	t.Parallel()

	tree := convertSource(t, "2024-01-01 open Assets:Cash")
	kw := tree.NodeAt(12, 0)
	require.Equal(t, "keyword", kw.Type().Name)
	require.Equal(t, 11, kw.From)
	require.Equal(t, 15, kw.To)

	require.Equal(t, "date", kw.PrevSibling().Type().Name)
	require.Equal(t, "account", kw.NextSibling().Type().Name)
	require.Nil(t, kw.NextSibling().NextSibling())
	require.Equal(t, "open", kw.Parent().Type().Name)
	require.Equal(t, "open", kw.Ancestor("open").Type().Name)
	require.Nil(t, kw.Ancestor("transaction"))
	require.Nil(t, tree.TopNode().Parent())
	require.Nil(t, tree.TopNode().Child(7))
	require.Equal(t, "keyword[11,15)", kw.String())
}

func TestIterateRestrictsToRange(t *testing.T) {
	t.Parallel()

	tree := convertSource(t, "2024-01-01 open Assets:Cash")
	var entered, left []string
	tree.Iterate(11, 14, func(n *SyntaxNode) bool {
		entered = append(entered, n.Type().Name)
		return true
	}, func(n *SyntaxNode) {
		left = append(left, n.Type().Name)
	})
	require.Equal(t, []string{"source_file", "open", "keyword"}, entered)
	require.Equal(t, []string{"keyword", "open", "source_file"}, left)

	entered = nil
	tree.Iterate(0, 27, func(n *SyntaxNode) bool {
		entered = append(entered, n.Type().Name)
		return n.Type().Name != "open"
	}, nil)
	require.Equal(t, []string{"source_file", "open"}, entered)
}

func TestCursorPreOrder(t *testing.T) {
	t.Parallel()

	tree := convertSource(t, "2024-01-01 open Assets:Cash\n2024-02-01 close Assets:Cash\n")
	c := tree.Cursor()
	names := []string{c.Node().Type().Name}
	for c.Next() {
		names = append(names, c.Node().Type().Name)
	}
	require.Equal(t, []string{
		"source_file",
		"open", "date", "keyword", "account",
		"close", "date", "keyword", "account",
	}, names)

	c = tree.Cursor()
	require.False(t, c.Parent())
	require.True(t, c.FirstChild())
	require.True(t, c.NextSibling())
	require.Equal(t, "close", c.Node().Type().Name)
	require.False(t, c.NextSibling())
	require.True(t, c.Parent())
	require.Equal(t, "source_file", c.Node().Type().Name)
}

func TestEqualSexpAndCount(t *testing.T) {
	t.Parallel()

	a := convertSource(t, "2024-01-01 open Assets:Cash")
	b := convertSource(t, "2024-01-01 open Assets:Cash")
	c := convertSource(t, "2024-01-01 open Assets:Bank")
	d := convertSource(t, "2024-01-01 open Assets:Cashier")

	require.True(t, Equal(a.Root, b.Root))
	require.True(t, Equal(a.Root, c.Root))
	require.False(t, Equal(a.Root, d.Root))
	require.False(t, Equal(a.Root, nil))
	require.Equal(t, "(source_file (open (date) (keyword) (account)))", Sexp(a.Root))
	require.Equal(t, 5, Count(a.Root))
	require.Equal(t, 27, a.Length())
	require.False(t, a.Partial())
	require.False(t, a.Degraded)
}
