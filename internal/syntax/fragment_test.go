package syntax

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerweaver/ledgerweaver/internal/text"
)

func span(start, end int) text.Span {
	return text.Span{Start: text.ByteOffset(start), End: text.ByteOffset(end)}
}

func TestApplyChangesCutsAroundEdits(t *testing.T) {
	t.Parallel()

	tree := &Tree{Root: &Node{Type: ErrorType, Length: 100}}
	frags := FragmentsFromTree(tree)
	require.Len(t, frags, 1)

	// Replace [40,50) with 5 bytes, then insert 3 bytes at 80.
	got := ApplyChanges(frags, []Edit{
		{FromA: 40, ToA: 50, FromB: 40, ToB: 45},
		{FromA: 80, ToA: 80, FromB: 75, ToB: 78},
	}, 0)

	require.Equal(t, []Fragment{
		{Source: span(0, 40), Dest: span(0, 40), Tree: tree, OpenEnd: true},
		{Source: span(50, 80), Dest: span(45, 75), Tree: tree, OpenStart: true, OpenEnd: true},
		{Source: span(80, 100), Dest: span(78, 98), Tree: tree, OpenStart: true},
	}, got)
	require.Equal(t, -5, got[1].Offset())
	require.Equal(t, -2, got[2].Offset())
}

func TestApplyChangesComposes(t *testing.T) {
	t.Parallel()

	tree := &Tree{Root: &Node{Type: ErrorType, Length: 100}}
	once := ApplyChanges(FragmentsFromTree(tree), []Edit{{FromA: 10, ToA: 10, FromB: 10, ToB: 20}}, 0)
	twice := ApplyChanges(once, []Edit{{FromA: 60, ToA: 70, FromB: 60, ToB: 60}}, 0)

	require.Equal(t, []Fragment{
		{Source: span(0, 10), Dest: span(0, 10), Tree: tree, OpenEnd: true},
		{Source: span(10, 50), Dest: span(20, 60), Tree: tree, OpenStart: true, OpenEnd: true},
		{Source: span(60, 100), Dest: span(60, 100), Tree: tree, OpenStart: true},
	}, twice)
}

func TestApplyChangesDropsSmallGaps(t *testing.T) {
	t.Parallel()

	tree := &Tree{Root: &Node{Type: ErrorType, Length: 300}}
	got := ApplyChanges(FragmentsFromTree(tree), []Edit{
		{FromA: 100, ToA: 101, FromB: 100, ToB: 101},
		{FromA: 110, ToA: 111, FromB: 110, ToB: 111},
	}, 64)

	require.Equal(t, []Fragment{
		{Source: span(0, 100), Dest: span(0, 100), Tree: tree, OpenEnd: true},
		{Source: span(111, 300), Dest: span(111, 300), Tree: tree, OpenStart: true},
	}, got)

	require.Equal(t, FragmentsFromTree(tree), ApplyChanges(FragmentsFromTree(tree), nil, 64))
}

func TestFragmentsFromTree(t *testing.T) {
	t.Parallel()

	require.Nil(t, FragmentsFromTree(nil))
	require.Nil(t, FragmentsFromTree(newDegradedTree(10)))

	partial := &Tree{Root: &Node{Type: ErrorType, Length: 10}, partial: true}
	require.Equal(t, []Fragment{{Source: span(0, 10), Dest: span(0, 10), Tree: partial, OpenEnd: true}}, FragmentsFromTree(partial))
}

func TestEditsFromFragments(t *testing.T) {
	t.Parallel()

	tree := &Tree{Root: &Node{Type: ErrorType, Length: 100}}
	frags := ApplyChanges(FragmentsFromTree(tree), []Edit{
		{FromA: 40, ToA: 50, FromB: 40, ToB: 45},
		{FromA: 80, ToA: 80, FromB: 75, ToB: 78},
	}, 0)

	edits, err := editsFromFragments(frags, 100, 98)
	require.NoError(t, err)
	require.Equal(t, []Edit{
		{FromA: 40, ToA: 50, FromB: 40, ToB: 45},
		{FromA: 80, ToA: 80, FromB: 75, ToB: 78},
	}, edits)

	edits, err = editsFromFragments(FragmentsFromTree(&Tree{Root: &Node{Type: ErrorType, Length: 10}}), 10, 14)
	require.NoError(t, err)
	require.Equal(t, []Edit{{FromA: 10, ToA: 10, FromB: 10, ToB: 14}}, edits)

	edits, err = editsFromFragments(nil, 3, 5)
	require.NoError(t, err)
	require.Equal(t, []Edit{{FromA: 0, ToA: 3, FromB: 0, ToB: 5}}, edits)
}

func TestEditsFromFragmentsRejectsInconsistentFragments(t *testing.T) {
	t.Parallel()

	tests := map[string][]Fragment{
		"length mismatch": {{Source: span(0, 10), Dest: span(0, 11)}},
		"out of order":    {{Source: span(10, 20), Dest: span(10, 20)}, {Source: span(0, 5), Dest: span(0, 5)}},
		"past old end":    {{Source: span(0, 50), Dest: span(0, 50)}},
	}
	for name, frags := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := editsFromFragments(frags, 20, 60)
			require.ErrorIs(t, err, ErrEditMismatch)
		})
	}
}
