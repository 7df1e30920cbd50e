package text

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpanValidate(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		span  Span
		valid bool
	}{
		"posting amount": {span: Span{Start: 4, End: 9}, valid: true},
		"cursor":         {span: Span{Start: 3, End: 3}, valid: true},
		"negative start": {span: Span{Start: -1, End: 1}, valid: false},
		"negative end":   {span: Span{Start: 0, End: -1}, valid: false},
		"reversed":       {span: Span{Start: 5, End: 4}, valid: false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.valid, tc.span.IsValid())
			if tc.valid {
				require.NoError(t, tc.span.Validate())
			} else {
				require.Error(t, tc.span.Validate())
			}
		})
	}
}

func TestNewSpan(t *testing.T) {
	t.Parallel()

	_, err := NewSpan(2, 1)
	require.Error(t, err)

	s, err := NewSpan(2, 5)
	require.NoError(t, err)
	require.Equal(t, Span{Start: 2, End: 5}, s)
	require.Equal(t, ByteOffset(3), s.Len())
}

func TestSpanHalfOpenSemantics(t *testing.T) {
	t.Parallel()

	s := Span{Start: 2, End: 5}
	require.True(t, s.Contains(2))
	require.True(t, s.Contains(4))
	require.False(t, s.Contains(5))
	require.False(t, s.Contains(1))

	empty := Span{Start: 7, End: 7}
	require.True(t, empty.IsEmpty())
	require.False(t, empty.Contains(7))
}

func TestSpanRelations(t *testing.T) {
	t.Parallel()

	base := Span{Start: 10, End: 20}
	touchLeft := Span{Start: 5, End: 10}
	touchRight := Span{Start: 20, End: 25}

	require.True(t, base.ContainsSpan(Span{Start: 12, End: 18}))
	require.False(t, base.ContainsSpan(touchLeft))
	require.False(t, base.Intersects(touchLeft))
	require.False(t, base.Intersects(touchRight))
	require.True(t, base.Intersects(Span{Start: 19, End: 25}))
	require.True(t, base.Touches(touchLeft))
	require.True(t, base.Touches(touchRight))
	require.False(t, base.Touches(Span{Start: 21, End: 22}))
	require.Equal(t, Span{Start: 13, End: 23}, base.Shift(3))
}

func TestPointLess(t *testing.T) {
	t.Parallel()

	require.True(t, Point{Line: 0, Column: 9}.Less(Point{Line: 1, Column: 0}))
	require.True(t, Point{Line: 2, Column: 1}.Less(Point{Line: 2, Column: 4}))
	require.False(t, Point{Line: 2, Column: 4}.Less(Point{Line: 2, Column: 4}))
}
