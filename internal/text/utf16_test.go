package text

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUTF16OffsetsRoundTrip(t *testing.T) {
	t.Parallel()

	// "é" is 2 bytes/1 unit, "€" 3 bytes/1 unit, "😀" 4 bytes/2 units.
	src := []byte("2024-01-01 * \"Café\" ; 5€ 😀\n")
	u := NewUTF16Offsets(src)

	cases := []struct {
		unit int
		off  ByteOffset
	}{
		{unit: 0, off: 0},
		{unit: 17, off: 17},
		{unit: 18, off: 19}, // after "é"
		{unit: 23, off: 24}, // before "€"
		{unit: 24, off: 27},
		{unit: 25, off: 28},
		{unit: 27, off: 32}, // after "😀"
		{unit: 28, off: 33},
	}
	for _, tc := range cases {
		got, err := u.ToByte(tc.unit)
		require.NoError(t, err, "unit %d", tc.unit)
		require.Equal(t, tc.off, got, "unit %d", tc.unit)

		back, err := u.FromByte(tc.off)
		require.NoError(t, err, "off %d", tc.off)
		require.Equal(t, tc.unit, back, "off %d", tc.off)
	}
	require.Equal(t, 28, u.Len())
}

func TestUTF16OffsetsRejectsSplits(t *testing.T) {
	t.Parallel()

	u := NewUTF16Offsets([]byte("a😀b"))
	_, err := u.ToByte(2)
	require.ErrorIs(t, err, errSplitUTF16SurrogatePair)

	_, err = u.FromByte(2)
	require.Error(t, err)

	_, err = u.ToByte(5)
	require.Error(t, err)
	_, err = u.FromByte(-1)
	require.Error(t, err)
}

func TestUTF16OffsetsASCIIFastPath(t *testing.T) {
	t.Parallel()

	src := []byte("2024-01-01 open Assets:Cash")
	u := NewUTF16Offsets(src)
	require.Equal(t, len(src), u.Len())
	for i := 0; i <= len(src); i++ {
		off, err := u.ToByte(i)
		require.NoError(t, err)
		require.Equal(t, ByteOffset(i), off)
	}
}
