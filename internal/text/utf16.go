package text

import (
	"fmt"
	"sort"
	"unicode/utf8"
)

// UTF16Offsets translates flat UTF-16 code-unit offsets, as used by browser
// editors, into byte offsets and back. Only non-ASCII runes are recorded;
// between them bytes and code units advance in lockstep.
type UTF16Offsets struct {
	srcLen ByteOffset
	units  int
	wide   []wideRune
}

type wideRune struct {
	startByte ByteOffset
	endByte   ByteOffset
	startUnit int
	endUnit   int
}

// NewUTF16Offsets scans src. An invalid UTF-8 byte counts as one code unit.
func NewUTF16Offsets(src []byte) *UTF16Offsets {
	u := &UTF16Offsets{srcLen: ByteOffset(len(src))}
	units := 0
	for i := 0; i < len(src); {
		if src[i] < utf8.RuneSelf {
			i++
			units++
			continue
		}
		r, size := utf8.DecodeRune(src[i:])
		n := 1
		if !(r == utf8.RuneError && size == 1) {
			n = utf16RuneUnits(r)
		}
		u.wide = append(u.wide, wideRune{
			startByte: ByteOffset(i),
			endByte:   ByteOffset(i + size),
			startUnit: units,
			endUnit:   units + n,
		})
		i += size
		units += n
	}
	u.units = units
	return u
}

// Len returns the document length in UTF-16 code units.
func (u *UTF16Offsets) Len() int {
	return u.units
}

// ToByte converts a code-unit offset to a byte offset.
func (u *UTF16Offsets) ToByte(unit int) (ByteOffset, error) {
	if unit < 0 || unit > u.units {
		return 0, fmt.Errorf("UTF-16 offset out of range: %d (len %d)", unit, u.units)
	}
	// first wide rune ending after unit
	i := sort.Search(len(u.wide), func(i int) bool { return u.wide[i].endUnit > unit })
	if i < len(u.wide) && u.wide[i].startUnit < unit {
		return 0, errSplitUTF16SurrogatePair
	}
	if i == 0 {
		return ByteOffset(unit), nil
	}
	prev := u.wide[i-1]
	return prev.endByte + ByteOffset(unit-prev.endUnit), nil
}

// FromByte converts a byte offset to a code-unit offset.
func (u *UTF16Offsets) FromByte(off ByteOffset) (int, error) {
	if !off.IsValid() || off > u.srcLen {
		return 0, fmt.Errorf("offset out of range: %d (len %d)", off, u.srcLen)
	}
	i := sort.Search(len(u.wide), func(i int) bool { return u.wide[i].endByte > off })
	if i < len(u.wide) && u.wide[i].startByte < off {
		return 0, fmt.Errorf("offset %d splits a UTF-8 sequence", off)
	}
	if i == 0 {
		return int(off), nil
	}
	prev := u.wide[i-1]
	return prev.endUnit + int(off-prev.endByte), nil
}
