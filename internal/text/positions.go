// Package text holds the offset, span, and position types shared by the ledger
// parser bridge and its hosts. Everything inside the bridge is expressed in
// UTF-8 byte offsets; UTF-16 positions exist only at editor-facing edges.
package text

import "fmt"

// ByteOffset is a byte index into a UTF-8 document.
type ByteOffset int

// IsValid reports whether the offset is non-negative.
func (o ByteOffset) IsValid() bool {
	return o >= 0
}

// Span is a half-open byte range [Start, End).
type Span struct {
	Start ByteOffset
	End   ByteOffset
}

// NewSpan constructs a validated span.
func NewSpan(start, end ByteOffset) (Span, error) {
	s := Span{Start: start, End: end}
	if err := s.Validate(); err != nil {
		return Span{}, err
	}
	return s, nil
}

// Validate reports an error if the span bounds are malformed.
func (s Span) Validate() error {
	switch {
	case !s.Start.IsValid():
		return fmt.Errorf("invalid span start: %d", s.Start)
	case !s.End.IsValid():
		return fmt.Errorf("invalid span end: %d", s.End)
	case s.End < s.Start:
		return fmt.Errorf("invalid span bounds: end (%d) < start (%d)", s.End, s.Start)
	}
	return nil
}

// IsValid reports whether the span bounds are well-formed.
func (s Span) IsValid() bool {
	return s.Validate() == nil
}

// IsEmpty reports whether the span covers zero bytes.
func (s Span) IsEmpty() bool {
	return s.Start == s.End
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() ByteOffset {
	return s.End - s.Start
}

// Contains reports whether off lies within [Start, End).
func (s Span) Contains(off ByteOffset) bool {
	return s.IsValid() && off.IsValid() && s.Start <= off && off < s.End
}

// ContainsSpan reports whether other is fully inside s.
func (s Span) ContainsSpan(other Span) bool {
	return s.IsValid() && other.IsValid() && s.Start <= other.Start && other.End <= s.End
}

// Intersects reports whether two spans share at least one byte.
func (s Span) Intersects(other Span) bool {
	return s.IsValid() && other.IsValid() && s.Start < other.End && other.Start < s.End
}

// Touches reports whether two spans overlap or share a boundary.
func (s Span) Touches(other Span) bool {
	return s.IsValid() && other.IsValid() && s.Start <= other.End && other.Start <= s.End
}

// Shift moves the span by delta bytes.
func (s Span) Shift(delta ByteOffset) Span {
	return Span{Start: s.Start + delta, End: s.End + delta}
}

func (s Span) String() string {
	return fmt.Sprintf("[%d,%d)", s.Start, s.End)
}

// Point is a row/byte-column location, the coordinate system grammar engines use.
type Point struct {
	Line   int // 0-based
	Column int // byte column
}

// Less reports whether p sorts before other.
func (p Point) Less(other Point) bool {
	if p.Line != other.Line {
		return p.Line < other.Line
	}
	return p.Column < other.Column
}

// Range is a pair of byte-based points.
type Range struct {
	Start Point
	End   Point
}

// UTF16Position is an LSP-facing line/character position.
type UTF16Position struct {
	Line      int
	Character int
}

// UTF16Range is an LSP-facing range.
type UTF16Range struct {
	Start UTF16Position
	End   UTF16Position
}
