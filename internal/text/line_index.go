package text

import (
	"errors"
	"fmt"
	"slices"
	"unicode/utf8"
)

// LineIndex maps byte offsets of a UTF-8 document to rows and columns.
//
// Rows are 0-based. Point columns count bytes. UTF-16 positions count code
// units and exclude line terminators from the line content.
type LineIndex struct {
	src        []byte
	lineStarts []ByteOffset
}

var (
	errNilLineIndex            = errors.New("nil LineIndex")
	errInvalidUTF8Sequence     = errors.New("invalid UTF-8 sequence")
	errSplitUTF16SurrogatePair = errors.New("UTF-16 position splits surrogate pair")
)

// NewLineIndex builds an index over src. src is retained, not copied.
func NewLineIndex(src []byte) *LineIndex {
	starts := make([]ByteOffset, 1, 1+len(src)/32)
	for i, b := range src {
		if b == '\n' {
			starts = append(starts, ByteOffset(i+1))
		}
	}
	return &LineIndex{src: src, lineStarts: starts}
}

// Source returns the indexed document.
func (li *LineIndex) Source() []byte {
	if li == nil {
		return nil
	}
	return li.src
}

// SourceLen returns the document length in bytes.
func (li *LineIndex) SourceLen() ByteOffset {
	if li == nil {
		return 0
	}
	return ByteOffset(len(li.src))
}

// LineCount returns the number of lines. An empty document has one line.
func (li *LineIndex) LineCount() int {
	if li == nil {
		return 0
	}
	return len(li.lineStarts)
}

// LineSpan returns the span of line's content without its terminator.
func (li *LineIndex) LineSpan(line int) (Span, error) {
	if li == nil {
		return Span{}, errNilLineIndex
	}
	if err := li.validateLine(line); err != nil {
		return Span{}, err
	}
	start, _, contentEnd := li.lineBounds(line)
	return Span{Start: start, End: contentEnd}, nil
}

// LineOf returns the row containing off.
func (li *LineIndex) LineOf(off ByteOffset) (int, error) {
	if li == nil {
		return 0, errNilLineIndex
	}
	if err := li.validateOffset(off); err != nil {
		return 0, err
	}
	return li.lineForOffset(off), nil
}

// OffsetToPoint converts a byte offset to a row/byte-column point.
func (li *LineIndex) OffsetToPoint(off ByteOffset) (Point, error) {
	line, err := li.LineOf(off)
	if err != nil {
		return Point{}, err
	}
	return Point{Line: line, Column: int(off - li.lineStarts[line])}, nil
}

// PointToOffset converts a row/byte-column point to a byte offset.
func (li *LineIndex) PointToOffset(p Point) (ByteOffset, error) {
	if li == nil {
		return 0, errNilLineIndex
	}
	if err := li.validateLine(p.Line); err != nil {
		return 0, err
	}
	if p.Column < 0 {
		return 0, fmt.Errorf("column out of range: %d", p.Column)
	}
	start, nextStart, _ := li.lineBounds(p.Line)
	maxColumn := int(nextStart - start)
	if p.Line < li.LineCount()-1 {
		// the byte after '\n' belongs to the next row
		maxColumn--
	}
	if p.Column > maxColumn {
		return 0, fmt.Errorf("column out of range: line=%d column=%d max=%d", p.Line, p.Column, maxColumn)
	}
	return start + ByteOffset(p.Column), nil
}

// OffsetToUTF16Position converts a byte offset to an LSP position.
func (li *LineIndex) OffsetToUTF16Position(off ByteOffset) (UTF16Position, error) {
	line, err := li.LineOf(off)
	if err != nil {
		return UTF16Position{}, err
	}
	start, nextStart, contentEnd := li.lineBounds(line)
	if off > contentEnd && off < nextStart {
		off = contentEnd
	}
	char, err := utf16UnitsForSlice(li.src[start:off])
	if err != nil {
		return UTF16Position{}, err
	}
	return UTF16Position{Line: line, Character: char}, nil
}

// UTF16PositionToOffset converts an LSP position to a byte offset.
func (li *LineIndex) UTF16PositionToOffset(pos UTF16Position) (ByteOffset, error) {
	if li == nil {
		return 0, errNilLineIndex
	}
	if err := li.validateLine(pos.Line); err != nil {
		return 0, err
	}
	if pos.Character < 0 {
		return 0, fmt.Errorf("character out of range: %d", pos.Character)
	}
	start, _, contentEnd := li.lineBounds(pos.Line)
	rel, err := utf16UnitsToByteOffset(li.src[start:contentEnd], pos.Character)
	if err != nil {
		return 0, err
	}
	return start + rel, nil
}

// SpanToUTF16Range converts a byte span to an LSP range.
func (li *LineIndex) SpanToUTF16Range(sp Span) (UTF16Range, error) {
	start, err := li.OffsetToUTF16Position(sp.Start)
	if err != nil {
		return UTF16Range{}, err
	}
	end, err := li.OffsetToUTF16Position(sp.End)
	if err != nil {
		return UTF16Range{}, err
	}
	return UTF16Range{Start: start, End: end}, nil
}

func (li *LineIndex) validateOffset(off ByteOffset) error {
	if !off.IsValid() || off > ByteOffset(len(li.src)) {
		return fmt.Errorf("offset out of range: %d (len %d)", off, len(li.src))
	}
	return nil
}

func (li *LineIndex) validateLine(line int) error {
	if line < 0 || line >= li.LineCount() {
		return fmt.Errorf("line out of range: %d", line)
	}
	return nil
}

func (li *LineIndex) lineForOffset(off ByteOffset) int {
	i, found := slices.BinarySearch(li.lineStarts, off)
	if found {
		return i
	}
	return i - 1
}

func (li *LineIndex) lineBounds(line int) (start, nextStart, contentEnd ByteOffset) {
	start = li.lineStarts[line]
	nextStart = ByteOffset(len(li.src))
	if line+1 < len(li.lineStarts) {
		nextStart = li.lineStarts[line+1]
	}
	contentEnd = nextStart
	if contentEnd > start && li.src[contentEnd-1] == '\n' {
		contentEnd--
		if contentEnd > start && li.src[contentEnd-1] == '\r' {
			contentEnd--
		}
	}
	return start, nextStart, contentEnd
}

func utf16UnitsForSlice(b []byte) (int, error) {
	units := 0
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size == 1 {
			return 0, errInvalidUTF8Sequence
		}
		units += utf16RuneUnits(r)
		b = b[size:]
	}
	return units, nil
}

func utf16UnitsToByteOffset(line []byte, wantUnits int) (ByteOffset, error) {
	units := 0
	for i := 0; i < len(line); {
		if units == wantUnits {
			return ByteOffset(i), nil
		}
		r, size := utf8.DecodeRune(line[i:])
		if r == utf8.RuneError && size == 1 {
			return 0, errInvalidUTF8Sequence
		}
		n := utf16RuneUnits(r)
		if wantUnits > units && wantUnits < units+n {
			return 0, errSplitUTF16SurrogatePair
		}
		units += n
		i += size
	}
	if units == wantUnits {
		return ByteOffset(len(line)), nil
	}
	return 0, fmt.Errorf("character out of range: %d > %d", wantUnits, units)
}

func utf16RuneUnits(r rune) int {
	if r > 0xFFFF {
		return 2
	}
	return 1
}
