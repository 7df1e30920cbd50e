package syntax

import (
	"fmt"

	"github.com/ledgerweaver/ledgerweaver/internal/text"
)

// Edit is a changed range between two document versions: [FromA, ToA) of the
// old text was replaced by [FromB, ToB) of the new text. Offsets are bytes.
type Edit struct {
	FromA int
	ToA   int
	FromB int
	ToB   int
}

func (e Edit) String() string {
	return fmt.Sprintf("[%d,%d)->[%d,%d)", e.FromA, e.ToA, e.FromB, e.ToB)
}

// Fragment marks a region of a previous tree that is still valid. Source is
// the region in the tree's coordinates, Dest the same bytes in the current
// document. OpenStart and OpenEnd mark sides that border a change, where
// nodes touching the boundary cannot be trusted.
type Fragment struct {
	Source    text.Span
	Dest      text.Span
	Tree      *Tree
	OpenStart bool
	OpenEnd   bool
}

// Offset is the distance a byte moved between the tree and the current document.
func (f Fragment) Offset() int {
	return int(f.Dest.Start - f.Source.Start)
}

// safeSource is the part of Source whose nodes may be reused.
func (f Fragment) safeSource() text.Span {
	sp := f.Source
	if f.OpenStart {
		sp.Start++
	}
	if f.OpenEnd {
		sp.End--
	}
	return sp
}

// FragmentsFromTree returns the fragment covering all of t.
func FragmentsFromTree(t *Tree) []Fragment {
	if t == nil || t.Degraded {
		return nil
	}
	sp := text.Span{Start: 0, End: text.ByteOffset(t.Length())}
	return []Fragment{{Source: sp, Dest: sp, Tree: t, OpenEnd: t.partial}}
}

// ApplyChanges cuts fragments so none overlaps a change and moves them to
// post-change positions. changes must be sorted and use the coordinates of
// the document the fragments currently describe. Gaps shorter than minGap
// between changes are dropped.
func ApplyChanges(fragments []Fragment, changes []Edit, minGap int) []Fragment {
	if len(changes) == 0 {
		return fragments
	}
	var out []Fragment
	fi := 0
	pos, off := 0, 0
	for ci := 0; ; ci++ {
		var next *Edit
		nextPos := int(^uint(0) >> 1)
		if ci < len(changes) {
			next = &changes[ci]
			nextPos = next.FromA
		}
		if nextPos-pos >= minGap {
			for fi < len(fragments) && int(fragments[fi].Dest.Start) < nextPos {
				f := fragments[fi]
				from := max(int(f.Dest.Start), pos)
				to := min(int(f.Dest.End), nextPos)
				if from < to {
					shift := f.Offset()
					out = append(out, Fragment{
						Source:    text.Span{Start: text.ByteOffset(from - shift), End: text.ByteOffset(to - shift)},
						Dest:      text.Span{Start: text.ByteOffset(from - off), End: text.ByteOffset(to - off)},
						Tree:      f.Tree,
						OpenStart: (ci > 0 && from == pos) || (from == int(f.Dest.Start) && f.OpenStart),
						OpenEnd:   (next != nil && to == nextPos) || (to == int(f.Dest.End) && f.OpenEnd),
					})
				}
				if int(f.Dest.End) > nextPos {
					break
				}
				fi++
			}
		}
		if next == nil {
			break
		}
		pos = next.ToA
		off = next.ToA - next.ToB
	}
	return out
}

// editsFromFragments derives the changes that turn the text a tree was
// parsed from (oldLen bytes) into the current document (newLen bytes): every
// gap between fragments is a change.
func editsFromFragments(fragments []Fragment, oldLen, newLen int) ([]Edit, error) {
	var edits []Edit
	prevA, prevB := 0, 0
	for i, f := range fragments {
		srcStart, srcEnd := int(f.Source.Start), int(f.Source.End)
		dstStart, dstEnd := int(f.Dest.Start), int(f.Dest.End)
		if srcEnd-srcStart != dstEnd-dstStart {
			return nil, fmt.Errorf("%w: fragment[%d] source %s and dest %s differ in length", ErrEditMismatch, i, f.Source, f.Dest)
		}
		if srcStart < prevA || dstStart < prevB {
			return nil, fmt.Errorf("%w: fragment[%d] out of order", ErrEditMismatch, i)
		}
		if srcStart != prevA || dstStart != prevB {
			edits = append(edits, Edit{FromA: prevA, ToA: srcStart, FromB: prevB, ToB: dstStart})
		}
		prevA, prevB = srcEnd, dstEnd
	}
	if prevA > oldLen || prevB > newLen {
		return nil, fmt.Errorf("%w: fragments end past the document (%d>%d or %d>%d)", ErrEditMismatch, prevA, oldLen, prevB, newLen)
	}
	if prevA != oldLen || prevB != newLen {
		edits = append(edits, Edit{FromA: prevA, ToA: oldLen, FromB: prevB, ToB: newLen})
	}
	return edits, nil
}
