package text

import (
	"cmp"
	"fmt"
	"slices"
)

// ByteEdit replaces the bytes in Span with NewText.
type ByteEdit struct {
	Span    Span
	NewText []byte
}

// Delta returns the change in document length caused by the edit.
func (e ByteEdit) Delta() ByteOffset {
	return ByteOffset(len(e.NewText)) - e.Span.Len()
}

// ValidateEdits checks edit bounds against srcLen and rejects overlaps.
// Touching spans are allowed.
func ValidateEdits(srcLen ByteOffset, edits []ByteEdit) error {
	_, err := sortedEdits(srcLen, edits)
	return err
}

// ApplyEdits applies non-overlapping edits given in any order and returns a new buffer.
func ApplyEdits(src []byte, edits []ByteEdit) ([]byte, error) {
	if len(edits) == 0 {
		return slices.Clone(src), nil
	}
	sorted, err := sortedEdits(ByteOffset(len(src)), edits)
	if err != nil {
		return nil, err
	}

	size := len(src)
	for _, e := range sorted {
		size += int(e.Delta())
	}
	out := make([]byte, 0, size)
	cursor := ByteOffset(0)
	for _, e := range sorted {
		out = append(out, src[cursor:e.Span.Start]...)
		out = append(out, e.NewText...)
		cursor = e.Span.End
	}
	return append(out, src[cursor:]...), nil
}

func sortedEdits(srcLen ByteOffset, edits []ByteEdit) ([]ByteEdit, error) {
	if !srcLen.IsValid() {
		return nil, fmt.Errorf("invalid source length: %d", srcLen)
	}
	for _, e := range edits {
		if err := e.Span.Validate(); err != nil {
			return nil, fmt.Errorf("invalid edit span %s: %w", e.Span, err)
		}
		if e.Span.End > srcLen {
			return nil, fmt.Errorf("edit span %s exceeds source length %d", e.Span, srcLen)
		}
	}

	sorted := slices.Clone(edits)
	slices.SortStableFunc(sorted, func(a, b ByteEdit) int {
		if c := cmp.Compare(a.Span.Start, b.Span.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.Span.End, b.Span.End)
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Span.Start < sorted[i-1].Span.End {
			return nil, fmt.Errorf("overlapping edits: %s and %s", sorted[i-1].Span, sorted[i].Span)
		}
	}
	return sorted, nil
}
