package language

import (
	"bytes"

	"github.com/ledgerweaver/ledgerweaver/internal/syntax"
)

// FoldRange is a collapsible region. From is the end of the first line, so
// the header stays visible.
type FoldRange struct {
	From int
	To   int
}

// Folds returns the foldable entries and top-level comment blocks of tree.
func (s *Support) Folds(tree *syntax.Tree, src []byte) []FoldRange {
	if !usable(tree) || tree.Length() != len(src) {
		return nil
	}
	top := tree.TopNode()
	var out []FoldRange
	var commentRun []*syntax.SyntaxNode
	flushComments := func() {
		if len(commentRun) > 1 {
			if r, ok := foldRange(src, commentRun[0].From, commentRun[len(commentRun)-1].To); ok {
				out = append(out, r)
			}
		}
		commentRun = commentRun[:0]
	}

	for i := range top.ChildCount() {
		c := top.Child(i)
		if c.Type().Name == "comment" {
			if n := len(commentRun); n > 0 && !adjacentLines(src, commentRun[n-1].To, c.From) {
				flushComments()
			}
			commentRun = append(commentRun, c)
			continue
		}
		flushComments()
		if !s.folds[c.Type().Name] {
			continue
		}
		if r, ok := foldRange(src, c.From, c.To); ok {
			out = append(out, r)
		}
	}
	flushComments()
	return out
}

func foldRange(src []byte, from, to int) (FoldRange, bool) {
	nl := bytes.IndexByte(src[from:to], '\n')
	if nl < 0 {
		return FoldRange{}, false
	}
	end := from + nl
	if end > from && src[end-1] == '\r' {
		end--
	}
	return FoldRange{From: end, To: to}, true
}

// adjacentLines reports whether only one line break separates a and b.
func adjacentLines(src []byte, a, b int) bool {
	return bytes.Count(src[a:b], []byte("\n")) == 1
}
