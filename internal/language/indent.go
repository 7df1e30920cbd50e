package language

import (
	"bytes"

	"github.com/ledgerweaver/ledgerweaver/internal/syntax"
)

// Indent returns the indentation column for a line starting at pos: body
// width inside an indenting entry, zero elsewhere. A blank line ends the
// entry. ok is false when the tree cannot answer.
func (s *Support) Indent(tree *syntax.Tree, src []byte, pos int) (column int, ok bool) {
	if !usable(tree) || pos < 0 || pos > len(src) || tree.Length() != len(src) {
		return 0, false
	}
	q := pos
	for q > 0 && isSpace(src[q-1]) {
		q--
	}
	if q == 0 || bytes.Count(src[q:pos], []byte("\n")) > 1 {
		return 0, true
	}
	for n := tree.NodeAt(q, -1); n != nil; n = n.Parent() {
		if s.indents[n.Type().Name] {
			return s.opts.IndentWidth, true
		}
	}
	return 0, true
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
