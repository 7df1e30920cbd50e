package language

import (
	"github.com/ledgerweaver/ledgerweaver/internal/syntax"
)

// HighlightSpan tags the bytes [From, To).
type HighlightSpan struct {
	From int
	To   int
	Tag  string
}

// Highlight returns tagged spans for nodes overlapping [from, to], in
// document order. A tagged node hides its descendants.
func (s *Support) Highlight(tree *syntax.Tree, from, to int) []HighlightSpan {
	if !usable(tree) {
		return nil
	}
	var out []HighlightSpan
	tree.Iterate(from, to, func(n *syntax.SyntaxNode) bool {
		tag, ok := s.desc.Highlights[n.Type().Name]
		if !ok {
			return true
		}
		if n.To > n.From {
			out = append(out, HighlightSpan{From: n.From, To: n.To, Tag: tag})
		}
		return false
	}, nil)
	return out
}
