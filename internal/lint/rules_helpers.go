package lint

import (
	"github.com/ledgerweaver/ledgerweaver/internal/syntax"
	"github.com/ledgerweaver/ledgerweaver/internal/text"
)

// forEachEntry calls fn for each top-level entry. Degraded trees have none.
func forEachEntry(tree *syntax.Tree, fn func(entry *syntax.SyntaxNode, kind string)) {
	if tree == nil || tree.Degraded || fn == nil {
		return
	}
	top := tree.TopNode()
	for i := range top.ChildCount() {
		entry := top.Child(i)
		fn(entry, entry.Type().Name)
	}
}

func childrenByType(n *syntax.SyntaxNode, want string) []*syntax.SyntaxNode {
	var out []*syntax.SyntaxNode
	for i := range n.ChildCount() {
		if c := n.Child(i); c.Type().Name == want {
			out = append(out, c)
		}
	}
	return out
}

func firstChildByType(n *syntax.SyntaxNode, want string) *syntax.SyntaxNode {
	for i := range n.ChildCount() {
		if c := n.Child(i); c.Type().Name == want {
			return c
		}
	}
	return nil
}

func hasErrorChild(n *syntax.SyntaxNode) bool {
	for i := range n.ChildCount() {
		if n.Child(i).Type().IsError {
			return true
		}
	}
	return false
}

func nodeSpan(n *syntax.SyntaxNode) text.Span {
	return text.Span{Start: text.ByteOffset(n.From), End: text.ByteOffset(n.To)}
}

func nodeText(src []byte, n *syntax.SyntaxNode) string {
	return string(src[n.From:n.To])
}
