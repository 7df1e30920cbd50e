package syntax

import (
	"fmt"
	"strings"
)

// Node is an immutable converted node. Child positions are relative to the
// node's start so unchanged subtrees stay valid after text before them shifts.
type Node struct {
	Type      *NodeType
	Length    int
	Children  []*Node
	Positions []int
	// Truncated nodes lie outside the ranges a parse was restricted to and
	// carry no children.
	Truncated bool

	identity uintptr
}

type indexEntry struct {
	node  *Node
	start int
}

// Tree is the result of one completed parse. It is never mutated.
type Tree struct {
	Root *Node
	// Degraded trees are whole-document error roots produced without a usable engine tree.
	Degraded bool

	partial bool
	index   map[uintptr]indexEntry
}

// Length returns the number of bytes the tree covers.
func (t *Tree) Length() int {
	if t == nil || t.Root == nil {
		return 0
	}
	return t.Root.Length
}

// Partial reports whether parsing stopped before the end of the document.
func (t *Tree) Partial() bool {
	return t != nil && t.partial
}

func newDegradedTree(docLen int) *Tree {
	return &Tree{Root: &Node{Type: ErrorType, Length: docLen}, Degraded: true}
}

// SyntaxNode is a node resolved to absolute document positions.
type SyntaxNode struct {
	Node *Node
	From int
	To   int

	parent *SyntaxNode
	index  int
}

// Type returns the node type.
func (n *SyntaxNode) Type() *NodeType { return n.Node.Type }

// Parent returns the enclosing node, or nil at the root.
func (n *SyntaxNode) Parent() *SyntaxNode { return n.parent }

// ChildCount returns the number of children.
func (n *SyntaxNode) ChildCount() int { return len(n.Node.Children) }

// Child resolves child i.
func (n *SyntaxNode) Child(i int) *SyntaxNode {
	if i < 0 || i >= len(n.Node.Children) {
		return nil
	}
	c := n.Node.Children[i]
	from := n.From + n.Node.Positions[i]
	return &SyntaxNode{Node: c, From: from, To: from + c.Length, parent: n, index: i}
}

// NextSibling returns the following sibling, or nil.
func (n *SyntaxNode) NextSibling() *SyntaxNode {
	if n.parent == nil {
		return nil
	}
	return n.parent.Child(n.index + 1)
}

// PrevSibling returns the preceding sibling, or nil.
func (n *SyntaxNode) PrevSibling() *SyntaxNode {
	if n.parent == nil {
		return nil
	}
	return n.parent.Child(n.index - 1)
}

// Ancestor returns the nearest enclosing node, n included, whose type has name.
func (n *SyntaxNode) Ancestor(name string) *SyntaxNode {
	for cur := n; cur != nil; cur = cur.parent {
		if cur.Node.Type.Name == name {
			return cur
		}
	}
	return nil
}

func (n *SyntaxNode) String() string {
	return fmt.Sprintf("%s[%d,%d)", n.Node.Type, n.From, n.To)
}

// TopNode returns the root as a SyntaxNode.
func (t *Tree) TopNode() *SyntaxNode {
	if t == nil || t.Root == nil {
		return nil
	}
	return &SyntaxNode{Node: t.Root, To: t.Root.Length}
}

// NodeAt returns the innermost node around pos. With side < 0 it enters
// nodes ending at pos, with side > 0 nodes starting at pos, and with side 0
// only nodes that contain pos strictly.
func (t *Tree) NodeAt(pos, side int) *SyntaxNode {
	cur := t.TopNode()
	if cur == nil {
		return nil
	}
descend:
	for {
		for i := range cur.Node.Children {
			c := cur.Child(i)
			if c.From > pos {
				break
			}
			if enters(c, pos, side) {
				cur = c
				continue descend
			}
		}
		return cur
	}
}

func enters(n *SyntaxNode, pos, side int) bool {
	switch {
	case side < 0:
		return n.From < pos && pos <= n.To
	case side > 0:
		return n.From <= pos && pos < n.To
	default:
		return n.From < pos && pos < n.To
	}
}

// Iterate walks nodes overlapping [from, to] in document order. Returning
// false from enter skips the node's children; leave may be nil.
func (t *Tree) Iterate(from, to int, enter func(*SyntaxNode) bool, leave func(*SyntaxNode)) {
	top := t.TopNode()
	if top == nil {
		return
	}
	type frame struct {
		node *SyntaxNode
		next int
	}
	if !enter(top) {
		if leave != nil {
			leave(top)
		}
		return
	}
	stack := []frame{{node: top}}
	for len(stack) > 0 {
		f := &stack[len(stack)-1]
		if f.next >= f.node.ChildCount() {
			stack = stack[:len(stack)-1]
			if leave != nil {
				leave(f.node)
			}
			continue
		}
		c := f.node.Child(f.next)
		f.next++
		if c.To < from || c.From > to {
			continue
		}
		if enter(c) {
			stack = append(stack, frame{node: c})
		} else if leave != nil {
			leave(c)
		}
	}
}

// Cursor walks a tree in pre-order without recursion.
type Cursor struct {
	node *SyntaxNode
}

// Cursor returns a cursor positioned at the root.
func (t *Tree) Cursor() *Cursor {
	return &Cursor{node: t.TopNode()}
}

// Node returns the node under the cursor.
func (c *Cursor) Node() *SyntaxNode { return c.node }

// FirstChild moves to the first child.
func (c *Cursor) FirstChild() bool {
	if c.node == nil || c.node.ChildCount() == 0 {
		return false
	}
	c.node = c.node.Child(0)
	return true
}

// NextSibling moves to the next sibling.
func (c *Cursor) NextSibling() bool {
	if c.node == nil {
		return false
	}
	next := c.node.NextSibling()
	if next == nil {
		return false
	}
	c.node = next
	return true
}

// Parent moves to the parent.
func (c *Cursor) Parent() bool {
	if c.node == nil || c.node.parent == nil {
		return false
	}
	c.node = c.node.parent
	return true
}

// Next moves to the next node in pre-order.
func (c *Cursor) Next() bool {
	if c.FirstChild() {
		return true
	}
	for cur := c.node; cur != nil; cur = cur.parent {
		if next := cur.NextSibling(); next != nil {
			c.node = next
			return true
		}
	}
	return false
}

// Equal reports whether a and b describe the same structure.
func Equal(a, b *Node) bool {
	type pair struct{ a, b *Node }
	stack := []pair{{a, b}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if p.a == p.b {
			continue
		}
		if p.a == nil || p.b == nil {
			return false
		}
		if p.a.Type != p.b.Type || p.a.Length != p.b.Length || p.a.Truncated != p.b.Truncated ||
			len(p.a.Children) != len(p.b.Children) {
			return false
		}
		for i := range p.a.Children {
			if p.a.Positions[i] != p.b.Positions[i] {
				return false
			}
			stack = append(stack, pair{p.a.Children[i], p.b.Children[i]})
		}
	}
	return true
}

// Sexp renders n as an s-expression of type names.
func Sexp(n *Node) string {
	if n == nil {
		return "()"
	}
	type frame struct {
		node *Node
		next int
	}
	var b strings.Builder
	b.WriteString("(" + n.Type.Name)
	stack := []frame{{node: n}}
	for len(stack) > 0 {
		f := &stack[len(stack)-1]
		if f.next >= len(f.node.Children) {
			b.WriteByte(')')
			stack = stack[:len(stack)-1]
			continue
		}
		c := f.node.Children[f.next]
		f.next++
		b.WriteString(" (" + c.Type.Name)
		stack = append(stack, frame{node: c})
	}
	return b.String()
}

// Count returns the number of nodes under and including n.
func Count(n *Node) int {
	if n == nil {
		return 0
	}
	total := 0
	stack := []*Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		total++
		stack = append(stack, cur.Children...)
	}
	return total
}
