package syntax

import (
	"github.com/ledgerweaver/ledgerweaver/internal/engine"
	"github.com/ledgerweaver/ledgerweaver/internal/text"
)

// Converter turns a native tree into a Tree in bounded steps. It walks the
// native tree with an explicit stack, so input nesting depth never reaches
// the goroutine stack.
type Converter struct {
	reg       *Registry
	docLen    int
	prev      *Tree
	fragments []Fragment
	ranges    []text.Span

	root  *Node
	stack []convFrame
	index map[uintptr]indexEntry

	converted int
	reused    int
	truncated int
}

type convFrame struct {
	native engine.Node
	node   *Node
	start  int
	end    int
	next   int
	count  int
}

// NewConverter prepares the conversion of root, the native root of a tree
// covering docLen bytes. Nodes of prev lying inside fragments that point at
// prev are reused when the engine reports them unchanged. With ranges, nodes
// outside every range are converted without children.
func NewConverter(reg *Registry, root engine.Node, docLen int, prev *Tree, fragments []Fragment, ranges []text.Span) *Converter {
	if reg == nil {
		reg = DefaultRegistry
	}
	c := &Converter{
		reg:    reg,
		docLen: docLen,
		ranges: ranges,
		index:  make(map[uintptr]indexEntry),
	}
	if prev != nil && prev.index != nil {
		for _, f := range fragments {
			if f.Tree == prev {
				c.fragments = append(c.fragments, f)
			}
		}
		if len(c.fragments) > 0 {
			c.prev = prev
		}
	}

	c.root = &Node{Type: c.typeOf(root), Length: docLen, identity: root.Identity()}
	if c.root.identity != 0 {
		c.index[c.root.identity] = indexEntry{node: c.root, start: 0}
	}
	c.converted = 1
	if n := root.ChildCount(); n > 0 {
		c.root.Children = make([]*Node, 0, n)
		c.root.Positions = make([]int, 0, n)
		c.stack = append(c.stack, convFrame{native: root, node: c.root, end: docLen, count: n})
	}
	return c
}

// Done reports whether every node has been converted.
func (c *Converter) Done() bool { return len(c.stack) == 0 }

// Converted returns how many nodes were built so far.
func (c *Converter) Converted() int { return c.converted }

// Reused returns how many subtrees were taken over from the previous tree.
func (c *Converter) Reused() int { return c.reused }

// Step visits up to budget native nodes and reports whether conversion is
// complete. Reused and truncated nodes count against the budget like
// converted ones. A budget below one converts everything.
func (c *Converter) Step(budget int) bool {
	visited := 0
	for len(c.stack) > 0 {
		if budget > 0 && visited >= budget {
			return false
		}
		f := &c.stack[len(c.stack)-1]
		if f.next >= f.count {
			c.stack = c.stack[:len(c.stack)-1]
			continue
		}
		child := f.native.Child(f.next)
		f.next++
		visited++
		c.visit(f, child)
	}
	return true
}

func (c *Converter) visit(parent *convFrame, child engine.Node) {
	start := clamp(child.StartByte(), parent.start, parent.end)
	end := clamp(child.EndByte(), start, parent.end)
	isErr := child.IsError() || child.IsMissing()
	if isErr && start == end {
		switch {
		case end < parent.end:
			end++
		case start > parent.start:
			start--
		}
	}
	rel := start - parent.start

	if !c.inRanges(start, end) {
		c.converted++
		c.truncated++
		c.appendChild(parent.node, &Node{Type: c.typeOf(child), Length: end - start, Truncated: true}, rel)
		return
	}
	if n := c.reuse(child, start, end); n != nil {
		c.appendChild(parent.node, n, rel)
		return
	}

	n := &Node{Type: c.typeOf(child), Length: end - start}
	c.converted++
	c.appendChild(parent.node, n, rel)
	n.identity = child.Identity()
	if n.identity != 0 {
		c.index[n.identity] = indexEntry{node: n, start: start}
	}
	if count := child.ChildCount(); count > 0 {
		n.Children = make([]*Node, 0, count)
		n.Positions = make([]int, 0, count)
		c.stack = append(c.stack, convFrame{native: child, node: n, start: start, end: end, count: count})
	}
}

func (c *Converter) appendChild(parent, child *Node, rel int) {
	parent.Children = append(parent.Children, child)
	parent.Positions = append(parent.Positions, rel)
}

func (c *Converter) typeOf(n engine.Node) *NodeType {
	if n.IsError() || n.IsMissing() {
		return ErrorType
	}
	id := n.TypeID()
	if t := c.reg.Get(id); t != nil {
		return t
	}
	return c.reg.Intern(id, n.TypeName(), false)
}

// reuse returns the previously converted node for child when the engine kept
// it with the same type and length and it sits at the same offset inside a
// fragment.
func (c *Converter) reuse(child engine.Node, start, end int) *Node {
	if c.prev == nil {
		return nil
	}
	id := child.Identity()
	if id == 0 {
		return nil
	}
	old, ok := c.prev.index[id]
	if !ok || old.node.Length != end-start || old.node.Truncated || old.node.Type != c.typeOf(child) {
		return nil
	}
	oldSpan := text.Span{Start: text.ByteOffset(old.start), End: text.ByteOffset(old.start + old.node.Length)}
	for _, f := range c.fragments {
		if f.safeSource().ContainsSpan(oldSpan) && start == old.start+f.Offset() {
			c.reused++
			c.reindex(old.node, start)
			return old.node
		}
	}
	return nil
}

func (c *Converter) reindex(n *Node, start int) {
	type item struct {
		node  *Node
		start int
	}
	stack := []item{{n, start}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if it.node.identity != 0 {
			c.index[it.node.identity] = indexEntry{node: it.node, start: it.start}
		}
		for i, ch := range it.node.Children {
			stack = append(stack, item{ch, it.start + it.node.Positions[i]})
		}
	}
}

func (c *Converter) inRanges(start, end int) bool {
	if len(c.ranges) == 0 {
		return true
	}
	sp := text.Span{Start: text.ByteOffset(start), End: text.ByteOffset(end)}
	for _, r := range c.ranges {
		if r.Touches(sp) {
			return true
		}
	}
	return false
}

// Tree returns the converted tree. It must only be called once Done. Trees
// with truncated nodes keep no reuse index.
func (c *Converter) Tree() *Tree {
	t := &Tree{Root: c.root}
	if c.truncated == 0 {
		t.index = c.index
	}
	return t
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
