package format

import (
	"bytes"
	"strings"

	"github.com/rivo/uniseg"

	"github.com/ledgerweaver/ledgerweaver/internal/syntax"
	"github.com/ledgerweaver/ledgerweaver/internal/text"
)

// alignedParents own an amount that is aligned on the currency column.
var alignedParents = map[string]bool{
	"posting": true,
	"balance": true,
	"price":   true,
}

// leaf is a token-level node. Whitespace is not part of the tree, so the
// formatter rebuilds every line from leaves.
type leaf struct {
	from, to int
	// inAmount marks leaves of an aligned amount; anchor is its first
	// expression leaf and currency its currency.
	inAmount bool
	anchor   bool
	currency bool
}

func collectLeaves(tree *syntax.Tree, from, to int) []leaf {
	var out []leaf
	var amount *syntax.Node
	anchorPending := false

	tree.Iterate(from, to, func(n *syntax.SyntaxNode) bool {
		parent := n.Parent()
		if parent == nil {
			return true
		}
		if amount == nil && n.Type().Name == "amount" && alignedParents[parent.Type().Name] {
			amount = n.Node
			anchorPending = true
		}
		if n.ChildCount() > 0 || n.To <= n.From || n.From < from || n.To > to {
			return true
		}
		lf := leaf{from: n.From, to: n.To}
		if amount != nil {
			lf.inAmount = true
			lf.currency = n.Type().Name == "currency" && parent.Node == amount
			lf.anchor = anchorPending && !lf.currency
			anchorPending = false
		}
		out = append(out, lf)
		return true
	}, func(n *syntax.SyntaxNode) {
		if n.Node == amount {
			amount = nil
			anchorPending = false
		}
	})
	return out
}

type lineWriter struct {
	src         []byte
	li          *text.LineIndex
	opts        Options
	newline     string
	buf         bytes.Buffer
	prevEndLine int
	bomLen      int
}

func newLineWriter(src []byte, opts Options, policy SourcePolicy) *lineWriter {
	w := &lineWriter{
		src:         src,
		li:          text.NewLineIndex(src),
		opts:        opts,
		newline:     policy.Newline,
		prevEndLine: -1,
	}
	if policy.HasBOM {
		w.bomLen = len(utf8BOM)
	}
	return w
}

func (w *lineWriter) line(off int) int {
	line, err := w.li.LineOf(text.ByteOffset(off))
	if err != nil {
		return w.li.LineCount() - 1
	}
	return line
}

// writeLeaves emits one output line per run of leaves sharing source lines.
// Blank lines between runs are kept up to MaxBlankLines.
func (w *lineWriter) writeLeaves(leaves []leaf) {
	for start := 0; start < len(leaves); {
		startLine := w.line(leaves[start].from)
		endLine := w.line(leaves[start].to)
		end := start + 1
		for end < len(leaves) && w.line(leaves[end].from) == endLine {
			endLine = w.line(leaves[end].to)
			end++
		}

		if w.prevEndLine >= 0 {
			w.buf.WriteString(w.newline)
			blanks := min(startLine-w.prevEndLine-1, w.opts.MaxBlankLines)
			for range blanks {
				w.buf.WriteString(w.newline)
			}
		}
		w.buf.WriteString(w.renderLine(leaves[start:end]))
		w.prevEndLine = endLine
		start = end
	}
}

func (w *lineWriter) finish(trailingNewline bool) []byte {
	if trailingNewline && w.buf.Len() > 0 {
		w.buf.WriteString(w.newline)
	}
	return w.buf.Bytes()
}

func (w *lineWriter) indented(off int) bool {
	pt, err := w.li.OffsetToPoint(text.ByteOffset(off))
	if err != nil {
		return false
	}
	if pt.Line == 0 {
		return pt.Column > w.bomLen
	}
	return pt.Column > 0
}

func (w *lineWriter) renderLine(leaves []leaf) string {
	parts := make([]string, len(leaves))
	gaps := make([]string, len(leaves))
	anchor := -1
	for i, lf := range leaves {
		parts[i] = string(w.src[lf.from:lf.to])
		if i > 0 && (lf.from > leaves[i-1].to || lf.currency) {
			gaps[i] = " "
		}
		if lf.anchor && anchor < 0 {
			anchor = i
		}
	}

	var b strings.Builder
	if w.indented(leaves[0].from) {
		b.WriteString(w.opts.Indent)
	}
	if anchor <= 0 {
		for i := range parts {
			b.WriteString(gaps[i])
			b.WriteString(parts[i])
		}
		return b.String()
	}

	for i := range anchor {
		b.WriteString(gaps[i])
		b.WriteString(parts[i])
	}
	var expr strings.Builder
	j := anchor
	for ; j < len(leaves) && leaves[j].inAmount && !leaves[j].currency; j++ {
		if j > anchor {
			expr.WriteString(gaps[j])
		}
		expr.WriteString(parts[j])
	}
	pad := w.opts.CurrencyColumn - uniseg.StringWidth(b.String()) - uniseg.StringWidth(expr.String()) - 1
	b.WriteString(strings.Repeat(" ", max(pad, minAmountGap)))
	b.WriteString(expr.String())
	for ; j < len(leaves); j++ {
		b.WriteString(gaps[j])
		b.WriteString(parts[j])
	}
	return b.String()
}

// entryRegion widens r to the full lines of the top-level entries it touches.
func entryRegion(tree *syntax.Tree, src []byte, r text.Span) (text.Span, bool) {
	top := tree.TopNode()
	first, last := -1, -1
	for i := range top.ChildCount() {
		c := top.Child(i)
		if c.From <= int(r.End) && int(r.Start) <= c.To {
			if first < 0 {
				first = c.From
			}
			last = c.To
		}
	}
	if first < 0 {
		return text.Span{}, false
	}
	start := bytes.LastIndexByte(src[:first], '\n') + 1
	if start == 0 && bytes.HasPrefix(src, []byte(utf8BOM)) {
		start = len(utf8BOM)
	}
	end := len(src)
	if i := bytes.IndexByte(src[last:], '\n'); i >= 0 {
		end = last + i
		if end > start && src[end-1] == '\r' {
			end--
		}
	}
	return text.Span{Start: text.ByteOffset(start), End: text.ByteOffset(end)}, true
}
