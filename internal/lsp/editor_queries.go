package lsp

import (
	"bytes"
	"errors"
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/ledgerweaver/ledgerweaver/internal/language"
	"github.com/ledgerweaver/ledgerweaver/internal/syntax"
	itext "github.com/ledgerweaver/ledgerweaver/internal/text"
)

const maxSymbolNameLen = 80

var symbolKinds = map[string]protocol.SymbolKind{
	"transaction": protocol.SymbolKindEvent,
	"open":        protocol.SymbolKindNamespace,
	"close":       protocol.SymbolKindNamespace,
	"balance":     protocol.SymbolKindNumber,
	"pad":         protocol.SymbolKindOperator,
	"note":        protocol.SymbolKindString,
	"document":    protocol.SymbolKindFile,
	"commodity":   protocol.SymbolKindConstant,
	"price":       protocol.SymbolKindConstant,
	"event":       protocol.SymbolKindEvent,
	"query":       protocol.SymbolKindFunction,
	"custom":      protocol.SymbolKindObject,
	"option":      protocol.SymbolKindProperty,
	"include":     protocol.SymbolKindFile,
	"plugin":      protocol.SymbolKindModule,
	"pushtag":     protocol.SymbolKindKey,
	"poptag":      protocol.SymbolKindKey,
}

// lspDocumentSymbols lists top-level entries. Transactions carry their
// postings as children.
func lspDocumentSymbols(snap *Snapshot) ([]protocol.DocumentSymbol, error) {
	if snap == nil || snap.Tree == nil {
		return nil, errors.New("nil syntax tree")
	}
	out := []protocol.DocumentSymbol{}
	if !usableTree(snap) {
		return out, nil
	}
	top := snap.Tree.TopNode()
	for i := range top.ChildCount() {
		entry := top.Child(i)
		kind, ok := symbolKinds[entry.Type().Name]
		if !ok {
			continue
		}
		sym, ok, err := documentSymbol(snap, entry, kind, firstLineName(snap.Source, entry))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if entry.Type().Name == "transaction" {
			for j := range entry.ChildCount() {
				posting := entry.Child(j)
				if posting.Type().Name != "posting" {
					continue
				}
				name := nodeText(snap.Source, firstChild(posting, "account"))
				if name == "" {
					continue
				}
				child, ok, err := documentSymbol(snap, posting, protocol.SymbolKindField, name)
				if err != nil {
					return nil, err
				}
				if ok {
					sym.Children = append(sym.Children, child)
				}
			}
		}
		out = append(out, sym)
	}
	return out, nil
}

func documentSymbol(snap *Snapshot, n *syntax.SyntaxNode, kind protocol.SymbolKind, name string) (protocol.DocumentSymbol, bool, error) {
	if strings.TrimSpace(name) == "" {
		return protocol.DocumentSymbol{}, false, nil
	}
	full, err := protocolRange(snap.Lines, trimNodeSpan(snap.Source, n))
	if err != nil {
		return protocol.DocumentSymbol{}, false, err
	}
	sel := full
	if target := selectionTarget(n); target != nil {
		if sel, err = protocolRange(snap.Lines, nodeSpan(target)); err != nil {
			return protocol.DocumentSymbol{}, false, err
		}
	}
	detail := n.Type().Name
	return protocol.DocumentSymbol{
		Name:           name,
		Detail:         &detail,
		Kind:           kind,
		Range:          full,
		SelectionRange: sel,
	}, true, nil
}

// selectionTarget is the child an editor should reveal for an entry.
func selectionTarget(n *syntax.SyntaxNode) *syntax.SyntaxNode {
	for _, name := range []string{"account", "currency", "string"} {
		if c := firstChild(n, name); c != nil {
			return c
		}
	}
	return nil
}

// lspFoldingRanges converts fold regions to line ranges.
func lspFoldingRanges(support *language.Support, snap *Snapshot) ([]protocol.FoldingRange, error) {
	if snap == nil || snap.Tree == nil {
		return nil, errors.New("nil syntax tree")
	}
	out := []protocol.FoldingRange{}
	for _, f := range support.Folds(snap.Tree, snap.Source) {
		end := f.To
		for end > f.From && (snap.Source[end-1] == '\n' || snap.Source[end-1] == '\r') {
			end--
		}
		startLine, err := snap.Lines.LineOf(itext.ByteOffset(f.From))
		if err != nil {
			return nil, err
		}
		endLine, err := snap.Lines.LineOf(itext.ByteOffset(end))
		if err != nil {
			return nil, err
		}
		if endLine <= startLine {
			continue
		}
		sl, _ := uint32FromNonNegativeInt(startLine)
		el, _ := uint32FromNonNegativeInt(endLine)
		r := protocol.FoldingRange{StartLine: sl, EndLine: el}
		if c := topLevel(snap.Tree.NodeAt(f.From, -1)); c != nil && c.Type().Name == "comment" {
			kind := string(protocol.FoldingRangeKindComment)
			r.Kind = &kind
		}
		out = append(out, r)
	}
	return out, nil
}

// lspSelectionRanges returns, per position, the chain of enclosing nodes
// from innermost to the document.
func lspSelectionRanges(snap *Snapshot, positions []protocol.Position) ([]protocol.SelectionRange, error) {
	if snap == nil || snap.Tree == nil {
		return nil, errors.New("nil syntax tree")
	}
	out := make([]protocol.SelectionRange, 0, len(positions))
	for _, pos := range positions {
		off, err := offsetFromProtocol(snap.Lines, pos)
		if err != nil {
			return nil, err
		}
		var spans []itext.Span
		if usableTree(snap) {
			for n := snap.Tree.NodeAt(int(off), 1); n != nil; n = n.Parent() {
				sp := trimNodeSpan(snap.Source, n)
				if len(spans) > 0 && spans[len(spans)-1] == sp {
					continue
				}
				spans = append(spans, sp)
			}
		}
		if len(spans) == 0 {
			spans = append(spans, itext.Span{Start: off, End: off})
		}

		var parent *protocol.SelectionRange
		for i := len(spans) - 1; i >= 0; i-- {
			r, err := protocolRange(snap.Lines, spans[i])
			if err != nil {
				return nil, err
			}
			parent = &protocol.SelectionRange{Range: r, Parent: parent}
		}
		out = append(out, *parent)
	}
	return out, nil
}

func usableTree(snap *Snapshot) bool {
	return snap.Tree.Root != nil && !snap.Tree.Degraded && snap.Tree.Length() == len(snap.Source)
}

// topLevel returns the ancestor of n that is a direct child of the root.
func topLevel(n *syntax.SyntaxNode) *syntax.SyntaxNode {
	for n != nil && n.Parent() != nil && n.Parent().Parent() != nil {
		n = n.Parent()
	}
	if n == nil || n.Parent() == nil {
		return nil
	}
	return n
}

func firstChild(n *syntax.SyntaxNode, typeName string) *syntax.SyntaxNode {
	if n == nil {
		return nil
	}
	for i := range n.ChildCount() {
		if c := n.Child(i); c.Type().Name == typeName {
			return c
		}
	}
	return nil
}

func nodeSpan(n *syntax.SyntaxNode) itext.Span {
	return itext.Span{Start: itext.ByteOffset(n.From), End: itext.ByteOffset(n.To)}
}

func nodeText(src []byte, n *syntax.SyntaxNode) string {
	if n == nil {
		return ""
	}
	return string(src[n.From:n.To])
}

// trimNodeSpan drops trailing whitespace and line breaks from n's span.
func trimNodeSpan(src []byte, n *syntax.SyntaxNode) itext.Span {
	end := n.To
	for end > n.From && isSpaceByte(src[end-1]) {
		end--
	}
	return itext.Span{Start: itext.ByteOffset(n.From), End: itext.ByteOffset(end)}
}

func firstLineName(src []byte, n *syntax.SyntaxNode) string {
	line := src[n.From:n.To]
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	name := strings.TrimSpace(string(line))
	if len(name) > maxSymbolNameLen {
		cut := maxSymbolNameLen
		for cut > 0 && !isRuneStart(name[cut]) {
			cut--
		}
		name = name[:cut] + "…"
	}
	return name
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func protocolPosition(li *itext.LineIndex, off itext.ByteOffset) (protocol.Position, error) {
	p, err := li.OffsetToUTF16Position(off)
	if err != nil {
		return protocol.Position{}, err
	}
	line, _ := uint32FromNonNegativeInt(p.Line)
	char, _ := uint32FromNonNegativeInt(p.Character)
	return protocol.Position{Line: line, Character: char}, nil
}

func protocolRange(li *itext.LineIndex, sp itext.Span) (protocol.Range, error) {
	start, err := protocolPosition(li, sp.Start)
	if err != nil {
		return protocol.Range{}, err
	}
	end, err := protocolPosition(li, sp.End)
	if err != nil {
		return protocol.Range{}, err
	}
	return protocol.Range{Start: start, End: end}, nil
}

func utf16Position(p protocol.Position) itext.UTF16Position {
	return itext.UTF16Position{Line: int(p.Line), Character: int(p.Character)}
}

func offsetFromProtocol(li *itext.LineIndex, p protocol.Position) (itext.ByteOffset, error) {
	return li.UTF16PositionToOffset(utf16Position(p))
}

func spanFromProtocol(li *itext.LineIndex, r protocol.Range) (itext.Span, error) {
	start, err := offsetFromProtocol(li, r.Start)
	if err != nil {
		return itext.Span{}, err
	}
	end, err := offsetFromProtocol(li, r.End)
	if err != nil {
		return itext.Span{}, err
	}
	return itext.NewSpan(start, end)
}
