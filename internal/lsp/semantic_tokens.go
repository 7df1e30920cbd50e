package lsp

import (
	"errors"
	"math"
	"sort"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/ledgerweaver/ledgerweaver/internal/language"
	itext "github.com/ledgerweaver/ledgerweaver/internal/text"
)

type semanticAbsToken struct {
	line      uint32
	startChar uint32
	length    uint32
	tokenType uint32
}

// semanticLegend maps highlight tags to token type indexes.
type semanticLegend struct {
	types []string
	index map[string]uint32
}

func newSemanticLegend(desc *language.Descriptor) semanticLegend {
	types := desc.HighlightTags()
	return semanticLegend{types: types, index: indexStringsUint32(types)}
}

func (l semanticLegend) protocol() protocol.SemanticTokensLegend {
	return protocol.SemanticTokensLegend{TokenTypes: l.types, TokenModifiers: []string{}}
}

func lspSemanticTokens(support *language.Support, legend semanticLegend, snap *Snapshot) (*protocol.SemanticTokens, error) {
	if snap == nil || snap.Tree == nil {
		return nil, errors.New("nil syntax tree")
	}
	if snap.Lines == nil {
		return nil, errors.New("nil line index")
	}

	seen := make(map[semanticAbsToken]struct{})
	var abs []semanticAbsToken
	for _, hl := range support.Highlight(snap.Tree, 0, len(snap.Source)) {
		typeIdx, ok := legend.index[hl.Tag]
		if !ok {
			continue
		}
		segments, err := semanticLineSegments(snap.Source, itext.Span{Start: itext.ByteOffset(hl.From), End: itext.ByteOffset(hl.To)})
		if err != nil {
			continue
		}
		for _, seg := range segments {
			tok, ok := semanticTokenForSpan(snap.Lines, seg, typeIdx)
			if !ok {
				continue
			}
			if _, dup := seen[tok]; dup {
				continue
			}
			seen[tok] = struct{}{}
			abs = append(abs, tok)
		}
	}

	sort.Slice(abs, func(i, j int) bool {
		if abs[i].line != abs[j].line {
			return abs[i].line < abs[j].line
		}
		if abs[i].startChar != abs[j].startChar {
			return abs[i].startChar < abs[j].startChar
		}
		if abs[i].length != abs[j].length {
			return abs[i].length < abs[j].length
		}
		return abs[i].tokenType < abs[j].tokenType
	})

	return &protocol.SemanticTokens{Data: encodeSemanticTokens(abs)}, nil
}

func semanticTokenForSpan(li *itext.LineIndex, sp itext.Span, tokenType uint32) (semanticAbsToken, bool) {
	if li == nil || !sp.IsValid() || sp.IsEmpty() {
		return semanticAbsToken{}, false
	}
	start, err := li.OffsetToUTF16Position(sp.Start)
	if err != nil {
		return semanticAbsToken{}, false
	}
	end, err := li.OffsetToUTF16Position(sp.End)
	if err != nil {
		return semanticAbsToken{}, false
	}
	if start.Line != end.Line || end.Character <= start.Character {
		return semanticAbsToken{}, false
	}

	line, ok := uint32FromNonNegativeInt(start.Line)
	if !ok {
		return semanticAbsToken{}, false
	}
	startChar, ok := uint32FromNonNegativeInt(start.Character)
	if !ok {
		return semanticAbsToken{}, false
	}
	length, ok := uint32FromNonNegativeInt(end.Character - start.Character)
	if !ok || length == 0 {
		return semanticAbsToken{}, false
	}

	return semanticAbsToken{
		line:      line,
		startChar: startChar,
		length:    length,
		tokenType: tokenType,
	}, true
}

// semanticLineSegments splits sp at line breaks; LSP tokens cannot span lines.
func semanticLineSegments(src []byte, sp itext.Span) ([]itext.Span, error) {
	if !sp.IsValid() {
		return nil, errors.New("invalid span")
	}
	if sp.IsEmpty() {
		return nil, nil
	}
	start := int(sp.Start)
	end := int(sp.End)
	if start < 0 || end < start || end > len(src) {
		return nil, errors.New("span out of bounds")
	}

	out := make([]itext.Span, 0, 2)
	segStart := start
	for i := start; i < end; i++ {
		if src[i] != '\n' {
			continue
		}
		segEnd := i
		if segEnd > segStart && src[segEnd-1] == '\r' {
			segEnd--
		}
		if segEnd > segStart {
			out = append(out, itext.Span{Start: itext.ByteOffset(segStart), End: itext.ByteOffset(segEnd)})
		}
		segStart = i + 1
	}
	if segStart < end {
		out = append(out, itext.Span{Start: itext.ByteOffset(segStart), End: itext.ByteOffset(end)})
	}
	return out, nil
}

func encodeSemanticTokens(tokens []semanticAbsToken) []uint32 {
	if len(tokens) == 0 {
		return []uint32{}
	}
	data := make([]uint32, 0, len(tokens)*5)
	var prevLine uint32
	var prevStart uint32
	for i, tok := range tokens {
		deltaLine := tok.line
		deltaStart := tok.startChar
		if i > 0 {
			deltaLine = tok.line - prevLine
			if deltaLine == 0 {
				deltaStart = tok.startChar - prevStart
			}
		}
		data = append(data, deltaLine, deltaStart, tok.length, tok.tokenType, 0)
		prevLine = tok.line
		prevStart = tok.startChar
	}
	return data
}

func indexStringsUint32(in []string) map[string]uint32 {
	out := make(map[string]uint32, len(in))
	for i, value := range in {
		idx, ok := uint32FromNonNegativeInt(i)
		if !ok {
			continue
		}
		out[value] = idx
	}
	return out
}

func uint32FromNonNegativeInt(v int) (uint32, bool) {
	if v < 0 || v > math.MaxUint32 {
		return 0, false
	}
	return uint32(v), true
}
