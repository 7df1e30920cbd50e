package language

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/ledgerweaver/ledgerweaver/internal/syntax"
	"github.com/ledgerweaver/ledgerweaver/internal/text"
)

// CompletionKind classifies a completion item.
type CompletionKind uint8

const (
	// CompletionKeyword is a directive keyword.
	CompletionKeyword CompletionKind = iota + 1
	// CompletionAccount is an account name.
	CompletionAccount
	// CompletionCurrency is a commodity symbol.
	CompletionCurrency
)

func (k CompletionKind) String() string {
	switch k {
	case CompletionKeyword:
		return "keyword"
	case CompletionAccount:
		return "account"
	case CompletionCurrency:
		return "currency"
	default:
		return fmt.Sprintf("CompletionKind(%d)", k)
	}
}

// Completion is one suggestion. Replace is the partial word it replaces.
type Completion struct {
	Label   string
	Kind    CompletionKind
	Replace text.Span
}

// accountDirectives take an account right after the keyword.
var accountDirectives = map[string]bool{
	"open": true, "close": true, "balance": true, "pad": true, "note": true, "document": true,
}

// currencyDirectives take a currency right after the keyword.
var currencyDirectives = map[string]bool{
	"commodity": true, "price": true,
}

// Complete returns suggestions for the word ending at pos. Keywords come from
// the descriptor; accounts and currencies from the tree and the configured
// AccountSource.
func (s *Support) Complete(ctx context.Context, tree *syntax.Tree, src []byte, pos int) ([]Completion, error) {
	if pos < 0 || pos > len(src) {
		return nil, fmt.Errorf("completion offset %d out of bounds for source length %d", pos, len(src))
	}
	start := pos
	for start > 0 && isWordByte(src[start-1]) {
		start--
	}
	prefix := string(src[start:pos])
	replace := text.Span{Start: text.ByteOffset(start), End: text.ByteOffset(pos)}
	lineStart := bytes.LastIndexByte(src[:start], '\n') + 1
	fields := strings.Fields(string(src[lineStart:start]))

	var labels []string
	var kind CompletionKind
	switch {
	case start == lineStart:
		kind, labels = CompletionKeyword, s.desc.Keywords.Undated
	case len(fields) == 0 || (len(fields) == 1 && isFlag(fields[0])):
		kind = CompletionAccount
	case len(fields) == 1 && isDate(fields[0]):
		kind, labels = CompletionKeyword, s.desc.Keywords.Dated
	case len(fields) == 2 && isDate(fields[0]) && accountDirectives[fields[1]]:
		kind = CompletionAccount
	case len(fields) == 2 && isDate(fields[0]) && currencyDirectives[fields[1]]:
		kind = CompletionCurrency
	case isNumberish(fields[len(fields)-1]):
		kind = CompletionCurrency
	case strings.Contains(prefix, ":"):
		kind = CompletionAccount
	default:
		return nil, nil
	}

	switch kind {
	case CompletionAccount:
		labels = s.treeWords(tree, src, "account", start)
		if s.opts.Accounts != nil {
			more, err := s.opts.Accounts.Accounts(ctx, prefix)
			if err != nil {
				s.log.Warningf("account source: %v", err)
			}
			labels = append(labels, more...)
		}
	case CompletionCurrency:
		labels = s.treeWords(tree, src, "currency", start)
	}

	var out []Completion
	for _, label := range uniqueSorted(labels) {
		if label == prefix || !hasPrefixFold(label, prefix) {
			continue
		}
		out = append(out, Completion{Label: label, Kind: kind, Replace: replace})
	}
	return out, nil
}

// treeWords collects the text of nodes named typeName, skipping the word
// being completed.
func (s *Support) treeWords(tree *syntax.Tree, src []byte, typeName string, wordStart int) []string {
	if !usable(tree) || tree.Length() != len(src) {
		return nil
	}
	var out []string
	tree.Iterate(0, tree.Length(), func(n *syntax.SyntaxNode) bool {
		if n.Type().Name != typeName {
			return true
		}
		if n.To > n.From && n.From != wordStart {
			out = append(out, string(src[n.From:n.To]))
		}
		return false
	}, nil)
	return out
}

func uniqueSorted(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func isWordByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == ':' || b == '-' || b == '_' || b == '.' || b == '\'':
		return true
	default:
		return b >= 0x80
	}
}

func isFlag(f string) bool {
	return f == "*" || f == "!"
}

func isDate(f string) bool {
	if len(f) != 10 || (f[4] != '-' && f[4] != '/') || f[7] != f[4] {
		return false
	}
	for i := range len(f) {
		if i == 4 || i == 7 {
			continue
		}
		if f[i] < '0' || f[i] > '9' {
			return false
		}
	}
	return true
}

func isNumberish(f string) bool {
	last := f[len(f)-1]
	return (last >= '0' && last <= '9') || last == ')'
}
