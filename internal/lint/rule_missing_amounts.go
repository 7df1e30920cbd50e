package lint

import (
	"context"

	"github.com/ledgerweaver/ledgerweaver/internal/syntax"
)

const (
	// DiagnosticMultipleMissingAmounts reports transactions with more than one posting lacking an amount.
	DiagnosticMultipleMissingAmounts syntax.DiagnosticCode = "LINT_MULTIPLE_MISSING_AMOUNTS"
)

// MissingAmountsRule enforces that at most one posting per transaction is left
// for the balancer to infer.
type MissingAmountsRule struct{}

// ID returns the stable rule identifier.
func (MissingAmountsRule) ID() string {
	return "multiple_missing_amounts"
}

// Description returns a human-readable rule summary.
func (MissingAmountsRule) Description() string {
	return "at most one posting per transaction may omit its amount"
}

// Run evaluates the rule against a syntax tree.
func (MissingAmountsRule) Run(ctx context.Context, doc Document) ([]syntax.Diagnostic, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]syntax.Diagnostic, 0, 8)
	forEachEntry(doc.Tree, func(entry *syntax.SyntaxNode, kind string) {
		if kind != "transaction" {
			return
		}
		var missing []*syntax.SyntaxNode
		for _, posting := range childrenByType(entry, "posting") {
			if hasErrorChild(posting) {
				return
			}
			if firstChildByType(posting, "amount") == nil {
				missing = append(missing, posting)
			}
		}
		if len(missing) < 2 {
			return
		}
		for _, posting := range missing[1:] {
			out = append(out, syntax.Diagnostic{
				Code:        DiagnosticMultipleMissingAmounts,
				Message:     "only one posting per transaction may omit its amount",
				Severity:    syntax.SeverityError,
				Span:        nodeSpan(posting),
				Recoverable: true,
			})
		}
	})
	return out, nil
}
