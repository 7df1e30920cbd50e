package lint

import (
	"context"

	"github.com/ledgerweaver/ledgerweaver/internal/syntax"
)

// SyntaxErrorsRule reports the parser's error nodes, or the degraded tree, as diagnostics.
type SyntaxErrorsRule struct{}

// ID returns the stable rule identifier.
func (SyntaxErrorsRule) ID() string {
	return "syntax_errors"
}

// Description returns a human-readable rule summary.
func (SyntaxErrorsRule) Description() string {
	return "the journal must parse without syntax errors"
}

// Run evaluates the rule against a syntax tree.
func (SyntaxErrorsRule) Run(ctx context.Context, doc Document) ([]syntax.Diagnostic, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return syntax.ErrorDiagnostics(doc.Tree), nil
}
