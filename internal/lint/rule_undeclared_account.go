package lint

import (
	"context"
	"fmt"

	"github.com/ledgerweaver/ledgerweaver/internal/syntax"
)

const (
	// DiagnosticUndeclaredAccount reports accounts used without an open directive.
	DiagnosticUndeclaredAccount syntax.DiagnosticCode = "LINT_UNDECLARED_ACCOUNT"
)

// DeclaredAccounts reports whether an account is opened outside the linted document.
type DeclaredAccounts interface {
	Declared(ctx context.Context, name string) (bool, error)
}

// UndeclaredAccountRule flags accounts that no open directive declares.
type UndeclaredAccountRule struct {
	// Declared is consulted for accounts the document itself does not open.
	Declared DeclaredAccounts
}

// ID returns the stable rule identifier.
func (UndeclaredAccountRule) ID() string {
	return "undeclared_account"
}

// Description returns a human-readable rule summary.
func (UndeclaredAccountRule) Description() string {
	return "accounts must be declared by an open directive before use"
}

// Run evaluates the rule against a syntax tree.
func (r UndeclaredAccountRule) Run(ctx context.Context, doc Document) ([]syntax.Diagnostic, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opened := map[string]bool{}
	var uses []*syntax.SyntaxNode
	forEachEntry(doc.Tree, func(entry *syntax.SyntaxNode, kind string) {
		switch kind {
		case "open":
			if acc := firstChildByType(entry, "account"); acc != nil {
				opened[nodeText(doc.Source, acc)] = true
			}
		case "transaction":
			for _, posting := range childrenByType(entry, "posting") {
				if acc := firstChildByType(posting, "account"); acc != nil && acc.To > acc.From {
					uses = append(uses, acc)
				}
			}
		case "close", "balance", "pad", "note", "document":
			for _, acc := range childrenByType(entry, "account") {
				if acc.To > acc.From {
					uses = append(uses, acc)
				}
			}
		}
	})

	external := map[string]bool{}
	out := make([]syntax.Diagnostic, 0, 8)
	for _, acc := range uses {
		name := nodeText(doc.Source, acc)
		if opened[name] {
			continue
		}
		known, checked := external[name]
		if !checked && r.Declared != nil {
			ok, err := r.Declared.Declared(ctx, name)
			if err != nil {
				return nil, fmt.Errorf("check account %s: %w", name, err)
			}
			known = ok
			external[name] = ok
		}
		if known {
			continue
		}
		out = append(out, syntax.Diagnostic{
			Code:        DiagnosticUndeclaredAccount,
			Message:     fmt.Sprintf("account %s is used but never opened", name),
			Severity:    syntax.SeverityWarning,
			Span:        nodeSpan(acc),
			Recoverable: true,
		})
	}
	return out, nil
}
