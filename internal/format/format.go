package format

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ledgerweaver/ledgerweaver/internal/syntax"
	"github.com/ledgerweaver/ledgerweaver/internal/text"
)

// Document formats a whole journal. tree must be the completed parse of src.
func Document(ctx context.Context, tree *syntax.Tree, src []byte, opts Options) (Result, error) {
	normOpts, policy, diags, err := prepareFormatting(ctx, tree, src, opts)
	if err != nil {
		return Result{Diagnostics: diags}, err
	}

	w := newLineWriter(src, normOpts, policy)
	w.writeLeaves(collectLeaves(tree, 0, len(src)))
	out := w.finish(true)
	if policy.HasBOM {
		out = append([]byte(utf8BOM), out...)
	}
	return Result{
		Output:      out,
		Changed:     !bytes.Equal(out, src),
		Diagnostics: diags,
	}, nil
}

// Range formats the entries overlapping r and returns at most one byte edit
// covering their lines.
func Range(ctx context.Context, tree *syntax.Tree, src []byte, r text.Span, opts Options) (RangeResult, error) {
	normOpts, policy, diags, err := prepareFormatting(ctx, tree, src, opts)
	if err != nil {
		return RangeResult{Diagnostics: diags}, err
	}
	if err := r.Validate(); err != nil {
		return RangeResult{}, fmt.Errorf("invalid range: %w", err)
	}
	if int(r.End) > len(src) {
		return RangeResult{}, fmt.Errorf("range %s out of bounds for source length %d", r, len(src))
	}

	region, ok := entryRegion(tree, src, r)
	if !ok {
		return RangeResult{Diagnostics: diags}, nil
	}
	w := newLineWriter(src, normOpts, policy)
	w.writeLeaves(collectLeaves(tree, int(region.Start), int(region.End)))
	out := w.finish(false)

	if bytes.Equal(out, src[region.Start:region.End]) {
		return RangeResult{Diagnostics: diags}, nil
	}
	return RangeResult{
		Edits:       []text.ByteEdit{{Span: region, NewText: out}},
		Diagnostics: diags,
	}, nil
}

func prepareFormatting(ctx context.Context, tree *syntax.Tree, src []byte, opts Options) (Options, SourcePolicy, []syntax.Diagnostic, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return Options{}, SourcePolicy{}, nil, err
	}
	if tree == nil {
		return Options{}, SourcePolicy{}, nil, errors.New("nil syntax tree")
	}

	normOpts, err := normalizeOptions(opts)
	if err != nil {
		return Options{}, SourcePolicy{}, nil, err
	}

	diags := syntax.ErrorDiagnostics(tree)
	policy, policyDiags := analyzeSourcePolicy(src)
	diags = append(diags, policyDiags...)

	switch {
	case !policy.ValidUTF8:
		return normOpts, policy, diags, unsafeFormattingErr(UnsafeReasonInvalidUTF8, "input contains invalid UTF-8 bytes")
	case tree.Degraded:
		return normOpts, policy, diags, unsafeFormattingErr(UnsafeReasonNoTree, "syntax tree unavailable")
	case tree.Partial() || tree.Length() != len(src):
		return normOpts, policy, diags, unsafeFormattingErr(UnsafeReasonNoTree, "syntax tree does not cover the document")
	case hasTruncatedNodes(tree):
		return normOpts, policy, diags, unsafeFormattingErr(UnsafeReasonNoTree, "syntax tree was converted for a restricted range")
	case syntax.HasErrors(tree):
		return normOpts, policy, diags, unsafeFormattingErr(UnsafeReasonSyntaxErrors, "syntax errors present")
	default:
		return normOpts, policy, diags, nil
	}
}

func hasTruncatedNodes(tree *syntax.Tree) bool {
	found := false
	tree.Iterate(0, tree.Length(), func(n *syntax.SyntaxNode) bool {
		if n.Node.Truncated {
			found = true
		}
		return !found
	}, nil)
	return found
}

func unsafeFormattingErr(reason UnsafeReason, msg string) *ErrUnsafeToFormat {
	return &ErrUnsafeToFormat{
		Reason:  reason,
		Message: msg,
	}
}
