// Package format provides the ledger formatter: posting amounts aligned on a
// currency column, normalized indentation and blank lines.
package format

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ledgerweaver/ledgerweaver/internal/syntax"
	"github.com/ledgerweaver/ledgerweaver/internal/text"
)

const (
	defaultCurrencyColumn = 52
	defaultIndent         = "  "
	defaultMaxBlankLines  = 2
	minAmountGap          = 2
)

// Options configure formatter behavior.
type Options struct {
	// CurrencyColumn is the display column where aligned currencies start.
	CurrencyColumn int
	Indent         string
	MaxBlankLines  int
}

// Result is the full-document formatting result.
type Result struct {
	Output      []byte
	Changed     bool
	Diagnostics []syntax.Diagnostic
}

// RangeResult is the range-formatting result.
type RangeResult struct {
	Edits       []text.ByteEdit
	Diagnostics []syntax.Diagnostic
}

// UnsafeReason identifies why a request was refused as unsafe.
type UnsafeReason string

const (
	// UnsafeReasonInvalidUTF8 indicates invalid UTF-8 bytes in the source input.
	UnsafeReasonInvalidUTF8 UnsafeReason = "invalid_utf8"
	// UnsafeReasonSyntaxErrors indicates fail-closed refusal due to error nodes in the tree.
	UnsafeReasonSyntaxErrors UnsafeReason = "syntax_errors"
	// UnsafeReasonNoTree indicates the tree is degraded, partial or does not match the source.
	UnsafeReasonNoTree UnsafeReason = "no_tree"
)

// ErrUnsafeToFormat is returned when formatting is refused due to unsafe input state.
type ErrUnsafeToFormat struct {
	Reason  UnsafeReason
	Message string
}

func (e *ErrUnsafeToFormat) Error() string {
	if e == nil {
		return "unsafe to format"
	}
	if e.Message == "" {
		return fmt.Sprintf("unsafe to format (%s)", e.Reason)
	}
	return fmt.Sprintf("unsafe to format (%s): %s", e.Reason, e.Message)
}

// IsErrUnsafeToFormat reports whether err is a formatter safety refusal.
func IsErrUnsafeToFormat(err error) bool {
	var target *ErrUnsafeToFormat
	return AsUnsafeToFormat(err, &target)
}

// AsUnsafeToFormat reports whether err contains an ErrUnsafeToFormat.
func AsUnsafeToFormat(err error, target **ErrUnsafeToFormat) bool {
	if err == nil || target == nil {
		return false
	}
	return errors.As(err, target)
}

func normalizeOptions(opts Options) (Options, error) {
	if opts.CurrencyColumn < 0 {
		return Options{}, fmt.Errorf("invalid CurrencyColumn %d", opts.CurrencyColumn)
	}
	if opts.MaxBlankLines < 0 {
		return Options{}, fmt.Errorf("invalid MaxBlankLines %d", opts.MaxBlankLines)
	}
	if strings.Trim(opts.Indent, " \t") != "" {
		return Options{}, fmt.Errorf("invalid Indent %q: only spaces and tabs are allowed", opts.Indent)
	}
	if opts.CurrencyColumn == 0 {
		opts.CurrencyColumn = defaultCurrencyColumn
	}
	if opts.Indent == "" {
		opts.Indent = defaultIndent
	}
	if opts.MaxBlankLines == 0 {
		opts.MaxBlankLines = defaultMaxBlankLines
	}
	return opts, nil
}
