package format

import (
	"bytes"
	"unicode/utf8"

	"github.com/ledgerweaver/ledgerweaver/internal/syntax"
	"github.com/ledgerweaver/ledgerweaver/internal/text"
)

const utf8BOM = "\xEF\xBB\xBF"

const (
	// DiagnosticFormatterMixedNewlines reports mixed LF/CRLF line endings in input.
	DiagnosticFormatterMixedNewlines syntax.DiagnosticCode = "FMT_MIXED_NEWLINES"
	// DiagnosticFormatterInvalidUTF8 reports formatter refusal for invalid UTF-8 bytes.
	DiagnosticFormatterInvalidUTF8 syntax.DiagnosticCode = "FMT_INVALID_UTF8"
)

// SourcePolicy is what the formatter keeps from the input bytes regardless of layout.
type SourcePolicy struct {
	HasBOM        bool
	Newline       string // "\n" or "\r\n", whichever dominates
	MixedNewlines bool
	ValidUTF8     bool
}

func analyzeSourcePolicy(src []byte) (SourcePolicy, []syntax.Diagnostic) {
	policy := SourcePolicy{
		Newline:   "\n",
		ValidUTF8: utf8.Valid(src),
		HasBOM:    bytes.HasPrefix(src, []byte(utf8BOM)),
	}
	lf, crlf := countNewlines(src)
	if crlf > lf {
		policy.Newline = "\r\n"
	}
	policy.MixedNewlines = lf > 0 && crlf > 0

	whole := text.Span{End: text.ByteOffset(len(src))}
	var diags []syntax.Diagnostic
	if !policy.ValidUTF8 {
		diags = append(diags, syntax.Diagnostic{
			Code:     DiagnosticFormatterInvalidUTF8,
			Message:  "formatter refuses invalid UTF-8 input",
			Severity: syntax.SeverityError,
			Span:     whole,
			Source:   "formatter",
		})
	}
	if policy.MixedNewlines {
		diags = append(diags, syntax.Diagnostic{
			Code:        DiagnosticFormatterMixedNewlines,
			Message:     "mixed newline styles detected; formatter will normalize to dominant style",
			Severity:    syntax.SeverityInfo,
			Span:        whole,
			Source:      "formatter",
			Recoverable: true,
		})
	}
	return policy, diags
}

// countNewlines counts bare LF and CRLF line endings.
func countNewlines(src []byte) (lf, crlf int) {
	total := bytes.Count(src, []byte("\n"))
	crlf = bytes.Count(src, []byte("\r\n"))
	return total - crlf, crlf
}
