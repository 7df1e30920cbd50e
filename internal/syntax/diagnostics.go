package syntax

import (
	"github.com/ledgerweaver/ledgerweaver/internal/text"
)

// DiagnosticCode identifies a diagnostic class.
type DiagnosticCode string

const (
	DiagnosticSyntaxError       DiagnosticCode = "SYNTAX_ERROR"
	DiagnosticEngineUnavailable DiagnosticCode = "ENGINE_UNAVAILABLE"
)

// Severity orders diagnostics for presentation.
type Severity uint8

const (
	SeverityError Severity = iota + 1
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	default:
		return "unknown"
	}
}

// Diagnostic is a problem report anchored to a byte span.
type Diagnostic struct {
	Code        DiagnosticCode
	Message     string
	Severity    Severity
	Span        text.Span
	Source      string
	Recoverable bool
}

// ErrorDiagnostics reports the outermost error nodes of tree. A degraded tree
// yields a single diagnostic covering the document.
func ErrorDiagnostics(tree *Tree) []Diagnostic {
	if tree == nil || tree.Root == nil {
		return nil
	}
	if tree.Degraded {
		return []Diagnostic{{
			Code:     DiagnosticEngineUnavailable,
			Message:  "syntax tree unavailable: grammar engine failed",
			Severity: SeverityWarning,
			Span:     text.Span{End: text.ByteOffset(tree.Length())},
			Source:   "parser",
		}}
	}
	var out []Diagnostic
	tree.Iterate(0, tree.Length(), func(n *SyntaxNode) bool {
		if !n.Type().IsError {
			return true
		}
		msg := "syntax error"
		if n.ChildCount() == 0 && n.To-n.From <= 1 {
			msg = "syntax error: missing or unexpected token"
		}
		out = append(out, Diagnostic{
			Code:        DiagnosticSyntaxError,
			Message:     msg,
			Severity:    SeverityError,
			Span:        text.Span{Start: text.ByteOffset(n.From), End: text.ByteOffset(n.To)},
			Source:      "parser",
			Recoverable: true,
		})
		return false
	}, nil)
	return out
}

// HasErrors reports whether tree contains error nodes or is degraded.
func HasErrors(tree *Tree) bool {
	if tree == nil || tree.Root == nil {
		return true
	}
	if tree.Degraded || tree.Root.Type.IsError {
		return true
	}
	found := false
	tree.Iterate(0, tree.Length(), func(n *SyntaxNode) bool {
		if found {
			return false
		}
		if n.Type().IsError {
			found = true
			return false
		}
		return true
	}, nil)
	return found
}
