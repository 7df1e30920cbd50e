package app

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ledgerweaver/ledgerweaver/internal/syntax"
	"github.com/ledgerweaver/ledgerweaver/internal/text"
)

// DiagnosticJSON is the machine-readable form of one diagnostic. Lines and
// columns are 1-based; columns count bytes.
type DiagnosticJSON struct {
	File      string `json:"file"`
	Source    string `json:"source"`
	Code      string `json:"code"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	StartLine int    `json:"startLine"`
	StartCol  int    `json:"startCol"`
	EndLine   int    `json:"endLine"`
	EndCol    int    `json:"endCol"`
}

// WriteDiagnostics prints each diagnostic as a file:line:col header followed
// by the offending source line and a caret marker.
func WriteDiagnostics(w io.Writer, file string, src []byte, diags []syntax.Diagnostic) {
	li := text.NewLineIndex(src)
	for i, d := range diags {
		if i > 0 {
			_, _ = fmt.Fprintln(w)
		}
		sp := clampSpan(d.Span, li.SourceLen())
		start, err := li.OffsetToPoint(sp.Start)
		loc := sp.String()
		if err == nil {
			loc = fmt.Sprintf("%d:%d", start.Line+1, start.Column+1)
		}
		_, _ = fmt.Fprintf(w, "%s:%s: %s: %s/%s: %s\n", file, loc, severityLetter(d.Severity), d.Source, d.Code, d.Message)
		if err != nil {
			continue
		}
		writeSnippet(w, src, li, sp, start)
	}
}

func writeSnippet(w io.Writer, src []byte, li *text.LineIndex, sp text.Span, start text.Point) {
	lineSpan, err := li.LineSpan(start.Line)
	if err != nil {
		return
	}
	line := src[lineSpan.Start:lineSpan.End]
	startCol := min(start.Column, len(line))
	width := 1
	if end, err := li.OffsetToPoint(sp.End); err == nil {
		switch {
		case end.Line != start.Line:
			width = max(len(line)-startCol, 1)
		case end.Column > startCol:
			width = min(end.Column, len(line)) - startCol
		}
	}
	width = max(width, 1)

	var prefix strings.Builder
	for _, ch := range line[:startCol] {
		if ch == '\t' {
			prefix.WriteByte('\t')
		} else {
			prefix.WriteByte(' ')
		}
	}
	_, _ = fmt.Fprintf(w, "%s\n%s%s\n", line, prefix.String(), strings.Repeat("^", width))
}

// JSONDiagnostics converts diags for file to their JSON form.
func JSONDiagnostics(file string, src []byte, diags []syntax.Diagnostic) ([]DiagnosticJSON, error) {
	li := text.NewLineIndex(src)
	out := make([]DiagnosticJSON, 0, len(diags))
	for _, d := range diags {
		sp := clampSpan(d.Span, li.SourceLen())
		start, err := li.OffsetToPoint(sp.Start)
		if err != nil {
			return nil, err
		}
		end, err := li.OffsetToPoint(sp.End)
		if err != nil {
			return nil, err
		}
		out = append(out, DiagnosticJSON{
			File:      file,
			Source:    d.Source,
			Code:      string(d.Code),
			Severity:  d.Severity.String(),
			Message:   d.Message,
			StartLine: start.Line + 1,
			StartCol:  start.Column + 1,
			EndLine:   end.Line + 1,
			EndCol:    end.Column + 1,
		})
	}
	return out, nil
}

// WriteJSON encodes v as indented JSON without HTML escaping.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func clampSpan(sp text.Span, srcLen text.ByteOffset) text.Span {
	sp.Start = min(max(sp.Start, 0), srcLen)
	sp.End = min(max(sp.End, sp.Start), srcLen)
	return sp
}

func severityLetter(s syntax.Severity) string {
	switch s {
	case syntax.SeverityWarning:
		return "W"
	case syntax.SeverityInfo:
		return "I"
	default:
		return "E"
	}
}
