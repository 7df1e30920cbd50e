package syntax

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerweaver/ledgerweaver/internal/text"
)

func TestErrorDiagnostics(t *testing.T) {
	t.Parallel()

	clean := convertSource(t, "2024-01-01 open Assets:Cash\n")
	require.Empty(t, ErrorDiagnostics(clean))
	require.False(t, HasErrors(clean))

	broken := convertSource(t, "2024-01-01 open Assets:Cash\n!!! junk\n")
	diags := ErrorDiagnostics(broken)
	require.NotEmpty(t, diags)
	require.True(t, HasErrors(broken))
	for _, d := range diags {
		require.Equal(t, DiagnosticSyntaxError, d.Code)
		require.Equal(t, SeverityError, d.Severity)
		require.Greater(t, d.Span.End, d.Span.Start)
		require.GreaterOrEqual(t, d.Span.Start, text.ByteOffset(28))
	}
}

func TestDegradedTreeDiagnostics(t *testing.T) {
	t.Parallel()

	diags := ErrorDiagnostics(newDegradedTree(42))
	require.Len(t, diags, 1)
	require.Equal(t, DiagnosticEngineUnavailable, diags[0].Code)
	require.Equal(t, text.Span{End: 42}, diags[0].Span)
	require.True(t, HasErrors(newDegradedTree(0)))
	require.True(t, HasErrors(nil))
	require.Equal(t, "warning", SeverityWarning.String())
}
