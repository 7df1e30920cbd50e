package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/ledgerweaver/ledgerweaver/internal/engine"
	"github.com/ledgerweaver/ledgerweaver/internal/engine/reference"
	"github.com/ledgerweaver/ledgerweaver/internal/syntax"
)

func newRecorder(t *testing.T) (*Recorder, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	rec, err := New(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)
	return rec, reader
}

func sum(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			data, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is %T", name, m.Data)
			for _, dp := range data.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestRecorderCountsParsesAndLiveTrees(t *testing.T) {
	t.Parallel()

	rec, reader := newRecorder(t)
	eng := reference.New()
	p := syntax.NewParser(syntax.Config{
		Handle:   engine.NewHandle(rec.InstrumentLoader(eng.Loader())),
		Observer: rec.ObserveReparse,
	})

	doc := []byte("2024-01-01 open Assets:Cash\n2024-01-02 * \"Coffee\"\n  Assets:Cash -3 EUR\n  Expenses:Food\n")
	tree := p.StartParse(context.Background(), doc, nil, nil).Finish()
	require.NotNil(t, tree)
	require.False(t, tree.Degraded)

	require.Equal(t, int64(1), sum(t, reader, "ledgerweaver.parser.parses"))
	require.Equal(t, int64(1), sum(t, reader, "ledgerweaver.engine.live_trees"))
	require.Positive(t, sum(t, reader, "ledgerweaver.parser.converted_nodes"))
	require.Positive(t, sum(t, reader, "ledgerweaver.engine.parses"))

	edited := append([]byte("; header\n"), doc...)
	frags := syntax.ApplyChanges(syntax.FragmentsFromTree(tree), []syntax.Edit{{FromA: 0, ToA: 0, FromB: 0, ToB: 9}}, 0)
	next := p.StartParse(context.Background(), edited, frags, nil).Finish()
	require.NotNil(t, next)
	require.Equal(t, int64(2), sum(t, reader, "ledgerweaver.parser.parses"))
	require.Equal(t, int64(1), sum(t, reader, "ledgerweaver.engine.live_trees"))
	require.Equal(t, int64(1), sum(t, reader, "ledgerweaver.parser.applied_edits"))

	p.Close()
	require.Zero(t, sum(t, reader, "ledgerweaver.engine.live_trees"))
	require.Zero(t, eng.LiveTrees())
}

func TestObserveReparseRecordsVerification(t *testing.T) {
	t.Parallel()

	rec, reader := newRecorder(t)
	rec.ObserveReparse(syntax.ReparseEvent{Mode: syntax.ModeIncremental, VerificationRun: true, VerificationFailed: true})
	rec.ObserveReparse(syntax.ReparseEvent{Mode: syntax.ModeDegraded, FallbackReason: "engine_unavailable"})

	require.Equal(t, int64(1), sum(t, reader, "ledgerweaver.parser.verifications"))
	require.Equal(t, int64(2), sum(t, reader, "ledgerweaver.parser.parses"))
}

func TestGlobalRecorderIsUsable(t *testing.T) {
	t.Parallel()

	rec := Global()
	require.NotNil(t, rec)
	rec.ObserveReparse(syntax.ReparseEvent{Mode: syntax.ModeFull})
}
