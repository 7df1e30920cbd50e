// Package telemetry records parser bridge metrics through the OpenTelemetry
// metric API. Without an installed MeterProvider every instrument is a no-op.
package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/ledgerweaver/ledgerweaver/internal/engine"
	"github.com/ledgerweaver/ledgerweaver/internal/syntax"
)

// ScopeName is the instrumentation scope of every instrument.
const ScopeName = "github.com/ledgerweaver/ledgerweaver"

// Recorder owns the bridge instruments.
type Recorder struct {
	parses        metric.Int64Counter
	chunks        metric.Int64Counter
	edits         metric.Int64Counter
	converted     metric.Int64Counter
	reused        metric.Int64Counter
	verifications metric.Int64Counter
	liveTrees     metric.Int64UpDownCounter
	engineParses  metric.Int64Counter
}

// New creates the instruments on mp.
func New(mp metric.MeterProvider) (*Recorder, error) {
	meter := mp.Meter(ScopeName)
	r := &Recorder{}
	var err, e error

	r.parses, e = meter.Int64Counter("ledgerweaver.parser.parses",
		metric.WithDescription("Completed parses by mode and fallback reason"))
	err = errors.Join(err, e)
	r.chunks, e = meter.Int64Counter("ledgerweaver.parser.chunks",
		metric.WithDescription("Prefix chunks parsed during cold parses"))
	err = errors.Join(err, e)
	r.edits, e = meter.Int64Counter("ledgerweaver.parser.applied_edits",
		metric.WithDescription("Edits applied to live native trees"))
	err = errors.Join(err, e)
	r.converted, e = meter.Int64Counter("ledgerweaver.parser.converted_nodes",
		metric.WithDescription("Native nodes converted"))
	err = errors.Join(err, e)
	r.reused, e = meter.Int64Counter("ledgerweaver.parser.reused_nodes",
		metric.WithDescription("Converted subtrees reused from a previous tree"))
	err = errors.Join(err, e)
	r.verifications, e = meter.Int64Counter("ledgerweaver.parser.verifications",
		metric.WithDescription("Full-parse verifications by outcome"))
	err = errors.Join(err, e)
	r.liveTrees, e = meter.Int64UpDownCounter("ledgerweaver.engine.live_trees",
		metric.WithDescription("Native tree handles not yet released"))
	err = errors.Join(err, e)
	r.engineParses, e = meter.Int64Counter("ledgerweaver.engine.parses",
		metric.WithDescription("Engine parse calls by outcome"))
	err = errors.Join(err, e)

	if err != nil {
		return nil, err
	}
	return r, nil
}

// Global returns a recorder on the global MeterProvider, or a no-op recorder
// if instrument creation fails.
func Global() *Recorder {
	r, err := New(otel.GetMeterProvider())
	if err != nil {
		r, _ = New(noop.NewMeterProvider())
	}
	return r
}

// ObserveReparse is a syntax.Config.Observer.
func (r *Recorder) ObserveReparse(ev syntax.ReparseEvent) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("mode", ev.Mode),
		attribute.String("fallback_reason", ev.FallbackReason),
	)
	r.parses.Add(ctx, 1, attrs)
	if ev.Chunks > 0 {
		r.chunks.Add(ctx, int64(ev.Chunks))
	}
	if ev.AppliedEdits > 0 {
		r.edits.Add(ctx, int64(ev.AppliedEdits))
	}
	if ev.ConvertedNodes > 0 {
		r.converted.Add(ctx, int64(ev.ConvertedNodes))
	}
	if ev.ReusedNodes > 0 {
		r.reused.Add(ctx, int64(ev.ReusedNodes))
	}
	if ev.VerificationRun {
		r.verifications.Add(ctx, 1, metric.WithAttributes(attribute.Bool("failed", ev.VerificationFailed)))
	}
}

// Instrument wraps eng so that tree handles are counted while live.
func (r *Recorder) Instrument(eng engine.Engine) engine.Engine {
	return &countingEngine{inner: eng, rec: r}
}

// InstrumentLoader wraps the engine a loader produces.
func (r *Recorder) InstrumentLoader(load engine.Loader) engine.Loader {
	return func(ctx context.Context) (engine.Engine, error) {
		eng, err := load(ctx)
		if err != nil || eng == nil {
			return eng, err
		}
		return r.Instrument(eng), nil
	}
}

type countingEngine struct {
	inner engine.Engine
	rec   *Recorder
}

func (e *countingEngine) Name() string { return e.inner.Name() }

func (e *countingEngine) Parse(ctx context.Context, src []byte, old engine.Tree) (engine.Tree, error) {
	if t, ok := old.(*countingTree); ok {
		old = t.inner
	}
	tree, err := e.inner.Parse(ctx, src, old)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	e.rec.engineParses.Add(ctx, 1, metric.WithAttributes(
		attribute.String("engine", e.inner.Name()),
		attribute.String("outcome", outcome),
	))
	if err != nil {
		return nil, err
	}
	e.rec.liveTrees.Add(ctx, 1)
	return &countingTree{inner: tree, rec: e.rec}, nil
}

type countingTree struct {
	inner    engine.Tree
	rec      *Recorder
	released bool
}

func (t *countingTree) Root() engine.Node                { return t.inner.Root() }
func (t *countingTree) Edit(edit engine.InputEdit) error { return t.inner.Edit(edit) }

func (t *countingTree) Release() {
	if !t.released {
		t.released = true
		t.rec.liveTrees.Add(context.Background(), -1)
	}
	t.inner.Release()
}
