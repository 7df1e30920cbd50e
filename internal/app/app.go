// Package app assembles the grammar engine, language support and account
// index from configuration. The command-line tools share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/ledgerweaver/ledgerweaver/internal/config"
	"github.com/ledgerweaver/ledgerweaver/internal/engine"
	"github.com/ledgerweaver/ledgerweaver/internal/engine/reference"
	"github.com/ledgerweaver/ledgerweaver/internal/format"
	ledgergrammar "github.com/ledgerweaver/ledgerweaver/internal/grammars/ledger"
	"github.com/ledgerweaver/ledgerweaver/internal/index"
	"github.com/ledgerweaver/ledgerweaver/internal/language"
	"github.com/ledgerweaver/ledgerweaver/internal/logger"
	"github.com/ledgerweaver/ledgerweaver/internal/telemetry"
)

// Options control what New opens.
type Options struct {
	// WithIndex opens the account index unless the configuration disables it.
	WithIndex bool
	// Telemetry defaults to a recorder on the global meter provider.
	Telemetry *telemetry.Recorder
}

// App is a configured language runtime.
type App struct {
	Config    *config.Config
	Support   *language.Support
	Index     *index.Index
	Telemetry *telemetry.Recorder

	handle *engine.Handle
	log    commonlog.Logger
	warned logger.Once
}

// New configures logging, selects the engine and builds language support.
// A missing grammar is not an error: the runtime starts degraded.
func New(cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := logger.Configure(cfg.Logger.Level, cfg.Logger.File); err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	rec := opts.Telemetry
	if rec == nil {
		rec = telemetry.Global()
	}
	a := &App{Config: cfg, Telemetry: rec, log: logger.Get("app")}
	if len(cfg.Undecoded) > 0 {
		a.log.Warningf("ignoring unknown config keys in %s: %s", cfg.Path, strings.Join(cfg.Undecoded, ", "))
	}

	if opts.WithIndex {
		path, ok, err := cfg.IndexPath()
		switch {
		case err != nil:
			a.log.Warningf("account index disabled: %v", err)
		case ok:
			ix, err := index.Open(path)
			if err != nil {
				a.log.Warningf("account index disabled: %v", err)
			} else {
				a.Index = ix
			}
		}
	}

	a.handle = EngineHandle(cfg.Engine, rec)
	lopts := language.Options{
		Handle:      a.handle,
		ChunkBytes:  cfg.Parser.ChunkBytes,
		ChunkNodes:  cfg.Parser.ChunkNodes,
		VerifyEvery: cfg.Parser.VerifyEvery,
		Observer:    rec.ObserveReparse,
		Format: format.Options{
			CurrencyColumn: cfg.Format.CurrencyColumn,
			Indent:         strings.Repeat(" ", cfg.Format.IndentWidth),
		},
		IndentWidth: cfg.Format.IndentWidth,
	}
	if a.Index != nil {
		lopts.Accounts = a.Index
	}
	support, err := language.New(lopts)
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}
	a.Support = support
	return a, nil
}

// Degraded loads the engine and reports whether it is unavailable, logging
// the cause once.
func (a *App) Degraded(ctx context.Context) bool {
	if _, err := a.handle.Engine(ctx); err != nil {
		a.warned.Warningf(a.log, "grammar engine unavailable: %v", err)
		return true
	}
	return false
}

// Close releases the account index.
func (a *App) Close() error {
	if a.Index == nil {
		return nil
	}
	err := a.Index.Close()
	a.Index = nil
	return err
}

// EngineHandle returns a lazily loading handle for the configured engine
// kind. Engines are instrumented with rec.
func EngineHandle(cfg config.EngineConfig, rec *telemetry.Recorder) *engine.Handle {
	log := logger.Get("app")
	switch cfg.Kind {
	case config.EngineReference:
		return engine.Ready(rec.Instrument(reference.New()))
	case config.EngineWASM:
		return engine.NewHandle(rec.InstrumentLoader(wasmLoader(cfg)))
	case config.EngineTreeSitter:
		load, err := nativeLoader()
		if err != nil {
			return engine.Failed(err)
		}
		return engine.NewHandle(rec.InstrumentLoader(load))
	default:
		path, err := ledgergrammar.Locate(cfg.WASMPath)
		if err != nil {
			log.Infof("no grammar artifact found (%v); starting degraded", err)
			return engine.Failed(err)
		}
		cfg.WASMPath = path
		return engine.NewHandle(rec.InstrumentLoader(wasmLoader(cfg)))
	}
}

func wasmLoader(cfg config.EngineConfig) engine.Loader {
	return ledgergrammar.Loader(cfg.WASMPath, cfg.WASMSHA256, cfg.MemoryLimitPages)
}
