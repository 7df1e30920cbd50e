package syntax

import "sync"

// Reparse modes reported in ReparseEvent.Mode.
const (
	ModeFull         = "full"
	ModeIncremental  = "incremental"
	ModeFallbackFull = "fallback_full"
	ModeDegraded     = "degraded"
	ModeCancelled    = "cancelled"
)

// ReparseEvent describes how one parse was carried out.
type ReparseEvent struct {
	Mode               string
	FallbackReason     string
	AppliedEdits       int
	Chunks             int
	ConvertedNodes     int
	ReusedNodes        int
	VerificationRun    bool
	VerificationFailed bool
}

var (
	reparseObserverMu sync.RWMutex
	reparseObserver   func(ReparseEvent)
)

// SetReparseObserverForTesting installs a process-wide reparse observer for tests.
func SetReparseObserverForTesting(fn func(ReparseEvent)) func() {
	reparseObserverMu.Lock()
	prev := reparseObserver
	reparseObserver = fn
	reparseObserverMu.Unlock()
	return func() {
		reparseObserverMu.Lock()
		reparseObserver = prev
		reparseObserverMu.Unlock()
	}
}

func (p *Parser) emit(ev ReparseEvent) {
	if p.cfg.Observer != nil {
		p.cfg.Observer(ev)
	}
	reparseObserverMu.RLock()
	observer := reparseObserver
	reparseObserverMu.RUnlock()
	if observer != nil {
		observer(ev)
	}
}
