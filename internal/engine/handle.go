package engine

import (
	"context"
	"fmt"
	"sync"
)

// Loader initializes an engine.
type Loader func(ctx context.Context) (Engine, error)

// Handle loads an engine at most once per process and hands out the result.
// A failed load is permanent: every later call reports the same error.
type Handle struct {
	once sync.Once
	load Loader
	eng  Engine
	err  error
}

// NewHandle returns a handle that runs load on first use.
func NewHandle(load Loader) *Handle {
	return &Handle{load: load}
}

// Ready returns a handle around an already loaded engine.
func Ready(eng Engine) *Handle {
	h := &Handle{eng: eng}
	h.once.Do(func() {})
	if eng == nil {
		h.err = fmt.Errorf("%w: nil engine", ErrUnavailable)
	}
	return h
}

// Failed returns a handle that is permanently unavailable.
func Failed(cause error) *Handle {
	h := &Handle{err: fmt.Errorf("%w: %w", ErrUnavailable, cause)}
	h.once.Do(func() {})
	return h
}

// Engine returns the loaded engine, loading it on first call. The load
// outlives ctx's cancellation since its result is shared by every caller.
func (h *Handle) Engine(ctx context.Context) (Engine, error) {
	if h == nil {
		return nil, fmt.Errorf("%w: nil handle", ErrUnavailable)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.once.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				h.eng, h.err = nil, fmt.Errorf("%w: loader panicked: %v", ErrUnavailable, r)
			}
		}()
		if h.load == nil {
			h.err = fmt.Errorf("%w: no loader", ErrUnavailable)
			return
		}
		eng, err := h.load(context.WithoutCancel(ctx))
		switch {
		case err != nil:
			h.err = fmt.Errorf("%w: %w", ErrUnavailable, err)
		case eng == nil:
			h.err = fmt.Errorf("%w: loader returned nil engine", ErrUnavailable)
		default:
			h.eng = eng
		}
	})
	return h.eng, h.err
}
