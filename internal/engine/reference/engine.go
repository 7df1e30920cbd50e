// Package reference provides an in-process reference grammar engine for the
// ledger language, selected with engine kind "reference". It follows the
// engine contract closely enough to stand in for the sandboxed production
// engine: handles must be released, released trees panic when queried, and
// incremental parses carry unchanged entries over from the hint tree with
// their identities intact. Handle accounting and failure injection let tests
// observe and break it.
package reference

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ledgerweaver/ledgerweaver/internal/engine"
)

// Name is the engine identifier reported by Engine.Name.
const Name = "ledger-reference"

// ErrInjected is the default error returned by injected parse failures.
var ErrInjected = errors.New("reference: injected parse failure")

// Engine is the reference ledger engine. It is safe for concurrent use.
type Engine struct {
	ids atomic.Uint64

	live           atomic.Int64
	maxLive        atomic.Int64
	parses         atomic.Int64
	incremental    atomic.Int64
	reusedEntries  atomic.Int64
	doubleReleases atomic.Int64

	mu         sync.Mutex
	failNext   int
	failErr    error
	panicNext  bool
	beforeFunc func(src []byte)
}

var _ engine.Engine = (*Engine)(nil)

// New returns a reference engine with no injected failures.
func New() *Engine {
	return &Engine{}
}

// Loader returns an engine.Loader that yields e.
func (e *Engine) Loader() engine.Loader {
	return func(context.Context) (engine.Engine, error) { return e, nil }
}

// Name implements engine.Engine.
func (e *Engine) Name() string { return Name }

// FailNextParses makes the next n Parse calls fail with err (ErrInjected when nil).
func (e *Engine) FailNextParses(n int, err error) {
	if err == nil {
		err = ErrInjected
	}
	e.mu.Lock()
	e.failNext, e.failErr = n, err
	e.mu.Unlock()
}

// PanicNextParse makes the next Parse call panic, as a trapping sandbox would.
func (e *Engine) PanicNextParse() {
	e.mu.Lock()
	e.panicNext = true
	e.mu.Unlock()
}

// OnParse installs a hook called with the source at the start of every Parse.
func (e *Engine) OnParse(fn func(src []byte)) {
	e.mu.Lock()
	e.beforeFunc = fn
	e.mu.Unlock()
}

// LiveTrees returns the number of trees parsed and not yet released.
func (e *Engine) LiveTrees() int { return int(e.live.Load()) }

// MaxLiveTrees returns the highest LiveTrees value observed.
func (e *Engine) MaxLiveTrees() int { return int(e.maxLive.Load()) }

// Parses returns the number of successful Parse calls.
func (e *Engine) Parses() int { return int(e.parses.Load()) }

// IncrementalParses returns the number of successful Parse calls given a hint tree.
func (e *Engine) IncrementalParses() int { return int(e.incremental.Load()) }

// ReusedEntries returns how many top-level entries were carried over from hint trees.
func (e *Engine) ReusedEntries() int { return int(e.reusedEntries.Load()) }

// DoubleReleases returns how many times Release was called on an already released tree.
func (e *Engine) DoubleReleases() int { return int(e.doubleReleases.Load()) }

// Parse implements engine.Engine.
func (e *Engine) Parse(ctx context.Context, src []byte, old engine.Tree) (engine.Tree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	hook := e.beforeFunc
	shouldPanic := e.panicNext
	e.panicNext = false
	var injected error
	if e.failNext > 0 {
		e.failNext--
		injected = e.failErr
	}
	e.mu.Unlock()

	if hook != nil {
		hook(src)
	}
	if shouldPanic {
		panic("reference: injected engine trap")
	}
	if injected != nil {
		return nil, injected
	}

	var hint *tree
	if old != nil {
		t, ok := old.(*tree)
		if !ok || t.owner != e {
			return nil, fmt.Errorf("reference: foreign hint tree %T", old)
		}
		if t.released.Load() {
			return nil, engine.ErrReleased
		}
		hint = t
	}

	b := &builder{src: src, nextID: func() uint64 { return e.ids.Add(1) }}
	root := b.parseSource()
	if hint != nil {
		e.reusedEntries.Add(int64(reuseEntries(root, hint.root)))
		e.incremental.Add(1)
	}

	e.parses.Add(1)
	live := e.live.Add(1)
	for {
		prev := e.maxLive.Load()
		if live <= prev || e.maxLive.CompareAndSwap(prev, live) {
			break
		}
	}
	return &tree{owner: e, root: root}, nil
}

// reuseEntries substitutes structurally identical, undirtied entries of the
// hint tree for freshly parsed ones, keeping the hint nodes' identities.
func reuseEntries(fresh, hint *rawNode) int {
	reused := 0
	j := 0
	for i, n := range fresh.children {
		for j < len(hint.children) && hint.children[j].start < n.start {
			j++
		}
		if j >= len(hint.children) {
			break
		}
		old := hint.children[j]
		if old.start == n.start && !old.dirty && sameShape(old, n) {
			fresh.children[i] = old
			reused++
		}
	}
	return reused
}

func sameShape(a, b *rawNode) bool {
	type pair struct{ a, b *rawNode }
	stack := []pair{{a, b}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if p.a.sym != p.b.sym || p.a.start != p.b.start || p.a.end != p.b.end ||
			p.a.missing != p.b.missing || p.a.dirty || len(p.a.children) != len(p.b.children) {
			return false
		}
		for i := range p.a.children {
			stack = append(stack, pair{p.a.children[i], p.b.children[i]})
		}
	}
	return true
}

type tree struct {
	owner    *Engine
	root     *rawNode
	released atomic.Bool
}

var _ engine.Tree = (*tree)(nil)

func (t *tree) mustBeLive() {
	if t.released.Load() {
		panic("reference: native tree used after release")
	}
}

func (t *tree) Root() engine.Node {
	t.mustBeLive()
	return node{t: t, n: t.root}
}

func (t *tree) Release() {
	if t.released.Swap(true) {
		t.owner.doubleReleases.Add(1)
		return
	}
	t.owner.live.Add(-1)
}

// Edit shifts nodes after the edit and marks nodes touching it dirty.
func (t *tree) Edit(edit engine.InputEdit) error {
	if t.released.Load() {
		return engine.ErrReleased
	}
	if edit.StartByte < 0 || edit.OldEndByte < edit.StartByte || edit.NewEndByte < edit.StartByte {
		return fmt.Errorf("reference: malformed edit %+v", edit)
	}
	if edit.OldEndByte > t.root.end {
		return fmt.Errorf("reference: edit end %d beyond tree end %d", edit.OldEndByte, t.root.end)
	}

	delta := edit.NewEndByte - edit.OldEndByte
	stack := []*rawNode{t.root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch {
		case n.end < edit.StartByte:
			continue
		case n.start > edit.OldEndByte:
			if delta == 0 {
				continue
			}
			n.start += delta
			n.end += delta
		default:
			n.dirty = true
			if n.start > edit.StartByte {
				n.start = min(n.start+delta, edit.NewEndByte)
				n.start = max(n.start, edit.StartByte)
			}
			if n.end >= edit.OldEndByte {
				n.end += delta
			} else {
				n.end = edit.NewEndByte
			}
		}
		stack = append(stack, n.children...)
	}
	return nil
}

type node struct {
	t *tree
	n *rawNode
}

var _ engine.Node = node{}

func (n node) TypeID() uint16 {
	n.t.mustBeLive()
	return n.n.sym
}

func (n node) TypeName() string {
	n.t.mustBeLive()
	return SymbolName(n.n.sym)
}

func (n node) StartByte() int {
	n.t.mustBeLive()
	return n.n.start
}

func (n node) EndByte() int {
	n.t.mustBeLive()
	return n.n.end
}

func (n node) IsError() bool {
	n.t.mustBeLive()
	return n.n.sym == SymbolError
}

func (n node) IsMissing() bool {
	n.t.mustBeLive()
	return n.n.missing
}

func (n node) ChildCount() int {
	n.t.mustBeLive()
	return len(n.n.children)
}

func (n node) Child(i int) engine.Node {
	n.t.mustBeLive()
	return node{t: n.t, n: n.n.children[i]}
}

func (n node) Identity() uintptr {
	n.t.mustBeLive()
	return uintptr(n.n.id)
}
