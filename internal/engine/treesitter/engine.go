//go:build cgo && ledgerweaver_cgo

package treesitter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/ledgerweaver/ledgerweaver/internal/engine"
)

// ErrNoLanguage is returned by New when no grammar is supplied.
var ErrNoLanguage = errors.New("tree-sitter language is nil")

// Engine parses with a native tree-sitter grammar. Parsers are not safe for
// concurrent use, so parses are serialized.
type Engine struct {
	name string
	lang *sitter.Language

	mu     sync.Mutex
	parser *sitter.Parser
}

var _ engine.Engine = (*Engine)(nil)

// New returns an engine for lang.
func New(name string, lang *sitter.Language) (*Engine, error) {
	if lang == nil {
		return nil, ErrNoLanguage
	}
	p := sitter.NewParser()
	if err := p.SetLanguage(lang); err != nil {
		p.Close()
		return nil, fmt.Errorf("set tree-sitter language: %w", err)
	}
	return &Engine{name: name, lang: lang, parser: p}, nil
}

// Loader adapts New to engine.Loader.
func Loader(name string, lang func() *sitter.Language) engine.Loader {
	return func(context.Context) (engine.Engine, error) {
		return New(name, lang())
	}
}

// Name implements engine.Engine.
func (e *Engine) Name() string { return e.name }

// Close releases the parser.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.parser != nil {
		e.parser.Close()
		e.parser = nil
	}
}

// Parse implements engine.Engine. A cancelled ctx aborts the native parse.
func (e *Engine) Parse(ctx context.Context, src []byte, old engine.Tree) (engine.Tree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var oldInner *sitter.Tree
	if old != nil {
		t, ok := old.(*Tree)
		if !ok {
			return nil, fmt.Errorf("treesitter: foreign hint tree %T", old)
		}
		if t.inner == nil {
			return nil, engine.ErrReleased
		}
		oldInner = t.inner
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.parser == nil {
		return nil, errors.New("treesitter: engine closed")
	}

	raw := e.parser.ParseWithOptions(func(i int, _ sitter.Point) []byte {
		if i >= len(src) {
			return nil
		}
		return src[i:]
	}, oldInner, &sitter.ParseOptions{
		ProgressCallback: func(sitter.ParseState) bool {
			return ctx.Err() != nil
		},
	})
	if err := ctx.Err(); err != nil {
		if raw != nil {
			raw.Close()
		}
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("tree-sitter parse returned nil tree")
	}
	return &Tree{eng: e, inner: raw}, nil
}

// Tree wraps a native tree.
type Tree struct {
	eng   *Engine
	inner *sitter.Tree
}

var _ engine.Tree = (*Tree)(nil)

// Root implements engine.Tree.
func (t *Tree) Root() engine.Node {
	if t.inner == nil {
		panic(engine.ErrReleased)
	}
	return &Node{tree: t, inner: t.inner.RootNode()}
}

// Edit implements engine.Tree.
func (t *Tree) Edit(edit engine.InputEdit) error {
	if t.inner == nil {
		return engine.ErrReleased
	}
	t.inner.Edit(&sitter.InputEdit{
		StartByte:      uint(edit.StartByte),
		OldEndByte:     uint(edit.OldEndByte),
		NewEndByte:     uint(edit.NewEndByte),
		StartPosition:  point(edit.StartPoint.Line, edit.StartPoint.Column),
		OldEndPosition: point(edit.OldEndPoint.Line, edit.OldEndPoint.Column),
		NewEndPosition: point(edit.NewEndPoint.Line, edit.NewEndPoint.Column),
	})
	return nil
}

func point(line, col int) sitter.Point {
	return sitter.Point{Row: uint(line), Column: uint(col)}
}

// Release implements engine.Tree.
func (t *Tree) Release() {
	if t.inner == nil {
		return
	}
	t.inner.Close()
	t.inner = nil
}

// Node wraps a native node of a live tree.
type Node struct {
	tree  *Tree
	inner *sitter.Node
}

var _ engine.Node = (*Node)(nil)

func (n *Node) live() *sitter.Node {
	if n.tree.inner == nil {
		panic(engine.ErrReleased)
	}
	return n.inner
}

func (n *Node) TypeID() uint16    { return n.live().KindId() }
func (n *Node) TypeName() string  { return n.live().Kind() }
func (n *Node) StartByte() int    { return int(n.live().StartByte()) }
func (n *Node) EndByte() int      { return int(n.live().EndByte()) }
func (n *Node) IsError() bool     { return n.live().IsError() }
func (n *Node) IsMissing() bool   { return n.live().IsMissing() }
func (n *Node) ChildCount() int   { return int(n.live().ChildCount()) }
func (n *Node) Identity() uintptr { return n.live().Id() }

func (n *Node) Child(i int) engine.Node {
	c := n.live().Child(uint(i))
	if c == nil {
		return nil
	}
	return &Node{tree: n.tree, inner: c}
}
