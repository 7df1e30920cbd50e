// Package engine defines the contract between the parser bridge and a grammar
// engine: a sandboxed or native parser that produces trees of native nodes and
// accepts in-place edits for incremental reparsing.
package engine

import (
	"context"
	"errors"

	"github.com/ledgerweaver/ledgerweaver/internal/text"
)

var (
	// ErrUnavailable wraps every error returned by a handle whose engine failed to load.
	ErrUnavailable = errors.New("grammar engine unavailable")
	// ErrReleased is returned by operations on a tree after Release.
	ErrReleased = errors.New("native tree released")
)

// InputEdit describes one edit in byte and row/column coordinates, the shape
// tree-sitter style engines expect.
type InputEdit struct {
	StartByte   int
	OldEndByte  int
	NewEndByte  int
	StartPoint  text.Point
	OldEndPoint text.Point
	NewEndPoint text.Point
}

// Node is a read-only view of a native syntax node. Nodes are valid only
// while the tree that produced them has not been released.
type Node interface {
	TypeID() uint16
	TypeName() string
	StartByte() int
	EndByte() int
	IsError() bool
	IsMissing() bool
	ChildCount() int
	Child(i int) Node
	// Identity is stable for a subtree an engine carried over unchanged
	// from the hint tree of an incremental parse.
	Identity() uintptr
}

// Tree is a native tree handle. The owner must call Release exactly once.
type Tree interface {
	Root() Node
	Edit(edit InputEdit) error
	Release()
}

// Engine parses documents. old, when non-nil, is an edited tree from a
// previous Parse used as an incremental hint; it is not consumed.
type Engine interface {
	Name() string
	Parse(ctx context.Context, src []byte, old Tree) (Tree, error)
}
