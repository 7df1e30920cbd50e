package syntax

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ledgerweaver/ledgerweaver/internal/engine"
	"github.com/ledgerweaver/ledgerweaver/internal/text"
)

var (
	// ErrEditMismatch reports edits that do not describe the text the live tree was parsed from.
	ErrEditMismatch = errors.New("edit does not match the parsed text")
	// ErrEngineTrap reports a panic raised inside the engine.
	ErrEngineTrap = errors.New("grammar engine trapped")
	// ErrNoLiveTree is returned by ApplyEdits when the session holds no tree.
	ErrNoLiveTree = errors.New("no live native tree")
)

// Session owns the single live native tree of one document.
type Session struct {
	eng  engine.Engine
	tree engine.Tree
	src  []byte
}

// NewSession returns a session without a live tree.
func NewSession(eng engine.Engine) *Session {
	return &Session{eng: eng}
}

// Live reports whether the session holds a native tree.
func (s *Session) Live() bool { return s.tree != nil }

// Tree returns the live native tree, or nil.
func (s *Session) Tree() engine.Tree { return s.tree }

// Source returns the text the live tree currently describes.
func (s *Session) Source() []byte { return s.src }

// ApplyEdits applies edits to the live tree in ascending order. next is the
// document after all edits; the live tree describes next afterwards.
func (s *Session) ApplyEdits(edits []Edit, next []byte) error {
	if s.tree == nil {
		return ErrNoLiveTree
	}
	if err := validateEdits(edits, len(s.src), len(next)); err != nil {
		assertf("%v", err)
		return err
	}

	newIndex := text.NewLineIndex(next)
	for i, e := range edits {
		start, err := newIndex.OffsetToPoint(text.ByteOffset(e.FromB))
		if err != nil {
			return fmt.Errorf("%w: edit[%d] start: %w", ErrEditMismatch, i, err)
		}
		newEnd, err := newIndex.OffsetToPoint(text.ByteOffset(e.ToB))
		if err != nil {
			return fmt.Errorf("%w: edit[%d] end: %w", ErrEditMismatch, i, err)
		}
		in := engine.InputEdit{
			StartByte:   e.FromB,
			OldEndByte:  e.FromB + e.ToA - e.FromA,
			NewEndByte:  e.ToB,
			StartPoint:  start,
			OldEndPoint: advancePoint(start, s.src[e.FromA:e.ToA]),
			NewEndPoint: newEnd,
		}
		if err := s.tree.Edit(in); err != nil {
			return fmt.Errorf("%w: edit[%d] rejected: %w", ErrEditMismatch, i, err)
		}
	}
	s.src = next
	return nil
}

// Reparse parses src using the live tree as a hint. On success the new tree
// becomes live and the previous one is released. On failure, including
// cancellation and engine panics, the session is left without a live tree.
func (s *Session) Reparse(ctx context.Context, src []byte) (tree engine.Tree, err error) {
	defer func() {
		if r := recover(); r != nil {
			tree, err = nil, fmt.Errorf("%w: %v", ErrEngineTrap, r)
		}
		if err != nil {
			s.Release()
		}
	}()

	next, err := s.eng.Parse(ctx, src, s.tree)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, fmt.Errorf("%s returned no tree", s.eng.Name())
	}
	s.Release()
	s.tree, s.src = next, src
	return next, nil
}

// Release drops the live tree, if any.
func (s *Session) Release() {
	if s.tree != nil {
		s.tree.Release()
		s.tree = nil
	}
	s.src = nil
}

// discard drops the live tree after an engine panic. A release that panics
// as well is ignored; the tree is forgotten either way.
func (s *Session) discard() {
	defer func() {
		_ = recover()
		s.tree, s.src = nil, nil
	}()
	s.Release()
}

func validateEdits(edits []Edit, oldLen, newLen int) error {
	prevA, prevB := 0, 0
	for i, e := range edits {
		switch {
		case e.FromA < prevA || e.FromB < prevB:
			return fmt.Errorf("%w: edit[%d] %s out of order", ErrEditMismatch, i, e)
		case e.ToA < e.FromA || e.ToB < e.FromB:
			return fmt.Errorf("%w: edit[%d] %s inverted", ErrEditMismatch, i, e)
		case e.ToA > oldLen || e.ToB > newLen:
			return fmt.Errorf("%w: edit[%d] %s past document end (old %d, new %d)", ErrEditMismatch, i, e, oldLen, newLen)
		case e.FromB-e.FromA != prevB-prevA:
			return fmt.Errorf("%w: edit[%d] %s inconsistent with preceding edits", ErrEditMismatch, i, e)
		}
		prevA, prevB = e.ToA, e.ToB
	}
	if oldLen-prevA != newLen-prevB {
		return fmt.Errorf("%w: edits leave %d old and %d new trailing bytes", ErrEditMismatch, oldLen-prevA, newLen-prevB)
	}
	return nil
}

// advancePoint moves p past b.
func advancePoint(p text.Point, b []byte) text.Point {
	if nl := bytes.Count(b, []byte{'\n'}); nl > 0 {
		return text.Point{Line: p.Line + nl, Column: len(b) - bytes.LastIndexByte(b, '\n') - 1}
	}
	return text.Point{Line: p.Line, Column: p.Column + len(b)}
}
