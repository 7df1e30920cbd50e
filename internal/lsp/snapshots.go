package lsp

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/ledgerweaver/ledgerweaver/internal/language"
	"github.com/ledgerweaver/ledgerweaver/internal/syntax"
	itext "github.com/ledgerweaver/ledgerweaver/internal/text"
)

// fragmentMinGap drops reusable stretches shorter than this between changes.
const fragmentMinGap = 128

// Snapshot is an immutable parsed document state.
type Snapshot struct {
	URI     string
	Version int32
	Source  []byte
	Tree    *syntax.Tree
	Lines   *itext.LineIndex
}

// Bytes returns a copy of the snapshot source bytes.
func (s *Snapshot) Bytes() []byte {
	if s == nil {
		return nil
	}
	return slices.Clone(s.Source)
}

// ContentChange is one text change. A nil Range replaces the whole document.
type ContentChange struct {
	Range *itext.UTF16Range
	Text  string
}

// document owns the parser of one open file. Its mutex serializes reparses;
// published snapshots are read without it.
type document struct {
	mu     sync.Mutex
	parser *syntax.Parser
	snap   atomic.Pointer[Snapshot]
}

// SnapshotStore stores versioned parsed documents.
type SnapshotStore struct {
	support *language.Support

	mu   sync.RWMutex
	docs map[string]*document
}

// NewSnapshotStore creates an empty snapshot store parsing with support.
func NewSnapshotStore(support *language.Support) *SnapshotStore {
	return &SnapshotStore{support: support, docs: make(map[string]*document)}
}

// Open parses and stores a document snapshot, replacing any earlier one for uri.
func (s *SnapshotStore) Open(ctx context.Context, uri string, version int32, src []byte) (*Snapshot, error) {
	if s == nil || s.support == nil {
		return nil, errors.New("nil SnapshotStore")
	}
	doc := &document{parser: s.support.NewParser()}
	src = slices.Clone(src)
	tree, err := parse(ctx, doc.parser.StartParse(ctx, src, nil, nil))
	if err != nil {
		doc.parser.Close()
		return nil, err
	}
	snap := newSnapshot(uri, version, src, tree)
	doc.snap.Store(snap)

	s.mu.Lock()
	prev := s.docs[uri]
	s.docs[uri] = doc
	s.mu.Unlock()
	if prev != nil {
		prev.close()
	}
	return snap, nil
}

// Change applies content changes in order, reparses reusing the unchanged
// parts of the previous tree, and replaces the snapshot.
func (s *SnapshotStore) Change(ctx context.Context, uri string, version int32, changes []ContentChange) (*Snapshot, error) {
	if s == nil {
		return nil, errors.New("nil SnapshotStore")
	}
	s.mu.RLock()
	doc, ok := s.docs[uri]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrDocumentNotOpen
	}

	doc.mu.Lock()
	defer doc.mu.Unlock()
	if doc.parser == nil {
		return nil, ErrDocumentNotOpen
	}
	cur := doc.snap.Load()
	if version <= cur.Version {
		return nil, ErrStaleVersion
	}

	next, edits, err := applyContentChanges(cur.Source, changes)
	if err != nil {
		return nil, err
	}
	frags := syntax.FragmentsFromTree(cur.Tree)
	for _, e := range edits {
		frags = syntax.ApplyChanges(frags, []syntax.Edit{e}, fragmentMinGap)
	}
	tree, err := parse(ctx, doc.parser.StartParse(ctx, next, frags, nil))
	if err != nil {
		return nil, err
	}
	snap := newSnapshot(uri, version, next, tree)
	doc.snap.Store(snap)
	return snap, nil
}

// Close removes a tracked document snapshot and releases its parser.
func (s *SnapshotStore) Close(uri string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	doc := s.docs[uri]
	delete(s.docs, uri)
	s.mu.Unlock()
	if doc != nil {
		doc.close()
	}
}

// CloseAll releases every tracked document.
func (s *SnapshotStore) CloseAll() {
	if s == nil {
		return
	}
	s.mu.Lock()
	docs := s.docs
	s.docs = make(map[string]*document)
	s.mu.Unlock()
	for _, doc := range docs {
		doc.close()
	}
}

// Snapshot returns the current snapshot for uri.
func (s *SnapshotStore) Snapshot(uri string) (*Snapshot, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	doc, ok := s.docs[uri]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	snap := doc.snap.Load()
	return snap, snap != nil
}

// SnapshotAtVersion returns the current snapshot if the version matches exactly.
func (s *SnapshotStore) SnapshotAtVersion(uri string, version int32) (*Snapshot, error) {
	snap, ok := s.Snapshot(uri)
	if !ok {
		return nil, ErrDocumentNotOpen
	}
	if snap.Version != version {
		return nil, ErrStaleVersion
	}
	return snap, nil
}

func (d *document) close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.parser != nil {
		d.parser.Close()
		d.parser = nil
	}
}

func newSnapshot(uri string, version int32, src []byte, tree *syntax.Tree) *Snapshot {
	return &Snapshot{URI: uri, Version: version, Source: src, Tree: tree, Lines: itext.NewLineIndex(src)}
}

// parse drives pp to completion, one bounded step at a time.
func parse(ctx context.Context, pp *syntax.PartialParse) (*syntax.Tree, error) {
	for {
		if tree := pp.Advance(); tree != nil {
			return tree, nil
		}
		if pp.Cancelled() {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrParseCancelled, err)
			}
			return nil, ErrParseCancelled
		}
	}
}

// applyContentChanges returns the changed text and one edit per change, each
// in the coordinates of the text the change was made against.
func applyContentChanges(src []byte, changes []ContentChange) ([]byte, []syntax.Edit, error) {
	cur := slices.Clone(src)
	edits := make([]syntax.Edit, 0, len(changes))
	for _, ch := range changes {
		var sp itext.Span
		if ch.Range == nil {
			sp = diffSpan(cur, []byte(ch.Text))
			ch.Text = ch.Text[int(sp.Start) : len(ch.Text)-(len(cur)-int(sp.End))]
		} else {
			li := itext.NewLineIndex(cur)
			start, err := li.UTF16PositionToOffset(ch.Range.Start)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: range start: %w", ErrInvalidChange, err)
			}
			end, err := li.UTF16PositionToOffset(ch.Range.End)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: range end: %w", ErrInvalidChange, err)
			}
			if end < start {
				return nil, nil, fmt.Errorf("%w: range end before start", ErrInvalidChange)
			}
			sp = itext.Span{Start: start, End: end}
		}
		var err error
		cur, err = itext.ApplyEdits(cur, []itext.ByteEdit{{Span: sp, NewText: []byte(ch.Text)}})
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrInvalidChange, err)
		}
		from := int(sp.Start)
		edits = append(edits, syntax.Edit{FromA: from, ToA: int(sp.End), FromB: from, ToB: from + len(ch.Text)})
	}
	return cur, edits, nil
}

// diffSpan returns the span of a that differs from b once the common prefix
// and suffix are removed.
func diffSpan(a, b []byte) itext.Span {
	prefix := 0
	for prefix < len(a) && prefix < len(b) && a[prefix] == b[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(a)-prefix && suffix < len(b)-prefix && a[len(a)-1-suffix] == b[len(b)-1-suffix] {
		suffix++
	}
	return itext.Span{Start: itext.ByteOffset(prefix), End: itext.ByteOffset(len(a) - suffix)}
}
