package syntax

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/ledgerweaver/ledgerweaver/internal/engine"
	"github.com/ledgerweaver/ledgerweaver/internal/logger"
	"github.com/ledgerweaver/ledgerweaver/internal/text"
)

const (
	// DefaultChunkBytes bounds the bytes parsed per step when a document is parsed from scratch.
	DefaultChunkBytes = 32 << 10
	// DefaultChunkNodes bounds the nodes converted per step.
	DefaultChunkNodes = 4096
	// DefaultVerifyEvery is how many incremental parses pass between full-parse verifications.
	DefaultVerifyEvery uint64 = 256
)

var (
	verificationCompareOverrideMu sync.RWMutex
	verificationCompareOverride   func(a, b *Tree) bool
)

// Config configures a Parser.
type Config struct {
	Handle      *engine.Handle
	Registry    *Registry
	ChunkBytes  int
	ChunkNodes  int
	VerifyEvery uint64
	Observer    func(ReparseEvent)
}

// Parser keeps one document's native tree in step with its edits. It is not
// safe for concurrent use; the trees it produces are.
type Parser struct {
	cfg     Config
	log     commonlog.Logger
	session *Session
	last    *Tree
	active  *PartialParse

	incrementalEnabled bool
	incrementalParses  uint64

	unavailableOnce logger.Once
	failureOnce     logger.Once
}

// NewParser returns a parser. Zero Config fields take their defaults.
func NewParser(cfg Config) *Parser {
	if cfg.Registry == nil {
		cfg.Registry = DefaultRegistry
	}
	if cfg.ChunkBytes <= 0 {
		cfg.ChunkBytes = DefaultChunkBytes
	}
	if cfg.ChunkNodes <= 0 {
		cfg.ChunkNodes = DefaultChunkNodes
	}
	if cfg.VerifyEvery == 0 {
		cfg.VerifyEvery = DefaultVerifyEvery
	}
	return &Parser{cfg: cfg, log: logger.Get("syntax"), incrementalEnabled: true}
}

// Last returns the most recent completed tree.
func (p *Parser) Last() *Tree { return p.last }

// IncrementalEnabled reports whether incremental parsing is still trusted.
func (p *Parser) IncrementalEnabled() bool { return p.incrementalEnabled }

// Close cancels any running parse and releases the native tree.
func (p *Parser) Close() {
	if p.active != nil {
		p.active.Cancel()
	}
	if p.session != nil {
		p.session.Release()
	}
}

// StartParse begins parsing doc, superseding any parse still running.
// fragments describe which parts of earlier trees are unchanged; ranges, when
// given, limit full conversion to nodes touching them. doc is retained and
// must not be modified afterwards.
func (p *Parser) StartParse(ctx context.Context, doc []byte, fragments []Fragment, ranges []text.Span) *PartialParse {
	if ctx == nil {
		ctx = context.Background()
	}
	if p.active != nil {
		p.active.Cancel()
	}
	pp := &PartialParse{p: p, ctx: ctx, doc: doc, fragments: fragments, ranges: ranges, stopAt: -1}
	p.active = pp
	return pp
}

// ParseState is the lifecycle state of a PartialParse.
type ParseState uint8

const (
	StateNotStarted ParseState = iota
	StateRunning
	StateDone
)

func (s ParseState) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

type parsePhase uint8

const (
	phasePlan parsePhase = iota
	phaseIncremental
	phaseChunk
	phaseConvert
	phaseVerify
)

// assertionFailure is the panic value of a failed debug assertion. Advance
// lets it through instead of treating it as an engine trap.
type assertionFailure string

// PartialParse is a parse driven in bounded steps by repeated Advance calls.
type PartialParse struct {
	p         *Parser
	ctx       context.Context
	doc       []byte
	fragments []Fragment
	ranges    []text.Span

	state     ParseState
	phase     parsePhase
	stopAt    int
	parsedPos int
	stoppedAt int
	stopped   bool
	cancelled bool

	chunkEnd int
	touched  bool
	conv     *Converter
	pending  *Tree
	result   *Tree
	event    ReparseEvent
}

// State returns the lifecycle state.
func (pp *PartialParse) State() ParseState { return pp.state }

// ParsedPos returns the position up to which the document has been parsed.
func (pp *PartialParse) ParsedPos() int { return pp.parsedPos }

// Cancelled reports whether the parse was abandoned.
func (pp *PartialParse) Cancelled() bool { return pp.cancelled }

// StopAt asks the parse not to go past pos. Only parses from scratch honour
// it; an incremental parse always covers the whole document. Later calls can
// only lower the bound.
func (pp *PartialParse) StopAt(pos int) {
	pos = max(pos, 0)
	if pp.stopAt >= 0 && pos >= pp.stopAt {
		return
	}
	pp.stopAt = pos
}

// StoppedAt returns where the finished tree ends when parsing stopped before
// the end of the document.
func (pp *PartialParse) StoppedAt() (int, bool) {
	return pp.stoppedAt, pp.stopped
}

// Advance performs one bounded unit of work. It returns the finished tree
// once the parse is done and nil before that, or forever if the parse was
// cancelled. A panic raised by the engine ends the parse with a degraded
// tree.
func (pp *PartialParse) Advance() (tree *Tree) {
	switch pp.state {
	case StateDone:
		return pp.result
	case StateNotStarted:
		pp.state = StateRunning
	}
	if pp.ctx.Err() != nil {
		pp.Cancel()
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(assertionFailure); ok {
				panic(r)
			}
			pp.trapped(r)
			tree = pp.result
		}
	}()
	switch pp.phase {
	case phasePlan:
		pp.plan()
	case phaseIncremental:
		pp.parseIncremental()
	case phaseChunk:
		pp.parseChunk()
	case phaseConvert:
		pp.convert()
	case phaseVerify:
		pp.verify()
	}
	return pp.result
}

// Finish advances until the parse is done.
func (pp *PartialParse) Finish() *Tree {
	for pp.state != StateDone {
		pp.Advance()
	}
	return pp.result
}

// Cancel abandons the parse. A native tree it already edited or replaced is
// released, so the next parse starts from scratch.
func (pp *PartialParse) Cancel() {
	if pp.state == StateDone {
		return
	}
	p := pp.p
	pp.state = StateDone
	pp.cancelled = true
	pp.result = nil
	pp.conv = nil
	pp.pending = nil
	if pp.touched && p.session != nil {
		p.session.Release()
	}
	if p.active == pp {
		p.active = nil
	}
	p.emit(ReparseEvent{Mode: ModeCancelled, Chunks: pp.event.Chunks, AppliedEdits: pp.event.AppliedEdits})
}

func (pp *PartialParse) plan() {
	p := pp.p
	eng, err := p.cfg.Handle.Engine(pp.ctx)
	if err != nil {
		p.unavailableOnce.Errorf(p.log, "grammar engine unavailable, syntax trees are degraded: %v", err)
		pp.finishDegraded("engine_unavailable")
		return
	}
	if p.session == nil || p.session.eng != eng {
		if p.session != nil {
			p.session.Release()
		}
		p.session = NewSession(eng)
	}

	reason := pp.incrementalBlocker()
	if reason == "" {
		reason = pp.applyFragmentEdits()
		if reason == "" {
			pp.event.Mode = ModeIncremental
			pp.phase = phaseIncremental
			return
		}
	}

	if p.last == nil {
		pp.event.Mode = ModeFull
	} else {
		pp.event.Mode = ModeFallbackFull
		pp.event.FallbackReason = reason
	}
	pp.event.AppliedEdits = 0
	p.session.Release()
	pp.phase = phaseChunk
}

func (pp *PartialParse) incrementalBlocker() string {
	p := pp.p
	switch {
	case p.last == nil:
		return "no_previous_tree"
	case !p.incrementalEnabled:
		return "incremental_disabled"
	case !p.session.Live():
		return "no_live_tree"
	case len(pp.fragments) == 0:
		return "no_fragments"
	}
	for _, f := range pp.fragments {
		if f.Tree != p.last {
			return "foreign_fragment"
		}
	}
	return ""
}

func (pp *PartialParse) applyFragmentEdits() string {
	p := pp.p
	edits, err := editsFromFragments(pp.fragments, len(p.session.Source()), len(pp.doc))
	if err != nil {
		assertf("%v", err)
		p.log.Warningf("fragments do not match the parsed text, parsing from scratch: %v", err)
		return "edit_mismatch"
	}
	inserted := 0
	for _, e := range edits {
		inserted += e.ToB - e.FromB
	}
	if inserted > p.cfg.ChunkBytes {
		return "large_change"
	}
	pp.touched = true
	if err := p.session.ApplyEdits(edits, pp.doc); err != nil {
		p.log.Warningf("native tree rejected edits, parsing from scratch: %v", err)
		return "tree_edit_failed"
	}
	pp.event.AppliedEdits = len(edits)
	return ""
}

func (pp *PartialParse) parseIncremental() {
	p := pp.p
	native, err := p.session.Reparse(pp.ctx, pp.doc)
	if err != nil {
		pp.parseFailed(err)
		return
	}
	p.incrementalParses++
	pp.parsedPos = len(pp.doc)
	pp.event.Chunks = 1
	pp.conv = NewConverter(p.cfg.Registry, native.Root(), len(pp.doc), p.last, pp.fragments, pp.ranges)
	pp.phase = phaseConvert
}

func (pp *PartialParse) parseChunk() {
	p := pp.p
	if pp.chunkEnd > 0 && pp.stopAt >= 0 && pp.chunkEnd >= pp.stopAt && p.session.Live() {
		pp.startConversion(p.session.Tree())
		return
	}

	next := pp.nextChunkEnd()
	pp.touched = true
	if pp.chunkEnd > 0 && p.session.Live() {
		grow := []Edit{{FromA: pp.chunkEnd, ToA: pp.chunkEnd, FromB: pp.chunkEnd, ToB: next}}
		if err := p.session.ApplyEdits(grow, pp.doc[:next]); err != nil {
			p.session.Release()
		}
	}
	native, err := p.session.Reparse(pp.ctx, pp.doc[:next])
	if err != nil {
		pp.parseFailed(err)
		return
	}
	pp.event.Chunks++
	pp.chunkEnd = next
	pp.parsedPos = next
	if next < len(pp.doc) && (pp.stopAt < 0 || next < pp.stopAt) {
		return
	}
	pp.startConversion(native)
}

func (pp *PartialParse) startConversion(native engine.Tree) {
	if pp.chunkEnd < len(pp.doc) {
		pp.stopped = true
		pp.stoppedAt = pp.chunkEnd
	}
	pp.conv = NewConverter(pp.p.cfg.Registry, native.Root(), pp.chunkEnd, nil, nil, pp.ranges)
	pp.phase = phaseConvert
}

// nextChunkEnd returns the end of the next prefix to parse: a line end at
// least ChunkBytes past the current one, or the stop position.
func (pp *PartialParse) nextChunkEnd() int {
	target := pp.chunkEnd + pp.p.cfg.ChunkBytes
	if pp.stopAt >= 0 && pp.stopAt <= target {
		return min(max(pp.stopAt, pp.chunkEnd), len(pp.doc))
	}
	if target >= len(pp.doc) {
		return len(pp.doc)
	}
	if nl := bytes.IndexByte(pp.doc[target:], '\n'); nl >= 0 {
		return target + nl + 1
	}
	return len(pp.doc)
}

func (pp *PartialParse) convert() {
	p := pp.p
	if !pp.conv.Step(p.cfg.ChunkNodes) {
		return
	}
	tree := pp.conv.Tree()
	tree.partial = pp.stopped
	pp.event.ConvertedNodes = pp.conv.Converted()
	pp.event.ReusedNodes = pp.conv.Reused()
	if pp.event.Mode == ModeIncremental && p.incrementalParses%p.cfg.VerifyEvery == 0 {
		pp.event.VerificationRun = true
		pp.pending = tree
		pp.conv = nil
		pp.phase = phaseVerify
		return
	}
	pp.finish(tree)
}

// verify replaces the pending incremental result with a cold parse of the
// same text, converted in ChunkNodes steps like any other tree. Incremental
// parsing is disabled when the two disagree.
func (pp *PartialParse) verify() {
	p := pp.p
	if pp.conv == nil {
		p.session.Release()
		native, err := p.session.Reparse(pp.ctx, pp.doc)
		if err != nil {
			if pp.ctx.Err() != nil {
				pp.Cancel()
				return
			}
			p.log.Warningf("verification parse failed: %v", err)
			pp.finish(pp.pending)
			return
		}
		pp.conv = NewConverter(p.cfg.Registry, native.Root(), len(pp.doc), nil, nil, pp.ranges)
		return
	}
	if !pp.conv.Step(p.cfg.ChunkNodes) {
		return
	}
	full := pp.conv.Tree()
	if !equivalentTrees(pp.pending, full) {
		pp.event.VerificationFailed = true
		p.incrementalEnabled = false
		p.log.Warningf("incremental tree diverged from a full parse, incremental parsing disabled")
	}
	pp.finish(full)
}

// trapped ends a parse whose engine panicked. The native tree may be in any
// state, so it is dropped and the next parse starts from scratch.
func (pp *PartialParse) trapped(r any) {
	p := pp.p
	pp.conv = nil
	pp.pending = nil
	if p.session != nil {
		p.session.discard()
	}
	err := fmt.Errorf("%w: %v", ErrEngineTrap, r)
	if !p.failureOnce.Errorf(p.log, "parse failed, using a whole-document error tree: %v", err) {
		p.log.Debugf("parse failed again: %v", err)
	}
	pp.finishDegraded("engine_trap")
}

func (pp *PartialParse) parseFailed(err error) {
	p := pp.p
	if pp.ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		pp.Cancel()
		return
	}
	if !p.failureOnce.Errorf(p.log, "parse failed, using a whole-document error tree: %v", err) {
		p.log.Debugf("parse failed again: %v", err)
	}
	pp.finishDegraded("parse_failed")
}

func (pp *PartialParse) finishDegraded(reason string) {
	pp.parsedPos = len(pp.doc)
	pp.event.Mode = ModeDegraded
	pp.event.FallbackReason = reason
	pp.event.ConvertedNodes = 1
	pp.finish(newDegradedTree(len(pp.doc)))
}

func (pp *PartialParse) finish(tree *Tree) {
	p := pp.p
	p.last = tree
	pp.result = tree
	pp.state = StateDone
	pp.conv = nil
	pp.pending = nil
	if p.active == pp {
		p.active = nil
	}
	p.emit(pp.event)
}

func equivalentTrees(a, b *Tree) bool {
	verificationCompareOverrideMu.RLock()
	override := verificationCompareOverride
	verificationCompareOverrideMu.RUnlock()
	if override != nil {
		return override(a, b)
	}
	return Equal(a.Root, b.Root)
}

func setVerificationCompareOverrideForTesting(fn func(a, b *Tree) bool) func() {
	verificationCompareOverrideMu.Lock()
	prev := verificationCompareOverride
	verificationCompareOverride = fn
	verificationCompareOverrideMu.Unlock()
	return func() {
		verificationCompareOverrideMu.Lock()
		verificationCompareOverride = prev
		verificationCompareOverrideMu.Unlock()
	}
}
