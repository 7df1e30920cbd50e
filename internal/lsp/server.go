// Package lsp serves ledger journals over the Language Server Protocol. It
// keeps one incrementally reparsed snapshot per open document and answers
// editor queries from the language extensions.
package lsp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/ledgerweaver/ledgerweaver/internal/format"
	"github.com/ledgerweaver/ledgerweaver/internal/index"
	"github.com/ledgerweaver/ledgerweaver/internal/language"
	"github.com/ledgerweaver/ledgerweaver/internal/lint"
	"github.com/ledgerweaver/ledgerweaver/internal/logger"
	"github.com/ledgerweaver/ledgerweaver/internal/syntax"
	itext "github.com/ledgerweaver/ledgerweaver/internal/text"
)

// DefaultName is the server name reported to clients.
const DefaultName = "ledgerls"

// Options configure a Server.
type Options struct {
	Support *language.Support
	// Lint defaults to the default rule set checking declarations against Index.
	Lint *lint.Runner
	// Index is optional. When set, opened documents feed it and completion
	// and lint consult it.
	Index   *index.Index
	Name    string
	Version string
}

// Server is a ledger LSP server with an in-memory snapshot store.
type Server struct {
	ctx     context.Context
	support *language.Support
	store   *SnapshotStore
	lint    *lint.Runner
	index   *index.Index
	legend  semanticLegend
	name    string
	version string
	log     commonlog.Logger
	handler protocol.Handler

	mu       sync.Mutex
	shutdown bool
	warned   logger.Once
}

// NewServer creates a new LSP server instance.
func NewServer(opts Options) (*Server, error) {
	if opts.Support == nil {
		return nil, errors.New("lsp server requires language support")
	}
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.Lint == nil {
		var declared lint.DeclaredAccounts
		if opts.Index != nil {
			declared = opts.Index
		}
		opts.Lint = lint.NewDefaultRunner(declared)
	}
	s := &Server{
		ctx:     context.Background(),
		support: opts.Support,
		store:   NewSnapshotStore(opts.Support),
		lint:    opts.Lint,
		index:   opts.Index,
		legend:  newSemanticLegend(opts.Support.Descriptor()),
		name:    opts.Name,
		version: opts.Version,
		log:     logger.Get("lsp"),
	}
	s.handler = protocol.Handler{
		Initialize:                     s.initialize,
		Initialized:                    s.initialized,
		Shutdown:                       s.shutdownHandler,
		SetTrace:                       s.setTrace,
		TextDocumentDidOpen:            s.didOpen,
		TextDocumentDidChange:          s.didChange,
		TextDocumentDidClose:           s.didClose,
		TextDocumentCompletion:         s.completion,
		TextDocumentFormatting:         s.formatting,
		TextDocumentRangeFormatting:    s.rangeFormatting,
		TextDocumentOnTypeFormatting:   s.onTypeFormatting,
		TextDocumentFoldingRange:       s.foldingRange,
		TextDocumentSelectionRange:     s.selectionRange,
		TextDocumentDocumentSymbol:     s.documentSymbol,
		TextDocumentSemanticTokensFull: s.semanticTokensFull,
	}
	return s, nil
}

// Store returns the backing snapshot store.
func (s *Server) Store() *SnapshotStore { return s.store }

// Handler returns the protocol handler table.
func (s *Server) Handler() *protocol.Handler { return &s.handler }

// RunStdio serves the protocol on stdin and stdout until the client disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	s.ctx = ctx
	defer s.store.CloseAll()
	return glspserver.NewServer(&s.handler, s.name, false).RunStdio()
}

// RunTCP serves the protocol on address, one connection at a time.
func (s *Server) RunTCP(ctx context.Context, address string) error {
	s.ctx = ctx
	defer s.store.CloseAll()
	return glspserver.NewServer(&s.handler, s.name, false).RunTCP(address)
}

func (s *Server) initialize(_ *glsp.Context, _ *protocol.InitializeParams) (any, error) {
	capabilities := s.handler.CreateServerCapabilities()
	capabilities.SemanticTokensProvider = &protocol.SemanticTokensOptions{
		Legend: s.legend.protocol(),
		Full:   true,
	}
	capabilities.DocumentOnTypeFormattingProvider = &protocol.DocumentOnTypeFormattingOptions{
		FirstTriggerCharacter: "\n",
	}
	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{":"},
	}

	info := &protocol.InitializeResultServerInfo{Name: s.name}
	if s.version != "" {
		info.Version = &s.version
	}
	return protocol.InitializeResult{Capabilities: capabilities, ServerInfo: info}, nil
}

func (s *Server) initialized(ctx *glsp.Context, _ *protocol.InitializedParams) error {
	if s.support.Degraded(s.ctx) {
		s.warned.Warningf(s.log, "grammar engine unavailable; serving without syntax trees")
		ctx.Notify(protocol.ServerWindowShowMessage, protocol.ShowMessageParams{
			Type:    protocol.MessageTypeWarning,
			Message: "ledger grammar engine unavailable: highlighting, folding and formatting are disabled",
		})
	}
	return nil
}

func (s *Server) shutdownHandler(_ *glsp.Context) error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()
	s.store.CloseAll()
	return nil
}

func (s *Server) setTrace(_ *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)
	return nil
}

func (s *Server) didOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	doc := params.TextDocument
	snap, err := s.store.Open(s.ctx, doc.URI, doc.Version, []byte(doc.Text))
	if err != nil {
		return err
	}
	s.publish(ctx, snap)
	return nil
}

func (s *Server) didChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	changes := make([]ContentChange, 0, len(params.ContentChanges))
	for _, raw := range params.ContentChanges {
		switch ch := raw.(type) {
		case protocol.TextDocumentContentChangeEvent:
			var r *itext.UTF16Range
			if ch.Range != nil {
				r = &itext.UTF16Range{Start: utf16Position(ch.Range.Start), End: utf16Position(ch.Range.End)}
			}
			changes = append(changes, ContentChange{Range: r, Text: ch.Text})
		case protocol.TextDocumentContentChangeEventWhole:
			changes = append(changes, ContentChange{Text: ch.Text})
		default:
			return fmt.Errorf("%w: unsupported change %T", ErrInvalidChange, raw)
		}
	}
	snap, err := s.store.Change(s.ctx, params.TextDocument.URI, params.TextDocument.Version, changes)
	if err != nil {
		return err
	}
	s.publish(ctx, snap)
	return nil
}

func (s *Server) didClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI
	s.store.Close(uri)
	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// publish records the snapshot's accounts and sends its diagnostics.
func (s *Server) publish(ctx *glsp.Context, snap *Snapshot) {
	if s.index != nil && usableTree(snap) {
		accounts := index.Extract(snap.Tree, snap.Source, snap.URI)
		if err := s.index.ReplaceDocument(s.ctx, snap.URI, accounts); err != nil {
			s.log.Warningf("index %s: %v", snap.URI, err)
		}
	}

	diags, err := s.lint.Run(s.ctx, lint.Document{Tree: snap.Tree, Source: snap.Source})
	if err != nil {
		s.log.Errorf("lint %s: %v", snap.URI, err)
		diags = syntax.ErrorDiagnostics(snap.Tree)
	}
	version, _ := uint32FromNonNegativeInt(int(snap.Version))
	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         snap.URI,
		Version:     &version,
		Diagnostics: lspDiagnostics(snap.Lines, diags),
	})
}

func (s *Server) snapshot(uri string) (*Snapshot, error) {
	snap, ok := s.store.Snapshot(uri)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotOpen, uri)
	}
	return snap, nil
}

func (s *Server) completion(_ *glsp.Context, params *protocol.CompletionParams) (any, error) {
	snap, err := s.snapshot(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}
	off, err := offsetFromProtocol(snap.Lines, params.Position)
	if err != nil {
		return nil, err
	}
	items, err := s.support.Complete(s.ctx, snap.Tree, snap.Source, int(off))
	if err != nil {
		return nil, err
	}
	list := &protocol.CompletionList{Items: make([]protocol.CompletionItem, 0, len(items))}
	for _, it := range items {
		r, err := protocolRange(snap.Lines, it.Replace)
		if err != nil {
			return nil, err
		}
		kind := completionItemKind(it.Kind)
		detail := it.Kind.String()
		list.Items = append(list.Items, protocol.CompletionItem{
			Label:    it.Label,
			Kind:     &kind,
			Detail:   &detail,
			TextEdit: protocol.TextEdit{Range: r, NewText: it.Label},
		})
	}
	return list, nil
}

func completionItemKind(k language.CompletionKind) protocol.CompletionItemKind {
	switch k {
	case language.CompletionKeyword:
		return protocol.CompletionItemKindKeyword
	case language.CompletionAccount:
		return protocol.CompletionItemKindModule
	case language.CompletionCurrency:
		return protocol.CompletionItemKindUnit
	default:
		return protocol.CompletionItemKindText
	}
}

func (s *Server) formatting(_ *glsp.Context, params *protocol.DocumentFormattingParams) ([]protocol.TextEdit, error) {
	snap, err := s.snapshot(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}
	res, err := s.support.Format(s.ctx, snap.Tree, snap.Source)
	if err != nil {
		return s.refused(snap, err)
	}
	if !res.Changed {
		return []protocol.TextEdit{}, nil
	}
	sp := diffSpan(snap.Source, res.Output)
	newText := res.Output[int(sp.Start) : len(res.Output)-(len(snap.Source)-int(sp.End))]
	r, err := protocolRange(snap.Lines, sp)
	if err != nil {
		return nil, err
	}
	return []protocol.TextEdit{{Range: r, NewText: string(newText)}}, nil
}

func (s *Server) rangeFormatting(_ *glsp.Context, params *protocol.DocumentRangeFormattingParams) ([]protocol.TextEdit, error) {
	snap, err := s.snapshot(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}
	sp, err := spanFromProtocol(snap.Lines, params.Range)
	if err != nil {
		return nil, err
	}
	res, err := s.support.FormatRange(s.ctx, snap.Tree, snap.Source, sp)
	if err != nil {
		return s.refused(snap, err)
	}
	return lspTextEdits(snap.Lines, res.Edits)
}

// refused turns an unsafe-input refusal into an empty edit list; other errors
// are returned.
func (s *Server) refused(snap *Snapshot, err error) ([]protocol.TextEdit, error) {
	var unsafe *format.ErrUnsafeToFormat
	if errors.As(err, &unsafe) {
		s.log.Infof("format %s refused: %v", snap.URI, err)
		return []protocol.TextEdit{}, nil
	}
	return nil, err
}

func (s *Server) onTypeFormatting(_ *glsp.Context, params *protocol.DocumentOnTypeFormattingParams) ([]protocol.TextEdit, error) {
	if params.Ch != "\n" {
		return []protocol.TextEdit{}, nil
	}
	snap, err := s.snapshot(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}
	off, err := offsetFromProtocol(snap.Lines, params.Position)
	if err != nil {
		return nil, err
	}
	line, err := snap.Lines.LineOf(off)
	if err != nil {
		return nil, err
	}
	lineSpan, err := snap.Lines.LineSpan(line)
	if err != nil {
		return nil, err
	}
	wsEnd := lineSpan.Start
	for wsEnd < lineSpan.End && (snap.Source[wsEnd] == ' ' || snap.Source[wsEnd] == '\t') {
		wsEnd++
	}
	col, ok := s.support.Indent(snap.Tree, snap.Source, int(lineSpan.Start))
	if !ok {
		return []protocol.TextEdit{}, nil
	}
	want := strings.Repeat(" ", col)
	ws := itext.Span{Start: lineSpan.Start, End: wsEnd}
	if string(snap.Source[ws.Start:ws.End]) == want {
		return []protocol.TextEdit{}, nil
	}
	return lspTextEdits(snap.Lines, []itext.ByteEdit{{Span: ws, NewText: []byte(want)}})
}

func (s *Server) foldingRange(_ *glsp.Context, params *protocol.FoldingRangeParams) ([]protocol.FoldingRange, error) {
	snap, err := s.snapshot(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}
	return lspFoldingRanges(s.support, snap)
}

func (s *Server) selectionRange(_ *glsp.Context, params *protocol.SelectionRangeParams) ([]protocol.SelectionRange, error) {
	snap, err := s.snapshot(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}
	return lspSelectionRanges(snap, params.Positions)
}

func (s *Server) documentSymbol(_ *glsp.Context, params *protocol.DocumentSymbolParams) (any, error) {
	snap, err := s.snapshot(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}
	return lspDocumentSymbols(snap)
}

func (s *Server) semanticTokensFull(_ *glsp.Context, params *protocol.SemanticTokensParams) (*protocol.SemanticTokens, error) {
	snap, err := s.snapshot(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}
	return lspSemanticTokens(s.support, s.legend, snap)
}

func lspTextEdits(li *itext.LineIndex, edits []itext.ByteEdit) ([]protocol.TextEdit, error) {
	out := make([]protocol.TextEdit, 0, len(edits))
	for _, e := range edits {
		r, err := protocolRange(li, e.Span)
		if err != nil {
			return nil, err
		}
		out = append(out, protocol.TextEdit{Range: r, NewText: string(e.NewText)})
	}
	return out, nil
}

func lspDiagnostics(li *itext.LineIndex, diags []syntax.Diagnostic) []protocol.Diagnostic {
	out := make([]protocol.Diagnostic, 0, len(diags))
	for _, d := range diags {
		r, err := protocolRange(li, d.Span)
		if err != nil {
			continue
		}
		severity := lspSeverity(d.Severity)
		source := d.Source
		out = append(out, protocol.Diagnostic{
			Range:    r,
			Severity: &severity,
			Code:     &protocol.IntegerOrString{Value: string(d.Code)},
			Source:   &source,
			Message:  d.Message,
		})
	}
	return out
}

func lspSeverity(s syntax.Severity) protocol.DiagnosticSeverity {
	switch s {
	case syntax.SeverityError:
		return protocol.DiagnosticSeverityError
	case syntax.SeverityWarning:
		return protocol.DiagnosticSeverityWarning
	default:
		return protocol.DiagnosticSeverityInformation
	}
}
