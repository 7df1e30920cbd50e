package lsp

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/ledgerweaver/ledgerweaver/internal/engine"
	"github.com/ledgerweaver/ledgerweaver/internal/engine/reference"
	"github.com/ledgerweaver/ledgerweaver/internal/format"
	"github.com/ledgerweaver/ledgerweaver/internal/index"
	"github.com/ledgerweaver/ledgerweaver/internal/language"
	"github.com/ledgerweaver/ledgerweaver/internal/lint"
	"github.com/ledgerweaver/ledgerweaver/internal/syntax"
	itext "github.com/ledgerweaver/ledgerweaver/internal/text"
)

type notification struct {
	method string
	params any
}

type notifier struct {
	mu    sync.Mutex
	calls []notification
}

func (n *notifier) context() *glsp.Context {
	return &glsp.Context{Notify: func(method string, params any) {
		n.mu.Lock()
		n.calls = append(n.calls, notification{method: method, params: params})
		n.mu.Unlock()
	}}
}

func (n *notifier) methods() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.calls))
	for _, c := range n.calls {
		out = append(out, c.method)
	}
	return out
}

// diagnostics returns the last diagnostics published for uri.
func (n *notifier) diagnostics(t *testing.T, uri string) protocol.PublishDiagnosticsParams {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.calls) - 1; i >= 0; i-- {
		c := n.calls[i]
		if c.method != protocol.ServerTextDocumentPublishDiagnostics {
			continue
		}
		p, ok := c.params.(protocol.PublishDiagnosticsParams)
		if ok && p.URI == uri {
			return p
		}
	}
	t.Fatalf("no diagnostics published for %s", uri)
	return protocol.PublishDiagnosticsParams{}
}

func diagnosticCodes(p protocol.PublishDiagnosticsParams) []string {
	out := make([]string, 0, len(p.Diagnostics))
	for _, d := range p.Diagnostics {
		if d.Code != nil {
			out = append(out, d.Code.Value.(string))
		}
	}
	return out
}

func newTestServer(t *testing.T, handle *engine.Handle, ix *index.Index) *Server {
	t.Helper()
	if handle == nil {
		handle = engine.Ready(reference.New())
	}
	opts := language.Options{Handle: handle, Format: format.Options{CurrencyColumn: 30}}
	if ix != nil {
		opts.Accounts = ix
	}
	support, err := language.New(opts)
	if err != nil {
		t.Fatalf("language.New: %v", err)
	}
	s, err := NewServer(Options{Support: support, Index: ix, Version: "test"})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func openDoc(t *testing.T, s *Server, n *notifier, uri, text string) {
	t.Helper()
	err := s.didOpen(n.context(), &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: uri, LanguageID: "beancount", Version: 1, Text: text},
	})
	if err != nil {
		t.Fatalf("didOpen: %v", err)
	}
}

func docID(uri string) protocol.TextDocumentIdentifier {
	return protocol.TextDocumentIdentifier{URI: uri}
}

func pos(line, char uint32) protocol.Position {
	return protocol.Position{Line: line, Character: char}
}

// applyProtocolEdits applies LSP edits to src the way a client would.
func applyProtocolEdits(t *testing.T, src string, edits []protocol.TextEdit) string {
	t.Helper()
	li := itext.NewLineIndex([]byte(src))
	byteEdits := make([]itext.ByteEdit, 0, len(edits))
	for _, e := range edits {
		sp, err := spanFromProtocol(li, e.Range)
		if err != nil {
			t.Fatalf("edit range %+v: %v", e.Range, err)
		}
		byteEdits = append(byteEdits, itext.ByteEdit{Span: sp, NewText: []byte(e.NewText)})
	}
	out, err := itext.ApplyEdits([]byte(src), byteEdits)
	if err != nil {
		t.Fatalf("ApplyEdits: %v", err)
	}
	return string(out)
}

func TestNewServerRequiresSupport(t *testing.T) {
	t.Parallel()

	if _, err := NewServer(Options{}); err == nil {
		t.Fatal("expected error without language support")
	}
}

func TestInitializeAdvertisesCapabilities(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, nil)
	res, err := s.initialize(nil, &protocol.InitializeParams{})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	got, ok := res.(protocol.InitializeResult)
	if !ok {
		t.Fatalf("initialize returned %T", res)
	}
	if got.ServerInfo == nil || got.ServerInfo.Name != DefaultName || got.ServerInfo.Version == nil || *got.ServerInfo.Version != "test" {
		t.Fatalf("unexpected server info: %+v", got.ServerInfo)
	}
	caps := got.Capabilities
	textSync, ok := caps.TextDocumentSync.(*protocol.TextDocumentSyncOptions)
	if !ok || textSync.Change == nil || *textSync.Change != protocol.TextDocumentSyncKindIncremental || textSync.OpenClose == nil || !*textSync.OpenClose {
		t.Fatalf("unexpected textDocumentSync: %#v", caps.TextDocumentSync)
	}
	if caps.DocumentFormattingProvider != true || caps.DocumentRangeFormattingProvider != true ||
		caps.DocumentSymbolProvider != true || caps.FoldingRangeProvider != true || caps.SelectionRangeProvider != true {
		t.Fatalf("unexpected capabilities: %+v", caps)
	}
	if caps.DocumentOnTypeFormattingProvider == nil || caps.DocumentOnTypeFormattingProvider.FirstTriggerCharacter != "\n" {
		t.Fatalf("unexpected on-type formatting: %+v", caps.DocumentOnTypeFormattingProvider)
	}
	if caps.CompletionProvider == nil || !slices.Contains(caps.CompletionProvider.TriggerCharacters, ":") {
		t.Fatalf("unexpected completion provider: %+v", caps.CompletionProvider)
	}
	tokens, ok := caps.SemanticTokensProvider.(*protocol.SemanticTokensOptions)
	if !ok || tokens.Full != true {
		t.Fatalf("unexpected semantic tokens provider: %#v", caps.SemanticTokensProvider)
	}
	if !slices.Contains(tokens.Legend.TokenTypes, "namespace") || !slices.IsSorted(tokens.Legend.TokenTypes) {
		t.Fatalf("unexpected legend: %v", tokens.Legend.TokenTypes)
	}
}

func TestDidOpenPublishesLintAndSyntaxDiagnostics(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, nil)
	var n notifier
	uri := "file:///diag.beancount"
	openDoc(t, s, &n, uri, "2024-01-01 open Assets:Cash\n2024-01-02 * \"Lunch\"\n  Expenses:Food   3.50 EUR\n  Assets:Cash\n2024-01-03 open\n")

	p := n.diagnostics(t, uri)
	if p.Version == nil || *p.Version != 1 {
		t.Fatalf("unexpected version: %v", p.Version)
	}
	codes := diagnosticCodes(p)
	if !slices.Contains(codes, string(syntax.DiagnosticSyntaxError)) || !slices.Contains(codes, string(lint.DiagnosticUndeclaredAccount)) {
		t.Fatalf("unexpected diagnostic codes: %v", codes)
	}
	for _, d := range p.Diagnostics {
		if d.Code.Value == string(lint.DiagnosticUndeclaredAccount) {
			if d.Range.Start != pos(2, 2) || d.Range.End != pos(2, 15) {
				t.Fatalf("undeclared account range: %+v", d.Range)
			}
			if *d.Severity != protocol.DiagnosticSeverityWarning {
				t.Fatalf("undeclared account severity: %v", *d.Severity)
			}
		}
	}
}

func TestDidChangeRepublishesAndRejectsStaleVersions(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, nil)
	var n notifier
	uri := "file:///change.beancount"
	openDoc(t, s, &n, uri, "2024-01-01 open\n")
	if codes := diagnosticCodes(n.diagnostics(t, uri)); len(codes) == 0 {
		t.Fatal("expected diagnostics for incomplete open")
	}

	err := s.didChange(n.context(), &protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{TextDocumentIdentifier: docID(uri), Version: 2},
		ContentChanges: []any{
			protocol.TextDocumentContentChangeEvent{Range: &protocol.Range{Start: pos(0, 15), End: pos(0, 15)}, Text: " Assets:Cash"},
		},
	})
	if err != nil {
		t.Fatalf("didChange: %v", err)
	}
	p := n.diagnostics(t, uri)
	if *p.Version != 2 || len(p.Diagnostics) != 0 {
		t.Fatalf("unexpected diagnostics after fix: %+v", p)
	}

	err = s.didChange(n.context(), &protocol.DidChangeTextDocumentParams{
		TextDocument:   protocol.VersionedTextDocumentIdentifier{TextDocumentIdentifier: docID(uri), Version: 2},
		ContentChanges: []any{protocol.TextDocumentContentChangeEventWhole{Text: ""}},
	})
	if !errors.Is(err, ErrStaleVersion) {
		t.Fatalf("expected ErrStaleVersion, got %v", err)
	}
}

func TestDidCloseClearsDiagnostics(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, nil)
	var n notifier
	uri := "file:///close.beancount"
	openDoc(t, s, &n, uri, "2024-01-01 open\n")
	if err := s.didClose(n.context(), &protocol.DidCloseTextDocumentParams{TextDocument: docID(uri)}); err != nil {
		t.Fatalf("didClose: %v", err)
	}
	if p := n.diagnostics(t, uri); len(p.Diagnostics) != 0 {
		t.Fatalf("expected cleared diagnostics, got %+v", p.Diagnostics)
	}
	_, err := s.foldingRange(nil, &protocol.FoldingRangeParams{TextDocument: docID(uri)})
	if !errors.Is(err, ErrDocumentNotOpen) {
		t.Fatalf("expected ErrDocumentNotOpen, got %v", err)
	}
}

func TestFormattingReturnsMinimalEdit(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, nil)
	var n notifier
	uri := "file:///fmt.beancount"
	src := "2024-01-01 open Assets:Cash EUR\n\n2024-01-02 * \"Lunch\"\n    Expenses:Food 3.50 EUR\n  Assets:Cash\n"
	openDoc(t, s, &n, uri, src)

	edits, err := s.formatting(nil, &protocol.DocumentFormattingParams{TextDocument: docID(uri)})
	if err != nil {
		t.Fatalf("formatting: %v", err)
	}
	if len(edits) != 1 {
		t.Fatalf("expected one edit, got %+v", edits)
	}
	if edits[0].Range.Start.Line != 3 {
		t.Fatalf("edit should start at the changed line: %+v", edits[0].Range)
	}

	snap, _ := s.Store().Snapshot(uri)
	want, err := s.support.Format(context.Background(), snap.Tree, snap.Source)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if got := applyProtocolEdits(t, src, edits); got != string(want.Output) {
		t.Fatalf("edited text mismatch\n got: %q\nwant: %q", got, want.Output)
	}

	// Formatting the formatted text is a no-op.
	openDoc(t, s, &n, uri, string(want.Output))
	edits, err = s.formatting(nil, &protocol.DocumentFormattingParams{TextDocument: docID(uri)})
	if err != nil || len(edits) != 0 {
		t.Fatalf("expected no edits for formatted text, got %+v, %v", edits, err)
	}
}

func TestFormattingRefusesUnsafeDocuments(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, nil)
	var n notifier
	uri := "file:///broken.beancount"
	openDoc(t, s, &n, uri, "2024-01-01 open\n2024-01-02 * \"x\"\n    Expenses:Food 1 EUR\n")

	edits, err := s.formatting(nil, &protocol.DocumentFormattingParams{TextDocument: docID(uri)})
	if err != nil || edits == nil || len(edits) != 0 {
		t.Fatalf("expected empty refusal, got %+v, %v", edits, err)
	}
	edits, err = s.rangeFormatting(nil, &protocol.DocumentRangeFormattingParams{
		TextDocument: docID(uri),
		Range:        protocol.Range{Start: pos(2, 0), End: pos(2, 4)},
	})
	if err != nil || len(edits) != 0 {
		t.Fatalf("expected empty range refusal, got %+v, %v", edits, err)
	}
}

func TestRangeFormattingTouchesOnlySelectedEntry(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, nil)
	var n notifier
	uri := "file:///range.beancount"
	src := "2024-01-02 * \"A\"\n    Expenses:Food 1 EUR\n  Assets:Cash\n\n2024-01-03 * \"B\"\n    Expenses:Food 2 EUR\n  Assets:Cash\n"
	openDoc(t, s, &n, uri, src)

	edits, err := s.rangeFormatting(nil, &protocol.DocumentRangeFormattingParams{
		TextDocument: docID(uri),
		Range:        protocol.Range{Start: pos(5, 0), End: pos(5, 3)},
	})
	if err != nil {
		t.Fatalf("rangeFormatting: %v", err)
	}
	if len(edits) != 1 || edits[0].Range.Start.Line < 4 {
		t.Fatalf("unexpected edits: %+v", edits)
	}
	got := applyProtocolEdits(t, src, edits)
	if !strings.HasPrefix(got, "2024-01-02 * \"A\"\n    Expenses:Food 1 EUR\n") {
		t.Fatalf("first entry changed:\n%s", got)
	}
	if strings.Contains(got, "\n    Expenses:Food 2 EUR") {
		t.Fatalf("second entry not formatted:\n%s", got)
	}
}

func TestOnTypeFormattingIndentsEntryBody(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, nil)
	var n notifier
	uri := "file:///ontype.beancount"
	openDoc(t, s, &n, uri, "2024-01-02 * \"x\"\n  Expenses:Food   1 EUR\n\n\n")

	typed := func(line uint32, ch string) []protocol.TextEdit {
		t.Helper()
		edits, err := s.onTypeFormatting(nil, &protocol.DocumentOnTypeFormattingParams{
			TextDocumentPositionParams: protocol.TextDocumentPositionParams{TextDocument: docID(uri), Position: pos(line, 0)},
			Ch:                         ch,
		})
		if err != nil {
			t.Fatalf("onTypeFormatting: %v", err)
		}
		return edits
	}

	edits := typed(2, "\n")
	if len(edits) != 1 || edits[0].NewText != "  " || edits[0].Range.Start != pos(2, 0) || edits[0].Range.End != pos(2, 0) {
		t.Fatalf("expected body indentation, got %+v", edits)
	}
	if edits := typed(3, "\n"); len(edits) != 0 {
		t.Fatalf("blank line should end the entry, got %+v", edits)
	}
	if edits := typed(2, "}"); len(edits) != 0 {
		t.Fatalf("other trigger characters are ignored, got %+v", edits)
	}
}

func TestCompletionOffersAccountsFromDocumentAndIndex(t *testing.T) {
	t.Parallel()

	ix, err := index.Open(index.MemoryPath)
	if err != nil {
		t.Fatalf("index.Open: %v", err)
	}
	t.Cleanup(func() { _ = ix.Close() })

	s := newTestServer(t, nil, ix)
	var n notifier
	openDoc(t, s, &n, "file:///accounts.beancount", "2020-01-01 open Liabilities:Card\n")
	uri := "file:///main.beancount"
	openDoc(t, s, &n, uri, "2024-01-01 open Assets:Cash EUR\n2024-01-02 * \"x\"\n  Li\n  As")

	complete := func(line, char uint32) *protocol.CompletionList {
		t.Helper()
		res, err := s.completion(nil, &protocol.CompletionParams{
			TextDocumentPositionParams: protocol.TextDocumentPositionParams{TextDocument: docID(uri), Position: pos(line, char)},
		})
		if err != nil {
			t.Fatalf("completion: %v", err)
		}
		return res.(*protocol.CompletionList)
	}

	list := complete(3, 4)
	if len(list.Items) != 1 || list.Items[0].Label != "Assets:Cash" {
		t.Fatalf("unexpected items: %+v", list.Items)
	}
	item := list.Items[0]
	if *item.Kind != protocol.CompletionItemKindModule {
		t.Fatalf("unexpected kind: %v", *item.Kind)
	}
	edit, ok := item.TextEdit.(protocol.TextEdit)
	if !ok || edit.Range.Start != pos(3, 2) || edit.Range.End != pos(3, 4) || edit.NewText != "Assets:Cash" {
		t.Fatalf("unexpected text edit: %#v", item.TextEdit)
	}

	list = complete(2, 4)
	if len(list.Items) != 1 || list.Items[0].Label != "Liabilities:Card" {
		t.Fatalf("index accounts not offered: %+v", list.Items)
	}
}

func TestFoldingRanges(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, nil)
	var n notifier
	uri := "file:///fold.beancount"
	openDoc(t, s, &n, uri, "; header\n; more\n\n2024-01-02 * \"x\"\n  Expenses:Food   1 EUR\n  Assets:Cash\n2024-01-03 open Assets:Cash\n")

	ranges, err := s.foldingRange(nil, &protocol.FoldingRangeParams{TextDocument: docID(uri)})
	if err != nil {
		t.Fatalf("foldingRange: %v", err)
	}
	if len(ranges) != 2 {
		t.Fatalf("expected two folds, got %+v", ranges)
	}
	if ranges[0].StartLine != 0 || ranges[0].EndLine != 1 || ranges[0].Kind == nil || *ranges[0].Kind != "comment" {
		t.Fatalf("unexpected comment fold: %+v", ranges[0])
	}
	if ranges[1].StartLine != 3 || ranges[1].EndLine != 5 || ranges[1].Kind != nil {
		t.Fatalf("unexpected transaction fold: %+v", ranges[1])
	}
}

func TestSelectionRangesWidenToEnclosingNodes(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, nil)
	var n notifier
	uri := "file:///select.beancount"
	openDoc(t, s, &n, uri, "2024-01-01 open Assets:Cash\n2024-01-02 close Assets:Cash\n")

	ranges, err := s.selectionRange(nil, &protocol.SelectionRangeParams{
		TextDocument: docID(uri),
		Positions:    []protocol.Position{pos(1, 20)},
	})
	if err != nil {
		t.Fatalf("selectionRange: %v", err)
	}
	if len(ranges) != 1 {
		t.Fatalf("expected one selection range, got %d", len(ranges))
	}
	var chain []protocol.Range
	for r := &ranges[0]; r != nil; r = r.Parent {
		chain = append(chain, r.Range)
	}
	want := []protocol.Range{
		{Start: pos(1, 17), End: pos(1, 28)},
		{Start: pos(1, 0), End: pos(1, 28)},
		{Start: pos(0, 0), End: pos(1, 28)},
	}
	if !slices.Equal(chain, want) {
		t.Fatalf("chain=%+v, want %+v", chain, want)
	}
}

func TestDocumentSymbols(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, nil)
	var n notifier
	uri := "file:///symbols.beancount"
	openDoc(t, s, &n, uri, "option \"title\" \"Home\"\n; note\n2024-01-01 open Assets:Cash\n2024-01-02 * \"Lunch\"\n  Expenses:Food   1 EUR\n  Assets:Cash\n")

	res, err := s.documentSymbol(nil, &protocol.DocumentSymbolParams{TextDocument: docID(uri)})
	if err != nil {
		t.Fatalf("documentSymbol: %v", err)
	}
	symbols := res.([]protocol.DocumentSymbol)
	var names []string
	for _, sym := range symbols {
		names = append(names, sym.Name)
	}
	want := []string{"option \"title\" \"Home\"", "2024-01-01 open Assets:Cash", "2024-01-02 * \"Lunch\""}
	if !slices.Equal(names, want) {
		t.Fatalf("names=%q, want %q", names, want)
	}
	open := symbols[1]
	if open.Kind != protocol.SymbolKindNamespace || open.SelectionRange.Start != pos(2, 16) || open.SelectionRange.End != pos(2, 27) {
		t.Fatalf("unexpected open symbol: %+v", open)
	}
	txn := symbols[2]
	if txn.Range.Start != pos(3, 0) || txn.Range.End != pos(5, 13) {
		t.Fatalf("unexpected transaction range: %+v", txn.Range)
	}
	if len(txn.Children) != 2 || txn.Children[0].Name != "Expenses:Food" || txn.Children[1].Name != "Assets:Cash" {
		t.Fatalf("unexpected postings: %+v", txn.Children)
	}
}

func TestDegradedEngineServesEmptyResults(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, engine.Failed(errors.New("grammar missing")), nil)
	var n notifier
	if err := s.initialized(n.context(), &protocol.InitializedParams{}); err != nil {
		t.Fatalf("initialized: %v", err)
	}
	if !slices.Contains(n.methods(), string(protocol.ServerWindowShowMessage)) {
		t.Fatalf("expected a window/showMessage warning, got %v", n.methods())
	}

	uri := "file:///degraded.beancount"
	openDoc(t, s, &n, uri, "2024-01-01 open Assets:Cash\n")
	if codes := diagnosticCodes(n.diagnostics(t, uri)); !slices.Equal(codes, []string{string(syntax.DiagnosticEngineUnavailable)}) {
		t.Fatalf("unexpected diagnostics: %v", codes)
	}

	edits, err := s.formatting(nil, &protocol.DocumentFormattingParams{TextDocument: docID(uri)})
	if err != nil || len(edits) != 0 {
		t.Fatalf("formatting: %+v, %v", edits, err)
	}
	tokens, err := s.semanticTokensFull(nil, &protocol.SemanticTokensParams{TextDocument: docID(uri)})
	if err != nil || len(tokens.Data) != 0 {
		t.Fatalf("semantic tokens: %+v, %v", tokens, err)
	}
	folds, err := s.foldingRange(nil, &protocol.FoldingRangeParams{TextDocument: docID(uri)})
	if err != nil || len(folds) != 0 {
		t.Fatalf("folds: %+v, %v", folds, err)
	}
	res, err := s.documentSymbol(nil, &protocol.DocumentSymbolParams{TextDocument: docID(uri)})
	if err != nil || len(res.([]protocol.DocumentSymbol)) != 0 {
		t.Fatalf("symbols: %+v, %v", res, err)
	}
	ranges, err := s.selectionRange(nil, &protocol.SelectionRangeParams{TextDocument: docID(uri), Positions: []protocol.Position{pos(0, 3)}})
	if err != nil || len(ranges) != 1 || ranges[0].Parent != nil {
		t.Fatalf("selection: %+v, %v", ranges, err)
	}
}

func TestShutdownReleasesDocuments(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil, nil)
	var n notifier
	uri := "file:///shutdown.beancount"
	openDoc(t, s, &n, uri, "2024-01-01 open Assets:Cash\n")
	if err := s.shutdownHandler(nil); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if _, ok := s.Store().Snapshot(uri); ok {
		t.Fatal("document still tracked after shutdown")
	}
}
