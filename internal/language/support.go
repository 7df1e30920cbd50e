// Package language bundles the ledger parser with the editor extensions that
// consume its trees: highlighting, folding, indentation, completion and
// formatting. A host activates one Support per process and asks it for a
// parser per document.
package language

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/ledgerweaver/ledgerweaver/internal/engine"
	"github.com/ledgerweaver/ledgerweaver/internal/format"
	"github.com/ledgerweaver/ledgerweaver/internal/logger"
	"github.com/ledgerweaver/ledgerweaver/internal/syntax"
	"github.com/ledgerweaver/ledgerweaver/internal/text"
)

// DefaultIndentWidth is the number of spaces body lines are indented by.
const DefaultIndentWidth = 2

// AccountSource supplies account names beyond those declared in the open document.
type AccountSource interface {
	Accounts(ctx context.Context, prefix string) ([]string, error)
}

// Options configure a Support.
type Options struct {
	Handle      *engine.Handle
	Registry    *syntax.Registry
	ChunkBytes  int
	ChunkNodes  int
	VerifyEvery uint64
	Observer    func(syntax.ReparseEvent)

	// Descriptor defaults to the embedded ledger descriptor.
	Descriptor  *Descriptor
	Format      format.Options
	IndentWidth int
	Accounts    AccountSource
}

// Support is an activated language: parser configuration plus extensions.
// It is safe for concurrent use.
type Support struct {
	opts    Options
	desc    *Descriptor
	folds   map[string]bool
	indents map[string]bool
	log     commonlog.Logger
}

// New validates opts and returns a Support.
func New(opts Options) (*Support, error) {
	if opts.Handle == nil {
		return nil, errors.New("language support requires an engine handle")
	}
	if opts.Registry == nil {
		opts.Registry = syntax.DefaultRegistry
	}
	if opts.Descriptor == nil {
		opts.Descriptor = DefaultDescriptor()
	} else if err := opts.Descriptor.Validate(); err != nil {
		return nil, err
	}
	if opts.IndentWidth <= 0 {
		opts.IndentWidth = DefaultIndentWidth
	}
	if opts.Format.Indent == "" {
		opts.Format.Indent = strings.Repeat(" ", opts.IndentWidth)
	}
	return &Support{
		opts:    opts,
		desc:    opts.Descriptor,
		folds:   toSet(opts.Descriptor.Folds),
		indents: toSet(opts.Descriptor.Indents),
		log:     logger.Get("language"),
	}, nil
}

func toSet(names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

// Name returns the language name.
func (s *Support) Name() string { return s.desc.Name }

// Descriptor returns the language pack descriptor.
func (s *Support) Descriptor() *Descriptor { return s.desc }

// HandlesPath reports whether path has one of the language's extensions.
func (s *Support) HandlesPath(path string) bool {
	return slices.Contains(s.desc.Extensions, strings.ToLower(filepath.Ext(path)))
}

// NewParser returns a parser for one document.
func (s *Support) NewParser() *syntax.Parser {
	return syntax.NewParser(syntax.Config{
		Handle:      s.opts.Handle,
		Registry:    s.opts.Registry,
		ChunkBytes:  s.opts.ChunkBytes,
		ChunkNodes:  s.opts.ChunkNodes,
		VerifyEvery: s.opts.VerifyEvery,
		Observer:    s.opts.Observer,
	})
}

// Degraded reports whether the grammar engine is unavailable. The first call
// loads the engine.
func (s *Support) Degraded(ctx context.Context) bool {
	_, err := s.opts.Handle.Engine(ctx)
	return err != nil
}

// Format formats the whole document.
func (s *Support) Format(ctx context.Context, tree *syntax.Tree, src []byte) (format.Result, error) {
	return format.Document(ctx, tree, src, s.opts.Format)
}

// FormatRange formats the entries overlapping r.
func (s *Support) FormatRange(ctx context.Context, tree *syntax.Tree, src []byte, r text.Span) (format.RangeResult, error) {
	return format.Range(ctx, tree, src, r, s.opts.Format)
}

func usable(tree *syntax.Tree) bool {
	return tree != nil && tree.Root != nil && !tree.Degraded
}
