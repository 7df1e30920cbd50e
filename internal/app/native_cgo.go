//go:build cgo && ledgerweaver_cgo

package app

import (
	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/ledgerweaver/ledgerweaver/internal/engine"
	"github.com/ledgerweaver/ledgerweaver/internal/engine/treesitter"
)

// NativeLanguage supplies the linked ledger grammar for the treesitter
// engine kind. Builds that link a grammar binding set it from an init
// function; left nil, the engine reports treesitter.ErrNoLanguage.
var NativeLanguage func() *sitter.Language

func nativeLoader() (engine.Loader, error) {
	lang := NativeLanguage
	if lang == nil {
		lang = func() *sitter.Language { return nil }
	}
	return treesitter.Loader("ledger-native", lang), nil
}
