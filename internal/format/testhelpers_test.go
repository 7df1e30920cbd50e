package format

import (
	"context"
	"testing"

	"github.com/ledgerweaver/ledgerweaver/internal/engine"
	"github.com/ledgerweaver/ledgerweaver/internal/engine/reference"
	"github.com/ledgerweaver/ledgerweaver/internal/syntax"
)

func parseLedger(tb testing.TB, src []byte) *syntax.Tree {
	tb.Helper()
	p := syntax.NewParser(syntax.Config{Handle: engine.Ready(reference.New())})
	defer p.Close()
	tree := p.StartParse(context.Background(), src, nil, nil).Finish()
	if tree == nil {
		tb.Fatal("Finish returned nil tree")
	}
	return tree
}
