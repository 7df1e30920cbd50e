//go:build !cgo || !ledgerweaver_cgo

package app

import (
	"errors"

	"github.com/ledgerweaver/ledgerweaver/internal/engine"
)

// ErrNativeUnsupported is returned for the treesitter engine kind in builds
// without cgo and the ledgerweaver_cgo tag.
var ErrNativeUnsupported = errors.New("native tree-sitter engine not compiled in (build with cgo and -tags ledgerweaver_cgo)")

func nativeLoader() (engine.Loader, error) {
	return nil, ErrNativeUnsupported
}
