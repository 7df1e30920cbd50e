// Package treesitter adapts a native tree-sitter grammar to the engine
// contract. It is compiled only with cgo and the ledgerweaver_cgo build tag;
// other builds rely on the sandboxed wasm engine.
package treesitter
