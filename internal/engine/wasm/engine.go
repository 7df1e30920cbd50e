// Package wasm runs a ledger grammar compiled to WebAssembly inside a wazero
// sandbox and exposes it through the engine contract.
//
// The module must export linear memory as "memory" and the functions listed in
// requiredExports. Trees and nodes are opaque i32 handles owned by the module.
package wasm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/ledgerweaver/ledgerweaver/internal/engine"
)

// ABIVersion is the value ledger_abi_version must return.
const ABIVersion = 1

// DefaultMemoryLimitPages caps the sandbox at 256 MiB.
const DefaultMemoryLimitPages = 4096

const (
	flagError   = 1 << 0
	flagMissing = 1 << 1

	editWords = 9
)

var (
	ErrChecksumMismatch = errors.New("wasm grammar checksum mismatch")
	ErrABIMismatch      = errors.New("wasm grammar ABI mismatch")
	ErrParseFailed      = errors.New("wasm grammar parse failed")
	ErrOutOfBounds      = errors.New("wasm memory access out of bounds")
)

type signature struct {
	params  []api.ValueType
	results []api.ValueType
}

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

var requiredExports = map[string]signature{
	"ledger_abi_version":      {nil, []api.ValueType{i32}},
	"ledger_alloc":            {[]api.ValueType{i32}, []api.ValueType{i32}},
	"ledger_free":             {[]api.ValueType{i32}, nil},
	"ledger_parse":            {[]api.ValueType{i32, i32, i32}, []api.ValueType{i32}},
	"ledger_tree_edit":        {[]api.ValueType{i32, i32}, []api.ValueType{i32}},
	"ledger_tree_delete":      {[]api.ValueType{i32}, nil},
	"ledger_tree_root":        {[]api.ValueType{i32}, []api.ValueType{i32}},
	"ledger_node_symbol":      {[]api.ValueType{i32, i32}, []api.ValueType{i32}},
	"ledger_node_start":       {[]api.ValueType{i32, i32}, []api.ValueType{i32}},
	"ledger_node_end":         {[]api.ValueType{i32, i32}, []api.ValueType{i32}},
	"ledger_node_flags":       {[]api.ValueType{i32, i32}, []api.ValueType{i32}},
	"ledger_node_child_count": {[]api.ValueType{i32, i32}, []api.ValueType{i32}},
	"ledger_node_child":       {[]api.ValueType{i32, i32, i32}, []api.ValueType{i32}},
	"ledger_node_id":          {[]api.ValueType{i32, i32}, []api.ValueType{i64}},
	"ledger_symbol_name":      {[]api.ValueType{i32}, []api.ValueType{i64}},
}

// Config describes a grammar module to load.
type Config struct {
	Name   string
	Module []byte
	// SHA256 is the expected hex digest of Module. Empty skips the check.
	SHA256           string
	MemoryLimitPages uint32
}

type functions struct {
	abiVersion, alloc, free                       api.Function
	parse, treeEdit, treeDelete, treeRoot         api.Function
	nodeSymbol, nodeStart, nodeEnd, nodeFlags     api.Function
	nodeChildCount, nodeChild, nodeID, symbolName api.Function
}

// Engine is a loaded grammar module. Calls into the module are serialized.
type Engine struct {
	name string

	mu  sync.Mutex
	rt  wazero.Runtime
	mod api.Module
	fn  functions

	namesMu sync.RWMutex
	names   map[uint16]string
}

var _ engine.Engine = (*Engine)(nil)

// Loader adapts Load to engine.Loader.
func Loader(cfg Config) engine.Loader {
	return func(ctx context.Context) (engine.Engine, error) {
		return Load(ctx, cfg)
	}
}

// Load verifies, compiles and instantiates a grammar module.
func Load(ctx context.Context, cfg Config) (*Engine, error) {
	if err := verifyChecksum(cfg.Module, cfg.SHA256); err != nil {
		return nil, err
	}
	pages := cfg.MemoryLimitPages
	if pages == 0 {
		pages = DefaultMemoryLimitPages
	}
	name := cfg.Name
	if name == "" {
		name = "ledger-wasm"
	}

	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithMemoryLimitPages(pages))
	eng, err := instantiate(ctx, rt, cfg.Module, name)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	return eng, nil
}

func verifyChecksum(module []byte, want string) error {
	want = strings.ToLower(strings.TrimSpace(want))
	if want == "" {
		return nil
	}
	sum := sha256.Sum256(module)
	if got := hex.EncodeToString(sum[:]); got != want {
		return fmt.Errorf("%w: got %s want %s", ErrChecksumMismatch, got, want)
	}
	return nil
}

func instantiate(ctx context.Context, rt wazero.Runtime, bin []byte, name string) (*Engine, error) {
	compiled, err := rt.CompileModule(ctx, bin)
	if err != nil {
		return nil, fmt.Errorf("compile wasm grammar: %w", err)
	}
	if err := checkExports(compiled); err != nil {
		return nil, err
	}
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		return nil, fmt.Errorf("instantiate wasm grammar: %w", err)
	}

	e := &Engine{name: name, rt: rt, mod: mod, names: map[uint16]string{}}
	e.fn = functions{
		abiVersion:     mod.ExportedFunction("ledger_abi_version"),
		alloc:          mod.ExportedFunction("ledger_alloc"),
		free:           mod.ExportedFunction("ledger_free"),
		parse:          mod.ExportedFunction("ledger_parse"),
		treeEdit:       mod.ExportedFunction("ledger_tree_edit"),
		treeDelete:     mod.ExportedFunction("ledger_tree_delete"),
		treeRoot:       mod.ExportedFunction("ledger_tree_root"),
		nodeSymbol:     mod.ExportedFunction("ledger_node_symbol"),
		nodeStart:      mod.ExportedFunction("ledger_node_start"),
		nodeEnd:        mod.ExportedFunction("ledger_node_end"),
		nodeFlags:      mod.ExportedFunction("ledger_node_flags"),
		nodeChildCount: mod.ExportedFunction("ledger_node_child_count"),
		nodeChild:      mod.ExportedFunction("ledger_node_child"),
		nodeID:         mod.ExportedFunction("ledger_node_id"),
		symbolName:     mod.ExportedFunction("ledger_symbol_name"),
	}

	res, err := e.fn.abiVersion.Call(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: ledger_abi_version: %w", ErrABIMismatch, err)
	}
	if v := api.DecodeU32(res[0]); v != ABIVersion {
		return nil, fmt.Errorf("%w: module reports version %d, host expects %d", ErrABIMismatch, v, ABIVersion)
	}
	return e, nil
}

func checkExports(compiled wazero.CompiledModule) error {
	if _, ok := compiled.ExportedMemories()["memory"]; !ok {
		return fmt.Errorf("%w: memory not exported", ErrABIMismatch)
	}
	exported := compiled.ExportedFunctions()
	var missing []string
	for name, sig := range requiredExports {
		def, ok := exported[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		if !slices.Equal(def.ParamTypes(), sig.params) || !slices.Equal(def.ResultTypes(), sig.results) {
			return fmt.Errorf("%w: %s has signature %v -> %v", ErrABIMismatch, name, def.ParamTypes(), def.ResultTypes())
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("%w: missing exports %s", ErrABIMismatch, strings.Join(missing, ", "))
	}
	return nil
}

// Name implements engine.Engine.
func (e *Engine) Name() string { return e.name }

// Close tears down the sandbox. Trees must not be used afterwards.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rt.Close(ctx)
}

// Parse implements engine.Engine.
func (e *Engine) Parse(ctx context.Context, src []byte, old engine.Tree) (engine.Tree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var hint uint32
	if old != nil {
		t, ok := old.(*Tree)
		if !ok || t.eng != e {
			return nil, fmt.Errorf("wasm: foreign hint tree %T", old)
		}
		if t.released {
			return nil, engine.ErrReleased
		}
		hint = t.ref
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ptr, err := e.write(ctx, src)
	if err != nil {
		return nil, err
	}
	defer e.freeLocked(ctx, ptr)

	res, err := e.fn.parse.Call(ctx, api.EncodeU32(ptr), api.EncodeU32(uint32(len(src))), api.EncodeU32(hint))
	if err != nil {
		return nil, fmt.Errorf("ledger_parse: %w", err)
	}
	ref := api.DecodeU32(res[0])
	if ref == 0 {
		return nil, ErrParseFailed
	}
	return &Tree{eng: e, ref: ref}, nil
}

// write copies b into freshly allocated module memory. Callers hold e.mu.
func (e *Engine) write(ctx context.Context, b []byte) (uint32, error) {
	size := uint32(len(b))
	if size == 0 {
		size = 1
	}
	res, err := e.fn.alloc.Call(ctx, api.EncodeU32(size))
	if err != nil {
		return 0, fmt.Errorf("ledger_alloc: %w", err)
	}
	ptr := api.DecodeU32(res[0])
	if ptr == 0 {
		return 0, fmt.Errorf("ledger_alloc: out of memory for %d bytes", size)
	}
	if !e.mod.Memory().Write(ptr, b) {
		e.freeLocked(ctx, ptr)
		return 0, fmt.Errorf("%w: write %d bytes at %d", ErrOutOfBounds, len(b), ptr)
	}
	return ptr, nil
}

func (e *Engine) freeLocked(ctx context.Context, ptr uint32) {
	_, _ = e.fn.free.Call(ctx, api.EncodeU32(ptr))
}

// call runs fn under the engine lock. Accessors have no caller context.
func (e *Engine) call(fn api.Function, params ...uint64) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	res, err := fn.Call(context.Background(), params...)
	if err != nil {
		panic(fmt.Errorf("wasm grammar trap in %s: %w", fn.Definition().Name(), err))
	}
	if len(res) == 0 {
		return 0
	}
	return res[0]
}

func (e *Engine) symbolName(sym uint16) string {
	e.namesMu.RLock()
	name, ok := e.names[sym]
	e.namesMu.RUnlock()
	if ok {
		return name
	}

	packed := e.call(e.fn.symbolName, api.EncodeU32(uint32(sym)))
	ptr, n := uint32(packed>>32), uint32(packed)
	e.mu.Lock()
	b, ok := e.mod.Memory().Read(ptr, n)
	if ok {
		name = string(b)
	}
	e.mu.Unlock()
	if !ok {
		name = fmt.Sprintf("symbol_%d", sym)
	}

	e.namesMu.Lock()
	e.names[sym] = name
	e.namesMu.Unlock()
	return name
}

// Tree is a tree handle living inside the module.
type Tree struct {
	eng      *Engine
	ref      uint32
	released bool
}

var _ engine.Tree = (*Tree)(nil)

func (t *Tree) check() {
	if t.released {
		panic(engine.ErrReleased)
	}
}

// Root implements engine.Tree.
func (t *Tree) Root() engine.Node {
	t.check()
	ref := api.DecodeU32(t.eng.call(t.eng.fn.treeRoot, api.EncodeU32(t.ref)))
	return &Node{tree: t, ref: ref}
}

// Edit implements engine.Tree.
func (t *Tree) Edit(edit engine.InputEdit) error {
	if t.released {
		return engine.ErrReleased
	}
	words := [editWords]uint32{
		uint32(edit.StartByte), uint32(edit.OldEndByte), uint32(edit.NewEndByte),
		uint32(edit.StartPoint.Line), uint32(edit.StartPoint.Column),
		uint32(edit.OldEndPoint.Line), uint32(edit.OldEndPoint.Column),
		uint32(edit.NewEndPoint.Line), uint32(edit.NewEndPoint.Column),
	}
	buf := make([]byte, 0, editWords*4)
	for _, w := range words {
		buf = append(buf, byte(w), byte(w>>8), byte(w>>16), byte(w>>24))
	}

	e := t.eng
	ctx := context.Background()
	e.mu.Lock()
	defer e.mu.Unlock()
	ptr, err := e.write(ctx, buf)
	if err != nil {
		return err
	}
	defer e.freeLocked(ctx, ptr)
	res, err := e.fn.treeEdit.Call(ctx, api.EncodeU32(t.ref), api.EncodeU32(ptr))
	if err != nil {
		return fmt.Errorf("ledger_tree_edit: %w", err)
	}
	if status := api.DecodeI32(res[0]); status != 0 {
		return fmt.Errorf("ledger_tree_edit: status %d", status)
	}
	return nil
}

// Release implements engine.Tree. Releasing twice is a no-op.
func (t *Tree) Release() {
	if t.released {
		return
	}
	t.released = true
	t.eng.call(t.eng.fn.treeDelete, api.EncodeU32(t.ref))
}

// Node is a node handle inside a live tree.
type Node struct {
	tree *Tree
	ref  uint32
}

var _ engine.Node = (*Node)(nil)

func (n *Node) u32(fn api.Function) uint32 {
	n.tree.check()
	return api.DecodeU32(n.tree.eng.call(fn, api.EncodeU32(n.tree.ref), api.EncodeU32(n.ref)))
}

func (n *Node) TypeID() uint16   { return uint16(n.u32(n.tree.eng.fn.nodeSymbol)) }
func (n *Node) TypeName() string { return n.tree.eng.symbolName(n.TypeID()) }
func (n *Node) StartByte() int   { return int(n.u32(n.tree.eng.fn.nodeStart)) }
func (n *Node) EndByte() int     { return int(n.u32(n.tree.eng.fn.nodeEnd)) }
func (n *Node) IsError() bool    { return n.u32(n.tree.eng.fn.nodeFlags)&flagError != 0 }
func (n *Node) IsMissing() bool  { return n.u32(n.tree.eng.fn.nodeFlags)&flagMissing != 0 }
func (n *Node) ChildCount() int  { return int(n.u32(n.tree.eng.fn.nodeChildCount)) }

func (n *Node) Child(i int) engine.Node {
	n.tree.check()
	e := n.tree.eng
	ref := api.DecodeU32(e.call(e.fn.nodeChild, api.EncodeU32(n.tree.ref), api.EncodeU32(n.ref), api.EncodeU32(uint32(i))))
	if ref == 0 {
		return nil
	}
	return &Node{tree: n.tree, ref: ref}
}

func (n *Node) Identity() uintptr {
	n.tree.check()
	e := n.tree.eng
	return uintptr(e.call(e.fn.nodeID, api.EncodeU32(n.tree.ref), api.EncodeU32(n.ref)))
}
