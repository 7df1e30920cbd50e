// Package syntax bridges a grammar engine to editor services: it keeps the
// engine's native tree in step with document edits, converts native nodes into
// immutable trees, and drives parsing in bounded steps.
package syntax

import "sync"

// ErrorTypeID is the reserved id of the error node type.
const ErrorTypeID uint16 = 0xFFFF

// NodeType is an interned node type. Interned types are compared by pointer.
type NodeType struct {
	ID      uint16
	Name    string
	IsError bool
}

func (t *NodeType) String() string {
	if t == nil {
		return "<nil>"
	}
	return t.Name
}

// ErrorType is the type of every node produced from engine error or missing
// nodes and of degraded roots.
var ErrorType = &NodeType{ID: ErrorTypeID, Name: "ERROR", IsError: true}

// Registry interns node types by engine type id.
type Registry struct {
	mu     sync.RWMutex
	byID   map[uint16]*NodeType
	byName map[string]*NodeType
}

// DefaultRegistry is shared by every parser that does not bring its own.
var DefaultRegistry = NewRegistry()

// NewRegistry returns a registry holding only ErrorType.
func NewRegistry() *Registry {
	return &Registry{
		byID:   map[uint16]*NodeType{ErrorTypeID: ErrorType},
		byName: map[string]*NodeType{ErrorType.Name: ErrorType},
	}
}

// Get returns the type interned for id, or nil.
func (r *Registry) Get(id uint16) *NodeType {
	r.mu.RLock()
	t := r.byID[id]
	r.mu.RUnlock()
	return t
}

// Intern returns the type for id, creating it on first use. Error ids always
// map to ErrorType. The first name seen for an id wins.
func (r *Registry) Intern(id uint16, name string, isError bool) *NodeType {
	if isError || id == ErrorTypeID {
		return ErrorType
	}
	if t := r.Get(id); t != nil {
		return t
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.byID[id]; ok {
		return t
	}
	t := &NodeType{ID: id, Name: name}
	r.byID[id] = t
	if _, taken := r.byName[name]; !taken {
		r.byName[name] = t
	}
	return t
}

// Lookup returns the first type interned under name, or nil.
func (r *Registry) Lookup(name string) *NodeType {
	r.mu.RLock()
	t := r.byName[name]
	r.mu.RUnlock()
	return t
}

// Len returns the number of interned types, ErrorType included.
func (r *Registry) Len() int {
	r.mu.RLock()
	n := len(r.byID)
	r.mu.RUnlock()
	return n
}
