// Package resolver implements the global symbol namespace used during a
// link: insertion with binding-precedence rules, per-object local scoping,
// and finalization into a fully resolved symbol table or an
// UnresolvedSymbol error.
package resolver

import (
	"fmt"
	"sort"

	"github.com/smoftools/smof/internal/errs"
	"github.com/smoftools/smof/internal/objfmt"
)

// Definition is a resolved symbol: the object that defines it, and its
// location and attributes within that object.
type Definition struct {
	Name           string
	ObjectID       int
	ObjectName     string
	Section        uint16
	Value          uint32
	Size           uint32
	Binding        objfmt.SymbolBinding
	Type           objfmt.SymbolType
	insertionOrder int
}

// Resolver accumulates symbol definitions across multiple objects during a
// single link. It is single-owner, not shared across links.
type Resolver struct {
	global map[string]*Definition
	local  map[int]map[string]*Definition // per-object local symbols
	order  []string                       // insertion order of global names, for deterministic diagnostics
	seq    int

	pending map[string][]pendingRef // symbols referenced as undefined, by name
}

type pendingRef struct {
	objectID   int
	objectName string
}

// New creates an empty Resolver.
func New() *Resolver {
	return &Resolver{
		global:  make(map[string]*Definition),
		local:   make(map[int]map[string]*Definition),
		pending: make(map[string][]pendingRef),
	}
}

// action is the outcome of applying the precedence table to a candidate
// insertion against an existing global definition.
type action int

const (
	actionInsert action = iota
	actionKeep
	actionReplace
	actionMultiplyDefined
)

// precedence implements the binding-precedence matrix from the format
// specification as a direct table-driven translation: rows are the
// existing binding, columns the incoming binding.
func precedence(old, new objfmt.SymbolBinding) action {
	switch old {
	case objfmt.BindWeak:
		switch new {
		case objfmt.BindWeak:
			return actionKeep
		case objfmt.BindGlobal, objfmt.BindExport:
			return actionReplace
		}
	case objfmt.BindGlobal:
		switch new {
		case objfmt.BindWeak:
			return actionKeep
		case objfmt.BindGlobal:
			return actionMultiplyDefined
		case objfmt.BindExport:
			return actionReplace
		}
	case objfmt.BindExport:
		switch new {
		case objfmt.BindWeak:
			return actionKeep
		case objfmt.BindGlobal, objfmt.BindExport:
			return actionMultiplyDefined
		}
	}
	return actionInsert
}

// Insert offers a definition for name from objectID/objectName. LOCAL
// symbols are recorded in a per-object scope and never collide with any
// other object's symbols (including another object's LOCAL symbol of the
// same name). Undefined symbols (sym.IsUndefined()) are recorded as
// pending references, resolved at Finalize.
func (r *Resolver) Insert(objectID int, objectName string, sym objfmt.Symbol) error {
	if sym.Binding == objfmt.BindLocal {
		scope, ok := r.local[objectID]
		if !ok {
			scope = make(map[string]*Definition)
			r.local[objectID] = scope
		}
		scope[sym.Name] = &Definition{
			Name: sym.Name, ObjectID: objectID, ObjectName: objectName,
			Section: sym.Section, Value: sym.Value, Size: sym.Size,
			Binding: sym.Binding, Type: sym.Type,
		}
		return nil
	}

	if sym.IsUndefined() {
		r.pending[sym.Name] = append(r.pending[sym.Name], pendingRef{objectID, objectName})
		return nil
	}

	existing, ok := r.global[sym.Name]
	if !ok {
		r.insertGlobal(objectID, objectName, sym)
		return nil
	}

	switch precedence(existing.Binding, sym.Binding) {
	case actionInsert, actionReplace:
		r.insertGlobal(objectID, objectName, sym)
	case actionKeep:
		// nothing to do
	case actionMultiplyDefined:
		return errs.New(errs.MultiplyDefined,
			fmt.Sprintf("symbol %q defined in both %q and %q", sym.Name, existing.ObjectName, objectName), nil)
	}
	return nil
}

func (r *Resolver) insertGlobal(objectID int, objectName string, sym objfmt.Symbol) {
	if _, existed := r.global[sym.Name]; !existed {
		r.order = append(r.order, sym.Name)
	}
	r.seq++
	r.global[sym.Name] = &Definition{
		Name: sym.Name, ObjectID: objectID, ObjectName: objectName,
		Section: sym.Section, Value: sym.Value, Size: sym.Size,
		Binding: sym.Binding, Type: sym.Type, insertionOrder: r.seq,
	}
}

// Lookup resolves name first against objectID's local scope, then the
// global namespace.
func (r *Resolver) Lookup(objectID int, name string) (*Definition, bool) {
	if scope, ok := r.local[objectID]; ok {
		if def, ok := scope[name]; ok {
			return def, true
		}
	}
	def, ok := r.global[name]
	return def, ok
}

// LookupGlobal resolves name against the global namespace only, skipping
// any object's local scope. Used for link-wide special symbols such as
// "_start" where a same-named LOCAL symbol in an unrelated object must
// not shadow the answer.
func (r *Resolver) LookupGlobal(name string) (*Definition, bool) {
	def, ok := r.global[name]
	return def, ok
}

// Definitions returns all global definitions in insertion order, for
// deterministic diagnostics and iteration.
func (r *Resolver) Definitions() []*Definition {
	out := make([]*Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.global[name])
	}
	return out
}

// Finalize checks that every pending undefined reference has since been
// satisfied by a global definition. It returns UnresolvedSymbol listing
// every name that remains undefined, sorted for determinism.
func (r *Resolver) Finalize() error {
	var unresolved []string
	for name := range r.pending {
		if _, ok := r.global[name]; !ok {
			unresolved = append(unresolved, name)
		}
	}
	if len(unresolved) == 0 {
		return nil
	}
	sort.Strings(unresolved)
	return errs.New(errs.UnresolvedSymbol, fmt.Sprintf("undefined symbols: %v", unresolved), nil)
}
