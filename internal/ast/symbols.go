package ast

import (
	"errors"
	"fmt"
	"sort"
)

var ErrSymbolCycle = errors.New("cycle in symbol links")
var ErrDuplicateName = errors.New("canonical name already assigned")

// Identifies one binding: the module it belongs to plus the index of the
// binding within that module's symbol list
type Ref struct {
	SourceIndex uint32
	InnerIndex  uint32
}

var InvalidRef = Ref{^uint32(0), ^uint32(0)}

func (ref Ref) IsValid() bool {
	return ref != InvalidRef
}

func (ref Ref) String() string {
	return fmt.Sprintf("%d:%d", ref.SourceIndex, ref.InnerIndex)
}

type SymbolKind uint8

const (
	// A top-level declaration of the module itself
	SymbolOther SymbolKind = iota

	// A binding introduced by an import statement
	SymbolImport

	// The "foo_exports" namespace object of a module
	SymbolNamespace

	// The "require_foo" wrapper of a CommonJS module
	SymbolWrapper

	// The "import_foo" binding for a record that is accessed as a namespace
	SymbolImportNamespace

	// The synthetic binding standing in for an external module
	SymbolFacade

	// A name that is referenced but never declared, such as "window"
	SymbolUnbound
)

// Imports from CommonJS and external modules can't be bound to a symbol at
// link time. References to them are printed as a property access on the
// namespace binding instead, e.g. "import_foo.bar".
type NamespaceAlias struct {
	NamespaceRef Ref
	Alias        string
}

type Symbol struct {
	// This is the name that came from the source. The printed name is the
	// canonical name of the symbol this one links to.
	OriginalName string

	NamespaceAlias *NamespaceAlias

	// Symbols that have been merged form a linked list where the last link is
	// the symbol to use. This link is invalid if it's the last link.
	Link Ref

	Kind SymbolKind

	// The import was not found in the target module. References print as
	// "void 0".
	ImportIsMissing bool

	// Unbound names and runtime entry points keep their original name
	MustNotBeRenamed bool
}

// The symbol resolution table for one build. It is only ever mutated from one
// goroutine at a time: the loader while ingesting scan results and then the
// linker. Call FollowAll before sharing it with parallel readers.
type SymbolMap struct {
	// This could be represented as a "map[Ref]Symbol" but a two-level array is
	// cheaper and makes it trivial to replace the symbols of one module.
	Outer [][]Symbol

	canonicalNames map[Ref]string
	nameOwners     map[string]Ref
}

func NewSymbolMap(sourceCount int) *SymbolMap {
	return &SymbolMap{
		Outer:          make([][]Symbol, sourceCount),
		canonicalNames: make(map[Ref]string),
		nameOwners:     make(map[string]Ref),
	}
}

func (sm *SymbolMap) Get(ref Ref) *Symbol {
	return &sm.Outer[ref.SourceIndex][ref.InnerIndex]
}

// Replaces the symbols of one module. The loader calls this once per scanned
// module, and again when a hot rebuild re-scans that module in place.
func (sm *SymbolMap) SetModuleSymbols(sourceIndex uint32, symbols []Symbol) {
	for uint32(len(sm.Outer)) <= sourceIndex {
		sm.Outer = append(sm.Outer, nil)
	}
	sm.Outer[sourceIndex] = symbols
}

// Adds a symbol to a module after scanning. This is used for facade symbols
// and for bindings the linker synthesizes.
func (sm *SymbolMap) NewSymbol(sourceIndex uint32, symbol Symbol) Ref {
	for uint32(len(sm.Outer)) <= sourceIndex {
		sm.Outer = append(sm.Outer, nil)
	}
	symbol.Link = InvalidRef
	inner := uint32(len(sm.Outer[sourceIndex]))
	sm.Outer[sourceIndex] = append(sm.Outer[sourceIndex], symbol)
	return Ref{SourceIndex: sourceIndex, InnerIndex: inner}
}

func (sm *SymbolMap) symbolCount() int {
	count := 0
	for _, inner := range sm.Outer {
		count += len(inner)
	}
	return count
}

// Returns the canonical ref that represents the ref for the provided symbol.
// Chains are followed iteratively and compressed so that every symbol on the
// path points directly at the representative afterward. The number of steps
// is bounded by the number of symbols, so a cycle is reported instead of
// looping forever.
func (sm *SymbolMap) FollowChecked(ref Ref) (Ref, error) {
	root := ref
	limit := -1
	for steps := 0; ; steps++ {
		link := sm.Get(root).Link
		if link == InvalidRef {
			break
		}
		if limit == -1 && steps > 64 {
			limit = sm.symbolCount()
		}
		if limit != -1 && steps > limit {
			return InvalidRef, fmt.Errorf("%w: starting at %s", ErrSymbolCycle, ref)
		}
		root = link
	}

	// Only write if needed to avoid concurrent update hazards
	for ref != root {
		symbol := sm.Get(ref)
		next := symbol.Link
		if next != root {
			symbol.Link = root
		}
		ref = next
	}
	return root, nil
}

func (sm *SymbolMap) Follow(ref Ref) Ref {
	root, err := sm.FollowChecked(ref)
	if err != nil {
		panic(err.Error())
	}
	return root
}

// Use this before calling "Follow" from separate goroutines. Once every link
// points directly at its representative, "Follow" never writes.
func (sm *SymbolMap) FollowAll() error {
	for sourceIndex, inner := range sm.Outer {
		for innerIndex := range inner {
			if _, err := sm.FollowChecked(Ref{uint32(sourceIndex), uint32(innerIndex)}); err != nil {
				return err
			}
		}
	}
	return nil
}

// Makes "old" resolve to the same representative as "new". Only the two
// representatives are linked, so merging can never introduce a cycle.
func (sm *SymbolMap) Merge(old Ref, new Ref) (Ref, error) {
	oldRoot, err := sm.FollowChecked(old)
	if err != nil {
		return InvalidRef, err
	}
	newRoot, err := sm.FollowChecked(new)
	if err != nil {
		return InvalidRef, err
	}
	if oldRoot == newRoot {
		return newRoot, nil
	}

	oldSymbol := sm.Get(oldRoot)
	newSymbol := sm.Get(newRoot)
	oldSymbol.Link = newRoot
	if oldSymbol.MustNotBeRenamed {
		newSymbol.MustNotBeRenamed = true
	}
	return newRoot, nil
}

// Records the final display name of a representative. A name may be owned by
// at most one representative per build.
func (sm *SymbolMap) AssignCanonicalName(ref Ref, name string) error {
	ref = sm.Follow(ref)
	if owner, ok := sm.nameOwners[name]; ok && owner != ref {
		return fmt.Errorf("%w: %q is used by both %s and %s", ErrDuplicateName, name, owner, ref)
	}
	if old, ok := sm.canonicalNames[ref]; ok && old != name {
		delete(sm.nameOwners, old)
	}
	sm.canonicalNames[ref] = name
	sm.nameOwners[name] = ref
	return nil
}

func (sm *SymbolMap) CanonicalName(ref Ref) (string, bool) {
	name, ok := sm.canonicalNames[sm.Follow(ref)]
	return name, ok
}

// Returns the canonical name if one was assigned and the original name
// otherwise
func (sm *SymbolMap) NameForSymbol(ref Ref) string {
	ref = sm.Follow(ref)
	if name, ok := sm.canonicalNames[ref]; ok {
		return name
	}
	return sm.Get(ref).OriginalName
}

func (sm *SymbolMap) IsNameTaken(name string) bool {
	_, ok := sm.nameOwners[name]
	return ok
}

// Forgets every canonical name so that a new link pass can assign them again
func (sm *SymbolMap) ResetCanonicalNames() {
	sm.canonicalNames = make(map[Ref]string)
	sm.nameOwners = make(map[string]Ref)
}

// Returns the assigned names sorted by name. Used for debugging and tests.
func (sm *SymbolMap) CanonicalNames() []string {
	names := make([]string, 0, len(sm.nameOwners))
	for name := range sm.nameOwners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Makes a copy that can be mutated without affecting the original. Hot
// rebuilds work on a clone so that a failed rebuild leaves the previous table
// untouched.
func (sm *SymbolMap) Clone() *SymbolMap {
	clone := &SymbolMap{
		Outer:          make([][]Symbol, len(sm.Outer)),
		canonicalNames: make(map[Ref]string, len(sm.canonicalNames)),
		nameOwners:     make(map[string]Ref, len(sm.nameOwners)),
	}
	for i, inner := range sm.Outer {
		clone.Outer[i] = append([]Symbol(nil), inner...)
	}
	for ref, name := range sm.canonicalNames {
		clone.canonicalNames[ref] = name
	}
	for name, ref := range sm.nameOwners {
		clone.nameOwners[name] = ref
	}
	return clone
}
