package graph

import (
	"github.com/hoistjs/hoist/internal/ast"
)

// The runtime module always has this index
const RuntimeSourceIndex = uint32(0)

// All modules of one build, indexed by source index. The table is owned by
// the build and retained by the caller as the previous state for a hot
// rebuild.
type ModuleTable struct {
	Modules []Module

	// Resolved path (or external specifier) to source index. A path never
	// appears twice and an index is never reused within a build.
	Visited map[string]uint32

	EntryPoints []uint32
}

func NewModuleTable() *ModuleTable {
	return &ModuleTable{Visited: make(map[string]uint32)}
}

// Returns the existing index for "key" or allocates a new empty slot for it
func (t *ModuleTable) Allocate(key string) (sourceIndex uint32, isNew bool) {
	if index, ok := t.Visited[key]; ok {
		return index, false
	}
	sourceIndex = uint32(len(t.Modules))
	t.Modules = append(t.Modules, Module{})
	t.Visited[key] = sourceIndex
	return sourceIndex, true
}

func (t *ModuleTable) Normal(sourceIndex uint32) (*NormalRepr, bool) {
	if sourceIndex >= uint32(len(t.Modules)) {
		return nil, false
	}
	return t.Modules[sourceIndex].Normal()
}

// Follows a resolved import record to the module it targets
func (t *ModuleTable) Target(record *ast.ImportRecord) (*Module, bool) {
	if !record.SourceIndex.IsValid() {
		return nil, false
	}
	index := record.SourceIndex.GetIndex()
	if index >= uint32(len(t.Modules)) {
		return nil, false
	}
	return &t.Modules[index], true
}

// Makes a shallow copy that can be modified without changing this table.
// Module values are copied, but the trees they point to are shared.
func (t *ModuleTable) Clone() *ModuleTable {
	clone := &ModuleTable{
		Modules:     append([]Module(nil), t.Modules...),
		Visited:     make(map[string]uint32, len(t.Visited)),
		EntryPoints: append([]uint32(nil), t.EntryPoints...),
	}
	for key, index := range t.Visited {
		clone.Visited[key] = index
	}
	return clone
}
