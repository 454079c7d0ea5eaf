package graph

import (
	"github.com/hoistjs/hoist/internal/ast"
	"github.com/hoistjs/hoist/internal/helpers"
)

type WrapKind uint8

const (
	WrapNone WrapKind = iota

	// The module will be bundled CommonJS-style like this:
	//
	//   // foo.js
	//   var require_foo = __commonJS((exports, module) => {
	//     exports.foo = 123;
	//   });
	//
	//   // bar.js
	//   var foo = flag ? require_foo() : null;
	//
	WrapCJS
)

// The runtime helpers a module needs after finalization
type RuntimeHelpers uint8

const (
	HelperCommonJS RuntimeHelpers = 1 << iota
	HelperToESM
	HelperToCommonJS
	HelperExport
	HelperReExport
	HelperImport
)

func (h RuntimeHelpers) Has(helper RuntimeHelpers) bool {
	return (h & helper) != 0
}

var helperNames = []struct {
	helper RuntimeHelpers
	name   string
}{
	{HelperCommonJS, "__commonJS"},
	{HelperToESM, "__toESM"},
	{HelperToCommonJS, "__toCommonJS"},
	{HelperExport, "__export"},
	{HelperReExport, "__reExport"},
	{HelperImport, "__import"},
}

func (h RuntimeHelpers) Names() []string {
	var names []string
	for _, entry := range helperNames {
		if h.Has(entry.helper) {
			names = append(names, entry.name)
		}
	}
	return names
}

// Link results for one module. This is recomputed by every link pass, so it
// never needs to survive into the next build.
type LinkingMetadata struct {
	// This includes both named exports and re-exports. Re-exports come from
	// other modules and are the result of resolving "export * from" statements.
	ResolvedExports map[string]ExportData

	// Never iterate over "ResolvedExports" directly. Instead, iterate over this
	// array. It is sorted, which avoids non-determinism due to random map
	// iteration order, and it excludes ambiguous names.
	SortedExportAliases []string

	// Records of "export * from" statements whose target is CommonJS or
	// external. Names that don't resolve statically are looked up on the
	// namespace object at run time.
	DynamicExportStars []uint32

	// Which top-level statements survived tree shaking, by statement index
	StmtIsIncluded helpers.BitSet

	// Which entry points can reach this module
	EntryBits helpers.BitSet

	IsIncluded   bool
	IsEntryPoint bool

	// The namespace object must be materialized
	NeedsExportsObject bool

	Wrap    WrapKind
	Helpers RuntimeHelpers

	// For entry points whose exports are accessed through a namespace alias,
	// a local copy is emitted before the export clause. Keyed by export alias.
	ExportCopies map[string]ast.Ref
}

func (meta *LinkingMetadata) HasDynamicExports() bool {
	return len(meta.DynamicExportStars) > 0
}

type ExportData struct {
	Ref ast.Ref

	// This is the module that the named export above came from. This will be
	// different from the module that contains this object if this is a
	// re-export.
	SourceIndex uint32

	// Set when two different "export * from" statements provide this name
	IsAmbiguous bool
}
