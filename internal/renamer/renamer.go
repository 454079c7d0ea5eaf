package renamer

// Flattened output puts the top-level bindings of every module into one
// scope, so each representative symbol gets a name that no other
// representative uses. Names are handed out in execution order: modules in
// chunk order, then statements in source order. A name that is taken gets a
// numeric suffix starting at 2. Nested bindings are only renamed when a new
// top-level name would be captured by them.

import (
	"sort"
	"strconv"

	"github.com/hoistjs/hoist/internal/ast"
	"github.com/hoistjs/hoist/internal/graph"
	"github.com/tdewolff/parse/v2/js"
)

// Names that would change meaning if a top-level binding took them
var strictModeReservedWords = []string{
	"implements",
	"interface",
	"let",
	"package",
	"private",
	"protected",
	"public",
	"static",
	"yield",
	"await",
	"arguments",
	"eval",
}

func ComputeReservedNames(table *graph.ModuleTable, symbols *ast.SymbolMap) map[string]uint32 {
	names := make(map[string]uint32)

	// All keywords and strict mode reserved words are reserved names
	for k := range js.Keywords {
		names[k] = 1
	}
	for _, k := range strictModeReservedWords {
		names[k] = 1
	}

	// The CommonJS closure parameters and the app registry
	names["require"] = 1
	names["module"] = 1
	names["exports"] = 1

	// All unbound symbols must be reserved names
	for sourceIndex := range table.Modules {
		if _, ok := table.Modules[sourceIndex].Normal(); !ok {
			continue
		}
		for _, symbol := range symbols.Outer[sourceIndex] {
			if symbol.Kind == ast.SymbolUnbound || symbol.MustNotBeRenamed {
				names[symbol.OriginalName] = 1
			}
		}
	}

	return names
}

type Renamer struct {
	symbols *ast.SymbolMap
	root    numberScope
}

func NewRenamer(symbols *ast.SymbolMap, reservedNames map[string]uint32) *Renamer {
	return &Renamer{
		symbols: symbols,
		root:    numberScope{nameCounts: reservedNames},
	}
}

func (r *Renamer) NameForSymbol(ref ast.Ref) string {
	return r.symbols.NameForSymbol(ref)
}

func (r *Renamer) AddTopLevelSymbol(ref ast.Ref) error {
	if !ref.IsValid() {
		return nil
	}
	ref = r.symbols.Follow(ref)

	// Don't rename the same symbol more than once
	if _, ok := r.symbols.CanonicalName(ref); ok {
		return nil
	}

	// Unbound symbols and pinned names keep the name they came with
	symbol := r.symbols.Get(ref)
	if symbol.Kind == ast.SymbolUnbound || symbol.MustNotBeRenamed {
		return nil
	}

	// Bindings that are read through a namespace print as a property access
	// and never declare anything
	if symbol.NamespaceAlias != nil || symbol.ImportIsMissing {
		return nil
	}

	return r.symbols.AssignCanonicalName(ref, r.root.findUnusedName(symbol.OriginalName))
}

// AssignTopLevelNames names the top-level bindings of the included modules of
// one chunk. Chunks must be passed in order so that names stay stable across
// identical builds.
func (r *Renamer) AssignTopLevelNames(table *graph.ModuleTable, modules []uint32) error {
	for _, sourceIndex := range modules {
		repr, ok := table.Normal(sourceIndex)
		if !ok {
			continue
		}

		// The body of a wrapped module lives in its own closure, so only the
		// wrapper itself is a top-level binding
		if repr.Meta.Wrap == graph.WrapCJS {
			if err := r.AddTopLevelSymbol(repr.WrapperRef); err != nil {
				return err
			}
			continue
		}

		for stmtIndex, stmt := range repr.Stmts {
			if !repr.Meta.StmtIsIncluded.HasBit(uint(stmtIndex)) {
				continue
			}
			for _, ref := range stmt.DeclaredSymbols {
				if err := r.AddTopLevelSymbol(ref); err != nil {
					return err
				}
			}
			for _, ref := range stmt.ReferencedSymbols {
				if err := r.AddTopLevelSymbol(ref); err != nil {
					return err
				}
			}
		}

		// Local copies of entry exports are declared right before the final
		// export clause
		aliases := make([]string, 0, len(repr.Meta.ExportCopies))
		for alias := range repr.Meta.ExportCopies {
			aliases = append(aliases, alias)
		}
		sort.Strings(aliases)
		for _, alias := range aliases {
			if err := r.AddTopLevelSymbol(repr.Meta.ExportCopies[alias]); err != nil {
				return err
			}
		}
	}
	return nil
}

// TopLevelNames returns every name handed out so far
func (r *Renamer) TopLevelNames() map[string]bool {
	names := make(map[string]bool)
	for _, name := range r.symbols.CanonicalNames() {
		names[name] = true
	}
	return names
}

// AssignNestedNames renames the nested bindings of one module that would
// capture a reference to a top-level name. It only touches the module's own
// tree, so modules can be processed in parallel once every top-level name has
// been assigned.
func AssignNestedNames(symbols *ast.SymbolMap, topLevelNames map[string]bool, sourceIndex uint32, repr *graph.NormalRepr) {
	unsafe := make(map[string]bool, len(topLevelNames))
	for name := range topLevelNames {
		unsafe[name] = true
	}

	// A binding keeps its name when the module declared it with that name.
	// Nested bindings of the same name already shadowed it in the source.
	for innerIndex, v := range repr.Vars {
		if v == nil {
			continue
		}
		ref := ast.Ref{SourceIndex: sourceIndex, InnerIndex: uint32(innerIndex)}
		if name, ok := symbols.CanonicalName(ref); ok && name == symbols.Get(ref).OriginalName && symbols.Follow(ref) == ref {
			delete(unsafe, name)
		}
	}

	taken := make(map[string]bool, len(repr.IdentifierNames)+len(unsafe))
	for name := range repr.IdentifierNames {
		taken[name] = true
	}
	for name := range unsafe {
		taken[name] = true
	}

	renamer := &nestedRenamer{unsafe: unsafe, taken: taken, renamed: make(map[*js.Var]bool)}

	// The body of a wrapped module is nested inside its closure
	if repr.Meta.Wrap == graph.WrapCJS {
		renamer.renameScope(&repr.Tree.BlockStmt.Scope)
	}
	for stmtIndex, stmt := range repr.Tree.BlockStmt.List {
		if stmtIndex < len(repr.Stmts) && !repr.Meta.StmtIsIncluded.HasBit(uint(stmtIndex)) {
			continue
		}
		js.Walk(renamer, stmt)
	}
}

// AvoidNames renames every binding of a module that keeps its own scope in
// the output, top-level ones included, whose name is in "names". Generated
// code inside the module refers to "names" and must not be captured.
func AvoidNames(repr *graph.NormalRepr, names map[string]bool) {
	taken := make(map[string]bool, len(repr.IdentifierNames)+len(names))
	for name := range repr.IdentifierNames {
		taken[name] = true
	}
	for name := range names {
		taken[name] = true
	}
	renamer := &nestedRenamer{unsafe: names, taken: taken, renamed: make(map[*js.Var]bool)}
	js.Walk(renamer, &repr.Tree.BlockStmt)
}

type nestedRenamer struct {
	unsafe  map[string]bool
	taken   map[string]bool
	renamed map[*js.Var]bool
}

func (r *nestedRenamer) Enter(n js.INode) js.IVisitor {
	switch n := n.(type) {
	case *js.BlockStmt:
		r.renameScope(&n.Scope)
	case *js.SwitchStmt:
		r.renameScope(&n.Scope)
	}
	return r
}

func (r *nestedRenamer) Exit(js.INode) {}

func (r *nestedRenamer) renameScope(scope *js.Scope) {
	for _, v := range scope.Declared {
		if r.renamed[v] || !r.unsafe[string(v.Data)] {
			continue
		}
		r.renamed[v] = true
		prefix := string(v.Data)
		for tries := 2; ; tries++ {
			name := prefix + strconv.Itoa(tries)
			if !r.taken[name] {
				r.taken[name] = true
				v.Data = []byte(name)
				break
			}
		}
	}
}

type numberScope struct {
	// This is used as a set of used names in this scope. This also maps the name
	// to the number of times the name has experienced a collision. When a name
	// collides with an already-used name, we need to rename it. This is done by
	// incrementing a number at the end until the name is unused. We save the
	// count here so that subsequent collisions can start counting from where the
	// previous collision ended instead of having to start counting from 1.
	nameCounts map[string]uint32
}

func (s *numberScope) findUnusedName(name string) string {
	if _, ok := s.nameCounts[name]; ok {
		// To avoid O(n^2) behavior, the number must start off being the number
		// that we used last time there was a collision with this name
		tries := s.nameCounts[name]
		prefix := name

		// Keep incrementing the number until the name is unused
		for {
			tries++
			name = prefix + strconv.Itoa(int(tries))
			if _, ok := s.nameCounts[name]; !ok {
				break
			}
		}
		s.nameCounts[prefix] = tries
	}

	// Each name starts off with a count of 1 so that the first collision with
	// "name" is called "name2"
	s.nameCounts[name] = 1
	return name
}
