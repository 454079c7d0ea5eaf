package linker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hoistjs/hoist/internal/ast"
	"github.com/hoistjs/hoist/internal/graph"
)

// Set this to true to also print the canonical names in link state dumps.
// Make sure this is always set back to false before committing.
const debugVerboseLinkState = false

// DumpLinkState renders the linking metadata of every included module, one
// block per module in source index order. It is used by tests and when
// debugging the linker by hand.
func DumpLinkState(table *graph.ModuleTable, symbols *ast.SymbolMap) string {
	sb := strings.Builder{}
	for sourceIndex := range table.Modules {
		module := &table.Modules[sourceIndex]
		repr, ok := module.Normal()
		if !ok || !repr.Meta.IsIncluded || uint32(sourceIndex) == graph.RuntimeSourceIndex {
			continue
		}

		sb.WriteString(fmt.Sprintf("%s:\n", module.Source.PrettyPath))
		if repr.Meta.Wrap == graph.WrapCJS {
			sb.WriteString("  wrap: cjs\n")
		}
		if names := repr.Meta.Helpers.Names(); len(names) > 0 {
			sb.WriteString(fmt.Sprintf("  helpers: %s\n", strings.Join(names, ", ")))
		}
		if repr.Meta.NeedsExportsObject {
			sb.WriteString("  namespace: yes\n")
		}

		for _, alias := range repr.Meta.SortedExportAliases {
			data := repr.Meta.ResolvedExports[alias]
			sb.WriteString(fmt.Sprintf("  export %s -> %s\n", alias, describeRef(table, symbols, data.Ref)))
		}

		var imports []string
		for ref, named := range repr.NamedImports {
			if named.IsReExportOnly {
				continue
			}
			imports = append(imports, fmt.Sprintf("  import %s -> %s\n", named.Alias, describeRef(table, symbols, ref)))
		}
		sort.Strings(imports)
		for _, line := range imports {
			sb.WriteString(line)
		}

		var included []string
		for stmtIndex := range repr.Stmts {
			if repr.Meta.StmtIsIncluded.HasBit(uint(stmtIndex)) {
				if uint32(stmtIndex) == repr.NSExportStmtIndex {
					included = append(included, "ns")
				} else {
					included = append(included, fmt.Sprint(stmtIndex))
				}
			}
		}
		sb.WriteString(fmt.Sprintf("  stmts: [%s]\n", strings.Join(included, " ")))
	}

	if debugVerboseLinkState {
		sb.WriteString(fmt.Sprintf("names: %s\n", strings.Join(symbols.CanonicalNames(), " ")))
	}
	return sb.String()
}

// Describes where a symbol ends up after linking
func describeRef(table *graph.ModuleTable, symbols *ast.SymbolMap, ref ast.Ref) string {
	root := symbols.Follow(ref)
	symbol := symbols.Get(root)
	if symbol.ImportIsMissing {
		return "missing"
	}
	where := table.Modules[root.SourceIndex].Source.PrettyPath
	if alias := symbol.NamespaceAlias; alias != nil {
		return fmt.Sprintf("%s.%s (%s)", symbols.Get(alias.NamespaceRef).OriginalName, alias.Alias, where)
	}
	return fmt.Sprintf("%s (%s)", symbol.OriginalName, where)
}
