package linker

import (
	"github.com/hoistjs/hoist/internal/ast"
	"github.com/hoistjs/hoist/internal/config"
	"github.com/hoistjs/hoist/internal/graph"
)

func (c *linkerContext) treeShaking() {
	if c.options.OutputFormat == config.FormatApp {
		c.includeEverythingReachable()
		return
	}

	for _, entryPoint := range c.table.EntryPoints {
		repr, ok := c.table.Normal(entryPoint)
		if !ok {
			continue
		}

		// The entry point's own statements are always evaluated, except for
		// bare imports of modules declared to have no side effects
		c.includeModule(entryPoint)
		for stmtIndex := range repr.Stmts {
			if uint32(stmtIndex) == repr.NSExportStmtIndex || c.isDroppableBareImport(repr, uint32(stmtIndex)) {
				continue
			}
			c.includeStmt(entryPoint, uint32(stmtIndex))
		}

		c.includeEntryExports(entryPoint, repr)
	}
}

func (c *linkerContext) isDroppableBareImport(repr *graph.NormalRepr, stmtIndex uint32) bool {
	stmt := &repr.Stmts[stmtIndex]
	if len(stmt.ImportRecordIndices) != 1 {
		return false
	}
	record := &repr.ImportRecords[stmt.ImportRecordIndices[0]]
	if record.Kind != ast.ImportStmt || !record.Flags.Has(ast.WasOriginallyBareImport) {
		return false
	}
	target, ok := c.table.Target(record)
	return ok && !target.SideEffects.HasSideEffects()
}

// The exports of an entry point are observable from the outside, so they
// survive tree shaking in every format that exposes them
func (c *linkerContext) includeEntryExports(entryPoint uint32, repr *graph.NormalRepr) {
	if repr.Meta.Wrap == graph.WrapCJS {
		return
	}

	switch c.options.OutputFormat {
	case config.FormatESModule:
		for _, alias := range repr.Meta.SortedExportAliases {
			ref := repr.Meta.ResolvedExports[alias].Ref
			c.includeSymbol(ref)

			// "export { x }" can't name a property access, so a local copy is
			// declared for exports that are bound through a namespace
			root := c.symbols.Follow(ref)
			symbol := c.symbols.Get(root)
			if symbol.NamespaceAlias != nil || symbol.ImportIsMissing {
				if repr.Meta.ExportCopies == nil {
					repr.Meta.ExportCopies = make(map[string]ast.Ref)
				}
				repr.Meta.ExportCopies[alias] = c.symbols.NewSymbol(entryPoint, ast.Symbol{
					OriginalName: c.symbols.Get(ref).OriginalName,
					Kind:         ast.SymbolOther,
				})
			}
		}
		for _, recordIndex := range repr.Meta.DynamicExportStars {
			c.includeRecord(entryPoint, recordIndex)
		}

	case config.FormatCommonJS:
		if len(repr.Meta.SortedExportAliases) > 0 || repr.Meta.HasDynamicExports() {
			c.includeSymbol(repr.ExportsRef)
			c.useHelper(entryPoint, graph.HelperToCommonJS)
		}

	case config.FormatIIFE:
		if c.options.GlobalName != "" {
			c.includeSymbol(repr.ExportsRef)
		}
	}
}

func (c *linkerContext) includeEverythingReachable() {
	if repr, ok := c.table.Normal(graph.RuntimeSourceIndex); ok {
		repr.Meta.IsIncluded = true
		includeAllStmts(repr)
	}

	var visit func(uint32)
	visit = func(sourceIndex uint32) {
		repr, ok := c.table.Normal(sourceIndex)
		if !ok || repr.Meta.IsIncluded {
			return
		}
		repr.Meta.IsIncluded = true
		includeAllStmts(repr)
		for _, record := range repr.ImportRecords {
			if record.SourceIndex.IsValid() {
				visit(record.SourceIndex.GetIndex())
			}
		}
	}
	for _, entryPoint := range c.table.EntryPoints {
		visit(entryPoint)
	}
}

// Modules of the app format keep their own scope and export through the
// "exports" object of their closure, so no namespace statement is needed
func includeAllStmts(repr *graph.NormalRepr) {
	for stmtIndex := range repr.Stmts {
		if uint32(stmtIndex) != repr.NSExportStmtIndex {
			repr.Meta.StmtIsIncluded.SetBit(uint(stmtIndex))
		}
	}
}

func (c *linkerContext) includeModule(sourceIndex uint32) {
	repr, ok := c.table.Normal(sourceIndex)
	if !ok || repr.Meta.IsIncluded {
		return
	}
	repr.Meta.IsIncluded = true
	module := &c.table.Modules[sourceIndex]

	if repr.Meta.Wrap == graph.WrapCJS {
		c.useHelper(sourceIndex, graph.HelperCommonJS)
	}

	// Wrapped modules run as a whole when required, and modules without tree
	// shaking keep everything
	keepAll := repr.Meta.Wrap == graph.WrapCJS || module.SideEffects.Kind == graph.SideEffectsNoTreeshake
	hasSideEffects := module.SideEffects.HasSideEffects()

	for stmtIndex, stmt := range repr.Stmts {
		if uint32(stmtIndex) == repr.NSExportStmtIndex {
			continue
		}
		if keepAll || (hasSideEffects && stmt.HasSideEffects) {
			c.includeStmt(sourceIndex, uint32(stmtIndex))
		}
	}

	// Importing a module runs it, so imported modules with side effects are
	// kept even when none of their exports are used
	for recordIndex := range repr.ImportRecords {
		record := &repr.ImportRecords[recordIndex]
		if record.Kind != ast.ImportStmt {
			continue
		}
		target, ok := c.table.Target(record)
		if !ok || !target.SideEffects.HasSideEffects() {
			continue
		}
		targetRepr, isNormal := target.Normal()
		if isNormal && targetRepr.ExportsKind != graph.ExportsCommonJS {
			c.includeModule(record.SourceIndex.GetIndex())
			continue
		}

		// The statement that imports a CommonJS or external module carries the
		// "require_foo()" call or the external import itself
		for stmtIndex, stmt := range repr.Stmts {
			for _, index := range stmt.ImportRecordIndices {
				if index == uint32(recordIndex) {
					c.includeStmt(sourceIndex, uint32(stmtIndex))
				}
			}
		}
	}
}

func (c *linkerContext) includeStmt(sourceIndex uint32, stmtIndex uint32) {
	repr, _ := c.table.Normal(sourceIndex)
	if repr.Meta.StmtIsIncluded.HasBit(uint(stmtIndex)) {
		return
	}
	repr.Meta.StmtIsIncluded.SetBit(uint(stmtIndex))
	c.includeModule(sourceIndex)

	if stmtIndex == repr.NSExportStmtIndex {
		c.includeNamespace(sourceIndex)
		return
	}

	stmt := &repr.Stmts[stmtIndex]
	for _, ref := range stmt.ReferencedSymbols {
		c.includeSymbol(ref)
	}
	for _, recordIndex := range stmt.ImportRecordIndices {
		c.includeRecord(sourceIndex, recordIndex)
	}
}

func (c *linkerContext) includeRecord(sourceIndex uint32, recordIndex uint32) {
	repr, _ := c.table.Normal(sourceIndex)
	record := &repr.ImportRecords[recordIndex]
	target, ok := c.table.Target(record)
	if !ok {
		return
	}
	targetIndex := record.SourceIndex.GetIndex()
	targetRepr, isNormal := target.Normal()
	isCommonJS := isNormal && targetRepr.ExportsKind == graph.ExportsCommonJS

	switch record.Kind {
	case ast.ImportStmt:
		if !isNormal {
			if c.options.OutputFormat != config.FormatESModule {
				record.Flags |= ast.WrapWithToESM
				c.useHelper(sourceIndex, graph.HelperToESM)
			}
			return
		}
		if isCommonJS {
			if targetRepr.ESModuleFlag != graph.ESModuleFlagTrue {
				record.Flags |= ast.WrapWithToESM
				c.useHelper(sourceIndex, graph.HelperToESM)
			}
			c.includeModule(targetIndex)
		} else if target.SideEffects.HasSideEffects() {
			// Used bindings pull in their own declarations, so a module without
			// side effects is only kept if something it exports is used
			c.includeModule(targetIndex)
		}

	case ast.ImportRequire:
		if !isNormal {
			return
		}
		c.includeModule(targetIndex)
		if !isCommonJS {
			c.includeSymbol(targetRepr.ExportsRef)
			c.useHelper(sourceIndex, graph.HelperToCommonJS)
		}

	case ast.ImportDynamic:
		if !isNormal {
			return
		}
		c.useHelper(sourceIndex, graph.HelperImport)
		c.includeModule(targetIndex)
		if isCommonJS {
			if targetRepr.ESModuleFlag != graph.ESModuleFlagTrue {
				record.Flags |= ast.WrapWithToESM
				c.useHelper(sourceIndex, graph.HelperToESM)
			}
		} else {
			c.includeSymbol(targetRepr.ExportsRef)
		}
	}
}

// Materializing a namespace object keeps every export of the module alive
func (c *linkerContext) includeNamespace(sourceIndex uint32) {
	repr, _ := c.table.Normal(sourceIndex)
	if repr.Meta.NeedsExportsObject {
		return
	}
	repr.Meta.NeedsExportsObject = true

	if len(repr.Meta.SortedExportAliases) > 0 {
		c.useHelper(sourceIndex, graph.HelperExport)
	}
	for _, alias := range repr.Meta.SortedExportAliases {
		c.includeSymbol(repr.Meta.ResolvedExports[alias].Ref)
	}

	for _, recordIndex := range repr.Meta.DynamicExportStars {
		record := &repr.ImportRecords[recordIndex]
		c.useHelper(sourceIndex, graph.HelperReExport)
		target, ok := c.table.Target(record)
		if !ok {
			continue
		}
		if targetRepr, isNormal := target.Normal(); isNormal && targetRepr.ExportsKind != graph.ExportsCommonJS {
			c.includeSymbol(targetRepr.ExportsRef)
			continue
		}

		// The namespace of a CommonJS or external target is the "import_foo"
		// binding of the export star statement
		c.markNamespaceReferenced(record.NamespaceRef)
		c.includeSymbol(record.NamespaceRef)
	}
}

func (c *linkerContext) includeSymbol(ref ast.Ref) {
	if !ref.IsValid() {
		return
	}
	c.includeDeclarations(ref)

	root := c.symbols.Follow(ref)
	if root != ref {
		c.includeDeclarations(root)
	}
	if alias := c.symbols.Get(root).NamespaceAlias; alias != nil {
		c.markNamespaceReferenced(alias.NamespaceRef)
		c.includeSymbol(alias.NamespaceRef)
	} else if c.symbols.Get(root).Kind == ast.SymbolImportNamespace {
		c.markNamespaceReferenced(root)
	}
}

func (c *linkerContext) includeDeclarations(ref ast.Ref) {
	repr, ok := c.table.Normal(ref.SourceIndex)
	if !ok {
		return
	}
	if ref == repr.WrapperRef {
		c.includeModule(ref.SourceIndex)
		return
	}
	for _, stmtIndex := range repr.TopLevelSymbolToStmts[ref] {
		c.includeStmt(ref.SourceIndex, stmtIndex)
	}
}

func (c *linkerContext) markNamespaceReferenced(nsRef ast.Ref) {
	repr, ok := c.table.Normal(nsRef.SourceIndex)
	if !ok {
		return
	}
	for i := range repr.ImportRecords {
		if repr.ImportRecords[i].NamespaceRef == nsRef {
			repr.ImportRecords[i].Flags |= ast.NamespaceIsReferenced
		}
	}
}

// Helpers are exports of the runtime. Using one includes its declaration and
// whatever the declaration depends on.
func (c *linkerContext) useHelper(sourceIndex uint32, helper graph.RuntimeHelpers) {
	repr, ok := c.table.Normal(sourceIndex)
	if !ok || repr.Meta.Helpers.Has(helper) {
		return
	}
	repr.Meta.Helpers |= helper
	c.includeSymbol(c.runtimeHelperRef(runtimeHelperName(helper)))
}
