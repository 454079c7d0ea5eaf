package finalizer

import (
	"context"
	"sort"
	"strings"

	"github.com/hoistjs/hoist/internal/ast"
	"github.com/hoistjs/hoist/internal/config"
	"github.com/hoistjs/hoist/internal/graph"
	"github.com/hoistjs/hoist/internal/helpers"
	"github.com/hoistjs/hoist/internal/linker"
	"github.com/hoistjs/hoist/internal/renamer"
	"github.com/hoistjs/hoist/internal/runtime"
	"github.com/tdewolff/parse/v2/js"
)

// Flatten rewrites the included modules of every chunk so that they can be
// concatenated into one scope. Every top-level name must have been assigned
// already, and "topLevelNames" must hold all of them. A module that is part
// of several chunks is rewritten once and printed the same way in each.
func Flatten(ctx context.Context, args Args, chunks []linker.Chunk, topLevelNames map[string]bool) error {
	args.Timer.Begin("Flatten")
	defer args.Timer.End("Flatten")

	c := newContext(&args)
	var modules []uint32
	seen := make(map[uint32]bool)
	for _, chunk := range chunks {
		for _, sourceIndex := range chunk.Modules {
			if !seen[sourceIndex] {
				seen[sourceIndex] = true
				modules = append(modules, sourceIndex)
			}
		}
	}

	return c.forEachModule(ctx, modules, func(sourceIndex uint32) error {
		repr, ok := c.table.Normal(sourceIndex)
		if !ok {
			return nil
		}
		renamer.AssignNestedNames(c.symbols, topLevelNames, sourceIndex, repr)
		c.flattenModule(sourceIndex, repr)
		return nil
	})
}

func (c *finalizerContext) flattenModule(sourceIndex uint32, repr *graph.NormalRepr) {
	fixer := c.assignFlattenedNames(sourceIndex, repr)
	c.rewriteFlattenedCalls(repr)

	// The body of a CommonJS module keeps its own scope inside the closure
	if repr.Meta.Wrap == graph.WrapCJS {
		body := make([]js.IStmt, 0, len(repr.Tree.BlockStmt.List))
		for stmtIndex, stmt := range repr.Tree.BlockStmt.List {
			if stmtIndex == 0 && isHashbang(stmt) {
				continue
			}
			body = append(body, stmt)
		}
		fixer.fix(body)
		repr.Tree.BlockStmt.List = []js.IStmt{c.commonJSWrapper(repr, body)}
		return
	}

	var stmts []js.IStmt
	if repr.Meta.StmtIsIncluded.HasBit(uint(repr.NSExportStmtIndex)) {
		stmts = c.appendNamespace(stmts, repr)
	}
	for stmtIndex, stmt := range repr.Tree.BlockStmt.List {
		if !repr.Meta.StmtIsIncluded.HasBit(uint(stmtIndex)) {
			continue
		}
		stmts = c.appendFlattenedStmt(stmts, repr, uint32(stmtIndex), stmt)
	}
	fixer.fix(stmts)
	repr.Tree.BlockStmt.List = stmts
}

// Renames the root variables of the module to their canonical names. Imports
// that are read off a namespace become the property access itself.
func (c *finalizerContext) assignFlattenedNames(sourceIndex uint32, repr *graph.NormalRepr) *referenceFixer {
	fixer := &referenceFixer{propertyAccesses: make(map[*js.Var]bool)}
	for innerIndex, v := range repr.Vars {
		if v == nil {
			continue
		}
		ref := ast.Ref{SourceIndex: sourceIndex, InnerIndex: uint32(innerIndex)}
		if c.isPropertyAccess(ref) {
			text := c.exprForRef(ref)
			if text == "void 0" {
				text = "(void 0)"
			}
			v.Data = []byte(text)
			fixer.propertyAccesses[v] = true
			continue
		}
		if name, ok := c.symbols.CanonicalName(ref); ok {
			v.Data = []byte(name)
		}
	}
	return fixer
}

func (c *finalizerContext) appendFlattenedStmt(stmts []js.IStmt, repr *graph.NormalRepr, stmtIndex uint32, stmt js.IStmt) []js.IStmt {
	info := &repr.Stmts[stmtIndex]

	switch s := stmt.(type) {
	case *js.ImportStmt:
		return c.appendImport(stmts, repr, info.ImportRecordIndices[0])

	case *js.ExportStmt:
		if s.Decl == nil {
			// "export {a, b as c}" has nothing left to do once the exports are bound
			if s.Module == nil {
				return stmts
			}
			return c.appendReExport(stmts, repr, info.ImportRecordIndices[0])
		}
		if s.Default {
			return append(stmts, exportDefaultStmt(s.Decl, c.symbols.NameForSymbol(repr.DefaultRef)))
		}
		switch decl := s.Decl.(type) {
		case *js.VarDecl:
			return append(stmts, decl)
		case *js.FuncDecl:
			return append(stmts, decl)
		case *js.ClassDecl:
			return append(stmts, decl)
		}
		return stmts

	case *js.Comment:
		if stmtIndex == 0 && isHashbang(s) {
			return stmts
		}

	case *js.DirectivePrologueStmt:
		// Directives have no effect past the start of the output
		return stmts
	}

	return append(stmts, stmt)
}

// An import of a module in the same chunk disappears entirely. Imports of
// CommonJS and external modules turn into the code that loads them.
func (c *finalizerContext) appendImport(stmts []js.IStmt, repr *graph.NormalRepr, recordIndex uint32) []js.IStmt {
	record := &repr.ImportRecords[recordIndex]
	target, ok := c.table.Target(record)
	if !ok {
		return stmts
	}
	nsName := c.symbols.NameForSymbol(record.NamespaceRef)
	isReferenced := record.Flags.Has(ast.NamespaceIsReferenced)

	if external, ok := target.External(); ok {
		specifier := helpers.QuoteForJS(external.Specifier)
		if c.options.OutputFormat == config.FormatESModule {
			if isReferenced {
				return append(stmts, rawStmt("import * as "+nsName+" from "+specifier))
			}
			return append(stmts, rawStmt("import "+specifier))
		}
		value := "require(" + specifier + ")"
		if !isReferenced {
			return append(stmts, rawStmt(value))
		}
		if record.Flags.Has(ast.WrapWithToESM) {
			value = c.helperName(runtime.ToESM) + "(" + value + ")"
		}
		return append(stmts, varDecl(nsName, rawExpr(value)))
	}

	targetRepr, _ := target.Normal()
	if targetRepr.Meta.Wrap != graph.WrapCJS {
		return stmts
	}
	value := c.symbols.NameForSymbol(targetRepr.WrapperRef) + "()"
	if !isReferenced {
		return append(stmts, rawStmt(value))
	}
	if record.Flags.Has(ast.WrapWithToESM) {
		value = c.helperName(runtime.ToESM) + "(" + value + ")"
	}
	return append(stmts, varDecl(nsName, rawExpr(value)))
}

func (c *finalizerContext) appendReExport(stmts []js.IStmt, repr *graph.NormalRepr, recordIndex uint32) []js.IStmt {
	record := &repr.ImportRecords[recordIndex]
	target, ok := c.table.Target(record)
	if !ok {
		return stmts
	}
	isStar := record.Flags.Has(ast.IsExportStar)

	// The host resolves "export * from" of an external module itself when the
	// entry point is an ES module
	if external, ok := target.External(); ok && isStar && repr.Meta.IsEntryPoint &&
		repr.Meta.Wrap == graph.WrapNone && c.options.OutputFormat == config.FormatESModule {
		stmts = append(stmts, rawStmt("export * from "+helpers.QuoteForJS(external.Specifier)))
		if !record.Flags.Has(ast.NamespaceIsReferenced) {
			return stmts
		}
	}

	stmts = c.appendImport(stmts, repr, recordIndex)
	if !isStar || !repr.Meta.NeedsExportsObject || !isDynamicExportStar(repr, recordIndex) {
		return stmts
	}

	// Names that are only known at run time are copied onto the namespace
	// object after the target has been loaded
	from := c.symbols.NameForSymbol(record.NamespaceRef)
	if targetRepr, ok := target.Normal(); ok && targetRepr.Meta.Wrap != graph.WrapCJS {
		from = c.symbols.NameForSymbol(targetRepr.ExportsRef)
	}
	return append(stmts, rawStmt(c.helperName(runtime.ReExport)+"("+c.symbols.NameForSymbol(repr.ExportsRef)+", "+from+")"))
}

func isDynamicExportStar(repr *graph.NormalRepr, recordIndex uint32) bool {
	for _, index := range repr.Meta.DynamicExportStars {
		if index == recordIndex {
			return true
		}
	}
	return false
}

// Generates the namespace object of a module:
//
//	var foo_exports = {};
//	__export(foo_exports, {
//	    bar: () => bar
//	});
//
// The getters are lazy, so the object can be declared before the bindings
// it exposes.
func (c *finalizerContext) appendNamespace(stmts []js.IStmt, repr *graph.NormalRepr) []js.IStmt {
	exportsName := c.symbols.NameForSymbol(repr.ExportsRef)
	stmts = append(stmts, varDecl(exportsName, rawExpr("{}")))
	if len(repr.Meta.SortedExportAliases) == 0 {
		return stmts
	}

	sb := strings.Builder{}
	sb.WriteString(c.helperName(runtime.Export))
	sb.WriteString("(")
	sb.WriteString(exportsName)
	sb.WriteString(", {")
	for i, alias := range repr.Meta.SortedExportAliases {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("\n    ")
		sb.WriteString(propertyKey(alias))
		sb.WriteString(": () => ")
		sb.WriteString(c.exprForRef(repr.Meta.ResolvedExports[alias].Ref))
	}
	sb.WriteString("\n})")
	return append(stmts, rawStmt(sb.String()))
}

func propertyKey(name string) string {
	if helpers.IsIdentifierName(name) {
		return name
	}
	return helpers.QuoteForJS(name)
}

// Calls of "require()" and "import()" are rewritten in place, wherever they
// are in the tree
func (c *finalizerContext) rewriteFlattenedCalls(repr *graph.NormalRepr) {
	for call, recordIndex := range repr.RequireCalls {
		record := &repr.ImportRecords[recordIndex]
		target, ok := c.table.Target(record)
		if !ok {
			continue
		}
		targetRepr, ok := target.Normal()
		if !ok {
			continue
		}
		if targetRepr.Meta.Wrap == graph.WrapCJS {
			call.X = rawExpr(c.symbols.NameForSymbol(targetRepr.WrapperRef))
			call.Args.List = nil
		} else {
			call.X = rawExpr(c.helperName(runtime.ToCommonJS))
			call.Args.List = []js.Arg{{Value: rawExpr(c.symbols.NameForSymbol(targetRepr.ExportsRef))}}
		}
	}

	for call, recordIndex := range repr.DynamicImportCalls {
		record := &repr.ImportRecords[recordIndex]
		target, ok := c.table.Target(record)
		if !ok {
			continue
		}
		targetRepr, ok := target.Normal()
		if !ok {
			continue
		}
		var value string
		if targetRepr.Meta.Wrap == graph.WrapCJS {
			value = c.symbols.NameForSymbol(targetRepr.WrapperRef) + "()"
			if record.Flags.Has(ast.WrapWithToESM) {
				value = c.helperName(runtime.ToESM) + "(" + value + ")"
			}
		} else {
			value = c.symbols.NameForSymbol(targetRepr.ExportsRef)
		}
		call.X = rawExpr(c.helperName(runtime.Import))
		call.Args.List = []js.Arg{{Value: rawExpr("() => " + value)}}
	}
}

// Generates this:
//
//	var require_foo = __commonJS((exports, module) => {
//	    ...
//	});
func (c *finalizerContext) commonJSWrapper(repr *graph.NormalRepr, body []js.IStmt) js.IStmt {
	closure := &js.ArrowFunc{
		Params: js.Params{List: []js.BindingElement{
			{Binding: &js.Var{Data: []byte("exports")}},
			{Binding: &js.Var{Data: []byte("module")}},
		}},
		Body: js.BlockStmt{List: body},
	}
	return varDecl(c.symbols.NameForSymbol(repr.WrapperRef), callExpr(c.helperName(runtime.CommonJS), closure))
}

// EntryTail returns the statements that expose the exports of a chunk's entry
// point in the output format. They go after every module of the chunk.
func EntryTail(args Args, chunk linker.Chunk) []js.IStmt {
	c := newContext(&args)
	repr, ok := c.table.Normal(chunk.EntryPoint)
	if !ok {
		return nil
	}
	format := c.options.OutputFormat

	// A CommonJS entry point is only evaluated by calling its wrapper
	if repr.Meta.Wrap == graph.WrapCJS {
		call := c.symbols.NameForSymbol(repr.WrapperRef) + "()"
		switch {
		case format == config.FormatESModule:
			return []js.IStmt{rawStmt("export default " + call)}
		case format == config.FormatCommonJS:
			return []js.IStmt{rawStmt("module.exports = " + call)}
		case format == config.FormatIIFE && c.options.GlobalName != "":
			return []js.IStmt{rawStmt("return " + call)}
		}
		return []js.IStmt{rawStmt(call)}
	}

	switch format {
	case config.FormatESModule:
		var stmts []js.IStmt
		var items []string

		// Copies are declared in alias order so the output is stable
		copies := make([]string, 0, len(repr.Meta.ExportCopies))
		for alias := range repr.Meta.ExportCopies {
			copies = append(copies, alias)
		}
		sort.Strings(copies)
		for _, alias := range copies {
			value := c.exprForRef(repr.Meta.ResolvedExports[alias].Ref)
			stmts = append(stmts, varDecl(c.symbols.NameForSymbol(repr.Meta.ExportCopies[alias]), rawExpr(value)))
		}

		for _, alias := range repr.Meta.SortedExportAliases {
			var local string
			if ref, ok := repr.Meta.ExportCopies[alias]; ok {
				local = c.symbols.NameForSymbol(ref)
			} else {
				local = c.symbols.NameForSymbol(repr.Meta.ResolvedExports[alias].Ref)
			}
			if local == alias {
				items = append(items, alias)
			} else {
				items = append(items, local+" as "+propertyKey(alias))
			}
		}
		if len(items) > 0 {
			stmts = append(stmts, rawStmt("export { "+strings.Join(items, ", ")+" }"))
		}
		return stmts

	case config.FormatCommonJS:
		if len(repr.Meta.SortedExportAliases) > 0 || repr.Meta.HasDynamicExports() {
			exports := c.helperName(runtime.ToCommonJS) + "(" + c.symbols.NameForSymbol(repr.ExportsRef) + ")"
			return []js.IStmt{rawStmt("module.exports = " + exports)}
		}

	case config.FormatIIFE:
		if c.options.GlobalName != "" {
			return []js.IStmt{rawStmt("return " + c.symbols.NameForSymbol(repr.ExportsRef))}
		}
	}
	return nil
}
