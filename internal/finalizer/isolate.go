package finalizer

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/hoistjs/hoist/internal/ast"
	"github.com/hoistjs/hoist/internal/graph"
	"github.com/hoistjs/hoist/internal/helpers"
	"github.com/hoistjs/hoist/internal/renamer"
	"github.com/hoistjs/hoist/internal/runtime"
	"github.com/tdewolff/parse/v2/js"
)

// Isolate rewrites each of "modules" into a factory registered with the app
// runtime:
//
//	hoist_runtime.define("src/foo.js", function(require, module, exports) {
//	    ...
//	});
//
// It does not depend on linking. Every import is read off the object that
// "require" returns for its module, so a module can be replaced later without
// touching the modules that import it. The runtime module is skipped.
func Isolate(ctx context.Context, args Args, modules []uint32) error {
	args.Timer.Begin("Isolate")
	defer args.Timer.End("Isolate")

	c := newContext(&args)
	return c.forEachModule(ctx, modules, func(sourceIndex uint32) error {
		repr, ok := c.table.Normal(sourceIndex)
		if !ok || sourceIndex == graph.RuntimeSourceIndex {
			return nil
		}
		c.isolateModule(sourceIndex, repr)
		return nil
	})
}

type isolatedModule struct {
	c     *finalizerContext
	repr  *graph.NormalRepr
	taken map[string]bool

	// The "import_foo" name of each import statement record
	recordNames map[uint32]string
	defaultName string
	fixer       *referenceFixer
}

func (c *finalizerContext) isolateModule(sourceIndex uint32, repr *graph.NormalRepr) {
	// Generated code refers to the factory parameters, the runtime helpers and
	// the registry, so the module must not declare any of them
	reserved := map[string]bool{
		"require":        true,
		"module":         true,
		"exports":        true,
		runtime.Registry: true,
	}
	for _, name := range []string{runtime.CommonJS, runtime.Export, runtime.ReExport, runtime.ToESM, runtime.ToCommonJS, runtime.Import} {
		reserved[c.helperName(name)] = true
	}
	renamer.AvoidNames(repr, reserved)

	m := &isolatedModule{
		c:           c,
		repr:        repr,
		taken:       collectNames(repr.Tree),
		recordNames: make(map[uint32]string),
		fixer:       &referenceFixer{propertyAccesses: make(map[*js.Var]bool)},
	}
	for name := range reserved {
		m.taken[name] = true
	}

	// Each import statement gets one namespace binding, named in source order
	for _, info := range repr.Stmts {
		if !info.IsImportOrExportClause {
			continue
		}
		for _, recordIndex := range info.ImportRecordIndices {
			record := &repr.ImportRecords[recordIndex]
			if record.Kind == ast.ImportStmt && record.NamespaceRef.IsValid() {
				m.recordNames[recordIndex] = m.newName(c.symbols.Get(record.NamespaceRef).OriginalName)
			}
		}
	}
	if repr.DefaultRef.IsValid() {
		m.defaultName = m.newName(c.symbols.Get(repr.DefaultRef).OriginalName)
	}

	m.bindImports(sourceIndex)
	m.rewriteCalls()

	var directives, stmts []js.IStmt
	for stmtIndex, stmt := range repr.Tree.BlockStmt.List {
		stmts = m.appendStmt(stmts, uint32(stmtIndex), stmt, &directives)
	}
	m.fixer.fix(stmts)

	body := directives
	if exports := m.exportsStmt(sourceIndex); exports != nil {
		body = append(body, exports)
	}
	body = append(body, stmts...)

	factory := &js.FuncDecl{
		Params: js.Params{List: []js.BindingElement{
			{Binding: &js.Var{Data: []byte("require")}},
			{Binding: &js.Var{Data: []byte("module")}},
			{Binding: &js.Var{Data: []byte("exports")}},
		}},
		Body: js.BlockStmt{List: body},
	}
	define := callExpr(runtime.Registry+".define", rawExpr(helpers.QuoteForJS(c.table.Modules[sourceIndex].StableID)), factory)
	repr.Tree.BlockStmt.List = []js.IStmt{&js.ExprStmt{Value: define}}
}

// Returns "name" or "name" with the smallest numeric suffix that is unused
func (m *isolatedModule) newName(name string) string {
	if m.taken[name] {
		prefix := name
		for tries := 2; ; tries++ {
			name = prefix + strconv.Itoa(tries)
			if !m.taken[name] {
				break
			}
		}
	}
	m.taken[name] = true
	return name
}

// Imported bindings become property accesses on the namespace binding of
// their import statement
func (m *isolatedModule) bindImports(sourceIndex uint32) {
	for ref, named := range m.repr.NamedImports {
		if named.IsReExportOnly || ref.SourceIndex != sourceIndex {
			continue
		}
		v := m.repr.Vars[ref.InnerIndex]
		if v == nil {
			continue
		}
		nsName := m.recordNames[named.ImportRecordIndex]
		if named.Alias == "*" {
			v.Data = []byte(nsName)
			continue
		}
		v.Data = []byte(nsName + helpers.PropertyAccess(named.Alias))
		m.fixer.propertyAccesses[v] = true
	}
}

// How "require" of the record's target is written. Imports of CommonJS
// modules go through "__toESM" unless the module says it is an ES module.
func (m *isolatedModule) requireExpr(recordIndex uint32, asESM bool) string {
	record := &m.repr.ImportRecords[recordIndex]
	target, ok := m.c.table.Target(record)
	if !ok {
		return "require(" + helpers.QuoteForJS(record.Path.Text) + ")"
	}
	if external, ok := target.External(); ok {
		value := "require(" + helpers.QuoteForJS(external.Specifier) + ")"
		if asESM {
			value = m.c.helperName(runtime.ToESM) + "(" + value + ")"
		}
		return value
	}
	value := "require(" + helpers.QuoteForJS(target.StableID) + ")"
	if targetRepr, ok := target.Normal(); ok && asESM &&
		targetRepr.ExportsKind == graph.ExportsCommonJS && targetRepr.ESModuleFlag != graph.ESModuleFlagTrue {
		value = m.c.helperName(runtime.ToESM) + "(" + value + ")"
	}
	return value
}

func (m *isolatedModule) appendStmt(stmts []js.IStmt, stmtIndex uint32, stmt js.IStmt, directives *[]js.IStmt) []js.IStmt {
	info := &m.repr.Stmts[stmtIndex]

	switch s := stmt.(type) {
	case *js.ImportStmt:
		recordIndex := info.ImportRecordIndices[0]
		if m.repr.ImportRecords[recordIndex].Flags.Has(ast.WasOriginallyBareImport) {
			return append(stmts, rawStmt(m.requireExpr(recordIndex, false)))
		}
		return append(stmts, varDecl(m.recordNames[recordIndex], rawExpr(m.requireExpr(recordIndex, true))))

	case *js.ExportStmt:
		if s.Decl == nil {
			if s.Module == nil {
				return stmts
			}
			recordIndex := info.ImportRecordIndices[0]
			if m.repr.ImportRecords[recordIndex].Flags.Has(ast.IsExportStar) {
				return append(stmts, rawStmt(m.c.helperName(runtime.ReExport)+"(exports, "+m.requireExpr(recordIndex, false)+")"))
			}
			return append(stmts, varDecl(m.recordNames[recordIndex], rawExpr(m.requireExpr(recordIndex, true))))
		}
		if s.Default {
			return append(stmts, exportDefaultStmt(s.Decl, m.defaultName))
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
		*directives = append(*directives, s)
		return stmts
	}

	return append(stmts, stmt)
}

func (m *isolatedModule) rewriteCalls() {
	for call, recordIndex := range m.repr.RequireCalls {
		record := &m.repr.ImportRecords[recordIndex]
		target, ok := m.c.table.Target(record)
		if !ok {
			continue
		}
		if _, ok := target.Normal(); ok {
			call.Args.List = []js.Arg{{Value: rawExpr(helpers.QuoteForJS(target.StableID))}}
		}
	}

	for call, recordIndex := range m.repr.DynamicImportCalls {
		record := &m.repr.ImportRecords[recordIndex]
		target, ok := m.c.table.Target(record)
		if !ok {
			continue
		}
		if _, ok := target.Normal(); !ok {
			continue
		}
		call.X = rawExpr(m.c.helperName(runtime.Import))
		call.Args.List = []js.Arg{{Value: rawExpr("() => " + m.requireExpr(recordIndex, true))}}
	}
}

// The exports of the module as getters on the "exports" object of the
// factory. This goes first so that modules in an import cycle see every
// name, even before it is initialized.
func (m *isolatedModule) exportsStmt(sourceIndex uint32) js.IStmt {
	if len(m.repr.NamedExports) == 0 {
		return nil
	}
	aliases := make([]string, 0, len(m.repr.NamedExports))
	for alias := range m.repr.NamedExports {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	sb := strings.Builder{}
	sb.WriteString(m.c.helperName(runtime.Export))
	sb.WriteString("(exports, {")
	for i, alias := range aliases {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("\n    ")
		sb.WriteString(propertyKey(alias))
		sb.WriteString(": () => ")
		sb.WriteString(m.exportExpr(sourceIndex, m.repr.NamedExports[alias].Ref))
	}
	sb.WriteString("\n})")
	return rawStmt(sb.String())
}

func (m *isolatedModule) exportExpr(sourceIndex uint32, ref ast.Ref) string {
	if named, ok := m.repr.NamedImports[ref]; ok {
		nsName := m.recordNames[named.ImportRecordIndex]
		if named.Alias == "*" {
			return nsName
		}
		return nsName + helpers.PropertyAccess(named.Alias)
	}
	if ref == m.repr.DefaultRef {
		return m.defaultName
	}
	if ref.SourceIndex == sourceIndex && int(ref.InnerIndex) < len(m.repr.Vars) {
		if v := m.repr.Vars[ref.InnerIndex]; v != nil {
			return string(v.Data)
		}
	}
	return m.c.symbols.Get(ref).OriginalName
}

// Every name that occurs anywhere in the tree
func collectNames(tree *js.AST) map[string]bool {
	collector := &nameCollector{names: make(map[string]bool)}
	js.Walk(collector, tree)
	return collector.names
}

type nameCollector struct {
	names map[string]bool
}

func (c *nameCollector) Enter(n js.INode) js.IVisitor {
	if v, ok := n.(*js.Var); ok {
		c.names[string(v.Data)] = true
	}
	return c
}

func (c *nameCollector) Exit(js.INode) {}
