package scanner

// The scanner makes a single pass over the top-level statements of a parsed
// module to find out everything the linker needs: which bindings each
// statement declares and references, the import and export clauses, the
// import records, and how the module exposes its exports. It never modifies
// the tree. The finalizer rewrites the tree later, guided by what is
// collected here.

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/hoistjs/hoist/internal/ast"
	"github.com/hoistjs/hoist/internal/config"
	"github.com/hoistjs/hoist/internal/graph"
	"github.com/hoistjs/hoist/internal/helpers"
	"github.com/hoistjs/hoist/internal/logger"
	"github.com/tdewolff/parse/v2/js"
)

type Options struct {
	// Decides the exports kind of a file without any module syntax
	ModuleType config.ModuleType
}

type pendingExport struct {
	local      string
	exported   string
	localRange logger.Range
	aliasRange logger.Range
}

type scanner struct {
	log     logger.Log
	source  *logger.Source
	options Options

	result graph.ScanResult
	vars   []*js.Var

	// Root variables of the tree mapped to the inner index of their symbol
	symbolIndex map[*js.Var]uint32

	// The parser copies the module scope when it returns the tree, so scope
	// pointers can't be compared. Membership is tracked by variable instead.
	moduleDeclared map[*js.Var]bool
	declaredByName map[string]*js.Var
	unboundByName  map[string]*js.Var
	importByName   map[string]ast.Ref

	pendingExports []pendingExport

	// Offsets into the source where the next diagnostic of each kind starts
	// looking for its name
	recordSearchFrom int32
	stmtSearchFrom   int32
	evalSearchFrom   int32
	flagSearchFrom   int32
	tokenOffsets     *tokenIndex

	hasESMSyntax     bool
	firstCommonJSUse string
	sawFlagTrue      bool
	sawFlagFalse     bool
	hasErrors        bool
}

// Scan collects the scan result of one parsed module. It also returns the
// root variable of every symbol, indexed by inner index, so that the
// finalizer can rename bindings in place. Errors are reported to "log" and
// make "ok" false. Warnings are returned in the result instead so that they
// can be replayed when a cached module is reused.
func Scan(log logger.Log, source *logger.Source, tree *js.AST, options Options) (result graph.ScanResult, vars []*js.Var, ok bool) {
	s := &scanner{
		log:            log,
		source:         source,
		options:        options,
		symbolIndex:    make(map[*js.Var]uint32),
		moduleDeclared: make(map[*js.Var]bool),
		declaredByName: make(map[string]*js.Var),
		unboundByName:  make(map[string]*js.Var),
		importByName:   make(map[string]ast.Ref),
		result: graph.ScanResult{
			TopLevelSymbolToStmts: make(map[ast.Ref][]uint32),
			NamedImports:          make(map[ast.Ref]graph.NamedImport),
			NamedExports:          make(map[string]graph.NamedExport),
			RequireCalls:          make(map[*js.CallExpr]uint32),
			DynamicImportCalls:    make(map[*js.CallExpr]uint32),
			IdentifierNames:       make(map[string]bool),
			ExportsRef:            ast.InvalidRef,
			WrapperRef:            ast.InvalidRef,
			DefaultRef:            ast.InvalidRef,
		},
	}

	moduleScope := &tree.BlockStmt.Scope
	for _, v := range moduleScope.Declared {
		s.moduleDeclared[v] = true
		if _, ok := s.declaredByName[string(v.Data)]; !ok {
			s.declaredByName[string(v.Data)] = v
		}
	}
	for _, v := range moduleScope.Undeclared {
		if v.Link == nil && !s.moduleDeclared[v] {
			if _, ok := s.unboundByName[string(v.Data)]; !ok {
				s.unboundByName[string(v.Data)] = v
			}
		}
	}

	// Declarations come first so that symbol indices follow source order
	for i, stmt := range tree.BlockStmt.List {
		stmtIndex := uint32(i)
		s.result.Stmts = append(s.result.Stmts, graph.StmtInfo{Stmt: stmt})

		switch st := stmt.(type) {
		case *js.ImportStmt:
			s.hasESMSyntax = true
			s.scanImport(stmtIndex, st)

		case *js.ExportStmt:
			s.hasESMSyntax = true
			s.scanExport(stmtIndex, st)

		case *js.Comment:
			if i == 0 && bytes.HasPrefix(st.Value, []byte("#!")) {
				s.result.Hashbang = string(st.Value)
			}

		default:
			js.Walk(&declarationVisitor{s: s, stmtIndex: stmtIndex}, stmt)
		}
	}

	// Variables declared somewhere the visitor doesn't look for declarations
	for _, v := range moduleScope.Declared {
		if _, ok := s.symbolIndex[v]; !ok {
			s.newSymbol(string(v.Data), ast.SymbolOther, v)
		}
	}

	// Everything else that is used but never declared is a global
	for _, v := range moduleScope.Undeclared {
		if v.Link == nil && !s.moduleDeclared[v] {
			if _, ok := s.symbolIndex[v]; !ok {
				s.newSymbol(string(v.Data), ast.SymbolUnbound, v)
			}
		}
	}

	name := source.IdentifierName
	s.result.ExportsRef = s.newSymbol(name+"_exports", ast.SymbolNamespace, nil)
	s.result.WrapperRef = s.newSymbol("require_"+name, ast.SymbolWrapper, nil)

	for _, export := range s.pendingExports {
		s.resolveLocalExport(export)
	}

	for i, stmt := range tree.BlockStmt.List {
		visitor := &referenceVisitor{s: s, stmtIndex: uint32(i), seen: make(map[ast.Ref]bool)}
		js.Walk(visitor, stmt)
		hasSideEffects := s.stmtHasSideEffects(stmt)
		s.result.Stmts[i].HasSideEffects = hasSideEffects
		if hasSideEffects {
			s.result.HasSideEffects = true
		}
	}

	// This statement stands for the namespace object. The linker includes it
	// when something needs "foo_exports" and the finalizer generates it.
	s.result.NSExportStmtIndex = uint32(len(s.result.Stmts))
	s.result.Stmts = append(s.result.Stmts, graph.StmtInfo{
		DeclaredSymbols: []ast.Ref{s.result.ExportsRef},
	})
	s.result.TopLevelSymbolToStmts[s.result.ExportsRef] = []uint32{s.result.NSExportStmtIndex}

	for _, symbol := range s.result.Symbols {
		s.result.IdentifierNames[symbol.OriginalName] = true
	}

	s.classifyExports()
	return s.result, s.vars, !s.hasErrors
}

func (s *scanner) classifyExports() {
	switch {
	case s.hasESMSyntax:
		s.result.ExportsKind = graph.ExportsESM
		if s.firstCommonJSUse != "" {
			s.warn(s.rangeOfName(s.firstCommonJSUse, 0), fmt.Sprintf(
				"The CommonJS %q variable is treated as a global variable in an ECMAScript module and may not work as expected",
				s.firstCommonJSUse))
		}

	case s.result.Usage.Has(graph.UsesModuleOrExports):
		s.result.ExportsKind = graph.ExportsCommonJS

	case s.options.ModuleType == config.ModuleTypeCommonJS || s.options.ModuleType == config.ModuleTypeJSON:
		s.result.ExportsKind = graph.ExportsCommonJS

	case s.options.ModuleType == config.ModuleTypeESM:
		s.result.ExportsKind = graph.ExportsESM

	default:
		s.result.ExportsKind = graph.ExportsNone
	}

	switch {
	case s.sawFlagTrue:
		s.result.ESModuleFlag = graph.ESModuleFlagTrue
	case s.sawFlagFalse:
		s.result.ESModuleFlag = graph.ESModuleFlagFalse
	}
}

func (s *scanner) newSymbol(name string, kind ast.SymbolKind, v *js.Var) ast.Ref {
	ref := ast.Ref{SourceIndex: s.source.Index, InnerIndex: uint32(len(s.result.Symbols))}
	s.result.Symbols = append(s.result.Symbols, ast.Symbol{
		OriginalName:     name,
		Kind:             kind,
		Link:             ast.InvalidRef,
		MustNotBeRenamed: kind == ast.SymbolUnbound,
	})
	s.vars = append(s.vars, v)
	if v != nil {
		s.symbolIndex[v] = ref.InnerIndex
	}
	return ref
}

func rootVar(v *js.Var) *js.Var {
	for v.Link != nil {
		v = v.Link
	}
	return v
}

func (s *scanner) refForVar(v *js.Var) ast.Ref {
	v = rootVar(v)
	if index, ok := s.symbolIndex[v]; ok {
		return ast.Ref{SourceIndex: s.source.Index, InnerIndex: index}
	}
	return s.newSymbol(string(v.Data), ast.SymbolOther, v)
}

func (s *scanner) isUnbound(v *js.Var) bool {
	index, ok := s.symbolIndex[rootVar(v)]
	return ok && s.result.Symbols[index].Kind == ast.SymbolUnbound
}

func (s *scanner) declare(stmtIndex uint32, ref ast.Ref) {
	info := &s.result.Stmts[stmtIndex]
	for _, existing := range info.DeclaredSymbols {
		if existing == ref {
			return
		}
	}
	info.DeclaredSymbols = append(info.DeclaredSymbols, ref)
	s.result.TopLevelSymbolToStmts[ref] = append(s.result.TopLevelSymbolToStmts[ref], stmtIndex)
}

func (s *scanner) declareVar(stmtIndex uint32, v *js.Var) {
	if s.moduleDeclared[v] {
		s.declare(stmtIndex, s.refForVar(v))
	}
}

func (s *scanner) defaultSymbol() ast.Ref {
	if !s.result.DefaultRef.IsValid() {
		s.result.DefaultRef = s.newSymbol(s.source.IdentifierName+"_default", ast.SymbolOther, nil)
	}
	return s.result.DefaultRef
}

// Generated bindings for import aliases need a valid identifier even when the
// alias is "default" or a string such as "a-b"
func (s *scanner) symbolNameFor(alias string) string {
	if helpers.IsIdentifier(alias) {
		return alias
	}
	if alias == "default" {
		return s.source.IdentifierName + "_default"
	}
	return helpers.LegitimizeIdentifier(alias)
}

func (s *scanner) addImportRecord(stmtIndex uint32, kind ast.ImportKind, quoted []byte) uint32 {
	r := s.source.RangeOfQuoted(s.recordSearchFrom, string(quoted))
	if r.Len > 0 {
		s.recordSearchFrom = r.End()
	}
	index := uint32(len(s.result.ImportRecords))
	s.result.ImportRecords = append(s.result.ImportRecords, ast.ImportRecord{
		Path:         logger.Path{Text: unquote(quoted)},
		Range:        r,
		Kind:         kind,
		NamespaceRef: ast.InvalidRef,
	})
	info := &s.result.Stmts[stmtIndex]
	info.ImportRecordIndices = append(info.ImportRecordIndices, index)
	return index
}

// Import and re-export statements bind through an "import_foo" namespace
// when the target turns out to be CommonJS or external
func (s *scanner) addStmtImportRecord(stmtIndex uint32, quoted []byte) uint32 {
	index := s.addImportRecord(stmtIndex, ast.ImportStmt, quoted)
	path := s.result.ImportRecords[index].Path.Text
	nsRef := s.newSymbol("import_"+helpers.NonUniqueNameFromPath(path), ast.SymbolImportNamespace, nil)
	s.result.ImportRecords[index].NamespaceRef = nsRef
	s.declare(stmtIndex, nsRef)
	return index
}

func (s *scanner) scanImport(stmtIndex uint32, stmt *js.ImportStmt) {
	s.result.Stmts[stmtIndex].IsImportOrExportClause = true
	recordIndex := s.addStmtImportRecord(stmtIndex, stmt.Module)
	record := &s.result.ImportRecords[recordIndex]
	s.seekKeywordBefore(recordIndex, "import")
	defer s.skipPastRecord(recordIndex)

	if stmt.Default == nil && !hasBindings(stmt.List) {
		record.Flags |= ast.WasOriginallyBareImport
		return
	}

	if stmt.Default != nil {
		record.Flags |= ast.ContainsDefaultAlias
		s.addImportBinding(stmtIndex, recordIndex, "default", string(stmt.Default), false)
	}

	for _, alias := range stmt.List {
		if alias.Binding == nil {
			continue
		}
		local := string(alias.Binding)
		imported := local
		if alias.Name != nil {
			imported = unquote(alias.Name)
		}
		switch imported {
		case "*":
			record.Flags |= ast.ContainsImportStar
		case "default":
			record.Flags |= ast.ContainsDefaultAlias
		}
		s.addImportBinding(stmtIndex, recordIndex, imported, local, false)
	}
}

func hasBindings(list []js.Alias) bool {
	for _, alias := range list {
		if alias.Binding != nil {
			return true
		}
	}
	return false
}

func (s *scanner) addImportBinding(stmtIndex uint32, recordIndex uint32, alias string, local string, reExportOnly bool) ast.Ref {
	var v *js.Var
	name := local
	if reExportOnly {
		name = s.symbolNameFor(local)
	} else {
		_, isImported := s.importByName[local]
		_, isDeclared := s.declaredByName[local]
		if isImported || isDeclared {
			s.addError(s.rangeOfBinding(recordIndex, local), fmt.Sprintf("The symbol %q has already been declared", local))
		}
		if found, ok := s.unboundByName[local]; ok {
			v = found
			delete(s.unboundByName, local)
		}
	}

	ref := s.newSymbol(name, ast.SymbolImport, v)
	s.result.NamedImports[ref] = graph.NamedImport{
		Alias:             alias,
		AliasLoc:          s.importAliasLoc(recordIndex, alias, local),
		ImportRecordIndex: recordIndex,
		IsReExportOnly:    reExportOnly,
	}
	s.declare(stmtIndex, ref)
	if !reExportOnly {
		if _, ok := s.importByName[local]; !ok {
			s.importByName[local] = ref
		}
	}
	return ref
}

func (s *scanner) scanExport(stmtIndex uint32, stmt *js.ExportStmt) {
	s.advanceToName(&s.stmtSearchFrom, "export")
	if stmt.Decl == nil {
		s.result.Stmts[stmtIndex].IsImportOrExportClause = true
		if stmt.Module != nil {
			s.scanReExport(stmtIndex, stmt)
			return
		}
		for _, alias := range stmt.List {
			if alias.Binding == nil {
				continue
			}
			local := string(alias.Binding)
			if alias.Name != nil {
				local = string(alias.Name)
			}
			export := pendingExport{local: local, exported: unquote(alias.Binding)}
			export.localRange = s.advanceToName(&s.stmtSearchFrom, local)
			export.aliasRange = export.localRange
			if alias.Name != nil {
				export.aliasRange = s.advanceToName(&s.stmtSearchFrom, export.exported)
			}
			s.pendingExports = append(s.pendingExports, export)
		}
		return
	}

	declarations := &declarationVisitor{s: s, stmtIndex: stmtIndex}
	switch decl := stmt.Decl.(type) {
	case *js.VarDecl:
		js.Walk(declarations, decl)
		var vars []*js.Var
		for _, item := range decl.List {
			vars = bindingVars(vars, item.Binding)
		}
		for _, v := range vars {
			if s.moduleDeclared[v] {
				name := string(v.Data)
				s.addExport(name, s.advanceToName(&s.stmtSearchFrom, name), s.refForVar(v))
			}
		}

	case *js.FuncDecl:
		js.Walk(declarations, decl)
		s.exportNamedDecl(stmtIndex, stmt, decl.Name)

	case *js.ClassDecl:
		js.Walk(declarations, decl)
		s.exportNamedDecl(stmtIndex, stmt, decl.Name)

	default:
		// "export default <expression>"
		ref := s.defaultSymbol()
		s.declare(stmtIndex, ref)
		s.addExport("default", s.advanceToName(&s.stmtSearchFrom, "default"), ref)
	}
}

func (s *scanner) exportNamedDecl(stmtIndex uint32, stmt *js.ExportStmt, name *js.Var) {
	if name != nil && s.moduleDeclared[name] {
		ref := s.refForVar(name)
		if stmt.Default {
			s.addExport("default", s.advanceToName(&s.stmtSearchFrom, "default"), ref)
		} else {
			s.addExport(string(name.Data), s.advanceToName(&s.stmtSearchFrom, string(name.Data)), ref)
		}
		return
	}

	// "export default function() {}" has no name of its own
	ref := s.defaultSymbol()
	s.declare(stmtIndex, ref)
	s.addExport("default", s.advanceToName(&s.stmtSearchFrom, "default"), ref)
}

func (s *scanner) scanReExport(stmtIndex uint32, stmt *js.ExportStmt) {
	recordIndex := s.addStmtImportRecord(stmtIndex, stmt.Module)
	s.seekKeywordBefore(recordIndex, "export")
	defer s.skipPastRecord(recordIndex)

	for _, alias := range stmt.List {
		if alias.Binding == nil {
			continue
		}
		switch {
		case alias.Name == nil && string(alias.Binding) == "*":
			// "export * from 'path'"
			s.result.ImportRecords[recordIndex].Flags |= ast.IsExportStar
			s.result.ExportStarRecords = append(s.result.ExportStarRecords, recordIndex)

		case alias.Name != nil && string(alias.Name) == "*":
			// "export * as ns from 'path'"
			s.result.ImportRecords[recordIndex].Flags |= ast.ContainsImportStar
			exported := unquote(alias.Binding)
			ref := s.addImportBinding(stmtIndex, recordIndex, "*", exported, true)
			s.addExport(exported, s.rangeOfBinding(recordIndex, exported), ref)

		default:
			// "export {a as b} from 'path'"
			imported := unquote(alias.Binding)
			exported := imported
			if alias.Name != nil {
				imported = unquote(alias.Name)
			}
			if imported == "default" {
				s.result.ImportRecords[recordIndex].Flags |= ast.ContainsDefaultAlias
			}
			ref := s.addImportBinding(stmtIndex, recordIndex, imported, exported, true)
			s.addExport(exported, s.rangeOfBinding(recordIndex, exported), ref)
		}
	}
}

func (s *scanner) resolveLocalExport(export pendingExport) {
	if ref, ok := s.importByName[export.local]; ok {
		s.addExport(export.exported, export.aliasRange, ref)
		return
	}
	if v, ok := s.declaredByName[export.local]; ok {
		s.addExport(export.exported, export.aliasRange, s.refForVar(v))
		return
	}
	s.addError(export.localRange, fmt.Sprintf("%q is not declared in this file", export.local))
}

func (s *scanner) addExport(name string, r logger.Range, ref ast.Ref) {
	if _, ok := s.result.NamedExports[name]; ok {
		s.addError(r, fmt.Sprintf("Multiple exports with the same name %q", name))
		return
	}
	s.result.NamedExports[name] = graph.NamedExport{
		Ref:      ref,
		AliasLoc: r.Loc,
	}
}

// Names bound by an import or re-export statement come before its path
func (s *scanner) rangeOfBinding(recordIndex uint32, name string) logger.Range {
	record := &s.result.ImportRecords[recordIndex]
	if record.Range.Len == 0 {
		return s.rangeOfName(name, s.stmtSearchFrom)
	}
	return s.rangeOfNameBefore(name, s.stmtSearchFrom, record.Range.Loc.Start)
}

// Points at the imported name where it is written. "import * as ns" and
// "import d from" only spell out the local name.
func (s *scanner) importAliasLoc(recordIndex uint32, alias string, local string) logger.Loc {
	record := &s.result.ImportRecords[recordIndex]
	if record.Range.Len == 0 {
		return record.Range.Loc
	}
	for _, name := range []string{alias, local} {
		if r, ok := s.lastNameBetween(name, s.stmtSearchFrom, record.Range.Loc.Start); ok && name != "*" {
			return r.Loc
		}
	}
	return record.Range.Loc
}

// Statements that aren't import or export statements don't move the
// cursor, so it is moved up to the keyword that starts this one
func (s *scanner) seekKeywordBefore(recordIndex uint32, keyword string) {
	record := &s.result.ImportRecords[recordIndex]
	if record.Range.Len == 0 {
		return
	}
	if r, ok := s.lastNameBetween(keyword, s.stmtSearchFrom, record.Range.Loc.Start); ok {
		s.stmtSearchFrom = r.Loc.Start
	}
}

func (s *scanner) skipPastRecord(recordIndex uint32) {
	if r := s.result.ImportRecords[recordIndex].Range; r.Len > 0 && r.End() > s.stmtSearchFrom {
		s.stmtSearchFrom = r.End()
	}
}

func (s *scanner) addError(r logger.Range, text string) {
	s.hasErrors = true
	s.log.AddRangeError(s.source, logger.ClassParse, r, text)
}

func (s *scanner) warn(r logger.Range, text string) {
	s.result.Warnings = append(s.result.Warnings, logger.Msg{
		Kind:     logger.Warning,
		Class:    logger.ClassInterop,
		Text:     text,
		Location: logger.LocationOrNil(s.source, r),
	})
}

func bindingVars(vars []*js.Var, binding js.IBinding) []*js.Var {
	switch b := binding.(type) {
	case *js.Var:
		vars = append(vars, b)
	case *js.BindingArray:
		for _, item := range b.List {
			vars = bindingVars(vars, item.Binding)
		}
		if b.Rest != nil {
			vars = bindingVars(vars, b.Rest)
		}
	case *js.BindingObject:
		for _, item := range b.List {
			vars = bindingVars(vars, item.Value.Binding)
		}
		if b.Rest != nil {
			vars = append(vars, b.Rest)
		}
	}
	return vars
}

// Finds the top-level declarations of one statement
type declarationVisitor struct {
	s         *scanner
	stmtIndex uint32
}

func (v *declarationVisitor) Enter(n js.INode) js.IVisitor {
	switch n := n.(type) {
	case *js.VarDecl:
		var vars []*js.Var
		for _, item := range n.List {
			vars = bindingVars(vars, item.Binding)
		}
		for _, binding := range vars {
			v.s.declareVar(v.stmtIndex, binding)
		}
	case *js.FuncDecl:
		if n.Name != nil {
			v.s.declareVar(v.stmtIndex, n.Name)
		}
	case *js.ClassDecl:
		if n.Name != nil {
			v.s.declareVar(v.stmtIndex, n.Name)
		}
	}
	return v
}

func (v *declarationVisitor) Exit(js.INode) {}

// Finds the references, calls and interop markers of one statement. The path
// holds every node from the statement down to the current one.
type referenceVisitor struct {
	s         *scanner
	stmtIndex uint32
	seen      map[ast.Ref]bool
	path      []js.INode
	funcDepth int
}

// Returns the node "depth" levels above the current one, or nil
func (v *referenceVisitor) ancestor(depth int) js.INode {
	index := len(v.path) - 1 - depth
	if depth < 0 || index < 0 {
		return nil
	}
	return v.path[index]
}

func (v *referenceVisitor) Enter(n js.INode) js.IVisitor {
	v.path = append(v.path, n)

	switch n := n.(type) {
	case *js.Var:
		v.visitVar(n)

	case *js.FuncDecl, *js.ArrowFunc, *js.MethodDecl:
		v.funcDepth++

	case *js.UnaryExpr:
		if n.Op == js.AwaitToken && v.funcDepth == 0 {
			v.s.result.Usage |= graph.UsesTopLevelAwait
			v.s.hasESMSyntax = true
		}

	case *js.ForOfStmt:
		if n.Await && v.funcDepth == 0 {
			v.s.result.Usage |= graph.UsesTopLevelAwait
			v.s.hasESMSyntax = true
		}

	case *js.ImportMetaExpr:
		v.s.result.Usage |= graph.UsesImportMeta
		v.s.hasESMSyntax = true

	case *js.CallExpr:
		v.visitCall(n)

	case *js.NewExpr:
		v.visitNew(n)
	}

	return v
}

func (v *referenceVisitor) Exit(n js.INode) {
	switch n.(type) {
	case *js.FuncDecl, *js.ArrowFunc, *js.MethodDecl:
		v.funcDepth--
	}
	v.path = v.path[:len(v.path)-1]
}

func (v *referenceVisitor) visitVar(n *js.Var) {
	s := v.s
	s.result.IdentifierNames[string(n.Data)] = true

	root := rootVar(n)
	index, ok := s.symbolIndex[root]
	if !ok {
		return
	}
	ref := ast.Ref{SourceIndex: s.source.Index, InnerIndex: index}

	if s.result.Symbols[index].Kind == ast.SymbolUnbound {
		switch name := string(root.Data); name {
		case "module", "exports":
			s.result.Usage |= graph.UsesModuleOrExports
			if s.firstCommonJSUse == "" {
				s.firstCommonJSUse = name
			}
			check := checkExports
			if name == "module" {
				check = checkModuleExports
			}
			v.recordESModuleFlag(v.checkESModuleFlag(check))

		case "eval":
			r := s.advanceToName(&s.evalSearchFrom, "eval")
			if call, ok := v.ancestor(1).(*js.CallExpr); ok && call.X == js.IExpr(n) {
				s.result.Usage |= graph.UsesEval
				s.warn(r, "Using direct eval with a bundler is not recommended and may cause problems")
			}
		}
	}

	v.addReference(ref)
}

func (v *referenceVisitor) addReference(ref ast.Ref) {
	if v.seen[ref] {
		return
	}
	v.seen[ref] = true
	info := &v.s.result.Stmts[v.stmtIndex]
	for _, declared := range info.DeclaredSymbols {
		if declared == ref {
			return
		}
	}
	info.ReferencedSymbols = append(info.ReferencedSymbols, ref)
}

func (v *referenceVisitor) recordESModuleFlag(result esModuleFlagResult) {
	s := v.s
	switch result.flag {
	case graph.ESModuleFlagTrue:
		s.sawFlagTrue = true
	case graph.ESModuleFlagFalse:
		s.sawFlagFalse = true
	}
	if result == noESModuleFlag {
		return
	}
	r := s.advanceToAnyOccurrence(&s.flagSearchFrom, "__esModule")
	if result.ambiguous {
		s.warn(r, `The "__esModule" marker is not set to a boolean literal and is treated as false`)
	}
}

func (v *referenceVisitor) visitCall(call *js.CallExpr) {
	s := v.s
	args := call.Args.List

	switch callee := call.X.(type) {
	case *js.Var:
		if string(callee.Name()) != "require" || !s.isUnbound(callee) {
			return
		}
		if len(args) != 1 || args[0].Rest {
			return
		}
		if literal, ok := args[0].Value.(*js.LiteralExpr); ok && literal.TokenType == js.StringToken {
			s.result.RequireCalls[call] = s.addImportRecord(v.stmtIndex, ast.ImportRequire, literal.Data)
		}

	case *js.LiteralExpr:
		if callee.TokenType != js.ImportToken {
			return
		}
		s.result.Usage |= graph.UsesDynamicImport
		if len(args) == 0 || args[0].Rest {
			return
		}
		if literal, ok := args[0].Value.(*js.LiteralExpr); ok && literal.TokenType == js.StringToken {
			s.result.DynamicImportCalls[call] = s.addImportRecord(v.stmtIndex, ast.ImportDynamic, literal.Data)
		}
	}
}

// Detects 'new URL("./file", import.meta.url)'
func (v *referenceVisitor) visitNew(expr *js.NewExpr) {
	callee, ok := expr.X.(*js.Var)
	if !ok || string(callee.Name()) != "URL" || !v.s.isUnbound(callee) || expr.Args == nil || len(expr.Args.List) != 2 {
		return
	}
	if dot, ok := expr.Args.List[1].Value.(*js.DotExpr); ok && propertyName(dot) == "url" {
		if _, ok := dot.X.(*js.ImportMetaExpr); ok {
			v.s.result.Usage |= graph.UsesNewURL
		}
	}
}

// Strips the quotes of a string literal and decodes its escapes when
// possible
func unquote(quoted []byte) string {
	text := string(quoted)
	if len(text) < 2 || (text[0] != '"' && text[0] != '\'') || text[len(text)-1] != text[0] {
		return text
	}
	inner := text[1 : len(text)-1]
	if !strings.ContainsRune(inner, '\\') {
		return inner
	}
	if text[0] == '\'' {
		text = `"` + strings.ReplaceAll(strings.ReplaceAll(inner, `\'`, `'`), `"`, `\"`) + `"`
	}
	if value, err := strconv.Unquote(text); err == nil {
		return value
	}
	return inner
}
