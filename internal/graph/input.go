package graph

// The types in this file describe what the scanner learns about one module.
// They pass from the scan phase to the link phase unchanged.

import (
	"github.com/hoistjs/hoist/internal/ast"
	"github.com/hoistjs/hoist/internal/logger"
	"github.com/tdewolff/parse/v2/js"
)

type ExportsKind uint8

const (
	// The module has no import or export syntax and does not use "module" or
	// "exports". It is treated as an ES module with no exports.
	ExportsNone ExportsKind = iota

	// The module uses ES module syntax
	ExportsESM

	// The module assigns to "module.exports" or "exports" and has no ES module
	// syntax. It is wrapped in a closure and accessed through "require_foo()".
	ExportsCommonJS
)

func (kind ExportsKind) String() string {
	switch kind {
	case ExportsESM:
		return "esm"
	case ExportsCommonJS:
		return "commonjs"
	}
	return "none"
}

// The "__esModule" marker of a CommonJS module, as recognized statically
type ESModuleFlag uint8

const (
	ESModuleFlagUnknown ESModuleFlag = iota
	ESModuleFlagTrue
	ESModuleFlagFalse
)

func (flag ESModuleFlag) String() string {
	switch flag {
	case ESModuleFlagTrue:
		return "true"
	case ESModuleFlagFalse:
		return "false"
	}
	return "unknown"
}

type UsageFlags uint8

const (
	UsesEval UsageFlags = 1 << iota
	UsesDynamicImport
	UsesNewURL
	UsesImportMeta
	UsesModuleOrExports
	UsesTopLevelAwait
)

func (flags UsageFlags) Has(flag UsageFlags) bool {
	return (flags & flag) != 0
}

type NamedImport struct {
	// The exported name in the target module. This is "*" for a namespace
	// import and "default" for a default import.
	Alias    string
	AliasLoc logger.Loc

	ImportRecordIndex uint32

	// True if this import is only re-exported and never referenced locally
	IsReExportOnly bool
}

type NamedExport struct {
	Ref      ast.Ref
	AliasLoc logger.Loc
}

// What the scanner knows about one top-level statement. Statements are the
// unit of tree shaking.
type StmtInfo struct {
	// Nil for synthetic statements, such as the one that materializes the
	// namespace object
	Stmt js.IStmt

	DeclaredSymbols   []ast.Ref
	ReferencedSymbols []ast.Ref

	ImportRecordIndices []uint32

	HasSideEffects bool

	// Import and export statements that only contribute bindings. The
	// flattening finalizer removes them.
	IsImportOrExportClause bool
}

// The sole output of the scanner
type ScanResult struct {
	ImportRecords []ast.ImportRecord

	// The module's local symbols. The loader stores them in the symbol table
	// under the module's source index.
	Symbols []ast.Symbol

	// One entry per top-level statement of the tree, followed by the synthetic
	// namespace statement at NSExportStmtIndex
	Stmts             []StmtInfo
	NSExportStmtIndex uint32

	// Maps each top-level symbol to the statements that declare it
	TopLevelSymbolToStmts map[ast.Ref][]uint32

	NamedImports map[ast.Ref]NamedImport
	NamedExports map[string]NamedExport

	// Import record indices of "export * from" statements in source order
	ExportStarRecords []uint32

	// The "foo_exports" namespace object
	ExportsRef ast.Ref

	// The "require_foo" wrapper, only used when this is CommonJS
	WrapperRef ast.Ref

	// The binding for "export default <expression>"
	DefaultRef ast.Ref

	// Calls to "require()" and "import()" with a string argument, so the
	// finalizer can rewrite them in place
	RequireCalls       map[*js.CallExpr]uint32
	DynamicImportCalls map[*js.CallExpr]uint32

	ExportsKind  ExportsKind
	ESModuleFlag ESModuleFlag
	Usage        UsageFlags

	// Analyzed from the statements. The loader may override this with a value
	// from the resolver or a plugin.
	HasSideEffects bool

	Hashbang string

	// Every identifier name that occurs in the module, including nested ones.
	// The renamer avoids these when it has to invent a name for a nested
	// binding.
	IdentifierNames map[string]bool

	ContentHash uint64

	Warnings []logger.Msg
}
