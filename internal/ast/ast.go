package ast

// This file contains the data structures shared by the scanner, the linker
// and the finalizer. They deliberately know nothing about the syntax tree
// library so that the symbol table can outlive any one parse.

import (
	"github.com/hoistjs/hoist/internal/logger"
)

type ImportKind uint8

const (
	// An entry point provided by the user
	ImportEntryPoint ImportKind = iota

	// An ES6 import or re-export statement
	ImportStmt

	// A call to "require()"
	ImportRequire

	// An "import()" expression with a string argument
	ImportDynamic
)

func (kind ImportKind) String() string {
	switch kind {
	case ImportStmt:
		return "import-statement"
	case ImportRequire:
		return "require-call"
	case ImportDynamic:
		return "dynamic-import"
	case ImportEntryPoint:
		return "entry-point"
	default:
		panic("Internal error")
	}
}

type ImportRecordFlags uint16

const (
	// If this is true, the import contains syntax like "* as ns"
	ContainsImportStar ImportRecordFlags = 1 << iota

	// If this is true, the import contains an import for the alias "default",
	// either via the "import x from" or "import {default as x} from" syntax.
	ContainsDefaultAlias

	// This record comes from "export * from 'path'"
	IsExportStar

	// If true, this was originally written as a bare "import 'file'" statement
	WasOriginallyBareImport

	// The target is an external module. This is set together with SourceIndex
	// because external modules also live in the module table.
	IsExternal

	// Set by the linker when "require()" of this record must be wrapped in
	// "__toESM(...)" to be usable as an ES module namespace
	WrapWithToESM

	// Set by the linker when the "import_foo" binding of this record is used
	// by an included statement. Otherwise an included import of a CommonJS
	// module only needs the bare "require_foo()" call.
	NamespaceIsReferenced
)

func (flags ImportRecordFlags) Has(flag ImportRecordFlags) bool {
	return (flags & flag) != 0
}

// Raw fields are filled in by the scanner. The loader resolves the record by
// setting SourceIndex (and IsExternal for external targets).
type ImportRecord struct {
	Path  logger.Path
	Range logger.Range

	// The resolved module index. Invalid until the loader has resolved this
	// record.
	SourceIndex Index32

	// The "import_foo" binding used when this record must be accessed through
	// a namespace object, for example when the target is CommonJS or external
	NamespaceRef Ref

	Flags ImportRecordFlags
	Kind  ImportKind
}

// This stores a 32-bit index where the zero value is an invalid index. This is
// a better alternative to storing the index as a pointer since that has the
// same properties but takes up more space and costs an extra pointer traversal.
type Index32 struct {
	flippedBits uint32
}

func MakeIndex32(index uint32) Index32 {
	return Index32{flippedBits: ^index}
}

func (i Index32) IsValid() bool {
	return i.flippedBits != 0
}

func (i Index32) GetIndex() uint32 {
	return ^i.flippedBits
}
