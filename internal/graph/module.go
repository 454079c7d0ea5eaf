package graph

import (
	"github.com/hoistjs/hoist/internal/ast"
	"github.com/hoistjs/hoist/internal/config"
	"github.com/hoistjs/hoist/internal/logger"
	"github.com/tdewolff/parse/v2/js"
)

type Module struct {
	Source logger.Source

	// The path relative to the working directory with "/" separators. This
	// names the module's closure in the app format and in hot patches, so it
	// must not change between builds.
	StableID string

	// How the file was interpreted when loaded. A hot rebuild rescans with
	// the same type since the resolver isn't asked again.
	ModuleType config.ModuleType

	Repr        ModuleRepr
	SideEffects SideEffects
}

// Either *NormalRepr or *ExternalRepr
type ModuleRepr interface {
	Records() *[]ast.ImportRecord
}

func (m *Module) Normal() (*NormalRepr, bool) {
	repr, ok := m.Repr.(*NormalRepr)
	return repr, ok
}

func (m *Module) External() (*ExternalRepr, bool) {
	repr, ok := m.Repr.(*ExternalRepr)
	return repr, ok
}

type NormalRepr struct {
	ScanResult

	// The tree is rewritten in place by the finalizer, so a module must be
	// re-scanned before it can be finalized again
	Tree *js.AST

	// Root variables of the tree indexed by the inner index of their symbol.
	// Synthetic symbols such as the namespace object have no variable.
	Vars []*js.Var

	Meta LinkingMetadata
}

func (repr *NormalRepr) Records() *[]ast.ImportRecord {
	return &repr.ScanResult.ImportRecords
}

// External modules are left for the host environment to load. They only carry
// their specifier and the facade symbol that imports from them bind to.
type ExternalRepr struct {
	Specifier string
	FacadeRef ast.Ref
}

func (repr *ExternalRepr) Records() *[]ast.ImportRecord {
	return nil
}

type SideEffectsKind uint8

const (
	// Derived from the statements of the module by the scanner
	SideEffectsAnalyzed SideEffectsKind = iota

	// Declared by "package.json", the resolver, a plugin hook, or an option
	SideEffectsUserDefined

	// Tree shaking is disabled for this module so every statement is kept
	SideEffectsNoTreeshake
)

type SideEffects struct {
	Kind SideEffectsKind

	// For "SideEffectsAnalyzed" this is true if any statement has side effects.
	// For "SideEffectsUserDefined" this is the declared value.
	Value bool
}

func (s SideEffects) HasSideEffects() bool {
	return s.Kind == SideEffectsNoTreeshake || s.Value
}

func (s SideEffects) String() string {
	switch s.Kind {
	case SideEffectsAnalyzed:
		if s.Value {
			return "analyzed(true)"
		}
		return "analyzed(false)"
	case SideEffectsUserDefined:
		if s.Value {
			return "user-defined(true)"
		}
		return "user-defined(false)"
	default:
		return "no-treeshake"
	}
}
