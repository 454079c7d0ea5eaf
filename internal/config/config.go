package config

import (
	"github.com/bmatcuk/doublestar/v4"
)

type SourceMap uint8

const (
	SourceMapNone SourceMap = iota
	SourceMapInline
	SourceMapLinkedWithComment
	SourceMapExternalWithoutComment
)

type Format uint8

const (
	// The ES module format looks like this:
	//
	//   ... bundled code ...
	//   export {...};
	//
	FormatESModule Format = iota

	// IIFE stands for immediately-invoked function expression. That looks like
	// this:
	//
	//   (() => {
	//     ... bundled code ...
	//   })();
	//
	// If the optional GlobalName is configured, then we'll write out this:
	//
	//   var globalName = (() => {
	//     ... bundled code ...
	//     return exports;
	//   })();
	//
	FormatIIFE

	// The CommonJS format looks like this:
	//
	//   ... bundled code ...
	//   module.exports = exports;
	//
	FormatCommonJS

	// The app format keeps every module in its own registered closure so that
	// a hot patch can replace one module without re-evaluating the others:
	//
	//   ... runtime registry ...
	//   hoist_runtime.define("src/a.js", function(require, module, exports) {...});
	//   hoist_runtime.require("src/entry.js");
	//
	FormatApp
)

func (f Format) String() string {
	switch f {
	case FormatESModule:
		return "esm"
	case FormatIIFE:
		return "iife"
	case FormatCommonJS:
		return "cjs"
	case FormatApp:
		return "app"
	}
	return ""
}

// Whether all modules share one top-level scope in the output
func (f Format) IsFlattened() bool {
	return f != FormatApp
}

// A tri-state for the global "moduleSideEffects" option. Unset only survives
// normalization when tree shaking is disabled.
type ModuleSideEffects uint8

const (
	ModuleSideEffectsUnset ModuleSideEffects = iota
	ModuleSideEffectsTrue
	ModuleSideEffectsFalse
)

type Options struct {
	EntryPoints []string

	AbsOutputFile string
	AbsOutputDir  string
	AbsWorkingDir string

	OutputFormat Format
	GlobalName   string

	// Patterns such as "react" or "@scope/*". Matching specifiers are left for
	// the host environment to resolve at run time.
	ExternalModules []string

	ExtensionOrder []string
	MainFields     []string

	TreeShaking          bool
	ModuleSideEffects    ModuleSideEffects
	StrictMissingExports bool

	SourceMap SourceMap

	// If false, assets are returned to the caller instead of written to disk
	WriteToDisk bool

	OmitRuntimeForTests bool
}

func (options *Options) IsExternal(specifier string) bool {
	for _, pattern := range options.ExternalModules {
		if pattern == specifier {
			return true
		}
		if ok, err := doublestar.Match(pattern, specifier); err == nil && ok {
			return true
		}

		// "react" also marks "react/jsx-runtime" as external
		if len(specifier) > len(pattern) && specifier[len(pattern)] == '/' && specifier[:len(pattern)] == pattern {
			return true
		}
	}
	return false
}

// A hint from the resolver about how a file should be interpreted. Only used
// when the file itself has no import, export, "module" or "exports" syntax.
type ModuleType uint8

const (
	ModuleTypeUnknown ModuleType = iota
	ModuleTypeESM
	ModuleTypeCommonJS

	// The file is JSON and is loaded as "module.exports = <contents>"
	ModuleTypeJSON
)

func (t ModuleType) String() string {
	switch t {
	case ModuleTypeESM:
		return "esm"
	case ModuleTypeCommonJS:
		return "commonjs"
	case ModuleTypeJSON:
		return "json"
	}
	return ""
}
