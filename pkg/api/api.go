package api

import (
	"github.com/hoistjs/hoist/internal/graph"
	"github.com/hoistjs/hoist/internal/plugin"
)

type SourceMap uint8

const (
	SourceMapNone SourceMap = iota
	SourceMapInline
	SourceMapLinked
	SourceMapExternal
)

type Format uint8

const (
	FormatESModule Format = iota
	FormatIIFE
	FormatCommonJS
	FormatApp
)

type ModuleSideEffects uint8

const (
	// True when tree shaking is enabled
	ModuleSideEffectsDefault ModuleSideEffects = iota
	ModuleSideEffectsTrue
	ModuleSideEffectsFalse
)

type Location struct {
	File     string
	Line     int // 1-based
	Column   int // 0-based, in bytes
	Length   int // in bytes
	LineText string
}

type Note struct {
	Text     string
	Location *Location
}

type Message struct {
	Text     string
	Location *Location
	Notes    []Note
}

type StderrColor uint8

const (
	ColorIfTerminal StderrColor = iota
	ColorNever
	ColorAlways
)

type LogLevel uint8

const (
	LogLevelSilent LogLevel = iota
	LogLevelDebug
	LogLevelInfo
	LogLevelWarning
	LogLevelError
)

////////////////////////////////////////////////////////////////////////////////
// Plugins

type Plugin = plugin.Plugin
type PluginResolveArgs = plugin.ResolveArgs
type PluginResolveResult = plugin.ResolveResult
type PluginLoadArgs = plugin.LoadArgs
type PluginLoadResult = plugin.LoadResult
type PluginTransformArgs = plugin.TransformArgs
type PluginBuildEndArgs = plugin.BuildEndArgs

// Plugins see the generated files in this form in the "GenerateBundle" and
// "WriteBundle" hooks
type PluginOutputFile = graph.OutputFile

////////////////////////////////////////////////////////////////////////////////
// Build API

type BuildOptions struct {
	Color      StderrColor
	ErrorLimit int
	LogLevel   LogLevel

	Sourcemap SourceMap

	GlobalName        string
	Outfile           string
	Outdir            string
	AbsWorkingDir     string
	Format            Format
	Externals         []string
	ResolveExtensions []string
	MainFields        []string

	// Every statement of every module is kept when set
	NoTreeShaking        bool
	ModuleSideEffects    ModuleSideEffects
	StrictMissingExports bool

	EntryPoints []string
	Plugins     []Plugin
}

type OutputKind uint8

const (
	OutputChunk OutputKind = iota
	OutputSourceMap
	OutputHMRPatch
)

type OutputFile struct {
	Path     string
	Contents []byte
	Kind     OutputKind
}

type BuildResult struct {
	Errors   []Message
	Warnings []Message

	OutputFiles []OutputFile
}

type HMRResult struct {
	Errors   []Message
	Warnings []Message

	// Nil when none of the changed files differ from the previous build
	Patch *OutputFile

	// The stable ids of the modules in the patch
	UpdatedModules []string
}

// NewBundler never fails. Invalid options are reported by the first build.
func NewBundler(options BuildOptions) *Bundler {
	return newBundler(options, nil)
}
