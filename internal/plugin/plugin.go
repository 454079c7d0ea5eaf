package plugin

// Plugins are called at fixed points of a build. The build treats an error
// from any hook as fatal: the module loader stops spawning work and the
// build returns the error instead of output files.
//
// Resolve and load hooks are "first" hooks: plugins are asked in order and
// the first one that returns a result wins. Transform hooks are chained, so
// each plugin sees the output of the previous one. All other hooks are
// called for every plugin in order.

import (
	"context"
	"errors"
	"fmt"

	"github.com/hoistjs/hoist/internal/ast"
	"github.com/hoistjs/hoist/internal/config"
	"github.com/hoistjs/hoist/internal/graph"
	"github.com/hoistjs/hoist/internal/logger"
)

type Hook uint8

const (
	HookBuildStart Hook = iota
	HookResolveID
	HookLoad
	HookTransform
	HookBuildEnd
	HookRenderStart
	HookRenderError
	HookGenerateBundle
	HookWriteBundle
	HookCloseBundle
)

func (hook Hook) String() string {
	switch hook {
	case HookBuildStart:
		return "buildStart"
	case HookResolveID:
		return "resolveId"
	case HookLoad:
		return "load"
	case HookTransform:
		return "transform"
	case HookBuildEnd:
		return "buildEnd"
	case HookRenderStart:
		return "renderStart"
	case HookRenderError:
		return "renderError"
	case HookGenerateBundle:
		return "generateBundle"
	case HookWriteBundle:
		return "writeBundle"
	case HookCloseBundle:
		return "closeBundle"
	}
	return ""
}

type ResolveArgs struct {
	Specifier string

	// Empty for entry points
	Importer string
	Kind     ast.ImportKind
}

type ResolveResult struct {
	// An absolute path, or a specifier when External is set
	Path     string
	External bool

	// Overrides every other source of side effect information for this
	// module when set
	SideEffects *bool

	ModuleType config.ModuleType
}

type LoadArgs struct {
	Path logger.Path
}

type LoadResult struct {
	Contents   string
	ModuleType config.ModuleType
}

type TransformArgs struct {
	Path     logger.Path
	Contents string
}

type BuildEndArgs struct {
	// The text of the first scan error, if the scan failed
	Error string
}

type Plugin struct {
	Name string

	BuildStart func(ctx context.Context) error

	// Return nil to let the next plugin or the default resolver decide
	ResolveID func(args ResolveArgs) (*ResolveResult, error)

	// Return nil to read the file from the file system instead
	Load func(args LoadArgs) (*LoadResult, error)

	// Return the unchanged contents to skip a file
	Transform func(args TransformArgs) (string, error)

	BuildEnd       func(ctx context.Context, args *BuildEndArgs) error
	RenderStart    func(ctx context.Context) error
	RenderError    func(ctx context.Context, err error) error
	GenerateBundle func(ctx context.Context, files *[]graph.OutputFile, isWrite bool) error
	WriteBundle    func(ctx context.Context, files []graph.OutputFile) error
	CloseBundle    func(ctx context.Context) error
}

// Error wraps an error returned by a hook with the plugin and hook that
// produced it
type Error struct {
	Plugin string
	Hook   Hook
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Plugin, e.Hook, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Converts an error from a hook into a fatal diagnostic
func Msg(err error, source *logger.Source, r logger.Range) logger.Msg {
	return logger.Msg{
		Kind:     logger.Error,
		Class:    logger.ClassPlugin,
		Text:     err.Error(),
		Location: logger.LocationOrNil(source, r),
	}
}

func IsPluginError(err error) bool {
	var pluginErr *Error
	return errors.As(err, &pluginErr)
}
