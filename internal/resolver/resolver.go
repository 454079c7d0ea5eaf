package resolver

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hoistjs/hoist/internal/ast"
	"github.com/hoistjs/hoist/internal/cache"
	"github.com/hoistjs/hoist/internal/config"
	"github.com/hoistjs/hoist/internal/fs"
	"github.com/hoistjs/hoist/internal/logger"
)

var defaultMainFields = []string{"module", "main"}

var defaultExtensionOrder = []string{".js", ".mjs", ".cjs", ".json"}

type SideEffectsData struct {
	Source *logger.Source

	// If non-empty, this value came from a plugin
	PluginName string

	Range logger.Range

	// If true, "sideEffects" was an array. If false, "sideEffects" was a boolean.
	IsSideEffectsArrayInJSON bool

	// Whether the module is declared to have side effects
	HasSideEffects bool
}

type ResolveResult struct {
	Path logger.Path

	// External modules are left for the host environment to load
	IsExternal bool

	// If present, this overrides the side effects the scanner finds in the
	// module. For "package.json" files this comes from the "sideEffects" field.
	SideEffectsData *SideEffectsData

	// From the file extension or the "type" field in "package.json"
	ModuleType config.ModuleType
}

// Holds the trail of paths that were tried. If resolution fails these are
// attached to the error as notes. The trail is only recorded when the log
// level is "debug".
type DebugMeta struct {
	notes []logger.MsgData
}

func (dm DebugMeta) LogErrorMsg(log logger.Log, source *logger.Source, r logger.Range, text string) {
	log.AddMsg(logger.Msg{
		Kind:     logger.Error,
		Class:    logger.ClassResolution,
		Text:     text,
		Location: logger.LocationOrNil(source, r),
		Notes:    dm.notes,
	})
}

func (dm DebugMeta) Notes() []logger.MsgData {
	return dm.notes
}

type Resolver struct {
	fs      fs.FS
	log     logger.Log
	caches  *cache.CacheSet
	options *config.Options

	extensionOrder []string
	mainFields     []string

	// Maps a directory to the "package.json" file in it, or nil if there is
	// none. Guarded by "mutex" since the loader resolves from many goroutines.
	packageJSONCache map[string]*packageJSON
	mutex            sync.Mutex
}

type resolverQuery struct {
	*Resolver
	debugLogs *debugLogs
	kind      ast.ImportKind
}

func NewResolver(fs fs.FS, log logger.Log, caches *cache.CacheSet, options *config.Options) *Resolver {
	extensionOrder := options.ExtensionOrder
	if len(extensionOrder) == 0 {
		extensionOrder = defaultExtensionOrder
	}
	mainFields := options.MainFields
	if len(mainFields) == 0 {
		mainFields = defaultMainFields
	}
	return &Resolver{
		fs:               fs,
		log:              log,
		caches:           caches,
		options:          options,
		extensionOrder:   extensionOrder,
		mainFields:       mainFields,
		packageJSONCache: make(map[string]*packageJSON),
	}
}

// Resolve returns nil if the path could not be resolved. The returned debug
// metadata explains what was tried.
func (res *Resolver) Resolve(sourceDir string, importPath string, kind ast.ImportKind) (*ResolveResult, DebugMeta) {
	r := resolverQuery{
		Resolver: res,
		kind:     kind,
	}
	if res.log.Level <= logger.LevelDebug {
		r.debugLogs = &debugLogs{}
	}
	r.debugLogs.addNote(fmt.Sprintf("Resolving import %q in directory %q of kind %q",
		importPath, fs.PrettyPath(res.fs, sourceDir), kind.String()))

	result := r.resolve(sourceDir, importPath)
	return result, DebugMeta{notes: r.debugLogs.allNotes()}
}

func (r resolverQuery) resolve(sourceDir string, importPath string) *ResolveResult {
	if r.options.IsExternal(importPath) {
		r.debugLogs.addNote(fmt.Sprintf("Marked %q as external", importPath))
		return &ResolveResult{Path: logger.Path{Text: importPath}, IsExternal: true}
	}

	if !IsPackagePath(importPath) {
		absPath := importPath
		if !r.fs.IsAbs(absPath) {
			absPath = r.fs.Join(sourceDir, importPath)
		}
		if path, ok := r.loadAsFileOrDirectory(absPath); ok {
			return r.finalizeResolve(path)
		}
		return nil
	}

	if path, ok := r.loadNodeModules(importPath, sourceDir); ok {
		return r.finalizeResolve(path)
	}

	// Node's built-in modules are provided by the host
	if strings.HasPrefix(importPath, "node:") || BuiltInNodeModules[importPath] {
		r.debugLogs.addNote(fmt.Sprintf("Marked the built-in module %q as external", importPath))
		return &ResolveResult{Path: logger.Path{Text: importPath}, IsExternal: true}
	}
	return nil
}

func (r resolverQuery) finalizeResolve(path string) *ResolveResult {
	result := &ResolveResult{Path: logger.Path{Text: path, Namespace: "file"}}

	switch r.fs.Ext(path) {
	case ".mjs":
		result.ModuleType = config.ModuleTypeESM
	case ".cjs":
		result.ModuleType = config.ModuleTypeCommonJS
	case ".json":
		result.ModuleType = config.ModuleTypeJSON
	}

	if pkg := r.enclosingPackageJSON(r.fs.Dir(path)); pkg != nil {
		if result.ModuleType == config.ModuleTypeUnknown {
			result.ModuleType = pkg.moduleType
		}
		if data, ok := pkg.sideEffectsForPath(path); ok {
			result.SideEffectsData = data
		}
	}
	return result
}

func (r resolverQuery) loadAsFileOrDirectory(path string) (string, bool) {
	if absolute, ok := r.loadAsFile(path); ok {
		return absolute, true
	}

	// Is it a directory?
	if _, err := r.fs.ReadDirectory(path); err != nil {
		r.debugLogs.addNote(fmt.Sprintf("Failed to read directory %q", fs.PrettyPath(r.fs, path)))
		return "", false
	}

	if pkg := r.packageJSONInDir(path); pkg != nil {
		if absolute, ok := r.loadAsMainField(path, pkg); ok {
			return absolute, true
		}
	}
	return r.loadAsIndex(path)
}

func (r resolverQuery) loadAsFile(path string) (string, bool) {
	r.debugLogs.addNote(fmt.Sprintf("Attempting to load %q as a file", fs.PrettyPath(r.fs, path)))
	r.debugLogs.increaseIndent()
	defer r.debugLogs.decreaseIndent()

	// Read the directory entries once to minimize locking
	dirPath := r.fs.Dir(path)
	entries, err := r.fs.ReadDirectory(dirPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotFound) {
			r.log.AddMsg(logger.Msg{
				Kind:  logger.Error,
				Class: logger.ClassResolution,
				Text:  fmt.Sprintf("Cannot read directory %q: %s", fs.PrettyPath(r.fs, dirPath), err.Error()),
			})
		}
		return "", false
	}

	base := r.fs.Base(path)
	tryFile := func(name string) (string, bool) {
		r.debugLogs.addNote(fmt.Sprintf("Checking for file %q", name))
		if entry, ok := entries[name]; ok && entry.Kind == fs.FileEntry {
			return r.fs.Join(dirPath, name), true
		}
		return "", false
	}

	// Try the plain path without any extensions
	if absolute, ok := tryFile(base); ok {
		return absolute, true
	}

	// Try the path with extensions
	for _, ext := range r.extensionOrder {
		if absolute, ok := tryFile(base + ext); ok {
			return absolute, true
		}
	}
	return "", false
}

func (r resolverQuery) loadAsIndex(dirPath string) (string, bool) {
	entries, err := r.fs.ReadDirectory(dirPath)
	if err != nil {
		return "", false
	}
	for _, ext := range r.extensionOrder {
		base := "index" + ext
		if entry, ok := entries[base]; ok && entry.Kind == fs.FileEntry {
			return r.fs.Join(dirPath, base), true
		}
		r.debugLogs.addNote(fmt.Sprintf("Failed to find file %q", fs.PrettyPath(r.fs, r.fs.Join(dirPath, base))))
	}
	return "", false
}

func (r resolverQuery) loadAsMainField(dirPath string, pkg *packageJSON) (string, bool) {
	for _, field := range r.mainFields {
		main, ok := pkg.mainFields[field]
		if !ok {
			continue
		}

		// A require() call must get the CommonJS entry when the package has one
		if field == "module" && r.kind == ast.ImportRequire {
			if _, hasMain := pkg.mainFields["main"]; hasMain {
				r.debugLogs.addNote(`Skipping the "module" field because this is a require() call`)
				continue
			}
		}

		r.debugLogs.addNote(fmt.Sprintf("Found main field %q with path %q", field, main))
		mainPath := r.fs.Join(dirPath, main)
		if absolute, ok := r.loadAsFile(mainPath); ok {
			return absolute, true
		}
		if absolute, ok := r.loadAsIndex(mainPath); ok {
			return absolute, true
		}
	}
	return "", false
}

// Looks for "node_modules/<path>" in the source directory and each of its
// parents
func (r resolverQuery) loadNodeModules(importPath string, dirPath string) (string, bool) {
	for {
		if r.fs.Base(dirPath) != "node_modules" {
			absPath := r.fs.Join(dirPath, "node_modules", importPath)
			r.debugLogs.addNote(fmt.Sprintf("Checking for package in %q", fs.PrettyPath(r.fs, absPath)))
			if absolute, ok := r.loadAsFileOrDirectory(absPath); ok {
				return absolute, true
			}
		}

		parent := r.fs.Dir(dirPath)
		if parent == dirPath {
			return "", false
		}
		dirPath = parent
	}
}

func IsPackagePath(path string) bool {
	return !strings.HasPrefix(path, "/") && !strings.HasPrefix(path, "./") &&
		!strings.HasPrefix(path, "../") && path != "." && path != ".."
}

type debugLogs struct {
	indent string
	notes  []logger.MsgData
}

// A nil *debugLogs discards everything
func (d *debugLogs) addNote(text string) {
	if d == nil {
		return
	}
	if d.indent != "" {
		text = d.indent + text
	}
	d.notes = append(d.notes, logger.MsgData{Text: text})
}

func (d *debugLogs) allNotes() []logger.MsgData {
	if d == nil {
		return nil
	}
	return d.notes
}

func (d *debugLogs) increaseIndent() {
	if d != nil {
		d.indent += "  "
	}
}

func (d *debugLogs) decreaseIndent() {
	if d != nil {
		d.indent = d.indent[2:]
	}
}

// Resolved as external when no package of the same name is installed
var BuiltInNodeModules = map[string]bool{
	"_http_agent":         true,
	"_http_client":        true,
	"_http_common":        true,
	"_http_incoming":      true,
	"_http_outgoing":      true,
	"_http_server":        true,
	"_stream_duplex":      true,
	"_stream_passthrough": true,
	"_stream_readable":    true,
	"_stream_transform":   true,
	"_stream_wrap":        true,
	"_stream_writable":    true,
	"_tls_common":         true,
	"_tls_wrap":           true,
	"assert":              true,
	"assert/strict":       true,
	"async_hooks":         true,
	"buffer":              true,
	"child_process":       true,
	"cluster":             true,
	"console":             true,
	"constants":           true,
	"crypto":              true,
	"dgram":               true,
	"diagnostics_channel": true,
	"dns":                 true,
	"dns/promises":        true,
	"domain":              true,
	"events":              true,
	"fs":                  true,
	"fs/promises":         true,
	"http":                true,
	"http2":               true,
	"https":               true,
	"inspector":           true,
	"module":              true,
	"net":                 true,
	"os":                  true,
	"path":                true,
	"path/posix":          true,
	"path/win32":          true,
	"perf_hooks":          true,
	"process":             true,
	"punycode":            true,
	"querystring":         true,
	"readline":            true,
	"repl":                true,
	"stream":              true,
	"stream/consumers":    true,
	"stream/promises":     true,
	"stream/web":          true,
	"string_decoder":      true,
	"sys":                 true,
	"timers":              true,
	"timers/promises":     true,
	"tls":                 true,
	"trace_events":        true,
	"tty":                 true,
	"url":                 true,
	"util":                true,
	"util/types":          true,
	"v8":                  true,
	"vm":                  true,
	"wasi":                true,
	"worker_threads":      true,
	"zlib":                true,
}
