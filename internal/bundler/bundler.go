package bundler

// The module loader discovers the module graph. Every module is parsed and
// scanned on its own goroutine, and the goroutine also runs the resolver for
// the module's import records so that the main loop is never blocked on the
// file system. The main loop is the only place that touches the visited map,
// the module table and the symbol table. It allocates a source index for each
// newly discovered path and spawns a task for it, and keeps going until the
// number of outstanding tasks drops to zero.

import (
	"context"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/hoistjs/hoist/internal/ast"
	"github.com/hoistjs/hoist/internal/cache"
	"github.com/hoistjs/hoist/internal/config"
	"github.com/hoistjs/hoist/internal/fs"
	"github.com/hoistjs/hoist/internal/graph"
	"github.com/hoistjs/hoist/internal/helpers"
	"github.com/hoistjs/hoist/internal/logger"
	"github.com/hoistjs/hoist/internal/plugin"
	"github.com/hoistjs/hoist/internal/resolver"
	"github.com/hoistjs/hoist/internal/runtime"
	"github.com/hoistjs/hoist/internal/scanner"
)

// Returned when a fatal diagnostic or a cancelled context stopped the loader.
// The diagnostics themselves are in the log.
var ErrLoaderAborted = errors.New("module loader aborted")

// Returned when the graph was fully discovered but some modules could not be
// resolved, parsed or scanned
var ErrScanFailed = errors.New("scan failed")

// Backpressure for runaway fan-out. Workers block on send once this many
// results are waiting for the main loop.
const resultChannelCapacity = 1024

type Bundle struct {
	Table   *graph.ModuleTable
	Symbols *ast.SymbolMap
}

// Watch mode needs the paths of every module that was read from disk
func (b *Bundle) WatchFiles() []string {
	var paths []string
	for _, module := range b.Table.Modules {
		if _, ok := module.Normal(); ok && module.Source.KeyPath.Namespace == "file" {
			paths = append(paths, module.Source.KeyPath.Text)
		}
	}
	return paths
}

type Args struct {
	FS       fs.FS
	Log      logger.Log
	Resolver *resolver.Resolver
	Caches   *cache.CacheSet
	Plugins  *plugin.Driver
	Options  *config.Options
	Timer    *helpers.Timer
}

type parseArgs struct {
	ctx             context.Context
	args            *Args
	keyPath         logger.Path
	prettyPath      string
	sourceIndex     uint32
	moduleType      config.ModuleType
	importSource    *logger.Source
	importPathRange logger.Range
	isRuntime       bool
	results         chan<- parseResult
}

type parseResult struct {
	sourceIndex uint32
	module      graph.Module
	ok          bool

	// Set when this task logged a diagnostic that must stop the build
	fatal bool

	// Indexed by import record. Nil for records that failed to resolve.
	resolveResults []*resolvedImport
}

type resolvedImport struct {
	path       logger.Path
	prettyPath string
	isExternal bool
	moduleType config.ModuleType

	// A plugin's opinion overrides "package.json"
	pluginSideEffects *bool
	sideEffectsData   *resolver.SideEffectsData
}

// The visited map is keyed by this so that an external specifier can never
// collide with a file path
func (r *resolvedImport) visitedKey() string {
	if r.isExternal {
		return "external:" + r.path.Text
	}
	if r.path.Namespace == "file" {
		return r.path.Text
	}
	return r.path.Namespace + ":" + r.path.Text
}

type loader struct {
	ctx     context.Context
	args    *Args
	table   *graph.ModuleTable
	symbols *ast.SymbolMap
	results chan parseResult

	// Per-module side effect overrides from the resolver, applied once the
	// module's scan result arrives
	pendingSideEffects map[uint32]*resolvedImport

	// Side effects of rescanned modules that came from the resolver or a
	// plugin in the previous build
	keptSideEffects map[uint32]graph.SideEffects

	// Number of spawned tasks whose result has not been processed yet
	remaining int
	aborted   bool
}

func newLoader(ctx context.Context, args *Args, table *graph.ModuleTable, symbols *ast.SymbolMap) *loader {
	return &loader{
		ctx:                ctx,
		args:               args,
		table:              table,
		symbols:            symbols,
		results:            make(chan parseResult, resultChannelCapacity),
		pendingSideEffects: make(map[uint32]*resolvedImport),
	}
}

// ScanBundle loads the runtime and every module reachable from the entry
// points. No partial graph is returned on failure: the diagnostics are in the
// log and the error says whether the loader was aborted early.
func ScanBundle(ctx context.Context, args Args) (*Bundle, error) {
	args.Timer.Begin("Scan phase")
	defer args.Timer.End("Scan phase")

	l := newLoader(ctx, &args, graph.NewModuleTable(), ast.NewSymbolMap(0))

	// Always start by parsing the runtime file
	runtimeSource := runtime.Source()
	l.table.Allocate(runtimeSource.KeyPath.Namespace + ":" + runtimeSource.KeyPath.Text)
	l.spawn(parseArgs{
		keyPath:     runtimeSource.KeyPath,
		prettyPath:  runtimeSource.PrettyPath,
		sourceIndex: graph.RuntimeSourceIndex,
		isRuntime:   true,
	})

	l.addEntryPoints()
	l.loop()

	if err := l.finish(); err != nil {
		return nil, err
	}
	return &Bundle{Table: l.table, Symbols: l.symbols}, nil
}

func (l *loader) addEntryPoints() {
	options := l.args.Options
	cwd := options.AbsWorkingDir
	if cwd == "" {
		cwd = l.args.FS.Cwd()
	}
	duplicateEntryPoints := make(map[string]bool)

	for _, entryPath := range options.EntryPoints {
		resolved, fatal := resolveImport(l.args, nil, logger.Range{}, entryPath, ast.ImportEntryPoint, cwd)
		if fatal {
			l.aborted = true
			return
		}
		if resolved == nil {
			continue
		}
		if resolved.isExternal {
			l.args.Log.AddError(nil, logger.ClassResolution, logger.Loc{},
				fmt.Sprintf("The entry point %q cannot be marked as external", entryPath))
			continue
		}
		key := resolved.visitedKey()
		if duplicateEntryPoints[key] {
			l.args.Log.AddError(nil, logger.ClassResolution, logger.Loc{},
				fmt.Sprintf("Duplicate entry point %q", resolved.prettyPath))
			continue
		}
		duplicateEntryPoints[key] = true
		sourceIndex := l.maybeParseFile(resolved, nil, logger.Range{})
		l.table.EntryPoints = append(l.table.EntryPoints, sourceIndex)
	}
}

func (l *loader) spawn(args parseArgs) {
	l.remaining++
	args.ctx = l.ctx
	args.args = l.args
	args.results = l.results
	go parseFile(args)
}

// Returns the source index for this path, spawning a task the first time the
// path is seen
func (l *loader) maybeParseFile(resolved *resolvedImport, importSource *logger.Source, importPathRange logger.Range) uint32 {
	sourceIndex, isNew := l.table.Allocate(resolved.visitedKey())
	if isNew {
		l.pendingSideEffects[sourceIndex] = resolved
		l.spawn(parseArgs{
			keyPath:         resolved.path,
			prettyPath:      resolved.prettyPath,
			sourceIndex:     sourceIndex,
			moduleType:      resolved.moduleType,
			importSource:    importSource,
			importPathRange: importPathRange,
		})
	}
	return sourceIndex
}

// External modules are never parsed. They get a table slot right away along
// with a facade symbol that imports from them bind to.
func (l *loader) allocateExternal(resolved *resolvedImport, importSource *logger.Source, importPathRange logger.Range) uint32 {
	sourceIndex, isNew := l.table.Allocate(resolved.visitedKey())
	if !isNew {
		return sourceIndex
	}

	specifier := resolved.path.Text
	name := helpers.NonUniqueNameFromPath(specifier)
	facadeRef := l.symbols.NewSymbol(sourceIndex, ast.Symbol{
		OriginalName: "import_" + name,
		Kind:         ast.SymbolFacade,
	})

	sideEffects, err := externalSideEffects(l.args.Options, resolved.pluginSideEffects)
	if err != nil {
		l.args.Log.AddMsg(logger.Msg{
			Kind:     logger.Error,
			Class:    logger.ClassInfrastructure,
			Text:     fmt.Sprintf("Cannot determine side effects of external module %q: %s", specifier, err.Error()),
			Location: logger.LocationOrNil(importSource, importPathRange),
		})
		l.aborted = true
	}

	l.table.Modules[sourceIndex] = graph.Module{
		Source: logger.Source{
			Index:          sourceIndex,
			KeyPath:        logger.Path{Text: specifier, Namespace: "external"},
			PrettyPath:     specifier,
			IdentifierName: name,
		},
		StableID:    specifier,
		Repr:        &graph.ExternalRepr{Specifier: specifier, FacadeRef: facadeRef},
		SideEffects: sideEffects,
	}
	return sourceIndex
}

// Continue until all dependencies have been discovered. Once the loader is
// aborted it stops spawning and throws away results, but it still waits for
// every task so that no goroutine outlives the build.
func (l *loader) loop() {
	for l.remaining > 0 {
		result := <-l.results
		l.remaining--

		if !l.aborted && l.ctx.Err() != nil {
			l.aborted = true
		}
		if result.fatal {
			l.aborted = true
		}
		if l.aborted || !result.ok {
			continue
		}
		l.ingest(result)
	}
}

func (l *loader) ingest(result parseResult) {
	repr, _ := result.module.Normal()
	records := repr.Records()
	source := &result.module.Source

	for i := range *records {
		record := &(*records)[i]
		resolved := result.resolveResults[i]
		if resolved == nil {
			continue
		}
		var sourceIndex uint32
		if resolved.isExternal {
			sourceIndex = l.allocateExternal(resolved, source, record.Range)
			record.Flags |= ast.IsExternal
		} else {
			sourceIndex = l.maybeParseFile(resolved, source, record.Range)
		}
		record.SourceIndex = ast.MakeIndex32(sourceIndex)
	}

	if kept, ok := l.keptSideEffects[result.sourceIndex]; ok && kept.Kind == graph.SideEffectsUserDefined {
		result.module.SideEffects = kept
	} else {
		result.module.SideEffects = moduleSideEffects(l.args.Options, l.pendingSideEffects[result.sourceIndex], repr.HasSideEffects, result.sourceIndex)
	}
	delete(l.pendingSideEffects, result.sourceIndex)

	// The symbol table owns the symbols from here on
	l.symbols.SetModuleSymbols(result.sourceIndex, repr.Symbols)
	repr.Symbols = nil

	l.table.Modules[result.sourceIndex] = result.module
}

func (l *loader) finish() error {
	if l.aborted {
		if err := l.ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrLoaderAborted, err)
		}
		return ErrLoaderAborted
	}
	if l.args.Log.HasErrors() {
		return ErrScanFailed
	}
	return nil
}

func parseFile(args parseArgs) {
	log := args.args.Log
	source := logger.Source{
		Index:          args.sourceIndex,
		KeyPath:        args.keyPath,
		PrettyPath:     args.prettyPath,
		IdentifierName: helpers.NonUniqueNameFromPath(args.keyPath.Text),
	}
	result := parseResult{sourceIndex: args.sourceIndex}

	// A panic in one task must not take down the process. It is reported as
	// an infrastructure error, which stops the build.
	defer func() {
		if r := recover(); r != nil {
			log.AddMsg(logger.Msg{
				Kind:     logger.Error,
				Class:    logger.ClassInfrastructure,
				Text:     fmt.Sprintf("panic while loading %q: %v", source.PrettyPath, r),
				Location: logger.LocationOrNil(args.importSource, args.importPathRange),
				Notes:    []logger.MsgData{{Text: helpers.PrettyPrintedStack()}},
			})
			args.results <- parseResult{sourceIndex: args.sourceIndex, fatal: true}
		}
	}()

	if args.ctx.Err() != nil {
		args.results <- result
		return
	}

	moduleType := args.moduleType
	var contentHash uint64
	if args.isRuntime {
		source = runtime.Source()
		contentHash = xxhash.Sum64String(source.Contents)
	} else {
		contents, hash, loadedType, ok, fatal := loadFile(args, &source)
		if !ok {
			result.fatal = fatal
			args.results <- result
			return
		}
		source.Contents = contents
		contentHash = hash
		if loadedType != config.ModuleTypeUnknown {
			moduleType = loadedType
		}
		if moduleType == config.ModuleTypeJSON {
			source.Contents = "module.exports = " + source.Contents + ";\n"
		}
	}

	tree, msg := scanner.Parse(&source)
	if msg != nil {
		if args.isRuntime {
			msg.Class = logger.ClassInfrastructure
			result.fatal = true
		}
		log.AddMsg(*msg)
		args.results <- result
		return
	}

	scan, vars, ok := scanner.Scan(log, &source, tree, scanner.Options{ModuleType: moduleType})
	for _, warning := range scan.Warnings {
		log.AddMsg(warning)
	}
	if !ok {
		result.fatal = args.isRuntime
		args.results <- result
		return
	}
	scan.ContentHash = contentHash

	result.module = graph.Module{
		Source:     source,
		StableID:   source.PrettyPath,
		ModuleType: moduleType,
		Repr:       &graph.NormalRepr{ScanResult: scan, Tree: tree, Vars: vars},
	}

	// Run the resolver on the parse goroutine so the main loop isn't blocked
	// if the resolver takes a while
	records := scan.ImportRecords
	result.resolveResults = make([]*resolvedImport, len(records))
	if len(records) > 0 {
		resolveDir := args.args.FS.Dir(source.KeyPath.Text)
		resolverCache := make(map[ast.ImportKind]map[string]*resolvedImport)

		for i := range records {
			record := &records[i]

			// Cache the path in case it's imported multiple times in this file
			cache, ok := resolverCache[record.Kind]
			if !ok {
				cache = make(map[string]*resolvedImport)
				resolverCache[record.Kind] = cache
			}
			if resolved, ok := cache[record.Path.Text]; ok {
				result.resolveResults[i] = resolved
				continue
			}

			resolved, fatal := resolveImport(args.args, &source, record.Range, record.Path.Text, record.Kind, resolveDir)
			if fatal {
				result.fatal = true
				args.results <- result
				return
			}
			cache[record.Path.Text] = resolved
			result.resolveResults[i] = resolved
		}
	}

	result.ok = true
	args.results <- result
}

// Asks the plugins first and falls back to reading the file. The returned
// hash is of the final contents after all transforms.
func loadFile(args parseArgs, source *logger.Source) (contents string, hash uint64, moduleType config.ModuleType, ok bool, fatal bool) {
	log := args.args.Log
	driver := args.args.Plugins

	loaded, _, err := driver.Load(plugin.LoadArgs{Path: source.KeyPath})
	if err != nil {
		log.AddMsg(plugin.Msg(err, args.importSource, args.importPathRange))
		return "", 0, 0, false, true
	}
	if loaded != nil {
		contents = loaded.Contents
		moduleType = loaded.ModuleType
		hash = xxhash.Sum64String(contents)
	} else {
		contents, hash, err = args.args.Caches.FSCache.ReadFile(args.args.FS, source.KeyPath.Text)
		if err != nil {
			text := fmt.Sprintf("Could not read from file: %s", source.KeyPath.Text)
			if errors.Is(err, fs.ErrNotFound) {
				text = fmt.Sprintf("Could not find file: %s", source.PrettyPath)
			}
			log.AddRangeError(args.importSource, logger.ClassResolution, args.importPathRange, text)
			return "", 0, 0, false, false
		}
	}

	if driver.Len() > 0 {
		transformed, err := driver.Transform(plugin.TransformArgs{Path: source.KeyPath, Contents: contents})
		if err != nil {
			log.AddMsg(plugin.Msg(err, args.importSource, args.importPathRange))
			return "", 0, 0, false, true
		}
		if transformed != contents {
			contents = transformed
			hash = xxhash.Sum64String(contents)
		}
	}
	return contents, hash, moduleType, true, false
}

// Runs the resolve hooks and then the default resolver. A nil result means
// the failure was logged. "fatal" is set when a plugin returned an error.
func resolveImport(
	args *Args,
	importSource *logger.Source,
	importPathRange logger.Range,
	specifier string,
	kind ast.ImportKind,
	resolveDir string,
) (result *resolvedImport, fatal bool) {
	importer := ""
	if importSource != nil {
		importer = importSource.KeyPath.Text
	}

	pluginResult, pluginName, err := args.Plugins.ResolveID(plugin.ResolveArgs{Specifier: specifier, Importer: importer, Kind: kind})
	if err != nil {
		args.Log.AddMsg(plugin.Msg(err, importSource, importPathRange))
		return nil, true
	}
	if pluginResult != nil {
		if pluginResult.External {
			return &resolvedImport{
				path:              logger.Path{Text: pluginResult.Path},
				prettyPath:        pluginResult.Path,
				isExternal:        true,
				pluginSideEffects: pluginResult.SideEffects,
			}, false
		}
		if pluginResult.Path == "" {
			args.Log.AddRangeError(importSource, logger.ClassResolution, importPathRange,
				fmt.Sprintf("Could not resolve %q (the plugin %q returned an empty path)", specifier, pluginName))
			return nil, false
		}
		path := logger.Path{Text: pluginResult.Path, Namespace: "file"}
		if !args.FS.IsAbs(pluginResult.Path) {
			path.Namespace = "virtual"
		}
		return &resolvedImport{
			path:              path,
			prettyPath:        prettyPathFor(args.FS, path),
			moduleType:        pluginResult.ModuleType,
			pluginSideEffects: pluginResult.SideEffects,
		}, false
	}

	resolveResult, debug := args.Resolver.Resolve(resolveDir, specifier, kind)
	if resolveResult == nil {
		hint := ""
		if resolver.IsPackagePath(specifier) {
			hint = " (mark it as external to exclude it from the bundle)"
		}
		debug.LogErrorMsg(args.Log, importSource, importPathRange, fmt.Sprintf("Could not resolve %q%s", specifier, hint))
		return nil, false
	}
	return &resolvedImport{
		path:            resolveResult.Path,
		prettyPath:      prettyPathFor(args.FS, resolveResult.Path),
		isExternal:      resolveResult.IsExternal,
		moduleType:      resolveResult.ModuleType,
		sideEffectsData: resolveResult.SideEffectsData,
	}, false
}

func prettyPathFor(fsys fs.FS, path logger.Path) string {
	if path.Namespace == "file" {
		return fs.PrettyPath(fsys, path.Text)
	}
	return path.Text
}
