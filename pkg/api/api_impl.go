package api

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hoistjs/hoist/internal/api_helpers"
	"github.com/hoistjs/hoist/internal/bundler"
	"github.com/hoistjs/hoist/internal/cache"
	"github.com/hoistjs/hoist/internal/config"
	"github.com/hoistjs/hoist/internal/finalizer"
	"github.com/hoistjs/hoist/internal/fs"
	"github.com/hoistjs/hoist/internal/graph"
	"github.com/hoistjs/hoist/internal/helpers"
	"github.com/hoistjs/hoist/internal/linker"
	"github.com/hoistjs/hoist/internal/logger"
	"github.com/hoistjs/hoist/internal/plugin"
	"github.com/hoistjs/hoist/internal/printer"
	"github.com/hoistjs/hoist/internal/renamer"
	"github.com/hoistjs/hoist/internal/resolver"
)

var ErrBundlerClosed = errors.New("bundler is closed")
var ErrInvalidOptions = errors.New("invalid build options")
var ErrNoPreviousBuild = errors.New("hot rebuild needs a successful build first")
var ErrHMRNeedsAppFormat = errors.New("hot rebuild needs the \"app\" format")

// Bundler runs builds with one set of options. It keeps the module graph of
// its last successful build so that "HMRRebuild" only needs to rescan the
// files that changed. Calls are serialized.
type Bundler struct {
	mutex sync.Mutex

	fs       fs.FS
	options  config.Options
	caches   *cache.CacheSet
	plugins  *plugin.Driver
	logLevel LogLevel
	stderr   logger.StderrOptions

	// Diagnostics from validating the options, repeated in every build
	validateMsgs []logger.Msg

	prev      *bundler.Bundle
	prevWrote bool
	closed    bool
}

func newBundler(options BuildOptions, fsys fs.FS) *Bundler {
	if fsys == nil {
		fsys = fs.RealFS()
	}
	validateLog := logger.NewDeferLog()
	b := &Bundler{
		fs:       fsys,
		options:  validateBuildOptions(validateLog, fsys, options),
		caches:   cache.MakeCacheSet(),
		plugins:  plugin.NewDriver(options.Plugins),
		logLevel: options.LogLevel,
		stderr: logger.StderrOptions{
			IncludeSource: true,
			ErrorLimit:    options.ErrorLimit,
			Color:         validateColor(options.Color),
			LogLevel:      validateLogLevel(options.LogLevel),
		},
	}
	b.validateMsgs = validateLog.Done()
	return b
}

func (b *Bundler) newLog() logger.Log {
	var log logger.Log
	if b.logLevel == LogLevelSilent {
		log = logger.NewDeferLog()
	} else {
		log = logger.NewStderrLog(b.stderr)
	}
	for _, msg := range b.validateMsgs {
		log.AddMsg(msg)
	}
	return log
}

func (b *Bundler) newTimer() *helpers.Timer {
	if api_helpers.UseTimer && b.logLevel == LogLevelDebug {
		return &helpers.Timer{}
	}
	return nil
}

// Build runs a build and returns the generated files without writing them
func (b *Bundler) Build(ctx context.Context) (BuildResult, error) {
	return b.build(ctx, false)
}

// Write runs a build and writes the generated files, creating directories
// as needed
func (b *Bundler) Write(ctx context.Context) (BuildResult, error) {
	return b.build(ctx, true)
}

func (b *Bundler) build(ctx context.Context, isWrite bool) (BuildResult, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.closed {
		return BuildResult{}, ErrBundlerClosed
	}
	log := b.newLog()
	timer := b.newTimer()
	if logger.HasErrors(b.validateMsgs) {
		return b.buildResult(log, timer, nil, ErrInvalidOptions)
	}
	options := b.options
	options.WriteToDisk = isWrite
	if isWrite && !hasOutputPath(&options) {
		log.AddError(nil, logger.ClassNone, logger.Loc{}, "Must use \"outfile\" or \"outdir\" when writing files")
		return b.buildResult(log, timer, nil, ErrInvalidOptions)
	}

	if err := b.plugins.BuildStart(ctx); err != nil {
		return b.buildResult(log, timer, nil, hookFailed(log, err))
	}

	bundle, scanErr := bundler.ScanBundle(ctx, b.scanArgs(log, &options, timer))
	endArgs := &plugin.BuildEndArgs{}
	if scanErr != nil {
		endArgs.Error = scanErr.Error()
	}
	if err := b.plugins.BuildEnd(ctx, endArgs); err != nil && scanErr == nil {
		scanErr = hookFailed(log, err)
	}
	if scanErr != nil {
		if err := b.plugins.CloseBundle(ctx); err != nil {
			hookFailed(log, err)
		}
		return b.buildResult(log, timer, nil, scanErr)
	}

	chunks, err := linker.Link(log, b.fs, &options, bundle.Table, bundle.Symbols, timer)
	if err != nil {
		return b.buildResult(log, timer, nil, err)
	}

	if err := b.plugins.RenderStart(ctx); err != nil {
		return b.buildResult(log, timer, nil, hookFailed(log, err))
	}
	files, err := generate(ctx, b.fs, &options, bundle, chunks, timer)
	if err != nil {
		log.AddMsg(logger.Msg{Kind: logger.Error, Class: logger.ClassInfrastructure, Text: err.Error()})
		if hookErr := b.plugins.RenderError(ctx, err); hookErr != nil {
			hookFailed(log, hookErr)
		}
		return b.buildResult(log, timer, nil, err)
	}
	if err := b.plugins.GenerateBundle(ctx, &files, isWrite); err != nil {
		return b.buildResult(log, timer, nil, hookFailed(log, err))
	}

	if isWrite {
		if err := b.writeFiles(log, timer, files); err != nil {
			return b.buildResult(log, timer, nil, err)
		}
		if err := b.plugins.WriteBundle(ctx, files); err != nil {
			return b.buildResult(log, timer, nil, hookFailed(log, err))
		}
	}

	b.prev = bundle
	b.prevWrote = isWrite
	return b.buildResult(log, timer, files, nil)
}

func (b *Bundler) scanArgs(log logger.Log, options *config.Options, timer *helpers.Timer) bundler.Args {
	return bundler.Args{
		FS:       b.fs,
		Log:      log,
		Resolver: resolver.NewResolver(b.fs, log, b.caches, options),
		Caches:   b.caches,
		Plugins:  b.plugins,
		Options:  options,
		Timer:    timer,
	}
}

// Finalizes every chunk's modules and prints the chunks. The flattening
// formats share one renamer across all chunks. The app format flattens only
// the runtime and isolates every other module.
func generate(
	ctx context.Context,
	fsys fs.FS,
	options *config.Options,
	bundle *bundler.Bundle,
	chunks []linker.Chunk,
	timer *helpers.Timer,
) ([]graph.OutputFile, error) {
	finalizerArgs := finalizer.Args{Options: options, Table: bundle.Table, Symbols: bundle.Symbols, Timer: timer}
	r := renamer.NewRenamer(bundle.Symbols, renamer.ComputeReservedNames(bundle.Table, bundle.Symbols))

	if options.OutputFormat.IsFlattened() {
		timer.Begin("Rename symbols")
		for _, chunk := range chunks {
			if err := r.AssignTopLevelNames(bundle.Table, chunk.Modules); err != nil {
				timer.End("Rename symbols")
				return nil, err
			}
		}
		timer.End("Rename symbols")
		if err := finalizer.Flatten(ctx, finalizerArgs, chunks, r.TopLevelNames()); err != nil {
			return nil, err
		}
	} else {
		runtimeOnly := []linker.Chunk{{Modules: []uint32{graph.RuntimeSourceIndex}}}
		if err := r.AssignTopLevelNames(bundle.Table, runtimeOnly[0].Modules); err != nil {
			return nil, err
		}
		if err := finalizer.Flatten(ctx, finalizerArgs, runtimeOnly, r.TopLevelNames()); err != nil {
			return nil, err
		}
		if err := finalizer.Isolate(ctx, finalizerArgs, uniqueModules(chunks)); err != nil {
			return nil, err
		}
	}

	return printer.PrintChunks(ctx, printer.Args{
		Options: options,
		FS:      fsys,
		Table:   bundle.Table,
		Symbols: bundle.Symbols,
		Timer:   timer,
	}, chunks)
}

func uniqueModules(chunks []linker.Chunk) []uint32 {
	var modules []uint32
	seen := make(map[uint32]bool)
	for _, chunk := range chunks {
		for _, sourceIndex := range chunk.Modules {
			if !seen[sourceIndex] {
				seen[sourceIndex] = true
				modules = append(modules, sourceIndex)
			}
		}
	}
	return modules
}

func (b *Bundler) writeFiles(log logger.Log, timer *helpers.Timer, files []graph.OutputFile) error {
	timer.Begin("Write output files")
	defer timer.End("Write output files")

	for _, file := range files {
		if err := b.fs.WriteFile(file.AbsPath, file.Contents); err != nil {
			err = fmt.Errorf("write %q: %w", file.AbsPath, err)
			log.AddMsg(logger.Msg{Kind: logger.Error, Class: logger.ClassInfrastructure, Text: err.Error()})
			return err
		}
	}
	return nil
}

// Lifecycle hooks have no source location, so their errors are logged here.
// Resolve, load and transform errors are logged by the module loader.
func hookFailed(log logger.Log, err error) error {
	log.AddMsg(plugin.Msg(err, nil, logger.Range{}))
	return err
}

func (b *Bundler) buildResult(log logger.Log, timer *helpers.Timer, files []graph.OutputFile, err error) (BuildResult, error) {
	timer.Log(log)
	msgs := log.Done()
	result := BuildResult{
		Errors:   messagesOfKind(logger.Error, msgs),
		Warnings: messagesOfKind(logger.Warning, msgs),
	}
	if err != nil {
		return result, err
	}
	for _, file := range files {
		result.OutputFiles = append(result.OutputFiles, convertOutputFile(file))
	}
	return result, nil
}

////////////////////////////////////////////////////////////////////////////////
// Hot rebuilds

// HMRRebuild rescans "changedPaths" against the last successful build and
// returns a patch with every module whose contents changed. The patch is
// written too if the last build wrote its files. A failed rebuild keeps the
// previous graph, so the next rebuild is again relative to the last good one.
func (b *Bundler) HMRRebuild(ctx context.Context, changedPaths []string) (HMRResult, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.closed {
		return HMRResult{}, ErrBundlerClosed
	}
	if b.options.OutputFormat != config.FormatApp {
		return HMRResult{}, ErrHMRNeedsAppFormat
	}
	if b.prev == nil {
		return HMRResult{}, ErrNoPreviousBuild
	}

	log := b.newLog()
	timer := b.newTimer()
	options := b.options
	options.WriteToDisk = b.prevWrote

	absPaths := make([]string, 0, len(changedPaths))
	for _, path := range changedPaths {
		absPaths = append(absPaths, validatePath(log, b.fs, options.AbsWorkingDir, path))
	}

	hmr, err := bundler.ScanHMR(ctx, b.scanArgs(log, &options, timer), b.prev, absPaths)
	if err != nil {
		return hmrResult(log, timer, nil, nil, err)
	}
	b.prev = &hmr.Bundle
	if len(hmr.DiffModules) == 0 {
		return hmrResult(log, timer, nil, nil, nil)
	}

	finalizerArgs := finalizer.Args{Options: &options, Table: hmr.Table, Symbols: hmr.Symbols, Timer: timer}
	if err := finalizer.Isolate(ctx, finalizerArgs, hmr.DiffModules); err != nil {
		log.AddMsg(logger.Msg{Kind: logger.Error, Class: logger.ClassInfrastructure, Text: err.Error()})
		return hmrResult(log, timer, nil, nil, err)
	}
	patch := printer.PrintHMRPatch(printer.Args{
		Options: &options,
		FS:      b.fs,
		Table:   hmr.Table,
		Symbols: hmr.Symbols,
		Timer:   timer,
	}, hmr.DiffModules)

	if options.WriteToDisk {
		if err := b.writeFiles(log, timer, []graph.OutputFile{patch}); err != nil {
			return hmrResult(log, timer, nil, nil, err)
		}
	}

	ids := make([]string, 0, len(hmr.DiffModules))
	for _, sourceIndex := range hmr.DiffModules {
		ids = append(ids, hmr.Table.Modules[sourceIndex].StableID)
	}
	return hmrResult(log, timer, &patch, ids, nil)
}

func hmrResult(log logger.Log, timer *helpers.Timer, patch *graph.OutputFile, ids []string, err error) (HMRResult, error) {
	timer.Log(log)
	msgs := log.Done()
	result := HMRResult{
		Errors:   messagesOfKind(logger.Error, msgs),
		Warnings: messagesOfKind(logger.Warning, msgs),
	}
	if err != nil {
		return result, err
	}
	if patch != nil {
		file := convertOutputFile(*patch)
		result.Patch = &file
		result.UpdatedModules = ids
	}
	return result, nil
}

// WatchFiles returns the paths of every file that the last successful build
// read from disk
func (b *Bundler) WatchFiles() []string {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.prev == nil {
		return nil
	}
	return b.prev.WatchFiles()
}

// Close runs the "CloseBundle" hooks. Only the first call does anything.
func (b *Bundler) Close(ctx context.Context) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.prev = nil
	return b.plugins.CloseBundle(ctx)
}

////////////////////////////////////////////////////////////////////////////////
// Conversion

func convertOutputFile(file graph.OutputFile) OutputFile {
	result := OutputFile{Path: file.AbsPath, Contents: file.Contents}
	switch file.Kind {
	case graph.OutputSourceMap:
		result.Kind = OutputSourceMap
	case graph.OutputHMRPatch:
		result.Kind = OutputHMRPatch
	}
	return result
}

func convertLocation(location *logger.MsgLocation) *Location {
	if location == nil {
		return nil
	}
	return &Location{
		File:     location.File,
		Line:     location.Line,
		Column:   location.Column,
		Length:   location.Length,
		LineText: location.LineText,
	}
}

func messagesOfKind(kind logger.MsgKind, msgs []logger.Msg) []Message {
	var filtered []Message
	for _, msg := range msgs {
		if msg.Kind != kind {
			continue
		}
		var notes []Note
		for _, note := range msg.Notes {
			notes = append(notes, Note{Text: note.Text, Location: convertLocation(note.Location)})
		}
		filtered = append(filtered, Message{
			Text:     msg.Text,
			Location: convertLocation(msg.Location),
			Notes:    notes,
		})
	}
	return filtered
}
