package printer

// The printer serializes finalized trees and joins them into output files.
// Every module becomes a section that starts with a "// <path>" comment. The
// output format decides what goes around the sections: a function wrapper for
// IIFE, the module registry for the app format, and the export statements of
// the entry point at the end.

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/hoistjs/hoist/internal/ast"
	"github.com/hoistjs/hoist/internal/config"
	"github.com/hoistjs/hoist/internal/finalizer"
	"github.com/hoistjs/hoist/internal/fs"
	"github.com/hoistjs/hoist/internal/graph"
	"github.com/hoistjs/hoist/internal/helpers"
	"github.com/hoistjs/hoist/internal/linker"
	"github.com/hoistjs/hoist/internal/runtime"
	"github.com/hoistjs/hoist/internal/sourcemap"
	"github.com/tdewolff/parse/v2/js"
	"golang.org/x/sync/errgroup"
)

type Args struct {
	Options *config.Options
	FS      fs.FS
	Table   *graph.ModuleTable
	Symbols *ast.SymbolMap
	Timer   *helpers.Timer
}

// PrintStmts prints statements the way they appear in a module section
func PrintStmts(stmts []js.IStmt) string {
	return js.AST{BlockStmt: js.BlockStmt{List: stmts}}.JSString()
}

// PrintChunks prints every chunk on its own goroutine. The trees of the
// chunks' modules must have been finalized already. Output files are returned
// in chunk order, each chunk followed by its source map file if there is one.
func PrintChunks(ctx context.Context, args Args, chunks []linker.Chunk) ([]graph.OutputFile, error) {
	args.Timer.Begin("Print chunks")
	defer args.Timer.End("Print chunks")

	results := make([][]graph.OutputFile, len(chunks))
	group, ctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			files, err := printChunk(&args, chunk)
			results[i] = files
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	var files []graph.OutputFile
	for _, result := range results {
		files = append(files, result...)
	}
	return files, nil
}

type chunkWriter struct {
	j helpers.Joiner

	// Nil when no source map is generated
	sourceMap     *sourcemap.Builder
	sourceIndices map[uint32]int

	fs       fs.FS
	absDir   string
	table    *graph.ModuleTable
	sections int
}

// Text that maps to nothing. It must end with a newline.
func (w *chunkWriter) addLines(text string) {
	w.j.AddString(text)
	if w.sourceMap != nil {
		w.sourceMap.SkipLines(strings.Count(text, "\n"))
	}
}

func (w *chunkWriter) addSection(sourceIndex uint32, code string) {
	if w.sections > 0 {
		w.addLines("\n")
	}
	w.sections++
	module := &w.table.Modules[sourceIndex]
	w.addLines("// " + module.Source.PrettyPath + "\n")

	code += "\n"
	w.j.AddString(code)
	if w.sourceMap != nil {
		lines := strings.Count(code, "\n")
		if sourceIndex == graph.RuntimeSourceIndex || module.Source.KeyPath.Namespace != "file" {
			w.sourceMap.SkipLines(lines)
		} else {
			w.sourceMap.MapLines(lines, w.sourceIndexFor(sourceIndex))
		}
	}
}

func (w *chunkWriter) sourceIndexFor(sourceIndex uint32) int {
	if index, ok := w.sourceIndices[sourceIndex]; ok {
		return index
	}
	source := &w.table.Modules[sourceIndex].Source
	path := source.PrettyPath
	if rel, ok := w.fs.Rel(w.absDir, source.KeyPath.Text); ok {
		path = strings.ReplaceAll(rel, "\\", "/")
	}
	index := w.sourceMap.AddSource(path, source.Contents)
	w.sourceIndices[sourceIndex] = index
	return index
}

func printChunk(args *Args, chunk linker.Chunk) ([]graph.OutputFile, error) {
	options := args.Options
	table := args.Table
	entry, ok := table.Normal(chunk.EntryPoint)
	if !ok {
		return nil, fmt.Errorf("entry point %q is not a normal module", table.Modules[chunk.EntryPoint].Source.PrettyPath)
	}

	w := &chunkWriter{
		fs:     args.FS,
		absDir: args.FS.Dir(chunk.AbsPath),
		table:  table,
	}
	if options.SourceMap != config.SourceMapNone {
		w.sourceMap = &sourcemap.Builder{}
		w.sourceIndices = make(map[uint32]int)
	}

	// A hashbang is only valid on the first line
	if hashbang := strings.TrimRight(entry.Hashbang, "\r\n"); hashbang != "" {
		w.addLines(hashbang + "\n")
	}

	switch options.OutputFormat {
	case config.FormatIIFE:
		if options.GlobalName != "" {
			w.addLines("var " + options.GlobalName + " = (() => {\n")
		} else {
			w.addLines("(() => {\n")
		}

	case config.FormatApp:
		if !options.OmitRuntimeForTests {
			w.addLines(strings.TrimPrefix(runtime.AppCode, "\n"))
		}
	}

	for _, sourceIndex := range chunk.Modules {
		if sourceIndex == graph.RuntimeSourceIndex && options.OmitRuntimeForTests {
			continue
		}
		repr, ok := table.Normal(sourceIndex)
		if !ok {
			continue
		}
		if code := PrintStmts(repr.Tree.BlockStmt.List); code != "" {
			w.addSection(sourceIndex, code)
		}
	}

	var tail string
	if options.OutputFormat == config.FormatApp {
		tail = runtime.Registry + ".require(" + helpers.QuoteForJS(table.Modules[chunk.EntryPoint].StableID) + ");"
	} else {
		tail = PrintStmts(finalizer.EntryTail(finalizer.Args{
			Options: options,
			Table:   table,
			Symbols: args.Symbols,
		}, chunk))
	}
	if tail != "" {
		if w.sections > 0 {
			w.addLines("\n")
		}
		w.addLines(tail + "\n")
	}

	if options.OutputFormat == config.FormatIIFE {
		w.addLines("})();\n")
	}

	chunkFile := graph.OutputFile{AbsPath: chunk.AbsPath, Kind: graph.OutputChunk, EntryPoint: chunk.EntryPoint}
	if w.sourceMap == nil {
		chunkFile.Contents = w.j.Done()
		return []graph.OutputFile{chunkFile}, nil
	}

	mapPath := chunk.AbsPath + ".map"
	mapJSON := w.sourceMap.JSON(args.FS.Base(chunk.AbsPath))
	files := []graph.OutputFile{chunkFile}
	switch options.SourceMap {
	case config.SourceMapInline:
		w.j.AddString("//# sourceMappingURL=data:application/json;base64,")
		w.j.AddString(base64.StdEncoding.EncodeToString(mapJSON))
		w.j.AddString("\n")

	case config.SourceMapLinkedWithComment:
		w.j.AddString("//# sourceMappingURL=" + args.FS.Base(mapPath) + "\n")
		files = append(files, graph.OutputFile{AbsPath: mapPath, Contents: mapJSON, Kind: graph.OutputSourceMap, EntryPoint: chunk.EntryPoint})

	case config.SourceMapExternalWithoutComment:
		files = append(files, graph.OutputFile{AbsPath: mapPath, Contents: mapJSON, Kind: graph.OutputSourceMap, EntryPoint: chunk.EntryPoint})
	}
	files[0].Contents = w.j.Done()
	return files, nil
}

// PrintHMRPatch prints the isolated trees of "modules" as a hot patch:
//
//	self.hoist_runtime.patch(["src/a.js"], function() {
//	// src/a.js
//	hoist_runtime.define("src/a.js", function(require, module, exports) {...});
//	});
//
// The file name carries a hash of the contents so that a browser never runs
// a stale patch from its cache.
func PrintHMRPatch(args Args, modules []uint32) graph.OutputFile {
	args.Timer.Begin("Print HMR patch")
	defer args.Timer.End("Print HMR patch")

	ids := make([]string, 0, len(modules))
	for _, sourceIndex := range modules {
		ids = append(ids, helpers.QuoteForJS(args.Table.Modules[sourceIndex].StableID))
	}

	w := &chunkWriter{fs: args.FS, table: args.Table}
	w.addLines("self." + runtime.Registry + ".patch([" + strings.Join(ids, ", ") + "], function() {\n")
	for _, sourceIndex := range modules {
		repr, ok := args.Table.Normal(sourceIndex)
		if !ok {
			continue
		}
		if code := PrintStmts(repr.Tree.BlockStmt.List); code != "" {
			w.addSection(sourceIndex, code)
		}
	}
	w.addLines("});\n")
	contents := w.j.Done()

	hash := fmt.Sprintf("%016x", xxhash.Sum64(contents))[:8]
	var first uint32
	if len(modules) > 0 {
		first = modules[0]
	}
	return graph.OutputFile{
		AbsPath:    args.FS.Join(outputDir(args), "hmr-update."+hash+".js"),
		Contents:   contents,
		Kind:       graph.OutputHMRPatch,
		EntryPoint: first,
	}
}

func outputDir(args Args) string {
	switch {
	case args.Options.AbsOutputDir != "":
		return args.Options.AbsOutputDir
	case args.Options.AbsOutputFile != "":
		return args.FS.Dir(args.Options.AbsOutputFile)
	}
	return args.Options.AbsWorkingDir
}
