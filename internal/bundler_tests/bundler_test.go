package bundler_tests

// These tests run whole builds against an in-memory file system and compare
// the output files. The runtime module is left out of the output so that the
// expected values only contain code from the test's own files.

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/hoistjs/hoist/internal/bundler"
	"github.com/hoistjs/hoist/internal/cache"
	"github.com/hoistjs/hoist/internal/config"
	"github.com/hoistjs/hoist/internal/finalizer"
	"github.com/hoistjs/hoist/internal/fs"
	"github.com/hoistjs/hoist/internal/graph"
	"github.com/hoistjs/hoist/internal/linker"
	"github.com/hoistjs/hoist/internal/logger"
	"github.com/hoistjs/hoist/internal/plugin"
	"github.com/hoistjs/hoist/internal/printer"
	"github.com/hoistjs/hoist/internal/renamer"
	"github.com/hoistjs/hoist/internal/resolver"
	"github.com/hoistjs/hoist/internal/test"
)

func assertLog(t *testing.T, msgs []logger.Msg, expected string) {
	t.Helper()
	var text strings.Builder
	for _, msg := range msgs {
		text.WriteString(msg.String(logger.StderrOptions{}, logger.TerminalInfo{}))
	}
	test.AssertEqualWithDiff(t, text.String(), expected)
}

type bundled struct {
	files              map[string]string
	entryPaths         []string
	expectedScanLog    string
	expectedCompileLog string
	options            config.Options
	plugins            []plugin.Plugin

	// Tree shaking is on unless this is set
	noTreeShaking bool

	// Output files by path. Every output file must be listed.
	expected map[string]string

	// Substrings of the output of the only output file, for tests that only
	// care about part of it
	expectedContains    []string
	expectedNotContains []string
}

type suite struct {
	name string
}

func (s *suite) expectBundled(t *testing.T, args bundled) {
	t.Helper()
	files, ok := build(t, args)
	if !ok {
		return
	}

	if args.expected != nil {
		paths := make([]string, 0, len(files))
		for _, file := range files {
			paths = append(paths, file.AbsPath)
		}
		expectedPaths := make([]string, 0, len(args.expected))
		for path := range args.expected {
			expectedPaths = append(expectedPaths, path)
		}
		sort.Strings(paths)
		sort.Strings(expectedPaths)
		test.AssertEqualWithDiff(t, strings.Join(paths, "\n"), strings.Join(expectedPaths, "\n"))

		for _, file := range files {
			if expected, ok := args.expected[file.AbsPath]; ok {
				test.AssertEqualWithDiff(t, string(file.Contents), expected)
			}
		}
	}

	if len(args.expectedContains) > 0 || len(args.expectedNotContains) > 0 {
		if len(files) != 1 {
			t.Fatalf("[%s] expected one output file, got %d", s.name, len(files))
		}
		contents := string(files[0].Contents)
		for _, part := range args.expectedContains {
			if !strings.Contains(contents, part) {
				t.Fatalf("[%s] expected %q in:\n%s", s.name, part, contents)
			}
		}
		for _, part := range args.expectedNotContains {
			if strings.Contains(contents, part) {
				t.Fatalf("[%s] did not expect %q in:\n%s", s.name, part, contents)
			}
		}
	}
}

// Runs the same phases as a build through the public API. Returns false when
// the build stopped early because of errors, which is only expected when the
// test lists them in its logs.
func build(t *testing.T, args bundled) ([]graph.OutputFile, bool) {
	t.Helper()
	ctx := context.Background()

	options := args.options
	options.EntryPoints = args.entryPaths
	if options.AbsWorkingDir == "" {
		options.AbsWorkingDir = "/"
	}
	if options.AbsOutputFile == "" && options.AbsOutputDir == "" {
		options.AbsOutputDir = "/out"
	}
	options.TreeShaking = !args.noTreeShaking
	if options.TreeShaking && options.ModuleSideEffects == config.ModuleSideEffectsUnset {
		options.ModuleSideEffects = config.ModuleSideEffectsTrue
	}
	options.OmitRuntimeForTests = true

	mockFS := fs.MockFS(args.files)
	log := logger.NewDeferLog()
	caches := cache.MakeCacheSet()
	bundle, err := bundler.ScanBundle(ctx, bundler.Args{
		FS:       mockFS,
		Log:      log,
		Resolver: resolver.NewResolver(mockFS, log, caches, &options),
		Caches:   caches,
		Plugins:  plugin.NewDriver(args.plugins),
		Options:  &options,
	})
	msgs := log.Done()
	assertLog(t, msgs, args.expectedScanLog)
	if err != nil {
		if !logger.HasErrors(msgs) {
			t.Fatal(err)
		}
		return nil, false
	}

	log = logger.NewDeferLog()
	chunks, err := linker.Link(log, mockFS, &options, bundle.Table, bundle.Symbols, nil)
	msgs = log.Done()
	assertLog(t, msgs, args.expectedCompileLog)
	if err != nil {
		if !logger.HasErrors(msgs) {
			t.Fatal(err)
		}
		return nil, false
	}

	finalizerArgs := finalizer.Args{Options: &options, Table: bundle.Table, Symbols: bundle.Symbols}
	r := renamer.NewRenamer(bundle.Symbols, renamer.ComputeReservedNames(bundle.Table, bundle.Symbols))
	if options.OutputFormat.IsFlattened() {
		for _, chunk := range chunks {
			if err := r.AssignTopLevelNames(bundle.Table, chunk.Modules); err != nil {
				t.Fatal(err)
			}
		}
		if err := finalizer.Flatten(ctx, finalizerArgs, chunks, r.TopLevelNames()); err != nil {
			t.Fatal(err)
		}
	} else {
		// The helpers are still named by the runtime's own flattened scope
		runtimeChunk := linker.Chunk{Modules: []uint32{graph.RuntimeSourceIndex}}
		if err := r.AssignTopLevelNames(bundle.Table, runtimeChunk.Modules); err != nil {
			t.Fatal(err)
		}
		if err := finalizer.Flatten(ctx, finalizerArgs, []linker.Chunk{runtimeChunk}, r.TopLevelNames()); err != nil {
			t.Fatal(err)
		}
		for _, chunk := range chunks {
			if err := finalizer.Isolate(ctx, finalizerArgs, chunk.Modules); err != nil {
				t.Fatal(err)
			}
		}
	}

	files, err := printer.PrintChunks(ctx, printer.Args{
		Options: &options,
		FS:      mockFS,
		Table:   bundle.Table,
		Symbols: bundle.Symbols,
	}, chunks)
	if err != nil {
		t.Fatal(err)
	}
	return files, true
}
