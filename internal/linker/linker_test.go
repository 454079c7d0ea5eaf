package linker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hoistjs/hoist/internal/ast"
	"github.com/hoistjs/hoist/internal/bundler"
	"github.com/hoistjs/hoist/internal/cache"
	"github.com/hoistjs/hoist/internal/config"
	"github.com/hoistjs/hoist/internal/fs"
	"github.com/hoistjs/hoist/internal/graph"
	"github.com/hoistjs/hoist/internal/logger"
	"github.com/hoistjs/hoist/internal/plugin"
	"github.com/hoistjs/hoist/internal/resolver"
	"github.com/hoistjs/hoist/internal/test"
)

type linkSuite struct {
	files       map[string]string
	entryPoints []string
	options     config.Options
}

type linkResult struct {
	chunks []Chunk
	bundle *bundler.Bundle
	msgs   []logger.Msg
	err    error
}

func (s linkSuite) link(t *testing.T) linkResult {
	t.Helper()
	mockFS := fs.MockFS(s.files)
	log := logger.NewDeferLog()
	caches := cache.MakeCacheSet()

	options := s.options
	options.EntryPoints = s.entryPoints
	options.AbsWorkingDir = "/"
	options.AbsOutputDir = "/out"
	options.TreeShaking = true
	if options.ModuleSideEffects == config.ModuleSideEffectsUnset {
		options.ModuleSideEffects = config.ModuleSideEffectsTrue
	}

	bundle, err := bundler.ScanBundle(context.Background(), bundler.Args{
		FS:       mockFS,
		Log:      log,
		Resolver: resolver.NewResolver(mockFS, log, caches, &options),
		Caches:   caches,
		Plugins:  plugin.NewDriver(nil),
		Options:  &options,
	})
	if err != nil {
		for _, msg := range log.Done() {
			t.Log(msg.Text)
		}
		t.Fatal(err)
	}

	chunks, err := Link(log, mockFS, &options, bundle.Table, bundle.Symbols, nil)
	return linkResult{chunks: chunks, bundle: bundle, msgs: log.Done(), err: err}
}

func (r linkResult) module(t *testing.T, path string) (uint32, *graph.NormalRepr) {
	t.Helper()
	index, ok := r.bundle.Table.Visited[path]
	if !ok {
		t.Fatalf("%q was not visited", path)
	}
	repr, ok := r.bundle.Table.Normal(index)
	if !ok {
		t.Fatalf("%q is not a normal module", path)
	}
	return index, repr
}

// Returns the import ref of the given alias in a module
func (r linkResult) importRef(t *testing.T, path string, alias string) ast.Ref {
	t.Helper()
	_, repr := r.module(t, path)
	for ref, named := range repr.NamedImports {
		if named.Alias == alias && !named.IsReExportOnly {
			return ref
		}
	}
	t.Fatalf("no import of %q in %q", alias, path)
	return ast.InvalidRef
}

// Pretty paths of the modules in the chunk, leaving out the runtime
func (r linkResult) chunkPaths(chunk Chunk) string {
	var paths []string
	for _, sourceIndex := range chunk.Modules {
		if sourceIndex != graph.RuntimeSourceIndex {
			paths = append(paths, r.bundle.Table.Modules[sourceIndex].Source.PrettyPath)
		}
	}
	return strings.Join(paths, " ")
}

func expectMsgs(t *testing.T, msgs []logger.Msg, expected ...string) {
	t.Helper()
	var texts []string
	for _, msg := range msgs {
		texts = append(texts, msg.Kind.String()+": "+msg.Text)
	}
	test.AssertEqual(t, len(texts), len(expected))
	for i := range expected {
		if i < len(texts) {
			test.AssertEqual(t, texts[i], expected[i])
		}
	}
}

func TestLinkStateDump(t *testing.T) {
	result := linkSuite{
		files: map[string]string{
			"/entry.js": `import {a} from './a'; console.log(a)`,
			"/a.js":     `export let a = 1; export let b = 2`,
		},
		entryPoints: []string{"/entry.js"},
	}.link(t)
	if result.err != nil {
		t.Fatal(result.err)
	}

	test.AssertEqualWithDiff(t, DumpLinkState(result.bundle.Table, result.bundle.Symbols), `entry.js:
  import a -> a (a.js)
  stmts: [0 1]
a.js:
  export a -> a (a.js)
  export b -> b (a.js)
  stmts: [0]
`)
}

func TestStarExportCycle(t *testing.T) {
	result := linkSuite{
		files: map[string]string{
			"/entry.js": `import './a'`,
			"/a.js":     `export * from './b'`,
			"/b.js":     `export * from './a'`,
		},
		entryPoints: []string{"/entry.js"},
	}.link(t)

	if !errors.Is(result.err, ErrLinkFailed) {
		t.Fatalf("expected the link to fail, got %v", result.err)
	}
	expectMsgs(t, result.msgs, "error: Detected cycle while resolving star exports: a.js -> b.js -> a.js")
}

func TestStarExportFanOut(t *testing.T) {
	result := linkSuite{
		files: map[string]string{
			"/entry.js": `import {a, b, c} from './all'; console.log(a, b, c)`,
			"/all.js":   `export * from './ab'; export let c = 3`,
			"/ab.js":    `export * from './a'; export * from './b'; export default 0`,
			"/a.js":     `export let a = 1`,
			"/b.js":     `export let b = 2`,
		},
		entryPoints: []string{"/entry.js"},
	}.link(t)
	if result.err != nil {
		t.Fatal(result.err)
	}
	expectMsgs(t, result.msgs)

	_, all := result.module(t, "/all.js")
	test.AssertEqual(t, len(all.Meta.SortedExportAliases), 3)
	test.AssertEqual(t, all.Meta.SortedExportAliases[0], "a")
	test.AssertEqual(t, all.Meta.SortedExportAliases[1], "b")
	test.AssertEqual(t, all.Meta.SortedExportAliases[2], "c")

	aIndex, a := result.module(t, "/a.js")
	root := result.bundle.Symbols.Follow(result.importRef(t, "/entry.js", "a"))
	test.AssertEqual(t, root, a.NamedExports["a"].Ref)
	test.AssertEqual(t, root.SourceIndex, aIndex)

	// Neither star re-export module declares anything that is used, but the
	// modules behind them must still be emitted
	test.AssertEqual(t, len(result.chunks), 1)
	test.AssertEqual(t, result.chunkPaths(result.chunks[0]), "a.js b.js all.js entry.js")
}

func TestAmbiguousStarExport(t *testing.T) {
	files := map[string]string{
		"/entry.js": `import {x} from './c'; console.log(x)`,
		"/c.js":     `export * from './a'; export * from './b'`,
		"/a.js":     `export let x = 1`,
		"/b.js":     `export let x = 2`,
	}

	result := linkSuite{files: files, entryPoints: []string{"/entry.js"}}.link(t)
	if result.err != nil {
		t.Fatal(result.err)
	}
	expectMsgs(t, result.msgs, `warning: Ambiguous import "x" has multiple matching exports in "c.js"`)
	_, c := result.module(t, "/c.js")
	test.AssertEqual(t, len(c.Meta.SortedExportAliases), 0)

	strict := linkSuite{files: files, entryPoints: []string{"/entry.js"}, options: config.Options{StrictMissingExports: true}}.link(t)
	if !errors.Is(strict.err, ErrLinkFailed) {
		t.Fatalf("expected the strict link to fail, got %v", strict.err)
	}
}

func TestMissingExport(t *testing.T) {
	files := map[string]string{
		"/entry.js": `import {nope} from './a'; console.log(nope)`,
		"/a.js":     `export let a = 1`,
	}

	result := linkSuite{files: files, entryPoints: []string{"/entry.js"}}.link(t)
	if result.err != nil {
		t.Fatal(result.err)
	}
	expectMsgs(t, result.msgs, `warning: No matching export in "a.js" for import "nope"`)
	ref := result.importRef(t, "/entry.js", "nope")
	test.AssertEqual(t, result.bundle.Symbols.Get(ref).ImportIsMissing, true)

	strict := linkSuite{files: files, entryPoints: []string{"/entry.js"}, options: config.Options{StrictMissingExports: true}}.link(t)
	if !errors.Is(strict.err, ErrLinkFailed) {
		t.Fatalf("expected the strict link to fail, got %v", strict.err)
	}
	expectMsgs(t, strict.msgs, `error: No matching export in "a.js" for import "nope"`)
}

func TestReExportChain(t *testing.T) {
	result := linkSuite{
		files: map[string]string{
			"/entry.js": `import {y} from './mid'; console.log(y)`,
			"/mid.js":   `export {x as y} from './a'`,
			"/a.js":     `export let x = 1`,
		},
		entryPoints: []string{"/entry.js"},
	}.link(t)
	if result.err != nil {
		t.Fatal(result.err)
	}

	_, a := result.module(t, "/a.js")
	root := result.bundle.Symbols.Follow(result.importRef(t, "/entry.js", "y"))
	test.AssertEqual(t, root, a.NamedExports["x"].Ref)

	_, mid := result.module(t, "/mid.js")
	test.AssertEqual(t, mid.Meta.IsIncluded, false)
	test.AssertEqual(t, len(result.chunks), 1)
	test.AssertEqual(t, result.chunkPaths(result.chunks[0]), "a.js entry.js")
}

func TestImportCycleThroughReExports(t *testing.T) {
	result := linkSuite{
		files: map[string]string{
			"/entry.js": `import {a} from './foo'; console.log(a)`,
			"/foo.js":   `export {a as b} from './foo'; export {b as a} from './foo'`,
		},
		entryPoints: []string{"/entry.js"},
	}.link(t)

	if !errors.Is(result.err, ErrLinkFailed) {
		t.Fatalf("expected the link to fail, got %v", result.err)
	}
	if len(result.msgs) == 0 || result.msgs[0].Text != `Detected cycle while resolving import "a"` {
		t.Fatalf("unexpected messages: %v", result.msgs)
	}
}

func TestCommonJSImportBindsThroughNamespace(t *testing.T) {
	result := linkSuite{
		files: map[string]string{
			"/entry.js": `import {foo} from './cjs'; console.log(foo)`,
			"/cjs.js":   `exports.foo = 1`,
		},
		entryPoints: []string{"/entry.js"},
	}.link(t)
	if result.err != nil {
		t.Fatal(result.err)
	}

	_, entry := result.module(t, "/entry.js")
	_, cjs := result.module(t, "/cjs.js")
	test.AssertEqual(t, cjs.Meta.Wrap, graph.WrapCJS)
	test.AssertEqual(t, cjs.Meta.Helpers.Has(graph.HelperCommonJS), true)

	record := entry.ImportRecords[0]
	root := result.bundle.Symbols.Follow(result.importRef(t, "/entry.js", "foo"))
	alias := result.bundle.Symbols.Get(root).NamespaceAlias
	if alias == nil {
		t.Fatal("expected a namespace alias")
	}
	test.AssertEqual(t, alias.NamespaceRef, record.NamespaceRef)
	test.AssertEqual(t, alias.Alias, "foo")
	test.AssertEqual(t, record.Flags.Has(ast.WrapWithToESM), true)
	test.AssertEqual(t, record.Flags.Has(ast.NamespaceIsReferenced), true)
	test.AssertEqual(t, entry.Meta.Helpers.Has(graph.HelperToESM), true)

	// The runtime comes first once a helper is used
	test.AssertEqual(t, result.chunks[0].Modules[0], graph.RuntimeSourceIndex)
}

func TestCommonJSWithESModuleFlagSkipsToESM(t *testing.T) {
	result := linkSuite{
		files: map[string]string{
			"/entry.js": `import {foo} from './cjs'; console.log(foo)`,
			"/cjs.js":   `module.exports.__esModule = true; exports.foo = 1`,
		},
		entryPoints: []string{"/entry.js"},
	}.link(t)
	if result.err != nil {
		t.Fatal(result.err)
	}

	_, entry := result.module(t, "/entry.js")
	test.AssertEqual(t, entry.ImportRecords[0].Flags.Has(ast.WrapWithToESM), false)
	test.AssertEqual(t, entry.Meta.Helpers.Has(graph.HelperToESM), false)
}

func TestDynamicStarExportFallsBackToNamespace(t *testing.T) {
	result := linkSuite{
		files: map[string]string{
			"/entry.js": `import {x} from './re'; console.log(x)`,
			"/re.js":    `export * from './cjs'`,
			"/cjs.js":   `module.exports = {x: 1}`,
		},
		entryPoints: []string{"/entry.js"},
	}.link(t)
	if result.err != nil {
		t.Fatal(result.err)
	}
	expectMsgs(t, result.msgs)

	_, re := result.module(t, "/re.js")
	test.AssertEqual(t, len(re.Meta.DynamicExportStars), 1)
	test.AssertEqual(t, re.Meta.NeedsExportsObject, true)
	test.AssertEqual(t, re.Meta.Helpers.Has(graph.HelperReExport), true)

	root := result.bundle.Symbols.Follow(result.importRef(t, "/entry.js", "x"))
	alias := result.bundle.Symbols.Get(root).NamespaceAlias
	if alias == nil {
		t.Fatal("expected a namespace alias")
	}
	test.AssertEqual(t, alias.NamespaceRef, re.ExportsRef)
	test.AssertEqual(t, re.ImportRecords[0].Flags.Has(ast.NamespaceIsReferenced), true)
}

func TestTreeShakingKeepsOnlyWhatIsUsed(t *testing.T) {
	result := linkSuite{
		files: map[string]string{
			"/entry.js": `import {used} from './lib'; import './pure'; console.log(used)`,
			"/lib.js":   `export let used = 1; export let unused = 2; console.log('side')`,
			"/pure.js":  `export let p = 1`,
		},
		entryPoints: []string{"/entry.js"},
	}.link(t)
	if result.err != nil {
		t.Fatal(result.err)
	}

	_, lib := result.module(t, "/lib.js")
	test.AssertEqual(t, lib.Meta.StmtIsIncluded.HasBit(0), true)
	test.AssertEqual(t, lib.Meta.StmtIsIncluded.HasBit(1), false)
	test.AssertEqual(t, lib.Meta.StmtIsIncluded.HasBit(2), true)

	pureIndex, pure := result.module(t, "/pure.js")
	test.AssertEqual(t, pure.Meta.IsIncluded, false)
	for _, sourceIndex := range result.chunks[0].Modules {
		if sourceIndex == pureIndex {
			t.Fatal("a module without side effects must not be in the chunk")
		}
	}
}

func TestBareImportOfSideEffectFreeExternal(t *testing.T) {
	files := map[string]string{
		"/entry.js": `import 'polyfill'; import './local'; console.log(1)`,
		"/local.js": `import 'polyfill'; console.log(2)`,
	}
	options := config.Options{
		OutputFormat:    config.FormatCommonJS,
		ExternalModules: []string{"polyfill"},
	}

	options.ModuleSideEffects = config.ModuleSideEffectsFalse
	result := linkSuite{files: files, entryPoints: []string{"/entry.js"}, options: options}.link(t)
	if result.err != nil {
		t.Fatal(result.err)
	}
	_, entry := result.module(t, "/entry.js")
	test.AssertEqual(t, entry.Meta.StmtIsIncluded.HasBit(0), false)
	test.AssertEqual(t, entry.Meta.StmtIsIncluded.HasBit(2), true)
	test.AssertEqual(t, entry.Meta.Helpers, graph.RuntimeHelpers(0))
	_, local := result.module(t, "/local.js")
	test.AssertEqual(t, local.Meta.IsIncluded, false)

	// Externals have side effects by default, so the import is kept
	options.ModuleSideEffects = config.ModuleSideEffectsTrue
	result = linkSuite{files: files, entryPoints: []string{"/entry.js"}, options: options}.link(t)
	if result.err != nil {
		t.Fatal(result.err)
	}
	_, entry = result.module(t, "/entry.js")
	test.AssertEqual(t, entry.Meta.StmtIsIncluded.HasBit(0), true)
	_, local = result.module(t, "/local.js")
	test.AssertEqual(t, local.Meta.StmtIsIncluded.HasBit(0), true)
}

func TestNoTreeShakeKeepsEverything(t *testing.T) {
	result := linkSuite{
		files: map[string]string{
			"/entry.js": `import {used} from './lib'; console.log(used)`,
			"/lib.js":   `export let used = 1; export let unused = 2`,
		},
		entryPoints: []string{"/entry.js"},
	}
	mockFS := fs.MockFS(result.files)
	log := logger.NewDeferLog()
	caches := cache.MakeCacheSet()
	options := config.Options{
		EntryPoints:       result.entryPoints,
		AbsWorkingDir:     "/",
		AbsOutputDir:      "/out",
		OutputFormat:      config.FormatESModule,
		ModuleSideEffects: config.ModuleSideEffectsTrue,
	}
	bundle, err := bundler.ScanBundle(context.Background(), bundler.Args{
		FS:       mockFS,
		Log:      log,
		Resolver: resolver.NewResolver(mockFS, log, caches, &options),
		Caches:   caches,
		Plugins:  plugin.NewDriver(nil),
		Options:  &options,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Link(log, mockFS, &options, bundle.Table, bundle.Symbols, nil); err != nil {
		t.Fatal(err)
	}

	repr, _ := bundle.Table.Normal(bundle.Table.Visited["/lib.js"])
	test.AssertEqual(t, repr.Meta.StmtIsIncluded.HasBit(0), true)
	test.AssertEqual(t, repr.Meta.StmtIsIncluded.HasBit(1), true)
}

func TestChunkModuleOrder(t *testing.T) {
	result := linkSuite{
		files: map[string]string{
			"/entry.js": `import './b'; import './a'; console.log('entry')`,
			"/a.js":     `console.log('a')`,
			"/b.js":     `import './c'; console.log('b')`,
			"/c.js":     `console.log('c')`,
		},
		entryPoints: []string{"/entry.js"},
	}.link(t)
	if result.err != nil {
		t.Fatal(result.err)
	}

	test.AssertEqual(t, len(result.chunks), 1)
	chunk := result.chunks[0]
	test.AssertEqual(t, chunk.AbsPath, "/out/entry.js")

	var order []string
	for _, sourceIndex := range chunk.Modules {
		order = append(order, result.bundle.Table.Modules[sourceIndex].Source.PrettyPath)
	}
	test.AssertEqual(t, len(order), 4)
	expected := []string{"c.js", "b.js", "a.js", "entry.js"}
	for i := range expected {
		if i < len(order) {
			test.AssertEqual(t, order[i], expected[i])
		}
	}
}

func TestRequireOfESModuleUsesNamespace(t *testing.T) {
	result := linkSuite{
		files: map[string]string{
			"/entry.js": `const m = require('./esm'); console.log(m)`,
			"/esm.js":   `export let x = 1`,
		},
		entryPoints: []string{"/entry.js"},
	}.link(t)
	if result.err != nil {
		t.Fatal(result.err)
	}

	_, entry := result.module(t, "/entry.js")
	_, esm := result.module(t, "/esm.js")
	test.AssertEqual(t, esm.Meta.NeedsExportsObject, true)
	test.AssertEqual(t, esm.Meta.Helpers.Has(graph.HelperExport), true)
	test.AssertEqual(t, entry.Meta.Helpers.Has(graph.HelperToCommonJS), true)
	test.AssertEqual(t, esm.Meta.StmtIsIncluded.HasBit(0), true)
}

func TestEntryExportsThroughNamespaceGetCopies(t *testing.T) {
	result := linkSuite{
		files: map[string]string{
			"/entry.js": `export {foo} from './cjs'; export let bar = 1`,
			"/cjs.js":   `exports.foo = 1`,
		},
		entryPoints: []string{"/entry.js"},
	}.link(t)
	if result.err != nil {
		t.Fatal(result.err)
	}

	_, entry := result.module(t, "/entry.js")
	test.AssertEqual(t, len(entry.Meta.ExportCopies), 1)
	if _, ok := entry.Meta.ExportCopies["foo"]; !ok {
		t.Fatal("expected a copy of the export bound through the namespace")
	}
}

func TestDuplicateOutputPath(t *testing.T) {
	result := linkSuite{
		files: map[string]string{
			"/a/index.js": `console.log('a')`,
			"/b/index.js": `console.log('b')`,
		},
		entryPoints: []string{"/a/index.js", "/b/index.js"},
	}.link(t)

	if !errors.Is(result.err, ErrLinkFailed) {
		t.Fatalf("expected the link to fail, got %v", result.err)
	}
	expectMsgs(t, result.msgs, `error: Two output files share the same path "out/index.js" (from "a/index.js" and "b/index.js")`)
}

func TestAppFormatIncludesEverything(t *testing.T) {
	result := linkSuite{
		files: map[string]string{
			"/entry.js": `import {a} from './a'`,
			"/a.js":     `export let a = 1; export let b = 2`,
		},
		entryPoints: []string{"/entry.js"},
		options:     config.Options{OutputFormat: config.FormatApp},
	}.link(t)
	if result.err != nil {
		t.Fatal(result.err)
	}

	_, a := result.module(t, "/a.js")
	test.AssertEqual(t, a.Meta.StmtIsIncluded.HasBit(0), true)
	test.AssertEqual(t, a.Meta.StmtIsIncluded.HasBit(1), true)
	test.AssertEqual(t, result.chunks[0].Modules[0], graph.RuntimeSourceIndex)
}
