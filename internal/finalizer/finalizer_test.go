package finalizer

import (
	"context"
	"strings"
	"testing"

	"github.com/hoistjs/hoist/internal/bundler"
	"github.com/hoistjs/hoist/internal/cache"
	"github.com/hoistjs/hoist/internal/config"
	"github.com/hoistjs/hoist/internal/fs"
	"github.com/hoistjs/hoist/internal/linker"
	"github.com/hoistjs/hoist/internal/logger"
	"github.com/hoistjs/hoist/internal/plugin"
	"github.com/hoistjs/hoist/internal/renamer"
	"github.com/hoistjs/hoist/internal/resolver"
	"github.com/hoistjs/hoist/internal/test"
	"github.com/tdewolff/parse/v2/js"
)

type finalizeSuite struct {
	files   map[string]string
	options config.Options
}

type finalizeResult struct {
	bundle  *bundler.Bundle
	chunks  []linker.Chunk
	options *config.Options
}

func (s finalizeSuite) link(t *testing.T) finalizeResult {
	t.Helper()
	mockFS := fs.MockFS(s.files)
	log := logger.NewDeferLog()
	caches := cache.MakeCacheSet()

	options := s.options
	options.EntryPoints = []string{"/entry.js"}
	options.AbsWorkingDir = "/"
	options.AbsOutputDir = "/out"
	options.TreeShaking = true
	options.ModuleSideEffects = config.ModuleSideEffectsTrue

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
	chunks, err := linker.Link(log, mockFS, &options, bundle.Table, bundle.Symbols, nil)
	if err != nil {
		for _, msg := range log.Done() {
			t.Log(msg.Text)
		}
		t.Fatal(err)
	}
	return finalizeResult{bundle: bundle, chunks: chunks, options: &options}
}

func (r finalizeResult) args() Args {
	return Args{Options: r.options, Table: r.bundle.Table, Symbols: r.bundle.Symbols}
}

// Links, renames and flattens the suite the same way a build does
func (s finalizeSuite) flatten(t *testing.T) finalizeResult {
	t.Helper()
	result := s.link(t)
	r := renamer.NewRenamer(result.bundle.Symbols, renamer.ComputeReservedNames(result.bundle.Table, result.bundle.Symbols))
	for _, chunk := range result.chunks {
		if err := r.AssignTopLevelNames(result.bundle.Table, chunk.Modules); err != nil {
			t.Fatal(err)
		}
	}
	if err := Flatten(context.Background(), result.args(), result.chunks, r.TopLevelNames()); err != nil {
		t.Fatal(err)
	}
	return result
}

func (r finalizeResult) print(t *testing.T, path string) string {
	t.Helper()
	repr, ok := r.bundle.Table.Normal(r.bundle.Table.Visited[path])
	if !ok {
		t.Fatalf("%q is not a normal module", path)
	}
	return printStmts(repr.Tree.BlockStmt.List)
}

func printStmts(stmts []js.IStmt) string {
	return js.AST{BlockStmt: js.BlockStmt{List: stmts}}.JSString()
}

func expectContains(t *testing.T, text string, parts ...string) {
	t.Helper()
	for _, part := range parts {
		if !strings.Contains(text, part) {
			t.Fatalf("expected %q in:\n%s", part, text)
		}
	}
}

func TestFlattenRemovesImportsAndExports(t *testing.T) {
	result := finalizeSuite{
		files: map[string]string{
			"/entry.js": `import {a} from './a'; console.log(a)`,
			"/a.js":     `export let a = 1`,
		},
	}.flatten(t)

	test.AssertEqualWithDiff(t, result.print(t, "/a.js"), "let a = 1;")
	test.AssertEqualWithDiff(t, result.print(t, "/entry.js"), "console.log(a);")
}

func TestFlattenRenamesCollisions(t *testing.T) {
	result := finalizeSuite{
		files: map[string]string{
			"/entry.js": `import {x as y} from './a'; let x = 2; console.log(x, y)`,
			"/a.js":     `export let x = 1`,
		},
	}.flatten(t)

	test.AssertEqualWithDiff(t, result.print(t, "/entry.js"), "let x2 = 2;\nconsole.log(x2, x);")
}

func TestFlattenShorthandPropertyKeepsKey(t *testing.T) {
	result := finalizeSuite{
		files: map[string]string{
			"/entry.js": `import {x as y} from './a'; let x = 2; console.log({x, y})`,
			"/a.js":     `export let x = 1`,
		},
	}.flatten(t)

	expectContains(t, result.print(t, "/entry.js"), "console.log({x: x2, y: x});")
}

func TestFlattenCommonJSImport(t *testing.T) {
	result := finalizeSuite{
		files: map[string]string{
			"/entry.js": `import {foo} from './cjs'; foo()`,
			"/cjs.js":   `exports.foo = function() {}`,
		},
	}.flatten(t)

	expectContains(t, result.print(t, "/cjs.js"),
		"var require_cjs = __commonJS((exports, module) => {\n    exports.foo = function",
		"\n});",
	)
	test.AssertEqualWithDiff(t, result.print(t, "/entry.js"),
		"var import_cjs = __toESM(require_cjs());\n(0, import_cjs.foo)();")
}

func TestFlattenNamespaceObject(t *testing.T) {
	result := finalizeSuite{
		files: map[string]string{
			"/entry.js": `import * as ns from './a'; console.log(ns)`,
			"/a.js":     `export let a = 1; export function b() {}`,
		},
	}.flatten(t)

	test.AssertEqualWithDiff(t, result.print(t, "/a.js"), `var a_exports = {};
__export(a_exports, {
    a: () => a,
    b: () => b
});
let a = 1;
function b() {}`)
	test.AssertEqualWithDiff(t, result.print(t, "/entry.js"), "console.log(a_exports);")
}

func TestFlattenRequireOfESModule(t *testing.T) {
	result := finalizeSuite{
		files: map[string]string{
			"/entry.js": `const m = require('./a'); console.log(m)`,
			"/a.js":     `export let a = 1`,
		},
	}.flatten(t)

	expectContains(t, result.print(t, "/entry.js"), "const m = __toCommonJS(a_exports);")
}

func TestFlattenDynamicImport(t *testing.T) {
	result := finalizeSuite{
		files: map[string]string{
			"/entry.js": `import('./a').then(console.log)`,
			"/a.js":     `export let a = 1`,
		},
	}.flatten(t)

	expectContains(t, result.print(t, "/entry.js"), "__import(() => a_exports)")
}

func TestFlattenMissingImportIsUndefined(t *testing.T) {
	result := finalizeSuite{
		files: map[string]string{
			"/entry.js": `import {nope} from './a'; console.log(nope)`,
			"/a.js":     `export let a = 1`,
		},
	}.flatten(t)

	expectContains(t, result.print(t, "/entry.js"), "console.log((void 0));")
}

func TestFlattenExportDefault(t *testing.T) {
	result := finalizeSuite{
		files: map[string]string{
			"/entry.js": `import d from './a'; import f from './f'; console.log(d, f)`,
			"/a.js":     `export default 42`,
			"/f.js":     `export default function() {}`,
		},
	}.flatten(t)

	test.AssertEqualWithDiff(t, result.print(t, "/a.js"), "var a_default = 42;")
	test.AssertEqualWithDiff(t, result.print(t, "/f.js"), "function f_default() {}")
	test.AssertEqualWithDiff(t, result.print(t, "/entry.js"), "console.log(a_default, f_default);")
}

func TestFlattenDropsHashbang(t *testing.T) {
	result := finalizeSuite{
		files: map[string]string{
			"/entry.js": "#!/usr/bin/env node\nconsole.log(1)",
		},
	}.flatten(t)

	test.AssertEqualWithDiff(t, result.print(t, "/entry.js"), "console.log(1);")
}

func TestEntryTailESModule(t *testing.T) {
	result := finalizeSuite{
		files: map[string]string{
			"/entry.js": `export let a = 1; export {a as b}`,
		},
	}.flatten(t)

	tail := EntryTail(result.args(), result.chunks[0])
	test.AssertEqualWithDiff(t, printStmts(tail), "export { a, a as b };")
}

func TestEntryTailCommonJS(t *testing.T) {
	result := finalizeSuite{
		files: map[string]string{
			"/entry.js": `export let a = 1`,
		},
		options: config.Options{OutputFormat: config.FormatCommonJS},
	}.flatten(t)

	tail := EntryTail(result.args(), result.chunks[0])
	test.AssertEqualWithDiff(t, printStmts(tail), "module.exports = __toCommonJS(entry_exports);")
}

func TestEntryTailIIFEWithGlobalName(t *testing.T) {
	result := finalizeSuite{
		files: map[string]string{
			"/entry.js": `export let a = 1`,
		},
		options: config.Options{OutputFormat: config.FormatIIFE, GlobalName: "lib"},
	}.flatten(t)

	tail := EntryTail(result.args(), result.chunks[0])
	test.AssertEqualWithDiff(t, printStmts(tail), "return entry_exports;")
}

func TestEntryTailWrappedEntry(t *testing.T) {
	result := finalizeSuite{
		files: map[string]string{
			"/entry.js": `module.exports = 1`,
		},
		options: config.Options{OutputFormat: config.FormatCommonJS},
	}.flatten(t)

	tail := EntryTail(result.args(), result.chunks[0])
	test.AssertEqualWithDiff(t, printStmts(tail), "module.exports = require_entry();")
}

func TestIsolateDefinesFactories(t *testing.T) {
	result := finalizeSuite{
		files: map[string]string{
			"/entry.js": `import {a} from './a'; console.log(a)`,
			"/a.js":     `export let a = 1`,
		},
		options: config.Options{OutputFormat: config.FormatApp},
	}.link(t)

	modules := []uint32{result.bundle.Table.Visited["/entry.js"], result.bundle.Table.Visited["/a.js"]}
	if err := Isolate(context.Background(), result.args(), modules); err != nil {
		t.Fatal(err)
	}

	test.AssertEqualWithDiff(t, result.print(t, "/entry.js"), `hoist_runtime.define("entry.js", function(require, module, exports) {
    var import_a = require("a.js");
    console.log(import_a.a);
});`)
	test.AssertEqualWithDiff(t, result.print(t, "/a.js"), `hoist_runtime.define("a.js", function(require, module, exports) {
    __export(exports, {
        a: () => a
    });
    let a = 1;
});`)
}

func TestIsolateRewritesRequire(t *testing.T) {
	result := finalizeSuite{
		files: map[string]string{
			"/entry.js": `const b = require('./lib/b'); b()`,
			"/lib/b.js": `module.exports = function() {}`,
		},
		options: config.Options{OutputFormat: config.FormatApp},
	}.link(t)

	modules := []uint32{result.bundle.Table.Visited["/entry.js"]}
	if err := Isolate(context.Background(), result.args(), modules); err != nil {
		t.Fatal(err)
	}
	expectContains(t, result.print(t, "/entry.js"), `const b = require("lib/b.js");`)
}

func TestIsolateAvoidsGeneratedNames(t *testing.T) {
	result := finalizeSuite{
		files: map[string]string{
			"/entry.js": `import {a} from './a'; let exports = a; console.log(exports)`,
			"/a.js":     `export let a = 1`,
		},
		options: config.Options{OutputFormat: config.FormatApp},
	}.link(t)

	modules := []uint32{result.bundle.Table.Visited["/entry.js"]}
	if err := Isolate(context.Background(), result.args(), modules); err != nil {
		t.Fatal(err)
	}
	expectContains(t, result.print(t, "/entry.js"),
		"let exports2 = import_a.a;",
		"console.log(exports2);",
	)
}
