package scanner

import (
	"strings"
	"testing"

	"github.com/hoistjs/hoist/internal/ast"
	"github.com/hoistjs/hoist/internal/graph"
	"github.com/hoistjs/hoist/internal/logger"
	"github.com/hoistjs/hoist/internal/test"
)

func scan(t *testing.T, contents string) (graph.ScanResult, []logger.Msg, bool) {
	t.Helper()
	source := test.SourceForTest(contents)
	tree, msg := Parse(&source)
	if msg != nil {
		t.Fatalf("parse error: %s", msg.Text)
	}
	log := logger.NewDeferLog()
	result, vars, ok := Scan(log, &source, tree, Options{})
	if len(vars) != len(result.Symbols) {
		t.Fatalf("got %d vars for %d symbols", len(vars), len(result.Symbols))
	}
	return result, log.Done(), ok
}

func symbolRef(t *testing.T, result graph.ScanResult, name string) ast.Ref {
	t.Helper()
	for i, symbol := range result.Symbols {
		if symbol.OriginalName == name {
			return ast.Ref{InnerIndex: uint32(i)}
		}
	}
	t.Fatalf("no symbol named %q", name)
	return ast.InvalidRef
}

func hasRef(refs []ast.Ref, ref ast.Ref) bool {
	for _, r := range refs {
		if r == ref {
			return true
		}
	}
	return false
}

func TestESModuleFlag(t *testing.T) {
	cases := []struct {
		contents  string
		expected  graph.ESModuleFlag
		ambiguous bool
	}{
		{"module.exports.__esModule = true;", graph.ESModuleFlagTrue, false},
		{"module.exports.__esModule = false;", graph.ESModuleFlagFalse, false},
		{"module.exports.other = true;", graph.ESModuleFlagUnknown, false},
		{"exports.__esModule = true;", graph.ESModuleFlagTrue, false},
		{"exports.other = true;", graph.ESModuleFlagUnknown, false},
		{`Object.defineProperty(exports, "__esModule", { value: true });`, graph.ESModuleFlagTrue, false},
		{`Object.defineProperty(module.exports, "__esModule", { value: true });`, graph.ESModuleFlagTrue, false},
		{`Object.defineProperty(module.exports, "__esModule", { value: false });`, graph.ESModuleFlagFalse, false},
		{`Object.defineProperty(exports, "other", { value: true });`, graph.ESModuleFlagUnknown, false},
		{`Object.defineProperty(exports, "__esModule", { value: !0 });`, graph.ESModuleFlagFalse, true},
		{"module.exports.__esModule = !0;", graph.ESModuleFlagFalse, true},
		{"var Object = {}; Object.defineProperty(exports, '__esModule', { value: true });", graph.ESModuleFlagUnknown, false},
	}

	for _, c := range cases {
		t.Run(c.contents, func(t *testing.T) {
			result, _, ok := scan(t, c.contents)
			if !ok {
				t.Fatal("unexpected scan error")
			}
			test.AssertEqual(t, result.ExportsKind, graph.ExportsCommonJS)
			test.AssertEqual(t, result.ESModuleFlag, c.expected)
			test.AssertEqual(t, len(result.Warnings) > 0, c.ambiguous)
		})
	}
}

func TestESModuleFlagTrueWins(t *testing.T) {
	result, _, _ := scan(t, "exports.__esModule = false;\nexports.__esModule = true;\n")
	test.AssertEqual(t, result.ESModuleFlag, graph.ESModuleFlagTrue)
}

func TestImportsAndExports(t *testing.T) {
	result, msgs, ok := scan(t, `
import def, {a as b, c} from './foo'
import * as ns from './bar'
export {b as renamed}
export * from './star'
export {x as y} from './re'
export const local = 1
export default function() {}
`)
	if !ok {
		t.Fatalf("unexpected errors: %v", msgs)
	}

	test.AssertEqual(t, result.ExportsKind, graph.ExportsESM)
	test.AssertEqual(t, len(result.ImportRecords), 4)
	for i, path := range []string{"./foo", "./bar", "./star", "./re"} {
		test.AssertEqual(t, result.ImportRecords[i].Path.Text, path)
		test.AssertEqual(t, result.ImportRecords[i].Kind, ast.ImportStmt)
		if !result.ImportRecords[i].NamespaceRef.IsValid() {
			t.Fatalf("record %d has no namespace binding", i)
		}
	}
	test.AssertEqual(t, result.Symbols[result.ImportRecords[0].NamespaceRef.InnerIndex].OriginalName, "import_foo")
	if !result.ImportRecords[0].Flags.Has(ast.ContainsDefaultAlias) {
		t.Fatal("expected the default alias flag")
	}
	if !result.ImportRecords[1].Flags.Has(ast.ContainsImportStar) {
		t.Fatal("expected the import star flag")
	}
	if !result.ImportRecords[2].Flags.Has(ast.IsExportStar) {
		t.Fatal("expected the export star flag")
	}
	test.AssertEqual(t, len(result.ExportStarRecords), 1)
	test.AssertEqual(t, result.ExportStarRecords[0], uint32(2))

	b := symbolRef(t, result, "b")
	test.AssertEqual(t, result.NamedImports[b].Alias, "a")
	test.AssertEqual(t, result.NamedImports[b].ImportRecordIndex, uint32(0))
	test.AssertEqual(t, result.NamedImports[symbolRef(t, result, "def")].Alias, "default")
	test.AssertEqual(t, result.NamedImports[symbolRef(t, result, "ns")].Alias, "*")

	test.AssertEqual(t, len(result.NamedExports), 4)
	test.AssertEqual(t, result.NamedExports["renamed"].Ref, b)
	test.AssertEqual(t, result.NamedExports["local"].Ref, symbolRef(t, result, "local"))
	test.AssertEqual(t, result.NamedExports["default"].Ref, result.DefaultRef)
	test.AssertEqual(t, result.Symbols[result.DefaultRef.InnerIndex].OriginalName, "stdin_default")

	reexport := result.NamedExports["y"].Ref
	test.AssertEqual(t, result.NamedImports[reexport].Alias, "x")
	test.AssertEqual(t, result.NamedImports[reexport].IsReExportOnly, true)

	for i := 0; i < 5; i++ {
		test.AssertEqual(t, result.Stmts[i].IsImportOrExportClause, true)
	}
	test.AssertEqual(t, result.Stmts[5].IsImportOrExportClause, false)
}

func TestStatementGraph(t *testing.T) {
	result, _, ok := scan(t, "var a = 1\nfunction f() { return a }\nf()\n")
	if !ok {
		t.Fatal("unexpected scan error")
	}

	a := symbolRef(t, result, "a")
	f := symbolRef(t, result, "f")

	test.AssertEqual(t, len(result.Stmts), 4)
	test.AssertEqual(t, result.NSExportStmtIndex, uint32(3))
	if !hasRef(result.Stmts[0].DeclaredSymbols, a) || !hasRef(result.Stmts[1].DeclaredSymbols, f) {
		t.Fatal("missing declarations")
	}
	if !hasRef(result.Stmts[1].ReferencedSymbols, a) || !hasRef(result.Stmts[2].ReferencedSymbols, f) {
		t.Fatal("missing references")
	}
	if hasRef(result.Stmts[1].ReferencedSymbols, f) {
		t.Fatal("a declaration does not reference itself")
	}
	test.AssertEqual(t, len(result.TopLevelSymbolToStmts[a]), 1)
	test.AssertEqual(t, result.TopLevelSymbolToStmts[a][0], uint32(0))
	test.AssertEqual(t, result.TopLevelSymbolToStmts[result.ExportsRef][0], uint32(3))

	test.AssertEqual(t, result.Stmts[0].HasSideEffects, false)
	test.AssertEqual(t, result.Stmts[1].HasSideEffects, false)
	test.AssertEqual(t, result.Stmts[2].HasSideEffects, true)
	test.AssertEqual(t, result.ExportsKind, graph.ExportsNone)
}

func TestSideEffects(t *testing.T) {
	cases := map[string]bool{
		"var a = 1, b = 'x'":                  false,
		"var a = [1, 2], b = {c: a}":          false,
		"var max = Math.max":                  false,
		"var a = typeof window":               false,
		"function f() {}\nclass C {}":         false,
		"var a = window.foo":                  true,
		"var a = unknownGlobal":               true,
		"console.log(1)":                      true,
		"var {a} = {a: 1}":                    true,
		"class C { static x = sideEffect() }": true,
		"let a = `x${b}`":                     true,
	}
	for contents, expected := range cases {
		result, _, _ := scan(t, contents)
		if result.HasSideEffects != expected {
			t.Fatalf("%q: expected side effects to be %v", contents, expected)
		}
	}
}

func TestRequireAndDynamicImport(t *testing.T) {
	result, _, _ := scan(t, "const a = require('./a')\nimport('./b').then(x => x)\nimport(name)\n")

	test.AssertEqual(t, len(result.ImportRecords), 2)
	test.AssertEqual(t, result.ImportRecords[0].Kind, ast.ImportRequire)
	test.AssertEqual(t, result.ImportRecords[0].Path.Text, "./a")
	test.AssertEqual(t, result.ImportRecords[1].Kind, ast.ImportDynamic)
	test.AssertEqual(t, result.ImportRecords[1].Path.Text, "./b")
	test.AssertEqual(t, len(result.RequireCalls), 1)
	test.AssertEqual(t, len(result.DynamicImportCalls), 1)
	test.AssertEqual(t, result.Usage.Has(graph.UsesDynamicImport), true)
	test.AssertEqual(t, result.Stmts[0].ImportRecordIndices[0], uint32(0))
	test.AssertEqual(t, result.Stmts[1].ImportRecordIndices[0], uint32(1))

	// "require" is not "module" or "exports"
	test.AssertEqual(t, result.ExportsKind, graph.ExportsNone)
}

func TestLocalRequireIsNotARecord(t *testing.T) {
	result, _, _ := scan(t, "function require(x) {}\nrequire('./a')\n")
	test.AssertEqual(t, len(result.ImportRecords), 0)
}

func TestUsageFlags(t *testing.T) {
	result, _, _ := scan(t, "await foo()\neval('x')\nnew URL('./a.png', import.meta.url)\n")
	for _, flag := range []graph.UsageFlags{graph.UsesTopLevelAwait, graph.UsesEval, graph.UsesImportMeta, graph.UsesNewURL} {
		if !result.Usage.Has(flag) {
			t.Fatalf("missing usage flag %d", flag)
		}
	}
	test.AssertEqual(t, result.ExportsKind, graph.ExportsESM)
	test.AssertEqual(t, len(result.Warnings), 1)
	test.AssertEqual(t, result.Warnings[0].Text, "Using direct eval with a bundler is not recommended and may cause problems")
}

func TestCommonJSInsideESMWarns(t *testing.T) {
	result, _, _ := scan(t, "export const a = 1\nmodule.exports.b = 2\n")
	test.AssertEqual(t, result.ExportsKind, graph.ExportsESM)
	test.AssertEqual(t, len(result.Warnings), 1)
	test.AssertEqual(t, result.Warnings[0].Class, logger.ClassInterop)
}

func TestExportErrors(t *testing.T) {
	_, msgs, ok := scan(t, "export {missing}\n")
	test.AssertEqual(t, ok, false)
	test.AssertEqual(t, len(msgs), 1)
	test.AssertEqual(t, msgs[0].Text, `"missing" is not declared in this file`)

	_, msgs, ok = scan(t, "export const a = 1\nexport {a}\n")
	test.AssertEqual(t, ok, false)
	test.AssertEqual(t, msgs[0].Text, `Multiple exports with the same name "a"`)
}

func TestBareImportAndHashbang(t *testing.T) {
	result, _, _ := scan(t, "#!/usr/bin/env node\nimport './side'\n")
	if !strings.HasPrefix(result.Hashbang, "#!/usr/bin/env node") {
		t.Fatalf("unexpected hashbang %q", result.Hashbang)
	}
	test.AssertEqual(t, len(result.ImportRecords), 1)
	test.AssertEqual(t, result.ImportRecords[0].Flags.Has(ast.WasOriginallyBareImport), true)
}

func TestParseError(t *testing.T) {
	source := test.SourceForTest("let a = ;")
	_, msg := Parse(&source)
	if msg == nil {
		t.Fatal("expected a parse error")
	}
	test.AssertEqual(t, msg.Class, logger.ClassParse)
	if msg.Location == nil || msg.Location.Line != 1 {
		t.Fatal("expected a location on the first line")
	}
}

func TestUnquote(t *testing.T) {
	test.AssertEqual(t, unquote([]byte(`'./a'`)), "./a")
	test.AssertEqual(t, unquote([]byte(`"./a"`)), "./a")
	test.AssertEqual(t, unquote([]byte(`'a\'b'`)), "a'b")
	test.AssertEqual(t, unquote([]byte(`"\x41"`)), "A")
	test.AssertEqual(t, unquote([]byte(`plain`)), "plain")
}

func TestDiagnosticsSkipCommentsAndStrings(t *testing.T) {
	result, _, _ := scan(t, "// eval is bad\nlet s = \"eval\"\neval(s)\n")
	test.AssertEqual(t, len(result.Warnings), 1)
	location := result.Warnings[0].Location
	test.AssertEqual(t, location.Line, 3)
	test.AssertEqual(t, location.Column, 0)
	test.AssertEqual(t, location.Length, 4)

	result, _, _ = scan(t, "/* __esModule */\nexports.__esModule = true\nmodule.exports.__esModule = !0\n")
	test.AssertEqual(t, len(result.Warnings), 1)
	location = result.Warnings[0].Location
	test.AssertEqual(t, location.Line, 3)
	test.AssertEqual(t, location.Column, 15)

	result, _, _ = scan(t, "// module\nexport const a = 1\nmodule.exports.b = 2\n")
	test.AssertEqual(t, len(result.Warnings), 1)
	test.AssertEqual(t, result.Warnings[0].Location.Line, 3)
}

func TestExportLocations(t *testing.T) {
	_, msgs, ok := scan(t, "// export {a}\nexport const a = 1\nexport {a}\n")
	test.AssertEqual(t, ok, false)
	test.AssertEqual(t, len(msgs), 1)
	test.AssertEqual(t, msgs[0].Location.Line, 3)
	test.AssertEqual(t, msgs[0].Location.Column, 8)

	contents := "/* b */\nlet b = 1\nexport {x as b} from './a'\nexport {b as c}\n"
	result, _, ok := scan(t, contents)
	test.AssertEqual(t, ok, true)
	test.AssertEqual(t, result.NamedExports["b"].AliasLoc.Start, int32(strings.Index(contents, "as b")+3))
	test.AssertEqual(t, result.NamedExports["c"].AliasLoc.Start, int32(strings.Index(contents, "as c")+3))
}

func TestImportAliasLocations(t *testing.T) {
	contents := "// import {b}\nimport {b as c} from './a'\nimport d from './d'\nconsole.log(c, d)\n"
	result, _, ok := scan(t, contents)
	test.AssertEqual(t, ok, true)

	locs := make(map[string]int32)
	for _, named := range result.NamedImports {
		locs[named.Alias] = named.AliasLoc.Start
	}
	test.AssertEqual(t, locs["b"], int32(strings.Index(contents, "{b as")+1))
	test.AssertEqual(t, locs["default"], int32(strings.Index(contents, "import d")+7))
}
