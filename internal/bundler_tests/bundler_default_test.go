package bundler_tests

import (
	"testing"

	"github.com/hoistjs/hoist/internal/config"
)

var default_suite = suite{
	name: "default",
}

func TestSimpleImport(t *testing.T) {
	t.Parallel()
	default_suite.expectBundled(t, bundled{
		files: map[string]string{
			"/entry.js": `
				import {a} from './a'
				console.log(a)
			`,
			"/a.js": `export let a = 1`,
		},
		entryPaths: []string{"/entry.js"},
		expected: map[string]string{
			"/out/entry.js": `// a.js
let a = 1;

// entry.js
console.log(a);
`,
		},
	})
}

func TestNameCollisionAcrossModules(t *testing.T) {
	t.Parallel()
	default_suite.expectBundled(t, bundled{
		files: map[string]string{
			"/entry.js": `
				import {x as y} from './a'
				let x = 2
				console.log(x, y)
			`,
			"/a.js": `export let x = 1`,
		},
		entryPaths: []string{"/entry.js"},
		expected: map[string]string{
			"/out/entry.js": `// a.js
let x = 1;

// entry.js
let x2 = 2;
console.log(x2, x);
`,
		},
	})
}

func TestMultipleEntryPointsShareNames(t *testing.T) {
	t.Parallel()
	default_suite.expectBundled(t, bundled{
		files: map[string]string{
			"/a.js":      `import {s} from './shared'; console.log(1, s)`,
			"/b.js":      `import {s} from './shared'; console.log(2, s)`,
			"/shared.js": `export let s = 0`,
		},
		entryPaths: []string{"/a.js", "/b.js"},
		expected: map[string]string{
			"/out/a.js": `// shared.js
let s = 0;

// a.js
console.log(1, s);
`,
			"/out/b.js": `// shared.js
let s = 0;

// b.js
console.log(2, s);
`,
		},
	})
}

func TestOutputFile(t *testing.T) {
	t.Parallel()
	default_suite.expectBundled(t, bundled{
		files: map[string]string{
			"/src/entry.js": `console.log(1)`,
		},
		entryPaths: []string{"/src/entry.js"},
		options: config.Options{
			AbsOutputFile: "/dist/bundle.js",
		},
		expected: map[string]string{
			"/dist/bundle.js": `// src/entry.js
console.log(1);
`,
		},
	})
}

func TestExportDefaultExpression(t *testing.T) {
	t.Parallel()
	default_suite.expectBundled(t, bundled{
		files: map[string]string{
			"/entry.js": `import d from './a'; console.log(d)`,
			"/a.js":     `export default 42`,
		},
		entryPaths: []string{"/entry.js"},
		expected: map[string]string{
			"/out/entry.js": `// a.js
var a_default = 42;

// entry.js
console.log(a_default);
`,
		},
	})
}

func TestEntryPointExports(t *testing.T) {
	t.Parallel()
	default_suite.expectBundled(t, bundled{
		files: map[string]string{
			"/entry.js": `export let a = 1; export {a as b}`,
		},
		entryPaths: []string{"/entry.js"},
		expected: map[string]string{
			"/out/entry.js": `// entry.js
let a = 1;

export { a, a as b };
`,
		},
	})
}

func TestReExportChain(t *testing.T) {
	t.Parallel()
	default_suite.expectBundled(t, bundled{
		files: map[string]string{
			"/entry.js": `import {x} from './b'; console.log(x)`,
			"/b.js":     `export {x} from './c'`,
			"/c.js":     `export let x = 1`,
		},
		entryPaths: []string{"/entry.js"},
		expected: map[string]string{
			"/out/entry.js": `// c.js
let x = 1;

// entry.js
console.log(x);
`,
		},
	})
}

func TestExportStarFanOut(t *testing.T) {
	t.Parallel()
	default_suite.expectBundled(t, bundled{
		files: map[string]string{
			"/entry.js": `import {a, b} from './all'; console.log(a, b)`,
			"/all.js":   `export * from './a'; export * from './b'`,
			"/a.js":     `export let a = 1`,
			"/b.js":     `export let b = 2`,
		},
		entryPaths: []string{"/entry.js"},
		expected: map[string]string{
			"/out/entry.js": `// a.js
let a = 1;

// b.js
let b = 2;

// entry.js
console.log(a, b);
`,
		},
	})
}

func TestNamespaceImport(t *testing.T) {
	t.Parallel()
	default_suite.expectBundled(t, bundled{
		files: map[string]string{
			"/entry.js": `import * as ns from './a'; console.log(ns)`,
			"/a.js":     `export let a = 1`,
		},
		entryPaths: []string{"/entry.js"},
		expected: map[string]string{
			"/out/entry.js": `// a.js
var a_exports = {};
__export(a_exports, {
    a: () => a
});
let a = 1;

// entry.js
console.log(a_exports);
`,
		},
	})
}

func TestImportCycle(t *testing.T) {
	t.Parallel()
	default_suite.expectBundled(t, bundled{
		files: map[string]string{
			"/entry.js": `import {a} from './a'; console.log(a)`,
			"/a.js":     `import {b} from './b'; export let a = 1; console.log(b)`,
			"/b.js":     `import {a} from './a'; export let b = 2; console.log(a)`,
		},
		entryPaths: []string{"/entry.js"},
		expectedContains: []string{
			"let a = 1;",
			"let b = 2;",
			"console.log(b);",
			"console.log(a);",
		},
	})
}

func TestExternalImportESModule(t *testing.T) {
	t.Parallel()
	default_suite.expectBundled(t, bundled{
		files: map[string]string{
			"/entry.js": `import React from 'react'; import 'polyfill'; console.log(React)`,
		},
		entryPaths: []string{"/entry.js"},
		options: config.Options{
			ExternalModules: []string{"react", "poly*"},
		},
		expectedContains: []string{
			`from "react";`,
			`import "polyfill";`,
		},
	})
}

func TestExternalImportCommonJS(t *testing.T) {
	t.Parallel()
	default_suite.expectBundled(t, bundled{
		files: map[string]string{
			"/entry.js": `import 'polyfill'; console.log(1)`,
		},
		entryPaths: []string{"/entry.js"},
		options: config.Options{
			OutputFormat:    config.FormatCommonJS,
			ExternalModules: []string{"polyfill"},
		},
		expected: map[string]string{
			"/out/entry.js": `// entry.js
require("polyfill");
console.log(1);
`,
		},
	})
}

func TestHashbangIsKeptFirst(t *testing.T) {
	t.Parallel()
	default_suite.expectBundled(t, bundled{
		files: map[string]string{
			"/entry.js": "#!/usr/bin/env node\nimport {a} from './a'\nconsole.log(a)",
			"/a.js":     `export let a = 1`,
		},
		entryPaths: []string{"/entry.js"},
		expected: map[string]string{
			"/out/entry.js": `#!/usr/bin/env node
// a.js
let a = 1;

// entry.js
console.log(a);
`,
		},
	})
}

func TestIIFEWithGlobalName(t *testing.T) {
	t.Parallel()
	default_suite.expectBundled(t, bundled{
		files: map[string]string{
			"/entry.js": `import {a} from './a'; export let b = a`,
			"/a.js":     `export let a = 1`,
		},
		entryPaths: []string{"/entry.js"},
		options: config.Options{
			OutputFormat: config.FormatIIFE,
			GlobalName:   "lib",
		},
		expected: map[string]string{
			"/out/entry.js": `var lib = (() => {
// a.js
let a = 1;

// entry.js
var entry_exports = {};
__export(entry_exports, {
    b: () => b
});
let b = a;

return entry_exports;
})();
`,
		},
	})
}

func TestCommonJSOutputFormat(t *testing.T) {
	t.Parallel()
	default_suite.expectBundled(t, bundled{
		files: map[string]string{
			"/entry.js": `export let a = 1`,
		},
		entryPaths: []string{"/entry.js"},
		options: config.Options{
			OutputFormat: config.FormatCommonJS,
		},
		expected: map[string]string{
			"/out/entry.js": `// entry.js
var entry_exports = {};
__export(entry_exports, {
    a: () => a
});
let a = 1;

module.exports = __toCommonJS(entry_exports);
`,
		},
	})
}

func TestUnresolvedImport(t *testing.T) {
	t.Parallel()
	default_suite.expectBundled(t, bundled{
		files: map[string]string{
			"/entry.js": `import './missing'`,
		},
		entryPaths:      []string{"/entry.js"},
		expectedScanLog: "entry.js: resolution error: Could not resolve \"./missing\"\n",
	})
}

func TestMissingExportIsAWarning(t *testing.T) {
	t.Parallel()
	default_suite.expectBundled(t, bundled{
		files: map[string]string{
			"/entry.js": `import {missing} from './a'; console.log(missing)`,
			"/a.js":     `export let a = 1`,
		},
		entryPaths:         []string{"/entry.js"},
		expectedCompileLog: "entry.js: warning: No matching export in \"a.js\" for import \"missing\"\n",
		expectedContains:   []string{"console.log((void 0));"},
	})
}

func TestStrictMissingExports(t *testing.T) {
	t.Parallel()
	default_suite.expectBundled(t, bundled{
		files: map[string]string{
			"/entry.js": `import {missing} from './a'; console.log(missing)`,
			"/a.js":     `export let a = 1`,
		},
		entryPaths: []string{"/entry.js"},
		options: config.Options{
			StrictMissingExports: true,
		},
		expectedCompileLog: "entry.js: link error: No matching export in \"a.js\" for import \"missing\"\n",
	})
}

func TestDuplicateOutputPath(t *testing.T) {
	t.Parallel()
	default_suite.expectBundled(t, bundled{
		files: map[string]string{
			"/a/index.js": `console.log(1)`,
			"/b/index.js": `console.log(2)`,
		},
		entryPaths:         []string{"/a/index.js", "/b/index.js"},
		expectedCompileLog: "link error: Two output files share the same path \"out/index.js\" (from \"a/index.js\" and \"b/index.js\")\n",
	})
}

func TestDirectEvalWarning(t *testing.T) {
	t.Parallel()
	default_suite.expectBundled(t, bundled{
		files: map[string]string{
			"/entry.js": `eval('1')`,
		},
		entryPaths:       []string{"/entry.js"},
		expectedScanLog:  "entry.js: warning: Using direct eval with a bundler is not recommended and may cause problems\n",
		expectedContains: []string{"eval("},
	})
}

func TestNodeModulesPackage(t *testing.T) {
	t.Parallel()
	default_suite.expectBundled(t, bundled{
		files: map[string]string{
			"/entry.js":                      `import {pkg} from 'pkg'; console.log(pkg)`,
			"/node_modules/pkg/package.json": `{"module": "esm.js", "main": "cjs.js"}`,
			"/node_modules/pkg/esm.js":       `export let pkg = 1`,
			"/node_modules/pkg/cjs.js":       `exports.pkg = 1`,
		},
		entryPaths: []string{"/entry.js"},
		expected: map[string]string{
			"/out/entry.js": `// node_modules/pkg/esm.js
let pkg = 1;

// entry.js
console.log(pkg);
`,
		},
	})
}
