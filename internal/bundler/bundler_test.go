package bundler

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hoistjs/hoist/internal/ast"
	"github.com/hoistjs/hoist/internal/cache"
	"github.com/hoistjs/hoist/internal/config"
	"github.com/hoistjs/hoist/internal/fs"
	"github.com/hoistjs/hoist/internal/graph"
	"github.com/hoistjs/hoist/internal/logger"
	"github.com/hoistjs/hoist/internal/plugin"
	"github.com/hoistjs/hoist/internal/resolver"
	"github.com/hoistjs/hoist/internal/test"
)

type scanSuite struct {
	fs      fs.MockWriter
	log     logger.Log
	caches  *cache.CacheSet
	options config.Options
	plugins []plugin.Plugin
}

func newScanSuite(files map[string]string, entryPoints ...string) *scanSuite {
	return &scanSuite{
		fs:     fs.MockFS(files),
		log:    logger.NewDeferLog(),
		caches: cache.MakeCacheSet(),
		options: config.Options{
			EntryPoints:       entryPoints,
			AbsWorkingDir:     "/",
			TreeShaking:       true,
			ModuleSideEffects: config.ModuleSideEffectsTrue,
		},
	}
}

func (s *scanSuite) args() Args {
	return Args{
		FS:       s.fs,
		Log:      s.log,
		Resolver: resolver.NewResolver(s.fs, s.log, s.caches, &s.options),
		Caches:   s.caches,
		Plugins:  plugin.NewDriver(s.plugins),
		Options:  &s.options,
	}
}

func (s *scanSuite) scan(t *testing.T) *Bundle {
	t.Helper()
	bundle, err := ScanBundle(context.Background(), s.args())
	if err != nil {
		for _, msg := range s.log.Done() {
			t.Log(msg.Text)
		}
		t.Fatal(err)
	}
	return bundle
}

func moduleByPath(t *testing.T, bundle *Bundle, key string) *graph.Module {
	t.Helper()
	index, ok := bundle.Table.Visited[key]
	if !ok {
		t.Fatalf("%q was not visited", key)
	}
	return &bundle.Table.Modules[index]
}

func TestScanDiscoversGraph(t *testing.T) {
	s := newScanSuite(map[string]string{
		"/src/entry.js": `
			import {a} from './a'
			import './b'
			console.log(a)
		`,
		"/src/a.js": `
			import './b'
			export let a = 1
		`,
		"/src/b.js": `console.log('b')`,
	}, "/src/entry.js")
	bundle := s.scan(t)

	// The runtime, the entry point and two dependencies
	test.AssertEqual(t, len(bundle.Table.Modules), 4)
	test.AssertEqual(t, len(bundle.Table.EntryPoints), 1)
	test.AssertEqual(t, bundle.Table.Modules[graph.RuntimeSourceIndex].Source.PrettyPath, "<runtime>")

	entry := moduleByPath(t, bundle, "/src/entry.js")
	test.AssertEqual(t, entry.StableID, "src/entry.js")
	test.AssertEqual(t, bundle.Table.EntryPoints[0], entry.Source.Index)

	repr, ok := entry.Normal()
	if !ok {
		t.Fatal("expected a normal module")
	}
	for _, record := range repr.ImportRecords {
		if !record.SourceIndex.IsValid() {
			t.Fatalf("unresolved record %q", record.Path.Text)
		}
	}
	a := moduleByPath(t, bundle, "/src/a.js")
	test.AssertEqual(t, repr.ImportRecords[0].SourceIndex.GetIndex(), a.Source.Index)

	// The symbols belong to the symbol table now
	aRepr, _ := a.Normal()
	if aRepr.Symbols != nil {
		t.Fatal("expected the scan result symbols to be moved")
	}
	if len(bundle.Symbols.Outer[a.Source.Index]) == 0 {
		t.Fatal("expected symbols for a.js")
	}
	test.AssertEqual(t, len(aRepr.Vars), len(bundle.Symbols.Outer[a.Source.Index]))
}

func TestScanVisitedHasNoDuplicates(t *testing.T) {
	files := map[string]string{
		"/entry.js": `import './a'; import './b'; import './c'`,
		"/a.js":     `import './b'; import './c'`,
		"/b.js":     `import './c'; import './a'`,
		"/c.js":     `import './a'; require('./b')`,
	}
	s := newScanSuite(files, "/entry.js")
	args := s.args()
	l := newLoader(context.Background(), &args, graph.NewModuleTable(), ast.NewSymbolMap(0))
	l.addEntryPoints()
	l.loop()
	if err := l.finish(); err != nil {
		t.Fatal(err)
	}

	test.AssertEqual(t, l.remaining, 0)
	seen := make(map[uint32]string)
	for key, index := range l.table.Visited {
		if other, ok := seen[index]; ok {
			t.Fatalf("%q and %q share source index %d", key, other, index)
		}
		seen[index] = key
	}
	test.AssertEqual(t, len(l.table.Visited), 4)
	test.AssertEqual(t, len(l.table.Modules), 4)
}

func TestScanCommonJSAndJSON(t *testing.T) {
	s := newScanSuite(map[string]string{
		"/entry.js": `
			const data = require('./data.json')
			const lib = require('./lib')
			console.log(data, lib)
		`,
		"/lib.js":    `module.exports.__esModule = true; exports.x = 1`,
		"/data.json": `{"a": 1}`,
	}, "/entry.js")
	bundle := s.scan(t)

	lib, _ := moduleByPath(t, bundle, "/lib.js").Normal()
	test.AssertEqual(t, lib.ExportsKind, graph.ExportsCommonJS)
	test.AssertEqual(t, lib.ESModuleFlag, graph.ESModuleFlagTrue)

	data := moduleByPath(t, bundle, "/data.json")
	repr, _ := data.Normal()
	test.AssertEqual(t, repr.ExportsKind, graph.ExportsCommonJS)
	test.AssertEqual(t, data.ModuleType, config.ModuleTypeJSON)
	if !strings.HasPrefix(data.Source.Contents, "module.exports = ") {
		t.Fatalf("unexpected JSON module contents %q", data.Source.Contents)
	}
}

func TestScanExternalFacade(t *testing.T) {
	s := newScanSuite(map[string]string{
		"/entry.js": `import React from 'react'; import {jsx} from 'react/jsx-runtime'; console.log(React, jsx)`,
	}, "/entry.js")
	s.options.ExternalModules = []string{"react"}
	bundle := s.scan(t)

	external := moduleByPath(t, bundle, "external:react")
	repr, ok := external.External()
	if !ok {
		t.Fatal("expected an external module")
	}
	test.AssertEqual(t, repr.Specifier, "react")
	test.AssertEqual(t, bundle.Symbols.Get(repr.FacadeRef).Kind, ast.SymbolFacade)
	test.AssertEqual(t, bundle.Symbols.Get(repr.FacadeRef).OriginalName, "import_react")
	test.AssertEqual(t, external.SideEffects.Kind, graph.SideEffectsNoTreeshake)

	entry, _ := moduleByPath(t, bundle, "/entry.js").Normal()
	for _, record := range entry.ImportRecords {
		if !record.Flags.Has(ast.IsExternal) {
			t.Fatalf("expected %q to be external", record.Path.Text)
		}
	}
	moduleByPath(t, bundle, "external:react/jsx-runtime")
}

func TestScanUnresolvedImport(t *testing.T) {
	s := newScanSuite(map[string]string{
		"/entry.js": `import './missing'; import 'pkg'`,
	}, "/entry.js")
	_, err := ScanBundle(context.Background(), s.args())
	if !errors.Is(err, ErrScanFailed) {
		t.Fatalf("expected a scan failure, got %v", err)
	}

	var texts []string
	for _, msg := range s.log.Done() {
		test.AssertEqual(t, msg.Class, logger.ClassResolution)
		texts = append(texts, msg.Text)
	}
	test.AssertEqualWithDiff(t, strings.Join(texts, "\n"), strings.Join([]string{
		`Could not resolve "./missing"`,
		`Could not resolve "pkg" (mark it as external to exclude it from the bundle)`,
	}, "\n"))
}

func TestScanParseErrorDoesNotStopSiblings(t *testing.T) {
	s := newScanSuite(map[string]string{
		"/entry.js": `import './bad'; import './good'`,
		"/bad.js":   `let = ;`,
		"/good.js":  `import './deep'`,
		"/deep.js":  `console.log(1)`,
	}, "/entry.js")
	args := s.args()
	l := newLoader(context.Background(), &args, graph.NewModuleTable(), ast.NewSymbolMap(0))
	l.addEntryPoints()
	l.loop()

	if !errors.Is(l.finish(), ErrScanFailed) {
		t.Fatal("expected the scan to fail")
	}
	test.AssertEqual(t, l.aborted, false)
	test.AssertEqual(t, l.remaining, 0)
	if _, ok := l.table.Visited["/deep.js"]; !ok {
		t.Fatal("expected siblings of the broken module to be scanned")
	}
}

func TestScanPluginErrorIsFatal(t *testing.T) {
	s := newScanSuite(map[string]string{
		"/entry.js": `import './a'`,
		"/a.js":     `import './b'`,
		"/b.js":     ``,
	}, "/entry.js")
	s.plugins = []plugin.Plugin{{
		Name: "broken",
		Transform: func(args plugin.TransformArgs) (string, error) {
			if strings.HasSuffix(args.Path.Text, "a.js") {
				return "", errors.New("cannot transform")
			}
			return args.Contents, nil
		},
	}}
	args := s.args()
	l := newLoader(context.Background(), &args, graph.NewModuleTable(), ast.NewSymbolMap(0))
	l.addEntryPoints()
	l.loop()

	if !errors.Is(l.finish(), ErrLoaderAborted) {
		t.Fatal("expected the loader to abort")
	}
	test.AssertEqual(t, l.remaining, 0)
	msgs := s.log.Done()
	if !logger.HasFatal(msgs) {
		t.Fatal("expected a fatal diagnostic")
	}
	test.AssertEqual(t, msgs[0].Text, "[broken] transform: cannot transform")
}

func TestScanCancelled(t *testing.T) {
	s := newScanSuite(map[string]string{"/entry.js": `import './a'`, "/a.js": ``}, "/entry.js")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ScanBundle(ctx, s.args())
	if !errors.Is(err, ErrLoaderAborted) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected a cancelled scan, got %v", err)
	}
}

func TestScanPluginResolveAndLoad(t *testing.T) {
	s := newScanSuite(map[string]string{
		"/entry.js": `import {value} from 'virtual:config'; console.log(value)`,
	}, "/entry.js")
	noSideEffects := false
	s.plugins = []plugin.Plugin{{
		Name: "virtual",
		ResolveID: func(args plugin.ResolveArgs) (*plugin.ResolveResult, error) {
			if args.Specifier == "virtual:config" {
				return &plugin.ResolveResult{Path: "config", SideEffects: &noSideEffects}, nil
			}
			return nil, nil
		},
		Load: func(args plugin.LoadArgs) (*plugin.LoadResult, error) {
			if args.Path.Namespace == "virtual" {
				return &plugin.LoadResult{Contents: `export const value = 1`}, nil
			}
			return nil, nil
		},
	}}
	bundle := s.scan(t)

	module := moduleByPath(t, bundle, "virtual:config")
	repr, _ := module.Normal()
	if _, ok := repr.NamedExports["value"]; !ok {
		t.Fatal("expected the loaded contents to be scanned")
	}
	test.AssertEqual(t, module.SideEffects, graph.SideEffects{Kind: graph.SideEffectsUserDefined, Value: false})
}

func TestScanDuplicateEntryPoint(t *testing.T) {
	s := newScanSuite(map[string]string{"/entry.js": ``}, "/entry.js", "./entry.js")
	_, err := ScanBundle(context.Background(), s.args())
	if !errors.Is(err, ErrScanFailed) {
		t.Fatalf("expected a scan failure, got %v", err)
	}
	test.AssertEqual(t, s.log.Done()[0].Text, `Duplicate entry point "entry.js"`)
}

func TestSideEffectsPrecedence(t *testing.T) {
	yes, no := true, false
	on := &config.Options{TreeShaking: true, ModuleSideEffects: config.ModuleSideEffectsTrue}
	off := &config.Options{}

	test.AssertEqual(t, moduleSideEffects(off, nil, false, 1), graph.SideEffects{Kind: graph.SideEffectsNoTreeshake})
	test.AssertEqual(t, moduleSideEffects(on, nil, true, 1), graph.SideEffects{Kind: graph.SideEffectsAnalyzed, Value: true})
	test.AssertEqual(t, moduleSideEffects(on, &resolvedImport{pluginSideEffects: &no, sideEffectsData: &resolver.SideEffectsData{HasSideEffects: true}}, true, 1),
		graph.SideEffects{Kind: graph.SideEffectsUserDefined, Value: false})
	test.AssertEqual(t, moduleSideEffects(on, &resolvedImport{sideEffectsData: &resolver.SideEffectsData{HasSideEffects: false}}, true, 1),
		graph.SideEffects{Kind: graph.SideEffectsUserDefined, Value: false})

	// The runtime is always analyzed
	test.AssertEqual(t, moduleSideEffects(off, nil, false, graph.RuntimeSourceIndex), graph.SideEffects{Kind: graph.SideEffectsAnalyzed})

	externalCases := []struct {
		options  *config.Options
		hook     *bool
		expected graph.SideEffects
	}{
		{on, &yes, graph.SideEffects{Kind: graph.SideEffectsUserDefined, Value: true}},
		{off, &no, graph.SideEffects{Kind: graph.SideEffectsNoTreeshake}},
		{off, nil, graph.SideEffects{Kind: graph.SideEffectsNoTreeshake}},
		{&config.Options{TreeShaking: true, ModuleSideEffects: config.ModuleSideEffectsFalse}, nil, graph.SideEffects{Kind: graph.SideEffectsUserDefined}},
		{on, nil, graph.SideEffects{Kind: graph.SideEffectsNoTreeshake}},
	}
	for _, c := range externalCases {
		observed, err := externalSideEffects(c.options, c.hook)
		if err != nil {
			t.Fatal(err)
		}
		test.AssertEqual(t, observed, c.expected)
	}

	if _, err := externalSideEffects(&config.Options{TreeShaking: true}, nil); err == nil {
		t.Fatal("expected an error for an unnormalized option")
	}
}

func TestScanUnnormalizedSideEffectsAbort(t *testing.T) {
	s := newScanSuite(map[string]string{"/entry.js": `import 'ext'`}, "/entry.js")
	s.options.ExternalModules = []string{"ext"}
	s.options.ModuleSideEffects = config.ModuleSideEffectsUnset
	_, err := ScanBundle(context.Background(), s.args())
	if !errors.Is(err, ErrLoaderAborted) {
		t.Fatalf("expected the loader to abort, got %v", err)
	}
	msgs := s.log.Done()
	test.AssertEqual(t, msgs[0].Class, logger.ClassInfrastructure)
}
