package linker

// This package implements the second phase of bundling. Given the complete
// module graph from the loader it binds every import to the export it refers
// to, fans out "export * from" statements, decides which top-level statements
// survive tree shaking, and groups the surviving modules into one chunk per
// entry point. Binding works by merging symbols in the symbol table, so that
// once linking is done every reference follows its links to exactly one
// declaration.

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hoistjs/hoist/internal/ast"
	"github.com/hoistjs/hoist/internal/config"
	"github.com/hoistjs/hoist/internal/fs"
	"github.com/hoistjs/hoist/internal/graph"
	"github.com/hoistjs/hoist/internal/helpers"
	"github.com/hoistjs/hoist/internal/logger"
	"github.com/hoistjs/hoist/internal/runtime"
)

var ErrLinkFailed = errors.New("link failed")

type Chunk struct {
	EntryPoint uint32
	EntryBit   uint

	// Included normal modules in execution order. The runtime comes first
	// when any of it is included, followed by a depth-first postorder walk
	// from the entry point in import record order.
	Modules []uint32

	AbsPath string
}

type linkerContext struct {
	options *config.Options
	timer   *helpers.Timer
	log     logger.Log
	fs      fs.FS
	table   *graph.ModuleTable
	symbols *ast.SymbolMap

	// This helps avoid an infinite loop when matching imports to exports
	cycleDetector []importTracker

	// State of "export * from" resolution per module, plus the modules that
	// are currently being resolved in order
	starState []starState
	starStack []uint32
}

type starState uint8

const (
	starUnvisited starState = iota
	starVisiting
	starDone
)

func wrappedLog(log logger.Log) logger.Log {
	var mutex sync.Mutex
	var hasErrors bool
	addMsg := log.AddMsg

	log.AddMsg = func(msg logger.Msg) {
		if msg.Kind == logger.Error {
			mutex.Lock()
			defer mutex.Unlock()
			hasErrors = true
		}
		addMsg(msg)
	}

	log.HasErrors = func() bool {
		mutex.Lock()
		defer mutex.Unlock()
		return hasErrors
	}

	return log
}

// Link fills in the linking metadata of every module and merges symbols in
// place. Errors are reported to the log and make Link return ErrLinkFailed.
// After a successful link every symbol link points directly at its
// representative, so the symbol table may be read from many goroutines.
func Link(
	log logger.Log,
	fs fs.FS,
	options *config.Options,
	table *graph.ModuleTable,
	symbols *ast.SymbolMap,
	timer *helpers.Timer,
) ([]Chunk, error) {
	timer.Begin("Link")
	defer timer.End("Link")

	c := linkerContext{
		options:   options,
		timer:     timer,
		log:       wrappedLog(log),
		fs:        fs,
		table:     table,
		symbols:   symbols,
		starState: make([]starState, len(table.Modules)),
	}

	c.prepareModules()

	c.timer.Begin("Resolve export stars")
	for sourceIndex := range c.table.Modules {
		c.resolveExports(uint32(sourceIndex))
	}
	c.timer.End("Resolve export stars")
	if c.log.HasErrors() {
		return nil, ErrLinkFailed
	}

	c.timer.Begin("Match imports with exports")
	for sourceIndex := range c.table.Modules {
		c.matchImportsWithExportsForModule(uint32(sourceIndex))
	}
	c.timer.End("Match imports with exports")
	if c.log.HasErrors() {
		return nil, ErrLinkFailed
	}

	c.timer.Begin("Tree shaking")
	c.treeShaking()
	c.timer.End("Tree shaking")

	chunks := c.computeChunks()

	if err := c.symbols.FollowAll(); err != nil {
		c.log.AddMsg(logger.Msg{Kind: logger.Error, Class: logger.ClassInfrastructure, Text: err.Error()})
	}
	if c.log.HasErrors() {
		return nil, ErrLinkFailed
	}
	return chunks, nil
}

// Linking metadata is never carried over from a previous link
func (c *linkerContext) prepareModules() {
	entryBitCount := uint(len(c.table.EntryPoints))
	for sourceIndex := range c.table.Modules {
		repr, ok := c.table.Modules[sourceIndex].Normal()
		if !ok {
			continue
		}
		repr.Meta = graph.LinkingMetadata{
			ResolvedExports: make(map[string]graph.ExportData),
			StmtIsIncluded:  helpers.NewBitSet(uint(len(repr.Stmts))),
			EntryBits:       helpers.NewBitSet(entryBitCount),
		}
		if repr.ExportsKind == graph.ExportsCommonJS {
			repr.Meta.Wrap = graph.WrapCJS
		}
		for i := range repr.ImportRecords {
			repr.ImportRecords[i].Flags &^= ast.WrapWithToESM | ast.NamespaceIsReferenced
		}
	}
	for _, entryPoint := range c.table.EntryPoints {
		if repr, ok := c.table.Normal(entryPoint); ok {
			repr.Meta.IsEntryPoint = true
		}
	}
}

// Modules are resolved before the modules that star-re-export from them, so
// a target's resolved exports are complete by the time they are copied.
func (c *linkerContext) resolveExports(sourceIndex uint32) {
	if c.starState[sourceIndex] != starUnvisited {
		return
	}
	repr, ok := c.table.Normal(sourceIndex)
	if !ok {
		c.starState[sourceIndex] = starDone
		return
	}
	c.starState[sourceIndex] = starVisiting
	c.starStack = append(c.starStack, sourceIndex)

	resolved := repr.Meta.ResolvedExports
	for alias, export := range repr.NamedExports {
		resolved[alias] = graph.ExportData{Ref: export.Ref, SourceIndex: sourceIndex}
	}

	for _, recordIndex := range repr.ExportStarRecords {
		record := &repr.ImportRecords[recordIndex]
		if !record.SourceIndex.IsValid() {
			continue
		}
		otherSourceIndex := record.SourceIndex.GetIndex()
		otherRepr, ok := c.table.Normal(otherSourceIndex)

		// Export stars from a CommonJS or external module can't be statically
		// discovered. The namespace object copies them at run time instead.
		if !ok || otherRepr.ExportsKind == graph.ExportsCommonJS {
			repr.Meta.DynamicExportStars = append(repr.Meta.DynamicExportStars, recordIndex)
			continue
		}

		if c.starState[otherSourceIndex] == starVisiting {
			c.reportStarCycle(sourceIndex, record, otherSourceIndex)
			continue
		}
		c.resolveExports(otherSourceIndex)

		// Names that a dynamic module provides further down are only known at
		// run time, so they are copied from the target's namespace object
		if otherRepr.Meta.HasDynamicExports() {
			repr.Meta.DynamicExportStars = append(repr.Meta.DynamicExportStars, recordIndex)
		}

		for alias, data := range otherRepr.Meta.ResolvedExports {
			// ES6 export star statements ignore exports named "default"
			if alias == "default" {
				continue
			}

			// This export star is shadowed by a real named export
			if _, ok := repr.NamedExports[alias]; ok {
				continue
			}

			existing, ok := resolved[alias]
			if !ok {
				resolved[alias] = data
			} else if existing.Ref != data.Ref || data.IsAmbiguous {
				// Two different re-exports colliding makes it ambiguous
				existing.IsAmbiguous = true
				resolved[alias] = existing
			}
		}
	}

	aliases := make([]string, 0, len(resolved))
	for alias, data := range resolved {
		if !data.IsAmbiguous {
			aliases = append(aliases, alias)
		}
	}
	sort.Strings(aliases)
	repr.Meta.SortedExportAliases = aliases

	c.starStack = c.starStack[:len(c.starStack)-1]
	c.starState[sourceIndex] = starDone
}

func (c *linkerContext) reportStarCycle(sourceIndex uint32, record *ast.ImportRecord, otherSourceIndex uint32) {
	var path []string
	for i, index := range c.starStack {
		if index == otherSourceIndex {
			for _, inCycle := range c.starStack[i:] {
				path = append(path, c.table.Modules[inCycle].Source.PrettyPath)
			}
			break
		}
	}
	path = append(path, c.table.Modules[otherSourceIndex].Source.PrettyPath)
	source := &c.table.Modules[sourceIndex].Source
	c.log.AddRangeError(source, logger.ClassLink, record.Range,
		fmt.Sprintf("Detected cycle while resolving star exports: %s", strings.Join(path, " -> ")))
}

type importTracker struct {
	sourceIndex uint32
	importRef   ast.Ref
}

func (c *linkerContext) matchImportsWithExportsForModule(sourceIndex uint32) {
	repr, ok := c.table.Normal(sourceIndex)
	if !ok {
		return
	}

	// Sort imports for determinism. Otherwise our unit tests will randomly
	// fail sometimes when error messages are reordered.
	sortedImportRefs := make([]ast.Ref, 0, len(repr.NamedImports))
	for ref := range repr.NamedImports {
		sortedImportRefs = append(sortedImportRefs, ref)
	}
	sort.Slice(sortedImportRefs, func(i, j int) bool {
		return sortedImportRefs[i].InnerIndex < sortedImportRefs[j].InnerIndex
	})

	for _, importRef := range sortedImportRefs {
		c.cycleDetector = c.cycleDetector[:0]
		c.matchImportWithExport(importTracker{sourceIndex: sourceIndex, importRef: importRef})
	}
}

// Follows one import through any number of re-exports until it reaches a
// declaration, a module whose exports are only known at run time, or nothing
func (c *linkerContext) matchImportWithExport(tracker importTracker) {
	importRef := tracker.importRef
	importSource := &c.table.Modules[tracker.sourceIndex].Source
	importRepr, _ := c.table.Normal(tracker.sourceIndex)
	importNamed := importRepr.NamedImports[importRef]

	for {
		// Make sure we avoid infinite loops trying to resolve cycles:
		//
		//   // foo.js
		//   export {a as b} from './foo.js'
		//   export {b as c} from './foo.js'
		//   export {c as a} from './foo.js'
		//
		for _, previousTracker := range c.cycleDetector {
			if tracker == previousTracker {
				c.log.AddError(importSource, logger.ClassLink, importNamed.AliasLoc,
					fmt.Sprintf("Detected cycle while resolving import %q", importNamed.Alias))
				return
			}
		}
		c.cycleDetector = append(c.cycleDetector, tracker)

		repr, _ := c.table.Normal(tracker.sourceIndex)
		namedImport := repr.NamedImports[tracker.importRef]
		record := &repr.ImportRecords[namedImport.ImportRecordIndex]
		if !record.SourceIndex.IsValid() {
			return
		}
		otherSourceIndex := record.SourceIndex.GetIndex()
		otherRepr, isNormal := c.table.Normal(otherSourceIndex)

		// If it's a CommonJS or external file, rewrite the import to a property
		// access on the namespace binding of the import statement
		if !isNormal || otherRepr.ExportsKind == graph.ExportsCommonJS {
			if namedImport.Alias == "*" {
				c.merge(importRef, record.NamespaceRef)
				return
			}
			c.symbols.Get(tracker.importRef).NamespaceAlias = &ast.NamespaceAlias{
				NamespaceRef: record.NamespaceRef,
				Alias:        namedImport.Alias,
			}
			c.merge(importRef, tracker.importRef)
			return
		}

		if namedImport.Alias == "*" {
			c.merge(importRef, otherRepr.ExportsRef)
			return
		}

		data, ok := otherRepr.Meta.ResolvedExports[namedImport.Alias]
		if ok && !data.IsAmbiguous {
			// Check to see if this is a re-export of another import
			if dataRepr, _ := c.table.Normal(data.SourceIndex); dataRepr != nil {
				if _, isImport := dataRepr.NamedImports[data.Ref]; isImport {
					tracker = importTracker{sourceIndex: data.SourceIndex, importRef: data.Ref}
					continue
				}
			}
			c.merge(importRef, data.Ref)
			return
		}

		// The name may still be provided at run time by a dynamic export star
		if otherRepr.Meta.HasDynamicExports() {
			c.symbols.Get(tracker.importRef).NamespaceAlias = &ast.NamespaceAlias{
				NamespaceRef: otherRepr.ExportsRef,
				Alias:        namedImport.Alias,
			}
			c.merge(importRef, tracker.importRef)
			return
		}

		otherSource := &c.table.Modules[otherSourceIndex].Source
		text := fmt.Sprintf("No matching export in %q for import %q", otherSource.PrettyPath, namedImport.Alias)
		if ok && data.IsAmbiguous {
			text = fmt.Sprintf("Ambiguous import %q has multiple matching exports in %q", namedImport.Alias, otherSource.PrettyPath)
		}
		if c.options.StrictMissingExports {
			c.log.AddError(importSource, logger.ClassLink, importNamed.AliasLoc, text)
		} else {
			c.log.AddWarning(importSource, logger.ClassLink, importNamed.AliasLoc, text)
		}
		c.symbols.Get(importRef).ImportIsMissing = true
		c.symbols.Get(tracker.importRef).ImportIsMissing = true
		return
	}
}

func (c *linkerContext) merge(old ast.Ref, new ast.Ref) {
	if _, err := c.symbols.Merge(old, new); err != nil {
		c.log.AddMsg(logger.Msg{Kind: logger.Error, Class: logger.ClassInfrastructure, Text: err.Error()})
	}
}

// The runtime helper symbols are its named exports
func (c *linkerContext) runtimeHelperRef(name string) ast.Ref {
	repr, ok := c.table.Normal(graph.RuntimeSourceIndex)
	if !ok {
		return ast.InvalidRef
	}
	if export, ok := repr.NamedExports[name]; ok {
		return export.Ref
	}
	return ast.InvalidRef
}

func (c *linkerContext) outputPathForEntryPoint(entryPoint uint32) string {
	if c.options.AbsOutputFile != "" && len(c.table.EntryPoints) == 1 {
		return c.options.AbsOutputFile
	}
	keyPath := c.table.Modules[entryPoint].Source.KeyPath.Text
	base := c.fs.Base(keyPath)
	base = base[:len(base)-len(c.fs.Ext(base))]
	dir := c.options.AbsOutputDir
	if dir == "" {
		dir = c.fs.Dir(keyPath)
	}
	return c.fs.Join(dir, base+".js")
}

func (c *linkerContext) computeChunks() []Chunk {
	chunks := make([]Chunk, 0, len(c.table.EntryPoints))
	outputPaths := make(map[string]uint32)

	for entryBit, entryPoint := range c.table.EntryPoints {
		chunk := Chunk{
			EntryPoint: entryPoint,
			EntryBit:   uint(entryBit),
			AbsPath:    c.outputPathForEntryPoint(entryPoint),
		}

		if other, ok := outputPaths[chunk.AbsPath]; ok {
			c.log.AddError(nil, logger.ClassLink, logger.Loc{}, fmt.Sprintf(
				"Two output files share the same path %q (from %q and %q)",
				fs.PrettyPath(c.fs, chunk.AbsPath),
				c.table.Modules[other].Source.PrettyPath,
				c.table.Modules[entryPoint].Source.PrettyPath))
		}
		outputPaths[chunk.AbsPath] = entryPoint

		if repr, ok := c.table.Normal(graph.RuntimeSourceIndex); ok && repr.Meta.IsIncluded {
			chunk.Modules = append(chunk.Modules, graph.RuntimeSourceIndex)
		}

		// JavaScript modules are traversed in depth-first postorder. This is the
		// order that JavaScript modules were evaluated in before the top-level
		// await feature was introduced.
		visited := make(map[uint32]bool)
		var visit func(uint32)
		visit = func(sourceIndex uint32) {
			if visited[sourceIndex] || sourceIndex == graph.RuntimeSourceIndex {
				return
			}
			visited[sourceIndex] = true
			repr, ok := c.table.Normal(sourceIndex)
			if !ok {
				return
			}

			// A module that is not included itself, such as one that only
			// re-exports, can still lead to modules that are
			for _, record := range repr.ImportRecords {
				if record.SourceIndex.IsValid() {
					visit(record.SourceIndex.GetIndex())
				}
			}
			if repr.Meta.IsIncluded {
				repr.Meta.EntryBits.SetBit(chunk.EntryBit)
				chunk.Modules = append(chunk.Modules, sourceIndex)
			}
		}
		visit(entryPoint)

		chunks = append(chunks, chunk)
	}
	return chunks
}

func runtimeHelperName(helper graph.RuntimeHelpers) string {
	switch helper {
	case graph.HelperCommonJS:
		return runtime.CommonJS
	case graph.HelperToESM:
		return runtime.ToESM
	case graph.HelperToCommonJS:
		return runtime.ToCommonJS
	case graph.HelperExport:
		return runtime.Export
	case graph.HelperReExport:
		return runtime.ReExport
	case graph.HelperImport:
		return runtime.Import
	}
	panic("Internal error")
}
