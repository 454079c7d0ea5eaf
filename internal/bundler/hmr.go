package bundler

import (
	"context"
	"sort"

	"github.com/hoistjs/hoist/internal/graph"
)

type HMRBundle struct {
	Bundle

	// Modules that were asked to be rescanned, by source index. Paths that
	// were never part of the graph are ignored.
	ChangedModules []uint32

	// Modules whose contents differ from the previous build, plus modules the
	// changed ones newly import. Only these are finalized into the patch.
	DiffModules []uint32
}

// ScanHMR rescans the changed files of a previous build. The previous table
// and symbols are never modified: the rescan happens on clones, and changed
// modules keep their source index so that references from unchanged modules
// stay valid.
func ScanHMR(ctx context.Context, args Args, prev *Bundle, changedPaths []string) (*HMRBundle, error) {
	args.Timer.Begin("HMR scan phase")
	defer args.Timer.End("HMR scan phase")

	var changed []uint32
	seen := make(map[uint32]bool)
	for _, path := range changedPaths {
		sourceIndex, ok := prev.Table.Visited[path]
		if !ok || seen[sourceIndex] {
			continue
		}
		if _, ok := prev.Table.Modules[sourceIndex].Normal(); !ok {
			continue
		}
		seen[sourceIndex] = true
		changed = append(changed, sourceIndex)
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i] < changed[j] })

	if len(changed) == 0 {
		return &HMRBundle{Bundle: *prev}, nil
	}

	l := newLoader(ctx, &args, prev.Table.Clone(), prev.Symbols.Clone())
	l.keptSideEffects = make(map[uint32]graph.SideEffects)
	previousCount := uint32(len(prev.Table.Modules))
	previousHashes := make(map[uint32]uint64, len(changed))

	for _, sourceIndex := range changed {
		module := &prev.Table.Modules[sourceIndex]
		repr, _ := module.Normal()
		previousHashes[sourceIndex] = repr.ContentHash
		l.keptSideEffects[sourceIndex] = module.SideEffects

		if module.Source.KeyPath.Namespace == "file" {
			args.Caches.FSCache.Invalidate(module.Source.KeyPath.Text)
		}
		l.spawn(parseArgs{
			keyPath:     module.Source.KeyPath,
			prettyPath:  module.Source.PrettyPath,
			sourceIndex: sourceIndex,
			moduleType:  module.ModuleType,
		})
	}
	l.loop()

	if err := l.finish(); err != nil {
		return nil, err
	}

	result := &HMRBundle{
		Bundle:         Bundle{Table: l.table, Symbols: l.symbols},
		ChangedModules: changed,
	}
	for _, sourceIndex := range changed {
		repr, _ := l.table.Modules[sourceIndex].Normal()
		if repr.ContentHash != previousHashes[sourceIndex] {
			result.DiffModules = append(result.DiffModules, sourceIndex)
		}
	}
	for sourceIndex := previousCount; sourceIndex < uint32(len(l.table.Modules)); sourceIndex++ {
		if _, ok := l.table.Modules[sourceIndex].Normal(); ok {
			result.DiffModules = append(result.DiffModules, sourceIndex)
		}
	}
	return result, nil
}
