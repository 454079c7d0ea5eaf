package bundler

import (
	"errors"

	"github.com/hoistjs/hoist/internal/config"
	"github.com/hoistjs/hoist/internal/graph"
)

var errUnsetModuleSideEffects = errors.New(`tree shaking is enabled but "moduleSideEffects" was not normalized`)

// A plugin's answer wins over "package.json", which wins over what the
// scanner found in the statements
func moduleSideEffects(options *config.Options, resolved *resolvedImport, analyzed bool, sourceIndex uint32) graph.SideEffects {
	// The runtime is always tree shaken so only the helpers in use survive
	if sourceIndex == graph.RuntimeSourceIndex {
		return graph.SideEffects{Kind: graph.SideEffectsAnalyzed, Value: analyzed}
	}
	if !options.TreeShaking {
		return graph.SideEffects{Kind: graph.SideEffectsNoTreeshake}
	}
	if resolved != nil {
		if resolved.pluginSideEffects != nil {
			return graph.SideEffects{Kind: graph.SideEffectsUserDefined, Value: *resolved.pluginSideEffects}
		}
		if data := resolved.sideEffectsData; data != nil {
			return graph.SideEffects{Kind: graph.SideEffectsUserDefined, Value: data.HasSideEffects}
		}
	}
	if options.ModuleSideEffects == config.ModuleSideEffectsFalse {
		return graph.SideEffects{Kind: graph.SideEffectsUserDefined, Value: false}
	}
	return graph.SideEffects{Kind: graph.SideEffectsAnalyzed, Value: analyzed}
}

// Nothing can be analyzed for an external module, so it depends only on the
// hook value and the options. Option normalization turns an unset
// "moduleSideEffects" into true whenever tree shaking is enabled, so that
// combination is reported instead of guessed.
func externalSideEffects(options *config.Options, hookValue *bool) (graph.SideEffects, error) {
	if hookValue != nil {
		if options.TreeShaking {
			return graph.SideEffects{Kind: graph.SideEffectsUserDefined, Value: *hookValue}, nil
		}
		return graph.SideEffects{Kind: graph.SideEffectsNoTreeshake}, nil
	}
	if !options.TreeShaking {
		return graph.SideEffects{Kind: graph.SideEffectsNoTreeshake}, nil
	}
	switch options.ModuleSideEffects {
	case config.ModuleSideEffectsFalse:
		return graph.SideEffects{Kind: graph.SideEffectsUserDefined, Value: false}, nil
	case config.ModuleSideEffectsTrue:
		return graph.SideEffects{Kind: graph.SideEffectsNoTreeshake}, nil
	}
	return graph.SideEffects{Kind: graph.SideEffectsNoTreeshake}, errUnsetModuleSideEffects
}
