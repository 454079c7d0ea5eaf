package resolver

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hoistjs/hoist/internal/config"
	"github.com/hoistjs/hoist/internal/fs"
	"github.com/hoistjs/hoist/internal/logger"
)

type packageJSON struct {
	source *logger.Source

	// Relative paths from fields such as "main" and "module"
	mainFields map[string]string

	// From the "type" field
	moduleType config.ModuleType

	// If this is non-nil, "sideEffects" was a boolean. Modules in this package
	// with "sideEffects: false" can be dropped when none of their imports are
	// used. This is a convention from Webpack:
	// https://webpack.js.org/guides/tree-shaking/.
	sideEffectsValue *bool

	// If "sideEffects" was an array, these are the absolute glob patterns of the
	// files that have side effects. Every other file in the package has none.
	sideEffectsPatterns []string
	hasSideEffectsArray bool
	sideEffectsRange    logger.Range
}

func (r resolverQuery) enclosingPackageJSON(dirPath string) *packageJSON {
	for {
		if pkg := r.packageJSONInDir(dirPath); pkg != nil {
			return pkg
		}
		parent := r.fs.Dir(dirPath)
		if parent == dirPath {
			return nil
		}
		dirPath = parent
	}
}

func (r resolverQuery) packageJSONInDir(dirPath string) *packageJSON {
	r.mutex.Lock()
	pkg, ok := r.packageJSONCache[dirPath]
	r.mutex.Unlock()
	if ok {
		return pkg
	}

	if entries, err := r.fs.ReadDirectory(dirPath); err == nil {
		if entry, ok := entries["package.json"]; ok && entry.Kind == fs.FileEntry {
			pkg = r.parsePackageJSON(dirPath)
		}
	}

	r.mutex.Lock()
	r.packageJSONCache[dirPath] = pkg
	r.mutex.Unlock()
	return pkg
}

func (r resolverQuery) parsePackageJSON(dirPath string) *packageJSON {
	packageJSONPath := r.fs.Join(dirPath, "package.json")
	contents, _, err := r.caches.FSCache.ReadFile(r.fs, packageJSONPath)
	if err != nil {
		r.log.AddMsg(logger.Msg{
			Kind:  logger.Error,
			Class: logger.ClassResolution,
			Text:  fmt.Sprintf("Cannot read file %q: %s", fs.PrettyPath(r.fs, packageJSONPath), err.Error()),
		})
		return nil
	}

	keyPath := logger.Path{Text: packageJSONPath, Namespace: "file"}
	jsonSource := &logger.Source{
		KeyPath:    keyPath,
		PrettyPath: fs.PrettyPath(r.fs, packageJSONPath),
		Contents:   contents,
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(contents), &fields); err != nil {
		loc := logger.Loc{}
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			loc.Start = int32(syntaxErr.Offset)
		}
		r.log.AddError(jsonSource, logger.ClassResolution, loc,
			fmt.Sprintf("Cannot parse %q: %s", jsonSource.PrettyPath, err.Error()))
		return nil
	}

	pkg := &packageJSON{source: jsonSource}

	// Read the "main" fields
	for _, field := range r.mainFields {
		var main string
		if raw, ok := fields[field]; ok && json.Unmarshal(raw, &main) == nil && main != "" {
			if pkg.mainFields == nil {
				pkg.mainFields = make(map[string]string)
			}
			pkg.mainFields[field] = main
		}
	}

	// Read the "type" field
	var moduleType string
	if raw, ok := fields["type"]; ok && json.Unmarshal(raw, &moduleType) == nil {
		switch moduleType {
		case "module":
			pkg.moduleType = config.ModuleTypeESM
		case "commonjs":
			pkg.moduleType = config.ModuleTypeCommonJS
		default:
			r.log.AddWarning(jsonSource, logger.ClassResolution, jsonSource.RangeOfQuoted(0, `"type"`).Loc,
				fmt.Sprintf("%q is not a valid value for the \"type\" field", moduleType))
		}
	}

	// Read the "sideEffects" property
	if raw, ok := fields["sideEffects"]; ok {
		pkg.sideEffectsRange = jsonSource.RangeOfQuoted(0, `"sideEffects"`)

		var value bool
		var patterns []string
		if json.Unmarshal(raw, &value) == nil {
			pkg.sideEffectsValue = &value
		} else if json.Unmarshal(raw, &patterns) == nil {
			// The "sideEffects: []" format means all files in this module but not in
			// the array can be considered to not have side effects.
			pkg.hasSideEffectsArray = true
			for _, pattern := range patterns {
				pkg.sideEffectsPatterns = append(pkg.sideEffectsPatterns, absSideEffectsPattern(r.fs, dirPath, pattern))
			}
		} else {
			r.log.AddWarning(jsonSource, logger.ClassResolution, pkg.sideEffectsRange.Loc,
				"The value for \"sideEffects\" must be a boolean or an array")
		}
	}

	return pkg
}

// Patterns without a slash match the file name in any directory, which is
// how Webpack interprets them
func absSideEffectsPattern(fsys fs.FS, dirPath string, pattern string) string {
	if !strings.ContainsRune(pattern, '/') {
		pattern = "**/" + pattern
	}
	return toSlash(fsys.Join(dirPath, pattern))
}

func toSlash(path string) string {
	return strings.ReplaceAll(path, "\\", "/")
}

func (pkg *packageJSON) sideEffectsForPath(path string) (*SideEffectsData, bool) {
	data := &SideEffectsData{
		Source:                   pkg.source,
		Range:                    pkg.sideEffectsRange,
		IsSideEffectsArrayInJSON: pkg.hasSideEffectsArray,
	}

	if pkg.sideEffectsValue != nil {
		data.HasSideEffects = *pkg.sideEffectsValue
		return data, true
	}

	if pkg.hasSideEffectsArray {
		slashPath := toSlash(path)
		for _, pattern := range pkg.sideEffectsPatterns {
			if ok, err := doublestar.Match(pattern, slashPath); err == nil && ok {
				data.HasSideEffects = true
				break
			}
		}
		return data, true
	}

	return nil, false
}
