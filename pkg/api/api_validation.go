package api

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hoistjs/hoist/internal/config"
	"github.com/hoistjs/hoist/internal/fs"
	"github.com/hoistjs/hoist/internal/helpers"
	"github.com/hoistjs/hoist/internal/logger"
)

func validateFormat(value Format) config.Format {
	switch value {
	case FormatESModule:
		return config.FormatESModule
	case FormatIIFE:
		return config.FormatIIFE
	case FormatCommonJS:
		return config.FormatCommonJS
	case FormatApp:
		return config.FormatApp
	default:
		panic("Invalid format")
	}
}

func validateSourceMap(value SourceMap) config.SourceMap {
	switch value {
	case SourceMapNone:
		return config.SourceMapNone
	case SourceMapLinked:
		return config.SourceMapLinkedWithComment
	case SourceMapInline:
		return config.SourceMapInline
	case SourceMapExternal:
		return config.SourceMapExternalWithoutComment
	default:
		panic("Invalid source map")
	}
}

func validateColor(value StderrColor) logger.StderrColor {
	switch value {
	case ColorIfTerminal:
		return logger.ColorIfTerminal
	case ColorNever:
		return logger.ColorNever
	case ColorAlways:
		return logger.ColorAlways
	default:
		panic("Invalid color")
	}
}

func validateLogLevel(value LogLevel) logger.LogLevel {
	switch value {
	case LogLevelDebug:
		return logger.LevelDebug
	case LogLevelInfo:
		return logger.LevelInfo
	case LogLevelWarning:
		return logger.LevelWarning
	case LogLevelError:
		return logger.LevelError
	case LogLevelSilent:
		return logger.LevelSilent
	default:
		panic("Invalid log level")
	}
}

func validateModuleSideEffects(value ModuleSideEffects, treeShaking bool) config.ModuleSideEffects {
	switch value {
	case ModuleSideEffectsTrue:
		return config.ModuleSideEffectsTrue
	case ModuleSideEffectsFalse:
		return config.ModuleSideEffectsFalse
	case ModuleSideEffectsDefault:
		if treeShaking {
			return config.ModuleSideEffectsTrue
		}
		return config.ModuleSideEffectsUnset
	default:
		panic("Invalid module side effects")
	}
}

func validateExternals(log logger.Log, patterns []string) []string {
	for _, pattern := range patterns {
		if pattern == "" || !doublestar.ValidatePattern(pattern) {
			log.AddError(nil, logger.ClassNone, logger.Loc{}, fmt.Sprintf("Invalid external pattern: %q", pattern))
		}
	}
	return patterns
}

func validateResolveExtensions(log logger.Log, order []string) []string {
	for _, ext := range order {
		if len(ext) < 2 || ext[0] != '.' {
			log.AddError(nil, logger.ClassNone, logger.Loc{}, fmt.Sprintf("Invalid file extension: %q", ext))
		}
	}
	return order
}

func validateGlobalName(log logger.Log, format Format, name string) string {
	if name == "" {
		return ""
	}
	if format != FormatIIFE {
		log.AddError(nil, logger.ClassNone, logger.Loc{}, "Cannot use \"globalName\" without the \"iife\" format")
		return ""
	}
	if !helpers.IsIdentifier(name) {
		log.AddError(nil, logger.ClassNone, logger.Loc{}, fmt.Sprintf("Invalid global name: %q", name))
		return ""
	}
	return name
}

// Relative paths are relative to the working directory, not the process
func validatePath(log logger.Log, fs fs.FS, absWorkingDir string, relPath string) string {
	if relPath == "" {
		return ""
	}
	if !fs.IsAbs(relPath) {
		relPath = fs.Join(absWorkingDir, relPath)
	}
	absPath, ok := fs.Abs(relPath)
	if !ok {
		log.AddError(nil, logger.ClassNone, logger.Loc{}, fmt.Sprintf("Invalid path: %s", relPath))
	}
	return absPath
}

func validateBuildOptions(log logger.Log, fs fs.FS, options BuildOptions) config.Options {
	absWorkingDir := fs.Cwd()
	if options.AbsWorkingDir != "" {
		if !fs.IsAbs(options.AbsWorkingDir) {
			log.AddError(nil, logger.ClassNone, logger.Loc{},
				fmt.Sprintf("The working directory %q is not an absolute path", options.AbsWorkingDir))
		} else {
			absWorkingDir = options.AbsWorkingDir
		}
	}

	treeShaking := !options.NoTreeShaking
	result := config.Options{
		AbsWorkingDir:        absWorkingDir,
		AbsOutputFile:        validatePath(log, fs, absWorkingDir, options.Outfile),
		AbsOutputDir:         validatePath(log, fs, absWorkingDir, options.Outdir),
		OutputFormat:         validateFormat(options.Format),
		GlobalName:           validateGlobalName(log, options.Format, options.GlobalName),
		ExternalModules:      validateExternals(log, options.Externals),
		ExtensionOrder:       validateResolveExtensions(log, options.ResolveExtensions),
		MainFields:           options.MainFields,
		TreeShaking:          treeShaking,
		ModuleSideEffects:    validateModuleSideEffects(options.ModuleSideEffects, treeShaking),
		StrictMissingExports: options.StrictMissingExports,
		SourceMap:            validateSourceMap(options.Sourcemap),
	}

	for _, entryPoint := range options.EntryPoints {
		result.EntryPoints = append(result.EntryPoints, validatePath(log, fs, absWorkingDir, entryPoint))
	}

	switch {
	case len(result.EntryPoints) == 0:
		log.AddError(nil, logger.ClassNone, logger.Loc{}, "Must provide at least one entry point")
	case result.AbsOutputFile != "" && result.AbsOutputDir != "":
		log.AddError(nil, logger.ClassNone, logger.Loc{}, "Cannot use both \"outfile\" and \"outdir\"")
	case result.AbsOutputFile != "" && len(result.EntryPoints) > 1:
		log.AddError(nil, logger.ClassNone, logger.Loc{}, "Must use \"outdir\" when there are multiple entry points")
	}
	return result
}

// A build writes next to its entry points otherwise, which would overwrite them
func hasOutputPath(options *config.Options) bool {
	return options.AbsOutputFile != "" || options.AbsOutputDir != ""
}
