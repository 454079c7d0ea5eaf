package cli

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/hoistjs/hoist/internal/cli_helpers"
	"github.com/hoistjs/hoist/pkg/api"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Every flag here is also a key in the config file and an environment
// variable, so values are read back through viper instead of bound to
// variables
func addBuildFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("outfile", "", "The output file (for one entry point)")
	flags.String("outdir", "", "The output directory (for multiple entry points)")
	flags.String("format", "esm", "Output format (esm, iife, cjs, app)")
	flags.String("global-name", "", "The name of the global for the iife format")
	flags.StringSlice("external", nil, "Leave imports matching this pattern to the host (e.g. react or @scope/*)")
	flags.String("sourcemap", "none", "Emit a source map (none, linked, inline, external)")
	flags.Lookup("sourcemap").NoOptDefVal = "linked"
	flags.StringSlice("resolve-extensions", nil, "Implicit file extensions in resolution order (default .js,.mjs,.cjs,.json)")
	flags.StringSlice("main-fields", nil, "package.json fields to try for a package's entry point (default module,main)")
	flags.Bool("tree-shaking", true, "Remove unused statements")
	flags.String("module-side-effects", "", "Assume modules have side effects (true) or not (false) unless their package says otherwise")
	flags.Bool("strict-missing-exports", false, "Make imports of missing exports an error instead of a warning")
	flags.String("log-level", "info", "Log level (debug, info, warning, error, silent)")
	flags.String("color", "auto", "Use color escapes in terminal output (auto, true, false)")
	flags.Int("error-limit", 10, "Maximum error count or 0 to disable")
	flags.Bool("timing", false, "Print how long each build phase took (needs --log-level=debug)")
	flags.Bool("watch", false, "Rebuild when a file of the build changes")
	flags.StringSlice("watch-ignore", nil, "Never rebuild for changes to paths matching this pattern")
}

func buildOptionsFromConfig(v *viper.Viper, absWorkingDir string, args []string) (api.BuildOptions, error) {
	options := api.BuildOptions{
		AbsWorkingDir:        absWorkingDir,
		Outfile:              v.GetString("outfile"),
		Outdir:               v.GetString("outdir"),
		GlobalName:           v.GetString("global-name"),
		Externals:            v.GetStringSlice("external"),
		ResolveExtensions:    v.GetStringSlice("resolve-extensions"),
		MainFields:           v.GetStringSlice("main-fields"),
		NoTreeShaking:        !v.GetBool("tree-shaking"),
		StrictMissingExports: v.GetBool("strict-missing-exports"),
		ErrorLimit:           v.GetInt("error-limit"),
		EntryPoints:          args,
	}

	// Entry points on the command line replace the ones in the config file
	if len(options.EntryPoints) == 0 {
		options.EntryPoints = v.GetStringSlice("entry-points")
	}
	if len(options.EntryPoints) == 0 {
		return api.BuildOptions{}, cli_helpers.MakeErrorWithNote(
			"Missing entry points",
			"Pass them as arguments or list them under \"entry-points\" in the config file.")
	}

	var err *cli_helpers.ErrorWithNote
	if options.Format, err = cli_helpers.ParseFormat(v.GetString("format")); err != nil {
		return api.BuildOptions{}, err
	}
	if options.Sourcemap, err = cli_helpers.ParseSourceMap(v.GetString("sourcemap")); err != nil {
		return api.BuildOptions{}, err
	}
	if options.ModuleSideEffects, err = cli_helpers.ParseModuleSideEffects(v.GetString("module-side-effects")); err != nil {
		return api.BuildOptions{}, err
	}
	if options.LogLevel, err = cli_helpers.ParseLogLevel(v.GetString("log-level")); err != nil {
		return api.BuildOptions{}, err
	}
	if options.Color, err = cli_helpers.ParseColor(v.GetString("color")); err != nil {
		return api.BuildOptions{}, err
	}
	return options, nil
}

// Progress lines go to stderr next to the diagnostics and follow the same
// log level
func newStatusLogger(cmd *cobra.Command, level api.LogLevel) *log.Logger {
	status := log.NewWithOptions(cmd.ErrOrStderr(), log.Options{Prefix: "hoist"})
	switch level {
	case api.LogLevelDebug:
		status.SetLevel(log.DebugLevel)
	case api.LogLevelInfo:
		status.SetLevel(log.InfoLevel)
	case api.LogLevelWarning:
		status.SetLevel(log.WarnLevel)
	case api.LogLevelError:
		status.SetLevel(log.ErrorLevel)
	default:
		status.SetOutput(io.Discard)
	}
	return status
}
