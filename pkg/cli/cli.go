package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/hoistjs/hoist/internal/api_helpers"
	"github.com/hoistjs/hoist/internal/exitcode"
	"github.com/hoistjs/hoist/internal/logger"
	"github.com/hoistjs/hoist/pkg/api"
	"github.com/spf13/cobra"
)

// Set with -ldflags when building a release
var Version = "dev"

const longHelp = `Bundles JavaScript modules into one scope per entry point.

Options can also come from a "hoist.yaml", "hoist.toml" or "hoist.json" file
in the working directory, using the flag names as keys, and from environment
variables such as HOIST_OUTDIR. Flags win over the environment, which wins
over the config file.

Examples:
  # Produces dist/app.js and dist/app.js.map
  hoist src/app.js --outdir=dist --sourcemap

  # A bundle that assigns the exports of lib.js to a global variable
  hoist lib.js --outfile=lib.min.js --format=iife --global-name=lib

  # Hot patches are written next to the bundle whenever a file changes
  hoist src/app.js --outdir=dist --format=app --watch`

// Diagnostics of a failed build have been printed already
var errAlreadyReported = errors.New("build failed")

// Run runs the command line with the given arguments, not including the
// program name, and returns the process exit code
func Run(osArgs []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := NewCommand()
	cmd.SetArgs(osArgs)
	err := cmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, errAlreadyReported) {
		logger.PrintErrorToStderr(err.Error())
	}
	return exitcode.Get(err)
}

func NewCommand() *cobra.Command {
	var configFile string
	var cwd string

	cmd := &cobra.Command{
		Use:           "hoist [flags] [entry points]",
		Short:         "A scope-hoisting JavaScript bundler",
		Long:          longHelp,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, args, configFile, cwd)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "Read options from this file instead of looking for hoist.{yaml,toml,json}")
	flags.StringVar(&cwd, "cwd", "", "The directory that relative paths are relative to (default is the current directory)")
	addBuildFlags(cmd)

	cmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return exitcode.Set(err, exitcode.Usage)
	})
	return cmd
}

func workingDir(cwd string) (string, error) {
	if cwd == "" {
		return os.Getwd()
	}
	return filepath.Abs(cwd)
}

func runBuild(cmd *cobra.Command, args []string, configFile string, cwd string) error {
	absWorkingDir, err := workingDir(cwd)
	if err != nil {
		return exitcode.Set(fmt.Errorf("resolve working directory: %w", err), exitcode.Usage)
	}
	v, err := loadConfig(cmd, absWorkingDir, configFile)
	if err != nil {
		return exitcode.Set(err, exitcode.Usage)
	}
	options, err := buildOptionsFromConfig(v, absWorkingDir, args)
	if err != nil {
		return exitcode.Set(err, exitcode.Usage)
	}

	api_helpers.UseTimer = v.GetBool("timing")
	status := newStatusLogger(cmd, options.LogLevel)
	if path := v.ConfigFileUsed(); path != "" {
		status.Debug("loaded config file", "path", path)
	}

	ctx := cmd.Context()
	b := api.NewBundler(options)
	defer func() {
		// Plugins get to clean up even when the build was interrupted
		if err := b.Close(context.WithoutCancel(ctx)); err != nil {
			status.Error("close bundler", "err", err)
		}
	}()

	err = writeBuild(ctx, status, b, absWorkingDir)
	if !v.GetBool("watch") || errors.Is(err, api.ErrInvalidOptions) {
		return err
	}
	return watchAndRebuild(ctx, status, b, watchConfig{
		absWorkingDir: absWorkingDir,
		entryPoints:   options.EntryPoints,
		ignore:        v.GetStringSlice("watch-ignore"),
		hot:           options.Format == api.FormatApp,
	})
}

func writeBuild(ctx context.Context, status *log.Logger, b *api.Bundler, absWorkingDir string) error {
	start := time.Now()
	result, err := b.Write(ctx)
	if err != nil {
		if len(result.Errors) > 0 {
			return exitcode.Set(fmt.Errorf("%w: %w", errAlreadyReported, err), exitcode.BuildFailed)
		}
		return err
	}
	for _, file := range result.OutputFiles {
		status.Info("wrote", "file", relativePath(absWorkingDir, file.Path), "size", humanize.Bytes(uint64(len(file.Contents))))
	}
	status.Info("build finished", "files", len(result.OutputFiles), "time", time.Since(start).Round(time.Millisecond))
	return nil
}

func relativePath(absWorkingDir string, path string) string {
	if rel, err := filepath.Rel(absWorkingDir, path); err == nil {
		return rel
	}
	return path
}
