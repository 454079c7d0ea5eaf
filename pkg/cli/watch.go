package cli

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/hoistjs/hoist/internal/watcher"
	"github.com/hoistjs/hoist/pkg/api"
)

type watchConfig struct {
	absWorkingDir string
	entryPoints   []string
	ignore        []string

	// Changes become hot patches instead of full rebuilds
	hot bool
}

// Blocks until the context is canceled. A failed rebuild is reported and the
// watcher keeps going, since the next save may fix it.
func watchAndRebuild(ctx context.Context, status *log.Logger, b *api.Bundler, config watchConfig) error {
	var w *watcher.Watcher
	w, err := watcher.New(watcher.Config{
		Ignore: config.ignore,
		Logger: status,
		OnChange: func(ctx context.Context, changed []string) error {
			status.Info("rebuilding", "changed", len(changed))
			if err := rebuild(ctx, status, b, config, changed); err != nil && !errors.Is(err, errAlreadyReported) {
				status.Error("rebuild failed", "err", err)
			}

			// The rebuild may have added or removed imports
			return w.SetFiles(filesToWatch(b, config))
		},
	})
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.SetFiles(filesToWatch(b, config)); err != nil {
		return err
	}
	status.Info("watching for changes")
	return w.Run(ctx)
}

func rebuild(ctx context.Context, status *log.Logger, b *api.Bundler, config watchConfig, changed []string) error {
	if !config.hot {
		return writeBuild(ctx, status, b, config.absWorkingDir)
	}

	result, err := b.HMRRebuild(ctx, changed)
	if errors.Is(err, api.ErrNoPreviousBuild) {
		// Nothing to patch until a full build succeeds
		return writeBuild(ctx, status, b, config.absWorkingDir)
	}
	if err != nil {
		if len(result.Errors) > 0 {
			return errAlreadyReported
		}
		return err
	}
	if result.Patch == nil {
		status.Info("no modules changed")
		return nil
	}
	status.Info("wrote patch",
		"file", relativePath(config.absWorkingDir, result.Patch.Path),
		"size", humanize.Bytes(uint64(len(result.Patch.Contents))),
		"modules", len(result.UpdatedModules))
	return nil
}

// The files of the last successful build, or the entry points if no build
// has succeeded yet
func filesToWatch(b *api.Bundler, config watchConfig) []string {
	if files := b.WatchFiles(); len(files) > 0 {
		return files
	}
	files := make([]string, 0, len(config.entryPoints))
	for _, entryPoint := range config.entryPoints {
		if !filepath.IsAbs(entryPoint) {
			entryPoint = filepath.Join(config.absWorkingDir, entryPoint)
		}
		files = append(files, entryPoint)
	}
	return files
}
