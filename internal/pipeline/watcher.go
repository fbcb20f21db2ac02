package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits after the last artifact write
// before starting a run.
const DefaultDebounce = 2 * time.Second

// WatchOptions configures Watch.
type WatchOptions struct {
	Options

	// Debounce overrides DefaultDebounce.
	Debounce time.Duration

	// RunOnStart imports the current artifact before waiting for changes.
	RunOnStart bool

	// OnRun receives the outcome of every run.
	OnRun func(*Report, error)
}

// Watch re-runs the import whenever the analyzer rewrites the project's
// artifact. Writes are batched: a run starts once no write has been seen for
// the debounce interval. Runs never overlap. Watch blocks until ctx is
// cancelled.
func Watch(ctx context.Context, opts WatchOptions) error {
	if opts.Settings == nil {
		return errors.New("watching: no settings")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	artifact := filepath.Clean(opts.Settings.ArtifactPath())
	dir := filepath.Dir(artifact)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating result dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	run := func() {
		report, err := Run(ctx, opts.Options)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("import failed", slog.Any("error", err))
		}
		if opts.OnRun != nil {
			opts.OnRun(report, err)
		}
	}

	if opts.RunOnStart {
		if _, err := os.Stat(artifact); err == nil {
			run()
		}
	}

	// Batch artifact writes; the timer starts stopped.
	batchTimer := time.NewTimer(debounce)
	batchTimer.Stop()
	pending := false

	logger.Info("watching artifact", slog.String("artifact", artifact))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != artifact {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			pending = true
			batchTimer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", slog.Any("error", err))

		case <-batchTimer.C:
			if pending {
				pending = false
				run()
			}
		}
	}
}
