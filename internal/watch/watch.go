// Package watch reloads the dataset when its source file changes on disk.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/user/voterchart/internal/debounce"
	"github.com/user/voterchart/internal/models"
)

// LoadFunc reads the dataset again.
type LoadFunc func(ctx context.Context) (*models.Dataset, error)

// ApplyFunc installs a freshly loaded dataset.
type ApplyFunc func(ctx context.Context, ds *models.Dataset) error

// Watcher reloads a dataset file after bursts of writes settle.
type Watcher struct {
	Path     string
	Load     LoadFunc
	Apply    ApplyFunc
	Debounce *debounce.Debouncer
	Logger   *slog.Logger
}

// New returns a Watcher for path using the default debounce window.
func New(path string, load LoadFunc, apply ApplyFunc) *Watcher {
	return &Watcher{
		Path:     path,
		Load:     load,
		Apply:    apply,
		Debounce: debounce.New(debounce.DefaultDelay),
		Logger:   slog.Default(),
	}
}

// Run watches until ctx is cancelled. The parent directory is watched so
// that editors replacing the file by rename are still noticed.
func (w *Watcher) Run(ctx context.Context) error {
	abs, err := filepath.Abs(w.Path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", w.Path, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	w.Logger.Info("watching dataset", "path", abs)

	defer w.Debounce.Cancel()
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs || !relevant(event) {
				continue
			}
			w.Logger.Debug("dataset changed", "path", event.Name, "op", event.Op.String())
			w.Debounce.Trigger(func() { w.reload(ctx) })

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.Logger.Warn("file watcher error", "err", err)
		}
	}
}

func relevant(event fsnotify.Event) bool {
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

// reload keeps the previous dataset when loading or applying fails.
func (w *Watcher) reload(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	ds, err := w.Load(ctx)
	if err != nil {
		w.Logger.Error("failed to reload dataset, keeping previous data", "path", w.Path, "err", err)
		return
	}
	if err := w.Apply(ctx, ds); err != nil {
		w.Logger.Error("failed to apply reloaded dataset", "path", w.Path, "err", err)
		return
	}
	w.Logger.Info("dataset reloaded", "path", w.Path, "rows", len(ds.Rows))
}
