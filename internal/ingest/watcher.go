package ingest

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/munin/internal/drops"
)

// Queue receives raw drop events. Satisfied by *Pipeline.
type Queue interface {
	Enqueue(Event)
}

// Watch starts an fsnotify watcher on the drop root and feeds raw events
// into the queue until ctx is cancelled. It does no debouncing or
// filtering beyond the provider's accept rule: deciding when a file is
// stable is the pipeline's job.
//
// New directories created at runtime are added to the watch list, and
// accepted files already inside them are enqueued.
func Watch(ctx context.Context, provider drops.Provider, q Queue, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := provider.Root()
	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			// New directories: watch them and pick up files that were
			// moved in along with them.
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					enqueueDir(provider, q, absPath, logger)
					continue
				}
			}

			if !provider.Accepts(absPath) {
				continue
			}
			rel, relErr := filepath.Rel(root, absPath)
			if relErr != nil {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				q.Enqueue(Event{Path: rel, Op: OpWrite})
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// fsnotify fires Rename on the old path only; the new
				// path arrives as a separate Create event.
				q.Enqueue(Event{Path: rel, Op: OpRemove})
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// enqueueDir enqueues accepted files found in a newly created directory.
func enqueueDir(provider drops.Provider, q Queue, dirPath string, logger *slog.Logger) {
	root := provider.Root()
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !provider.Accepts(path) {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		logger.Debug("watcher: found file in new dir", slog.String("path", rel))
		q.Enqueue(Event{Path: rel, Op: OpWrite})
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
