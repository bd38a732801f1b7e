// Package watcher feeds changes made to the vault outside the service (an
// editor, git, a sync client) back into the in-memory graph and index.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/paravault/internal/noteservice"
	"github.com/starford/paravault/internal/para"
)

// reconcileDelay debounces the sync pass that follows renames.
const reconcileDelay = 200 * time.Millisecond

// Target is the part of the service the watcher drives.
type Target interface {
	Refresh(ctx context.Context, path string) error
	Forget(ctx context.Context, path string) error
	Sync(ctx context.Context) (*noteservice.SyncReport, error)
}

// EventCallback is called after a watcher-driven change.
// kind is one of "updated", "deleted", "synced".
type EventCallback func(kind string, path string)

// Watch starts an fsnotify watcher on the vault root and applies file change
// events to target until ctx is cancelled. It calls cb (if non-nil) after
// each change.
//
// New directories created at runtime are added to the watch list. Rename
// events forget the old path and schedule a debounced Sync that picks up the
// new one.
func Watch(ctx context.Context, target Target, paths *para.Resolver, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := paths.Root()
	if err := addDirsRecursive(w, root); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time
	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	notify := func(kind, rel string) {
		if cb != nil {
			cb(kind, rel)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			rep, err := target.Sync(ctx)
			if err != nil {
				logger.Warn("watcher: sync failed", slog.String("error", err.Error()))
				continue
			}
			logger.Debug("watcher: synced",
				slog.Int("refreshed", rep.Refreshed),
				slog.Int("forgotten", rep.Forgotten))
			notify("synced", "")

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					// Files may have landed before the directory was watched.
					scheduleReconcile()
					continue
				}
			}

			rel, relErr := paths.Rel(ev.Name)
			if relErr != nil || !para.IsDocument(rel) {
				continue
			}
			if _, _, err := paths.DocumentPath(rel); err != nil {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				if err := target.Refresh(ctx, rel); err != nil {
					logger.Warn("watcher: refresh failed", slog.String("path", rel), slog.String("error", err.Error()))
					continue
				}
				logger.Debug("watcher: refreshed", slog.String("path", rel))
				notify("updated", rel)

			case ev.Op&fsnotify.Remove != 0:
				if err := target.Forget(ctx, rel); err != nil {
					logger.Warn("watcher: forget failed", slog.String("path", rel), slog.String("error", err.Error()))
					continue
				}
				logger.Debug("watcher: forgotten", slog.String("path", rel))
				notify("deleted", rel)

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify reports Rename on the old path only; the new path
				// arrives as a Create if it stays under a watched directory.
				if err := target.Forget(ctx, rel); err != nil {
					logger.Warn("watcher: forget failed", slog.String("path", rel), slog.String("error", err.Error()))
				} else {
					notify("deleted", rel)
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the
// watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
