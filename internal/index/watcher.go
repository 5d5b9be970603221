package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/casetree/internal/storage"
)

// Watcher event kinds passed to EventCallback.
const (
	EventImported = "imported"
	EventRemoved  = "removed"
)

// EventCallback is called after a watcher-driven store change with the
// affected case id.
type EventCallback func(kind string, caseID string)

const reconcileDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the case folder and re-imports
// manifests as they change until ctx is cancelled. It calls cb (if non-nil)
// after each successful store mutation.
//
// New directories created at runtime are added to the watch list. Remove
// and rename events delete the case immediately and schedule a debounced
// reconciliation pass that picks up the manifest under its new name.
func Watch(ctx context.Context, db *DB, store storage.Provider, root string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

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

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			if err := reconcile(db, store, logger, cb); err != nil {
				logger.Warn("reconcile: failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					}
					// Manifests may have landed before the watch was added.
					scheduleReconcile()
					continue
				}
			}

			if !storage.IsManifest(absPath) || strings.HasPrefix(filepath.Base(absPath), ".") {
				continue
			}
			rel, relErr := filepath.Rel(root, absPath)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				caseID, impErr := ImportManifest(db, store, rel)
				if impErr != nil {
					logger.Warn("watcher: import failed", slog.String("manifest", rel), slog.String("error", impErr.Error()))
					continue
				}
				logger.Debug("watcher: imported", slog.String("manifest", rel), slog.String("case", caseID))
				if cb != nil {
					cb(EventImported, caseID)
				}

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// fsnotify reports a rename on the old path only; the new
				// name arrives as a Create or is caught by reconciliation.
				if c, lookupErr := db.CaseByManifest(rel); lookupErr == nil {
					if delErr := db.DeleteCase(c.ID); delErr != nil {
						logger.Warn("watcher: delete failed", slog.String("case", c.ID), slog.String("error", delErr.Error()))
					} else {
						logger.Debug("watcher: removed", slog.String("case", c.ID), slog.String("manifest", rel))
						if cb != nil {
							cb(EventRemoved, c.ID)
						}
					}
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
