// Package monitor implements the cross-run reader: a watcher that
// follows another process's store root and keeps a read-only in-memory
// view current. The writer's atomic replace guarantees each observed
// file is either the previous version or the new one in full.
package monitor

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/playbook"
	"github.com/starford/ansuz/internal/storage"
)

// EventCallback is called after a watcher-driven reload.
// kind is one of "updated", "removed".
type EventCallback func(kind string, file string)

// Watch starts an fsnotify watcher on the store root and mirrors file
// change events into the store until ctx is cancelled. It calls cb (if
// non-nil) after each successful reload. Checksums suppress redundant
// reloads; rename events trigger a debounced reconciliation pass.
func Watch(ctx context.Context, store *playbook.Store, provider storage.Provider, root string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	seen := make(map[string]string) // rel path → checksum
	if metas, listErr := provider.List(""); listErr == nil {
		for _, m := range metas {
			seen[m.Path] = m.Checksum
		}
	}

	logger.Info("monitor: started", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("monitor: stopped")
			return nil

		case <-reconcileCh:
			reconcile(store, provider, seen, logger, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			// New directories join the watch list.
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("monitor: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					}
					scheduleReconcile()
					continue
				}
			}

			if !strings.HasSuffix(absPath, ".md") {
				continue
			}
			rel, relErr := filepath.Rel(root, absPath)
			if relErr != nil {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				data, readErr := provider.Read(rel)
				if readErr != nil {
					continue
				}
				cs := checksumOf(data)
				if seen[rel] == cs {
					continue
				}
				if err := store.ReloadFile(rel); err != nil {
					logger.Warn("monitor: reload failed", slog.String("path", rel), slog.String("error", err.Error()))
					continue
				}
				seen[rel] = cs
				logger.Debug("monitor: reloaded", slog.String("path", rel))
				if cb != nil {
					cb("updated", strings.TrimSuffix(rel, ".md"))
				}

			case ev.Op&fsnotify.Remove != 0:
				name := strings.TrimSuffix(rel, ".md")
				store.DropFile(name)
				delete(seen, rel)
				logger.Debug("monitor: removed", slog.String("path", rel))
				if cb != nil {
					cb("removed", name)
				}

			case ev.Op&fsnotify.Rename != 0:
				scheduleReconcile()
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("monitor: watch error", slog.String("error", err.Error()))
		}
	}
}

// reconcile brings the store in line with disk after rename storms.
func reconcile(store *playbook.Store, provider storage.Provider, seen map[string]string, logger *slog.Logger, cb EventCallback) {
	metas, err := provider.List("")
	if err != nil {
		logger.Warn("monitor: reconcile list failed", slog.String("error", err.Error()))
		return
	}
	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}
		if seen[m.Path] == m.Checksum {
			continue
		}
		if err := store.ReloadFile(m.Path); err != nil {
			logger.Warn("monitor: reconcile reload failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		seen[m.Path] = m.Checksum
		if cb != nil {
			cb("updated", strings.TrimSuffix(m.Path, ".md"))
		}
	}
	for p := range seen {
		if _, ok := disk[p]; !ok {
			name := strings.TrimSuffix(p, ".md")
			store.DropFile(name)
			delete(seen, p)
			if cb != nil {
				cb("removed", name)
			}
		}
	}
}

func checksumOf(data []byte) string {
	return checksum.Sum(data)
}

func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(p)
		}
		return nil
	})
}
