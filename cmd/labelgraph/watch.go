package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jward/labelgraph"
)

// watchDebounce is how long the watcher waits for a burst of events to
// settle before reindexing.
const watchDebounce = 200 * time.Millisecond

// watch reindexes files under root as they change until ctx is canceled.
// Each batch reports the files whose labels may have changed meaning.
func watch(ctx context.Context, engine *labelgraph.Engine, root string, out io.Writer) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	if err := addWatchDirs(w, root, nil); err != nil {
		return err
	}
	fmt.Fprintf(out, "Watching %s\n", root)

	pending := make(map[string]bool)
	timer := time.NewTimer(watchDebounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(out, "Watch error: %v\n", err)
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					// Files moved or written in before the watch was added
					// produce no events of their own.
					if err := addWatchDirs(w, ev.Name, pending); err != nil {
						fmt.Fprintf(out, "Watch error: %v\n", err)
					}
					timer.Reset(watchDebounce)
					continue
				}
			}
			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
				continue
			}
			pending[ev.Name] = true
			timer.Reset(watchDebounce)
		case <-timer.C:
			if err := reindexPending(ctx, engine, pending, out); err != nil {
				fmt.Fprintf(out, "Reindex error: %v\n", err)
			}
			pending = make(map[string]bool)
		}
	}
}

// reindexPending indexes the changed paths that still exist and forgets the
// others.
func reindexPending(ctx context.Context, engine *labelgraph.Engine, pending map[string]bool, out io.Writer) error {
	var changed, removed []string
	for p := range pending {
		if _, err := os.Stat(p); err == nil {
			changed = append(changed, p)
		} else {
			removed = append(removed, p)
		}
	}
	sort.Strings(changed)
	sort.Strings(removed)

	if len(removed) > 0 {
		if err := engine.RemoveFiles(removed); err != nil {
			return err
		}
	}
	if len(changed) > 0 {
		if err := engine.IndexFiles(ctx, changed); err != nil {
			return err
		}
	}
	affected, err := engine.Affected()
	if err != nil {
		return err
	}
	if len(affected) > 0 {
		fmt.Fprintf(out, "Reindexed: %s\n", strings.Join(affected, ", "))
	}
	return nil
}

// addWatchDirs watches root and every directory below it, skipping hidden
// directories. When found is non-nil the files met on the way are added to it.
func addWatchDirs(w *fsnotify.Watcher, root string, found map[string]bool) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			if found != nil {
				found[path] = true
			}
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}
