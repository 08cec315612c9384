package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/phobologic/rubysense/internal/discover"
	"github.com/phobologic/rubysense/internal/lang"
)

// Watcher applies file system changes under the workspace root to the cache
// until it is closed.
type Watcher struct {
	w       *Workspace
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	applied int
	onEvent func(path string)
}

// StartWatch adds watches for every directory under the root and starts
// processing events. Watches are in place when it returns.
func (w *Workspace) StartWatch(ctx context.Context) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	wt := &Watcher{w: w, watcher: fsw, cancel: cancel}
	if err := wt.addWatches(w.root); err != nil {
		cancel()
		_ = fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", w.root, err)
	}
	wt.wg.Add(1)
	go wt.run(ctx)
	return wt, nil
}

// Watch follows the file system until ctx is cancelled.
func (w *Workspace) Watch(ctx context.Context) error {
	wt, err := w.StartWatch(ctx)
	if err != nil {
		return err
	}
	<-ctx.Done()
	return wt.Close()
}

// OnEvent registers fn to run after each applied change.
func (wt *Watcher) OnEvent(fn func(path string)) {
	wt.mu.Lock()
	defer wt.mu.Unlock()
	wt.onEvent = fn
}

// Applied returns the number of changes applied so far.
func (wt *Watcher) Applied() int {
	wt.mu.Lock()
	defer wt.mu.Unlock()
	return wt.applied
}

// Close stops the watcher and waits for its goroutine to exit.
func (wt *Watcher) Close() error {
	wt.cancel()
	err := wt.watcher.Close()
	wt.wg.Wait()
	return err
}

func (wt *Watcher) addWatches(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && wt.ignoredDir(path) {
			return filepath.SkipDir
		}
		if err := wt.watcher.Add(path); err != nil {
			log.Debug().Err(err).Str("dir", path).Msg("workspace: cannot watch directory")
		}
		return nil
	})
}

// unwatch drops the watches of dir and its subdirectories.
func (wt *Watcher) unwatch(dir string) {
	prefix := dir + string(filepath.Separator)
	for _, path := range wt.watcher.WatchList() {
		if path == dir || strings.HasPrefix(path, prefix) {
			_ = wt.watcher.Remove(path)
		}
	}
}

func (wt *Watcher) ignoredDir(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return true
	}
	rel, err := filepath.Rel(wt.w.root, path)
	if err != nil {
		return true
	}
	return discover.Excluded(wt.w.cfg.Exclude, filepath.ToSlash(rel))
}

func (wt *Watcher) run(ctx context.Context) {
	defer wt.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-wt.watcher.Events:
			if !ok {
				return
			}
			wt.handle(ctx, event)
		case err, ok := <-wt.watcher.Errors:
			if !ok {
				return
			}
			log.Debug().Err(err).Msg("workspace: watcher error")
		}
	}
}

func (wt *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	rel, err := filepath.Rel(wt.w.root, event.Name)
	if err != nil || rel == "." {
		return
	}
	rel = filepath.ToSlash(rel)

	info, statErr := os.Stat(event.Name)
	if statErr == nil && info.IsDir() {
		if event.Has(fsnotify.Create) && !wt.ignoredDir(event.Name) {
			if err := wt.addWatches(event.Name); err != nil {
				log.Debug().Err(err).Str("dir", rel).Msg("workspace: cannot watch new directory")
			}
			wt.indexTree(ctx, event.Name)
		}
		return
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename), errors.Is(statErr, fs.ErrNotExist):
		// The path may have been a directory; retract everything under it.
		wt.unwatch(event.Name)
		for _, path := range wt.w.RemoveTree(rel) {
			wt.notify(path, event.Op)
		}
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		if statErr != nil || !wt.indexable(rel) {
			return
		}
		if wt.apply(ctx, event.Name, rel, info) {
			wt.notify(rel, event.Op)
		}
	}
}

// indexable reports whether a file event at rel concerns an indexed file.
func (wt *Watcher) indexable(rel string) bool {
	if lang.ForPath(rel) == nil || discover.Excluded(wt.w.cfg.Exclude, rel) {
		return false
	}
	if strings.HasPrefix(filepath.Base(rel), ".") {
		return false
	}
	return wt.w.cfg.IndexTests || !discover.IsTestFile(rel)
}

// apply reads the file at path and updates the cache. It reports whether the
// file was read.
func (wt *Watcher) apply(ctx context.Context, path, rel string, info fs.FileInfo) bool {
	if limit := wt.w.cfg.MaxFileSize; limit > 0 && info.Size() > limit {
		log.Debug().Str("path", rel).Int64("size", info.Size()).Msg("workspace: skipping oversized file")
		return false
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	wt.w.Update(ctx, rel, src)
	return true
}

// indexTree indexes the Ruby files of a directory moved or created under the
// root. Its subdirectories are already watched.
func (wt *Watcher) indexTree(ctx context.Context, dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || ctx.Err() != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && wt.ignoredDir(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(wt.w.root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if !wt.indexable(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if wt.apply(ctx, path, rel, info) {
			wt.notify(rel, fsnotify.Create)
		}
		return nil
	})
}

func (wt *Watcher) notify(rel string, op fsnotify.Op) {
	wt.mu.Lock()
	wt.applied++
	fn := wt.onEvent
	wt.mu.Unlock()
	log.Debug().Str("path", rel).Str("op", op.String()).Msg("workspace: applied change")
	if fn != nil {
		fn(rel)
	}
}
