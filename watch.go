package fglscope

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch reanalyzes 4GL sources under dirs as they change on disk until ctx
// is done. Created and removed files also trigger ResolutionChanged, since
// they can make a previously unresolved import resolve or a resolved one
// disappear. Open editor buffers are left alone.
func (e *Engine) Watch(ctx context.Context, dirs ...string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fglscope: watch: %w", err)
	}
	defer watcher.Close()

	for _, dir := range dirs {
		if err := addTree(watcher, dir); err != nil {
			return fmt.Errorf("fglscope: watch %s: %w", dir, err)
		}
	}
	e.logger.Info("watching", "dirs", dirs)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			e.handleEvent(ctx, watcher, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			e.logger.Warn("watcher error", "error", err)
		}
	}
}

func (e *Engine) handleEvent(ctx context.Context, watcher *fsnotify.Watcher, event fsnotify.Event) {
	switch {
	case event.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := addTree(watcher, event.Name); err != nil {
				e.logger.Warn("watch new directory", "dir", event.Name, "error", err)
			}
			return
		}
		if !isSource(event.Name) {
			return
		}
		e.reanalyze(ctx, event.Name)
		e.ResolutionChanged(event.Name)

	case event.Has(fsnotify.Write):
		if isSource(event.Name) {
			e.reanalyze(ctx, event.Name)
		}

	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		if !isSource(event.Name) {
			return
		}
		if err := e.Forget(event.Name); err != nil {
			e.logger.Warn("forget removed file", "path", event.Name, "error", err)
		}
	}
}

func (e *Engine) reanalyze(ctx context.Context, path string) {
	if entry, ok := e.ws.Entry(path); ok && entry.IsOpen() {
		return
	}
	if _, err := e.AnalyzeFile(ctx, path); err != nil {
		e.logger.Warn("reanalyze", "path", path, "error", err)
	}
}

// addTree watches dir and its subdirectories, skipping hidden ones.
func addTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && (strings.HasPrefix(d.Name(), ".") || skipDirs[d.Name()]) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
