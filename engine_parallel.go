package fglscope

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// skipDirs are never descended into when walking a project.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"bin":          true,
}

// IndexFiles analyzes paths from disk with at most WithWorkers analyses in
// flight. Errors on individual files are collected and processing
// continues; the returned error carries the count and the first failure.
// A final pass re-runs cycle detection so every file's flag reflects the
// complete graph.
func (e *Engine) IndexFiles(ctx context.Context, paths []string) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	g := new(errgroup.Group)
	g.SetLimit(e.workers)
	for _, path := range paths {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if _, err := e.AnalyzeFile(ctx, path); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("index %s: %w", path, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	e.detectAllCycles()

	if len(errs) > 0 {
		return fmt.Errorf("indexing had %d error(s): %w", len(errs), errs[0])
	}
	return nil
}

// detectAllCycles refreshes every entry's circular flag in memory and in
// the index.
func (e *Engine) detectAllCycles() {
	for _, entry := range e.ws.Entries() {
		was := entry.IsCircular()
		now := entry.DetectCircularImports()
		if was == now || e.store == nil {
			continue
		}
		if err := e.store.SetCircular(entry.path, now); err != nil {
			e.logger.Debug("set circular", "path", entry.path, "error", err)
		}
	}
}

// IndexDirectory discovers 4GL sources under root and indexes them. It uses
// git ls-files when root is inside a git work tree (respecting .gitignore)
// and falls back to a filesystem walk that skips hidden directories.
func (e *Engine) IndexDirectory(ctx context.Context, root string) error {
	root, err := NormalizePath(root)
	if err != nil {
		return err
	}
	e.ws.GraphFor(root)

	paths, err := gitListFiles(root)
	if err != nil {
		paths, err = walkListFiles(root)
		if err != nil {
			return err
		}
	}

	start := time.Now()
	err = e.IndexFiles(ctx, paths)
	e.logger.Info("indexed directory", "root", root, "files", len(paths), "elapsed", time.Since(start).Round(time.Millisecond))

	if e.store != nil {
		if merr := e.store.SetMetadata("last_indexed_root", root); merr != nil {
			e.logger.Debug("set metadata", "error", merr)
		}
		if merr := e.store.SetMetadata("last_indexed_at", time.Now().UTC().Format(time.RFC3339)); merr != nil {
			e.logger.Debug("set metadata", "error", merr)
		}
	}
	return err
}

// gitListFiles lists tracked and untracked, not ignored, source files under
// root.
func gitListFiles(root string) ([]string, error) {
	cmd := exec.Command("git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w", err)
	}

	var paths []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if abs := filepath.Join(root, line); isSource(abs) {
			paths = append(paths, abs)
		}
	}
	return paths, nil
}

// walkListFiles lists source files by walking the filesystem.
func walkListFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || skipDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if isSource(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return paths, nil
}
