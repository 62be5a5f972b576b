package fglscope

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleEvent(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	dir := testDir(t)
	ctx := context.Background()
	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	t.Cleanup(func() { watcher.Close() })

	main := writeFile(t, filepath.Join(dir, "main.4gl"), "IMPORT FGL util\nMAIN\nEND MAIN\n")
	entry, err := e.AnalyzeFile(ctx, main)
	require.NoError(t, err)
	require.Equal(t, []string{"util"}, entry.Unresolved())

	util := writeFile(t, filepath.Join(dir, "util.4gl"), "FUNCTION f()\nEND FUNCTION\n")
	e.handleEvent(ctx, watcher, fsnotify.Event{Name: util, Op: fsnotify.Create})
	assert.Equal(t, map[string]string{"util": util}, entry.Imports(), "created module resolves")

	writeFile(t, main, "MAIN\nEND MAIN\n")
	e.handleEvent(ctx, watcher, fsnotify.Event{Name: main, Op: fsnotify.Write})
	assert.Empty(t, entry.Imports())
	assert.Equal(t, int64(2), entry.Version())

	require.NoError(t, os.Remove(util))
	e.handleEvent(ctx, watcher, fsnotify.Event{Name: util, Op: fsnotify.Remove})
	_, ok := e.Entry(util)
	assert.False(t, ok)
	f, err := e.Query().File(util)
	require.NoError(t, err)
	assert.Nil(t, f, "removed file leaves the index")

	notes := writeFile(t, filepath.Join(dir, "notes.txt"), "IMPORT FGL util\n")
	e.handleEvent(ctx, watcher, fsnotify.Event{Name: notes, Op: fsnotify.Create})
	_, ok = e.Entry(notes)
	assert.False(t, ok, "non-source files are ignored")

	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	e.handleEvent(ctx, watcher, fsnotify.Event{Name: sub, Op: fsnotify.Create})
	assert.Contains(t, watcher.WatchList(), sub)
}

func TestHandleEvent_OpenBufferWins(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	dir := testDir(t)
	ctx := context.Background()
	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	t.Cleanup(func() { watcher.Close() })

	path := writeFile(t, filepath.Join(dir, "main.4gl"), "MAIN\nEND MAIN\n")
	entry, err := e.Open(ctx, path, "MAIN\n  DISPLAY 1\nEND MAIN\n")
	require.NoError(t, err)

	writeFile(t, path, "MAIN\n  DISPLAY 2\nEND MAIN\n")
	e.handleEvent(ctx, watcher, fsnotify.Event{Name: path, Op: fsnotify.Write})
	assert.Contains(t, entry.TreeAndCookie().Cookie.Text(), "DISPLAY 1")
}

func TestWatch_IndexesNewFiles(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	dir := testDir(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- e.Watch(ctx, dir) }()

	path := filepath.Join(dir, "late.4gl")
	// Rewrite on each poll in case the first write beat the watch.
	assert.Eventually(t, func() bool {
		if err := os.WriteFile(path, []byte("MAIN\nEND MAIN\n"), 0o644); err != nil {
			return false
		}
		entry, ok := e.Entry(path)
		return ok && entry.IsAnalyzed()
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
