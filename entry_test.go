package fglscope

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publish(e *ProjectEntry, tree Tree, text string) int64 {
	e.BeginParsingTree()
	return e.UpdateTree(tree, NewSourceCookie(text))
}

func TestEntry_StartsEmpty(t *testing.T) {
	t.Parallel()
	ws, _, dir := newTestWorkspace(t)
	e := mustEntry(t, ws, filepath.Join(dir, "a.4gl"))

	snap := e.TreeAndCookie()
	assert.Nil(t, snap.Tree)
	assert.Nil(t, snap.Cookie)
	assert.Zero(t, snap.Version)
	assert.False(t, e.ParsePending())
}

func TestWaitForCurrentTree_ReturnsLastOfSequence(t *testing.T) {
	t.Parallel()
	ws, _, dir := newTestWorkspace(t)
	e := mustEntry(t, ws, filepath.Join(dir, "a.4gl"))

	var last Tree
	for i := 1; i <= 3; i++ {
		last = treeOf()
		v := publish(e, last, fmt.Sprintf("version %d", i))
		assert.Equal(t, int64(i), v)
	}

	snap, err := e.WaitForCurrentTree(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Same(t, last, snap.Tree)
	assert.Equal(t, int64(3), snap.Version)
	assert.Equal(t, "version 3", snap.Cookie.Text())
}

func TestWaitForCurrentTree_BlocksUntilUpdate(t *testing.T) {
	t.Parallel()
	ws, _, dir := newTestWorkspace(t)
	e := mustEntry(t, ws, filepath.Join(dir, "a.4gl"))
	publish(e, treeOf(), "first")

	e.BeginParsingTree()
	got := make(chan Snapshot, 1)
	go func() {
		snap, _ := e.WaitForCurrentTree(context.Background(), -1)
		got <- snap
	}()

	select {
	case <-got:
		t.Fatal("wait returned while a parse was pending")
	case <-time.After(50 * time.Millisecond):
	}

	second := treeOf()
	e.UpdateTree(second, NewSourceCookie("second"))
	select {
	case snap := <-got:
		assert.Same(t, second, snap.Tree)
		assert.Equal(t, int64(2), snap.Version)
	case <-time.After(2 * time.Second):
		t.Fatal("wait did not return after UpdateTree")
	}
}

func TestWaitForCurrentTree_TimeoutReturnsPrevious(t *testing.T) {
	t.Parallel()
	ws, _, dir := newTestWorkspace(t)
	e := mustEntry(t, ws, filepath.Join(dir, "a.4gl"))
	first := treeOf()
	publish(e, first, "first")

	e.BeginParsingTree()
	snap, err := e.WaitForCurrentTree(context.Background(), 20*time.Millisecond)
	require.ErrorIs(t, err, ErrWaitTimeout)
	assert.Same(t, first, snap.Tree)
	assert.Equal(t, int64(1), snap.Version)
}

func TestWaitForCurrentTree_ContextCancelled(t *testing.T) {
	t.Parallel()
	ws, _, dir := newTestWorkspace(t)
	e := mustEntry(t, ws, filepath.Join(dir, "a.4gl"))
	e.BeginParsingTree()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.WaitForCurrentTree(ctx, -1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCancelParsingTree_ReleasesWaiters(t *testing.T) {
	t.Parallel()
	ws, _, dir := newTestWorkspace(t)
	e := mustEntry(t, ws, filepath.Join(dir, "a.4gl"))
	first := treeOf()
	publish(e, first, "first")

	e.BeginParsingTree()
	done := make(chan Snapshot, 1)
	go func() {
		snap, _ := e.WaitForCurrentTree(context.Background(), -1)
		done <- snap
	}()
	e.CancelParsingTree()

	select {
	case snap := <-done:
		assert.Same(t, first, snap.Tree)
		assert.Equal(t, int64(1), snap.Version, "cancel does not bump the version")
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not release the waiter")
	}
	assert.False(t, e.ParsePending())
}

func TestBeginParsingTree_Overlapping(t *testing.T) {
	t.Parallel()
	ws, _, dir := newTestWorkspace(t)
	e := mustEntry(t, ws, filepath.Join(dir, "a.4gl"))

	e.BeginParsingTree()
	e.BeginParsingTree()
	e.UpdateTree(treeOf(), NewSourceCookie("one"))
	assert.True(t, e.ParsePending(), "second parse still pending")

	_, err := e.WaitForCurrentTree(context.Background(), 10*time.Millisecond)
	require.ErrorIs(t, err, ErrWaitTimeout)

	e.UpdateTree(treeOf(), NewSourceCookie("two"))
	assert.False(t, e.ParsePending())
	snap, err := e.WaitForCurrentTree(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Version)
}

func TestWaitForCurrentTree_LogsStuckParse(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ws := NewWorkspace(&mapResolver{},
		WithWorkspaceLogger(slog.New(slog.NewTextHandler(&buf, nil))),
		WithWorkspaceStuckWarning(5*time.Millisecond),
	)
	e := mustEntry(t, ws, filepath.Join(testDir(t), "a.4gl"))

	e.BeginParsingTree()
	_, err := e.WaitForCurrentTree(context.Background(), 60*time.Millisecond)
	require.ErrorIs(t, err, ErrWaitTimeout)
	assert.Contains(t, buf.String(), "parse still pending")
}

func TestObservers_ParseBeforeAnalysis(t *testing.T) {
	t.Parallel()
	ws, _, dir := newTestWorkspace(t)
	e := mustEntry(t, ws, filepath.Join(dir, "a.4gl"))

	var (
		mu     sync.Mutex
		events []string
	)
	record := func(s string) {
		mu.Lock()
		events = append(events, s)
		mu.Unlock()
	}
	e.OnNewParseTree(func(s Snapshot) { record(fmt.Sprintf("parse:%d", s.Version)) })
	unsubscribe := e.OnNewAnalysis(func(v int64) { record(fmt.Sprintf("analysis:%d", v)) })

	e.NotifyAnalysis(1) // held until version 1 is published
	publish(e, treeOf(), "one")
	publish(e, treeOf(), "two")
	e.NotifyAnalysis(2)

	unsubscribe()
	publish(e, treeOf(), "three")
	e.NotifyAnalysis(3)

	assert.Equal(t, []string{"parse:1", "analysis:1", "parse:2", "analysis:2", "parse:3"}, events)
}

func TestProperties(t *testing.T) {
	t.Parallel()
	ws, _, dir := newTestWorkspace(t)
	path := filepath.Join(dir, "a.4gl")
	e := mustEntry(t, ws, path)

	require.NoError(t, e.SetProperty("symbols", 42))
	v, ok := e.Property("symbols")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	e.DeleteProperty("symbols")
	_, ok = e.Property("symbols")
	assert.False(t, ok)

	require.NoError(t, e.SetProperty("symbols", 1))
	require.True(t, ws.RemoveEntry(path))
	_, ok = e.Property("symbols")
	assert.False(t, ok, "removal drops properties")
	assert.ErrorIs(t, e.SetProperty("symbols", 2), ErrEntryRemoved)
	assert.Nil(t, e.Graph())
}

func TestPreventErrorCheck(t *testing.T) {
	t.Parallel()
	ws, _, dir := newTestWorkspace(t)
	e := mustEntry(t, ws, filepath.Join(dir, "a.4gl"))
	diags := []Diagnostic{{Code: 1001, Severity: "error", Message: "bad import", Line: 1}}

	e.markAnalyzed(diags, "3.20")
	assert.True(t, e.IsAnalyzed())
	assert.True(t, e.IsErrorChecked())
	assert.Len(t, e.Diagnostics(), 1)

	e.SetPreventErrorCheck(true)
	assert.False(t, e.IsErrorChecked())
	e.markAnalyzed(diags, "3.20")
	assert.False(t, e.IsErrorChecked())
	assert.Empty(t, e.Diagnostics())
}
