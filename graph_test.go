package fglscope

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddImportedModule_Idempotent(t *testing.T) {
	t.Parallel()
	ws, res, dir := newTestWorkspace(t)
	lib := filepath.Join(dir, "lib")
	res.imports["util"] = filepath.Join(lib, "util.4gl")

	app := ws.GraphFor(filepath.Join(dir, "app"))
	main, err := app.GetOrCreateEntry(filepath.Join(dir, "app", "main.4gl"))
	require.NoError(t, err)

	g1, err := app.AddImportedModule("util", main)
	require.NoError(t, err)
	g2, err := app.AddImportedModule("util", main)
	require.NoError(t, err)

	assert.Same(t, g1, g2)
	assert.Equal(t, lib, g1.Root())
	assert.Equal(t, []string{main.Path()}, g1.ReferencingEntries())
	assert.Equal(t, []*ProjectGraph{g1}, app.ImportedGraphs())

	mod, ok := ws.Entry(filepath.Join(lib, "util.4gl"))
	require.True(t, ok)
	assert.Equal(t, []string{main.Path()}, mod.ImportedBy())
}

func TestAddImportedModule_Unresolved(t *testing.T) {
	t.Parallel()
	ws, _, dir := newTestWorkspace(t)
	app := ws.GraphFor(dir)
	main, err := app.GetOrCreateEntry(filepath.Join(dir, "main.4gl"))
	require.NoError(t, err)

	_, err = app.AddImportedModule("nowhere", main)
	require.ErrorIs(t, err, ErrUnresolved)
	assert.Empty(t, app.ImportedModules())
	assert.Empty(t, main.Imports())
}

func TestEntryFor_NormalizesPath(t *testing.T) {
	t.Parallel()
	ws, _, dir := newTestWorkspace(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))

	a := mustEntry(t, ws, filepath.Join(dir, "a.4gl"))
	b := mustEntry(t, ws, filepath.Join(dir, "sub", "..", "a.4gl"))
	assert.Same(t, a, b)
	assert.Len(t, ws.Entries(), 1)
}

func TestRemoveImportedModule_DropsUnusedGraph(t *testing.T) {
	t.Parallel()
	ws, res, dir := newTestWorkspace(t)
	lib := filepath.Join(dir, "lib")
	res.imports["util"] = filepath.Join(lib, "util.4gl")

	app := ws.GraphFor(filepath.Join(dir, "app"))
	main, err := app.GetOrCreateEntry(filepath.Join(dir, "app", "main.4gl"))
	require.NoError(t, err)
	_, err = app.AddImportedModule("util", main)
	require.NoError(t, err)
	_, ok := ws.Graph(lib)
	require.True(t, ok)

	app.RemoveImportedModule("util", main)

	_, ok = ws.Graph(lib)
	assert.False(t, ok, "graph with no entries and no referencing entries is detached")
	_, ok = ws.Entry(filepath.Join(lib, "util.4gl"))
	assert.False(t, ok)
	assert.Empty(t, app.ImportedModules())
}

func TestRemoveImportedModule_KeepsOpenModule(t *testing.T) {
	t.Parallel()
	ws, res, dir := newTestWorkspace(t)
	res.imports["util"] = filepath.Join(dir, "util.4gl")

	main := mustEntry(t, ws, filepath.Join(dir, "main.4gl"))
	g := main.Graph()
	_, err := g.AddImportedModule("util", main)
	require.NoError(t, err)
	util, ok := ws.Entry(filepath.Join(dir, "util.4gl"))
	require.True(t, ok)
	util.setOpen(true)

	g.RemoveImportedModule("util", main)
	_, ok = ws.Entry(filepath.Join(dir, "util.4gl"))
	assert.True(t, ok, "open buffers outlive their importers")
}

func TestUpdateIncludesAndImports_Reconciles(t *testing.T) {
	t.Parallel()
	ws, res, dir := newTestWorkspace(t)
	res.imports["a"] = filepath.Join(dir, "a.4gl")
	res.imports["b"] = filepath.Join(dir, "b.4gl")
	res.includes["globals.4gl"] = filepath.Join(dir, "globals.4gl")

	main := mustEntry(t, ws, filepath.Join(dir, "main.4gl"))
	main.setRooted(true)

	refs := main.UpdateIncludesAndImports(treeOf("a", "b", "missing").including("globals.4gl"))
	var paths []string
	for _, r := range refs {
		paths = append(paths, r.Path())
	}
	assert.Equal(t, []string{
		filepath.Join(dir, "a.4gl"),
		filepath.Join(dir, "b.4gl"),
		filepath.Join(dir, "globals.4gl"),
	}, paths)
	assert.Equal(t, []string{"missing"}, main.Unresolved())

	globals, ok := ws.Entry(filepath.Join(dir, "globals.4gl"))
	require.True(t, ok)
	assert.Equal(t, []string{main.Path()}, globals.IncludedBy())

	// Second pass: "a" and the include are gone, "missing" now resolves.
	res.imports["missing"] = filepath.Join(dir, "found.4gl")
	main.UpdateIncludesAndImports(treeOf("b", "missing"))

	assert.Equal(t, map[string]string{
		"b":       filepath.Join(dir, "b.4gl"),
		"missing": filepath.Join(dir, "found.4gl"),
	}, main.Imports())
	assert.Empty(t, main.Includes())
	assert.Empty(t, main.Unresolved())

	_, ok = ws.Entry(filepath.Join(dir, "a.4gl"))
	assert.False(t, ok, "dropped import releases the module")
	_, ok = ws.Entry(filepath.Join(dir, "globals.4gl"))
	assert.False(t, ok, "dropped include releases the file")
	assert.Equal(t, []string{main.Path()}, main.Graph().ReferencingEntries())
}

func TestUpdateIncludesAndImports_IgnoresForeignImports(t *testing.T) {
	t.Parallel()
	ws, res, dir := newTestWorkspace(t)
	res.imports["java.util.Date"] = filepath.Join(dir, "Date.4gl")

	main := mustEntry(t, ws, filepath.Join(dir, "main.4gl"))
	tree := &fakeTree{imports: []ImportStatement{{Name: "java.util.Date", Kind: "java", Line: 1}}}
	assert.Empty(t, main.UpdateIncludesAndImports(tree))
	assert.Empty(t, main.Imports())
}

func TestRemoveEntry_CascadesToModules(t *testing.T) {
	t.Parallel()
	ws, res, dir := newTestWorkspace(t)
	res.imports["a"] = filepath.Join(dir, "lib", "a.4gl")

	main := mustEntry(t, ws, filepath.Join(dir, "main.4gl"))
	main.UpdateIncludesAndImports(treeOf("a"))
	require.Len(t, ws.Graphs(), 2)

	require.True(t, main.Graph().RemoveEntry(main.Path()))
	assert.Empty(t, ws.Entries())
	assert.Empty(t, ws.Graphs())
}

func TestGraphFor_PinnedUntilUnpin(t *testing.T) {
	t.Parallel()
	ws, _, dir := newTestWorkspace(t)
	g := ws.GraphFor(dir)
	assert.True(t, g.Pinned())

	e, err := g.GetOrCreateEntry(filepath.Join(dir, "a.4gl"))
	require.NoError(t, err)
	require.True(t, ws.RemoveEntry(e.Path()))
	_, ok := ws.Graph(dir)
	assert.True(t, ok, "pinned graph survives without entries")

	ws.Unpin(dir)
	_, ok = ws.Graph(dir)
	assert.False(t, ok)
}

func TestAdoptEntry(t *testing.T) {
	t.Parallel()
	ws, res, dir := newTestWorkspace(t)
	res.imports["util"] = filepath.Join(dir, "lib", "util.4gl")

	e := mustEntry(t, ws, filepath.Join(dir, "old", "main.4gl"))
	e.UpdateIncludesAndImports(treeOf("util"))
	target := ws.GraphFor(filepath.Join(dir, "new"))

	require.NoError(t, target.AdoptEntry(e))
	assert.Same(t, target, e.Graph())
	got, ok := target.Entry(e.Path())
	require.True(t, ok)
	assert.Same(t, e, got)
	assert.Equal(t, []string{filepath.Join(dir, "lib", "util.4gl")}, target.ImportedModules())

	_, ok = ws.Graph(filepath.Join(dir, "old"))
	assert.False(t, ok, "emptied graph is dropped")
	same, ok := ws.Entry(e.Path())
	require.True(t, ok)
	assert.Same(t, e, same)
}

func TestGraph_Contains(t *testing.T) {
	t.Parallel()
	ws, _, dir := newTestWorkspace(t)
	g := ws.GraphFor(filepath.Join(dir, "app"))
	assert.True(t, g.Contains(filepath.Join(dir, "app", "x", "a.4gl")))
	assert.False(t, g.Contains(filepath.Join(dir, "lib", "a.4gl")))
	assert.False(t, g.Contains(filepath.Join(dir, "application", "a.4gl")))
}
