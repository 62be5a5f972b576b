package fglscope

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeTree is a Tree built directly from statement names.
type fakeTree struct {
	imports  []ImportStatement
	includes []IncludeStatement
}

func (t *fakeTree) Imports() []ImportStatement   { return t.imports }
func (t *fakeTree) Includes() []IncludeStatement { return t.includes }

func treeOf(imports ...string) *fakeTree {
	t := &fakeTree{}
	for i, name := range imports {
		t.imports = append(t.imports, ImportStatement{Name: name, Kind: importFGL, Line: i + 1})
	}
	return t
}

func (t *fakeTree) including(names ...string) *fakeTree {
	for _, name := range names {
		t.includes = append(t.includes, IncludeStatement{Name: name, Line: len(t.imports) + len(t.includes) + 1})
	}
	return t
}

// mapResolver resolves names from fixed tables.
type mapResolver struct {
	imports  map[string]string
	includes map[string]string
}

func (r *mapResolver) ResolveImport(name, _ string) (string, bool) {
	p, ok := r.imports[name]
	return p, ok
}

func (r *mapResolver) ResolveInclude(name, _ string) (string, bool) {
	p, ok := r.includes[name]
	return p, ok
}

func (r *mapResolver) AvailableImports(string) []string { return nil }
func (r *mapResolver) LanguageVersion(string) string    { return "3.20" }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testDir returns a normalized temporary directory.
func testDir(t *testing.T) string {
	t.Helper()
	dir, err := NormalizePath(t.TempDir())
	require.NoError(t, err)
	return dir
}

func newTestWorkspace(t *testing.T) (*Workspace, *mapResolver, string) {
	t.Helper()
	res := &mapResolver{imports: map[string]string{}, includes: map[string]string{}}
	ws := NewWorkspace(res, WithWorkspaceLogger(discardLogger()), WithWorkspaceStuckWarning(0))
	return ws, res, testDir(t)
}

func mustEntry(t *testing.T, ws *Workspace, path string) *ProjectEntry {
	t.Helper()
	e, err := ws.EntryFor(path)
	require.NoError(t, err)
	return e
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
