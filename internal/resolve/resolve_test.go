package resolve

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestResolveImport(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	lib := t.TempDir()

	main := writeFile(t, filepath.Join(root, "main.4gl"), "")
	local := writeFile(t, filepath.Join(root, "orders.4gl"), "")
	nested := writeFile(t, filepath.Join(lib, "util", "strings.4gl"), "")
	writeFile(t, filepath.Join(lib, "orders.4gl"), "")

	s := New([]string{lib})

	got, ok := s.ResolveImport("orders", main)
	require.True(t, ok)
	assert.Equal(t, local, got, "the importing file's directory wins over search paths")

	got, ok = s.ResolveImport("util.strings", main)
	require.True(t, ok)
	assert.Equal(t, nested, got)

	_, ok = s.ResolveImport("missing", main)
	assert.False(t, ok)

	_, ok = s.ResolveImport("", main)
	assert.False(t, ok)
}

func TestResolveInclude(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	shared := t.TempDir()

	main := writeFile(t, filepath.Join(root, "main.4gl"), "")
	globals := writeFile(t, filepath.Join(root, "globals.4gl"), "")
	macros := writeFile(t, filepath.Join(shared, "inc", "macros.inc"), "")

	s := New([]string{shared})

	got, ok := s.ResolveInclude("globals.4gl", main)
	require.True(t, ok)
	assert.Equal(t, globals, got)

	got, ok = s.ResolveInclude("inc/macros.inc", main)
	require.True(t, ok)
	assert.Equal(t, macros, got)

	got, ok = s.ResolveInclude(macros, main)
	require.True(t, ok)
	assert.Equal(t, macros, got)

	_, ok = s.ResolveInclude("nope.inc", main)
	assert.False(t, ok)

	_, ok = s.ResolveInclude(root, main)
	assert.False(t, ok, "directories are not includable")
}

func TestAvailableImports(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	lib := t.TempDir()

	main := writeFile(t, filepath.Join(root, "main.4gl"), "")
	writeFile(t, filepath.Join(root, "orders.4gl"), "")
	writeFile(t, filepath.Join(root, "notes.txt"), "")
	writeFile(t, filepath.Join(lib, "audit.4gl"), "")
	writeFile(t, filepath.Join(lib, "orders.4gl"), "")
	require.NoError(t, os.MkdirAll(filepath.Join(lib, "sub.4gl"), 0o755))

	s := New([]string{lib, filepath.Join(root, "does-not-exist")})
	assert.Equal(t, []string{"audit", "orders"}, s.AvailableImports(main))
}

func TestLanguageVersion(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	s := New(nil)
	assert.Equal(t, DefaultLanguageVersion, s.LanguageVersion(filepath.Join(root, "a.4gl")))

	s = New(nil, WithLanguageVersion("4.01"))
	assert.Equal(t, "4.01", s.LanguageVersion(filepath.Join(root, "a.4gl")))

	s.SetDirectoryVersion(root, "2.50")
	assert.Equal(t, "2.50", s.LanguageVersion(filepath.Join(root, "legacy", "b.4gl")))
	assert.Equal(t, "4.01", s.LanguageVersion(filepath.Join(t.TempDir(), "c.4gl")))
}

func TestNew_SkipsEmptyPaths(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s := New([]string{"", dir})
	assert.Equal(t, []string{dir}, s.Paths())
}
