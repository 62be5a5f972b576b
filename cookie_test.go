package fglscope

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceCookie_Lines(t *testing.T) {
	t.Parallel()
	c := NewSourceCookie("MAIN\r\n  DISPLAY 1\nEND MAIN\n")

	assert.Equal(t, 3, c.LineCount())
	assert.Equal(t, []int{0, 6, 18}, c.LineOffsets())

	line, ok := c.Line(1)
	require.True(t, ok)
	assert.Equal(t, "MAIN", line)
	line, ok = c.Line(3)
	require.True(t, ok)
	assert.Equal(t, "END MAIN", line)
	_, ok = c.Line(4)
	assert.False(t, ok)
	_, ok = c.Line(0)
	assert.False(t, ok)
}

func TestSourceCookie_Empty(t *testing.T) {
	t.Parallel()
	c := NewSourceCookie("")
	assert.Zero(t, c.LineCount())
	assert.Empty(t, c.Text())
}

func TestSourceCookie_Hash(t *testing.T) {
	t.Parallel()
	a := NewSourceCookie("MAIN\nEND MAIN\n")
	b := NewSourceCookie("MAIN\nEND MAIN\n")
	c := NewSourceCookie("MAIN\n\nEND MAIN\n")

	assert.Equal(t, a.Hash(), b.Hash())
	assert.NotEqual(t, a.Hash(), c.Hash())
	assert.Len(t, a.HashString(), 16)
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()
	dir := testDir(t)

	_, err := NormalizePath("")
	require.Error(t, err)

	p, err := NormalizePath(filepath.Join(dir, "x", "..", "a.4gl"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a.4gl"), p)

	target := writeFile(t, filepath.Join(dir, "real", "m.4gl"), "")
	link := filepath.Join(dir, "link")
	if err := os.Symlink(filepath.Join(dir, "real"), link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	p, err = NormalizePath(filepath.Join(link, "m.4gl"))
	require.NoError(t, err)
	assert.Equal(t, target, p)

	p, err = NormalizePath(filepath.Join(link, "new.4gl"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "real", "new.4gl"), p, "missing files resolve through their directory")
}
