package fglscope

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectCircularImports(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		imports map[string][]string // file -> imported names
		start   string
		want    bool
	}{
		{
			name:    "self import",
			imports: map[string][]string{"a": {"a"}},
			start:   "a",
			want:    true,
		},
		{
			name:    "mutual import",
			imports: map[string][]string{"a": {"b"}, "b": {"a"}},
			start:   "a",
			want:    true,
		},
		{
			name:    "diamond",
			imports: map[string][]string{"a": {"b", "c"}, "b": {"d"}, "c": {"d"}},
			start:   "a",
			want:    false,
		},
		{
			name:    "cycle below start",
			imports: map[string][]string{"a": {"b"}, "b": {"c"}, "c": {"b"}},
			start:   "a",
			want:    true,
		},
		{
			name:    "chain",
			imports: map[string][]string{"a": {"b"}, "b": {"c"}},
			start:   "a",
			want:    false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ws, res, dir := newTestWorkspace(t)
			for _, name := range []string{"a", "b", "c", "d"} {
				res.imports[name] = filepath.Join(dir, name+".4gl")
			}
			for file, names := range tt.imports {
				e := mustEntry(t, ws, filepath.Join(dir, file+".4gl"))
				e.setRooted(true)
				e.UpdateIncludesAndImports(treeOf(names...))
			}

			start := mustEntry(t, ws, filepath.Join(dir, tt.start+".4gl"))
			assert.Equal(t, tt.want, start.DetectCircularImports())
			assert.Equal(t, tt.want, start.IsCircular())
			if tt.want {
				cycle := start.Cycle()
				assert.GreaterOrEqual(t, len(cycle), 2)
				assert.Equal(t, cycle[0], cycle[len(cycle)-1])
			} else {
				assert.Nil(t, start.Cycle())
			}
		})
	}
}

func TestDetectCircularImports_ThroughInclude(t *testing.T) {
	t.Parallel()
	ws, res, dir := newTestWorkspace(t)
	res.imports["a"] = filepath.Join(dir, "a.4gl")
	res.includes["defs.inc"] = filepath.Join(dir, "defs.inc")

	a := mustEntry(t, ws, filepath.Join(dir, "a.4gl"))
	a.setRooted(true)
	a.UpdateIncludesAndImports(treeOf().including("defs.inc"))
	defs := mustEntry(t, ws, filepath.Join(dir, "defs.inc"))
	defs.UpdateIncludesAndImports(treeOf("a"))

	assert.True(t, a.DetectCircularImports())
	assert.Equal(t, []string{a.Path(), defs.Path(), a.Path()}, a.Cycle())
}
