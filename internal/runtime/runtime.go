// Package runtime hosts the Risor scripts that customize import and include
// resolution.
package runtime

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"
)

const scriptExt = ".risor"

// Runtime evaluates resolver scripts. Scripts and the modules they import
// are read from one filesystem, the script directory by default.
type Runtime struct {
	fsys   fs.FS
	logger *slog.Logger
	host   map[string]any
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS reads scripts and imported modules from fsys.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) { r.fsys = fsys }
}

// WithRuntimeLogger routes the scripts' log object to logger.
func WithRuntimeLogger(logger *slog.Logger) RuntimeOption {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRuntime creates a Runtime reading scripts from dir.
func NewRuntime(dir string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	if r.fsys == nil {
		if dir == "" {
			dir = "."
		}
		r.fsys = os.DirFS(dir)
	}
	r.host = map[string]any{
		"file_exists": makeFileExistsFn(),
		"dir_exists":  makeDirExistsFn(),
		"path_join":   makePathJoinFn(),
		"path_dir":    makePathDirFn(),
		"path_base":   makePathBaseFn(),
		"log":         mustProxy(&logObject{logger: r.logger.With("component", "resolver-script")}),
	}
	return r
}

// RunScript evaluates the named script with the host globals plus extra,
// returning the value of its last expression.
func (r *Runtime) RunScript(ctx context.Context, name string, extra map[string]any) (object.Object, error) {
	src, err := r.LoadScript(name)
	if err != nil {
		return nil, err
	}
	return r.eval(ctx, name, src, extra)
}

// RunSource is RunScript for inline source.
func (r *Runtime) RunSource(ctx context.Context, source string, extra map[string]any) (object.Object, error) {
	return r.eval(ctx, "<inline>", source, extra)
}

func (r *Runtime) eval(ctx context.Context, label, source string, extra map[string]any) (object.Object, error) {
	globals := maps.Clone(r.host)
	maps.Copy(globals, extra)

	names := slices.Sorted(maps.Keys(globals))
	opts := make([]risor.Option, 0, len(names)+1)
	for _, name := range names {
		opts = append(opts, risor.WithGlobal(name, globals[name]))
	}
	// Imported modules compile against the same global names.
	opts = append(opts, risor.WithImporter(importer.NewFSImporter(importer.FSImporterOptions{
		GlobalNames: names,
		SourceFS:    r.fsys,
		Extensions:  []string{scriptExt},
	})))

	result, err := risor.Eval(ctx, source, opts...)
	if err != nil {
		return nil, fmt.Errorf("runtime: script %s: %w", label, err)
	}
	return result, nil
}

// LoadScript returns the source of the named script. Leading slashes are
// ignored; names are always relative to the script filesystem.
func (r *Runtime) LoadScript(name string) (string, error) {
	rel := path.Clean(strings.TrimLeft(filepath.ToSlash(name), "/"))
	data, err := fs.ReadFile(r.fsys, rel)
	if err != nil {
		return "", fmt.Errorf("runtime: read script %s: %w", rel, err)
	}
	return string(data), nil
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy %T: %v", v, err))
	}
	return p
}
