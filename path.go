package fglscope

import (
	"fmt"
	"path/filepath"
	goruntime "runtime"
	"strings"
)

// NormalizePath returns the canonical spelling of path used to key entries
// and graphs: absolute, cleaned, with symlinks evaluated where the path (or
// its directory) exists, and case-folded on Windows.
func NormalizePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("fglscope: normalize: empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("fglscope: normalize %s: %w", path, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	} else if realDir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		abs = filepath.Join(realDir, filepath.Base(abs))
	}
	if goruntime.GOOS == "windows" {
		abs = strings.ToLower(abs)
	}
	return abs, nil
}

// mustNormalize is NormalizePath for paths already known to be usable.
func mustNormalize(path string) string {
	if p, err := NormalizePath(path); err == nil {
		return p
	}
	return filepath.Clean(path)
}

// isSource reports whether path has a 4GL source extension.
func isSource(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".4gl", ".inc":
		return true
	}
	return false
}
