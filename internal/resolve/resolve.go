// Package resolve maps 4GL import and include names to files on disk.
//
// Module names are dotted (IMPORT FGL util.strings) and resolve to
// util/strings.4gl, searched first next to the importing file and then in
// each configured search path, in order. Include names are file names
// relative to the including file or a search path.
package resolve

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// SourceExt is the extension of 4GL module sources.
const SourceExt = ".4gl"

// DefaultLanguageVersion is reported when no override applies.
const DefaultLanguageVersion = "3.20"

// SearchPath is a FileResolver backed by an ordered list of directories.
type SearchPath struct {
	paths   []string
	version string

	mu       sync.RWMutex
	versions map[string]string // directory -> language version
}

// Option configures a SearchPath.
type Option func(*SearchPath)

// WithLanguageVersion sets the version reported for every file without a
// directory override.
func WithLanguageVersion(v string) Option {
	return func(s *SearchPath) {
		if v != "" {
			s.version = v
		}
	}
}

// New creates a SearchPath over the given directories.
func New(paths []string, opts ...Option) *SearchPath {
	s := &SearchPath{
		version:  DefaultLanguageVersion,
		versions: make(map[string]string),
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		s.paths = append(s.paths, p)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Paths returns the configured search directories.
func (s *SearchPath) Paths() []string {
	return append([]string(nil), s.paths...)
}

// SetDirectoryVersion overrides the language version for files in dir.
func (s *SearchPath) SetDirectoryVersion(dir, version string) {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	s.mu.Lock()
	s.versions[dir] = version
	s.mu.Unlock()
}

// ResolveImport resolves a dotted module name imported by currentFile.
func (s *SearchPath) ResolveImport(name, currentFile string) (string, bool) {
	if name == "" {
		return "", false
	}
	rel := filepath.FromSlash(strings.ReplaceAll(name, ".", "/")) + SourceExt
	return s.find(rel, currentFile)
}

// ResolveInclude resolves a GLOBALS or &include file name.
func (s *SearchPath) ResolveInclude(name, currentFile string) (string, bool) {
	if name == "" {
		return "", false
	}
	if filepath.IsAbs(name) {
		return name, isFile(name)
	}
	return s.find(filepath.FromSlash(name), currentFile)
}

func (s *SearchPath) find(rel, currentFile string) (string, bool) {
	for _, dir := range s.dirsFor(currentFile) {
		candidate := filepath.Join(dir, rel)
		if isFile(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func (s *SearchPath) dirsFor(currentFile string) []string {
	dirs := make([]string, 0, len(s.paths)+1)
	if currentFile != "" {
		dirs = append(dirs, filepath.Dir(currentFile))
	}
	return append(dirs, s.paths...)
}

// AvailableImports lists the module names importable from currentFile:
// every .4gl file next to it or directly inside a search path, except
// currentFile itself.
func (s *SearchPath) AvailableImports(currentFile string) []string {
	seen := make(map[string]bool)
	self := filepath.Clean(currentFile)
	for _, dir := range s.dirsFor(currentFile) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), SourceExt) {
				continue
			}
			if filepath.Join(dir, e.Name()) == self {
				continue
			}
			seen[strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))] = true
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LanguageVersion returns the version for file, honoring the nearest
// directory override.
func (s *SearchPath) LanguageVersion(file string) string {
	dir := filepath.Dir(file)
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for {
		if v, ok := s.versions[dir]; ok {
			return v
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return s.version
		}
		dir = parent
	}
}

func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
