package fglscope

import (
	"context"
	"fmt"
	"io"

	"github.com/jward/fglscope/internal/fgl"
	"github.com/jward/fglscope/internal/sqlextract"
	"github.com/jward/fglscope/internal/store"
)

// Public type aliases for internal types used in the Engine and QueryBuilder
// APIs. External consumers use these names; no conversion is needed.

type Store = store.Store
type File = store.File
type Edge = store.Edge
type Diagnostic = store.Diagnostic
type SQLFragment = store.SQLFragment

type Fragment = sqlextract.Fragment
type SyntaxChecker = sqlextract.SyntaxChecker
type SyntaxError = sqlextract.SyntaxError

type ImportStatement = fgl.ImportStatement
type IncludeStatement = fgl.IncludeStatement
type ParseOptions = fgl.ParseOptions
type ErrorSink = fgl.ErrorSink
type Severity = fgl.Severity

// importFGL is the only import kind that links files in the project graph.
const importFGL = fgl.ImportFGL

// Tree is a parsed file as far as the project graph is concerned: the
// statements that link it to other files.
type Tree interface {
	Imports() []ImportStatement
	Includes() []IncludeStatement
}

// Parser turns source text into a Tree, reporting problems to
// opts.Errors. An error return means no tree could be produced at all.
type Parser interface {
	Parse(ctx context.Context, r io.Reader, opts ParseOptions) (Tree, error)
}

// FileResolver maps import and include names to files.
type FileResolver interface {
	// ResolveImport returns the file implementing the dotted module name
	// imported by currentFile.
	ResolveImport(name, currentFile string) (string, bool)
	// ResolveInclude returns the file named by a GLOBALS or &include
	// statement in currentFile.
	ResolveInclude(name, currentFile string) (string, bool)
	// AvailableImports lists module names currentFile could import.
	AvailableImports(currentFile string) []string
	// LanguageVersion reports the language version file is written in.
	LanguageVersion(file string) string
}

// fglParser adapts the built-in statement scanner to Parser.
type fglParser struct{}

func (fglParser) Parse(ctx context.Context, r io.Reader, opts ParseOptions) (Tree, error) {
	tree, err := fgl.Parse(ctx, r, opts)
	if err != nil {
		return nil, err
	}
	return tree, nil
}

// OpenStore opens (creating if needed) the SQLite index at path.
func OpenStore(path string) (*Store, error) {
	s, err := store.NewStore(path)
	if err != nil {
		return nil, fmt.Errorf("fglscope: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("fglscope: migrate: %w", err)
	}
	return s, nil
}
