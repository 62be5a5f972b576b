package fglscope

import (
	"errors"
	"fmt"
)

// ErrNoIndex is returned by QueryBuilder methods when the Engine runs
// without a store.
var ErrNoIndex = errors.New("fglscope: no index configured")

// QueryBuilder answers questions from the persisted index.
type QueryBuilder struct {
	store *Store
}

// Dependency is one import or include of a file.
type Dependency struct {
	Kind         string
	Name         string
	ResolvedPath string // empty when the name did not resolve
	Line         int
}

// Unresolved is a name some file could not resolve.
type Unresolved struct {
	File string
	Kind string
	Name string
	Line int
}

// Stats summarizes the index.
type Stats struct {
	Files        int
	Edges        int
	Unresolved   int
	Circular     int
	SQLFragments int
	Diagnostics  int
}

func (q *QueryBuilder) file(op, path string) (*File, error) {
	if q.store == nil {
		return nil, ErrNoIndex
	}
	f, err := q.store.FileByPath(mustNormalize(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return f, nil
}

// Files returns every indexed file ordered by path.
func (q *QueryBuilder) Files() ([]*File, error) {
	if q.store == nil {
		return nil, ErrNoIndex
	}
	return q.store.Files()
}

// File returns the index record for path, or nil if it was never indexed.
func (q *QueryBuilder) File(path string) (*File, error) {
	return q.file("file", path)
}

// Dependencies returns the imports and includes of path in source order.
func (q *QueryBuilder) Dependencies(path string) ([]Dependency, error) {
	f, err := q.file("dependencies", path)
	if err != nil || f == nil {
		return nil, err
	}
	edges, err := q.store.EdgesByFile(f.ID)
	if err != nil {
		return nil, fmt.Errorf("dependencies: %w", err)
	}
	deps := make([]Dependency, 0, len(edges))
	for _, e := range edges {
		deps = append(deps, Dependency{Kind: e.Kind, Name: e.Name, ResolvedPath: e.ResolvedPath, Line: e.Line})
	}
	return deps, nil
}

// Dependents returns the files that import or include path. With
// transitive set, files reaching path through other files are included.
func (q *QueryBuilder) Dependents(path string, transitive bool) ([]*File, error) {
	if q.store == nil {
		return nil, ErrNoIndex
	}
	p := mustNormalize(path)
	if transitive {
		return q.store.FilesReferencingTransitive(p)
	}
	return q.store.FilesReferencing(p)
}

// SQLFragments returns the SQL statements last extracted from path.
func (q *QueryBuilder) SQLFragments(path string) ([]*SQLFragment, error) {
	f, err := q.file("sql fragments", path)
	if err != nil || f == nil {
		return nil, err
	}
	return q.store.SQLFragmentsByFile(f.ID)
}

// Diagnostics returns the parser problems recorded for path.
func (q *QueryBuilder) Diagnostics(path string) ([]*Diagnostic, error) {
	f, err := q.file("diagnostics", path)
	if err != nil || f == nil {
		return nil, err
	}
	return q.store.DiagnosticsByFile(f.ID)
}

// CircularFiles returns the files flagged as part of an import cycle.
func (q *QueryBuilder) CircularFiles() ([]*File, error) {
	if q.store == nil {
		return nil, ErrNoIndex
	}
	return q.store.CircularFiles()
}

// UnresolvedNames returns every import or include that did not resolve,
// ordered by file and line.
func (q *QueryBuilder) UnresolvedNames() ([]Unresolved, error) {
	if q.store == nil {
		return nil, ErrNoIndex
	}
	rows, err := q.store.DB().Query(
		`SELECT f.path, e.kind, e.name, e.line FROM edges e
		 JOIN files f ON f.id = e.file_id
		 WHERE e.resolved_path IS NULL
		 ORDER BY f.path, e.line`)
	if err != nil {
		return nil, fmt.Errorf("unresolved names: %w", err)
	}
	defer rows.Close()
	var out []Unresolved
	for rows.Next() {
		var u Unresolved
		if err := rows.Scan(&u.File, &u.Kind, &u.Name, &u.Line); err != nil {
			return nil, fmt.Errorf("unresolved names: scan: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Stats counts what the index holds.
func (q *QueryBuilder) Stats() (*Stats, error) {
	if q.store == nil {
		return nil, ErrNoIndex
	}
	s := &Stats{}
	err := q.store.DB().QueryRow(
		`SELECT
			(SELECT COUNT(*) FROM files),
			(SELECT COUNT(*) FROM edges),
			(SELECT COUNT(*) FROM edges WHERE resolved_path IS NULL),
			(SELECT COUNT(*) FROM files WHERE circular),
			(SELECT COUNT(*) FROM sql_fragments),
			(SELECT COUNT(*) FROM diagnostics)`,
	).Scan(&s.Files, &s.Edges, &s.Unresolved, &s.Circular, &s.SQLFragments, &s.Diagnostics)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return s, nil
}
