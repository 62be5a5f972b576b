package store

import (
	"database/sql"
	"fmt"
)

const fileCols = `id, path, project_root, hash, version, line_count, language_version, circular, last_analyzed`

func scanFile(scanner interface{ Scan(...any) error }) (*File, error) {
	f := &File{}
	var hash, langVersion sql.NullString
	var analyzed sql.NullTime
	if err := scanner.Scan(&f.ID, &f.Path, &f.ProjectRoot, &hash, &f.Version, &f.LineCount,
		&langVersion, &f.Circular, &analyzed); err != nil {
		return nil, err
	}
	f.Hash = hash.String
	f.LanguageVersion = langVersion.String
	f.LastAnalyzed = analyzed.Time
	return f, nil
}

func (s *Store) queryFiles(query string, args ...any) ([]*File, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// FileByPath returns the file recorded for path, or nil if there is none.
func (s *Store) FileByPath(path string) (*File, error) {
	f, err := scanFile(s.db.QueryRow("SELECT "+fileCols+" FROM files WHERE path = ?", path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	return f, nil
}

// Files returns every indexed file ordered by path.
func (s *Store) Files() ([]*File, error) {
	files, err := s.queryFiles("SELECT " + fileCols + " FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("files: %w", err)
	}
	return files, nil
}

// FilesByRoot returns the files of one project graph ordered by path.
func (s *Store) FilesByRoot(root string) ([]*File, error) {
	files, err := s.queryFiles("SELECT "+fileCols+" FROM files WHERE project_root = ? ORDER BY path", root)
	if err != nil {
		return nil, fmt.Errorf("files by root: %w", err)
	}
	return files, nil
}

// CircularFiles returns the files whose last analysis found an import cycle.
func (s *Store) CircularFiles() ([]*File, error) {
	files, err := s.queryFiles("SELECT " + fileCols + " FROM files WHERE circular ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("circular files: %w", err)
	}
	return files, nil
}

// FilesReferencing returns the files with an import or include edge that
// resolved to path.
func (s *Store) FilesReferencing(path string) ([]*File, error) {
	files, err := s.queryFiles(
		`SELECT `+fileCols+` FROM files WHERE id IN (
			SELECT file_id FROM edges WHERE resolved_path = ?
		) ORDER BY path`, path)
	if err != nil {
		return nil, fmt.Errorf("files referencing: %w", err)
	}
	return files, nil
}

// FilesReferencingTransitive returns every file that reaches path through
// one or more resolved edges. Cycles terminate because UNION deduplicates.
func (s *Store) FilesReferencingTransitive(path string) ([]*File, error) {
	files, err := s.queryFiles(
		`WITH RECURSIVE dependents(path) AS (
			SELECT f.path FROM edges e JOIN files f ON f.id = e.file_id WHERE e.resolved_path = ?
			UNION
			SELECT f.path FROM edges e
			  JOIN files f ON f.id = e.file_id
			  JOIN dependents d ON e.resolved_path = d.path
		)
		SELECT `+fileCols+` FROM files WHERE path IN (SELECT path FROM dependents) AND path != ? ORDER BY path`,
		path, path)
	if err != nil {
		return nil, fmt.Errorf("files referencing transitive: %w", err)
	}
	return files, nil
}

// EdgesByFile returns a file's edges in source order.
func (s *Store) EdgesByFile(fileID int64) ([]*Edge, error) {
	rows, err := s.db.Query(
		"SELECT id, file_id, kind, name, resolved_path, line FROM edges WHERE file_id = ? ORDER BY line, id", fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("edges by file: %w", err)
	}
	defer rows.Close()
	var edges []*Edge
	for rows.Next() {
		e := &Edge{}
		var resolved sql.NullString
		if err := rows.Scan(&e.ID, &e.FileID, &e.Kind, &e.Name, &resolved, &e.Line); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		e.ResolvedPath = resolved.String
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// DiagnosticsByFile returns a file's diagnostics ordered by position.
func (s *Store) DiagnosticsByFile(fileID int64) ([]*Diagnostic, error) {
	rows, err := s.db.Query(
		`SELECT id, file_id, code, severity, message, line, start_offset, end_offset
		 FROM diagnostics WHERE file_id = ? ORDER BY start_offset, id`, fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("diagnostics by file: %w", err)
	}
	defer rows.Close()
	var diags []*Diagnostic
	for rows.Next() {
		d := &Diagnostic{}
		if err := rows.Scan(&d.ID, &d.FileID, &d.Code, &d.Severity, &d.Message, &d.Line, &d.StartOffset, &d.EndOffset); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		diags = append(diags, d)
	}
	return diags, rows.Err()
}

// SQLFragmentsByFile returns a file's SQL fragments in source order.
func (s *Store) SQLFragmentsByFile(fileID int64) ([]*SQLFragment, error) {
	rows, err := s.db.Query(
		`SELECT id, file_id, text, start_offset, end_offset, line, dynamic
		 FROM sql_fragments WHERE file_id = ? ORDER BY start_offset`, fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("sql fragments by file: %w", err)
	}
	defer rows.Close()
	var frags []*SQLFragment
	for rows.Next() {
		f := &SQLFragment{}
		if err := rows.Scan(&f.ID, &f.FileID, &f.Text, &f.StartOffset, &f.EndOffset, &f.Line, &f.Dynamic); err != nil {
			return nil, fmt.Errorf("scan sql fragment: %w", err)
		}
		frags = append(frags, f)
	}
	return frags, rows.Err()
}
