package store

import (
	"database/sql"
	"fmt"
)

// CommitAnalysis records a file's analysis within a single transaction:
// the file row is upserted by path, and its edges and diagnostics replace
// whatever was recorded before. a.File.ID is set on success.
func (s *Store) CommitAnalysis(a *Analysis) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit analysis: begin: %w", err)
	}
	defer tx.Rollback()

	fileID, err := upsertFileTx(tx, a.File)
	if err != nil {
		return fmt.Errorf("commit analysis: file %s: %w", a.File.Path, err)
	}

	for _, q := range []string{
		"DELETE FROM edges WHERE file_id = ?",
		"DELETE FROM diagnostics WHERE file_id = ?",
	} {
		if _, err := tx.Exec(q, fileID); err != nil {
			return fmt.Errorf("commit analysis: clear %s: %w", a.File.Path, err)
		}
	}

	for _, e := range a.Edges {
		if _, err := tx.Exec(
			"INSERT INTO edges (file_id, kind, name, resolved_path, line) VALUES (?, ?, ?, ?, ?)",
			fileID, e.Kind, e.Name, nullString(e.ResolvedPath), e.Line,
		); err != nil {
			return fmt.Errorf("commit analysis: edge %q: %w", e.Name, err)
		}
	}

	for _, d := range a.Diagnostics {
		if _, err := tx.Exec(
			`INSERT INTO diagnostics (file_id, code, severity, message, line, start_offset, end_offset)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			fileID, d.Code, d.Severity, d.Message, d.Line, d.StartOffset, d.EndOffset,
		); err != nil {
			return fmt.Errorf("commit analysis: diagnostic %d: %w", d.Code, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit analysis: %w", err)
	}
	a.File.ID = fileID
	return nil
}

// ReplaceSQLFragments replaces the SQL fragments recorded for path, which
// must already have a file row.
func (s *Store) ReplaceSQLFragments(path string, frags []SQLFragment) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("replace sql fragments: begin: %w", err)
	}
	defer tx.Rollback()

	var fileID int64
	err = tx.QueryRow("SELECT id FROM files WHERE path = ?", path).Scan(&fileID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("replace sql fragments: %s: file not indexed", path)
	}
	if err != nil {
		return fmt.Errorf("replace sql fragments: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM sql_fragments WHERE file_id = ?", fileID); err != nil {
		return fmt.Errorf("replace sql fragments: clear: %w", err)
	}
	for _, f := range frags {
		if _, err := tx.Exec(
			"INSERT INTO sql_fragments (file_id, text, start_offset, end_offset, line, dynamic) VALUES (?, ?, ?, ?, ?, ?)",
			fileID, f.Text, f.StartOffset, f.EndOffset, f.Line, f.Dynamic,
		); err != nil {
			return fmt.Errorf("replace sql fragments: insert: %w", err)
		}
	}
	return tx.Commit()
}

// SetCircular updates the circular-import verdict of an indexed file.
func (s *Store) SetCircular(path string, circular bool) error {
	if _, err := s.db.Exec("UPDATE files SET circular = ? WHERE path = ?", circular, path); err != nil {
		return fmt.Errorf("set circular: %w", err)
	}
	return nil
}

func upsertFileTx(tx *sql.Tx, f *File) (int64, error) {
	var id int64
	err := tx.QueryRow(
		`INSERT INTO files (path, project_root, hash, version, line_count, language_version, circular, last_analyzed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		   project_root = excluded.project_root,
		   hash = excluded.hash,
		   version = excluded.version,
		   line_count = excluded.line_count,
		   language_version = excluded.language_version,
		   circular = excluded.circular,
		   last_analyzed = excluded.last_analyzed
		 RETURNING id`,
		f.Path, f.ProjectRoot, f.Hash, f.Version, f.LineCount, f.LanguageVersion, f.Circular, f.LastAnalyzed,
	).Scan(&id)
	return id, err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
