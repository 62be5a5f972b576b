package main

import "time"

// CLIResult is the top-level JSON envelope for all query commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLIFile is a JSON-friendly indexed file.
type CLIFile struct {
	Path            string    `json:"path"`
	ProjectRoot     string    `json:"project_root"`
	Hash            string    `json:"hash"`
	Version         int64     `json:"version"`
	LineCount       int       `json:"line_count"`
	LanguageVersion string    `json:"language_version,omitempty"`
	Circular        bool      `json:"circular"`
	LastAnalyzed    time.Time `json:"last_analyzed"`
}

// CLIDependency is one IMPORT FGL or include of a file.
type CLIDependency struct {
	Kind         string `json:"kind"`
	Name         string `json:"name"`
	ResolvedPath string `json:"resolved_path,omitempty"`
	Line         int    `json:"line"`
}

// CLIUnresolved is a name that did not resolve to a file.
type CLIUnresolved struct {
	File string `json:"file"`
	Kind string `json:"kind"`
	Name string `json:"name"`
	Line int    `json:"line"`
}

// CLIFragment is one embedded SQL statement.
type CLIFragment struct {
	Text        string `json:"text"`
	Line        int    `json:"line"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
	Dynamic     bool   `json:"dynamic,omitempty"`
}

// CLIDiagnostic is one analysis finding.
type CLIDiagnostic struct {
	Code     int    `json:"code"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Line     int    `json:"line"`
}

// CLIStats summarizes the index.
type CLIStats struct {
	Files        int `json:"files"`
	Edges        int `json:"edges"`
	Unresolved   int `json:"unresolved"`
	Circular     int `json:"circular"`
	SQLFragments int `json:"sql_fragments"`
	Diagnostics  int `json:"diagnostics"`
}
