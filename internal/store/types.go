package store

import "time"

// Edge kinds.
const (
	EdgeImport  = "import"
	EdgeInclude = "include"
)

type File struct {
	ID              int64
	Path            string
	ProjectRoot     string
	Hash            string
	Version         int64
	LineCount       int
	LanguageVersion string
	Circular        bool
	LastAnalyzed    time.Time
}

// Edge is one IMPORT or include statement of a file. ResolvedPath is empty
// when the name could not be resolved.
type Edge struct {
	ID           int64
	FileID       int64
	Kind         string
	Name         string
	ResolvedPath string
	Line         int
}

type Diagnostic struct {
	ID          int64
	FileID      int64
	Code        int
	Severity    string
	Message     string
	Line        int
	StartOffset int
	EndOffset   int
}

type SQLFragment struct {
	ID          int64
	FileID      int64
	Text        string
	StartOffset int
	EndOffset   int
	Line        int
	Dynamic     bool
}

// Analysis is everything recorded for one file in a single commit.
type Analysis struct {
	File        *File
	Edges       []Edge
	Diagnostics []Diagnostic
}
