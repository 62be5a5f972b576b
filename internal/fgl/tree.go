// Package fgl is the default parser service for 4GL sources. It does not
// build a full syntax tree: it recognizes the module-level statements the
// project graph needs (IMPORT, GLOBALS "file", &include) plus top-level
// FUNCTION / REPORT / MAIN definitions, and reports problems with them to an
// ErrorSink.
package fgl

// ImportKind distinguishes the IMPORT forms.
type ImportKind string

const (
	ImportFGL  ImportKind = "fgl"
	ImportJava ImportKind = "java"
	ImportC    ImportKind = "c"
)

// ImportStatement is one IMPORT declaration. Line is 1-based.
type ImportStatement struct {
	Name string
	Kind ImportKind
	Line int
}

// IncludeStatement names a textually included file. Globals is set for
// GLOBALS "file" declarations, clear for &include directives.
type IncludeStatement struct {
	Name    string
	Line    int
	Globals bool
}

// Definition is a top-level program block.
type Definition struct {
	Name string
	Kind string // "function", "report" or "main"
	Line int
}

// Severity of a diagnostic.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

// Diagnostic codes reported by Parse.
const (
	CodeMalformedImport    = 1001
	CodeUnterminatedString = 1002
	CodeLateImport         = 1003
	CodeMalformedInclude   = 1004
)

// ErrorSink receives diagnostics while parsing. lineOffsets holds the byte
// offset at which each line starts; start and end are byte offsets into the
// parsed text.
type ErrorSink interface {
	Add(message string, lineOffsets []int, start, end int, code int, severity Severity)
}

// ParseOptions configures one parse.
type ParseOptions struct {
	Filename        string
	LanguageVersion string
	Errors          ErrorSink
}

// Tree is the statement-level result of Parse.
type Tree struct {
	Filename    string
	LineCount   int
	imports     []ImportStatement
	includes    []IncludeStatement
	definitions []Definition
}

// Imports returns the IMPORT statements in source order.
func (t *Tree) Imports() []ImportStatement {
	return append([]ImportStatement(nil), t.imports...)
}

// Includes returns GLOBALS and &include statements in source order.
func (t *Tree) Includes() []IncludeStatement {
	return append([]IncludeStatement(nil), t.includes...)
}

// Definitions returns top-level FUNCTION, REPORT and MAIN blocks.
func (t *Tree) Definitions() []Definition {
	return append([]Definition(nil), t.definitions...)
}
