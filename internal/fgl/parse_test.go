package fgl

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedDiag struct {
	msg      string
	line     int
	code     int
	severity Severity
}

type recordingSink struct {
	diags []recordedDiag
}

func (s *recordingSink) Add(msg string, lineOffsets []int, start, end int, code int, sev Severity) {
	line := 0
	for i, off := range lineOffsets {
		if off <= start {
			line = i + 1
		}
	}
	s.diags = append(s.diags, recordedDiag{msg: msg, line: line, code: code, severity: sev})
}

const moduleSource = `# order entry module
IMPORT FGL util.strings
IMPORT FGL customers
IMPORT JAVA java.util.Date
IMPORT os
GLOBALS "globals.4gl"
&include "macros.inc"

{ block comment
IMPORT FGL ignored
}
MAIN
  CALL run() -- IMPORT FGL also_ignored
END MAIN

PUBLIC FUNCTION run()
  DISPLAY "IMPORT FGL not_a_statement"
END FUNCTION

REPORT order_report(r)
END REPORT
`

func parse(t *testing.T, src string, sink ErrorSink) *Tree {
	t.Helper()
	tree, err := Parse(context.Background(), strings.NewReader(src), ParseOptions{Filename: "orders.4gl", Errors: sink})
	require.NoError(t, err)
	return tree
}

func TestParse_ModuleStatements(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{}
	tree := parse(t, moduleSource, sink)

	assert.Equal(t, []ImportStatement{
		{Name: "util.strings", Kind: ImportFGL, Line: 2},
		{Name: "customers", Kind: ImportFGL, Line: 3},
		{Name: "java.util.Date", Kind: ImportJava, Line: 4},
		{Name: "os", Kind: ImportC, Line: 5},
	}, tree.Imports())

	assert.Equal(t, []IncludeStatement{
		{Name: "globals.4gl", Line: 6, Globals: true},
		{Name: "macros.inc", Line: 7},
	}, tree.Includes())

	assert.Equal(t, []Definition{
		{Name: "main", Kind: "main", Line: 12},
		{Name: "run", Kind: "function", Line: 16},
		{Name: "order_report", Kind: "report", Line: 20},
	}, tree.Definitions())

	assert.Equal(t, "orders.4gl", tree.Filename)
	assert.Equal(t, 21, tree.LineCount)
	assert.Empty(t, sink.diags)
}

func TestParse_Diagnostics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		want recordedDiag
	}{
		{
			name: "import without module",
			src:  "IMPORT FGL\n",
			want: recordedDiag{msg: "malformed IMPORT statement: missing module name", line: 1, code: CodeMalformedImport, severity: SeverityError},
		},
		{
			name: "late import",
			src:  "FUNCTION f()\nEND FUNCTION\nIMPORT FGL late\n",
			want: recordedDiag{msg: "IMPORT must appear before the first program block", line: 3, code: CodeLateImport, severity: SeverityWarning},
		},
		{
			name: "unterminated string",
			src:  "MAIN\n  DISPLAY \"oops\nEND MAIN\n",
			want: recordedDiag{msg: "unterminated string literal", line: 2, code: CodeUnterminatedString, severity: SeverityError},
		},
		{
			name: "include without quotes",
			src:  "&include macros.inc\n",
			want: recordedDiag{msg: "malformed &include directive", line: 1, code: CodeMalformedInclude, severity: SeverityError},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sink := &recordingSink{}
			parse(t, tt.src, sink)
			require.Len(t, sink.diags, 1)
			assert.Equal(t, tt.want, sink.diags[0])
		})
	}
}

func TestParse_LateImportStillRecorded(t *testing.T) {
	t.Parallel()
	tree := parse(t, "MAIN\nEND MAIN\nIMPORT FGL late\n", nil)
	require.Len(t, tree.Imports(), 1)
	assert.Equal(t, "late", tree.Imports()[0].Name)
}

func TestParse_EmptyAndCRLF(t *testing.T) {
	t.Parallel()

	empty := parse(t, "", nil)
	assert.Empty(t, empty.Imports())
	assert.Zero(t, empty.LineCount)

	crlf := parse(t, "IMPORT FGL a\r\nGLOBALS 'g.4gl'\r\n", nil)
	require.Len(t, crlf.Imports(), 1)
	assert.Equal(t, "a", crlf.Imports()[0].Name)
	require.Len(t, crlf.Includes(), 1)
	assert.Equal(t, "g.4gl", crlf.Includes()[0].Name)
}

func TestParse_Cancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Parse(ctx, strings.NewReader("MAIN\nEND MAIN\n"), ParseOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTree_AccessorsReturnCopies(t *testing.T) {
	t.Parallel()
	tree := parse(t, "IMPORT FGL a\n", nil)
	imps := tree.Imports()
	imps[0].Name = "changed"
	assert.Equal(t, "a", tree.Imports()[0].Name)
}
