package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jward/fglscope"
	"github.com/spf13/cobra"
)

var flagTransitive bool

var depsCmd = &cobra.Command{
	Use:   "deps <file>",
	Short: "List the imports and includes of a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeps,
}

var dependentsCmd = &cobra.Command{
	Use:   "dependents <file>",
	Short: "List the files that import or include a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDependents,
}

var sqlCmd = &cobra.Command{
	Use:   "sql <file>",
	Short: "Extract the SQL statements embedded in a file",
	Long:  "Analyzes the file if needed, extracts its embedded SQL and records the fragments in the index.",
	Args:  cobra.ExactArgs(1),
	RunE:  runSQL,
}

var diagnosticsCmd = &cobra.Command{
	Use:   "diagnostics <file>",
	Short: "List the problems recorded for a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDiagnostics,
}

var cyclesCmd = &cobra.Command{
	Use:   "cycles",
	Short: "List files that take part in a circular import",
	Args:  cobra.NoArgs,
	RunE:  runCycles,
}

var unresolvedCmd = &cobra.Command{
	Use:   "unresolved",
	Short: "List imports and includes that did not resolve",
	Args:  cobra.NoArgs,
	RunE:  runUnresolved,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize the index",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	dependentsCmd.Flags().BoolVar(&flagTransitive, "transitive", false, "include files that reach the target through other files")

	rootCmd.AddCommand(depsCmd)
	rootCmd.AddCommand(dependentsCmd)
	rootCmd.AddCommand(sqlCmd)
	rootCmd.AddCommand(diagnosticsCmd)
	rootCmd.AddCommand(cyclesCmd)
	rootCmd.AddCommand(unresolvedCmd)
	rootCmd.AddCommand(statusCmd)
}

// queryEngine opens the index for the project containing the working
// directory.
func queryEngine(cmd *cobra.Command) (*fglscope.Engine, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	engine, _, err := openEngine(cmd, cwd, false)
	return engine, err
}

// absFile resolves a file argument against the working directory.
func absFile(arg string) (string, error) {
	abs, err := filepath.Abs(arg)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", arg, err)
	}
	return abs, nil
}

func runDeps(cmd *cobra.Command, args []string) error {
	const name = "deps"
	path, err := absFile(args[0])
	if err != nil {
		return outputError(name, err)
	}
	engine, err := queryEngine(cmd)
	if err != nil {
		return outputError(name, err)
	}
	defer engine.Close()

	f, err := engine.Query().File(path)
	if err != nil {
		return outputError(name, err)
	}
	if f == nil {
		return outputError(name, fmt.Errorf("not indexed: %s", path))
	}
	deps, err := engine.Query().Dependencies(path)
	if err != nil {
		return outputError(name, err)
	}
	out := make([]CLIDependency, 0, len(deps))
	for _, d := range deps {
		out = append(out, CLIDependency{Kind: d.Kind, Name: d.Name, ResolvedPath: d.ResolvedPath, Line: d.Line})
	}
	return outputResult(listResult(name, out))
}

func runDependents(cmd *cobra.Command, args []string) error {
	const name = "dependents"
	path, err := absFile(args[0])
	if err != nil {
		return outputError(name, err)
	}
	engine, err := queryEngine(cmd)
	if err != nil {
		return outputError(name, err)
	}
	defer engine.Close()

	files, err := engine.Query().Dependents(path, flagTransitive)
	if err != nil {
		return outputError(name, err)
	}
	return outputResult(listResult(name, toCLIFiles(files)))
}

func runSQL(cmd *cobra.Command, args []string) error {
	const name = "sql"
	path, err := absFile(args[0])
	if err != nil {
		return outputError(name, err)
	}
	engine, err := queryEngine(cmd)
	if err != nil {
		return outputError(name, err)
	}
	defer engine.Close()

	frags, err := engine.ExtractSQL(commandContext(cmd), path)
	if err != nil {
		return outputError(name, err)
	}
	out := make([]CLIFragment, 0, len(frags))
	for _, f := range frags {
		out = append(out, CLIFragment{Text: f.Text, Line: f.Line, StartOffset: f.Start, EndOffset: f.End, Dynamic: f.Dynamic})
	}
	return outputResult(listResult(name, out))
}

func runDiagnostics(cmd *cobra.Command, args []string) error {
	const name = "diagnostics"
	path, err := absFile(args[0])
	if err != nil {
		return outputError(name, err)
	}
	engine, err := queryEngine(cmd)
	if err != nil {
		return outputError(name, err)
	}
	defer engine.Close()

	diags, err := engine.Query().Diagnostics(path)
	if err != nil {
		return outputError(name, err)
	}
	out := make([]CLIDiagnostic, 0, len(diags))
	for _, d := range diags {
		out = append(out, CLIDiagnostic{Code: d.Code, Severity: d.Severity, Message: d.Message, Line: d.Line})
	}
	return outputResult(listResult(name, out))
}

func runCycles(cmd *cobra.Command, args []string) error {
	const name = "cycles"
	engine, err := queryEngine(cmd)
	if err != nil {
		return outputError(name, err)
	}
	defer engine.Close()

	files, err := engine.Query().CircularFiles()
	if err != nil {
		return outputError(name, err)
	}
	return outputResult(listResult(name, toCLIFiles(files)))
}

func runUnresolved(cmd *cobra.Command, args []string) error {
	const name = "unresolved"
	engine, err := queryEngine(cmd)
	if err != nil {
		return outputError(name, err)
	}
	defer engine.Close()

	names, err := engine.Query().UnresolvedNames()
	if err != nil {
		return outputError(name, err)
	}
	out := make([]CLIUnresolved, 0, len(names))
	for _, u := range names {
		out = append(out, CLIUnresolved{File: u.File, Kind: u.Kind, Name: u.Name, Line: u.Line})
	}
	return outputResult(listResult(name, out))
}

func runStatus(cmd *cobra.Command, args []string) error {
	const name = "status"
	engine, err := queryEngine(cmd)
	if err != nil {
		return outputError(name, err)
	}
	defer engine.Close()

	s, err := engine.Query().Stats()
	if err != nil {
		return outputError(name, err)
	}
	return outputResult(CLIResult{Command: name, Results: toCLIStats(s)})
}

func listResult[T any](command string, items []T) CLIResult {
	n := len(items)
	return CLIResult{Command: command, Results: items, TotalCount: &n}
}

func toCLIFiles(files []*fglscope.File) []CLIFile {
	out := make([]CLIFile, 0, len(files))
	for _, f := range files {
		out = append(out, CLIFile{
			Path:            f.Path,
			ProjectRoot:     f.ProjectRoot,
			Hash:            f.Hash,
			Version:         f.Version,
			LineCount:       f.LineCount,
			LanguageVersion: f.LanguageVersion,
			Circular:        f.Circular,
			LastAnalyzed:    f.LastAnalyzed,
		})
	}
	return out
}

func toCLIStats(s *fglscope.Stats) CLIStats {
	return CLIStats{
		Files:        s.Files,
		Edges:        s.Edges,
		Unresolved:   s.Unresolved,
		Circular:     s.Circular,
		SQLFragments: s.SQLFragments,
		Diagnostics:  s.Diagnostics,
	}
}

// outputResult writes the result to stdout in the selected format.
func outputResult(result CLIResult) error {
	return writeResult(os.Stdout, flagFormat, result)
}

func writeResult(w io.Writer, format string, result CLIResult) error {
	if format == "text" {
		return writeResultText(w, result)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		return err
	}
	result := CLIResult{
		Command: command,
		Error:   err.Error(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return err
}
