package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/jward/fglscope"
)

var (
	headingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("cyan")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("red")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("yellow"))
	faintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

var validFormats = map[string]bool{"json": true, "text": true}

func validateFormat(format string) error {
	if !validFormats[format] {
		return fmt.Errorf("invalid format %q: must be json or text", format)
	}
	return nil
}

// writeResultText dispatches on the result type.
func writeResultText(w io.Writer, result CLIResult) error {
	switch r := result.Results.(type) {
	case []CLIDependency:
		formatDependenciesText(w, r)
	case []CLIFile:
		formatFilesText(w, r)
	case []CLIFragment:
		formatFragmentsText(w, r)
	case []CLIDiagnostic:
		formatDiagnosticsText(w, r)
	case []CLIUnresolved:
		formatUnresolvedText(w, r)
	case CLIStats:
		formatStatsText(w, r)
	default:
		return fmt.Errorf("%s: no text format for %T", result.Command, result.Results)
	}
	return nil
}

func formatDependenciesText(w io.Writer, deps []CLIDependency) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tNAME\tLINE\tRESOLVED")
	for _, d := range deps {
		resolved := d.ResolvedPath
		if resolved == "" {
			resolved = warnStyle.Render("(unresolved)")
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", d.Kind, d.Name, d.Line, resolved)
	}
	tw.Flush()
}

func formatFilesText(w io.Writer, files []CLIFile) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tLINES\tVERSION\tCIRCULAR")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%t\n", f.Path, f.LineCount, f.Version, f.Circular)
	}
	tw.Flush()
}

// formatFragmentsText prints each statement under a line header.
func formatFragmentsText(w io.Writer, frags []CLIFragment) {
	for i, f := range frags {
		if i > 0 {
			fmt.Fprintln(w)
		}
		header := fmt.Sprintf("line %d", f.Line)
		if f.Dynamic {
			header += " (dynamic)"
		}
		fmt.Fprintln(w, faintStyle.Render(header))
		fmt.Fprintln(w, strings.TrimSpace(f.Text))
	}
}

func formatDiagnosticsText(w io.Writer, diags []CLIDiagnostic) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tSEVERITY\tCODE\tMESSAGE")
	for _, d := range diags {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", d.Line, d.Severity, d.Code, d.Message)
	}
	tw.Flush()
}

func formatUnresolvedText(w io.Writer, names []CLIUnresolved) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tLINE\tKIND\tNAME")
	for _, u := range names {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", u.File, u.Line, u.Kind, u.Name)
	}
	tw.Flush()
}

func formatStatsText(w io.Writer, s CLIStats) {
	fmt.Fprintln(w, headingStyle.Render("Index Summary"))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Files:\t%d\n", s.Files)
	fmt.Fprintf(tw, "Imports and includes:\t%d\n", s.Edges)
	fmt.Fprintf(tw, "Unresolved:\t%d\n", s.Unresolved)
	fmt.Fprintf(tw, "Circular files:\t%d\n", s.Circular)
	fmt.Fprintf(tw, "SQL fragments:\t%d\n", s.SQLFragments)
	fmt.Fprintf(tw, "Diagnostics:\t%d\n", s.Diagnostics)
	tw.Flush()
}

// printSummary reports an index run on w.
func printSummary(w io.Writer, dir, db string, s *fglscope.Stats, took time.Duration) {
	fmt.Fprintln(w, headingStyle.Render(fmt.Sprintf("Indexed %s in %s", dir, took.Round(time.Millisecond))))
	fmt.Fprintf(w, "Files: %d, imports and includes: %d\n", s.Files, s.Edges)
	if s.Unresolved > 0 {
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("Unresolved: %d", s.Unresolved)))
	}
	if s.Circular > 0 {
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("Circular files: %d", s.Circular)))
	}
	fmt.Fprintln(w, faintStyle.Render("Database: "+db))
}
