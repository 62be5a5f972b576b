package fglscope

import (
	"maps"
	"slices"
)

// CircularImportDetector walks imports and includes depth-first looking
// for a file that reaches itself.
type CircularImportDetector struct {
	ws *Workspace
}

// NewCircularImportDetector returns a detector over ws.
func NewCircularImportDetector(ws *Workspace) *CircularImportDetector {
	return &CircularImportDetector{ws: ws}
}

// Detect returns the first cycle reachable from start as a list of paths
// beginning and ending with the same file, or nil. Only the current path
// counts as visited, so a diamond (two routes to the same module) is not a
// cycle. Fully explored files are not walked twice.
func (d *CircularImportDetector) Detect(start *ProjectEntry) []string {
	onPath := make(map[string]int)
	done := make(map[string]bool)
	var stack []string

	var visit func(e *ProjectEntry) []string
	visit = func(e *ProjectEntry) []string {
		if i, ok := onPath[e.path]; ok {
			return append(slices.Clone(stack[i:]), e.path)
		}
		if done[e.path] {
			return nil
		}
		onPath[e.path] = len(stack)
		stack = append(stack, e.path)
		for _, next := range d.neighbors(e) {
			if cycle := visit(next); cycle != nil {
				return cycle
			}
		}
		stack = stack[:len(stack)-1]
		delete(onPath, e.path)
		done[e.path] = true
		return nil
	}
	return visit(start)
}

func (d *CircularImportDetector) neighbors(e *ProjectEntry) []*ProjectEntry {
	seen := make(map[string]bool)
	for _, edge := range e.importEdges() {
		seen[edge.module] = true
	}
	for _, target := range e.includeEdges() {
		seen[target] = true
	}
	var out []*ProjectEntry
	for _, p := range slices.Sorted(maps.Keys(seen)) {
		if n := d.ws.lookup(p); n != nil {
			out = append(out, n)
		}
	}
	return out
}
