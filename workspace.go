package fglscope

import (
	"cmp"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

// Workspace is the registry of project graphs. It owns every graph and,
// through them, every entry; graphs and entries refer to each other by
// path key only.
//
// Lock order is Workspace.mu, then ProjectGraph.mu, then ProjectEntry.mu.
// An entry's lock is never held while taking another lock.
type Workspace struct {
	resolver     FileResolver
	logger       *slog.Logger
	stuckWarning time.Duration

	mu     sync.RWMutex
	graphs map[string]*ProjectGraph
}

// WorkspaceOption configures a Workspace.
type WorkspaceOption func(*Workspace)

// WithWorkspaceLogger sets the logger used for graph lifecycle and
// stuck-parse warnings.
func WithWorkspaceLogger(l *slog.Logger) WorkspaceOption {
	return func(ws *Workspace) { ws.logger = l }
}

// WithWorkspaceStuckWarning sets how often WaitForCurrentTree logs while a
// parse stays pending. Zero disables the warning.
func WithWorkspaceStuckWarning(d time.Duration) WorkspaceOption {
	return func(ws *Workspace) { ws.stuckWarning = d }
}

// NewWorkspace returns an empty workspace resolving names with resolver.
func NewWorkspace(resolver FileResolver, opts ...WorkspaceOption) *Workspace {
	ws := &Workspace{
		resolver:     resolver,
		logger:       slog.Default(),
		stuckWarning: 10 * time.Second,
		graphs:       make(map[string]*ProjectGraph),
	}
	for _, opt := range opts {
		opt(ws)
	}
	return ws
}

// Resolver returns the file resolver graphs use.
func (ws *Workspace) Resolver() FileResolver { return ws.resolver }

// Graph returns the live graph rooted at dir.
func (ws *Workspace) Graph(dir string) (*ProjectGraph, bool) {
	return ws.graph(mustNormalize(dir))
}

func (ws *Workspace) graph(root string) (*ProjectGraph, bool) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	g, ok := ws.graphs[root]
	return g, ok
}

// GraphFor returns the graph rooted at dir, creating it if needed. The
// graph is pinned: it stays registered while empty until Unpin.
func (ws *Workspace) GraphFor(dir string) *ProjectGraph {
	root := mustNormalize(dir)
	ws.mu.Lock()
	defer ws.mu.Unlock()
	g := ws.graphLocked(root)
	g.pinned = true
	return g
}

// Unpin releases a GraphFor pin. The graph is dropped once it has no
// entries and no referencing entries.
func (ws *Workspace) Unpin(dir string) {
	root := mustNormalize(dir)
	ws.mu.Lock()
	if g := ws.graphs[root]; g != nil {
		g.pinned = false
	}
	ws.mu.Unlock()
	ws.dropGraphIfUnused(root)
}

// graphLocked returns or creates an unpinned graph. ws.mu must be held.
func (ws *Workspace) graphLocked(root string) *ProjectGraph {
	if g := ws.graphs[root]; g != nil {
		return g
	}
	g := newProjectGraph(ws, root)
	ws.graphs[root] = g
	ws.logger.Debug("project graph created", "root", root)
	return g
}

// Graphs returns the live graphs ordered by root.
func (ws *Workspace) Graphs() []*ProjectGraph {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	out := slices.Collect(maps.Values(ws.graphs))
	slices.SortFunc(out, func(a, b *ProjectGraph) int { return cmp.Compare(a.root, b.root) })
	return out
}

// Entry returns the live entry for path.
func (ws *Workspace) Entry(path string) (*ProjectEntry, bool) {
	e := ws.lookup(mustNormalize(path))
	return e, e != nil
}

// Entries returns every live entry ordered by path.
func (ws *Workspace) Entries() []*ProjectEntry {
	var out []*ProjectEntry
	for _, g := range ws.Graphs() {
		out = append(out, g.Entries()...)
	}
	slices.SortFunc(out, func(a, b *ProjectEntry) int { return cmp.Compare(a.path, b.path) })
	return out
}

// EntryFor returns the entry for path, creating it in the graph of the
// file's directory.
func (ws *Workspace) EntryFor(path string) (*ProjectEntry, error) {
	p, err := NormalizePath(path)
	if err != nil {
		return nil, err
	}
	return ws.entryFor(p), nil
}

func (ws *Workspace) entryFor(path string) *ProjectEntry {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.entryForLocked(path)
}

func (ws *Workspace) entryForLocked(path string) *ProjectEntry {
	if e := ws.entryLocked(path); e != nil {
		return e
	}
	g := ws.graphLocked(filepath.Dir(path))
	g.mu.Lock()
	defer g.mu.Unlock()
	e := newProjectEntry(ws, path, g.root)
	g.entries[path] = e
	return e
}

func (ws *Workspace) lookup(path string) *ProjectEntry {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.entryLocked(path)
}

// entryLocked finds path in the graph of its directory, falling back to a
// scan for entries adopted elsewhere. ws.mu must be held.
func (ws *Workspace) entryLocked(path string) *ProjectEntry {
	if g := ws.graphs[filepath.Dir(path)]; g != nil {
		if e := g.entry(path); e != nil {
			return e
		}
	}
	for _, g := range ws.graphs {
		if e := g.entry(path); e != nil {
			return e
		}
	}
	return nil
}

// RemoveEntry detaches the entry for path regardless of references and
// releases whatever it alone kept alive. Entries that still point at it
// are pruned lazily.
func (ws *Workspace) RemoveEntry(path string) bool {
	p := mustNormalize(path)
	ws.mu.Lock()
	e := ws.entryLocked(p)
	if e == nil {
		ws.mu.Unlock()
		return false
	}
	ws.detachLocked(e)
	ws.mu.Unlock()
	ws.disposeEntry(e)
	return true
}

// releaseIfUnused removes e when it is neither open nor explicitly indexed
// and no live entry imports or includes it.
func (ws *Workspace) releaseIfUnused(e *ProjectEntry) bool {
	ws.mu.Lock()
	keep, refs := e.references()
	if keep {
		ws.mu.Unlock()
		return false
	}
	for _, ref := range refs {
		if r := ws.entryLocked(ref); r != nil && r != e {
			ws.mu.Unlock()
			return false
		}
		e.pruneReference(ref)
	}
	ws.detachLocked(e)
	ws.mu.Unlock()
	ws.disposeEntry(e)
	return true
}

// detachLocked removes e from its graph and marks it removed. ws.mu must
// be held.
func (ws *Workspace) detachLocked(e *ProjectEntry) {
	if g := ws.graphs[e.root()]; g != nil {
		g.mu.Lock()
		if g.entries[e.path] == e {
			delete(g.entries, e.path)
		}
		g.mu.Unlock()
	}
	e.markRemoved()
}

// disposeEntry unlinks a detached entry's outgoing edges, cascading to
// anything only it referenced.
func (ws *Workspace) disposeEntry(e *ProjectEntry) {
	imports, includes, root := e.dispose()
	for _, edge := range imports {
		ws.unlinkImport(e.path, root, edge)
	}
	for _, target := range includes {
		ws.dropInclude(e.path, target)
	}
	ws.dropGraphIfUnused(root)
	ws.logger.Debug("entry removed", "path", e.path)
}

// unlinkImport undoes one import edge from importer.
func (ws *Workspace) unlinkImport(importer, importerRoot string, edge importEdge) {
	if ig, ok := ws.graph(importerRoot); ok {
		ig.removeLink(edge.module, importer)
	}
	ws.mu.Lock()
	if child := ws.graphs[edge.root]; child != nil {
		child.dropReferencing(importer, edge.module)
	}
	mod := ws.entryLocked(edge.module)
	if mod != nil {
		mod.removeImportedBy(importer)
	}
	ws.mu.Unlock()
	if mod != nil {
		ws.releaseIfUnused(mod)
	}
	ws.dropGraphIfUnused(edge.root)
}

// linkInclude records that e includes target under name and returns the
// target's entry.
func (ws *Workspace) linkInclude(e *ProjectEntry, name, target string) *ProjectEntry {
	if cur, ok := e.includeEdges()[name]; ok {
		if cur == target {
			if t := ws.lookup(target); t != nil {
				return t
			}
		}
		ws.unlinkInclude(e, name)
	}
	ws.mu.Lock()
	t := ws.entryForLocked(target)
	t.addIncludedBy(e.path)
	ws.mu.Unlock()
	e.setInclude(name, target)
	return t
}

func (ws *Workspace) unlinkInclude(e *ProjectEntry, name string) {
	if target, ok := e.takeInclude(name); ok {
		ws.dropInclude(e.path, target)
	}
}

func (ws *Workspace) dropInclude(from, target string) {
	ws.mu.Lock()
	t := ws.entryLocked(target)
	if t != nil {
		t.removeIncludedBy(from)
	}
	ws.mu.Unlock()
	if t != nil {
		ws.releaseIfUnused(t)
	}
}

// dropGraphIfUnused unregisters an unpinned graph with no entries and no
// referencing entries.
func (ws *Workspace) dropGraphIfUnused(root string) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	g := ws.graphs[root]
	if g == nil || g.pinned {
		return
	}
	g.mu.RLock()
	idle := len(g.entries) == 0 && len(g.referencing) == 0
	g.mu.RUnlock()
	if idle {
		delete(ws.graphs, root)
		ws.logger.Debug("project graph dropped", "root", root)
	}
}

// String summarizes the registry for debugging.
func (ws *Workspace) String() string {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	n := 0
	for _, g := range ws.graphs {
		g.mu.RLock()
		n += len(g.entries)
		g.mu.RUnlock()
	}
	return fmt.Sprintf("workspace(%d graphs, %d entries)", len(ws.graphs), n)
}
