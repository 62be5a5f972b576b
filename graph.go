package fglscope

import (
	"cmp"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// ProjectGraph holds the entries of one project directory, links to the
// graphs its entries import, and the set of entries (in any graph) that
// import one of its modules.
type ProjectGraph struct {
	ws     *Workspace
	root   string
	pinned bool // guarded by ws.mu

	mu          sync.RWMutex
	entries     map[string]*ProjectEntry
	imported    map[string]*importLink    // module path -> link
	referencing map[string]map[string]int // importer path -> module path -> statements
}

// importLink is an outgoing import from this graph's entries to a module.
type importLink struct {
	root      string
	importers map[string]int
}

func newProjectGraph(ws *Workspace, root string) *ProjectGraph {
	return &ProjectGraph{
		ws:          ws,
		root:        root,
		entries:     make(map[string]*ProjectEntry),
		imported:    make(map[string]*importLink),
		referencing: make(map[string]map[string]int),
	}
}

// Root returns the graph's directory.
func (g *ProjectGraph) Root() string { return g.root }

// Pinned reports whether the graph was created by GraphFor and not yet
// unpinned.
func (g *ProjectGraph) Pinned() bool {
	g.ws.mu.RLock()
	defer g.ws.mu.RUnlock()
	return g.pinned
}

func (g *ProjectGraph) entry(path string) *ProjectEntry {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.entries[path]
}

// Entry returns the entry for path if this graph owns it.
func (g *ProjectGraph) Entry(path string) (*ProjectEntry, bool) {
	e := g.entry(mustNormalize(path))
	return e, e != nil
}

// GetOrCreateEntry returns the entry for path, creating it in this graph
// when no graph has one yet.
func (g *ProjectGraph) GetOrCreateEntry(path string) (*ProjectEntry, error) {
	p, err := NormalizePath(path)
	if err != nil {
		return nil, err
	}
	ws := g.ws
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if e := ws.entryLocked(p); e != nil {
		return e, nil
	}
	target := ws.graphs[g.root]
	if target == nil {
		ws.graphs[g.root] = g
		target = g
	}
	target.mu.Lock()
	defer target.mu.Unlock()
	e := newProjectEntry(ws, p, target.root)
	target.entries[p] = e
	return e, nil
}

// Entries returns the graph's entries ordered by path.
func (g *ProjectGraph) Entries() []*ProjectEntry {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := slices.Collect(maps.Values(g.entries))
	slices.SortFunc(out, func(a, b *ProjectEntry) int { return cmp.Compare(a.path, b.path) })
	return out
}

// RemoveEntry removes path from the workspace if this graph owns it.
func (g *ProjectGraph) RemoveEntry(path string) bool {
	p := mustNormalize(path)
	if g.entry(p) == nil {
		return false
	}
	return g.ws.RemoveEntry(p)
}

// AdoptEntry moves e, with its outgoing import links, into this graph.
func (g *ProjectGraph) AdoptEntry(e *ProjectEntry) error {
	if e.isRemoved() {
		return ErrEntryRemoved
	}
	ws := g.ws
	ws.mu.Lock()
	oldRoot := e.root()
	if oldRoot == g.root {
		ws.mu.Unlock()
		return nil
	}
	target := ws.graphs[g.root]
	if target == nil {
		ws.graphs[g.root] = g
		target = g
	}

	moved := make(map[string]*importLink)
	if old := ws.graphs[oldRoot]; old != nil {
		old.mu.Lock()
		delete(old.entries, e.path)
		for module, link := range old.imported {
			n, ok := link.importers[e.path]
			if !ok {
				continue
			}
			moved[module] = &importLink{root: link.root, importers: map[string]int{e.path: n}}
			delete(link.importers, e.path)
			if len(link.importers) == 0 {
				delete(old.imported, module)
			}
		}
		old.mu.Unlock()
	}

	target.mu.Lock()
	target.entries[e.path] = e
	for module, m := range moved {
		link := target.imported[module]
		if link == nil {
			link = &importLink{root: m.root, importers: make(map[string]int)}
			target.imported[module] = link
		}
		link.importers[e.path] += m.importers[e.path]
	}
	target.mu.Unlock()
	e.setGraphRoot(target.root)
	ws.mu.Unlock()

	ws.dropGraphIfUnused(oldRoot)
	return nil
}

// AddImportedModule resolves name as imported by importer and links the
// module's entry, in the graph of the module's directory, to importer.
// Adding the same name for the same importer again is a no-op returning
// the same graph.
func (g *ProjectGraph) AddImportedModule(name string, importer *ProjectEntry) (*ProjectGraph, error) {
	if importer.isRemoved() {
		return nil, ErrEntryRemoved
	}
	p, ok := g.ws.resolver.ResolveImport(name, importer.path)
	if !ok {
		return nil, fmt.Errorf("%w: import %s from %s", ErrUnresolved, name, importer.path)
	}
	child, _ := g.addImport(name, mustNormalize(p), importer)
	return child, nil
}

func (g *ProjectGraph) addImport(name, module string, importer *ProjectEntry) (*ProjectGraph, *ProjectEntry) {
	ws := g.ws
	if old, ok := importer.importEdge(name); ok {
		if old.module == module {
			child, ok := ws.graph(old.root)
			if mod := ws.lookup(module); ok && mod != nil {
				return child, mod
			}
		}
		g.RemoveImportedModule(name, importer)
	}

	ws.mu.Lock()
	mod := ws.entryForLocked(module)
	child := ws.graphs[mod.root()]
	child.addReferencing(importer.path, module)
	mod.addImportedBy(importer.path)
	ws.mu.Unlock()

	if ig, ok := ws.graph(importer.root()); ok {
		ig.addLink(module, child.root, importer.path)
	}
	importer.setImport(name, importEdge{root: child.root, module: module})
	return child, mod
}

// RemoveImportedModule drops the import of name by importer. The imported
// module and its graph are released when nothing else keeps them.
func (g *ProjectGraph) RemoveImportedModule(name string, importer *ProjectEntry) {
	edge, ok := importer.takeImport(name)
	if !ok {
		return
	}
	g.ws.unlinkImport(importer.path, importer.root(), edge)
}

// ImportedModules returns the paths of modules this graph's entries import.
func (g *ProjectGraph) ImportedModules() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Sorted(maps.Keys(g.imported))
}

// ImportedGraphs returns the distinct graphs this graph's entries import
// from, ordered by root.
func (g *ProjectGraph) ImportedGraphs() []*ProjectGraph {
	g.mu.RLock()
	roots := make(map[string]bool)
	for _, link := range g.imported {
		roots[link.root] = true
	}
	g.mu.RUnlock()

	var out []*ProjectGraph
	for _, root := range slices.Sorted(maps.Keys(roots)) {
		if child, ok := g.ws.graph(root); ok {
			out = append(out, child)
		}
	}
	return out
}

// ReferencingEntries returns the paths of entries importing a module of
// this graph. Each importer appears once.
func (g *ProjectGraph) ReferencingEntries() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Sorted(maps.Keys(g.referencing))
}

// Contains reports whether path lies under the graph's directory.
func (g *ProjectGraph) Contains(path string) bool {
	rel, err := filepath.Rel(g.root, mustNormalize(path))
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (g *ProjectGraph) addReferencing(importer, module string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	mods := g.referencing[importer]
	if mods == nil {
		mods = make(map[string]int)
		g.referencing[importer] = mods
	}
	mods[module]++
}

func (g *ProjectGraph) dropReferencing(importer, module string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	mods := g.referencing[importer]
	if mods == nil {
		return
	}
	dropRef(mods, module)
	if len(mods) == 0 {
		delete(g.referencing, importer)
	}
}

func (g *ProjectGraph) addLink(module, root, importer string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	link := g.imported[module]
	if link == nil {
		link = &importLink{root: root, importers: make(map[string]int)}
		g.imported[module] = link
	}
	link.importers[importer]++
}

func (g *ProjectGraph) removeLink(module, importer string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	link := g.imported[module]
	if link == nil {
		return
	}
	dropRef(link.importers, importer)
	if len(link.importers) == 0 {
		delete(g.imported, module)
	}
}
