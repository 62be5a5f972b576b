package fglscope

import (
	"cmp"
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"
)

var (
	// ErrUnresolved is returned when the resolver cannot map a name to a file.
	ErrUnresolved = errors.New("fglscope: unresolved")
	// ErrEntryRemoved is returned by operations on an entry that has been
	// removed from its graph.
	ErrEntryRemoved = errors.New("fglscope: entry removed")
	// ErrWaitTimeout is returned by WaitForCurrentTree, alongside the last
	// published snapshot, when the pending parse did not finish in time.
	ErrWaitTimeout = errors.New("fglscope: timed out waiting for tree")
)

// Snapshot is a published tree together with the cookie it was parsed
// from. Tree and Cookie are nil before the first publication.
type Snapshot struct {
	Tree    Tree
	Cookie  *SourceCookie
	Version int64
}

// importEdge locates the module an import statement resolved to.
type importEdge struct {
	root   string
	module string
}

// ProjectEntry is one analyzable file. Its tree, cookie and version change
// together under mu; readers either see the previous triple or the new one.
type ProjectEntry struct {
	path string
	ws   *Workspace

	mu        sync.Mutex
	graphRoot string
	tree      Tree
	cookie    *SourceCookie
	version   int64
	pending   int
	gate      chan struct{} // closed when pending drops back to zero

	open              bool
	rooted            bool
	analyzed          bool
	errorChecked      bool
	preventErrorCheck bool
	circular          bool
	cycle             []string
	removed           bool

	props       map[string]any
	imports     map[string]importEdge // import name -> module
	includes    map[string]string     // include name -> file
	unresolved  []string
	diagnostics []Diagnostic
	langVersion string
	importedBy  map[string]int // importer path -> statements
	includedBy  map[string]int

	// analyzeMu serializes analysis runs; recursive analysis only TryLocks.
	analyzeMu sync.Mutex

	obsMu       sync.Mutex
	nextObs     int
	parseObs    map[int]func(Snapshot)
	analysisObs map[int]func(int64)

	notifyMu       sync.Mutex
	parseNotified  int64
	queuedAnalysis []int64
}

func newProjectEntry(ws *Workspace, path, root string) *ProjectEntry {
	return &ProjectEntry{
		path:        path,
		ws:          ws,
		graphRoot:   root,
		props:       make(map[string]any),
		imports:     make(map[string]importEdge),
		includes:    make(map[string]string),
		importedBy:  make(map[string]int),
		includedBy:  make(map[string]int),
		parseObs:    make(map[int]func(Snapshot)),
		analysisObs: make(map[int]func(int64)),
	}
}

// Path returns the normalized absolute path identifying the entry.
func (e *ProjectEntry) Path() string { return e.path }

// Graph returns the owning graph, or nil once the entry is removed.
func (e *ProjectEntry) Graph() *ProjectGraph {
	e.mu.Lock()
	root, removed := e.graphRoot, e.removed
	e.mu.Unlock()
	if removed {
		return nil
	}
	g, _ := e.ws.graph(root)
	return g
}

// BeginParsingTree marks a parse as pending. Until the matching UpdateTree
// or CancelParsingTree, WaitForCurrentTree blocks. Overlapping begins share
// one gate, which opens only when every pending parse has finished.
func (e *ProjectEntry) BeginParsingTree() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending++
	if e.pending == 1 {
		e.gate = make(chan struct{})
	}
}

// UpdateTree publishes tree and cookie, bumps the version, completes one
// pending parse and returns the new version. OnNewParseTree observers run
// before it returns.
func (e *ProjectEntry) UpdateTree(tree Tree, cookie *SourceCookie) int64 {
	e.mu.Lock()
	e.tree = tree
	e.cookie = cookie
	e.version++
	e.finishPendingLocked()
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.notifyParse(snap)
	return snap.Version
}

// CancelParsingTree completes one pending parse without publishing, for a
// parse that failed. The previous tree stays current.
func (e *ProjectEntry) CancelParsingTree() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finishPendingLocked()
}

func (e *ProjectEntry) finishPendingLocked() {
	if e.pending == 0 {
		return
	}
	e.pending--
	if e.pending == 0 {
		close(e.gate)
		e.gate = nil
	}
}

// ParsePending reports whether a parse is in flight.
func (e *ProjectEntry) ParsePending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending > 0
}

// TreeAndCookie returns the current snapshot without waiting. It may be
// stale while a parse is pending.
func (e *ProjectEntry) TreeAndCookie() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *ProjectEntry) snapshotLocked() Snapshot {
	return Snapshot{Tree: e.tree, Cookie: e.cookie, Version: e.version}
}

// Version returns the number of trees published so far.
func (e *ProjectEntry) Version() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version
}

// WaitForCurrentTree returns the current snapshot once no parse is pending.
// A negative timeout waits until the gate opens or ctx is done. On timeout
// or cancellation the last published snapshot is returned together with
// ErrWaitTimeout or the context error. While waiting, a warning is logged at
// the workspace's stuck-pending interval.
func (e *ProjectEntry) WaitForCurrentTree(ctx context.Context, timeout time.Duration) (Snapshot, error) {
	e.mu.Lock()
	if e.pending == 0 {
		snap := e.snapshotLocked()
		e.mu.Unlock()
		return snap, nil
	}
	gate := e.gate
	e.mu.Unlock()

	var expired <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	var stuck <-chan time.Time
	if e.ws.stuckWarning > 0 {
		tk := time.NewTicker(e.ws.stuckWarning)
		defer tk.Stop()
		stuck = tk.C
	}

	start := time.Now()
	for {
		select {
		case <-gate:
			return e.TreeAndCookie(), nil
		case <-expired:
			return e.TreeAndCookie(), ErrWaitTimeout
		case <-ctx.Done():
			return e.TreeAndCookie(), ctx.Err()
		case <-stuck:
			e.ws.logger.Warn("parse still pending",
				"path", e.path, "waited", time.Since(start).Round(time.Millisecond))
		}
	}
}

// OnNewParseTree registers fn to run after every tree publication. The
// returned func unregisters it. Observers run synchronously and must not
// publish to the same entry.
func (e *ProjectEntry) OnNewParseTree(fn func(Snapshot)) (unsubscribe func()) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	id := e.nextObs
	e.nextObs++
	e.parseObs[id] = fn
	return func() {
		e.obsMu.Lock()
		delete(e.parseObs, id)
		e.obsMu.Unlock()
	}
}

// OnNewAnalysis registers fn to run when analysis of a version completes.
// For any version it runs after the OnNewParseTree observers of that
// version.
func (e *ProjectEntry) OnNewAnalysis(fn func(version int64)) (unsubscribe func()) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	id := e.nextObs
	e.nextObs++
	e.analysisObs[id] = fn
	return func() {
		e.obsMu.Lock()
		delete(e.analysisObs, id)
		e.obsMu.Unlock()
	}
}

func (e *ProjectEntry) notifyParse(snap Snapshot) {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()
	if snap.Version <= e.parseNotified {
		return
	}
	for _, fn := range observers(e, e.parseObs) {
		fn(snap)
	}
	e.parseNotified = snap.Version

	remaining := e.queuedAnalysis[:0]
	for _, v := range e.queuedAnalysis {
		if v > e.parseNotified {
			remaining = append(remaining, v)
			continue
		}
		e.fireAnalysisLocked(v)
	}
	e.queuedAnalysis = remaining
}

// NotifyAnalysis reports that analysis of version has completed. If the
// parse notification for that version has not fired yet, the analysis
// notification is held until it has.
func (e *ProjectEntry) NotifyAnalysis(version int64) {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()
	if version > e.parseNotified {
		e.queuedAnalysis = append(e.queuedAnalysis, version)
		return
	}
	e.fireAnalysisLocked(version)
}

func (e *ProjectEntry) fireAnalysisLocked(version int64) {
	for _, fn := range observers(e, e.analysisObs) {
		fn(version)
	}
}

// observers snapshots a registry in registration order.
func observers[F any](e *ProjectEntry, m map[int]F) []F {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	ids := slices.Sorted(maps.Keys(m))
	fns := make([]F, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m[id])
	}
	return fns
}

// SetProperty attaches a value for collaborators. Properties are dropped
// when the entry is removed.
func (e *ProjectEntry) SetProperty(key string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return ErrEntryRemoved
	}
	e.props[key] = value
	return nil
}

// Property returns the value stored under key.
func (e *ProjectEntry) Property(key string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.props[key]
	return v, ok
}

// DeleteProperty removes key.
func (e *ProjectEntry) DeleteProperty(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.props, key)
}

// IsOpen reports whether an editor buffer backs the entry.
func (e *ProjectEntry) IsOpen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open
}

// IsAnalyzed reports whether analysis has completed at least once.
func (e *ProjectEntry) IsAnalyzed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.analyzed
}

// IsErrorChecked reports whether diagnostics were collected for the
// current version.
func (e *ProjectEntry) IsErrorChecked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errorChecked
}

// SetPreventErrorCheck stops analysis from collecting diagnostics.
func (e *ProjectEntry) SetPreventErrorCheck(prevent bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.preventErrorCheck = prevent
	if prevent {
		e.errorChecked = false
		e.diagnostics = nil
	}
}

// PreventErrorCheck reports whether diagnostics collection is suppressed.
func (e *ProjectEntry) PreventErrorCheck() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.preventErrorCheck
}

// IsCircular returns the verdict of the last DetectCircularImports.
func (e *ProjectEntry) IsCircular() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.circular
}

// Cycle returns the import cycle found by the last DetectCircularImports,
// starting and ending with the same path, or nil.
func (e *ProjectEntry) Cycle() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.cycle)
}

// Diagnostics returns the problems reported while parsing the current
// version.
func (e *ProjectEntry) Diagnostics() []Diagnostic {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.diagnostics)
}

// Unresolved returns the import and include names the last reconcile
// could not resolve.
func (e *ProjectEntry) Unresolved() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.unresolved)
}

// Imports returns import name -> resolved module path.
func (e *ProjectEntry) Imports() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]string, len(e.imports))
	for name, edge := range e.imports {
		out[name] = edge.module
	}
	return out
}

// Includes returns include name -> resolved file path.
func (e *ProjectEntry) Includes() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.includes)
}

// IncludedBy returns the paths of entries including this one.
func (e *ProjectEntry) IncludedBy() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Sorted(maps.Keys(e.includedBy))
}

// ImportedBy returns the paths of entries importing this one.
func (e *ProjectEntry) ImportedBy() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Sorted(maps.Keys(e.importedBy))
}

// UpdateIncludesAndImports reconciles the graph with tree's statements:
// edges for new statements are added, edges for statements that are gone
// or now resolve elsewhere are removed. Names that do not resolve leave no
// edge. It returns the entries the file now imports or includes.
func (e *ProjectEntry) UpdateIncludesAndImports(tree Tree) []*ProjectEntry {
	g := e.Graph()
	if g == nil || tree == nil {
		return nil
	}
	res := e.ws.resolver

	var unresolved []string
	wantImports := make(map[string]string)
	for _, imp := range tree.Imports() {
		if imp.Kind != importFGL {
			continue
		}
		if _, seen := wantImports[imp.Name]; seen {
			continue
		}
		p, ok := res.ResolveImport(imp.Name, e.path)
		if !ok {
			wantImports[imp.Name] = ""
			unresolved = append(unresolved, imp.Name)
			continue
		}
		wantImports[imp.Name] = mustNormalize(p)
	}

	wantIncludes := make(map[string]string)
	for _, inc := range tree.Includes() {
		if _, seen := wantIncludes[inc.Name]; seen {
			continue
		}
		p, ok := res.ResolveInclude(inc.Name, e.path)
		if !ok {
			wantIncludes[inc.Name] = ""
			unresolved = append(unresolved, inc.Name)
			continue
		}
		wantIncludes[inc.Name] = mustNormalize(p)
	}

	for name, edge := range e.importEdges() {
		if wantImports[name] != edge.module {
			g.RemoveImportedModule(name, e)
		}
	}
	for name, target := range e.includeEdges() {
		if wantIncludes[name] != target {
			e.ws.unlinkInclude(e, name)
		}
	}

	seen := make(map[string]bool)
	var referenced []*ProjectEntry
	add := func(ref *ProjectEntry) {
		if ref != nil && !seen[ref.path] {
			seen[ref.path] = true
			referenced = append(referenced, ref)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(wantImports)) {
		if module := wantImports[name]; module != "" {
			_, mod := g.addImport(name, module, e)
			add(mod)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(wantIncludes)) {
		if target := wantIncludes[name]; target != "" {
			add(e.ws.linkInclude(e, name, target))
		}
	}

	slices.Sort(unresolved)
	e.mu.Lock()
	e.unresolved = unresolved
	e.mu.Unlock()

	slices.SortFunc(referenced, func(a, b *ProjectEntry) int { return cmp.Compare(a.path, b.path) })
	return referenced
}

// DetectCircularImports runs the cycle detector from this entry, records
// the verdict and returns it.
func (e *ProjectEntry) DetectCircularImports() bool {
	cycle := NewCircularImportDetector(e.ws).Detect(e)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.circular = cycle != nil
	e.cycle = cycle
	return e.circular
}

func (e *ProjectEntry) importEdges() map[string]importEdge {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.imports)
}

func (e *ProjectEntry) includeEdges() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.includes)
}

func (e *ProjectEntry) importEdge(name string) (importEdge, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	edge, ok := e.imports[name]
	return edge, ok
}

func (e *ProjectEntry) setImport(name string, edge importEdge) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.removed {
		e.imports[name] = edge
	}
}

func (e *ProjectEntry) takeImport(name string) (importEdge, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	edge, ok := e.imports[name]
	delete(e.imports, name)
	return edge, ok
}

func (e *ProjectEntry) setInclude(name, target string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.removed {
		e.includes[name] = target
	}
}

func (e *ProjectEntry) takeInclude(name string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	target, ok := e.includes[name]
	delete(e.includes, name)
	return target, ok
}

func addRef(m map[string]int, key string) { m[key]++ }

func dropRef(m map[string]int, key string) {
	if m[key] <= 1 {
		delete(m, key)
		return
	}
	m[key]--
}

func (e *ProjectEntry) addImportedBy(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	addRef(e.importedBy, path)
}

func (e *ProjectEntry) removeImportedBy(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	dropRef(e.importedBy, path)
}

func (e *ProjectEntry) addIncludedBy(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	addRef(e.includedBy, path)
}

func (e *ProjectEntry) removeIncludedBy(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	dropRef(e.includedBy, path)
}

func (e *ProjectEntry) setOpen(open bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.open = open
}

func (e *ProjectEntry) setRooted(rooted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rooted = rooted
}

func (e *ProjectEntry) setGraphRoot(root string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.graphRoot = root
}

func (e *ProjectEntry) root() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graphRoot
}

func (e *ProjectEntry) markRemoved() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removed = true
}

func (e *ProjectEntry) isRemoved() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removed
}

// markAnalyzed records the outcome of an analysis run.
func (e *ProjectEntry) markAnalyzed(diags []Diagnostic, langVersion string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.analyzed = true
	e.langVersion = langVersion
	if e.preventErrorCheck {
		e.diagnostics = nil
		e.errorChecked = false
		return
	}
	e.diagnostics = diags
	e.errorChecked = true
}

func (e *ProjectEntry) languageVersion() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.langVersion
}

// references returns the importer and includer paths, for the lazy
// liveness check done before releasing the entry.
func (e *ProjectEntry) references() (keep bool, refs []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed || e.open || e.rooted {
		return true, nil
	}
	for p := range e.importedBy {
		refs = append(refs, p)
	}
	for p := range e.includedBy {
		refs = append(refs, p)
	}
	return false, refs
}

func (e *ProjectEntry) pruneReference(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.importedBy, path)
	delete(e.includedBy, path)
}

// dispose marks the entry removed, drops its properties and hands back
// its outgoing edges so the caller can unlink them.
func (e *ProjectEntry) dispose() (map[string]importEdge, map[string]string, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removed = true
	e.props = make(map[string]any)
	imports, includes := e.imports, e.includes
	e.imports = make(map[string]importEdge)
	e.includes = make(map[string]string)
	return imports, includes, e.graphRoot
}
