package fglscope

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	goruntime "runtime"
	"sort"
	"strings"
	"time"

	"github.com/jward/fglscope/internal/resolve"
	"github.com/jward/fglscope/internal/runtime"
	"github.com/jward/fglscope/internal/sqlcheck"
	"github.com/jward/fglscope/internal/sqlextract"
	"github.com/jward/fglscope/internal/store"
)

// Engine is an analysis session: it owns a Workspace, drives the parser over
// editor buffers and files on disk, keeps the import graph reconciled and
// persists results to the index.
type Engine struct {
	ws        *Workspace
	parser    Parser
	store     *Store
	ownsStore bool
	dbPath    string
	logger    *slog.Logger

	resolver        FileResolver
	searchPaths     []string
	languageVersion string
	resolverScript  string

	workers      int
	stuckWarning time.Duration
	waitTimeout  time.Duration

	checker      SyntaxChecker
	placeholder  string
	sqlCacheSize int
	extractor    *sqlextract.Extractor
}

// Option configures an Engine.
type Option func(*Engine)

// WithParser replaces the built-in statement scanner.
func WithParser(p Parser) Option {
	return func(e *Engine) { e.parser = p }
}

// WithResolver replaces the default search-path resolver.
func WithResolver(r FileResolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// WithSearchPaths adds directories searched for imports and includes after
// the importing file's own directory. Ignored when WithResolver is set.
func WithSearchPaths(paths ...string) Option {
	return func(e *Engine) { e.searchPaths = append(e.searchPaths, paths...) }
}

// WithLanguageVersion sets the default language version reported for
// files. Ignored when WithResolver is set.
func WithLanguageVersion(v string) Option {
	return func(e *Engine) { e.languageVersion = v }
}

// WithResolverScript layers the Risor script at path over the search-path
// resolver. Ignored when WithResolver is set.
func WithResolverScript(path string) Option {
	return func(e *Engine) { e.resolverScript = path }
}

// WithStore persists analysis results to s. The caller keeps ownership.
func WithStore(s *Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithDatabase opens (creating if needed) the SQLite index at path. The
// Engine closes it on Close.
func WithDatabase(path string) Option {
	return func(e *Engine) { e.dbPath = path }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithWorkers bounds parallel analysis in IndexFiles and IndexDirectory.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// WithStuckPendingWarning sets how often a waiter logs while a parse stays
// pending. Zero disables the warning.
func WithStuckPendingWarning(d time.Duration) Option {
	return func(e *Engine) { e.stuckWarning = d }
}

// WithWaitTimeout bounds how long ExtractSQL waits for a pending parse
// before falling back to the last published text. Negative waits forever.
func WithWaitTimeout(d time.Duration) Option {
	return func(e *Engine) { e.waitTimeout = d }
}

// WithSQLChecker replaces the tree-sitter SQL checker.
func WithSQLChecker(c SyntaxChecker) Option {
	return func(e *Engine) { e.checker = c }
}

// WithPlaceholder sets the token substituted for `?` markers during SQL
// extraction.
func WithPlaceholder(token string) Option {
	return func(e *Engine) { e.placeholder = token }
}

// WithSQLCacheSize sets the size of the SQL validation cache.
func WithSQLCacheSize(n int) Option {
	return func(e *Engine) { e.sqlCacheSize = n }
}

// New creates an Engine. Without options it parses with the built-in
// scanner, resolves imports next to the importing file only, and keeps no
// index.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		parser:       fglParser{},
		logger:       slog.Default(),
		workers:      goruntime.NumCPU(),
		stuckWarning: 10 * time.Second,
		waitTimeout:  5 * time.Second,
		placeholder:  sqlextract.DefaultPlaceholder,
		sqlCacheSize: sqlcheck.DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers < 1 {
		e.workers = 1
	}
	if e.resolver == nil {
		r, err := e.defaultResolver()
		if err != nil {
			return nil, err
		}
		e.resolver = r
	}
	if e.checker == nil {
		c, err := sqlcheck.New(sqlcheck.WithPlaceholder(e.placeholder), sqlcheck.WithCacheSize(e.sqlCacheSize))
		if err != nil {
			return nil, fmt.Errorf("fglscope: %w", err)
		}
		e.checker = c
	}
	e.extractor = sqlextract.New(e.checker, sqlextract.WithPlaceholder(e.placeholder))

	if e.store == nil && e.dbPath != "" {
		s, err := OpenStore(e.dbPath)
		if err != nil {
			return nil, err
		}
		e.store = s
		e.ownsStore = true
	}

	e.ws = NewWorkspace(e.resolver,
		WithWorkspaceLogger(e.logger),
		WithWorkspaceStuckWarning(e.stuckWarning),
	)
	return e, nil
}

func (e *Engine) defaultResolver() (FileResolver, error) {
	base := resolve.New(e.searchPaths, resolve.WithLanguageVersion(e.languageVersion))
	if e.resolverScript == "" {
		return base, nil
	}
	rt := runtime.NewRuntime(filepath.Dir(e.resolverScript), runtime.WithRuntimeLogger(e.logger))
	sr, err := runtime.NewScriptResolver(rt, filepath.Base(e.resolverScript), base)
	if err != nil {
		return nil, fmt.Errorf("fglscope: resolver script: %w", err)
	}
	return sr, nil
}

// Close releases the index if the Engine opened it.
func (e *Engine) Close() error {
	if e.ownsStore && e.store != nil {
		return e.store.Close()
	}
	return nil
}

// Workspace returns the graph registry.
func (e *Engine) Workspace() *Workspace { return e.ws }

// Store returns the index, or nil when running without one.
func (e *Engine) Store() *Store { return e.store }

// Entry returns the live entry for path.
func (e *Engine) Entry(path string) (*ProjectEntry, bool) { return e.ws.Entry(path) }

// Query returns a QueryBuilder over the index.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{store: e.store}
}

// AvailableImports lists module names the file at path could import.
func (e *Engine) AvailableImports(path string) []string {
	return e.resolver.AvailableImports(mustNormalize(path))
}

// Open records an editor buffer for path and analyzes text. Calling Open
// again with new text reanalyzes the buffer.
func (e *Engine) Open(ctx context.Context, path, text string) (*ProjectEntry, error) {
	entry, err := e.ws.EntryFor(path)
	if err != nil {
		return nil, err
	}
	entry.setOpen(true)
	if err := e.Analyze(ctx, entry, text); err != nil {
		return entry, err
	}
	return entry, nil
}

// CloseFile drops the editor buffer for path. The entry stays while it was
// indexed from disk or another entry references it.
func (e *Engine) CloseFile(path string) {
	entry, ok := e.ws.Entry(path)
	if !ok {
		return
	}
	entry.setOpen(false)
	e.ws.releaseIfUnused(entry)
}

// AnalyzeFile analyzes the file at path from disk and marks it explicitly
// indexed. An open buffer takes precedence over the disk copy, and a file
// whose content hash matches the last analysis is not republished.
func (e *Engine) AnalyzeFile(ctx context.Context, path string) (*ProjectEntry, error) {
	entry, err := e.ws.EntryFor(path)
	if err != nil {
		return nil, err
	}
	entry.setRooted(true)
	if entry.IsOpen() {
		return entry, nil
	}
	content, err := os.ReadFile(entry.path)
	if err != nil {
		return entry, fmt.Errorf("fglscope: read %s: %w", entry.path, err)
	}
	text := string(content)
	if entry.IsAnalyzed() {
		if snap := entry.TreeAndCookie(); snap.Cookie != nil && snap.Cookie.Hash() == NewSourceCookie(text).Hash() {
			e.logger.Debug("unchanged", "path", entry.path)
			return entry, nil
		}
	}
	return entry, e.Analyze(ctx, entry, text)
}

// Analyze parses text as the new content of entry, publishes the tree,
// reconciles imports and includes, analyzes referenced modules that have
// not been analyzed yet, flags import cycles, persists the result and
// notifies OnNewAnalysis observers.
func (e *Engine) Analyze(ctx context.Context, entry *ProjectEntry, text string) error {
	entry.analyzeMu.Lock()
	defer entry.analyzeMu.Unlock()
	return e.analyze(ctx, entry, text, map[string]bool{})
}

func (e *Engine) analyze(ctx context.Context, entry *ProjectEntry, text string, seen map[string]bool) error {
	if entry.isRemoved() {
		return ErrEntryRemoved
	}
	seen[entry.path] = true
	lang := e.resolver.LanguageVersion(entry.path)
	cookie := NewSourceCookie(text)
	sink := &diagnosticSink{}

	entry.BeginParsingTree()
	tree, err := e.parser.Parse(ctx, strings.NewReader(text), ParseOptions{
		Filename:        entry.path,
		LanguageVersion: lang,
		Errors:          sink,
	})
	if err != nil {
		entry.CancelParsingTree()
		return fmt.Errorf("fglscope: parse %s: %w", entry.path, err)
	}
	version := entry.UpdateTree(tree, cookie)

	for _, ref := range entry.UpdateIncludesAndImports(tree) {
		if ref.IsAnalyzed() || seen[ref.path] {
			continue
		}
		if err := e.analyzeReferenced(ctx, ref, seen); err != nil {
			e.logger.Debug("referenced file not analyzed", "path", ref.path, "error", err)
		}
	}
	circular := entry.DetectCircularImports()
	entry.markAnalyzed(sink.diagnostics, lang)
	if circular {
		e.logger.Warn("circular import", "path", entry.path, "cycle", strings.Join(entry.Cycle(), " -> "))
		e.refreshCycle(entry.Cycle())
	}

	if err := e.persist(entry); err != nil {
		e.logger.Error("persist analysis", "path", entry.path, "error", err)
	}
	entry.NotifyAnalysis(version)
	e.logger.Debug("analyzed", "path", entry.path, "version", version, "diagnostics", len(sink.diagnostics))
	return nil
}

// analyzeReferenced analyzes a module reached through an import or
// include. It skips entries whose analysis is already running elsewhere.
func (e *Engine) analyzeReferenced(ctx context.Context, ref *ProjectEntry, seen map[string]bool) error {
	if !ref.analyzeMu.TryLock() {
		return nil
	}
	defer ref.analyzeMu.Unlock()
	if ref.IsAnalyzed() {
		return nil
	}
	text := ""
	if snap := ref.TreeAndCookie(); ref.IsOpen() && snap.Cookie != nil {
		text = snap.Cookie.Text()
	} else {
		content, err := os.ReadFile(ref.path)
		if err != nil {
			return err
		}
		text = string(content)
	}
	return e.analyze(ctx, ref, text, seen)
}

// refreshCycle re-runs detection on the other members of a cycle so their
// flags agree with the entry that found it.
func (e *Engine) refreshCycle(cycle []string) {
	for _, p := range cycle {
		member := e.ws.lookup(p)
		if member == nil || member.IsCircular() {
			continue
		}
		member.DetectCircularImports()
		if e.store != nil {
			if err := e.store.SetCircular(member.path, member.IsCircular()); err != nil {
				e.logger.Debug("set circular", "path", member.path, "error", err)
			}
		}
	}
}

// relink reconciles entry's edges against its current tree without
// reparsing, for when resolution results may have changed. It waits for
// any analysis of entry in progress.
func (e *Engine) relink(entry *ProjectEntry) {
	entry.analyzeMu.Lock()
	defer entry.analyzeMu.Unlock()
	if entry.isRemoved() {
		return
	}
	snap := entry.TreeAndCookie()
	if snap.Tree == nil {
		return
	}
	entry.UpdateIncludesAndImports(snap.Tree)
	entry.DetectCircularImports()
	if err := e.persist(entry); err != nil {
		e.logger.Error("persist relink", "path", entry.path, "error", err)
	}
}

// ResolutionChanged reports that path appeared, changed or disappeared in
// a way that may change how names resolve. Entries that reference path,
// or that have unresolved names, are relinked.
func (e *Engine) ResolutionChanged(path string) {
	p := mustNormalize(path)
	for _, entry := range e.ws.Entries() {
		if !entry.IsAnalyzed() || entry.path == p {
			continue
		}
		if references(entry, p) || len(entry.Unresolved()) > 0 {
			e.logger.Debug("relinking", "path", entry.path, "changed", p)
			e.relink(entry)
		}
	}
}

func references(entry *ProjectEntry, path string) bool {
	for _, m := range entry.Imports() {
		if m == path {
			return true
		}
	}
	for _, inc := range entry.Includes() {
		if inc == path {
			return true
		}
	}
	return false
}

// Forget drops path from the workspace and the index, as when the file is
// deleted on disk, then relinks entries that referenced it.
func (e *Engine) Forget(path string) error {
	p := mustNormalize(path)
	if entry, ok := e.ws.Entry(p); ok {
		entry.setRooted(false)
		if !entry.IsOpen() {
			e.ws.RemoveEntry(p)
		}
	}
	if e.store != nil {
		if err := e.store.DeleteFile(p); err != nil {
			return fmt.Errorf("fglscope: forget %s: %w", p, err)
		}
	}
	e.ResolutionChanged(p)
	return nil
}

// ExtractSQL returns the SQL statements embedded in the file at path,
// analyzing it first if needed, and records them in the index. It waits
// for a pending parse up to the configured timeout and otherwise uses the
// last published text.
func (e *Engine) ExtractSQL(ctx context.Context, path string) ([]Fragment, error) {
	entry, ok := e.ws.Entry(path)
	if !ok || !entry.IsAnalyzed() {
		var err error
		if entry, err = e.AnalyzeFile(ctx, path); err != nil {
			return nil, err
		}
	}
	snap, err := entry.WaitForCurrentTree(ctx, e.waitTimeout)
	if errors.Is(err, ErrWaitTimeout) {
		e.logger.Warn("using stale text for SQL extraction", "path", entry.path, "version", snap.Version)
	} else if err != nil {
		return nil, err
	}
	if snap.Cookie == nil {
		return nil, fmt.Errorf("fglscope: extract sql %s: no text published", entry.path)
	}

	frags, err := e.extractor.Extract(ctx, snap.Cookie.Text())
	if err != nil {
		return frags, fmt.Errorf("fglscope: extract sql %s: %w", entry.path, err)
	}
	if e.store != nil {
		rows := make([]SQLFragment, 0, len(frags))
		for _, f := range frags {
			rows = append(rows, SQLFragment{Text: f.Text, StartOffset: f.Start, EndOffset: f.End, Line: f.Line, Dynamic: f.Dynamic})
		}
		if err := e.store.ReplaceSQLFragments(entry.path, rows); err != nil {
			return frags, fmt.Errorf("fglscope: extract sql %s: %w", entry.path, err)
		}
	}
	return frags, nil
}

// persist writes entry's current state to the index.
func (e *Engine) persist(entry *ProjectEntry) error {
	if e.store == nil {
		return nil
	}
	snap := entry.TreeAndCookie()
	if snap.Tree == nil {
		return nil
	}
	imports, includes := entry.Imports(), entry.Includes()
	var edges []Edge
	for _, imp := range snap.Tree.Imports() {
		if imp.Kind != importFGL {
			continue
		}
		edges = append(edges, Edge{Kind: store.EdgeImport, Name: imp.Name, ResolvedPath: imports[imp.Name], Line: imp.Line})
	}
	for _, inc := range snap.Tree.Includes() {
		edges = append(edges, Edge{Kind: store.EdgeInclude, Name: inc.Name, ResolvedPath: includes[inc.Name], Line: inc.Line})
	}

	return e.store.CommitAnalysis(&store.Analysis{
		File: &File{
			Path:            entry.path,
			ProjectRoot:     entry.root(),
			Hash:            snap.Cookie.HashString(),
			Version:         snap.Version,
			LineCount:       snap.Cookie.LineCount(),
			LanguageVersion: entry.languageVersion(),
			Circular:        entry.IsCircular(),
			LastAnalyzed:    time.Now(),
		},
		Edges:       edges,
		Diagnostics: entry.Diagnostics(),
	})
}

// diagnosticSink collects parser problems as index diagnostics.
type diagnosticSink struct {
	diagnostics []Diagnostic
}

func (s *diagnosticSink) Add(message string, lineOffsets []int, start, end int, code int, severity Severity) {
	line := sort.Search(len(lineOffsets), func(i int) bool { return lineOffsets[i] > start })
	s.diagnostics = append(s.diagnostics, Diagnostic{
		Code:        code,
		Severity:    severity.String(),
		Message:     message,
		Line:        max(line, 1),
		StartOffset: start,
		EndOffset:   end,
	})
}
