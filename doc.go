// Package fglscope is a language-analysis core for Genero-style 4GL
// sources. It keeps a graph of project directories and their files, each
// file holding a versioned parse tree, and answers questions about imports,
// includes, import cycles and embedded SQL.
//
// # Model
//
// A [Workspace] owns one [ProjectGraph] per project directory. A graph owns
// the [ProjectEntry] values for the files in that directory and links to
// the graphs its files import from. Graphs and entries refer to each other
// by normalized path, never by owning pointer, and an entry is released as
// soon as it is neither open in an editor, explicitly indexed, nor imported
// or included by a live entry.
//
// # Tree publication
//
// Parsing happens outside the entry. A caller announces a parse with
// [ProjectEntry.BeginParsingTree] and publishes the result with
// [ProjectEntry.UpdateTree], which swaps the tree, its [SourceCookie] and
// the version together. [ProjectEntry.WaitForCurrentTree] blocks while a
// parse is pending; [ProjectEntry.TreeAndCookie] never blocks and may be
// stale. A failed parse calls [ProjectEntry.CancelParsingTree] so waiters
// are released with the previous tree.
//
// # Usage
//
//	e, err := fglscope.New(
//		fglscope.WithDatabase(".fglscope/index.db"),
//		fglscope.WithSearchPaths("/opt/fgl/lib"),
//	)
//	if err != nil { ... }
//	defer e.Close()
//
//	err = e.IndexDirectory(ctx, "path/to/project")
//	frags, err := e.ExtractSQL(ctx, "path/to/project/orders.4gl")
//
//	q := e.Query()
//	deps, err := q.Dependents("path/to/project/util.4gl", true)
//
// Files that import each other are flagged rather than rejected; see
// [ProjectEntry.DetectCircularImports] and [QueryBuilder.CircularFiles].
package fglscope
