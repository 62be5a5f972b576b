// Package sqlcheck validates SQL statements with tree-sitter's SQL grammar.
package sqlcheck

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/sql"

	"github.com/jward/fglscope/internal/sqlextract"
)

// DefaultCacheSize bounds the number of remembered validation results.
const DefaultCacheSize = 1024

// forUpdateRe matches the cursor clause closing a SELECT, which the SQL
// grammar does not know.
var forUpdateRe = regexp.MustCompile(`(?i)\s+for\s+update(\s+of\s+[a-z_][\w.]*(\s*,\s*[a-z_][\w.]*)*)?[\s;]*$`)

// withoutForUpdate strips a trailing FOR UPDATE [OF cols] from a SELECT.
func withoutForUpdate(stmt string) string {
	trimmed := strings.TrimSpace(stmt)
	if len(trimmed) < 6 || !strings.EqualFold(trimmed[:6], "select") {
		return stmt
	}
	return forUpdateRe.ReplaceAllString(stmt, "")
}

// Checker implements sqlextract.SyntaxChecker. A fresh tree-sitter parser is
// created per validation, so a Checker is safe for concurrent use.
type Checker struct {
	lang        *sitter.Language
	placeholder string
	cacheSize   int
	cache       *lru.Cache[string, []sqlextract.SyntaxError]
}

var _ sqlextract.SyntaxChecker = (*Checker)(nil)

// Option configures a Checker.
type Option func(*Checker)

// WithPlaceholder sets the token Render turns back into `?`.
func WithPlaceholder(token string) Option {
	return func(c *Checker) {
		if token != "" {
			c.placeholder = token
		}
	}
}

// WithCacheSize sets the LRU size. Zero or negative disables caching.
func WithCacheSize(n int) Option {
	return func(c *Checker) {
		c.cacheSize = n
	}
}

// New creates a Checker.
func New(opts ...Option) (*Checker, error) {
	c := &Checker{
		lang:        sql.GetLanguage(),
		placeholder: sqlextract.DefaultPlaceholder,
		cacheSize:   DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cacheSize > 0 {
		cache, err := lru.New[string, []sqlextract.SyntaxError](c.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("sqlcheck: create cache: %w", err)
		}
		c.cache = cache
	}
	return c, nil
}

// Validate parses stmt and returns every ERROR or MISSING node as a
// SyntaxError. A trailing FOR UPDATE clause on a SELECT is accepted. A
// parser failure (cancellation included) is reported as a single error so
// the caller treats the statement as invalid.
func (c *Checker) Validate(ctx context.Context, stmt string) []sqlextract.SyntaxError {
	if c.cache != nil {
		if errs, ok := c.cache.Get(stmt); ok {
			return errs
		}
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(c.lang)

	src := []byte(withoutForUpdate(stmt))
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return []sqlextract.SyntaxError{{Message: fmt.Sprintf("parse failed: %v", err), Line: 1, Column: 1}}
	}
	defer tree.Close()

	root := tree.RootNode()
	var errs []sqlextract.SyntaxError
	if root.HasError() {
		collectErrors(root, src, &errs)
		if len(errs) == 0 {
			errs = append(errs, sqlextract.SyntaxError{Message: "syntax error", Line: 1, Column: 1})
		}
	}

	if c.cache != nil {
		c.cache.Add(stmt, errs)
	}
	return errs
}

func collectErrors(n *sitter.Node, src []byte, errs *[]sqlextract.SyntaxError) {
	pt := n.StartPoint()
	switch {
	case n.IsMissing():
		*errs = append(*errs, sqlextract.SyntaxError{
			Message: fmt.Sprintf("missing %s", n.Type()),
			Line:    int(pt.Row) + 1,
			Column:  int(pt.Column) + 1,
		})
		return
	case n.Type() == "ERROR":
		*errs = append(*errs, sqlextract.SyntaxError{
			Message: fmt.Sprintf("unexpected %q", truncate(n.Content(src), 32)),
			Line:    int(pt.Row) + 1,
			Column:  int(pt.Column) + 1,
		})
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child != nil && (child.HasError() || child.IsMissing()) {
			collectErrors(child, src, errs)
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Render restores `?` markers and drops trailing semicolons and whitespace.
func (c *Checker) Render(stmt string) string {
	stmt = strings.ReplaceAll(stmt, c.placeholder, "?")
	return strings.TrimRight(strings.TrimSpace(stmt), "; \t\n")
}
