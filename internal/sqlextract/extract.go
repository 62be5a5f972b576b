// Package sqlextract locates SQL statements embedded in 4GL source text.
//
// Statements appear either as bare SQL (static statements) or as string
// literals handed to PREPARE / DECLARE, often built across several lines by
// concatenating literals with commas. The extractor is a heuristic: it finds
// statement keywords, isolates the text up to the next keyword, fuses
// concatenated literals, and then asks a SyntaxChecker to confirm the
// statement, trimming trailing lines until the checker accepts it or nothing
// is left. Malformed input is never an error; unparseable candidates are
// skipped.
package sqlextract

import (
	"context"
	"fmt"
	"iter"
	"regexp"
	"strings"
)

// DefaultPlaceholder replaces `?` parameter markers before validation.
const DefaultPlaceholder = "FGL_SQL_PARAM"

// SyntaxError is one problem reported by a SyntaxChecker. Line and Column are
// 1-based positions inside the checked statement.
type SyntaxError struct {
	Message string
	Line    int
	Column  int
}

func (e SyntaxError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}

// SyntaxChecker validates candidate statements. An empty result means the
// statement parsed. Render turns an accepted statement back into the text
// handed to callers (placeholders restored, trailing semicolons removed).
type SyntaxChecker interface {
	Validate(ctx context.Context, stmt string) []SyntaxError
	Render(stmt string) string
}

// Fragment is one validated SQL statement. Start and End are byte offsets
// into the normalized input (line endings folded to \n, placeholders
// substituted); Line is the 1-based line of Start.
type Fragment struct {
	Text    string
	Start   int
	End     int
	Line    int
	Dynamic bool
}

var startRe = regexp.MustCompile(`(?i)("?)\b(select|delete|insert|update)\b`)

// Extractor finds SQL fragments. It holds no per-scan state and is safe for
// concurrent use when its SyntaxChecker is.
type Extractor struct {
	checker     SyntaxChecker
	placeholder string
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithPlaceholder sets the token substituted for `?` markers. It must match
// the token the SyntaxChecker restores in Render.
func WithPlaceholder(token string) Option {
	return func(x *Extractor) {
		if token != "" {
			x.placeholder = token
		}
	}
}

// New creates an Extractor validating candidates with checker.
func New(checker SyntaxChecker, opts ...Option) *Extractor {
	x := &Extractor{checker: checker, placeholder: DefaultPlaceholder}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Normalize folds line endings to \n and replaces `?` markers with the
// configured placeholder. Fragment offsets refer to this text.
func (x *Extractor) Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.ReplaceAll(text, "?", x.placeholder)
}

// Extract drains a Scan over text. When ctx is cancelled it returns the
// fragments found so far together with the context error.
func (x *Extractor) Extract(ctx context.Context, text string) ([]Fragment, error) {
	s := x.Scan(ctx, text)
	var out []Fragment
	for f := range s.All() {
		out = append(out, f)
	}
	return out, s.Err()
}

type start struct {
	pos    int
	quoted bool
}

// Scan is a single pass over one text. It is not restartable: fragments
// consumed through Next or All are gone.
type Scan struct {
	ctx    context.Context
	x      *Extractor
	text   string
	starts []start
	next   int
	err    error

	linePos int
	line    int
}

// Scan normalizes text and locates statement starts. Validation happens
// lazily as fragments are pulled.
func (x *Extractor) Scan(ctx context.Context, text string) *Scan {
	norm := x.Normalize(text)
	s := &Scan{ctx: ctx, x: x, text: norm, line: 1}
	for _, m := range startRe.FindAllStringSubmatchIndex(norm, -1) {
		kw := strings.ToLower(norm[m[4]:m[5]])
		if kw == "update" && followsFor(norm[:m[0]]) {
			continue
		}
		s.starts = append(s.starts, start{pos: m[0], quoted: m[3] > m[2]})
	}
	return s
}

// followsFor reports whether prefix ends with the word "for" plus whitespace,
// as in a cursor's FOR UPDATE clause.
func followsFor(prefix string) bool {
	t := strings.TrimRight(prefix, " \t\n")
	if len(t) == len(prefix) || len(t) < 3 {
		return false
	}
	if !strings.EqualFold(t[len(t)-3:], "for") {
		return false
	}
	return len(t) == 3 || !isWordByte(t[len(t)-4])
}

func isWordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// Next returns the next validated fragment in source order. Cancellation is
// observed between candidates only.
func (s *Scan) Next() (Fragment, bool) {
	for s.next < len(s.starts) {
		if err := s.ctx.Err(); err != nil {
			s.err = err
			s.next = len(s.starts)
			return Fragment{}, false
		}
		i := s.next
		s.next++
		end := len(s.text)
		if i+1 < len(s.starts) {
			end = s.starts[i+1].pos
		}
		if f, ok := s.candidate(s.starts[i], end); ok {
			return f, true
		}
	}
	return Fragment{}, false
}

// All yields the remaining fragments.
func (s *Scan) All() iter.Seq[Fragment] {
	return func(yield func(Fragment) bool) {
		for {
			f, ok := s.Next()
			if !ok || !yield(f) {
				return
			}
		}
	}
}

// Err returns the context error that stopped the scan, if any.
func (s *Scan) Err() error {
	return s.err
}

func (s *Scan) candidate(st start, end int) (Fragment, bool) {
	var p piece
	if st.quoted {
		p = fuse(s.text[st.pos+1:end], st.pos+1)
	} else {
		p = piece{text: s.text[st.pos:end], base: st.pos}
	}

	body := p.text
	n := len(body)
	for n > 0 {
		var stmt string
		if st.quoted {
			m, ok := closeQuote(body[:n])
			if !ok {
				return Fragment{}, false
			}
			n = m
			stmt = body[:n-1]
		} else {
			stmt = strings.TrimRight(body[:n], " \t\n")
			n = len(stmt)
		}
		if strings.TrimSpace(stmt) != "" && len(s.x.checker.Validate(s.ctx, stmt)) == 0 {
			return Fragment{
				Text:    s.x.checker.Render(stmt),
				Start:   st.pos,
				End:     p.offset(n-1) + 1,
				Line:    s.lineAt(st.pos),
				Dynamic: st.quoted,
			}, true
		}
		nl := strings.LastIndexByte(body[:n], '\n')
		if nl < 0 {
			return Fragment{}, false
		}
		n = nl
	}
	return Fragment{}, false
}

// lineAt counts lines up to pos. Starts are visited in increasing order so
// the count is carried forward.
func (s *Scan) lineAt(pos int) int {
	if pos < s.linePos {
		s.linePos, s.line = 0, 1
	}
	s.line += strings.Count(s.text[s.linePos:pos], "\n")
	s.linePos = pos
	return s.line
}

// closeQuote trims text back one line at a time until it ends with a closing
// quote, returning the length up to and including that quote.
func closeQuote(text string) (int, bool) {
	for {
		t := strings.TrimRight(text, " \t\n")
		if strings.HasSuffix(t, `"`) {
			return len(t), true
		}
		nl := strings.LastIndexByte(t, '\n')
		if nl < 0 {
			return 0, false
		}
		text = t[:nl]
	}
}
