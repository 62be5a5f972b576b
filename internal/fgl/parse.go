package fgl

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
)

var (
	importRe  = regexp.MustCompile(`(?i)^\s*import(?:\s+(fgl|java))?(?:\s+([A-Za-z_][\w.]*))?\s*$`)
	globalsRe = regexp.MustCompile(`(?i)^\s*globals\s+(["'])(.*?)(["']?)\s*$`)
	includeRe = regexp.MustCompile(`(?i)^\s*&include\s+(["'])(.*?)(["']?)\s*$`)
	defRe     = regexp.MustCompile(`(?i)^\s*(?:(?:public|private)\s+)?(function|report)\s+([A-Za-z_]\w*)`)
	mainRe    = regexp.MustCompile(`(?i)^\s*main\b`)
	keywordRe = regexp.MustCompile(`(?i)^\s*(import|&include)\b`)
)

// Parse scans r and returns the module-level statements it contains.
// Diagnostics go to opts.Errors when set; only read failures and
// cancellation are returned as errors.
func Parse(ctx context.Context, r io.Reader, opts ParseOptions) (*Tree, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("fgl: read %s: %w", opts.Filename, err)
	}

	p := &parser{
		src:    src,
		sink:   opts.Errors,
		tree:   &Tree{Filename: opts.Filename},
		starts: lineStarts(src),
	}
	for i, start := range p.starts {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		end := len(src)
		if i+1 < len(p.starts) {
			end = p.starts[i+1]
		}
		line := strings.TrimRight(string(src[start:end]), "\r\n")
		p.line(i+1, start, line)
	}
	p.tree.LineCount = len(p.starts)
	return p.tree, nil
}

type parser struct {
	src     []byte
	sink    ErrorSink
	tree    *Tree
	starts  []int
	inBlock bool
}

func (p *parser) report(msg string, start, end, code int, sev Severity) {
	if p.sink != nil {
		p.sink.Add(msg, p.starts, start, end, code, sev)
	}
}

func (p *parser) line(num, offset int, raw string) {
	code, unterminated := p.stripComments(raw)
	if unterminated >= 0 {
		p.report("unterminated string literal", offset+unterminated, offset+len(raw), CodeUnterminatedString, SeverityError)
	}
	if strings.TrimSpace(code) == "" {
		return
	}

	if keywordRe.MatchString(code) {
		p.statement(num, offset, code)
		return
	}
	if m := globalsRe.FindStringSubmatch(code); m != nil {
		p.include(num, offset, code, m, true)
		return
	}
	if m := defRe.FindStringSubmatch(code); m != nil {
		p.tree.definitions = append(p.tree.definitions, Definition{
			Name: m[2],
			Kind: strings.ToLower(m[1]),
			Line: num,
		})
		return
	}
	if mainRe.MatchString(code) {
		p.tree.definitions = append(p.tree.definitions, Definition{Name: "main", Kind: "main", Line: num})
	}
}

func (p *parser) statement(num, offset int, code string) {
	end := offset + len(strings.TrimRight(code, " \t"))
	if m := includeRe.FindStringSubmatch(code); m != nil {
		p.include(num, offset, code, m, false)
		return
	}
	if strings.HasPrefix(strings.TrimSpace(code), "&") {
		p.report("malformed &include directive", offset, end, CodeMalformedInclude, SeverityError)
		return
	}

	m := importRe.FindStringSubmatch(code)
	if m == nil || m[2] == "" {
		p.report("malformed IMPORT statement: missing module name", offset, end, CodeMalformedImport, SeverityError)
		return
	}
	kind := ImportC
	switch strings.ToLower(m[1]) {
	case "fgl":
		kind = ImportFGL
	case "java":
		kind = ImportJava
	}
	if len(p.tree.definitions) > 0 {
		p.report("IMPORT must appear before the first program block", offset, end, CodeLateImport, SeverityWarning)
	}
	p.tree.imports = append(p.tree.imports, ImportStatement{Name: m[2], Kind: kind, Line: num})
}

func (p *parser) include(num, offset int, code string, m []string, globals bool) {
	if m[3] == "" || m[2] == "" {
		p.report("malformed include: expected a quoted file name", offset, offset+len(code), CodeMalformedInclude, SeverityError)
		return
	}
	p.tree.includes = append(p.tree.includes, IncludeStatement{Name: m[2], Line: num, Globals: globals})
}

// stripComments blanks out #, -- and { } comments while leaving string
// literals intact. It returns the column of an unterminated literal, or -1.
func (p *parser) stripComments(line string) (string, int) {
	b := []byte(line)
	var quote byte
	quoteAt := -1
	for i := 0; i < len(b); i++ {
		c := b[i]
		if p.inBlock {
			if c == '}' {
				p.inBlock = false
			}
			b[i] = ' '
			continue
		}
		if quote != 0 {
			if c == '\\' && i+1 < len(b) {
				i++
				continue
			}
			if c == quote {
				quote = 0
				quoteAt = -1
			}
			continue
		}
		switch {
		case c == '"' || c == '\'':
			quote = c
			quoteAt = i
		case c == '#', c == '-' && i+1 < len(b) && b[i+1] == '-':
			return string(bytes.TrimRight(b[:i], " \t")), -1
		case c == '{':
			p.inBlock = true
			b[i] = ' '
		}
	}
	return string(b), quoteAt
}

func lineStarts(src []byte) []int {
	if len(src) == 0 {
		return nil
	}
	starts := []int{0}
	for i, c := range src {
		if c == '\n' && i+1 < len(src) {
			starts = append(starts, i+1)
		}
	}
	return starts
}
