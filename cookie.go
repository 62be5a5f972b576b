package fglscope

import (
	"fmt"
	"strings"

	"github.com/zeebo/xxh3"
)

// SourceCookie is an immutable snapshot of the text a tree was parsed from.
// It stays valid after the live buffer changes, so diagnostics can quote
// the exact lines they refer to.
type SourceCookie struct {
	text   string
	starts []int
	hash   uint64
}

// NewSourceCookie snapshots text.
func NewSourceCookie(text string) *SourceCookie {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' && i+1 < len(text) {
			starts = append(starts, i+1)
		}
	}
	if text == "" {
		starts = nil
	}
	return &SourceCookie{text: text, starts: starts, hash: xxh3.HashString(text)}
}

// Text returns the full snapshot.
func (c *SourceCookie) Text() string { return c.text }

// LineCount returns the number of lines in the snapshot.
func (c *SourceCookie) LineCount() int { return len(c.starts) }

// Line returns the 1-based line n without its line terminator.
func (c *SourceCookie) Line(n int) (string, bool) {
	if n < 1 || n > len(c.starts) {
		return "", false
	}
	end := len(c.text)
	if n < len(c.starts) {
		end = c.starts[n]
	}
	return strings.TrimRight(c.text[c.starts[n-1]:end], "\r\n"), true
}

// LineOffsets returns the byte offset at which each line starts.
func (c *SourceCookie) LineOffsets() []int {
	return append([]int(nil), c.starts...)
}

// Hash returns the xxh3 hash of the snapshot.
func (c *SourceCookie) Hash() uint64 { return c.hash }

// HashString returns Hash as fixed-width hex, the form persisted in the index.
func (c *SourceCookie) HashString() string {
	return fmt.Sprintf("%016x", c.hash)
}
