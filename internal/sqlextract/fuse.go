package sqlextract

import "strings"

// piece is candidate text with a mapping back to offsets in the scanned
// text. origin is nil when the text is an unmodified slice starting at base.
type piece struct {
	text   string
	base   int
	origin []int
}

func (p piece) offset(i int) int {
	if p.origin == nil {
		return p.base + i
	}
	return p.origin[i]
}

type pieceBuilder struct {
	sb     strings.Builder
	origin []int
}

func (b *pieceBuilder) add(s string, at int) {
	b.sb.WriteString(s)
	for i := range len(s) {
		b.origin = append(b.origin, at+i)
	}
}

func (b *pieceBuilder) piece(base int) piece {
	return piece{text: b.sb.String(), base: base, origin: b.origin}
}

// fuse joins string literals continued with a comma ("abc",  "def" reads as
// "abcdef"). seg starts just after the opening quote. When the text after a
// join is not another literal, the current literal is closed, a line break is
// emitted, and the rest of seg is copied without further merging.
func fuse(seg string, base int) piece {
	b := &pieceBuilder{origin: make([]int, 0, len(seg))}
	i := 0
	for i < len(seg) {
		j := strings.Index(seg[i:], `",`)
		if j < 0 {
			b.add(seg[i:], base+i)
			break
		}
		j += i
		b.add(seg[i:j], base+i)

		k := j + 2
		for k < len(seg) && isSpace(seg[k]) {
			k++
		}
		if k < len(seg) && seg[k] == '"' {
			i = k + 1
			continue
		}

		b.add(`"`, base+j)
		b.add("\n", base+j+1)
		b.add(seg[j+2:], base+j+2)
		break
	}
	return b.piece(base)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n'
}
