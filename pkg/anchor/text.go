// ABOUTME: Text helpers for selectors: whitespace collapsing, quote context
// ABOUTME: and splitting ranges around non-annotatable regions

package anchor

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/nainya/textanchor/pkg/document"
)

// DEFAULT_CONTEXT_LENGTH is the number of characters kept as prefix and suffix
const DEFAULT_CONTEXT_LENGTH = 32

// CollapseWhitespace replaces every run of whitespace with a single space
func CollapseWhitespace(s string) string {
	return collapse(s).text
}

// projection is whitespace-collapsed text plus, for every collapsed rune,
// the rune offset it came from
type projection struct {
	text    string
	offsets []int
}

func collapse(raw string) projection {
	var sb strings.Builder
	offsets := make([]int, 0, len(raw))
	space := false
	i := 0
	for _, r := range raw {
		if unicode.IsSpace(r) {
			if !space {
				sb.WriteByte(' ')
				offsets = append(offsets, i)
			}
			space = true
		} else {
			sb.WriteRune(r)
			offsets = append(offsets, i)
			space = false
		}
		i++
	}
	return projection{text: sb.String(), offsets: offsets}
}

// quotesMatch compares two quotes after whitespace collapsing and NFC
func quotesMatch(a, b string) bool {
	return norm.NFC.String(CollapseWhitespace(a)) == norm.NFC.String(CollapseWhitespace(b))
}

// IsWhitespaceOrEmpty reports whether the range covers no visible text
func IsWhitespaceOrEmpty(r document.Range) bool {
	return strings.TrimSpace(r.String()) == ""
}

// QuoteContext returns up to n characters before and after the range,
// measured in the container's text projection
func QuoteContext(r document.Range, container *document.Node, n int) (prefix, suffix string) {
	if n <= 0 {
		n = DEFAULT_CONTEXT_LENGTH
	}
	ix := document.NewTextIndex(container)
	start, ok := ix.OffsetOf(r.Start)
	if !ok {
		return "", ""
	}
	end, ok := ix.OffsetOf(r.End)
	if !ok {
		return "", ""
	}

	text := []rune(ix.Text())
	from := max(0, start-n)
	to := min(len(text), end+n)
	return string(text[from:start]), string(text[end:to])
}

// SplitAnnotatableRanges splits r into the maximal sub-ranges that do not
// cross a non-annotatable region
func SplitAnnotatableRanges(r document.Range) []document.Range {
	var out []document.Range
	var cur *document.Range
	for _, frag := range r.Fragments() {
		if !document.IsAnnotatable(frag.Start.Node) {
			cur = nil
			continue
		}
		if cur == nil {
			out = append(out, frag)
			cur = &out[len(out)-1]
			continue
		}
		cur.End = frag.End
	}
	return out
}

// TrimToContainer clamps the ends of r to the text inside container
func TrimToContainer(r document.Range, container *document.Node) (document.Range, error) {
	if container.Contains(r.Start.Node) && container.Contains(r.End.Node) {
		return r, nil
	}

	nodes := r.TextNodes()
	var inside []*document.Node
	for _, n := range nodes {
		if container.Contains(n) {
			inside = append(inside, n)
		}
	}
	if len(inside) == 0 {
		return document.Range{}, ErrOutsideContainer
	}

	out := r
	if first := inside[0]; first != r.Start.Node {
		out.Start = document.Position{Node: first, Offset: 0}
	}
	if last := inside[len(inside)-1]; last != r.End.Node {
		out.End = document.Position{Node: last, Offset: last.Len()}
	}
	return out, nil
}

// runeIndexAll returns the rune offsets of every occurrence of q in text
func runeIndexAll(text, q string) []int {
	if q == "" {
		return nil
	}
	var out []int
	runeIdx, last := 0, 0
	for b := 0; b < len(text); {
		i := strings.Index(text[b:], q)
		if i < 0 {
			break
		}
		pos := b + i
		runeIdx += utf8.RuneCountInString(text[last:pos])
		out = append(out, runeIdx)
		last = pos
		_, size := utf8.DecodeRuneInString(text[pos:])
		b = pos + size
	}
	return out
}

func commonPrefixLen(a, b []rune) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

func commonSuffixLen(a, b []rune) int {
	n := 0
	for n < len(a) && n < len(b) && a[len(a)-1-n] == b[len(b)-1-n] {
		n++
	}
	return n
}
