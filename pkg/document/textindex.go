// ABOUTME: Plain-text projection of a subtree as prefix sums over text runs
// ABOUTME: Maps character offsets to live positions and back

package document

import (
	"sort"
	"strings"
)

// Bias decides which run owns an offset that falls on a run boundary
type Bias int

const (
	// Forward places boundary offsets at the start of the following run
	Forward Bias = iota
	// Backward places boundary offsets at the end of the preceding run
	Backward
)

// Run is one text node in the projection
type Run struct {
	Node  *Node
	Start int // Offset of the first character of Node within the scope
	Len   int
}

// TextIndex is the plain-text projection of a scope root
type TextIndex struct {
	root    *Node
	runs    []Run // non-empty runs only, ordered by Start
	starts  map[*Node]int
	total   int
	version uint64
}

// NewTextIndex builds the projection of root's subtree
func NewTextIndex(root *Node) *TextIndex {
	ix := &TextIndex{root: root, starts: make(map[*Node]int)}
	if d := root.Document(); d != nil {
		ix.version = d.Version
	}

	offset := 0
	for _, n := range root.TextNodes() {
		l := n.Len()
		ix.starts[n] = offset
		if l > 0 {
			ix.runs = append(ix.runs, Run{Node: n, Start: offset, Len: l})
		}
		offset += l
	}
	ix.total = offset
	return ix
}

// Root returns the scope root
func (ix *TextIndex) Root() *Node {
	return ix.root
}

// Len returns the number of characters in the projection
func (ix *TextIndex) Len() int {
	return ix.total
}

// Runs returns the non-empty runs
func (ix *TextIndex) Runs() []Run {
	return ix.runs
}

// Stale reports whether the document changed since the index was built
func (ix *TextIndex) Stale() bool {
	d := ix.root.Document()
	return d != nil && d.Version != ix.version
}

// Text returns the whole projection
func (ix *TextIndex) Text() string {
	var sb strings.Builder
	for _, r := range ix.runs {
		sb.WriteString(r.Node.Text)
	}
	return sb.String()
}

// Locate maps a scope offset to a position inside a text run
func (ix *TextIndex) Locate(offset int, bias Bias) (Position, bool) {
	if offset < 0 || offset > ix.total || len(ix.runs) == 0 {
		return Position{}, false
	}

	var i int
	if bias == Forward {
		i = sort.Search(len(ix.runs), func(i int) bool {
			return offset < ix.runs[i].Start+ix.runs[i].Len
		})
		if i == len(ix.runs) {
			// Offset equals the total length
			i = len(ix.runs) - 1
		}
	} else {
		i = sort.Search(len(ix.runs), func(i int) bool {
			return offset <= ix.runs[i].Start+ix.runs[i].Len
		})
		if i == len(ix.runs) {
			return Position{}, false
		}
	}

	r := ix.runs[i]
	local := offset - r.Start
	if local < 0 {
		local = 0
	}
	return Position{Node: r.Node, Offset: local}, true
}

// OffsetOf maps a position back to a scope offset
func (ix *TextIndex) OffsetOf(p Position) (int, bool) {
	start, ok := ix.starts[p.Node]
	if !ok {
		return 0, false
	}
	return start + p.Offset, true
}

// RangeAt builds the live range covering [start, end)
func (ix *TextIndex) RangeAt(start, end int) (Range, bool) {
	if start < 0 || end < start || end > ix.total {
		return Range{}, false
	}
	s, ok := ix.Locate(start, Forward)
	if !ok {
		return Range{}, false
	}
	bias := Backward
	if end == start {
		bias = Forward
	}
	e, ok := ix.Locate(end, bias)
	if !ok {
		return Range{}, false
	}
	return Range{Start: s, End: e}, true
}
