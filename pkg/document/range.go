// ABOUTME: Live range handles into the document tree
// ABOUTME: Position (text node + rune offset) and Range with text extraction

package document

import (
	"fmt"
	"strings"
)

// Position is a caret location inside a text node
type Position struct {
	Node   *Node
	Offset int // Rune offset within Node.Text
}

// Range spans from Start to End in document order
type Range struct {
	Start Position
	End   Position
}

// NewRange creates a range between two text positions
func NewRange(startNode *Node, startOffset int, endNode *Node, endOffset int) Range {
	return Range{
		Start: Position{Node: startNode, Offset: startOffset},
		End:   Position{Node: endNode, Offset: endOffset},
	}
}

// Valid reports whether both ends sit inside text nodes within bounds
func (r Range) Valid() bool {
	return validPosition(r.Start) && validPosition(r.End)
}

func validPosition(p Position) bool {
	return p.Node != nil && p.Node.Kind == TextNode && p.Offset >= 0 && p.Offset <= p.Node.Len()
}

// Collapsed reports whether the range is empty
func (r Range) Collapsed() bool {
	if r.Start.Node == r.End.Node {
		return r.Start.Offset >= r.End.Offset
	}
	return r.String() == ""
}

// TextNodes returns the text nodes touched by the range, in order
func (r Range) TextNodes() []*Node {
	if r.Start.Node == nil || r.End.Node == nil {
		return nil
	}

	var out []*Node
	root := r.Start.Node.Document().Root
	for cur := r.Start.Node; cur != nil; cur = cur.Next(root) {
		if cur.Kind == TextNode {
			out = append(out, cur)
		}
		if cur == r.End.Node {
			return out
		}
	}
	// End is not after start
	return nil
}

// String returns the text covered by the range
func (r Range) String() string {
	if r.Start.Node == nil || r.End.Node == nil {
		return ""
	}
	if r.Start.Node == r.End.Node {
		return runeSlice(r.Start.Node.Text, r.Start.Offset, r.End.Offset)
	}

	var sb strings.Builder
	for _, n := range r.TextNodes() {
		switch n {
		case r.Start.Node:
			sb.WriteString(runeSlice(n.Text, r.Start.Offset, n.Len()))
		case r.End.Node:
			sb.WriteString(runeSlice(n.Text, 0, r.End.Offset))
		default:
			sb.WriteString(n.Text)
		}
	}
	return sb.String()
}

// Fragments splits the range into per-text-node pieces
func (r Range) Fragments() []Range {
	nodes := r.TextNodes()
	out := make([]Range, 0, len(nodes))
	for _, n := range nodes {
		from, to := 0, n.Len()
		if n == r.Start.Node {
			from = r.Start.Offset
		}
		if n == r.End.Node {
			to = r.End.Offset
		}
		if to > from {
			out = append(out, NewRange(n, from, n, to))
		}
	}
	return out
}

// Clone returns a copy of the range (positions are values)
func (r Range) Clone() Range {
	return r
}

// Describe returns a debugging representation with node IDs
func (r Range) Describe() string {
	return fmt.Sprintf("Range(%s:%d..%s:%d)", nodeID(r.Start.Node), r.Start.Offset, nodeID(r.End.Node), r.End.Offset)
}

func nodeID(n *Node) string {
	if n == nil {
		return "<nil>"
	}
	return n.ID
}
