// ABOUTME: Tree traversal and mutation for document nodes
// ABOUTME: Pre-order walks, ancestor lookup, annotatable checks and text edits

package document

import (
	"errors"
	"unicode/utf8"
)

var (
	ErrNotText      = errors.New("document: not a text node")
	ErrOutOfRange   = errors.New("document: offset out of range")
	ErrNotChild     = errors.New("document: node is not a child")
	ErrNotAnElement = errors.New("document: text nodes cannot have children")
)

// AppendChild attaches c as the last child of n and returns c
func (n *Node) AppendChild(c *Node) *Node {
	if c.Parent != nil {
		_ = c.Parent.RemoveChild(c)
	}
	c.Parent = n
	n.Children = append(n.Children, c)
	n.doc.touch()
	return c
}

// InsertBefore attaches c before ref (or last when ref is nil)
func (n *Node) InsertBefore(c, ref *Node) error {
	if n.Kind == TextNode {
		return ErrNotAnElement
	}
	if ref == nil {
		n.AppendChild(c)
		return nil
	}

	idx := n.childIndex(ref)
	if idx < 0 {
		return ErrNotChild
	}
	if c.Parent != nil {
		_ = c.Parent.RemoveChild(c)
		idx = n.childIndex(ref)
	}

	c.Parent = n
	n.Children = append(n.Children, nil)
	copy(n.Children[idx+1:], n.Children[idx:])
	n.Children[idx] = c
	n.doc.touch()
	return nil
}

// RemoveChild detaches c from n
func (n *Node) RemoveChild(c *Node) error {
	idx := n.childIndex(c)
	if idx < 0 {
		return ErrNotChild
	}
	n.Children = append(n.Children[:idx], n.Children[idx+1:]...)
	c.Parent = nil
	n.doc.touch()
	return nil
}

func (n *Node) childIndex(c *Node) int {
	for i, child := range n.Children {
		if child == c {
			return i
		}
	}
	return -1
}

// SetText replaces the content of a text node
func (n *Node) SetText(text string) error {
	if n.Kind != TextNode {
		return ErrNotText
	}
	n.Text = text
	n.doc.touch()
	return nil
}

// InsertText inserts s at rune offset in a text node
func (n *Node) InsertText(offset int, s string) error {
	if n.Kind != TextNode {
		return ErrNotText
	}
	runes := []rune(n.Text)
	if offset < 0 || offset > len(runes) {
		return ErrOutOfRange
	}
	n.Text = string(runes[:offset]) + s + string(runes[offset:])
	n.doc.touch()
	return nil
}

// DeleteText removes count runes starting at offset
func (n *Node) DeleteText(offset, count int) error {
	if n.Kind != TextNode {
		return ErrNotText
	}
	runes := []rune(n.Text)
	if offset < 0 || count < 0 || offset+count > len(runes) {
		return ErrOutOfRange
	}
	n.Text = string(runes[:offset]) + string(runes[offset+count:])
	n.doc.touch()
	return nil
}

// Contains reports whether other is n or one of its descendants
func (n *Node) Contains(other *Node) bool {
	for cur := other; cur != nil; cur = cur.Parent {
		if cur == n {
			return true
		}
	}
	return false
}

// Closest returns the nearest element (n itself or an ancestor) matching pred
func (n *Node) Closest(pred func(*Node) bool) *Node {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Kind == ElementNode && pred(cur) {
			return cur
		}
	}
	return nil
}

// Next returns the node following n in pre-order, staying within root
func (n *Node) Next(root *Node) *Node {
	if len(n.Children) > 0 {
		return n.Children[0]
	}
	for cur := n; cur != nil && cur != root; cur = cur.Parent {
		if sib := cur.NextSibling(); sib != nil {
			return sib
		}
	}
	return nil
}

// NextSibling returns the following sibling, if any
func (n *Node) NextSibling() *Node {
	if n.Parent == nil {
		return nil
	}
	idx := n.Parent.childIndex(n)
	if idx < 0 || idx+1 >= len(n.Parent.Children) {
		return nil
	}
	return n.Parent.Children[idx+1]
}

// Walk visits the subtree in pre-order until fn returns false
func (n *Node) Walk(fn func(*Node) bool) {
	for cur := n; cur != nil; cur = cur.Next(n) {
		if !fn(cur) {
			return
		}
	}
}

// TextNodes returns the text runs of the subtree in document order
func (n *Node) TextNodes() []*Node {
	var out []*Node
	n.Walk(func(cur *Node) bool {
		if cur.Kind == TextNode {
			out = append(out, cur)
		}
		return true
	})
	return out
}

// FindElementByID finds the element with the given id attribute in the subtree
func (n *Node) FindElementByID(id string) *Node {
	var found *Node
	n.Walk(func(cur *Node) bool {
		if cur.Kind == ElementNode && cur.ElementID() == id {
			found = cur
			return false
		}
		return true
	})
	return found
}

// GetElementByID finds an element anywhere in the document
func (d *Document) GetElementByID(id string) *Node {
	return d.Root.FindElementByID(id)
}

// FindNode looks up a node by its stable ID
func (d *Document) FindNode(nodeID string) *Node {
	var found *Node
	d.Root.Walk(func(cur *Node) bool {
		if cur.ID == nodeID {
			found = cur
			return false
		}
		return true
	})
	return found
}

// IsAnnotatable reports whether no element on the ancestor chain opts out
func IsAnnotatable(n *Node) bool {
	if n == nil {
		return false
	}
	return n.Closest(isNotAnnotatable) == nil
}

func isNotAnnotatable(n *Node) bool {
	if _, ok := n.Attr(NOT_ANNOTATABLE_ATTR); ok {
		return true
	}
	return n.HasClass(NOT_ANNOTATABLE_CLASS)
}

// runeSlice returns runes [from, to) of s, clamped to its length
func runeSlice(s string, from, to int) string {
	if from <= 0 && to >= utf8.RuneCountInString(s) {
		return s
	}
	runes := []rune(s)
	if from < 0 {
		from = 0
	}
	if to > len(runes) {
		to = len(runes)
	}
	if from >= to {
		return ""
	}
	return string(runes[from:to])
}
