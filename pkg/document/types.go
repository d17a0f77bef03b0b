// ABOUTME: Document data model for annotatable rendered text
// ABOUTME: Defines the Document and Node tree (elements and text runs with stable IDs)

package document

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// NodeKind distinguishes elements from text runs
type NodeKind int

const (
	ElementNode NodeKind = iota
	TextNode
)

// Attributes that mark a subtree as not annotatable
const (
	NOT_ANNOTATABLE_CLASS = "not-annotatable"
	NOT_ANNOTATABLE_ATTR  = "data-not-annotatable"
)

// Document is a live, mutable tree of elements and text runs
type Document struct {
	Root    *Node  // Root element (never a text node)
	Version uint64 // Bumped on every mutation
	nextID  uint64
}

// Node is an element or a text run in the document tree
type Node struct {
	ID       string            // Stable node identifier (unique per document)
	Kind     NodeKind          // Element or text
	Name     string            // Element name (lower case), empty for text
	Attrs    map[string]string // Element attributes
	Text     string            // Text content (text nodes only)
	Parent   *Node             // Parent node (nil for root)
	Children []*Node           // Child nodes in document order
	doc      *Document
}

// New creates an empty document with a root element
func New() *Document {
	d := &Document{}
	d.Root = d.NewElement("root", nil)
	return d
}

// NewElement creates a detached element with optional children
func (d *Document) NewElement(name string, attrs map[string]string, children ...*Node) *Node {
	n := &Node{
		ID:    d.allocID(),
		Kind:  ElementNode,
		Name:  strings.ToLower(name),
		Attrs: attrs,
		doc:   d,
	}
	for _, c := range children {
		n.AppendChild(c)
	}
	return n
}

// NewText creates a detached text node
func (d *Document) NewText(text string) *Node {
	return &Node{
		ID:   d.allocID(),
		Kind: TextNode,
		Text: text,
		doc:  d,
	}
}

func (d *Document) allocID() string {
	d.nextID++
	return fmt.Sprintf("n%d", d.nextID)
}

func (d *Document) touch() {
	if d != nil {
		d.Version++
	}
}

// Document returns the owning document
func (n *Node) Document() *Document {
	return n.doc
}

// IsText reports whether the node is a text run
func (n *Node) IsText() bool {
	return n.Kind == TextNode
}

// Len returns the number of characters (runes) in a text node, or the
// number of children of an element
func (n *Node) Len() int {
	if n.Kind == TextNode {
		return utf8.RuneCountInString(n.Text)
	}
	return len(n.Children)
}

// Attr returns an attribute value
func (n *Node) Attr(key string) (string, bool) {
	if n.Attrs == nil {
		return "", false
	}
	v, ok := n.Attrs[key]
	return v, ok
}

// ElementID returns the element's id attribute
func (n *Node) ElementID() string {
	v, _ := n.Attr("id")
	return v
}

// HasClass reports whether the element's class list contains class
func (n *Node) HasClass(class string) bool {
	classes, ok := n.Attr("class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(classes) {
		if c == class {
			return true
		}
	}
	return false
}

// TextContent returns the concatenated text of the subtree
func (n *Node) TextContent() string {
	if n.Kind == TextNode {
		return n.Text
	}
	var sb strings.Builder
	for _, t := range n.TextNodes() {
		sb.WriteString(t.Text)
	}
	return sb.String()
}

func (n *Node) String() string {
	if n.Kind == TextNode {
		return fmt.Sprintf("#text(%s %q)", n.ID, n.Text)
	}
	return fmt.Sprintf("<%s %s>", n.Name, n.ID)
}
