// ABOUTME: Builds documents from plain text and HTML sources
// ABOUTME: HTML goes through golang.org/x/net/html; whitespace is collapsed like rendered text

package document

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Source formats accepted by Load
const (
	FORMAT_TEXT = "text"
	FORMAT_HTML = "html"
)

var (
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)
	whitespaceRun  = regexp.MustCompile(`\s+`)
)

// FromText builds a document with one <p> per blank-line separated paragraph
func FromText(text string) *Document {
	d := New()
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, para := range paragraphBreak.Split(text, -1) {
		para = strings.Trim(para, "\n")
		if para == "" {
			continue
		}
		d.Root.AppendChild(d.NewElement("p", nil, d.NewText(para)))
	}
	return d
}

// ParseHTML builds a document from the <body> of an HTML page
func ParseHTML(r io.Reader) (*Document, error) {
	parsed, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	body := findBody(parsed)
	if body == nil {
		return nil, fmt.Errorf("parse html: no body element")
	}

	d := New()
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		convertHTML(d, d.Root, c, false)
	}
	d.Version = 0
	return d, nil
}

// Load reads a document in the given format
func Load(r io.Reader, format string) (*Document, error) {
	switch format {
	case FORMAT_HTML:
		return ParseHTML(r)
	case FORMAT_TEXT, "":
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read text: %w", err)
		}
		return FromText(string(data)), nil
	default:
		return nil, fmt.Errorf("unknown document format %q", format)
	}
}

// LoadFile reads a document from disk. An empty format is guessed from the
// file extension.
func LoadFile(path, format string) (*Document, error) {
	if format == "" {
		format = FormatOf(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f, format)
}

// FormatOf guesses the format of a file from its extension
func FormatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm", ".xhtml":
		return FORMAT_HTML
	default:
		return FORMAT_TEXT
	}
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

func convertHTML(d *Document, parent *Node, n *html.Node, pre bool) {
	switch n.Type {
	case html.TextNode:
		text := n.Data
		if !pre {
			// Formatting whitespace between blocks carries no text
			if strings.TrimSpace(text) == "" && strings.Contains(text, "\n") {
				return
			}
			text = whitespaceRun.ReplaceAllString(text, " ")
		}
		if text != "" {
			parent.AppendChild(d.NewText(text))
		}

	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Template, atom.Noscript:
			return
		}

		var attrs map[string]string
		if len(n.Attr) > 0 {
			attrs = make(map[string]string, len(n.Attr))
			for _, a := range n.Attr {
				key := a.Key
				if a.Namespace != "" {
					key = a.Namespace + ":" + a.Key
				}
				attrs[key] = a.Val
			}
		}

		el := parent.AppendChild(d.NewElement(n.Data, attrs))
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			convertHTML(d, el, c, pre || n.DataAtom == atom.Pre)
		}
	}
}
