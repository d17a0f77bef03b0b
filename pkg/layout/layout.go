// ABOUTME: Monospace flow layout that turns a document into glyph geometry
// ABOUTME: Provides client rects for ranges, caret-from-point and container bounds

package layout

import (
	"math"

	"github.com/mattn/go-runewidth"

	"github.com/nainya/textanchor/pkg/document"
	"github.com/nainya/textanchor/pkg/geom"
)

// Options controls the flow
type Options struct {
	Columns    int     // Wrap width in cells
	CellWidth  float64 // Width of one cell in client units
	LineHeight float64 // Height of one line in client units
	OriginX    float64 // Client position of the container's top-left corner
	OriginY    float64
}

// DefaultOptions lays out one unit per terminal cell, 80 columns wide
func DefaultOptions() Options {
	return Options{Columns: 80, CellWidth: 1, LineHeight: 1}
}

// blockElements start and end on their own line
var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "blockquote": true,
	"li": true, "ul": true, "ol": true, "pre": true, "header": true, "footer": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"tei-p": true, "tei-div": true, "tei-head": true, "tei-lg": true, "tei-l": true,
	"root": true,
}

// spacedElements leave a blank line after themselves
var spacedElements = map[string]bool{
	"p": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"tei-p": true, "tei-head": true,
}

// Glyph is one laid-out character
type Glyph struct {
	Node   *document.Node
	Offset int
	Rune   rune
	Row    int
	Col    int
	Width  int // Cells; 0 for line breaks and combining marks
}

// Layout holds the glyph geometry of a document
type Layout struct {
	doc     *document.Document
	opts    Options
	glyphs  map[*document.Node][]Glyph
	lines   [][]Glyph
	rows    int
	version uint64
	valid   bool
}

// New lays out doc
func New(doc *document.Document, opts Options) *Layout {
	if opts.Columns <= 0 {
		opts.Columns = DefaultOptions().Columns
	}
	if opts.CellWidth <= 0 {
		opts.CellWidth = 1
	}
	if opts.LineHeight <= 0 {
		opts.LineHeight = 1
	}
	l := &Layout{doc: doc, opts: opts}
	l.Relayout()
	return l
}

// Document returns the laid-out document
func (l *Layout) Document() *document.Document {
	return l.doc
}

// SetDocument swaps the document and lays it out
func (l *Layout) SetDocument(doc *document.Document) {
	l.doc = doc
	l.Relayout()
}

// Options returns the current options
func (l *Layout) Options() Options {
	return l.opts
}

// SetColumns reflows to a new wrap width
func (l *Layout) SetColumns(columns int) {
	if columns <= 0 || columns == l.opts.Columns {
		return
	}
	l.opts.Columns = columns
	l.Relayout()
}

// SetOrigin moves the container (e.g. on scroll) without reflowing
func (l *Layout) SetOrigin(x, y float64) {
	l.opts.OriginX = x
	l.opts.OriginY = y
}

// Relayout recomputes all glyph positions
func (l *Layout) Relayout() {
	f := &flow{columns: l.opts.Columns, glyphs: make(map[*document.Node][]Glyph)}
	f.visit(l.doc.Root)
	f.finish()

	l.glyphs = f.glyphs
	l.lines = f.lines
	l.rows = len(f.lines)
	l.version = l.doc.Version
	l.valid = true
}

// ensure re-flows when the document changed since the last layout
func (l *Layout) ensure() {
	if !l.valid || l.version != l.doc.Version {
		l.Relayout()
	}
}

// Rows returns the number of laid-out lines
func (l *Layout) Rows() int {
	l.ensure()
	return l.rows
}

// Line returns the glyphs on a row
func (l *Layout) Line(row int) []Glyph {
	l.ensure()
	if row < 0 || row >= len(l.lines) {
		return nil
	}
	return l.lines[row]
}

// Bounds returns the container rect in client coordinates
func (l *Layout) Bounds() geom.Rect {
	l.ensure()
	return geom.Rect{
		X:      l.opts.OriginX,
		Y:      l.opts.OriginY,
		Width:  float64(l.opts.Columns) * l.opts.CellWidth,
		Height: float64(l.rows) * l.opts.LineHeight,
	}
}

// ClientRects returns one rect per (text node, line) fragment of the range,
// in client coordinates
func (l *Layout) ClientRects(r document.Range) []geom.Rect {
	l.ensure()

	var rects []geom.Rect
	for _, frag := range r.Fragments() {
		glyphs := l.glyphs[frag.Start.Node]
		from, to := frag.Start.Offset, frag.End.Offset
		if to > len(glyphs) {
			to = len(glyphs)
		}

		row, minCol, maxCol := -1, 0, 0
		flush := func() {
			if row >= 0 && maxCol > minCol {
				rects = append(rects, l.cellRect(row, minCol, maxCol))
			}
		}

		for i := from; i < to; i++ {
			g := glyphs[i]
			if g.Width == 0 {
				continue
			}
			if g.Row != row {
				flush()
				row, minCol, maxCol = g.Row, g.Col, g.Col+g.Width
				continue
			}
			if g.Col < minCol {
				minCol = g.Col
			}
			if g.Col+g.Width > maxCol {
				maxCol = g.Col + g.Width
			}
		}
		flush()
	}
	return rects
}

func (l *Layout) cellRect(row, fromCol, toCol int) geom.Rect {
	return geom.Rect{
		X:      l.opts.OriginX + float64(fromCol)*l.opts.CellWidth,
		Y:      l.opts.OriginY + float64(row)*l.opts.LineHeight,
		Width:  float64(toCol-fromCol) * l.opts.CellWidth,
		Height: l.opts.LineHeight,
	}
}

// PositionAt returns the caret position under a client point. Points left
// of a line snap to its start, points right of it to its end.
func (l *Layout) PositionAt(x, y float64) (document.Position, bool) {
	l.ensure()
	if l.rows == 0 {
		return document.Position{}, false
	}

	row := int(math.Floor((y - l.opts.OriginY) / l.opts.LineHeight))
	col := int(math.Floor((x - l.opts.OriginX) / l.opts.CellWidth))

	if row < 0 {
		row, col = 0, -1
	}
	if row >= l.rows {
		row, col = l.rows-1, math.MaxInt32
	}

	// Blank rows snap to the nearest following line with glyphs
	for row < l.rows && len(l.lines[row]) == 0 {
		row++
		col = -1
	}
	if row >= l.rows {
		return l.lastPosition()
	}

	line := l.lines[row]
	for _, g := range line {
		if g.Width > 0 && col >= g.Col && col < g.Col+g.Width {
			return document.Position{Node: g.Node, Offset: g.Offset}, true
		}
		if col < g.Col {
			return document.Position{Node: g.Node, Offset: g.Offset}, true
		}
	}

	last := line[len(line)-1]
	if last.Width == 0 {
		// Caret before the line break
		return document.Position{Node: last.Node, Offset: last.Offset}, true
	}
	return document.Position{Node: last.Node, Offset: last.Offset + 1}, true
}

func (l *Layout) lastPosition() (document.Position, bool) {
	for row := l.rows - 1; row >= 0; row-- {
		if line := l.lines[row]; len(line) > 0 {
			g := line[len(line)-1]
			return document.Position{Node: g.Node, Offset: g.Offset + 1}, true
		}
	}
	return document.Position{}, false
}

// flow is the mutable state of one layout pass
type flow struct {
	columns int
	row     int
	col     int
	glyphs  map[*document.Node][]Glyph
	lines   [][]Glyph
}

func (f *flow) visit(n *document.Node) {
	if n.IsText() {
		f.text(n)
		return
	}

	if n.Name == "br" {
		f.newline()
		return
	}

	block := blockElements[n.Name]
	if block && f.col > 0 {
		f.newline()
	}
	for _, c := range n.Children {
		f.visit(c)
	}
	if block && f.col > 0 {
		f.newline()
	}
	if spacedElements[n.Name] {
		f.blank()
	}
}

func (f *flow) text(n *document.Node) {
	glyphs := make([]Glyph, 0, n.Len())
	offset := 0
	for _, r := range n.Text {
		if r == '\n' {
			g := Glyph{Node: n, Offset: offset, Rune: r, Row: f.row, Col: f.col}
			glyphs = append(glyphs, g)
			f.place(g)
			f.newline()
			offset++
			continue
		}

		w := runewidth.RuneWidth(r)
		if w > 0 && f.col+w > f.columns && f.col > 0 {
			f.newline()
		}
		g := Glyph{Node: n, Offset: offset, Rune: r, Row: f.row, Col: f.col, Width: w}
		glyphs = append(glyphs, g)
		f.place(g)
		f.col += w
		offset++
	}
	f.glyphs[n] = glyphs
}

func (f *flow) place(g Glyph) {
	for len(f.lines) <= g.Row {
		f.lines = append(f.lines, nil)
	}
	f.lines[g.Row] = append(f.lines[g.Row], g)
}

func (f *flow) newline() {
	for len(f.lines) <= f.row {
		f.lines = append(f.lines, nil)
	}
	f.row++
	f.col = 0
}

// blank inserts an empty line unless one already precedes the cursor
func (f *flow) blank() {
	if f.row > 0 && f.row-1 < len(f.lines) && len(f.lines[f.row-1]) == 0 {
		return
	}
	f.newline()
}

func (f *flow) finish() {
	// Drop trailing empty rows
	for len(f.lines) > 0 && len(f.lines[len(f.lines)-1]) == 0 {
		f.lines = f.lines[:len(f.lines)-1]
	}
}
