// ABOUTME: Terminal front end that shows a document with its highlights
// ABOUTME: Turns tcell mouse and key events into selection gestures and paints highlights

package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rs/zerolog"

	"github.com/nainya/textanchor/pkg/annotator"
	"github.com/nainya/textanchor/pkg/document"
	"github.com/nainya/textanchor/pkg/geom"
	"github.com/nainya/textanchor/pkg/input"
	"github.com/nainya/textanchor/pkg/render"
)

// Options configures an App
type Options struct {
	// OnSave receives the exported W3C JSON on Ctrl-S
	OnSave func(json string) error
	Logger zerolog.Logger
	// Now stamps converted events, time.Now by default
	Now func() time.Time
}

// App drives one annotator from a terminal. Everything runs on the Run
// goroutine, including painting.
type App struct {
	screen tcell.Screen
	ann    *annotator.Annotator
	opts   Options
	log    zerolog.Logger

	highlights []render.Highlight
	top        int // First document row on screen
	status     string

	// Pointer gesture
	pressed bool
	anchor  document.Position
	docSel  *document.Range

	// Keyboard caret and shift selection
	caret      document.Position
	caretValid bool
	shiftHeld  bool
	keyAnchor  document.Position

	text *document.TextIndex
}

// New attaches the app to a screen. The screen must be initialized; the
// annotator is resized to the screen width and painted through the app.
func New(screen tcell.Screen, ann *annotator.Annotator, opts Options) *App {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	a := &App{
		screen: screen,
		ann:    ann,
		opts:   opts,
		log:    opts.Logger.With().Str("component", "tui").Logger(),
	}
	a.fit()
	ann.SetPainter(a)
	a.draw()
	return a
}

// Paint implements render.Painter
func (a *App) Paint(highlights []render.Highlight, viewport geom.Rect) {
	a.highlights = highlights
	a.draw()
}

// Highlights returns the last painted frame
func (a *App) Highlights() []render.Highlight {
	return a.highlights
}

// Top returns the first visible document row
func (a *App) Top() int {
	return a.top
}

// Run polls the screen until ctx is done or the user quits
func (a *App) Run(ctx context.Context) error {
	events := make(chan tcell.Event, 100)
	go func() {
		defer close(events)
		for {
			ev := a.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		if deadline, ok := a.ann.Gesture().Deadline(); ok {
			timer.Reset(time.Until(deadline))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !a.HandleEvent(ev) {
				return nil
			}
		case now := <-timer.C:
			a.ann.Gesture().Tick(now)
		}
	}
}

// HandleEvent processes one terminal event and reports whether the app
// should keep running
func (a *App) HandleEvent(ev tcell.Event) bool {
	defer a.draw()

	switch e := ev.(type) {
	case *tcell.EventResize:
		a.fit()
	case *tcell.EventMouse:
		a.handleMouse(e)
	case *tcell.EventKey:
		return a.handleKey(e)
	}
	return true
}

// fit reflows the document to the screen width and resets the viewport
func (a *App) fit() {
	w, _ := a.screen.Size()
	if w > 0 {
		if err := a.ann.Resize(w); err != nil {
			a.log.Debug().Err(err).Msg("Some targets did not anchor after resize")
		}
	}
	a.scrollTo(a.top)
}

func (a *App) pageRows() int {
	_, h := a.screen.Size()
	if h <= 1 {
		return 1
	}
	return h - 1 // Last row is the status line
}

func (a *App) scrollTo(top int) {
	if last := a.ann.Layout().Rows() - a.pageRows(); top > last {
		top = last
	}
	if top < 0 {
		top = 0
	}
	a.top = top

	w, _ := a.screen.Size()
	a.ann.SetViewport(geom.Rect{X: 0, Y: float64(top), Width: float64(w), Height: float64(a.pageRows())})
}

// point maps a screen cell to the centre of the matching client cell
func (a *App) point(x, y int) (float64, float64) {
	opts := a.ann.Layout().Options()
	return (float64(x) + 0.5) * opts.CellWidth, (float64(y+a.top) + 0.5) * opts.LineHeight
}

func (a *App) textIndex() *document.TextIndex {
	root := a.ann.Document().Root
	if a.text == nil || a.text.Stale() || a.text.Root() != root {
		a.text = document.NewTextIndex(root)
	}
	return a.text
}

// span orders two positions into a range
func (a *App) span(p, q document.Position) document.Range {
	ix := a.textIndex()
	po, _ := ix.OffsetOf(p)
	qo, _ := ix.OffsetOf(q)
	if qo < po {
		p, q = q, p
	}
	return document.NewRange(p.Node, p.Offset, q.Node, q.Offset)
}

func (a *App) event(t input.Type) input.Event {
	return input.Event{Type: t, Time: a.opts.Now()}
}

func (a *App) handleMouse(e *tcell.EventMouse) {
	x, y := e.Position()
	cx, cy := a.point(x, y)
	pos, onText := a.ann.Layout().PositionAt(cx, cy)

	var target *document.Node
	if onText {
		target = pos.Node
	}

	buttons := e.Buttons()
	switch {
	case buttons&tcell.WheelUp != 0:
		a.scrollTo(a.top - 3)

	case buttons&tcell.WheelDown != 0:
		a.scrollTo(a.top + 3)

	case buttons&(tcell.Button1|tcell.Button2|tcell.Button3) != 0 && !a.pressed:
		evt := a.event(input.PointerDown)
		evt.X, evt.Y, evt.Target = cx, cy, target
		evt.Button = input.Primary
		if buttons&tcell.Button2 != 0 {
			evt.Button = input.Secondary
		} else if buttons&tcell.Button3 != 0 {
			evt.Button = input.Auxiliary
		}
		a.releaseShift()
		a.pressed = true
		a.docSel = nil
		a.anchor = pos
		a.ann.Handle(evt)

		if evt.Button == input.Primary && onText {
			start := a.event(input.SelectStart)
			start.Target = target
			a.ann.Handle(start)
		}

	case buttons&tcell.Button1 != 0 && a.pressed:
		if !onText || a.anchor.Node == nil {
			return
		}
		r := a.span(a.anchor, pos)
		a.docSel = &r
		change := a.event(input.SelectionChange)
		change.Selection = &r
		a.ann.Handle(change)

	case buttons&(tcell.Button1|tcell.Button2|tcell.Button3) == 0 && a.pressed:
		a.pressed = false
		up := a.event(input.PointerUp)
		up.X, up.Y, up.Target = cx, cy, target
		up.Button = input.Primary
		up.Selection = a.docSel
		a.ann.Handle(up)
		a.caret, a.caretValid = pos, onText
		a.docSel = nil

	default:
		move := a.event(input.PointerMove)
		move.X, move.Y = cx, cy
		a.ann.Handle(move)
	}
}

// releaseShift ends a keyboard selection
func (a *App) releaseShift() {
	if !a.shiftHeld {
		return
	}
	a.shiftHeld = false
	up := a.event(input.KeyUp)
	up.Key = "Shift"
	a.ann.Handle(up)
	a.docSel = nil
}

func (a *App) handleKey(e *tcell.EventKey) bool {
	shift := e.Modifiers()&tcell.ModShift != 0

	switch e.Key() {
	case tcell.KeyCtrlC:
		return false
	case tcell.KeyRune:
		switch e.Rune() {
		case 'q':
			return false
		case 'x':
			a.releaseShift()
			a.deleteSelected()
			return true
		}
	case tcell.KeyEscape:
		// Cancel the draft before the shift release could commit it
		esc := a.event(input.KeyDown)
		esc.Key = "Escape"
		a.ann.Handle(esc)
		a.shiftHeld = false
		a.docSel = nil
		a.ann.Clear()
		return true
	case tcell.KeyCtrlS:
		a.save()
		return true
	case tcell.KeyPgUp:
		a.scrollTo(a.top - a.pageRows())
		return true
	case tcell.KeyPgDn:
		a.scrollTo(a.top + a.pageRows())
		return true
	case tcell.KeyLeft, tcell.KeyRight, tcell.KeyUp, tcell.KeyDown:
		a.moveCaret(e.Key(), shift)
		return true
	}

	a.releaseShift()
	return true
}

func (a *App) moveCaret(key tcell.Key, shift bool) {
	if !shift {
		a.releaseShift()
	}
	if !a.caretValid {
		a.caret, a.caretValid = a.textIndex().Locate(0, document.Forward)
		if !a.caretValid {
			return
		}
	}

	if shift && !a.shiftHeld {
		a.shiftHeld = true
		a.keyAnchor = a.caret
		down := a.event(input.KeyDown)
		down.Key, down.Shift = "Shift", true
		a.ann.Handle(down)
	}

	ix := a.textIndex()
	off, _ := ix.OffsetOf(a.caret)
	switch key {
	case tcell.KeyLeft:
		off--
	case tcell.KeyRight:
		off++
	case tcell.KeyUp, tcell.KeyDown:
		opts := a.ann.Layout().Options()
		cx, cy := a.caretPoint()
		if key == tcell.KeyUp {
			cy -= opts.LineHeight
		} else {
			cy += opts.LineHeight
		}
		if p, ok := a.ann.Layout().PositionAt(cx, cy); ok {
			off, _ = ix.OffsetOf(p)
		}
	}
	if off < 0 {
		off = 0
	}
	if off > ix.Len() {
		off = ix.Len()
	}
	if p, ok := ix.Locate(off, document.Forward); ok {
		a.caret = p
	}

	if a.shiftHeld {
		r := a.span(a.keyAnchor, a.caret)
		a.docSel = &r
		change := a.event(input.SelectionChange)
		change.Selection = &r
		change.Shift = true
		a.ann.Handle(change)
	}
}

// caretPoint returns the client point of the caret cell
func (a *App) caretPoint() (float64, float64) {
	opts := a.ann.Layout().Options()
	r := document.NewRange(a.caret.Node, a.caret.Offset, a.caret.Node, a.caret.Offset+1)
	if rects := a.ann.Layout().ClientRects(r); len(rects) > 0 {
		return rects[0].X + opts.CellWidth/2, rects[0].Y + opts.LineHeight/2
	}
	// Caret at the end of a node
	if a.caret.Offset > 0 {
		r = document.NewRange(a.caret.Node, a.caret.Offset-1, a.caret.Node, a.caret.Offset)
		if rects := a.ann.Layout().ClientRects(r); len(rects) > 0 {
			return rects[0].Right() + opts.CellWidth/2, rects[0].Y + opts.LineHeight/2
		}
	}
	return 0, 0
}

func (a *App) deleteSelected() {
	for _, s := range a.ann.Selected() {
		if err := a.ann.DeleteAnnotation(s.ID); err != nil {
			a.log.Warn().Err(err).Str("annotation", s.ID).Msg("Delete failed")
		}
	}
}

func (a *App) save() {
	if a.opts.OnSave == nil {
		a.status = "no output configured"
		return
	}
	out, err := a.ann.ExportAnnotations()
	if err == nil {
		err = a.opts.OnSave(out)
	}
	if err != nil {
		a.log.Error().Err(err).Msg("Save failed")
		a.status = "save failed: " + err.Error()
		return
	}
	a.status = fmt.Sprintf("saved %d annotations", a.ann.Store().Len())
}

// ========== Drawing ==========

var (
	textStyle      = tcell.StyleDefault
	selectionStyle = tcell.StyleDefault.Reverse(true)
	statusStyle    = tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorSilver)
)

// highlightStyle maps a render style onto a terminal cell style
func highlightStyle(h render.Highlight) tcell.Style {
	st := textStyle
	if bg := tcell.GetColor(h.Style.Fill); bg != tcell.ColorDefault {
		st = st.Background(bg).Foreground(tcell.ColorWhite)
	}
	if h.Style.FillOpacity < 0.3 {
		st = st.Dim(true)
	}
	if h.Style.Underline || h.State.Hovered {
		st = st.Underline(true)
	}
	if h.State.Selected {
		st = st.Bold(true)
	}
	return st
}

type cellPaint struct {
	rect  geom.Rect
	z     int
	style tcell.Style
}

func (a *App) draw() {
	w, _ := a.screen.Size()
	rows := a.pageRows()
	opts := a.ann.Layout().Options()

	a.screen.Clear()

	styles := make(map[[2]int]tcell.Style)

	// Longest highlights first so shorter ones stay visible on top
	var paints []cellPaint
	for _, h := range a.highlights {
		st := highlightStyle(h)
		for i, r := range h.Rects {
			paints = append(paints, cellPaint{rect: r, z: h.ZIndex[i], style: st})
		}
	}
	sort.SliceStable(paints, func(i, j int) bool { return paints[i].z < paints[j].z })
	for _, p := range paints {
		a.fillCells(styles, p.rect, p.style, opts.CellWidth, opts.LineHeight)
	}
	if a.docSel != nil {
		for _, r := range a.ann.Layout().ClientRects(*a.docSel) {
			a.fillCells(styles, r, selectionStyle, opts.CellWidth, opts.LineHeight)
		}
	}

	for y := 0; y < rows; y++ {
		for _, g := range a.ann.Layout().Line(a.top + y) {
			if g.Width == 0 || g.Col >= w {
				continue
			}
			st, ok := styles[[2]int{g.Col, a.top + y}]
			if !ok {
				st = textStyle
			}
			a.screen.SetContent(g.Col, y, g.Rune, nil, st)
			for extra := 1; extra < g.Width; extra++ {
				a.screen.SetContent(g.Col+extra, y, ' ', nil, st)
			}
		}
	}

	a.drawStatus(w, rows)
	a.drawCaret()
	a.screen.Show()
}

func (a *App) fillCells(styles map[[2]int]tcell.Style, r geom.Rect, st tcell.Style, cw, lh float64) {
	row := int(r.Y / lh)
	for col := int(r.X / cw); float64(col)*cw < r.Right(); col++ {
		styles[[2]int{col, row}] = st
	}
}

func (a *App) drawStatus(w, row int) {
	st := a.ann.Stats()
	parts := []string{fmt.Sprintf(" %d annotations", st.Annotations)}
	if st.Outdated > 0 {
		parts = append(parts, fmt.Sprintf("%d outdated", st.Outdated))
	}
	if hovered := a.ann.Renderer().Hovered(); hovered != "" {
		parts = append(parts, "hover "+hovered)
	}
	if sel := a.ann.Selected(); len(sel) > 0 {
		parts = append(parts, "selected "+sel[0].ID)
	}
	if a.status != "" {
		parts = append(parts, a.status)
	}
	line := []rune(strings.Join(parts, " | "))

	for x := 0; x < w; x++ {
		r := ' '
		if x < len(line) {
			r = line[x]
		}
		a.screen.SetContent(x, row, r, nil, statusStyle)
	}
}

func (a *App) drawCaret() {
	if !a.caretValid || a.caret.Node == nil {
		a.screen.HideCursor()
		return
	}
	opts := a.ann.Layout().Options()
	cx, cy := a.caretPoint()
	col := int(cx / opts.CellWidth)
	row := int(cy/opts.LineHeight) - a.top
	if row < 0 || row >= a.pageRows() {
		a.screen.HideCursor()
		return
	}
	a.screen.ShowCursor(col, row)
}
