// ABOUTME: Structural selectors address text by element path plus in-element offset
// ABOUTME: Paths look like /div[1]/p[2]::14 or //p[@id='intro']::3

package anchor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nainya/textanchor/pkg/document"
	"github.com/nainya/textanchor/pkg/model"
)

// StructuralSelector is a text selector for documents with stable structure
type StructuralSelector struct {
	Quote     string
	Start     int // Container offsets, kept for information
	End       int
	StartPath string // path::offset of the range start
	EndPath   string // path::offset of the range end
}

// step is one parsed path segment
type step struct {
	descendant bool   // "//" restarts the search anywhere below the container
	name       string // Element name
	index      int    // 1-based position among same-named siblings, 0 if unused
	id         string // id predicate, "" if unused
}

func (s step) String() string {
	sep := "/"
	if s.descendant {
		sep = "//"
	}
	if s.id != "" {
		return fmt.Sprintf("%s%s[@id='%s']", sep, s.name, s.id)
	}
	return fmt.Sprintf("%s%s[%d]", sep, s.name, s.index)
}

// ToStructural converts a revived selector into path expressions
func ToStructural(sel model.TextSelector, container *document.Node) (StructuralSelector, error) {
	if !sel.Revived() {
		return StructuralSelector{}, malformed(sel.Quote, "selector is not revived")
	}
	start, err := pathTo(sel.Range.Start, container)
	if err != nil {
		return StructuralSelector{}, err
	}
	end, err := pathTo(sel.Range.End, container)
	if err != nil {
		return StructuralSelector{}, err
	}
	return StructuralSelector{
		Quote:     CollapseWhitespace(sel.Quote),
		Start:     sel.Start,
		End:       sel.End,
		StartPath: start,
		EndPath:   end,
	}, nil
}

// pathTo builds the expression for a position: the path to the text
// node's parent element plus the offset within that element's text
func pathTo(p document.Position, container *document.Node) (string, error) {
	el := p.Node.Parent
	if el == nil || !container.Contains(el) {
		return "", ErrOutsideContainer
	}

	var chain []*document.Node
	for cur := el; cur != container; cur = cur.Parent {
		chain = append(chain, cur)
	}

	var steps []step
	for i := len(chain) - 1; i >= 0; i-- {
		n := chain[i]
		if id := n.ElementID(); id != "" && !strings.ContainsAny(id, "'[]") {
			steps = []step{{descendant: true, name: n.Name, id: id}}
			continue
		}
		steps = append(steps, step{name: n.Name, index: siblingIndex(n)})
	}

	offset, ok := document.NewTextIndex(el).OffsetOf(p)
	if !ok {
		return "", ErrOutsideContainer
	}

	var sb strings.Builder
	for _, s := range steps {
		sb.WriteString(s.String())
	}
	sb.WriteString("::")
	sb.WriteString(strconv.Itoa(offset))
	return sb.String(), nil
}

func siblingIndex(n *document.Node) int {
	idx := 1
	for _, sib := range n.Parent.Children {
		if sib == n {
			break
		}
		if sib.Kind == document.ElementNode && sib.Name == n.Name {
			idx++
		}
	}
	return idx
}

// ReviveStructural resolves both path expressions and returns a revived
// text selector with container offsets. When the resolved text no longer
// matches the quote it falls back to offset and content revival.
func ReviveStructural(s StructuralSelector, container *document.Node) (model.TextSelector, error) {
	if s.StartPath == "" || s.EndPath == "" {
		return model.TextSelector{}, malformed(s.Quote, "missing start or end expression")
	}

	start, err := evaluate(s.StartPath, container, document.Forward, s.Quote)
	if err != nil {
		return model.TextSelector{}, err
	}
	end, err := evaluate(s.EndPath, container, document.Backward, s.Quote)
	if err != nil {
		return model.TextSelector{}, err
	}

	sel, err := ToSelector(document.Range{Start: start, End: end}, container, Options{})
	if err == nil && (s.Quote == "" || quotesMatch(sel.Quote, s.Quote)) {
		sel.Quote = CollapseWhitespace(sel.Quote)
		return sel, nil
	}

	fallback := model.TextSelector{Quote: s.Quote, Start: s.Start, End: s.End}
	res, rerr := Revive(fallback, container)
	if rerr != nil {
		return model.TextSelector{}, rerr
	}
	return res.Apply(fallback), nil
}

// evaluate resolves one path::offset expression to a text position
func evaluate(expr string, container *document.Node, bias document.Bias, quote string) (document.Position, error) {
	split := strings.LastIndex(expr, "::")
	if split < 0 {
		return document.Position{}, malformed(quote, "expression %q has no offset", expr)
	}
	offset, err := strconv.Atoi(expr[split+2:])
	if err != nil || offset < 0 {
		return document.Position{}, malformed(quote, "expression %q has a bad offset", expr)
	}
	steps, err := parsePath(expr[:split])
	if err != nil {
		return document.Position{}, malformed(quote, "%v", err)
	}

	el := container
	for _, s := range steps {
		if el = resolve(el, container, s); el == nil {
			return document.Position{}, notFound(quote, "no element for %s in %q", s, expr)
		}
	}

	pos, ok := document.NewTextIndex(el).Locate(offset, bias)
	if !ok {
		return document.Position{}, notFound(quote, "offset %d outside %s", offset, el)
	}
	return pos, nil
}

func resolve(cur, container *document.Node, s step) *document.Node {
	if s.descendant {
		var found *document.Node
		seen := 0
		root := cur
		if s.id != "" {
			root = container
		}
		root.Walk(func(n *document.Node) bool {
			if n == root || n.Kind != document.ElementNode || n.Name != s.name {
				return true
			}
			if s.id != "" {
				if n.ElementID() == s.id {
					found = n
					return false
				}
				return true
			}
			seen++
			if seen == s.index {
				found = n
				return false
			}
			return true
		})
		return found
	}

	seen := 0
	for _, c := range cur.Children {
		if c.Kind != document.ElementNode || c.Name != s.name {
			continue
		}
		if s.id != "" {
			if c.ElementID() == s.id {
				return c
			}
			continue
		}
		seen++
		if seen == s.index {
			return c
		}
	}
	return nil
}

// parsePath parses a sequence of /name[pred] and //name[pred] steps
func parsePath(path string) ([]step, error) {
	var steps []step
	for i := 0; i < len(path); {
		if path[i] != '/' {
			return nil, fmt.Errorf("unexpected %q at %d in %q", path[i], i, path)
		}
		var s step
		i++
		if i < len(path) && path[i] == '/' {
			s.descendant = true
			i++
		}

		nameStart := i
		for i < len(path) && path[i] != '[' && path[i] != '/' {
			i++
		}
		s.name = strings.ToLower(path[nameStart:i])
		if s.name == "" {
			return nil, fmt.Errorf("empty step at %d in %q", nameStart, path)
		}

		s.index = 1
		if i < len(path) && path[i] == '[' {
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("unterminated predicate in %q", path)
			}
			pred := path[i+1 : i+end]
			i += end + 1

			if id, ok := parseIDPredicate(pred); ok {
				s.id, s.index = id, 0
			} else if n, err := strconv.Atoi(pred); err == nil && n > 0 {
				s.index = n
			} else {
				return nil, fmt.Errorf("bad predicate %q in %q", pred, path)
			}
		}
		steps = append(steps, s)
	}
	return steps, nil
}

// parseIDPredicate accepts @id='x', @id="x" and @xml:id='x'
func parseIDPredicate(pred string) (string, bool) {
	for _, attr := range []string{"@id=", "@xml:id="} {
		rest, ok := strings.CutPrefix(pred, attr)
		if !ok || len(rest) < 2 {
			continue
		}
		q := rest[0]
		if (q == '\'' || q == '"') && rest[len(rest)-1] == q {
			return rest[1 : len(rest)-1], true
		}
	}
	return "", false
}
