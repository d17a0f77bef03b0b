// ABOUTME: Selector revival: turns persisted selectors back into live ranges
// ABOUTME: Offsets are tried first, then a context-scored content search

package anchor

import (
	"errors"
	"math"

	"golang.org/x/text/unicode/norm"

	"github.com/nainya/textanchor/pkg/document"
	"github.com/nainya/textanchor/pkg/model"
)

// Result is a successfully revived selector
type Result struct {
	Range      document.Range
	Start      int  // Offset within the scope after revival
	End        int
	Reanchored bool // True when offsets had to be recovered by content search
}

// Apply returns sel with the live range and the recovered offsets
func (res Result) Apply(sel model.TextSelector) model.TextSelector {
	r := res.Range
	sel.Range = &r
	sel.Start = res.Start
	sel.End = res.End
	return sel
}

// scopeRoot resolves the element a selector's offsets are relative to
func scopeRoot(sel model.TextSelector, container *document.Node) (*document.Node, error) {
	if sel.Scope == "" {
		return container, nil
	}
	if n := container.FindElementByID(sel.Scope); n != nil {
		return n, nil
	}
	return nil, notFound(sel.Quote, "scope %q not in container", sel.Scope)
}

// Revive resolves sel inside container
func Revive(sel model.TextSelector, container *document.Node) (Result, error) {
	if sel.Start < 0 || sel.End <= sel.Start {
		return Result{}, malformed(sel.Quote, "invalid offsets [%d, %d)", sel.Start, sel.End)
	}

	scope, err := scopeRoot(sel, container)
	if err != nil {
		return Result{}, err
	}
	ix := document.NewTextIndex(scope)

	if sel.End <= ix.Len() {
		if r, ok := ix.RangeAt(sel.Start, sel.End); ok {
			if sel.Quote == "" || quotesMatch(r.String(), sel.Quote) {
				return Result{Range: r, Start: sel.Start, End: sel.End}, nil
			}
		}
	}

	if sel.Quote == "" {
		return Result{}, notFound(sel.Quote, "offsets [%d, %d) out of range and no quote", sel.Start, sel.End)
	}
	return reanchor(ix, sel)
}

// candidate is one occurrence of the quote in the collapsed scope text
type candidate struct {
	start, end int // Raw offsets
	context    int // Matched prefix + suffix characters
	distance   int // Distance from the nominal start offset
}

func (c candidate) better(o candidate) bool {
	if c.context != o.context {
		return c.context > o.context
	}
	return c.distance < o.distance
}

// reanchor searches the scope for the quote and picks the occurrence with
// the most matching context, then the one closest to the nominal offset
func reanchor(ix *document.TextIndex, sel model.TextSelector) (Result, error) {
	proj := collapse(ix.Text())
	text := []rune(proj.text)

	quote := CollapseWhitespace(sel.Quote)
	var hits []int
	var qlen int
	for _, q := range []string{quote, norm.NFC.String(quote), norm.NFD.String(quote)} {
		if hits = runeIndexAll(proj.text, q); len(hits) > 0 {
			qlen = len([]rune(q))
			break
		}
	}
	if len(hits) == 0 {
		return Result{}, notFound(sel.Quote, "quote not found in scope")
	}

	prefix := []rune(CollapseWhitespace(sel.Prefix))
	suffix := []rune(CollapseWhitespace(sel.Suffix))

	best := candidate{context: -1, distance: math.MaxInt}
	for _, k := range hits {
		c := candidate{
			start: proj.offsets[k],
			end:   proj.offsets[k+qlen-1] + 1,
		}
		c.context = commonSuffixLen(prefix, text[:k]) + commonPrefixLen(suffix, text[k+qlen:])
		c.distance = abs(c.start - sel.Start)
		if c.better(best) {
			best = c
		}
	}

	r, ok := ix.RangeAt(best.start, best.end)
	if !ok {
		return Result{}, notFound(sel.Quote, "match at [%d, %d) not addressable", best.start, best.end)
	}
	return Result{Range: r, Start: best.start, End: best.end, Reanchored: true}, nil
}

// ReviveTarget revives every selector of t. Selectors that cannot be
// anchored are dropped and the target is marked outdated (a fully revived
// target is not); an error is returned only when no selector could be
// anchored.
func ReviveTarget(t model.Target, container *document.Node) (model.Target, error) {
	out := t.Clone()
	out.Selectors = out.Selectors[:0]

	var errs []error
	for _, sel := range t.Selectors {
		if sel.Revived() && container.Contains(sel.Range.Start.Node) && quotesMatch(sel.Range.String(), sel.Quote) {
			out.Selectors = append(out.Selectors, sel)
			continue
		}
		res, err := Revive(sel.Persisted(), container)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out.Selectors = append(out.Selectors, res.Apply(sel))
	}

	out.Outdated = len(errs) > 0
	if len(out.Selectors) == 0 {
		if len(errs) == 0 {
			return out, notFound("", "target %s has no selectors", t.Annotation)
		}
		return out, errors.Join(errs...)
	}
	return out, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
