// ABOUTME: Converts live ranges into persisted text selectors
// ABOUTME: Offsets are relative to the container or an offset reference ancestor

package anchor

import (
	"github.com/nainya/textanchor/pkg/document"
	"github.com/nainya/textanchor/pkg/model"
)

// Options controls selector creation
type Options struct {
	// OffsetReference selects an ancestor element (with an id) that offsets
	// are relative to; nil means the container
	OffsetReference func(*document.Node) bool
	// ContextLength is the number of prefix/suffix characters stored; zero
	// disables context
	ContextLength int
}

// ByClass matches elements carrying class
func ByClass(class string) func(*document.Node) bool {
	return func(n *document.Node) bool { return n.HasClass(class) }
}

// ByName matches elements by tag name
func ByName(name string) func(*document.Node) bool {
	return func(n *document.Node) bool { return n.Name == name }
}

// ToSelector computes the persisted selector for a live range
func ToSelector(r document.Range, container *document.Node, opts Options) (model.TextSelector, error) {
	r, err := TrimToContainer(r, container)
	if err != nil {
		return model.TextSelector{}, err
	}

	scope, scopeID := container, ""
	if opts.OffsetReference != nil {
		ref := r.Start.Node.Closest(func(n *document.Node) bool {
			return n.ElementID() != "" && opts.OffsetReference(n)
		})
		if ref != nil && ref != container && container.Contains(ref) && ref.Contains(r.End.Node) {
			scope, scopeID = ref, ref.ElementID()
		}
	}

	ix := document.NewTextIndex(scope)
	start, ok := ix.OffsetOf(r.Start)
	if !ok {
		return model.TextSelector{}, ErrOutsideContainer
	}
	end, ok := ix.OffsetOf(r.End)
	if !ok {
		return model.TextSelector{}, ErrOutsideContainer
	}
	if end <= start {
		return model.TextSelector{}, ErrEmptyRange
	}

	live := r
	sel := model.TextSelector{
		Quote: CollapseWhitespace(r.String()),
		Start: start,
		End:   end,
		Range: &live,
		Scope: scopeID,
	}
	if opts.ContextLength > 0 {
		sel.Prefix, sel.Suffix = QuoteContext(r, scope, opts.ContextLength)
	}
	return sel, nil
}
