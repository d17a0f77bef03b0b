// ABOUTME: In-memory R-tree over r2 boxes with bulk loading
// ABOUTME: Insert, Remove, Search and OMT bulk Load keep node boxes tight after every change

package rtree

import (
	"math"
	"sort"

	"github.com/golang/geo/r2"
)

const (
	DEFAULT_MAX_ENTRIES = 9
	MIN_FILL_RATIO      = 0.4
)

// Entry is a value stored under a box
type Entry[T comparable] struct {
	Box   r2.Rect
	Value T
}

// node is either an internal node, a leaf, or an item stored in a leaf
type node[T comparable] struct {
	box      r2.Rect
	children []*node[T]
	height   int  // 1 for leaves
	leaf     bool // children are items
	item     bool
	value    T
}

// Tree is an R-tree keyed by box; values must be comparable so Remove can
// find them again
type Tree[T comparable] struct {
	root       *node[T]
	maxEntries int
	minEntries int
	size       int
}

// New creates an empty tree with the default node fanout
func New[T comparable]() *Tree[T] {
	return NewWithFanout[T](DEFAULT_MAX_ENTRIES)
}

// NewWithFanout creates an empty tree with the given maximum node size
func NewWithFanout[T comparable](maxEntries int) *Tree[T] {
	if maxEntries < 4 {
		maxEntries = 4
	}
	minEntries := int(math.Ceil(float64(maxEntries) * MIN_FILL_RATIO))
	if minEntries < 2 {
		minEntries = 2
	}

	t := &Tree[T]{maxEntries: maxEntries, minEntries: minEntries}
	t.Clear()
	return t
}

// Clear removes everything
func (t *Tree[T]) Clear() {
	t.root = newLeaf[T](nil)
	t.size = 0
}

// Len returns the number of stored entries
func (t *Tree[T]) Len() int {
	return t.size
}

// Bounds returns the box covering all entries
func (t *Tree[T]) Bounds() r2.Rect {
	return t.root.box
}

// Search returns the values whose boxes intersect box (edges inclusive)
func (t *Tree[T]) Search(box r2.Rect) []T {
	var result []T
	if t.size == 0 || !box.Intersects(t.root.box) {
		return result
	}

	stack := []*node[T]{t.root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, child := range n.children {
			if !box.Intersects(child.box) {
				continue
			}
			switch {
			case child.item:
				result = append(result, child.value)
			case box.Contains(child.box):
				result = collect(child, result)
			default:
				stack = append(stack, child)
			}
		}
	}
	return result
}

// Collides reports whether any entry intersects box
func (t *Tree[T]) Collides(box r2.Rect) bool {
	if t.size == 0 || !box.Intersects(t.root.box) {
		return false
	}

	stack := []*node[T]{t.root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, child := range n.children {
			if !box.Intersects(child.box) {
				continue
			}
			if child.item || box.Contains(child.box) {
				return true
			}
			stack = append(stack, child)
		}
	}
	return false
}

// All returns every stored value
func (t *Tree[T]) All() []T {
	return collect(t.root, nil)
}

// Insert adds a value under box
func (t *Tree[T]) Insert(box r2.Rect, value T) {
	item := &node[T]{box: box, item: true, value: value}

	var path []*node[T]
	n := t.chooseSubtree(box, &path)
	n.children = append(n.children, item)
	n.box = n.box.Union(box)

	// Split overflowing nodes from the leaf upwards
	level := len(path) - 1
	for level >= 0 && len(path[level].children) > t.maxEntries {
		t.split(path, level)
		level--
	}

	for ; level >= 0; level-- {
		path[level].box = path[level].box.Union(box)
	}
	t.size++
}

// Remove deletes the entry holding value under box; returns false when it
// is not present
func (t *Tree[T]) Remove(box r2.Rect, value T) bool {
	var path []*node[T]
	var indexes []int

	n := t.root
	i := 0
	goingUp := false

	for n != nil || len(path) > 0 {
		if n == nil {
			// Go up
			n = path[len(path)-1]
			path = path[:len(path)-1]
			i = indexes[len(indexes)-1]
			indexes = indexes[:len(indexes)-1]
			goingUp = true
		}

		if n.leaf {
			for idx, child := range n.children {
				if child.value == value {
					n.children = append(n.children[:idx], n.children[idx+1:]...)
					path = append(path, n)
					t.condense(path)
					t.size--
					return true
				}
			}
		}

		switch {
		case !goingUp && !n.leaf && n.box.Contains(box):
			// Go down
			path = append(path, n)
			indexes = append(indexes, i)
			i = 0
			n = n.children[0]
		case len(path) > 0:
			// Go right
			parent := path[len(path)-1]
			i++
			if i < len(parent.children) {
				n = parent.children[i]
			} else {
				n = nil
			}
			goingUp = false
		default:
			n = nil
		}
	}
	return false
}

// Load bulk-inserts entries. Loading into an empty tree uses OMT packing; a
// non-empty tree is repacked together with its existing entries.
func (t *Tree[T]) Load(entries []Entry[T]) {
	if len(entries) == 0 {
		return
	}

	if t.size == 0 && len(entries) < t.minEntries {
		for _, e := range entries {
			t.Insert(e.Box, e.Value)
		}
		return
	}

	items := make([]*node[T], 0, t.size+len(entries))
	walkItems(t.root, func(item *node[T]) {
		items = append(items, item)
	})
	for _, e := range entries {
		items = append(items, &node[T]{box: e.Box, item: true, value: e.Value})
	}

	t.root = t.build(items, 0, len(items)-1, 0)
	t.size = len(items)
}

// build packs items[left..right] into a subtree (OMT)
func (t *Tree[T]) build(items []*node[T], left, right, height int) *node[T] {
	n := right - left + 1
	m := t.maxEntries

	if n <= m {
		leaf := newLeaf(append([]*node[T](nil), items[left:right+1]...))
		calcBox(leaf)
		return leaf
	}

	if height == 0 {
		// Target height of the bulk-loaded tree
		height = int(math.Ceil(math.Log(float64(n)) / math.Log(float64(m))))
		// Target number of root entries to maximize storage utilization
		m = int(math.Ceil(float64(n) / math.Pow(float64(m), float64(height-1))))
	}

	parent := &node[T]{height: height}

	n2 := int(math.Ceil(float64(n) / float64(m)))
	n1 := n2 * int(math.Ceil(math.Sqrt(float64(m))))

	multiSelect(items, left, right, n1, lessMinX[T])

	for i := left; i <= right; i += n1 {
		right2 := min(i+n1-1, right)
		multiSelect(items, i, right2, n2, lessMinY[T])

		for j := i; j <= right2; j += n2 {
			right3 := min(j+n2-1, right2)
			parent.children = append(parent.children, t.build(items, j, right3, height-1))
		}
	}

	calcBox(parent)
	return parent
}

// chooseSubtree descends to the leaf whose box grows least by box
func (t *Tree[T]) chooseSubtree(box r2.Rect, path *[]*node[T]) *node[T] {
	n := t.root
	for {
		*path = append(*path, n)
		if n.leaf {
			return n
		}

		minEnlargement := math.Inf(1)
		minArea := math.Inf(1)
		var target *node[T]

		for _, child := range n.children {
			a := area(child.box)
			enlargement := area(child.box.Union(box)) - a

			if enlargement < minEnlargement {
				minEnlargement = enlargement
				if a < minArea {
					minArea = a
				}
				target = child
			} else if enlargement == minEnlargement && a < minArea {
				minArea = a
				target = child
			}
		}

		if target == nil {
			target = n.children[0]
		}
		n = target
	}
}

// split divides an overflowing node in two along the best axis
func (t *Tree[T]) split(path []*node[T], level int) {
	n := path[level]
	count := len(n.children)

	t.chooseSplitAxis(n, count)
	at := t.chooseSplitIndex(n, count)

	sibling := &node[T]{
		children: append([]*node[T](nil), n.children[at:]...),
		height:   n.height,
		leaf:     n.leaf,
	}
	n.children = n.children[:at:at]

	calcBox(n)
	calcBox(sibling)

	if level > 0 {
		parent := path[level-1]
		parent.children = append(parent.children, sibling)
		return
	}

	// Root split grows the tree
	t.root = &node[T]{children: []*node[T]{n, sibling}, height: n.height + 1}
	calcBox(t.root)
}

// chooseSplitAxis sorts children by the axis with the smallest total margin
func (t *Tree[T]) chooseSplitAxis(n *node[T], count int) {
	xMargin := t.allDistMargin(n, count, lessMinX[T])
	yMargin := t.allDistMargin(n, count, lessMinY[T])

	if xMargin < yMargin {
		sort.SliceStable(n.children, func(i, j int) bool {
			return lessMinX(n.children[i], n.children[j])
		})
	}
}

// allDistMargin sorts children with less and sums the margins of all
// candidate distributions
func (t *Tree[T]) allDistMargin(n *node[T], count int, less func(a, b *node[T]) bool) float64 {
	sort.SliceStable(n.children, func(i, j int) bool {
		return less(n.children[i], n.children[j])
	})

	m := t.minEntries
	leftBox := distBox(n.children, 0, m)
	rightBox := distBox(n.children, count-m, count)
	margin := boxMargin(leftBox) + boxMargin(rightBox)

	for i := m; i < count-m; i++ {
		leftBox = leftBox.Union(n.children[i].box)
		margin += boxMargin(leftBox)
	}
	for i := count - m - 1; i >= m; i-- {
		rightBox = rightBox.Union(n.children[i].box)
		margin += boxMargin(rightBox)
	}
	return margin
}

// chooseSplitIndex picks the distribution with least overlap, then least area
func (t *Tree[T]) chooseSplitIndex(n *node[T], count int) int {
	m := t.minEntries
	index := count - m
	minOverlap := math.Inf(1)
	minArea := math.Inf(1)

	for i := m; i <= count-m; i++ {
		left := distBox(n.children, 0, i)
		right := distBox(n.children, i, count)

		overlap := area(left.Intersection(right))
		a := area(left) + area(right)

		if overlap < minOverlap {
			minOverlap = overlap
			index = i
			if a < minArea {
				minArea = a
			}
		} else if overlap == minOverlap && a < minArea {
			minArea = a
			index = i
		}
	}
	return index
}

// condense drops empty nodes along path and shrinks the remaining boxes
func (t *Tree[T]) condense(path []*node[T]) {
	for i := len(path) - 1; i >= 0; i-- {
		if len(path[i].children) > 0 {
			calcBox(path[i])
			continue
		}

		if i == 0 {
			t.root = newLeaf[T](nil)
			continue
		}

		parent := path[i-1]
		for idx, child := range parent.children {
			if child == path[i] {
				parent.children = append(parent.children[:idx], parent.children[idx+1:]...)
				break
			}
		}
	}

	// A root with a single internal child is one level too tall
	for !t.root.leaf && len(t.root.children) == 1 {
		t.root = t.root.children[0]
	}
}

func newLeaf[T comparable](children []*node[T]) *node[T] {
	n := &node[T]{children: children, height: 1, leaf: true, box: r2.EmptyRect()}
	return n
}

func calcBox[T comparable](n *node[T]) {
	n.box = distBox(n.children, 0, len(n.children))
}

func distBox[T comparable](children []*node[T], from, to int) r2.Rect {
	box := r2.EmptyRect()
	for i := from; i < to; i++ {
		box = box.Union(children[i].box)
	}
	return box
}

func collect[T comparable](n *node[T], result []T) []T {
	walkItems(n, func(item *node[T]) {
		result = append(result, item.value)
	})
	return result
}

func walkItems[T comparable](n *node[T], fn func(*node[T])) {
	stack := []*node[T]{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range cur.children {
			if child.item {
				fn(child)
			} else {
				stack = append(stack, child)
			}
		}
	}
}

func area(b r2.Rect) float64 {
	if b.IsEmpty() {
		return 0
	}
	s := b.Size()
	return s.X * s.Y
}

func boxMargin(b r2.Rect) float64 {
	if b.IsEmpty() {
		return 0
	}
	s := b.Size()
	return s.X + s.Y
}

func lessMinX[T comparable](a, b *node[T]) bool { return a.box.X.Lo < b.box.X.Lo }
func lessMinY[T comparable](a, b *node[T]) bool { return a.box.Y.Lo < b.box.Y.Lo }

// multiSelect partially sorts items so that every n-th block is in place
// relative to the others (unordered within blocks)
func multiSelect[T comparable](items []*node[T], left, right, n int, less func(a, b *node[T]) bool) {
	stack := []int{left, right}

	for len(stack) > 0 {
		right = stack[len(stack)-1]
		left = stack[len(stack)-2]
		stack = stack[:len(stack)-2]

		if right-left <= n {
			continue
		}

		mid := left + int(math.Ceil(float64(right-left)/float64(n)/2))*n
		quickSelect(items, mid, left, right, less)

		stack = append(stack, left, mid, mid, right)
	}
}

// quickSelect rearranges items[left..right] so that items[k] is the element
// that would be there if sorted
func quickSelect[T comparable](items []*node[T], k, left, right int, less func(a, b *node[T]) bool) {
	for right > left {
		pivotIdx := left + (right-left)/2
		items[pivotIdx], items[right] = items[right], items[pivotIdx]
		pivot := items[right]

		store := left
		for i := left; i < right; i++ {
			if less(items[i], pivot) {
				items[i], items[store] = items[store], items[i]
				store++
			}
		}
		items[store], items[right] = items[right], items[store]

		switch {
		case store == k:
			return
		case k < store:
			right = store - 1
		default:
			left = store + 1
		}
	}
}
