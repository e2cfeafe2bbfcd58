package feed

import (
	"context"

	"github.com/feedlark/reelwatch/internal/dom"
)

// fakeNode is one element in the scripted DOM. Selector matching is
// explicit: a node matches exactly the selectors listed for it, which keeps
// the fake honest without reimplementing a CSS engine.
type fakeNode struct {
	id      int
	parent  int
	matches map[string]bool
	rect    dom.Rect
	rectErr error
	text    string
	attrs   map[string]string
	gone    bool
}

// fakePage is a scripted dom.Page. Nodes are returned in insertion order,
// which stands in for document order.
type fakePage struct {
	nodes  map[int]*fakeNode
	order  []int
	nextID int

	vh    float64
	vhErr error

	urlFn    func() string
	scrollFn func(deltaY float64) error
	keyFn    func(key string) error

	scrolls []float64
	keys    []string
}

func newFakePage(viewportHeight float64) *fakePage {
	return &fakePage{
		nodes:  make(map[int]*fakeNode),
		nextID: 1,
		vh:     viewportHeight,
		urlFn:  func() string { return "" },
	}
}

// addNode registers a node matching the given selectors. parent 0 means a
// top-level node.
func (f *fakePage) addNode(parent int, selectors []string, rect dom.Rect, text string, attrs map[string]string) int {
	id := f.nextID
	f.nextID++
	m := make(map[string]bool, len(selectors))
	for _, s := range selectors {
		m[s] = true
	}
	if attrs == nil {
		attrs = map[string]string{}
	}
	f.nodes[id] = &fakeNode{id: id, parent: parent, matches: m, rect: rect, text: text, attrs: attrs}
	f.order = append(f.order, id)
	return id
}

func (f *fakePage) isDescendant(id, rootID int) bool {
	n := f.nodes[id]
	for n != nil && n.parent != 0 {
		if n.parent == rootID {
			return true
		}
		n = f.nodes[n.parent]
	}
	return false
}

func (f *fakePage) QueryAll(ctx context.Context, root *dom.Element, selector string, limit int) ([]dom.Element, error) {
	if root != nil {
		rn, ok := f.nodes[root.ID]
		if !ok || rn.gone {
			return nil, dom.ErrDetached
		}
	}
	var out []dom.Element
	for _, id := range f.order {
		n := f.nodes[id]
		if n.gone || !n.matches[selector] {
			continue
		}
		if root != nil && !f.isDescendant(id, root.ID) {
			continue
		}
		out = append(out, dom.Element{ID: id})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakePage) Closest(ctx context.Context, el dom.Element, selector string) (*dom.Element, error) {
	n, ok := f.nodes[el.ID]
	if !ok || n.gone {
		return nil, dom.ErrDetached
	}
	for n != nil {
		if n.matches[selector] {
			return &dom.Element{ID: n.id}, nil
		}
		n = f.nodes[n.parent]
	}
	return nil, nil
}

func (f *fakePage) BoundingRect(ctx context.Context, el dom.Element) (dom.Rect, error) {
	n, ok := f.nodes[el.ID]
	if !ok || n.gone {
		return dom.Rect{}, dom.ErrDetached
	}
	if n.rectErr != nil {
		return dom.Rect{}, n.rectErr
	}
	return n.rect, nil
}

func (f *fakePage) TextContent(ctx context.Context, el dom.Element) (string, error) {
	n, ok := f.nodes[el.ID]
	if !ok || n.gone {
		return "", dom.ErrDetached
	}
	return n.text, nil
}

func (f *fakePage) Attribute(ctx context.Context, el dom.Element, name string) (string, bool, error) {
	n, ok := f.nodes[el.ID]
	if !ok || n.gone {
		return "", false, dom.ErrDetached
	}
	v, present := n.attrs[name]
	return v, present, nil
}

func (f *fakePage) ViewportHeight(ctx context.Context) (float64, error) {
	if f.vhErr != nil {
		return 0, f.vhErr
	}
	return f.vh, nil
}

func (f *fakePage) DispatchScroll(ctx context.Context, deltaY float64) error {
	f.scrolls = append(f.scrolls, deltaY)
	if f.scrollFn != nil {
		return f.scrollFn(deltaY)
	}
	return nil
}

func (f *fakePage) DispatchKey(ctx context.Context, key string) error {
	f.keys = append(f.keys, key)
	if f.keyFn != nil {
		return f.keyFn(key)
	}
	return nil
}

func (f *fakePage) NavigationURL(ctx context.Context) (string, error) {
	return f.urlFn(), nil
}
