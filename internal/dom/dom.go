// Package dom defines the rendered-document capability the collection core
// consumes. The browser package provides the real CDP-backed implementation;
// tests provide in-memory fakes.
package dom

import (
	"context"
	"errors"
)

// ErrDetached indicates an element handle that no longer resolves to a live
// node, usually because the feed recycled its slot or the page navigated.
var ErrDetached = errors.New("dom: element detached from document")

// Element is an opaque handle to a rendered node. Handles are only valid for
// the Page that produced them and may go stale at any time; every operation
// taking an Element can fail with ErrDetached.
type Element struct {
	ID int
}

// Rect is an element's geometry relative to the current viewport.
type Rect struct {
	Top    float64
	Height float64
}

// Bottom returns the rect's lower edge.
func (r Rect) Bottom() float64 { return r.Top + r.Height }

// Mid returns the rect's vertical midpoint.
func (r Rect) Mid() float64 { return r.Top + r.Height/2 }

// Page is the minimal surface the resolver, extractor and advance controller
// need from a live browser page. All methods honor the context's deadline;
// implementations are expected to bound each call with a short timeout so a
// missing element degrades to an error instead of stalling the loop.
type Page interface {
	// QueryAll returns elements matching selector under root, in document
	// order. A nil root scopes the query to the whole document. limit <= 0
	// means unbounded.
	QueryAll(ctx context.Context, root *Element, selector string, limit int) ([]Element, error)

	// Closest returns the nearest ancestor of el (including el itself)
	// matching selector, or nil when none exists.
	Closest(ctx context.Context, el Element, selector string) (*Element, error)

	// BoundingRect reports el's viewport-relative geometry.
	BoundingRect(ctx context.Context, el Element) (Rect, error)

	// TextContent returns el's trimmed text content.
	TextContent(ctx context.Context, el Element) (string, error)

	// Attribute returns the named attribute and whether it was present.
	Attribute(ctx context.Context, el Element, name string) (string, bool, error)

	// ViewportHeight reports the current inner viewport height in CSS pixels.
	ViewportHeight(ctx context.Context) (float64, error)

	// DispatchScroll sends one wheel event of deltaY pixels with the pointer
	// at the viewport center.
	DispatchScroll(ctx context.Context, deltaY float64) error

	// DispatchKey sends a single key press. The key name follows DOM key
	// values ("ArrowDown", "End", ...).
	DispatchKey(ctx context.Context, key string) error

	// NavigationURL returns the page's current location href.
	NavigationURL(ctx context.Context) (string, error)
}
