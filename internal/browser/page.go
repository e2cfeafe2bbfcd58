package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/feedlark/reelwatch/internal/dom"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// registryJS holds the element registry shared by all page calls. Elements
// get stable integer handles; a handle whose element left the document
// reports detached instead of resolving to a stale node.
const registryJS = `
    const reg = window.__rwReg || (window.__rwReg = { next: 1, byId: new Map(), ids: new WeakMap() });
    const put = (el) => {
        let id = reg.ids.get(el);
        if (!id) {
            id = reg.next++;
            reg.ids.set(el, id);
            reg.byId.set(id, el);
        }
        return id;
    };
    const get = (id) => {
        const el = reg.byId.get(id);
        if (!el || !el.isConnected) return null;
        return el;
    };
`

// Page implements the DOM capability surface over a chromedp tab context.
// Methods expect ctx to be (or derive from) the tab context returned by
// Browser.Tab.
type Page struct {
	opTimeout time.Duration
	logger    *zap.Logger
}

func NewPage(opTimeout time.Duration, logger *zap.Logger) *Page {
	return &Page{opTimeout: opTimeout, logger: logger.Named("page")}
}

func awaitPromise(p *runtime.CallFunctionOnParams) *runtime.CallFunctionOnParams {
	return p.WithAwaitPromise(true)
}

// call runs a JS function body that returns JSON.stringify output and
// unmarshals it into out.
func (p *Page) call(ctx context.Context, js string, out interface{}, args ...interface{}) error {
	cctx := ctx
	if p.opTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, p.opTimeout)
		defer cancel()
	}
	var raw string
	if err := chromedp.Run(cctx, chromedp.CallFunctionOn(js, &raw, awaitPromise, args...)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("page: js call: %w", err)
	}
	if out == nil {
		return nil
	}
	if err := json.UnmarshalFromString(raw, out); err != nil {
		return fmt.Errorf("page: decode js result: %w", err)
	}
	return nil
}

const queryAllJS = `(rootID, selector, limit) => {` + registryJS + `
    let scope = document;
    if (rootID > 0) {
        scope = get(rootID);
        if (!scope) return JSON.stringify({ detached: true, ids: [] });
    }
    const ids = [];
    for (const el of scope.querySelectorAll(selector)) {
        ids.push(put(el));
        if (limit > 0 && ids.length >= limit) break;
    }
    return JSON.stringify({ detached: false, ids: ids });
}`

func (p *Page) QueryAll(ctx context.Context, root *dom.Element, selector string, limit int) ([]dom.Element, error) {
	rootID := 0
	if root != nil {
		rootID = root.ID
	}
	var res struct {
		Detached bool  `json:"detached"`
		IDs      []int `json:"ids"`
	}
	if err := p.call(ctx, queryAllJS, &res, rootID, selector, limit); err != nil {
		return nil, err
	}
	if res.Detached {
		return nil, dom.ErrDetached
	}
	els := make([]dom.Element, len(res.IDs))
	for i, id := range res.IDs {
		els[i] = dom.Element{ID: id}
	}
	return els, nil
}

const closestJS = `(id, selector) => {` + registryJS + `
    const el = get(id);
    if (!el) return JSON.stringify({ detached: true });
    const hit = el.closest(selector);
    if (!hit) return JSON.stringify({ found: false });
    return JSON.stringify({ found: true, id: put(hit) });
}`

func (p *Page) Closest(ctx context.Context, el dom.Element, selector string) (*dom.Element, error) {
	var res struct {
		Detached bool `json:"detached"`
		Found    bool `json:"found"`
		ID       int  `json:"id"`
	}
	if err := p.call(ctx, closestJS, &res, el.ID, selector); err != nil {
		return nil, err
	}
	if res.Detached {
		return nil, dom.ErrDetached
	}
	if !res.Found {
		return nil, nil
	}
	return &dom.Element{ID: res.ID}, nil
}

const boundingRectJS = `(id) => {` + registryJS + `
    const el = get(id);
    if (!el) return JSON.stringify({ detached: true });
    const r = el.getBoundingClientRect();
    return JSON.stringify({ detached: false, top: r.top, height: r.height });
}`

func (p *Page) BoundingRect(ctx context.Context, el dom.Element) (dom.Rect, error) {
	var res struct {
		Detached bool    `json:"detached"`
		Top      float64 `json:"top"`
		Height   float64 `json:"height"`
	}
	if err := p.call(ctx, boundingRectJS, &res, el.ID); err != nil {
		return dom.Rect{}, err
	}
	if res.Detached {
		return dom.Rect{}, dom.ErrDetached
	}
	return dom.Rect{Top: res.Top, Height: res.Height}, nil
}

const textContentJS = `(id) => {` + registryJS + `
    const el = get(id);
    if (!el) return JSON.stringify({ detached: true });
    return JSON.stringify({ detached: false, text: el.textContent || "" });
}`

func (p *Page) TextContent(ctx context.Context, el dom.Element) (string, error) {
	var res struct {
		Detached bool   `json:"detached"`
		Text     string `json:"text"`
	}
	if err := p.call(ctx, textContentJS, &res, el.ID); err != nil {
		return "", err
	}
	if res.Detached {
		return "", dom.ErrDetached
	}
	return res.Text, nil
}

const attributeJS = `(id, name) => {` + registryJS + `
    const el = get(id);
    if (!el) return JSON.stringify({ detached: true });
    const v = el.getAttribute(name);
    if (v === null) return JSON.stringify({ detached: false, present: false });
    return JSON.stringify({ detached: false, present: true, value: v });
}`

func (p *Page) Attribute(ctx context.Context, el dom.Element, name string) (string, bool, error) {
	var res struct {
		Detached bool   `json:"detached"`
		Present  bool   `json:"present"`
		Value    string `json:"value"`
	}
	if err := p.call(ctx, attributeJS, &res, el.ID, name); err != nil {
		return "", false, err
	}
	if res.Detached {
		return "", false, dom.ErrDetached
	}
	if !res.Present {
		return "", false, nil
	}
	return res.Value, true, nil
}

const viewportJS = `() => JSON.stringify({ width: window.innerWidth, height: window.innerHeight })`

func (p *Page) ViewportHeight(ctx context.Context) (float64, error) {
	_, h, err := p.viewport(ctx)
	return h, err
}

func (p *Page) viewport(ctx context.Context) (float64, float64, error) {
	var res struct {
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}
	if err := p.call(ctx, viewportJS, &res); err != nil {
		return 0, 0, err
	}
	return res.Width, res.Height, nil
}

// DispatchScroll sends a trusted wheel event at the viewport center. A
// synthetic window.scrollBy does not reach the feed's wheel handler, so the
// event goes through the input domain.
func (p *Page) DispatchScroll(ctx context.Context, deltaY float64) error {
	w, h, err := p.viewport(ctx)
	if err != nil {
		return err
	}
	cctx := ctx
	if p.opTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, p.opTimeout)
		defer cancel()
	}
	err = chromedp.Run(cctx, chromedp.ActionFunc(func(actx context.Context) error {
		return input.DispatchMouseEvent(input.MouseWheel, w/2, h/2).
			WithDeltaX(0).
			WithDeltaY(deltaY).
			Do(actx)
	}))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("page: dispatch wheel: %w", err)
	}
	return nil
}

var keyNames = map[string]string{
	"ArrowDown":  kb.ArrowDown,
	"ArrowUp":    kb.ArrowUp,
	"ArrowLeft":  kb.ArrowLeft,
	"ArrowRight": kb.ArrowRight,
	"Enter":      kb.Enter,
	"Escape":     kb.Escape,
}

func (p *Page) DispatchKey(ctx context.Context, key string) error {
	code, ok := keyNames[key]
	if !ok {
		code = key
	}
	cctx := ctx
	if p.opTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, p.opTimeout)
		defer cancel()
	}
	if err := chromedp.Run(cctx, chromedp.KeyEvent(code)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("page: dispatch key %s: %w", key, err)
	}
	return nil
}

func (p *Page) NavigationURL(ctx context.Context) (string, error) {
	cctx := ctx
	if p.opTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, p.opTimeout)
		defer cancel()
	}
	var url string
	if err := chromedp.Run(cctx, chromedp.Location(&url)); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("page: read location: %w", err)
	}
	return url, nil
}
