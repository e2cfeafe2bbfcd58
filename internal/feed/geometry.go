package feed

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/feedlark/reelwatch/internal/dom"
)

// Resolver infers which candidate element is the item the viewer is
// currently on. The feed recycles a fixed pool of DOM slots while the user
// advances, so node identity is worthless as an item key; the only stable
// signal is render geometry, and the current item is whichever candidate
// sits closest to the viewport's vertical center.
type Resolver struct {
	page         dom.Page
	logger       *zap.Logger
	candidateCap int
}

// NewResolver builds a Resolver over page. candidateCap bounds how many
// candidates are examined per cycle (cost control on geometry queries).
func NewResolver(page dom.Page, logger *zap.Logger, candidateCap int) *Resolver {
	if candidateCap <= 0 {
		candidateCap = 20
	}
	return &Resolver{
		page:         page,
		logger:       logger.Named("resolver"),
		candidateCap: candidateCap,
	}
}

// CurrentVideo locates the current item's video element. Video elements take
// priority; the card-container class is only searched when no video exists
// at all.
func (r *Resolver) CurrentVideo(ctx context.Context) *dom.Element {
	if el := r.resolve(ctx, videoSelector); el != nil {
		return el
	}
	return r.resolve(ctx, cardSelector)
}

// CurrentCard locates the enclosing card of the current item, falling back
// to the video element itself when no card container matches.
func (r *Resolver) CurrentCard(ctx context.Context) *dom.Element {
	if el := r.resolve(ctx, cardSelector); el != nil {
		return el
	}
	return r.resolve(ctx, videoSelector)
}

// resolve queries candidates for selector and picks the one nearest the
// viewport center. It never returns an error: a failed resolution degrades
// to the first unfiltered candidate, or nil when none exists, and the caller
// retries extraction against the whole document as a last resort.
func (r *Resolver) resolve(ctx context.Context, selector string) *dom.Element {
	candidates, err := r.page.QueryAll(ctx, nil, selector, r.candidateCap)
	if err != nil || len(candidates) == 0 {
		return nil
	}

	viewportHeight, err := r.page.ViewportHeight(ctx)
	if err != nil || viewportHeight <= 0 {
		// No viewport geometry; degraded fallback.
		r.logger.Debug("viewport height unavailable, falling back to first candidate",
			zap.String("selector", selector))
		return &candidates[0]
	}

	best := r.nearestToCenter(ctx, candidates, viewportHeight)
	if best == nil {
		// Nothing passed the visibility filter; same degraded fallback.
		return &candidates[0]
	}
	return best
}

// nearestToCenter applies the visibility filter and distance selection.
// Individual geometry failures (detached nodes, timeouts) count as failing
// the visibility filter; they must never abort the resolution.
func (r *Resolver) nearestToCenter(ctx context.Context, candidates []dom.Element, viewportHeight float64) *dom.Element {
	center := viewportHeight / 2
	var best *dom.Element
	bestDist := math.Inf(1)

	for i := range candidates {
		rect, err := r.page.BoundingRect(ctx, candidates[i])
		if err != nil {
			continue
		}
		// Fully above or fully below the viewport.
		if rect.Bottom() <= 0 || rect.Top >= viewportHeight {
			continue
		}
		dist := math.Abs(rect.Mid() - center)
		// Strict less-than keeps ties on the first candidate in DOM order.
		if dist < bestDist {
			bestDist = dist
			best = &candidates[i]
		}
	}
	return best
}
