package feed

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/feedlark/reelwatch/internal/dom"
	"github.com/feedlark/reelwatch/internal/pace"
)

const advanceKey = "ArrowDown"

// advanceState is the controller's explicit two-state machine.
type advanceState int

const (
	advanceIdle advanceState = iota
	advanceAttempting
)

// Advancer moves the feed to the next item and verifies the move by
// observing the navigation URL change. The primary method is a wheel scroll
// of one viewport height; it is less likely than key input to trigger
// focus-dependent handlers. The secondary key press exists because some
// layouts only respond to keyboard navigation. No third method is attempted
// per call; retrying is the session loop's decision.
type Advancer struct {
	page   dom.Page
	logger *zap.Logger
	settle time.Duration
	sleep  func(ctx context.Context, d time.Duration) error
	state  advanceState
}

// NewAdvancer builds an Advancer. settle is the fixed wait after each
// dispatch, sized to outlast the feed's transition animation.
func NewAdvancer(page dom.Page, logger *zap.Logger, settle time.Duration) *Advancer {
	return &Advancer{
		page:   page,
		logger: logger.Named("advancer"),
		settle: settle,
		sleep:  pace.Sleep,
		state:  advanceIdle,
	}
}

// Advance attempts one move forward. It returns true when the navigation URL
// changed (any change counts as movement; whether the canonical id changed
// is logged for diagnostics only). The only returned error is context
// cancellation.
func (a *Advancer) Advance(ctx context.Context) (bool, error) {
	a.state = advanceAttempting
	defer func() { a.state = advanceIdle }()

	before, err := a.page.NavigationURL(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		before = ""
	}

	// Primary: one wheel unit of a full viewport height.
	height, err := a.page.ViewportHeight(ctx)
	if err != nil || height <= 0 {
		height = 900
	}
	if err := a.page.DispatchScroll(ctx, height); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		a.logger.Debug("scroll dispatch failed", zap.Error(err))
	}
	moved, err := a.settleAndCompare(ctx, before)
	if err != nil {
		return false, err
	}
	if moved {
		return true, nil
	}

	// Secondary: a single move-forward key press.
	a.logger.Debug("scroll did not move the feed, trying key input")
	if err := a.page.DispatchKey(ctx, advanceKey); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		a.logger.Debug("key dispatch failed", zap.Error(err))
	}
	return a.settleAndCompare(ctx, before)
}

// settleAndCompare waits out the transition animation and reports whether
// the navigation URL changed from before.
func (a *Advancer) settleAndCompare(ctx context.Context, before string) (bool, error) {
	if err := a.sleep(ctx, a.settle); err != nil {
		return false, err
	}
	after, err := a.page.NavigationURL(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	if after == before {
		return false, nil
	}
	a.logger.Debug("feed advanced",
		zap.Bool("id_changed", CanonicalID(after) != CanonicalID(before)))
	return true, nil
}
