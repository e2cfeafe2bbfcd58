// Package browser owns the Chrome process lifecycle and implements the DOM
// capability surface the feed packages consume.
package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/feedlark/reelwatch/internal/config"
)

// Browser wraps an allocated Chrome instance and its single tab.
type Browser struct {
	tab         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	logger      *zap.Logger
	cfg         config.BrowserConfig
}

// Launch starts Chrome and opens one tab. The returned Browser must be
// closed by the caller.
func Launch(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Browser, error) {
	log := logger.Named("browser")

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	for _, arg := range cfg.Args {
		opts = append(opts, chromedp.Flag(arg, true))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tab, cancelTab := chromedp.NewContext(allocCtx)

	// Force the browser process to start now so launch failures surface here
	// rather than on the first real action.
	if err := chromedp.Run(tab); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("browser: launch chrome: %w", err)
	}

	log.Info("browser launched",
		zap.Bool("headless", cfg.Headless),
		zap.Int("viewport_width", cfg.ViewportWidth),
		zap.Int("viewport_height", cfg.ViewportHeight))

	return &Browser{
		tab:         tab,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		logger:      log,
		cfg:         cfg,
	}, nil
}

// Tab returns the chromedp context for the browser's single tab. All page
// operations run against this context.
func (b *Browser) Tab() context.Context { return b.tab }

// Navigate loads url and waits for the document to become ready.
func (b *Browser) Navigate(ctx context.Context, url string) error {
	nctx := b.tab
	if b.cfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		nctx, cancel = context.WithTimeout(b.tab, b.cfg.NavigationTimeout)
		defer cancel()
	}
	b.logger.Info("navigating", zap.String("url", url))
	if err := chromedp.Run(nctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("browser: navigate to %s: %w", url, err)
	}
	return nil
}

// Page returns the DOM capability view over this browser's tab.
func (b *Browser) Page() *Page {
	return NewPage(b.cfg.OpTimeout, b.logger)
}

// Close tears the tab and the Chrome process down.
func (b *Browser) Close() {
	b.logger.Debug("closing browser")
	// chromedp.Cancel waits for a graceful browser shutdown.
	if err := chromedp.Cancel(b.tab); err != nil {
		b.logger.Warn("graceful browser shutdown failed", zap.Error(err))
	}
	b.cancelTab()
	b.cancelAlloc()
}
