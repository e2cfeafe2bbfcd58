// Package auth establishes an authenticated browser session, preferring a
// restored cookie snapshot and falling back to the interactive login form.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/feedlark/reelwatch/internal/browser"
	"github.com/feedlark/reelwatch/internal/config"
	"github.com/feedlark/reelwatch/internal/pace"
)

const (
	loginURL    = "https://www.instagram.com/accounts/login/"
	loginMarker = "accounts/login"
)

// ErrLoginFailed indicates the form was submitted but the page never left
// the login route, or it showed an error alert.
var ErrLoginFailed = errors.New("auth: login failed")

// The form's markup shifts between rollouts, so each element gets a list of
// selectors tried in order.
var (
	usernameSelectors = []string{
		`input[name="username"]`,
		`#loginForm input[type="text"]`,
		`input[aria-label*="username"]`,
		`input[aria-label*="사용자 이름"]`,
	}
	passwordSelectors = []string{
		`input[name="password"]`,
		`#loginForm input[type="password"]`,
		`input[type="password"]`,
	}
	submitSelectors = []string{
		`#loginForm button[type="submit"]`,
		`button[type="submit"]`,
	}
)

// dismissLabels are the buttons that interrupt a fresh session: save-login
// prompts and notification prompts, in both languages the feed serves.
var dismissLabels = []string{"Not Now", "Not now", "나중에 하기", "취소"}

const errorAlertSelector = `div[role="alert"]`

// Manager drives session establishment against a launched browser.
type Manager struct {
	store  *browser.CookieStore
	logger *zap.Logger
}

func NewManager(store *browser.CookieStore, logger *zap.Logger) *Manager {
	return &Manager{store: store, logger: logger.Named("auth")}
}

// EnsureSession makes the tab authenticated when possible. Restored cookies
// win over the login form; with neither cookies nor credentials the session
// proceeds anonymously, which the feed may or may not tolerate.
func (m *Manager) EnsureSession(ctx context.Context, b *browser.Browser, cfg config.AuthConfig) error {
	restored, err := m.store.Load(b.Tab())
	if err != nil {
		m.logger.Warn("cookie restore failed", zap.Error(err))
	}
	if restored {
		if ok, err := m.verify(ctx, b); err == nil && ok {
			m.logger.Info("session restored from cookies")
			return nil
		}
		m.logger.Info("restored cookies are stale, falling back to login")
	}

	if cfg.Username == "" || cfg.Password == "" {
		m.logger.Warn("no credentials configured, continuing unauthenticated")
		return nil
	}

	if err := m.login(ctx, b, cfg.Username, cfg.Password); err != nil {
		return err
	}
	if err := m.store.Save(b.Tab()); err != nil {
		m.logger.Warn("cookie save failed", zap.Error(err))
	}
	return nil
}

// verify navigates to the site root and checks that it does not bounce to
// the login route.
func (m *Manager) verify(ctx context.Context, b *browser.Browser) (bool, error) {
	if err := b.Navigate(ctx, "https://www.instagram.com/"); err != nil {
		return false, err
	}
	if err := pace.Sleep(ctx, 2*time.Second); err != nil {
		return false, err
	}
	url, err := b.Page().NavigationURL(b.Tab())
	if err != nil {
		return false, err
	}
	return !strings.Contains(url, loginMarker), nil
}

func (m *Manager) login(ctx context.Context, b *browser.Browser, username, password string) error {
	m.logger.Info("logging in", zap.String("username", username))
	if err := b.Navigate(ctx, loginURL); err != nil {
		return err
	}

	tab := b.Tab()
	userSel, err := m.firstVisible(tab, usernameSelectors)
	if err != nil {
		return fmt.Errorf("auth: username field not found: %w", err)
	}
	passSel, err := m.firstVisible(tab, passwordSelectors)
	if err != nil {
		return fmt.Errorf("auth: password field not found: %w", err)
	}
	submitSel, err := m.firstVisible(tab, submitSelectors)
	if err != nil {
		return fmt.Errorf("auth: submit button not found: %w", err)
	}

	if err := chromedp.Run(tab,
		chromedp.SendKeys(userSel, username, chromedp.ByQuery),
		chromedp.SendKeys(passSel, password, chromedp.ByQuery),
		chromedp.Click(submitSel, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("auth: submit login form: %w", err)
	}

	// Let the redirect or the error alert land before judging the outcome.
	if err := pace.SleepJitter(ctx, 3*time.Second, 5*time.Second); err != nil {
		return err
	}

	url, err := b.Page().NavigationURL(tab)
	if err != nil {
		return err
	}
	if strings.Contains(url, loginMarker) {
		if msg := m.errorAlert(tab); msg != "" {
			m.logger.Error("login rejected", zap.String("message", msg))
			return fmt.Errorf("%w: %s", ErrLoginFailed, msg)
		}
		// One more chance for a slow redirect.
		if err := pace.Sleep(ctx, 2*time.Second); err != nil {
			return err
		}
		if url, err = b.Page().NavigationURL(tab); err == nil && strings.Contains(url, loginMarker) {
			return ErrLoginFailed
		}
	}

	m.dismissPrompts(ctx, tab)
	m.logger.Info("login succeeded")
	return nil
}

// firstVisible returns the first selector from the list that matches a
// visible element, giving each a short window to appear.
func (m *Manager) firstVisible(tab context.Context, selectors []string) (string, error) {
	var lastErr error
	for _, sel := range selectors {
		wctx, cancel := context.WithTimeout(tab, 3*time.Second)
		err := chromedp.Run(wctx, chromedp.WaitVisible(sel, chromedp.ByQuery))
		cancel()
		if err == nil {
			return sel, nil
		}
		lastErr = err
	}
	return "", lastErr
}

const clickByLabelJS = `(labels) => {
    for (const b of document.querySelectorAll('button, div[role="button"]')) {
        const t = (b.textContent || '').trim();
        if (labels.some(l => t === l)) {
            b.click();
            return true;
        }
    }
    return false;
}`

// dismissPrompts clears the post-login interstitials. Up to two can appear
// back to back.
func (m *Manager) dismissPrompts(ctx context.Context, tab context.Context) {
	for i := 0; i < 2; i++ {
		var clicked bool
		cctx, cancel := context.WithTimeout(tab, 3*time.Second)
		err := chromedp.Run(cctx, chromedp.CallFunctionOn(clickByLabelJS, &clicked,
			func(p *runtime.CallFunctionOnParams) *runtime.CallFunctionOnParams { return p },
			dismissLabels))
		cancel()
		if err != nil || !clicked {
			return
		}
		m.logger.Debug("dismissed post-login prompt")
		if err := pace.Sleep(ctx, 2*time.Second); err != nil {
			return
		}
	}
}

// errorAlert reads the login form's error text, if shown.
func (m *Manager) errorAlert(tab context.Context) string {
	cctx, cancel := context.WithTimeout(tab, 2*time.Second)
	defer cancel()
	var msg string
	err := chromedp.Run(cctx, chromedp.Text(errorAlertSelector, &msg, chromedp.ByQuery))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(msg)
}
