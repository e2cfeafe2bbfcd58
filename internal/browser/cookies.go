package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// storedCookies is the on-disk cookie snapshot.
type storedCookies struct {
	Cookies    []*network.Cookie `json:"cookies"`
	CapturedAt time.Time         `json:"captured_at"`
}

// CookieStore persists browser cookies between runs so a saved session can
// skip the login flow.
type CookieStore struct {
	path   string
	logger *zap.Logger
}

func NewCookieStore(path string, logger *zap.Logger) *CookieStore {
	return &CookieStore{path: path, logger: logger.Named("cookies")}
}

// Save captures all cookies from the tab and writes them to disk.
func (cs *CookieStore) Save(ctx context.Context) error {
	var cookies []*network.Cookie
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(actx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(actx)
		return err
	}))
	if err != nil {
		return fmt.Errorf("cookies: capture: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cs.path), 0o700); err != nil {
		return fmt.Errorf("cookies: create dir: %w", err)
	}
	data, err := json.MarshalIndent(storedCookies{
		Cookies:    cookies,
		CapturedAt: time.Now(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("cookies: marshal: %w", err)
	}
	if err := os.WriteFile(cs.path, data, 0o600); err != nil {
		return fmt.Errorf("cookies: write %s: %w", cs.path, err)
	}
	cs.logger.Info("cookies saved", zap.Int("count", len(cookies)), zap.String("path", cs.path))
	return nil
}

// Load reads the snapshot and injects the cookies into the tab. It returns
// false without error when no snapshot exists.
func (cs *CookieStore) Load(ctx context.Context) (bool, error) {
	data, err := os.ReadFile(cs.path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cookies: read %s: %w", cs.path, err)
	}
	var stored storedCookies
	if err := json.Unmarshal(data, &stored); err != nil {
		return false, fmt.Errorf("cookies: decode %s: %w", cs.path, err)
	}
	if len(stored.Cookies) == 0 {
		return false, nil
	}

	err = chromedp.Run(ctx, chromedp.ActionFunc(func(actx context.Context) error {
		for _, c := range stored.Cookies {
			if err := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly).
				WithSameSite(c.SameSite).
				Do(actx); err != nil {
				return err
			}
		}
		return nil
	}))
	if err != nil {
		return false, fmt.Errorf("cookies: inject: %w", err)
	}
	cs.logger.Info("cookies restored",
		zap.Int("count", len(stored.Cookies)),
		zap.Time("captured_at", stored.CapturedAt))
	return true, nil
}

// Clear removes the snapshot file.
func (cs *CookieStore) Clear() error {
	err := os.Remove(cs.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
