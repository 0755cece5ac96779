// Package cookies reads the x.com session cookies from a local Chrome profile.
package cookies

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

// ErrMissing is returned when the profile holds no logged-in x.com session.
var ErrMissing = errors.New("auth_token or ct0 cookie missing")

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Session holds the cookies that authorize x.com API calls.
type Session struct {
	AuthToken string `json:"authToken"`
	CT0       string `json:"ct0"`
}

// Extract starts Chrome on profileDir (for example ~/.config/chromium/Default),
// opens x.com and returns the session cookies the profile carries.
// Chrome must not already be running on the same profile.
func Extract(ctx context.Context, profileDir string, headless bool) (Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.UserDataDir(filepath.Dir(profileDir)),
		chromedp.Flag("profile-directory", filepath.Base(profileDir)),
		// Prevent navigator.webdriver = true.
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(userAgent),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	var all []*network.Cookie
	err := chromedp.Run(browserCtx,
		chromedp.Navigate("https://x.com"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			all, err = storage.GetCookies().Do(ctx)
			return err
		}),
	)
	if err != nil {
		return Session{}, fmt.Errorf("read cookies from %s: %w", profileDir, err)
	}

	return Pick(all)
}

// Pick selects the x.com session cookies. Cookies of other sites are ignored.
func Pick(all []*network.Cookie) (Session, error) {
	var s Session
	for _, c := range all {
		if c == nil || !isXDomain(c.Domain) {
			continue
		}
		switch c.Name {
		case "auth_token":
			s.AuthToken = c.Value
		case "ct0":
			s.CT0 = c.Value
		}
	}
	if s.AuthToken == "" || s.CT0 == "" {
		return Session{}, ErrMissing
	}
	return s, nil
}

func isXDomain(domain string) bool {
	d := strings.TrimPrefix(domain, ".")
	return d == "x.com" || d == "twitter.com"
}
