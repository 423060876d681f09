// internal/acquire/cookies.go - Captured-session strategy over headless Chrome
package acquire

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"solarwatch/internal/config"
	"solarwatch/internal/session"
	"solarwatch/internal/status"
)

// CookieStrategy reuses a previously captured browser session to reach a
// dashboard that would otherwise demand an interactive login (captcha,
// country picker and all).
type CookieStrategy struct {
	cfg config.BrowserConfig
}

func NewCookieStrategy(cfg config.BrowserConfig) *CookieStrategy {
	return &CookieStrategy{cfg: cfg}
}

func (s *CookieStrategy) Name() string {
	return "cookie_session"
}

func (s *CookieStrategy) Acquire(ctx context.Context, site *config.Site) (status.Sample, error) {
	art, err := session.Load(site.CookieFile)
	if err != nil {
		return status.Sample{}, configErr("load session artifact", err)
	}

	taskCtx, cancel := newBrowserSession(ctx, s.cfg)
	defer cancel()

	taskCtx, cancelTimeout := context.WithTimeout(taskCtx, s.cfg.LoginTimeout)
	defer cancelTimeout()

	if err := chromedp.Run(taskCtx, chromedp.Navigate(site.DashboardURL)); err != nil {
		return status.Sample{}, transientErr("navigate to dashboard", err)
	}

	err = chromedp.Run(taskCtx,
		injectCookies(art.Cookies),
		chromedp.Reload(),
		chromedp.Sleep(s.cfg.SettleDelay),
	)
	if err != nil {
		capturePage(taskCtx, s.cfg.DebugDir, site.Name, "cookie_inject")
		return status.Sample{}, transientErr("restore session", err)
	}

	text, err := readStatusText(taskCtx, site, s.cfg.LocatorWait)
	if err != nil {
		capturePage(taskCtx, s.cfg.DebugDir, site.Name, "status_locator")
		return status.Sample{}, permanentErr("locate status text", err)
	}

	return status.Sample{StatusText: text}, nil
}

// injectCookies plants the captured cookies into the live session. The
// sameSite attribute is never forwarded; CDP rejects the values some
// browser exports produce. Individually rejected cookies are skipped,
// matching how a manual import behaves.
func injectCookies(cookies []session.Cookie) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		for _, c := range cookies {
			p := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithSecure(c.Secure)
			if c.Expiry > 0 {
				expires := cdp.TimeSinceEpoch(time.Unix(c.Expiry, 0))
				p = p.WithExpires(&expires)
			}
			if err := p.Do(ctx); err != nil {
				logrus.WithFields(logrus.Fields{
					"cookie": c.Name,
					"domain": c.Domain,
				}).WithError(err).Debug("Skipped cookie")
			}
		}
		return nil
	}
}
