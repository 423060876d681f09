// internal/acquire/browser.go - Interactive login strategy over headless Chrome
package acquire

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"solarwatch/internal/config"
	"solarwatch/internal/status"
)

// Secondary locator used when the configured status locator never shows
// up: several vendor dashboards render the state inside a labelled table
// cell instead of the element the login page promises.
const defaultFallbackLocator = `//td[contains(normalize-space(.), 'Connection Status')]//span/span`

// LoginStrategy drives a full interactive login in an isolated headless
// browser and reads the plant status straight off the page.
type LoginStrategy struct {
	cfg config.BrowserConfig
}

func NewLoginStrategy(cfg config.BrowserConfig) *LoginStrategy {
	return &LoginStrategy{cfg: cfg}
}

func (s *LoginStrategy) Name() string {
	return "browser_login"
}

func (s *LoginStrategy) Acquire(ctx context.Context, site *config.Site) (status.Sample, error) {
	username := os.Getenv(site.UsernameEnv)
	password := os.Getenv(site.PasswordEnv)
	if username == "" || password == "" {
		return status.Sample{}, configErr("resolve credentials",
			fmt.Errorf("environment variables %s/%s are not set", site.UsernameEnv, site.PasswordEnv))
	}

	taskCtx, cancel := newBrowserSession(ctx, s.cfg)
	defer cancel()

	taskCtx, cancelTimeout := context.WithTimeout(taskCtx, s.cfg.LoginTimeout)
	defer cancelTimeout()

	if err := chromedp.Run(taskCtx, chromedp.Navigate(site.LoginURL)); err != nil {
		return status.Sample{}, transientErr("navigate to login page", err)
	}

	dismissConsentBanner(taskCtx)

	err := chromedp.Run(taskCtx,
		chromedp.WaitVisible(site.UserField, chromedp.ByQuery),
		chromedp.SendKeys(site.UserField, username, chromedp.ByQuery),
		chromedp.SendKeys(site.PassField, password, chromedp.ByQuery),
		chromedp.Click(site.SubmitButton, chromedp.ByQuery),
	)
	if err != nil {
		capturePage(taskCtx, s.cfg.DebugDir, site.Name, "login_form")
		return status.Sample{}, permanentErr("fill login form", err)
	}

	text, err := readStatusText(taskCtx, site, s.cfg.LocatorWait)
	if err != nil {
		capturePage(taskCtx, s.cfg.DebugDir, site.Name, "status_locator")
		return status.Sample{}, permanentErr("locate status text", err)
	}

	return status.Sample{StatusText: text}, nil
}

// newBrowserSession builds an isolated headless Chrome for one acquisition.
// Each call gets its own allocator so sites can never share state.
func newBrowserSession(ctx context.Context, cfg config.BrowserConfig) (context.Context, context.CancelFunc) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)
	if cfg.BinaryPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.BinaryPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)

	return taskCtx, func() {
		cancelTask()
		cancelAlloc()
	}
}

// dismissConsentBanner clicks a cookie-consent dismissal if one is up.
// Absence of the banner is the normal case, so failure is ignored.
func dismissConsentBanner(ctx context.Context) {
	short, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_ = chromedp.Run(short,
		chromedp.Click(`//button[contains(., 'I disagree')]`, chromedp.BySearch),
	)
}

// readStatusText waits for the configured status locator and returns its
// text, lower-cased and trimmed. When the primary locator never appears
// within the wait it retries once with the fallback locator.
func readStatusText(ctx context.Context, site *config.Site, wait time.Duration) (string, error) {
	var text string

	primary, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	err := chromedp.Run(primary,
		chromedp.WaitReady(site.StatusLocator, chromedp.ByQuery),
		chromedp.Text(site.StatusLocator, &text, chromedp.ByQuery),
	)
	if err == nil {
		return normalizeText(text), nil
	}

	fallback := site.FallbackStatusLocator
	if fallback == "" {
		fallback = defaultFallbackLocator
	}

	secondary, cancelSecondary := context.WithTimeout(ctx, wait)
	defer cancelSecondary()

	if err2 := chromedp.Run(secondary,
		chromedp.Text(fallback, &text, chromedp.BySearch),
	); err2 != nil {
		return "", fmt.Errorf("status locator %q not found (fallback %q: %v): %w",
			site.StatusLocator, fallback, err2, err)
	}

	return normalizeText(text), nil
}

func normalizeText(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
