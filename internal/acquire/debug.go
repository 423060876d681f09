// internal/acquire/debug.go - Failure captures for offline diagnosis
package acquire

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

// capturePage saves a screenshot and the page HTML for a failed browser
// acquisition. Strictly best effort: a capture failure only logs.
func capturePage(ctx context.Context, dir, site, stage string) {
	if dir == "" {
		return
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		logrus.WithError(err).Warn("Failed to create debug directory")
		return
	}

	// the failing context may already be past its deadline; detach so the
	// capture still gets a few seconds with the page
	captureCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	base := filepath.Join(dir, fmt.Sprintf("%s_%s", safeName(site), stage))

	var shot []byte
	if err := chromedp.Run(captureCtx, chromedp.CaptureScreenshot(&shot)); err == nil {
		if err := os.WriteFile(base+".png", shot, 0644); err != nil {
			logrus.WithError(err).Warn("Failed to write debug screenshot")
		}
	}

	var html string
	if err := chromedp.Run(captureCtx, chromedp.OuterHTML("html", &html)); err == nil {
		if err := os.WriteFile(base+".html", []byte(html), 0644); err != nil {
			logrus.WithError(err).Warn("Failed to write debug page snapshot")
		}
	}

	logrus.WithFields(logrus.Fields{
		"site":  site,
		"stage": stage,
		"path":  base,
	}).Info("Captured debug artifacts")
}

func safeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
