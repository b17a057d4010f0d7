// Package browser is the browser-backed port.DomAdapter/port.Navigator
// pair: a real Chromium tab via go-rod, stealth-patched so a scan is not
// trivially distinguished from a human visit. Grounded on the teacher's
// scraper package (scraper.go's launcher/stealth setup, page.go's
// navigate/wait/extract lifecycle, hijack.go's resource-type blocking,
// actions.go's click/scroll dispatch), generalized from "scrape one page
// and return its HTML" to "hand the engine a live DomAdapter + Navigator
// over a document that keeps navigating".
package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/use-agent/gallerydiscover/config"
)

// Browser owns the Chromium process and hands out pages. One Browser is
// shared across a scan; each gallery page gets its own Page via Open.
type Browser struct {
	cfg     config.BrowserConfig
	browser *rod.Browser
}

// New launches a stealth-patched, headless-by-default Chromium instance.
func New(cfg config.BrowserConfig) (*Browser, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox).
		Set("disable-blink-features", "AutomationControlled").
		Delete("enable-automation").
		Set("disable-background-timer-throttling").
		Set("disable-backgrounding-occluded-windows").
		Set("disable-renderer-backgrounding").
		Set("disable-infobars")
	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}

	return &Browser{cfg: cfg, browser: b}, nil
}

// Close shuts down the underlying Chromium process.
func (b *Browser) Close() error {
	return b.browser.Close()
}

// Open navigates a fresh page to url and returns its Adapter/Navigator
// pair. This is the entry point for SCAN_START: everything after the
// first page is driven through the returned Navigator.
func (b *Browser) Open(ctx context.Context, url string) (*Adapter, *Navigator, error) {
	page, err := b.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, nil, fmt.Errorf("creating page: %w", err)
	}
	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		// Stealth is a defense-in-depth measure, not a correctness
		// requirement: a scan still proceeds without it.
		_ = err
	}

	nav := &Navigator{page: page}
	if err := nav.load(ctx, url); err != nil {
		_ = page.Close()
		return nil, nil, err
	}
	return nav.adapter, nav, nil
}
