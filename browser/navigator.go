package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/gallerydiscover/port"
)

// blockedResourceTypes trims fonts and media from the network diet: a
// gallery scan needs image geometry, so Image is deliberately not
// blocked here (unlike the teacher's scraper, which blocks it by
// default for a plain-extraction workload).
var blockedResourceTypes = map[proto.NetworkResourceType]struct{}{
	proto.NetworkResourceTypeFont:  {},
	proto.NetworkResourceTypeMedia: {},
}

// Navigator is the browser-backed port.Navigator: clicks and URL loads
// both run against the same live page, which Adapter calls observe
// directly without a reparse step.
type Navigator struct {
	page    *rod.Page
	adapter *Adapter
	router  *rod.HijackRouter
}

// Click dispatches a trusted mouse click at h's element, then waits for
// the DOM to settle (the engine's WaitingForPage step for click-based
// pagination/load-more). The Adapter is left pointed at the same page;
// callers that need the post-click DOM re-query through Adapter, which
// always reflects the page's current state.
func (n *Navigator) Click(ctx context.Context, h port.ElementHandle) error {
	el := n.adapter.elementFor(h)
	if el == nil {
		return fmt.Errorf("click target handle %d is not resolvable", h)
	}
	if err := el.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	n.waitSettled(ctx)
	return nil
}

// Load navigates the page to url and returns a fresh Adapter over the
// reparsed document, per port.Navigator's URL-load contract.
func (n *Navigator) Load(ctx context.Context, url string) (*port.NavigateResult, error) {
	if err := n.load(ctx, url); err != nil {
		return nil, err
	}
	finalURL := evalString(n.page, `() => window.location.href`)
	if finalURL == "" {
		finalURL = url
	}
	return &port.NavigateResult{Adapter: n.adapter, FinalURL: finalURL}, nil
}

// load performs the actual navigation, mirroring scraper/page.go's
// ordering: mount the hijack router and bind the context before
// Navigate, since both only take effect for navigations issued after
// they are installed.
func (n *Navigator) load(ctx context.Context, url string) error {
	if n.router == nil {
		n.router = setupHijack(n.page)
	}

	p := n.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	n.waitSettled(ctx)
	n.adapter = newAdapter(n.page)
	return nil
}

// waitSettled waits for the DOM to stop mutating (layout-shift heuristic
// the teacher calls WaitDOMStable), a best-effort stand-in for network
// idle that does not conflict with the hijack router's Fetch-domain use.
func (n *Navigator) waitSettled(ctx context.Context) {
	p := n.page.Context(ctx)
	_ = p.WaitDOMStable(300*time.Millisecond, 0.1)
}

func evalString(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// setupHijack installs a request interceptor that fails requests for
// blockedResourceTypes, speeding up rendering without starving the
// gallery of the image bytes its own signals depend on. Returns the
// running router; the caller is responsible for stopping it when the
// page closes.
func setupHijack(page *rod.Page) *rod.HijackRouter {
	router := page.HijackRequests()
	_ = router.Add("*", "", func(ctx *rod.Hijack) {
		if _, blocked := blockedResourceTypes[ctx.Request.Type()]; blocked {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}

// Close stops the hijack router and closes the underlying page.
func (n *Navigator) Close() error {
	if n.router != nil {
		_ = n.router.Stop()
	}
	return n.page.Close()
}

var _ port.Navigator = (*Navigator)(nil)
