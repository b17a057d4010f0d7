package fetchhttp

import (
	"context"
	"strings"

	"github.com/use-agent/gallerydiscover/config"
	"github.com/use-agent/gallerydiscover/domhtml"
	"github.com/use-agent/gallerydiscover/models"
	"github.com/use-agent/gallerydiscover/port"
)

// Opener matches the shape of scan.NavigatorOpener; declared locally so
// this package never imports scan (fetchhttp is a leaf the browser and
// scan layers build on, not the reverse).
type Opener func(ctx context.Context, url string) (port.DomAdapter, port.Navigator, error)

// NewOpener returns an Opener that fetches pages over plain HTTP and only
// defers to fallback (normally a browser.Browser.Open) when the static
// response isn't usable: a non-2xx status, a non-HTML body, or a transport
// failure. Most gallery markup is present in the initial response, so this
// skips starting Chrome for those pages entirely; cfg.StaticFirst set to
// false bypasses the static attempt altogether.
func NewOpener(cfg config.FetchConfig, fallback Opener) Opener {
	fetcher := New(cfg)
	return func(ctx context.Context, url string) (port.DomAdapter, port.Navigator, error) {
		if !cfg.StaticFirst {
			return fallback(ctx, url)
		}
		adapter, err := fetchDoc(ctx, fetcher, url)
		if err != nil {
			return fallback(ctx, url)
		}
		return adapter, &staticNavigator{fetcher: fetcher, fallback: fallback}, nil
	}
}

func fetchDoc(ctx context.Context, fetcher *Fetcher, url string) (*domhtml.Adapter, error) {
	resp, err := fetcher.Fetch(ctx, url, "GET", nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.Status < 200 || resp.Status > 299 {
		return nil, models.NewEngineError("FETCH_HTTP_STATUS", models.CategoryValidation, "non-2xx status", nil)
	}
	if ct := resp.Headers["Content-Type"]; ct != "" && !strings.Contains(ct, "html") {
		return nil, models.NewEngineError("FETCH_NOT_HTML", models.CategoryValidation, "response is not HTML", nil)
	}
	return domhtml.New(string(resp.Body), resp.FinalURL)
}

// staticNavigator implements port.Navigator over repeated plain HTTP
// fetches. Click always fails: a statically parsed document has no script
// engine to run a click handler, so click-based pagination strategies are
// left to fail and be skipped by paginate.Engine.Step's own
// next-best-detection loop rather than handled here.
type staticNavigator struct {
	fetcher  *Fetcher
	fallback Opener
}

func (n *staticNavigator) Click(ctx context.Context, h port.ElementHandle) error {
	return models.NewEngineError("STATIC_CLICK_UNSUPPORTED", models.CategoryDomUnavailable,
		"click-based pagination requires a rendered browser session", nil)
}

func (n *staticNavigator) Load(ctx context.Context, url string) (*port.NavigateResult, error) {
	adapter, err := fetchDoc(ctx, n.fetcher, url)
	if err != nil {
		// A later page turning out to need rendering (redirect into a
		// JS-gated interstitial, a non-HTML response) falls through to a
		// full browser navigation, which has already loaded url by the
		// time Open returns.
		fbAdapter, _, ferr := n.fallback(ctx, url)
		if ferr != nil {
			return nil, err
		}
		return &port.NavigateResult{Adapter: fbAdapter, FinalURL: url}, nil
	}
	return &port.NavigateResult{Adapter: adapter, FinalURL: url}, nil
}

var _ port.Navigator = (*staticNavigator)(nil)
