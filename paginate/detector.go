// Package paginate implements PaginationDetector (§4.6), PaginationEngine
// (§4.7), and URL Pattern Learning (§4.8): twelve concurrent detection
// strategies feeding a state machine that drives controlled traversal with
// a loop guard and per-hostname template learning. Grounded on the
// teacher's engine/dispatcher.go race/cancel idiom (goroutines racing to a
// channel, first-class cancellation via context) and engine/domain_memory.go
// (per-hostname learned state with TTL expiry).
package paginate

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/use-agent/gallerydiscover/canon"
	"github.com/use-agent/gallerydiscover/config"
	"github.com/use-agent/gallerydiscover/models"
	"github.com/use-agent/gallerydiscover/port"
)

// paginationParams are the query parameter names PaginationDetector
// recognizes for query-string strategies, in preference order.
var paginationParams = []string{"page", "p", "pg", "pagenum", "paged", "pageNumber", "page_number", "offset", "start"}

var pathBasedRe = regexp.MustCompile(`(?i)/(?:page/|p/|pg[-_]?|page-)(\d+)(?:/|$)`)
var bareNumericSegmentRe = regexp.MustCompile(`/(\d+)(?:/|$)`)

// localizedNext holds "next" text across the languages named in §4.6, plus
// the arrow glyphs.
var localizedNext = []string{
	"next", "siguiente", "suivant", "weiter", "nächste", "次へ", "다음",
	"下一页", "下一頁", "próximo", "proximo", "volgende", "nästa", "neste",
	"→", "›", "»", "⟩", "⇨", "➔", "➜", "➡",
}

var loadMoreText = []string{"load more", "show more", "see more", "view more", "more results", "more photos"}

var classIDNextRe = regexp.MustCompile(`(?i)next|pagination.*next|forward|arrow.*right|chevron.*right`)
var disabledClassRe = regexp.MustCompile(`(?i)\bdisabled\b`)

// Detector runs the twelve strategies against a page and its pagination
// state.
type Detector struct {
	cfg   config.PaginationConfig
	canon *canon.Canonicalizer
}

// New returns a Detector.
func New(cfg config.PaginationConfig, c *canon.Canonicalizer) *Detector {
	return &Detector{cfg: cfg, canon: c}
}

// Detect runs all strategies concurrently and returns validated detections
// sorted by confidence descending, ties broken by strategy priority.
func (d *Detector) Detect(ctx context.Context, dom port.DomAdapter, currentURL string, state *models.PaginationState) []models.PaginationDetection {
	type probe func() (models.PaginationDetection, bool)
	probes := []probe{
		func() (models.PaginationDetection, bool) { return d.learnedPattern(currentURL, state) },
		func() (models.PaginationDetection, bool) { return d.relNext(dom, currentURL) },
		func() (models.PaginationDetection, bool) { return d.queryStringLink(dom, currentURL) },
		func() (models.PaginationDetection, bool) { return d.pathBasedLink(dom, currentURL) },
		func() (models.PaginationDetection, bool) { return d.pathBasedIncremental(currentURL) },
		func() (models.PaginationDetection, bool) { return d.numberedPagination(dom, currentURL) },
		func() (models.PaginationDetection, bool) { return d.ariaLabel(dom, currentURL) },
		func() (models.PaginationDetection, bool) { return d.textContent(dom, currentURL) },
		func() (models.PaginationDetection, bool) { return d.classID(dom, currentURL) },
		func() (models.PaginationDetection, bool) { return d.queryStringIncremental(currentURL) },
		func() (models.PaginationDetection, bool) { return d.shadowDom(dom, currentURL) },
		func() (models.PaginationDetection, bool) { return d.loadMore(dom, currentURL) },
	}

	type result struct {
		det models.PaginationDetection
		ok  bool
	}
	results := make(chan result, len(probes))
	for _, p := range probes {
		go func(p probe) {
			det, ok := p()
			results <- result{det, ok}
		}(p)
	}

	var detections []models.PaginationDetection
	for range probes {
		select {
		case r := <-results:
			if r.ok {
				detections = append(detections, r.det)
			}
		case <-ctx.Done():
			goto sorted
		}
	}
sorted:
	filtered := detections[:0]
	for _, det := range detections {
		if _, failed := state.FailedStrategies[det.Strategy]; failed {
			continue
		}
		if det.Target.IsClick {
			filtered = append(filtered, det)
			continue
		}
		if d.canon.IsBadPaginationTarget(det.Target.URL) {
			continue
		}
		filtered = append(filtered, det)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].Confidence != filtered[j].Confidence {
			return filtered[i].Confidence > filtered[j].Confidence
		}
		return models.StrategyPriority[filtered[i].Strategy] < models.StrategyPriority[filtered[j].Strategy]
	})
	return filtered
}

func (d *Detector) learnedPattern(currentURL string, state *models.PaginationState) (models.PaginationDetection, bool) {
	host := hostnameOf(currentURL)
	lp, ok := state.LearnedPatterns[host]
	if !ok {
		return models.PaginationDetection{}, false
	}
	next, ok := applyLearnedPattern(currentURL, lp)
	if !ok {
		return models.PaginationDetection{}, false
	}
	return models.PaginationDetection{
		Strategy:       models.StrategyLearnedPattern,
		Target:         models.Target{URL: next},
		PaginationKind: models.KindUrlBased,
		Confidence:     0.93,
	}, true
}

func (d *Detector) relNext(dom port.DomAdapter, currentURL string) (models.PaginationDetection, bool) {
	for _, sel := range []string{`link[rel="next"]`, `a[rel="next"]`} {
		handles, err := dom.QueryAll(sel)
		if err != nil || len(handles) == 0 {
			continue
		}
		href := dom.Attributes(handles[0])["href"]
		abs, ok := d.canon.Canonicalize(href, currentURL)
		if !ok {
			continue
		}
		return models.PaginationDetection{
			Strategy:       models.StrategyRelNext,
			Target:         models.Target{URL: abs},
			PaginationKind: models.KindUrlBased,
			Confidence:     1.00,
		}, true
	}
	return models.PaginationDetection{}, false
}

func (d *Detector) queryStringLink(dom port.DomAdapter, currentURL string) (models.PaginationDetection, bool) {
	current := currentPageParam(currentURL)
	handles, err := dom.QueryAll(`[class*="pagination" i] a[href], nav a[href]`)
	if err != nil {
		return models.PaginationDetection{}, false
	}
	for _, h := range handles {
		href := dom.Attributes(h)["href"]
		abs, ok := d.canon.Canonicalize(href, currentURL)
		if !ok {
			continue
		}
		if n, param, ok := extractParamValue(abs); ok && current.ok && param == current.param && n == current.n+1 {
			return models.PaginationDetection{
				Strategy:       models.StrategyQueryStringLink,
				Target:         models.Target{URL: abs},
				PaginationKind: models.KindUrlBased,
				Confidence:     0.95,
			}, true
		}
	}
	return models.PaginationDetection{}, false
}

func (d *Detector) pathBasedLink(dom port.DomAdapter, currentURL string) (models.PaginationDetection, bool) {
	current := currentPathPage(currentURL)
	handles, err := dom.QueryAll("a[href]")
	if err != nil {
		return models.PaginationDetection{}, false
	}
	for _, h := range handles {
		href := dom.Attributes(h)["href"]
		abs, ok := d.canon.Canonicalize(href, currentURL)
		if !ok {
			continue
		}
		m := pathBasedRe.FindStringSubmatch(abs)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		if current.ok && n == current.n+1 {
			return models.PaginationDetection{
				Strategy:       models.StrategyPathBasedLink,
				Target:         models.Target{URL: abs},
				PaginationKind: models.KindUrlBased,
				Confidence:     0.92,
			}, true
		}
	}
	return models.PaginationDetection{}, false
}

func (d *Detector) pathBasedIncremental(currentURL string) (models.PaginationDetection, bool) {
	current := currentPathPage(currentURL)
	if !current.ok {
		return models.PaginationDetection{}, false
	}
	next := pathBasedRe.ReplaceAllString(current.raw, "")
	_ = next
	nextURL := replaceFirstNumber(currentURL, current.n, current.n+1)
	abs, ok := d.canon.Canonicalize(nextURL, currentURL)
	if !ok {
		return models.PaginationDetection{}, false
	}
	return models.PaginationDetection{
		Strategy:       models.StrategyPathBasedIncremental,
		Target:         models.Target{URL: abs},
		PaginationKind: models.KindUrlBased,
		Confidence:     0.90,
	}, true
}

func (d *Detector) numberedPagination(dom port.DomAdapter, currentURL string) (models.PaginationDetection, bool) {
	handles, err := dom.QueryAll(`[class*="pagination" i] a, [class*="pagination" i] span, nav[aria-label*="pagination" i] a`)
	if err != nil || len(handles) == 0 {
		return models.PaginationDetection{}, false
	}
	activeIdx := -1
	for i, h := range handles {
		attrs := dom.Attributes(h)
		class := attrs["class"]
		if attrs["aria-current"] == "page" || strings.Contains(class, "active") || strings.Contains(class, "current") {
			activeIdx = i
			break
		}
	}
	if activeIdx < 0 || activeIdx+1 >= len(handles) {
		return models.PaginationDetection{}, false
	}
	nextEl := handles[activeIdx+1]
	if !isValidTarget(dom, nextEl) {
		return models.PaginationDetection{}, false
	}
	href := dom.Attributes(nextEl)["href"]
	if href == "" {
		return models.PaginationDetection{
			Strategy:       models.StrategyNumberedPagination,
			Target:         models.Target{Click: nextEl, IsClick: true},
			PaginationKind: models.KindButtonBased,
			Confidence:     0.95,
		}, true
	}
	abs, ok := d.canon.Canonicalize(href, currentURL)
	if !ok {
		return models.PaginationDetection{}, false
	}
	return models.PaginationDetection{
		Strategy:       models.StrategyNumberedPagination,
		Target:         models.Target{URL: abs},
		PaginationKind: models.KindUrlBased,
		Confidence:     0.95,
	}, true
}

var ariaNextRe = regexp.MustCompile(`(?i)next|go to next|navigate to next`)

func (d *Detector) ariaLabel(dom port.DomAdapter, currentURL string) (models.PaginationDetection, bool) {
	handles, err := dom.QueryAll(`[aria-label]`)
	if err != nil {
		return models.PaginationDetection{}, false
	}
	for _, h := range handles {
		if !ariaNextRe.MatchString(dom.Attributes(h)["aria-label"]) || !isValidTarget(dom, h) {
			continue
		}
		return d.targetFor(dom, h, currentURL, models.StrategyAriaLabel, 0.85)
	}
	return models.PaginationDetection{}, false
}

func (d *Detector) textContent(dom port.DomAdapter, currentURL string) (models.PaginationDetection, bool) {
	handles, err := dom.QueryAll("a, button")
	if err != nil {
		return models.PaginationDetection{}, false
	}
	for _, h := range handles {
		text := strings.ToLower(strings.TrimSpace(dom.Text(h)))
		if text == "" || !isValidTarget(dom, h) {
			continue
		}
		for _, pat := range localizedNext {
			if text == strings.ToLower(pat) {
				return d.targetFor(dom, h, currentURL, models.StrategyTextContent, 0.90)
			}
		}
	}
	return models.PaginationDetection{}, false
}

func (d *Detector) classID(dom port.DomAdapter, currentURL string) (models.PaginationDetection, bool) {
	handles, err := dom.QueryAll("a, button")
	if err != nil {
		return models.PaginationDetection{}, false
	}
	for _, h := range handles {
		attrs := dom.Attributes(h)
		combined := attrs["class"] + " " + attrs["id"]
		if !classIDNextRe.MatchString(combined) || !isValidTarget(dom, h) {
			continue
		}
		return d.targetFor(dom, h, currentURL, models.StrategyClassId, 0.80)
	}
	return models.PaginationDetection{}, false
}

func (d *Detector) queryStringIncremental(currentURL string) (models.PaginationDetection, bool) {
	current := currentPageParam(currentURL)
	if !current.ok {
		return models.PaginationDetection{}, false
	}
	nextURL := replaceParamValue(currentURL, current.param, current.n+1)
	abs, ok := d.canon.Canonicalize(nextURL, currentURL)
	if !ok {
		return models.PaginationDetection{}, false
	}
	return models.PaginationDetection{
		Strategy:       models.StrategyQueryStringIncremental,
		Target:         models.Target{URL: abs},
		PaginationKind: models.KindUrlBased,
		Confidence:     0.85,
	}, true
}

func (d *Detector) shadowDom(dom port.DomAdapter, currentURL string) (models.PaginationDetection, bool) {
	hosts, err := dom.QueryAll("*")
	if err != nil {
		return models.PaginationDetection{}, false
	}
	for _, host := range hosts {
		root, ok := dom.ShadowRoot(host)
		if !ok {
			continue
		}
		for _, h := range dom.Children(root) {
			text := strings.ToLower(strings.TrimSpace(dom.Text(h)))
			for _, pat := range localizedNext {
				if text == strings.ToLower(pat) && isValidTarget(dom, h) {
					det, ok := d.targetFor(dom, h, currentURL, models.StrategyShadowDom, 0.90)
					if ok {
						det.PaginationKind = models.KindShadowDom
					}
					return det, ok
				}
			}
		}
	}
	return models.PaginationDetection{}, false
}

func (d *Detector) loadMore(dom port.DomAdapter, currentURL string) (models.PaginationDetection, bool) {
	handles, err := dom.QueryAll("a, button")
	if err != nil {
		return models.PaginationDetection{}, false
	}
	for _, h := range handles {
		text := strings.ToLower(strings.TrimSpace(dom.Text(h)))
		if text == "" || !isValidTarget(dom, h) {
			continue
		}
		for _, pat := range loadMoreText {
			if strings.Contains(text, pat) {
				return models.PaginationDetection{
					Strategy:       models.StrategyLoadMore,
					Target:         models.Target{Click: h, IsClick: true},
					PaginationKind: models.KindInfiniteScroll,
					Confidence:     0.70,
				}, true
			}
		}
	}
	return models.PaginationDetection{}, false
}

// targetFor builds a URL or click detection depending on whether h carries
// a navigable href.
func (d *Detector) targetFor(dom port.DomAdapter, h port.ElementHandle, currentURL string, strat models.Strategy, confidence float64) (models.PaginationDetection, bool) {
	href := dom.Attributes(h)["href"]
	if href == "" {
		return models.PaginationDetection{
			Strategy:       strat,
			Target:         models.Target{Click: h, IsClick: true},
			PaginationKind: models.KindButtonBased,
			Confidence:     confidence,
		}, true
	}
	abs, ok := d.canon.Canonicalize(href, currentURL)
	if !ok {
		return models.PaginationDetection{}, false
	}
	return models.PaginationDetection{
		Strategy:       strat,
		Target:         models.Target{URL: abs},
		PaginationKind: models.KindUrlBased,
		Confidence:     confidence,
	}, true
}

// isValidTarget applies the §4.6 validity preconditions for an element
// target: visible, non-zero rect (checked only when the adapter measures
// layout, i.e. Rect.HasPosition is set), not disabled.
func isValidTarget(dom port.DomAdapter, h port.ElementHandle) bool {
	style := dom.ComputedStyle(h)
	if style.Display == "none" || style.Visibility == "hidden" || style.Opacity <= 0 {
		return false
	}
	if r := dom.BoundingRect(h); r.HasPosition && (r.W <= 0 || r.H <= 0) {
		return false
	}
	attrs := dom.Attributes(h)
	if attrs["disabled"] != "" || attrs["aria-disabled"] == "true" || disabledClassRe.MatchString(attrs["class"]) {
		return false
	}
	return true
}

type pageParam struct {
	ok    bool
	param string
	n     int
}

func currentPageParam(rawURL string) pageParam {
	for _, p := range paginationParams {
		if n, ok := paramValue(rawURL, p); ok {
			return pageParam{ok: true, param: p, n: n}
		}
	}
	return pageParam{}
}

func extractParamValue(rawURL string) (int, string, bool) {
	for _, p := range paginationParams {
		if n, ok := paramValue(rawURL, p); ok {
			return n, p, true
		}
	}
	return 0, "", false
}

func paramValue(rawURL, param string) (int, bool) {
	idx := strings.Index(rawURL, "?")
	if idx < 0 {
		return 0, false
	}
	query := rawURL[idx+1:]
	for _, kv := range strings.Split(query, "&") {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || parts[0] != param {
			continue
		}
		n, err := strconv.Atoi(parts[1])
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func replaceParamValue(rawURL, param string, newVal int) string {
	idx := strings.Index(rawURL, "?")
	if idx < 0 {
		return rawURL
	}
	base, query := rawURL[:idx], rawURL[idx+1:]
	parts := strings.Split(query, "&")
	for i, kv := range parts {
		p := strings.SplitN(kv, "=", 2)
		if len(p) == 2 && p[0] == param {
			parts[i] = param + "=" + strconv.Itoa(newVal)
		}
	}
	return base + "?" + strings.Join(parts, "&")
}

type pathPage struct {
	ok  bool
	n   int
	raw string
}

func currentPathPage(rawURL string) pathPage {
	if m := pathBasedRe.FindStringSubmatch(rawURL); m != nil {
		n, _ := strconv.Atoi(m[1])
		return pathPage{ok: true, n: n, raw: rawURL}
	}
	if m := bareNumericSegmentRe.FindStringSubmatch(rawURL); m != nil {
		n, _ := strconv.Atoi(m[1])
		return pathPage{ok: true, n: n, raw: rawURL}
	}
	return pathPage{}
}

func replaceFirstNumber(rawURL string, oldVal, newVal int) string {
	oldStr := strconv.Itoa(oldVal)
	newStr := strconv.Itoa(newVal)
	return strings.Replace(rawURL, "/"+oldStr, "/"+newStr, 1)
}

func hostnameOf(rawURL string) string {
	idx := strings.Index(rawURL, "://")
	if idx < 0 {
		return ""
	}
	rest := rawURL[idx+3:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}
