// Package collector implements ImageCollector (§4.3): enumeration of image
// references across eight discovery idioms, deduplicated by canonical URL,
// then categorized by the scorer. Grounded on the teacher's
// cleaner/extract.go ExtractImages/ExtractLinks idiom: goquery-style
// enumeration with a `seen` dedup set and URL resolution against a base.
package collector

import (
	"regexp"
	"strings"
	"time"

	"github.com/use-agent/gallerydiscover/canon"
	"github.com/use-agent/gallerydiscover/models"
	"github.com/use-agent/gallerydiscover/port"
)

// Result is the outcome of one Collect call.
type Result struct {
	Records    []models.ImageRecord
	Duplicates int
}

// Collector enumerates image-bearing references from a DomAdapter.
type Collector struct {
	canon         *canon.Canonicalizer
	maxStyleProbe int
}

// New returns a Collector. maxStyleProbe bounds discovery method 8
// (computed-style background probing) to cap cost on large documents.
func New(c *canon.Canonicalizer, maxStyleProbe int) *Collector {
	if maxStyleProbe <= 0 {
		maxStyleProbe = 200
	}
	return &Collector{canon: c, maxStyleProbe: maxStyleProbe}
}

var lazyAttrSelectors = []string{
	"[data-src]", "[data-lazy-src]", "[data-original]", "[data-lazy]",
	"[data-srcset]", "[data-background]", `[loading="lazy"]`,
}

var lazyClassRe = regexp.MustCompile(`(?i)\b(lazy|lazyload|lazy-loading)\b`)

var backgroundURLRe = regexp.MustCompile(`(?i)background(?:-image)?\s*:[^;]*url\(\s*['"]?([^'")]+)['"]?\s*\)`)

// seenSet tracks canonical URLs already emitted in this Collect call.
type seenSet struct {
	byURL map[string]struct{}
}

func newSeenSet() *seenSet { return &seenSet{byURL: make(map[string]struct{})} }

// Collect runs all eight discovery methods in order against dom, resolving
// relative URLs against pageURL, and returns the deduplicated record set.
//
// Fails with a CategoryDomUnavailable EngineError only if the DomAdapter's
// QueryAll itself errors; per-element errors are swallowed and not counted.
func (c *Collector) Collect(dom port.DomAdapter, pageURL string) (*Result, error) {
	seen := newSeenSet()
	res := &Result{}

	add := func(rawURL string, method models.DiscoveryMethod, h port.ElementHandle, attrs models.ImageAttributes) {
		absURL, ok := c.canon.Canonicalize(rawURL, pageURL)
		if !ok {
			return
		}
		if _, dup := seen.byURL[absURL]; dup {
			res.Duplicates++
			return
		}
		seen.byURL[absURL] = struct{}{}
		res.Records = append(res.Records, models.ImageRecord{
			URL:             absURL,
			DiscoveryMethod: method,
			Attributes:      attrs,
			ElementRef:      h,
			Timestamp:       time.Now(),
		})
	}

	attrsFor := func(dom port.DomAdapter, h port.ElementHandle) models.ImageAttributes {
		a := dom.Attributes(h)
		return models.ImageAttributes{
			Alt:   a["alt"],
			Title: a["title"],
			Class: a["class"],
			ID:    a["id"],
		}
	}

	// 1. <img src>
	if err := c.forEach(dom, "img[src]", func(h port.ElementHandle) error {
		src := dom.Attributes(h)["src"]
		if src != "" {
			add(src, models.DiscoveryImgSrc, h, attrsFor(dom, h))
		}
		return nil
	}); err != nil {
		return nil, err
	}

	// 2. <img srcset> — each comma-separated candidate's first token.
	if err := c.forEach(dom, "img[srcset]", func(h port.ElementHandle) error {
		for _, u := range firstTokensOfSrcset(dom.Attributes(h)["srcset"]) {
			add(u, models.DiscoveryImgSrcset, h, attrsFor(dom, h))
		}
		return nil
	}); err != nil {
		return nil, err
	}

	// 3. Lazy attributes on any element.
	seenLazyHandle := map[port.ElementHandle]struct{}{}
	for _, sel := range lazyAttrSelectors {
		if err := c.forEach(dom, sel, func(h port.ElementHandle) error {
			if _, done := seenLazyHandle[h]; done {
				return nil
			}
			seenLazyHandle[h] = struct{}{}
			addLazyCandidate(dom, h, add, attrsFor)
			return nil
		}); err != nil {
			return nil, err
		}
	}
	// Elements only identified via a lazy-loading class token.
	if err := c.forEach(dom, "*", func(h port.ElementHandle) error {
		if _, done := seenLazyHandle[h]; done {
			return nil
		}
		class := dom.Attributes(h)["class"]
		if lazyClassRe.MatchString(class) {
			seenLazyHandle[h] = struct{}{}
			addLazyCandidate(dom, h, add, attrsFor)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	// 4. Inline style background-image.
	if err := c.forEach(dom, "[style]", func(h port.ElementHandle) error {
		style := dom.Attributes(h)["style"]
		if m := backgroundURLRe.FindStringSubmatch(style); m != nil {
			add(m[1], models.DiscoveryBackgroundImage, h, attrsFor(dom, h))
		}
		return nil
	}); err != nil {
		return nil, err
	}

	// 5. <picture><source> then nested <img> fallback.
	if err := c.forEach(dom, "picture source", func(h port.ElementHandle) error {
		attrs := dom.Attributes(h)
		if srcset := attrs["srcset"]; srcset != "" {
			for _, u := range firstTokensOfSrcset(srcset) {
				add(u, models.DiscoveryPictureSource, h, attrsFor(dom, h))
			}
		} else if src := attrs["src"]; src != "" {
			add(src, models.DiscoveryPictureSource, h, attrsFor(dom, h))
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if err := c.forEach(dom, "picture img", func(h port.ElementHandle) error {
		if src := dom.Attributes(h)["src"]; src != "" {
			add(src, models.DiscoveryPictureImg, h, attrsFor(dom, h))
		}
		return nil
	}); err != nil {
		return nil, err
	}

	// 6. <svg><image> and <use>.
	if err := c.forEach(dom, "image, use", func(h port.ElementHandle) error {
		attrs := dom.Attributes(h)
		href := attrs["href"]
		if href == "" {
			href = attrs["xlink:href"]
		}
		if href != "" {
			add(href, models.DiscoverySVGImage, h, attrsFor(dom, h))
		}
		return nil
	}); err != nil {
		return nil, err
	}

	// 7. <a href> whose href is image-like.
	if err := c.forEach(dom, "a[href]", func(h port.ElementHandle) error {
		href := dom.Attributes(h)["href"]
		if href == "" {
			return nil
		}
		absURL, ok := c.canon.Canonicalize(href, pageURL)
		if !ok || !c.canon.LooksLikeImage(absURL) {
			return nil
		}
		add(href, models.DiscoveryAnchorHref, h, attrsFor(dom, h))
		return nil
	}); err != nil {
		return nil, err
	}

	// 8. Computed-style background images on non-inline elements, bounded.
	probed := 0
	if err := c.forEach(dom, "*", func(h port.ElementHandle) error {
		if probed >= c.maxStyleProbe {
			return nil
		}
		probed++
		if _, done := seenLazyHandle[h]; done {
			return nil
		}
		style := dom.ComputedStyle(h)
		if style.BackgroundImage != "" {
			add(style.BackgroundImage, models.DiscoveryBackgroundImage, h, attrsFor(dom, h))
		}
		return nil
	}); err != nil {
		return nil, err
	}

	return res, nil
}

// forEach queries selector and invokes fn for every matching handle,
// wrapping a DomAdapter error as CategoryDomUnavailable.
func (c *Collector) forEach(dom port.DomAdapter, selector string, fn func(port.ElementHandle) error) error {
	handles, err := dom.QueryAll(selector)
	if err != nil {
		return models.NewEngineError(models.ErrCodeCollectorDom, models.CategoryDomUnavailable, "dom adapter query failed: "+selector, err)
	}
	for _, h := range handles {
		_ = fn(h) // per-element errors are discarded: neither counted nor propagated
	}
	return nil
}

// firstTokensOfSrcset splits a srcset attribute value on commas and keeps
// the first whitespace-separated token (the URL) of each candidate.
func firstTokensOfSrcset(srcset string) []string {
	if srcset == "" {
		return nil
	}
	var urls []string
	for _, candidate := range strings.Split(srcset, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		fields := strings.Fields(candidate)
		if len(fields) > 0 {
			urls = append(urls, fields[0])
		}
	}
	return urls
}

// addLazyCandidate extracts the best lazy-attribute URL from h in priority
// order and emits it.
func addLazyCandidate(dom port.DomAdapter, h port.ElementHandle, add func(string, models.DiscoveryMethod, port.ElementHandle, models.ImageAttributes), attrsFor func(port.DomAdapter, port.ElementHandle) models.ImageAttributes) {
	attrs := dom.Attributes(h)
	for _, key := range []string{"data-src", "data-lazy-src", "data-original", "data-lazy"} {
		if v := attrs[key]; v != "" {
			add(v, models.DiscoveryLazyAttr, h, attrsFor(dom, h))
			return
		}
	}
	if v := attrs["data-srcset"]; v != "" {
		for _, u := range firstTokensOfSrcset(v) {
			add(u, models.DiscoveryLazyAttr, h, attrsFor(dom, h))
		}
		return
	}
	if v := attrs["data-background"]; v != "" {
		add(v, models.DiscoveryLazyAttr, h, attrsFor(dom, h))
	}
}
