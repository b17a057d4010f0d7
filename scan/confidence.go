package scan

import (
	"net/url"
	"strings"

	"github.com/use-agent/gallerydiscover/models"
	"github.com/use-agent/gallerydiscover/port"
)

// baselineConfidence ranks discovery idioms by how directly they name an
// image: a plain src attribute is trusted more than a CSS background-image
// scraped out of a computed style, which a pattern match can still
// override once the container scorer has an opinion.
var baselineConfidence = map[models.DiscoveryMethod]float64{
	models.DiscoveryImgSrc:          0.60,
	models.DiscoveryImgSrcset:       0.55,
	models.DiscoveryPictureSource:   0.55,
	models.DiscoveryPictureImg:      0.55,
	models.DiscoveryLazyAttr:        0.50,
	models.DiscoverySVGImage:        0.45,
	models.DiscoveryBackgroundImage: 0.40,
	models.DiscoveryAnchorHref:      0.35,
}

// assignConfidence attaches a Confidence and Category to every record,
// preferring the confidence of whatever detected GalleryPattern the
// record's element belongs to (walking up to the item or its container)
// and falling back to the discovery method's baseline when the element
// falls outside any detected gallery.
func assignConfidence(dom port.DomAdapter, pageURL string, records []models.ImageRecord, patterns []models.GalleryPattern) {
	if dom == nil {
		for i := range records {
			records[i].Confidence = baselineConfidence[records[i].DiscoveryMethod]
			records[i].Category = originCategory(records[i].URL, pageURL)
		}
		return
	}

	membership := make(map[port.ElementHandle]float64)
	for _, p := range patterns {
		if _, ok := membership[p.ContainerRef]; !ok {
			membership[p.ContainerRef] = p.Confidence
		}
		for _, item := range p.Items {
			if _, ok := membership[item]; !ok {
				membership[item] = p.Confidence
			}
		}
	}

	for i := range records {
		rec := &records[i]
		conf, matched := confidenceFromAncestry(dom, rec.ElementRef, membership)
		if !matched {
			conf = baselineConfidence[rec.DiscoveryMethod]
		}
		rec.Confidence = conf
		if matched && conf >= 0.75 {
			rec.Category = models.CategoryHighConfidence
		} else {
			rec.Category = originCategory(rec.URL, pageURL)
		}
	}
}

// confidenceFromAncestry walks up to 8 ancestors from h looking for an
// element that belongs to a detected pattern. 8 covers the deepest
// realistic wrapper nesting (image -> figure -> item -> row -> grid)
// without an unbounded walk on a malformed document.
func confidenceFromAncestry(dom port.DomAdapter, h port.ElementHandle, membership map[port.ElementHandle]float64) (float64, bool) {
	cur := h
	for depth := 0; depth < 8; depth++ {
		if conf, ok := membership[cur]; ok {
			return conf, true
		}
		parent, ok := dom.Parent(cur)
		if !ok {
			return 0, false
		}
		cur = parent
	}
	return 0, false
}

// originCategory distinguishes SameOrigin from External for records that
// did not earn HighConfidence through pattern membership.
func originCategory(candidateURL, pageURL string) models.Category {
	c, err1 := url.Parse(candidateURL)
	p, err2 := url.Parse(pageURL)
	if err1 != nil || err2 != nil {
		return models.CategoryExternal
	}
	if strings.EqualFold(c.Hostname(), p.Hostname()) {
		return models.CategorySameOrigin
	}
	return models.CategoryExternal
}
