// Package pattern implements PatternRecognizer (§4.5): a four-phase sweep
// that locates gallery containers (semantic selectors, then class/id/data
// attributes including known gallery-library roots, then layout geometry,
// then item density), followed by layout classification and scoring via
// the score package. Grounded on the teacher's cleaner/pruning.go idiom of
// layered heuristic passes over a DOM tree, each phase narrowing or
// confirming the previous one's candidates.
package pattern

import (
	"context"
	"sort"
	"strings"

	"github.com/use-agent/gallerydiscover/config"
	"github.com/use-agent/gallerydiscover/geom"
	"github.com/use-agent/gallerydiscover/models"
	"github.com/use-agent/gallerydiscover/port"
	"github.com/use-agent/gallerydiscover/score"
)

// Phase 1: semantic selectors — names a human or framework would give a
// gallery container.
var semanticSelectors = []string{
	`[class*="gallery" i]`, `[id*="gallery" i]`,
	`[class*="photo-grid" i]`, `[class*="image-grid" i]`,
	`[class*="thumbnail" i]`, `[role="list"]`, `[class*="album" i]`,
}

// Phase 2: class/id/data-attribute roots of well-known gallery libraries
// and SPA framework markers, which reliably indicate a managed gallery
// widget even when the author gave it no semantic name.
var librarySelectors = []string{
	`[class*="swiper" i]`, `[class*="slick" i]`, `[class*="owl-carousel" i]`,
	`[class*="masonry" i]`, `[class*="isotope" i]`, `[class*="photoswipe" i]`,
	`[class*="fancybox" i]`, `[class*="lightbox" i]`, `[class*="magnific" i]`,
	`[data-react-class]`, `[data-reactroot]`, `[data-v-app]`, `[ng-app]`,
}

// Phase 4 fallback: generic containers a density sweep considers.
var densityContainerSelectors = []string{"div", "section", "ul", "ol", "figure"}

// Recognizer locates and scores gallery patterns within a document.
type Recognizer struct {
	cfg    config.PatternConfig
	scorer *score.Scorer
}

// New returns a Recognizer. scorer may be nil to skip confidence scoring
// (callers that only need raw container discovery).
func New(cfg config.PatternConfig, scorer *score.Scorer) *Recognizer {
	return &Recognizer{cfg: cfg, scorer: scorer}
}

// Detect runs all four phases and returns validated, scored patterns sorted
// by descending confidence.
func (r *Recognizer) Detect(ctx context.Context, dom port.DomAdapter, pageURL string) ([]models.GalleryPattern, error) {
	seen := map[port.ElementHandle]struct{}{}
	var candidates []port.ElementHandle

	collect := func(selectors []string) error {
		for _, sel := range selectors {
			handles, err := dom.QueryAll(sel)
			if err != nil {
				return models.NewEngineError(models.ErrCodeDomUnavailable, models.CategoryDomUnavailable, "pattern query failed: "+sel, err)
			}
			for _, h := range handles {
				if _, ok := seen[h]; ok {
					continue
				}
				seen[h] = struct{}{}
				candidates = append(candidates, h)
			}
		}
		return nil
	}

	// Phase 1: semantic.
	if err := collect(semanticSelectors); err != nil {
		return nil, err
	}
	// Phase 2: class/id/data-attribute library roots.
	if err := collect(librarySelectors); err != nil {
		return nil, err
	}
	// Phase 3 (layout) operates on whatever phases 1-2 found, refining
	// their item sets below; phase 4 (density) widens the candidate pool
	// when nothing semantic or library-tagged was found.
	if len(candidates) == 0 {
		if err := collect(densityContainerSelectors); err != nil {
			return nil, err
		}
	}

	var patterns []models.GalleryPattern
	for _, container := range candidates {
		items := galleryItems(dom, container)
		if len(items) < r.cfg.MinPatternItems {
			continue
		}
		if !isComposite(dom, container, items, r.cfg.CompositeThreshold) {
			continue
		}
		if !isVisible(dom, container) {
			continue
		}
		if area := containerArea(dom, container); area > 0 &&
			(area < r.cfg.MinContainerAreaPx2 || area > r.cfg.MaxContainerAreaPx2) {
			continue
		}

		layout := classifyLayout(dom, container, items, r.cfg)
		if floor, ok := models.LayoutMinItems[layout.Kind]; ok && len(items) < floor {
			continue
		}

		gp := models.GalleryPattern{
			ContainerRef: container,
			Layout:       layout,
			Items:        items,
			Selector:     selectorHint(dom, container),
		}
		if r.scorer != nil {
			gp = r.scorer.Score(ctx, dom, gp, pageURL)
		}
		patterns = append(patterns, gp)
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		return patterns[i].Confidence > patterns[j].Confidence
	})
	return patterns, nil
}

// galleryItems returns the descendants of container that look like gallery
// items: an img/picture/svg-image themselves, or a wrapper (li, a, div,
// figure) containing one within a shallow depth.
func galleryItems(dom port.DomAdapter, container port.ElementHandle) []port.ElementHandle {
	var items []port.ElementHandle
	for _, child := range dom.Children(container) {
		if isImageLike(dom, child) || hasImageDescendant(dom, child, 3) {
			items = append(items, child)
		}
	}
	return items
}

func isImageLike(dom port.DomAdapter, h port.ElementHandle) bool {
	switch dom.TagName(h) {
	case "img", "picture", "image", "svg":
		return true
	}
	return false
}

func hasImageDescendant(dom port.DomAdapter, h port.ElementHandle, depth int) bool {
	if depth <= 0 {
		return false
	}
	for _, c := range dom.Children(h) {
		if isImageLike(dom, c) {
			return true
		}
		if hasImageDescendant(dom, c, depth-1) {
			return true
		}
	}
	return false
}

// isComposite rejects containers where gallery-like items are a small
// minority of direct children — i.e. the container holds mostly unrelated
// content with an incidental image or two.
func isComposite(dom port.DomAdapter, container port.ElementHandle, items []port.ElementHandle, threshold float64) bool {
	children := dom.Children(container)
	if len(children) == 0 {
		return false
	}
	ratio := float64(len(items)) / float64(len(children))
	return ratio >= threshold
}

func isVisible(dom port.DomAdapter, h port.ElementHandle) bool {
	style := dom.ComputedStyle(h)
	return style.Display != "none" && style.Visibility != "hidden" && style.Opacity != 0
}

func containerArea(dom port.DomAdapter, h port.ElementHandle) float64 {
	r := dom.BoundingRect(h)
	return r.W * r.H
}

func selectorHint(dom port.DomAdapter, h port.ElementHandle) string {
	attrs := dom.Attributes(h)
	if id := attrs["id"]; id != "" {
		return "#" + id
	}
	if class := attrs["class"]; class != "" {
		first := strings.Fields(class)
		if len(first) > 0 {
			return "." + first[0]
		}
	}
	return dom.TagName(h)
}

// classifyLayout buckets a container into Grid/List/Carousel/Masonry,
// tie-breaking Grid>Carousel>Masonry>List on ambiguous geometry, per the
// design notes' resolution of the layout-classification ambiguity.
func classifyLayout(dom port.DomAdapter, container port.ElementHandle, items []port.ElementHandle, cfg config.PatternConfig) models.Layout {
	xs := make([]float64, 0, len(items))
	ys := make([]float64, 0, len(items))
	heights := make([]float64, 0, len(items))
	hasPosition := false
	for _, it := range items {
		r := dom.BoundingRect(it)
		xs = append(xs, r.X)
		ys = append(ys, r.Y)
		heights = append(heights, r.H)
		if r.HasPosition {
			hasPosition = true
		}
	}

	rowClusters := geom.Cluster(ys, cfg.LayoutTolerancePx)
	colClusters := geom.Cluster(xs, cfg.LayoutTolerancePx)
	rows, cols := len(rowClusters), len(colClusters)

	style := dom.ComputedStyle(container)
	scrollable := style.OverflowX == "scroll" || style.OverflowX == "auto" || style.OverflowX == "hidden"
	hasNav := hasCarouselControls(dom, container)

	isCarousel := scrollable && hasNav && rows <= 1
	// Grid and Masonry both hinge on genuine row/column position: without it
	// (static HTML has no layout engine) rows/cols collapse to 1 regardless
	// of the real arrangement, so classifying either off fabricated zeros
	// would be a false positive rather than a detection.
	isGrid := hasPosition && rows > 1 && cols > 1
	heightVariance := geom.Variance(heights)
	isMasonry := hasPosition && cols > 1 && rows == 1 && heightVariance > 100

	switch {
	case isGrid:
		return models.Layout{Kind: models.LayoutGrid, Rows: rows, Cols: cols}
	case isCarousel:
		return models.Layout{Kind: models.LayoutCarousel, HasNav: hasNav, HasIndicators: hasIndicators(dom, container), VisibleCount: estimateVisibleCount(xs, cfg.LayoutTolerancePx)}
	case isMasonry:
		return models.Layout{Kind: models.LayoutMasonry, Columns: cols}
	default:
		orientation := models.OrientationVertical
		if cols > rows {
			orientation = models.OrientationHorizontal
		}
		return models.Layout{Kind: models.LayoutList, Orientation: orientation}
	}
}

func hasCarouselControls(dom port.DomAdapter, container port.ElementHandle) bool {
	for _, c := range dom.Children(container) {
		class := dom.Attributes(c)["class"]
		if strings.Contains(class, "next") || strings.Contains(class, "prev") || strings.Contains(class, "carousel-control") || strings.Contains(class, "swiper-button") {
			return true
		}
	}
	return false
}

func hasIndicators(dom port.DomAdapter, container port.ElementHandle) bool {
	for _, c := range dom.Children(container) {
		class := dom.Attributes(c)["class"]
		if strings.Contains(class, "indicator") || strings.Contains(class, "dots") || strings.Contains(class, "pagination-bullet") {
			return true
		}
	}
	return false
}

func estimateVisibleCount(xs []float64, tolerance float64) int {
	groups := geom.Cluster(xs, tolerance)
	if len(groups) == 0 {
		return 0
	}
	return len(groups[0])
}
