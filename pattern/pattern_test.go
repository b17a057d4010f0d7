package pattern

import (
	"context"
	"testing"

	"github.com/use-agent/gallerydiscover/config"
	"github.com/use-agent/gallerydiscover/domhtml"
	"github.com/use-agent/gallerydiscover/models"
	"github.com/use-agent/gallerydiscover/port"
)

const gridHTML = `<!doctype html><html><body>
<div class="photo-gallery">
  <div class="item"><img src="/a.jpg" width="200" height="200"></div>
  <div class="item"><img src="/b.jpg" width="200" height="200"></div>
  <div class="item"><img src="/c.jpg" width="200" height="200"></div>
  <div class="item"><img src="/d.jpg" width="200" height="200"></div>
</div>
<nav><a href="/page2">next</a></nav>
</body></html>`

func TestDetectFindsSemanticContainer(t *testing.T) {
	dom, err := domhtml.New(gridHTML, "https://ex.com/g")
	if err != nil {
		t.Fatalf("domhtml.New: %v", err)
	}
	r := New(config.Load().Pattern, nil)
	patterns, err := r.Detect(context.Background(), dom, "https://ex.com/g")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(patterns) == 0 {
		t.Fatal("expected at least one pattern detected")
	}
	found := false
	for _, p := range patterns {
		if len(p.Items) >= 3 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a pattern with >= 3 items, got %+v", patterns)
	}
}

func TestDetectRejectsSparseContainers(t *testing.T) {
	html := `<!doctype html><html><body>
<div class="gallery-wrapper">
  <img src="/only.jpg" width="200" height="200">
  <p>lots of unrelated text content here to dilute the ratio of images to siblings in this container so it should not qualify as a gallery</p>
  <p>more filler</p>
  <p>even more filler</p>
  <p>still more</p>
</div>
</body></html>`
	dom, err := domhtml.New(html, "https://ex.com/g")
	if err != nil {
		t.Fatalf("domhtml.New: %v", err)
	}
	r := New(config.Load().Pattern, nil)
	patterns, err := r.Detect(context.Background(), dom, "https://ex.com/g")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	for _, p := range patterns {
		if p.ContainerRef != 0 && len(p.Items) == 1 {
			t.Errorf("single-image, mostly-text container should not have qualified as a gallery pattern")
		}
	}
}

// rectDomAdapter is a minimal port.DomAdapter whose BoundingRect is fully
// controllable per handle, since domhtml's real adapter can never set
// HasPosition and so can never exercise the true Grid/Masonry path.
type rectDomAdapter struct {
	rects    map[port.ElementHandle]port.Rect
	style    port.ComputedStyle
	children map[port.ElementHandle][]port.ElementHandle
}

func (a *rectDomAdapter) QueryAll(selector string) ([]port.ElementHandle, error) { return nil, nil }
func (a *rectDomAdapter) Attributes(h port.ElementHandle) map[string]string      { return nil }
func (a *rectDomAdapter) TagName(h port.ElementHandle) string                    { return "div" }
func (a *rectDomAdapter) Text(h port.ElementHandle) string                       { return "" }
func (a *rectDomAdapter) OuterHTML(h port.ElementHandle) string                  { return "" }
func (a *rectDomAdapter) ComputedStyle(h port.ElementHandle) port.ComputedStyle  { return a.style }
func (a *rectDomAdapter) BoundingRect(h port.ElementHandle) port.Rect            { return a.rects[h] }
func (a *rectDomAdapter) Children(h port.ElementHandle) []port.ElementHandle     { return a.children[h] }
func (a *rectDomAdapter) Parent(h port.ElementHandle) (port.ElementHandle, bool) { return 0, false }
func (a *rectDomAdapter) ShadowRoot(h port.ElementHandle) (port.ElementHandle, bool) {
	return 0, false
}

func TestClassifyLayoutMasonry(t *testing.T) {
	items := []port.ElementHandle{1, 2, 3, 4, 5, 6}
	// Three columns, one row band, heights alternating short/tall: a
	// genuine masonry arrangement with real measured position.
	xs := []float64{0, 220, 440, 0, 220, 440}
	heights := []float64{100, 100, 100, 300, 300, 300}
	dom := &rectDomAdapter{rects: map[port.ElementHandle]port.Rect{}}
	for i, h := range items {
		dom.rects[h] = port.Rect{X: xs[i], Y: 0, W: 200, H: heights[i], HasPosition: true}
	}
	cfg := config.Load().Pattern

	layout := classifyLayout(dom, 0, items, cfg)
	if layout.Kind != models.LayoutMasonry {
		t.Fatalf("expected Masonry, got %v (heights with real variance must not read as List)", layout.Kind)
	}
}

func TestClassifyLayoutIgnoresFabricatedZeroPosition(t *testing.T) {
	items := []port.ElementHandle{1, 2, 3, 4, 5, 6}
	heights := []float64{100, 100, 100, 300, 300, 300}
	dom := &rectDomAdapter{rects: map[port.ElementHandle]port.Rect{}}
	for i, h := range items {
		// Same heights as the masonry case, but HasPosition is false, as a
		// static (non-browser) adapter would report: no real geometry to
		// cluster on, so this must not classify as Masonry or Grid.
		dom.rects[h] = port.Rect{X: 0, Y: 0, W: 200, H: heights[i]}
	}
	cfg := config.Load().Pattern

	layout := classifyLayout(dom, 0, items, cfg)
	if layout.Kind == models.LayoutMasonry || layout.Kind == models.LayoutGrid {
		t.Errorf("expected fabricated zero geometry to fall back to List, got %v", layout.Kind)
	}
}
