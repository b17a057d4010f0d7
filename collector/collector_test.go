package collector

import (
	"testing"

	"github.com/use-agent/gallerydiscover/canon"
	"github.com/use-agent/gallerydiscover/domhtml"
	"github.com/use-agent/gallerydiscover/models"
)

const galleryHTML = `<!doctype html><html><body>
<div class="gallery">
  <img src="/img/a.jpg" alt="A">
  <img data-src="/img/b.jpg" class="lazy" alt="B">
  <div style="background-image:url('/img/c.jpg')"></div>
  <picture>
    <source srcset="/img/d-2x.jpg 2x, /img/d.jpg 1x">
    <img src="/img/d-fallback.jpg">
  </picture>
  <a href="/img/e.jpg">full size</a>
  <img src="/img/a.jpg" alt="duplicate of A">
</div>
</body></html>`

func TestCollectDeduplicatesAndCategorizesByMethod(t *testing.T) {
	dom, err := domhtml.New(galleryHTML, "https://ex.com/gallery")
	if err != nil {
		t.Fatalf("domhtml.New: %v", err)
	}

	c := New(canon.New(false, nil), 200)
	res, err := c.Collect(dom, "https://ex.com/gallery")
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if res.Duplicates == 0 {
		t.Errorf("expected at least one duplicate counted")
	}

	seen := map[string]bool{}
	for _, r := range res.Records {
		if seen[r.URL] {
			t.Errorf("duplicate URL present in result set: %s", r.URL)
		}
		seen[r.URL] = true
	}

	want := []string{
		"https://ex.com/img/a.jpg",
		"https://ex.com/img/b.jpg",
		"https://ex.com/img/c.jpg",
		"https://ex.com/img/d.jpg",
		"https://ex.com/img/e.jpg",
	}
	for _, u := range want {
		if !seen[u] {
			t.Errorf("expected to discover %s", u)
		}
	}

	wantMethod := map[string]models.DiscoveryMethod{
		"https://ex.com/img/a.jpg": models.DiscoveryImgSrc,
		"https://ex.com/img/b.jpg": models.DiscoveryLazyAttr,
		"https://ex.com/img/c.jpg": models.DiscoveryBackgroundImage,
		"https://ex.com/img/d.jpg": models.DiscoveryPictureSource,
		"https://ex.com/img/e.jpg": models.DiscoveryAnchorHref,
	}
	for _, r := range res.Records {
		if m, ok := wantMethod[r.URL]; ok && r.DiscoveryMethod != m {
			t.Errorf("%s: discovery method %q, want %q", r.URL, r.DiscoveryMethod, m)
		}
	}
}

func TestCollectIsIdempotentAcrossRuns(t *testing.T) {
	dom, err := domhtml.New(galleryHTML, "https://ex.com/gallery")
	if err != nil {
		t.Fatalf("domhtml.New: %v", err)
	}
	c := New(canon.New(false, nil), 200)

	first, err := c.Collect(dom, "https://ex.com/gallery")
	if err != nil {
		t.Fatalf("Collect (first): %v", err)
	}
	second, err := c.Collect(dom, "https://ex.com/gallery")
	if err != nil {
		t.Fatalf("Collect (second): %v", err)
	}

	firstURLs := map[string]int{}
	for _, r := range first.Records {
		firstURLs[r.URL]++
	}
	secondURLs := map[string]int{}
	for _, r := range second.Records {
		secondURLs[r.URL]++
	}
	if len(firstURLs) != len(secondURLs) {
		t.Fatalf("collect is not idempotent: %d vs %d distinct URLs", len(firstURLs), len(secondURLs))
	}
	for u, n := range firstURLs {
		if secondURLs[u] != n {
			t.Errorf("URL %s count mismatch: %d vs %d", u, n, secondURLs[u])
		}
	}
}
