package paginate

import (
	"context"
	"testing"

	"github.com/use-agent/gallerydiscover/canon"
	"github.com/use-agent/gallerydiscover/config"
	"github.com/use-agent/gallerydiscover/domhtml"
	"github.com/use-agent/gallerydiscover/models"
)

func TestDetectPrefersRelNextOverTextMatch(t *testing.T) {
	html := `<!doctype html><html><head>
<link rel="next" href="https://ex.com/p2">
</head><body><a>next</a></body></html>`
	dom, err := domhtml.New(html, "https://ex.com/p1")
	if err != nil {
		t.Fatalf("domhtml.New: %v", err)
	}
	d := New(config.Load().Pagination, canon.New(false, nil))
	state := models.NewPaginationState()

	dets := d.Detect(context.Background(), dom, "https://ex.com/p1", state)
	if len(dets) == 0 {
		t.Fatal("expected at least one detection")
	}
	best := dets[0]
	if best.Strategy != models.StrategyRelNext {
		t.Errorf("expected RelNext to win, got %s", best.Strategy)
	}
	if best.Confidence != 1.0 {
		t.Errorf("expected confidence 1.0, got %v", best.Confidence)
	}
	if best.Target.URL != "https://ex.com/p2" {
		t.Errorf("unexpected target: %s", best.Target.URL)
	}
}

func TestDetectRejectsBadPaginationTargets(t *testing.T) {
	html := `<!doctype html><html><body>
<a rel="next" href="javascript:void(0)">next</a>
</body></html>`
	dom, err := domhtml.New(html, "https://ex.com/p1")
	if err != nil {
		t.Fatalf("domhtml.New: %v", err)
	}
	d := New(config.Load().Pagination, canon.New(false, nil))
	state := models.NewPaginationState()

	dets := d.Detect(context.Background(), dom, "https://ex.com/p1", state)
	for _, det := range dets {
		if !det.Target.IsClick && det.Target.URL == "javascript:void(0)" {
			t.Errorf("javascript: target should have been rejected")
		}
	}
}

func TestQueryStringIncrementMatchesExpectedConfidence(t *testing.T) {
	d := New(config.Load().Pagination, canon.New(false, nil))
	det, ok := d.queryStringIncremental("https://ex.com/gallery?page=3")
	if !ok {
		t.Fatal("expected a detection")
	}
	if det.Strategy != models.StrategyQueryStringIncremental {
		t.Errorf("unexpected strategy: %s", det.Strategy)
	}
	if det.Confidence != 0.85 {
		t.Errorf("unexpected confidence: %v", det.Confidence)
	}
	if det.Target.URL != "https://ex.com/gallery?page=4" {
		t.Errorf("unexpected target: %s", det.Target.URL)
	}
}
