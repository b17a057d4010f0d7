package score

import (
	"context"
	"testing"

	"github.com/use-agent/gallerydiscover/config"
	"github.com/use-agent/gallerydiscover/domhtml"
	"github.com/use-agent/gallerydiscover/models"
)

const galleryHTML = `<!doctype html><html><body>
<div class="gallery">
  <img src="/img/1.jpg" class="thumb" data-src="/img/1.jpg" width="200" height="200">
  <img src="/img/2.jpg" class="thumb" data-src="/img/2.jpg" width="200" height="200">
  <img src="/img/3.jpg" class="thumb" data-src="/img/3.jpg" width="200" height="200">
  <img src="/img/4.jpg" class="thumb" data-src="/img/4.jpg" width="200" height="200">
</div>
</body></html>`

func testPattern(t *testing.T) (models.GalleryPattern, *domhtml.Adapter) {
	t.Helper()
	dom, err := domhtml.New(galleryHTML, "https://ex.com/gallery")
	if err != nil {
		t.Fatalf("domhtml.New: %v", err)
	}
	handles, err := dom.QueryAll(".gallery img")
	if err != nil {
		t.Fatalf("QueryAll: %v", err)
	}
	return models.GalleryPattern{Selector: ".gallery img", Items: handles}, dom
}

func defaultScorerConfig() config.ScorerConfig {
	return config.Load().Scorer
}

func TestScoreIsDeterministicAcrossRuns(t *testing.T) {
	pattern, dom := testPattern(t)
	s := New(defaultScorerConfig(), nil)

	first := s.Score(context.Background(), dom, pattern, "https://ex.com/gallery")
	second := s.Score(context.Background(), dom, pattern, "https://ex.com/gallery")

	if first.Confidence != second.Confidence {
		t.Errorf("scoring is not deterministic: %v vs %v", first.Confidence, second.Confidence)
	}
	if first.Level != second.Level {
		t.Errorf("level is not deterministic: %v vs %v", first.Level, second.Level)
	}
}

func TestScoreWeightsSumToOne(t *testing.T) {
	cfg := defaultScorerConfig()
	sum := cfg.WeightURLPattern + cfg.WeightSelectorStability + cfg.WeightLayoutConsistency +
		cfg.WeightImageDimensions + cfg.WeightLazyLoadReadiness + cfg.WeightElementCount
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("signal weights must sum to 1.0, got %v", sum)
	}
}

func TestScoreConfidenceWithinUnitRange(t *testing.T) {
	pattern, dom := testPattern(t)
	s := New(defaultScorerConfig(), nil)
	result := s.Score(context.Background(), dom, pattern, "https://ex.com/gallery")

	if result.Confidence < 0 || result.Confidence > 1 {
		t.Errorf("confidence out of [0,1]: %v", result.Confidence)
	}
	if len(result.Rationale.Signals) != 6 {
		t.Errorf("expected all 6 signals present (defaulted or computed), got %d", len(result.Rationale.Signals))
	}
}

func TestRationaleMarkdownRenders(t *testing.T) {
	pattern, dom := testPattern(t)
	s := New(defaultScorerConfig(), nil)
	result := s.Score(context.Background(), dom, pattern, "https://ex.com/gallery")

	md, err := Rationale(result.Rationale).Markdown()
	if err != nil {
		t.Fatalf("Markdown: %v", err)
	}
	if md == "" {
		t.Error("expected non-empty markdown rendering")
	}
}
