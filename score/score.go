// Package score implements ConfidenceScorer (§4.4): six independently
// weighted signals combined into a single confidence score, bounded by a
// hard analysis timeout and backed by a cache keyed on
// (selector, page_url, element_count). Grounded on the teacher's
// cleaner/pipeline.go autoExtract idiom — race multiple strategies
// concurrently via a WaitGroup and pick a winner — adapted here from
// "race and pick the best" to "race and timeout-default the stragglers".
package score

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/use-agent/gallerydiscover/cache"
	"github.com/use-agent/gallerydiscover/config"
	"github.com/use-agent/gallerydiscover/geom"
	"github.com/use-agent/gallerydiscover/models"
	"github.com/use-agent/gallerydiscover/port"
)

// signal names, used both as SignalResult.Name and as map keys for weights.
const (
	sigURLPattern        = "urlPattern"
	sigSelectorStability = "selectorStability"
	sigLayoutConsistency = "layoutConsistency"
	sigImageDimensions   = "imageDimensions"
	sigLazyLoadReadiness = "lazyLoadReadiness"
	sigElementCount      = "elementCount"
)

// defaultSignalScore is substituted for any signal that does not complete
// within MaxAnalysisTime.
const defaultSignalScore = 0.3

// Scorer computes confidence scores for candidate gallery patterns.
type Scorer struct {
	cfg   config.ScorerConfig
	cache *cache.LRU
}

// New returns a Scorer. cache may be nil, in which case scoring is never
// cached (tests commonly run uncached).
func New(cfg config.ScorerConfig, c *cache.LRU) *Scorer {
	return &Scorer{cfg: cfg, cache: c}
}

func (s *Scorer) weights() map[string]float64 {
	return map[string]float64{
		sigURLPattern:        s.cfg.WeightURLPattern,
		sigSelectorStability: s.cfg.WeightSelectorStability,
		sigLayoutConsistency: s.cfg.WeightLayoutConsistency,
		sigImageDimensions:   s.cfg.WeightImageDimensions,
		sigLazyLoadReadiness: s.cfg.WeightLazyLoadReadiness,
		sigElementCount:      s.cfg.WeightElementCount,
	}
}

// Score fills in Confidence, Level, and Rationale on pattern and returns the
// updated value. It never mutates dom. pageURL is part of the cache key.
func (s *Scorer) Score(ctx context.Context, dom port.DomAdapter, pattern models.GalleryPattern, pageURL string) models.GalleryPattern {
	key := cache.Key(pattern.Selector, pageURL, len(pattern.Items))
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			if cached, ok := v.(models.GalleryPattern); ok {
				return cached
			}
		}
	}

	cctx, cancel := context.WithTimeout(ctx, s.cfg.MaxAnalysisTime)
	defer cancel()

	type namedFn struct {
		name string
		fn   func() models.SignalResult
	}
	jobs := []namedFn{
		{sigURLPattern, func() models.SignalResult { return scoreURLPattern(dom, pattern, pageURL) }},
		{sigSelectorStability, func() models.SignalResult { return scoreSelectorStability(dom, pattern) }},
		{sigLayoutConsistency, func() models.SignalResult { return scoreLayoutConsistency(dom, pattern, s.cfg) }},
		{sigImageDimensions, func() models.SignalResult { return scoreImageDimensions(dom, pattern) }},
		{sigLazyLoadReadiness, func() models.SignalResult { return scoreLazyLoadReadiness(dom, pattern) }},
		{sigElementCount, func() models.SignalResult { return scoreElementCount(pattern) }},
	}

	results := make(chan models.SignalResult, len(jobs))
	for _, j := range jobs {
		go func(j namedFn) {
			results <- j.fn()
		}(j)
	}

	weights := s.weights()
	byName := make(map[string]models.SignalResult, len(jobs))
	for range jobs {
		select {
		case r := <-results:
			byName[r.Name] = r
		case <-cctx.Done():
			goto done
		}
	}
done:
	for _, j := range jobs {
		if _, ok := byName[j.name]; !ok {
			byName[j.name] = models.SignalResult{Name: j.name, Score: defaultSignalScore, TimedOut: true}
		}
	}

	signals := make([]models.SignalResult, 0, len(jobs))
	var total float64
	for _, j := range jobs {
		r := byName[j.name]
		r.Weight = weights[j.name]
		signals = append(signals, r)
		total += r.Score * r.Weight
	}
	sort.Slice(signals, func(i, k int) bool { return signals[i].Name < signals[k].Name })

	pattern.Confidence = total
	pattern.Level = models.LevelForScore(total)
	pattern.Rationale = models.Rationale{
		Signals:         signals,
		Recommendations: recommendationsFor(signals),
	}

	if s.cache != nil {
		s.cache.Set(key, pattern)
	}
	return pattern
}

// recommendationsFor surfaces one human-readable nudge per weak signal.
func recommendationsFor(signals []models.SignalResult) []string {
	var recs []string
	for _, s := range signals {
		if s.Score >= 0.5 {
			continue
		}
		switch s.Name {
		case sigSelectorStability:
			recs = append(recs, "selector relies on unstable class names; prefer a data attribute or structural selector")
		case sigLayoutConsistency:
			recs = append(recs, "item geometry is irregular; container may mix gallery items with unrelated content")
		case sigImageDimensions:
			recs = append(recs, "images are small or inconsistently sized; container may hold thumbnails or icons, not a gallery")
		case sigLazyLoadReadiness:
			recs = append(recs, "no lazy-loading markers found; large image sets may be missed until scrolled into view")
		case sigElementCount:
			recs = append(recs, "few items detected; confidence would improve with a larger sample")
		case sigURLPattern:
			recs = append(recs, "item URLs do not share a recognizable numbering or slug pattern")
		}
	}
	return recs
}

// --- individual signals ---

var numberedSegmentRe = regexp.MustCompile(`/\d+(?:[/.]|$)`)

func scoreURLPattern(dom port.DomAdapter, pattern models.GalleryPattern, pageURL string) models.SignalResult {
	if len(pattern.Items) == 0 {
		return models.SignalResult{Name: sigURLPattern, Score: defaultSignalScore}
	}
	numbered := 0
	hrefs := 0
	for _, h := range pattern.Items {
		href := dom.Attributes(h)["href"]
		if href == "" {
			href = dom.Attributes(h)["src"]
		}
		if href == "" {
			continue
		}
		hrefs++
		if numberedSegmentRe.MatchString(href) {
			numbered++
		}
	}
	if hrefs == 0 {
		return models.SignalResult{Name: sigURLPattern, Score: defaultSignalScore, Detail: "no href/src to compare"}
	}
	ratio := float64(numbered) / float64(hrefs)
	score := 0.3 + 0.7*ratio
	return models.SignalResult{Name: sigURLPattern, Score: clamp01(score), Detail: "numbered-segment ratio"}
}

var frameworkHashedClassRe = regexp.MustCompile(`^(css-[a-z0-9]+|jsx-\d+|sc-[a-zA-Z0-9]+|[a-zA-Z0-9_-]*_[a-zA-Z0-9]{5,})$`)

func scoreSelectorStability(dom port.DomAdapter, pattern models.GalleryPattern) models.SignalResult {
	if len(pattern.Items) == 0 {
		return models.SignalResult{Name: sigSelectorStability, Score: defaultSignalScore}
	}
	var dataAttr, stableClass, hashedClass, positional int
	for _, h := range pattern.Items {
		attrs := dom.Attributes(h)
		hasData := false
		for k := range attrs {
			if strings.HasPrefix(k, "data-") {
				hasData = true
				break
			}
		}
		switch {
		case hasData:
			dataAttr++
		case attrs["class"] != "" && !hasAnyHashedToken(attrs["class"]):
			stableClass++
		case attrs["class"] != "":
			hashedClass++
		default:
			positional++
		}
	}
	n := float64(len(pattern.Items))
	score := (float64(dataAttr)*1.0 + float64(stableClass)*0.8 + float64(hashedClass)*0.3 + float64(positional)*0.4) / n
	return models.SignalResult{Name: sigSelectorStability, Score: clamp01(score), Detail: "attribute/class/positional mix"}
}

func hasAnyHashedToken(class string) bool {
	for _, tok := range strings.Fields(class) {
		if frameworkHashedClassRe.MatchString(tok) {
			return true
		}
	}
	return false
}

func scoreLayoutConsistency(dom port.DomAdapter, pattern models.GalleryPattern, cfg config.ScorerConfig) models.SignalResult {
	if len(pattern.Items) < 2 {
		return models.SignalResult{Name: sigLayoutConsistency, Score: defaultSignalScore}
	}
	xs := make([]float64, 0, len(pattern.Items))
	ys := make([]float64, 0, len(pattern.Items))
	hasPosition := false
	for _, h := range pattern.Items {
		r := dom.BoundingRect(h)
		xs = append(xs, r.X)
		ys = append(ys, r.Y)
		if r.HasPosition {
			hasPosition = true
		}
	}
	if !hasPosition {
		// No real layout coordinates to cluster on (static HTML): fall back
		// to the documented missing-signal default rather than score a
		// fabricated (0,0) rect as a perfectly regular layout.
		return models.SignalResult{Name: sigLayoutConsistency, Score: defaultSignalScore, Detail: "no geometry available"}
	}
	_, colVar := geom.ClusterSizeVariance(xs, 10)
	_, rowVar := geom.ClusterSizeVariance(ys, 10)
	// Low size variance across rows/cols means the items line up into a
	// regular grid/list; normalize into a [0,1] consistency score.
	irregularity := (colVar + rowVar) / 2
	score := 1.0 / (1.0 + irregularity)
	return models.SignalResult{Name: sigLayoutConsistency, Score: clamp01(score), Detail: "row/col size variance"}
}

func scoreImageDimensions(dom port.DomAdapter, pattern models.GalleryPattern) models.SignalResult {
	const minAcceptable = 50.0
	const optimal = 200.0
	if len(pattern.Items) == 0 {
		return models.SignalResult{Name: sigImageDimensions, Score: defaultSignalScore}
	}
	var dims []float64
	for _, h := range pattern.Items {
		r := dom.BoundingRect(h)
		small := r.W
		if r.H < small {
			small = r.H
		}
		if small <= 0 {
			continue
		}
		dims = append(dims, small)
	}
	if len(dims) == 0 {
		return models.SignalResult{Name: sigImageDimensions, Score: defaultSignalScore, Detail: "no geometry available"}
	}
	var sum float64
	for _, d := range dims {
		sum += d
	}
	avg := sum / float64(len(dims))

	var base float64
	switch {
	case avg >= optimal:
		base = 1.0
	case avg >= minAcceptable:
		base = 0.5 + 0.5*(avg-minAcceptable)/(optimal-minAcceptable)
	default:
		base = 0.5 * (avg / minAcceptable)
	}

	penalty := geom.Variance(dims) / (optimal * optimal)
	return models.SignalResult{Name: sigImageDimensions, Score: clamp01(base - penalty), Detail: "avg min(width,height) vs thresholds"}
}

var lazyAttrNames = []string{"data-src", "data-lazy-src", "data-original", "data-lazy", "data-srcset", "loading"}

func scoreLazyLoadReadiness(dom port.DomAdapter, pattern models.GalleryPattern) models.SignalResult {
	if len(pattern.Items) == 0 {
		return models.SignalResult{Name: sigLazyLoadReadiness, Score: defaultSignalScore}
	}
	lazy := 0
	for _, h := range pattern.Items {
		attrs := dom.Attributes(h)
		for _, name := range lazyAttrNames {
			if attrs[name] != "" {
				lazy++
				break
			}
		}
	}
	ratio := float64(lazy) / float64(len(pattern.Items))
	return models.SignalResult{Name: sigLazyLoadReadiness, Score: clamp01(ratio), Detail: "share of items with a lazy-load marker"}
}

func scoreElementCount(pattern models.GalleryPattern) models.SignalResult {
	n := len(pattern.Items)
	var sc float64
	switch {
	case n >= 20:
		sc = 0.9
	case n >= 10:
		sc = 0.7
	case n >= 5:
		sc = 0.5
	case n >= 3:
		sc = 0.4
	default:
		sc = 0.2
	}
	return models.SignalResult{Name: sigElementCount, Score: sc, Detail: "item count threshold"}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
