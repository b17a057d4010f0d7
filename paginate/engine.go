package paginate

import (
	"context"
	"crypto/sha256"
	"math/rand"
	nurl "net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/use-agent/gallerydiscover/config"
	"github.com/use-agent/gallerydiscover/models"
	"github.com/use-agent/gallerydiscover/port"
	"github.com/use-agent/gallerydiscover/simhash"
)

// State is the PaginationEngine's machine state, per §4.7.
type State string

const (
	StateIdle           State = "Idle"
	StateDetecting      State = "Detecting"
	StateNavigating     State = "Navigating"
	StateWaitingForPage State = "WaitingForPage"
	StateValidating     State = "Validating"
	StateTerminated     State = "Terminated"
)

// StepResult reports the outcome of one engine.Step call, for the
// orchestrator to broadcast as PAGINATION_PROGRESS/PAGINATION_STATE_UPDATE.
type StepResult struct {
	State       State
	Termination models.TerminationReason
	Detection   *models.PaginationDetection
	Err         error
}

// Engine drives controlled pagination traversal per §4.7.
type Engine struct {
	cfg       config.PaginationConfig
	detector  *Detector
	navigator port.Navigator
	clock     port.Clock

	state     State
	pagState  *models.PaginationState
	currentURL string
	dom        port.DomAdapter
}

// NewEngine returns an Idle Engine seeded with a fresh PaginationState.
func NewEngine(cfg config.PaginationConfig, detector *Detector, navigator port.Navigator, clock port.Clock) *Engine {
	return &Engine{
		cfg:       cfg,
		detector:  detector,
		navigator: navigator,
		clock:     clock,
		state:     StateIdle,
		pagState:  models.NewPaginationState(),
	}
}

// Start seeds the engine with the first page's DOM and URL, transitioning
// out of Idle.
func (e *Engine) Start(dom port.DomAdapter, currentURL string) {
	e.dom = dom
	e.currentURL = currentURL
	e.pagState.VisitedURLs[currentURL] = struct{}{}
	e.state = StateDetecting
}

// Stop requests termination at the next step boundary.
func (e *Engine) Stop() {
	e.state = StateTerminated
}

// State returns the engine's current machine state.
func (e *Engine) State() State { return e.state }

// CurrentURL returns the URL of the document the engine is currently
// viewing.
func (e *Engine) CurrentURL() string { return e.currentURL }

// DOM returns the engine's current document view, replaced after every
// successful URL load or explicit Refresh call; a click navigation keeps
// the existing view.
func (e *Engine) DOM() port.DomAdapter { return e.dom }

// PaginationState returns the engine's mutable traversal state, for
// snapshot broadcast (PAGINATION_GET_STATE) and persistence.
func (e *Engine) PaginationState() *models.PaginationState { return e.pagState }

// Step advances the state machine one detection/navigation cycle; callers
// drive the loop. Each candidate that passes the visited-URL guard costs
// one navigation until one succeeds, and a success is followed by one
// inter-page delay. Step goes from Navigating straight to Validating: it
// never enters WaitingForPage, does not poll for DOM growth, and does not
// read cfg.WaitTimeout.
func (e *Engine) Step(ctx context.Context) StepResult {
	if e.state == StateTerminated {
		return StepResult{State: StateTerminated}
	}
	if e.cfg.MaxPages > 0 && uint32(e.pagState.CurrentPage) >= e.cfg.MaxPages {
		e.state = StateTerminated
		return StepResult{State: StateTerminated, Termination: models.TerminationMaxPages}
	}

	e.state = StateDetecting
	detections := e.detector.Detect(ctx, e.dom, e.currentURL, e.pagState)
	if len(detections) == 0 {
		e.state = StateTerminated
		return StepResult{State: StateTerminated, Termination: models.TerminationNoNext}
	}

	// reason tracks why the most recent candidate failed, so that if every
	// candidate fails the step reports the actual cause instead of a blanket
	// Exhausted — e.g. a single RelNext detection pointing at an
	// already-visited URL terminates with LoopDetected, not Exhausted.
	reason := models.TerminationExhausted
	for _, det := range detections {
		if ok, why := e.passesLoopGuard(det); !ok {
			reason = why
			continue // try the next-best detection before giving up entirely
		}

		beforeURL := e.currentURL
		e.state = StateNavigating
		if err := e.navigate(ctx, det); err != nil {
			e.pagState.FailedStrategies[det.Strategy] = struct{}{}
			reason = models.TerminationExhausted
			continue
		}

		e.state = StateValidating
		if hash, dup := e.checkContentHash(); dup {
			e.pagState.FailedStrategies[det.Strategy] = struct{}{}
			reason = models.TerminationDuplicatePage
			continue
		} else if hash != ([32]byte{}) {
			e.pagState.VisitedContentHashes[hash] = struct{}{}
		}
		if fp, dup := e.checkNearDuplicate(); dup {
			e.pagState.FailedStrategies[det.Strategy] = struct{}{}
			reason = models.TerminationDuplicatePage
			continue
		} else if fp != 0 {
			e.pagState.VisitedSimhashes = append(e.pagState.VisitedSimhashes, fp)
		}

		if e.cfg.DelayMinMs > 0 || e.cfg.DelayMaxMs > 0 {
			delay := time.Duration(e.cfg.DelayMinMs) * time.Millisecond
			if e.cfg.DelayMaxMs > e.cfg.DelayMinMs {
				delay = time.Duration(e.cfg.DelayMinMs+pseudoJitter(e.cfg.DelayMaxMs-e.cfg.DelayMinMs)) * time.Millisecond
			}
			_ = e.clock.Sleep(ctx, delay)
		}

		e.recordSuccess(det)
		Learn(e.pagState, beforeURL, e.currentURL, e.clock.Now())
		e.state = StateDetecting
		return StepResult{State: e.state, Detection: &det}
	}

	e.state = StateTerminated
	return StepResult{State: StateTerminated, Termination: reason}
}

// passesLoopGuard applies the §4.7 step-3 visited-URL half of the loop
// guard, ahead of navigation. The content-hash half only applies once the
// destination has actually been fetched (checkContentHash, post-navigate).
func (e *Engine) passesLoopGuard(det models.PaginationDetection) (bool, models.TerminationReason) {
	if !det.Target.IsClick {
		if _, visited := e.pagState.VisitedURLs[det.Target.URL]; visited {
			return false, models.TerminationLoopDetected
		}
	}
	return true, ""
}

// checkContentHash computes the destination page's content hash and
// reports whether it duplicates a previously visited page.
func (e *Engine) checkContentHash() ([32]byte, bool) {
	hash, ok := ContentHash(e.dom, e.currentURL)
	if !ok {
		return [32]byte{}, false
	}
	_, dup := e.pagState.VisitedContentHashes[hash]
	return hash, dup
}

// checkNearDuplicate applies the softer simhash loop guard alongside the
// exact content hash, for pages whose boilerplate changed just enough to
// dodge the SHA-256 check (a rotated ad slot, a timestamp) while the
// gallery markup itself repeats. A no-op (fp==0, dup==false) when
// SimhashLoopGuard is off.
func (e *Engine) checkNearDuplicate() (uint64, bool) {
	if !e.cfg.SimhashLoopGuard {
		return 0, false
	}
	roots, err := e.dom.QueryAll("html")
	if err != nil || len(roots) == 0 {
		return 0, false
	}
	html := e.dom.OuterHTML(roots[0])
	if html == "" {
		return 0, false
	}
	fp, dup := NearDuplicate(e.cfg, html, e.pagState.VisitedSimhashes)
	return fp, dup
}

// navigate dispatches to the Navigator: a trusted click, or a URL load.
func (e *Engine) navigate(ctx context.Context, det models.PaginationDetection) error {
	if det.Target.IsClick {
		if err := e.navigator.Click(ctx, det.Target.Click); err != nil {
			return models.NewEngineError(models.ErrCodeDomUnavailable, models.CategoryDomUnavailable, "pagination click failed", err)
		}
		// A click-based navigation reuses the current document; the caller
		// (orchestrator) is responsible for reparsing if the DOM mutated
		// and calling Refresh.
		return nil
	}
	res, err := e.navigator.Load(ctx, det.Target.URL)
	if err != nil {
		return models.NewEngineError(models.ErrCodeDomUnavailable, models.CategoryNetwork, "pagination load failed", err)
	}
	e.dom = res.Adapter
	e.currentURL = res.FinalURL
	return nil
}

// Refresh updates the engine's DOM view after an in-place mutation (AJAX,
// infinite scroll) without a URL change.
func (e *Engine) Refresh(dom port.DomAdapter) {
	e.dom = dom
}

func (e *Engine) recordSuccess(det models.PaginationDetection) {
	e.pagState.RecordNavigation(e.currentURL, det.Strategy, e.clock.Now())
}

// ContentHash computes the §4.7 loop-guard content hash: SHA-256 over the
// canonicalized text of the page's main content region, located via
// Mozilla Readability (the same library the teacher uses for article
// extraction).
func ContentHash(dom port.DomAdapter, pageURL string) ([32]byte, bool) {
	roots, err := dom.QueryAll("html")
	if err != nil || len(roots) == 0 {
		return [32]byte{}, false
	}
	html := dom.OuterHTML(roots[0])
	if html == "" {
		return [32]byte{}, false
	}
	parsed, err := nurl.Parse(pageURL)
	if err != nil {
		return [32]byte{}, false
	}
	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil || strings.TrimSpace(article.TextContent) == "" {
		return [32]byte{}, false
	}
	return sha256.Sum256([]byte(strings.TrimSpace(article.TextContent))), true
}

// NearDuplicate applies the optional SimHash-based loop guard (a softer
// complement to the exact SHA-256 content hash): true if html's structural
// fingerprint is within SimhashThreshold of any previously seen fingerprint.
func NearDuplicate(cfg config.PaginationConfig, html string, seen []uint64) (uint64, bool) {
	fp := simhash.FingerprintDOM(html)
	if !cfg.SimhashLoopGuard {
		return fp, false
	}
	for _, s := range seen {
		if simhash.Similar(fp, s, cfg.SimhashThreshold) {
			return fp, true
		}
	}
	return fp, false
}

// pseudoJitter draws a uniform delay offset in [0, span), a fresh draw per
// step per §4.7's start() contract.
func pseudoJitter(span int) int {
	if span <= 0 {
		return 0
	}
	return rand.Intn(span)
}
