package models

import (
	"time"

	"github.com/use-agent/gallerydiscover/port"
)

// Strategy identifies which PaginationDetector idiom produced a detection.
// Order here is priority order (lower index wins ties on equal confidence).
type Strategy string

const (
	StrategyLearnedPattern         Strategy = "LearnedPattern"
	StrategyRelNext                Strategy = "RelNext"
	StrategyQueryStringLink        Strategy = "QueryStringLink"
	StrategyPathBasedLink          Strategy = "PathBasedLink"
	StrategyPathBasedIncremental   Strategy = "PathBasedIncremental"
	StrategyNumberedPagination     Strategy = "NumberedPagination"
	StrategyAriaLabel              Strategy = "AriaLabel"
	StrategyTextContent            Strategy = "TextContent"
	StrategyClassId                Strategy = "ClassId"
	StrategyQueryStringIncremental Strategy = "QueryStringIncremental"
	StrategyShadowDom              Strategy = "ShadowDom"
	StrategyLoadMore               Strategy = "LoadMore"
)

// StrategyPriority is the tie-break order from the §4.6 strategy table:
// lower value wins when two detections carry equal confidence.
var StrategyPriority = map[Strategy]int{
	StrategyLearnedPattern:         1,
	StrategyRelNext:                2,
	StrategyQueryStringLink:        3,
	StrategyPathBasedLink:          4,
	StrategyPathBasedIncremental:   5,
	StrategyNumberedPagination:     6,
	StrategyAriaLabel:              7,
	StrategyTextContent:            8,
	StrategyClassId:                9,
	StrategyQueryStringIncremental: 10,
	StrategyShadowDom:              11,
	StrategyLoadMore:               12,
}

// PaginationKind is the execution model implied by a detection.
type PaginationKind string

const (
	KindUrlBased       PaginationKind = "UrlBased"
	KindButtonBased    PaginationKind = "ButtonBased"
	KindAjaxBased      PaginationKind = "AjaxBased"
	KindInfiniteScroll PaginationKind = "InfiniteScroll"
	KindShadowDom      PaginationKind = "ShadowDom"
)

// Target is the next-page destination: exactly one of URL or Click is set.
type Target struct {
	URL       string // absolute, canonical; empty if this is a click target
	Click     port.ElementHandle
	IsClick   bool
	TargetURL string // optional hint carried alongside a click target
}

// PaginationDetection is one candidate "go to next page" result.
//
// Invariant enforced at construction: if Strategy == RelNext and the
// target's path is "/null", or the target is javascript:/#, the detection
// must not be constructed — reject before it enters the candidate set.
type PaginationDetection struct {
	Strategy       Strategy
	Target         Target
	PaginationKind PaginationKind
	Confidence     float64
}

// HistoryEntry is one ring-buffer record of a successful pagination step.
type HistoryEntry struct {
	URL       string
	Page      uint32
	Strategy  Strategy
	Timestamp time.Time
}

// HistoryCap bounds PaginationState.History.
const HistoryCap = 50

// LearnedPatternKind distinguishes the two template shapes URL Pattern
// Learning can record.
type LearnedPatternKind string

const (
	LearnedKindQueryString LearnedPatternKind = "QueryString"
	LearnedKindPath        LearnedPatternKind = "Path"
)

// LearnedPattern is a per-hostname template learned from a prior successful
// navigation, per §4.8.
type LearnedPattern struct {
	Hostname string
	Kind     LearnedPatternKind
	Param    string // set when Kind == QueryString
	Template string
	LastUsed time.Time
}

// LearnedPatternExpiry is seven days. No code in this module reads it:
// learned patterns stay in their PaginationState for its whole life and
// are never expired.
const LearnedPatternExpiry = 7 * 24 * time.Hour

// PaginationState is owned by PaginationEngine and snapshot-broadcast to
// subscribers.
//
// Invariants: a URL appears in VisitedURLs at most once; advancing state
// requires passing the loop guard (collector/engine enforce this, the
// struct itself is a passive record).
type PaginationState struct {
	CurrentPage           uint32
	VisitedURLs           map[string]struct{}
	VisitedContentHashes  map[[32]byte]struct{}
	VisitedSimhashes      []uint64 // soft loop guard, checked alongside VisitedContentHashes
	History               []HistoryEntry
	FailedStrategies      map[Strategy]struct{}
	LastSuccessfulStrategy *Strategy
	LearnedPatterns       map[string]LearnedPattern // hostname -> pattern
}

// NewPaginationState returns an empty PaginationState at page 1, with its
// sets and maps allocated.
func NewPaginationState() *PaginationState {
	return &PaginationState{
		CurrentPage:          1,
		VisitedURLs:          make(map[string]struct{}),
		VisitedContentHashes: make(map[[32]byte]struct{}),
		FailedStrategies:     make(map[Strategy]struct{}),
		LearnedPatterns:      make(map[string]LearnedPattern),
	}
}

// RecordNavigation appends a history entry, bumping the page counter and
// trimming the ring buffer to HistoryCap.
func (s *PaginationState) RecordNavigation(url string, strategy Strategy, at time.Time) {
	s.CurrentPage++
	s.VisitedURLs[url] = struct{}{}
	s.History = append(s.History, HistoryEntry{URL: url, Page: s.CurrentPage, Strategy: strategy, Timestamp: at})
	if len(s.History) > HistoryCap {
		s.History = s.History[len(s.History)-HistoryCap:]
	}
	strat := strategy
	s.LastSuccessfulStrategy = &strat
}

// TerminationReason names why the pagination state machine stopped.
type TerminationReason string

const (
	TerminationUserStop      TerminationReason = "UserStop"
	TerminationMaxPages      TerminationReason = "MaxPages"
	TerminationNoNext        TerminationReason = "NoNext"
	TerminationLoopDetected  TerminationReason = "LoopDetected"
	TerminationDuplicatePage TerminationReason = "DuplicatePage"
	TerminationExhausted     TerminationReason = "Exhausted"
	TerminationDisabled      TerminationReason = "Disabled"
)
