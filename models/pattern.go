package models

import "github.com/use-agent/gallerydiscover/port"

// MinPatternItems is the default floor for a container to qualify as a
// gallery pattern. Layout-specific minima (see LayoutMinItems) refine this
// per the spec's design-notes resolution of the Grid/List/Carousel/Masonry
// discrepancy in the source material.
const MinPatternItems = 3

// LayoutKind is the tag of the Layout sum type.
type LayoutKind string

const (
	LayoutGrid     LayoutKind = "Grid"
	LayoutList     LayoutKind = "List"
	LayoutCarousel LayoutKind = "Carousel"
	LayoutMasonry  LayoutKind = "Masonry"
)

// LayoutMinItems are the layout-specific item-count floors resolved from
// the design notes' open question (source mixed 3 and 4+ across code
// paths): Grid needs at least 2x2, List and Carousel keep the general
// floor, Masonry needs enough columns for height variance to mean anything.
var LayoutMinItems = map[LayoutKind]int{
	LayoutGrid:     4,
	LayoutList:     3,
	LayoutCarousel: 3,
	LayoutMasonry:  6,
}

// Orientation values for LayoutList.
const (
	OrientationHorizontal = "horizontal"
	OrientationVertical   = "vertical"
)

// Layout is the classified geometry of a gallery container. Only the
// fields relevant to Kind are meaningful; the rest are zero.
type Layout struct {
	Kind LayoutKind

	// Grid
	Rows, Cols int

	// List
	Orientation string

	// Carousel
	HasNav         bool
	HasIndicators  bool
	VisibleCount   int

	// Masonry
	Columns int
}

// ConfidenceLevel buckets a Score per the glossary thresholds.
type ConfidenceLevel string

const (
	LevelHigh    ConfidenceLevel = "High"
	LevelMedium  ConfidenceLevel = "Medium"
	LevelLow     ConfidenceLevel = "Low"
	LevelVeryLow ConfidenceLevel = "VeryLow"
)

// LevelForScore buckets a [0,1] score using the spec's thresholds.
func LevelForScore(score float64) ConfidenceLevel {
	switch {
	case score >= 0.75:
		return LevelHigh
	case score >= 0.50:
		return LevelMedium
	case score >= 0.25:
		return LevelLow
	default:
		return LevelVeryLow
	}
}

// SignalResult is one independently computed confidence signal.
type SignalResult struct {
	Name   string
	Score  float64
	Weight float64
	Detail string
	TimedOut bool
}

// Rationale is the scorer's explanation of a pattern's confidence.
type Rationale struct {
	Signals         []SignalResult
	Recommendations []string
}

// GalleryPattern is a detected, scored gallery container.
//
// Invariants: len(Items) >= MinPatternItems (refined per layout via
// LayoutMinItems); Confidence is monotone in its contributing signals.
type GalleryPattern struct {
	ContainerRef port.ElementHandle
	Layout       Layout
	Items        []port.ElementHandle
	Selector     string
	Confidence   float64
	Level        ConfidenceLevel
	Rationale    Rationale
}
