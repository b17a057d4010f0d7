package models

import (
	"time"

	"github.com/use-agent/gallerydiscover/port"
)

// DiscoveryMethod identifies which ImageCollector idiom produced a record.
type DiscoveryMethod string

const (
	DiscoveryImgSrc          DiscoveryMethod = "img-src"
	DiscoveryImgSrcset       DiscoveryMethod = "img-srcset"
	DiscoveryLazyAttr        DiscoveryMethod = "lazy-attr"
	DiscoveryBackgroundImage DiscoveryMethod = "background-image"
	DiscoveryPictureSource   DiscoveryMethod = "picture-source"
	DiscoveryPictureImg      DiscoveryMethod = "picture-img"
	DiscoverySVGImage        DiscoveryMethod = "svg-image"
	DiscoveryAnchorHref      DiscoveryMethod = "anchor-href"
)

// Category buckets a record by how much the scorer and same-origin check
// trust it.
type Category string

const (
	CategoryHighConfidence Category = "HighConfidence"
	CategorySameOrigin     Category = "SameOrigin"
	CategoryExternal       Category = "External"
)

// ImageAttributes carries the optional descriptive attributes collected
// alongside a discovered URL.
type ImageAttributes struct {
	Alt    string
	Title  string
	Width  int
	Height int
	Class  string
	ID     string
}

// ImageRecord is one discovered, canonicalized image reference.
//
// Invariant: URL is canonical; no two records in a single scan share a URL.
type ImageRecord struct {
	URL             string
	DiscoveryMethod DiscoveryMethod
	Attributes      ImageAttributes
	ElementRef      port.ElementHandle
	Confidence      float64
	Category        Category
	Timestamp       time.Time
}
