// Package port declares the collaborator contracts the engine consumes:
// the host DOM, the network, navigation, export/download sinks, a
// session-scoped key-value store, and a clock. The engine never implements
// these itself — production adapters live in domhtml, fetchhttp, and
// browser; tests supply fakes.
package port

import (
	"context"
	"time"
)

// ElementHandle is a non-owning, arena-indexed reference into whatever
// document produced it. Handles never outlive the document that issued
// them and must not be dereferenced after a navigation.
type ElementHandle uint32

// InvalidHandle is never returned by a DomAdapter as a live element.
const InvalidHandle ElementHandle = 0

// ComputedStyle mirrors the subset of CSSOM the engine's signals need.
type ComputedStyle struct {
	Display         string
	Visibility      string
	Opacity         float64
	OverflowX       string
	OverflowY       string
	BackgroundImage string // raw `url(...)` value, empty if none
}

// Rect is a bounding box in layout pixels.
type Rect struct {
	X, Y, W, H float64

	// HasPosition is true when X/Y reflect real layout coordinates. Static
	// HTML has no layout engine, so the default adapter always leaves this
	// false; signals that need genuine row/column geometry (Grid/Masonry
	// classification, layoutConsistency scoring) must check it rather than
	// cluster on fabricated zeros.
	HasPosition bool
}

// DomAdapter is a read-only view over a parsed document tree.
type DomAdapter interface {
	// QueryAll returns every element matching selector. An invalid selector
	// (one the adapter's sanitizer rejects) returns an empty slice and a
	// nil error — a malformed selector never fails the scan.
	QueryAll(selector string) ([]ElementHandle, error)

	// Attributes returns the element's attribute map. Missing handles
	// return an empty map.
	Attributes(h ElementHandle) map[string]string

	// TagName returns the lower-cased tag name, or "" for an unknown handle.
	TagName(h ElementHandle) string

	// Text returns the element's rendered text content.
	Text(h ElementHandle) string

	// OuterHTML returns the element's serialized markup, used for
	// content-hash computation and diagnostics.
	OuterHTML(h ElementHandle) string

	ComputedStyle(h ElementHandle) ComputedStyle
	BoundingRect(h ElementHandle) Rect

	Children(h ElementHandle) []ElementHandle
	Parent(h ElementHandle) (ElementHandle, bool)

	// ShadowRoot returns the open shadow root attached to h, if any.
	// Closed shadow roots are never revealed.
	ShadowRoot(h ElementHandle) (ElementHandle, bool)
}

// Response is the result of a Fetcher.Fetch call.
type Response struct {
	Status   int
	Headers  map[string]string
	Body     []byte
	FinalURL string
}

// Fetcher performs the network I/O the engine never implements itself
// (TLS, cookies, credentials are its concern, not the core's).
type Fetcher interface {
	// Fetch is cancellable via ctx; streaming responses are not required.
	Fetch(ctx context.Context, url, method string, headers map[string]string, body []byte) (*Response, error)
}

// NavigateResult is returned by Navigator operations.
type NavigateResult struct {
	Adapter  DomAdapter // the freshly parsed document, present on success
	FinalURL string
}

// Navigator performs page transitions: a trusted click in the page's main
// world, or a URL load that triggers a fetch and reparse.
type Navigator interface {
	Click(ctx context.Context, h ElementHandle) error
	Load(ctx context.Context, url string) (*NavigateResult, error)
}

// ExportSink writes a named blob of bytes to wherever the host wants
// scan output to land (file, archive entry, upload). Out of core scope
// beyond this contract.
type ExportSink interface {
	Write(ctx context.Context, filename, mime string, data []byte) error
}

// ConflictPolicy controls DownloadSink behavior on a filename collision.
type ConflictPolicy string

const (
	ConflictOverwrite ConflictPolicy = "overwrite"
	ConflictRename    ConflictPolicy = "rename"
	ConflictSkip      ConflictPolicy = "skip"
)

// DownloadID identifies an enqueued download.
type DownloadID string

// DownloadStatus is the terminal state of a download.
type DownloadStatus string

const (
	DownloadComplete    DownloadStatus = "Complete"
	DownloadInterrupted DownloadStatus = "Interrupted"
)

// DownloadSink hands image URLs to whatever downloads files on the host.
type DownloadSink interface {
	Enqueue(ctx context.Context, url, filename string, conflict ConflictPolicy) (DownloadID, error)
	OnCompletion(ctx context.Context, id DownloadID) (DownloadStatus, error)
}

// PersistSink is a session-scoped, string-keyed key-value store used for
// RetryManager and PaginationEngine state snapshots.
type PersistSink interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Clock abstracts wall-clock time and sleeping so tests can drive the
// engine's scheduled wake-ups deterministically instead of racing real
// timers. Sleep must return early if ctx is cancelled.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the production Clock backed by the real wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
