// Package domhtml is the default DomAdapter: a static-HTML implementation
// built on github.com/PuerkitoBio/goquery for parsing and traversal, with
// github.com/andybalholm/cascadia selectors run directly against the
// document via goquery's Matcher integration (compiling once, caching the
// compiled selector, the same shape as cleaner/selector.go's selector
// cache) — following the parse-then-select idiom of cleaner/selector.go
// and the goquery-based element walks of cleaner/extract.go in the
// teacher corpus.
//
// Per the spec's arena-indexed-handle remapping (§9), elements are never
// exposed as raw node pointers: the Adapter keeps its own node arena and
// hands out integer ElementHandles, so handles are safe to hold without
// pinning the document and invalid once the Adapter is discarded.
//
// Static HTML has no real layout engine, so ComputedStyle and
// BoundingRect are derived from inline style/attributes only — geometry
// signals that depend on actual rendering degrade to the scorer's
// documented "missing signal" default. The browser-backed adapter (see
// the browser package) supplies real computed geometry when a gallery
// needs it.
package domhtml

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/use-agent/gallerydiscover/port"
)

// Adapter is a parsed document plus its handle arena.
type Adapter struct {
	doc     *goquery.Selection
	baseURL string

	arena    []*html.Node // index 0 is reserved (InvalidHandle)
	handleOf map[*html.Node]port.ElementHandle

	selectorCache map[string]cascadia.Sel
}

// New parses htmlStr and returns an Adapter. baseURL is retained for
// callers that need to resolve relative attribute values (the adapter
// itself returns raw attribute strings; resolution is UrlCanonicalizer's
// job).
func New(htmlStr, baseURL string) (*Adapter, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return nil, err
	}
	a := &Adapter{
		doc:           doc.Selection,
		baseURL:       baseURL,
		arena:         make([]*html.Node, 1, 256),
		handleOf:      make(map[*html.Node]port.ElementHandle),
		selectorCache: make(map[string]cascadia.Sel),
	}
	return a, nil
}

// BaseURL returns the document's base URL.
func (a *Adapter) BaseURL() string { return a.baseURL }

func (a *Adapter) handleFor(n *html.Node) port.ElementHandle {
	if n == nil {
		return port.InvalidHandle
	}
	if h, ok := a.handleOf[n]; ok {
		return h
	}
	a.arena = append(a.arena, n)
	h := port.ElementHandle(len(a.arena) - 1)
	a.handleOf[n] = h
	return h
}

func (a *Adapter) nodeFor(h port.ElementHandle) *html.Node {
	if int(h) <= 0 || int(h) >= len(a.arena) {
		return nil
	}
	return a.arena[h]
}

// QueryAll compiles selector with cascadia, caches the compiled matcher,
// and runs it via goquery's FindMatcher against the document. An invalid
// selector returns (nil, nil): a malformed selector must never fail the
// scan.
func (a *Adapter) QueryAll(selector string) ([]port.ElementHandle, error) {
	sel, ok := a.selectorCache[selector]
	if !ok {
		compiled, err := cascadia.Parse(selector)
		if err != nil {
			return nil, nil
		}
		sel = compiled
		a.selectorCache[selector] = sel
	}

	nodes := a.doc.FindMatcher(sel).Nodes
	handles := make([]port.ElementHandle, 0, len(nodes))
	for _, n := range nodes {
		handles = append(handles, a.handleFor(n))
	}
	return handles, nil
}

// Attributes returns the element's attributes as a plain map.
func (a *Adapter) Attributes(h port.ElementHandle) map[string]string {
	n := a.nodeFor(h)
	if n == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(n.Attr))
	for _, attr := range n.Attr {
		out[attr.Key] = attr.Val
	}
	return out
}

// TagName returns the lower-cased tag name.
func (a *Adapter) TagName(h port.ElementHandle) string {
	n := a.nodeFor(h)
	if n == nil {
		return ""
	}
	return strings.ToLower(n.Data)
}

// Text returns the element's rendered text content, concatenating all
// descendant text nodes in document order.
func (a *Adapter) Text(h port.ElementHandle) string {
	n := a.nodeFor(h)
	if n == nil {
		return ""
	}
	var buf strings.Builder
	collectText(n, &buf)
	return strings.TrimSpace(buf.String())
}

func collectText(n *html.Node, buf *strings.Builder) {
	if n.Type == html.TextNode {
		buf.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, buf)
	}
}

// OuterHTML serializes the element and its subtree.
func (a *Adapter) OuterHTML(h port.ElementHandle) string {
	n := a.nodeFor(h)
	if n == nil {
		return ""
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	return buf.String()
}

var (
	displayNoneRe  = regexp.MustCompile(`(?i)display\s*:\s*none`)
	visHiddenRe    = regexp.MustCompile(`(?i)visibility\s*:\s*hidden`)
	opacityRe      = regexp.MustCompile(`(?i)opacity\s*:\s*([0-9.]+)`)
	overflowXRe    = regexp.MustCompile(`(?i)overflow-x\s*:\s*([a-z]+)`)
	overflowYRe    = regexp.MustCompile(`(?i)overflow-y\s*:\s*([a-z]+)`)
	overflowRe     = regexp.MustCompile(`(?i)overflow\s*:\s*([a-z]+)`)
	backgroundURLRe = regexp.MustCompile(`(?i)background(?:-image)?\s*:[^;]*url\(\s*['"]?([^'")]+)['"]?\s*\)`)
)

// ComputedStyle is derived from the element's inline style attribute only
// (no cascade, no stylesheet resolution) — see the package doc comment.
func (a *Adapter) ComputedStyle(h port.ElementHandle) port.ComputedStyle {
	attrs := a.Attributes(h)
	style := attrs["style"]

	cs := port.ComputedStyle{
		Display:    "block",
		Visibility: "visible",
		Opacity:    1.0,
		OverflowX:  "visible",
		OverflowY:  "visible",
	}

	if attrs["hidden"] != "" || displayNoneRe.MatchString(style) {
		cs.Display = "none"
	}
	if visHiddenRe.MatchString(style) {
		cs.Visibility = "hidden"
	}
	if m := opacityRe.FindStringSubmatch(style); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			cs.Opacity = f
		}
	}
	if m := overflowXRe.FindStringSubmatch(style); m != nil {
		cs.OverflowX = strings.ToLower(m[1])
	} else if m := overflowRe.FindStringSubmatch(style); m != nil {
		cs.OverflowX = strings.ToLower(m[1])
	}
	if m := overflowYRe.FindStringSubmatch(style); m != nil {
		cs.OverflowY = strings.ToLower(m[1])
	} else if m := overflowRe.FindStringSubmatch(style); m != nil {
		cs.OverflowY = strings.ToLower(m[1])
	}
	if m := backgroundURLRe.FindStringSubmatch(style); m != nil {
		cs.BackgroundImage = m[1]
	}

	return cs
}

// BoundingRect falls back to the element's width/height attributes, if
// present; there is no layout engine behind static HTML, so X/Y are left
// unset and HasPosition is false — callers that need real row/column
// geometry must check it rather than treat (0,0) as a real position.
func (a *Adapter) BoundingRect(h port.ElementHandle) port.Rect {
	attrs := a.Attributes(h)
	w, _ := strconv.ParseFloat(attrs["width"], 64)
	ht, _ := strconv.ParseFloat(attrs["height"], 64)
	return port.Rect{W: w, H: ht}
}

// Children returns the element's direct element-node children.
func (a *Adapter) Children(h port.ElementHandle) []port.ElementHandle {
	n := a.nodeFor(h)
	if n == nil {
		return nil
	}
	var out []port.ElementHandle
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, a.handleFor(c))
		}
	}
	return out
}

// Parent returns the element's parent, if it is itself an element.
func (a *Adapter) Parent(h port.ElementHandle) (port.ElementHandle, bool) {
	n := a.nodeFor(h)
	if n == nil || n.Parent == nil || n.Parent.Type != html.ElementNode {
		return port.InvalidHandle, false
	}
	return a.handleFor(n.Parent), true
}

// ShadowRoot always returns false: static HTML parsing has no concept of
// attached shadow roots. The browser-backed adapter resolves open shadow
// roots via the real DOM.
func (a *Adapter) ShadowRoot(h port.ElementHandle) (port.ElementHandle, bool) {
	return port.InvalidHandle, false
}

var _ port.DomAdapter = (*Adapter)(nil)
