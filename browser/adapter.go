package browser

import (
	"strings"

	"github.com/go-rod/rod"

	"github.com/use-agent/gallerydiscover/port"
)

// Adapter is a live view over a rod.Page's rendered DOM. Unlike domhtml's
// static arena of *html.Node, geometry and computed style here reflect
// real layout: ComputedStyle and BoundingRect are backed by
// getComputedStyle/getBoundingClientRect instead of inline-attribute
// guesses, so the scorer's layout/image-dimension signals run at full
// fidelity against a browser-rendered gallery.
type Adapter struct {
	page *rod.Page

	arena    []*rod.Element // index 0 reserved (InvalidHandle)
	handleOf map[string]port.ElementHandle
}

func newAdapter(page *rod.Page) *Adapter {
	return &Adapter{
		page:     page,
		arena:    make([]*rod.Element, 1, 256),
		handleOf: make(map[string]port.ElementHandle),
	}
}

func (a *Adapter) handleFor(el *rod.Element) port.ElementHandle {
	if el == nil || el.Object == nil {
		return port.InvalidHandle
	}
	key := string(el.Object.ObjectID)
	if h, ok := a.handleOf[key]; ok {
		return h
	}
	a.arena = append(a.arena, el)
	h := port.ElementHandle(len(a.arena) - 1)
	a.handleOf[key] = h
	return h
}

func (a *Adapter) elementFor(h port.ElementHandle) *rod.Element {
	if int(h) <= 0 || int(h) >= len(a.arena) {
		return nil
	}
	return a.arena[h]
}

// QueryAll matches selector against the live document. An invalid
// selector (rejected by the browser's own querySelectorAll) returns an
// empty slice and a nil error, never a failed scan.
func (a *Adapter) QueryAll(selector string) ([]port.ElementHandle, error) {
	els, err := a.page.Elements(selector)
	if err != nil {
		return nil, nil
	}
	out := make([]port.ElementHandle, 0, len(els))
	for _, el := range els {
		out = append(out, a.handleFor(el))
	}
	return out, nil
}

// Attributes reads the element's attributes via a single round trip.
func (a *Adapter) Attributes(h port.ElementHandle) map[string]string {
	el := a.elementFor(h)
	if el == nil {
		return map[string]string{}
	}
	res, err := el.Eval(`() => { const o = {}; for (const at of this.attributes) o[at.name] = at.value; return o }`)
	if err != nil {
		return map[string]string{}
	}
	raw := res.Value.Map()
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = v.Str()
	}
	return out
}

// TagName returns the lower-cased tag name.
func (a *Adapter) TagName(h port.ElementHandle) string {
	el := a.elementFor(h)
	if el == nil {
		return ""
	}
	res, err := el.Eval(`() => this.tagName`)
	if err != nil {
		return ""
	}
	return strings.ToLower(res.Value.Str())
}

// Text returns the element's rendered inner text (post-layout, unlike
// domhtml's raw text-node concatenation).
func (a *Adapter) Text(h port.ElementHandle) string {
	el := a.elementFor(h)
	if el == nil {
		return ""
	}
	text, err := el.Text()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

// OuterHTML serializes the element as currently rendered.
func (a *Adapter) OuterHTML(h port.ElementHandle) string {
	el := a.elementFor(h)
	if el == nil {
		return ""
	}
	out, err := el.HTML()
	if err != nil {
		return ""
	}
	return out
}

type computedStyleJSON struct {
	Display         string  `json:"display"`
	Visibility      string  `json:"visibility"`
	Opacity         float64 `json:"opacity"`
	OverflowX       string  `json:"overflowX"`
	OverflowY       string  `json:"overflowY"`
	BackgroundImage string  `json:"backgroundImage"`
}

const computedStyleJS = `() => {
	const s = window.getComputedStyle(this);
	let bg = "";
	const m = /url\(\s*['"]?([^'")]+)['"]?\s*\)/.exec(s.backgroundImage || "");
	if (m) bg = m[1];
	return {
		display: s.display,
		visibility: s.visibility,
		opacity: parseFloat(s.opacity),
		overflowX: s.overflowX,
		overflowY: s.overflowY,
		backgroundImage: bg,
	};
}`

// ComputedStyle runs getComputedStyle against the real CSSOM: cascade,
// stylesheets, and inherited rules all apply, unlike domhtml's
// inline-style-only approximation.
func (a *Adapter) ComputedStyle(h port.ElementHandle) port.ComputedStyle {
	el := a.elementFor(h)
	if el == nil {
		return port.ComputedStyle{Display: "none"}
	}
	res, err := el.Eval(computedStyleJS)
	if err != nil {
		return port.ComputedStyle{Display: "none"}
	}
	var cs computedStyleJSON
	if err := res.Value.Unmarshal(&cs); err != nil {
		return port.ComputedStyle{Display: "none"}
	}
	return port.ComputedStyle{
		Display:         cs.Display,
		Visibility:      cs.Visibility,
		Opacity:         cs.Opacity,
		OverflowX:       cs.OverflowX,
		OverflowY:       cs.OverflowY,
		BackgroundImage: cs.BackgroundImage,
	}
}

// BoundingRect reads the element's real layout box via
// getBoundingClientRect, giving the scorer's imageDimensions and
// layoutConsistency signals the precision a static-HTML adapter can
// only approximate.
func (a *Adapter) BoundingRect(h port.ElementHandle) port.Rect {
	el := a.elementFor(h)
	if el == nil {
		return port.Rect{}
	}
	shape, err := el.Shape()
	if err != nil {
		return port.Rect{}
	}
	box := shape.Box()
	return port.Rect{X: box.X, Y: box.Y, W: box.Width, H: box.Height, HasPosition: true}
}

// Children returns the element's direct element children.
func (a *Adapter) Children(h port.ElementHandle) []port.ElementHandle {
	el := a.elementFor(h)
	if el == nil {
		return nil
	}
	kids, err := el.Elements(":scope > *")
	if err != nil {
		return nil
	}
	out := make([]port.ElementHandle, 0, len(kids))
	for _, k := range kids {
		out = append(out, a.handleFor(k))
	}
	return out
}

// Parent resolves the element's parentElement, if it has one.
func (a *Adapter) Parent(h port.ElementHandle) (port.ElementHandle, bool) {
	el := a.elementFor(h)
	if el == nil {
		return port.InvalidHandle, false
	}
	res, err := el.Eval(`() => this.parentElement`)
	if err != nil || res.Value.Nil() {
		return port.InvalidHandle, false
	}
	parent, err := a.page.ElementFromObject(res.Object)
	if err != nil {
		return port.InvalidHandle, false
	}
	return a.handleFor(parent), true
}

// ShadowRoot resolves an open shadow root attached to h. A closed shadow
// root returns shadowRoot === null from the page's own perspective and
// is never revealed, matching the static adapter's contract.
func (a *Adapter) ShadowRoot(h port.ElementHandle) (port.ElementHandle, bool) {
	el := a.elementFor(h)
	if el == nil {
		return port.InvalidHandle, false
	}
	res, err := el.Eval(`() => this.shadowRoot`)
	if err != nil || res.Value.Nil() {
		return port.InvalidHandle, false
	}
	root, err := a.page.ElementFromObject(res.Object)
	if err != nil {
		return port.InvalidHandle, false
	}
	return a.handleFor(root), true
}

var _ port.DomAdapter = (*Adapter)(nil)
