package domhtml

import "testing"

const sampleHTML = `<!doctype html><html><body>
<div class="gallery">
  <img src="a.jpg" alt="A">
  <img src="b.jpg" alt="B" style="display:none">
</div>
</body></html>`

func TestQueryAllAndAttributes(t *testing.T) {
	a, err := New(sampleHTML, "https://ex.com/")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	handles, err := a.QueryAll("img")
	if err != nil {
		t.Fatalf("QueryAll: %v", err)
	}
	if len(handles) != 2 {
		t.Fatalf("expected 2 imgs, got %d", len(handles))
	}

	attrs := a.Attributes(handles[0])
	if attrs["src"] != "a.jpg" || attrs["alt"] != "A" {
		t.Errorf("unexpected attrs: %+v", attrs)
	}

	style := a.ComputedStyle(handles[1])
	if style.Display != "none" {
		t.Errorf("expected display:none, got %q", style.Display)
	}
}

func TestQueryAllInvalidSelectorReturnsEmpty(t *testing.T) {
	a, err := New(sampleHTML, "https://ex.com/")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	handles, err := a.QueryAll(":::not-a-selector")
	if err != nil {
		t.Fatalf("expected nil error for invalid selector, got %v", err)
	}
	if len(handles) != 0 {
		t.Errorf("expected empty result for invalid selector, got %d", len(handles))
	}
}

func TestChildrenAndParent(t *testing.T) {
	a, err := New(sampleHTML, "https://ex.com/")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	divs, _ := a.QueryAll("div.gallery")
	if len(divs) != 1 {
		t.Fatalf("expected 1 div, got %d", len(divs))
	}
	children := a.Children(divs[0])
	if len(children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(children))
	}
	parent, ok := a.Parent(children[0])
	if !ok || parent != divs[0] {
		t.Errorf("expected child's parent to be the div")
	}
}
