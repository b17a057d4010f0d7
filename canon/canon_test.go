package canon

import "testing"

func TestCanonicalizeRoundTrip(t *testing.T) {
	c := New(false, nil)
	base := "https://ex.com/gallery/page2"

	cases := []string{
		"//cdn.ex.com/img.jpg",
		"/gallery/p3",
		"https://Ex.com/Gallery?page=4",
		"img.jpg",
	}

	for _, raw := range cases {
		first, ok := c.Canonicalize(raw, base)
		if !ok {
			t.Fatalf("Canonicalize(%q) failed", raw)
		}
		second, ok := c.Canonicalize(first, base)
		if !ok {
			t.Fatalf("Canonicalize(%q) (second pass) failed", first)
		}
		if first != second {
			t.Errorf("round-trip mismatch: %q != %q", first, second)
		}
	}
}

func TestCanonicalizeRejectsNonFetchableSchemes(t *testing.T) {
	c := New(false, nil)
	base := "https://ex.com/"

	for _, raw := range []string{"data:image/png;base64,AAAA", "mailto:a@b.com", "tel:+123", "javascript:void(0)"} {
		if _, ok := c.Canonicalize(raw, base); ok {
			t.Errorf("expected Canonicalize(%q) to be rejected", raw)
		}
	}
}

func TestLooksLikeImage(t *testing.T) {
	c := New(false, nil)
	cases := map[string]bool{
		"https://ex.com/a/b.jpg":        true,
		"https://ex.com/a/b.JPEG":       true,
		"https://ex.com/photo/123":      true,
		"https://ex.com/a/b.html":       false,
		"https://ex.com/gallery?x=image": true,
	}
	for u, want := range cases {
		if got := c.LooksLikeImage(u); got != want {
			t.Errorf("LooksLikeImage(%q) = %v, want %v", u, got, want)
		}
	}
}

func TestIsBadPaginationTarget(t *testing.T) {
	c := New(false, nil)
	bad := []string{"#", "javascript:void(0)", "JavaScript:go()", "/null", "null"}
	for _, raw := range bad {
		if !c.IsBadPaginationTarget(raw) {
			t.Errorf("expected IsBadPaginationTarget(%q) = true", raw)
		}
	}

	good := []string{"https://ex.com/p2", "/gallery/p3"}
	for _, raw := range good {
		if c.IsBadPaginationTarget(raw) {
			t.Errorf("expected IsBadPaginationTarget(%q) = false", raw)
		}
	}
}
