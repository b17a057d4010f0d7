package cache

import "testing"

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(2)
	c.Set("a", 1)
	c.Set("b", 2)

	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a to be present")
	}

	// a is now most-recently-used; adding c should evict b.
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("expected a to survive eviction")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("expected c to be present")
	}
	if c.Len() != 2 {
		t.Errorf("expected capacity-bounded length 2, got %d", c.Len())
	}
}

func TestKeyIsStableForSameInputs(t *testing.T) {
	k1 := Key(".gallery img", "https://ex.com/g", 12)
	k2 := Key(".gallery img", "https://ex.com/g", 12)
	if k1 != k2 {
		t.Errorf("expected stable key, got %q vs %q", k1, k2)
	}
}
