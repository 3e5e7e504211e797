package utils

import "testing"

func TestLRUEvictsOldest(t *testing.T) {
	c := NewLRU[int](2)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected oldest entry to be evicted")
	}
	if v, ok := c.Get("b"); !ok || v != 2 {
		t.Fatalf("get b: want=2 got=%d ok=%v", v, ok)
	}
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Fatalf("get c: want=3 got=%d ok=%v", v, ok)
	}
}

func TestLRUGetRefreshesRecency(t *testing.T) {
	c := NewLRU[string](2)
	c.Set("a", "x")
	c.Set("b", "y")
	c.Get("a")
	c.Set("c", "z")

	if _, ok := c.Get("b"); ok {
		t.Fatalf("expected b to be evicted after a was refreshed")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("expected a to survive")
	}
}

func TestLRUOverwriteKeepsLen(t *testing.T) {
	c := NewLRU[int](2)
	c.Set("a", 1)
	c.Set("a", 2)
	if c.Len() != 1 {
		t.Fatalf("len: want=1 got=%d", c.Len())
	}
	if v, _ := c.Get("a"); v != 2 {
		t.Fatalf("overwrite: want=2 got=%d", v)
	}
}
