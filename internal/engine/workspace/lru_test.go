package workspace

import (
	"fmt"
	"sync"
	"testing"
)

func TestLRUCache_GetPut(t *testing.T) {
	c := NewLRUCache[string, int](3, nil)

	if _, ok := c.Get("a"); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	if c.Len() != 3 {
		t.Fatalf("expected len 3, got %d", c.Len())
	}
	for k, want := range map[string]int{"a": 1, "b": 2, "c": 3} {
		v, ok := c.Get(k)
		if !ok || v != want {
			t.Fatalf("key %q: want %d got %d (hit=%v)", k, want, v, ok)
		}
	}
}

func TestLRUCache_EvictCallback(t *testing.T) {
	var evicted []string
	c := NewLRUCache[string, int](2, func(k string, _ int) { evicted = append(evicted, k) })

	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a")
	c.Put("c", 3) // b is least recently used

	if _, ok := c.Get("b"); ok {
		t.Fatal("expected 'b' to be evicted")
	}
	if len(evicted) != 1 || evicted[0] != "b" {
		t.Fatalf("expected callback for b, got %v", evicted)
	}

	c.Put("a", 10) // replacement is not an eviction
	if len(evicted) != 1 {
		t.Fatalf("replacement must not trigger callback, got %v", evicted)
	}

	c.Evict("a")
	c.Evict("missing")
	c.Clear()
	if len(evicted) != 3 || evicted[1] != "a" || evicted[2] != "c" {
		t.Fatalf("unexpected eviction order %v", evicted)
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty cache after Clear, got %d", c.Len())
	}
}

func TestLRUCache_ZeroCapacity(t *testing.T) {
	c := NewLRUCache[int, int](0, nil)
	c.Put(1, 1)
	c.Put(2, 2)
	if c.Len() != 1 {
		t.Fatalf("expected capacity normalised to 1, got len %d", c.Len())
	}
}

func TestLRUCache_Concurrent(t *testing.T) {
	c := NewLRUCache[string, int](64, nil)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("%d-%d", g, i%16)
				c.Put(key, i)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()
	if c.Len() > 64 {
		t.Fatalf("cache exceeded capacity: %d", c.Len())
	}
}
