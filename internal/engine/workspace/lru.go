package workspace

import (
	"container/list"
	"sync"
)

// LRUCache is a thread-safe, capacity-bounded least-recently-used cache.
// onEvict, when set, runs for entries pushed out by capacity or removed
// through Evict and Clear; it is called with the lock released.
type LRUCache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[K]*list.Element
	order    *list.List // front = most-recently used
	onEvict  func(K, V)
}

type lruEntry[K comparable, V any] struct {
	key   K
	value V
}

// NewLRUCache creates a cache; capacities <= 0 are normalised to 1.
func NewLRUCache[K comparable, V any](capacity int, onEvict func(K, V)) *LRUCache[K, V] {
	if capacity <= 0 {
		capacity = 1
	}
	return &LRUCache[K, V]{
		capacity: capacity,
		items:    make(map[K]*list.Element, capacity),
		order:    list.New(),
		onEvict:  onEvict,
	}
}

func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*lruEntry[K, V]).value, true
}

// Put inserts or replaces key. A replaced value is not passed to onEvict.
func (c *LRUCache[K, V]) Put(key K, value V) {
	var evicted []*lruEntry[K, V]

	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		el.Value.(*lruEntry[K, V]).value = value
		c.mu.Unlock()
		return
	}
	if c.order.Len() >= c.capacity {
		if back := c.order.Back(); back != nil {
			entry := back.Value.(*lruEntry[K, V])
			c.order.Remove(back)
			delete(c.items, entry.key)
			evicted = append(evicted, entry)
		}
	}
	c.items[key] = c.order.PushFront(&lruEntry[K, V]{key: key, value: value})
	c.mu.Unlock()

	c.notify(evicted)
}

func (c *LRUCache[K, V]) Evict(key K) {
	c.mu.Lock()
	el, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	c.order.Remove(el)
	delete(c.items, key)
	c.mu.Unlock()

	c.notify([]*lruEntry[K, V]{el.Value.(*lruEntry[K, V])})
}

func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *LRUCache[K, V]) Clear() {
	c.mu.Lock()
	evicted := make([]*lruEntry[K, V], 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		evicted = append(evicted, el.Value.(*lruEntry[K, V]))
	}
	c.order.Init()
	c.items = make(map[K]*list.Element, c.capacity)
	c.mu.Unlock()

	c.notify(evicted)
}

func (c *LRUCache[K, V]) notify(entries []*lruEntry[K, V]) {
	if c.onEvict == nil {
		return
	}
	for _, e := range entries {
		c.onEvict(e.key, e.value)
	}
}
