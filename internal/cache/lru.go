package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRU is a bounded cache with two expiry modes per entry:
//
//   - Set stores an entry with a sliding idle window: each read pushes
//     the deadline out again, so only entries nobody touches expire.
//   - SetUntil stores an entry with a fixed absolute deadline that a
//     read never extends. Used where an entry's lifetime is derived
//     data, e.g. a cached token living exactly as long as the token.
//
// Once the cache is full the least-recently-accessed entry is evicted
// regardless of how much lifetime it has left. A maxSize of 0 means
// unbounded. Values are treated as immutable snapshots; callers must
// replace them wholesale, never mutate in place.
type LRU[T any] struct {
	mu      sync.Mutex
	maxSize int
	idleTTL time.Duration
	items   map[string]*list.Element
	order   *list.List

	now func() time.Time // injectable clock for tests
}

type entry[T any] struct {
	key       string
	value     T
	expiresAt time.Time
	sliding   bool
}

func NewLRU[T any](maxSize int, idleTTL time.Duration) *LRU[T] {
	return &LRU[T]{
		maxSize: maxSize,
		idleTTL: idleTTL,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

// Get returns the cached value for key. An entry whose deadline has
// been reached counts as absent; the expiry instant itself is already
// expired. Sliding entries get their idle window renewed by the read.
func (c *LRU[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	elem, ok := c.items[key]
	if !ok {
		return zero, false
	}

	item := elem.Value.(*entry[T])
	if !c.now().Before(item.expiresAt) {
		c.removeElement(elem)
		return zero, false
	}

	if item.sliding {
		item.expiresAt = c.now().Add(c.idleTTL)
	}
	c.order.MoveToFront(elem)
	return item.value, true
}

// Set stores value under key with the cache's idle expiry window.
func (c *LRU[T]) Set(key string, value T) {
	c.insert(key, value, c.now().Add(c.idleTTL), true)
}

// SetUntil stores value under key with a fixed deadline. Reads do not
// extend it.
func (c *LRU[T]) SetUntil(key string, value T, deadline time.Time) {
	c.insert(key, value, deadline, false)
}

func (c *LRU[T]) insert(key string, value T, deadline time.Time, sliding bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item := &entry[T]{key: key, value: value, expiresAt: deadline, sliding: sliding}

	if elem, ok := c.items[key]; ok {
		elem.Value = item
		c.order.MoveToFront(elem)
		return
	}

	c.items[key] = c.order.PushFront(item)

	if c.maxSize > 0 && c.order.Len() > c.maxSize {
		if oldest := c.order.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
}

// Delete evicts key if present.
func (c *LRU[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

func (c *LRU[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *LRU[T]) removeElement(elem *list.Element) {
	item := elem.Value.(*entry[T])
	delete(c.items, item.key)
	c.order.Remove(elem)
}
