package cache

import (
	"sync"
	"time"
)

var _ Cache[int] = (*LRUCache[int])(nil)

// LRUCache holds at most maxSize entries, dropping the least recently read
// one on overflow. Entries older than ttl read as absent.
type LRUCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	byKey map[string]*node[T]
	// root is a sentinel: root.next is the most recent entry, root.prev the
	// eviction candidate.
	root node[T]
}

type node[T any] struct {
	prev, next *node[T]
	key        string
	value      T
	expires    time.Time
}

func NewLRUCache[T any](maxSize int, ttl time.Duration) *LRUCache[T] {
	c := &LRUCache[T]{
		maxSize: max(maxSize, 1),
		ttl:     ttl,
		now:     time.Now,
		byKey:   make(map[string]*node[T]),
	}
	c.root.next, c.root.prev = &c.root, &c.root
	return c
}

func (c *LRUCache[T]) unlink(n *node[T]) {
	n.prev.next, n.next.prev = n.next, n.prev
	n.prev, n.next = nil, nil
}

func (c *LRUCache[T]) pushFront(n *node[T]) {
	n.prev, n.next = &c.root, c.root.next
	c.root.next.prev = n
	c.root.next = n
}

func (c *LRUCache[T]) drop(n *node[T]) {
	c.unlink(n)
	delete(c.byKey, n.key)
}

func (c *LRUCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.byKey[key]
	if !ok {
		var zero T
		return zero, false
	}
	if c.now().After(n.expires) {
		c.drop(n)
		var zero T
		return zero, false
	}
	c.unlink(n)
	c.pushFront(n)
	return n.value, true
}

func (c *LRUCache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(c.ttl)
	if n, ok := c.byKey[key]; ok {
		n.value, n.expires = value, expires
		c.unlink(n)
		c.pushFront(n)
		return
	}

	n := &node[T]{key: key, value: value, expires: expires}
	c.byKey[key] = n
	c.pushFront(n)
	if len(c.byKey) > c.maxSize {
		c.drop(c.root.prev)
	}
}

func (c *LRUCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.byKey[key]; ok {
		c.drop(n)
	}
}

// CleanExpired drops every expired entry and reports how many.
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	dropped := 0
	for n := c.root.next; n != &c.root; {
		next := n.next
		if now.After(n.expires) {
			c.drop(n)
			dropped++
		}
		n = next
	}
	return dropped
}

func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byKey)
}
