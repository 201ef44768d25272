package valueindex

import (
	"bytes"
	"container/list"
	"sync"

	"github.com/spaolacci/murmur3"
)

// lookupCache is an LRU of key -> (count, postings offset). Entries are
// addressed by the murmur3 hash of the key and carry a copy of the key, so
// colliding keys never answer for each other.
type lookupCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[uint64]*list.Element
	lru      *list.List

	hits   int64
	misses int64
}

type lookupEntry struct {
	hash  uint64
	key   []byte
	count int
	off   int64
}

// newLookupCache returns nil for a negative capacity; a nil cache misses on
// every call. Zero capacity is unbounded.
func newLookupCache(capacity int) *lookupCache {
	if capacity < 0 {
		return nil
	}
	return &lookupCache{
		capacity: capacity,
		entries:  make(map[uint64]*list.Element),
		lru:      list.New(),
	}
}

func (c *lookupCache) get(key []byte) (count int, off int64, ok bool) {
	if c == nil {
		return 0, 0, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, found := c.entries[murmur3.Sum64(key)]; found {
		e := elem.Value.(*lookupEntry)
		if bytes.Equal(e.key, key) {
			c.lru.MoveToFront(elem)
			c.hits++
			return e.count, e.off, true
		}
	}
	c.misses++
	return 0, 0, false
}

func (c *lookupCache) put(key []byte, count int, off int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	h := murmur3.Sum64(key)
	if elem, found := c.entries[h]; found {
		e := elem.Value.(*lookupEntry)
		e.key = append(e.key[:0], key...)
		e.count, e.off = count, off
		c.lru.MoveToFront(elem)
		return
	}
	e := &lookupEntry{hash: h, key: append([]byte(nil), key...), count: count, off: off}
	c.entries[h] = c.lru.PushFront(e)
	if c.capacity > 0 && c.lru.Len() > c.capacity {
		c.evict()
	}
}

func (c *lookupCache) evict() {
	if elem := c.lru.Back(); elem != nil {
		c.lru.Remove(elem)
		delete(c.entries, elem.Value.(*lookupEntry).hash)
	}
}

func (c *lookupCache) remove(key []byte) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	h := murmur3.Sum64(key)
	if elem, found := c.entries[h]; found && bytes.Equal(elem.Value.(*lookupEntry).key, key) {
		c.lru.Remove(elem)
		delete(c.entries, h)
	}
}

func (c *lookupCache) clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64]*list.Element)
	c.lru.Init()
}

func (c *lookupCache) stats() (size int, hits, misses int64) {
	if c == nil {
		return 0, 0, 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len(), c.hits, c.misses
}

// slotKeys remembers the key of each reference slot once it is known. It
// shifts in lock-step with the key-reference array, and is the only source
// of the key for a slot whose posting block is empty.
type slotKeys struct {
	keys [][]byte
}

func newSlotKeys(n int) *slotKeys {
	return &slotKeys{keys: make([][]byte, n)}
}

func (s *slotKeys) get(slot int) []byte {
	if s == nil {
		return nil
	}
	return s.keys[slot]
}

func (s *slotKeys) set(slot int, key []byte) {
	if s == nil {
		return
	}
	s.keys[slot] = cloneKey(key)
}

// insert mirrors keyRefs.insert.
func (s *slotKeys) insert(points []int, keys [][]byte) {
	if s == nil || len(points) == 0 {
		return
	}
	n := len(s.keys)
	out := make([][]byte, n+len(points))
	copy(out, s.keys[:points[0]])
	w := len(out) - 1
	r := n - 1
	for j := len(points) - 1; j >= 0; j-- {
		for ; r >= points[j]; r-- {
			out[w] = s.keys[r]
			w--
		}
		out[w] = cloneKey(keys[j])
		w--
	}
	s.keys = out
}

// remove mirrors keyRefs.remove.
func (s *slotKeys) remove(slots []int) {
	if s == nil || len(slots) == 0 {
		return
	}
	out := s.keys[:slots[0]]
	j := 0
	for r := slots[0]; r < len(s.keys); r++ {
		if j < len(slots) && slots[j] == r {
			j++
			continue
		}
		out = append(out, s.keys[r])
	}
	clear(s.keys[len(out):])
	s.keys = out
}

// cloneKey copies k into a non-nil slice, so an empty key stays
// distinguishable from an unknown one.
func cloneKey(k []byte) []byte {
	c := make([]byte, len(k))
	copy(c, k)
	return c
}
