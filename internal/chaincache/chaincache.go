// Package chaincache implements the small bounded cache of "progress
// points" inside a bisectable entry-array chain (§4.4, §4.9): remembering
// where a previous bisection landed lets the next one skip re-walking
// segment boundaries from the chain head.
package chaincache

import lru "github.com/hashicorp/golang-lru/v2"

// DefaultSize is used when a caller doesn't have a specific reason to pick
// another bound; one entry per concurrently-hot chain (the global chain plus
// a handful of frequently-queried data values) comfortably fits.
const DefaultSize = 128

// ProgressPoint is what gets published after a bisection completes:
// the segment the result landed in, that segment's starting logical index,
// the chain's total item count at publish time, and the logical index
// found. A later bisection only trusts this if Total still matches the
// chain's current count — any append invalidates it.
type ProgressPoint struct {
	SegmentOffset uint64
	Begin         int
	Total         int
	LastIndex     int
}

// Cache maps an entry-array chain's head offset to its last-known
// ProgressPoint.
type Cache struct {
	lru *lru.Cache[uint64, ProgressPoint]
}

// New creates a Cache bounded to size entries.
func New(size int) (*Cache, error) {
	l, err := lru.New[uint64, ProgressPoint](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l}, nil
}

// Get returns the cached progress point for the chain rooted at first, if
// any.
func (c *Cache) Get(first uint64) (ProgressPoint, bool) {
	if c == nil {
		return ProgressPoint{}, false
	}
	return c.lru.Get(first)
}

// Put publishes a new progress point for the chain rooted at first.
func (c *Cache) Put(first uint64, pp ProgressPoint) {
	if c == nil {
		return
	}
	c.lru.Add(first, pp)
}
