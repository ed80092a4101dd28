package enrol

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the default capacity of the enrollment cache.
const DefaultCacheSize = 5000

// Cache remembers client identities with a recently initiated enrollment.
// It is bounded and evicts the least recently used identity. An evicted
// identity may be marked again; the existing certificate check is the
// actual guard against repeat enrollment.
type Cache struct {
	c *lru.Cache[string, struct{}]
}

// NewCache creates a new enrollment cache holding up to size identities.
// A size less than 1 uses DefaultCacheSize.
func NewCache(size int) *Cache {
	if size < 1 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, struct{}](size)
	if err != nil {
		// only returned for non-positive sizes
		panic(err)
	}
	return &Cache{c: c}
}

// TryMarkEnrolling marks id and returns true if it was not already marked.
// It is atomic: of concurrent callers for the same id at most one sees true.
func (c *Cache) TryMarkEnrolling(id string) bool {
	found, _ := c.c.ContainsOrAdd(id, struct{}{})
	return !found
}

// Len returns the number of marked identities.
func (c *Cache) Len() int {
	return c.c.Len()
}
