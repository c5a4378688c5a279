package schema

import (
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/maxpert/commitlog-cdc/row"
)

// DefaultCacheSize is used when the configured size is not positive
const DefaultCacheSize = 1024

// Cached keeps recently used table metadata in an LRU in front of a slower
// provider. Unknown tables are not cached. Returned slices are shared and
// must not be modified.
type Cached struct {
	next  Provider
	cache *lru.Cache[TableID, []row.Column]
}

func NewCached(next Provider, size int) (*Cached, error) {
	if next == nil {
		return nil, errors.New("provider is required")
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[TableID, []row.Column](size)
	if err != nil {
		return nil, err
	}
	return &Cached{next: next, cache: cache}, nil
}

func (c *Cached) ColumnsOf(id TableID) ([]row.Column, error) {
	if cols, ok := c.cache.Get(id); ok {
		return cols, nil
	}

	cols, err := c.next.ColumnsOf(id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(id, cols)
	return cols, nil
}

// Invalidate drops a table after its schema changed
func (c *Cached) Invalidate(id TableID) {
	c.cache.Remove(id)
}

// Purge drops every cached table
func (c *Cached) Purge() {
	c.cache.Purge()
}

// Len returns the number of cached tables
func (c *Cached) Len() int {
	return c.cache.Len()
}
