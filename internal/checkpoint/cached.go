package checkpoint

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

var _ Store = (*Cached)(nil)

// Cached is a write-through LRU in front of another store. It is meant for
// single-instance deployments where this process is the only writer; with
// several writers a cached entry can go stale.
type Cached struct {
	inner Store
	cache *lru.Cache
}

// NewCached wraps inner with an LRU of the given size.
func NewCached(inner Store, size int) (*Cached, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: cache: %w", err)
	}
	return &Cached{inner: inner, cache: c}, nil
}

// Get implements [Store.Get]. Absent keys are not cached.
func (c *Cached) Get(ctx context.Context, key Key) (State, bool, error) {
	if v, ok := c.cache.Get(key.String()); ok {
		return v.(State).Clone(), true, nil
	}
	st, ok, err := c.inner.Get(ctx, key)
	if err != nil || !ok {
		return st, ok, err
	}
	c.cache.Add(key.String(), st.Clone())
	return st, true, nil
}

// Put implements [Store.Put]. A failed write evicts the key so the next
// read goes to the backend.
func (c *Cached) Put(ctx context.Context, key Key, state State) error {
	if err := c.inner.Put(ctx, key, state); err != nil {
		c.cache.Remove(key.String())
		return err
	}
	st := state.Clone()
	st.Key = key
	c.cache.Add(key.String(), st)
	return nil
}

// Ping implements [Store.Ping].
func (c *Cached) Ping(ctx context.Context) error { return c.inner.Ping(ctx) }

// Close implements [Store.Close].
func (c *Cached) Close() error {
	c.cache.Purge()
	return c.inner.Close()
}

// Name implements [Store.Name].
func (c *Cached) Name() string { return c.inner.Name() }

// Len returns the number of cached entries.
func (c *Cached) Len() int { return c.cache.Len() }
