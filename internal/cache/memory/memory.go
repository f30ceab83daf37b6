// Package memory is an in-process page cache backed by an LRU.
package memory

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type entry struct {
	value   []byte
	expires time.Time
}

type Cache struct {
	lru *lru.Cache[string, entry]
	now func() time.Time
}

// New returns a cache holding at most size entries.
func New(size int) (*Cache, error) {
	if size <= 0 {
		size = 1024
	}
	l, err := lru.New[string, entry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru: %w", err)
	}
	return &Cache{lru: l, now: time.Now}, nil
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := c.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		c.lru.Remove(key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.lru.Add(key, e)
	return nil
}

func (c *Cache) Clear(context.Context) error {
	c.lru.Purge()
	return nil
}

func (c *Cache) Close() error {
	c.lru.Purge()
	return nil
}
