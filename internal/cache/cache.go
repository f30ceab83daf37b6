// Package cache defines the page cache used for rendered listings.
package cache

import (
	"context"
	"strconv"
	"time"
)

// Cache stores rendered pages by key. Implementations are safe for
// concurrent use.
type Cache interface {
	// Get reports whether key holds an unexpired value.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Clear drops every entry this cache owns.
	Clear(ctx context.Context) error
	Close() error
}

// Anonymous is the viewer part of a key for signed-out requests.
const Anonymous = "anonymous"

// PageKey builds "<prefix>:<viewer>:page=<n>".
func PageKey(prefix, viewer string, page int) string {
	if viewer == "" {
		viewer = Anonymous
	}
	return prefix + ":" + viewer + ":page=" + strconv.Itoa(page)
}
