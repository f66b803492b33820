// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"math"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// DefaultCacheBytes is the cache budget used when Options.CacheBytes
// is zero.
const DefaultCacheBytes = 32 << 20

// byteCache is an LRU of encoded entries bounded by total byte size
// rather than entry count.
type byteCache struct {
	entries  *simplelru.LRU[string, []byte]
	capacity int64
	size     int64
}

// newByteCache returns a cache holding at most capacity bytes. A
// negative capacity disables caching.
func newByteCache(capacity int64) *byteCache {
	cache := &byteCache{capacity: capacity}
	if capacity <= 0 {
		return cache
	}
	// The entry count limit is never the binding constraint; eviction
	// is driven by size in add.
	entries, err := simplelru.NewLRU[string, []byte](math.MaxInt32, func(_ string, value []byte) {
		cache.size -= int64(len(value))
	})
	if err != nil {
		panic("ledger: creating LRU cache: " + err.Error())
	}
	cache.entries = entries
	return cache
}

func (c *byteCache) get(key string) ([]byte, bool) {
	if c.entries == nil {
		return nil, false
	}
	return c.entries.Get(key)
}

// add stores value under key, evicting least recently used entries
// until the cache fits its budget. Values larger than the whole budget
// are not stored.
func (c *byteCache) add(key string, value []byte) {
	if c.entries == nil {
		return
	}
	c.entries.Remove(key)
	if int64(len(value)) > c.capacity {
		return
	}
	c.entries.Add(key, value)
	c.size += int64(len(value))
	for c.size > c.capacity {
		if _, _, ok := c.entries.RemoveOldest(); !ok {
			break
		}
	}
}

func (c *byteCache) remove(key string) {
	if c.entries != nil {
		c.entries.Remove(key)
	}
}

func (c *byteCache) purge() {
	if c.entries != nil {
		c.entries.Purge()
	}
	c.size = 0
}
