package service

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultEventCacheSize = 4096

// eventCache remembers recently handled webhook event ids in process, in
// front of the shared Redis record
type eventCache struct {
	cache *lru.Cache[string, struct{}]
}

func newEventCache(size int) *eventCache {
	if size <= 0 {
		size = defaultEventCacheSize
	}
	cache, err := lru.New[string, struct{}](size)
	if err != nil {
		// only possible for a non-positive size
		panic(err)
	}
	return &eventCache{cache: cache}
}

func (c *eventCache) Seen(id string) bool {
	return c.cache.Contains(id)
}

func (c *eventCache) Add(id string) {
	c.cache.Add(id, struct{}{})
}
