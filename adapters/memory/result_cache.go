// Package memory holds in-process adapters used when no external store is
// configured.
package memory

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"pivotdesk/domain/core"
	"pivotdesk/domain/pivot"
)

// ResultCache is a bounded TTL LRU implementing ports.ResultCache
type ResultCache struct {
	lru *expirable.LRU[core.SignatureHash, *pivot.ComputeResponse]
}

// NewResultCache creates an in-process cache holding at most size responses.
// Entries expire after ttl; a non-positive ttl never expires.
func NewResultCache(size int, ttl time.Duration) *ResultCache {
	return &ResultCache{
		lru: expirable.NewLRU[core.SignatureHash, *pivot.ComputeResponse](size, nil, ttl),
	}
}

func (c *ResultCache) Get(ctx context.Context, key core.SignatureHash) (*pivot.ComputeResponse, bool, error) {
	resp, ok := c.lru.Get(key)
	return resp, ok, nil
}

func (c *ResultCache) Put(ctx context.Context, key core.SignatureHash, resp *pivot.ComputeResponse) error {
	if resp == nil {
		return nil
	}
	c.lru.Add(key, resp)
	return nil
}

func (c *ResultCache) Invalidate(ctx context.Context, key core.SignatureHash) error {
	c.lru.Remove(key)
	return nil
}

// Ping always succeeds for the in-process cache
func (c *ResultCache) Ping(ctx context.Context) error {
	return nil
}

// Len reports the number of live entries
func (c *ResultCache) Len() int {
	return c.lru.Len()
}
