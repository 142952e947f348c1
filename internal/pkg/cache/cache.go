// Package cache memoizes orchestrator outputs keyed by scenario fingerprint.
// Lookups and writes never fail a run: a broken store degrades the cache to
// always-compute with a logged warning.
package cache

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/unplab/unp_core/internal/pkg/simulator"
)

// Store persists cache entries. Implementations must be safe for concurrent
// use.
type Store interface {
	Get(ctx context.Context, key string) (simulator.Result, bool, error)
	Set(ctx context.Context, key string, res simulator.Result, ttl time.Duration) error
}

// Cache combines a store with per-fingerprint in-flight suppression: a second
// request for a fingerprint whose computation is running waits for that
// computation instead of recomputing.
type Cache struct {
	store      Store
	group      singleflight.Group
	defaultTTL time.Duration
}

// New returns a cache over store. defaultTTL applies when a scenario does not
// carry its own TTL.
func New(store Store, defaultTTL time.Duration) *Cache {
	return &Cache{store: store, defaultTTL: defaultTTL}
}

// DefaultTTL returns the configured fallback TTL.
func (c *Cache) DefaultTTL() time.Duration { return c.defaultTTL }

// Lookup consults the store without computing. Store failures read as a miss.
func (c *Cache) Lookup(ctx context.Context, key string) (simulator.Result, bool) {
	res, ok, err := c.store.Get(ctx, key)
	if err != nil {
		log.Printf("[Cache] lookup degraded for %.12s: %v", key, err)
		return simulator.Result{}, false
	}
	return res, ok
}

// GetOrCompute returns the cached result for key or runs compute exactly once
// per key across concurrent callers. The second return reports a cache hit.
// Only successful results are written back, so a repaired engine or backend
// gets a fresh attempt after a failure.
func (c *Cache) GetOrCompute(ctx context.Context, key string, ttl time.Duration,
	compute func(context.Context) (simulator.Result, error)) (simulator.Result, bool, error) {

	if res, ok := c.Lookup(ctx, key); ok {
		return res, true, nil
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	type outcome struct {
		res simulator.Result
		hit bool
	}
	ch := c.group.DoChan(key, func() (interface{}, error) {
		// double-check: another flight may have just written the entry
		if res, ok := c.Lookup(ctx, key); ok {
			return outcome{res: res, hit: true}, nil
		}
		res, err := compute(ctx)
		if err != nil {
			return outcome{}, err
		}
		if res.Success {
			if serr := c.store.Set(ctx, key, res, ttl); serr != nil {
				log.Printf("[Cache] write degraded for %.12s: %v", key, serr)
			}
		}
		return outcome{res: res}, nil
	})

	select {
	case v := <-ch:
		if v.Err != nil {
			return simulator.Result{}, false, v.Err
		}
		o := v.Val.(outcome)
		return o.res, o.hit, nil
	case <-ctx.Done():
		// the owning computation keeps running for other waiters
		return simulator.Result{}, false, ctx.Err()
	}
}
