package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/unplab/unp_core/internal/pkg/simulator"
)

func okResult(name string) simulator.Result {
	return simulator.Result{Success: true, Scenario: name, Fingerprint: name}
}

func TestGetOrComputeMemoizes(t *testing.T) {
	c := New(NewMemStore(64), time.Minute)
	var calls int32
	compute := func(ctx context.Context) (simulator.Result, error) {
		atomic.AddInt32(&calls, 1)
		return okResult("s1"), nil
	}

	res, hit, err := c.GetOrCompute(context.Background(), "fp1", 0, compute)
	assert.NilError(t, err)
	assert.Assert(t, !hit)
	assert.Equal(t, res.Scenario, "s1")

	res, hit, err = c.GetOrCompute(context.Background(), "fp1", 0, compute)
	assert.NilError(t, err)
	assert.Assert(t, hit)
	assert.Equal(t, res.Scenario, "s1")
	assert.Equal(t, atomic.LoadInt32(&calls), int32(1))
}

func TestGetOrComputeSuppressesConcurrentDuplicates(t *testing.T) {
	c := New(NewMemStore(64), time.Minute)
	var calls int32
	compute := func(ctx context.Context) (simulator.Result, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(100 * time.Millisecond)
		return okResult("s1"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, _, err := c.GetOrCompute(context.Background(), "fp1", 0, compute)
			if err != nil || res.Scenario != "s1" {
				t.Errorf("concurrent GetOrCompute FAILED: res=%v err=%v", res, err)
			}
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected a single computation, got %d", n)
	}
}

func TestGetOrComputeFailuresNotCached(t *testing.T) {
	c := New(NewMemStore(64), time.Minute)
	var calls int32
	compute := func(ctx context.Context) (simulator.Result, error) {
		atomic.AddInt32(&calls, 1)
		return simulator.Result{Success: false, Scenario: "s1", Error: "convergence: diverged"}, nil
	}

	_, hit, err := c.GetOrCompute(context.Background(), "fp1", 0, compute)
	assert.NilError(t, err)
	assert.Assert(t, !hit)

	_, hit, err = c.GetOrCompute(context.Background(), "fp1", 0, compute)
	assert.NilError(t, err)
	assert.Assert(t, !hit, "failed results must not be served from cache")
	assert.Equal(t, atomic.LoadInt32(&calls), int32(2))
}

func TestGetOrComputeTTLExpiry(t *testing.T) {
	c := New(NewMemStore(64), time.Minute)
	var calls int32
	compute := func(ctx context.Context) (simulator.Result, error) {
		atomic.AddInt32(&calls, 1)
		return okResult("s1"), nil
	}

	_, _, err := c.GetOrCompute(context.Background(), "fp1", 30*time.Millisecond, compute)
	assert.NilError(t, err)
	time.Sleep(60 * time.Millisecond)

	_, hit, err := c.GetOrCompute(context.Background(), "fp1", 30*time.Millisecond, compute)
	assert.NilError(t, err)
	assert.Assert(t, !hit)
	assert.Equal(t, atomic.LoadInt32(&calls), int32(2))
}

// brokenStore fails every operation; the cache must degrade to compute-only.
type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (simulator.Result, bool, error) {
	return simulator.Result{}, false, errors.New("store down")
}
func (brokenStore) Set(context.Context, string, simulator.Result, time.Duration) error {
	return errors.New("store down")
}

func TestBrokenStoreDegradesToCompute(t *testing.T) {
	c := New(brokenStore{}, time.Minute)
	var calls int32
	compute := func(ctx context.Context) (simulator.Result, error) {
		atomic.AddInt32(&calls, 1)
		return okResult("s1"), nil
	}

	for i := 0; i < 3; i++ {
		res, hit, err := c.GetOrCompute(context.Background(), "fp1", 0, compute)
		assert.NilError(t, err)
		assert.Assert(t, !hit)
		assert.Equal(t, res.Scenario, "s1")
	}
	assert.Equal(t, atomic.LoadInt32(&calls), int32(3))
}

func TestLookupMissAndHit(t *testing.T) {
	c := New(NewMemStore(64), time.Minute)

	_, ok := c.Lookup(context.Background(), "fp1")
	assert.Assert(t, !ok)

	assert.NilError(t, c.store.Set(context.Background(), "fp1", okResult("s1"), time.Minute))
	res, ok := c.Lookup(context.Background(), "fp1")
	assert.Assert(t, ok)
	assert.Equal(t, res.Scenario, "s1")
}

func TestMemStoreLRUEviction(t *testing.T) {
	s := NewMemStore(16) // one entry per shard
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("fp%03d", i)
		assert.NilError(t, s.Set(ctx, key, okResult(key), time.Minute))
	}

	live := 0
	for i := 0; i < 100; i++ {
		if _, ok, _ := s.Get(ctx, fmt.Sprintf("fp%03d", i)); ok {
			live++
		}
	}
	assert.Assert(t, live <= 16, "eviction FAILED: %d live entries", live)

	// the most recent write always survives within its shard
	_, ok, _ := s.Get(ctx, "fp099")
	assert.Assert(t, ok)
}

func TestMemStoreReplaceRefreshes(t *testing.T) {
	s := NewMemStore(64)
	ctx := context.Background()

	assert.NilError(t, s.Set(ctx, "fp1", okResult("old"), 30*time.Millisecond))
	assert.NilError(t, s.Set(ctx, "fp1", okResult("new"), time.Minute))
	time.Sleep(50 * time.Millisecond)

	res, ok, err := s.Get(ctx, "fp1")
	assert.NilError(t, err)
	assert.Assert(t, ok, "replacement must refresh the TTL")
	assert.Equal(t, res.Scenario, "new")
}
