package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unplab/unp_core/internal/pkg/simulator"
)

const redisKeyPrefix = "unp:result:"

// RedisStore keeps cache entries in Redis, surviving orchestrator restarts
// within the store's own lifetime. Errors propagate to the Cache, which
// degrades to always-compute.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore returns a store on the given Redis instance.
func NewRedisStore(addr string, db int) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr, DB: db}),
	}
}

// Get fetches and decodes the entry for key.
func (s *RedisStore) Get(ctx context.Context, key string) (simulator.Result, bool, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return simulator.Result{}, false, nil
	}
	if err != nil {
		return simulator.Result{}, false, err
	}
	var res simulator.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return simulator.Result{}, false, err
	}
	return res, true, nil
}

// Set encodes and stores the entry with the given TTL.
func (s *RedisStore) Set(ctx context.Context, key string, res simulator.Result, ttl time.Duration) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisKeyPrefix+key, raw, ttl).Err()
}
