package cache

import (
	"container/list"
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/unplab/unp_core/internal/pkg/simulator"
)

const shardCount = 16

// MemStore is the in-process store: TTL expiry plus least-recently-used
// eviction. Entries are sharded by fingerprint so unrelated scenarios never
// contend on one lock.
type MemStore struct {
	shards [shardCount]*memShard
}

type memShard struct {
	mux     sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // front = most recently used
	max     int
}

type entry struct {
	key        string
	res        simulator.Result
	created    time.Time
	lastAccess time.Time
	expires    time.Time
}

// NewMemStore returns a store holding at most maxEntries results.
func NewMemStore(maxEntries int) *MemStore {
	perShard := maxEntries / shardCount
	if perShard < 1 {
		perShard = 1
	}
	s := &MemStore{}
	for i := range s.shards {
		s.shards[i] = &memShard{
			entries: make(map[string]*list.Element),
			lru:     list.New(),
			max:     perShard,
		}
	}
	return s
}

func (s *MemStore) shard(key string) *memShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}

// Get returns the live entry for key, refreshing its recency. Never errors.
func (s *MemStore) Get(_ context.Context, key string) (simulator.Result, bool, error) {
	sh := s.shard(key)
	sh.mux.Lock()
	defer sh.mux.Unlock()

	el, ok := sh.entries[key]
	if !ok {
		return simulator.Result{}, false, nil
	}
	e := el.Value.(*entry)
	if time.Now().After(e.expires) {
		sh.lru.Remove(el)
		delete(sh.entries, key)
		return simulator.Result{}, false, nil
	}
	e.lastAccess = time.Now()
	sh.lru.MoveToFront(el)
	return e.res, true, nil
}

// Set inserts or replaces the entry for key, evicting the least recently
// used entry when the shard is full. Never errors.
func (s *MemStore) Set(_ context.Context, key string, res simulator.Result, ttl time.Duration) error {
	sh := s.shard(key)
	sh.mux.Lock()
	defer sh.mux.Unlock()

	now := time.Now()
	if el, ok := sh.entries[key]; ok {
		e := el.Value.(*entry)
		e.res = res
		e.created = now
		e.lastAccess = now
		e.expires = now.Add(ttl)
		sh.lru.MoveToFront(el)
		return nil
	}

	el := sh.lru.PushFront(&entry{
		key:        key,
		res:        res,
		created:    now,
		lastAccess: now,
		expires:    now.Add(ttl),
	})
	sh.entries[key] = el

	for sh.lru.Len() > sh.max {
		oldest := sh.lru.Back()
		if oldest == nil {
			break
		}
		sh.lru.Remove(oldest)
		delete(sh.entries, oldest.Value.(*entry).key)
	}
	return nil
}
