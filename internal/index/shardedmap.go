package index

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 32

// shardedMap is a string-keyed concurrent map split across shardCount
// RWMutex-guarded shards. Readers never block writers to other shards, so
// queries proceed while an analysis rewrites a single file's entries.
type shardedMap[V any] struct {
	shards [shardCount]mapShard[V]
}

type mapShard[V any] struct {
	mu sync.RWMutex
	m  map[string]V
}

func newShardedMap[V any]() *shardedMap[V] {
	sm := &shardedMap[V]{}
	for i := range sm.shards {
		sm.shards[i].m = make(map[string]V)
	}
	return sm
}

func (sm *shardedMap[V]) shard(key string) *mapShard[V] {
	return &sm.shards[xxhash.Sum64String(key)%shardCount]
}

func (sm *shardedMap[V]) Get(key string) (V, bool) {
	s := sm.shard(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok
}

func (sm *shardedMap[V]) Set(key string, value V) {
	s := sm.shard(key)
	s.mu.Lock()
	s.m[key] = value
	s.mu.Unlock()
}

func (sm *shardedMap[V]) Delete(key string) {
	s := sm.shard(key)
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
}

// Update applies fn to the current value for key under the shard lock.
// When fn reports false the key is removed instead of stored. This is the
// single-key mutation step of the snapshot-then-mutate pattern: no two
// shard locks are ever held at once.
func (sm *shardedMap[V]) Update(key string, fn func(V, bool) (V, bool)) {
	s := sm.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.m[key]
	next, keep := fn(old, ok)
	if keep {
		s.m[key] = next
	} else {
		delete(s.m, key)
	}
}

// Keys snapshots all keys. The snapshot is taken shard by shard; it never
// holds more than one lock, so concurrent writers are not blocked across
// shards.
func (sm *shardedMap[V]) Keys() []string {
	var keys []string
	for i := range sm.shards {
		s := &sm.shards[i]
		s.mu.RLock()
		for k := range s.m {
			keys = append(keys, k)
		}
		s.mu.RUnlock()
	}
	return keys
}

func (sm *shardedMap[V]) Len() int {
	n := 0
	for i := range sm.shards {
		s := &sm.shards[i]
		s.mu.RLock()
		n += len(s.m)
		s.mu.RUnlock()
	}
	return n
}
