package cache

import (
	"hash/fnv"
	"sync"
)

const shardCount = 32

// shardedMap is a concurrent string-keyed map split into a fixed
// number of independently-locked shards, used for every one of the
// write-back cache's maps (content, pending changes, metadata, mode,
// directory listings, negative cache). A single global mutex would be
// simpler but serializes unrelated paths; per-entry locking via
// per-shard mutexes is the concurrency model this cache is built
// around. Callers must never hold a shard lock while acquiring a lock
// on another shard of the same map (e.g. during Snapshot) to avoid
// deadlocking against a concurrent background scan.
type shardedMap[V any] struct {
	shards [shardCount]*shard[V]
}

type shard[V any] struct {
	mu sync.Mutex
	m  map[string]V
}

func newShardedMap[V any]() *shardedMap[V] {
	sm := &shardedMap[V]{}
	for i := range sm.shards {
		sm.shards[i] = &shard[V]{m: make(map[string]V)}
	}
	return sm
}

func (sm *shardedMap[V]) shardFor(key string) *shard[V] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return sm.shards[h.Sum32()%shardCount]
}

func (sm *shardedMap[V]) Get(key string) (V, bool) {
	s := sm.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok
}

func (sm *shardedMap[V]) Set(key string, v V) {
	s := sm.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = v
}

// Delete removes key and reports whether it was present.
func (sm *shardedMap[V]) Delete(key string) bool {
	s := sm.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[key]; !ok {
		return false
	}
	delete(s.m, key)
	return true
}

// GetAndDelete atomically fetches and removes an entry, for call sites
// that need the old value while clearing it (e.g. moving an entry to
// its new key on rename).
func (sm *shardedMap[V]) GetAndDelete(key string) (V, bool) {
	s := sm.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	if ok {
		delete(s.m, key)
	}
	return v, ok
}

func (sm *shardedMap[V]) Len() int {
	n := 0
	for _, s := range sm.shards {
		s.mu.Lock()
		n += len(s.m)
		s.mu.Unlock()
	}
	return n
}

// Snapshot copies the full map out, shard by shard, never holding more
// than one shard's lock at a time. The returned map is safe to range
// over without risk of deadlocking a concurrent Get/Set on any shard.
func (sm *shardedMap[V]) Snapshot() map[string]V {
	out := make(map[string]V)
	for _, s := range sm.shards {
		s.mu.Lock()
		for k, v := range s.m {
			out[k] = v
		}
		s.mu.Unlock()
	}
	return out
}

// CompareAndDelete removes key only if its current value equals
// expected under eq, returning whether it removed anything. It is the
// reconciler's guard against erasing a pending change that arrived
// after the snapshot a pass is applying was taken.
func (sm *shardedMap[V]) CompareAndDelete(key string, expected V, eq func(a, b V) bool) bool {
	s := sm.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.m[key]
	if !ok || !eq(cur, expected) {
		return false
	}
	delete(s.m, key)
	return true
}

// Clear empties every shard.
func (sm *shardedMap[V]) Clear() {
	for _, s := range sm.shards {
		s.mu.Lock()
		s.m = make(map[string]V)
		s.mu.Unlock()
	}
}
