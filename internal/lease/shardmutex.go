package lease

import (
	"hash/fnv"
	"sync"
)

// shardedMutex generalizes the teacher's single recMutex
// (coredhcp/plugins/range/plugin.go) into a table of N mutexes keyed by a
// byte-string hash, so concurrent packets from different clients never
// block each other while packets from the same client (mac, or
// (duid,iaid) for v6) are still strictly serialized.
type shardedMutex struct {
	shards []sync.Mutex
}

func newShardedMutex(n int) *shardedMutex {
	if n <= 0 {
		n = 1
	}
	return &shardedMutex{shards: make([]sync.Mutex, n)}
}

func (s *shardedMutex) shardFor(key []byte) *sync.Mutex {
	h := fnv.New32a()
	h.Write(key)
	return &s.shards[h.Sum32()%uint32(len(s.shards))]
}

// lock locks the shard for key and returns a function that unlocks it.
func (s *shardedMutex) lock(key []byte) func() {
	m := s.shardFor(key)
	m.Lock()
	return m.Unlock
}
