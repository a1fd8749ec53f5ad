package engine

import (
	"hash/fnv"
	"sync"
)

// lockShardCount is the number of mutex shards. Two documents may share a
// shard and serialize needlessly; that costs latency, never correctness.
const lockShardCount = 64

// docLocks serializes decide-and-merge operations per target document with a
// sharded mutex keyed by document id. The lock is held from decision
// re-validation through the store commit, so two near-simultaneous writes
// cannot both read version N and clobber each other.
type docLocks struct {
	shards [lockShardCount]sync.Mutex
}

// lock acquires the shard for id and returns its unlock func for scoped
// release on all exit paths
func (l *docLocks) lock(id string) func() {
	shard := &l.shards[shardFor(id)]
	shard.Lock()
	return shard.Unlock
}

// shardFor hashes a document id to a shard index
func shardFor(id string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(id))
	return h.Sum32() % lockShardCount
}
