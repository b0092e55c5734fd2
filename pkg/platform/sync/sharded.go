package sync

import (
	"context"
	"hash/fnv"
)

// ShardedLock serializes work per key without a lock per key. Keys hash onto
// a fixed set of shards, so unrelated keys occasionally share one.
type ShardedLock struct {
	shards [32]chan struct{}
}

func NewShardedLock() *ShardedLock {
	l := &ShardedLock{}
	for i := range l.shards {
		l.shards[i] = make(chan struct{}, 1)
	}
	return l
}

// Lock blocks until the key's shard is free or ctx is done. The returned
// function releases the shard and must be called exactly once.
func (l *ShardedLock) Lock(ctx context.Context, key string) (func(), error) {
	shard := l.shards[l.shardFor(key)]
	select {
	case shard <- struct{}{}:
		return func() { <-shard }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryLock acquires the key's shard only if it is free.
func (l *ShardedLock) TryLock(key string) (func(), bool) {
	shard := l.shards[l.shardFor(key)]
	select {
	case shard <- struct{}{}:
		return func() { <-shard }, true
	default:
		return nil, false
	}
}

func (l *ShardedLock) shardFor(key string) int {
	if key == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(l.shards)))
}
