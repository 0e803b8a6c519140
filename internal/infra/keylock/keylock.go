// Package keylock provides per-key mutual exclusion with FIFO hand-off.
package keylock

import (
	"context"
	"sync"
)

const shardCount = 64

type entry struct {
	ch   chan struct{}
	refs int // holder + waiters
}

type shard struct {
	mu sync.Mutex
	m  map[int64]*entry
}

// Locker serialises work per int64 key. Waiters for the same key are served
// in arrival order; distinct keys never contend beyond a short shard mutex.
// The zero value is not usable; call New.
type Locker struct {
	shards [shardCount]shard
}

func New() *Locker {
	l := &Locker{}
	for i := range l.shards {
		l.shards[i].m = make(map[int64]*entry)
	}
	return l
}

func (l *Locker) shard(key int64) *shard {
	k := uint64(key)
	return &l.shards[(k^(k>>32))%shardCount]
}

// Lock blocks until key is held or ctx is done. The returned func releases
// the key and must be called exactly once.
func (l *Locker) Lock(ctx context.Context, key int64) (func(), error) {
	sh := l.shard(key)
	sh.mu.Lock()
	e, ok := sh.m[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		sh.m[key] = e
	}
	e.refs++
	sh.mu.Unlock()

	// Blocked channel senders are queued in FIFO order by the runtime.
	select {
	case e.ch <- struct{}{}:
	default:
		select {
		case e.ch <- struct{}{}:
		case <-ctx.Done():
			l.drop(sh, key, e)
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.drop(sh, key, e)
		})
	}, nil
}

func (l *Locker) drop(sh *shard, key int64, e *entry) {
	sh.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(sh.m, key)
	}
	sh.mu.Unlock()
}

// pending reports holder+waiters for key.
func (l *Locker) pending(key int64) int {
	sh := l.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if e, ok := sh.m[key]; ok {
		return e.refs
	}
	return 0
}
