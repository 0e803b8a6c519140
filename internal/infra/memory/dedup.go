package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"tg-bot-italian/internal/domain/ports/repository"
	"tg-bot-italian/internal/infra/metrics"
)

const dedupShards = 32

type dedupEntry struct {
	id      int64
	expires time.Time
}

type dedupShard struct {
	mu    sync.Mutex
	index map[int64]*list.Element
	order *list.List // oldest first
}

// DedupStore keeps seen update ids in process memory, sharded by id. Entries
// expire after the retention window; when a shard exceeds its share of
// maxEntries the oldest entries are evicted first.
type DedupStore struct {
	shards    [dedupShards]dedupShard
	retention time.Duration
	lease     time.Duration
	perShard  int
}

var _ repository.DedupStore = (*DedupStore)(nil)

func NewDedupStore(retention, lease time.Duration, maxEntries int) *DedupStore {
	if lease <= 0 || lease > retention {
		lease = retention
	}
	per := maxEntries / dedupShards
	if per < 1 {
		per = 1
	}
	s := &DedupStore{retention: retention, lease: lease, perShard: per}
	for i := range s.shards {
		s.shards[i].index = make(map[int64]*list.Element)
		s.shards[i].order = list.New()
	}
	return s
}

func (s *DedupStore) shard(id int64) *dedupShard {
	k := uint64(id)
	return &s.shards[k%dedupShards]
}

func (s *DedupStore) Observe(_ context.Context, updateID int64, at time.Time) (bool, error) {
	sh := s.shard(updateID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if el, ok := sh.index[updateID]; ok {
		e := el.Value.(*dedupEntry)
		if at.Before(e.expires) {
			return false, nil
		}
		sh.order.Remove(el)
		delete(sh.index, updateID)
	}

	sh.index[updateID] = sh.order.PushBack(&dedupEntry{id: updateID, expires: at.Add(s.lease)})

	evicted := 0
	for sh.order.Len() > s.perShard {
		front := sh.order.Front()
		sh.order.Remove(front)
		delete(sh.index, front.Value.(*dedupEntry).id)
		evicted++
	}
	if evicted > 0 {
		metrics.IncDedupEvicted("memory", evicted)
	}
	return true, nil
}

func (s *DedupStore) Confirm(_ context.Context, updateID int64, at time.Time) error {
	sh := s.shard(updateID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if el, ok := sh.index[updateID]; ok {
		el.Value.(*dedupEntry).expires = at.Add(s.retention)
		return nil
	}
	// evicted or swept while processing; remember it again
	sh.index[updateID] = sh.order.PushBack(&dedupEntry{id: updateID, expires: at.Add(s.retention)})
	return nil
}

func (s *DedupStore) Release(_ context.Context, updateID int64) error {
	sh := s.shard(updateID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if el, ok := sh.index[updateID]; ok {
		sh.order.Remove(el)
		delete(sh.index, updateID)
	}
	return nil
}

func (s *DedupStore) Sweep(_ context.Context, now time.Time) (int, error) {
	removed, total := 0, 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for el := sh.order.Front(); el != nil; {
			next := el.Next()
			e := el.Value.(*dedupEntry)
			if !now.Before(e.expires) {
				sh.order.Remove(el)
				delete(sh.index, e.id)
				removed++
			}
			el = next
		}
		total += sh.order.Len()
		sh.mu.Unlock()
	}
	metrics.SetDedupEntries("memory", total)
	return removed, nil
}

// Len reports the number of remembered ids, expired or not.
func (s *DedupStore) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += sh.order.Len()
		sh.mu.Unlock()
	}
	return n
}
