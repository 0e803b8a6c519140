package pebblestore

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"tg-bot-italian/internal/domain/ports/repository"
	"tg-bot-italian/internal/infra/metrics"
)

var _ repository.DedupStore = (*DedupStore)(nil)

const (
	stateInflight byte = 1
	stateDone     byte = 2
)

// DedupStore values are one state byte followed by the big-endian expiry in
// unix nanoseconds. A mutex makes Observe atomic; Pebble is single-process.
type DedupStore struct {
	db        *DB
	retention time.Duration
	lease     time.Duration
	mu        sync.Mutex
}

func NewDedupStore(db *DB, retention, lease time.Duration) *DedupStore {
	return &DedupStore{db: db, retention: retention, lease: lease}
}

func encodeEntry(state byte, expires time.Time) []byte {
	b := make([]byte, 9)
	b[0] = state
	binary.BigEndian.PutUint64(b[1:], uint64(expires.UnixNano()))
	return b
}

func decodeEntry(b []byte) (byte, time.Time, bool) {
	if len(b) != 9 {
		return 0, time.Time{}, false
	}
	return b[0], time.Unix(0, int64(binary.BigEndian.Uint64(b[1:]))), true
}

func (d *DedupStore) Observe(_ context.Context, updateID int64, at time.Time) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := dedupKey(updateID)
	raw, ok, err := d.db.get(key)
	if err != nil {
		return false, unavailable("dedup_get", err)
	}
	if ok {
		if _, exp, valid := decodeEntry(raw); valid && at.Before(exp) {
			return false, nil
		}
	}
	if err := d.db.db.Set(key, encodeEntry(stateInflight, at.Add(d.lease)), pebble.Sync); err != nil {
		return false, unavailable("dedup_set", err)
	}
	return true, nil
}

func (d *DedupStore) Confirm(_ context.Context, updateID int64, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.db.db.Set(dedupKey(updateID), encodeEntry(stateDone, at.Add(d.retention)), pebble.Sync); err != nil {
		return unavailable("dedup_confirm", err)
	}
	return nil
}

func (d *DedupStore) Release(_ context.Context, updateID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := dedupKey(updateID)
	raw, ok, err := d.db.get(key)
	if err != nil {
		return unavailable("dedup_get", err)
	}
	if !ok {
		return nil
	}
	if state, _, _ := decodeEntry(raw); state == stateDone {
		return nil
	}
	if err := d.db.db.Delete(key, pebble.Sync); err != nil {
		return unavailable("dedup_release", err)
	}
	return nil
}

// Sweep deletes expired entries in one batch.
func (d *DedupStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	iter, err := d.db.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(dedupPrefix),
		UpperBound: []byte(dedupUpper),
	})
	if err != nil {
		return 0, unavailable("dedup_sweep", err)
	}
	defer iter.Close()

	batch := d.db.db.NewBatch()
	defer batch.Close()
	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if _, exp, ok := decodeEntry(iter.Value()); ok && now.Before(exp) {
			continue
		}
		if err := batch.Delete(iter.Key(), nil); err != nil {
			return 0, unavailable("dedup_sweep", err)
		}
		n++
	}
	if n == 0 {
		return 0, nil
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, unavailable("dedup_sweep", err)
	}
	metrics.IncDedupSwept(backend, n)
	return n, nil
}
