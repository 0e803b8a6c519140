// Package pebblestore keeps sessions and dedupe entries in an embedded
// Pebble database for single-instance deployments that must survive restarts.
package pebblestore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble"

	"tg-bot-italian/internal/domain"
	"tg-bot-italian/internal/infra/metrics"
)

const backend = "pebble"

const (
	sessionPrefix = "session:"
	dedupPrefix   = "dedup:"
	dedupUpper    = "dedup;" // ';' sorts right after ':'
)

// DB owns the Pebble handle shared by the session and dedupe stores.
type DB struct {
	db *pebble.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("pebble: create dir: %w", err)
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("%w: pebble open %s: %v", domain.ErrBackingStoreUnavailable, path, err)
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func sessionKey(chatID int64) []byte {
	return []byte(fmt.Sprintf("%s%d", sessionPrefix, chatID))
}

func dedupKey(updateID int64) []byte {
	return []byte(fmt.Sprintf("%s%d", dedupPrefix, updateID))
}

// get copies the value out; Pebble's slice is only valid until the closer runs.
func (d *DB) get(key []byte) ([]byte, bool, error) {
	v, closer, err := d.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func unavailable(op string, err error) error {
	metrics.IncStoreError(backend, op)
	return fmt.Errorf("%w: pebble %s: %v", domain.ErrBackingStoreUnavailable, op, err)
}
