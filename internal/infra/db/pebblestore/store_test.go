//go:build !integration

package pebblestore

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tg-bot-italian/internal/domain"
	"tg-bot-italian/internal/domain/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "bot.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSessionStore_PersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "bot.db")
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	store := NewSessionStore(db)
	err = store.WithSession(context.Background(), 11, func(ctx context.Context, s *model.Session) error {
		s.Stage = model.StageAwaitingInput
		s.Generation = 2
		s.Set("qid", "q-7")
		return nil
	})
	if err != nil {
		t.Fatalf("WithSession: %v", err)
	}
	db.Close()

	db, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	got, err := NewSessionStore(db).Load(context.Background(), 11)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Stage != model.StageAwaitingInput || got.Generation != 2 || got.Get("qid") != "q-7" {
		t.Fatalf("unexpected session %+v", got)
	}
}

func TestSessionStore_RollbackOnError(t *testing.T) {
	store := NewSessionStore(openTestDB(t))
	ctx := context.Background()

	err := store.WithSession(ctx, 3, func(ctx context.Context, s *model.Session) error {
		s.Stage = model.StageCompleted
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if _, err := store.Load(ctx, 3); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("default session must not be persisted, got %v", err)
	}

	err = store.WithSession(ctx, 3, func(ctx context.Context, s *model.Session) error { panic("bug") })
	if !errors.Is(err, domain.ErrHandlerFailed) {
		t.Fatalf("expected ErrHandlerFailed, got %v", err)
	}
}

func TestSessionStore_Serialises(t *testing.T) {
	store := NewSessionStore(openTestDB(t))
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.WithSession(context.Background(), 1, func(ctx context.Context, s *model.Session) error {
				s.Generation++
				return nil
			})
		}()
	}
	wg.Wait()
	got, _ := store.Load(context.Background(), 1)
	if got.Generation != 25 {
		t.Fatalf("expected 25, got %d", got.Generation)
	}
}

func TestDedupStore_Lifecycle(t *testing.T) {
	d := NewDedupStore(openTestDB(t), time.Hour, time.Minute)
	ctx := context.Background()
	now := time.Now()

	if ok, err := d.Observe(ctx, 1, now); err != nil || !ok {
		t.Fatalf("first observe: %v %v", ok, err)
	}
	if ok, _ := d.Observe(ctx, 1, now); ok {
		t.Fatal("expected duplicate")
	}
	if ok, _ := d.Observe(ctx, 1, now.Add(2*time.Minute)); !ok {
		t.Fatal("lapsed lease must be reclaimable")
	}
	d.Confirm(ctx, 1, now)
	d.Release(ctx, 1)
	if ok, _ := d.Observe(ctx, 1, now.Add(30*time.Minute)); ok {
		t.Fatal("confirmed entry must survive release")
	}

	d.Observe(ctx, 2, now)
	d.Release(ctx, 2)
	if ok, _ := d.Observe(ctx, 2, now); !ok {
		t.Fatal("released entry must be claimable")
	}

	n, err := d.Sweep(ctx, now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 swept, got %d", n)
	}
	if ok, _ := d.Observe(ctx, 1, now.Add(2*time.Hour)); !ok {
		t.Fatal("swept id must be new again")
	}
}
