package repository

import (
	"context"
	"time"
)

// DedupStore remembers which update ids have been seen.
//
// Observe is an atomic check-and-set: for a given id it returns true exactly
// once within the retention window, however many callers race on it. The
// first observation is an in-flight claim that lapses after a short lease;
// Confirm extends it to the full retention window and Release drops it so a
// redelivery is processed again.
type DedupStore interface {
	Observe(ctx context.Context, updateID int64, at time.Time) (bool, error)
	Confirm(ctx context.Context, updateID int64, at time.Time) error
	Release(ctx context.Context, updateID int64) error
	// Sweep removes expired entries and returns how many were removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
}
