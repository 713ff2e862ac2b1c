// Package limit provides the per-run bounded-concurrency primitive used by
// the collector layer. At most N wrapped operations run at once; waiters
// are served in FIFO order. Every audit run owns its own limiter so two
// concurrent runs never compete for the same slots.
package limit

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// MaxConcurrent is the hard cap on limiter width.
const MaxConcurrent = 6

// Limiter bounds the number of concurrently running operations.
type Limiter struct {
	sem    *semaphore.Weighted
	width  int
	active atomic.Int64
	peak   atomic.Int64
}

// New creates a limiter of the given width, clamped to [1, MaxConcurrent].
func New(width int) *Limiter {
	if width < 1 {
		width = 1
	}
	if width > MaxConcurrent {
		width = MaxConcurrent
	}
	return &Limiter{
		sem:   semaphore.NewWeighted(int64(width)),
		width: width,
	}
}

// Width returns the configured concurrency width.
func (l *Limiter) Width() int { return l.width }

// Do runs fn once a slot is free, releasing the slot when fn returns.
// It returns ctx.Err() if the context is cancelled while waiting.
func (l *Limiter) Do(ctx context.Context, fn func() error) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.sem.Release(1)

	n := l.active.Add(1)
	for {
		p := l.peak.Load()
		if n <= p || l.peak.CompareAndSwap(p, n) {
			break
		}
	}
	defer l.active.Add(-1)

	return fn()
}

// Peak returns the highest number of operations observed running at once.
// Used by tests to verify the bound holds.
func (l *Limiter) Peak() int { return int(l.peak.Load()) }
