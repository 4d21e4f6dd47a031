// Package batcher implements the inbox batcher: a bounded coalescing queue
// that accumulates revisions until either capacity or a flush timer is
// reached (spec.md §4.3).
package batcher

import (
	"sync"
	"time"

	"github.com/couchbase-lite-go/pushrepl/pkg/revision"
)

// DefaultCapacity and DefaultFlushInterval are the conventional batch
// thresholds from spec.md §4.3, kept as vars (not consts) so tests can
// override them the way the teacher's migration.go overrides its own
// interval constants for faster tests.
var (
	DefaultCapacity      = 100
	DefaultFlushInterval = 500 * time.Millisecond
)

// Batcher coalesces Revisions into batches and hands each completed batch to
// Flush. It is safe for concurrent Add calls, but ForceFlush and Close must be
// driven from the replicator's single executor.
type Batcher struct {
	capacity      int
	flushInterval time.Duration
	flush         func(*revision.RevisionList)

	mu      sync.Mutex
	current *revision.RevisionList
	timer   *time.Timer
	closed  bool
}

// New constructs a Batcher with the given capacity/flush interval (use
// DefaultCapacity/DefaultFlushInterval for production defaults). flush is
// invoked with each completed, non-empty batch; it must not block for long,
// since it runs with the Batcher's lock held, either on the goroutine that
// calls Add/ForceFlush/Close or, for a timer-driven flush, on the timer's own
// goroutine.
func New(capacity int, flushInterval time.Duration, flush func(*revision.RevisionList)) *Batcher {
	return &Batcher{capacity: capacity, flushInterval: flushInterval, flush: flush}
}

// Add appends rev to the current batch, flushing immediately if capacity is
// reached.
func (b *Batcher) Add(rev revision.Revision) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if b.current == nil {
		b.current = revision.NewRevisionList()
		b.armTimerLocked()
	}
	b.current.Add(rev)
	if b.current.Len() >= b.capacity {
		b.flushLocked()
	}
}

// ForceFlush flushes the current batch immediately, regardless of capacity
// or timer state. Used when the change source exhausts its initial scan, and
// on Close.
func (b *Batcher) ForceFlush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

// Close stops the flush timer and flushes any remaining batch.
func (b *Batcher) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.flushLocked()
}

func (b *Batcher) flushLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if b.current == nil || b.current.Len() == 0 {
		b.current = nil
		return
	}
	batch := b.current
	b.current = nil
	b.flush(batch)
}

func (b *Batcher) armTimerLocked() {
	b.timer = time.AfterFunc(b.flushInterval, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.flushLocked()
	})
}
