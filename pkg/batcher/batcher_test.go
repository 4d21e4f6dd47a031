package batcher

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchbase-lite-go/pushrepl/pkg/revision"
)

func TestFlushesAtCapacity(t *testing.T) {
	var mu sync.Mutex
	var batches [][]revision.Revision
	b := New(2, time.Hour, func(rl *revision.RevisionList) {
		mu.Lock()
		defer mu.Unlock()
		batches = append(batches, rl.All())
	})
	b.Add(revision.Revision{DocID: "d1", RevID: "1-a", Sequence: 1})
	b.Add(revision.Revision{DocID: "d2", RevID: "1-b", Sequence: 2})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 2)
}

func TestFlushesOnTimer(t *testing.T) {
	done := make(chan *revision.RevisionList, 1)
	b := New(100, 20*time.Millisecond, func(rl *revision.RevisionList) {
		done <- rl
	})
	b.Add(revision.Revision{DocID: "d1", RevID: "1-a", Sequence: 1})

	select {
	case rl := <-done:
		assert.Equal(t, 1, rl.Len())
	case <-time.After(time.Second):
		t.Fatal("timer flush did not fire")
	}
}

func TestForceFlushOnExhaustion(t *testing.T) {
	var flushed bool
	b := New(100, time.Hour, func(rl *revision.RevisionList) {
		flushed = true
	})
	b.Add(revision.Revision{DocID: "d1", RevID: "1-a", Sequence: 1})
	b.ForceFlush()
	assert.True(t, flushed)
}

func TestForceFlushOnEmptyIsNoop(t *testing.T) {
	var flushed bool
	b := New(100, time.Hour, func(rl *revision.RevisionList) { flushed = true })
	b.ForceFlush()
	assert.False(t, flushed)
}
