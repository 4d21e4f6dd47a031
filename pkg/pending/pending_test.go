package pending

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddRemoveBasic(t *testing.T) {
	s := New()
	s.Add(5)
	s.Add(6)
	s.Add(7)
	assert.Equal(t, int64(7), s.MaxPendingSequence())

	// Removing the minimum (5) reports wasFirst, and the candidate is newMin-1.
	assert.True(t, s.Remove(5))
	min, ok := s.Min()
	assert.True(t, ok)
	assert.Equal(t, int64(6), min)
	assert.Equal(t, int64(5), s.CheckpointCandidate())

	// Removing a non-minimum entry does not claim wasFirst.
	assert.False(t, s.Remove(7))
	assert.Equal(t, int64(5), s.CheckpointCandidate())

	assert.True(t, s.Remove(6))
	_, ok = s.Min()
	assert.False(t, ok)
	assert.Equal(t, int64(7), s.CheckpointCandidate()) // falls back to maxPendingSequence
}

func TestRemoveUntrackedSequenceIsConservative(t *testing.T) {
	s := New()
	s.Add(10)

	// Removing a sequence that was never added must not claim wasFirst, even
	// though it is numerically smaller than the tracked minimum. This is the
	// conservative behavior spec.md §9 calls out explicitly.
	assert.False(t, s.Remove(3))
	min, ok := s.Min()
	assert.True(t, ok)
	assert.Equal(t, int64(10), min)
}

func TestAddIsIdempotentAndSorted(t *testing.T) {
	s := New()
	s.Add(3)
	s.Add(1)
	s.Add(2)
	s.Add(2)
	assert.Equal(t, 3, s.Len())
	min, _ := s.Min()
	assert.Equal(t, int64(1), min)
}

func TestCheckpointPartialFailureScenario(t *testing.T) {
	// Batch of sequences {5,6,7}; _bulk_docs reports 6 as 403; the checkpoint
	// should advance to 7 only once {5,7} are removed AND 6 is retried and
	// either succeeds or is re-classified forbidden (spec.md §8).
	s := New()
	s.Add(5)
	s.Add(6)
	s.Add(7)

	assert.True(t, s.Remove(5)) // delivered
	assert.Equal(t, int64(5), s.CheckpointCandidate())

	// 7 removed out of order (delivered ahead of 6, which is still retrying).
	assert.False(t, s.Remove(7))
	min, _ := s.Min()
	assert.Equal(t, int64(6), min) // checkpoint can't pass 6 yet

	// 6 eventually resolves (forbidden, but "delivered as far as we can").
	assert.True(t, s.Remove(6))
	assert.True(t, s.Empty())
	assert.Equal(t, int64(7), s.CheckpointCandidate())
}
