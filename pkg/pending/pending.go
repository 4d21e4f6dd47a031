// Package pending tracks local sequences that are in flight (queued for
// diff, queued for upload, or uploading), the sorted set that the
// checkpoint algorithm advances behind.
package pending

import "sort"

// Set is a sorted set of int64 sequence numbers, guarded by the caller's
// executor (it is not itself safe for concurrent use, matching the
// single-threaded-executor model of the replicator).
type Set struct {
	seqs               []int64 // kept sorted ascending
	maxPendingSequence int64
}

// New constructs an empty Set.
func New() *Set {
	return &Set{}
}

// Add inserts seq into the set if absent, and advances maxPendingSequence.
func (s *Set) Add(seq int64) {
	if seq > s.maxPendingSequence {
		s.maxPendingSequence = seq
	}
	i := sort.Search(len(s.seqs), func(i int) bool { return s.seqs[i] >= seq })
	if i < len(s.seqs) && s.seqs[i] == seq {
		return // already tracked
	}
	s.seqs = append(s.seqs, 0)
	copy(s.seqs[i+1:], s.seqs[i:])
	s.seqs[i] = seq
}

// Remove deletes seq from the set if present. It reports whether seq was the
// current minimum at the time of removal ("wasFirst") — the checkpoint may
// only be advanced when wasFirst is true. Removing a sequence that was never
// tracked is a no-op and always reports wasFirst=false, preserving the
// conservative behavior called out as an open question in spec.md §9: the
// checkpoint must never advance on the removal of an untracked sequence.
func (s *Set) Remove(seq int64) (wasFirst bool) {
	i := sort.Search(len(s.seqs), func(i int) bool { return s.seqs[i] >= seq })
	if i >= len(s.seqs) || s.seqs[i] != seq {
		return false
	}
	wasFirst = i == 0
	s.seqs = append(s.seqs[:i], s.seqs[i+1:]...)
	return wasFirst
}

// Min returns the current minimum pending sequence and whether the set is
// non-empty.
func (s *Set) Min() (int64, bool) {
	if len(s.seqs) == 0 {
		return 0, false
	}
	return s.seqs[0], true
}

// MaxPendingSequence returns the highest sequence ever added, even after
// removal.
func (s *Set) MaxPendingSequence() int64 { return s.maxPendingSequence }

// Len reports how many sequences are currently tracked.
func (s *Set) Len() int { return len(s.seqs) }

// Empty reports whether the set currently tracks no sequences.
func (s *Set) Empty() bool { return len(s.seqs) == 0 }

// CheckpointCandidate computes the new checkpoint candidate following a
// removal, per spec.md §4.8: (newMin - 1) if the set is non-empty, else
// maxPendingSequence. Callers must only apply this when Remove reported
// wasFirst; otherwise the existing checkpoint should be left untouched.
func (s *Set) CheckpointCandidate() int64 {
	if min, ok := s.Min(); ok {
		return min - 1
	}
	return s.maxPendingSequence
}
