// Package metrics defines the Sink the replicator reports counters and
// timings through, mirroring the Sink/NoopSink split the teacher's row
// copier and checksum checker are handed (migration.Runner's metricsSink
// field).
package metrics

import "time"

// Sink receives counters and timings emitted by a running Pusher. All
// methods must be safe for concurrent use; a Pusher may call them from its
// executor goroutine and from HTTP-completion goroutines.
type Sink interface {
	// IncRevisionsUploaded adds n to the count of revisions successfully
	// delivered to the remote.
	IncRevisionsUploaded(n int)
	// IncRevisionsFailed adds n to the count of revisions that failed
	// delivery: any upload result that was not a success, whether an upload
	// error or a rejected status. Such revisions stay pending.
	IncRevisionsFailed(n int)
	// ObserveBatchDiffDuration records how long a _revs_diff round trip took.
	ObserveBatchDiffDuration(d time.Duration)
	// ObserveUploadDuration records how long a single upload (bulk batch or
	// multipart PUT) took.
	ObserveUploadDuration(d time.Duration)
	// SetLastSequence records the replicator's current checkpoint candidate.
	SetLastSequence(seq int64)
	// SetState records the lifecycle state as a label, for dashboards.
	SetState(state string)
}

// NoopSink discards everything. It is the default Sink, exactly as
// migration.Runner defaults metricsSink to &metrics.NoopSink{}.
type NoopSink struct{}

func (NoopSink) IncRevisionsUploaded(int)              {}
func (NoopSink) IncRevisionsFailed(int)                {}
func (NoopSink) ObserveBatchDiffDuration(time.Duration) {}
func (NoopSink) ObserveUploadDuration(time.Duration)    {}
func (NoopSink) SetLastSequence(int64)                 {}
func (NoopSink) SetState(string)                       {}
