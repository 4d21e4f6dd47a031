package upload

// Queue is the single-slot gate multipart uploads are serialized through
// (spec.md §3 "UploaderQueue", §4.6, §5 "Backpressure"). At most one
// multipart upload is active per replicator at any time; this bounds memory
// and concurrent attachment streams.
type Queue struct {
	slot chan struct{}
}

// NewQueue constructs a Queue with its single slot open.
func NewQueue() *Queue {
	q := &Queue{slot: make(chan struct{}, 1)}
	q.slot <- struct{}{}
	return q
}

// Acquire blocks until the slot is free, then takes it. Call Release when
// the upload completes.
func (q *Queue) Acquire() {
	<-q.slot
}

// Release returns the slot.
func (q *Queue) Release() {
	q.slot <- struct{}{}
}

// Run acquires the slot, runs fn, and releases the slot afterward regardless
// of outcome — the serialization point every multipart upload passes
// through.
func (q *Queue) Run(fn func()) {
	q.Acquire()
	defer q.Release()
	fn()
}
