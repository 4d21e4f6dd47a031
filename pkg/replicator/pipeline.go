package replicator

import (
	"context"
	"time"

	"github.com/couchbase-lite-go/pushrepl/pkg/diff"
	"github.com/couchbase-lite-go/pushrepl/pkg/revision"
	"github.com/couchbase-lite-go/pushrepl/pkg/store"
	"github.com/couchbase-lite-go/pushrepl/pkg/upload"
)

// initialScan performs the one-time change-feed scan from since, feeding
// every result into the batcher in sequence order before force-flushing
// (spec.md §4.2/§4.3). It runs off-executor (the store call may block) and
// submits its result back onto the executor.
func (p *Pusher) initialScan(ctx context.Context, since int64) {
	list, err := p.store.ChangesSinceSequence(ctx, since, store.ChangeOptions{IncludeConflicts: true}, p.filterFunc, p.config.FilterParams)
	p.submit(func() {
		if err != nil {
			p.handleError(classify(ClassLocalStore, err))
			p.checkIdle(ctx)
			return
		}
		for _, rev := range list.All() {
			p.incChangesTotal()
			p.pending.Add(rev.Sequence)
			p.batcherInst.Add(rev)
		}
		p.batcherInst.ForceFlush()
		p.checkIdle(ctx)
	})
}

// subscribeNotifications runs for the lifetime of continuous-mode
// replication, dispatching each change notification back onto the executor
// (spec.md §4.2/§5).
func (p *Pusher) subscribeNotifications(ctx context.Context) {
	notifyCtx, cancel := context.WithCancel(ctx)
	p.submit(func() { p.notifCancel = cancel })

	ch, err := p.store.Notifications(notifyCtx)
	if err != nil {
		p.submit(func() {
			p.handleError(classify(ClassTransport, err))
		})
		return
	}
	for change := range ch {
		change := change
		p.submit(func() {
			p.handleChange(ctx, change)
		})
	}
}

// handleChange applies the continuous-mode cycle break and filter, then
// enqueues the revision (spec.md §4.2).
func (p *Pusher) handleChange(ctx context.Context, change store.Change) {
	if change.Source != "" && change.Source == p.config.RemoteURL {
		return // cycle break: this revision originated from the pull side of this same remote
	}
	if p.filterFunc != nil && !p.filterFunc(change.Revision, p.config.FilterParams) {
		return
	}
	if p.getCurrentState() == StateIdle {
		p.setCurrentState(StateRunning)
	}
	p.incChangesTotal()
	p.pending.Add(change.Revision.Sequence)
	p.batcherInst.Add(change.Revision)
}

// handleBatch diffs a completed batch against the remote (spec.md §4.4).
// Every revision in the batch was already added to PendingSequences when it
// was enqueued (initialScan / handleChange) — diffing is itself a
// commitment, per spec.md §4.4.
func (p *Pusher) handleBatch(ctx context.Context, batch *revision.RevisionList) {
	if batch.Len() == 0 {
		return
	}
	p.asyncTasks++
	go func() {
		start := time.Now()
		d, err := p.negotiator.Diff(ctx, batch)
		p.metricsSink.ObserveBatchDiffDuration(time.Since(start))
		p.submit(func() {
			p.asyncTasks--
			if err != nil {
				p.handleError(classify(ClassTransport, err))
				p.checkIdle(ctx)
				return
			}
			p.processDiff(ctx, batch, d)
		})
	}()
}

func (p *Pusher) processDiff(ctx context.Context, batch *revision.RevisionList, d diff.Response) {
	needsUpload, alreadyPresent := diff.Partition(batch, d)
	for _, rev := range alreadyPresent {
		p.removePending(ctx, rev.Sequence)
	}
	if len(needsUpload) == 0 {
		p.checkIdle(ctx)
		return
	}
	p.asyncTasks++
	go func() {
		start := time.Now()
		results := p.uploader.Upload(ctx, needsUpload, d)
		p.metricsSink.ObserveUploadDuration(time.Since(start))
		p.submit(func() {
			p.asyncTasks--
			p.processUploadResults(ctx, results)
		})
	}()
}

// processUploadResults classifies each upload result per spec.md §4.5/§7:
// delivered revisions and acknowledged-present revisions are removed from
// PendingSequences; everything else stays pending for retry, and
// per-document errors (401/403/409) are logged, not surfaced.
func (p *Pusher) processUploadResults(ctx context.Context, results []upload.Result) {
	var delivered, failed int
	for _, res := range results {
		switch {
		case res.Delivered():
			delivered++
			p.removePending(ctx, res.Revision.Sequence)
		case res.Err != nil:
			failed++
			p.logger.Warnf("replicator: upload error doc=%s rev=%s: %v", res.Revision.DocID, res.Revision.RevID, res.Err)
		case res.Status == 401 || res.Status == 403 || res.Status == 409:
			failed++
			p.logger.Warnf("replicator: revision rejected doc=%s rev=%s status=%d", res.Revision.DocID, res.Revision.RevID, res.Status)
		default:
			failed++
			p.logger.Warnf("replicator: revision upload failed doc=%s rev=%s status=%d", res.Revision.DocID, res.Revision.RevID, res.Status)
		}
	}
	p.metricsSink.IncRevisionsUploaded(delivered)
	p.metricsSink.IncRevisionsFailed(failed)
	p.checkIdle(ctx)
}

// removePending retires seq from PendingSequences and, if it was the
// tracked minimum, advances the checkpoint candidate and kicks off an
// asynchronous save (spec.md §4.8).
func (p *Pusher) removePending(ctx context.Context, seq int64) {
	p.incChangesProcessed()
	wasFirst := p.pending.Remove(seq)
	if !wasFirst {
		return
	}
	candidate := p.pending.CheckpointCandidate()
	p.setLastSequence(candidate)
	p.saveCheckpointAsync(ctx, candidate)
}

// saveCheckpointAsync persists the checkpoint candidate. If a save is
// already in flight, this is a no-op: the in-flight save's completion will
// observe the latest lastSequence value via Status, and the next
// removePending that advances the checkpoint will trigger another save.
func (p *Pusher) saveCheckpointAsync(ctx context.Context, seq int64) {
	if p.savingCheckpointLocked() {
		return
	}
	p.setSavingCheckpoint(true)
	log := p.snapshotReplicationLog(seq)
	p.asyncTasks++
	go func() {
		err := p.checkpoints.Save(ctx, log)
		p.submit(func() {
			p.asyncTasks--
			p.setSavingCheckpoint(false)
			if err != nil {
				p.handleError(classify(ClassTransport, err))
			} else {
				p.replicationLog = log
			}
			p.checkIdle(ctx)
		})
	}()
}

func (p *Pusher) savingCheckpointLocked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.savingCheckpoint
}

// checkIdle transitions Running/Retrying to Idle once there is no
// outstanding network activity and no tracked pending sequence (spec.md
// §4.1's async-task-counting rule). In non-continuous mode, reaching Idle
// stops the replicator after its final checkpoint save.
func (p *Pusher) checkIdle(ctx context.Context) {
	if p.asyncTasks > 0 || !p.pending.Empty() {
		return
	}
	state := p.getCurrentState()
	if state != StateRunning && state != StateRetrying {
		return
	}
	p.setCurrentState(StateIdle)
	if !p.config.Continuous {
		go func() { _ = p.Stop(ctx) }()
	}
}

// handleError applies spec.md §7's error-class rules: per-document and
// per-request errors are logged and discarded; everything else is
// first-error-wins and stops the replicator.
func (p *Pusher) handleError(err error) {
	if err == nil {
		return
	}
	if ce, ok := err.(*ClassifiedError); ok && !ce.Class.Fatal() {
		p.logger.Warnf("replicator: swallowed %s error: %v", ce.Class, ce.Err)
		return
	}
	if p.getErr() != nil {
		p.logger.Errorf("replicator: discarding subsequent error: %v", err)
		return
	}
	p.setErr(err)
	p.logger.Errorf("replicator: fatal error: %v", err)
	p.setCurrentState(StateError)
	go func() { _ = p.Stop(context.Background()) }()
}
