// Package replicator implements the push replicator's lifecycle controller:
// the Pusher type that wires the change source, inbox batcher, diff
// negotiator, uploader, and pending-sequence checkpoint tracker together on
// a single-threaded executor (spec.md §4.1/§5, SPEC_FULL.md §4.1), the
// direct analogue of the teacher's migration.Runner.
package replicator

import (
	"context"
	"strconv"
	"sync"

	"github.com/siddontang/go-log/loggers"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/couchbase-lite-go/pushrepl/pkg/batcher"
	"github.com/couchbase-lite-go/pushrepl/pkg/checkpoint"
	"github.com/couchbase-lite-go/pushrepl/pkg/diff"
	"github.com/couchbase-lite-go/pushrepl/pkg/filter"
	"github.com/couchbase-lite-go/pushrepl/pkg/metrics"
	"github.com/couchbase-lite-go/pushrepl/pkg/pending"
	"github.com/couchbase-lite-go/pushrepl/pkg/revision"
	"github.com/couchbase-lite-go/pushrepl/pkg/store"
	"github.com/couchbase-lite-go/pushrepl/pkg/transport"
	"github.com/couchbase-lite-go/pushrepl/pkg/upload"
)

// Pusher is a single push replication session. Construct with NewPusher and
// drive it with Start/Stop/GoOffline/GoOnline/Retry; inspect it with
// Status(). All mutation of the fields below the executor marker happens
// exclusively inside tasks run on the executor goroutine, per spec.md §5.
type Pusher struct {
	config      Config
	store       store.ChangeSource
	transport   transport.Transport
	negotiator  *diff.Negotiator
	uploader    *upload.Uploader
	checkpoints *checkpoint.Store
	logger      loggers.Advanced
	metricsSink metrics.Sink

	currentState State // atomic, see state.go

	// mu guards the observable fields Status() snapshots; every field it
	// guards is also only written from the executor goroutine, but Status()
	// may be called from any goroutine.
	mu               sync.Mutex
	err              error
	lastSequence     int64
	changesTotal     int
	changesProcessed int
	savingCheckpoint bool
	sessionID        string

	// Executor-only fields: touched exclusively inside tasks run on the
	// executor goroutine (runExecutor), never directly from other
	// goroutines.
	pending        *pending.Set
	batcherInst    *batcher.Batcher
	filterFunc     filter.Func
	replicationLog *checkpoint.ReplicationLog
	asyncTasks     int
	notifCancel    context.CancelFunc

	submitMu sync.Mutex // serializes Send-vs-close(executor) races
	closed   bool
	executor chan func()
	cancel   context.CancelFunc
	eg       *errgroup.Group // joins runExecutor and the initialScan/subscribeNotifications goroutines; pipeline.go's diff, upload and checkpoint-save goroutines are not joined
}

// NewPusher constructs a Pusher. logger defaults to logrus.New() and sink to
// metrics.NoopSink{}, exactly as migration.NewRunner defaults its logger and
// metricsSink.
func NewPusher(cfg Config, src store.ChangeSource, t transport.Transport, logger loggers.Advanced, sink metrics.Sink) (*Pusher, error) {
	if err := cfg.normalizeOptions(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}
	if sink == nil {
		sink = metrics.NoopSink{}
	}
	return &Pusher{
		config:      cfg,
		store:       src,
		transport:   t,
		negotiator:  diff.NewNegotiator(t),
		uploader:    upload.NewUploader(upload.NewBulkUploader(t), upload.NewMultipartUploader(t, src), src, logger),
		checkpoints: checkpoint.NewStore(t),
		logger:      logger,
		metricsSink: sink,
		pending:     pending.New(),
	}, nil
}

// SetMetricsSink swaps the metrics sink, mirroring migration.Runner's
// SetMetricsSink.
func (p *Pusher) SetMetricsSink(sink metrics.Sink) { p.metricsSink = sink }

// SetLogger swaps the logger, mirroring migration.Runner's SetLogger.
func (p *Pusher) SetLogger(logger loggers.Advanced) { p.logger = logger }

// Start loads the checkpoint, optionally creates the target database, and
// begins the initial change-source scan (spec.md §4.1).
func (p *Pusher) Start(ctx context.Context) error {
	if p.getCurrentState() != StateStopped {
		return ErrAlreadyRunning
	}
	p.setCurrentState(StateStarting)
	p.setErr(nil)

	if p.config.FilterName != "" {
		f, err := p.store.CompileFilterNamed(p.config.FilterName)
		if err != nil {
			return p.failStart(classify(ClassFilterResolution, err))
		}
		p.filterFunc = f
	}

	if len(p.config.DocIDs) > 0 {
		allowed := make(map[string]bool, len(p.config.DocIDs))
		for _, id := range p.config.DocIDs {
			allowed[id] = true
		}
		userFilter := p.filterFunc
		p.filterFunc = func(rev revision.Revision, params filter.Params) bool {
			if !allowed[rev.DocID] {
				return false
			}
			return userFilter == nil || userFilter(rev, params)
		}
	}

	if p.config.CreateTarget {
		if err := checkpoint.CreateTarget(ctx, p.transport); err != nil {
			return p.failStart(classify(ClassTransport, err))
		}
	}

	identity := checkpoint.Identity{
		LocalDBUUID:  p.config.LocalDBUUID,
		RemoteURL:    p.config.RemoteURL,
		Push:         true,
		Filter:       p.config.FilterName,
		FilterParams: map[string]interface{}(p.config.FilterParams),
		DocIDs:       p.config.DocIDs,
	}
	sessionID := checkpoint.SessionID(identity)
	p.mu.Lock()
	p.sessionID = sessionID
	p.mu.Unlock()

	log, err := p.checkpoints.Load(ctx, sessionID)
	if err != nil {
		return p.failStart(classify(ClassTransport, err))
	}
	p.replicationLog = log
	since, _ := strconv.ParseInt(log.SourceLastSeq, 10, 64)
	p.setLastSequence(since)

	execCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.closed = false
	p.executor = make(chan func(), 1024)
	p.eg = &errgroup.Group{}

	p.batcherInst = batcher.New(p.config.BatchCapacity, p.config.BatchFlushInterval, func(batch *revision.RevisionList) {
		// The timer-driven flush (batcher.go's time.AfterFunc) runs on its own
		// goroutine; handleBatch mutates asyncTasks, which is executor-only
		// state (spec.md §5), so the flush must be submitted rather than
		// called directly.
		p.submit(func() { p.handleBatch(execCtx, batch) })
	})

	p.eg.Go(func() error { p.runExecutor(); return nil })

	p.setCurrentState(StateRunning)
	p.logger.Infof("replicator starting: session=%s since=%d continuous=%v", sessionID, since, p.config.Continuous)

	p.eg.Go(func() error { p.initialScan(execCtx, since); return nil })

	if p.config.Continuous {
		p.eg.Go(func() error { p.subscribeNotifications(execCtx); return nil })
	}

	return nil
}

func (p *Pusher) failStart(err error) error {
	p.setErr(err)
	p.setCurrentState(StateError)
	p.setCurrentState(StateStopped)
	p.logger.Errorf("replicator: failed to start: %v", err)
	return err
}

// Stop cancels outstanding requests, drops the change-notification
// subscription, persists the latest reachable checkpoint best-effort, and
// transitions to Stopped (spec.md §4.1/§5).
func (p *Pusher) Stop(ctx context.Context) error {
	if p.getCurrentState() == StateStopped {
		return ErrNotRunning
	}
	done := make(chan struct{})
	submitted := p.submit(func() {
		defer close(done)
		if p.notifCancel != nil {
			p.notifCancel()
			p.notifCancel = nil
		}
		if p.batcherInst != nil {
			p.batcherInst.Close()
		}
		p.mu.Lock()
		seq := p.lastSequence
		p.mu.Unlock()
		if seq > 0 {
			log := p.snapshotReplicationLog(seq)
			if err := p.checkpoints.Save(ctx, log); err != nil {
				p.logger.Warnf("replicator: final checkpoint save failed: %v", err)
			} else {
				p.replicationLog = log
			}
		}
	})
	if submitted {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
	p.shutdownExecutor()
	p.setCurrentState(StateStopped)
	return nil
}

// GoOffline suspends the change-notification subscription without stopping
// the replicator (spec.md §4.1).
func (p *Pusher) GoOffline() error {
	if p.getCurrentState() == StateStopped {
		return ErrNotRunning
	}
	p.submit(func() {
		if p.notifCancel != nil {
			p.notifCancel()
			p.notifCancel = nil
		}
		p.setCurrentState(StateOffline)
	})
	return nil
}

// GoOnline resumes the change-notification subscription after GoOffline.
func (p *Pusher) GoOnline(ctx context.Context) error {
	if p.getCurrentState() != StateOffline {
		return ErrNotRunning
	}
	p.submit(func() {
		p.setCurrentState(StateRunning)
		if p.config.Continuous {
			p.eg.Go(func() error { p.subscribeNotifications(ctx); return nil })
		}
	})
	return nil
}

// Retry re-enters Running by re-requesting changes from the current
// checkpoint, replaying any revisions that had failed (spec.md §4.1).
func (p *Pusher) Retry(ctx context.Context) error {
	state := p.getCurrentState()
	if state != StateError && state != StateRetrying && state != StateOffline {
		return ErrNotRunning
	}
	p.submit(func() {
		p.setErr(nil)
		p.setCurrentState(StateRetrying)
		p.mu.Lock()
		since := p.lastSequence
		p.mu.Unlock()
		p.eg.Go(func() error { p.initialScan(ctx, since); return nil })
	})
	return nil
}

// submit enqueues fn on the executor, returning false if the executor has
// already been closed (Stop is in progress or complete).
func (p *Pusher) submit(fn func()) bool {
	p.submitMu.Lock()
	defer p.submitMu.Unlock()
	if p.closed {
		return false
	}
	p.executor <- fn
	return true
}

func (p *Pusher) shutdownExecutor() {
	p.submitMu.Lock()
	if !p.closed {
		p.closed = true
		close(p.executor)
	}
	p.submitMu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
	_ = p.eg.Wait()
}

// runExecutor drains the executor channel until it is closed, the
// single-threaded run-loop every other mutation goes through (spec.md §5).
func (p *Pusher) runExecutor() {
	for task := range p.executor {
		task()
	}
}

// snapshotReplicationLog builds the ReplicationLog to persist for the given
// checkpoint candidate, chaining the previously loaded document's _rev and
// history (checkpoint.ReplicationLog is always populated by Start, even for
// a brand-new session, via checkpoint.Store.Load's 404 default).
func (p *Pusher) snapshotReplicationLog(seq int64) *checkpoint.ReplicationLog {
	return &checkpoint.ReplicationLog{
		ID:                   "_local/" + p.replicationLog.SessionID,
		Rev:                  p.replicationLog.Rev,
		SessionID:            p.replicationLog.SessionID,
		SourceLastSeq:        strconv.FormatInt(seq, 10),
		ReplicationIDVersion: 3,
		History:              p.replicationLog.History,
	}
}
