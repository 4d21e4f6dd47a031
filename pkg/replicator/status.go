package replicator

// Status is a snapshot of a Pusher's observable properties (spec.md §4.1).
type Status struct {
	State            State
	Running          bool
	SavingCheckpoint bool
	Err              error
	LastSequence     int64
	ChangesTotal     int
	ChangesProcessed int
	SessionID        string
}

// Status returns a snapshot of the replicator's observable fields, safe to
// call from any goroutine.
func (p *Pusher) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	state := p.getCurrentState()
	return Status{
		State:            state,
		Running:          state == StateRunning || state == StateIdle || state == StateRetrying,
		SavingCheckpoint: p.savingCheckpoint,
		Err:              p.err,
		LastSequence:     p.lastSequence,
		ChangesTotal:     p.changesTotal,
		ChangesProcessed: p.changesProcessed,
		SessionID:        p.sessionID,
	}
}

func (p *Pusher) setErr(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *Pusher) getErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Pusher) setLastSequence(seq int64) {
	p.mu.Lock()
	p.lastSequence = seq
	p.mu.Unlock()
	p.metricsSink.SetLastSequence(seq)
}

func (p *Pusher) setSavingCheckpoint(v bool) {
	p.mu.Lock()
	p.savingCheckpoint = v
	p.mu.Unlock()
}

func (p *Pusher) incChangesTotal() {
	p.mu.Lock()
	p.changesTotal++
	p.mu.Unlock()
}

func (p *Pusher) incChangesProcessed() {
	p.mu.Lock()
	p.changesProcessed++
	p.mu.Unlock()
}
