package replicator

import "sync/atomic"

// State is the replicator's lifecycle state (spec.md §3/§4.1), backed by an
// int32 so it can be read and written atomically the way the teacher's
// migrationState is (Runner.currentState / getCurrentState / setCurrentState).
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateIdle
	StateRetrying
	StateOffline
	StateError
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateIdle:
		return "idle"
	case StateRetrying:
		return "retrying"
	case StateOffline:
		return "offline"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

func (p *Pusher) getCurrentState() State {
	return State(atomic.LoadInt32((*int32)(&p.currentState)))
}

func (p *Pusher) setCurrentState(s State) {
	atomic.StoreInt32((*int32)(&p.currentState), int32(s))
	if p.metricsSink != nil {
		p.metricsSink.SetState(s.String())
	}
}
