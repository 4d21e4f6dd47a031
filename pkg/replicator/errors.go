package replicator

import "github.com/pkg/errors"

// ErrorClass classifies an internal error so Pusher.handleError can apply
// spec.md §7's propagation rules: only PerDocument and PerRequest errors are
// swallowed, everything else is first-error-wins and fatal.
type ErrorClass int

const (
	// ClassTransport is a network/DNS/TLS failure. Retryable.
	ClassTransport ErrorClass = iota
	// ClassPerDocument is a 401/403/409 within a _bulk_docs response item.
	// Logged, never propagated.
	ClassPerDocument
	// ClassPerRequest is a 415 on a multipart PUT, handled by the fallback.
	// Never surfaced.
	ClassPerRequest
	// ClassProtocolViolation is malformed JSON or a missing required field.
	// Fatal.
	ClassProtocolViolation
	// ClassLocalStore is a failure loading a revision body from the local
	// store. The revision is skipped and retried; not fatal.
	ClassLocalStore
	// ClassFilterResolution is a failure to resolve the configured filter
	// name. Fatal before any batch is produced.
	ClassFilterResolution
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransport:
		return "transport"
	case ClassPerDocument:
		return "per-document"
	case ClassPerRequest:
		return "per-request"
	case ClassProtocolViolation:
		return "protocol-violation"
	case ClassLocalStore:
		return "local-store"
	case ClassFilterResolution:
		return "filter-resolution"
	default:
		return "unknown"
	}
}

// ClassifiedError attaches an ErrorClass to an underlying error so the
// central handler can decide whether it is fatal.
type ClassifiedError struct {
	Class ErrorClass
	Err   error
}

func (e *ClassifiedError) Error() string { return e.Class.String() + ": " + e.Err.Error() }
func (e *ClassifiedError) Unwrap() error { return e.Err }

// Fatal reports whether errors of this class stop the replicator per
// spec.md §7 (only per-document and per-request errors are swallowed).
func (c ErrorClass) Fatal() bool {
	return c != ClassPerDocument && c != ClassPerRequest
}

func classify(class ErrorClass, err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Class: class, Err: err}
}

// ErrReservedField is returned by Config.FromReplicationDocument when a
// replication document carries an "_internal"-prefixed or otherwise reserved
// field (SPEC_FULL.md §6, the 403-flavored rejection).
var ErrReservedField = errors.New("replicator: reserved field in replication document")

// ErrLocalToLocalRequiresCreateTarget is returned by
// Config.FromReplicationDocument when source and target are both local and
// create_target was not set (spec.md §6, the 404-flavored rejection).
var ErrLocalToLocalRequiresCreateTarget = errors.New("replicator: local-to-local replication requires create_target")

// ErrAlreadyRunning is returned by Start when the Pusher is not Stopped.
var ErrAlreadyRunning = errors.New("replicator: already running")

// ErrNotRunning is returned by Stop and GoOffline when the Pusher is Stopped,
// by GoOnline when it is not Offline, and by Retry when it is not in Error,
// Retrying, or Offline.
var ErrNotRunning = errors.New("replicator: not running")
