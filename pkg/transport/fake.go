package transport

import (
	"context"
	"sync"
)

// Fake is an in-process Transport test double that records requests and
// answers them from a caller-installed Handler. It stands in for a live
// CouchDB-compatible endpoint in the replicator's test suite (spec.md §8).
type Fake struct {
	mu       sync.Mutex
	Handler  func(req Request) (*Response, error)
	Requests []Request
}

// NewFake constructs a Fake with the given handler.
func NewFake(handler func(req Request) (*Response, error)) *Fake {
	return &Fake{Handler: handler}
}

// SendAsyncRequest implements Transport.
func (f *Fake) SendAsyncRequest(ctx context.Context, req Request) (*Response, error) {
	f.mu.Lock()
	f.Requests = append(f.Requests, req)
	handler := f.Handler
	f.mu.Unlock()
	if handler == nil {
		return &Response{StatusCode: 200, Body: []byte(`{}`)}, nil
	}
	return handler(req)
}

// RequestsSnapshot returns a copy of the requests observed so far.
func (f *Fake) RequestsSnapshot() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.Requests))
	copy(out, f.Requests)
	return out
}
