// Package transport defines the HTTP transport and Authorizer capabilities
// the replicator consumes, plus a default retrying implementation.
package transport

import (
	"context"
	"io"
	"net/http"
)

// Request is a single JSON-bodied (or raw-bodied, for multipart) outbound
// request. Path is relative to the transport's configured remote base URL.
type Request struct {
	Method      string
	Path        string
	Query       map[string]string
	Body        io.Reader
	ContentType string
	Headers     map[string]string
}

// Response is the result of a dispatched Request.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// Transport is the HTTP collaborator the replicator consumes. A single
// CBLRemoteRequest-style implementation owns its own connection; multiple
// requests may be dispatched concurrently against the same Transport.
type Transport interface {
	// SendAsyncRequest dispatches req and returns its Response, or an error
	// classified by the caller per spec.md §7's error taxonomy.
	SendAsyncRequest(ctx context.Context, req Request) (*Response, error)
}

// Authorizer is the capability interface consumed for request signing. It
// replaces dynamic dispatch on a class hierarchy (spec.md §9) with a single
// method implemented by each auth scheme.
type Authorizer interface {
	// Sign returns headers to attach to an outbound request.
	Sign(req Request) (map[string]string, error)
}

// NopAuthorizer signs nothing; used when the remote requires no auth.
type NopAuthorizer struct{}

// Sign implements Authorizer.
func (NopAuthorizer) Sign(Request) (map[string]string, error) { return nil, nil }
