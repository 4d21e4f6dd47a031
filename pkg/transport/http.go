package transport

import (
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/siddontang/go-log/loggers"
)

// RetryingHTTP is the default Transport implementation: it dispatches
// requests against a remote CouchDB-compatible base URL, retrying
// transport-level failures (spec.md §7's "Transport" error class) with
// exponential backoff via retryablehttp, and pools connections with
// go-cleanhttp the way the consul-replicate lineage in the retrieval pack
// does for its own HTTP calls.
type RetryingHTTP struct {
	BaseURL    *url.URL
	Authorizer Authorizer
	Logger     loggers.Advanced

	client *retryablehttp.Client
}

// NewRetryingHTTP constructs a RetryingHTTP transport against baseURL, which
// retries each request up to maxRetries times after its first attempt.
func NewRetryingHTTP(baseURL string, authorizer Authorizer, logger loggers.Advanced, maxRetries int) (*RetryingHTTP, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "transport: invalid base URL")
	}
	if authorizer == nil {
		authorizer = NopAuthorizer{}
	}
	rc := retryablehttp.NewClient()
	rc.HTTPClient = cleanhttp.DefaultPooledClient()
	rc.RetryMax = maxRetries
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = nil // individual retries are not logged; a request that fails after all retries is logged via Logger below
	return &RetryingHTTP{BaseURL: u, Authorizer: authorizer, Logger: logger, client: rc}, nil
}

// SendAsyncRequest implements Transport.
func (t *RetryingHTTP) SendAsyncRequest(ctx context.Context, req Request) (*Response, error) {
	full := *t.BaseURL
	full.Path = strings.TrimSuffix(full.Path, "/") + "/" + strings.TrimPrefix(req.Path, "/")
	if len(req.Query) > 0 {
		q := full.Query()
		for k, v := range req.Query {
			q.Set(k, v)
		}
		full.RawQuery = q.Encode()
	}

	var body io.ReadSeeker
	if req.Body != nil {
		if rs, ok := req.Body.(io.ReadSeeker); ok {
			body = rs
		} else {
			b, err := io.ReadAll(req.Body)
			if err != nil {
				return nil, errors.Wrap(err, "transport: read request body")
			}
			body = strings.NewReader(string(b))
		}
	}

	rreq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, full.String(), body)
	if err != nil {
		return nil, errors.Wrap(err, "transport: build request")
	}
	if req.ContentType != "" {
		rreq.Header.Set("Content-Type", req.ContentType)
	}
	for k, v := range req.Headers {
		rreq.Header.Set(k, v)
	}
	signed, err := t.Authorizer.Sign(req)
	if err != nil {
		return nil, errors.Wrap(err, "transport: sign request")
	}
	for k, v := range signed {
		rreq.Header.Set(k, v)
	}

	resp, err := t.client.Do(rreq)
	if err != nil {
		if t.Logger != nil {
			t.Logger.Warnf("transport: request failed after retries: method=%s path=%s err=%v", req.Method, req.Path, err)
		}
		return nil, errors.Wrap(err, "transport: request failed")
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "transport: read response body")
	}
	return &Response{StatusCode: resp.StatusCode, Body: data, Header: resp.Header}, nil
}
