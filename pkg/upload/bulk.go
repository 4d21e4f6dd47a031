// Package upload implements the two ways the replicator delivers revisions
// the remote is missing: the _bulk_docs batch path, and the per-document
// multipart/related path for large attachments (spec.md §4.5/§4.6).
package upload

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/couchbase-lite-go/pushrepl/pkg/revision"
	"github.com/couchbase-lite-go/pushrepl/pkg/transport"
)

// BulkUploader posts a batch of revision properties to /_bulk_docs with
// new_edits=false, so the remote accepts the client-supplied _rev verbatim
// rather than allocating new ones (spec.md §4.5).
type BulkUploader struct {
	Transport transport.Transport
}

// NewBulkUploader constructs a BulkUploader.
func NewBulkUploader(t transport.Transport) *BulkUploader {
	return &BulkUploader{Transport: t}
}

// Upload posts revs and returns, for each input revision (by index), the
// HTTP-style status classified by StatusFromBulkDocsResponseItem: 0 means
// delivered, anything else means the revision must stay pending for retry.
func (b *BulkUploader) Upload(ctx context.Context, revs []revision.Revision) ([]int, error) {
	if len(revs) == 0 {
		return nil, nil
	}
	docs := make([]map[string]interface{}, len(revs))
	for i, r := range revs {
		docs[i] = r.Properties
	}
	body, err := json.Marshal(map[string]interface{}{
		"docs":      docs,
		"new_edits": false,
	})
	if err != nil {
		return nil, errors.Wrap(err, "bulk upload: encode request")
	}
	resp, err := b.Transport.SendAsyncRequest(ctx, transport.Request{
		Method:      "POST",
		Path:        "/_bulk_docs",
		Body:        strings.NewReader(string(body)),
		ContentType: "application/json",
	})
	if err != nil {
		return nil, errors.Wrap(err, "bulk upload: request")
	}
	if resp.StatusCode >= 300 {
		return nil, errors.Errorf("bulk upload: unexpected status %d", resp.StatusCode)
	}
	var items []map[string]interface{}
	if err := json.Unmarshal(resp.Body, &items); err != nil {
		return nil, errors.Wrap(err, "bulk upload: malformed response")
	}

	statuses := make([]int, len(revs))
	for i := range revs {
		if i < len(items) {
			statuses[i] = StatusFromBulkDocsResponseItem(items[i])
		}
	}
	return statuses, nil
}

// StatusFromBulkDocsResponseItem classifies a single _bulk_docs response
// item per spec.md §4.5:
//
//   - a numeric "status" >= 400 is used verbatim
//   - otherwise the magic error strings map to fixed statuses:
//     "unauthorized" -> 401, "forbidden" -> 403, "conflict" -> 409,
//     anything else -> 502 (upstream error)
//   - absence of "error" means success (status 0)
func StatusFromBulkDocsResponseItem(item map[string]interface{}) int {
	errVal, hasError := item["error"]
	if !hasError {
		return 0
	}
	if status, ok := item["status"]; ok {
		if n, ok := toInt(status); ok && n >= 400 {
			return n
		}
	}
	switch errStr, _ := errVal.(string); errStr {
	case "unauthorized":
		return 401
	case "forbidden":
		return 403
	case "conflict":
		return 409
	default:
		return 502
	}
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}
