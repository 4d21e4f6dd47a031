// Package diff implements the _revs_diff negotiation step: for a batch of
// revisions, ask the remote which it lacks and which ancestors it has
// (spec.md §4.4).
package diff

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/couchbase-lite-go/pushrepl/pkg/revision"
	"github.com/couchbase-lite-go/pushrepl/pkg/transport"
)

// Diff is one docID's entry in a DiffResponse: revs the remote lacks, and
// revs it already has that might be ancestors (used to stub attachments).
type Diff struct {
	Missing           []string `json:"missing,omitempty"`
	PossibleAncestors []string `json:"possible_ancestors,omitempty"`
}

// Response maps docID -> Diff.
type Response map[string]Diff

// Negotiator dispatches _revs_diff requests against a remote.
type Negotiator struct {
	Transport transport.Transport
}

// NewNegotiator constructs a Negotiator.
func NewNegotiator(t transport.Transport) *Negotiator {
	return &Negotiator{Transport: t}
}

// Diff posts the batch's docID -> [revID...] mapping to /_revs_diff and
// returns the parsed response.
func (n *Negotiator) Diff(ctx context.Context, batch *revision.RevisionList) (Response, error) {
	reqBody, err := json.Marshal(batch.ByDocID())
	if err != nil {
		return nil, errors.Wrap(err, "diff: encode request")
	}
	resp, err := n.Transport.SendAsyncRequest(ctx, transport.Request{
		Method:      "POST",
		Path:        "/_revs_diff",
		Body:        strings.NewReader(string(reqBody)),
		ContentType: "application/json",
	})
	if err != nil {
		return nil, errors.Wrap(err, "diff: request")
	}
	if resp.StatusCode >= 300 {
		return nil, errors.Errorf("diff: unexpected status %d", resp.StatusCode)
	}
	var out Response
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, errors.Wrap(err, "diff: malformed response")
	}
	return out, nil
}

// Missing reports whether rev is present in d's missing set for its docID —
// i.e. the remote lacks it and it must be uploaded. An absent docID entry,
// or one whose missing list omits the revID, means the revision is already
// present remotely (spec.md §4.4).
func (d Response) Missing(rev revision.Revision) bool {
	entry, ok := d[rev.DocID]
	if !ok {
		return false
	}
	for _, r := range entry.Missing {
		if r == rev.RevID {
			return true
		}
	}
	return false
}

// PossibleAncestors returns the possible_ancestors list for rev's docID, if
// any.
func (d Response) PossibleAncestors(rev revision.Revision) []string {
	return d[rev.DocID].PossibleAncestors
}

// Partition splits batch into (needsUpload, alreadyPresent) according to d.
// An empty Response (the remote needs nothing) yields an empty needsUpload
// and the entire batch as alreadyPresent.
func Partition(batch *revision.RevisionList, d Response) (needsUpload, alreadyPresent []revision.Revision) {
	for _, rev := range batch.All() {
		if d.Missing(rev) {
			needsUpload = append(needsUpload, rev)
		} else {
			alreadyPresent = append(alreadyPresent, rev)
		}
	}
	return needsUpload, alreadyPresent
}
