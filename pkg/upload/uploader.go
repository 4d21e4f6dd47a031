package upload

import (
	"context"
	"encoding/base64"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/siddontang/go-log/loggers"

	"github.com/couchbase-lite-go/pushrepl/pkg/diff"
	"github.com/couchbase-lite-go/pushrepl/pkg/revision"
	"github.com/couchbase-lite-go/pushrepl/pkg/store"
)

// Result is the per-revision outcome of an Upload call.
type Result struct {
	Revision revision.Revision
	// Status is 0 on success, the classified HTTP-style status otherwise.
	// A revision with Status != 0 must stay in PendingSequences for retry,
	// per spec.md §4.5/§4.8.
	Status int
	Err    error
}

// Delivered reports whether the revision was accepted by the remote.
func (r Result) Delivered() bool { return r.Status == 0 && r.Err == nil }

// Uploader orchestrates the bulk and multipart upload paths for a set of
// revisions the diff negotiator reported missing (spec.md §4.5/§4.6).
type Uploader struct {
	Bulk      *BulkUploader
	Multipart *MultipartUploader
	Store     store.ChangeSource
	Queue     *Queue
	Logger    loggers.Advanced

	// dontSendMultipart is set permanently once the remote has rejected a
	// multipart request with 415 (spec.md §4.6). Upload dispatches each
	// batch's uploads from its own off-executor goroutine (pipeline.go's
	// processDiff), so two batches can race on this flag; it is
	// atomic-guarded rather than executor-owned, the way Pusher.currentState
	// is (state.go).
	dontSendMultipart int32
}

// NewUploader constructs an Uploader.
func NewUploader(bulk *BulkUploader, mp *MultipartUploader, s store.ChangeSource, logger loggers.Advanced) *Uploader {
	return &Uploader{Bulk: bulk, Multipart: mp, Store: s, Queue: NewQueue(), Logger: logger}
}

// Upload loads each revision's body, stubs ancestor attachments using d, and
// dispatches each through the multipart or bulk path as appropriate.
func (u *Uploader) Upload(ctx context.Context, revs []revision.Revision, d diff.Response) []Result {
	results := make([]Result, 0, len(revs))
	var bulkBatch []revision.Revision
	var bulkIndexes []int

	for _, rev := range revs {
		dontSendMultipart := u.DontSendMultipart()
		loaded, err := u.Store.LoadRevisionBody(ctx, rev, store.LoadOptions{
			IncludeAttachments:   true,
			IncludeRevs:          true,
			BigAttachmentsFollow: !dontSendMultipart,
		})
		if err != nil {
			// Local store error: skip via revisionFailed, retry later
			// (spec.md §7 "Local store error").
			results = append(results, Result{Revision: rev, Err: err})
			continue
		}

		if ancestors := d.PossibleAncestors(rev); len(ancestors) > 0 {
			ancestorGen := revision.FindCommonAncestor(loaded, ancestors)
			StubAncestorAttachments(loaded, ancestorGen)
		}

		if !dontSendMultipart && HasFollowingAttachments(loaded) {
			results = append(results, u.uploadMultipart(ctx, loaded))
			continue
		}

		bulkIndexes = append(bulkIndexes, len(results))
		results = append(results, Result{Revision: loaded}) // placeholder, filled below
		bulkBatch = append(bulkBatch, loaded)
	}

	if len(bulkBatch) > 0 {
		statuses, err := u.Bulk.Upload(ctx, bulkBatch)
		for i, idx := range bulkIndexes {
			if err != nil {
				results[idx] = Result{Revision: bulkBatch[i], Err: err}
				continue
			}
			results[idx] = Result{Revision: bulkBatch[i], Status: statuses[i]}
		}
	}

	return results
}

func (u *Uploader) uploadMultipart(ctx context.Context, rev revision.Revision) Result {
	var status int
	var err error
	u.Queue.Run(func() {
		status, err = u.Multipart.Upload(ctx, rev)
	})
	if err != nil {
		return Result{Revision: rev, Err: err}
	}
	if status == StatusUnsupportedMediaType {
		if u.Logger != nil {
			u.Logger.Warnf("upload: multipart rejected with 415, disabling multipart for remainder of session doc=%s", rev.DocID)
		}
		u.setDontSendMultipart()
		return u.uploadInlineFallback(ctx, rev)
	}
	return Result{Revision: rev, Status: okOr(status)}
}

// uploadInlineFallback re-uploads rev with its "follows" attachments inlined
// as base64 JSON, via a plain PUT rather than multipart/related (spec.md
// §4.6's multipart fallback).
func (u *Uploader) uploadInlineFallback(ctx context.Context, rev revision.Revision) Result {
	err := InlineAttachments(rev, func(name string, entry map[string]interface{}) (string, error) {
		fileURL, ferr := u.Store.FileForAttachmentDict(entry)
		if ferr != nil {
			return "", ferr
		}
		f, oerr := os.Open(strings.TrimPrefix(fileURL, "file://"))
		if oerr != nil {
			return "", oerr
		}
		defer f.Close()
		data, rerr := io.ReadAll(f)
		if rerr != nil {
			return "", rerr
		}
		return base64.StdEncoding.EncodeToString(data), nil
	})
	if err != nil {
		return Result{Revision: rev, Err: errors.Wrap(err, "inline fallback: read attachments")}
	}
	status, err := u.Multipart.UploadInline(ctx, rev)
	if err != nil {
		return Result{Revision: rev, Err: err}
	}
	return Result{Revision: rev, Status: okOr(status)}
}

// DontSendMultipart reports whether a prior 415 has permanently disabled the
// multipart path for this Uploader's remaining lifetime.
func (u *Uploader) DontSendMultipart() bool {
	return atomic.LoadInt32(&u.dontSendMultipart) != 0
}

func (u *Uploader) setDontSendMultipart() {
	atomic.StoreInt32(&u.dontSendMultipart, 1)
}

func okOr(status int) int {
	if status >= 200 && status < 300 {
		return 0
	}
	return status
}
