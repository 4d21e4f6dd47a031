// Package store defines the local-document-store interfaces the replicator
// consumes (spec.md §6 "Change-source interface"). The local store itself —
// its on-disk format, indexing, and query engine — is out of scope; this
// package fixes the boundary and ships an in-memory reference
// implementation used by tests and the CLI.
package store

import (
	"context"

	"github.com/couchbase-lite-go/pushrepl/pkg/filter"
	"github.com/couchbase-lite-go/pushrepl/pkg/revision"
)

// ChangeOptions configures a change-feed scan.
type ChangeOptions struct {
	IncludeConflicts bool
}

// LoadOptions configures a revision body load.
type LoadOptions struct {
	IncludeAttachments   bool
	IncludeRevs          bool
	BigAttachmentsFollow bool
}

// Change is a single change-notification event delivered in continuous mode.
type Change struct {
	Revision revision.Revision
	Source   string // remote URL the revision originated from, if pulled
}

// ChangeSource is the consumed interface for scanning and subscribing to the
// local store's change feed.
type ChangeSource interface {
	// ChangesSinceSequence returns all revisions with sequence strictly
	// greater than since, in ascending sequence order, after applying f (if
	// non-nil) to skip non-matching revisions at the source.
	ChangesSinceSequence(ctx context.Context, since int64, opts ChangeOptions, f filter.Func, params filter.Params) (*revision.RevisionList, error)

	// LoadRevisionBody loads rev's full body per opts.
	LoadRevisionBody(ctx context.Context, rev revision.Revision, opts LoadOptions) (revision.Revision, error)

	// Notifications returns a channel of change notifications for continuous
	// mode. The channel is closed when the subscription ends.
	Notifications(ctx context.Context) (<-chan Change, error)

	// CompileFilterNamed resolves a filter by name.
	CompileFilterNamed(name string) (filter.Func, error)

	// FileForAttachmentDict returns a local file URL for an attachment
	// dictionary entry (used when streaming large attachments for multipart
	// upload).
	FileForAttachmentDict(attachment map[string]interface{}) (string, error)
}
