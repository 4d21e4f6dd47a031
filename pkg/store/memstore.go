package store

import (
	"context"
	"sort"
	"sync"

	"github.com/couchbase-lite-go/pushrepl/pkg/filter"
	"github.com/couchbase-lite-go/pushrepl/pkg/revision"
)

// MemStore is an in-memory reference implementation of ChangeSource, used by
// the test suite and by cmd/pushrepl for local experimentation. It is not
// part of the replicator's product surface — the real local store is an
// external collaborator per spec.md §1.
type MemStore struct {
	mu       sync.Mutex
	nextSeq  int64
	revs     []revision.Revision
	filters  map[string]filter.Func
	subs     []chan Change
	attFiles map[string]string
}

// NewMemStore constructs an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		filters:  make(map[string]filter.Func),
		attFiles: make(map[string]string),
	}
}

// RegisterFilter makes a named filter resolvable via CompileFilterNamed.
func (m *MemStore) RegisterFilter(name string, f filter.Func) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filters[name] = f
}

// PutLocal appends a new revision, assigning it the next sequence, and
// notifies any continuous-mode subscribers. The notification carries source
// as the revision's origin (empty for a local write), so the replicator's
// cycle-break can skip revisions that came from its own remote.
func (m *MemStore) PutLocal(rev revision.Revision, source string) revision.Revision {
	m.mu.Lock()
	m.nextSeq++
	rev.Sequence = m.nextSeq
	m.revs = append(m.revs, rev)
	subs := append([]chan Change(nil), m.subs...)
	m.mu.Unlock()

	change := Change{Revision: rev, Source: source}
	for _, ch := range subs {
		select {
		case ch <- change:
		default:
		}
	}
	return rev
}

// ChangesSinceSequence implements ChangeSource.
func (m *MemStore) ChangesSinceSequence(ctx context.Context, since int64, opts ChangeOptions, f filter.Func, params filter.Params) (*revision.RevisionList, error) {
	m.mu.Lock()
	snapshot := append([]revision.Revision(nil), m.revs...)
	m.mu.Unlock()

	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].Sequence < snapshot[j].Sequence })

	out := revision.NewRevisionList()
	for _, rev := range snapshot {
		if rev.Sequence <= since {
			continue
		}
		if f != nil && !f(rev, params) {
			continue
		}
		out.Add(rev)
	}
	return out, nil
}

// LoadRevisionBody implements ChangeSource. MemStore already stores full
// bodies, so this is a passthrough; opts only affects what a real store
// would trim.
func (m *MemStore) LoadRevisionBody(ctx context.Context, rev revision.Revision, opts LoadOptions) (revision.Revision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.revs {
		if r.DocID == rev.DocID && r.RevID == rev.RevID {
			return r, nil
		}
	}
	return rev, nil
}

// Notifications implements ChangeSource.
func (m *MemStore) Notifications(ctx context.Context) (<-chan Change, error) {
	ch := make(chan Change, 64)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, sub := range m.subs {
			if sub == ch {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

// CompileFilterNamed implements ChangeSource.
func (m *MemStore) CompileFilterNamed(name string) (filter.Func, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.filters[name]
	if !ok {
		return nil, filter.ErrFilterNotFound
	}
	return f, nil
}

// SetAttachmentFile registers a local file URL for an attachment digest, for
// FileForAttachmentDict to resolve.
func (m *MemStore) SetAttachmentFile(digest, fileURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attFiles[digest] = fileURL
}

// FileForAttachmentDict implements ChangeSource.
func (m *MemStore) FileForAttachmentDict(attachment map[string]interface{}) (string, error) {
	digest, _ := attachment["digest"].(string)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attFiles[digest], nil
}
