// Package revision defines the Revision and RevisionList data model shared
// across the push replicator pipeline.
package revision

import (
	"sort"
	"strconv"
	"strings"
)

// Revision is an immutable snapshot of a document identified by (docID,
// revID), assigned a monotonic local sequence when it was stored.
type Revision struct {
	DocID      string
	RevID      string
	Sequence   int64
	Deleted    bool
	Properties map[string]interface{}
}

// Generation returns the numeric generation prefix of RevID ("3-abc" -> 3).
func (r Revision) Generation() int {
	gen, _ := splitRevID(r.RevID)
	return gen
}

func splitRevID(revID string) (int, string) {
	idx := strings.IndexByte(revID, '-')
	if idx < 0 {
		return 0, revID
	}
	gen, err := strconv.Atoi(revID[:idx])
	if err != nil {
		return 0, revID
	}
	return gen, revID[idx+1:]
}

// History returns the full revision-history list encoded as in CouchDB's
// "_revisions" property: {start, ids} becomes ["<start>-<ids[0]>",
// "<start-1>-<ids[1]>", ...].
func (r Revision) History() []string {
	raw, ok := r.Properties["_revisions"]
	if !ok {
		return []string{r.RevID}
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return []string{r.RevID}
	}
	start, ids := revisionsFields(m)
	out := make([]string, 0, len(ids))
	for i, id := range ids {
		out = append(out, strconv.Itoa(start-i)+"-"+id)
	}
	if len(out) == 0 {
		return []string{r.RevID}
	}
	return out
}

func revisionsFields(m map[string]interface{}) (int, []string) {
	start := 0
	switch v := m["start"].(type) {
	case int:
		start = v
	case int64:
		start = int(v)
	case float64:
		start = int(v)
	}
	var ids []string
	switch v := m["ids"].(type) {
	case []string:
		ids = v
	case []interface{}:
		for _, e := range v {
			if s, ok := e.(string); ok {
				ids = append(ids, s)
			}
		}
	}
	return start, ids
}

// RevisionList is an ordered sequence of Revisions used as a batch unit. It
// preserves insertion order (the change feed is monotonic in sequence) while
// still enforcing (docID, revID) uniqueness.
type RevisionList struct {
	revs []Revision
	seen map[string]struct{}
}

// NewRevisionList constructs an empty RevisionList.
func NewRevisionList() *RevisionList {
	return &RevisionList{seen: make(map[string]struct{})}
}

func key(docID, revID string) string { return docID + "\x00" + revID }

// Add appends rev unless its (docID, revID) pair is already present.
// Returns true if the revision was added.
func (l *RevisionList) Add(rev Revision) bool {
	k := key(rev.DocID, rev.RevID)
	if _, dup := l.seen[k]; dup {
		return false
	}
	l.seen[k] = struct{}{}
	l.revs = append(l.revs, rev)
	return true
}

// Len returns the number of revisions in the list.
func (l *RevisionList) Len() int { return len(l.revs) }

// All returns the revisions in insertion order. The returned slice must not
// be mutated by callers.
func (l *RevisionList) All() []Revision { return l.revs }

// ByDocID groups the list's revisions by docID -> [revID...], matching the
// shape CouchDB's _revs_diff expects as a request body.
func (l *RevisionList) ByDocID() map[string][]string {
	out := make(map[string][]string, len(l.revs))
	for _, r := range l.revs {
		out[r.DocID] = append(out[r.DocID], r.RevID)
	}
	return out
}

// SortedSequences returns the distinct sequences carried by the list, in
// ascending order. Used by tests and diagnostics only.
func (l *RevisionList) SortedSequences() []int64 {
	out := make([]int64, 0, len(l.revs))
	for _, r := range l.revs {
		out = append(out, r.Sequence)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
