package revision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func withHistory(revID string, start int, ids []string) Revision {
	return Revision{
		RevID: revID,
		Properties: map[string]interface{}{
			"_revisions": map[string]interface{}{
				"start": start,
				"ids":   ids,
			},
		},
	}
}

func TestHistory(t *testing.T) {
	rev := withHistory("2-second", 2, []string{"second", "first"})
	assert.Equal(t, []string{"2-second", "1-first"}, rev.History())
}

func TestFindCommonAncestor(t *testing.T) {
	rev := withHistory("2-second", 2, []string{"second", "first"})

	assert.Equal(t, 0, FindCommonAncestor(rev, nil))
	assert.Equal(t, 0, FindCommonAncestor(rev, []string{"3-noway", "1-nope"}))
	assert.Equal(t, 1, FindCommonAncestor(rev, []string{"3-noway", "1-first"}))
	assert.Equal(t, 2, FindCommonAncestor(rev, []string{"3-noway", "2-second", "1-first"}))
}

func TestRevisionListUniqueness(t *testing.T) {
	l := NewRevisionList()
	assert.True(t, l.Add(Revision{DocID: "doc1", RevID: "1-a", Sequence: 1}))
	assert.False(t, l.Add(Revision{DocID: "doc1", RevID: "1-a", Sequence: 1}))
	assert.True(t, l.Add(Revision{DocID: "doc1", RevID: "2-b", Sequence: 2}))
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, []int64{1, 2}, l.SortedSequences())
	assert.Equal(t, map[string][]string{"doc1": {"1-a", "2-b"}}, l.ByDocID())
}
