package replicator

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/couchbase-lite-go/pushrepl/pkg/filter"
	"github.com/couchbase-lite-go/pushrepl/pkg/revision"
	"github.com/couchbase-lite-go/pushrepl/pkg/store"
	"github.com/couchbase-lite-go/pushrepl/pkg/transport"
)

const testRemoteURL = "http://remote.example/db"

// TestMain verifies every Pusher under test leaves no goroutine behind after
// Stop returns, the executor/eg join spec.md §5 depends on.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, cond(), "condition never became true")
}

// bulkDocsAllOK answers every _revs_diff with "everything missing" and every
// _bulk_docs with unconditional per-doc success.
func bulkDocsAllOK() func(req transport.Request) (*transport.Response, error) {
	var bulkRequests []map[string]interface{}
	return func(req transport.Request) (*transport.Response, error) {
		switch {
		case req.Path == "/_local/" || strings.HasPrefix(req.Path, "/_local/"):
			if req.Method == "GET" {
				return &transport.Response{StatusCode: 404}, nil
			}
			return &transport.Response{StatusCode: 201, Body: []byte(`{"ok":true,"rev":"0-1"}`)}, nil
		case req.Path == "/_revs_diff":
			var reqBody map[string][]string
			_ = json.NewDecoder(req.Body).Decode(&reqBody)
			resp := map[string]interface{}{}
			for docID, revs := range reqBody {
				resp[docID] = map[string]interface{}{"missing": revs}
			}
			b, _ := json.Marshal(resp)
			return &transport.Response{StatusCode: 200, Body: b}, nil
		case req.Path == "/_bulk_docs":
			var body map[string]interface{}
			_ = json.NewDecoder(req.Body).Decode(&body)
			docs, _ := body["docs"].([]interface{})
			items := make([]map[string]interface{}, len(docs))
			for i, d := range docs {
				m, _ := d.(map[string]interface{})
				bulkRequests = append(bulkRequests, m)
				items[i] = map[string]interface{}{"id": m["_id"], "rev": m["_rev"]}
			}
			b, _ := json.Marshal(items)
			return &transport.Response{StatusCode: 201, Body: b}, nil
		default:
			return &transport.Response{StatusCode: 200, Body: []byte(`{}`)}, nil
		}
	}
}

func newTestPusher(t *testing.T, cfg Config, mem *store.MemStore, handler func(transport.Request) (*transport.Response, error)) (*Pusher, *transport.Fake) {
	t.Helper()
	fake := transport.NewFake(handler)
	if cfg.LocalDBUUID == "" {
		cfg.LocalDBUUID = "local-uuid"
	}
	if cfg.RemoteURL == "" {
		cfg.RemoteURL = testRemoteURL
	}
	cfg.BatchCapacity = 10
	cfg.BatchFlushInterval = 20 * time.Millisecond
	p, err := NewPusher(cfg, mem, fake, nil, nil)
	require.NoError(t, err)
	return p, fake
}

func TestBasicPushDeliversAllRevisions(t *testing.T) {
	mem := store.NewMemStore()
	mem.PutLocal(revision.Revision{DocID: "doc1", RevID: "2-b", Properties: map[string]interface{}{"_id": "doc1", "_rev": "2-b"}}, "")
	mem.PutLocal(revision.Revision{DocID: "doc2", RevID: "1-c", Properties: map[string]interface{}{"_id": "doc2", "_rev": "1-c"}}, "")

	p, fake := newTestPusher(t, Config{}, mem, bulkDocsAllOK())

	require.NoError(t, p.Start(context.Background()))
	waitFor(t, func() bool { return p.Status().State == StateStopped })

	status := p.Status()
	assert.Equal(t, int64(2), status.LastSequence)
	assert.Equal(t, 2, status.ChangesProcessed)

	var sawDoc1, sawDoc2 bool
	for _, req := range fake.RequestsSnapshot() {
		if req.Path == "/_bulk_docs" {
			var body map[string]interface{}
			_ = json.NewDecoder(req.Body).Decode(&body)
			for _, d := range body["docs"].([]interface{}) {
				m := d.(map[string]interface{})
				if m["_id"] == "doc1" {
					sawDoc1 = true
				}
				if m["_id"] == "doc2" {
					sawDoc2 = true
				}
			}
		}
	}
	assert.True(t, sawDoc1)
	assert.True(t, sawDoc2)
}

func TestFilterAbsentStopsBeforeAnyUpload(t *testing.T) {
	mem := store.NewMemStore()
	mem.PutLocal(revision.Revision{DocID: "doc1", RevID: "1-a", Properties: map[string]interface{}{"_id": "doc1", "_rev": "1-a"}}, "")

	p, fake := newTestPusher(t, Config{FilterName: "missing"}, mem, bulkDocsAllOK())

	err := p.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, filter.ErrFilterNotFound)
	assert.Equal(t, StateStopped, p.Status().State)
	assert.Error(t, p.Status().Err)

	for _, req := range fake.RequestsSnapshot() {
		assert.NotEqual(t, "/_bulk_docs", req.Path)
	}
}

func TestContinuousModeCycleBreak(t *testing.T) {
	mem := store.NewMemStore()
	var filterCalls int32
	mem.RegisterFilter("count", func(rev revision.Revision, params filter.Params) bool {
		atomic.AddInt32(&filterCalls, 1)
		return true
	})

	p, fake := newTestPusher(t, Config{Continuous: true, FilterName: "count"}, mem, bulkDocsAllOK())
	require.NoError(t, p.Start(context.Background()))
	waitFor(t, func() bool { return p.Status().State == StateIdle })

	// A revision whose source is this replicator's own remote URL must be
	// skipped without even consulting the filter (spec.md §4.2 cycle break).
	mem.PutLocal(revision.Revision{DocID: "cycled", RevID: "1-a", Properties: map[string]interface{}{"_id": "cycled", "_rev": "1-a"}}, testRemoteURL)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&filterCalls))

	mem.PutLocal(revision.Revision{DocID: "pushed", RevID: "1-a", Properties: map[string]interface{}{"_id": "pushed", "_rev": "1-a"}}, "")
	waitFor(t, func() bool { return atomic.LoadInt32(&filterCalls) == 1 })

	waitFor(t, func() bool {
		for _, req := range fake.RequestsSnapshot() {
			if req.Path != "/_bulk_docs" {
				continue
			}
			var body map[string]interface{}
			_ = json.NewDecoder(req.Body).Decode(&body)
			for _, d := range body["docs"].([]interface{}) {
				m := d.(map[string]interface{})
				if m["_id"] == "cycled" {
					t.Fatalf("cycled revision must never be uploaded")
				}
				if m["_id"] == "pushed" {
					return true
				}
			}
		}
		return false
	})

	require.NoError(t, p.Stop(context.Background()))
}

func TestCheckpointAfterPartialFailure(t *testing.T) {
	mem := store.NewMemStore()
	mem.PutLocal(revision.Revision{DocID: "doc5", RevID: "1-a", Properties: map[string]interface{}{"_id": "doc5", "_rev": "1-a"}}, "")
	mem.PutLocal(revision.Revision{DocID: "doc6", RevID: "1-a", Properties: map[string]interface{}{"_id": "doc6", "_rev": "1-a"}}, "")
	mem.PutLocal(revision.Revision{DocID: "doc7", RevID: "1-a", Properties: map[string]interface{}{"_id": "doc7", "_rev": "1-a"}}, "")

	handler := func(req transport.Request) (*transport.Response, error) {
		switch req.Path {
		case "/_revs_diff":
			var reqBody map[string][]string
			_ = json.NewDecoder(req.Body).Decode(&reqBody)
			resp := map[string]interface{}{}
			for docID, revs := range reqBody {
				resp[docID] = map[string]interface{}{"missing": revs}
			}
			b, _ := json.Marshal(resp)
			return &transport.Response{StatusCode: 200, Body: b}, nil
		case "/_bulk_docs":
			var body map[string]interface{}
			_ = json.NewDecoder(req.Body).Decode(&body)
			docs, _ := body["docs"].([]interface{})
			items := make([]map[string]interface{}, len(docs))
			for i, d := range docs {
				m := d.(map[string]interface{})
				if m["_id"] == "doc6" {
					items[i] = map[string]interface{}{"id": "doc6", "error": "forbidden", "reason": "nope"}
				} else {
					items[i] = map[string]interface{}{"id": m["_id"], "rev": m["_rev"]}
				}
			}
			b, _ := json.Marshal(items)
			return &transport.Response{StatusCode: 201, Body: b}, nil
		default:
			if req.Method == "GET" {
				return &transport.Response{StatusCode: 404}, nil
			}
			return &transport.Response{StatusCode: 201, Body: []byte(`{"ok":true,"rev":"0-1"}`)}, nil
		}
	}

	p, _ := newTestPusher(t, Config{}, mem, handler)
	require.NoError(t, p.Start(context.Background()))

	// doc5 and doc7 (sequences 1, 3) are acknowledged; doc6 (sequence 2) is
	// forbidden and stays pending, so the checkpoint can only advance to 1
	// (min_pending-1, i.e. 2-1) until doc6 is retried and resolved; it never
	// reaches 3.
	waitFor(t, func() bool { return p.Status().ChangesProcessed >= 2 })
	assert.Equal(t, int64(1), p.Status().LastSequence)

	assert.False(t, p.pending.Empty())
	min, ok := p.pending.Min()
	require.True(t, ok)
	assert.Equal(t, int64(2), min)

	require.NoError(t, p.Stop(context.Background()))
}

func TestStartTwiceReturnsErrAlreadyRunning(t *testing.T) {
	mem := store.NewMemStore()
	// Continuous mode so reaching Idle does not auto-stop the replicator out
	// from under the second Start call.
	p, _ := newTestPusher(t, Config{Continuous: true}, mem, bulkDocsAllOK())
	require.NoError(t, p.Start(context.Background()))
	waitFor(t, func() bool { return p.Status().State == StateIdle })
	err := p.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	require.NoError(t, p.Stop(context.Background()))
}

func TestConfigFromReplicationDocumentRejectsReservedField(t *testing.T) {
	_, err := FromReplicationDocument("local-uuid", map[string]interface{}{
		"source":    "http://remote.example/db",
		"_internal": "nope",
	})
	assert.ErrorIs(t, err, ErrReservedField)
}

func TestConfigFromReplicationDocumentRejectsLocalToLocal(t *testing.T) {
	_, err := FromReplicationDocument("local-uuid", map[string]interface{}{
		"source": "my-local-db",
		"target": "another-local-db",
	})
	assert.ErrorIs(t, err, ErrLocalToLocalRequiresCreateTarget)
}

func TestConfigFromReplicationDocumentAcceptsRemoteTarget(t *testing.T) {
	cfg, err := FromReplicationDocument("local-uuid", map[string]interface{}{
		"source":     "my-local-db",
		"target":     testRemoteURL,
		"continuous": true,
		"filter":     "myfilter",
	})
	require.NoError(t, err)
	assert.Equal(t, testRemoteURL, cfg.RemoteURL)
	assert.True(t, cfg.Continuous)
	assert.Equal(t, "myfilter", cfg.FilterName)
}
