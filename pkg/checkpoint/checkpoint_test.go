package checkpoint

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchbase-lite-go/pushrepl/pkg/transport"
)

func TestSessionIDStableAndDistinct(t *testing.T) {
	id1 := Identity{LocalDBUUID: "db1", RemoteURL: "http://x/db", Push: true, Filter: "f"}
	id2 := Identity{LocalDBUUID: "db1", RemoteURL: "http://x/db", Push: true, Filter: "f"}
	id3 := Identity{LocalDBUUID: "db1", RemoteURL: "http://x/db", Push: true, Filter: "g"}

	assert.Equal(t, SessionID(id1), SessionID(id2))
	assert.NotEqual(t, SessionID(id1), SessionID(id3))
	assert.GreaterOrEqual(t, len(SessionID(id1)), 10)
}

func TestLoadMissingCheckpointReturnsEmptyLog(t *testing.T) {
	fake := transport.NewFake(func(req transport.Request) (*transport.Response, error) {
		return &transport.Response{StatusCode: 404}, nil
	})
	s := NewStore(fake)
	log, err := s.Load(context.Background(), "sess1")
	require.NoError(t, err)
	assert.Equal(t, "", log.SourceLastSeq)
	assert.Equal(t, "sess1", log.SessionID)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	var stored []byte
	fake := transport.NewFake(func(req transport.Request) (*transport.Response, error) {
		switch req.Method {
		case "PUT":
			b, _ := jsonCopy(req)
			stored = b
			return &transport.Response{StatusCode: 201, Body: []byte(`{"ok":true,"rev":"1-abc"}`)}, nil
		case "GET":
			if stored == nil {
				return &transport.Response{StatusCode: 404}, nil
			}
			return &transport.Response{StatusCode: 200, Body: stored}, nil
		}
		return &transport.Response{StatusCode: 500}, nil
	})
	s := NewStore(fake)
	log := &ReplicationLog{SessionID: "sess1", SourceLastSeq: "42"}
	require.NoError(t, s.Save(context.Background(), log))
	assert.Equal(t, "1-abc", log.Rev)

	loaded, err := s.Load(context.Background(), "sess1")
	require.NoError(t, err)
	assert.Equal(t, "42", loaded.SourceLastSeq)
}

func TestCreateTargetAcceptsDuplicateAsSuccess(t *testing.T) {
	fake := transport.NewFake(func(req transport.Request) (*transport.Response, error) {
		return &transport.Response{StatusCode: 500, Body: []byte(`{"error":"file_exists","reason":"duplicate"}`)}, nil
	})
	assert.NoError(t, CreateTarget(context.Background(), fake))
}

func TestCreateTargetAccepts412(t *testing.T) {
	fake := transport.NewFake(func(req transport.Request) (*transport.Response, error) {
		return &transport.Response{StatusCode: 412}, nil
	})
	assert.NoError(t, CreateTarget(context.Background(), fake))
}

// jsonCopy reads req.Body fully without consuming the original reader twice
// elsewhere in the suite — tests only ever read it once, so a simple read
// suffices.
func jsonCopy(req transport.Request) ([]byte, error) {
	var buf []byte
	tmp := make([]byte, 4096)
	for {
		n, err := req.Body.Read(tmp)
		buf = append(buf, tmp[:n]...)
		if err != nil {
			break
		}
	}
	var v interface{}
	if err := json.Unmarshal(buf, &v); err != nil {
		return nil, err
	}
	return buf, nil
}
