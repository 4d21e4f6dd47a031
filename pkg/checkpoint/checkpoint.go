// Package checkpoint implements the push replicator's persisted checkpoint:
// a session key derived from the replication's identity, a remote-stored
// sequence value, and the replication-log history CouchDB-style replicators
// record alongside it (spec.md §3/§4.8, SPEC_FULL.md §3).
package checkpoint

import (
	"context"
	"crypto/sha1" //nolint:gosec // session ID derivation, not a security boundary
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/couchbase-lite-go/pushrepl/pkg/transport"
)

// Identity is the tuple a session ID is derived from: (localDBUUID,
// remoteURL, push=true, filter, filterParams, docIDs).
type Identity struct {
	LocalDBUUID  string
	RemoteURL    string
	Push         bool
	Filter       string
	FilterParams map[string]interface{}
	DocIDs       []string
}

// SessionID derives a stable session key for Identity. It hashes the
// identity tuple so that two replications with the same source, target,
// direction, filter, and doc_ids share a checkpoint, and any difference
// produces an unrelated one.
func SessionID(id Identity) string {
	parts := []string{id.LocalDBUUID, id.RemoteURL, fmt.Sprintf("%v", id.Push), id.Filter}
	if id.FilterParams != nil {
		b, _ := json.Marshal(id.FilterParams)
		parts = append(parts, string(b))
	}
	sortedDocIDs := append([]string(nil), id.DocIDs...)
	sort.Strings(sortedDocIDs)
	parts = append(parts, strings.Join(sortedDocIDs, ","))

	h := sha1.New() //nolint:gosec
	h.Write([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(h.Sum(nil))
}

// History is one entry of a ReplicationLog's history array.
type History struct {
	DocWriteFailures int    `json:"doc_write_failures"`
	DocsRead         int    `json:"docs_read"`
	DocsWritten      int    `json:"docs_written"`
	EndLastSeq       string `json:"end_last_seq"`
	EndTime          string `json:"end_time"`
	MissingChecked   int    `json:"missing_checked"`
	MissingFound     int    `json:"missing_found"`
	RecordedSeq      string `json:"recorded_seq"`
	SessionID        string `json:"session_id"`
	StartLastSeq     string `json:"start_last_seq"`
	StartTime        string `json:"start_time"`
}

// ReplicationLog is the document persisted at /_local/<sessionID>.
type ReplicationLog struct {
	ID                   string    `json:"_id"`
	Rev                  string    `json:"_rev,omitempty"`
	History              []History `json:"history"`
	ReplicationIDVersion int       `json:"replication_id_version"`
	SessionID            string    `json:"session_id"`
	SourceLastSeq        string    `json:"source_last_seq"`
}

// Store persists and loads a ReplicationLog against the remote's
// /_local/<sessionID> endpoint.
type Store struct {
	Transport transport.Transport
}

// NewStore constructs a checkpoint Store.
func NewStore(t transport.Transport) *Store {
	return &Store{Transport: t}
}

// Load fetches the ReplicationLog for sessionID. A 404 is not an error: it
// means no prior checkpoint exists, and an empty ReplicationLog is returned.
func (s *Store) Load(ctx context.Context, sessionID string) (*ReplicationLog, error) {
	resp, err := s.Transport.SendAsyncRequest(ctx, transport.Request{
		Method: "GET",
		Path:   "/_local/" + sessionID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "checkpoint: load")
	}
	if resp.StatusCode == 404 {
		return &ReplicationLog{ID: "_local/" + sessionID, SessionID: sessionID}, nil
	}
	if resp.StatusCode >= 300 {
		return nil, errors.Errorf("checkpoint: load: unexpected status %d", resp.StatusCode)
	}
	var log ReplicationLog
	if err := json.Unmarshal(resp.Body, &log); err != nil {
		return nil, errors.Wrap(err, "checkpoint: malformed replication log")
	}
	return &log, nil
}

// Save persists log, chaining its _rev so the remote accepts the update.
// The caller is responsible for setting log.SourceLastSeq before calling.
func (s *Store) Save(ctx context.Context, log *ReplicationLog) error {
	body, err := json.Marshal(log)
	if err != nil {
		return errors.Wrap(err, "checkpoint: encode replication log")
	}
	resp, err := s.Transport.SendAsyncRequest(ctx, transport.Request{
		Method:      "PUT",
		Path:        "/_local/" + log.SessionID,
		Body:        strings.NewReader(string(body)),
		ContentType: "application/json",
	})
	if err != nil {
		return errors.Wrap(err, "checkpoint: save")
	}
	if resp.StatusCode >= 300 {
		return errors.Errorf("checkpoint: save: unexpected status %d", resp.StatusCode)
	}
	var ack struct {
		Rev string `json:"rev"`
	}
	if err := json.Unmarshal(resp.Body, &ack); err == nil && ack.Rev != "" {
		log.Rev = ack.Rev
	}
	return nil
}

// CreateTarget issues PUT / against the remote to create the target
// database, per spec.md §4.1 / SPEC_FULL.md §4.9. 201, 412, and a response
// carrying "duplicate" or "file_exists" are all treated as success.
func CreateTarget(ctx context.Context, t transport.Transport) error {
	resp, err := t.SendAsyncRequest(ctx, transport.Request{Method: "PUT", Path: "/"})
	if err != nil {
		return errors.Wrap(err, "checkpoint: create target")
	}
	if resp.StatusCode == 201 || resp.StatusCode == 412 {
		return nil
	}
	body := string(resp.Body)
	if strings.Contains(body, "duplicate") || strings.Contains(body, "file_exists") {
		return nil
	}
	if resp.StatusCode >= 300 {
		return errors.Errorf("checkpoint: create target: unexpected status %d: %s", resp.StatusCode, body)
	}
	return nil
}
