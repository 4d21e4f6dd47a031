package replicator

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/couchbase-lite-go/pushrepl/pkg/batcher"
	"github.com/couchbase-lite-go/pushrepl/pkg/filter"
)

// Config is the replicator's configuration, the analogue of the teacher's
// Migration struct: a plain, caller-populated value validated by a
// normalizeOptions-style method before use.
type Config struct {
	// LocalDBUUID and RemoteURL identify this replication for checkpoint
	// session-ID derivation (spec.md §3).
	LocalDBUUID string
	RemoteURL   string

	// CreateTarget issues PUT / before the first checkpoint load if set
	// (SPEC_FULL.md §4.9).
	CreateTarget bool

	// Continuous enables change-notification subscription after the
	// initial scan completes (spec.md §4.2).
	Continuous bool

	// FilterName, if non-empty, must resolve via the store's
	// CompileFilterNamed before replication starts (spec.md §3/§4.2).
	FilterName   string
	FilterParams filter.Params

	// DocIDs restricts replication to the given document IDs, if non-empty.
	// It participates in checkpoint session-ID derivation.
	DocIDs []string

	// BatchCapacity and BatchFlushInterval override the inbox batcher's
	// defaults (spec.md §4.3); zero means use batcher.DefaultCapacity /
	// batcher.DefaultFlushInterval.
	BatchCapacity      int
	BatchFlushInterval time.Duration

	// Headers holds the replication document's "headers" field (SPEC_FULL.md
	// §6 replication-document surface). The Pusher does not read it, so these
	// headers are not attached to outgoing requests.
	Headers map[string]string
}

// normalizeOptions validates Config and fills in defaults, mirroring
// migration.Migration's normalizeOptions pattern (validate-then-default
// rather than defaulting at field-declaration time).
func (c *Config) normalizeOptions() error {
	if c.RemoteURL == "" {
		return errors.New("replicator: RemoteURL is required")
	}
	if c.LocalDBUUID == "" {
		return errors.New("replicator: LocalDBUUID is required")
	}
	if c.BatchCapacity <= 0 {
		c.BatchCapacity = batcher.DefaultCapacity
	}
	if c.BatchFlushInterval <= 0 {
		c.BatchFlushInterval = batcher.DefaultFlushInterval
	}
	return nil
}

// recognizedReplicationDocFields lists fields FromReplicationDocument
// recognizes; anything else starting with "_" is rejected as reserved, and
// anything else not in this set is simply ignored (forward-compatibility),
// matching CouchDB replicator managers' tolerant parsing.
var recognizedReplicationDocFields = map[string]bool{
	"source":        true,
	"target":        true,
	"create_target": true,
	"continuous":    true,
	"filter":        true,
	"query_params":  true,
	"doc_ids":       true,
	"headers":       true,
	"auth":          true,
}

// FromReplicationDocument parses a generic replication document
// (SPEC_FULL.md §6) into a Config. localDBUUID is supplied by the caller
// (the local store the replication document was submitted to), since it is
// never itself a field of the document.
//
// Reserved ("_internal"-prefixed) fields cause ErrReservedField. Local-to-
// local replication (neither source nor target look like an http(s) URL) is
// rejected with ErrLocalToLocalRequiresCreateTarget unless create_target is
// true.
func FromReplicationDocument(localDBUUID string, doc map[string]interface{}) (*Config, error) {
	for key := range doc {
		if strings.HasPrefix(key, "_") && !recognizedReplicationDocFields[key] {
			return nil, errors.Wrapf(ErrReservedField, "field %q", key)
		}
	}

	cfg := &Config{LocalDBUUID: localDBUUID}

	source, _ := doc["source"].(string)
	target, _ := doc["target"].(string)
	if target != "" {
		cfg.RemoteURL = target
	} else {
		cfg.RemoteURL = source
	}

	if createTarget, ok := doc["create_target"].(bool); ok {
		cfg.CreateTarget = createTarget
	}
	if !isRemoteRef(source) && !isRemoteRef(target) && !cfg.CreateTarget {
		return nil, ErrLocalToLocalRequiresCreateTarget
	}

	if continuous, ok := doc["continuous"].(bool); ok {
		cfg.Continuous = continuous
	}
	if filterName, ok := doc["filter"].(string); ok {
		cfg.FilterName = filterName
	}
	if params, ok := doc["query_params"].(map[string]interface{}); ok {
		cfg.FilterParams = filter.Params(params)
	}
	if docIDs, ok := doc["doc_ids"].([]interface{}); ok {
		for _, d := range docIDs {
			if s, ok := d.(string); ok {
				cfg.DocIDs = append(cfg.DocIDs, s)
			}
		}
	}
	if headers, ok := doc["headers"].(map[string]interface{}); ok {
		cfg.Headers = make(map[string]string, len(headers))
		for k, v := range headers {
			if s, ok := v.(string); ok {
				cfg.Headers[k] = s
			}
		}
	}

	if err := cfg.normalizeOptions(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isRemoteRef(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
