// Package canonicaljson implements the canonical (lexicographically
// key-sorted) JSON encoding the multipart upload path depends on: the MIME
// parts of a multipart/related request must be ordered the same way the
// JSON object's "_attachments" keys are ordered once encoded, because the
// server pairs parts to attachment entries positionally (spec.md §4.6).
//
// This is one of the few pieces of the replicator built directly on the
// standard library rather than a pack dependency: the spec names the
// canonical encoder as an external collaborator, and no example repo in the
// retrieval pack ships a canonical-JSON library, so encoding/json plus a
// manual key sort is the idiomatic stdlib answer.
package canonicaljson

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Marshal encodes v as canonical JSON: object keys at every nesting level are
// sorted lexicographically by their UTF-8 byte representation.
func Marshal(v interface{}) ([]byte, error) {
	normalized := normalize(v)
	return json.Marshal(normalized)
}

// AttachmentOrder returns the keys of the "_attachments" property of props,
// in the order they will appear in the canonical encoding of props. Returns
// nil if props carries no attachments.
func AttachmentOrder(props map[string]interface{}) []string {
	raw, ok := props["_attachments"]
	if !ok {
		return nil
	}
	atts, ok := raw.(map[string]interface{})
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(atts))
	for k := range atts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// normalize deep-copies nested maps and slices. encoding/json already sorts
// map[string]interface{} keys when marshaling, so the copy is what this
// function contributes: it insulates callers from in-place attachment
// stubbing.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}

// Equal reports whether the canonical encodings of a and b are
// byte-identical.
func Equal(a, b interface{}) (bool, error) {
	ab, err := Marshal(a)
	if err != nil {
		return false, err
	}
	bb, err := Marshal(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ab, bb), nil
}
