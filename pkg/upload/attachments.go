package upload

import "github.com/couchbase-lite-go/pushrepl/pkg/revision"

// Attachments returns rev's "_attachments" map, or nil if it carries none.
func Attachments(rev revision.Revision) map[string]interface{} {
	raw, ok := rev.Properties["_attachments"]
	if !ok {
		return nil
	}
	atts, ok := raw.(map[string]interface{})
	if !ok {
		return nil
	}
	return atts
}

// StubAncestorAttachments mutates rev's "_attachments" entries in place,
// replacing any attachment whose revpos <= ancestorGeneration with a stub
// (spec.md §4.5): the remote already has that attachment under the common
// ancestor revision, so there is no need to re-upload it.
func StubAncestorAttachments(rev revision.Revision, ancestorGeneration int) {
	if ancestorGeneration <= 0 {
		return
	}
	atts := Attachments(rev)
	for name, raw := range atts {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		revpos, _ := toInt(entry["revpos"])
		if revpos > 0 && revpos <= ancestorGeneration {
			atts[name] = map[string]interface{}{
				"stub":         true,
				"revpos":       revpos,
				"digest":       entry["digest"],
				"length":       entry["length"],
				"content_type": entry["content_type"],
			}
		}
	}
}

// HasFollowingAttachments reports whether rev still carries any attachment
// marked "follows": true after stubbing — the signal that it must go through
// the multipart path rather than bulk (spec.md §4.5).
func HasFollowingAttachments(rev revision.Revision) bool {
	for _, raw := range Attachments(rev) {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if follows, _ := entry["follows"].(bool); follows {
			return true
		}
	}
	return false
}

// InlineAttachments replaces every "follows": true attachment entry's
// "follows" flag with inline base64 "data", for the multipart-disabled
// fallback path (spec.md §4.6). dataFor supplies the base64 payload for a
// named attachment.
func InlineAttachments(rev revision.Revision, dataFor func(name string, entry map[string]interface{}) (string, error)) error {
	atts := Attachments(rev)
	for name, raw := range atts {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		follows, _ := entry["follows"].(bool)
		if !follows {
			continue
		}
		data, err := dataFor(name, entry)
		if err != nil {
			return err
		}
		delete(entry, "follows")
		entry["data"] = data
	}
	return nil
}
