package upload

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/couchbase-lite-go/pushrepl/pkg/canonicaljson"
	"github.com/couchbase-lite-go/pushrepl/pkg/revision"
	"github.com/couchbase-lite-go/pushrepl/pkg/transport"
)

// StatusUnsupportedMediaType is the status the remote returns when it does
// not support multipart/related uploads (spec.md §4.6).
const StatusUnsupportedMediaType = 415

// AttachmentFileResolver resolves an attachment dictionary entry to a local
// file it can be streamed from (the out-of-scope local-store collaborator,
// spec.md §6).
type AttachmentFileResolver interface {
	FileForAttachmentDict(attachment map[string]interface{}) (string, error)
}

// MultipartUploader uploads a single revision via multipart/related,
// streaming each "follows": true attachment as its own MIME part in
// canonical-JSON key order (spec.md §4.6).
type MultipartUploader struct {
	Transport transport.Transport
	Files     AttachmentFileResolver
}

// NewMultipartUploader constructs a MultipartUploader.
func NewMultipartUploader(t transport.Transport, files AttachmentFileResolver) *MultipartUploader {
	return &MultipartUploader{Transport: t, Files: files}
}

// Upload PUTs rev to <docID-escaped>?new_edits=false as multipart/related.
// Returns the remote's status code; callers must treat
// StatusUnsupportedMediaType as the multipart-disabled fallback signal
// rather than a hard failure.
func (m *MultipartUploader) Upload(ctx context.Context, rev revision.Revision) (int, error) {
	body, contentType, err := m.buildMultipartBody(rev)
	if err != nil {
		return 0, errors.Wrap(err, "multipart upload: build body")
	}
	resp, err := m.Transport.SendAsyncRequest(ctx, transport.Request{
		Method:      "PUT",
		Path:        "/" + url.PathEscape(rev.DocID),
		Query:       map[string]string{"new_edits": "false"},
		Body:        strings.NewReader(body.String()),
		ContentType: contentType,
	})
	if err != nil {
		return 0, errors.Wrap(err, "multipart upload: request")
	}
	return resp.StatusCode, nil
}

// UploadInline PUTs rev as a plain JSON document (no multipart/related),
// used for the multipart-disabled fallback once the remote has rejected a
// multipart request with 415 (spec.md §4.6). Callers must have already
// inlined any "follows" attachments as base64 "data" via InlineAttachments.
func (m *MultipartUploader) UploadInline(ctx context.Context, rev revision.Revision) (int, error) {
	body, err := canonicaljson.Marshal(rev.Properties)
	if err != nil {
		return 0, errors.Wrap(err, "inline upload: encode body")
	}
	resp, err := m.Transport.SendAsyncRequest(ctx, transport.Request{
		Method:      "PUT",
		Path:        "/" + url.PathEscape(rev.DocID),
		Query:       map[string]string{"new_edits": "false"},
		Body:        strings.NewReader(string(body)),
		ContentType: "application/json",
	})
	if err != nil {
		return 0, errors.Wrap(err, "inline upload: request")
	}
	return resp.StatusCode, nil
}

func (m *MultipartUploader) buildMultipartBody(rev revision.Revision) (*strings.Builder, string, error) {
	var buf strings.Builder
	w := multipart.NewWriter(&buf)

	jsonPart, err := canonicaljson.Marshal(rev.Properties)
	if err != nil {
		return nil, "", errors.Wrap(err, "encode json part")
	}
	jh := make(textproto.MIMEHeader)
	jh.Set("Content-Type", "application/json")
	pw, err := w.CreatePart(jh)
	if err != nil {
		return nil, "", err
	}
	if _, err := pw.Write(jsonPart); err != nil {
		return nil, "", err
	}

	// Parts must follow the same order as the canonical JSON encoding of
	// "_attachments", because the server pairs MIME parts to attachment
	// entries positionally.
	atts := Attachments(rev)
	for _, name := range canonicaljson.AttachmentOrder(rev.Properties) {
		entry, _ := atts[name].(map[string]interface{})
		follows, _ := entry["follows"].(bool)
		if !follows {
			continue
		}
		if err := m.writeAttachmentPart(w, name, entry); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, "multipart/related; boundary=" + w.Boundary(), nil
}

func (m *MultipartUploader) writeAttachmentPart(w *multipart.Writer, name string, entry map[string]interface{}) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, name))
	if ct, _ := entry["content_type"].(string); ct != "" {
		h.Set("Content-Type", ct)
	} else if ct, _ := entry["type"].(string); ct != "" {
		h.Set("Content-Type", ct)
	}
	if enc, _ := entry["encoding"].(string); enc != "" {
		h.Set("Content-Encoding", enc)
	}
	pw, err := w.CreatePart(h)
	if err != nil {
		return err
	}

	fileURL, err := m.Files.FileForAttachmentDict(entry)
	if err != nil {
		return errors.Wrapf(err, "resolve attachment file for %q", name)
	}
	f, err := os.Open(strings.TrimPrefix(fileURL, "file://"))
	if err != nil {
		return errors.Wrapf(err, "open attachment file for %q", name)
	}
	defer f.Close()
	_, err = io.Copy(pw, f)
	return err
}
