package canonicaljson

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarshalSortsKeys(t *testing.T) {
	b, err := Marshal(map[string]interface{}{"b": 1, "a": 2, "c": 3})
	assert.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1,"c":3}`, string(b))
}

func TestAttachmentOrder(t *testing.T) {
	props := map[string]interface{}{
		"_id": "doc1",
		"_attachments": map[string]interface{}{
			"zeta":  map[string]interface{}{"follows": true},
			"alpha": map[string]interface{}{"follows": true},
		},
	}
	assert.Equal(t, []string{"alpha", "zeta"}, AttachmentOrder(props))
}

func TestAttachmentOrderNoAttachments(t *testing.T) {
	assert.Nil(t, AttachmentOrder(map[string]interface{}{"_id": "doc1"}))
}
