package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalFlatMessage(t *testing.T) {
	data, err := json.Marshal(Message{Role: RoleUser, Content: "hello"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":"hello"}`, string(data))
}

func TestMarshalMultimodalMessage(t *testing.T) {
	msg := Message{
		Role: RoleUser,
		Parts: []Part{
			TextPart("what is in this image?"),
			ImagePart("http://minio.local/bucket/chatgpt-uploads/abc_cat.png"),
		},
	}
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"role": "user",
		"content": [
			{"type": "text", "text": "what is in this image?"},
			{"type": "image_url", "image_url": {"url": "http://minio.local/bucket/chatgpt-uploads/abc_cat.png"}}
		]
	}`, string(data))
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "hi", Message{Role: RoleUser, Content: "hi"}.PlainText())

	msg := Message{Role: RoleUser, Parts: []Part{
		TextPart("a"),
		ImagePart("http://x/i.png"),
		TextPart("b"),
	}}
	assert.Equal(t, "ab", msg.PlainText())
}
