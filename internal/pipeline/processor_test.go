package pipeline

import (
	"context"
	"testing"

	"memchat-go/internal/model"
	"memchat-go/internal/service"
	"memchat-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMemory struct {
	texts []string
	opts  []service.MemoryAddOptions
}

func (m *recordingMemory) Add(_ context.Context, text string, opts service.MemoryAddOptions) error {
	m.texts = append(m.texts, text)
	m.opts = append(m.opts, opts)
	return nil
}

func (m *recordingMemory) Search(_ context.Context, _ string, _ service.MemorySearchOptions) ([]model.MemoryFact, error) {
	return nil, nil
}

func (m *recordingMemory) ListAll(_ context.Context, _ string) ([]model.MemoryFact, error) {
	return nil, nil
}

func (m *recordingMemory) DeleteForChat(_ context.Context, _, _ string) error { return nil }

func TestProcessWritesFormattedFact(t *testing.T) {
	memory := &recordingMemory{}
	p := NewProcessor(memory)

	task := tasks.MemoryTask{
		UserID:         "u1",
		ChatID:         "507f1f77bcf86cd799439011",
		Query:          "how do I set up redis?",
		Summary:        "explained redis installation steps",
		ResponseLength: 420,
		HasFiles:       true,
	}
	require.NoError(t, p.Process(context.Background(), task))

	require.Len(t, memory.texts, 1)
	assert.Equal(t, "User asked: how do I set up redis? Assistant responded about: explained redis installation steps", memory.texts[0])

	opts := memory.opts[0]
	assert.Equal(t, "u1", opts.UserID)
	assert.Equal(t, "507f1f77bcf86cd799439011", opts.ChatID)
	assert.Equal(t, "how do I set up redis?", opts.Metadata["query"])
	assert.Equal(t, 420, opts.Metadata["response_length"])
	assert.Equal(t, true, opts.Metadata["has_files"])
	assert.Equal(t, false, opts.Metadata["has_images"])
}

func TestProcessSkipsEmptyExchange(t *testing.T) {
	memory := &recordingMemory{}
	p := NewProcessor(memory)

	require.NoError(t, p.Process(context.Background(), tasks.MemoryTask{UserID: "u1", ChatID: "c1"}))
	assert.Empty(t, memory.texts)
}

func TestFormatFactQueryOnly(t *testing.T) {
	fact := formatFact(tasks.MemoryTask{Query: "hello"})
	assert.Equal(t, "User asked: hello", fact)
}
