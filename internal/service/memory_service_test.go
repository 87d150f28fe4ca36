package service

import (
	"context"
	"errors"
	"testing"

	"memchat-go/internal/config"
	"memchat-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (f *fakeEmbedder) CreateEmbedding(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	return f.vector, f.err
}

type fakeFactIndex struct {
	indexed  []model.MemoryDocument
	hits     []model.MemoryFact
	listed   []model.MemoryFact
	deleted  []string
	indexErr error
	hitsErr  error
}

func (f *fakeFactIndex) Index(_ context.Context, doc model.MemoryDocument) error {
	if f.indexErr != nil {
		return f.indexErr
	}
	f.indexed = append(f.indexed, doc)
	return nil
}

func (f *fakeFactIndex) SearchByVector(_ context.Context, _ string, _ []float32, _ int) ([]model.MemoryFact, error) {
	return f.hits, f.hitsErr
}

func (f *fakeFactIndex) ListByUser(_ context.Context, _ string) ([]model.MemoryFact, error) {
	return f.listed, nil
}

func (f *fakeFactIndex) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func memoryCfg() config.MemoryConfig {
	return config.MemoryConfig{ScoreThreshold: 0.5, SearchLimit: 15}
}

func TestMemorySearchFiltersByThreshold(t *testing.T) {
	index := &fakeFactIndex{hits: []model.MemoryFact{
		{ID: "a", Memory: "likes go", Score: 0.9},
		{ID: "b", Memory: "asked about redis", Score: 0.5},
		{ID: "c", Memory: "noise", Score: 0.2},
	}}
	svc := NewMemoryService(&fakeEmbedder{vector: []float32{0.1}}, index, memoryCfg())

	facts, err := svc.Search(context.Background(), "go", MemorySearchOptions{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, "a", facts[0].ID)
	assert.Equal(t, "b", facts[1].ID)
}

func TestMemorySearchDeduplicatesAndCaps(t *testing.T) {
	index := &fakeFactIndex{hits: []model.MemoryFact{
		{ID: "a", Score: 0.9},
		{ID: "a", Score: 0.9},
		{ID: "b", Score: 0.8},
		{ID: "c", Score: 0.7},
	}}
	svc := NewMemoryService(&fakeEmbedder{vector: []float32{0.1}}, index, memoryCfg())

	facts, err := svc.Search(context.Background(), "q", MemorySearchOptions{UserID: "u1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, "a", facts[0].ID)
	assert.Equal(t, "b", facts[1].ID)
}

func TestMemorySearchEmbeddingError(t *testing.T) {
	svc := NewMemoryService(&fakeEmbedder{err: errors.New("api down")}, &fakeFactIndex{}, memoryCfg())

	_, err := svc.Search(context.Background(), "q", MemorySearchOptions{UserID: "u1"})
	assert.Error(t, err)
}

func TestMemoryServiceDisabledIsNoOp(t *testing.T) {
	svc := NewMemoryService(nil, nil, memoryCfg())

	require.NoError(t, svc.Add(context.Background(), "fact", MemoryAddOptions{UserID: "u1"}))

	facts, err := svc.Search(context.Background(), "q", MemorySearchOptions{UserID: "u1"})
	require.NoError(t, err)
	assert.Empty(t, facts)

	all, err := svc.ListAll(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, all)

	assert.NoError(t, svc.DeleteForChat(context.Background(), "u1", "c1"))
}

func TestMemoryAddWritesDocument(t *testing.T) {
	index := &fakeFactIndex{}
	svc := NewMemoryService(&fakeEmbedder{vector: []float32{0.1, 0.2}}, index, memoryCfg())

	err := svc.Add(context.Background(), "user prefers short answers", MemoryAddOptions{
		UserID:   "u1",
		ChatID:   "507f1f77bcf86cd799439011",
		Metadata: map[string]interface{}{"has_files": false},
	})
	require.NoError(t, err)
	require.Len(t, index.indexed, 1)

	doc := index.indexed[0]
	assert.Equal(t, "u1", doc.UserID)
	assert.Equal(t, "user prefers short answers", doc.Memory)
	assert.Equal(t, []float32{0.1, 0.2}, doc.Vector)
	assert.Equal(t, "507f1f77bcf86cd799439011", doc.Metadata["chat_id"])
	assert.Equal(t, false, doc.Metadata["has_files"])
	assert.NotEmpty(t, doc.MemoryID)
}

func TestDeleteForChatOnlyTargetsChat(t *testing.T) {
	index := &fakeFactIndex{listed: []model.MemoryFact{
		{ID: "a", Metadata: map[string]interface{}{"chat_id": "c1"}},
		{ID: "b", Metadata: map[string]interface{}{"chat_id": "c2"}},
		{ID: "c", Metadata: map[string]interface{}{"chat_id": "c1"}},
		{ID: "d"},
	}}
	svc := NewMemoryService(&fakeEmbedder{vector: []float32{0.1}}, index, memoryCfg())

	require.NoError(t, svc.DeleteForChat(context.Background(), "u1", "c1"))
	assert.ElementsMatch(t, []string{"a", "c"}, index.deleted)
}
