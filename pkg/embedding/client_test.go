package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"memchat-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func embeddingServer(t *testing.T, dims int, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		vector := make([]float32, dims)
		for i := range vector {
			vector[i] = 0.1
		}
		resp := map[string]interface{}{
			"data": []map[string]interface{}{{"embedding": vector}},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestCreateEmbedding(t *testing.T) {
	srv := embeddingServer(t, 8, http.StatusOK)
	defer srv.Close()

	client := NewClient(config.EmbeddingConfig{BaseURL: srv.URL, Model: "text-embedding-3-small", Dimensions: 8})
	vector, err := client.CreateEmbedding(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vector, 8)
}

func TestCreateEmbeddingRejectsEmptyInput(t *testing.T) {
	client := NewClient(config.EmbeddingConfig{BaseURL: "http://unused", Dimensions: 8})

	_, err := client.CreateEmbedding(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestCreateEmbeddingDimensionMismatch(t *testing.T) {
	srv := embeddingServer(t, 4, http.StatusOK)
	defer srv.Close()

	client := NewClient(config.EmbeddingConfig{BaseURL: srv.URL, Dimensions: 8})
	_, err := client.CreateEmbedding(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "维度不匹配")
}

func TestCreateEmbeddingUpstreamError(t *testing.T) {
	srv := embeddingServer(t, 0, http.StatusBadGateway)
	defer srv.Close()

	client := NewClient(config.EmbeddingConfig{BaseURL: srv.URL, Dimensions: 8})
	_, err := client.CreateEmbedding(context.Background(), "hello")
	assert.Error(t, err)
}
