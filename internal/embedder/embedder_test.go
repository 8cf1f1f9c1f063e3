package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashEmbedderIsDeterministic(t *testing.T) {
	h := HashEmbedder{}
	a, err := h.Embed(context.Background(), "use postgres for the catalog")
	require.NoError(t, err)
	b, err := h.Embed(context.Background(), "use postgres for the catalog")
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Len(t, a, Dimension)
}

func TestHashEmbedderDistinguishesInputs(t *testing.T) {
	h := HashEmbedder{}
	a, err := h.Embed(context.Background(), "use postgres")
	require.NoError(t, err)
	b, err := h.Embed(context.Background(), "use mysql")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestHashEmbedderValuesAreBounded(t *testing.T) {
	h := HashEmbedder{}
	vec, err := h.Embed(context.Background(), "bounded check")
	require.NoError(t, err)
	for _, v := range vec {
		require.GreaterOrEqual(t, v, -1.0)
		require.LessOrEqual(t, v, 1.0)
	}
}

func TestCosineSimilarityIdenticalVectors(t *testing.T) {
	v := []float64{1, 2, 3}
	require.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-9)
}

func TestCosineSimilarityOrthogonalVectors(t *testing.T) {
	require.InDelta(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
}

func TestCosineSimilarityZeroVectorIsZero(t *testing.T) {
	require.Equal(t, 0.0, CosineSimilarity([]float64{0, 0}, []float64{1, 1}))
}

func TestCosineSimilarityMismatchedLengthIsZero(t *testing.T) {
	require.Equal(t, 0.0, CosineSimilarity([]float64{1, 2}, []float64{1}))
}

func TestOllamaEmbedderAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	o := NewOllamaEmbedder("nomic-embed-text")
	o.baseURL = srv.URL
	require.True(t, o.Available(context.Background()))
}

func TestOllamaEmbedderEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "nomic-embed-text", req.Model)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float64{{0.1, 0.2, 0.3}}})
	}))
	defer srv.Close()

	o := NewOllamaEmbedder("nomic-embed-text")
	o.baseURL = srv.URL
	vec, err := o.Embed(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, []float64{0.1, 0.2, 0.3}, vec)
}

func TestOllamaEmbedderEmbedErrorOnEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{})
	}))
	defer srv.Close()

	o := NewOllamaEmbedder("nomic-embed-text")
	o.baseURL = srv.URL
	_, err := o.Embed(context.Background(), "hello")
	require.Error(t, err)
}
