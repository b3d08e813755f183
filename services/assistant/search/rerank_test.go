package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopgraph/shopgraph/services/assistant/datatypes"
)

func newRerankServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *RESTReranker) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	r, err := NewRESTReranker(RerankConfig{
		Endpoint: srv.URL,
		APIKey:   "test-key",
		Model:    "jina-reranker-v2-base-multilingual",
		Timeout:  2 * time.Second,
	})
	require.NoError(t, err)
	return srv, r
}

func TestRerank_RequestShapeAndParsing(t *testing.T) {
	var gotBody map[string]any
	var gotAuth string
	_, r := newRerankServer(t, func(w http.ResponseWriter, req *http.Request) {
		gotAuth = req.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(req.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"index": 2, "relevance_score": 0.95},
				{"index": 0, "relevance_score": 0.80},
			},
		})
	})

	docs := []string{"doc a", "doc b", "doc c"}
	ranked, err := r.Rerank(context.Background(), "my query", docs, 2)
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "my query", gotBody["query"])
	assert.Equal(t, "jina-reranker-v2-base-multilingual", gotBody["model"])
	assert.Equal(t, float64(2), gotBody["top_n"])

	require.Len(t, ranked, 2)
	assert.Equal(t, 2, ranked[0].Index)
	assert.Equal(t, 0.95, ranked[0].Score)
	assert.Equal(t, 0, ranked[1].Index)
}

func TestRerank_EmptyDocumentsSkipsNetwork(t *testing.T) {
	called := false
	_, r := newRerankServer(t, func(w http.ResponseWriter, req *http.Request) {
		called = true
	})

	ranked, err := r.Rerank(context.Background(), "query", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, ranked)
	assert.False(t, called)
}

func TestRerank_DropsOutOfRangeIndicesAndEnforcesLimit(t *testing.T) {
	_, r := newRerankServer(t, func(w http.ResponseWriter, req *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"index": 5, "relevance_score": 0.99},
				{"index": 1, "relevance_score": 0.90},
				{"index": -1, "relevance_score": 0.85},
				{"index": 0, "relevance_score": 0.80},
				{"index": 2, "relevance_score": 0.70},
			},
		})
	})

	ranked, err := r.Rerank(context.Background(), "query", []string{"a", "b", "c"}, 2)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, 1, ranked[0].Index)
	assert.Equal(t, 0, ranked[1].Index)
}

func TestRerank_NonOKStatusIsUnavailable(t *testing.T) {
	_, r := newRerankServer(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := r.Rerank(context.Background(), "query", []string{"a"}, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, datatypes.ErrExternalUnavailable))
}

func TestRerank_TimeoutIsExternalTimeout(t *testing.T) {
	_, r := newRerankServer(t, func(w http.ResponseWriter, req *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Rerank(ctx, "query", []string{"a"}, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, datatypes.ErrExternalTimeout))
}

func TestNewRESTReranker_Validation(t *testing.T) {
	_, err := NewRESTReranker(RerankConfig{Model: "m"})
	assert.Error(t, err)

	_, err = NewRESTReranker(RerankConfig{Endpoint: "http://localhost"})
	assert.Error(t, err)
}
