package rerank

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devflowinc/trieve-sub001/internal/embedding"
)

func TestRerank_SortsByScoreDescending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"index":0,"score":0.1},{"index":1,"score":0.9}]`))
	}))
	defer srv.Close()

	client := NewClient(embedding.NewRerankClient(srv.URL, nil), nil)
	out := client.Rerank(context.Background(), "q", []Candidate{
		{ID: "a", Text: "doc a"},
		{ID: "b", Text: "doc b"},
	}, 10)

	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].ID)
	assert.Equal(t, "a", out[1].ID)
}

func TestRerank_FallsBackOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(embedding.NewRerankClient(srv.URL, nil), nil)
	candidates := []Candidate{{ID: "a", Text: "doc a"}, {ID: "b", Text: "doc b"}}
	out := client.Rerank(context.Background(), "q", candidates, 10)

	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "b", out[1].ID)
}

func TestRerank_TruncatesToPageSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"index":0,"score":0.5},{"index":1,"score":0.9},{"index":2,"score":0.1}]`))
	}))
	defer srv.Close()

	client := NewClient(embedding.NewRerankClient(srv.URL, nil), nil)
	out := client.Rerank(context.Background(), "q", []Candidate{
		{ID: "a", Text: "a"}, {ID: "b", Text: "b"}, {ID: "c", Text: "c"},
	}, 1)

	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].ID)
}
