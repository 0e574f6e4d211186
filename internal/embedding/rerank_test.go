package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRerankClientReturnsScores(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/rerank")
		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := []rerankResponseItem{
			{Index: 1, Score: 0.9},
			{Index: 0, Score: 0.2},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	client := NewRerankClient(srv.URL, nil)
	out, err := client.Rerank(context.Background(), "q", []string{"doc a", "doc b"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0].Index)
	assert.Equal(t, float32(0.9), out[0].Score)
}

func TestRerankClientEmptyDocs(t *testing.T) {
	client := NewRerankClient("http://unused", nil)
	out, err := client.Rerank(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}
