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

func TestSparseClientEmbedAndBoost(t *testing.T) {
	kID := HashToken(stemEnglish("kubernetes"))
	cID := HashToken(stemEnglish("cluster"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/embed_sparse")
		var req sparseEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := make([][]sparseTokenWire, len(req.Inputs))
		for i, text := range req.Inputs {
			if text == "kubernetes" {
				// The boost phrase's own remote embedding only covers
				// "kubernetes", so only kID should come back for it.
				resp[i] = []sparseTokenWire{{Index: kID, Value: 1.0}}
				continue
			}
			resp[i] = []sparseTokenWire{
				{Index: kID, Value: 1.0},
				{Index: cID, Value: 0.5},
			}
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	client := NewSparseClient(srv.URL, "query", nil)
	out, err := client.Embed(context.Background(), []SparseInput{
		{Text: "kubernetes cluster", Boosts: []BoostPhrase{{Text: "kubernetes", Factor: 4}}},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)

	var gotK, gotC float32
	for _, tw := range out[0] {
		switch tw.Index {
		case kID:
			gotK = tw.Value
		case cID:
			gotC = tw.Value
		}
	}
	assert.Equal(t, float32(4.0), gotK)
	assert.Equal(t, float32(0.5), gotC)
}

// TestSparseClientBoostUsesRemoteIndicesNotLocalHash guards against
// matching boost tokens by a local hash: the embedder here returns
// SPLADE-style indices far outside any local token-hash's range, and
// the boost still has to land because it goes through the same remote
// call as the content text.
func TestSparseClientBoostUsesRemoteIndicesNotLocalHash(t *testing.T) {
	const spladeIndex = 123456789
	const otherIndex = 987654321

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req sparseEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := make([][]sparseTokenWire, len(req.Inputs))
		for i, text := range req.Inputs {
			if text == "widget" {
				resp[i] = []sparseTokenWire{{Index: spladeIndex, Value: 1.0}}
				continue
			}
			resp[i] = []sparseTokenWire{
				{Index: spladeIndex, Value: 1.0},
				{Index: otherIndex, Value: 2.0},
			}
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	client := NewSparseClient(srv.URL, "doc", nil)
	out, err := client.Embed(context.Background(), []SparseInput{
		{Text: "a widget review", Boosts: []BoostPhrase{{Text: "widget", Factor: 3}}},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)

	var gotBoosted, gotOther float32
	for _, tw := range out[0] {
		switch tw.Index {
		case spladeIndex:
			gotBoosted = tw.Value
		case otherIndex:
			gotOther = tw.Value
		}
	}
	assert.Equal(t, float32(3.0), gotBoosted)
	assert.Equal(t, float32(2.0), gotOther)
}

func TestSparseClientNon2xxIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewSparseClient(srv.URL, "doc", nil)
	_, err := client.Embed(context.Background(), []SparseInput{{Text: "x"}})
	require.Error(t, err)
}
