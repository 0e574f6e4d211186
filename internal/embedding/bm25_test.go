package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeLowercasesStemsAndFilters(t *testing.T) {
	toks := Tokenize("Running Runners run! " + string(make([]byte, 0)))
	require.NotEmpty(t, toks)
	for _, tok := range toks {
		assert.LessOrEqual(t, len(tok), 40)
		assert.Equal(t, tok, tokenLowered(tok))
	}
}

func tokenLowered(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c = c - 'A' + 'a'
		}
		out[i] = c
	}
	return string(out)
}

func TestHashTokenDeterministic(t *testing.T) {
	a := HashToken("kubernetes")
	b := HashToken("kubernetes")
	c := HashToken("docker")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestBM25FormulaMatchesSpec(t *testing.T) {
	// One distinct token repeated four times, so tf=4, |doc|=avg_len=4,
	// and the result is exactly tf*(k+1)/(tf+k*(1-b+b*len/avg)).
	params := BM25Params{K: 1.2, B: 0.75, AvgLen: 4}
	docs := []BM25Doc{{Tokens: []string{"apple", "apple", "apple", "apple"}}}
	out := BM25(docs, params)
	require.Len(t, out, 1)
	require.Len(t, out[0], 1)

	tf := 4.0
	expected := tf * (params.K + 1) / (tf + params.K*(1-params.B+params.B*4/4))
	assert.InDelta(t, expected, float64(out[0][0].Value), 1e-6)
}

func TestBM25BoostPhraseMultipliesMatchedTokens(t *testing.T) {
	params := BM25Params{K: 1.2, B: 0.75, AvgLen: 2}
	plain := BM25(([]BM25Doc{{Tokens: Tokenize("kubernetes cluster")}}), params)[0]

	boosted := BM25([]BM25Doc{{
		Tokens: Tokenize("kubernetes cluster"),
		Boosts: []BoostPhrase{{Text: "kubernetes", Factor: 3}},
	}}, params)[0]

	var plainWeight, boostedWeight float32
	kID := HashToken(stemEnglish("kubernetes"))
	for _, tw := range plain {
		if tw.Index == kID {
			plainWeight = tw.Value
		}
	}
	for _, tw := range boosted {
		if tw.Index == kID {
			boostedWeight = tw.Value
		}
	}
	assert.InDelta(t, plainWeight*3, boostedWeight, 1e-5)
}
