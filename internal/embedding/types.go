// Package embedding implements the Embedding Client (spec §4.A): batched
// HTTP calls to dense/sparse/reranker/BM25 with prefixing, truncation, and
// distance/boost-phrase arithmetic.
package embedding

import "context"

// Role selects whether an embedding is for a stored document or an
// incoming query. Only query-role dense embeddings receive the dataset's
// query prefix (spec §4.A).
type Role string

const (
	RoleDoc   Role = "doc"
	RoleQuery Role = "query"
)

// MaxInputChars is the truncation bound applied to every input string
// before it is sent to a remote embedder (spec §4.A).
const MaxInputChars = 20000

// BatchSize is the number of inputs chunked into a single remote request,
// issued in parallel across batches (spec §4.A, §5).
const BatchSize = 30

// DistancePhrase is an auxiliary phrase embedded alongside a dense input;
// its embedding is added, scaled by Factor, to the input's own embedding
// (spec GLOSSARY: Distance phrase).
type DistancePhrase struct {
	Text   string
	Factor float32
}

// BoostPhrase is an auxiliary phrase whose token weights multiplicatively
// amplify matching tokens in a sparse or BM25 representation (spec
// GLOSSARY: Boost phrase).
type BoostPhrase struct {
	Text   string
	Factor float32
}

// DenseInput is one text to embed densely, with an optional distance
// phrase to fold into the result vector.
type DenseInput struct {
	Text   string
	Phrase *DistancePhrase
}

// SparseInput is one text to embed sparsely, with optional boost phrases.
type SparseInput struct {
	Text   string
	Boosts []BoostPhrase
}

// TokenWeight is one (token id, weight) pair in a sparse vector.
type TokenWeight struct {
	Index uint32
	Value float32
}

// SparseVector is an unordered set of non-zero token weights.
type SparseVector []TokenWeight

// RerankResult is one scored candidate returned by the cross-encoder.
type RerankResult struct {
	Index int
	Score float32
}

// EmbeddingModel is the pluggable dense-embedding backend. It is shaped to
// match the teacher's rag.EmbeddingModel test double exactly (Encode,
// EncodeSingle, Name, Dimensions, MaxTokens, Provider, Health, Close) so it
// can be faked in tests the same way the teacher's RAG pipeline tests do.
type EmbeddingModel interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	EncodeSingle(ctx context.Context, text string) ([]float32, error)
	Name() string
	Dimensions() int
	MaxTokens() int
	Provider() string
	Health(ctx context.Context) error
	Close() error
}

func truncate(s string) string {
	if len(s) <= MaxInputChars {
		return s
	}
	return s[:MaxInputChars]
}

// chunk splits xs into groups of at most size n, preserving order.
func chunk[T any](xs []T, n int) [][]T {
	if n <= 0 {
		n = len(xs)
		if n == 0 {
			n = 1
		}
	}
	var out [][]T
	for i := 0; i < len(xs); i += n {
		end := i + n
		if end > len(xs) {
			end = len(xs)
		}
		out = append(out, xs[i:end])
	}
	return out
}
