package config

// DatasetConfig is the versioned per-dataset configuration described in
// spec §3 (Dataset entity) and §6 (recognized keys). It is read from the
// metadata store's `datasets.server_configuration` JSON blob with process
// defaults filling any key the dataset has not overridden, mirroring the
// teacher's ServiceEndpoint "explicit value wins over default" pattern.
type DatasetConfig struct {
	EmbeddingBaseURL     string   `json:"EMBEDDING_BASE_URL"`
	EmbeddingModelName   string   `json:"EMBEDDING_MODEL_NAME"`
	EmbeddingQueryPrefix string   `json:"EMBEDDING_QUERY_PREFIX"`
	EmbeddingFallbacks   []string `json:"EMBEDDING_FALLBACK_CHAIN"`

	SparseBaseURL   string `json:"SPARSE_BASE_URL"`
	RerankerBaseURL string `json:"RERANKER_BASE_URL"`

	SemanticEnabled bool `json:"SEMANTIC_ENABLED"`
	FulltextEnabled bool `json:"FULLTEXT_ENABLED"`
	BM25Enabled     bool `json:"BM25_ENABLED"`

	BM25K      float64 `json:"BM25_K"`
	BM25B      float64 `json:"BM25_B"`
	BM25AvgLen float64 `json:"BM25_AVG_LEN"`

	NRetrievalsToInclude int    `json:"N_RETRIEVALS_TO_INCLUDE"`
	RAGPrompt            string `json:"RAG_PROMPT"`

	Locked bool `json:"LOCKED"`

	// DuplicateCosineThreshold is the bound for the optional cosine
	// secondary collision check (§9). It is parsed and carried here only:
	// collision.Index.Resolve decides duplicates by content fingerprint
	// alone and does not read it.
	DuplicateCosineThreshold float64 `json:"DUPLICATE_COSINE_THRESHOLD"`
}

// DefaultDatasetConfig returns the fallback values applied when a dataset's
// server_configuration omits a key outright.
func DefaultDatasetConfig() DatasetConfig {
	return DatasetConfig{
		EmbeddingQueryPrefix:     "",
		EmbeddingFallbacks:       getEnvSlice("DEFAULT_EMBEDDING_FALLBACK_CHAIN", nil),
		SemanticEnabled:          true,
		FulltextEnabled:          true,
		BM25Enabled:              false,
		BM25K:                    1.2,
		BM25B:                    0.75,
		BM25AvgLen:               256,
		NRetrievalsToInclude:     10,
		Locked:                   false,
		DuplicateCosineThreshold: 0.95,
	}
}

// DenseVectorNameForDimension maps a discovered embedding dimension to the
// fixed named-vector slot used in the vector store collection (spec §6).
// Unsupported sizes fail fast per §4.A.
func DenseVectorNameForDimension(dim int) (string, bool) {
	switch dim {
	case 384:
		return "384_vectors", true
	case 512:
		return "512_vectors", true
	case 768:
		return "768_vectors", true
	case 1024:
		return "1024_vectors", true
	case 1536:
		return "1536_vectors", true
	case 3072:
		return "3072_vectors", true
	default:
		return "", false
	}
}

const (
	SparseVectorName = "sparse_vectors"
	BM25VectorName   = "bm25_vectors"
)

// MergeDatasetConfig overlays a dataset's stored server_configuration JSON
// (decoded to a generic map by the metadata store) onto process defaults,
// explicit value wins over default, matching the teacher's ServiceEndpoint
// pattern. Shared by the search planner and ingestion worker so both read
// a dataset's embedding/fulltext/bm25 toggles the same way.
func MergeDatasetConfig(raw map[string]any) DatasetConfig {
	cfg := DefaultDatasetConfig()
	if v, ok := raw["EMBEDDING_BASE_URL"].(string); ok {
		cfg.EmbeddingBaseURL = v
	}
	if v, ok := raw["EMBEDDING_MODEL_NAME"].(string); ok {
		cfg.EmbeddingModelName = v
	}
	if v, ok := raw["EMBEDDING_QUERY_PREFIX"].(string); ok {
		cfg.EmbeddingQueryPrefix = v
	}
	if v, ok := raw["SPARSE_BASE_URL"].(string); ok {
		cfg.SparseBaseURL = v
	}
	if v, ok := raw["RERANKER_BASE_URL"].(string); ok {
		cfg.RerankerBaseURL = v
	}
	if v, ok := raw["SEMANTIC_ENABLED"].(bool); ok {
		cfg.SemanticEnabled = v
	}
	if v, ok := raw["FULLTEXT_ENABLED"].(bool); ok {
		cfg.FulltextEnabled = v
	}
	if v, ok := raw["BM25_ENABLED"].(bool); ok {
		cfg.BM25Enabled = v
	}
	if v, ok := raw["BM25_K"].(float64); ok {
		cfg.BM25K = v
	}
	if v, ok := raw["BM25_B"].(float64); ok {
		cfg.BM25B = v
	}
	if v, ok := raw["BM25_AVG_LEN"].(float64); ok {
		cfg.BM25AvgLen = v
	}
	if v, ok := raw["LOCKED"].(bool); ok {
		cfg.Locked = v
	}
	if v, ok := raw["DUPLICATE_COSINE_THRESHOLD"].(float64); ok {
		cfg.DuplicateCosineThreshold = v
	}
	return cfg
}
