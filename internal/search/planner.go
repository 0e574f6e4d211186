package search

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/devflowinc/trieve-sub001/internal/config"
	"github.com/devflowinc/trieve-sub001/internal/embedding"
	"github.com/devflowinc/trieve-sub001/internal/errs"
	"github.com/devflowinc/trieve-sub001/internal/metadatastore"
	"github.com/devflowinc/trieve-sub001/internal/rerank"
	"github.com/devflowinc/trieve-sub001/internal/typo"
	"github.com/devflowinc/trieve-sub001/internal/vectorstore"
)

// Planner is the Search Planner (spec §4.G): compiles a normalized
// Request into one or more vector-store searches, fuses and reranks the
// result, and enriches it with metadata-store chunk rows.
type Planner struct {
	Meta       metadatastore.Store
	Vectors    vectorstore.Store
	TypoBuild  *typo.Builder
	Corrector  *typo.Corrector
	Logger     *logrus.Logger
}

func NewPlanner(meta metadatastore.Store, vectors vectorstore.Store, typoBuild *typo.Builder, corrector *typo.Corrector, logger *logrus.Logger) *Planner {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Planner{Meta: meta, Vectors: vectors, TypoBuild: typoBuild, Corrector: corrector, Logger: logger}
}

// datasetConfig loads and merges a dataset's stored configuration with
// process defaults (spec §4.C "dataset config read with fallback
// defaults").
func (p *Planner) datasetConfig(ctx context.Context, datasetID string) (config.DatasetConfig, error) {
	raw, err := p.Meta.GetDatasetConfig(ctx, datasetID)
	if err != nil {
		return config.DatasetConfig{}, err
	}
	return config.MergeDatasetConfig(raw), nil
}

// SearchChunks runs spec §4.G's top-level search operation.
func (p *Planner) SearchChunks(ctx context.Context, req Request) (Result, error) {
	cfg, err := p.datasetConfig(ctx, req.DatasetID)
	if err != nil {
		return Result{}, err
	}

	result := Result{Corrected: req.Query}
	filter := lowerFilter(req.DatasetID, req)
	oversampled := req.pageSize() * DefaultOversample

	ordered, diags, err := p.runQuery(ctx, req.DatasetID, cfg, req.Type, req.Query, filter, oversampled, req.Weights)
	result.Diagnostics = append(result.Diagnostics, diags...)
	if err != nil {
		return result, err
	}

	if req.UseTypoCorrection && p.TypoBuild != nil && p.Corrector != nil && req.Query != "" {
		corrected, diag := p.applyTypoCorrection(ctx, req)
		result.Diagnostics = append(result.Diagnostics, diag...)
		if corrected != "" {
			correctedHits, cDiags, err := p.runQuery(ctx, req.DatasetID, cfg, req.Type, corrected, filter, oversampled, req.Weights)
			result.Diagnostics = append(result.Diagnostics, cDiags...)
			if err == nil && topScore(correctedHits) > topScore(ordered) {
				ordered = correctedHits
				result.Corrected = corrected
				result.TypoChanged = true
			}
		}
	}

	page, err := p.paginate(req, ordered)
	if err != nil {
		return result, err
	}

	chunks, dropped, err := p.hydrate(ctx, req.DatasetID, page)
	if err != nil {
		return result, err
	}
	if dropped > 0 {
		result.Diagnostics = append(result.Diagnostics, Diagnostic{Stage: "hydrate", Dropped: dropped})
	}

	if req.Rerank {
		chunks = p.rerankChunks(ctx, cfg, result.Corrected, chunks, req.pageSize())
	} else if len(chunks) > req.pageSize() {
		chunks = chunks[:req.pageSize()]
	}

	result.Chunks = chunks
	return result, nil
}

// SearchWithinGroup is SearchChunks scoped to one group (spec §4.G).
func (p *Planner) SearchWithinGroup(ctx context.Context, req Request, groupID uuid.UUID) (Result, error) {
	req.GroupID = &groupID
	return p.SearchChunks(ctx, req)
}

// applyTypoCorrection runs the typo corrector against the dataset's
// BK-tree and returns the rewritten query when any word changed.
// SearchChunks runs both the original and corrected query and keeps
// whichever list scores higher (spec §4.G "Typo correction").
func (p *Planner) applyTypoCorrection(ctx context.Context, req Request) (string, []Diagnostic) {
	tree, err := p.TypoBuild.Load(ctx, req.DatasetID)
	if err != nil {
		return "", []Diagnostic{{Stage: "typo", Err: err}}
	}
	res := p.Corrector.Correct(tree, req.Query)
	if !res.Changed {
		return "", nil
	}
	return res.CorrectedQuery, nil
}

// runQuery dispatches to the configured search strategy and returns a
// single fused, score-ordered hit list (spec §4.G "Query planning").
func (p *Planner) runQuery(ctx context.Context, datasetID string, cfg config.DatasetConfig, t Type, query string, filter vectorstore.Filter, limit int, weights *Weights) ([]vectorstore.SearchHit, []Diagnostic, error) {
	collection := vectorstore.CollectionName(datasetID)

	switch t {
	case TypeSemantic:
		hits, err := p.semanticSearch(ctx, collection, cfg, query, filter, limit)
		return hits, diagFor("semantic", err), err
	case TypeFulltext:
		hits, err := p.fulltextSearch(ctx, collection, cfg, query, filter, limit)
		return hits, diagFor("fulltext", err), err
	case TypeBM25:
		hits, err := p.bm25Search(ctx, collection, cfg, query, filter, limit)
		return hits, diagFor("bm25", err), err
	case TypeHybrid:
		return p.hybridSearch(ctx, collection, cfg, query, filter, limit, weights)
	default:
		return nil, nil, errs.BadRequest("invalid_search_type", "unknown search type", nil)
	}
}

func (p *Planner) semanticSearch(ctx context.Context, collection string, cfg config.DatasetConfig, query string, filter vectorstore.Filter, limit int) ([]vectorstore.SearchHit, error) {
	if !cfg.SemanticEnabled {
		return nil, nil
	}
	dense := embedding.NewDenseClient(cfg.EmbeddingBaseURL, cfg.EmbeddingModelName, cfg.EmbeddingQueryPrefix, p.Logger)
	vecs, err := dense.Embed(ctx, []embedding.DenseInput{{Text: query}}, embedding.RoleQuery)
	if err != nil {
		return nil, err
	}
	denseName, ok := config.DenseVectorNameForDimension(len(vecs[0]))
	if !ok {
		return nil, errs.BadRequest(errs.CodeInvalidDimension, "unsupported embedding dimension", nil)
	}
	return p.Vectors.Search(ctx, collection, vectorstore.SearchRequest{
		DenseVectorName: denseName,
		DenseVector:     vecs[0],
		Filter:          filter,
		Limit:           limit,
	})
}

func (p *Planner) fulltextSearch(ctx context.Context, collection string, cfg config.DatasetConfig, query string, filter vectorstore.Filter, limit int) ([]vectorstore.SearchHit, error) {
	if !cfg.FulltextEnabled {
		return nil, nil
	}
	sparse := embedding.NewSparseClient(cfg.SparseBaseURL, "query", p.Logger)
	vecs, err := sparse.Embed(ctx, []embedding.SparseInput{{Text: query}})
	if err != nil {
		return nil, err
	}
	return p.Vectors.Search(ctx, collection, vectorstore.SearchRequest{
		UseSparseVector: true,
		SparseQuery:     toStoreTokens(vecs[0]),
		Filter:          filter,
		Limit:           limit,
	})
}

func (p *Planner) bm25Search(ctx context.Context, collection string, cfg config.DatasetConfig, query string, filter vectorstore.Filter, limit int) ([]vectorstore.SearchHit, error) {
	if !cfg.BM25Enabled {
		return nil, nil
	}
	tokens := embedding.Tokenize(query)
	vecs := embedding.BM25([]embedding.BM25Doc{{Tokens: tokens}}, embedding.BM25Params{K: cfg.BM25K, B: cfg.BM25B, AvgLen: cfg.BM25AvgLen})
	return p.Vectors.Search(ctx, collection, vectorstore.SearchRequest{
		UseBM25Vector: true,
		BM25Query:     toStoreTokens(vecs[0]),
		Filter:        filter,
		Limit:         limit,
	})
}

// hybridSearch runs semantic, fulltext, and (if enabled) bm25 concurrently
// and fuses the lists (spec §4.G).
func (p *Planner) hybridSearch(ctx context.Context, collection string, cfg config.DatasetConfig, query string, filter vectorstore.Filter, limit int, weights *Weights) ([]vectorstore.SearchHit, []Diagnostic, error) {
	type namedResult struct {
		name string
		hits []vectorstore.SearchHit
		err  error
	}

	stages := []struct {
		name string
		run  func() ([]vectorstore.SearchHit, error)
	}{
		{"semantic", func() ([]vectorstore.SearchHit, error) { return p.semanticSearch(ctx, collection, cfg, query, filter, limit) }},
		{"fulltext", func() ([]vectorstore.SearchHit, error) { return p.fulltextSearch(ctx, collection, cfg, query, filter, limit) }},
	}
	if cfg.BM25Enabled {
		stages = append(stages, struct {
			name string
			run  func() ([]vectorstore.SearchHit, error)
		}{"bm25", func() ([]vectorstore.SearchHit, error) { return p.bm25Search(ctx, collection, cfg, query, filter, limit) }})
	}

	results := make([]namedResult, len(stages))
	g, _ := errgroup.WithContext(ctx)
	for i, s := range stages {
		i, s := i, s
		g.Go(func() error {
			hits, err := s.run()
			results[i] = namedResult{name: s.name, hits: hits, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var lists [][]vectorstore.SearchHit
	var diags []Diagnostic
	var weightVals []float64
	for _, r := range results {
		if r.err != nil {
			diags = append(diags, Diagnostic{Stage: r.name, Err: r.err})
			continue
		}
		lists = append(lists, r.hits)
		weightVals = append(weightVals, weightFor(r.name, weights))
	}
	if len(lists) == 0 {
		return nil, diags, nil
	}

	var fusedList []fused
	if weights.isZero() {
		fusedList = fuseRRF(lists)
	} else {
		fusedList = fuseWeighted(lists, weightVals)
	}

	hits := make([]vectorstore.SearchHit, len(fusedList))
	for i, f := range fusedList {
		hits[i] = vectorstore.SearchHit{ID: f.id, Score: float32(f.score)}
	}
	return hits, diags, nil
}

func weightFor(name string, w *Weights) float64 {
	if w == nil {
		return 1
	}
	switch name {
	case "semantic":
		return w.Semantic
	case "fulltext":
		return w.Fulltext
	case "bm25":
		return w.BM25
	default:
		return 1
	}
}

// paginate applies the offset/limit or cursor window over an already
// score-ordered hit list (spec §4.G "Pagination").
func (p *Planner) paginate(req Request, hits []vectorstore.SearchHit) ([]vectorstore.SearchHit, error) {
	if req.Cursor != nil {
		idx := -1
		for i, h := range hits {
			if h.ID == *req.Cursor {
				idx = i
				break
			}
		}
		start := idx + 1
		end := start + req.pageSize()
		if end > len(hits) {
			end = len(hits)
		}
		if start > len(hits) {
			start = len(hits)
		}
		return hits[start:end], nil
	}

	offset := req.offset()
	if offset > MaxPageWindow {
		return nil, errs.BadRequest("page_window_exceeded", "offset exceeds the bounded pagination window; supply a cursor", nil)
	}
	if offset > len(hits) {
		return nil, nil
	}
	end := offset + req.pageSize()
	if end > len(hits) {
		end = len(hits)
	}
	return hits[offset:end], nil
}

// hydrate enriches hits with full chunk rows in one batched call,
// dropping orphans whose chunk no longer exists in the metadata store
// (spec §4.G "Result assembly", §5 "readers may observe a chunk ... not
// yet (or no longer) in the vector store").
func (p *Planner) hydrate(ctx context.Context, datasetID string, hits []vectorstore.SearchHit) ([]metadatastore.Chunk, int, error) {
	if len(hits) == 0 {
		return nil, 0, nil
	}
	ids := make([]uuid.UUID, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	chunks, err := p.Meta.GetChunksByFingerprints(ctx, datasetID, ids)
	if err != nil {
		return nil, 0, err
	}
	byID := make(map[uuid.UUID]metadatastore.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.Fingerprint] = c
	}
	out := make([]metadatastore.Chunk, 0, len(hits))
	dropped := 0
	for _, h := range hits {
		c, ok := byID[h.ID]
		if !ok {
			dropped++
			continue
		}
		out = append(out, c)
	}
	return out, dropped, nil
}

func (p *Planner) rerankChunks(ctx context.Context, cfg config.DatasetConfig, query string, chunks []metadatastore.Chunk, pageSize int) []metadatastore.Chunk {
	if cfg.RerankerBaseURL == "" || len(chunks) == 0 {
		if len(chunks) > pageSize {
			return chunks[:pageSize]
		}
		return chunks
	}
	client := rerank.NewClient(embedding.NewRerankClient(cfg.RerankerBaseURL, p.Logger), p.Logger)
	candidates := make([]rerank.Candidate, len(chunks))
	byID := make(map[string]metadatastore.Chunk, len(chunks))
	for i, c := range chunks {
		candidates[i] = rerank.Candidate{ID: c.ID.String(), Text: c.Content}
		byID[c.ID.String()] = c
	}
	ranked := client.Rerank(ctx, query, candidates, pageSize)
	out := make([]metadatastore.Chunk, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, byID[r.ID])
	}
	return out
}

// Recommend finds chunks similar to a set of positive examples and
// dissimilar to a set of negative ones (spec §4.G public operation
// "recommend"): it re-embeds each example's stored content, averages
// positives and subtracts the averaged negatives, then runs a dense
// search with the resulting vector.
func (p *Planner) Recommend(ctx context.Context, datasetID string, positiveIDs, negativeIDs []uuid.UUID, pageSize int) (Result, error) {
	cfg, err := p.datasetConfig(ctx, datasetID)
	if err != nil {
		return Result{}, err
	}

	vec, err := p.recommendVector(ctx, datasetID, cfg, positiveIDs, negativeIDs)
	if err != nil {
		return Result{}, err
	}

	denseName, ok := config.DenseVectorNameForDimension(len(vec))
	if !ok {
		return Result{}, errs.BadRequest(errs.CodeInvalidDimension, "unsupported embedding dimension", nil)
	}

	limit := pageSize * DefaultOversample
	hits, err := p.Vectors.Search(ctx, vectorstore.CollectionName(datasetID), vectorstore.SearchRequest{
		DenseVectorName: denseName,
		DenseVector:     vec,
		Filter:          lowerFilter(datasetID, Request{}),
		Limit:           limit,
	})
	if err != nil {
		return Result{}, err
	}

	chunks, dropped, err := p.hydrate(ctx, datasetID, hits)
	if err != nil {
		return Result{}, err
	}
	if len(chunks) > pageSize {
		chunks = chunks[:pageSize]
	}
	result := Result{Chunks: chunks}
	if dropped > 0 {
		result.Diagnostics = append(result.Diagnostics, Diagnostic{Stage: "hydrate", Dropped: dropped})
	}
	return result, nil
}

func (p *Planner) recommendVector(ctx context.Context, datasetID string, cfg config.DatasetConfig, positiveIDs, negativeIDs []uuid.UUID) ([]float32, error) {
	if len(positiveIDs) == 0 {
		return nil, errs.BadRequest("recommend_no_positives", "recommend requires at least one positive example", nil)
	}

	positives, err := p.Meta.GetChunksByIDs(ctx, datasetID, positiveIDs)
	if err != nil {
		return nil, err
	}
	negatives, err := p.Meta.GetChunksByIDs(ctx, datasetID, negativeIDs)
	if err != nil {
		return nil, err
	}

	dense := embedding.NewDenseClient(cfg.EmbeddingBaseURL, cfg.EmbeddingModelName, cfg.EmbeddingQueryPrefix, p.Logger)
	posVecs, err := embedChunks(ctx, dense, positives)
	if err != nil {
		return nil, err
	}
	negVecs, err := embedChunks(ctx, dense, negatives)
	if err != nil {
		return nil, err
	}

	out := averageVectors(posVecs)
	negAvg := averageVectors(negVecs)
	for i := range out {
		if i < len(negAvg) {
			out[i] -= negAvg[i]
		}
	}
	return out, nil
}

func embedChunks(ctx context.Context, dense *embedding.DenseClient, chunks []metadatastore.Chunk) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	inputs := make([]embedding.DenseInput, len(chunks))
	for i, c := range chunks {
		inputs[i] = embedding.DenseInput{Text: c.Content}
	}
	return dense.Embed(ctx, inputs, embedding.RoleDoc)
}

func averageVectors(vecs [][]float32) []float32 {
	if len(vecs) == 0 {
		return nil
	}
	out := make([]float32, len(vecs[0]))
	for _, v := range vecs {
		for i := range out {
			if i < len(v) {
				out[i] += v[i]
			}
		}
	}
	for i := range out {
		out[i] /= float32(len(vecs))
	}
	return out
}

// AutocompletePageSize bounds the number of suggestions returned by
// Autocomplete (spec §4.G public operation "autocomplete").
const AutocompletePageSize = 10

// Autocomplete suggests completions for a query prefix by scanning the
// dataset's BK-tree for words beginning with prefix, ranked by frequency,
// the number of times the word occurs across the scanned chunks (spec
// §4.G, §4.I: the same per-dataset BK-tree that backs
// typo correction doubles as the autocomplete vocabulary).
func (p *Planner) Autocomplete(ctx context.Context, datasetID, prefix string) ([]string, error) {
	if p.TypoBuild == nil {
		return nil, nil
	}
	tree, err := p.TypoBuild.Load(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	prefix = toLowerASCII(prefix)
	if prefix == "" {
		return nil, nil
	}

	var matches []typo.Candidate
	for _, c := range tree.Words() {
		if strings.HasPrefix(c.Word, prefix) {
			matches = append(matches, c)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Freq != matches[j].Freq {
			return matches[i].Freq > matches[j].Freq
		}
		return matches[i].Word < matches[j].Word
	})
	if len(matches) > AutocompletePageSize {
		matches = matches[:AutocompletePageSize]
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Word
	}
	return out, nil
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func toStoreTokens(vec embedding.SparseVector) []vectorstore.TokenWeight {
	out := make([]vectorstore.TokenWeight, len(vec))
	for i, t := range vec {
		out[i] = vectorstore.TokenWeight{Index: t.Index, Value: t.Value}
	}
	return out
}

// topScore is the best score in an already score-ordered hit list, used
// to decide whether a typo-corrected rerun beats the original query
// (spec §4.G "Typo correction": "the better-scoring list wins").
func topScore(hits []vectorstore.SearchHit) float32 {
	if len(hits) == 0 {
		return 0
	}
	return hits[0].Score
}

func diagFor(stage string, err error) []Diagnostic {
	if err == nil {
		return nil
	}
	return []Diagnostic{{Stage: stage, Err: err}}
}
