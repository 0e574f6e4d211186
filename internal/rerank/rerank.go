// Package rerank implements the Reranker (spec §4.H): slices candidates
// into groups of 20, calls the cross-encoder concurrently per slice,
// merges and sorts by score, and falls back to the pre-rerank order on
// any slice failure.
package rerank

import (
	"context"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/devflowinc/trieve-sub001/internal/embedding"
)

// SliceSize is the cross-encoder batch size (spec §4.H, §5).
const SliceSize = 20

// MaxCandidates is the largest candidate set the planner may submit (spec
// §4.G: "Optional rerank on the top rerank_k <= 100").
const MaxCandidates = 100

// Candidate is one pre-rerank search result, keeping the caller's own
// identity alongside the text the cross-encoder scores.
type Candidate struct {
	ID   string
	Text string
}

// Client reranks candidates against a query.
type Client struct {
	Rerank *embedding.RerankClient
	Logger *logrus.Logger
}

func NewClient(rerankClient *embedding.RerankClient, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{Rerank: rerankClient, Logger: logger}
}

// Rerank scores candidates against query, slicing into SliceSize groups
// issued concurrently. On success it returns candidates sorted by
// descending score, truncated to pageSize. On any slice failure it
// returns the original candidate order, truncated to pageSize, falling
// back rather than surfacing a partial or skewed ranking (spec §4.H).
func (c *Client) Rerank(ctx context.Context, query string, candidates []Candidate, pageSize int) []Candidate {
	if len(candidates) == 0 {
		return nil
	}
	if len(candidates) > MaxCandidates {
		candidates = candidates[:MaxCandidates]
	}

	scored, ok := c.scoreAll(ctx, query, candidates)
	if !ok {
		c.Logger.Warn("rerank slice failed, falling back to pre-rerank order")
		return truncate(candidates, pageSize)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
	out := make([]Candidate, len(scored))
	for i, s := range scored {
		out[i] = s.Candidate
	}
	return truncate(out, pageSize)
}

type scoredCandidate struct {
	Candidate
	score float32
}

func (c *Client) scoreAll(ctx context.Context, query string, candidates []Candidate) ([]scoredCandidate, bool) {
	slices := chunkCandidates(candidates, SliceSize)
	results := make([][]scoredCandidate, len(slices))

	var wg sync.WaitGroup
	failed := make([]bool, len(slices))
	for i, slice := range slices {
		wg.Add(1)
		go func(i int, slice []Candidate) {
			defer wg.Done()
			texts := make([]string, len(slice))
			for j, cand := range slice {
				texts[j] = cand.Text
			}
			scores, err := c.Rerank.Rerank(ctx, query, texts)
			if err != nil {
				failed[i] = true
				return
			}
			out := make([]scoredCandidate, len(scores))
			for j, s := range scores {
				if s.Index < 0 || s.Index >= len(slice) {
					failed[i] = true
					return
				}
				out[j] = scoredCandidate{Candidate: slice[s.Index], score: s.Score}
			}
			results[i] = out
		}(i, slice)
	}
	wg.Wait()

	var out []scoredCandidate
	for i, r := range results {
		if failed[i] {
			return nil, false
		}
		out = append(out, r...)
	}
	return out, true
}

func chunkCandidates(xs []Candidate, n int) [][]Candidate {
	var out [][]Candidate
	for i := 0; i < len(xs); i += n {
		end := i + n
		if end > len(xs) {
			end = len(xs)
		}
		out = append(out, xs[i:end])
	}
	return out
}

func truncate(xs []Candidate, pageSize int) []Candidate {
	if pageSize <= 0 || pageSize > len(xs) {
		return xs
	}
	return xs[:pageSize]
}
