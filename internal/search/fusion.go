package search

import (
	"sort"

	"github.com/google/uuid"

	"github.com/devflowinc/trieve-sub001/internal/vectorstore"
)

// RRFConstant is the reciprocal-rank fusion constant k from spec §4.G /
// §8 scenario 3.
const RRFConstant = 60

type fused struct {
	id    uuid.UUID
	score float64
	// bestRank is the best (lowest) 1-based rank this id achieved in any
	// source list, used as the tie-break ahead of id ordering (spec §4.G
	// "preserve tie-breaks by original per-list rank then by id").
	bestRank int
}

// fuseRRF combines ranked hit lists by reciprocal rank fusion: score(id)
// = sum over lists containing id of 1/(k+rank), rank 1-based (spec §4.G,
// §8 scenario 3).
func fuseRRF(lists [][]vectorstore.SearchHit) []fused {
	scores := map[uuid.UUID]float64{}
	bestRank := map[uuid.UUID]int{}
	for _, list := range lists {
		for i, hit := range list {
			rank := i + 1
			scores[hit.ID] += 1.0 / float64(RRFConstant+rank)
			if cur, ok := bestRank[hit.ID]; !ok || rank < cur {
				bestRank[hit.ID] = rank
			}
		}
	}
	return sortFused(scores, bestRank)
}

// fuseWeighted min-max normalizes each list's scores to [0,1] then
// combines as a weighted sum using the caller-supplied weights (spec
// §4.G: "normalize within each list and combine as a weighted sum").
func fuseWeighted(lists [][]vectorstore.SearchHit, weights []float64) []fused {
	scores := map[uuid.UUID]float64{}
	bestRank := map[uuid.UUID]int{}
	for li, list := range lists {
		w := 1.0
		if li < len(weights) {
			w = weights[li]
		}
		normalized := normalize(list)
		for i, hit := range list {
			rank := i + 1
			scores[hit.ID] += w * normalized[i]
			if cur, ok := bestRank[hit.ID]; !ok || rank < cur {
				bestRank[hit.ID] = rank
			}
		}
	}
	return sortFused(scores, bestRank)
}

func normalize(list []vectorstore.SearchHit) []float64 {
	out := make([]float64, len(list))
	if len(list) == 0 {
		return out
	}
	min, max := float64(list[0].Score), float64(list[0].Score)
	for _, h := range list {
		v := float64(h.Score)
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	span := max - min
	for i, h := range list {
		if span == 0 {
			out[i] = 1
			continue
		}
		out[i] = (float64(h.Score) - min) / span
	}
	return out
}

func sortFused(scores map[uuid.UUID]float64, bestRank map[uuid.UUID]int) []fused {
	out := make([]fused, 0, len(scores))
	for id, score := range scores {
		out = append(out, fused{id: id, score: score, bestRank: bestRank[id]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		if out[i].bestRank != out[j].bestRank {
			return out[i].bestRank < out[j].bestRank
		}
		return out[i].id.String() < out[j].id.String()
	})
	return out
}
