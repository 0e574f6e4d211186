package embedding

import (
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/blevesearch/snowballstem"
	"github.com/blevesearch/snowballstem/english"
)

// Tokenize lowercases, stems (English), and length-filters (<=40 chars) a
// string into BM25/sparse-boost tokens (spec §4.A).
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ToLower(f)
		if f == "" {
			continue
		}
		f = stemEnglish(f)
		if len(f) == 0 || len(f) > 40 {
			continue
		}
		out = append(out, f)
	}
	return out
}

func stemEnglish(word string) string {
	env := snowballstem.NewEnv(word)
	english.Stem(env)
	return env.Current()
}

// HashToken hashes a token to an unsigned 32-bit id (spec §4.A).
func HashToken(token string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	return h.Sum32()
}

// BM25Doc is one document's term-frequency vector over hashed token ids.
type BM25Doc struct {
	Tokens []string
	Boosts []BoostPhrase
}

// BM25Params are the per-dataset tunables from spec §6
// (BM25_AVG_LEN/B/K).
type BM25Params struct {
	K      float64
	B      float64
	AvgLen float64
}

// BM25 computes local BM25 sparse vectors for a batch of documents. Term
// frequency follows tf*(k+1)/(tf+k*(1-b+b*|doc|/avg_len)) for every
// token (spec §4.A, §8 P6); boost-phrase tokens have their final weight
// multiplied by the phrase factor.
func BM25(docs []BM25Doc, params BM25Params) []SparseVector {
	out := make([]SparseVector, len(docs))
	for i, doc := range docs {
		out[i] = bm25One(doc, params)
	}
	return out
}

func bm25One(doc BM25Doc, params BM25Params) SparseVector {
	tf := make(map[uint32]int)
	order := make([]uint32, 0, len(doc.Tokens))
	for _, tok := range doc.Tokens {
		id := HashToken(tok)
		if _, seen := tf[id]; !seen {
			order = append(order, id)
		}
		tf[id]++
	}

	docLen := float64(len(doc.Tokens))
	k, b, avgLen := params.K, params.B, params.AvgLen
	if avgLen <= 0 {
		avgLen = 1
	}

	weights := make(map[uint32]float32, len(order))
	for _, id := range order {
		freq := float64(tf[id])
		score := freq * (k + 1) / (freq + k*(1-b+b*docLen/avgLen))
		weights[id] = float32(score)
	}

	for _, boost := range doc.Boosts {
		for _, tok := range Tokenize(boost.Text) {
			id := HashToken(tok)
			if w, ok := weights[id]; ok {
				weights[id] = w * boost.Factor
			}
		}
	}

	vec := make(SparseVector, 0, len(order))
	for _, id := range order {
		vec = append(vec, TokenWeight{Index: id, Value: weights[id]})
	}
	return vec
}
