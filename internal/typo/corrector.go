package typo

import (
	"strings"
	"unicode"
)

// Ranges controls the max-edit-distance-by-length table from spec §4.I
// step 4: words shorter than SingleLo are never corrected, words in
// [SingleLo, SingleHi] tolerate distance 1, words at or above TwoLo
// tolerate distance 2.
type Ranges struct {
	SingleLo int
	SingleHi int
	TwoLo    int
}

// DefaultRanges matches spec §4.I's documented defaults.
func DefaultRanges() Ranges {
	return Ranges{SingleLo: 4, SingleHi: 6, TwoLo: 6}
}

func (r Ranges) maxDistance(wordLen int) int {
	switch {
	case wordLen < r.SingleLo:
		return 0
	case wordLen <= r.SingleHi:
		return 1
	case wordLen >= r.TwoLo:
		return 2
	default:
		return 1
	}
}

// Corrector runs the per-word correction algorithm of spec §4.I against a
// dataset's BK-tree.
type Corrector struct {
	Lexicon  *Lexicon
	Excluded map[string]bool
	Ranges   Ranges
}

func NewCorrector(lexicon *Lexicon, excluded []string) *Corrector {
	if lexicon == nil {
		lexicon = DefaultLexicon
	}
	set := make(map[string]bool, len(excluded))
	for _, w := range excluded {
		set[strings.ToLower(w)] = true
	}
	return &Corrector{Lexicon: lexicon, Excluded: set, Ranges: DefaultRanges()}
}

// WordResult is the per-word verdict from CorrectWord.
type WordResult struct {
	Original       string
	Corrected      string
	Changed        bool
	DomainSpecific bool
}

// CorrectWord applies spec §4.I's five-step algorithm to a single word.
func (c *Corrector) CorrectWord(tree *Tree, word string) WordResult {
	res := WordResult{Original: word, Corrected: word}

	lower := strings.ToLower(word)
	if c.Excluded[lower] {
		return res
	}
	if !isAlphabetic(word) {
		return res
	}
	if c.Lexicon.IsEnglish(lower) {
		return res
	}

	if freq, ok := tree.Lookup(lower); ok && freq > 0 {
		res.DomainSpecific = true
		return res
	}

	maxDist := c.Ranges.maxDistance(len([]rune(lower)))
	if maxDist == 0 {
		return res
	}

	candidates := tree.Search(lower, maxDist)
	best, found := bestCandidate(lower, candidates, maxDist)
	if !found {
		return res
	}

	res.Corrected = best.Word
	res.Changed = true
	return res
}

func isAlphabetic(word string) bool {
	if word == "" {
		return false
	}
	for _, r := range word {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// bestCandidate filters the BK-tree candidate set to those sharing a
// 1-char prefix, differing in length by <=2, and sharing >=80% of their
// character set with the input, then picks the argmax of
// (maxDist-dist)*1000 + freq (spec §4.I step 5).
func bestCandidate(word string, candidates []Candidate, maxDist int) (Candidate, bool) {
	var best Candidate
	bestScore := -1
	found := false

	for _, cand := range candidates {
		if cand.Word == word {
			continue
		}
		if !sharesPrefix(word, cand.Word) {
			continue
		}
		if absInt(len(word)-len(cand.Word)) > 2 {
			continue
		}
		if charSetOverlap(word, cand.Word) < 0.8 {
			continue
		}
		score := (maxDist-cand.Dist)*1000 + cand.Freq
		if score > bestScore {
			bestScore = score
			best = cand
			found = true
		}
	}
	return best, found
}

func sharesPrefix(a, b string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return a[0] == b[0]
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// charSetOverlap is the fraction of the union of a's and b's distinct
// characters shared by both, used by step 5's ">= 80% of character set".
func charSetOverlap(a, b string) float64 {
	setA := map[rune]bool{}
	for _, r := range a {
		setA[r] = true
	}
	setB := map[rune]bool{}
	for _, r := range b {
		setB[r] = true
	}
	union := map[rune]bool{}
	shared := 0
	for r := range setA {
		union[r] = true
		if setB[r] {
			shared++
		}
	}
	for r := range setB {
		union[r] = true
	}
	if len(union) == 0 {
		return 0
	}
	return float64(shared) / float64(len(union))
}

// Result is the outcome of correcting a full query string.
type Result struct {
	CorrectedQuery string
	Changed        bool
	QuotedTerms    []string // domain-specific words, kept verbatim rather than corrected
	Words          []WordResult
}

// Correct tokenizes query on whitespace, runs CorrectWord on each token,
// and rejoins. Domain-specific words (step 3) are collected into
// QuotedTerms rather than corrected, per spec §4.I.
func (c *Corrector) Correct(tree *Tree, query string) Result {
	tokens := strings.Fields(query)
	out := make([]string, len(tokens))
	var quoted []string
	var words []WordResult
	changed := false

	for i, tok := range tokens {
		r := c.CorrectWord(tree, tok)
		words = append(words, r)
		out[i] = r.Corrected
		if r.Changed {
			changed = true
		}
		if r.DomainSpecific {
			quoted = append(quoted, tok)
		}
	}

	return Result{
		CorrectedQuery: strings.Join(out, " "),
		Changed:        changed,
		QuotedTerms:    quoted,
		Words:          words,
	}
}
