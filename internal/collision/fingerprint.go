// Package collision implements the Collision Index (spec §4.D):
// content-fingerprint to canonical-chunk deduplication and reference
// counting, keeping exactly one live vector-store point per unique
// content fingerprint in a dataset.
package collision

import (
	"math"

	"github.com/google/uuid"
)

// fingerprintNamespace roots the deterministic UUIDs this package mints
// from content hashes, keeping them stable across process restarts
// (spec GLOSSARY: "Fingerprint ... stable under re-embedding of the
// canonical chunk").
var fingerprintNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// Fingerprint derives the deterministic vector-point UUID for a chunk's
// content within a dataset: identical content in the same dataset always
// yields the same fingerprint, which is the collision predicate's
// primary signal (spec §4.D, §9 "exact content hash match").
func Fingerprint(datasetID, content string) uuid.UUID {
	return uuid.NewSHA1(fingerprintNamespace, []byte(datasetID+"\x00"+content))
}

// CosineSimilarity is the optional secondary collision check (spec §9:
// "optionally tightened by cosine >= 0.95"). Vectors of mismatched
// length are treated as dissimilar rather than erroring, since that
// only arises when comparing across embedding models.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
