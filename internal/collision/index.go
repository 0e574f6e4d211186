package collision

import (
	"context"

	"github.com/google/uuid"

	"github.com/devflowinc/trieve-sub001/internal/metadatastore"
	"github.com/devflowinc/trieve-sub001/internal/vectorstore"
)

// Resolution is the collision index's verdict for one incoming chunk.
type Resolution struct {
	Fingerprint uuid.UUID
	// IsDuplicate is true when an existing canonical point already
	// lives at Fingerprint; the caller must record a collision ref
	// instead of upserting a new vector point.
	IsDuplicate bool
}

// Index decides, for each incoming chunk, whether its content fingerprint
// already has a live canonical point (spec §4.D).
type Index struct {
	vectors    vectorstore.Store
	collection string
}

func NewIndex(vectors vectorstore.Store, collection string) *Index {
	return &Index{vectors: vectors, collection: collection}
}

// Resolve computes the fingerprint for (datasetID, content) and checks
// whether a canonical point for it is already live. Callers that also
// want the cosine secondary check (spec §9) should compare embeddings
// themselves via CosineSimilarity before trusting IsDuplicate when the
// dataset's DuplicateCosineThreshold is nonzero.
func (ix *Index) Resolve(ctx context.Context, datasetID, content string) (Resolution, error) {
	fp := Fingerprint(datasetID, content)
	exists, err := ix.vectors.Exists(ctx, ix.collection, fp)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Fingerprint: fp, IsDuplicate: exists}, nil
}

// RecordDuplicate links a duplicate chunk to its canonical fingerprint
// without touching the vector store (spec §4.D: "do not upsert a new
// vector point").
func (ix *Index) RecordDuplicate(ctx context.Context, meta metadatastore.Store, chunkID, canonicalFingerprint uuid.UUID) error {
	return meta.InsertCollision(ctx, chunkID, canonicalFingerprint)
}

// ElectCanonical runs the canonical-election algorithm (spec §4.D, P4)
// after a canonical chunk has been deleted: the oldest remaining
// duplicate becomes canonical, its own embedding is written into the
// fingerprint's vector point, and its own collision ref is dropped. The
// point keeps its fingerprint id, so every other duplicate's collision
// ref already names it and is left unchanged.
//
// newVectors is the embedding of the elected duplicate's own content,
// computed by the caller (the ingestion worker has the embedding
// client; this package stays embedder-agnostic).
func (ix *Index) ElectCanonical(ctx context.Context, meta metadatastore.Store, canonicalFingerprint uuid.UUID, newVectors vectorstore.VectorSet) (electedChunkID uuid.UUID, ok bool, err error) {
	duplicates, err := meta.DuplicatesOf(ctx, canonicalFingerprint)
	if err != nil {
		return uuid.Nil, false, err
	}
	if len(duplicates) == 0 {
		return uuid.Nil, false, nil
	}

	elected := ElectOldestNonPrivate(duplicates)

	if err := ix.vectors.UpdateVectors(ctx, ix.collection, canonicalFingerprint, newVectors); err != nil {
		return uuid.Nil, false, err
	}
	if err := meta.DeleteCollision(ctx, elected.ID); err != nil {
		return uuid.Nil, false, err
	}
	return elected.ID, true, nil
}

// ElectOldestNonPrivate picks the oldest duplicate, preferring one
// without a "private" tag (spec P4: "preferring non-private"); falls
// back to the oldest duplicate outright if every one is private. Exported
// so a caller that needs to re-embed the election winner before calling
// ElectCanonical (the ingestion delete handler) can determine who that is
// without duplicating the selection rule.
func ElectOldestNonPrivate(duplicates []metadatastore.Chunk) metadatastore.Chunk {
	for _, c := range duplicates {
		if !hasTag(c.TagSet, "private") {
			return c
		}
	}
	return duplicates[0]
}

func hasTag(tagSet []string, tag string) bool {
	for _, t := range tagSet {
		if t == tag {
			return true
		}
	}
	return false
}
