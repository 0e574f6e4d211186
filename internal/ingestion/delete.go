package ingestion

import (
	"context"

	"github.com/google/uuid"

	"github.com/devflowinc/trieve-sub001/internal/collision"
	"github.com/devflowinc/trieve-sub001/internal/metadatastore"
	"github.com/devflowinc/trieve-sub001/internal/queue"
	"github.com/devflowinc/trieve-sub001/internal/vectorstore"
)

// Delete runs the single-chunk delete cascade (spec §3 Lifecycle,
// P4 "no orphan vector point"): tags, bookmarks, and group memberships
// are always cleared; the vector point is either left alone (the chunk
// was a duplicate sharing someone else's point), rewritten onto the
// oldest surviving non-private duplicate (the chunk was canonical and
// has duplicates), or removed outright (canonical, no duplicates left).
func (w *Worker) Delete(ctx context.Context, msg queue.IngestMessage) error {
	chunk, err := w.Meta.GetChunk(ctx, msg.DatasetID, msg.ChunkID)
	if err != nil {
		return err
	}

	_, isDuplicate, err := w.Meta.CollisionFingerprint(ctx, chunk.ID)
	if err != nil {
		return err
	}
	if !isDuplicate {
		if err := w.deleteCanonicalVector(ctx, msg.DatasetID, chunk); err != nil {
			return err
		}
	}

	if err := w.Meta.UnlinkAllChunkTags(ctx, chunk.ID); err != nil {
		return err
	}
	if err := w.Meta.RemoveChunkFromGroups(ctx, chunk.ID); err != nil {
		return err
	}
	// No-op when chunk was canonical: a canonical chunk never carries its
	// own collision row. When it was a duplicate, this drops the ref that
	// isDuplicate above found.
	if err := w.Meta.DeleteCollision(ctx, chunk.ID); err != nil {
		return err
	}

	return w.Meta.DeleteChunk(ctx, msg.DatasetID, chunk.ID)
}

// deleteCanonicalVector runs the canonical-election half of the delete
// cascade for a chunk confirmed to own the live vector point at its own
// Fingerprint: with no surviving duplicates the point is removed
// outright; with duplicates left, the oldest non-private one is
// re-embedded and its content takes over the point via
// collision.Index.ElectCanonical.
func (w *Worker) deleteCanonicalVector(ctx context.Context, datasetID string, chunk metadatastore.Chunk) error {
	collectionName := vectorstore.CollectionName(datasetID)

	duplicates, err := w.Meta.DuplicatesOf(ctx, chunk.Fingerprint)
	if err != nil {
		return err
	}
	if len(duplicates) == 0 {
		return w.Vectors.Delete(ctx, collectionName, []uuid.UUID{chunk.Fingerprint})
	}

	cfg, err := w.datasetConfig(ctx, datasetID)
	if err != nil {
		return err
	}
	elected := collision.ElectOldestNonPrivate(duplicates)
	points, err := w.buildPoints(ctx, cfg, datasetID, []metadatastore.Chunk{elected}, []originalRow{{}})
	if err != nil {
		return err
	}

	ix := collision.NewIndex(w.Vectors, collectionName)
	_, _, err = ix.ElectCanonical(ctx, w.Meta, chunk.Fingerprint, points[0].Vectors)
	return err
}
