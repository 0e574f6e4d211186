package ingestion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/devflowinc/trieve-sub001/internal/errs"
	"github.com/devflowinc/trieve-sub001/internal/queue"
	"github.com/devflowinc/trieve-sub001/internal/vectorstore"
)

func TestDelete_DuplicateChunkLeavesCanonicalPointUntouched(t *testing.T) {
	w, meta, vectors, _ := newTestWorker(t)
	ctx := context.Background()

	a, b := "a", "b"
	require.NoError(t, w.BulkUpload(ctx, queue.IngestMessage{
		Kind: queue.KindBulkUpload, DatasetID: "ds1",
		Chunks: []queue.ChunkInput{{Content: "shared text", TrackingID: &a}},
	}))
	require.NoError(t, w.BulkUpload(ctx, queue.IngestMessage{
		Kind: queue.KindBulkUpload, DatasetID: "ds1",
		Chunks: []queue.ChunkInput{{Content: "shared text", TrackingID: &b}},
	}))

	canonical, err := meta.GetChunkByTrackingID(ctx, "ds1", "a")
	require.NoError(t, err)
	duplicate, err := meta.GetChunkByTrackingID(ctx, "ds1", "b")
	require.NoError(t, err)
	require.Equal(t, canonical.Fingerprint, duplicate.Fingerprint)

	require.NoError(t, w.Delete(ctx, queue.IngestMessage{
		Kind: queue.KindDelete, DatasetID: "ds1", ChunkID: duplicate.ID,
	}))

	_, err = meta.GetChunk(ctx, "ds1", duplicate.ID)
	require.True(t, errs.IsNotFound(err))

	collection := vectorstore.CollectionName("ds1")
	exists, err := vectors.Exists(ctx, collection, canonical.Fingerprint)
	require.NoError(t, err)
	require.True(t, exists, "canonical chunk's point must survive deleting its duplicate")

	_, err = meta.GetChunk(ctx, "ds1", canonical.ID)
	require.NoError(t, err)
}

func TestDelete_CanonicalChunkWithNoDuplicatesRemovesVectorPoint(t *testing.T) {
	w, meta, vectors, _ := newTestWorker(t)
	ctx := context.Background()

	require.NoError(t, w.BulkUpload(ctx, queue.IngestMessage{
		Kind: queue.KindBulkUpload, DatasetID: "ds1",
		Chunks: []queue.ChunkInput{{Content: "lone chunk"}},
	}))

	chunks := metaAllChunks(meta, "ds1")
	require.Len(t, chunks, 1)
	target := chunks[0]

	collection := vectorstore.CollectionName("ds1")
	exists, err := vectors.Exists(ctx, collection, target.Fingerprint)
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, w.Delete(ctx, queue.IngestMessage{
		Kind: queue.KindDelete, DatasetID: "ds1", ChunkID: target.ID,
	}))

	_, err = meta.GetChunk(ctx, "ds1", target.ID)
	require.True(t, errs.IsNotFound(err))

	exists, err = vectors.Exists(ctx, collection, target.Fingerprint)
	require.NoError(t, err)
	require.False(t, exists, "a canonical chunk's point must not outlive it when no duplicate remains")
}

func TestDelete_CanonicalChunkWithDuplicateElectsNewCanonical(t *testing.T) {
	w, meta, vectors, _ := newTestWorker(t)
	ctx := context.Background()

	c1, c2 := "c1", "c2"
	require.NoError(t, w.BulkUpload(ctx, queue.IngestMessage{
		Kind: queue.KindBulkUpload, DatasetID: "ds1",
		Chunks: []queue.ChunkInput{{Content: "shared text", TrackingID: &c1}},
	}))
	require.NoError(t, w.BulkUpload(ctx, queue.IngestMessage{
		Kind: queue.KindBulkUpload, DatasetID: "ds1",
		Chunks: []queue.ChunkInput{{Content: "shared text", TrackingID: &c2}},
	}))

	canonical, err := meta.GetChunkByTrackingID(ctx, "ds1", "c1")
	require.NoError(t, err)
	duplicate, err := meta.GetChunkByTrackingID(ctx, "ds1", "c2")
	require.NoError(t, err)
	fingerprint := canonical.Fingerprint

	require.NoError(t, w.Delete(ctx, queue.IngestMessage{
		Kind: queue.KindDelete, DatasetID: "ds1", ChunkID: canonical.ID,
	}))

	_, err = meta.GetChunk(ctx, "ds1", canonical.ID)
	require.True(t, errs.IsNotFound(err))

	collection := vectorstore.CollectionName("ds1")
	exists, err := vectors.Exists(ctx, collection, fingerprint)
	require.NoError(t, err)
	require.True(t, exists, "the elected duplicate's point must take over the canonical fingerprint")

	_, stillDuplicate, err := meta.CollisionFingerprint(ctx, duplicate.ID)
	require.NoError(t, err)
	require.False(t, stillDuplicate, "the elected duplicate must no longer carry a collision ref")
}
