package collision

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devflowinc/trieve-sub001/internal/metadatastore"
	"github.com/devflowinc/trieve-sub001/internal/vectorstore"
)

func TestFingerprintIsStableAndContentSensitive(t *testing.T) {
	a := Fingerprint("ds1", "hello")
	b := Fingerprint("ds1", "hello")
	c := Fingerprint("ds1", "goodbye")
	d := Fingerprint("ds2", "hello")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
}

func TestResolveDetectsExistingCanonical(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemStore()
	require.NoError(t, store.CreateCollection(ctx, vectorstore.DefaultCollectionConfig("ds", "768_vectors", 768, false, false)))

	ix := NewIndex(store, "ds")
	res, err := ix.Resolve(ctx, "ds", "hello")
	require.NoError(t, err)
	assert.False(t, res.IsDuplicate)

	require.NoError(t, store.Upsert(ctx, "ds", []vectorstore.Point{{ID: res.Fingerprint}}))

	res2, err := ix.Resolve(ctx, "ds", "hello")
	require.NoError(t, err)
	assert.True(t, res2.IsDuplicate)
	assert.Equal(t, res.Fingerprint, res2.Fingerprint)
}

func TestElectCanonicalPicksOldestNonPrivateDuplicate(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemStore()
	meta := metadatastore.NewMemStore()
	require.NoError(t, store.CreateCollection(ctx, vectorstore.DefaultCollectionConfig("ds", "768_vectors", 768, false, false)))

	canonical := Fingerprint("ds", "hello")
	require.NoError(t, store.Upsert(ctx, "ds", []vectorstore.Point{{ID: canonical}}))

	older, err := meta.BulkInsertChunks(ctx, "ds", []metadatastore.BulkChunkRow{{Content: "hello", TagSet: []string{"private"}}}, []uuid.UUID{canonical}, false)
	require.NoError(t, err)
	require.NoError(t, meta.InsertCollision(ctx, older.Chunks[0].ID, canonical))

	newer, err := meta.BulkInsertChunks(ctx, "ds", []metadatastore.BulkChunkRow{{Content: "hello"}}, []uuid.UUID{canonical}, false)
	require.NoError(t, err)
	require.NoError(t, meta.InsertCollision(ctx, newer.Chunks[0].ID, canonical))

	ix := NewIndex(store, "ds")
	elected, ok, err := ix.ElectCanonical(ctx, meta, canonical, vectorstore.VectorSet{DenseName: "768_vectors", Dense: []float32{1, 2, 3}})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, newer.Chunks[0].ID, elected, "non-private duplicate should be elected over the older private one")

	remaining, err := meta.DuplicatesOf(ctx, canonical)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
	assert.Equal(t, older.Chunks[0].ID, remaining[0].ID)
}

func TestElectCanonicalNoDuplicatesReturnsFalse(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemStore()
	meta := metadatastore.NewMemStore()
	require.NoError(t, store.CreateCollection(ctx, vectorstore.DefaultCollectionConfig("ds", "768_vectors", 768, false, false)))

	ix := NewIndex(store, "ds")
	_, ok, err := ix.ElectCanonical(ctx, meta, uuid.New(), vectorstore.VectorSet{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity(nil, []float32{1}))
}
