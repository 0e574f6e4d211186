package metadatastore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestBulkInsertChunksSkipsDuplicateTrackingIDWhenNotUpserting(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	rows := []BulkChunkRow{
		{TrackingID: strPtr("a"), Content: "hello"},
		{TrackingID: strPtr("a"), Content: "hello again"},
	}
	fps := []uuid.UUID{uuid.New(), uuid.New()}

	result, err := store.BulkInsertChunks(ctx, "ds1", rows, fps, false)
	require.NoError(t, err)
	assert.Len(t, result.Chunks, 1)
	assert.Equal(t, 1, result.Skipped)
}

func TestBulkInsertChunksUpsertsByTrackingID(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	fp1, fp2 := uuid.New(), uuid.New()
	first, err := store.BulkInsertChunks(ctx, "ds1", []BulkChunkRow{{TrackingID: strPtr("a"), Content: "v1"}}, []uuid.UUID{fp1}, true)
	require.NoError(t, err)
	require.Len(t, first.Chunks, 1)

	second, err := store.BulkInsertChunks(ctx, "ds1", []BulkChunkRow{{TrackingID: strPtr("a"), Content: "v2"}}, []uuid.UUID{fp2}, true)
	require.NoError(t, err)
	require.Len(t, second.Chunks, 1)
	assert.Equal(t, first.Chunks[0].ID, second.Chunks[0].ID)
	assert.Equal(t, "v2", second.Chunks[0].Content)
	assert.Equal(t, 0, second.Skipped)
}

func TestRevertBulkInsertRemovesRows(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	result, err := store.BulkInsertChunks(ctx, "ds1", []BulkChunkRow{{Content: "x"}}, []uuid.UUID{uuid.New()}, false)
	require.NoError(t, err)
	require.Len(t, result.Chunks, 1)

	require.NoError(t, store.RevertBulkInsert(ctx, []uuid.UUID{result.Chunks[0].ID}))
	_, err = store.GetChunk(ctx, "ds1", result.Chunks[0].ID)
	assert.Error(t, err)
}

func TestDuplicatesOfOrdersOldestFirst(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	canonical := uuid.New()

	older, err := store.BulkInsertChunks(ctx, "ds1", []BulkChunkRow{{Content: "dup1"}}, []uuid.UUID{canonical}, false)
	require.NoError(t, err)
	require.NoError(t, store.InsertCollision(ctx, older.Chunks[0].ID, canonical))

	newer, err := store.BulkInsertChunks(ctx, "ds1", []BulkChunkRow{{Content: "dup2"}}, []uuid.UUID{canonical}, false)
	require.NoError(t, err)
	require.NoError(t, store.InsertCollision(ctx, newer.Chunks[0].ID, canonical))

	dups, err := store.DuplicatesOf(ctx, canonical)
	require.NoError(t, err)
	require.Len(t, dups, 2)
	assert.Equal(t, older.Chunks[0].ID, dups[0].ID)
}

func TestUpsertTagsNormalizesAndDedupes(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	tags, err := store.UpsertTags(ctx, "ds1", []string{"a", "", "a", "b"})
	require.NoError(t, err)
	require.Len(t, tags, 2)
}

func TestGroupMembersPageResumesFromCursor(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	g, err := store.CreateGroup(ctx, Group{DatasetID: "ds1", Name: "g"})
	require.NoError(t, err)

	ids := make([]uuid.UUID, 5)
	for i := range ids {
		ids[i] = uuid.New()
		require.NoError(t, store.AddGroupMember(ctx, g.ID, ids[i]))
	}

	page1, err := store.GroupMembersPage(ctx, g.ID, uuid.Nil, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)

	page2, err := store.GroupMembersPage(ctx, g.ID, page1[len(page1)-1], 2)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.NotEqual(t, page1[0], page2[0])
}

func TestSoftDeleteDatasetRejectsLocked(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	store.PutDataset(Dataset{ID: "ds1", ServerConfiguration: map[string]any{"LOCKED": true}})

	err := store.SoftDeleteDataset(ctx, "ds1")
	require.Error(t, err)
}

func TestSoftDeleteThenGetDatasetIsNotFoundUnlessIncludingDeleted(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	store.PutDataset(Dataset{ID: "ds1", TrackingID: strPtr("t1")})

	require.NoError(t, store.SoftDeleteDataset(ctx, "ds1"))

	_, err := store.GetDataset(ctx, "ds1", false)
	require.Error(t, err)

	withDeleted, err := store.GetDataset(ctx, "ds1", true)
	require.NoError(t, err)
	assert.True(t, withDeleted.Deleted)
	assert.Nil(t, withDeleted.TrackingID)
}

func TestDeleteChunksBatchRespectsLimit(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	rows := make([]BulkChunkRow, 7)
	fps := make([]uuid.UUID, 7)
	for i := range rows {
		fps[i] = uuid.New()
	}
	_, err := store.BulkInsertChunks(ctx, "ds1", rows, fps, false)
	require.NoError(t, err)

	ids, err := store.DeleteChunksBatch(ctx, "ds1", 5)
	require.NoError(t, err)
	assert.Len(t, ids, 5)

	rest, err := store.DeleteChunksBatch(ctx, "ds1", 5)
	require.NoError(t, err)
	assert.Len(t, rest, 2)
}
