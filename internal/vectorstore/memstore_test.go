package vectorstore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStoreUpsertSearchRoundTrip(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, DefaultCollectionConfig("dataset_a", "768_vectors", 768, false, false)))

	id := uuid.New()
	err := store.Upsert(ctx, "dataset_a", []Point{
		{
			ID: id,
			Vectors: VectorSet{
				DenseName: "768_vectors",
				Dense:     []float32{1, 0, 0},
			},
			Payload: Payload{DatasetID: "a", TagSet: []string{"blue"}},
		},
	})
	require.NoError(t, err)

	hits, err := store.Search(ctx, "dataset_a", SearchRequest{
		DenseVectorName: "768_vectors",
		DenseVector:     []float32{1, 0, 0},
		Limit:           10,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, id, hits[0].ID)
}

func TestMemStoreFilterMustAndMustNot(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, DefaultCollectionConfig("ds", "768_vectors", 768, false, false)))

	keep := uuid.New()
	drop := uuid.New()
	require.NoError(t, store.Upsert(ctx, "ds", []Point{
		{ID: keep, Payload: Payload{DatasetID: "ds", TagSet: []string{"red"}}},
		{ID: drop, Payload: Payload{DatasetID: "ds", TagSet: []string{"green"}}},
	}))

	hits, err := store.Search(ctx, "ds", SearchRequest{
		Limit: 10,
		Filter: Filter{
			Must:    []Condition{{Field: "dataset_id", Op: OpEquals, Value: "ds"}},
			MustNot: []Condition{{Field: "tag_set", Op: OpIn, Values: []string{"green"}}},
		},
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, keep, hits[0].ID)
}

func TestMemStoreUpdatePayloadFilterPropagatesToMatchingPoints(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, DefaultCollectionConfig("ds", "768_vectors", 768, false, false)))

	a, b := uuid.New(), uuid.New()
	require.NoError(t, store.Upsert(ctx, "ds", []Point{
		{ID: a, Payload: Payload{DatasetID: "ds", GroupIDs: []string{"g1"}}},
		{ID: b, Payload: Payload{DatasetID: "ds", GroupIDs: []string{"g2"}}},
	}))

	require.NoError(t, store.UpdatePayloadFilter(ctx, "ds", Filter{
		Must: []Condition{{Field: "group_ids", Op: OpIn, Values: []string{"g1"}}},
	}, map[string]any{"tag_set": []string{"propagated"}}))

	n, err := store.Count(ctx, "ds", Filter{Must: []Condition{{Field: "dataset_id", Op: OpEquals, Value: "ds"}}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Only the point in g1 got the patched tag set.
	n, err = store.Count(ctx, "ds", Filter{Must: []Condition{{Field: "tag_set", Op: OpIn, Values: []string{"propagated"}}}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestUpsertAllChunksIntoBatchSize(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, DefaultCollectionConfig("ds", "768_vectors", 768, false, false)))

	points := make([]Point, UpsertBatchSize*2+3)
	for i := range points {
		points[i] = Point{ID: uuid.New(), Payload: Payload{DatasetID: "ds"}}
	}
	require.NoError(t, UpsertAll(ctx, store, "ds", points))

	n, err := store.Count(ctx, "ds", Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(len(points)), n)
}

func TestCollectionNameIsPerDataset(t *testing.T) {
	assert.Equal(t, "dataset_abc", CollectionName("abc"))
}
