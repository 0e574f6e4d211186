package search

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devflowinc/trieve-sub001/internal/metadatastore"
	"github.com/devflowinc/trieve-sub001/internal/vectorstore"
)

// TestFuseRRF_Scenario3 reproduces the literal numeric example: four
// chunks (A,B,C,D) appear at different ranks in a semantic list and a
// full-text list; RRF with k=60 must rank them B, A, D, C.
func TestFuseRRF_Scenario3(t *testing.T) {
	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	semantic := []vectorstore.SearchHit{{ID: a}, {ID: b}, {ID: c}, {ID: d}}
	fulltext := []vectorstore.SearchHit{{ID: b}, {ID: d}, {ID: a}, {ID: c}}

	fused := fuseRRF([][]vectorstore.SearchHit{semantic, fulltext})
	require.Len(t, fused, 4)

	order := make([]uuid.UUID, len(fused))
	for i, f := range fused {
		order[i] = f.id
	}
	assert.Equal(t, []uuid.UUID{b, a, d, c}, order)
}

func TestFuseWeighted_NormalizesPerList(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	list1 := []vectorstore.SearchHit{{ID: a, Score: 10}, {ID: b, Score: 0}}
	list2 := []vectorstore.SearchHit{{ID: b, Score: 5}, {ID: a, Score: 0}}

	fused := fuseWeighted([][]vectorstore.SearchHit{list1, list2}, []float64{1, 1})
	require.Len(t, fused, 2)
	// Both normalize to {1.0, 0.0} per list; summed, a and b tie at 1.0 each.
	assert.InDelta(t, 1.0, fused[0].score, 1e-9)
	assert.InDelta(t, 1.0, fused[1].score, 1e-9)
}

func newTestPlanner(t *testing.T) (*Planner, *metadatastore.MemStore, *vectorstore.MemStore) {
	t.Helper()
	meta := metadatastore.NewMemStore()
	vecs := vectorstore.NewMemStore()
	p := NewPlanner(meta, vecs, nil, nil, nil)
	return p, meta, vecs
}

func TestHydrate_DropsOrphanedHits(t *testing.T) {
	p, meta, _ := newTestPlanner(t)
	ctx := context.Background()

	fp1, fp2 := uuid.New(), uuid.New()
	result, err := meta.BulkInsertChunks(ctx, "ds1", []metadatastore.BulkChunkRow{
		{Content: "alpha"},
	}, []uuid.UUID{fp1}, false)
	require.NoError(t, err)
	require.Len(t, result.Chunks, 1)

	hits := []vectorstore.SearchHit{
		{ID: fp1, Score: 0.9},
		{ID: fp2, Score: 0.5}, // no backing chunk row: a dropped orphan
	}

	chunks, dropped, err := p.hydrate(ctx, "ds1", hits)
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)
	require.Len(t, chunks, 1)
	assert.Equal(t, fp1, chunks[0].Fingerprint)
}

func TestPaginate_OffsetWindow(t *testing.T) {
	p, _, _ := newTestPlanner(t)
	hits := make([]vectorstore.SearchHit, 5)
	for i := range hits {
		hits[i] = vectorstore.SearchHit{ID: uuid.New(), Score: float32(5 - i)}
	}

	page, err := p.paginate(Request{Page: 0, PageSize: 2}, hits)
	require.NoError(t, err)
	assert.Equal(t, hits[0:2], page)

	page, err = p.paginate(Request{Page: 1, PageSize: 2}, hits)
	require.NoError(t, err)
	assert.Equal(t, hits[2:4], page)
}

func TestPaginate_RejectsOffsetBeyondWindowWithoutCursor(t *testing.T) {
	p, _, _ := newTestPlanner(t)
	_, err := p.paginate(Request{Page: 1000, PageSize: 1}, nil)
	require.Error(t, err)
}

func TestPaginate_CursorResumesAfterLastSeenID(t *testing.T) {
	p, _, _ := newTestPlanner(t)
	ids := make([]uuid.UUID, 5)
	hits := make([]vectorstore.SearchHit, 5)
	for i := range hits {
		ids[i] = uuid.New()
		hits[i] = vectorstore.SearchHit{ID: ids[i], Score: float32(5 - i)}
	}

	page, err := p.paginate(Request{PageSize: 2, Cursor: &ids[1]}, hits)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID)
	assert.Equal(t, ids[3], page[1].ID)
}

func TestLowerFilter_AddsDatasetAndTagScoping(t *testing.T) {
	groupID := uuid.New()
	req := Request{
		TagFilter: []string{"kubernetes"},
		GroupID:   &groupID,
	}
	f := lowerFilter("ds1", req)
	require.Len(t, f.Must, 3)
	assert.Equal(t, "dataset_id", f.Must[0].Field)
	assert.Equal(t, vectorstore.OpEquals, f.Must[0].Op)
	assert.Equal(t, "ds1", f.Must[0].Value)
	assert.Equal(t, "tag_set", f.Must[1].Field)
	assert.Equal(t, "group_ids", f.Must[2].Field)
}
