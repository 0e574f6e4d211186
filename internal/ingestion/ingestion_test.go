package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/devflowinc/trieve-sub001/internal/errs"
	"github.com/devflowinc/trieve-sub001/internal/metadatastore"
	"github.com/devflowinc/trieve-sub001/internal/queue"
	"github.com/devflowinc/trieve-sub001/internal/vectorstore"
)

// fakeQueue is a minimal in-memory Queue for exercising Worker.Run's
// retry/dead-letter bookkeeping without a live Redis instance.
type fakeQueue struct {
	lists map[string][]string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{lists: map[string][]string{}}
}

func (q *fakeQueue) Pop(ctx context.Context, src, dst string, timeout time.Duration) (string, error) {
	l := q.lists[src]
	if len(l) == 0 {
		return "", nil
	}
	v := l[len(l)-1]
	q.lists[src] = l[:len(l)-1]
	q.lists[dst] = append(q.lists[dst], v)
	return v, nil
}

func (q *fakeQueue) Ack(ctx context.Context, list, value string) error {
	l := q.lists[list]
	for i, v := range l {
		if v == value {
			q.lists[list] = append(l[:i], l[i+1:]...)
			break
		}
	}
	return nil
}

func (q *fakeQueue) Push(ctx context.Context, list, value string) error {
	q.lists[list] = append(q.lists[list], value)
	return nil
}

func (q *fakeQueue) Close() error { return nil }

var _ queue.Queue = (*fakeQueue)(nil)

func newTestWorker(t *testing.T) (*Worker, *metadatastore.MemStore, *vectorstore.MemStore, *fakeQueue) {
	t.Helper()
	meta := metadatastore.NewMemStore()
	meta.PutDataset(metadatastore.Dataset{
		ID: "ds1",
		ServerConfiguration: map[string]any{
			"SEMANTIC_ENABLED": false,
			"FULLTEXT_ENABLED": false,
			"BM25_ENABLED":     false,
		},
	})
	vectors := vectorstore.NewMemStore()
	q := newFakeQueue()
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	w := NewWorker(q, meta, vectors, logger)
	return w, meta, vectors, q
}

func TestBulkUpload_InsertsCanonicalChunkAndUpsertsPoint(t *testing.T) {
	w, meta, vectors, _ := newTestWorker(t)
	ctx := context.Background()

	msg := queue.IngestMessage{
		Kind:      queue.KindBulkUpload,
		DatasetID: "ds1",
		Chunks: []queue.ChunkInput{
			{Content: "the quick brown fox", TagSet: []string{"Animal", "animal", ""}},
		},
	}

	require.NoError(t, w.BulkUpload(ctx, msg))

	chunks := metaAllChunks(meta, "ds1")
	require.Len(t, chunks, 1)
	require.Equal(t, []string{"Animal", "animal"}, chunks[0].TagSet)

	collection := vectorstore.CollectionName("ds1")
	count, err := vectors.Count(ctx, collection, vectorstore.Filter{})
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestBulkUpload_DuplicateContentRecordsCollisionWithoutSecondPoint(t *testing.T) {
	w, _, vectors, _ := newTestWorker(t)
	ctx := context.Background()

	first := queue.IngestMessage{
		Kind:      queue.KindBulkUpload,
		DatasetID: "ds1",
		Chunks:    []queue.ChunkInput{{Content: "duplicate me"}},
	}
	require.NoError(t, w.BulkUpload(ctx, first))

	second := queue.IngestMessage{
		Kind:      queue.KindBulkUpload,
		DatasetID: "ds1",
		Chunks:    []queue.ChunkInput{{Content: "duplicate me"}},
	}
	require.NoError(t, w.BulkUpload(ctx, second))

	collection := vectorstore.CollectionName("ds1")
	count, err := vectors.Count(ctx, collection, vectorstore.Filter{})
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestBulkUpload_GroupTrackingIDResolvesToSharedGroup(t *testing.T) {
	w, meta, _, _ := newTestWorker(t)
	ctx := context.Background()

	msg := queue.IngestMessage{
		Kind:      queue.KindBulkUpload,
		DatasetID: "ds1",
		Chunks: []queue.ChunkInput{
			{Content: "chunk one", GroupTrackingIDs: []string{"doc-42"}},
			{Content: "chunk two", GroupTrackingIDs: []string{"doc-42"}},
		},
	}
	require.NoError(t, w.BulkUpload(ctx, msg))

	g1, err := meta.GetOrCreateGroupByTrackingID(ctx, "ds1", "doc-42")
	require.NoError(t, err)
	g2, err := meta.GetOrCreateGroupByTrackingID(ctx, "ds1", "doc-42")
	require.NoError(t, err)
	require.Equal(t, g1.ID, g2.ID)

	members, err := meta.GroupMembersPage(ctx, g1.ID, uuid.Nil, 10)
	require.NoError(t, err)
	require.Len(t, members, 2)
}

func TestUpdate_ContentChangeReEmbedsUnderNewFingerprint(t *testing.T) {
	w, meta, vectors, _ := newTestWorker(t)
	ctx := context.Background()

	bulk := queue.IngestMessage{
		Kind:      queue.KindBulkUpload,
		DatasetID: "ds1",
		Chunks:    []queue.ChunkInput{{Content: "original content"}},
	}
	require.NoError(t, w.BulkUpload(ctx, bulk))

	var target metadatastore.Chunk
	for _, c := range metaAllChunks(meta, "ds1") {
		target = c
	}
	oldFingerprint := target.Fingerprint

	update := queue.IngestMessage{
		Kind:      queue.KindUpdate,
		DatasetID: "ds1",
		ChunkID:   target.ID,
		Update:    queue.ChunkInput{Content: "changed content"},
	}
	require.NoError(t, w.Update(ctx, update))

	updated, err := meta.GetChunk(ctx, "ds1", target.ID)
	require.NoError(t, err)
	require.NotEqual(t, oldFingerprint, updated.Fingerprint)
	require.Equal(t, "changed content", updated.Content)

	collection := vectorstore.CollectionName("ds1")
	existsOld, err := vectors.Exists(ctx, collection, oldFingerprint)
	require.NoError(t, err)
	require.False(t, existsOld)
	existsNew, err := vectors.Exists(ctx, collection, updated.Fingerprint)
	require.NoError(t, err)
	require.True(t, existsNew)
}

func TestUpdate_NonContentChangeOnlyPatchesPayload(t *testing.T) {
	w, meta, vectors, _ := newTestWorker(t)
	ctx := context.Background()

	bulk := queue.IngestMessage{
		Kind:      queue.KindBulkUpload,
		DatasetID: "ds1",
		Chunks:    []queue.ChunkInput{{Content: "stable content", Link: "https://old"}},
	}
	require.NoError(t, w.BulkUpload(ctx, bulk))

	var target metadatastore.Chunk
	for _, c := range metaAllChunks(meta, "ds1") {
		target = c
	}

	update := queue.IngestMessage{
		Kind:      queue.KindUpdate,
		DatasetID: "ds1",
		ChunkID:   target.ID,
		Update:    queue.ChunkInput{Link: "https://new"},
	}
	require.NoError(t, w.Update(ctx, update))

	updated, err := meta.GetChunk(ctx, "ds1", target.ID)
	require.NoError(t, err)
	require.Equal(t, "https://new", updated.Link)
	require.Equal(t, target.Fingerprint, updated.Fingerprint)

	collection := vectorstore.CollectionName("ds1")
	exists, err := vectors.Exists(ctx, collection, target.Fingerprint)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestUpdate_TrackingIDConflictIsBadRequest(t *testing.T) {
	w, meta, _, _ := newTestWorker(t)
	ctx := context.Background()

	a := "chunk-a"
	b := "chunk-b"
	bulk := queue.IngestMessage{
		Kind:      queue.KindBulkUpload,
		DatasetID: "ds1",
		Chunks: []queue.ChunkInput{
			{Content: "first", TrackingID: &a},
			{Content: "second", TrackingID: &b},
		},
	}
	require.NoError(t, w.BulkUpload(ctx, bulk))

	target, err := meta.GetChunkByTrackingID(ctx, "ds1", "chunk-a")
	require.NoError(t, err)

	update := queue.IngestMessage{
		Kind:      queue.KindUpdate,
		DatasetID: "ds1",
		ChunkID:   target.ID,
		Update:    queue.ChunkInput{TrackingID: &b},
	}
	err = w.Update(ctx, update)
	require.Error(t, err)
	require.True(t, errs.IsBadRequest(err))
}

func TestHandle_NonRetryableFailureDeadLettersWithoutRetry(t *testing.T) {
	w, _, _, q := newTestWorker(t)
	ctx := context.Background()

	// No dataset row exists for "missing-dataset", so GetDatasetConfig
	// returns NotFound, which is non-retryable: this should dead-letter on
	// the very first attempt rather than going back through Ingestion.
	msg := queue.IngestMessage{
		Kind:      queue.KindBulkUpload,
		DatasetID: "missing-dataset",
		Chunks:    []queue.ChunkInput{{Content: "x"}},
	}
	raw, err := msg.Encode()
	require.NoError(t, err)

	q.lists[queue.Processing] = append(q.lists[queue.Processing], raw)
	w.handle(ctx, raw)

	require.Empty(t, q.lists[queue.Processing])
	require.Len(t, q.lists[queue.DeadLetters], 1)
}

func TestHTMLToText_ExtractsHeadingsAndListItems(t *testing.T) {
	html := `<html><body><h1>Title</h1><p>Hello world</p><ul><li>one</li><li>two</li></ul></body></html>`
	text, err := HTMLToText(html)
	require.NoError(t, err)
	require.Contains(t, text, "# Title")
	require.Contains(t, text, "Hello world")
	require.Contains(t, text, "- one")
	require.Contains(t, text, "- two")
}

func metaAllChunks(m *metadatastore.MemStore, datasetID string) []metadatastore.Chunk {
	chunks, _ := m.ScanChunksSince(context.Background(), datasetID, time.Time{}, uuid.Nil, 100)
	return chunks
}
