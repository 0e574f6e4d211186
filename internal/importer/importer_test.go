package importer

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/devflowinc/trieve-sub001/internal/blobstore"
	"github.com/devflowinc/trieve-sub001/internal/metadatastore"
	"github.com/devflowinc/trieve-sub001/internal/queue"
)

// fakeQueue mirrors internal/ingestion's test double: a minimal in-memory
// Queue for exercising the worker's ack/retry/dead-letter bookkeeping
// without a live Redis instance.
type fakeQueue struct {
	lists map[string][]string
}

func newFakeQueue() *fakeQueue { return &fakeQueue{lists: map[string][]string{}} }

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

func newTestWorker(t *testing.T) (*Worker, *metadatastore.MemStore, *blobstore.MemStore, *fakeQueue) {
	t.Helper()
	meta := metadatastore.NewMemStore()
	meta.PutDataset(metadatastore.Dataset{ID: "ds1"})
	blobs := blobstore.NewMemStore()
	q := newFakeQueue()
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	w := NewWorker(q, meta, blobs, logger)
	return w, meta, blobs, q
}

func TestProcess_CSVStreamsBatchesAndRecordsFile(t *testing.T) {
	w, meta, blobs, q := newTestWorker(t)
	ctx := context.Background()

	// Chunk text comes from a literal "content" column; the mapping only
	// covers the fields that vary per import.
	csvData := "content,tags,tracking,weight\n" +
		"first row,\"animal,forest\",t1,1.5\n" +
		"second row,\"city\",t2,null\n"
	blobs.Put("imports/rows.csv", []byte(csvData))

	msg := queue.CSVImportMessage{
		DatasetID: "ds1",
		ObjectKey: "imports/rows.csv",
		Mapping: queue.FieldMapping{
			TagSet:     "tags",
			TrackingID: "tracking",
			Weight:     "weight",
		},
	}

	require.NoError(t, w.process(ctx, msg))

	pushed := q.lists[queue.Ingestion]
	require.Len(t, pushed, 1)
	batch, err := queue.DecodeIngestMessage(pushed[0])
	require.NoError(t, err)
	require.Equal(t, queue.KindBulkUpload, batch.Kind)
	require.Len(t, batch.Chunks, 2)
	require.Equal(t, "first row", batch.Chunks[0].Content)
	require.Equal(t, []string{"animal", "forest"}, batch.Chunks[0].TagSet)
	require.Equal(t, "t1", *batch.Chunks[0].TrackingID)
	require.InDelta(t, 1.5, *batch.Chunks[0].Weight, 0.0001)
	require.Nil(t, batch.Chunks[1].Weight)
	require.Contains(t, batch.Chunks[0].GroupTrackingIDs, "file:imports/rows.csv")

	files := metaAllFiles(meta, "ds1")
	require.Len(t, files, 1)
	require.Greater(t, files[0].SizeMB, 0.0)
}

func TestProcess_JSONLRowsParseArraysAndNulls(t *testing.T) {
	w, _, blobs, q := newTestWorker(t)
	ctx := context.Background()

	jsonl := `{"content":"row one","tags":["a","b"],"tracking":"j1","extra":null}` + "\n" +
		`{"content":"row two","tags":["c"],"tracking":"j2"}` + "\n"
	blobs.Put("imports/rows.jsonl", []byte(jsonl))

	msg := queue.CSVImportMessage{
		DatasetID: "ds1",
		ObjectKey: "imports/rows.jsonl",
		Mapping:   queue.FieldMapping{TagSet: "tags", TrackingID: "tracking"},
	}
	require.NoError(t, w.process(ctx, msg))

	pushed := q.lists[queue.Ingestion]
	require.Len(t, pushed, 1)
	batch, err := queue.DecodeIngestMessage(pushed[0])
	require.NoError(t, err)
	require.Len(t, batch.Chunks, 2)
	require.Equal(t, []string{"a", "b"}, batch.Chunks[0].TagSet)
	require.Equal(t, "row two", batch.Chunks[1].Content)
}

func TestHandle_ObjectNotYetPresentRequeues(t *testing.T) {
	w, _, _, q := newTestWorker(t)
	ctx := context.Background()

	msg := queue.CSVImportMessage{DatasetID: "ds1", ObjectKey: "imports/missing.csv", FirstEnqueuedUnix: time.Now().Unix()}
	raw, err := msg.Encode()
	require.NoError(t, err)

	q.lists[queue.CSVJSONLProcessing] = append(q.lists[queue.CSVJSONLProcessing], raw)
	w.handle(ctx, raw)

	require.Empty(t, q.lists[queue.CSVJSONLProcessing])
	require.Len(t, q.lists[queue.CSVJSONLIngestion], 1)
	require.Empty(t, q.lists[queue.DeadLettersCSVJSONL])
}

func TestHandle_ObjectNeverAppearsDeadLetters(t *testing.T) {
	w, _, _, q := newTestWorker(t)
	ctx := context.Background()

	msg := queue.CSVImportMessage{
		DatasetID:         "ds1",
		ObjectKey:         "imports/missing.csv",
		FirstEnqueuedUnix: time.Now().Add(-2 * MaxObjectWait).Unix(),
	}
	raw, err := msg.Encode()
	require.NoError(t, err)

	q.lists[queue.CSVJSONLProcessing] = append(q.lists[queue.CSVJSONLProcessing], raw)
	w.handle(ctx, raw)

	require.Empty(t, q.lists[queue.CSVJSONLProcessing])
	require.Empty(t, q.lists[queue.CSVJSONLIngestion])
	require.Len(t, q.lists[queue.DeadLettersCSVJSONL], 1)
}

func TestAutodetectCell(t *testing.T) {
	require.Equal(t, nil, autodetectCell("null"))
	require.Equal(t, nil, autodetectCell("None"))
	require.Equal(t, true, autodetectCell("true"))
	require.Equal(t, 42.0, autodetectCell("42"))
	require.Equal(t, "hello", autodetectCell("hello"))
}

func metaAllFiles(m *metadatastore.MemStore, datasetID string) []metadatastore.File {
	var out []metadatastore.File
	for _, f := range m.AllFiles() {
		if f.DatasetID == datasetID {
			out = append(out, f)
		}
	}
	return out
}
