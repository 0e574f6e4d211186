package dataset

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/devflowinc/trieve-sub001/internal/analytics"
	"github.com/devflowinc/trieve-sub001/internal/metadatastore"
	"github.com/devflowinc/trieve-sub001/internal/queue"
	"github.com/devflowinc/trieve-sub001/internal/vectorstore"
)

// fakeQueue is the same in-process Queue double used by the ingestion and
// group/tag packages' tests, duplicated here since the packages don't
// share test infra.
type fakeQueue struct {
	mu    sync.Mutex
	lists map[string][]string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{lists: map[string][]string{}}
}

func (q *fakeQueue) Pop(ctx context.Context, src, dst string, timeout time.Duration) (string, error) {
	q.mu.Lock()
	if len(q.lists[src]) > 0 {
		v := q.lists[src][0]
		q.lists[src] = q.lists[src][1:]
		q.lists[dst] = append(q.lists[dst], v)
		q.mu.Unlock()
		return v, nil
	}
	q.mu.Unlock()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(timeout):
		return "", nil
	}
}

func (q *fakeQueue) Ack(ctx context.Context, list, value string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, v := range q.lists[list] {
		if v == value {
			q.lists[list] = append(q.lists[list][:i], q.lists[list][i+1:]...)
			break
		}
	}
	return nil
}

func (q *fakeQueue) Push(ctx context.Context, list, value string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lists[list] = append(q.lists[list], value)
	return nil
}

func (q *fakeQueue) Close() error { return nil }

func (q *fakeQueue) all(list string) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.lists[list]...)
}

func newTestWorker(t *testing.T) (*Worker, *metadatastore.MemStore, *vectorstore.MemStore, *analytics.MemStore, *fakeQueue) {
	t.Helper()
	meta := metadatastore.NewMemStore()
	vectors := vectorstore.NewMemStore()
	an := analytics.NewMemStore()
	q := newFakeQueue()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	w := NewWorker(q, meta, vectors, an, logger)
	return w, meta, vectors, an, q
}

func seedChunks(t *testing.T, meta *metadatastore.MemStore, vectors *vectorstore.MemStore, datasetID, collection string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		fp := uuid.New()
		row := metadatastore.BulkChunkRow{Content: "content"}
		if _, err := meta.BulkInsertChunks(ctx, datasetID, []metadatastore.BulkChunkRow{row}, []uuid.UUID{fp}, false); err != nil {
			t.Fatalf("BulkInsertChunks: %v", err)
		}
		point := vectorstore.Point{ID: fp, Payload: vectorstore.Payload{DatasetID: datasetID}}
		if err := vectors.Upsert(ctx, collection, []vectorstore.Point{point}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
}

func TestSoftDelete_EnqueuesClearJob(t *testing.T) {
	meta := metadatastore.NewMemStore()
	q := newFakeQueue()
	ctx := context.Background()

	trackingID := "t1"
	meta.PutDataset(metadatastore.Dataset{ID: "ds1", TrackingID: &trackingID})

	if err := SoftDelete(ctx, meta, q, "ds1"); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}

	pending := q.all(queue.DeleteDataset)
	if len(pending) != 1 {
		t.Fatalf("expected one queued delete message, got %v", pending)
	}
	msg, err := queue.DecodeDatasetDeleteMessage(pending[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.DatasetID != "ds1" {
		t.Fatalf("msg.DatasetID = %q, want ds1", msg.DatasetID)
	}

	ds, err := meta.GetDataset(ctx, "ds1", true)
	if err != nil {
		t.Fatalf("GetDataset: %v", err)
	}
	if !ds.Deleted {
		t.Fatalf("dataset not marked deleted")
	}
	if ds.TrackingID != nil {
		t.Fatalf("tracking id not nullified, got %v", ds.TrackingID)
	}
}

func TestSoftDelete_RejectsLockedDataset(t *testing.T) {
	meta := metadatastore.NewMemStore()
	q := newFakeQueue()
	ctx := context.Background()

	meta.PutDataset(metadatastore.Dataset{
		ID:                  "ds1",
		ServerConfiguration: map[string]any{"LOCKED": true},
	})

	if err := SoftDelete(ctx, meta, q, "ds1"); err == nil {
		t.Fatalf("expected locked dataset to reject soft delete")
	}
	if len(q.all(queue.DeleteDataset)) != 0 {
		t.Fatalf("locked dataset should not have enqueued a delete job")
	}
}

func TestWorkerHandle_ClearsInBatchesAndEmitsEvents(t *testing.T) {
	w, meta, vectors, an, q := newTestWorker(t)
	w.BatchSize = 5
	ctx := context.Background()

	datasetID := "ds1"
	collection := vectorstore.CollectionName(datasetID)
	meta.PutDataset(metadatastore.Dataset{ID: datasetID})
	seedChunks(t, meta, vectors, datasetID, collection, 12)

	groupID, err := meta.CreateGroup(ctx, metadatastore.Group{DatasetID: datasetID, Name: "g"})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if err := an.RecordUsageEvent(ctx, analytics.UsageEvent{DatasetID: datasetID, Kind: "search", Count: 1}); err != nil {
		t.Fatalf("RecordUsageEvent: %v", err)
	}

	msg := queue.DatasetDeleteMessage{DatasetID: datasetID}
	raw, _ := msg.Encode()
	w.handle(ctx, raw)

	events := q.all(queue.BulkChunksDeletedEvents)
	if len(events) != 3 {
		t.Fatalf("expected 3 bulk chunks deleted events (5,5,2), got %d: %v", len(events), events)
	}
	var total int
	for _, raw := range events {
		ev, err := queue.DecodeBulkChunksDeletedEvent(raw)
		if err != nil {
			t.Fatalf("decode event: %v", err)
		}
		total += ev.Count
	}
	if total != 12 {
		t.Fatalf("total cleared = %d, want 12", total)
	}

	if _, err := meta.GetDataset(ctx, datasetID, true); err == nil {
		t.Fatalf("expected dataset row to be hard-deleted")
	}
	if _, err := meta.GetGroup(ctx, datasetID, groupID.ID); err == nil {
		t.Fatalf("expected group to be cascade-deleted")
	}
	if !an.WasDeleted(datasetID) {
		t.Fatalf("expected analytics rows to be deleted")
	}

	count, err := vectors.Count(ctx, collection, vectorstore.Filter{})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected all vector points cleared, got %d remaining", count)
	}

	if len(q.all(queue.DeadLetters)) != 0 {
		t.Fatalf("clear should have succeeded without dead-lettering")
	}
}
