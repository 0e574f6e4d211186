package grouptag

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/devflowinc/trieve-sub001/internal/metadatastore"
	"github.com/devflowinc/trieve-sub001/internal/queue"
	"github.com/devflowinc/trieve-sub001/internal/vectorstore"
)

// fakeQueue is an in-process Queue double for this package's tests. It is
// mutex-guarded, pops from the front of a list, and blocks until timeout
// on an empty list.
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

func newTestWorker(t *testing.T) (*Worker, *metadatastore.MemStore, *vectorstore.MemStore, *fakeQueue) {
	t.Helper()
	meta := metadatastore.NewMemStore()
	vectors := vectorstore.NewMemStore()
	q := newFakeQueue()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	w := NewWorker(q, meta, vectors, NewMemLocker(), logger)
	return w, meta, vectors, q
}

// seedGroupMember creates a canonical chunk and vector point belonging to
// groupID with the given starting tags, adds it as a group member, and
// returns the chunk id.
func seedGroupMember(t *testing.T, meta *metadatastore.MemStore, vectors *vectorstore.MemStore, collection, datasetID string, groupID uuid.UUID, tags []string) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	fp := uuid.New()
	row := metadatastore.BulkChunkRow{Content: "hello world"}
	res, err := meta.BulkInsertChunks(ctx, datasetID, []metadatastore.BulkChunkRow{row}, []uuid.UUID{fp}, false)
	if err != nil {
		t.Fatalf("BulkInsertChunks: %v", err)
	}
	chunk := res.Chunks[0]

	if err := meta.AddGroupMember(ctx, groupID, chunk.ID); err != nil {
		t.Fatalf("AddGroupMember: %v", err)
	}

	dsTags, err := meta.UpsertTags(ctx, datasetID, tags)
	if err != nil {
		t.Fatalf("UpsertTags: %v", err)
	}
	tagIDs := make([]uuid.UUID, 0, len(dsTags))
	for _, tg := range dsTags {
		tagIDs = append(tagIDs, tg.ID)
	}
	if err := meta.LinkChunkTags(ctx, chunk.ID, tagIDs); err != nil {
		t.Fatalf("LinkChunkTags: %v", err)
	}

	point := vectorstore.Point{
		ID: fp,
		Payload: vectorstore.Payload{
			DatasetID: datasetID,
			GroupIDs:  []string{groupID.String()},
			GroupTagSets: map[string][]string{
				groupID.String(): tags,
			},
		},
	}
	if err := vectors.Upsert(ctx, collection, []vectorstore.Point{point}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	return chunk.ID
}

func TestPropagate_RewritesTagsAndPayloadWithoutTouchingOtherGroups(t *testing.T) {
	w, meta, vectors, _ := newTestWorker(t)
	ctx := context.Background()

	datasetID := "ds1"
	meta.PutDataset(metadatastore.Dataset{ID: datasetID})
	collection := vectorstore.CollectionName(datasetID)

	groupA, err := meta.CreateGroup(ctx, metadatastore.Group{DatasetID: datasetID, Name: "a", TagSet: []string{"old", "keep"}})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	groupB := uuid.New()

	chunkID := seedGroupMember(t, meta, vectors, collection, datasetID, groupA.ID, []string{"old", "keep"})

	chunk, err := meta.GetChunk(ctx, datasetID, chunkID)
	if err != nil {
		t.Fatalf("GetChunk: %v", err)
	}

	// The same point also belongs to groupB, whose tag-set contribution
	// must survive groupA's rewrite untouched.
	byID := vectorstore.Filter{Must: []vectorstore.Condition{{Field: "id", Op: vectorstore.OpIn, Values: []string{chunk.Fingerprint.String()}}}}
	if err := vectors.SetPayload(ctx, collection, chunk.Fingerprint, "group_ids", []string{groupA.ID.String(), groupB.String()}); err != nil {
		t.Fatalf("SetPayload group_ids: %v", err)
	}
	if err := vectors.PatchPayloadKey(ctx, collection, byID, "group_tag_sets", groupB.String(), []string{"other-group-tag"}); err != nil {
		t.Fatalf("seed groupB tag set: %v", err)
	}

	msg := queue.GroupUpdateMessage{
		DatasetID:  datasetID,
		GroupID:    groupA.ID,
		PrevTagSet: []string{"old", "keep"},
		NewTagSet:  []string{"keep", "new"},
	}
	if _, err := w.propagate(ctx, msg); err != nil {
		t.Fatalf("propagate: %v", err)
	}

	tagSet, err := meta.ChunkTagSet(ctx, chunkID)
	if err != nil {
		t.Fatalf("ChunkTagSet: %v", err)
	}
	wantTags := map[string]bool{"keep": true, "new": true}
	if len(tagSet) != 2 {
		t.Fatalf("chunk tag set = %v, want 2 entries", tagSet)
	}
	for _, tg := range tagSet {
		if !wantTags[tg] {
			t.Fatalf("unexpected tag %q on chunk", tg)
		}
	}

	gotGroup, err := meta.GetGroup(ctx, datasetID, groupA.ID)
	if err != nil {
		t.Fatalf("GetGroup: %v", err)
	}
	gotTags := map[string]bool{}
	for _, tg := range gotGroup.TagSet {
		gotTags[tg] = true
	}
	if len(gotTags) != 2 || !gotTags["keep"] || !gotTags["new"] {
		t.Fatalf("group tag set not updated: %v", gotGroup.TagSet)
	}

	hits, err := vectors.Search(ctx, collection, vectorstore.SearchRequest{Filter: byID, Limit: 1})
	if err != nil || len(hits) != 1 {
		t.Fatalf("Search: hits=%v err=%v", hits, err)
	}

	// groupA's entry on the point now holds the new tag set, and groupB's
	// entry still holds its own.
	for _, tc := range []struct {
		tag  string
		want int64
	}{{"new", 1}, {"old", 0}, {"other-group-tag", 1}} {
		f := vectorstore.Filter{Must: append([]vectorstore.Condition{}, byID.Must[0], vectorstore.Condition{Field: "group_tag_sets", Op: vectorstore.OpIn, Values: []string{tc.tag}})}
		n, err := vectors.Count(ctx, collection, f)
		if err != nil || n != tc.want {
			t.Fatalf("points with group tag %q = %d (err %v), want %d", tc.tag, n, err, tc.want)
		}
	}
}

func TestDiffTagSets(t *testing.T) {
	removed, added := diffTagSets([]string{"a", "b", ""}, []string{"b", "c"})
	if len(removed) != 1 || removed[0] != "a" {
		t.Fatalf("removed = %v, want [a]", removed)
	}
	if len(added) != 1 || added[0] != "c" {
		t.Fatalf("added = %v, want [c]", added)
	}
}

func TestHandle_LockHeldByAnotherRunRetries(t *testing.T) {
	w, meta, _, q := newTestWorker(t)
	ctx := context.Background()

	meta.PutDataset(metadatastore.Dataset{ID: "ds1"})
	groupID := uuid.New()

	// Hold the lock open for the duration of this test.
	locker := w.Locker.(*MemLocker)
	release, ok, err := locker.Acquire(ctx, groupID)
	if err != nil || !ok {
		t.Fatalf("expected to take lock first, got ok=%v err=%v", ok, err)
	}
	defer release(ctx)

	msg := queue.GroupUpdateMessage{DatasetID: "ds1", GroupID: groupID, NewTagSet: []string{"x"}}
	raw, _ := msg.Encode()
	w.handle(ctx, raw)

	pending := q.all(queue.GroupUpdate)
	if len(pending) != 1 {
		t.Fatalf("expected message requeued onto group update queue, got %v", pending)
	}
	if len(q.all(queue.DeadLetters)) != 0 {
		t.Fatalf("message should not have been dead-lettered while lock contended")
	}
}
