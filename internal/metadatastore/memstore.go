package metadatastore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devflowinc/trieve-sub001/internal/errs"
)

// MemStore is an in-process Store used by package tests and by other
// components' tests (ingestion, search, grouptag, dataset lifecycle)
// that need a metadata store without a live Postgres instance.
type MemStore struct {
	mu sync.Mutex

	chunks     map[uuid.UUID]Chunk
	collisions map[uuid.UUID]uuid.UUID // chunk_id -> canonical fingerprint
	tags       map[string]DatasetTag   // dataset_id+"/"+tag -> DatasetTag
	chunkTags  map[uuid.UUID]map[uuid.UUID]bool
	groups     map[uuid.UUID]Group
	members    map[uuid.UUID][]uuid.UUID // group_id -> ordered chunk ids
	bookmarks  []GroupBookmark
	files      map[uuid.UUID]File
	groupFiles map[uuid.UUID]uuid.UUID // group_id -> file_id
	datasets   map[string]Dataset
	lastWords  map[string]int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		chunks:     map[uuid.UUID]Chunk{},
		collisions: map[uuid.UUID]uuid.UUID{},
		tags:       map[string]DatasetTag{},
		chunkTags:  map[uuid.UUID]map[uuid.UUID]bool{},
		groups:     map[uuid.UUID]Group{},
		members:    map[uuid.UUID][]uuid.UUID{},
		files:      map[uuid.UUID]File{},
		groupFiles: map[uuid.UUID]uuid.UUID{},
		datasets:   map[string]Dataset{},
		lastWords:  map[string]int64{},
	}
}

var _ Store = (*MemStore)(nil)

func (m *MemStore) Close() {}

// PutDataset seeds a dataset directly; exercised by package tests rather
// than through an INSERT path, since dataset creation is out of this
// component's scope (spec §4.K only covers lifecycle, not onboarding).
func (m *MemStore) PutDataset(d Dataset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasets[d.ID] = d
}

// AllFiles returns every file row, for tests that need to assert on the
// importer's CreateFile output without a dataset-scoped lookup method.
func (m *MemStore) AllFiles() []File {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]File, 0, len(m.files))
	for _, f := range m.files {
		out = append(out, f)
	}
	return out
}

func (m *MemStore) BulkInsertChunks(ctx context.Context, datasetID string, rows []BulkChunkRow, fingerprints []uuid.UUID, upsertByTrackingID bool) (BulkInsertResult, error) {
	if len(rows) != len(fingerprints) {
		return BulkInsertResult{}, errs.Internal("metadatastore_row_mismatch", "rows and fingerprints must be the same length", nil)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	result := BulkInsertResult{}
	for i, row := range rows {
		if row.TrackingID != nil {
			if existing, ok := m.findByTrackingIDLocked(datasetID, *row.TrackingID); ok {
				if !upsertByTrackingID {
					result.Skipped++
					continue
				}
				existing.Content = row.Content
				existing.HTML = row.HTML
				existing.Link = row.Link
				existing.Fingerprint = fingerprints[i]
				existing.Metadata = row.Metadata
				existing.TimeStamp = row.TimeStamp
				existing.Lat, existing.Lon = row.Lat, row.Lon
				existing.NumValue, existing.Weight = row.NumValue, row.Weight
				existing.ImageURLs, existing.TagSet = row.ImageURLs, row.TagSet
				existing.UpdatedAt = now()
				m.chunks[existing.ID] = existing
				result.Chunks = append(result.Chunks, existing)
				continue
			}
		}

		c := Chunk{
			ID: uuid.New(), DatasetID: datasetID, Fingerprint: fingerprints[i],
			Content: row.Content, HTML: row.HTML, Link: row.Link, TrackingID: row.TrackingID,
			Metadata: row.Metadata, TimeStamp: row.TimeStamp, Lat: row.Lat, Lon: row.Lon,
			NumValue: row.NumValue, Weight: row.Weight, ImageURLs: row.ImageURLs, TagSet: row.TagSet,
			CreatedAt: now(), UpdatedAt: now(),
		}
		m.chunks[c.ID] = c
		result.Chunks = append(result.Chunks, c)
	}
	return result, nil
}

func (m *MemStore) findByTrackingIDLocked(datasetID, trackingID string) (Chunk, bool) {
	for _, c := range m.chunks {
		if c.DatasetID == datasetID && c.TrackingID != nil && *c.TrackingID == trackingID {
			return c, true
		}
	}
	return Chunk{}, false
}

func (m *MemStore) RevertBulkInsert(ctx context.Context, ids []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.chunks, id)
	}
	return nil
}

func (m *MemStore) GetChunk(ctx context.Context, datasetID string, id uuid.UUID) (Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chunks[id]
	if !ok || c.DatasetID != datasetID {
		return Chunk{}, errs.NotFound(errs.CodeNotFound, "chunk not found", nil)
	}
	return c, nil
}

func (m *MemStore) GetChunkByTrackingID(ctx context.Context, datasetID, trackingID string) (Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.findByTrackingIDLocked(datasetID, trackingID)
	if !ok {
		return Chunk{}, errs.NotFound(errs.CodeNotFound, "chunk not found", nil)
	}
	return c, nil
}

func (m *MemStore) UpdateChunk(ctx context.Context, c Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chunks[c.ID]; !ok {
		return errs.NotFound(errs.CodeNotFound, "chunk not found", nil)
	}
	c.UpdatedAt = now()
	m.chunks[c.ID] = c
	return nil
}

func (m *MemStore) DeleteChunk(ctx context.Context, datasetID string, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chunks[id]
	if !ok || c.DatasetID != datasetID {
		return errs.NotFound(errs.CodeNotFound, "chunk not found", nil)
	}
	delete(m.chunks, id)
	delete(m.chunkTags, id)
	return nil
}

func (m *MemStore) GetChunksByIDs(ctx context.Context, datasetID string, ids []uuid.UUID) ([]Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Chunk
	for _, id := range ids {
		if c, ok := m.chunks[id]; ok && c.DatasetID == datasetID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MemStore) GetChunksByFingerprints(ctx context.Context, datasetID string, fingerprints []uuid.UUID) ([]Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[uuid.UUID]bool, len(fingerprints))
	for _, fp := range fingerprints {
		want[fp] = true
	}
	var out []Chunk
	for _, c := range m.chunks {
		if c.DatasetID == datasetID && want[c.Fingerprint] {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MemStore) ScanChunksSince(ctx context.Context, datasetID string, since time.Time, afterID uuid.UUID, limit int) ([]Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matching []Chunk
	for _, c := range m.chunks {
		if c.DatasetID != datasetID || c.CreatedAt.Before(since) {
			continue
		}
		matching = append(matching, c)
	}
	sort.Slice(matching, func(i, j int) bool { return matching[i].ID.String() < matching[j].ID.String() })

	var out []Chunk
	for _, c := range matching {
		if c.ID.String() <= afterID.String() {
			continue
		}
		out = append(out, c)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemStore) InsertCollision(ctx context.Context, chunkID, canonicalFingerprint uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collisions[chunkID] = canonicalFingerprint
	return nil
}

func (m *MemStore) DeleteCollision(ctx context.Context, chunkID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collisions, chunkID)
	return nil
}

func (m *MemStore) CollisionFingerprint(ctx context.Context, chunkID uuid.UUID) (uuid.UUID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fp, ok := m.collisions[chunkID]
	return fp, ok, nil
}

func (m *MemStore) DuplicatesOf(ctx context.Context, canonicalFingerprint uuid.UUID) ([]Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Chunk
	for chunkID, fp := range m.collisions {
		if fp != canonicalFingerprint {
			continue
		}
		if c, ok := m.chunks[chunkID]; ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemStore) UpsertTags(ctx context.Context, datasetID string, tags []string) ([]DatasetTag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	normalized := normalizeTags(tags)
	out := make([]DatasetTag, 0, len(normalized))
	for _, tag := range normalized {
		key := datasetID + "/" + tag
		dt, ok := m.tags[key]
		if !ok {
			dt = DatasetTag{ID: uuid.New(), DatasetID: datasetID, Tag: tag}
			m.tags[key] = dt
		}
		out = append(out, dt)
	}
	return out, nil
}

func (m *MemStore) LinkChunkTags(ctx context.Context, chunkID uuid.UUID, tagIDs []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chunkTags[chunkID] == nil {
		m.chunkTags[chunkID] = map[uuid.UUID]bool{}
	}
	for _, id := range tagIDs {
		m.chunkTags[chunkID][id] = true
	}
	return nil
}

func (m *MemStore) UnlinkChunkTags(ctx context.Context, chunkID uuid.UUID, tagIDs []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range tagIDs {
		delete(m.chunkTags[chunkID], id)
	}
	return nil
}

func (m *MemStore) UnlinkAllChunkTags(ctx context.Context, chunkID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chunkTags, chunkID)
	return nil
}

func (m *MemStore) ChunkTagSet(ctx context.Context, chunkID uuid.UUID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for tagID := range m.chunkTags[chunkID] {
		for _, dt := range m.tags {
			if dt.ID == tagID {
				out = append(out, dt.Tag)
			}
		}
	}
	return out, nil
}

func (m *MemStore) CreateBookmark(ctx context.Context, groupID, chunkID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookmarks = append(m.bookmarks, GroupBookmark{GroupID: groupID, ChunkID: chunkID, CreatedAt: now()})
	return nil
}

func (m *MemStore) DeleteBookmarksForDataset(ctx context.Context, datasetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	groupIn := map[uuid.UUID]bool{}
	for id, g := range m.groups {
		if g.DatasetID == datasetID {
			groupIn[id] = true
		}
	}
	kept := m.bookmarks[:0]
	for _, b := range m.bookmarks {
		if !groupIn[b.GroupID] {
			kept = append(kept, b)
		}
	}
	m.bookmarks = kept
	return nil
}

func (m *MemStore) RemoveChunkFromGroups(ctx context.Context, chunkID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for groupID, members := range m.members {
		kept := members[:0]
		for _, id := range members {
			if id != chunkID {
				kept = append(kept, id)
			}
		}
		m.members[groupID] = kept
	}
	kept := m.bookmarks[:0]
	for _, b := range m.bookmarks {
		if b.ChunkID != chunkID {
			kept = append(kept, b)
		}
	}
	m.bookmarks = kept
	return nil
}

func (m *MemStore) CreateGroup(ctx context.Context, g Group) (Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g.ID = uuid.New()
	g.CreatedAt = now()
	m.groups[g.ID] = g
	return g, nil
}

func (m *MemStore) GetGroup(ctx context.Context, datasetID string, id uuid.UUID) (Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok || g.DatasetID != datasetID {
		return Group{}, errs.NotFound(errs.CodeNotFound, "group not found", nil)
	}
	return g, nil
}

func (m *MemStore) UpdateGroupTagSet(ctx context.Context, datasetID string, id uuid.UUID, tagSet []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok || g.DatasetID != datasetID {
		return errs.NotFound(errs.CodeNotFound, "group not found", nil)
	}
	g.TagSet = tagSet
	m.groups[id] = g
	return nil
}

func (m *MemStore) GetOrCreateGroupByTrackingID(ctx context.Context, datasetID, trackingID string) (Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.groups {
		if g.DatasetID == datasetID && g.TrackingID != nil && *g.TrackingID == trackingID {
			return g, nil
		}
	}
	g := Group{ID: uuid.New(), DatasetID: datasetID, Name: trackingID, TrackingID: &trackingID, CreatedAt: now()}
	m.groups[g.ID] = g
	return g, nil
}

func (m *MemStore) DeleteGroup(ctx context.Context, datasetID string, id uuid.UUID, cascadeMembers bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok || g.DatasetID != datasetID {
		return errs.NotFound(errs.CodeNotFound, "group not found", nil)
	}
	if cascadeMembers {
		for _, chunkID := range m.members[id] {
			delete(m.chunks, chunkID)
		}
	}
	delete(m.members, id)
	delete(m.groups, id)
	return nil
}

func (m *MemStore) GroupMembersPage(ctx context.Context, groupID uuid.UUID, afterChunkID uuid.UUID, limit int) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := append([]uuid.UUID(nil), m.members[groupID]...)
	sort.Slice(all, func(i, j int) bool { return all[i].String() < all[j].String() })

	var out []uuid.UUID
	for _, id := range all {
		if id.String() <= afterChunkID.String() {
			continue
		}
		out = append(out, id)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemStore) AddGroupMember(ctx context.Context, groupID, chunkID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.members[groupID] {
		if id == chunkID {
			return nil
		}
	}
	m.members[groupID] = append(m.members[groupID], chunkID)
	return nil
}

func (m *MemStore) CreateFile(ctx context.Context, f File) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f.ID = uuid.New()
	f.CreatedAt = now()
	m.files[f.ID] = f
	if f.GroupID != nil {
		m.groupFiles[*f.GroupID] = f.ID
	}
	return f, nil
}

func (m *MemStore) GroupFromFile(ctx context.Context, datasetID string, fileID uuid.UUID) (Group, error) {
	m.mu.Lock()
	for groupID, fid := range m.groupFiles {
		if fid == fileID {
			m.mu.Unlock()
			return m.GetGroup(ctx, datasetID, groupID)
		}
	}
	m.mu.Unlock()
	return Group{}, errs.NotFound(errs.CodeNotFound, "file has no owning group", nil)
}

func (m *MemStore) GetDataset(ctx context.Context, id string, includeDeleted bool) (Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.datasets[id]
	if !ok || (d.Deleted && !includeDeleted) {
		return Dataset{}, errs.NotFound(errs.CodeNotFound, "dataset not found", nil)
	}
	return d, nil
}

func (m *MemStore) SoftDeleteDataset(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.datasets[id]
	if !ok {
		return errs.NotFound(errs.CodeNotFound, "dataset not found", nil)
	}
	if locked, _ := d.ServerConfiguration["LOCKED"].(bool); locked {
		return errs.BadRequest(errs.CodeDatasetLocked, "dataset is locked", nil)
	}
	d.Deleted = true
	d.TrackingID = nil
	m.datasets[id] = d
	return nil
}

func (m *MemStore) HardDeleteDataset(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.datasets, id)
	return nil
}

func (m *MemStore) GetDatasetConfig(ctx context.Context, id string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.datasets[id]
	if !ok {
		return nil, errs.NotFound(errs.CodeNotFound, "dataset not found", nil)
	}
	return d.ServerConfiguration, nil
}

func (m *MemStore) DeleteChunksBatch(ctx context.Context, datasetID string, limit int) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for id, c := range m.chunks {
		if c.DatasetID != datasetID {
			continue
		}
		ids = append(ids, id)
		if len(ids) >= limit {
			break
		}
	}
	for _, id := range ids {
		delete(m.chunks, id)
	}
	return ids, nil
}

func (m *MemStore) DeleteGroupsForDataset(ctx context.Context, datasetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, g := range m.groups {
		if g.DatasetID == datasetID {
			delete(m.groups, id)
			delete(m.members, id)
		}
	}
	return nil
}

func (m *MemStore) DeleteFilesForDataset(ctx context.Context, datasetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, f := range m.files {
		if f.DatasetID == datasetID {
			delete(m.files, id)
		}
	}
	return nil
}

func (m *MemStore) WordsLastProcessed(ctx context.Context, datasetID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastWords[datasetID], nil
}

func (m *MemStore) SetWordsLastProcessed(ctx context.Context, datasetID string, unixSeconds int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastWords[datasetID] = unixSeconds
	return nil
}

func now() time.Time { return time.Now() }
