package metadatastore

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CursorPageSize bounds maintenance scans (spec §4.C "cursor-based
// scans for maintenance", reused by the group/tag propagator's
// 120-chunk member pages in spec §4.J).
const CursorPageSize = 120

// Store is the Metadata Store Adapter contract (spec §4.C). Every read
// implicitly filters deleted=0; every write is serializable per-row.
type Store interface {
	BulkInsertChunks(ctx context.Context, datasetID string, rows []BulkChunkRow, fingerprints []uuid.UUID, upsertByTrackingID bool) (BulkInsertResult, error)
	RevertBulkInsert(ctx context.Context, ids []uuid.UUID) error

	GetChunk(ctx context.Context, datasetID string, id uuid.UUID) (Chunk, error)
	GetChunkByTrackingID(ctx context.Context, datasetID, trackingID string) (Chunk, error)
	UpdateChunk(ctx context.Context, c Chunk) error
	DeleteChunk(ctx context.Context, datasetID string, id uuid.UUID) error
	GetChunksByIDs(ctx context.Context, datasetID string, ids []uuid.UUID) ([]Chunk, error)
	// GetChunksByFingerprints resolves vector-store hits (keyed by content
	// fingerprint, not chunk id) back to their canonical chunk rows (spec
	// §4.G "Result assembly"); a fingerprint with no live canonical row is
	// simply absent from the result, which callers treat as a dropped hit.
	GetChunksByFingerprints(ctx context.Context, datasetID string, fingerprints []uuid.UUID) ([]Chunk, error)
	// ScanChunksSince pages through a dataset's chunks created at or after
	// since, ordered by id, for the typo corrector's background BK-tree
	// build (spec §4.I: "scans all chunks since the dataset's last
	// processed time").
	ScanChunksSince(ctx context.Context, datasetID string, since time.Time, afterID uuid.UUID, limit int) ([]Chunk, error)

	InsertCollision(ctx context.Context, chunkID, canonicalFingerprint uuid.UUID) error
	DeleteCollision(ctx context.Context, chunkID uuid.UUID) error
	DuplicatesOf(ctx context.Context, canonicalFingerprint uuid.UUID) ([]Chunk, error)
	// CollisionFingerprint reports whether chunkID is itself recorded as a
	// duplicate, and if so, the canonical fingerprint it points at. A
	// chunk with no collision row is either canonical or unique, which a
	// single-chunk delete distinguishes by also checking DuplicatesOf on
	// its own Fingerprint.
	CollisionFingerprint(ctx context.Context, chunkID uuid.UUID) (uuid.UUID, bool, error)

	UpsertTags(ctx context.Context, datasetID string, tags []string) ([]DatasetTag, error)
	LinkChunkTags(ctx context.Context, chunkID uuid.UUID, tagIDs []uuid.UUID) error
	UnlinkChunkTags(ctx context.Context, chunkID uuid.UUID, tagIDs []uuid.UUID) error
	// UnlinkAllChunkTags removes every chunk_tags row for chunkID, for a
	// single-chunk delete's tag cascade (spec §3 Lifecycle). DeleteChunk
	// itself only soft-deletes the chunks row in PgStore, so chunk_tags'
	// ON DELETE CASCADE foreign key never fires and this has to run
	// explicitly.
	UnlinkAllChunkTags(ctx context.Context, chunkID uuid.UUID) error
	ChunkTagSet(ctx context.Context, chunkID uuid.UUID) ([]string, error)

	CreateBookmark(ctx context.Context, groupID, chunkID uuid.UUID) error
	DeleteBookmarksForDataset(ctx context.Context, datasetID string) error
	// RemoveChunkFromGroups removes chunkID from every group it belongs
	// to and every bookmark referencing it, for a single-chunk delete's
	// cascade (spec §3 Lifecycle: "tags, bookmarks, group memberships").
	// PgStore backs both concepts with the same group_bookmarks row, so
	// one deletion by chunk_id clears both at once.
	RemoveChunkFromGroups(ctx context.Context, chunkID uuid.UUID) error

	CreateGroup(ctx context.Context, g Group) (Group, error)
	GetGroup(ctx context.Context, datasetID string, id uuid.UUID) (Group, error)
	// GetOrCreateGroupByTrackingID resolves a chunk's group_tracking_ids
	// entry (spec §4.E step 6) to a group row, creating an empty group
	// named after the tracking id the first time it is referenced —
	// mirroring UpsertTags' "create on first reference" behavior for the
	// tag vocabulary.
	GetOrCreateGroupByTrackingID(ctx context.Context, datasetID, trackingID string) (Group, error)
	UpdateGroupTagSet(ctx context.Context, datasetID string, id uuid.UUID, tagSet []string) error
	DeleteGroup(ctx context.Context, datasetID string, id uuid.UUID, cascadeMembers bool) error
	GroupMembersPage(ctx context.Context, groupID uuid.UUID, afterChunkID uuid.UUID, limit int) ([]uuid.UUID, error)
	AddGroupMember(ctx context.Context, groupID, chunkID uuid.UUID) error

	CreateFile(ctx context.Context, f File) (File, error)
	GroupFromFile(ctx context.Context, datasetID string, fileID uuid.UUID) (Group, error)

	GetDataset(ctx context.Context, id string, includeDeleted bool) (Dataset, error)
	SoftDeleteDataset(ctx context.Context, id string) error
	HardDeleteDataset(ctx context.Context, id string) error
	GetDatasetConfig(ctx context.Context, id string) (map[string]any, error)

	DeleteChunksBatch(ctx context.Context, datasetID string, limit int) ([]uuid.UUID, error)
	DeleteGroupsForDataset(ctx context.Context, datasetID string) error
	DeleteFilesForDataset(ctx context.Context, datasetID string) error

	WordsLastProcessed(ctx context.Context, datasetID string) (int64, error)
	SetWordsLastProcessed(ctx context.Context, datasetID string, unixSeconds int64) error

	Close()
}
