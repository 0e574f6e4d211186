// Package metadatastore implements the Metadata Store Adapter (spec
// §4.C): transactional relational access to chunks, groups, tags,
// bookmarks, files, and dataset usage, grounded on the teacher's
// internal/database pgxpool wrapper.
package metadatastore

import (
	"time"

	"github.com/google/uuid"
)

// Chunk mirrors the chunks table (spec §6).
type Chunk struct {
	ID          uuid.UUID
	DatasetID   string
	Fingerprint uuid.UUID
	Content     string
	HTML        string
	Link        string
	TrackingID  *string
	Metadata    map[string]any
	TimeStamp   *time.Time
	Lat         *float64
	Lon         *float64
	NumValue    *float64
	Weight      *float64
	ImageURLs   []string
	TagSet      []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Collision mirrors the collisions table (spec §4.D).
type Collision struct {
	ChunkID             uuid.UUID
	CanonicalFingerprint uuid.UUID
	CreatedAt           time.Time
}

// Group mirrors the groups table.
type Group struct {
	ID          uuid.UUID
	DatasetID   string
	Name        string
	Description string
	TrackingID  *string
	TagSet      []string
	Metadata    map[string]any
	CreatedAt   time.Time
}

// DatasetTag mirrors dataset_tags.
type DatasetTag struct {
	ID        uuid.UUID
	DatasetID string
	Tag       string
}

// ChunkTag mirrors chunk_tags.
type ChunkTag struct {
	ID      uuid.UUID
	ChunkID uuid.UUID
	TagID   uuid.UUID
}

// GroupBookmark mirrors group_bookmarks: one chunk's place in a group. The
// same table holds membership established at ingestion (AddGroupMember)
// and chunks saved by a user action (CreateBookmark) (spec §6).
type GroupBookmark struct {
	GroupID   uuid.UUID
	ChunkID   uuid.UUID
	CreatedAt time.Time
}

// File mirrors files/groups_from_files.
type File struct {
	ID        uuid.UUID
	DatasetID string
	SizeMB    float64
	GroupID   *uuid.UUID
	CreatedAt time.Time
}

// Dataset mirrors the datasets table.
type Dataset struct {
	ID                  string
	OrganizationID      string
	TrackingID          *string
	ServerConfiguration map[string]any
	Deleted             bool
}

// BulkChunkRow is one row offered to BulkInsertChunks before ids are
// assigned. The row carries no fingerprint: fingerprints, computed by the
// collision package (spec §4.D), are passed to BulkInsertChunks as a
// separate argument, one per row.
type BulkChunkRow struct {
	TrackingID *string
	Content    string
	HTML       string
	Link       string
	Metadata   map[string]any
	TimeStamp  *time.Time
	Lat        *float64
	Lon        *float64
	NumValue   *float64
	Weight     *float64
	ImageURLs  []string
	TagSet     []string
}

// BulkInsertResult reports which rows survived insertion (spec §4.C:
// "the set of rows actually requiring re-embedding is exactly the
// returned set").
type BulkInsertResult struct {
	Chunks []Chunk
	Skipped int // rows dropped due to (dataset_id, tracking_id) conflict, upsert_by_tracking_id=false
}
