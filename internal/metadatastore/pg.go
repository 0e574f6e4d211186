package metadatastore

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/devflowinc/trieve-sub001/internal/errs"
)

// PgStore is the pgxpool-backed Store implementation, grounded on the
// teacher's internal/database.PostgresDB (pool lifecycle, migrations
// run eagerly at construction).
type PgStore struct {
	pool   *pgxpool.Pool
	logger *logrus.Logger
}

var _ Store = (*PgStore)(nil)

func NewPgStore(ctx context.Context, dsn string, logger *logrus.Logger) (*PgStore, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errs.Transient(errs.CodeRemoteTimeout, "failed to connect to metadata store", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.WithError(err).Warn("metadata store connection test failed")
	}

	store := &PgStore{pool: pool, logger: logger}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("connected to metadata store")
	return store, nil
}

func (s *PgStore) migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return errs.Internal("metadatastore_migration_failed", "failed to run metadata store migration", err)
		}
	}
	return nil
}

func (s *PgStore) Close() {
	s.pool.Close()
}

func (s *PgStore) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.pool.Ping(ctx); err != nil {
		return errs.Transient(errs.CodeRemoteTimeout, "metadata store health check failed", err)
	}
	return nil
}

// BulkInsertChunks implements spec §4.C: rows conflicting on
// (dataset_id, tracking_id) are either skipped (upsertByTrackingID
// false) or upserted in place. fingerprints[i] is the collision index's
// decision (§4.D) for rows[i] and must be pre-computed by the caller.
func (s *PgStore) BulkInsertChunks(ctx context.Context, datasetID string, rows []BulkChunkRow, fingerprints []uuid.UUID, upsertByTrackingID bool) (BulkInsertResult, error) {
	if len(rows) != len(fingerprints) {
		return BulkInsertResult{}, errs.Internal("metadatastore_row_mismatch", "rows and fingerprints must be the same length", nil)
	}
	if len(rows) == 0 {
		return BulkInsertResult{}, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return BulkInsertResult{}, errs.Transient(errs.CodeRemoteStatus, "failed to start bulk insert transaction", err)
	}
	defer tx.Rollback(ctx)

	result := BulkInsertResult{}
	for i, row := range rows {
		metadataJSON, err := json.Marshal(row.Metadata)
		if err != nil {
			return BulkInsertResult{}, errs.BadRequest(errs.CodeInvalidDimension, "invalid chunk metadata", err)
		}

		var query string
		if upsertByTrackingID {
			query = `INSERT INTO chunks (dataset_id, fingerprint, content, html, link, tracking_id, metadata, time_stamp, lat, lon, num_value, weight, image_urls, tag_set)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
				ON CONFLICT (dataset_id, tracking_id) WHERE tracking_id IS NOT NULL AND deleted = 0
				DO UPDATE SET content=EXCLUDED.content, html=EXCLUDED.html, link=EXCLUDED.link,
					fingerprint=EXCLUDED.fingerprint, metadata=EXCLUDED.metadata, time_stamp=EXCLUDED.time_stamp,
					lat=EXCLUDED.lat, lon=EXCLUDED.lon, num_value=EXCLUDED.num_value, weight=EXCLUDED.weight,
					image_urls=EXCLUDED.image_urls, tag_set=EXCLUDED.tag_set, updated_at=NOW()
				RETURNING id, created_at, updated_at`
		} else {
			query = `INSERT INTO chunks (dataset_id, fingerprint, content, html, link, tracking_id, metadata, time_stamp, lat, lon, num_value, weight, image_urls, tag_set)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
				ON CONFLICT (dataset_id, tracking_id) WHERE tracking_id IS NOT NULL AND deleted = 0
				DO NOTHING
				RETURNING id, created_at, updated_at`
		}

		var id uuid.UUID
		var createdAt, updatedAt time.Time
		scanErr := tx.QueryRow(ctx, query,
			datasetID, fingerprints[i], row.Content, row.HTML, row.Link, row.TrackingID,
			metadataJSON, row.TimeStamp, row.Lat, row.Lon, row.NumValue, row.Weight,
			row.ImageURLs, row.TagSet,
		).Scan(&id, &createdAt, &updatedAt)

		if scanErr == pgx.ErrNoRows {
			result.Skipped++
			continue
		}
		if scanErr != nil {
			return BulkInsertResult{}, errs.Transient(errs.CodeRemoteStatus, "failed to insert chunk row", scanErr)
		}

		result.Chunks = append(result.Chunks, Chunk{
			ID: id, DatasetID: datasetID, Fingerprint: fingerprints[i],
			Content: row.Content, HTML: row.HTML, Link: row.Link, TrackingID: row.TrackingID,
			Metadata: row.Metadata, TimeStamp: row.TimeStamp, Lat: row.Lat, Lon: row.Lon,
			NumValue: row.NumValue, Weight: row.Weight, ImageURLs: row.ImageURLs, TagSet: row.TagSet,
			CreatedAt: createdAt, UpdatedAt: updatedAt,
		})
	}

	if err := tx.Commit(ctx); err != nil {
		return BulkInsertResult{}, errs.Transient(errs.CodeRemoteStatus, "failed to commit bulk insert", err)
	}
	return result, nil
}

// RevertBulkInsert is the compensating action for a bulk insert whose
// downstream embed/upsert step failed (spec §4.E step 8); only valid
// when upsert_by_tracking_id was false, since an upsert's previous row
// version cannot be reconstructed from here.
func (s *PgStore) RevertBulkInsert(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE id = ANY($1)`, ids)
	if err != nil {
		return errs.Transient(errs.CodeRemoteStatus, "failed to revert bulk insert", err)
	}
	return nil
}

const chunkColumns = `id, dataset_id, fingerprint, content, html, link, tracking_id, metadata, time_stamp, lat, lon, num_value, weight, image_urls, tag_set, created_at, updated_at`

func scanChunk(row pgx.Row) (Chunk, error) {
	var c Chunk
	var metadataJSON []byte
	if err := row.Scan(&c.ID, &c.DatasetID, &c.Fingerprint, &c.Content, &c.HTML, &c.Link, &c.TrackingID,
		&metadataJSON, &c.TimeStamp, &c.Lat, &c.Lon, &c.NumValue, &c.Weight, &c.ImageURLs, &c.TagSet,
		&c.CreatedAt, &c.UpdatedAt); err != nil {
		return Chunk{}, err
	}
	if len(metadataJSON) > 0 {
		_ = json.Unmarshal(metadataJSON, &c.Metadata)
	}
	return c, nil
}

func (s *PgStore) GetChunk(ctx context.Context, datasetID string, id uuid.UUID) (Chunk, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE dataset_id=$1 AND id=$2 AND deleted=0`, datasetID, id)
	c, err := scanChunk(row)
	if err == pgx.ErrNoRows {
		return Chunk{}, errs.NotFound(errs.CodeNotFound, "chunk not found", nil)
	}
	if err != nil {
		return Chunk{}, errs.Transient(errs.CodeRemoteStatus, "failed to fetch chunk", err)
	}
	return c, nil
}

func (s *PgStore) GetChunkByTrackingID(ctx context.Context, datasetID, trackingID string) (Chunk, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE dataset_id=$1 AND tracking_id=$2 AND deleted=0`, datasetID, trackingID)
	c, err := scanChunk(row)
	if err == pgx.ErrNoRows {
		return Chunk{}, errs.NotFound(errs.CodeNotFound, "chunk not found", nil)
	}
	if err != nil {
		return Chunk{}, errs.Transient(errs.CodeRemoteStatus, "failed to fetch chunk", err)
	}
	return c, nil
}

func (s *PgStore) GetChunksByIDs(ctx context.Context, datasetID string, ids []uuid.UUID) ([]Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE dataset_id=$1 AND id = ANY($2) AND deleted=0`, datasetID, ids)
	if err != nil {
		return nil, errs.Transient(errs.CodeRemoteStatus, "failed to fetch chunks", err)
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, errs.Transient(errs.CodeRemoteStatus, "failed to scan chunk row", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetChunksByFingerprints resolves vector-store hits back to chunk rows by
// their content fingerprint rather than chunk id (spec §4.G).
func (s *PgStore) GetChunksByFingerprints(ctx context.Context, datasetID string, fingerprints []uuid.UUID) ([]Chunk, error) {
	if len(fingerprints) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE dataset_id=$1 AND fingerprint = ANY($2) AND deleted=0`, datasetID, fingerprints)
	if err != nil {
		return nil, errs.Transient(errs.CodeRemoteStatus, "failed to fetch chunks by fingerprint", err)
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, errs.Transient(errs.CodeRemoteStatus, "failed to scan chunk row", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ScanChunksSince pages through a dataset's chunks created at or after
// since, ordered by id (spec §4.I's BK-tree build scan).
func (s *PgStore) ScanChunksSince(ctx context.Context, datasetID string, since time.Time, afterID uuid.UUID, limit int) ([]Chunk, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+chunkColumns+` FROM chunks
		WHERE dataset_id=$1 AND deleted=0 AND created_at >= $2 AND id > $3
		ORDER BY id ASC LIMIT $4`, datasetID, since, afterID, limit)
	if err != nil {
		return nil, errs.Transient(errs.CodeRemoteStatus, "failed to scan chunks", err)
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, errs.Transient(errs.CodeRemoteStatus, "failed to scan chunk row", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PgStore) UpdateChunk(ctx context.Context, c Chunk) error {
	metadataJSON, err := json.Marshal(c.Metadata)
	if err != nil {
		return errs.BadRequest(errs.CodeInvalidDimension, "invalid chunk metadata", err)
	}
	tag, err := s.pool.Exec(ctx, `UPDATE chunks SET fingerprint=$3, content=$4, html=$5, link=$6, metadata=$7,
		time_stamp=$8, lat=$9, lon=$10, num_value=$11, weight=$12, image_urls=$13, tag_set=$14, updated_at=NOW()
		WHERE dataset_id=$1 AND id=$2 AND deleted=0`,
		c.DatasetID, c.ID, c.Fingerprint, c.Content, c.HTML, c.Link, metadataJSON,
		c.TimeStamp, c.Lat, c.Lon, c.NumValue, c.Weight, c.ImageURLs, c.TagSet)
	if err != nil {
		return errs.Transient(errs.CodeRemoteStatus, "failed to update chunk", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound(errs.CodeNotFound, "chunk not found", nil)
	}
	return nil
}

func (s *PgStore) DeleteChunk(ctx context.Context, datasetID string, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `UPDATE chunks SET deleted=1, updated_at=NOW() WHERE dataset_id=$1 AND id=$2 AND deleted=0`, datasetID, id)
	if err != nil {
		return errs.Transient(errs.CodeRemoteStatus, "failed to delete chunk", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound(errs.CodeNotFound, "chunk not found", nil)
	}
	return nil
}

func (s *PgStore) InsertCollision(ctx context.Context, chunkID, canonicalFingerprint uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO collisions (chunk_id, canonical_fingerprint) VALUES ($1,$2)
		ON CONFLICT (chunk_id) DO UPDATE SET canonical_fingerprint=EXCLUDED.canonical_fingerprint`, chunkID, canonicalFingerprint)
	if err != nil {
		return errs.Transient(errs.CodeRemoteStatus, "failed to record collision", err)
	}
	return nil
}

func (s *PgStore) DeleteCollision(ctx context.Context, chunkID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM collisions WHERE chunk_id=$1`, chunkID)
	if err != nil {
		return errs.Transient(errs.CodeRemoteStatus, "failed to remove collision ref", err)
	}
	return nil
}

func (s *PgStore) CollisionFingerprint(ctx context.Context, chunkID uuid.UUID) (uuid.UUID, bool, error) {
	var fp uuid.UUID
	row := s.pool.QueryRow(ctx, `SELECT canonical_fingerprint FROM collisions WHERE chunk_id=$1`, chunkID)
	if err := row.Scan(&fp); err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, errs.Transient(errs.CodeRemoteStatus, "failed to look up collision ref", err)
	}
	return fp, true, nil
}

// DuplicatesOf returns every non-deleted chunk pointing at canonicalFingerprint,
// oldest first, for canonical-election on delete (spec §4.D).
func (s *PgStore) DuplicatesOf(ctx context.Context, canonicalFingerprint uuid.UUID) ([]Chunk, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+prefixed("c.", chunkColumns)+` FROM chunks c
		JOIN collisions col ON col.chunk_id = c.id
		WHERE col.canonical_fingerprint = $1 AND c.deleted = 0
		ORDER BY c.created_at ASC`, canonicalFingerprint)
	if err != nil {
		return nil, errs.Transient(errs.CodeRemoteStatus, "failed to list duplicates", err)
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, errs.Transient(errs.CodeRemoteStatus, "failed to scan duplicate row", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PgStore) UpsertTags(ctx context.Context, datasetID string, tags []string) ([]DatasetTag, error) {
	normalized := normalizeTags(tags)
	if len(normalized) == 0 {
		return nil, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, errs.Transient(errs.CodeRemoteStatus, "failed to start tag upsert transaction", err)
	}
	defer tx.Rollback(ctx)

	out := make([]DatasetTag, 0, len(normalized))
	for _, tag := range normalized {
		var dt DatasetTag
		err := tx.QueryRow(ctx, `INSERT INTO dataset_tags (dataset_id, tag) VALUES ($1,$2)
			ON CONFLICT (dataset_id, tag) DO UPDATE SET tag=EXCLUDED.tag
			RETURNING id, dataset_id, tag`, datasetID, tag).Scan(&dt.ID, &dt.DatasetID, &dt.Tag)
		if err != nil {
			return nil, errs.Transient(errs.CodeRemoteStatus, "failed to upsert dataset tag", err)
		}
		out = append(out, dt)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, errs.Transient(errs.CodeRemoteStatus, "failed to commit tag upsert", err)
	}
	return out, nil
}

func (s *PgStore) LinkChunkTags(ctx context.Context, chunkID uuid.UUID, tagIDs []uuid.UUID) error {
	for _, tagID := range tagIDs {
		_, err := s.pool.Exec(ctx, `INSERT INTO chunk_tags (chunk_id, tag_id) VALUES ($1,$2) ON CONFLICT (chunk_id, tag_id) DO NOTHING`, chunkID, tagID)
		if err != nil {
			return errs.Transient(errs.CodeRemoteStatus, "failed to link chunk tag", err)
		}
	}
	return nil
}

func (s *PgStore) UnlinkChunkTags(ctx context.Context, chunkID uuid.UUID, tagIDs []uuid.UUID) error {
	if len(tagIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM chunk_tags WHERE chunk_id=$1 AND tag_id = ANY($2)`, chunkID, tagIDs)
	if err != nil {
		return errs.Transient(errs.CodeRemoteStatus, "failed to unlink chunk tags", err)
	}
	return nil
}

// UnlinkAllChunkTags removes every tag link for chunkID. DeleteChunk only
// soft-deletes the chunks row, so chunk_tags' ON DELETE CASCADE foreign
// key never fires on its own.
func (s *PgStore) UnlinkAllChunkTags(ctx context.Context, chunkID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM chunk_tags WHERE chunk_id=$1`, chunkID)
	if err != nil {
		return errs.Transient(errs.CodeRemoteStatus, "failed to unlink all chunk tags", err)
	}
	return nil
}

func (s *PgStore) ChunkTagSet(ctx context.Context, chunkID uuid.UUID) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT dt.tag FROM chunk_tags ct JOIN dataset_tags dt ON dt.id = ct.tag_id WHERE ct.chunk_id=$1`, chunkID)
	if err != nil {
		return nil, errs.Transient(errs.CodeRemoteStatus, "failed to read chunk tag set", err)
	}
	defer rows.Close()
	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, errs.Transient(errs.CodeRemoteStatus, "failed to scan chunk tag", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func (s *PgStore) CreateBookmark(ctx context.Context, groupID, chunkID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO group_bookmarks (group_id, chunk_id) VALUES ($1,$2)
		ON CONFLICT DO NOTHING`, groupID, chunkID)
	if err != nil {
		return errs.Transient(errs.CodeRemoteStatus, "failed to create bookmark", err)
	}
	return nil
}

func (s *PgStore) DeleteBookmarksForDataset(ctx context.Context, datasetID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM group_bookmarks USING groups
		WHERE group_bookmarks.group_id = groups.id AND groups.dataset_id=$1`, datasetID)
	if err != nil {
		return errs.Transient(errs.CodeRemoteStatus, "failed to delete dataset bookmarks", err)
	}
	return nil
}

// RemoveChunkFromGroups clears chunkID out of group_bookmarks entirely,
// which is both its group membership and its bookmark record in this
// schema (spec §3 Lifecycle cascade).
func (s *PgStore) RemoveChunkFromGroups(ctx context.Context, chunkID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM group_bookmarks WHERE chunk_id=$1`, chunkID)
	if err != nil {
		return errs.Transient(errs.CodeRemoteStatus, "failed to remove chunk from groups", err)
	}
	return nil
}

func (s *PgStore) CreateGroup(ctx context.Context, g Group) (Group, error) {
	metadataJSON, err := json.Marshal(g.Metadata)
	if err != nil {
		return Group{}, errs.BadRequest(errs.CodeInvalidDimension, "invalid group metadata", err)
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO groups (dataset_id, name, description, tracking_id, tag_set, metadata)
		VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at`, g.DatasetID, g.Name, g.Description, g.TrackingID, g.TagSet, metadataJSON)
	if err := row.Scan(&g.ID, &g.CreatedAt); err != nil {
		return Group{}, errs.Transient(errs.CodeRemoteStatus, "failed to create group", err)
	}
	return g, nil
}

func (s *PgStore) GetGroup(ctx context.Context, datasetID string, id uuid.UUID) (Group, error) {
	var g Group
	var metadataJSON []byte
	row := s.pool.QueryRow(ctx, `SELECT id, dataset_id, name, description, tracking_id, tag_set, metadata, created_at
		FROM groups WHERE dataset_id=$1 AND id=$2 AND deleted=0`, datasetID, id)
	if err := row.Scan(&g.ID, &g.DatasetID, &g.Name, &g.Description, &g.TrackingID, &g.TagSet, &metadataJSON, &g.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return Group{}, errs.NotFound(errs.CodeNotFound, "group not found", nil)
		}
		return Group{}, errs.Transient(errs.CodeRemoteStatus, "failed to fetch group", err)
	}
	if len(metadataJSON) > 0 {
		_ = json.Unmarshal(metadataJSON, &g.Metadata)
	}
	return g, nil
}

// GetOrCreateGroupByTrackingID resolves a (dataset_id, tracking_id) pair
// to its group row, inserting an empty group the first time the tracking
// id is referenced (spec §4.E step 6). The unique index on
// (dataset_id, tracking_id) makes the insert/select race safe under
// concurrent ingestion workers: a losing insert falls back to the select.
func (s *PgStore) GetOrCreateGroupByTrackingID(ctx context.Context, datasetID, trackingID string) (Group, error) {
	var g Group
	var metadataJSON []byte
	row := s.pool.QueryRow(ctx, `SELECT id, dataset_id, name, description, tracking_id, tag_set, metadata, created_at
		FROM groups WHERE dataset_id=$1 AND tracking_id=$2 AND deleted=0`, datasetID, trackingID)
	err := row.Scan(&g.ID, &g.DatasetID, &g.Name, &g.Description, &g.TrackingID, &g.TagSet, &metadataJSON, &g.CreatedAt)
	if err == nil {
		if len(metadataJSON) > 0 {
			_ = json.Unmarshal(metadataJSON, &g.Metadata)
		}
		return g, nil
	}
	if err != pgx.ErrNoRows {
		return Group{}, errs.Transient(errs.CodeRemoteStatus, "failed to look up group by tracking id", err)
	}

	insertRow := s.pool.QueryRow(ctx, `INSERT INTO groups (dataset_id, name, tracking_id)
		VALUES ($1,$2,$3)
		ON CONFLICT (dataset_id, tracking_id) WHERE tracking_id IS NOT NULL AND deleted = 0 DO NOTHING
		RETURNING id, created_at`, datasetID, trackingID, trackingID)
	if err := insertRow.Scan(&g.ID, &g.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			// Lost the insert race; the winning row is now visible.
			return s.GetOrCreateGroupByTrackingID(ctx, datasetID, trackingID)
		}
		return Group{}, errs.Transient(errs.CodeRemoteStatus, "failed to create group for tracking id", err)
	}
	g.DatasetID = datasetID
	g.Name = trackingID
	g.TrackingID = &trackingID
	return g, nil
}

func (s *PgStore) UpdateGroupTagSet(ctx context.Context, datasetID string, id uuid.UUID, tagSet []string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE groups SET tag_set=$3 WHERE dataset_id=$1 AND id=$2 AND deleted=0`, datasetID, id, tagSet)
	if err != nil {
		return errs.Transient(errs.CodeRemoteStatus, "failed to update group tag set", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound(errs.CodeNotFound, "group not found", nil)
	}
	return nil
}

func (s *PgStore) DeleteGroup(ctx context.Context, datasetID string, id uuid.UUID, cascadeMembers bool) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errs.Transient(errs.CodeRemoteStatus, "failed to start group delete transaction", err)
	}
	defer tx.Rollback(ctx)

	if cascadeMembers {
		if _, err := tx.Exec(ctx, `UPDATE chunks SET deleted=1 WHERE id IN (SELECT chunk_id FROM group_bookmarks WHERE group_id=$1)`, id); err != nil {
			return errs.Transient(errs.CodeRemoteStatus, "failed to cascade group member delete", err)
		}
	}
	if _, err := tx.Exec(ctx, `DELETE FROM group_bookmarks WHERE group_id=$1`, id); err != nil {
		return errs.Transient(errs.CodeRemoteStatus, "failed to clear group bookmarks", err)
	}
	tag, err := tx.Exec(ctx, `UPDATE groups SET deleted=1 WHERE dataset_id=$1 AND id=$2 AND deleted=0`, datasetID, id)
	if err != nil {
		return errs.Transient(errs.CodeRemoteStatus, "failed to delete group", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound(errs.CodeNotFound, "group not found", nil)
	}
	if err := tx.Commit(ctx); err != nil {
		return errs.Transient(errs.CodeRemoteStatus, "failed to commit group delete", err)
	}
	return nil
}

// GroupMembersPage returns up to limit member chunk ids ordered by id,
// strictly after afterChunkID (spec §4.J's cursor resumption).
func (s *PgStore) GroupMembersPage(ctx context.Context, groupID uuid.UUID, afterChunkID uuid.UUID, limit int) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `SELECT chunk_id FROM group_bookmarks WHERE group_id=$1 AND chunk_id > $2 ORDER BY chunk_id ASC LIMIT $3`, groupID, afterChunkID, limit)
	if err != nil {
		return nil, errs.Transient(errs.CodeRemoteStatus, "failed to page group members", err)
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, errs.Transient(errs.CodeRemoteStatus, "failed to scan group member", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PgStore) AddGroupMember(ctx context.Context, groupID, chunkID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO group_bookmarks (group_id, chunk_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`, groupID, chunkID)
	if err != nil {
		return errs.Transient(errs.CodeRemoteStatus, "failed to add group member", err)
	}
	return nil
}

func (s *PgStore) CreateFile(ctx context.Context, f File) (File, error) {
	row := s.pool.QueryRow(ctx, `INSERT INTO files (dataset_id, size_mb) VALUES ($1,$2) RETURNING id, created_at`, f.DatasetID, f.SizeMB)
	if err := row.Scan(&f.ID, &f.CreatedAt); err != nil {
		return File{}, errs.Transient(errs.CodeRemoteStatus, "failed to create file", err)
	}
	if f.GroupID != nil {
		if _, err := s.pool.Exec(ctx, `INSERT INTO groups_from_files (group_id, file_id) VALUES ($1,$2)`, *f.GroupID, f.ID); err != nil {
			return File{}, errs.Transient(errs.CodeRemoteStatus, "failed to link file to group", err)
		}
	}
	return f, nil
}

func (s *PgStore) GroupFromFile(ctx context.Context, datasetID string, fileID uuid.UUID) (Group, error) {
	var groupID uuid.UUID
	row := s.pool.QueryRow(ctx, `SELECT group_id FROM groups_from_files WHERE file_id=$1`, fileID)
	if err := row.Scan(&groupID); err != nil {
		if err == pgx.ErrNoRows {
			return Group{}, errs.NotFound(errs.CodeNotFound, "file has no owning group", nil)
		}
		return Group{}, errs.Transient(errs.CodeRemoteStatus, "failed to resolve group from file", err)
	}
	return s.GetGroup(ctx, datasetID, groupID)
}

func (s *PgStore) GetDataset(ctx context.Context, id string, includeDeleted bool) (Dataset, error) {
	query := `SELECT id, organization_id, tracking_id, server_configuration, deleted FROM datasets WHERE id=$1`
	if !includeDeleted {
		query += ` AND deleted=0`
	}
	var d Dataset
	var configJSON []byte
	var deletedInt int
	row := s.pool.QueryRow(ctx, query, id)
	if err := row.Scan(&d.ID, &d.OrganizationID, &d.TrackingID, &configJSON, &deletedInt); err != nil {
		if err == pgx.ErrNoRows {
			return Dataset{}, errs.NotFound(errs.CodeNotFound, "dataset not found", nil)
		}
		return Dataset{}, errs.Transient(errs.CodeRemoteStatus, "failed to fetch dataset", err)
	}
	d.Deleted = deletedInt != 0
	if len(configJSON) > 0 {
		_ = json.Unmarshal(configJSON, &d.ServerConfiguration)
	}
	return d, nil
}

func (s *PgStore) SoftDeleteDataset(ctx context.Context, id string) error {
	cfg, err := s.GetDatasetConfig(ctx, id)
	if err != nil {
		return err
	}
	if locked, _ := cfg["LOCKED"].(bool); locked {
		return errs.BadRequest(errs.CodeDatasetLocked, "dataset is locked", nil)
	}
	tag, err := s.pool.Exec(ctx, `UPDATE datasets SET deleted=1, tracking_id=NULL WHERE id=$1 AND deleted=0`, id)
	if err != nil {
		return errs.Transient(errs.CodeRemoteStatus, "failed to soft-delete dataset", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound(errs.CodeNotFound, "dataset not found", nil)
	}
	return nil
}

func (s *PgStore) HardDeleteDataset(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM datasets WHERE id=$1`, id)
	if err != nil {
		return errs.Transient(errs.CodeRemoteStatus, "failed to hard-delete dataset", err)
	}
	return nil
}

func (s *PgStore) GetDatasetConfig(ctx context.Context, id string) (map[string]any, error) {
	var configJSON []byte
	row := s.pool.QueryRow(ctx, `SELECT server_configuration FROM datasets WHERE id=$1`, id)
	if err := row.Scan(&configJSON); err != nil {
		if err == pgx.ErrNoRows {
			return nil, errs.NotFound(errs.CodeNotFound, "dataset not found", nil)
		}
		return nil, errs.Transient(errs.CodeRemoteStatus, "failed to fetch dataset config", err)
	}
	cfg := map[string]any{}
	if len(configJSON) > 0 {
		_ = json.Unmarshal(configJSON, &cfg)
	}
	return cfg, nil
}

// DeleteChunksBatch soft-deletes up to limit chunks for a dataset and
// returns their ids, for the dataset lifecycle worker's fixed-size
// cascade (spec §4.K, default 5,000).
func (s *PgStore) DeleteChunksBatch(ctx context.Context, datasetID string, limit int) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `UPDATE chunks SET deleted=1 WHERE id IN (
		SELECT id FROM chunks WHERE dataset_id=$1 AND deleted=0 LIMIT $2
	) RETURNING id`, datasetID, limit)
	if err != nil {
		return nil, errs.Transient(errs.CodeRemoteStatus, "failed to batch-delete chunks", err)
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, errs.Transient(errs.CodeRemoteStatus, "failed to scan deleted chunk id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PgStore) DeleteGroupsForDataset(ctx context.Context, datasetID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM group_bookmarks WHERE group_id IN (SELECT id FROM groups WHERE dataset_id=$1)`, datasetID); err != nil {
		return errs.Transient(errs.CodeRemoteStatus, "failed to clear group bookmarks", err)
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM groups WHERE dataset_id=$1`, datasetID); err != nil {
		return errs.Transient(errs.CodeRemoteStatus, "failed to clear groups", err)
	}
	return nil
}

func (s *PgStore) DeleteFilesForDataset(ctx context.Context, datasetID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM groups_from_files WHERE file_id IN (SELECT id FROM files WHERE dataset_id=$1)`, datasetID); err != nil {
		return errs.Transient(errs.CodeRemoteStatus, "failed to clear file group links", err)
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM files WHERE dataset_id=$1`, datasetID); err != nil {
		return errs.Transient(errs.CodeRemoteStatus, "failed to clear files", err)
	}
	return nil
}

func (s *PgStore) WordsLastProcessed(ctx context.Context, datasetID string) (int64, error) {
	var ts int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed FROM dataset_words_last_processed WHERE dataset_id=$1`, datasetID)
	if err := row.Scan(&ts); err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		return 0, errs.Transient(errs.CodeRemoteStatus, "failed to fetch words-last-processed", err)
	}
	return ts, nil
}

func (s *PgStore) SetWordsLastProcessed(ctx context.Context, datasetID string, unixSeconds int64) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO dataset_words_last_processed (dataset_id, last_processed) VALUES ($1,$2)
		ON CONFLICT (dataset_id) DO UPDATE SET last_processed=EXCLUDED.last_processed`, datasetID, unixSeconds)
	if err != nil {
		return errs.Transient(errs.CodeRemoteStatus, "failed to set words-last-processed", err)
	}
	return nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := map[string]bool{}
	for _, t := range tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// prefixed qualifies every column in a flat comma-separated list with
// the same table alias, so DuplicatesOf's join query can reuse
// chunkColumns instead of repeating it.
func prefixed(prefix, columns string) string {
	fields := strings.Split(columns, ",")
	for i, f := range fields {
		fields[i] = prefix + strings.TrimSpace(f)
	}
	return strings.Join(fields, ", ")
}
